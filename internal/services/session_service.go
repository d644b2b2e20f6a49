package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/SAP-F-2025/form-exam-service/internal/events"
	"github.com/SAP-F-2025/form-exam-service/internal/grading"
	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/SAP-F-2025/form-exam-service/internal/repositories"
	"github.com/SAP-F-2025/form-exam-service/internal/validator"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const publishTimeout = 10 * time.Second

type SessionServiceOptions struct {
	AccessControl AccessControl
	Publisher     events.EventPublisher
	Validator     *validator.Validator
	Logger        *slog.Logger
	// Clock and Shuffle default to wall time and math/rand
	Clock   func() time.Time
	Shuffle Shuffler
}

type sessionService struct {
	repo      repositories.Repository
	access    AccessControl
	tracker   *ViolationTracker
	publisher events.EventPublisher
	validator *validator.Validator
	log       *ServiceLogger
	now       func() time.Time
	shuffle   Shuffler

	inflight sync.WaitGroup
}

func NewSessionService(repo repositories.Repository, opts SessionServiceOptions) *sessionService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	access := opts.AccessControl
	if access == nil {
		access = NewSettingsAccessControl(repo)
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NewMockEventPublisher(logger)
	}
	v := opts.Validator
	if v == nil {
		v = validator.New()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &sessionService{
		repo:      repo,
		access:    access,
		tracker:   NewViolationTracker(repo.Violation()),
		publisher: publisher,
		validator: v,
		log:       NewServiceLogger(logger, LogConfig{Service: "form-exam-service", Component: "session"}),
		now:       now,
		shuffle:   opts.Shuffle,
	}
}

// ===== START =====

func (s *sessionService) Start(ctx context.Context, slug string, req *StartSessionRequest) (resp *StartSessionResponse, err error) {
	started := time.Now()
	defer func() {
		sessionID := ""
		if resp != nil {
			sessionID = resp.Session.ID.String()
		}
		s.log.LogOperation(ctx, "start_session", slug, sessionID, time.Since(started), err)
	}()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	form, settings, err := s.loadForm(ctx, slug)
	if err != nil {
		return nil, err
	}

	now := s.now()
	email := respondentEmail(req)
	userID := deref(req.UserID)

	if err := s.access.Check(ctx, form, settings, AccessRequest{
		UserID:   userID,
		Email:    email,
		Password: req.Password,
		Now:      now,
	}); err != nil {
		return nil, err
	}

	if settings.General.LimitOneResponse {
		prior, err := s.repo.Session().FindSubmittedMatch(ctx, nil, form.ID, repositories.RespondentMatch{
			IPAddress: req.IPAddress,
			Email:     email,
			UserID:    userID,
		})
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return nil, ErrDuplicateSubmission
		}
	}

	session := &models.Session{
		ID:              uuid.New(),
		FormID:          form.ID,
		Status:          models.SessionInProgress,
		RespondentName:  trimmedOrNil(req.RespondentName),
		RespondentEmail: trimmedOrNil(&email),
		UserID:          req.UserID,
		StartedAt:       now,
		IPAddress:       req.IPAddress,
		UserAgent:       req.UserAgent,
	}
	if err := s.repo.Session().Create(ctx, nil, session); err != nil {
		return nil, err
	}

	return &StartSessionResponse{
		Session: s.sessionView(session, settings, 0),
		Exam:    PrepareExamData(form, settings, s.shuffle),
	}, nil
}

// ===== AUTOSAVE =====

// SaveAnswer stores one answer ahead of submission. Answers are graded only
// when the session is submitted.
func (s *sessionService) SaveAnswer(ctx context.Context, slug string, req *SaveAnswerRequest) (err error) {
	started := time.Now()
	defer func() {
		s.log.LogOperation(ctx, "save_answer", slug, req.SessionID.String(), time.Since(started), err)
	}()

	if err := s.validator.Validate(req); err != nil {
		return err
	}
	form, settings, err := s.loadForm(ctx, slug)
	if err != nil {
		return err
	}
	if _, ok := form.QuestionByID()[req.QuestionID]; !ok {
		return ValidationErrors{*NewValidationError("question_id", "is not part of this form", req.QuestionID)}
	}

	return s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		session, err := s.lockSession(ctx, tx, form, req.SessionID)
		if err != nil {
			return err
		}
		if session.Status != models.SessionInProgress {
			return ErrInvalidState
		}
		if s.expired(session, settings) {
			return ErrTimeLimitExceeded
		}
		return s.repo.Response().Upsert(ctx, tx, &models.Response{
			SessionID:  session.ID,
			QuestionID: req.QuestionID,
			Answer:     datatypes.JSON(req.Answer),
		})
	})
}

// ===== SUBMIT =====

type submitOutcome struct {
	session   *models.Session
	answered  int
	timedOut  bool
	responses []*models.Response
}

func (s *sessionService) Submit(ctx context.Context, slug string, req *SubmitSessionRequest) (resp *SubmitSessionResponse, err error) {
	started := time.Now()
	defer func() {
		s.log.LogOperation(ctx, "submit_session", slug, req.SessionID.String(), time.Since(started), err)
	}()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	form, settings, err := s.loadForm(ctx, slug)
	if err != nil {
		return nil, err
	}
	questions := form.QuestionByID()
	for i, input := range req.Responses {
		if _, ok := questions[input.QuestionID]; !ok {
			return nil, ValidationErrors{*NewValidationError(fmt.Sprintf("responses[%d].question_id", i), "is not part of this form", input.QuestionID)}
		}
	}

	var outcome submitOutcome
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		outcome = submitOutcome{}
		now := s.now()

		session, err := s.lockSession(ctx, tx, form, req.SessionID)
		if err != nil {
			return err
		}
		if session.Status != models.SessionInProgress {
			return ErrInvalidState
		}

		// the timer is checked before anything is written
		if s.expired(session, settings) {
			ok, err := s.repo.Session().TransitionStatus(ctx, tx, session.ID, models.SessionInProgress, models.SessionViolated, repositories.SessionUpdates{})
			if err != nil {
				return err
			}
			if !ok {
				return ErrInvalidState
			}
			session.Status = models.SessionViolated
			outcome.session = session
			outcome.timedOut = true
			return nil
		}

		saved, err := s.repo.Response().GetBySession(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		responses := s.gradeResponses(ctx, session.ID, questions, mergeAnswers(saved, req.Responses))
		if err := s.repo.Response().UpsertBatch(ctx, tx, responses); err != nil {
			return err
		}

		earned := 0
		for _, r := range responses {
			if r.PointsEarned != nil {
				earned += *r.PointsEarned
			}
		}
		// the denominator is every graded question on the form, not just the
		// answered ones, so skipping a question lowers the score
		score := ScorePercentage(earned, form.TotalPoints())
		timeSpent := int(now.Sub(session.StartedAt).Seconds())
		submittedAt := now

		ok, err := s.repo.Session().TransitionStatus(ctx, tx, session.ID, models.SessionInProgress, models.SessionSubmitted, repositories.SessionUpdates{
			SubmittedAt:      &submittedAt,
			TimeSpentSeconds: &timeSpent,
			Score:            score,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidState
		}

		session.Status = models.SessionSubmitted
		session.SubmittedAt = &submittedAt
		session.TimeSpentSeconds = &timeSpent
		session.Score = score
		outcome.session = session
		outcome.answered = len(responses)
		outcome.responses = responses
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome.timedOut {
		s.publishAsync(ctx, events.NewSessionViolatedEvent(events.SessionViolatedEvent{
			SessionID:  outcome.session.ID.String(),
			FormID:     form.ID,
			FormSlug:   form.Slug,
			Reason:     events.ViolationReasonTimeLimit,
			ViolatedAt: s.now(),
		}))
		return nil, ErrTimeLimitExceeded
	}

	session := outcome.session
	s.publishAsync(ctx, events.NewSessionSubmittedEvent(events.SessionSubmittedEvent{
		SessionID:        session.ID.String(),
		FormID:           form.ID,
		FormSlug:         form.Slug,
		FormTitle:        form.Title,
		RespondentName:   session.RespondentName,
		RespondentEmail:  session.RespondentEmail,
		SubmittedAt:      *session.SubmittedAt,
		TimeSpentSeconds: *session.TimeSpentSeconds,
		Score:            session.Score,
		AnsweredCount:    outcome.answered,
	}))

	resp = &SubmitSessionResponse{
		Session:       s.sessionView(session, settings, 0),
		AnsweredCount: outcome.answered,
	}
	if settings.ExamMode.ShowScoreAfter {
		resp.Results, err = AssembleResults(session, form, settings, outcome.responses, 0)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// gradeResponses grades every answer whose question has a correct answer.
// Ungraded questions keep null correctness and points.
func (s *sessionService) gradeResponses(ctx context.Context, sessionID uuid.UUID, questions map[uint]*models.Question, answers map[uint][]byte) []*models.Response {
	ids := make([]uint, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	// stable row order keeps concurrent upserts from deadlocking
	slices.Sort(ids)

	responses := make([]*models.Response, 0, len(answers))
	for _, questionID := range ids {
		answer := answers[questionID]
		q := questions[questionID]
		if q == nil || q.Type == models.QuestionSection {
			continue
		}
		resp := &models.Response{
			SessionID:  sessionID,
			QuestionID: questionID,
			Answer:     datatypes.JSON(answer),
		}
		if q.IsGraded() {
			result := grading.Grade(q, answer)
			if result.Rule == grading.RuleLoose {
				s.log.Warn(ctx, "Question graded by loose equality, consider an explicit rule",
					"question_id", q.ID, "question_type", q.Type)
			}
			resp.IsCorrect = &result.IsCorrect
			resp.PointsEarned = &result.PointsEarned
		}
		responses = append(responses, resp)
	}
	return responses
}

// mergeAnswers overlays submitted answers on the autosaved ones
func mergeAnswers(saved []*models.Response, submitted []AnswerInput) map[uint][]byte {
	merged := make(map[uint][]byte, len(saved)+len(submitted))
	for _, r := range saved {
		merged[r.QuestionID] = r.Answer
	}
	for _, in := range submitted {
		merged[in.QuestionID] = in.Answer
	}
	return merged
}

// ===== VIOLATIONS =====

func (s *sessionService) RecordViolation(ctx context.Context, slug string, req *RecordViolationRequest) (result *ViolationResult, err error) {
	started := time.Now()
	defer func() {
		s.log.LogOperation(ctx, "record_violation", slug, req.SessionID.String(), time.Since(started), err)
	}()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	form, settings, err := s.loadForm(ctx, slug)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		session, err := s.lockSession(ctx, tx, form, req.SessionID)
		if err != nil {
			return err
		}
		if session.Status != models.SessionInProgress {
			return ErrInvalidState
		}

		result, err = s.tracker.RecordAndEvaluate(ctx, tx, session, settings.MaxViolations(), req.EventType, req.EventData, s.now())
		if err != nil {
			return err
		}
		if !result.ShouldTerminate {
			return nil
		}

		ok, err := s.repo.Session().TransitionStatus(ctx, tx, session.ID, models.SessionInProgress, models.SessionViolated, repositories.SessionUpdates{})
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidState
		}
		result.Status = models.SessionViolated
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.ShouldTerminate {
		s.publishAsync(ctx, events.NewSessionViolatedEvent(events.SessionViolatedEvent{
			SessionID:      req.SessionID.String(),
			FormID:         form.ID,
			FormSlug:       form.Slug,
			Reason:         events.ViolationReasonMaxViolations,
			ViolationCount: result.ViolationCount,
			ViolatedAt:     s.now(),
		}))
	}
	return result, nil
}

// ===== READS =====

func (s *sessionService) GetSession(ctx context.Context, slug string, sessionID uuid.UUID) (*SessionView, error) {
	form, settings, err := s.loadForm(ctx, slug)
	if err != nil {
		return nil, err
	}
	session, err := s.getSession(ctx, form, sessionID)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.Violation().CountBySession(ctx, nil, session.ID)
	if err != nil {
		return nil, err
	}
	view := s.sessionView(session, settings, count)
	return &view, nil
}

func (s *sessionService) GetResults(ctx context.Context, slug string, sessionID uuid.UUID) (results *ExamResults, err error) {
	started := time.Now()
	defer func() {
		s.log.LogOperation(ctx, "get_results", slug, sessionID.String(), time.Since(started), err)
	}()

	form, settings, err := s.loadForm(ctx, slug)
	if err != nil {
		return nil, err
	}
	session, err := s.getSession(ctx, form, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.IsTerminal() {
		return nil, ErrInvalidState
	}

	responses, err := s.repo.Response().GetBySession(ctx, nil, session.ID)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.Violation().CountBySession(ctx, nil, session.ID)
	if err != nil {
		return nil, err
	}
	return AssembleResults(session, form, settings, responses, count)
}

// Shutdown waits for in-flight event publications
func (s *sessionService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ===== HELPERS =====

func (s *sessionService) loadForm(ctx context.Context, slug string) (*models.Form, models.FormSettings, error) {
	form, err := s.repo.Form().GetBySlug(ctx, nil, slug)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, models.FormSettings{}, ErrFormNotFound
		}
		return nil, models.FormSettings{}, err
	}
	settings, err := models.ParseSettings(form.Settings)
	if err != nil {
		var settingsErr *models.SettingsError
		if errors.As(err, &settingsErr) && settingsErr.Restrictive() {
			s.log.Error(ctx, "Form closed because its access settings cannot be read", "form_id", form.ID, "error", err)
			return nil, models.FormSettings{}, ErrFormUnavailable
		}
		s.log.Warn(ctx, "Using defaults for unreadable form settings", "form_id", form.ID, "error", err)
	}
	return form, settings, nil
}

func (s *sessionService) lockSession(ctx context.Context, tx *gorm.DB, form *models.Form, id uuid.UUID) (*models.Session, error) {
	session, err := s.repo.Session().GetForUpdate(ctx, tx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.FormID != form.ID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *sessionService) getSession(ctx context.Context, form *models.Form, id uuid.UUID) (*models.Session, error) {
	session, err := s.repo.Session().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.FormID != form.ID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *sessionService) expired(session *models.Session, settings models.FormSettings) bool {
	limit := settings.TimeLimit()
	return limit > 0 && s.now().After(session.Deadline(limit))
}

func (s *sessionService) sessionView(session *models.Session, settings models.FormSettings, violations int) SessionView {
	view := SessionView{
		ID:               session.ID,
		FormID:           session.FormID,
		Status:           session.Status,
		StartedAt:        session.StartedAt,
		SubmittedAt:      session.SubmittedAt,
		TimeSpentSeconds: session.TimeSpentSeconds,
		Score:            session.Score,
		ViolationCount:   violations,
	}
	if limit := settings.TimeLimit(); limit > 0 {
		deadline := session.Deadline(limit)
		view.ExpiresAt = &deadline
		if session.Status == models.SessionInProgress {
			remaining := int(deadline.Sub(s.now()).Seconds())
			if remaining < 0 {
				remaining = 0
			}
			view.RemainingSeconds = &remaining
		}
	}
	return view
}

// publishAsync hands the event to the publisher outside the request path.
// Delivery failures are logged and never reach the respondent.
func (s *sessionService) publishAsync(ctx context.Context, event *events.NotificationEvent) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := s.publisher.PublishNotificationEvent(pubCtx, event); err != nil {
			s.log.Error(pubCtx, "Failed to publish session event",
				"event_id", event.ID, "event_type", event.Type, "error", err)
		}
	}()
}

func respondentEmail(req *StartSessionRequest) string {
	if req.UserEmail != nil && *req.UserEmail != "" {
		return *req.UserEmail
	}
	return deref(req.RespondentEmail)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

var _ SessionService = (*sessionService)(nil)
