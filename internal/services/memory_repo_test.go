package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/SAP-F-2025/form-exam-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memoryRepo is an in-memory Repository. Transactions are serialized and
// rolled back on error, which is enough to stand in for row locks.
type memoryRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex

	forms      map[uint]*models.Form
	sessions   map[uuid.UUID]models.Session
	responses  map[uuid.UUID]map[uint]models.Response
	violations map[uuid.UUID][]models.ViolationLog
	nextID     uint
}

func newMemoryRepo(forms ...*models.Form) *memoryRepo {
	r := &memoryRepo{
		forms:      make(map[uint]*models.Form),
		sessions:   make(map[uuid.UUID]models.Session),
		responses:  make(map[uuid.UUID]map[uint]models.Response),
		violations: make(map[uuid.UUID][]models.ViolationLog),
	}
	for _, f := range forms {
		r.forms[f.ID] = f
	}
	return r
}

func (r *memoryRepo) Form() repositories.FormRepository           { return memoryForms{r} }
func (r *memoryRepo) Session() repositories.SessionRepository     { return memorySessions{r} }
func (r *memoryRepo) Response() repositories.ResponseRepository   { return memoryResponses{r} }
func (r *memoryRepo) Violation() repositories.ViolationRepository { return memoryViolations{r} }
func (r *memoryRepo) Ping(context.Context) error                  { return nil }
func (r *memoryRepo) Close() error                                { return nil }

type memorySnapshot struct {
	sessions   map[uuid.UUID]models.Session
	responses  map[uuid.UUID]map[uint]models.Response
	violations map[uuid.UUID][]models.ViolationLog
}

func (r *memoryRepo) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	snap := r.snapshot()
	if err := fn(nil); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) snapshot() memorySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := memorySnapshot{
		sessions:   make(map[uuid.UUID]models.Session, len(r.sessions)),
		responses:  make(map[uuid.UUID]map[uint]models.Response, len(r.responses)),
		violations: make(map[uuid.UUID][]models.ViolationLog, len(r.violations)),
	}
	for k, v := range r.sessions {
		snap.sessions[k] = v
	}
	for k, v := range r.responses {
		inner := make(map[uint]models.Response, len(v))
		for q, resp := range v {
			inner[q] = resp
		}
		snap.responses[k] = inner
	}
	for k, v := range r.violations {
		snap.violations[k] = append([]models.ViolationLog(nil), v...)
	}
	return snap
}

func (r *memoryRepo) restore(snap memorySnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = snap.sessions
	r.responses = snap.responses
	r.violations = snap.violations
}

// test helpers

func (r *memoryRepo) session(id uuid.UUID) models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

func (r *memoryRepo) putSession(s models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *memoryRepo) responseCount(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.responses[id])
}

func (r *memoryRepo) violationCount(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.violations[id])
}

func (r *memoryRepo) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ===== FORMS =====

type memoryForms struct{ r *memoryRepo }

func (m memoryForms) GetByID(_ context.Context, _ *gorm.DB, id uint) (*models.Form, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	if f, ok := m.r.forms[id]; ok {
		return f, nil
	}
	return nil, repositories.ErrNotFound
}

func (m memoryForms) GetBySlug(_ context.Context, _ *gorm.DB, slug string) (*models.Form, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	for _, f := range m.r.forms {
		if f.Slug == slug {
			return f, nil
		}
	}
	return nil, repositories.ErrNotFound
}

// ===== SESSIONS =====

type memorySessions struct{ r *memoryRepo }

func (m memorySessions) Create(_ context.Context, _ *gorm.DB, s *models.Session) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.r.sessions[s.ID] = *s
	return nil
}

func (m memorySessions) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*models.Session, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	s, ok := m.r.sessions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &s, nil
}

func (m memorySessions) GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Session, error) {
	return m.GetByID(ctx, tx, id)
}

func (m memorySessions) TransitionStatus(_ context.Context, _ *gorm.DB, id uuid.UUID, from, to models.SessionStatus, updates repositories.SessionUpdates) (bool, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	s, ok := m.r.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	if updates.SubmittedAt != nil {
		s.SubmittedAt = updates.SubmittedAt
	}
	if updates.TimeSpentSeconds != nil {
		s.TimeSpentSeconds = updates.TimeSpentSeconds
	}
	if updates.Score != nil {
		s.Score = updates.Score
	}
	m.r.sessions[id] = s
	return true, nil
}

func (m memorySessions) FindSubmittedMatch(_ context.Context, _ *gorm.DB, formID uint, match repositories.RespondentMatch) (*models.Session, error) {
	if match.IsEmpty() {
		return nil, nil
	}
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	for _, s := range m.r.sessions {
		if s.FormID != formID || s.Status != models.SessionSubmitted {
			continue
		}
		if (match.IPAddress != "" && s.IPAddress == match.IPAddress) ||
			(match.Email != "" && s.RespondentEmail != nil && strings.EqualFold(*s.RespondentEmail, match.Email)) ||
			(match.UserID != "" && s.UserID != nil && *s.UserID == match.UserID) {
			found := s
			return &found, nil
		}
	}
	return nil, nil
}

func (m memorySessions) CountByForm(_ context.Context, _ *gorm.DB, formID uint, statuses ...models.SessionStatus) (int64, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	var count int64
	for _, s := range m.r.sessions {
		if s.FormID != formID {
			continue
		}
		if len(statuses) == 0 || containsStatus(statuses, s.Status) {
			count++
		}
	}
	return count, nil
}

func (m memorySessions) ListByForm(_ context.Context, _ *gorm.DB, formID uint, filters repositories.SessionFilters) ([]*models.Session, int64, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	var out []*models.Session
	for _, s := range m.r.sessions {
		if s.FormID != formID {
			continue
		}
		if filters.Status != nil && s.Status != *filters.Status {
			continue
		}
		if filters.DateFrom != nil && s.StartedAt.Before(*filters.DateFrom) {
			continue
		}
		if filters.DateTo != nil && s.StartedAt.After(*filters.DateTo) {
			continue
		}
		copied := s
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, int64(len(out)), nil
}

func containsStatus(statuses []models.SessionStatus, s models.SessionStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ===== RESPONSES =====

type memoryResponses struct{ r *memoryRepo }

func (m memoryResponses) Upsert(_ context.Context, _ *gorm.DB, resp *models.Response) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	m.r.upsertLocked(resp)
	return nil
}

func (m memoryResponses) UpsertBatch(_ context.Context, _ *gorm.DB, responses []*models.Response) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	for _, resp := range responses {
		m.r.upsertLocked(resp)
	}
	return nil
}

func (r *memoryRepo) upsertLocked(resp *models.Response) {
	bySession, ok := r.responses[resp.SessionID]
	if !ok {
		bySession = make(map[uint]models.Response)
		r.responses[resp.SessionID] = bySession
	}
	if existing, ok := bySession[resp.QuestionID]; ok {
		resp.ID = existing.ID
	} else {
		r.nextID++
		resp.ID = r.nextID
	}
	resp.UpdatedAt = time.Now()
	bySession[resp.QuestionID] = *resp
}

func (m memoryResponses) GetBySession(_ context.Context, _ *gorm.DB, sessionID uuid.UUID) ([]*models.Response, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	return m.r.responsesLocked(sessionID), nil
}

func (m memoryResponses) GetBySessions(_ context.Context, _ *gorm.DB, sessionIDs []uuid.UUID) (map[uuid.UUID][]*models.Response, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	out := make(map[uuid.UUID][]*models.Response, len(sessionIDs))
	for _, id := range sessionIDs {
		out[id] = m.r.responsesLocked(id)
	}
	return out, nil
}

func (r *memoryRepo) responsesLocked(sessionID uuid.UUID) []*models.Response {
	var out []*models.Response
	for _, resp := range r.responses[sessionID] {
		copied := resp
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

// ===== VIOLATIONS =====

type memoryViolations struct{ r *memoryRepo }

func (m memoryViolations) Append(_ context.Context, _ *gorm.DB, log *models.ViolationLog) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	m.r.nextID++
	log.ID = m.r.nextID
	m.r.violations[log.SessionID] = append(m.r.violations[log.SessionID], *log)
	return nil
}

func (m memoryViolations) CountBySession(_ context.Context, _ *gorm.DB, sessionID uuid.UUID) (int, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	return len(m.r.violations[sessionID]), nil
}

var _ repositories.Repository = (*memoryRepo)(nil)
