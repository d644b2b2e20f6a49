package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/SAP-F-2025/form-exam-service/internal/repositories"
	"github.com/SAP-F-2025/form-exam-service/internal/validator"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	responsesSheet = "Responses"
	summarySheet   = "Summary"
	timeLayout     = "2006-01-02 15:04:05"
)

type exportService struct {
	repo      repositories.Repository
	validator *validator.Validator
	log       *ServiceLogger
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) ExportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &exportService{
		repo:      repo,
		validator: validator.New(),
		log:       NewServiceLogger(logger, LogConfig{Service: "form-exam-service", Component: "export"}),
	}
}

func (s *exportService) ExportFormResults(ctx context.Context, formID uint, filter ExportFilter) (data []byte, err error) {
	started := time.Now()
	defer func() {
		s.log.LogOperation(ctx, "export_results", fmt.Sprintf("form:%d", formID), "", time.Since(started), err)
	}()

	if err := s.validator.Validate(&filter); err != nil {
		return nil, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, ValidationErrors{*NewValidationError("to", "must not be before from", filter.To)}
	}

	form, err := s.repo.Form().GetByID(ctx, nil, formID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("failed to get form: %w", err)
	}

	sessions, _, err := s.repo.Session().ListByForm(ctx, nil, formID, filter.sessionFilters())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	ids := make([]uuid.UUID, len(sessions))
	for i, session := range sessions {
		ids[i] = session.ID
	}
	responses, err := s.repo.Response().GetBySessions(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get responses: %w", err)
	}

	f, err := BuildResultsWorkbook(form, sessions, responses)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func (f ExportFilter) sessionFilters() repositories.SessionFilters {
	filters := repositories.SessionFilters{DateFrom: f.From, DateTo: f.To, SortOrder: "asc"}
	if f.Status != "" {
		status := f.Status
		filters.Status = &status
	}
	return filters
}

// ParseExportFilter reads the textual filter shared by the HTTP and CLI
// exports. Dates are YYYY-MM-DD or RFC3339; a bare to-date covers the whole day.
func ParseExportFilter(status, from, to string) (ExportFilter, error) {
	filter := ExportFilter{Status: models.SessionStatus(strings.TrimSpace(status))}
	var errs ValidationErrors

	if t, err := parseExportBound(from, false); err != nil {
		errs = append(errs, *NewValidationError("from", "must be a date (YYYY-MM-DD) or RFC3339 timestamp", from))
	} else {
		filter.From = t
	}
	if t, err := parseExportBound(to, true); err != nil {
		errs = append(errs, *NewValidationError("to", "must be a date (YYYY-MM-DD) or RFC3339 timestamp", to))
	} else {
		filter.To = t
	}

	if len(errs) > 0 {
		return ExportFilter{}, errs
	}
	return filter, nil
}

func parseExportBound(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}

// ResultsHeader lists the fixed columns followed by one column per answerable question
func ResultsHeader(form *models.Form) []interface{} {
	header := []interface{}{
		"Session ID", "Respondent Name", "Respondent Email", "Status",
		"Started At", "Submitted At", "Time Spent (seconds)", "Score (%)",
	}
	for _, q := range answerableQuestions(form) {
		header = append(header, q.Content)
	}
	return header
}

// ResultsRow renders one session as a sheet row matching ResultsHeader
func ResultsRow(form *models.Form, session *models.Session, responses []*models.Response) []interface{} {
	row := []interface{}{
		session.ID.String(),
		stringOrEmpty(session.RespondentName),
		stringOrEmpty(session.RespondentEmail),
		string(session.Status),
		session.StartedAt.UTC().Format(timeLayout),
		"",
		"",
		"",
	}
	if session.SubmittedAt != nil {
		row[5] = session.SubmittedAt.UTC().Format(timeLayout)
	}
	if session.TimeSpentSeconds != nil {
		row[6] = *session.TimeSpentSeconds
	}
	if session.Score != nil {
		row[7] = *session.Score
	}

	byQuestion := make(map[uint]*models.Response, len(responses))
	for _, r := range responses {
		byQuestion[r.QuestionID] = r
	}
	for _, q := range answerableQuestions(form) {
		row = append(row, answerCell(q, byQuestion[q.ID]))
	}
	return row
}

// BuildResultsWorkbook lays out the Responses and Summary sheets. The caller
// closes the returned file.
func BuildResultsWorkbook(form *models.Form, sessions []*models.Session, responses map[uuid.UUID][]*models.Response) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(responsesSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	if err := writeRow(f, responsesSheet, 1, ResultsHeader(form)); err != nil {
		f.Close()
		return nil, err
	}
	for i, session := range sessions {
		if err := writeRow(f, responsesSheet, i+2, ResultsRow(form, session, responses[session.ID])); err != nil {
			f.Close()
			return nil, err
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	for i, line := range summaryRows(form, sessions) {
		if err := writeRow(f, summarySheet, i+1, line); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// AppendResultsRow writes one row after the last used row of the Responses
// sheet, writing the header first when the sheet is empty.
func AppendResultsRow(f *excelize.File, form *models.Form, session *models.Session, responses []*models.Response) error {
	if idx, _ := f.GetSheetIndex(responsesSheet); idx < 0 {
		if _, err := f.NewSheet(responsesSheet); err != nil {
			return fmt.Errorf("failed to create Excel sheet: %w", err)
		}
	}
	rows, err := f.GetRows(responsesSheet)
	if err != nil {
		return fmt.Errorf("failed to read Excel rows: %w", err)
	}
	next := len(rows) + 1
	if next == 1 {
		if err := writeRow(f, responsesSheet, 1, ResultsHeader(form)); err != nil {
			return err
		}
		next = 2
	}
	return writeRow(f, responsesSheet, next, ResultsRow(form, session, responses))
}

func summaryRows(form *models.Form, sessions []*models.Session) [][]interface{} {
	var submitted, violated, inProgress int
	var scoreSum float64
	var scored int
	for _, session := range sessions {
		switch session.Status {
		case models.SessionSubmitted:
			submitted++
		case models.SessionViolated:
			violated++
		default:
			inProgress++
		}
		if session.Score != nil {
			scoreSum += *session.Score
			scored++
		}
	}

	average := interface{}("")
	if scored > 0 {
		avg, _ := decimal.NewFromFloat(scoreSum).Div(decimal.NewFromInt(int64(scored))).Round(2).Float64()
		average = avg
	}

	return [][]interface{}{
		{"Form", form.Title},
		{"Slug", form.Slug},
		{"Total Points", form.TotalPoints()},
		{"Sessions", len(sessions)},
		{"Submitted", submitted},
		{"Violated", violated},
		{"In Progress", inProgress},
		{"Average Score (%)", average},
		{"Exported At", time.Now().UTC().Format(timeLayout)},
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func answerableQuestions(form *models.Form) []*models.Question {
	questions := make([]*models.Question, 0, len(form.Questions))
	for i := range form.Questions {
		if form.Questions[i].Type != models.QuestionSection {
			questions = append(questions, &form.Questions[i])
		}
	}
	return questions
}

// answerCell renders a stored answer, mapping option ids back to their text
func answerCell(q *models.Question, resp *models.Response) string {
	if resp == nil {
		return ""
	}
	answer := models.DecodeAnswer(q.Type, resp.Answer)
	if answer.IsEmpty() {
		return ""
	}

	labels := make(map[string]string, len(q.Options))
	for _, opt := range q.Options {
		labels[fmt.Sprint(opt.ID)] = opt.Content
	}
	label := func(v string) string {
		if text, ok := labels[v]; ok {
			return text
		}
		return v
	}

	values := answer.AsSet()
	for i, v := range values {
		values[i] = label(v)
	}
	return strings.Join(values, ", ")
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
