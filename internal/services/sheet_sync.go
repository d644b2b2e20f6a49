package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/SAP-F-2025/form-exam-service/internal/events"
	"github.com/SAP-F-2025/form-exam-service/internal/repositories"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// SheetSync mirrors submitted sessions into one workbook per form
type SheetSync struct {
	repo      repositories.Repository
	outputDir string
	logger    *slog.Logger

	mu sync.Mutex
}

func NewSheetSync(repo repositories.Repository, outputDir string, logger *slog.Logger) *SheetSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &SheetSync{
		repo:      repo,
		outputDir: outputDir,
		logger:    logger.With("component", "sheet_sync"),
	}
}

func (s *SheetSync) Name() string { return "sheet_sync" }

func (s *SheetSync) Handles(eventType events.EventType) bool {
	return eventType == events.EventSessionSubmitted
}

func (s *SheetSync) HandleEvent(ctx context.Context, event *events.NotificationEvent) error {
	var payload events.SessionSubmittedEvent
	if err := event.DecodeData(&payload); err != nil {
		s.logger.Error("Skipping malformed submission event", "event_id", event.ID, "error", err)
		return nil
	}
	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		s.logger.Error("Skipping submission event with bad session id", "event_id", event.ID, "session_id", payload.SessionID)
		return nil
	}

	form, err := s.repo.Form().GetByID(ctx, nil, payload.FormID)
	if err != nil {
		return fmt.Errorf("failed to get form: %w", err)
	}
	session, err := s.repo.Session().GetByID(ctx, nil, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	responses, err := s.repo.Response().GetBySession(ctx, nil, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get responses: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.WorkbookPath(form.ID)
	f, err := openOrCreateWorkbook(path)
	if err != nil {
		return err
	}
	defer f.Close()

	synced, err := hasSessionRow(f, session.ID)
	if err != nil {
		return err
	}
	if synced {
		// redelivered event
		s.logger.Debug("Submission already in workbook", "form_id", form.ID, "session_id", payload.SessionID)
		return nil
	}

	if err := AppendResultsRow(f, form, session, responses); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	s.logger.Info("Synced submission to workbook",
		"form_id", form.ID, "session_id", payload.SessionID, "path", path)
	return nil
}

func (s *SheetSync) WorkbookPath(formID uint) string {
	return filepath.Join(s.outputDir, fmt.Sprintf("form-%d.xlsx", formID))
}

// hasSessionRow looks for the session id in the first column of the
// responses sheet, skipping the header
func hasSessionRow(f *excelize.File, sessionID uuid.UUID) (bool, error) {
	if idx, err := f.GetSheetIndex(responsesSheet); err != nil || idx < 0 {
		return false, err
	}
	rows, err := f.GetRows(responsesSheet)
	if err != nil {
		return false, fmt.Errorf("failed to read workbook: %w", err)
	}
	want := sessionID.String()
	for i, row := range rows {
		if i > 0 && len(row) > 0 && row[0] == want {
			return true, nil
		}
	}
	return false, nil
}

func openOrCreateWorkbook(path string) (*excelize.File, error) {
	f, err := excelize.OpenFile(path)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	f = excelize.NewFile()
	if err := f.SetSheetName("Sheet1", responsesSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	return f, nil
}

var _ events.EventHandler = (*SheetSync)(nil)
