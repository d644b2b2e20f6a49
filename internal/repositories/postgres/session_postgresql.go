package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/SAP-F-2025/form-exam-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionPostgreSQL struct {
	helpers *SharedHelpers
}

func NewSessionPostgreSQL(helpers *SharedHelpers) repositories.SessionRepository {
	return &SessionPostgreSQL{helpers: helpers}
}

func (s *SessionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, session *models.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if err := s.helpers.getDB(ctx, tx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SessionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	if err := s.helpers.getDB(ctx, tx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, notFoundOr(err, "failed to get session")
	}
	return &session, nil
}

func (s *SessionPostgreSQL) GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	err := s.helpers.getDB(ctx, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, notFoundOr(err, "failed to lock session")
	}
	return &session, nil
}

func (s *SessionPostgreSQL) TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to models.SessionStatus, updates repositories.SessionUpdates) (bool, error) {
	values := map[string]interface{}{"status": to}
	if updates.SubmittedAt != nil {
		values["submitted_at"] = *updates.SubmittedAt
	}
	if updates.TimeSpentSeconds != nil {
		values["time_spent_seconds"] = *updates.TimeSpentSeconds
	}
	if updates.Score != nil {
		values["score"] = *updates.Score
	}

	result := s.helpers.getDB(ctx, tx).
		Model(&models.Session{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, fmt.Errorf("failed to transition session %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *SessionPostgreSQL) FindSubmittedMatch(ctx context.Context, tx *gorm.DB, formID uint, match repositories.RespondentMatch) (*models.Session, error) {
	if match.IsEmpty() {
		return nil, nil
	}

	db := s.helpers.getDB(ctx, tx)
	identity := db.Where("1 = 0")
	if match.IPAddress != "" {
		identity = identity.Or("ip_address = ?", match.IPAddress)
	}
	if match.Email != "" {
		identity = identity.Or("LOWER(respondent_email) = LOWER(?)", match.Email)
	}
	if match.UserID != "" {
		identity = identity.Or("user_id = ?", match.UserID)
	}

	var session models.Session
	err := db.Where("form_id = ? AND status = ?", formID, models.SessionSubmitted).
		Where(identity).
		Order("submitted_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up prior submission: %w", err)
	}
	return &session, nil
}

func (s *SessionPostgreSQL) CountByForm(ctx context.Context, tx *gorm.DB, formID uint, statuses ...models.SessionStatus) (int64, error) {
	var count int64
	query := s.helpers.getDB(ctx, tx).Model(&models.Session{}).Where("form_id = ?", formID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

func (s *SessionPostgreSQL) ListByForm(ctx context.Context, tx *gorm.DB, formID uint, filters repositories.SessionFilters) ([]*models.Session, int64, error) {
	var sessions []*models.Session
	var total int64

	query := s.helpers.getDB(ctx, tx).Model(&models.Session{}).Where("form_id = ?", formID)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		query = query.Where("started_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("started_at <= ?", *filters.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	order := "started_at ASC"
	if filters.SortOrder == "desc" {
		order = "started_at DESC"
	}
	if err := query.Order(order).Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, total, nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repositories.ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
