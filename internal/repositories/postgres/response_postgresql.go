package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/SAP-F-2025/form-exam-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResponsePostgreSQL struct {
	helpers *SharedHelpers
}

func NewResponsePostgreSQL(helpers *SharedHelpers) repositories.ResponseRepository {
	return &ResponsePostgreSQL{helpers: helpers}
}

var upsertResponse = clause.OnConflict{
	Columns:   []clause.Column{{Name: "session_id"}, {Name: "question_id"}},
	DoUpdates: clause.AssignmentColumns([]string{"answer", "is_correct", "points_earned", "updated_at"}),
}

func (r *ResponsePostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, response *models.Response) error {
	if err := r.helpers.getDB(ctx, tx).Clauses(upsertResponse).Create(response).Error; err != nil {
		return fmt.Errorf("failed to upsert response: %w", err)
	}
	return nil
}

func (r *ResponsePostgreSQL) UpsertBatch(ctx context.Context, tx *gorm.DB, responses []*models.Response) error {
	if len(responses) == 0 {
		return nil
	}
	if err := r.helpers.getDB(ctx, tx).Clauses(upsertResponse).CreateInBatches(responses, 100).Error; err != nil {
		return fmt.Errorf("failed to upsert responses: %w", err)
	}
	return nil
}

func (r *ResponsePostgreSQL) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*models.Response, error) {
	var responses []*models.Response
	if err := r.helpers.getDB(ctx, tx).
		Where("session_id = ?", sessionID).
		Order("question_id ASC").
		Find(&responses).Error; err != nil {
		return nil, fmt.Errorf("failed to get responses: %w", err)
	}
	return responses, nil
}

func (r *ResponsePostgreSQL) GetBySessions(ctx context.Context, tx *gorm.DB, sessionIDs []uuid.UUID) (map[uuid.UUID][]*models.Response, error) {
	grouped := make(map[uuid.UUID][]*models.Response, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return grouped, nil
	}

	var responses []*models.Response
	if err := r.helpers.getDB(ctx, tx).
		Where("session_id IN ?", sessionIDs).
		Order("question_id ASC").
		Find(&responses).Error; err != nil {
		return nil, fmt.Errorf("failed to get responses: %w", err)
	}
	for _, resp := range responses {
		grouped[resp.SessionID] = append(grouped[resp.SessionID], resp)
	}
	return grouped, nil
}
