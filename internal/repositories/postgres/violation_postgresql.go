package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/SAP-F-2025/form-exam-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ViolationPostgreSQL struct {
	helpers *SharedHelpers
}

func NewViolationPostgreSQL(helpers *SharedHelpers) repositories.ViolationRepository {
	return &ViolationPostgreSQL{helpers: helpers}
}

func (v *ViolationPostgreSQL) Append(ctx context.Context, tx *gorm.DB, log *models.ViolationLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	if err := v.helpers.getDB(ctx, tx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to append violation: %w", err)
	}
	return nil
}

func (v *ViolationPostgreSQL) CountBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int, error) {
	var count int64
	if err := v.helpers.getDB(ctx, tx).
		Model(&models.ViolationLog{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count violations: %w", err)
	}
	return int(count), nil
}
