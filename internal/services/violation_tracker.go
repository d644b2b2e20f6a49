package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/SAP-F-2025/form-exam-service/internal/repositories"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ViolationTracker appends anti-cheat events and evaluates the live count
// against the form's threshold.
type ViolationTracker struct {
	repo repositories.ViolationRepository
}

func NewViolationTracker(repo repositories.ViolationRepository) *ViolationTracker {
	return &ViolationTracker{repo: repo}
}

// RecordAndEvaluate always appends, then counts within the same transaction.
// The caller holds the session row lock and performs any status change.
func (t *ViolationTracker) RecordAndEvaluate(ctx context.Context, tx *gorm.DB, session *models.Session, maxViolations int, eventType models.ViolationType, eventData json.RawMessage, at time.Time) (*ViolationResult, error) {
	if !eventType.IsValid() {
		return nil, ValidationErrors{*NewValidationError("event_type", "is not a known violation type", eventType)}
	}

	log := &models.ViolationLog{
		SessionID: session.ID,
		EventType: eventType,
		CreatedAt: at,
	}
	if len(eventData) > 0 {
		log.EventData = datatypes.JSON(eventData)
	}
	if err := t.repo.Append(ctx, tx, log); err != nil {
		return nil, err
	}

	count, err := t.repo.CountBySession(ctx, tx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count violations: %w", err)
	}

	result := EvaluateViolations(count, maxViolations)
	result.Status = session.Status
	return &result, nil
}

// EvaluateViolations applies the threshold and last-warning rules to a count
func EvaluateViolations(count, maxViolations int) ViolationResult {
	if maxViolations <= 0 {
		maxViolations = models.DefaultMaxViolations
	}
	return ViolationResult{
		ViolationCount:  count,
		MaxViolations:   maxViolations,
		ShouldTerminate: count >= maxViolations,
		IsWarning:       count == maxViolations-1,
	}
}
