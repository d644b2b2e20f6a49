package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository groups the per-entity repositories. Every method accepts an
// optional transaction handle; nil means the base connection.
type Repository interface {
	Form() FormRepository
	Session() SessionRepository
	Response() ResponseRepository
	Violation() ViolationRepository

	// WithTransaction runs fn inside a database transaction. The tx handed to
	// fn must be passed to every repository call that belongs to it.
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	Ping(ctx context.Context) error
	Close() error
}

// FormRepository is read-only: forms are owned by the form builder.
type FormRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Form, error)
	GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*models.Form, error)
}

type SessionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, session *models.Session) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Session, error)
	// GetForUpdate locks the session row until the transaction ends.
	GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Session, error)
	// TransitionStatus moves a session from one status to another and applies
	// the extra column updates in the same statement. It reports false when
	// the session was no longer in the from status.
	TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to models.SessionStatus, updates SessionUpdates) (bool, error)

	FindSubmittedMatch(ctx context.Context, tx *gorm.DB, formID uint, match RespondentMatch) (*models.Session, error)
	CountByForm(ctx context.Context, tx *gorm.DB, formID uint, statuses ...models.SessionStatus) (int64, error)
	ListByForm(ctx context.Context, tx *gorm.DB, formID uint, filters SessionFilters) ([]*models.Session, int64, error)
}

type ResponseRepository interface {
	// Upsert inserts or replaces the answer for (session, question).
	Upsert(ctx context.Context, tx *gorm.DB, response *models.Response) error
	UpsertBatch(ctx context.Context, tx *gorm.DB, responses []*models.Response) error
	GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*models.Response, error)
	GetBySessions(ctx context.Context, tx *gorm.DB, sessionIDs []uuid.UUID) (map[uuid.UUID][]*models.Response, error)
}

type ViolationRepository interface {
	Append(ctx context.Context, tx *gorm.DB, log *models.ViolationLog) error
	CountBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int, error)
}

// ===== SHARED STRUCTS =====

// SessionUpdates carries the columns written together with a status change.
type SessionUpdates struct {
	SubmittedAt      *time.Time
	TimeSpentSeconds *int
	Score            *float64
}

// RespondentMatch identifies a respondent for the one-response policy. Empty
// fields are ignored; a session matches when any non-empty field matches.
type RespondentMatch struct {
	IPAddress string
	Email     string
	UserID    string
}

func (m RespondentMatch) IsEmpty() bool {
	return m.IPAddress == "" && m.Email == "" && m.UserID == ""
}

type SessionFilters struct {
	Status    *models.SessionStatus `json:"status"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

var ErrNotFound = errors.New("record not found")

// IsNotFoundError reports whether err means the record does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
