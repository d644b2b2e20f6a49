package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/google/uuid"
)

// SessionService owns the exam session lifecycle
type SessionService interface {
	Start(ctx context.Context, slug string, req *StartSessionRequest) (*StartSessionResponse, error)
	SaveAnswer(ctx context.Context, slug string, req *SaveAnswerRequest) error
	Submit(ctx context.Context, slug string, req *SubmitSessionRequest) (*SubmitSessionResponse, error)
	RecordViolation(ctx context.Context, slug string, req *RecordViolationRequest) (*ViolationResult, error)
	GetSession(ctx context.Context, slug string, sessionID uuid.UUID) (*SessionView, error)
	GetResults(ctx context.Context, slug string, sessionID uuid.UUID) (*ExamResults, error)
}

// ExportService renders form results as spreadsheets
type ExportService interface {
	ExportFormResults(ctx context.Context, formID uint, filter ExportFilter) ([]byte, error)
}

// ExportFilter narrows an export. Zero values select every session.
type ExportFilter struct {
	Status models.SessionStatus `json:"status" validate:"omitempty,session_status"`
	// From and To bound started_at, both inclusive
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

// ===== REQUESTS =====

type StartSessionRequest struct {
	RespondentName  *string `json:"respondent_name" validate:"omitempty,max=255"`
	RespondentEmail *string `json:"respondent_email" validate:"omitempty,email,max=255"`
	Password        string  `json:"password" validate:"max=255"`

	// Filled by the HTTP layer
	UserID    *string `json:"-"`
	UserEmail *string `json:"-"`
	IPAddress string  `json:"-"`
	UserAgent string  `json:"-"`
}

type AnswerInput struct {
	QuestionID uint            `json:"question_id" validate:"required"`
	Answer     json.RawMessage `json:"answer" validate:"json_value"`
}

type SaveAnswerRequest struct {
	SessionID  uuid.UUID       `json:"session_id" validate:"required"`
	QuestionID uint            `json:"question_id" validate:"required"`
	Answer     json.RawMessage `json:"answer" validate:"json_value"`
}

type SubmitSessionRequest struct {
	SessionID uuid.UUID     `json:"session_id" validate:"required"`
	Responses []AnswerInput `json:"responses" validate:"omitempty,dive"`
}

type RecordViolationRequest struct {
	SessionID uuid.UUID            `json:"session_id" validate:"required"`
	EventType models.ViolationType `json:"event_type" validate:"required,violation_type"`
	EventData json.RawMessage      `json:"event_data" validate:"json_value"`
}

// ===== RESPONSES =====

type SessionView struct {
	ID               uuid.UUID            `json:"id"`
	FormID           uint                 `json:"form_id"`
	Status           models.SessionStatus `json:"status"`
	StartedAt        time.Time            `json:"started_at"`
	SubmittedAt      *time.Time           `json:"submitted_at,omitempty"`
	TimeSpentSeconds *int                 `json:"time_spent_seconds,omitempty"`
	Score            *float64             `json:"score,omitempty"`
	ExpiresAt        *time.Time           `json:"expires_at,omitempty"`
	RemainingSeconds *int                 `json:"remaining_seconds,omitempty"`
	ViolationCount   int                  `json:"violation_count"`
}

type StartSessionResponse struct {
	Session SessionView `json:"session"`
	Exam    ExamData    `json:"exam"`
}

type SubmitSessionResponse struct {
	Session       SessionView `json:"session"`
	AnsweredCount int         `json:"answered_count"`
	// Only present when the form shows scores after submission
	Results *ExamResults `json:"results,omitempty"`
}

type ViolationResult struct {
	ViolationCount  int                  `json:"violation_count"`
	MaxViolations   int                  `json:"max_violations"`
	ShouldTerminate bool                 `json:"should_terminate"`
	IsWarning       bool                 `json:"is_warning"`
	Status          models.SessionStatus `json:"status"`
}

// ExamData is the respondent-facing view of a form
type ExamData struct {
	FormID           uint                      `json:"form_id"`
	Title            string                    `json:"title"`
	Questions        []QuestionView            `json:"questions"`
	TimeLimitMinutes int                       `json:"time_limit_minutes"`
	ExamModeEnabled  bool                      `json:"exam_mode_enabled"`
	AntiCheatRules   *models.AntiCheatSettings `json:"anti_cheat_rules,omitempty"`
}

// QuestionView never carries correct answers, explanations or option flags
type QuestionView struct {
	ID          uint                `json:"id"`
	Type        models.QuestionType `json:"type"`
	Content     string              `json:"content"`
	Description *string             `json:"description,omitempty"`
	Media       json.RawMessage     `json:"media,omitempty"`
	Validation  json.RawMessage     `json:"validation,omitempty"`
	Points      int                 `json:"points"`
	Options     []OptionView        `json:"options,omitempty"`
}

type OptionView struct {
	ID      uint   `json:"id"`
	Content string `json:"content"`
}

type ExamResults struct {
	SessionID        uuid.UUID            `json:"session_id"`
	Status           models.SessionStatus `json:"status"`
	StartedAt        time.Time            `json:"started_at"`
	SubmittedAt      *time.Time           `json:"submitted_at,omitempty"`
	TimeSpentSeconds *int                 `json:"time_spent_seconds,omitempty"`
	ViolationCount   int                  `json:"violation_count"`
	ShowScore        bool                 `json:"show_score"`

	TotalPoints     *int             `json:"total_points,omitempty"`
	EarnedPoints    *int             `json:"earned_points,omitempty"`
	ScorePercentage *float64         `json:"score_percentage,omitempty"`
	PassingScore    *float64         `json:"passing_score,omitempty"`
	Passed          *bool            `json:"passed,omitempty"`
	Grade           *string          `json:"grade,omitempty"`
	Breakdown       []QuestionResult `json:"breakdown,omitempty"`
}

type QuestionResult struct {
	QuestionID     uint                `json:"question_id"`
	Type           models.QuestionType `json:"type"`
	Content        string              `json:"content"`
	Answer         json.RawMessage     `json:"answer"`
	IsCorrect      *bool               `json:"is_correct"`
	PointsPossible int                 `json:"points_possible"`
	PointsEarned   *int                `json:"points_earned"`
	Explanation    *string             `json:"explanation,omitempty"`
}
