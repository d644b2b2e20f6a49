package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionSubmitted  SessionStatus = "submitted"
	SessionViolated   SessionStatus = "violated"
)

func (s SessionStatus) IsTerminal() bool {
	return s == SessionSubmitted || s == SessionViolated
}

type ViolationType string

const (
	ViolationTabSwitch        ViolationType = "tab_switch"
	ViolationFullscreenExit   ViolationType = "fullscreen_exit"
	ViolationCopyAttempt      ViolationType = "copy_attempt"
	ViolationPasteAttempt     ViolationType = "paste_attempt"
	ViolationRightClick       ViolationType = "right_click"
	ViolationKeyboardShortcut ViolationType = "keyboard_shortcut"
)

var ViolationTypes = []ViolationType{
	ViolationTabSwitch,
	ViolationFullscreenExit,
	ViolationCopyAttempt,
	ViolationPasteAttempt,
	ViolationRightClick,
	ViolationKeyboardShortcut,
}

func (v ViolationType) IsValid() bool {
	for _, t := range ViolationTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Session is one respondent's attempt at a form.
type Session struct {
	ID     uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	FormID uint          `json:"form_id" gorm:"not null;index"`
	Status SessionStatus `json:"status" gorm:"size:20;not null;default:in_progress;index"`

	// Respondent identity, all optional
	RespondentName  *string `json:"respondent_name" gorm:"size:255"`
	RespondentEmail *string `json:"respondent_email" gorm:"size:255;index"`
	UserID          *string `json:"user_id" gorm:"size:255;index"`

	StartedAt        time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt      *time.Time `json:"submitted_at"`
	TimeSpentSeconds *int       `json:"time_spent_seconds"`
	Score            *float64   `json:"score" gorm:"type:numeric(5,2)"`

	// Client metadata, kept for dedup and audit
	IPAddress string `json:"ip_address" gorm:"size:45;index"`
	UserAgent string `json:"user_agent" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Form *Form `json:"-" gorm:"foreignKey:FormID"`
}

func (Session) TableName() string { return "exam_sessions" }

// Deadline returns the zero time for untimed sessions.
func (s *Session) Deadline(limit time.Duration) time.Time {
	if limit <= 0 {
		return time.Time{}
	}
	return s.StartedAt.Add(limit)
}

// Response is the single stored answer of a session to a question.
type Response struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	SessionID    uuid.UUID      `json:"session_id" gorm:"type:uuid;not null;uniqueIndex:idx_session_question"`
	QuestionID   uint           `json:"question_id" gorm:"not null;uniqueIndex:idx_session_question"`
	Answer       datatypes.JSON `json:"answer" gorm:"type:jsonb"`
	IsCorrect    *bool          `json:"is_correct"`
	PointsEarned *int           `json:"points_earned"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Response) TableName() string { return "session_responses" }

// ViolationLog is append-only.
type ViolationLog struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	SessionID uuid.UUID      `json:"session_id" gorm:"type:uuid;not null;index"`
	EventType ViolationType  `json:"event_type" gorm:"size:30;not null"`
	EventData datatypes.JSON `json:"event_data" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null"`
}

func (ViolationLog) TableName() string { return "violation_logs" }
