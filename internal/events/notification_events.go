package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the session lifecycle events published by the service
type EventType string

const (
	EventSessionSubmitted EventType = "session.submitted"
	EventSessionViolated  EventType = "session.violated"
)

const (
	eventSource  = "form-exam-service"
	eventVersion = "1.0"
)

// NotificationEvent is the envelope shared by every published event
type NotificationEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      json.RawMessage        `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type SessionSubmittedEvent struct {
	SessionID        string    `json:"session_id"`
	FormID           uint      `json:"form_id"`
	FormSlug         string    `json:"form_slug"`
	FormTitle        string    `json:"form_title"`
	RespondentName   *string   `json:"respondent_name,omitempty"`
	RespondentEmail  *string   `json:"respondent_email,omitempty"`
	SubmittedAt      time.Time `json:"submitted_at"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	Score            *float64  `json:"score,omitempty"`
	AnsweredCount    int       `json:"answered_count"`
}

type SessionViolatedEvent struct {
	SessionID      string    `json:"session_id"`
	FormID         uint      `json:"form_id"`
	FormSlug       string    `json:"form_slug"`
	Reason         string    `json:"reason"` // "max_violations" or "time_limit"
	ViolationCount int       `json:"violation_count"`
	ViolatedAt     time.Time `json:"violated_at"`
}

const (
	ViolationReasonMaxViolations = "max_violations"
	ViolationReasonTimeLimit     = "time_limit"
)

func NewSessionSubmittedEvent(payload SessionSubmittedEvent) *NotificationEvent {
	return newEvent(EventSessionSubmitted, payload)
}

func NewSessionViolatedEvent(payload SessionViolatedEvent) *NotificationEvent {
	return newEvent(EventSessionViolated, payload)
}

func newEvent(eventType EventType, payload interface{}) *NotificationEvent {
	// payloads are plain structs, marshalling cannot fail
	data, _ := json.Marshal(payload)
	return &NotificationEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
	}
}

// DecodeData unmarshals the event payload into dest
func (e *NotificationEvent) DecodeData(dest interface{}) error {
	if err := json.Unmarshal(e.Data, dest); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}
