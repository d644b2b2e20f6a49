package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/form-exam-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")

	// Form errors
	ErrFormNotFound = errors.New("form not found")
	// ErrFormUnavailable is returned when settings that restrict access
	// cannot be read, so the form is closed until they are fixed.
	ErrFormUnavailable = errors.New("form settings cannot be read")

	// Session lifecycle errors
	ErrSessionNotFound     = errors.New("session not found")
	ErrAccessDenied        = errors.New("access denied to form")
	ErrDuplicateSubmission = errors.New("a response has already been submitted")
	ErrInvalidState        = errors.New("session is no longer in progress")
	ErrTimeLimitExceeded   = errors.New("time limit exceeded")
)

// Access denial reasons
const (
	ReasonNotPublished         = "not_published"
	ReasonNotYetOpen           = "not_yet_open"
	ReasonEnded                = "ended"
	ReasonPasswordRequired     = "password_required"
	ReasonLoginRequired        = "login_required"
	ReasonRestrictedMemberList = "restricted_member_list"
	ReasonMaxResponsesReached  = "max_responses_reached"
	ReasonAlreadySubmitted     = "already_submitted"
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// AccessDeniedError carries the reason a respondent may not start a form
type AccessDeniedError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied (%s): %s", e.Reason, e.Message)
}

func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}

func NewAccessDeniedError(reason, message string) *AccessDeniedError {
	return &AccessDeniedError{Reason: reason, Message: message}
}

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

// ===== ERROR HELPERS =====

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrFormNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsConflict checks if error represents a state conflict the client should not retry
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrDuplicateSubmission)
}

// IsAccessDenied checks if error is an access denial and returns its reason
func IsAccessDenied(err error) (string, bool) {
	var ade *AccessDeniedError
	if errors.As(err, &ade) {
		return ade.Reason, true
	}
	return "", errors.Is(err, ErrAccessDenied)
}

// IsExpected reports errors that are part of the session contract rather
// than faults.
func IsExpected(err error) bool {
	_, denied := IsAccessDenied(err)
	return denied || IsNotFound(err) || IsValidation(err) || IsConflict(err) ||
		errors.Is(err, ErrTimeLimitExceeded)
}
