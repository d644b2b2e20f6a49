package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/SAP-F-2025/form-exam-service/internal/repositories"
	"golang.org/x/crypto/bcrypt"
)

// AccessRequest is what the access check knows about the respondent
type AccessRequest struct {
	UserID   string
	Email    string
	Password string
	Now      time.Time
}

// AccessControl decides whether a respondent may start a form. A nil error
// means allowed; denials are *AccessDeniedError.
type AccessControl interface {
	Check(ctx context.Context, form *models.Form, settings models.FormSettings, req AccessRequest) error
}

// SettingsAccessControl evaluates the access rules stored in form settings
type SettingsAccessControl struct {
	repo repositories.Repository
}

func NewSettingsAccessControl(repo repositories.Repository) *SettingsAccessControl {
	return &SettingsAccessControl{repo: repo}
}

func (a *SettingsAccessControl) Check(ctx context.Context, form *models.Form, settings models.FormSettings, req AccessRequest) error {
	access := settings.Access

	if form.Status != models.FormStatusPublished {
		return NewAccessDeniedError(ReasonNotPublished, "this form is not accepting responses")
	}
	if access.StartsAt != nil && req.Now.Before(*access.StartsAt) {
		return NewAccessDeniedError(ReasonNotYetOpen, fmt.Sprintf("this form opens at %s", access.StartsAt.UTC().Format(time.RFC3339)))
	}
	if access.EndsAt != nil && !req.Now.Before(*access.EndsAt) {
		return NewAccessDeniedError(ReasonEnded, "this form is closed")
	}
	if access.RequireLogin && req.UserID == "" {
		return NewAccessDeniedError(ReasonLoginRequired, "sign in to respond to this form")
	}
	if len(access.AllowedEmails) > 0 && !emailAllowed(access.AllowedEmails, req.Email) {
		return NewAccessDeniedError(ReasonRestrictedMemberList, "this form is restricted to invited respondents")
	}
	if access.PasswordHash != "" {
		if req.Password == "" || bcrypt.CompareHashAndPassword([]byte(access.PasswordHash), []byte(req.Password)) != nil {
			return NewAccessDeniedError(ReasonPasswordRequired, "a valid password is required")
		}
	}
	if access.MaxResponses > 0 {
		count, err := a.repo.Session().CountByForm(ctx, nil, form.ID, models.SessionSubmitted)
		if err != nil {
			return fmt.Errorf("failed to count responses: %w", err)
		}
		if count >= int64(access.MaxResponses) {
			return NewAccessDeniedError(ReasonMaxResponsesReached, "this form has reached its response limit")
		}
	}
	return nil
}

func emailAllowed(allowed []string, email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, candidate := range allowed {
		if strings.EqualFold(strings.TrimSpace(candidate), email) {
			return true
		}
	}
	return false
}
