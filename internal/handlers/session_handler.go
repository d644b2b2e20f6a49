package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/form-exam-service/internal/services"
	"github.com/SAP-F-2025/form-exam-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// SessionHandler serves the public respondent routes under /f/:slug
type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
}

func NewSessionHandler(sessionService services.SessionService, logger utils.Logger) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
	}
}

// StartSession opens a new exam session
// @Router /f/{slug}/start [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	slug := c.Param("slug")

	var req services.StartSessionRequest
	if c.Request.ContentLength != 0 {
		if !h.bindJSON(c, &req) {
			return
		}
	}

	if userID := c.GetString(userIDKey); userID != "" {
		req.UserID = &userID
	}
	if email := c.GetString(userEmailKey); email != "" {
		req.UserEmail = &email
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	h.LogRequest(c, "Starting session", "slug", slug)

	resp, err := h.sessionService.Start(c.Request.Context(), slug, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusCreated, "Session started", resp)
}

// SaveAnswer autosaves a single answer
// @Router /f/{slug}/answers [put]
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	var req services.SaveAnswerRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.sessionService.SaveAnswer(c.Request.Context(), c.Param("slug"), &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Answer saved", nil)
}

// SubmitSession grades and closes a session
// @Router /f/{slug}/submit [post]
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	slug := c.Param("slug")

	var req services.SubmitSessionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Submitting session", "slug", slug, "session_id", req.SessionID, "responses", len(req.Responses))

	resp, err := h.sessionService.Submit(c.Request.Context(), slug, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Session submitted", resp)
}

// RecordViolation logs an anti-cheat event. Breaching the threshold is
// reported in the body with should_terminate, not as an error status.
// @Router /f/{slug}/violation [post]
func (h *SessionHandler) RecordViolation(c *gin.Context) {
	slug := c.Param("slug")

	var req services.RecordViolationRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.sessionService.RecordViolation(c.Request.Context(), slug, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	if result.ShouldTerminate {
		h.LogWarn(c, "Session terminated by violations",
			"slug", slug, "session_id", req.SessionID, "violation_count", result.ViolationCount)
	}
	h.RespondWithSuccess(c, http.StatusOK, "Violation recorded", result)
}

// GetResults returns the results of a finished session
// @Router /f/{slug}/results [get]
func (h *SessionHandler) GetResults(c *gin.Context) {
	sessionID, ok := h.parseUUID(c, "session_id", c.Query("session_id"))
	if !ok {
		return
	}

	results, err := h.sessionService.GetResults(c.Request.Context(), c.Param("slug"), sessionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Results retrieved", results)
}

// GetSession reports status and time remaining
// @Router /f/{slug}/sessions/{session_id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID, ok := h.parseUUID(c, "session_id", c.Param("session_id"))
	if !ok {
		return
	}

	view, err := h.sessionService.GetSession(c.Request.Context(), c.Param("slug"), sessionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Session retrieved", view)
}
