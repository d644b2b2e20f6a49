package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/form-exam-service/internal/services"
	"github.com/SAP-F-2025/form-exam-service/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error codes clients branch on
const (
	CodeAccessDenied        = "ACCESS_DENIED"
	CodeDuplicateSubmission = "DUPLICATE_SUBMISSION"
	CodeInvalidState        = "INVALID_STATE"
	CodeTimeLimitExceeded   = "TIME_LIMIT_EXCEEDED"
	CodeValidation          = "VALIDATION_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeFormUnavailable     = "FORM_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging functionality for all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) requestFields(c *gin.Context, extra ...interface{}) []interface{} {
	fields := []interface{}{
		"request_id", c.GetString(requestIDKey),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}
	if userID := c.GetString(userIDKey); userID != "" {
		fields = append(fields, "user_id", userID)
	}
	return append(fields, extra...)
}

// LogRequest logs incoming HTTP requests with context information
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := h.requestFields(c, "remote_addr", c.ClientIP())
	h.logger.Info(message, append(fields, additionalFields...)...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	h.logger.LogError(err, message, h.requestFields(c, additionalFields...)...)
}

func (h *BaseHandler) LogWarn(c *gin.Context, message string, additionalFields ...interface{}) {
	h.logger.Warn(message, h.requestFields(c, additionalFields...)...)
}

// RespondWithError sends a consistent error response and logs it
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, code, message string, err error, details ...interface{}) {
	resp := ErrorResponse{Message: message, Code: code}
	if len(details) > 0 {
		resp.Details = details[0]
	}

	if statusCode >= http.StatusInternalServerError {
		h.LogError(c, err, message, "status_code", statusCode)
	} else {
		h.LogWarn(c, message, "status_code", statusCode, "code", code)
	}

	c.JSON(statusCode, resp)
}

// RespondWithSuccess sends a consistent success response
func (h *BaseHandler) RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, SuccessResponse{Message: message, Data: data})
}

// handleServiceError maps service errors onto HTTP statuses
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "Validation failed", err, validationErrors)
		return
	}

	var denied *services.AccessDeniedError
	if errors.As(err, &denied) {
		h.RespondWithError(c, http.StatusForbidden, CodeAccessDenied, denied.Message, err, gin.H{"reason": denied.Reason})
		return
	}

	switch {
	case errors.Is(err, services.ErrDuplicateSubmission):
		h.RespondWithError(c, http.StatusConflict, CodeDuplicateSubmission, "You have already submitted a response to this form", err,
			gin.H{"reason": services.ReasonAlreadySubmitted})
	case errors.Is(err, services.ErrInvalidState):
		h.RespondWithError(c, http.StatusConflict, CodeInvalidState, "Session is no longer in progress", err)
	case errors.Is(err, services.ErrTimeLimitExceeded):
		h.RespondWithError(c, http.StatusGone, CodeTimeLimitExceeded, "Time limit exceeded", err)
	case errors.Is(err, services.ErrFormNotFound):
		h.RespondWithError(c, http.StatusNotFound, CodeNotFound, "Form not found", err)
	case errors.Is(err, services.ErrSessionNotFound):
		h.RespondWithError(c, http.StatusNotFound, CodeNotFound, "Session not found", err)
	case services.IsNotFound(err):
		h.RespondWithError(c, http.StatusNotFound, CodeNotFound, "Resource not found", err)
	case errors.Is(err, services.ErrValidationFailed):
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "Validation failed", err, err.Error())
	case errors.Is(err, services.ErrAccessDenied):
		h.RespondWithError(c, http.StatusForbidden, CodeAccessDenied, "Access denied", err)
	case errors.Is(err, services.ErrFormUnavailable):
		h.RespondWithError(c, http.StatusServiceUnavailable, CodeFormUnavailable, "Form is temporarily unavailable", err)
	default:
		h.RespondWithError(c, http.StatusInternalServerError, CodeInternal, "Internal server error", err)
	}
}

func (h *BaseHandler) bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "Invalid request payload", nil, err.Error())
		return false
	}
	return true
}

func (h *BaseHandler) parseUintParam(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "Invalid "+param, nil)
		return 0, false
	}
	return uint(id), true
}

func (h *BaseHandler) parseUUID(c *gin.Context, name, value string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "Invalid "+name, nil, "must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
