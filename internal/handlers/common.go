package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skillcert/proctor-engine/internal/guard"
	"github.com/skillcert/proctor-engine/internal/services"
	"github.com/skillcert/proctor-engine/internal/session"
	"github.com/skillcert/proctor-engine/internal/utils"
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

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging functionality for all handlers
type BaseHandler struct {
	logger utils.Logger
}

// NewBaseHandler creates a new base handler with logging capability
func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{
		logger: logger,
	}
}

// LogRequest logs incoming HTTP requests with context information
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"remote_addr", c.ClientIP(),
		"request_id", c.GetHeader("X-Request-ID"),
	}
	fields = append(fields, additionalFields...)
	h.logger.Info(message, fields...)
}

// LogError logs error details with context information
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"request_id", c.GetHeader("X-Request-ID"),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}
	fields = append(fields, additionalFields...)
	h.logger.LogError(err, message, fields...)
}

// RespondWithError sends a consistent error response and logs it
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, message string, err error, details ...interface{}) {
	errorResp := ErrorResponse{
		Message: message,
	}
	if len(details) > 0 {
		errorResp.Details = details[0]
	}
	if err != nil {
		h.LogError(c, err, message, "status_code", statusCode)
	}
	c.JSON(statusCode, errorResp)
}

// parseSessionIDParam extracts and validates the session UUID path param.
// Responds with 400 and returns uuid.Nil when the param is malformed.
func (h *BaseHandler) parseSessionIDParam(c *gin.Context, param string) uuid.UUID {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "must be a valid session UUID",
		})
		return uuid.Nil
	}
	return id
}

// handleServiceError maps service and session errors to HTTP status codes.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	switch {
	case services.IsNotFound(err):
		h.RespondWithError(c, http.StatusNotFound, "Session not found", err)
	case errors.Is(err, session.ErrSessionNotActive):
		h.RespondWithError(c, http.StatusConflict, "Exam session is not in progress", err)
	case errors.Is(err, session.ErrInvalidOption):
		h.RespondWithError(c, http.StatusBadRequest, "Option does not belong to the current question", err)
	case errors.Is(err, session.ErrInvalidAttempt):
		h.RespondWithError(c, http.StatusUnprocessableEntity, "Attempt identifier is missing; submission cannot be retried", err)
	case errors.Is(err, session.ErrSubmitFailed):
		h.RespondWithError(c, http.StatusBadGateway, "Submission failed, please retry", err)
	case errors.Is(err, guard.ErrNoPendingLeave):
		h.RespondWithError(c, http.StatusConflict, "No leave request is pending", err)
	case errors.Is(err, services.ErrReportNotReady):
		h.RespondWithError(c, http.StatusConflict, "Report is not available before the session ends", err)
	default:
		h.RespondWithError(c, http.StatusInternalServerError, "Internal server error", err)
	}
}
