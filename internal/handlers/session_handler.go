package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skillcert/proctor-engine/internal/models"
	"github.com/skillcert/proctor-engine/internal/services"
	"github.com/skillcert/proctor-engine/internal/session"
	"github.com/skillcert/proctor-engine/internal/utils"
)

type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
	reportService  services.ReportService
	validator      *utils.Validator
}

func NewSessionHandler(
	sessionService services.SessionService,
	reportService services.ReportService,
	validator *utils.Validator,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		reportService:  reportService,
		validator:      validator,
	}
}

// ===== REQUEST STRUCTURES =====

type StartSessionRequest struct {
	CertificationID uint `json:"certification_id" validate:"required,min=1"`
}

type AnswerRequest struct {
	OptionID uint `json:"option_id" validate:"required,min=1"`
}

type NavigateRequest struct {
	Action string `json:"action" validate:"required,oneof=next previous goto"`
	Index  int    `json:"index" validate:"min=0"`
}

// ===== RESPONSE STRUCTURES =====

// SessionView is the state snapshot the exam page polls between pushes.
type SessionView struct {
	SessionID        string               `json:"session_id"`
	State            session.State        `json:"state"`
	AttemptID        uint                 `json:"attempt_id,omitempty"`
	AttemptNumber    int                  `json:"attempt_number,omitempty"`
	Certification    string               `json:"certification,omitempty"`
	QuestionCount    int                  `json:"question_count"`
	CurrentIndex     int                  `json:"current_index"`
	AnsweredCount    int                  `json:"answered_count"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	TimeWarning      bool                 `json:"time_warning"`
	ViolationCount   int                  `json:"violation_count"`
	DeviceMessage    string               `json:"device_message,omitempty"`
	Result           *models.GradedResult `json:"result,omitempty"`
}

func toSessionView(managed *services.ManagedSession) SessionView {
	sess := managed.Session
	view := SessionView{
		SessionID:        sess.ID().String(),
		State:            sess.State(),
		QuestionCount:    len(sess.Questions()),
		CurrentIndex:     sess.CurrentIndex(),
		AnsweredCount:    sess.AnsweredCount(),
		RemainingSeconds: sess.RemainingSeconds(),
		TimeWarning:      sess.TimeWarning(),
		ViolationCount:   len(sess.Violations()),
		DeviceMessage:    sess.DeviceMessage(),
		Result:           sess.Result(),
	}
	if attempt := sess.Attempt(); attempt != nil {
		view.AttemptID = attempt.ID
		view.AttemptNumber = attempt.AttemptNumber
	}
	if certification := sess.Certification(); certification != nil {
		view.Certification = certification.Title
	}
	return view
}

// ===== LIFECYCLE =====

// StartSession creates an exam session and starts the attempt, the
// countdown timer, and the proctoring pipeline.
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Starting exam session", "certification_id", req.CertificationID)

	managed, err := h.sessionService.Start(c.Request.Context(), req.CertificationID)
	if err != nil {
		h.RespondWithError(c, http.StatusBadGateway, "Failed to start exam session", err)
		return
	}

	c.JSON(http.StatusCreated, toSessionView(managed))
}

// GetSession returns the current session snapshot.
func (h *SessionHandler) GetSession(c *gin.Context) {
	managed := h.lookup(c)
	if managed == nil {
		return
	}
	c.JSON(http.StatusOK, toSessionView(managed))
}

// GetQuestions returns the fetched question set with the user's current
// selections.
func (h *SessionHandler) GetQuestions(c *gin.Context) {
	managed := h.lookup(c)
	if managed == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"questions": managed.Session.Questions(),
		"answers":   managed.Session.Answers(),
	})
}

// ===== ANSWERING & NAVIGATION =====

// AnswerQuestion records a selection for the current question,
// overwriting any previous one.
func (h *SessionHandler) AnswerQuestion(c *gin.Context) {
	managed := h.lookup(c)
	if managed == nil {
		return
	}

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
		return
	}

	if err := managed.Session.SelectOption(req.OptionID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionView(managed))
}

// Navigate moves the question cursor. Out-of-range moves are clamped or
// ignored, never errors.
func (h *SessionHandler) Navigate(c *gin.Context) {
	managed := h.lookup(c)
	if managed == nil {
		return
	}

	var req NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
		return
	}

	switch req.Action {
	case "next":
		managed.Session.Next()
	case "previous":
		managed.Session.Previous()
	case "goto":
		managed.Session.GoToQuestion(req.Index)
	}
	c.JSON(http.StatusOK, toSessionView(managed))
}

// ===== SUBMISSION =====

// SubmitSession is the user-initiated submission.
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	managed := h.lookup(c)
	if managed == nil {
		return
	}

	h.LogRequest(c, "Submitting exam session",
		"session_id", managed.Session.ID().String())

	result, err := managed.Session.Submit(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ===== NAVIGATION GUARD =====

// RequestLeave asks whether navigating away is allowed right now. During
// an active exam the answer is a blocked decision carrying the
// consequence message for the confirmation dialog.
func (h *SessionHandler) RequestLeave(c *gin.Context) {
	managed := h.lookup(c)
	if managed == nil {
		return
	}
	decision := managed.Guard.RequestLeave()
	c.JSON(http.StatusOK, decision)
}

// ConfirmLeave accepts a pending leave: the session is abandoned and the
// client is told where to go.
func (h *SessionHandler) ConfirmLeave(c *gin.Context) {
	managed := h.lookup(c)
	if managed == nil {
		return
	}
	destination, err := managed.Guard.Confirm()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"destination": destination})
}

// DeclineLeave rejects a pending leave; the exam continues untouched.
func (h *SessionHandler) DeclineLeave(c *gin.Context) {
	managed := h.lookup(c)
	if managed == nil {
		return
	}
	if err := managed.Guard.Decline(); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Leave declined, exam continues"})
}

// ===== VIOLATIONS & REPORTING =====

// GetViolations returns the session's recorded violations.
func (h *SessionHandler) GetViolations(c *gin.Context) {
	managed := h.lookup(c)
	if managed == nil {
		return
	}
	violations := managed.Session.Violations()
	c.JSON(http.StatusOK, gin.H{
		"violations": violations,
		"count":      len(violations),
	})
}

// GetReport exports the finished session as an Excel workbook.
func (h *SessionHandler) GetReport(c *gin.Context) {
	managed := h.lookup(c)
	if managed == nil {
		return
	}

	report, err := h.reportService.BuildSessionReport(c.Request.Context(), managed)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("session-%s.xlsx", managed.Session.ID().String())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", report)
}

// DeleteSession discards a session, releasing its camera stream and
// timers. Used once the result screen has been shown.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id := h.parseSessionIDParam(c, "id")
	if id == uuid.Nil {
		return
	}
	if err := h.sessionService.Remove(id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Session removed"})
}

// lookup resolves the :id param into a managed session, writing the
// error response itself on failure.
func (h *SessionHandler) lookup(c *gin.Context) *services.ManagedSession {
	id := h.parseSessionIDParam(c, "id")
	if id == uuid.Nil {
		return nil
	}
	managed, err := h.sessionService.Get(id)
	if err != nil {
		h.handleServiceError(c, err)
		return nil
	}
	return managed
}
