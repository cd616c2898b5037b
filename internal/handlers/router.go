package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/skillcert/proctor-engine/internal/services"
	"github.com/skillcert/proctor-engine/internal/utils"
)

type HandlerManager struct {
	sessionHandler *SessionHandler
	streamHandler  *StreamHandler
}

func NewHandlerManager(
	sessionService services.SessionService,
	reportService services.ReportService,
	validator *utils.Validator,
	allowedOrigins []string,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		sessionHandler: NewSessionHandler(sessionService, reportService, validator, logger),
		streamHandler:  NewStreamHandler(sessionService, allowedOrigins, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.StartSession)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.DELETE("/:id", hm.sessionHandler.DeleteSession)
			sessions.GET("/:id/questions", hm.sessionHandler.GetQuestions)
			sessions.POST("/:id/answer", hm.sessionHandler.AnswerQuestion)
			sessions.POST("/:id/navigate", hm.sessionHandler.Navigate)
			sessions.POST("/:id/submit", hm.sessionHandler.SubmitSession)

			// Navigation guard
			sessions.POST("/:id/leave", hm.sessionHandler.RequestLeave)
			sessions.POST("/:id/leave/confirm", hm.sessionHandler.ConfirmLeave)
			sessions.POST("/:id/leave/decline", hm.sessionHandler.DeclineLeave)

			// Proctoring
			sessions.GET("/:id/stream", hm.streamHandler.SessionStream)
			sessions.GET("/:id/violations", hm.sessionHandler.GetViolations)
			sessions.GET("/:id/report", hm.sessionHandler.GetReport)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "proctor-engine",
		})
	})
}
