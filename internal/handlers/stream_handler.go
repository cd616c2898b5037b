package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skillcert/proctor-engine/internal/detect"
	"github.com/skillcert/proctor-engine/internal/services"
	"github.com/skillcert/proctor-engine/internal/utils"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  32 * 1024,
		WriteBufferSize: 4 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// frameMetadata is the optional text message a client sends before a
// binary frame to describe its dimensions.
type frameMetadata struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// StreamHandler owns the proctoring WebSocket: the browser streams camera
// frames up as binary messages, and transient notices (violation
// warnings, camera failures, state changes) flow back down.
type StreamHandler struct {
	BaseHandler
	sessionService services.SessionService
	upgrader       websocket.Upgrader
}

func NewStreamHandler(sessionService services.SessionService, allowedOrigins []string, logger utils.Logger) *StreamHandler {
	return &StreamHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream upgrades to WebSocket for one exam session. Binary
// messages are camera frames fed to the perception loop; a JSON text
// message updates the frame dimensions applied to subsequent frames.
func (h *StreamHandler) SessionStream(c *gin.Context) {
	managed := h.lookupStream(c)
	if managed == nil {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.LogError(c, err, "WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sessionID := managed.Session.ID().String()
	h.logger.Info("Proctoring stream connected", "session_id", sessionID)

	// Writer goroutine: push notices down until the session's notice
	// channel dries up or the connection breaks.
	done := make(chan struct{})
	go h.writeNotices(conn, managed, done)
	defer close(done)

	var meta frameMetadata
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Proctoring stream closed unexpectedly",
					"session_id", sessionID, "error", err)
			} else {
				h.logger.Debug("Proctoring stream closed", "session_id", sessionID)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			managed.Source.Push(detect.Frame{
				Image:      data,
				Width:      meta.Width,
				Height:     meta.Height,
				CapturedAt: time.Now(),
			})
		case websocket.TextMessage:
			if err := json.Unmarshal(data, &meta); err != nil {
				h.logger.Debug("Ignoring malformed frame metadata",
					"session_id", sessionID, "error", err)
			}
		}
	}
}

func (h *StreamHandler) writeNotices(conn *websocket.Conn, managed *services.ManagedSession, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case notice := <-managed.Notices():
			if err := conn.WriteJSON(notice); err != nil {
				h.logger.Debug("Failed to write notice, dropping stream writer",
					"session_id", managed.Session.ID().String(), "error", err)
				return
			}
		}
	}
}

func (h *StreamHandler) lookupStream(c *gin.Context) *services.ManagedSession {
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
