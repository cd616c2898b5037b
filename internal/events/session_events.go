package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/skillcert/proctor-engine/internal/models"
)

// EventType represents the session and proctoring events the engine emits.
type EventType string

const (
	// Session lifecycle events
	EventSessionStarted    EventType = "session.started"
	EventSessionSubmitted  EventType = "session.submitted"
	EventSessionExpired    EventType = "session.expired"
	EventSessionTerminated EventType = "session.terminated"

	// Proctoring events
	EventViolationRecorded EventType = "violation.recorded"
	EventViolationExceeded EventType = "violation.threshold_exceeded"

	// Timer events
	EventTimerWarning EventType = "timer.warning"
)

// SessionEvent is the base envelope for all published events.
type SessionEvent struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Data      interface{} `json:"data"`
}

// GenerateEventID returns a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}

func newEvent(eventType EventType, data interface{}) *SessionEvent {
	return &SessionEvent{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    "proctor-engine",
		Version:   "1.0",
		Data:      data,
	}
}

// Event payloads

type SessionStartedEvent struct {
	SessionID       string    `json:"session_id"`
	AttemptID       uint      `json:"attempt_id"`
	CertificationID uint      `json:"certification_id"`
	AttemptNumber   int       `json:"attempt_number"`
	QuestionCount   int       `json:"question_count"`
	DurationMinutes int       `json:"duration_minutes"`
	StartedAt       time.Time `json:"started_at"`
}

type SessionEndedEvent struct {
	SessionID      string               `json:"session_id"`
	AttemptID      uint                 `json:"attempt_id"`
	Status         models.AttemptStatus `json:"status"`
	AnsweredCount  int                  `json:"answered_count"`
	QuestionCount  int                  `json:"question_count"`
	ViolationCount int                  `json:"violation_count"`
	EndedAt        time.Time            `json:"ended_at"`
}

type ViolationRecordedEvent struct {
	SessionID string               `json:"session_id"`
	AttemptID uint                 `json:"attempt_id"`
	Kind      models.ViolationKind `json:"kind"`
	Message   string               `json:"message"`
	Count     int                  `json:"count"`
}

type ViolationExceededEvent struct {
	SessionID  string             `json:"session_id"`
	AttemptID  uint               `json:"attempt_id"`
	Violations []models.Violation `json:"violations"`
}

type TimerWarningEvent struct {
	SessionID        string `json:"session_id"`
	AttemptID        uint   `json:"attempt_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

// Constructors used by the session state machine.

func NewSessionStartedEvent(data SessionStartedEvent) *SessionEvent {
	return newEvent(EventSessionStarted, data)
}

func NewSessionEndedEvent(eventType EventType, data SessionEndedEvent) *SessionEvent {
	return newEvent(eventType, data)
}

func NewViolationRecordedEvent(data ViolationRecordedEvent) *SessionEvent {
	return newEvent(EventViolationRecorded, data)
}

func NewViolationExceededEvent(data ViolationExceededEvent) *SessionEvent {
	return newEvent(EventViolationExceeded, data)
}

func NewTimerWarningEvent(data TimerWarningEvent) *SessionEvent {
	return newEvent(EventTimerWarning, data)
}
