package models

import (
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptExpired    AttemptStatus = "expired"
	AttemptTerminated AttemptStatus = "terminated"
)

// IsTerminal reports whether the status is one of the mutually exclusive
// terminal states. An attempt reaches exactly one of them.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptSubmitted || s == AttemptExpired || s == AttemptTerminated
}

// Certification describes one certification exam as served by the
// certification backend.
type Certification struct {
	ID           uint   `json:"id"`
	Title        string `json:"title"`
	Duration     int    `json:"duration" validate:"required,min=1,max=300"` // minutes
	PassingScore int    `json:"passing_score" validate:"min=0,max=100"`
	MaxAttempts  int    `json:"max_attempts"`
}

// ExamAttempt identifies one timed instance of a user taking a
// certification exam. The backend owns the authoritative record; this is
// the engine-side view held for the lifetime of a session.
type ExamAttempt struct {
	ID              uint          `json:"id"`
	CertificationID uint          `json:"certification_id"`
	AttemptNumber   int           `json:"attempt_number"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        int           `json:"duration"` // minutes
	Status          AttemptStatus `json:"status"`
}

// Option is one selectable answer of a question. Option IDs are non-zero;
// zero is reserved as the unanswered sentinel in an AnswerMap.
type Option struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

// Question is immutable once fetched. Prompt may embed fenced or inline
// code. MultipleCorrect is informational only: the engine stores a single
// selected option per question regardless.
type Question struct {
	ID              uint     `json:"id"`
	Prompt          string   `json:"prompt"`
	Options         []Option `json:"options"`
	MultipleCorrect bool     `json:"multiple_correct"`
}

// HasOption reports whether id names one of the question's options.
func (q *Question) HasOption(id uint) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Unanswered is the AnswerMap value for a question with no selection.
const Unanswered uint = 0

// GradedResult is the backend's grading outcome for a submitted attempt.
type GradedResult struct {
	AttemptID     uint     `json:"attempt_id"`
	Score         float64  `json:"score"`
	Passed        bool     `json:"passed"`
	CorrectCount  int      `json:"correct_count"`
	TotalCount    int      `json:"total_count"`
	CertificateID *string  `json:"certificate_id,omitempty"`
	Percentile    *float64 `json:"percentile,omitempty"`
}
