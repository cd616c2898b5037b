package client

import (
	"context"

	"github.com/skillcert/proctor-engine/internal/models"
)

// AnswerSubmission is one answered question in a submission payload. Only
// answered questions appear; unanswered ones are omitted entirely.
type AnswerSubmission struct {
	QuestionID        uint   `json:"question_id"`
	SelectedOptionIDs []uint `json:"selected_option_ids"`
}

// SubmitRequest is the graded-submission payload for an attempt.
type SubmitRequest struct {
	AttemptID uint               `json:"attempt_id"`
	Answers   []AnswerSubmission `json:"answers"`
}

// Backend is the remote certification API the engine orchestrates. All
// authoritative exam state (certifications, questions, grading) lives
// behind it.
type Backend interface {
	// StartAttempt starts or resumes an attempt for a certification.
	StartAttempt(ctx context.Context, certificationID uint) (*models.ExamAttempt, error)

	// GetQuestions fetches the ordered question set for a certification.
	GetQuestions(ctx context.Context, certificationID uint) ([]models.Question, error)

	// GetCertification fetches certification metadata.
	GetCertification(ctx context.Context, certificationID uint) (*models.Certification, error)

	// SubmitAttempt submits answers and returns the graded result.
	SubmitAttempt(ctx context.Context, req SubmitRequest) (*models.GradedResult, error)
}
