package models

import (
	"time"

	"gorm.io/datatypes"
)

type ViolationKind string

const (
	ViolationNoFace        ViolationKind = "no_face"
	ViolationMultipleFaces ViolationKind = "multiple_faces"
	ViolationCellPhone     ViolationKind = "cell_phone"
)

// Violation is one recorded proctoring anomaly. Violations are append-only
// and never mutated after creation.
type Violation struct {
	Kind       ViolationKind `json:"kind"`
	Message    string        `json:"message"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// ProctoringViolation is the persisted form of a Violation, written to the
// audit trail as evidence for attempt review.
type ProctoringViolation struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	AttemptID uint          `json:"attempt_id" gorm:"not null;index"`
	SessionID string        `json:"session_id" gorm:"size:36;index"`
	Kind      ViolationKind `json:"kind" gorm:"not null;index"`
	Message   string        `json:"message" gorm:"type:text"`

	// Detection context (bounding boxes, confidence) as reported by the
	// perception loop for the offending frame.
	Detail datatypes.JSON `json:"detail" gorm:"type:jsonb"`

	OccurredAt time.Time `json:"occurred_at" gorm:"not null;index"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ProctoringViolation) TableName() string {
	return "proctoring_violations"
}
