package repositories

import (
	"context"
	"errors"

	"github.com/skillcert/proctor-engine/internal/models"
	"gorm.io/gorm"
)

// ViolationRepository persists the proctoring audit trail. Records are
// append-only; nothing updates or deletes them.
type ViolationRepository interface {
	Create(ctx context.Context, violation *models.ProctoringViolation) error
	CreateBatch(ctx context.Context, violations []*models.ProctoringViolation) error
	GetByAttempt(ctx context.Context, attemptID uint) ([]*models.ProctoringViolation, error)
	CountByAttempt(ctx context.Context, attemptID uint) (int64, error)
}

// Repository is the root repository accessor.
type Repository interface {
	Violation() ViolationRepository
}

// IsNotFoundError checks if error represents a "record not found" condition.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
