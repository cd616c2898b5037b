package postgres

import (
	"context"
	"fmt"

	"github.com/skillcert/proctor-engine/internal/models"
	"github.com/skillcert/proctor-engine/internal/repositories"
	"gorm.io/gorm"
)

type violationRepository struct {
	db *gorm.DB
}

func NewViolationRepository(db *gorm.DB) repositories.ViolationRepository {
	return &violationRepository{db: db}
}

func (r *violationRepository) Create(ctx context.Context, violation *models.ProctoringViolation) error {
	if err := r.db.WithContext(ctx).Create(violation).Error; err != nil {
		return fmt.Errorf("failed to create proctoring violation: %w", err)
	}
	return nil
}

func (r *violationRepository) CreateBatch(ctx context.Context, violations []*models.ProctoringViolation) error {
	if len(violations) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(violations).Error; err != nil {
		return fmt.Errorf("failed to create proctoring violations: %w", err)
	}
	return nil
}

func (r *violationRepository) GetByAttempt(ctx context.Context, attemptID uint) ([]*models.ProctoringViolation, error) {
	var violations []*models.ProctoringViolation
	err := r.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("occurred_at ASC").
		Find(&violations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get proctoring violations: %w", err)
	}
	return violations, nil
}

func (r *violationRepository) CountByAttempt(ctx context.Context, attemptID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProctoringViolation{}).
		Where("attempt_id = ?", attemptID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count proctoring violations: %w", err)
	}
	return count, nil
}

type repository struct {
	violation repositories.ViolationRepository
}

// NewRepository builds the root repository over a gorm connection.
func NewRepository(db *gorm.DB) repositories.Repository {
	return &repository{violation: NewViolationRepository(db)}
}

func (r *repository) Violation() repositories.ViolationRepository {
	return r.violation
}
