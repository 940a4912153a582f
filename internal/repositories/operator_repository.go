package repositories

import (
	"context"
	"errors"
	"fmt"

	"consora/internal/models"

	"gorm.io/gorm"
)

// OperatorRepository is the read side of the operator rate catalog.
type OperatorRepository interface {
	Create(ctx context.Context, operator *models.Operator) error
	GetByID(ctx context.Context, id uint) (*models.Operator, error)
	GetByUserID(ctx context.Context, userID uint) (*models.Operator, error)
	SetOnline(ctx context.Context, id uint, online bool) error
}

type operatorRepository struct {
	db *gorm.DB
}

// NewOperatorRepository creates a gorm-backed OperatorRepository.
func NewOperatorRepository(db *gorm.DB) OperatorRepository {
	return &operatorRepository{db: db}
}

func (r *operatorRepository) Create(ctx context.Context, operator *models.Operator) error {
	if err := r.db.WithContext(ctx).Create(operator).Error; err != nil {
		return fmt.Errorf("failed to create operator: %w", err)
	}
	return nil
}

func (r *operatorRepository) GetByID(ctx context.Context, id uint) (*models.Operator, error) {
	var operator models.Operator
	if err := r.db.WithContext(ctx).First(&operator, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOperatorNotFound
		}
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}
	return &operator, nil
}

func (r *operatorRepository) GetByUserID(ctx context.Context, userID uint) (*models.Operator, error) {
	var operator models.Operator
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&operator).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOperatorNotFound
		}
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}
	return &operator, nil
}

func (r *operatorRepository) SetOnline(ctx context.Context, id uint, online bool) error {
	result := r.db.WithContext(ctx).Model(&models.Operator{}).
		Where("id = ?", id).
		Update("online", online)
	if result.Error != nil {
		return fmt.Errorf("failed to update operator availability: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOperatorNotFound
	}
	return nil
}
