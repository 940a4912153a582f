package repositories

import (
	"context"
	"errors"
	"fmt"

	"consora/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a gorm-backed SessionRepository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.ConsultationSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id uint) (*models.ConsultationSession, error) {
	var session models.ConsultationSession
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) GetByCallSID(ctx context.Context, callSID string) (*models.ConsultationSession, error) {
	var session models.ConsultationSession
	if err := r.db.WithContext(ctx).Where("call_sid = ?", callSID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session by call sid: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) ListActive(ctx context.Context) ([]models.ConsultationSession, error) {
	var sessions []models.ConsultationSession
	err := r.db.WithContext(ctx).
		Where("status = ?", models.SessionStatusActive).
		Order("id ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return sessions, nil
}

func (r *sessionRepository) UpdateLocked(ctx context.Context, id uint, fn func(*models.ConsultationSession, WalletRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.ConsultationSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&session, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to lock session: %w", err)
		}

		if err := fn(&session, &walletRepository{db: tx}); err != nil {
			return err
		}

		return tx.Save(&session).Error
	})
}
