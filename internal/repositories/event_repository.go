package repositories

import (
	"context"
	"errors"
	"fmt"

	"consora/internal/models"

	"gorm.io/gorm"
)

// EventRepository records inbound provider events for audit and
// idempotency, and maintains call-channel records.
type EventRepository interface {
	// Record stores the event, failing with ErrDuplicateEvent when the
	// provider-assigned event id has been seen before.
	Record(ctx context.Context, event *models.ProviderEvent) error

	// Seen reports whether the provider event id was already recorded.
	Seen(ctx context.Context, provider, eventID string) (bool, error)

	CreateCallRecord(ctx context.Context, record *models.CallRecord) error
	GetCallBySID(ctx context.Context, callSID string) (*models.CallRecord, error)
	UpdateCallStatus(ctx context.Context, callSID, status string) error
	SetRecordingURL(ctx context.Context, callSID, url string) error
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a gorm-backed EventRepository.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Record(ctx context.Context, event *models.ProviderEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("failed to record provider event: %w", err)
	}
	return nil
}

func (r *eventRepository) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProviderEvent{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check provider event: %w", err)
	}
	return count > 0, nil
}

func (r *eventRepository) CreateCallRecord(ctx context.Context, record *models.CallRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create call record: %w", err)
	}
	return nil
}

func (r *eventRepository) GetCallBySID(ctx context.Context, callSID string) (*models.CallRecord, error) {
	var record models.CallRecord
	if err := r.db.WithContext(ctx).Where("call_sid = ?", callSID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCallRecordNotFound
		}
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}
	return &record, nil
}

func (r *eventRepository) UpdateCallStatus(ctx context.Context, callSID, status string) error {
	result := r.db.WithContext(ctx).Model(&models.CallRecord{}).
		Where("call_sid = ?", callSID).
		Update("last_status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update call status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCallRecordNotFound
	}
	return nil
}

func (r *eventRepository) SetRecordingURL(ctx context.Context, callSID, url string) error {
	result := r.db.WithContext(ctx).Model(&models.CallRecord{}).
		Where("call_sid = ?", callSID).
		Update("recording_url", url)
	if result.Error != nil {
		return fmt.Errorf("failed to set recording url: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCallRecordNotFound
	}
	return nil
}
