package repository

import (
	"context"
	"errors"

	"walletcore/internal/model"

	"gorm.io/gorm"
)

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrEventStatusInvalid = errors.New("invalid event status transition")
	ErrDuplicateReference = errors.New("duplicate reference")
	ErrAlreadyApplied     = errors.New("event already applied")
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create persists a new event. The unique index on reference is the last
// line of defense against duplicate submissions racing past the service
// pre-check.
func (r *EventRepository) Create(ctx context.Context, tx *gorm.DB, event *model.Event) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(event).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateReference
	}
	return err
}

func (r *EventRepository) GetByEventNo(ctx context.Context, tx *gorm.DB, eventNo string) (*model.Event, error) {
	if tx == nil {
		tx = r.db
	}
	var event model.Event
	err := tx.WithContext(ctx).Where("event_no = ?", eventNo).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

// GetByReference returns nil, nil when no event carries the reference.
func (r *EventRepository) GetByReference(ctx context.Context, reference string) (*model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// UpdateStatus flips status from fromStatus to toStatus. The WHERE clause on
// the current status makes the flip conditional, so two racing callers cannot
// both succeed.
func (r *EventRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, eventNo string, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrEventStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Event{}).
		Where("event_no = ? AND status = ?", eventNo, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEventStatusInvalid
	}
	return nil
}

// MarkApplied flips applied false->true. Zero rows affected means some other
// invocation already applied the event; the caller must not mutate the
// balance again.
func (r *EventRepository) MarkApplied(ctx context.Context, tx *gorm.DB, eventNo string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Event{}).
		Where("event_no = ? AND applied = ?", eventNo, false).
		Update("applied", true)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyApplied
	}
	return nil
}

func (r *EventRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Event, int64, error) {
	var events []*model.Event
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Event{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&events).Error

	return events, total, err
}

// ListSuccessfulByUserID returns the account's full successful history in
// creation order, the input to the reconciliation recalculator.
func (r *EventRepository) ListSuccessfulByUserID(ctx context.Context, userID int64) ([]*model.Event, error) {
	var events []*model.Event
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.EventStatusSuccessful).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}
