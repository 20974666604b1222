package terminal

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Queue is the durable sync queue. Every mutation is persisted before the
// call returns, so a crash never loses an accepted change.
type Queue struct {
	db *gorm.DB
}

// NewQueue builds the queue over the terminal's local DB. The schema is
// created by NewStore.
func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue appends the item. It carries the full payload so the upload does
// not depend on the entity store at drain time.
func (q *Queue) Enqueue(ctx context.Context, item *SyncQueueItem) error {
	return q.db.WithContext(ctx).Create(item).Error
}

// DequeueInOrder returns the oldest pending items without removing them.
// Items leave the queue only via Remove or MoveToFailed.
func (q *Queue) DequeueInOrder(ctx context.Context, limit int) ([]SyncQueueItem, error) {
	if limit <= 0 {
		limit = 1
	}
	var rows []SyncQueueItem
	err := q.db.WithContext(ctx).
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Remove deletes a successfully uploaded item.
func (q *Queue) Remove(ctx context.Context, seq int64) error {
	return q.db.WithContext(ctx).Delete(&SyncQueueItem{}, "seq = ?", seq).Error
}

// RecordFailure increments the retry counter and stores the error.
func (q *Queue) RecordFailure(ctx context.Context, seq int64, errMsg string) error {
	return q.db.WithContext(ctx).
		Model(&SyncQueueItem{}).
		Where("seq = ?", seq).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  errMsg,
		}).Error
}

// MoveToFailed takes the item out of the FIFO and parks it in the failed
// store for operator review.
func (q *Queue) MoveToFailed(ctx context.Context, seq int64) (*FailedSyncItem, error) {
	var failed *FailedSyncItem
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item SyncQueueItem
		if err := tx.Where("seq = ?", seq).First(&item).Error; err != nil {
			return err
		}
		failed = &FailedSyncItem{
			Seq:        item.Seq,
			EntityType: item.EntityType,
			EntityUUID: item.EntityUUID,
			Action:     item.Action,
			Payload:    item.Payload,
			RetryCount: item.RetryCount,
			LastError:  item.LastError,
			EnqueuedAt: item.EnqueuedAt,
		}
		if err := tx.Create(failed).Error; err != nil {
			return err
		}
		return tx.Delete(&SyncQueueItem{}, "seq = ?", seq).Error
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

// RetryFailed re-enqueues one failed item with a fresh retry budget.
func (q *Queue) RetryFailed(ctx context.Context, failedID int64) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var failed FailedSyncItem
		if err := tx.Where("id = ?", failedID).First(&failed).Error; err != nil {
			return err
		}
		item := &SyncQueueItem{
			EntityType: failed.EntityType,
			EntityUUID: failed.EntityUUID,
			Action:     failed.Action,
			Payload:    failed.Payload,
		}
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		return tx.Delete(&FailedSyncItem{}, "id = ?", failedID).Error
	})
}

// RetryAllFailed re-enqueues every failed item. Returns how many moved.
func (q *Queue) RetryAllFailed(ctx context.Context) (int, error) {
	var moved int
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []FailedSyncItem
		if err := tx.Order("id ASC").Find(&rows).Error; err != nil {
			return err
		}
		for _, failed := range rows {
			item := &SyncQueueItem{
				EntityType: failed.EntityType,
				EntityUUID: failed.EntityUUID,
				Action:     failed.Action,
				Payload:    failed.Payload,
			}
			if err := tx.Create(item).Error; err != nil {
				return err
			}
			if err := tx.Delete(&FailedSyncItem{}, "id = ?", failed.ID).Error; err != nil {
				return err
			}
			moved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// ListFailed returns the parked items for operator display.
func (q *Queue) ListFailed(ctx context.Context) ([]FailedSyncItem, error) {
	var rows []FailedSyncItem
	if err := q.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Contains reports whether any pending item references the entity.
func (q *Queue) Contains(ctx context.Context, entityUUID uuid.UUID) (bool, error) {
	var count int64
	err := q.db.WithContext(ctx).
		Model(&SyncQueueItem{}).
		Where("entity_uuid = ?", entityUUID).
		Count(&count).Error
	return count > 0, err
}

// Counts returns pending and failed item totals for the status surface.
func (q *Queue) Counts(ctx context.Context) (pending, failed int64, err error) {
	if err = q.db.WithContext(ctx).Model(&SyncQueueItem{}).Count(&pending).Error; err != nil {
		return 0, 0, err
	}
	if err = q.db.WithContext(ctx).Model(&FailedSyncItem{}).Count(&failed).Error; err != nil {
		return 0, 0, err
	}
	return pending, failed, nil
}
