package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the terminal's local entity store.
type Store struct {
	db *gorm.DB
}

// NewStore builds the entity store and ensures the local schema exists.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&EntityRecord{}, &SyncQueueItem{}, &FailedSyncItem{}, &BootstrapCheckpoint{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// SaveEntity upserts the local record. Local edits before sync overwrite the
// payload in place; the uuid never changes.
func (s *Store) SaveEntity(ctx context.Context, record *EntityRecord) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uuid"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "synced", "updated_at"}),
		}).
		Create(record).Error
}

// GetEntity loads one record by uuid.
func (s *Store) GetEntity(ctx context.Context, id uuid.UUID) (*EntityRecord, error) {
	var record EntityRecord
	if err := s.db.WithContext(ctx).Where("uuid = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// MarkSynced flags the record as reconciled and stores the server-assigned
// number when the server issued one.
func (s *Store) MarkSynced(ctx context.Context, id uuid.UUID, serverNumber *int64) error {
	updates := map[string]any{"synced": true}
	if serverNumber != nil {
		updates["server_number"] = *serverNumber
	}
	return s.db.WithContext(ctx).
		Model(&EntityRecord{}).
		Where("uuid = ?", id).
		Updates(updates).Error
}

// UnsyncedOfflineEntities returns records created offline that never made it
// to the server. Feeds the recovery scan after a crash.
func (s *Store) UnsyncedOfflineEntities(ctx context.Context) ([]EntityRecord, error) {
	var rows []EntityRecord
	err := s.db.WithContext(ctx).
		Where("created_offline = ? AND synced = ?", true, false).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SaveReference caches a bootstrap payload as a synced record so the
// terminal can price and seat offline.
func (s *Store) SaveReference(ctx context.Context, entityType EntityType, id uuid.UUID, payload json.RawMessage) error {
	return s.SaveEntity(ctx, &EntityRecord{
		UUID:       id,
		EntityType: entityType,
		Payload:    payload,
		Synced:     true,
	})
}

// Checkpoint returns the cursor of the last reference pull, or nil when the
// terminal has never bootstrapped.
func (s *Store) Checkpoint(ctx context.Context) (*time.Time, error) {
	var row BootstrapCheckpoint
	err := s.db.WithContext(ctx).Where("id = ?", 1).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row.PulledAt, nil
}

// SaveCheckpoint advances the bootstrap cursor.
func (s *Store) SaveCheckpoint(ctx context.Context, pulledAt time.Time) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"pulled_at", "updated_at"}),
		}).
		Create(&BootstrapCheckpoint{ID: 1, PulledAt: pulledAt}).Error
}
