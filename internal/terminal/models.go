// Package terminal implements the offline-first client device: a SQLite
// entity store, a durable sync queue, and the engine that drains the queue
// to the server in strict FIFO order.
package terminal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies what a stored record or queue item carries.
type EntityType string

const (
	EntityOrder    EntityType = "order"
	EntityInvoice  EntityType = "invoice"
	EntityPayment  EntityType = "payment"
	EntityCustomer EntityType = "customer"

	// Reference data cached from bootstrap pulls. Never enqueued for upload.
	EntityBranch   EntityType = "branch"
	EntityMenuItem EntityType = "menu_item"
	EntityTable    EntityType = "table"
)

// Action is the change a queue item replays on the server.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// EntityRecord is the terminal's local copy of a business entity. The uuid
// is generated on the device and stays the primary key on the server too,
// so a record never changes identity when it syncs.
type EntityRecord struct {
	UUID           uuid.UUID       `gorm:"column:uuid;primaryKey"`
	EntityType     EntityType      `gorm:"column:entity_type;not null;index"`
	Payload        json.RawMessage `gorm:"column:payload"`
	ServerNumber   *int64          `gorm:"column:server_number"`
	Synced         bool            `gorm:"column:synced;not null;default:false"`
	CreatedOffline bool            `gorm:"column:created_offline;not null;default:false"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (EntityRecord) TableName() string { return "entity_records" }

// SyncQueueItem is one pending change. Seq is the enqueue sequence and the
// drain order; the queue is strictly FIFO.
type SyncQueueItem struct {
	Seq        int64           `gorm:"column:seq;primaryKey;autoIncrement"`
	EntityType EntityType      `gorm:"column:entity_type;not null"`
	EntityUUID uuid.UUID       `gorm:"column:entity_uuid;not null;index"`
	Action     Action          `gorm:"column:action;not null"`
	Payload    json.RawMessage `gorm:"column:payload"`
	RetryCount int             `gorm:"column:retry_count;not null;default:0"`
	LastError  *string         `gorm:"column:last_error"`
	EnqueuedAt time.Time       `gorm:"column:enqueued_at;autoCreateTime"`
}

func (SyncQueueItem) TableName() string { return "sync_queue" }

// FailedSyncItem holds items that exhausted their retries or hit a fatal
// server rejection. They stay visible to the operator for manual retry.
type FailedSyncItem struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Seq        int64           `gorm:"column:seq;not null"`
	EntityType EntityType      `gorm:"column:entity_type;not null"`
	EntityUUID uuid.UUID       `gorm:"column:entity_uuid;not null"`
	Action     Action          `gorm:"column:action;not null"`
	Payload    json.RawMessage `gorm:"column:payload"`
	RetryCount int             `gorm:"column:retry_count;not null"`
	LastError  *string         `gorm:"column:last_error"`
	EnqueuedAt time.Time       `gorm:"column:enqueued_at"`
	FailedAt   time.Time       `gorm:"column:failed_at;autoCreateTime"`
}

func (FailedSyncItem) TableName() string { return "failed_sync_items" }

// BootstrapCheckpoint records the cursor of the last successful reference
// pull. Single row keyed by ID 1.
type BootstrapCheckpoint struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	PulledAt  time.Time `gorm:"column:pulled_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (BootstrapCheckpoint) TableName() string { return "bootstrap_checkpoints" }
