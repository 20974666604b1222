package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tillworks/tillpoint/pkg/enums"
)

// DiningTable tracks seating state. Completing, canceling or voiding a
// dine-in order releases its table back to available.
type DiningTable struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BranchID  uuid.UUID         `gorm:"column:branch_id;type:uuid;not null"`
	Label     string            `gorm:"column:label;not null"`
	Seats     int               `gorm:"column:seats;not null;default:4"`
	Status    enums.TableStatus `gorm:"column:status;not null;default:'available'"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
