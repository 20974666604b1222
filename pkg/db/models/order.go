package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillworks/tillpoint/pkg/enums"
	"github.com/tillworks/tillpoint/pkg/types"
)

// Order is keyed by the client-generated UUID so terminal retries reconcile
// onto the same row. OrderNumber is the server-assigned sequential ID handed
// back to the terminal on first successful sync.
type Order struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber    int64             `gorm:"column:order_number;not null"`
	BranchID       uuid.UUID         `gorm:"column:branch_id;type:uuid;not null"`
	DeviceID       string            `gorm:"column:device_id;not null"`
	Type           enums.OrderType   `gorm:"column:type;not null;default:'dine_in'"`
	Status         enums.OrderStatus `gorm:"column:status;not null;default:'draft'"`
	TableID        *uuid.UUID        `gorm:"column:table_id;type:uuid"`
	CustomerID     *uuid.UUID        `gorm:"column:customer_id;type:uuid"`
	Subtotal       decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	TaxAmount      decimal.Decimal   `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	Discount       *types.Discount   `gorm:"column:discount;type:jsonb;serializer:json"`
	DiscountAmount decimal.Decimal   `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	Total          decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	CreatedOffline bool              `gorm:"column:created_offline;not null;default:false"`
	Notes          *string           `gorm:"column:notes"`
	CancelReason   *string           `gorm:"column:cancel_reason"`
	VoidedBy       *uuid.UUID        `gorm:"column:voided_by;type:uuid"`
	Items          []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PlacedAt       time.Time         `gorm:"column:placed_at;not null"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
