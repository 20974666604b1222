package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ModifierSnapshot freezes a modifier's name and price at add-time.
type ModifierSnapshot struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// OrderItem snapshots the menu price at add-time; UnitPrice and Modifiers are
// immutable once written even if the menu changes afterwards.
type OrderItem struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	MenuItemID *uuid.UUID         `gorm:"column:menu_item_id;type:uuid"`
	Name       string             `gorm:"column:name;not null"`
	Qty        int                `gorm:"column:qty;not null"`
	UnitPrice  decimal.Decimal    `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Modifiers  []ModifierSnapshot `gorm:"column:modifiers;type:jsonb;serializer:json"`
	Subtotal   decimal.Decimal    `gorm:"column:subtotal;type:numeric(12,2);not null"`
	TaxAmount  decimal.Decimal    `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	Notes      *string            `gorm:"column:notes"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
