package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillworks/tillpoint/pkg/enums"
)

// Payment is an immutable row. Refunds are new rows with a negative amount
// referencing the same invoice, never edits of a prior payment.
type Payment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceID      uuid.UUID           `gorm:"column:invoice_id;type:uuid;not null"`
	Method         enums.PaymentMethod `gorm:"column:method;not null;default:'cash'"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Tendered       *decimal.Decimal    `gorm:"column:tendered;type:numeric(12,2)"`
	Change         *decimal.Decimal    `gorm:"column:change;type:numeric(12,2)"`
	RefundOf       *uuid.UUID          `gorm:"column:refund_of;type:uuid"`
	CreatedOffline bool                `gorm:"column:created_offline;not null;default:false"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
}

// IsRefund reports whether the row reverses earlier payments.
func (p Payment) IsRefund() bool {
	return p.Amount.IsNegative()
}
