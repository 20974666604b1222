package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillworks/tillpoint/pkg/enums"
)

// Invoice finalizes exactly one order. Lines and totals are copies taken at
// creation time, so later order edits never change a finalized invoice.
type Invoice struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceNumber  int64              `gorm:"column:invoice_number;not null"`
	OrderID        uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	BranchID       uuid.UUID          `gorm:"column:branch_id;type:uuid;not null"`
	Subtotal       decimal.Decimal    `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountAmount decimal.Decimal    `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	TaxAmount      decimal.Decimal    `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	Total          decimal.Decimal    `gorm:"column:total;type:numeric(12,2);not null"`
	PaidAmount     decimal.Decimal    `gorm:"column:paid_amount;type:numeric(12,2);not null"`
	Status         enums.InvoiceStatus `gorm:"column:status;not null;default:'pending'"`
	FiscalStatus   enums.FiscalStatus  `gorm:"column:fiscal_status;not null;default:'not_required'"`
	FiscalAttempts int                `gorm:"column:fiscal_attempts;not null;default:0"`
	FiscalNumber   *string            `gorm:"column:fiscal_number"`
	FiscalQRCode   *string            `gorm:"column:fiscal_qr_code"`
	SubmittedAt    *time.Time         `gorm:"column:submitted_at"`
	CreatedOffline bool               `gorm:"column:created_offline;not null;default:false"`
	Lines          []InvoiceLine      `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
	Payments       []Payment          `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// InvoiceLine is an immutable copy of an order item at invoice time.
type InvoiceLine struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID uuid.UUID       `gorm:"column:invoice_id;type:uuid;not null"`
	Name      string          `gorm:"column:name;not null"`
	Qty       int             `gorm:"column:qty;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Subtotal  decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	TaxAmount decimal.Decimal `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
