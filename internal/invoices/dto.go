package invoices

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
)

// CreateInvoiceInput finalizes an order into an invoice. The ID is the
// client-generated UUID used as the idempotency key.
type CreateInvoiceInput struct {
	ID             uuid.UUID `json:"id" validate:"required"`
	OrderID        uuid.UUID `json:"order_id" validate:"required"`
	CreatedOffline bool      `json:"created_offline"`
}

// CreateInvoiceResult reports the reconciled invoice. Replayed is true when
// the upload matched an existing row.
type CreateInvoiceResult struct {
	Invoice  *models.Invoice
	Replayed bool
}

// AddPaymentInput records a payment against an invoice.
type AddPaymentInput struct {
	ID             uuid.UUID           `json:"id" validate:"required"`
	InvoiceID      uuid.UUID           `json:"invoice_id" validate:"required"`
	Method         enums.PaymentMethod `json:"method" validate:"required"`
	Amount         decimal.Decimal     `json:"amount"`
	Tendered       *decimal.Decimal    `json:"tendered,omitempty"`
	CreatedOffline bool                `json:"created_offline"`
}

// RefundInput books a refund as a new negative payment row.
type RefundInput struct {
	ID        uuid.UUID       `json:"id" validate:"required"`
	InvoiceID uuid.UUID       `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	RefundOf  *uuid.UUID      `json:"refund_of,omitempty"`
}

// PaymentResult returns the refreshed invoice plus the payment row that was
// written (or already present on replay).
type PaymentResult struct {
	Invoice  *models.Invoice
	Payment  *models.Payment
	Replayed bool
}

// VoidInvoiceInput voids an unpaid invoice after manager PIN verification.
type VoidInvoiceInput struct {
	InvoiceID  uuid.UUID `json:"invoice_id" validate:"required"`
	ManagerPIN string    `json:"manager_pin" validate:"required"`
}

// ListInvoicesQuery configures invoice list queries.
type ListInvoicesQuery struct {
	BranchID     uuid.UUID
	Status       *enums.InvoiceStatus
	FiscalStatus *enums.FiscalStatus
	Limit        int
}
