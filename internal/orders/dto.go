package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
	"github.com/tillworks/tillpoint/pkg/types"
)

// ItemInput is one order line as uploaded by a terminal. The unit price is
// the add-time snapshot taken on the device, not a live menu lookup.
type ItemInput struct {
	ID         uuid.UUID                 `json:"id" validate:"required"`
	MenuItemID *uuid.UUID                `json:"menu_item_id,omitempty"`
	Name       string                    `json:"name" validate:"required"`
	Qty        int                       `json:"qty" validate:"required,gt=0"`
	UnitPrice  decimal.Decimal           `json:"unit_price"`
	Modifiers  []models.ModifierSnapshot `json:"modifiers,omitempty"`
	Notes      *string                   `json:"notes,omitempty"`
}

// CreateOrderInput carries a terminal's order upload. The ID is the
// client-generated UUID used as the idempotency key.
type CreateOrderInput struct {
	ID             uuid.UUID       `json:"id" validate:"required"`
	BranchID       uuid.UUID       `json:"branch_id" validate:"required"`
	DeviceID       string          `json:"device_id" validate:"required"`
	Type           enums.OrderType `json:"type" validate:"required"`
	TableID        *uuid.UUID      `json:"table_id,omitempty"`
	CustomerID     *uuid.UUID      `json:"customer_id,omitempty"`
	Items          []ItemInput     `json:"items" validate:"required,min=1,dive"`
	Discount       *types.Discount `json:"discount,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	PlacedAt       time.Time       `json:"placed_at" validate:"required"`
	CreatedOffline bool            `json:"created_offline"`
}

// CreateOrderResult reports the reconciled order. Replayed is true when the
// upload matched an existing row and no new record was written.
type CreateOrderResult struct {
	Order    *models.Order
	Replayed bool
}

// UpdateItemsInput replaces the full item set of an editable order.
type UpdateItemsInput struct {
	OrderID  uuid.UUID       `json:"order_id" validate:"required"`
	Items    []ItemInput     `json:"items" validate:"required,min=1,dive"`
	Discount *types.Discount `json:"discount,omitempty"`
}

// TransitionInput moves an order along its lifecycle.
type TransitionInput struct {
	OrderID uuid.UUID         `json:"order_id" validate:"required"`
	Target  enums.OrderStatus `json:"target" validate:"required"`
}

// CancelInput cancels an order with a mandatory reason.
type CancelInput struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
	Reason  string    `json:"reason" validate:"required"`
}

// VoidInput voids a completed order after manager PIN verification.
type VoidInput struct {
	OrderID    uuid.UUID  `json:"order_id" validate:"required"`
	ManagerPIN string     `json:"manager_pin" validate:"required"`
	VoidedBy   *uuid.UUID `json:"voided_by,omitempty"`
}
