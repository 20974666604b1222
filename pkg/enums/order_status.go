package enums

import "fmt"

// OrderStatus tracks the kitchen/service lifecycle of an order.
type OrderStatus string

const (
	OrderStatusDraft         OrderStatus = "draft"
	OrderStatusOpen          OrderStatus = "open"
	OrderStatusHold          OrderStatus = "hold"
	OrderStatusSentToKitchen OrderStatus = "sent_to_kitchen"
	OrderStatusPreparing     OrderStatus = "preparing"
	OrderStatusReady         OrderStatus = "ready"
	OrderStatusServed        OrderStatus = "served"
	OrderStatusCompleted     OrderStatus = "completed"
	OrderStatusCanceled      OrderStatus = "canceled"
	OrderStatusVoided        OrderStatus = "voided"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusDraft,
	OrderStatusOpen,
	OrderStatusHold,
	OrderStatusSentToKitchen,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusServed,
	OrderStatusCompleted,
	OrderStatusCanceled,
	OrderStatusVoided,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (o OrderStatus) IsTerminal() bool {
	switch o {
	case OrderStatusCompleted, OrderStatusCanceled, OrderStatusVoided:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
