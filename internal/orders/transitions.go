package orders

import "github.com/tillworks/tillpoint/pkg/enums"

// allowedTransitions is the order lifecycle. Canceled and voided are terminal.
// Cancel and void are both reachable from every pre-payment state; voiding
// requires manager authorization and is the only exit from completed.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusDraft:         {enums.OrderStatusOpen, enums.OrderStatusCanceled, enums.OrderStatusVoided},
	enums.OrderStatusOpen:          {enums.OrderStatusHold, enums.OrderStatusSentToKitchen, enums.OrderStatusCompleted, enums.OrderStatusCanceled, enums.OrderStatusVoided},
	enums.OrderStatusHold:          {enums.OrderStatusOpen, enums.OrderStatusCanceled, enums.OrderStatusVoided},
	enums.OrderStatusSentToKitchen: {enums.OrderStatusPreparing, enums.OrderStatusCanceled, enums.OrderStatusVoided},
	enums.OrderStatusPreparing:     {enums.OrderStatusReady, enums.OrderStatusCanceled, enums.OrderStatusVoided},
	enums.OrderStatusReady:         {enums.OrderStatusServed, enums.OrderStatusCanceled, enums.OrderStatusVoided},
	enums.OrderStatusServed:        {enums.OrderStatusCompleted, enums.OrderStatusCanceled, enums.OrderStatusVoided},
	enums.OrderStatusCompleted:     {enums.OrderStatusVoided},
	enums.OrderStatusCanceled:      {},
	enums.OrderStatusVoided:        {},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// editableStatuses are the states where line items may still change.
var editableStatuses = map[enums.OrderStatus]bool{
	enums.OrderStatusDraft: true,
	enums.OrderStatusOpen:  true,
	enums.OrderStatusHold:  true,
}

// ItemsEditable reports whether the order's items can still be modified.
func ItemsEditable(status enums.OrderStatus) bool {
	return editableStatuses[status]
}
