package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column on outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateInvoice OutboxAggregateType = "invoice"
	AggregatePayment OutboxAggregateType = "payment"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateInvoice,
	AggregatePayment,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column on outbox_events.
type OutboxEventType string

const (
	EventOrderCreated     OutboxEventType = "order_created"
	EventOrderCompleted   OutboxEventType = "order_completed"
	EventOrderCanceled    OutboxEventType = "order_canceled"
	EventOrderVoided      OutboxEventType = "order_voided"
	EventInvoiceIssued    OutboxEventType = "invoice_issued"
	EventInvoicePaid      OutboxEventType = "invoice_paid"
	EventInvoiceRefunded  OutboxEventType = "invoice_refunded"
	EventPaymentRecorded  OutboxEventType = "payment_recorded"
	EventFiscalSucceeded  OutboxEventType = "fiscal_succeeded"
	EventFiscalFailed     OutboxEventType = "fiscal_failed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderCompleted,
	EventOrderCanceled,
	EventOrderVoided,
	EventInvoiceIssued,
	EventInvoicePaid,
	EventInvoiceRefunded,
	EventPaymentRecorded,
	EventFiscalSucceeded,
	EventFiscalFailed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
