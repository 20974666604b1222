package enums

import "fmt"

// SyncEntityType identifies which entity a sync queue item carries.
type SyncEntityType string

const (
	SyncEntityOrder    SyncEntityType = "order"
	SyncEntityInvoice  SyncEntityType = "invoice"
	SyncEntityPayment  SyncEntityType = "payment"
	SyncEntityCustomer SyncEntityType = "customer"
)

var validSyncEntityTypes = []SyncEntityType{
	SyncEntityOrder,
	SyncEntityInvoice,
	SyncEntityPayment,
	SyncEntityCustomer,
}

// IsValid reports whether the value is a known SyncEntityType.
func (s SyncEntityType) IsValid() bool {
	for _, candidate := range validSyncEntityTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSyncEntityType converts raw input into a SyncEntityType.
func ParseSyncEntityType(value string) (SyncEntityType, error) {
	for _, candidate := range validSyncEntityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync entity type %q", value)
}

// SyncAction identifies the mutation a sync queue item replays.
type SyncAction string

const (
	SyncActionCreate SyncAction = "create"
	SyncActionUpdate SyncAction = "update"
)

var validSyncActions = []SyncAction{
	SyncActionCreate,
	SyncActionUpdate,
}

// IsValid reports whether the value is a known SyncAction.
func (s SyncAction) IsValid() bool {
	for _, candidate := range validSyncActions {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSyncAction converts raw input into a SyncAction.
func ParseSyncAction(value string) (SyncAction, error) {
	for _, candidate := range validSyncActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync action %q", value)
}
