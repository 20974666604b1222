package enums

import "fmt"

// FiscalStatus tracks the fiscal-authority submission lifecycle of an invoice.
type FiscalStatus string

const (
	FiscalStatusNotRequired FiscalStatus = "not_required"
	FiscalStatusPending     FiscalStatus = "pending"
	FiscalStatusQueued      FiscalStatus = "queued"
	FiscalStatusSubmitted   FiscalStatus = "submitted"
	FiscalStatusSuccess     FiscalStatus = "success"
	FiscalStatusFailed      FiscalStatus = "failed"
)

var validFiscalStatuses = []FiscalStatus{
	FiscalStatusNotRequired,
	FiscalStatusPending,
	FiscalStatusQueued,
	FiscalStatusSubmitted,
	FiscalStatusSuccess,
	FiscalStatusFailed,
}

// String implements fmt.Stringer.
func (f FiscalStatus) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FiscalStatus.
func (f FiscalStatus) IsValid() bool {
	for _, candidate := range validFiscalStatuses {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFiscalStatus converts raw input into a FiscalStatus.
func ParseFiscalStatus(value string) (FiscalStatus, error) {
	for _, candidate := range validFiscalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fiscal status %q", value)
}
