package types

import (
	"github.com/shopspring/decimal"

	"github.com/tillworks/tillpoint/pkg/enums"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
)

var oneHundred = decimal.NewFromInt(100)

// Discount is the tagged discount variant carried on orders and invoices.
// Validation happens once at the boundary; a zero Discount means none.
type Discount struct {
	Type  enums.DiscountType `json:"type" validate:"omitempty,oneof=percentage fixed"`
	Value decimal.Decimal    `json:"value"`
}

// IsZero reports whether no discount was supplied.
func (d Discount) IsZero() bool {
	return d.Type == "" && d.Value.IsZero()
}

// Validate checks the variant once at the boundary.
func (d Discount) Validate() error {
	if d.IsZero() {
		return nil
	}
	if !d.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount type must be percentage or fixed")
	}
	if d.Value.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount value must be >= 0")
	}
	if d.Type == enums.DiscountTypePercentage && d.Value.GreaterThan(oneHundred) {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage discount cannot exceed 100")
	}
	return nil
}

// Amount resolves the discount against a subtotal. Percentage discounts are
// rounded to 2 decimal places before they are subtracted, so retried uploads
// recompute identical totals.
func (d Discount) Amount(subtotal decimal.Decimal) (decimal.Decimal, error) {
	if d.IsZero() {
		return decimal.Zero, nil
	}
	if err := d.Validate(); err != nil {
		return decimal.Zero, err
	}
	switch d.Type {
	case enums.DiscountTypePercentage:
		return subtotal.Mul(d.Value).Div(oneHundred).Round(2), nil
	default:
		if d.Value.GreaterThan(subtotal) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "fixed discount cannot exceed subtotal")
		}
		return d.Value.Round(2), nil
	}
}
