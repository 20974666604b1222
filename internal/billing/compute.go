// Package billing holds the deterministic monetary math shared by order and
// invoice services. Terminals and the server run the same computations Go-side
// so a retried upload always reproduces byte-identical totals.
package billing

import (
	"github.com/shopspring/decimal"

	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/types"
)

// Totals is the monetary summary of an order or invoice.
type Totals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
}

// LineAmounts returns the subtotal and tax for a single order item. The unit
// price plus modifier prices times quantity, rounded to 2 decimal places.
func LineAmounts(qty int, unitPrice decimal.Decimal, modifiers []models.ModifierSnapshot, taxRate decimal.Decimal) (subtotal, tax decimal.Decimal) {
	each := unitPrice
	for _, m := range modifiers {
		each = each.Add(m.Price)
	}
	subtotal = each.Mul(decimal.NewFromInt(int64(qty))).Round(2)
	tax = subtotal.Mul(taxRate).Round(2)
	return subtotal, tax
}

// Compute derives order totals from its items, the branch tax rate, and an
// optional discount. Tax applies to the full subtotal; the discount comes off
// after tax so total = subtotal + tax - discount.
func Compute(items []models.OrderItem, taxRate decimal.Decimal, discount *types.Discount) (Totals, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		lineSub, _ := LineAmounts(item.Qty, item.UnitPrice, item.Modifiers, taxRate)
		subtotal = subtotal.Add(lineSub)
	}
	subtotal = subtotal.Round(2)

	tax := subtotal.Mul(taxRate).Round(2)

	discountAmount := decimal.Zero
	if discount != nil && !discount.IsZero() {
		amount, err := discount.Amount(subtotal)
		if err != nil {
			return Totals{}, err
		}
		discountAmount = amount
	}

	total := subtotal.Add(tax).Sub(discountAmount).Round(2)

	return Totals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discountAmount,
		Total:          total,
	}, nil
}

// ApplyLineAmounts recomputes and stamps per-line subtotal and tax on each
// item in place.
func ApplyLineAmounts(items []models.OrderItem, taxRate decimal.Decimal) {
	for i := range items {
		sub, tax := LineAmounts(items[i].Qty, items[i].UnitPrice, items[i].Modifiers, taxRate)
		items[i].Subtotal = sub
		items[i].TaxAmount = tax
	}
}
