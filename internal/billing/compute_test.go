package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
	"github.com/tillworks/tillpoint/pkg/types"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeSixteenPercentTax(t *testing.T) {
	items := []models.OrderItem{
		{Name: "Karahi", Qty: 1, UnitPrice: d("250.00")},
	}

	totals, err := Compute(items, d("0.16"), nil)
	require.NoError(t, err)

	assert.True(t, totals.Subtotal.Equal(d("250.00")), "subtotal %s", totals.Subtotal)
	assert.True(t, totals.TaxAmount.Equal(d("40.00")), "tax %s", totals.TaxAmount)
	assert.True(t, totals.DiscountAmount.IsZero())
	assert.True(t, totals.Total.Equal(d("290.00")), "total %s", totals.Total)
}

func TestComputeWithModifiersAndQty(t *testing.T) {
	items := []models.OrderItem{
		{
			Name:      "Burger",
			Qty:       2,
			UnitPrice: d("450.00"),
			Modifiers: []models.ModifierSnapshot{
				{Name: "Extra cheese", Price: d("50.00")},
			},
		},
		{Name: "Fries", Qty: 1, UnitPrice: d("150.00")},
	}

	totals, err := Compute(items, d("0.16"), nil)
	require.NoError(t, err)

	// (450+50)*2 + 150 = 1150
	assert.True(t, totals.Subtotal.Equal(d("1150.00")), "subtotal %s", totals.Subtotal)
	assert.True(t, totals.TaxAmount.Equal(d("184.00")), "tax %s", totals.TaxAmount)
	assert.True(t, totals.Total.Equal(d("1334.00")), "total %s", totals.Total)
}

func TestComputePercentageDiscountRounds(t *testing.T) {
	items := []models.OrderItem{
		{Name: "Chai", Qty: 3, UnitPrice: d("123.33")},
	}
	discount := &types.Discount{Type: enums.DiscountTypePercentage, Value: d("7.5")}

	totals, err := Compute(items, d("0.05"), discount)
	require.NoError(t, err)

	// 3*123.33 = 369.99; 7.5% = 27.74925 -> 27.75
	assert.True(t, totals.Subtotal.Equal(d("369.99")))
	assert.True(t, totals.DiscountAmount.Equal(d("27.75")), "discount %s", totals.DiscountAmount)
	assert.True(t, totals.TaxAmount.Equal(d("18.50")), "tax %s", totals.TaxAmount)
	assert.True(t, totals.Total.Equal(d("360.74")), "total %s", totals.Total)
}

func TestComputeFixedDiscountExceedsSubtotal(t *testing.T) {
	items := []models.OrderItem{
		{Name: "Chai", Qty: 1, UnitPrice: d("100.00")},
	}
	discount := &types.Discount{Type: enums.DiscountTypeFixed, Value: d("500.00")}

	_, err := Compute(items, d("0.16"), discount)
	require.Error(t, err)
}

func TestComputeIsDeterministicAcrossRetries(t *testing.T) {
	items := []models.OrderItem{
		{Name: "Nihari", Qty: 2, UnitPrice: d("333.33")},
		{Name: "Naan", Qty: 5, UnitPrice: d("20.00")},
	}
	discount := &types.Discount{Type: enums.DiscountTypePercentage, Value: d("12.5")}

	first, err := Compute(items, d("0.16"), discount)
	require.NoError(t, err)
	second, err := Compute(items, d("0.16"), discount)
	require.NoError(t, err)

	assert.Equal(t, first.Total.String(), second.Total.String())
	assert.Equal(t, first.TaxAmount.String(), second.TaxAmount.String())
	assert.Equal(t, first.DiscountAmount.String(), second.DiscountAmount.String())
}

func TestApplyLineAmounts(t *testing.T) {
	items := []models.OrderItem{
		{Name: "Burger", Qty: 2, UnitPrice: d("450.00"), Modifiers: []models.ModifierSnapshot{{Name: "Cheese", Price: d("50.00")}}},
	}

	ApplyLineAmounts(items, d("0.16"))

	assert.True(t, items[0].Subtotal.Equal(d("1000.00")))
	assert.True(t, items[0].TaxAmount.Equal(d("160.00")))
}
