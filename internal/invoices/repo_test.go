package invoices

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
)

func setupInvoicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	branches := `
CREATE TABLE IF NOT EXISTS branches (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  tax_rate TEXT NOT NULL DEFAULT '0',
  fiscal_enabled INTEGER NOT NULL DEFAULT 0,
  pra_pos_id TEXT,
  pra_ntn TEXT,
  manager_pin_hash TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	orders := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number INTEGER NOT NULL,
  branch_id TEXT NOT NULL,
  device_id TEXT NOT NULL,
  type TEXT NOT NULL DEFAULT 'dine_in',
  status TEXT NOT NULL DEFAULT 'draft',
  table_id TEXT,
  customer_id TEXT,
  subtotal TEXT NOT NULL,
  tax_amount TEXT NOT NULL,
  discount TEXT,
  discount_amount TEXT NOT NULL,
  total TEXT NOT NULL,
  created_offline INTEGER NOT NULL DEFAULT 0,
  notes TEXT,
  cancel_reason TEXT,
  voided_by TEXT,
  placed_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	orderItems := `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  menu_item_id TEXT,
  name TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  modifiers TEXT,
  subtotal TEXT NOT NULL,
  tax_amount TEXT NOT NULL,
  notes TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	invoices := `
CREATE TABLE IF NOT EXISTS invoices (
  id TEXT PRIMARY KEY,
  invoice_number INTEGER NOT NULL,
  order_id TEXT NOT NULL,
  branch_id TEXT NOT NULL,
  subtotal TEXT NOT NULL,
  discount_amount TEXT NOT NULL,
  tax_amount TEXT NOT NULL,
  total TEXT NOT NULL,
  paid_amount TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  fiscal_status TEXT NOT NULL DEFAULT 'not_required',
  fiscal_attempts INTEGER NOT NULL DEFAULT 0,
  fiscal_number TEXT,
  fiscal_qr_code TEXT,
  submitted_at DATETIME,
  created_offline INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	invoiceLines := `
CREATE TABLE IF NOT EXISTS invoice_lines (
  id TEXT PRIMARY KEY,
  invoice_id TEXT NOT NULL,
  name TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  subtotal TEXT NOT NULL,
  tax_amount TEXT NOT NULL,
  created_at DATETIME
);`
	payments := `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  invoice_id TEXT NOT NULL,
  method TEXT NOT NULL DEFAULT 'cash',
  amount TEXT NOT NULL,
  tendered TEXT,
  change TEXT,
  refund_of TEXT,
  created_offline INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`

	for _, schema := range []string{branches, orders, orderItems, invoices, invoiceLines, payments} {
		require.NoError(t, db.Exec(schema).Error)
	}
	for _, table := range []string{"payments", "invoice_lines", "invoices", "order_items", "orders", "branches"} {
		require.NoError(t, db.Exec("DELETE FROM "+table).Error)
	}

	return db
}

func seedDBInvoice(t *testing.T, repo Repository, branchID uuid.UUID, number int64) *models.Invoice {
	t.Helper()
	invoice := &models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: number,
		OrderID:       uuid.New(),
		BranchID:      branchID,
		Subtotal:      d("250.00"),
		TaxAmount:     d("40.00"),
		Total:         d("290.00"),
		PaidAmount:    d("0"),
		Status:        enums.InvoiceStatusPending,
		FiscalStatus:  enums.FiscalStatusPending,
		Lines: []models.InvoiceLine{
			{ID: uuid.New(), Name: "Karahi", Qty: 1, UnitPrice: d("250.00"), Subtotal: d("250.00"), TaxAmount: d("40.00")},
		},
	}
	require.NoError(t, repo.CreateInvoice(context.Background(), invoice))
	return invoice
}

func TestNextInvoiceNumberSequences(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	branchID := uuid.New()

	next, err := repo.NextInvoiceNumber(context.Background(), branchID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	seedDBInvoice(t, repo, branchID, next)

	next, err = repo.NextInvoiceNumber(context.Background(), branchID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}

func TestNextInvoiceNumberIsBranchScoped(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)

	seedDBInvoice(t, repo, uuid.New(), 9)

	next, err := repo.NextInvoiceNumber(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestFindInvoicePreloadsLinesAndPayments(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)

	invoice := seedDBInvoice(t, repo, uuid.New(), 1)
	require.NoError(t, repo.CreatePayment(context.Background(), &models.Payment{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		Method:    enums.PaymentMethodCard,
		Amount:    d("100.00"),
	}))

	found, err := repo.FindInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	require.Len(t, found.Lines, 1)
	assert.Equal(t, "Karahi", found.Lines[0].Name)
	require.Len(t, found.Payments, 1)
	assert.True(t, found.Payments[0].Amount.Equal(d("100.00")))
}

func TestFindLiveInvoiceByOrderSkipsVoid(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	invoice := seedDBInvoice(t, repo, uuid.New(), 1)

	live, err := repo.FindLiveInvoiceByOrder(ctx, invoice.OrderID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, live.ID)

	require.NoError(t, repo.UpdateInvoice(ctx, invoice.ID, map[string]any{"status": enums.InvoiceStatusVoid}))

	_, err = repo.FindLiveInvoiceByOrder(ctx, invoice.OrderID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSumPaymentsNetsRefunds(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	invoice := seedDBInvoice(t, repo, uuid.New(), 1)

	first := &models.Payment{ID: uuid.New(), InvoiceID: invoice.ID, Method: enums.PaymentMethodCash, Amount: d("290.00")}
	require.NoError(t, repo.CreatePayment(ctx, first))
	require.NoError(t, repo.CreatePayment(ctx, &models.Payment{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		Method:    enums.PaymentMethodCash,
		Amount:    d("-90.00"),
		RefundOf:  &first.ID,
	}))

	paid, err := repo.SumPayments(ctx, invoice.ID)
	require.NoError(t, err)
	assert.True(t, paid.Equal(d("200.00")))
}

func TestSumPaymentsEmptyInvoiceIsZero(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)

	paid, err := repo.SumPayments(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, paid.IsZero())
}

func TestListInvoicesFilters(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	branchID := uuid.New()

	paid := seedDBInvoice(t, repo, branchID, 1)
	require.NoError(t, repo.UpdateInvoice(ctx, paid.ID, map[string]any{
		"status":        enums.InvoiceStatusPaid,
		"fiscal_status": enums.FiscalStatusQueued,
	}))
	seedDBInvoice(t, repo, branchID, 2)
	seedDBInvoice(t, repo, uuid.New(), 1)

	all, err := repo.ListInvoices(ctx, ListInvoicesQuery{BranchID: branchID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	status := enums.InvoiceStatusPaid
	byStatus, err := repo.ListInvoices(ctx, ListInvoicesQuery{BranchID: branchID, Status: &status})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, paid.ID, byStatus[0].ID)

	fiscal := enums.FiscalStatusQueued
	byFiscal, err := repo.ListInvoices(ctx, ListInvoicesQuery{BranchID: branchID, FiscalStatus: &fiscal})
	require.NoError(t, err)
	require.Len(t, byFiscal, 1)
	assert.Equal(t, paid.ID, byFiscal[0].ID)
}

func TestFindOrderAndBranch(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	branch := &models.Branch{ID: uuid.New(), Name: "Gulberg", TaxRate: d("0.16"), FiscalEnabled: true}
	require.NoError(t, db.Create(branch).Error)

	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: 1,
		BranchID:    branch.ID,
		DeviceID:    "till-01",
		Type:        enums.OrderTypeTakeaway,
		Status:      enums.OrderStatusServed,
		Subtotal:    d("250.00"),
		TaxAmount:   d("40.00"),
		Total:       d("290.00"),
		PlacedAt:    time.Now().UTC(),
		Items: []models.OrderItem{
			{ID: uuid.New(), Name: "Karahi", Qty: 1, UnitPrice: d("250.00"), Subtotal: d("250.00"), TaxAmount: d("40.00")},
		},
	}
	require.NoError(t, db.Create(order).Error)

	foundOrder, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, foundOrder.Items, 1)

	foundBranch, err := repo.FindBranch(ctx, branch.ID)
	require.NoError(t, err)
	assert.True(t, foundBranch.FiscalEnabled)
}
