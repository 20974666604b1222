package orders

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

func setupOrdersTestDB(t *testing.T) *gorm.DB {
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
	diningTables := `
CREATE TABLE IF NOT EXISTS dining_tables (
  id TEXT PRIMARY KEY,
  branch_id TEXT NOT NULL,
  label TEXT NOT NULL,
  seats INTEGER NOT NULL DEFAULT 4,
  status TEXT NOT NULL DEFAULT 'available',
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

	for _, schema := range []string{branches, diningTables, orders, orderItems} {
		require.NoError(t, db.Exec(schema).Error)
	}
	for _, table := range []string{"order_items", "orders", "dining_tables", "branches"} {
		require.NoError(t, db.Exec("DELETE FROM "+table).Error)
	}

	return db
}

func seedOrder(t *testing.T, repo Repository, branchID uuid.UUID, number int64) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: number,
		BranchID:    branchID,
		DeviceID:    "till-01",
		Type:        enums.OrderTypeTakeaway,
		Status:      enums.OrderStatusOpen,
		Subtotal:    d("250.00"),
		TaxAmount:   d("40.00"),
		Total:       d("290.00"),
		PlacedAt:    time.Now().UTC(),
		Items: []models.OrderItem{
			{ID: uuid.New(), Name: "Karahi", Qty: 1, UnitPrice: d("250.00"), Subtotal: d("250.00"), TaxAmount: d("40.00")},
		},
	}
	require.NoError(t, repo.CreateOrder(context.Background(), order))
	return order
}

func TestNextOrderNumberSequences(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	branchID := uuid.New()

	next, err := repo.NextOrderNumber(context.Background(), branchID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	seedOrder(t, repo, branchID, next)

	next, err = repo.NextOrderNumber(context.Background(), branchID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)

	// numbers are branch-scoped
	next, err = repo.NextOrderNumber(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestCreateAndFindOrderPreloadsItems(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	branchID := uuid.New()

	created := seedOrder(t, repo, branchID, 1)

	found, err := repo.FindOrder(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.OrderNumber, found.OrderNumber)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "Karahi", found.Items[0].Name)
	assert.True(t, found.Total.Equal(d("290.00")))
}

func TestUpdateOrderStatusWithExtras(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	created := seedOrder(t, repo, uuid.New(), 1)

	extra := map[string]any{"cancel_reason": "kitchen closed"}
	require.NoError(t, repo.UpdateOrderStatus(context.Background(), created.ID, enums.OrderStatusCanceled, extra))

	found, err := repo.FindOrder(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCanceled, found.Status)
	require.NotNil(t, found.CancelReason)
	assert.Equal(t, "kitchen closed", *found.CancelReason)
}

func TestReplaceOrderItems(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	created := seedOrder(t, repo, uuid.New(), 1)

	replacement := []models.OrderItem{
		{ID: uuid.New(), OrderID: created.ID, Name: "Nihari", Qty: 2, UnitPrice: d("300.00"), Subtotal: d("600.00"), TaxAmount: d("96.00")},
		{ID: uuid.New(), OrderID: created.ID, Name: "Naan", Qty: 4, UnitPrice: d("25.00"), Subtotal: d("100.00"), TaxAmount: d("16.00")},
	}
	require.NoError(t, repo.ReplaceOrderItems(context.Background(), created.ID, replacement))

	found, err := repo.FindOrder(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Len(t, found.Items, 2)
}

func TestUpdateTableStatus(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	table := &models.DiningTable{ID: uuid.New(), BranchID: uuid.New(), Label: "T1", Seats: 4, Status: enums.TableStatusAvailable}
	require.NoError(t, db.Create(table).Error)

	require.NoError(t, repo.UpdateTableStatus(context.Background(), table.ID, enums.TableStatusOccupied))

	found, err := repo.FindDiningTable(context.Background(), table.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TableStatusOccupied, found.Status)
}
