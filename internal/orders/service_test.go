package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tillworks/tillpoint/pkg/config"
	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/outbox"
	"github.com/tillworks/tillpoint/pkg/security"
)

type stubOrdersRepo struct {
	orders       map[uuid.UUID]*models.Order
	branch       *models.Branch
	tables       map[uuid.UUID]*models.DiningTable
	statusExtras map[uuid.UUID]map[string]any
}

func newStubOrdersRepo(branch *models.Branch) *stubOrdersRepo {
	return &stubOrdersRepo{
		orders:       map[uuid.UUID]*models.Order{},
		branch:       branch,
		tables:       map[uuid.UUID]*models.DiningTable{},
		statusExtras: map[uuid.UUID]map[string]any{},
	}
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubOrdersRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrdersRepo) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return order, nil
}

func (s *stubOrdersRepo) NextOrderNumber(ctx context.Context, branchID uuid.UUID) (int64, error) {
	return int64(len(s.orders)) + 1, nil
}

func (s *stubOrdersRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, extra map[string]any) error {
	order, ok := s.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	order.Status = status
	s.statusExtras[id] = extra
	return nil
}

func (s *stubOrdersRepo) UpdateOrderTotals(ctx context.Context, order *models.Order) error {
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrdersRepo) ReplaceOrderItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error {
	order, ok := s.orders[orderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	order.Items = items
	return nil
}

func (s *stubOrdersRepo) ListOrders(ctx context.Context, query ListOrdersQuery) ([]models.Order, error) {
	out := make([]models.Order, 0, len(s.orders))
	for _, order := range s.orders {
		out = append(out, *order)
	}
	return out, nil
}

func (s *stubOrdersRepo) FindBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	if s.branch == nil || s.branch.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.branch, nil
}

func (s *stubOrdersRepo) FindDiningTable(ctx context.Context, id uuid.UUID) (*models.DiningTable, error) {
	table, ok := s.tables[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return table, nil
}

func (s *stubOrdersRepo) UpdateTableStatus(ctx context.Context, id uuid.UUID, status enums.TableStatus) error {
	table, ok := s.tables[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	table.Status = status
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubOutbox struct {
	emitted []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.emitted = append(s.emitted, event)
	return nil
}

func (s *stubOutbox) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	for _, e := range s.emitted {
		if e.EventType == event.EventType && e.AggregateID == event.AggregateID {
			return nil
		}
	}
	s.emitted = append(s.emitted, event)
	return nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testBranch() *models.Branch {
	return &models.Branch{
		ID:      uuid.New(),
		Name:    "Gulberg",
		TaxRate: d("0.16"),
	}
}

func buildTestService(t *testing.T, branch *models.Branch) (Service, *stubOrdersRepo, *stubOutbox) {
	t.Helper()
	repo := newStubOrdersRepo(branch)
	events := &stubOutbox{}
	svc, err := NewService(repo, stubTxRunner{}, events)
	require.NoError(t, err)
	return svc, repo, events
}

func createInput(branch *models.Branch) CreateOrderInput {
	return CreateOrderInput{
		ID:       uuid.New(),
		BranchID: branch.ID,
		DeviceID: "till-01",
		Type:     enums.OrderTypeTakeaway,
		Items: []ItemInput{
			{ID: uuid.New(), Name: "Karahi", Qty: 1, UnitPrice: d("250.00")},
		},
		PlacedAt: time.Now().UTC(),
	}
}

func TestCreateOrderComputesTotals(t *testing.T) {
	branch := testBranch()
	svc, repo, events := buildTestService(t, branch)

	result, err := svc.CreateOrder(context.Background(), createInput(branch))
	require.NoError(t, err)
	require.False(t, result.Replayed)

	order := result.Order
	assert.Equal(t, int64(1), order.OrderNumber)
	assert.Equal(t, enums.OrderStatusOpen, order.Status)
	assert.True(t, order.Subtotal.Equal(d("250.00")))
	assert.True(t, order.TaxAmount.Equal(d("40.00")))
	assert.True(t, order.Total.Equal(d("290.00")))

	require.Len(t, repo.orders, 1)
	require.Len(t, events.emitted, 1)
	assert.Equal(t, enums.EventOrderCreated, events.emitted[0].EventType)
}

func TestCreateOrderReplayReturnsExisting(t *testing.T) {
	branch := testBranch()
	svc, _, events := buildTestService(t, branch)

	input := createInput(branch)
	first, err := svc.CreateOrder(context.Background(), input)
	require.NoError(t, err)

	second, err := svc.CreateOrder(context.Background(), input)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.OrderNumber, second.Order.OrderNumber)
	assert.Len(t, events.emitted, 1)
}

func TestCreateOrderOccupiesTable(t *testing.T) {
	branch := testBranch()
	svc, repo, _ := buildTestService(t, branch)

	tableID := uuid.New()
	repo.tables[tableID] = &models.DiningTable{ID: tableID, BranchID: branch.ID, Status: enums.TableStatusAvailable}

	input := createInput(branch)
	input.Type = enums.OrderTypeDineIn
	input.TableID = &tableID

	_, err := svc.CreateOrder(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, enums.TableStatusOccupied, repo.tables[tableID].Status)
}

func TestCreateOrderValidation(t *testing.T) {
	branch := testBranch()
	svc, _, _ := buildTestService(t, branch)

	input := createInput(branch)
	input.Items = nil

	_, err := svc.CreateOrder(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestTransitionLifecycle(t *testing.T) {
	branch := testBranch()
	svc, _, _ := buildTestService(t, branch)

	result, err := svc.CreateOrder(context.Background(), createInput(branch))
	require.NoError(t, err)
	orderID := result.Order.ID

	updated, err := svc.Transition(context.Background(), TransitionInput{OrderID: orderID, Target: enums.OrderStatusSentToKitchen})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusSentToKitchen, updated.Status)

	_, err = svc.Transition(context.Background(), TransitionInput{OrderID: orderID, Target: enums.OrderStatusCompleted})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestTransitionRejectsCancelAndVoidTargets(t *testing.T) {
	branch := testBranch()
	svc, _, _ := buildTestService(t, branch)

	_, err := svc.Transition(context.Background(), TransitionInput{OrderID: uuid.New(), Target: enums.OrderStatusCanceled})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = svc.Transition(context.Background(), TransitionInput{OrderID: uuid.New(), Target: enums.OrderStatusVoided})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestCompleteReleasesTableAndEmits(t *testing.T) {
	branch := testBranch()
	svc, repo, events := buildTestService(t, branch)

	tableID := uuid.New()
	repo.tables[tableID] = &models.DiningTable{ID: tableID, BranchID: branch.ID, Status: enums.TableStatusAvailable}

	input := createInput(branch)
	input.Type = enums.OrderTypeDineIn
	input.TableID = &tableID
	result, err := svc.CreateOrder(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), TransitionInput{OrderID: result.Order.ID, Target: enums.OrderStatusCompleted})
	require.NoError(t, err)

	assert.Equal(t, enums.TableStatusAvailable, repo.tables[tableID].Status)

	var sawCompleted bool
	for _, e := range events.emitted {
		if e.EventType == enums.EventOrderCompleted {
			sawCompleted = true
		}
	}
	assert.True(t, sawCompleted)
}

func TestCancelRequiresReason(t *testing.T) {
	branch := testBranch()
	svc, _, _ := buildTestService(t, branch)

	_, err := svc.Cancel(context.Background(), CancelInput{OrderID: uuid.New()})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestCancelStoresReasonAndEmits(t *testing.T) {
	branch := testBranch()
	svc, repo, events := buildTestService(t, branch)

	result, err := svc.CreateOrder(context.Background(), createInput(branch))
	require.NoError(t, err)

	updated, err := svc.Cancel(context.Background(), CancelInput{OrderID: result.Order.ID, Reason: "customer left"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCanceled, updated.Status)

	extras := repo.statusExtras[result.Order.ID]
	assert.Equal(t, "customer left", extras["cancel_reason"])

	var sawCanceled bool
	for _, e := range events.emitted {
		if e.EventType == enums.EventOrderCanceled {
			sawCanceled = true
		}
	}
	assert.True(t, sawCanceled)
}

func TestVoidVerifiesManagerPin(t *testing.T) {
	branch := testBranch()
	hash, err := security.HashPin("4821", config.PinConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	})
	require.NoError(t, err)
	branch.ManagerPINHash = &hash

	svc, _, _ := buildTestService(t, branch)

	result, err := svc.CreateOrder(context.Background(), createInput(branch))
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), TransitionInput{OrderID: result.Order.ID, Target: enums.OrderStatusCompleted})
	require.NoError(t, err)

	_, err = svc.Void(context.Background(), VoidInput{OrderID: result.Order.ID, ManagerPIN: "0000"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())

	voided, err := svc.Void(context.Background(), VoidInput{OrderID: result.Order.ID, ManagerPIN: "4821"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusVoided, voided.Status)
}

func TestVoidFromPrePaymentReleasesTable(t *testing.T) {
	branch := testBranch()
	hash, err := security.HashPin("4821", config.PinConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	})
	require.NoError(t, err)
	branch.ManagerPINHash = &hash

	svc, repo, _ := buildTestService(t, branch)

	tableID := uuid.New()
	repo.tables[tableID] = &models.DiningTable{ID: tableID, BranchID: branch.ID, Status: enums.TableStatusAvailable}

	input := createInput(branch)
	input.Type = enums.OrderTypeDineIn
	input.TableID = &tableID
	result, err := svc.CreateOrder(context.Background(), input)
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), TransitionInput{OrderID: result.Order.ID, Target: enums.OrderStatusSentToKitchen})
	require.NoError(t, err)
	require.Equal(t, enums.TableStatusOccupied, repo.tables[tableID].Status)

	voided, err := svc.Void(context.Background(), VoidInput{OrderID: result.Order.ID, ManagerPIN: "4821"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusVoided, voided.Status)
	assert.Equal(t, enums.TableStatusAvailable, repo.tables[tableID].Status)
}

func TestVoidRejectedOnceCanceled(t *testing.T) {
	branch := testBranch()
	svc, _, _ := buildTestService(t, branch)

	result, err := svc.CreateOrder(context.Background(), createInput(branch))
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), CancelInput{OrderID: result.Order.ID, Reason: "customer left"})
	require.NoError(t, err)

	_, err = svc.Void(context.Background(), VoidInput{OrderID: result.Order.ID, ManagerPIN: "4821"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestUpdateItemsRecomputesTotals(t *testing.T) {
	branch := testBranch()
	svc, _, _ := buildTestService(t, branch)

	result, err := svc.CreateOrder(context.Background(), createInput(branch))
	require.NoError(t, err)

	updated, err := svc.UpdateItems(context.Background(), UpdateItemsInput{
		OrderID: result.Order.ID,
		Items: []ItemInput{
			{ID: uuid.New(), Name: "Karahi", Qty: 2, UnitPrice: d("250.00")},
			{ID: uuid.New(), Name: "Naan", Qty: 4, UnitPrice: d("25.00")},
		},
	})
	require.NoError(t, err)

	assert.True(t, updated.Subtotal.Equal(d("600.00")), "subtotal %s", updated.Subtotal)
	assert.True(t, updated.TaxAmount.Equal(d("96.00")))
	assert.True(t, updated.Total.Equal(d("696.00")))
}

func TestUpdateItemsBlockedAfterKitchen(t *testing.T) {
	branch := testBranch()
	svc, _, _ := buildTestService(t, branch)

	result, err := svc.CreateOrder(context.Background(), createInput(branch))
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), TransitionInput{OrderID: result.Order.ID, Target: enums.OrderStatusSentToKitchen})
	require.NoError(t, err)

	_, err = svc.UpdateItems(context.Background(), UpdateItemsInput{
		OrderID: result.Order.ID,
		Items:   []ItemInput{{ID: uuid.New(), Name: "Naan", Qty: 1, UnitPrice: d("25.00")}},
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}
