package invoices

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

type stubInvoicesRepo struct {
	invoices map[uuid.UUID]*models.Invoice
	payments map[uuid.UUID]*models.Payment
	orders   map[uuid.UUID]*models.Order
	branch   *models.Branch
}

func newStubInvoicesRepo(branch *models.Branch) *stubInvoicesRepo {
	return &stubInvoicesRepo{
		invoices: map[uuid.UUID]*models.Invoice{},
		payments: map[uuid.UUID]*models.Payment{},
		orders:   map[uuid.UUID]*models.Order{},
		branch:   branch,
	}
}

func (s *stubInvoicesRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubInvoicesRepo) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	s.invoices[invoice.ID] = invoice
	return nil
}

func (s *stubInvoicesRepo) FindInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	invoice, ok := s.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return invoice, nil
}

func (s *stubInvoicesRepo) FindLiveInvoiceByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	for _, invoice := range s.invoices {
		if invoice.OrderID == orderID && invoice.Status != enums.InvoiceStatusVoid {
			return invoice, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubInvoicesRepo) NextInvoiceNumber(ctx context.Context, branchID uuid.UUID) (int64, error) {
	return int64(len(s.invoices)) + 1, nil
}

func (s *stubInvoicesRepo) UpdateInvoice(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	invoice, ok := s.invoices[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["status"]; ok {
		invoice.Status = v.(enums.InvoiceStatus)
	}
	if v, ok := updates["fiscal_status"]; ok {
		invoice.FiscalStatus = v.(enums.FiscalStatus)
	}
	if v, ok := updates["paid_amount"]; ok {
		invoice.PaidAmount = v.(decimal.Decimal)
	}
	return nil
}

func (s *stubInvoicesRepo) ListInvoices(ctx context.Context, query ListInvoicesQuery) ([]models.Invoice, error) {
	out := make([]models.Invoice, 0, len(s.invoices))
	for _, invoice := range s.invoices {
		out = append(out, *invoice)
	}
	return out, nil
}

func (s *stubInvoicesRepo) CreatePayment(ctx context.Context, payment *models.Payment) error {
	s.payments[payment.ID] = payment
	return nil
}

func (s *stubInvoicesRepo) FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, ok := s.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return payment, nil
}

func (s *stubInvoicesRepo) SumPayments(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range s.payments {
		if p.InvoiceID == invoiceID {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (s *stubInvoicesRepo) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return order, nil
}

func (s *stubInvoicesRepo) FindBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	if s.branch == nil || s.branch.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.branch, nil
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

func (s *stubOutbox) has(eventType enums.OutboxEventType) bool {
	for _, e := range s.emitted {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fiscalBranch() *models.Branch {
	return &models.Branch{
		ID:            uuid.New(),
		Name:          "Gulberg",
		TaxRate:       d("0.16"),
		FiscalEnabled: true,
	}
}

func seedOrder(repo *stubInvoicesRepo, branch *models.Branch) *models.Order {
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: 7,
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
	repo.orders[order.ID] = order
	return order
}

func buildTestService(t *testing.T, branch *models.Branch) (Service, *stubInvoicesRepo, *stubOutbox) {
	t.Helper()
	repo := newStubInvoicesRepo(branch)
	events := &stubOutbox{}
	svc, err := NewService(repo, stubTxRunner{}, events)
	require.NoError(t, err)
	return svc, repo, events
}

func TestCreateInvoiceCopiesOrderSnapshot(t *testing.T) {
	branch := fiscalBranch()
	svc, repo, events := buildTestService(t, branch)
	order := seedOrder(repo, branch)

	result, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{ID: uuid.New(), OrderID: order.ID})
	require.NoError(t, err)
	require.False(t, result.Replayed)

	invoice := result.Invoice
	assert.Equal(t, int64(1), invoice.InvoiceNumber)
	assert.Equal(t, enums.InvoiceStatusPending, invoice.Status)
	assert.Equal(t, enums.FiscalStatusPending, invoice.FiscalStatus)
	assert.True(t, invoice.Total.Equal(d("290.00")))
	require.Len(t, invoice.Lines, 1)
	assert.Equal(t, "Karahi", invoice.Lines[0].Name)
	assert.True(t, events.has(enums.EventInvoiceIssued))
}

func TestCreateInvoiceNotRequiredWhenFiscalDisabled(t *testing.T) {
	branch := fiscalBranch()
	branch.FiscalEnabled = false
	svc, repo, _ := buildTestService(t, branch)
	order := seedOrder(repo, branch)

	result, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{ID: uuid.New(), OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.FiscalStatusNotRequired, result.Invoice.FiscalStatus)
}

func TestCreateInvoiceReplay(t *testing.T) {
	branch := fiscalBranch()
	svc, repo, events := buildTestService(t, branch)
	order := seedOrder(repo, branch)

	input := CreateInvoiceInput{ID: uuid.New(), OrderID: order.ID}
	first, err := svc.CreateInvoice(context.Background(), input)
	require.NoError(t, err)

	second, err := svc.CreateInvoice(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Invoice.InvoiceNumber, second.Invoice.InvoiceNumber)
	assert.Len(t, events.emitted, 1)
}

func TestCreateInvoiceRejectsSecondLiveInvoice(t *testing.T) {
	branch := fiscalBranch()
	svc, repo, _ := buildTestService(t, branch)
	order := seedOrder(repo, branch)

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{ID: uuid.New(), OrderID: order.ID})
	require.NoError(t, err)

	_, err = svc.CreateInvoice(context.Background(), CreateInvoiceInput{ID: uuid.New(), OrderID: order.ID})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestCreateInvoiceAllowsReissueAfterVoid(t *testing.T) {
	branch := fiscalBranch()
	svc, repo, _ := buildTestService(t, branch)
	order := seedOrder(repo, branch)

	first, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{ID: uuid.New(), OrderID: order.ID})
	require.NoError(t, err)
	first.Invoice.Status = enums.InvoiceStatusVoid

	_, err = svc.CreateInvoice(context.Background(), CreateInvoiceInput{ID: uuid.New(), OrderID: order.ID})
	require.NoError(t, err)
}

func TestCreateInvoiceRejectsCanceledOrder(t *testing.T) {
	branch := fiscalBranch()
	svc, repo, _ := buildTestService(t, branch)
	order := seedOrder(repo, branch)
	order.Status = enums.OrderStatusCanceled

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{ID: uuid.New(), OrderID: order.ID})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func issueInvoice(t *testing.T, svc Service, repo *stubInvoicesRepo, branch *models.Branch) *models.Invoice {
	t.Helper()
	order := seedOrder(repo, branch)
	result, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{ID: uuid.New(), OrderID: order.ID})
	require.NoError(t, err)
	return result.Invoice
}

func TestAddPaymentPartialThenPaid(t *testing.T) {
	branch := fiscalBranch()
	svc, repo, events := buildTestService(t, branch)
	invoice := issueInvoice(t, svc, repo, branch)

	partial, err := svc.AddPayment(context.Background(), AddPaymentInput{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		Method:    enums.PaymentMethodCard,
		Amount:    d("100.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusPartial, partial.Invoice.Status)
	assert.True(t, partial.Invoice.PaidAmount.Equal(d("100.00")))

	tendered := d("200.00")
	final, err := svc.AddPayment(context.Background(), AddPaymentInput{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		Method:    enums.PaymentMethodCash,
		Amount:    d("190.00"),
		Tendered:  &tendered,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusPaid, final.Invoice.Status)
	assert.True(t, final.Invoice.PaidAmount.Equal(d("290.00")))
	assert.Equal(t, enums.FiscalStatusQueued, final.Invoice.FiscalStatus)
	require.NotNil(t, final.Payment.Change)
	assert.True(t, final.Payment.Change.Equal(d("10.00")))

	assert.True(t, events.has(enums.EventInvoicePaid))
	assert.True(t, events.has(enums.EventPaymentRecorded))
}

func TestAddPaymentReplayReturnsExisting(t *testing.T) {
	branch := fiscalBranch()
	svc, repo, _ := buildTestService(t, branch)
	invoice := issueInvoice(t, svc, repo, branch)

	input := AddPaymentInput{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		Method:    enums.PaymentMethodCard,
		Amount:    d("290.00"),
	}
	first, err := svc.AddPayment(context.Background(), input)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := svc.AddPayment(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.True(t, second.Invoice.PaidAmount.Equal(d("290.00")))
	assert.Len(t, repo.payments, 1)
}

func TestAddPaymentCashRequiresSufficientTender(t *testing.T) {
	branch := fiscalBranch()
	svc, repo, _ := buildTestService(t, branch)
	invoice := issueInvoice(t, svc, repo, branch)

	tendered := d("100.00")
	_, err := svc.AddPayment(context.Background(), AddPaymentInput{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		Method:    enums.PaymentMethodCash,
		Amount:    d("290.00"),
		Tendered:  &tendered,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestAddPaymentCannotExceedRemainingBalance(t *testing.T) {
	branch := fiscalBranch()
	svc, repo, _ := buildTestService(t, branch)
	invoice := issueInvoice(t, svc, repo, branch)

	_, err := svc.AddPayment(context.Background(), AddPaymentInput{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		Method:    enums.PaymentMethodCash,
		Amount:    d("500.00"),
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeBusinessRule, pkgerrors.As(err).Code())
	assert.Empty(t, repo.payments)

	_, err = svc.AddPayment(context.Background(), AddPaymentInput{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		Method:    enums.PaymentMethodCard,
		Amount:    d("200.00"),
	})
	require.NoError(t, err)

	_, err = svc.AddPayment(context.Background(), AddPaymentInput{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		Method:    enums.PaymentMethodCard,
		Amount:    d("100.00"),
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeBusinessRule, pkgerrors.As(err).Code())

	reloaded, err := svc.GetInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.PaidAmount.Equal(d("200.00")))
	assert.Equal(t, enums.InvoiceStatusPartial, reloaded.Status)
}

func TestRefundFlipsToRefunded(t *testing.T) {
	branch := fiscalBranch()
	svc, repo, events := buildTestService(t, branch)
	invoice := issueInvoice(t, svc, repo, branch)

	paymentID := uuid.New()
	_, err := svc.AddPayment(context.Background(), AddPaymentInput{
		ID:        paymentID,
		InvoiceID: invoice.ID,
		Method:    enums.PaymentMethodCard,
		Amount:    d("290.00"),
	})
	require.NoError(t, err)

	result, err := svc.Refund(context.Background(), RefundInput{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		Amount:    d("290.00"),
		RefundOf:  &paymentID,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.InvoiceStatusRefunded, result.Invoice.Status)
	assert.True(t, result.Invoice.PaidAmount.IsZero())
	assert.True(t, result.Payment.IsRefund())
	assert.Equal(t, enums.PaymentMethodCard, result.Payment.Method)
	assert.True(t, events.has(enums.EventInvoiceRefunded))
}

func TestRefundCannotExceedPaid(t *testing.T) {
	branch := fiscalBranch()
	svc, repo, _ := buildTestService(t, branch)
	invoice := issueInvoice(t, svc, repo, branch)

	_, err := svc.AddPayment(context.Background(), AddPaymentInput{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		Method:    enums.PaymentMethodCard,
		Amount:    d("100.00"),
	})
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), RefundInput{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		Amount:    d("150.00"),
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeBusinessRule, pkgerrors.As(err).Code())
}

func TestVoidInvoiceRequiresZeroPaid(t *testing.T) {
	branch := fiscalBranch()
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
	invoice := issueInvoice(t, svc, repo, branch)

	_, err = svc.AddPayment(context.Background(), AddPaymentInput{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		Method:    enums.PaymentMethodCard,
		Amount:    d("100.00"),
	})
	require.NoError(t, err)

	_, err = svc.VoidInvoice(context.Background(), VoidInvoiceInput{InvoiceID: invoice.ID, ManagerPIN: "4821"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestVoidInvoiceWithManagerPin(t *testing.T) {
	branch := fiscalBranch()
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
	invoice := issueInvoice(t, svc, repo, branch)

	_, err = svc.VoidInvoice(context.Background(), VoidInvoiceInput{InvoiceID: invoice.ID, ManagerPIN: "0000"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())

	voided, err := svc.VoidInvoice(context.Background(), VoidInvoiceInput{InvoiceID: invoice.ID, ManagerPIN: "4821"})
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusVoid, voided.Status)
	assert.Equal(t, enums.FiscalStatusNotRequired, voided.FiscalStatus)
}
