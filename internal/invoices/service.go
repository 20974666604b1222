package invoices

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/tillworks/tillpoint/pkg/db"
	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/outbox"
	"github.com/tillworks/tillpoint/pkg/security"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines invoice and payment operations.
type Service interface {
	CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*CreateInvoiceResult, error)
	AddPayment(ctx context.Context, input AddPaymentInput) (*PaymentResult, error)
	Refund(ctx context.Context, input RefundInput) (*PaymentResult, error)
	VoidInvoice(ctx context.Context, input VoidInvoiceInput) (*models.Invoice, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	ListInvoices(ctx context.Context, query ListInvoicesQuery) ([]models.Invoice, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
}

// InvoiceEvent is the payload emitted for invoice lifecycle changes.
type InvoiceEvent struct {
	InvoiceID     uuid.UUID           `json:"invoice_id"`
	InvoiceNumber int64               `json:"invoice_number"`
	OrderID       uuid.UUID           `json:"order_id"`
	BranchID      uuid.UUID           `json:"branch_id"`
	Status        enums.InvoiceStatus `json:"status"`
	Total         string              `json:"total"`
	PaidAmount    string              `json:"paid_amount"`
}

// PaymentEvent is the payload emitted when a payment row is written.
type PaymentEvent struct {
	PaymentID uuid.UUID           `json:"payment_id"`
	InvoiceID uuid.UUID           `json:"invoice_id"`
	Method    enums.PaymentMethod `json:"method"`
	Amount    string              `json:"amount"`
}

// NewService builds an invoice service with the required dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("invoices repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outboxSvc}, nil
}

// CreateInvoice finalizes an order. Lines and totals are copied so later
// order edits cannot change the invoice, and the check-then-create runs in
// one transaction so an order can only carry one live invoice.
func (s *service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*CreateInvoiceResult, error) {
	if input.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var result CreateInvoiceResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindInvoice(ctx, input.ID)
		if err == nil {
			result.Invoice = existing
			result.Replayed = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup invoice")
		}

		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == enums.OrderStatusCanceled || order.Status == enums.OrderStatusVoided {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot invoice a canceled or voided order")
		}
		if len(order.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "cannot invoice an order with no items")
		}

		if live, err := repo.FindLiveInvoiceByOrder(ctx, order.ID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has an invoice").
				WithDetails(map[string]string{"invoice_id": live.ID.String()})
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing invoice")
		}

		branch, err := repo.FindBranch(ctx, order.BranchID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load branch")
		}

		number, err := repo.NextInvoiceNumber(ctx, order.BranchID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign invoice number")
		}

		fiscalStatus := enums.FiscalStatusNotRequired
		if branch.FiscalEnabled {
			fiscalStatus = enums.FiscalStatusPending
		}

		invoice := &models.Invoice{
			ID:             input.ID,
			InvoiceNumber:  number,
			OrderID:        order.ID,
			BranchID:       order.BranchID,
			Subtotal:       order.Subtotal,
			DiscountAmount: order.DiscountAmount,
			TaxAmount:      order.TaxAmount,
			Total:          order.Total,
			PaidAmount:     decimal.Zero,
			Status:         enums.InvoiceStatusPending,
			FiscalStatus:   fiscalStatus,
			CreatedOffline: input.CreatedOffline,
			Lines:          copyLines(input.ID, order.Items),
		}

		if err := repo.CreateInvoice(ctx, invoice); err != nil {
			if dbpkg.IsUniqueViolation(err, "idx_invoices_order_live") {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already has an invoice")
			}
			if dbpkg.IsUniqueViolation(err, "invoices_pkey") {
				replayed, findErr := repo.FindInvoice(ctx, input.ID)
				if findErr != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload invoice")
				}
				result.Invoice = replayed
				result.Replayed = true
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
		}

		result.Invoice = invoice
		return s.outbox.EmitIfNotExists(ctx, tx, s.invoiceEvent(enums.EventInvoiceIssued, invoice))
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// AddPayment writes an immutable payment row and recomputes paid_amount and
// invoice status in the same transaction. When the invoice flips to paid and
// the branch is fiscal-enabled, the invoice is queued for fiscal submission.
func (s *service) AddPayment(ctx context.Context, input AddPaymentInput) (*PaymentResult, error) {
	if input.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if input.InvoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	var result PaymentResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if existing, err := repo.FindPayment(ctx, input.ID); err == nil {
			invoice, findErr := repo.FindInvoice(ctx, existing.InvoiceID)
			if findErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload invoice")
			}
			result.Invoice = invoice
			result.Payment = existing
			result.Replayed = true
			return nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup payment")
		}

		invoice, err := repo.FindInvoice(ctx, input.InvoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
		}
		if invoice.Status == enums.InvoiceStatusVoid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot pay a void invoice")
		}
		if invoice.Status == enums.InvoiceStatusRefunded {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot pay a refunded invoice")
		}

		amount := input.Amount.Round(2)
		remaining := invoice.Total.Sub(invoice.PaidAmount)
		if amount.GreaterThan(remaining) {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "payment exceeds the remaining balance").
				WithDetails(map[string]string{"remaining": remaining.String()})
		}

		payment := &models.Payment{
			ID:             input.ID,
			InvoiceID:      invoice.ID,
			Method:         input.Method,
			Amount:         amount,
			CreatedOffline: input.CreatedOffline,
		}
		if input.Method == enums.PaymentMethodCash && input.Tendered != nil {
			tendered := input.Tendered.Round(2)
			if tendered.LessThan(payment.Amount) {
				return pkgerrors.New(pkgerrors.CodeValidation, "tendered cash cannot be less than the payment amount")
			}
			change := tendered.Sub(payment.Amount)
			payment.Tendered = &tendered
			payment.Change = &change
		}

		if err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}

		wasPaid := invoice.Status == enums.InvoiceStatusPaid
		if err := s.settle(ctx, repo, invoice); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, s.paymentEvent(payment)); err != nil {
			return err
		}
		if !wasPaid && invoice.Status == enums.InvoiceStatusPaid {
			if err := s.outbox.Emit(ctx, tx, s.invoiceEvent(enums.EventInvoicePaid, invoice)); err != nil {
				return err
			}
		}

		result.Invoice = invoice
		result.Payment = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Refund books a negative payment row against the invoice. Paid history is
// never edited; the refund is a new row.
func (s *service) Refund(ctx context.Context, input RefundInput) (*PaymentResult, error) {
	if input.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}
	if input.InvoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	var result PaymentResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if existing, err := repo.FindPayment(ctx, input.ID); err == nil {
			invoice, findErr := repo.FindInvoice(ctx, existing.InvoiceID)
			if findErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload invoice")
			}
			result.Invoice = invoice
			result.Payment = existing
			result.Replayed = true
			return nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup refund")
		}

		invoice, err := repo.FindInvoice(ctx, input.InvoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
		}
		if invoice.Status != enums.InvoiceStatusPaid && invoice.Status != enums.InvoiceStatusPartial {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only paid or partially paid invoices can be refunded")
		}

		amount := input.Amount.Round(2)
		if amount.GreaterThan(invoice.PaidAmount) {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "refund cannot exceed the amount paid")
		}

		method := enums.PaymentMethodCash
		if input.RefundOf != nil {
			original, err := repo.FindPayment(ctx, *input.RefundOf)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "original payment not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load original payment")
			}
			if original.InvoiceID != invoice.ID {
				return pkgerrors.New(pkgerrors.CodeValidation, "original payment belongs to a different invoice")
			}
			method = original.Method
		}

		refund := &models.Payment{
			ID:        input.ID,
			InvoiceID: invoice.ID,
			Method:    method,
			Amount:    amount.Neg(),
			RefundOf:  input.RefundOf,
		}
		if err := repo.CreatePayment(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
		}

		if err := s.settle(ctx, repo, invoice); err != nil {
			return err
		}

		if invoice.Status == enums.InvoiceStatusRefunded {
			if err := s.outbox.Emit(ctx, tx, s.invoiceEvent(enums.EventInvoiceRefunded, invoice)); err != nil {
				return err
			}
		}

		result.Invoice = invoice
		result.Payment = refund
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// VoidInvoice voids an invoice that carries no payments, freeing the order
// for reissue. Requires the branch manager PIN.
func (s *service) VoidInvoice(ctx context.Context, input VoidInvoiceInput) (*models.Invoice, error) {
	if input.InvoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	if input.ManagerPIN == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "manager pin required")
	}

	var voided *models.Invoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		invoice, err := repo.FindInvoice(ctx, input.InvoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
		}
		if invoice.Status == enums.InvoiceStatusVoid {
			voided = invoice
			return nil
		}
		if !invoice.PaidAmount.IsZero() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund all payments before voiding the invoice")
		}

		branch, err := repo.FindBranch(ctx, invoice.BranchID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load branch")
		}
		if branch.ManagerPINHash == nil {
			return pkgerrors.New(pkgerrors.CodeForbidden, "branch has no manager pin configured")
		}
		ok, err := security.VerifyPin(input.ManagerPIN, *branch.ManagerPINHash)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify manager pin")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeForbidden, "manager pin rejected")
		}

		updates := map[string]any{"status": enums.InvoiceStatusVoid}
		if invoice.FiscalStatus == enums.FiscalStatusPending || invoice.FiscalStatus == enums.FiscalStatusQueued {
			updates["fiscal_status"] = enums.FiscalStatusNotRequired
		}
		if err := repo.UpdateInvoice(ctx, invoice.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "void invoice")
		}
		invoice.Status = enums.InvoiceStatusVoid

		voided = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return voided, nil
}

func (s *service) GetInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	invoice, err := s.repo.FindInvoice(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return invoice, nil
}

func (s *service) ListInvoices(ctx context.Context, query ListInvoicesQuery) ([]models.Invoice, error) {
	if query.BranchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "branch id required")
	}
	rows, err := s.repo.ListInvoices(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}
	return rows, nil
}

// settle recomputes paid_amount from payment rows and flips the invoice
// status, queueing fiscal submission on the pending->paid edge.
func (s *service) settle(ctx context.Context, repo Repository, invoice *models.Invoice) error {
	paid, err := repo.SumPayments(ctx, invoice.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum payments")
	}

	status := invoice.Status
	switch {
	case paid.LessThanOrEqual(decimal.Zero) && (invoice.Status == enums.InvoiceStatusPaid || invoice.Status == enums.InvoiceStatusPartial):
		status = enums.InvoiceStatusRefunded
	case paid.GreaterThanOrEqual(invoice.Total):
		status = enums.InvoiceStatusPaid
	case paid.IsPositive():
		status = enums.InvoiceStatusPartial
	case paid.IsZero() && invoice.Status == enums.InvoiceStatusPending:
		status = enums.InvoiceStatusPending
	}

	updates := map[string]any{
		"paid_amount": paid,
		"status":      status,
	}
	if status == enums.InvoiceStatusPaid && invoice.FiscalStatus == enums.FiscalStatusPending {
		updates["fiscal_status"] = enums.FiscalStatusQueued
		invoice.FiscalStatus = enums.FiscalStatusQueued
	}

	if err := repo.UpdateInvoice(ctx, invoice.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle invoice")
	}

	invoice.PaidAmount = paid
	invoice.Status = status
	return nil
}

func (s *service) invoiceEvent(eventType enums.OutboxEventType, invoice *models.Invoice) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoice.ID,
		Version:       1,
		Data: InvoiceEvent{
			InvoiceID:     invoice.ID,
			InvoiceNumber: invoice.InvoiceNumber,
			OrderID:       invoice.OrderID,
			BranchID:      invoice.BranchID,
			Status:        invoice.Status,
			Total:         invoice.Total.String(),
			PaidAmount:    invoice.PaidAmount.String(),
		},
	}
}

func (s *service) paymentEvent(payment *models.Payment) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventPaymentRecorded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Version:       1,
		Data: PaymentEvent{
			PaymentID: payment.ID,
			InvoiceID: payment.InvoiceID,
			Method:    payment.Method,
			Amount:    payment.Amount.String(),
		},
	}
}

func copyLines(invoiceID uuid.UUID, items []models.OrderItem) []models.InvoiceLine {
	lines := make([]models.InvoiceLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, models.InvoiceLine{
			ID:        uuid.New(),
			InvoiceID: invoiceID,
			Name:      item.Name,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
			TaxAmount: item.TaxAmount,
		})
	}
	return lines
}
