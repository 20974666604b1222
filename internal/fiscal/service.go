// Package fiscal submits paid invoices to the provincial revenue authority.
// Submission is asynchronous with bounded retries; invoice uuids act as the
// idempotency key so a retried submission never double-reports a sale.
package fiscal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tillworks/tillpoint/pkg/config"
	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/logger"
	"github.com/tillworks/tillpoint/pkg/metrics"
	"github.com/tillworks/tillpoint/pkg/outbox"
	"github.com/tillworks/tillpoint/pkg/pra"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type submitter interface {
	SubmitInvoice(ctx context.Context, req pra.InvoiceRequest) (*pra.SubmitResult, error)
}

// Service drives the fiscal submission lifecycle of invoices.
type Service interface {
	Submit(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	ProcessQueue(ctx context.Context) (int, error)
	Retry(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	RetryAll(ctx context.Context, branchID uuid.UUID) (int, error)
	Status(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	StatusCounts(ctx context.Context) (map[enums.FiscalStatus]int64, error)
}

// SubmissionEvent is the payload emitted when a submission reaches a
// terminal outcome.
type SubmissionEvent struct {
	InvoiceID    uuid.UUID          `json:"invoice_id"`
	BranchID     uuid.UUID          `json:"branch_id"`
	FiscalStatus enums.FiscalStatus `json:"fiscal_status"`
	FiscalNumber string             `json:"fiscal_number,omitempty"`
	Attempt      int                `json:"attempt"`
	Error        string             `json:"error,omitempty"`
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	client  submitter
	cfg     config.FiscalConfig
	logger  *logger.Logger
	metrics *metrics.FiscalMetrics
}

// NewService builds the fiscal submission service.
func NewService(
	repo Repository,
	tx txRunner,
	outboxSvc outboxPublisher,
	client submitter,
	cfg config.FiscalConfig,
	logg *logger.Logger,
	fiscalMetrics *metrics.FiscalMetrics,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("fiscal repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if client == nil {
		return nil, fmt.Errorf("pra client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outboxSvc,
		client:  client,
		cfg:     cfg,
		logger:  logg,
		metrics: fiscalMetrics,
	}, nil
}

// Submit runs one submission attempt for the invoice. The claim is committed
// before the external call so a crash mid-call leaves a submitted row that
// the stale claim job fails for operator review instead of a double
// submission.
func (s *service) Submit(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	if invoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}

	invoice, err := s.loadInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	switch invoice.FiscalStatus {
	case enums.FiscalStatusSuccess:
		// Already reported. The cached fiscal number is the answer.
		return invoice, nil
	case enums.FiscalStatusNotRequired:
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "invoice does not require fiscal submission")
	case enums.FiscalStatusPending:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "invoice is not paid yet")
	case enums.FiscalStatusFailed:
		if invoice.FiscalAttempts >= s.cfg.MaxAttempts {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "attempt limit reached, a manual retry is required")
		}
	}

	branch, err := s.repo.FindBranch(ctx, invoice.BranchID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load branch")
	}
	if !branch.FiscalEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "branch is not fiscal-enabled")
	}

	claimed, err := s.repo.ClaimForSubmission(ctx, invoice.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim invoice")
	}
	if !claimed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "invoice is already being submitted")
	}

	return s.performSubmission(ctx, invoice, branch)
}

// ProcessQueue claims and submits one batch of queued invoices. Returns the
// number of invoices that reached success.
func (s *service) ProcessQueue(ctx context.Context) (int, error) {
	queued, err := s.repo.ListQueued(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list queued invoices")
	}

	succeeded := 0
	var errs error
	for i := range queued {
		if ctx.Err() != nil {
			return succeeded, ctx.Err()
		}
		invoice, err := s.Submit(ctx, queued[i].ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("invoice %s: %w", queued[i].ID, err))
			continue
		}
		if invoice.FiscalStatus == enums.FiscalStatusSuccess {
			succeeded++
		}
	}
	return succeeded, errs
}

// Retry requeues a failed invoice and submits immediately. The attempt
// counter is never reset, so once the ceiling is reached the invoice stays
// failed until the configured maximum is raised.
func (s *service) Retry(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	if invoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}

	invoice, err := s.loadInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.FiscalStatus == enums.FiscalStatusSuccess {
		return invoice, nil
	}
	if invoice.FiscalStatus != enums.FiscalStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only failed submissions can be retried")
	}
	if invoice.FiscalAttempts >= s.cfg.MaxAttempts {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "attempt limit reached, raise the attempt ceiling to retry")
	}

	if err := s.repo.ResetForRetry(ctx, invoice.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue invoice")
	}
	return s.Submit(ctx, invoiceID)
}

// RetryAll requeues and submits every failed invoice, optionally scoped to a
// branch. Returns how many reached success.
func (s *service) RetryAll(ctx context.Context, branchID uuid.UUID) (int, error) {
	failed, err := s.repo.ListFailed(ctx, branchID, 0)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list failed invoices")
	}

	succeeded := 0
	var errs error
	for i := range failed {
		if ctx.Err() != nil {
			return succeeded, ctx.Err()
		}
		invoice, err := s.Retry(ctx, failed[i].ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("invoice %s: %w", failed[i].ID, err))
			continue
		}
		if invoice.FiscalStatus == enums.FiscalStatusSuccess {
			succeeded++
		}
	}
	return succeeded, errs
}

func (s *service) Status(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	if invoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	return s.loadInvoice(ctx, invoiceID)
}

func (s *service) StatusCounts(ctx context.Context) (map[enums.FiscalStatus]int64, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count fiscal statuses")
	}
	return counts, nil
}

func (s *service) loadInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.repo.FindInvoice(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return invoice, nil
}

func (s *service) performSubmission(ctx context.Context, invoice *models.Invoice, branch *models.Branch) (*models.Invoice, error) {
	req := buildRequest(invoice, branch)
	attempt := invoice.FiscalAttempts + 1

	callCtx := ctx
	if s.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.SubmitTimeout)
		defer cancel()
	}

	result, callErr := s.client.SubmitInvoice(callCtx, req)
	if callErr != nil {
		return s.recordFailure(ctx, invoice, req, attempt, callErr)
	}
	return s.recordSuccess(ctx, invoice, req, attempt, result)
}

func (s *service) recordSuccess(ctx context.Context, invoice *models.Invoice, req pra.InvoiceRequest, attempt int, result *pra.SubmitResult) (*models.Invoice, error) {
	submittedAt := time.Now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.MarkSuccess(ctx, invoice.ID, result.FiscalNumber, result.QRCode, submittedAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark success")
		}
		if err := repo.AppendLog(ctx, s.logEntry(invoice.ID, attempt, req, result.RawResponse, models.FiscalOutcomeSuccess, nil)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append submission log")
		}
		return s.outbox.Emit(ctx, tx, s.submissionEvent(enums.EventFiscalSucceeded, invoice, SubmissionEvent{
			InvoiceID:    invoice.ID,
			BranchID:     invoice.BranchID,
			FiscalStatus: enums.FiscalStatusSuccess,
			FiscalNumber: result.FiscalNumber,
			Attempt:      attempt,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncSubmission("success")
	fields := s.logger.WithFields(ctx, map[string]any{
		"invoice_id":    invoice.ID.String(),
		"fiscal_number": result.FiscalNumber,
		"attempt":       attempt,
	})
	s.logger.Info(fields, "fiscal submission succeeded")

	invoice.FiscalStatus = enums.FiscalStatusSuccess
	invoice.FiscalAttempts = attempt
	invoice.FiscalNumber = &result.FiscalNumber
	invoice.FiscalQRCode = &result.QRCode
	invoice.SubmittedAt = &submittedAt
	return invoice, nil
}

// recordFailure parks the invoice as failed. Failed submissions never
// re-enter the queue on their own; only an operator retry requeues them.
func (s *service) recordFailure(ctx context.Context, invoice *models.Invoice, req pra.InvoiceRequest, attempt int, callErr error) (*models.Invoice, error) {
	errMsg := callErr.Error()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.MarkFailure(ctx, invoice.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark failure")
		}
		if err := repo.AppendLog(ctx, s.logEntry(invoice.ID, attempt, req, nil, models.FiscalOutcomeFailed, &errMsg)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append submission log")
		}
		return s.outbox.Emit(ctx, tx, s.submissionEvent(enums.EventFiscalFailed, invoice, SubmissionEvent{
			InvoiceID:    invoice.ID,
			BranchID:     invoice.BranchID,
			FiscalStatus: enums.FiscalStatusFailed,
			Attempt:      attempt,
			Error:        errMsg,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncSubmission("failed")
	fields := s.logger.WithFields(ctx, map[string]any{
		"invoice_id": invoice.ID.String(),
		"attempt":    attempt,
	})
	s.logger.Error(fields, "fiscal submission failed", callErr)

	invoice.FiscalStatus = enums.FiscalStatusFailed
	invoice.FiscalAttempts = attempt
	return invoice, callErr
}

func (s *service) logEntry(invoiceID uuid.UUID, attempt int, req pra.InvoiceRequest, response json.RawMessage, outcome string, errMsg *string) *models.FiscalSubmissionLog {
	rawReq, _ := json.Marshal(req)
	return &models.FiscalSubmissionLog{
		InvoiceID: invoiceID,
		Attempt:   attempt,
		Request:   rawReq,
		Response:  response,
		Outcome:   outcome,
		Error:     errMsg,
	}
}

func (s *service) submissionEvent(eventType enums.OutboxEventType, invoice *models.Invoice, data SubmissionEvent) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoice.ID,
		Version:       1,
		Data:          data,
	}
}

// buildRequest maps the invoice snapshot to the authority's wire format. The
// usin is the invoice uuid, which makes replays of the same invoice
// recognizable on the authority side.
func buildRequest(invoice *models.Invoice, branch *models.Branch) pra.InvoiceRequest {
	items := make([]pra.InvoiceItem, 0, len(invoice.Lines))
	for _, line := range invoice.Lines {
		items = append(items, pra.InvoiceItem{
			ItemName:    line.Name,
			Quantity:    line.Qty,
			SaleValue:   line.Subtotal,
			TaxCharged:  line.TaxAmount,
			TotalAmount: line.Subtotal.Add(line.TaxAmount),
		})
	}

	var posID, ntn string
	if branch.PRAPOSID != nil {
		posID = *branch.PRAPOSID
	}
	if branch.PRANTN != nil {
		ntn = *branch.PRANTN
	}

	return pra.InvoiceRequest{
		POSID:           posID,
		NTN:             ntn,
		USIN:            invoice.ID.String(),
		DateTime:        invoice.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		TotalSaleValue:  invoice.Subtotal,
		TotalTaxCharged: invoice.TaxAmount,
		Discount:        invoice.DiscountAmount,
		TotalBillAmount: invoice.Total,
		PaymentMode:     paymentMode(invoice.Payments),
		Items:           items,
	}
}

// paymentMode reports the dominant settlement method using PRA's numeric
// mode codes.
func paymentMode(payments []models.Payment) string {
	totals := map[enums.PaymentMethod]decimal.Decimal{}
	for _, p := range payments {
		if p.IsRefund() {
			continue
		}
		totals[p.Method] = totals[p.Method].Add(p.Amount)
	}

	best := enums.PaymentMethodCash
	bestAmount := decimal.Zero
	for method, amount := range totals {
		if amount.GreaterThan(bestAmount) {
			best = method
			bestAmount = amount
		}
	}

	switch best {
	case enums.PaymentMethodCard:
		return "2"
	case enums.PaymentMethodMobileWallet:
		return "3"
	default:
		return "1"
	}
}
