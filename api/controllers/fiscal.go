package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tillworks/tillpoint/api/responses"
	"github.com/tillworks/tillpoint/internal/fiscal"
	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
	"github.com/tillworks/tillpoint/pkg/logger"
)

type fiscalStatusResponse struct {
	InvoiceID     uuid.UUID          `json:"invoice_id"`
	InvoiceNumber int64              `json:"invoice_number"`
	FiscalStatus  enums.FiscalStatus `json:"fiscal_status"`
	Attempts      int                `json:"attempts"`
	FiscalNumber  *string            `json:"fiscal_number,omitempty"`
	QRCode        *string            `json:"qr_code,omitempty"`
	SubmittedAt   *time.Time         `json:"submitted_at,omitempty"`
}

func fiscalStatusPayload(invoice *models.Invoice) fiscalStatusResponse {
	return fiscalStatusResponse{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		FiscalStatus:  invoice.FiscalStatus,
		Attempts:      invoice.FiscalAttempts,
		FiscalNumber:  invoice.FiscalNumber,
		QRCode:        invoice.FiscalQRCode,
		SubmittedAt:   invoice.SubmittedAt,
	}
}

// FiscalStatus returns the submission state of one invoice.
func FiscalStatus(svc fiscal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, err := parseUUIDParam(r, "invoiceId", "invoice id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.Status(r.Context(), invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, fiscalStatusPayload(invoice))
	}
}

// FiscalRetry requeues a failed invoice and submits it again, as long as
// the attempt ceiling has not been reached.
func FiscalRetry(svc fiscal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, err := parseUUIDParam(r, "invoiceId", "invoice id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.Retry(r.Context(), invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, fiscalStatusPayload(invoice))
	}
}

// FiscalRetryAll retries every failed invoice of the caller's branch.
func FiscalRetryAll(svc fiscal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branchID, err := branchFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		retried, err := svc.RetryAll(r.Context(), branchID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"retried": retried})
	}
}

// FiscalSummary returns invoice counts per fiscal status.
func FiscalSummary(svc fiscal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := svc.StatusCounts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary := map[string]int64{}
		for status, count := range counts {
			summary[string(status)] = count
		}
		responses.WriteSuccess(w, summary)
	}
}
