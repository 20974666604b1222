package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillworks/tillpoint/api/responses"
	"github.com/tillworks/tillpoint/api/validators"
	"github.com/tillworks/tillpoint/internal/invoices"
	"github.com/tillworks/tillpoint/pkg/enums"
	"github.com/tillworks/tillpoint/pkg/logger"
	"github.com/tillworks/tillpoint/pkg/metrics"
)

type paymentSyncResponse struct {
	ID            uuid.UUID           `json:"id"`
	InvoiceID     uuid.UUID           `json:"invoice_id"`
	InvoiceNumber int64               `json:"invoice_number"`
	Method        enums.PaymentMethod `json:"method"`
	Amount        decimal.Decimal     `json:"amount"`
	Change        *decimal.Decimal    `json:"change,omitempty"`
	InvoiceStatus enums.InvoiceStatus `json:"invoice_status"`
	FiscalStatus  enums.FiscalStatus  `json:"fiscal_status"`
	PaidAmount    decimal.Decimal     `json:"paid_amount"`
	Replayed      bool                `json:"replayed"`
}

func paymentSyncPayload(result *invoices.PaymentResult) paymentSyncResponse {
	return paymentSyncResponse{
		ID:            result.Payment.ID,
		InvoiceID:     result.Invoice.ID,
		InvoiceNumber: result.Invoice.InvoiceNumber,
		Method:        result.Payment.Method,
		Amount:        result.Payment.Amount,
		Change:        result.Payment.Change,
		InvoiceStatus: result.Invoice.Status,
		FiscalStatus:  result.Invoice.FiscalStatus,
		PaidAmount:    result.Invoice.PaidAmount,
		Replayed:      result.Replayed,
	}
}

// SyncCreatePayment records a payment and settles the invoice totals in the
// same transaction. When the payment tips the invoice into paid and the
// branch is fiscalized, the invoice is queued for fiscal submission before
// the response is written.
func SyncCreatePayment(svc invoices.Service, syncMetrics *metrics.SyncMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input invoices.AddPaymentInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			syncMetrics.IncUpload("payment", "rejected")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AddPayment(r.Context(), input)
		if err != nil {
			syncMetrics.IncUpload("payment", "error")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		syncMetrics.IncUpload("payment", "applied")
		status := http.StatusCreated
		if result.Replayed {
			syncMetrics.IncReplayed()
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, paymentSyncPayload(result))
	}
}
