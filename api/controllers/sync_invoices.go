package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillworks/tillpoint/api/responses"
	"github.com/tillworks/tillpoint/api/validators"
	"github.com/tillworks/tillpoint/internal/invoices"
	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
	"github.com/tillworks/tillpoint/pkg/logger"
	"github.com/tillworks/tillpoint/pkg/metrics"
)

type invoiceSyncResponse struct {
	ID            uuid.UUID           `json:"id"`
	InvoiceNumber int64               `json:"invoice_number"`
	OrderID       uuid.UUID           `json:"order_id"`
	Status        enums.InvoiceStatus `json:"status"`
	FiscalStatus  enums.FiscalStatus  `json:"fiscal_status"`
	Total         decimal.Decimal     `json:"total"`
	PaidAmount    decimal.Decimal     `json:"paid_amount"`
	Replayed      bool                `json:"replayed"`
}

func invoiceSyncPayload(invoice *models.Invoice, replayed bool) invoiceSyncResponse {
	return invoiceSyncResponse{
		ID:            invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		OrderID:       invoice.OrderID,
		Status:        invoice.Status,
		FiscalStatus:  invoice.FiscalStatus,
		Total:         invoice.Total,
		PaidAmount:    invoice.PaidAmount,
		Replayed:      replayed,
	}
}

// SyncCreateInvoice finalizes an order into an invoice. A replay returns 200
// with the stored invoice and the same invoice number; an order that already
// carries a live invoice under a different UUID is rejected with 409.
func SyncCreateInvoice(svc invoices.Service, syncMetrics *metrics.SyncMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input invoices.CreateInvoiceInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			syncMetrics.IncUpload("invoice", "rejected")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateInvoice(r.Context(), input)
		if err != nil {
			syncMetrics.IncUpload("invoice", "error")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		syncMetrics.IncUpload("invoice", "applied")
		status := http.StatusCreated
		if result.Replayed {
			syncMetrics.IncReplayed()
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, invoiceSyncPayload(result.Invoice, result.Replayed))
	}
}
