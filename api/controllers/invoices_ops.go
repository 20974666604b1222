package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillworks/tillpoint/api/responses"
	"github.com/tillworks/tillpoint/api/validators"
	"github.com/tillworks/tillpoint/internal/invoices"
	"github.com/tillworks/tillpoint/pkg/enums"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/logger"
)

// ListInvoices returns the caller branch's invoices, newest first.
func ListInvoices(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branchID, err := branchFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := invoices.ListInvoicesQuery{BranchID: branchID, Limit: limit}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status := enums.InvoiceStatus(raw)
			if !status.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown invoice status"))
				return
			}
			query.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("fiscal_status")); raw != "" {
			status := enums.FiscalStatus(raw)
			if !status.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown fiscal status"))
				return
			}
			query.FiscalStatus = &status
		}

		list, err := svc.ListInvoices(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetInvoice returns one invoice with its lines and payments.
func GetInvoice(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, err := parseUUIDParam(r, "invoiceId", "invoice id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.GetInvoice(r.Context(), invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoice)
	}
}

type voidInvoiceBody struct {
	ManagerPIN string `json:"manager_pin" validate:"required"`
}

// VoidInvoice voids an unpaid invoice after manager PIN verification.
func VoidInvoice(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, err := parseUUIDParam(r, "invoiceId", "invoice id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body voidInvoiceBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.VoidInvoice(r.Context(), invoices.VoidInvoiceInput{
			InvoiceID:  invoiceID,
			ManagerPIN: body.ManagerPIN,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoiceSyncPayload(invoice, false))
	}
}

type refundBody struct {
	ID       uuid.UUID       `json:"id" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	RefundOf *uuid.UUID      `json:"refund_of,omitempty"`
}

// RefundInvoice books a refund as a new negative payment row. The refund
// carries its own UUID so a duplicate delivery replays instead of refunding
// twice.
func RefundInvoice(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, err := parseUUIDParam(r, "invoiceId", "invoice id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body refundBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Refund(r.Context(), invoices.RefundInput{
			ID:        body.ID,
			InvoiceID: invoiceID,
			Amount:    body.Amount,
			RefundOf:  body.RefundOf,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, paymentSyncPayload(result))
	}
}
