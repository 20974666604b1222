package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillworks/tillpoint/api/responses"
	"github.com/tillworks/tillpoint/api/validators"
	"github.com/tillworks/tillpoint/internal/orders"
	"github.com/tillworks/tillpoint/pkg/db/models"
	"github.com/tillworks/tillpoint/pkg/enums"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/logger"
	"github.com/tillworks/tillpoint/pkg/metrics"
	"github.com/tillworks/tillpoint/pkg/types"
)

// orderSyncResponse is the reconciliation payload a terminal consumes: the
// server-assigned number plus enough state to refresh the local record.
type orderSyncResponse struct {
	ID          uuid.UUID         `json:"id"`
	OrderNumber int64             `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	TaxAmount   decimal.Decimal   `json:"tax_amount"`
	Total       decimal.Decimal   `json:"total"`
	Replayed    bool              `json:"replayed"`
}

func orderSyncPayload(order *models.Order, replayed bool) orderSyncResponse {
	return orderSyncResponse{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Subtotal:    order.Subtotal,
		TaxAmount:   order.TaxAmount,
		Total:       order.Total,
		Replayed:    replayed,
	}
}

// SyncCreateOrder accepts an offline-created order. A replay of a UUID the
// server already holds returns 200 with the stored record and the same
// order number; a fresh upload returns 201.
func SyncCreateOrder(svc orders.Service, syncMetrics *metrics.SyncMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input orders.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			syncMetrics.IncUpload("order", "rejected")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateOrder(r.Context(), input)
		if err != nil {
			syncMetrics.IncUpload("order", "error")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		syncMetrics.IncUpload("order", "applied")
		status := http.StatusCreated
		if result.Replayed {
			syncMetrics.IncReplayed()
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, orderSyncPayload(result.Order, result.Replayed))
	}
}

type updateOrderBody struct {
	Items    []orders.ItemInput `json:"items" validate:"required,min=1,dive"`
	Discount *types.Discount    `json:"discount,omitempty"`
}

// SyncUpdateOrder replaces the item set of an editable order. The update is
// safe to reapply, so a duplicate delivery converges on the same state.
func SyncUpdateOrder(svc orders.Service, syncMetrics *metrics.SyncMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateOrderBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			syncMetrics.IncUpload("order_update", "rejected")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.UpdateItems(r.Context(), orders.UpdateItemsInput{
			OrderID:  orderID,
			Items:    body.Items,
			Discount: body.Discount,
		})
		if err != nil {
			syncMetrics.IncUpload("order_update", "error")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		syncMetrics.IncUpload("order_update", "applied")
		responses.WriteSuccess(w, orderSyncPayload(order, false))
	}
}

func parseUUIDParam(r *http.Request, param, label string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, label+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return id, nil
}
