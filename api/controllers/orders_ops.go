package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tillworks/tillpoint/api/middleware"
	"github.com/tillworks/tillpoint/api/responses"
	"github.com/tillworks/tillpoint/api/validators"
	"github.com/tillworks/tillpoint/internal/orders"
	"github.com/tillworks/tillpoint/pkg/enums"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/logger"
)

// ListOrders returns the caller branch's orders, newest first.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
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

		query := orders.ListOrdersQuery{BranchID: branchID, Limit: limit}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status := enums.OrderStatus(raw)
			if !status.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status"))
				return
			}
			query.Status = &status
		}

		list, err := svc.ListOrders(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetOrder returns one order with its items.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type transitionBody struct {
	Target enums.OrderStatus `json:"target" validate:"required"`
}

// TransitionOrder moves an order along its lifecycle. Illegal moves come
// back as state conflicts.
func TransitionOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body transitionBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Transition(r.Context(), orders.TransitionInput{OrderID: orderID, Target: body.Target})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type cancelBody struct {
	Reason string `json:"reason" validate:"required"`
}

// CancelOrder cancels an order before completion. The reason is mandatory.
func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cancelBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), orders.CancelInput{OrderID: orderID, Reason: body.Reason})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type voidOrderBody struct {
	ManagerPIN string     `json:"manager_pin" validate:"required"`
	VoidedBy   *uuid.UUID `json:"voided_by,omitempty"`
}

// VoidOrder voids a completed order after manager PIN verification.
func VoidOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body voidOrderBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Void(r.Context(), orders.VoidInput{
			OrderID:    orderID,
			ManagerPIN: body.ManagerPIN,
			VoidedBy:   body.VoidedBy,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func branchFromContext(r *http.Request) (uuid.UUID, error) {
	branchID, err := uuid.Parse(middleware.BranchIDFromContext(r.Context()))
	if err != nil || branchID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "branch missing from token")
	}
	return branchID, nil
}
