package controllers

import (
	"net/http"

	"github.com/tillworks/tillpoint/api/responses"
	"github.com/tillworks/tillpoint/api/validators"
	"github.com/tillworks/tillpoint/internal/catalog"
	"github.com/tillworks/tillpoint/pkg/logger"
	"github.com/tillworks/tillpoint/pkg/metrics"
)

// SyncCreateCustomer accepts a customer created on a terminal while offline.
func SyncCreateCustomer(svc catalog.Service, syncMetrics *metrics.SyncMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input catalog.RegisterCustomerInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			syncMetrics.IncUpload("customer", "rejected")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RegisterCustomer(r.Context(), input)
		if err != nil {
			syncMetrics.IncUpload("customer", "error")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		syncMetrics.IncUpload("customer", "applied")
		status := http.StatusCreated
		if result.Replayed {
			syncMetrics.IncReplayed()
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"id":       result.Customer.ID,
			"name":     result.Customer.Name,
			"replayed": result.Replayed,
		})
	}
}
