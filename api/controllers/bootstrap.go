package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/tillworks/tillpoint/api/responses"
	"github.com/tillworks/tillpoint/internal/catalog"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/logger"
)

// Bootstrap serves the reference data pull for the authenticated terminal's
// branch. An optional RFC3339 `since` cursor requests the incremental delta.
func Bootstrap(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branchID, err := branchFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := catalog.BootstrapQuery{BranchID: branchID}
		if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
			since, parseErr := time.Parse(time.RFC3339, raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid since cursor"))
				return
			}
			query.Since = &since
		}

		result, err := svc.Bootstrap(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
