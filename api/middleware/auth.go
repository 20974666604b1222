package middleware

import (
	"net/http"
	"strings"

	"github.com/tillworks/tillpoint/api/responses"
	pkgauth "github.com/tillworks/tillpoint/pkg/auth"
	"github.com/tillworks/tillpoint/pkg/config"
	pkgerrors "github.com/tillworks/tillpoint/pkg/errors"
	"github.com/tillworks/tillpoint/pkg/logger"
)

// DeviceAuth validates a terminal's bearer JWT and seeds the request context
// with the device and branch identity.
func DeviceAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseDeviceToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithDeviceID(r.Context(), claims.DeviceID)
			ctx = WithBranchID(ctx, claims.BranchID.String())

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"device_id": claims.DeviceID,
					"branch_id": claims.BranchID.String(),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
