package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tillworks/tillpoint/api/controllers"
	"github.com/tillworks/tillpoint/api/middleware"
	"github.com/tillworks/tillpoint/internal/catalog"
	"github.com/tillworks/tillpoint/internal/fiscal"
	"github.com/tillworks/tillpoint/internal/invoices"
	"github.com/tillworks/tillpoint/internal/orders"
	"github.com/tillworks/tillpoint/pkg/config"
	"github.com/tillworks/tillpoint/pkg/db"
	"github.com/tillworks/tillpoint/pkg/logger"
	"github.com/tillworks/tillpoint/pkg/metrics"
	"github.com/tillworks/tillpoint/pkg/redis"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          db.Pinger
	Redis       *redis.Client
	Orders      orders.Service
	Invoices    invoices.Service
	Catalog     catalog.Service
	Fiscal      fiscal.Service
	SyncMetrics *metrics.SyncMetrics
	Registry    *prometheus.Registry
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.DeviceAuth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/sync", func(r chi.Router) {
			r.Post("/orders", controllers.SyncCreateOrder(deps.Orders, deps.SyncMetrics, logg))
			r.Patch("/orders/{orderId}", controllers.SyncUpdateOrder(deps.Orders, deps.SyncMetrics, logg))
			r.Post("/invoices", controllers.SyncCreateInvoice(deps.Invoices, deps.SyncMetrics, logg))
			r.Post("/payments", controllers.SyncCreatePayment(deps.Invoices, deps.SyncMetrics, logg))
			r.Post("/customers", controllers.SyncCreateCustomer(deps.Catalog, deps.SyncMetrics, logg))
		})

		r.Get("/bootstrap", controllers.Bootstrap(deps.Catalog, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(deps.Orders, logg))
			r.Post("/{orderId}/transition", controllers.TransitionOrder(deps.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(deps.Orders, logg))
			r.Post("/{orderId}/void", controllers.VoidOrder(deps.Orders, logg))
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", controllers.ListInvoices(deps.Invoices, logg))
			r.Get("/{invoiceId}", controllers.GetInvoice(deps.Invoices, logg))
			r.Post("/{invoiceId}/void", controllers.VoidInvoice(deps.Invoices, logg))
			r.Post("/{invoiceId}/refunds", controllers.RefundInvoice(deps.Invoices, logg))
		})

		r.Route("/fiscal", func(r chi.Router) {
			r.Get("/summary", controllers.FiscalSummary(deps.Fiscal, logg))
			r.Get("/invoices/{invoiceId}", controllers.FiscalStatus(deps.Fiscal, logg))
			r.Post("/invoices/{invoiceId}/retry", controllers.FiscalRetry(deps.Fiscal, logg))
			r.Post("/retry-all", controllers.FiscalRetryAll(deps.Fiscal, logg))
		})
	})

	return r
}
