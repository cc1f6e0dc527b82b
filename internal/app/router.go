package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/lotline-erp/lotline-erp/internal/auth"
	"github.com/lotline-erp/lotline-erp/internal/catalog"
	"github.com/lotline-erp/lotline-erp/internal/draft"
	"github.com/lotline-erp/lotline-erp/internal/fulfillment"
	"github.com/lotline-erp/lotline-erp/internal/ledger"
	"github.com/lotline-erp/lotline-erp/internal/observability"
	"github.com/lotline-erp/lotline-erp/internal/orders"
	"github.com/lotline-erp/lotline-erp/internal/stockview"
	"github.com/lotline-erp/lotline-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthMiddleware     auth.Middleware
	CatalogHandler     *catalog.Handler
	LedgerHandler      *ledger.Handler
	StockViewHandler   *stockview.Handler
	DraftHandler       *draft.Handler
	OrdersHandler      *orders.Handler
	FulfillmentHandler *fulfillment.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Lotline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(params.AuthMiddleware.RequireToken)

		r.Group(params.CatalogHandler.MountRoutes)
		r.Group(params.LedgerHandler.MountRoutes)
		r.Group(params.StockViewHandler.MountRoutes)
		r.Group(params.DraftHandler.MountRoutes)
		r.Group(params.OrdersHandler.MountRoutes)
		r.Group(params.FulfillmentHandler.MountRoutes)
	})

	return r
}
