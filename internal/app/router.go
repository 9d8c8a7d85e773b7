package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/billing"
	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/fulfillment"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/purchasing"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// RouterParams collects the handlers mounted on the HTTP API.
type RouterParams struct {
	Config  *Config
	Metrics *observability.Metrics

	Catalog     *catalog.Handler
	Ledger      *ledger.Handler
	Purchasing  *purchasing.Handler
	Sales       *sales.Handler
	Fulfillment *fulfillment.Handler
	Billing     *billing.Handler
	Jobs        *jobs.Handler

	Middlewares []func(http.Handler) http.Handler
}

// NewRouter assembles the chi router with the middleware stack and mounts
// every module under /api/v1.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()
	for _, mw := range p.Middlewares {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if p.Catalog != nil {
			r.Route("/catalog", p.Catalog.MountRoutes)
		}
		if p.Ledger != nil {
			r.Route("/ledger", p.Ledger.MountRoutes)
		}
		if p.Purchasing != nil {
			r.Route("/purchasing", p.Purchasing.MountRoutes)
		}
		if p.Sales != nil {
			r.Route("/sales", p.Sales.MountRoutes)
		}
		if p.Fulfillment != nil {
			r.Route("/fulfillment", p.Fulfillment.MountRoutes)
		}
		if p.Billing != nil {
			r.Route("/billing", p.Billing.MountRoutes)
		}
		if p.Jobs != nil {
			r.Route("/jobs", p.Jobs.MountRoutes)
		}
	})

	return r
}
