package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/netline-isp/billing/internal/accounting"
	"github.com/netline-isp/billing/internal/ar"
	"github.com/netline-isp/billing/internal/expenses"
	"github.com/netline-isp/billing/internal/observability"
	"github.com/netline-isp/billing/internal/platform/httpx"
	"github.com/netline-isp/billing/internal/reporting"
	"github.com/netline-isp/billing/jobs"
)

// Pinger checks a backing service during health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	AccountingHandler *accounting.Handler
	BillingHandler    *ar.Handler
	ExpenseHandler    *expenses.Handler
	ReportingHandler  *reporting.Handler
	JobHandler        *jobs.Handler

	// Checks run by /healthz, keyed by dependency name.
	Checks map[string]Pinger
}

// NewRouter constructs the chi.Router serving the billing API.
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

	r.Get("/healthz", healthz(params.Checks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AccountingHandler != nil {
		params.AccountingHandler.MountRoutes(r)
	}
	if params.BillingHandler != nil {
		params.BillingHandler.MountRoutes(r)
	}
	if params.ExpenseHandler != nil {
		params.ExpenseHandler.MountRoutes(r)
	}
	if params.ReportingHandler != nil {
		params.ReportingHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.Method+" "+r.URL.Path)
	})
	return r
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthz(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := healthStatus{Status: "ok"}
		code := http.StatusOK
		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			out.Checks = make(map[string]string, len(checks))
			for name, check := range checks {
				if err := check.Ping(ctx); err != nil {
					out.Checks[name] = err.Error()
					out.Status = "degraded"
					code = http.StatusServiceUnavailable
					continue
				}
				out.Checks[name] = "ok"
			}
		}
		httpx.JSON(w, code, out)
	}
}
