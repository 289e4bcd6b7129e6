package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	invoicesGenerated prometheus.Counter
	invoicesOverdue   prometheus.Counter
	paymentsTotal     *prometheus.CounterVec
	paymentsAmount    *prometheus.CounterVec
	reportBuild       *prometheus.HistogramVec
}

// NewMetrics initialises the registry with HTTP, billing and runtime collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	generated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_invoices_generated_total",
		Help: "Invoices created by billing runs.",
	})
	overdue := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_invoices_marked_overdue_total",
		Help: "Invoices moved to overdue.",
	})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_payments_total",
		Help: "Payments recorded by method.",
	}, []string{"method"})
	amounts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_payments_amount_total",
		Help: "Sum of recorded payment amounts in minor units, by method.",
	}, []string{"method"})
	builds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_report_build_duration_seconds",
		Help:    "Time spent building reports on cache miss.",
		Buckets: prometheus.DefBuckets,
	}, []string{"report"})
	registry.MustRegister(requests, duration, generated, overdue, payments, amounts, builds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		invoicesGenerated: generated,
		invoicesOverdue:   overdue,
		paymentsTotal:     payments,
		paymentsAmount:    amounts,
		reportBuild:       builds,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for extra collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// InvoicesGenerated counts invoices created by a billing run.
func (m *Metrics) InvoicesGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invoicesGenerated.Add(float64(n))
}

// InvoicesMarkedOverdue counts invoices moved to overdue.
func (m *Metrics) InvoicesMarkedOverdue(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invoicesOverdue.Add(float64(n))
}

// PaymentRecorded counts a payment and its amount.
func (m *Metrics) PaymentRecorded(method string, amount int64) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(method).Inc()
	if amount > 0 {
		m.paymentsAmount.WithLabelValues(method).Add(float64(amount))
	}
}

// ReportBuilt observes how long a report took to build.
func (m *Metrics) ReportBuilt(report string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reportBuild.WithLabelValues(report).Observe(elapsed.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
