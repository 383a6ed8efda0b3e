package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/forecourt/forecourt/internal/jobs"
)

// Metrics collects the Prometheus series exported on /metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploadsTotal    *prometheus.CounterVec
	uploadBytes     prometheus.Histogram
	pdfRenders      *prometheus.CounterVec
	pdfDuration     *prometheus.HistogramVec
	taxonomyCalls   *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics initialises the registry with HTTP, domain and job collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forecourt_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forecourt_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forecourt_uploads_total",
		Help: "Document uploads by category and outcome.",
	}, []string{"category", "outcome"})
	uploadBytes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "forecourt_upload_size_bytes",
		Help:    "Size of accepted uploads.",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 7),
	})
	pdf := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forecourt_pdf_renders_total",
		Help: "Invoice PDF renders by renderer and outcome.",
	}, []string{"renderer", "outcome"})
	pdfDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forecourt_pdf_render_duration_seconds",
		Help:    "Invoice PDF render time by renderer.",
		Buckets: prometheus.DefBuckets,
	}, []string{"renderer"})
	taxonomy := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forecourt_taxonomy_lookups_total",
		Help: "Taxonomy lookups by resource and cache result.",
	}, []string{"resource", "result"})
	registry.MustRegister(
		collectors.NewGoCollector(),
		requests, duration, uploads, uploadBytes, pdf, pdfDuration, taxonomy,
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		uploadsTotal:    uploads,
		uploadBytes:     uploadBytes,
		pdfRenders:      pdf,
		pdfDuration:     pdfDuration,
		taxonomyCalls:   taxonomy,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per chi route pattern.
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

// ObserveUpload counts an upload attempt; size is recorded for successes only.
func (m *Metrics) ObserveUpload(category, outcome string, size int64) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(category, outcome).Inc()
	if outcome == "ok" && size > 0 {
		m.uploadBytes.Observe(float64(size))
	}
}

// ObservePDF counts a PDF render and its duration.
func (m *Metrics) ObservePDF(renderer string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.pdfRenders.WithLabelValues(renderer, outcome).Inc()
	m.pdfDuration.WithLabelValues(renderer).Observe(time.Since(started).Seconds())
}

// ObserveTaxonomy counts a taxonomy lookup as "hit", "miss" or "error".
func (m *Metrics) ObserveTaxonomy(resource, result string) {
	if m == nil {
		return
	}
	m.taxonomyCalls.WithLabelValues(resource, result).Inc()
}

// Jobs exposes the background job collectors sharing this registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
