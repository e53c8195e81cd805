package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Queue metrics
	JobsEnqueuedTotal *prometheus.CounterVec
	JobsPoppedTotal   *prometheus.CounterVec

	// Worker metrics
	JobsProcessedTotal   *prometheus.CounterVec
	JobDuration          *prometheus.HistogramVec
	WorkerBackoffSeconds *prometheus.GaugeVec

	// Reconciliation metrics
	RoleChangesTotal   *prometheus.CounterVec
	ProducerTicksTotal *prometheus.CounterVec

	// Authentication metrics
	AuthConfirmationsTotal  *prometheus.CounterVec
	IdentitiesArchivedTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rollcall_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		JobsEnqueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_jobs_enqueued_total",
				Help: "Total number of sync requests written to a queue",
			},
			[]string{"kind", "tier"},
		),
		JobsPoppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_jobs_popped_total",
				Help: "Total number of sync requests taken from a queue",
			},
			[]string{"kind", "tier"},
		),

		JobsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_jobs_processed_total",
				Help: "Total number of worker ticks by outcome",
			},
			[]string{"kind", "outcome"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rollcall_job_duration_seconds",
				Help:    "Worker tick duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		WorkerBackoffSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rollcall_worker_backoff_seconds",
				Help: "Current worker backoff after a failed tick",
			},
			[]string{"kind"},
		),

		RoleChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_role_changes_total",
				Help: "Total number of role assignments and removals sent to the platform",
			},
			[]string{"action", "status"},
		),
		ProducerTicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_producer_ticks_total",
				Help: "Total number of periodic producer ticks",
			},
			[]string{"status"},
		),

		AuthConfirmationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_auth_confirmations_total",
				Help: "Total number of login confirmations by result",
			},
			[]string{"result"},
		),
		IdentitiesArchivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rollcall_identities_archived_total",
				Help: "Total number of identities archived after an email collision",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.JobsEnqueuedTotal,
		m.JobsPoppedTotal,
		m.JobsProcessedTotal,
		m.JobDuration,
		m.WorkerBackoffSeconds,
		m.RoleChangesTotal,
		m.ProducerTicksTotal,
		m.AuthConfirmationsTotal,
		m.IdentitiesArchivedTotal,
	)

	return m
}

// Tier is the label value for a priority tier
func Tier(lowPriority bool) string {
	if lowPriority {
		return "low"
	}
	return "high"
}

// The recording helpers below accept a nil receiver so components can run
// without metrics in tests.

// RecordEnqueue counts a queue write
func (m *Metrics) RecordEnqueue(kind string, lowPriority bool) {
	if m == nil {
		return
	}
	m.JobsEnqueuedTotal.WithLabelValues(kind, Tier(lowPriority)).Inc()
}

// RecordPop counts a request taken from a queue
func (m *Metrics) RecordPop(kind string, lowPriority bool) {
	if m == nil {
		return
	}
	m.JobsPoppedTotal.WithLabelValues(kind, Tier(lowPriority)).Inc()
}

// RecordTick records one worker tick
func (m *Metrics) RecordTick(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.JobsProcessedTotal.WithLabelValues(kind, outcome).Inc()
	m.JobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// SetBackoff records the current backoff of a worker
func (m *Metrics) SetBackoff(kind string, backoff time.Duration) {
	if m == nil {
		return
	}
	m.WorkerBackoffSeconds.WithLabelValues(kind).Set(backoff.Seconds())
}

// RecordRoleChange counts one role mutation
func (m *Metrics) RecordRoleChange(action string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RoleChangesTotal.WithLabelValues(action, status).Inc()
}

// RecordProducerTick counts one producer tick
func (m *Metrics) RecordProducerTick(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ProducerTicksTotal.WithLabelValues(status).Inc()
}

// RecordConfirmation counts one login confirmation
func (m *Metrics) RecordConfirmation(result string) {
	if m == nil {
		return
	}
	m.AuthConfirmationsTotal.WithLabelValues(result).Inc()
}

// RecordArchive counts one archived identity
func (m *Metrics) RecordArchive() {
	if m == nil {
		return
	}
	m.IdentitiesArchivedTotal.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled with the mux route template to bound cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus text format
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
