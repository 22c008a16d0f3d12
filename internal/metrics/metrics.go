package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alertwatch"

// Cycle outcomes used as the "outcome" label of cycles_total.
const (
	OutcomeOK          = "ok"
	OutcomeFetchError  = "fetch_error"
	OutcomeNotifyError = "notify_error"
	OutcomeLogError    = "log_error"
)

// Collector exposes Prometheus metrics for the poll loop and the ops HTTP
// surface from a private registry.
type Collector struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	cyclesTotal   *prometheus.CounterVec
	alertsTotal   prometheus.Counter
	fetchErrors   prometheus.Counter
	cycleDuration prometheus.Histogram
	seenIDs       prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// NewCollector constructs and registers all collectors.
func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),

		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "cycles_total",
			Help:      "Poll cycles by outcome.",
		}, []string{"outcome"}),

		alertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "alerts_total",
			Help:      "Alerts delivered and persisted.",
		}),

		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "fetch_errors_total",
			Help:      "Failed retrievals from the post source.",
		}),

		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a poll cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		seenIDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "seen_ids",
			Help:      "Post ids currently held in the deduplication set.",
		}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that completed without error.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.requestDuration, c.requestTotal,
		c.cyclesTotal, c.alertsTotal, c.fetchErrors,
		c.cycleDuration, c.seenIDs, c.lastSuccess,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records one completed poll cycle.
func (c *Collector) ObserveCycle(outcome string, alerts int, seen int, duration time.Duration, at time.Time) {
	c.cyclesTotal.WithLabelValues(outcome).Inc()
	c.alertsTotal.Add(float64(alerts))
	c.cycleDuration.Observe(duration.Seconds())
	c.seenIDs.Set(float64(seen))
	if outcome == OutcomeFetchError {
		c.fetchErrors.Inc()
	}
	if outcome == OutcomeOK {
		c.lastSuccess.Set(float64(at.Unix()))
	}
}

// SetSeen updates the deduplication set size gauge.
func (c *Collector) SetSeen(n int) {
	c.seenIDs.Set(float64(n))
}

// InstrumentHandler wraps the provided handler to record HTTP metrics. When
// served through chi, the route pattern is used as the path label.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
