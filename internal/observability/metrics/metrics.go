package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus observability primitives for the ingestion engine.
type Metrics struct {
	paymentsIngested  *prometheus.CounterVec
	paymentsDuplicate prometheus.Counter
	envelopesSkipped  *prometheus.CounterVec
	ingestFailures    *prometheus.CounterVec
	inFlightTasks     prometheus.Gauge
	batchDuration     prometheus.Histogram
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers and returns Prometheus metrics.
func New() *Metrics {
	paymentsIngested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xrpwatch_payments_ingested_total",
		Help: "Counts newly persisted payment records by mode.",
	}, []string{"mode"})

	paymentsDuplicate := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xrpwatch_payments_duplicate_total",
		Help: "Counts payments skipped because the hash already existed.",
	})

	envelopesSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xrpwatch_envelopes_skipped_total",
		Help: "Counts envelopes rejected by the filter by reason.",
	}, []string{"reason"})

	ingestFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xrpwatch_ingest_failures_total",
		Help: "Counts failed ingestion attempts by stage.",
	}, []string{"stage"})

	inFlightTasks := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "xrpwatch_inflight_tasks",
		Help: "Number of persistence tasks currently in flight.",
	})

	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "xrpwatch_batch_duration_seconds",
		Help:    "Duration of one pull-mode ingestion batch.",
		Buckets: prometheus.DefBuckets,
	})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xrpwatch_http_requests_total",
		Help: "Counts API requests by method, route, and status.",
	}, []string{"method", "route", "status"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xrpwatch_http_duration_seconds",
		Help:    "API request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	prometheus.MustRegister(
		paymentsIngested,
		paymentsDuplicate,
		envelopesSkipped,
		ingestFailures,
		inFlightTasks,
		batchDuration,
		httpRequests,
		httpDuration,
	)

	return &Metrics{
		paymentsIngested:  paymentsIngested,
		paymentsDuplicate: paymentsDuplicate,
		envelopesSkipped:  envelopesSkipped,
		ingestFailures:    ingestFailures,
		inFlightTasks:     inFlightTasks,
		batchDuration:     batchDuration,
		httpRequests:      httpRequests,
		httpDuration:      httpDuration,
	}
}

// RecordIngested increments persisted payment counts for the given mode.
func (m *Metrics) RecordIngested(mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.paymentsIngested.WithLabelValues(mode).Add(float64(n))
}

// RecordDuplicate increments the duplicate-hash skip count.
func (m *Metrics) RecordDuplicate(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.paymentsDuplicate.Add(float64(n))
}

// RecordSkipped increments filter rejection counts by reason.
func (m *Metrics) RecordSkipped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.envelopesSkipped.WithLabelValues(reason).Add(float64(n))
}

// RecordFailure increments failure counts by pipeline stage.
func (m *Metrics) RecordFailure(stage string) {
	if m == nil {
		return
	}
	m.ingestFailures.WithLabelValues(stage).Inc()
}

// TaskStarted marks one persistence task as in flight.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.inFlightTasks.Inc()
}

// TaskFinished marks one persistence task as finished.
func (m *Metrics) TaskFinished() {
	if m == nil {
		return
	}
	m.inFlightTasks.Dec()
}

// ObserveBatch records the duration of a pull-mode batch.
func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
