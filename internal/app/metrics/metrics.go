// Package metrics exposes the Prometheus instruments of the marketplace.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskforge"

// Metrics bundles the registry and the instruments the services record into.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	SettlementsTotal *prometheus.CounterVec
	SweepRuns        prometheus.Counter
	SweepItemsTotal  *prometheus.CounterVec
	DisputesOpen     prometheus.Gauge
	VerificationRuns *prometheus.CounterVec
	VerificationWait prometheus.Histogram
}

// New builds a registry with every instrument registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		SettlementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Escrow settlements by kind (award, refund, dispute, expiry).",
		}, []string{"kind"}),
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Deadline sweep executions.",
		}),
		SweepItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_items_total",
			Help:      "Items handled by the deadline sweep, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		DisputesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "disputes_open",
			Help:      "Disputes currently awaiting a response or a ruling.",
		}),
		VerificationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_runs_total",
			Help:      "Verification batches by outcome.",
		}, []string{"outcome"}),
		VerificationWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verification_wait_seconds",
			Help:      "Time spent waiting for judged results.",
			Buckets:   []float64{1, 3, 5, 10, 30, 60, 120},
		}),
	}

	m.registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.SettlementsTotal,
		m.SweepRuns,
		m.SweepItemsTotal,
		m.DisputesOpen,
		m.VerificationRuns,
		m.VerificationWait,
	)
	return m
}

// ObserveHTTP records one handled request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
