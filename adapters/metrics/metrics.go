// Package metrics provides Prometheus metrics collection for the payment
// settings service.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tinytb/web3.storage/ports"
)

const namespace = "w3api"

// Collector holds all Prometheus metrics for the service.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	// Reconcile metrics
	ReconcileTotal       *prometheus.CounterVec
	CollaboratorDuration *prometheus.HistogramVec
	CollaboratorErrors   *prometheus.CounterVec

	// Cache metrics
	CustomerCacheLookups *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a new metrics collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of authentication failures",
			},
			[]string{"reason"},
		),
		ReconcileTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settings_reconcile_total",
				Help:      "Payment settings reads and writes by outcome",
			},
			[]string{"op", "outcome"},
		),
		CollaboratorDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "collaborator_duration_seconds",
				Help:      "Billing collaborator call duration in seconds",
				Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"collaborator", "op"},
		),
		CollaboratorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collaborator_errors_total",
				Help:      "Total number of failed billing collaborator calls",
			},
			[]string{"collaborator", "op"},
		),
		CustomerCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "customer_cache_lookups_total",
				Help:      "Customer cache lookups by result",
			},
			[]string{"result"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// ObserveCollaborator implements ports.ReconcileMetrics.
func (c *Collector) ObserveCollaborator(collaborator, op string, d time.Duration, err error) {
	c.CollaboratorDuration.WithLabelValues(collaborator, op).Observe(d.Seconds())
	if err != nil {
		c.CollaboratorErrors.WithLabelValues(collaborator, op).Inc()
	}
}

// ObserveReconcile implements ports.ReconcileMetrics.
func (c *Collector) ObserveReconcile(op, outcome string) {
	c.ReconcileTotal.WithLabelValues(op, outcome).Inc()
}

// CacheLookup records a customer cache hit, miss or error.
func (c *Collector) CacheLookup(result string) {
	c.CustomerCacheLookups.WithLabelValues(result).Inc()
}

// ConfigReloaded records a config reload attempt.
func (c *Collector) ConfigReloaded(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}

// NormalizePath reduces cardinality by collapsing unknown paths.
// Only the service's own routes are reported verbatim.
func NormalizePath(path string) string {
	switch {
	case path == "/user/payment", path == "/version":
		return path
	case strings.HasPrefix(path, "/health"):
		return "/health"
	default:
		return "other"
	}
}

// Ensure interface compliance.
var _ ports.ReconcileMetrics = (*Collector)(nil)
