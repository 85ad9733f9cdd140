// Package metrics provides Prometheus metrics collection for the rate limiter.
package metrics

import (
	"net/http"

	ratelimiter "github.com/jassus213/go-window-limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "windowlimit"

// Collector holds all Prometheus metrics for the rate limiter. It implements
// ratelimiter.Recorder.
type Collector struct {
	// Limiter metrics
	Checks       *prometheus.CounterVec
	CheckLatency *prometheus.HistogramVec

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
		Checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Total number of limiter decisions by mode and result",
			},
			[]string{"mode", "result"},
		),
		CheckLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_duration_seconds",
				Help:      "Store round trip duration in seconds",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"mode"},
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

// Add implements ratelimiter.Recorder. Unknown metric names are ignored.
func (c *Collector) Add(name string, value float64, tags map[string]string) {
	if name == ratelimiter.MetricCheck {
		c.Checks.WithLabelValues(tags["mode"], tags["result"]).Add(value)
	}
}

// Observe implements ratelimiter.Recorder. Unknown metric names are ignored.
func (c *Collector) Observe(name string, value float64, tags map[string]string) {
	if name == ratelimiter.MetricLatency {
		c.CheckLatency.WithLabelValues(tags["mode"]).Observe(value)
	}
}

// RecordReload tracks the result of a config reload attempt.
func (c *Collector) RecordReload(err error, unix float64) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(unix)
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ ratelimiter.Recorder = (*Collector)(nil)
