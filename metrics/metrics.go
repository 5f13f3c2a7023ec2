// Package metrics instruments workflow runs and the simulated chain with
// Prometheus collectors registered on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ethdemo"

// Metrics holds the collectors for one process. A nil *Metrics is valid and
// records nothing, so callers never need to guard their calls.
type Metrics struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	blocksMined   prometheus.Counter
	lastValue     prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each workflow stage.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"stage"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Completed workflow runs by result.",
			},
			[]string{"result"},
		),
		blocksMined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_mined_total",
			Help:      "Blocks committed by the simulated chain.",
		}),
		lastValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_value",
			Help:      "Most recent value extracted from a Return event.",
		}),
	}
	m.registry.MustRegister(m.stageDuration, m.runs, m.blocksMined, m.lastValue)
	return m
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunFinished counts a run as "success" or "failure".
func (m *Metrics) RunFinished(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.runs.WithLabelValues(result).Inc()
}

// BlockMined counts one committed block.
func (m *Metrics) BlockMined() {
	if m == nil {
		return
	}
	m.blocksMined.Inc()
}

// SetLastValue records the latest extracted value. Values beyond float64
// precision are approximated.
func (m *Metrics) SetLastValue(v float64) {
	if m == nil {
		return
	}
	m.lastValue.Set(v)
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
