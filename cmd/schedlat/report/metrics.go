// Package report renders optional summaries of a completed run.
package report

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"go.sazak.io/schedlat/cmd/schedlat/sampler"
)

const namespace = "schedlat"

// Metrics exposes the result of one run as Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	latency prometheus.Histogram
	min     prometheus.Gauge
	max     prometheus.Gauge
	avg     prometheus.Gauge
	cycles  prometheus.Counter
	period  prometheus.Gauge
}

func newGauge(name, help string, labels prometheus.Labels) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	})
}

// NewMetrics creates a registry of run metrics labelled with runID.
func NewMetrics(runID string) *Metrics {
	labels := prometheus.Labels{"run_id": runID}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "latency_microseconds",
			Help:        "Per-cycle sleep overshoot in microseconds",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(10, 2, 16),
		}),
		min:    newGauge("latency_min_microseconds", "Best observed latency", labels),
		max:    newGauge("latency_max_microseconds", "Worst observed latency", labels),
		avg:    newGauge("latency_avg_microseconds", "Average latency, truncated", labels),
		period: newGauge("period_seconds", "Requested sleep period", labels),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "cycles_total",
			Help:        "Completed measurement cycles",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(m.latency, m.min, m.max, m.avg, m.cycles, m.period)
	return m
}

// Observe records res. The histogram is only populated when the run kept its
// samples.
func (m *Metrics) Observe(res *sampler.Result, cfg sampler.Config) {
	for _, l := range res.Samples {
		m.latency.Observe(float64(l))
	}
	m.min.Set(float64(res.Stats.Min))
	m.max.Set(float64(res.Stats.Max))
	m.avg.Set(float64(res.Average()))
	m.cycles.Add(float64(res.Cycles))
	m.period.Set(cfg.Period.Seconds())
}

// Registry returns the registry the metrics are registered in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
