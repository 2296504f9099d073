// Package metrics counts model fits and transform outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the rhythm model metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	fitsTotal       *prometheus.CounterVec
	fitDuration     *prometheus.HistogramVec
	skippedClusters *prometheus.CounterVec
	segmentsTotal   *prometheus.CounterVec
	segmentsDropped prometheus.Counter
}

// NewCollector creates the metrics and registers them with reg.
// A nil reg creates unregistered metrics.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		fitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fits_total",
				Help:      "Number of completed model fits.",
			},
			[]string{"model", "side"},
		),
		fitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fit_duration_seconds",
				Help:      "Time spent fitting one side of a model.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"model"},
		),
		skippedClusters: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fit_skipped_clusters_total",
				Help:      "Clusters left unfit because their samples were degenerate.",
			},
			[]string{"side"},
		),
		segmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "segments_total",
				Help:      "Transformed segments by outcome.",
			},
			[]string{"outcome"},
		),
		segmentsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "segments_dropped_total",
				Help:      "Short silences dropped from transform output.",
			},
		),
	}
}

// RecordFit records one fit of model ("finegrained" or "global") on side.
func (c *Collector) RecordFit(model, side string, took time.Duration, skipped int) {
	if c == nil {
		return
	}
	c.fitsTotal.WithLabelValues(model, side).Inc()
	c.fitDuration.WithLabelValues(model).Observe(took.Seconds())
	if skipped > 0 {
		c.skippedClusters.WithLabelValues(side).Add(float64(skipped))
	}
}

// RecordSegment counts one transformed segment.
func (c *Collector) RecordSegment(outcome string) {
	if c == nil {
		return
	}
	c.segmentsTotal.WithLabelValues(outcome).Inc()
}

// RecordDropped counts n dropped segments.
func (c *Collector) RecordDropped(n int) {
	if c == nil || n == 0 {
		return
	}
	c.segmentsDropped.Add(float64(n))
}
