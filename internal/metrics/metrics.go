// Package metrics records run outcomes in a Prometheus registry that can be written as a
// node-exporter textfile.
package metrics

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	m "tessel.dev/pkg/tessel/internal/model"
)

// Namespace prefixes every metric name.
const Namespace = "tessel"

// RunMetrics holds the collectors of orchestrated runs.
type RunMetrics struct {
	registry *prometheus.Registry

	targetsTotal   *prometheus.CounterVec
	targetDuration *prometheus.HistogramVec
	casesTotal     *prometheus.CounterVec
	coverage       *prometheus.GaugeVec
	skippedTotal   prometheus.Counter
	launchErrors   prometheus.Counter
}

// NewRunMetrics registers the run collectors in a fresh registry.
func NewRunMetrics() *RunMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &RunMetrics{
		registry: registry,
		targetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "targets_total",
			Help:      "Count of executed targets by result",
		}, []string{
			"result",
		}),
		targetDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "target_duration_seconds",
			Help:      "Duration of target executions",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{
			"result",
		}),
		casesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "test_cases_total",
			Help:      "Count of test cases by status",
		}, []string{
			"status",
		}),
		coverage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "coverage_percent",
			Help:      "Current coverage of a target",
		}, []string{
			"label",
			"kind",
		}),
		skippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "targets_skipped_total",
			Help:      "Count of targets not launched because the run was cancelled",
		}),
		launchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "launch_errors_total",
			Help:      "Count of targets whose process could not be started",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *RunMetrics) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveOutcome records one executed target.
func (r *RunMetrics) ObserveOutcome(outcome m.TargetOutcome, launchFailed bool) {
	result := outcome.Status.String()

	r.targetsTotal.WithLabelValues(result).Inc()
	r.targetDuration.WithLabelValues(result).Observe(outcome.Duration.Seconds())

	if launchFailed {
		r.launchErrors.Inc()
	}

	if outcome.Report != nil {
		for _, c := range outcome.Report.TestCases {
			r.casesTotal.WithLabelValues(string(c.Status)).Inc()
		}
	}

	if outcome.Coverage != nil {
		r.coverage.WithLabelValues(outcome.Label, string(outcome.Coverage.Kind)).Set(outcome.Coverage.Percent)
	}
}

// ObserveSkipped records targets that were never launched.
func (r *RunMetrics) ObserveSkipped(n int) {
	r.skippedTotal.Add(float64(n))
}

// WriteTextfile writes the registry in the text exposition format to path.
func (r *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		slog.Error("Failed to write metrics textfile", "path", path, "error", err)
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}

	return nil
}
