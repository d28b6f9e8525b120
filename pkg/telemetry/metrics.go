package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openfroyo/installer/pkg/engine"
)

// Metrics collects counters and durations of installer runs. Nothing serves
// them over HTTP: the installer exits after a run, so they are written to a
// node_exporter textfile instead.
type Metrics struct {
	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec

	registry *prometheus.Registry
	mu       sync.Mutex
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Install and uninstall runs by outcome",
			},
			[]string{"kind", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of install and uninstall runs in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Plan actions by stage, tag and outcome",
			},
			[]string{"stage", "tag", "outcome"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of plan actions in seconds",
				Buckets:   buckets,
			},
			[]string{"stage", "tag"},
		),
	}

	for _, c := range []prometheus.Collector{m.runs, m.runDuration, m.actions, m.actionDuration} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// ObserveEvent records finished runs and steps.
func (m *Metrics) ObserveEvent(e *engine.Event) {
	switch e.Type {
	case engine.EventTypeRunFinished:
		m.runs.WithLabelValues(string(e.Stage), string(e.Outcome)).Inc()
		m.runDuration.WithLabelValues(string(e.Stage)).Observe(e.Duration.Seconds())
	case engine.EventTypeStepFinished:
		m.actions.WithLabelValues(string(e.Stage), string(e.Tag), string(e.Outcome)).Inc()
		if e.Outcome != engine.OutcomeSkipped {
			m.actionDuration.WithLabelValues(string(e.Stage), string(e.Tag)).Observe(e.Duration.Seconds())
		}
	}
}

// Registry returns the registry holding the installer metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
