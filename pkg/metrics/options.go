package metrics

import "github.com/prometheus/client_golang/prometheus"

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace overrides the "cadence" metric prefix.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem overrides the "animator" subsystem.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets the millisecond buckets shared by the frame,
// event and HTTP latency histograms.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithIdleHoldBuckets sets the idle hold histogram buckets, in seconds.
// They should span idle_hold_min_ms..idle_hold_max_ms.
func WithIdleHoldBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.idleHoldBuckets = buckets
		}
	}
}

// WithMetricsEnabled turns every Record*/Update* helper into a no-op when
// false.
func WithMetricsEnabled(enabled bool) Option {
	return func(m *Manager) { m.enabled = enabled }
}

// WithCustomLabels adds constant labels, e.g. an avatar id.
func WithCustomLabels(labels map[string]string) Option {
	return func(m *Manager) {
		if labels != nil {
			m.customLabels = labels
		}
	}
}

// WithPrometheusRegistry registers the collectors on registry instead of
// the default registerer.
func WithPrometheusRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
