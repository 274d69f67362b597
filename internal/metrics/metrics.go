// Run counters exported in the Prometheus text format
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "label_balancer"

// Metrics owns a private registry so that every run starts from zero.
type Metrics struct {
	registry *prometheus.Registry

	copiedFiles   prometheus.Counter
	copiedBytes   prometheus.Counter
	augmented     *prometheus.CounterVec
	shortfall     *prometheus.CounterVec
	labelFailures *prometheus.CounterVec
	runs          *prometheus.CounterVec
	deficit       prometheus.Gauge
	duration      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		copiedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "copied_files_total",
			Help:      "Original images copied into the output tree.",
		}),
		copiedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "copied_bytes_total",
			Help:      "Bytes copied into the output tree.",
		}),
		augmented: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "augmented_images_total",
			Help:      "Images generated per label.",
		}, []string{"label"}),
		shortfall: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "augmentation_shortfall_total",
			Help:      "Requested images a label could not produce.",
		}, []string{"label"}),
		labelFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "label_failures_total",
			Help:      "Label augmentation tasks that returned an error.",
		}, []string{"label"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Balancing runs by outcome.",
		}, []string{"outcome"}),
		deficit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deficit_images",
			Help:      "Difference between the category counts at the start of the run.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
	}
	m.registry.MustRegister(
		m.copiedFiles, m.copiedBytes, m.augmented, m.shortfall,
		m.labelFailures, m.runs, m.deficit, m.duration,
	)
	return m
}

// ObserveCopy adds one label directory's copy statistics.
func (m *Metrics) ObserveCopy(files int, bytes int64) {
	m.copiedFiles.Add(float64(files))
	m.copiedBytes.Add(float64(bytes))
}

// ObserveLabel records the outcome of one label task.
func (m *Metrics) ObserveLabel(label string, requested, written int, err error) {
	m.augmented.WithLabelValues(label).Add(float64(written))
	if requested > written {
		m.shortfall.WithLabelValues(label).Add(float64(requested - written))
	}
	if err != nil {
		m.labelFailures.WithLabelValues(label).Inc()
	}
}

// ObserveRun records the terminal outcome.
func (m *Metrics) ObserveRun(outcome string, deficit int, elapsed time.Duration) {
	m.runs.WithLabelValues(outcome).Inc()
	m.deficit.Set(float64(deficit))
	m.duration.Set(elapsed.Seconds())
}

// Gatherer exposes the run's private registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes every metric to path for a node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Gatherer()); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
