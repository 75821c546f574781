// Package metrics exposes the counters of one index build in Prometheus
// text format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BuildMetrics holds the metrics of a single run. Each run uses its own
// registry so nothing leaks between builds in the same process.
type BuildMetrics struct {
	Registry *prometheus.Registry

	RecordsRead    prometheus.Counter
	FetchFailures  prometheus.Counter
	RecordsWritten prometheus.Counter
	BuildDuration  prometheus.Gauge
	BuildSuccess   prometheus.Gauge
	LastBuildTime  prometheus.Gauge
}

// NewBuildMetrics creates and registers the build metrics. kind and output
// are attached to every series as constant labels.
func NewBuildMetrics(kind, output string) *BuildMetrics {
	labels := prometheus.Labels{"kind": kind, "output": output}
	m := &BuildMetrics{
		Registry: prometheus.NewRegistry(),
		RecordsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pxindex_source_records_read_total",
			Help:        "Source records read while building the index",
			ConstLabels: labels,
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pxindex_fetch_failures_total",
			Help:        "Source record positions that could not be read and were skipped",
			ConstLabels: labels,
		}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pxindex_index_records_written_total",
			Help:        "Records written to the index file",
			ConstLabels: labels,
		}),
		BuildDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pxindex_build_duration_seconds",
			Help:        "Wall time of the last index build",
			ConstLabels: labels,
		}),
		BuildSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pxindex_build_success",
			Help:        "1 if the last index build succeeded, 0 otherwise",
			ConstLabels: labels,
		}),
		LastBuildTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pxindex_last_build_timestamp_seconds",
			Help:        "Unix time the last index build finished",
			ConstLabels: labels,
		}),
	}
	m.Registry.MustRegister(
		m.RecordsRead,
		m.FetchFailures,
		m.RecordsWritten,
		m.BuildDuration,
		m.BuildSuccess,
		m.LastBuildTime,
	)
	return m
}

// Observe records the outcome of a build.
func (m *BuildMetrics) Observe(read, failures, written int, took time.Duration, err error) {
	m.RecordsRead.Add(float64(read))
	m.FetchFailures.Add(float64(failures))
	m.RecordsWritten.Add(float64(written))
	m.BuildDuration.Set(took.Seconds())
	if err == nil {
		m.BuildSuccess.Set(1)
	} else {
		m.BuildSuccess.Set(0)
	}
	m.LastBuildTime.SetToCurrentTime()
}

// WriteTextfile writes all metrics to path for the node exporter textfile
// collector. The file is replaced atomically.
func (m *BuildMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("metrics: failed to write %s: %w", path, err)
	}
	return nil
}
