// Package prometheus exports scheduler metrics and state snapshots as
// Prometheus collectors.
package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-fiber-sched/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter implements core.Metrics on top of Prometheus collectors.
// Two exporters built against the same registry share collectors, so a
// scheduler can be torn down and rebuilt without re-registration errors.
type MetricsExporter struct {
	resumeDurationSeconds *prom.HistogramVec
	fiberExceptTotal      *prom.CounterVec
	workRejectedTotal     *prom.CounterVec
	queueDepth            *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter builds the collectors and registers them with reg.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "fibersched"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	m := &MetricsExporter{
		resumeDurationSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "resume_duration_seconds",
			Help:      "Duration of one fiber resume in seconds.",
			Buckets:   buckets,
		}, []string{"scheduler"}),
		fiberExceptTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "fiber_except_total",
			Help:      "Total number of fiber resumes that ended in EXCEPT.",
		}, []string{"scheduler"}),
		workRejectedTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "work_rejected_total",
			Help:      "Total number of rejected work items.",
		}, []string{"scheduler", "reason"}),
		queueDepth: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Run-queue depth observed at the last schedule call.",
		}, []string{"scheduler"}),
	}

	live, err := registerOrReuse(reg, m.resumeDurationSeconds)
	if err != nil {
		return nil, fmt.Errorf("resume_duration_seconds: %w", err)
	}
	m.resumeDurationSeconds = live.(*prom.HistogramVec)

	if live, err = registerOrReuse(reg, m.fiberExceptTotal); err != nil {
		return nil, fmt.Errorf("fiber_except_total: %w", err)
	}
	m.fiberExceptTotal = live.(*prom.CounterVec)

	if live, err = registerOrReuse(reg, m.workRejectedTotal); err != nil {
		return nil, fmt.Errorf("work_rejected_total: %w", err)
	}
	m.workRejectedTotal = live.(*prom.CounterVec)

	if live, err = registerOrReuse(reg, m.queueDepth); err != nil {
		return nil, fmt.Errorf("queue_depth: %w", err)
	}
	m.queueDepth = live.(*prom.GaugeVec)

	return m, nil
}

// schedulerLabel maps a scheduler name to its label value; unnamed
// schedulers collapse into "unknown" rather than an empty label.
func (m *MetricsExporter) schedulerLabel(name string) string {
	if name == "" {
		return "unknown"
	}
	return name
}

// RecordResumeDuration records how long one fiber resume ran.
func (m *MetricsExporter) RecordResumeDuration(schedulerName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.resumeDurationSeconds.WithLabelValues(m.schedulerLabel(schedulerName)).Observe(duration.Seconds())
}

// RecordFiberExcept records a resume that ended in EXCEPT.
func (m *MetricsExporter) RecordFiberExcept(schedulerName string) {
	if m == nil {
		return
	}
	m.fiberExceptTotal.WithLabelValues(m.schedulerLabel(schedulerName)).Inc()
}

// RecordQueueDepth records run-queue depth.
func (m *MetricsExporter) RecordQueueDepth(schedulerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(m.schedulerLabel(schedulerName)).Set(float64(depth))
}

// RecordWorkRejected records work rejection events.
func (m *MetricsExporter) RecordWorkRejected(schedulerName string, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.workRejectedTotal.WithLabelValues(m.schedulerLabel(schedulerName), reason).Inc()
}

// registerOrReuse registers c and returns whichever collector is live in
// the registry afterwards: c itself on a fresh registration, or the
// already-registered instance when an equivalent collector exists. Any
// other registration failure is returned as-is.
func registerOrReuse(reg prom.Registerer, c prom.Collector) (prom.Collector, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var already prom.AlreadyRegisteredError
	if errors.As(err, &already) {
		return already.ExistingCollector, nil
	}
	return nil, err
}
