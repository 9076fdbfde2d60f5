package core

import (
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling fiber panics
// =============================================================================

// PanicHandler is called when a fiber's entry closure panics. The fiber has
// already transitioned to EXCEPT and the scheduler keeps dispatching;
// handlers decide what else happens (alerting, counters, crash-on-panic).
//
// Implementations must be thread-safe; workers call them concurrently.
type PanicHandler interface {
	// HandlePanic is called with the scheduler name, the id of the fiber
	// that panicked, the OS thread it was executing on, the recovered panic
	// value and a rendered backtrace.
	HandlePanic(schedulerName string, fiberID uint64, threadID int64, panicInfo any, backtrace string)
}

// DefaultPanicHandler logs the panic through the system logger.
type DefaultPanicHandler struct{}

func (h *DefaultPanicHandler) HandlePanic(schedulerName string, fiberID uint64, threadID int64, panicInfo any, backtrace string) {
	sysLogger.Error("fiber panic",
		F("scheduler", schedulerName),
		F("fiber_id", fiberID),
		F("thread_id", threadID),
		F("panic", panicInfo),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (Prometheus,
// StatsD, etc.).
//
// Methods must be non-blocking and fast; the dispatch loop calls them
// between fiber resumes.
type Metrics interface {
	// RecordResumeDuration records how long one resume of a fiber ran
	// before it yielded or completed.
	RecordResumeDuration(schedulerName string, duration time.Duration)

	// RecordFiberExcept records that a fiber ended a resume in EXCEPT.
	RecordFiberExcept(schedulerName string)

	// RecordQueueDepth records the run-queue depth after a schedule call.
	RecordQueueDepth(schedulerName string, depth int)

	// RecordWorkRejected records that a work item was rejected (e.g.,
	// submitted after the scheduler stopped).
	RecordWorkRejected(schedulerName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordResumeDuration(schedulerName string, duration time.Duration) {}
func (m *NilMetrics) RecordFiberExcept(schedulerName string)                            {}
func (m *NilMetrics) RecordQueueDepth(schedulerName string, depth int)                  {}
func (m *NilMetrics) RecordWorkRejected(schedulerName string, reason string)            {}

// =============================================================================
// RejectedWorkHandler: Interface for handling rejected work items
// =============================================================================

// RejectedWorkHandler is called when a work item is rejected by the
// scheduler, which happens only for submissions after Stop has completed.
//
// Implementations must be thread-safe.
type RejectedWorkHandler interface {
	HandleRejectedWork(schedulerName string, reason string)
}

// DefaultRejectedWorkHandler logs rejected work items.
type DefaultRejectedWorkHandler struct{}

func (h *DefaultRejectedWorkHandler) HandleRejectedWork(schedulerName string, reason string) {
	sysLogger.Warn("work rejected", F("scheduler", schedulerName), F("reason", reason))
}

// =============================================================================
// SchedulerConfig: Configuration for Scheduler
// =============================================================================

// SchedulerConfig holds configuration options for a Scheduler. All fields
// are optional; zero values select defaults.
type SchedulerConfig struct {
	// Logger receives lifecycle diagnostics. Defaults to GetLogger("system").
	Logger Logger

	// PanicHandler is called when a fiber panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record scheduler metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedWorkHandler is called when work is rejected. Defaults to
	// DefaultRejectedWorkHandler.
	RejectedWorkHandler RejectedWorkHandler

	// History, when set, records one ResumeRecord per fiber resume.
	History *ExecutionHistory

	// Tickle overrides the wake signal sent when work arrives for an idle
	// worker. The default is a no-op; an override must guarantee that after
	// it returns, at least one idle worker makes progress on the dispatch
	// loop within bounded time.
	Tickle func()
}

// DefaultSchedulerConfig returns a config with default handlers.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Logger:              GetLogger("system"),
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedWorkHandler: &DefaultRejectedWorkHandler{},
	}
}
