package fibersched

import "github.com/Swind/go-fiber-sched/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the fibersched package for most use cases.

// Fiber is a stackful user-space coroutine
type Fiber = core.Fiber

// State is the fiber lifecycle state
type State = core.State

// Scheduler multiplexes fibers and closures onto worker threads
type Scheduler = core.Scheduler

// SchedulerConfig bundles the scheduler collaborators
type SchedulerConfig = core.SchedulerConfig

// SchedulerStats is a point-in-time scheduler snapshot
type SchedulerStats = core.SchedulerStats

// WorkItem is one run-queue entry: a fiber or a closure plus affinity
type WorkItem = core.WorkItem

// Thread runs a closure on a goroutine locked to an OS thread
type Thread = core.Thread

// SchedulerSwitcher temporarily migrates execution to another scheduler
type SchedulerSwitcher = core.SchedulerSwitcher

// Logger is the structured logging collaborator
type Logger = core.Logger

// Field is a structured logging key-value pair
type Field = core.Field

// Lifecycle state constants
const (
	StateInit   State = core.StateInit
	StateReady  State = core.StateReady
	StateExec   State = core.StateExec
	StateHold   State = core.StateHold
	StateTerm   State = core.StateTerm
	StateExcept State = core.StateExcept
)

// AnyThread is the affinity value meaning "any worker thread"
const AnyThread = core.AnyThread

// Convenience re-exports for the fiber statics
var (
	NewFiber     = core.NewFiber
	Current      = core.Current
	CurrentID    = core.CurrentID
	TotalFibers  = core.TotalFibers
	YieldToHold  = core.YieldToHold
	YieldToReady = core.YieldToReady
)

// NewScheduler creates a scheduler with default handlers.
func NewScheduler(threads int, useCaller bool, name string) *Scheduler {
	return core.NewScheduler(threads, useCaller, name)
}

// NewSchedulerWithConfig creates a scheduler with custom collaborators.
func NewSchedulerWithConfig(threads int, useCaller bool, name string, conf *SchedulerConfig) *Scheduler {
	return core.NewSchedulerWithConfig(threads, useCaller, name, conf)
}

// NewSchedulerSwitcher captures the current scheduler and migrates to target.
func NewSchedulerSwitcher(target *Scheduler) *SchedulerSwitcher {
	return core.NewSchedulerSwitcher(target)
}

// CurrentScheduler returns the scheduler the calling thread executes for.
var CurrentScheduler = core.CurrentScheduler

// GetLogger returns the named logger from the registry.
var GetLogger = core.GetLogger
