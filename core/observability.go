package core

import "time"

// SchedulerStats represents runtime observability state for a scheduler.
type SchedulerStats struct {
	Name       string
	Workers    int
	Active     int
	Idle       int
	QueueDepth int
	Stopping   bool
	RootThread int64
	LiveFibers uint64
}

// ResumeRecord captures one resume of a fiber by the dispatch loop.
type ResumeRecord struct {
	FiberID  uint64
	ThreadID int64
	EndState State
	Duration time.Duration
	At       time.Time
}
