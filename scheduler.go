package fibersched

import (
	"sync"

	"github.com/Swind/go-fiber-sched/core"
)

// =============================================================================
// Global Scheduler Helper (Singleton)
// =============================================================================

var (
	globalScheduler *core.Scheduler
	globalMu        sync.Mutex
)

// InitGlobalScheduler initializes the global scheduler with the given worker
// count and starts it immediately. The constructing thread is not reused as
// a worker.
func InitGlobalScheduler(workers int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		return // Already initialized
	}

	globalScheduler = core.NewScheduler(workers, false, "global")
	globalScheduler.Start()
}

// GetGlobalScheduler returns the global scheduler instance.
// It panics if InitGlobalScheduler has not been called.
func GetGlobalScheduler() *core.Scheduler {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler == nil {
		panic("global scheduler not initialized. Call InitGlobalScheduler() first.")
	}
	return globalScheduler
}

// ShutdownGlobalScheduler stops the global scheduler and drains its queue.
func ShutdownGlobalScheduler() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		globalScheduler.Stop()
		globalScheduler = nil
	}
}

// Schedule enqueues a closure on the global scheduler.
func Schedule(fn func()) {
	GetGlobalScheduler().Schedule(fn)
}

// ScheduleAndReply runs work on any worker of s, then runs reply pinned to
// the thread that called ScheduleAndReply. The caller must be one of the
// scheduler's worker threads (including the reused caller thread), since
// that is the only way the pinned reply can ever be dispatched. If work
// panics, the reply is still scheduled; the fiber's EXCEPT handling has
// already recorded the failure.
func ScheduleAndReply(s *core.Scheduler, work func(), reply func()) {
	origin := core.CurrentThreadID()
	s.Schedule(func() {
		defer s.ScheduleTo(reply, origin)
		work()
	})
}
