package core

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler multiplexes fibers and closures onto a fixed pool of worker
// threads. Work is dispatched in FIFO order with two skips: items pinned to
// another thread are left for it (and a wake signal is sent), and fibers
// currently executing elsewhere are left until they yield.
//
// With useCaller the constructing thread serves as one of the workers: it
// gets a root dispatch fiber whose entry is the dispatch loop, and Stop
// drains remaining work by running that fiber on the caller thread.
type Scheduler struct {
	name string

	mu        sync.Mutex
	queue     *runQueue
	threads   []*Thread
	threadIDs []int64
	stopping  bool
	autoStop  bool
	stopped   bool

	rootFiber    *Fiber
	rootThreadID int64
	threadCount  int

	activeCount atomic.Int32
	idleCount   atomic.Int32

	logger   Logger
	panics   PanicHandler
	metrics  Metrics
	rejected RejectedWorkHandler
	history  *ExecutionHistory
	tickleFn func()
}

// NewScheduler creates a scheduler with default handlers. threads is the
// total worker count and must be at least 1; useCaller counts the
// constructing thread as one of them.
func NewScheduler(threads int, useCaller bool, name string) *Scheduler {
	return NewSchedulerWithConfig(threads, useCaller, name, DefaultSchedulerConfig())
}

// NewSchedulerWithConfig creates a scheduler with the given config. When
// useCaller is set the calling thread must not already be running another
// scheduler.
func NewSchedulerWithConfig(threads int, useCaller bool, name string, conf *SchedulerConfig) *Scheduler {
	assertf(threads >= 1, "scheduler %q needs at least one thread", name)
	if name == "" {
		name = "scheduler"
	}
	s := &Scheduler{
		name:         name,
		queue:        newRunQueue(),
		rootThreadID: AnyThread,
		stopping:     true,
	}
	if conf == nil {
		conf = DefaultSchedulerConfig()
	}
	s.logger = conf.Logger
	s.panics = conf.PanicHandler
	s.metrics = conf.Metrics
	s.rejected = conf.RejectedWorkHandler
	s.history = conf.History
	s.tickleFn = conf.Tickle
	if s.logger == nil {
		s.logger = GetLogger("system")
	}
	if s.panics == nil {
		s.panics = &DefaultPanicHandler{}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.rejected == nil {
		s.rejected = &DefaultRejectedWorkHandler{}
	}

	if useCaller {
		env := currentEnv()
		mainFiberFor(env)
		threads--

		assertf(env.scheduler == nil,
			"thread %d already runs a scheduler, cannot construct %q with useCaller", env.threadID, name)
		env.scheduler = s

		s.rootFiber = NewFiber(s.run, 0, true)
		SetCurrentThreadName(name)

		env.dispatch = s.rootFiber
		s.rootThreadID = env.threadID
		s.threadIDs = append(s.threadIDs, env.threadID)
	}
	s.threadCount = threads
	return s
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string { return s.name }

// CurrentScheduler returns the scheduler the calling thread is executing
// for, or nil.
func CurrentScheduler() *Scheduler {
	if env := glsGet(); env != nil {
		return env.scheduler
	}
	return nil
}

// CurrentDispatchFiber returns the fiber running the dispatch loop on the
// calling thread, or nil outside a scheduler thread.
func CurrentDispatchFiber() *Fiber {
	if env := glsGet(); env != nil {
		return env.dispatch
	}
	return nil
}

// Start launches the remaining worker threads. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopping {
		return
	}
	s.stopping = false
	s.stopped = false
	s.autoStop = false
	assertf(len(s.threads) == 0, "scheduler %q already has workers", s.name)
	for i := 0; i < s.threadCount; i++ {
		t := NewThread(s.run, fmt.Sprintf("%s_%d", s.name, i))
		s.threads = append(s.threads, t)
		s.threadIDs = append(s.threadIDs, t.ID())
	}
}

// Schedule enqueues a closure for any worker.
func (s *Scheduler) Schedule(fn func()) {
	s.ScheduleTo(fn, AnyThread)
}

// ScheduleTo enqueues a closure pinned to the worker with the given OS
// thread id (AnyThread for no pin).
func (s *Scheduler) ScheduleTo(fn func(), threadID int64) {
	s.scheduleWork(WorkItem{Func: fn, Thread: threadID})
}

// ScheduleFiber enqueues a fiber for any worker.
func (s *Scheduler) ScheduleFiber(f *Fiber) {
	s.ScheduleFiberTo(f, AnyThread)
}

// ScheduleFiberTo enqueues a fiber pinned to the worker with the given OS
// thread id.
func (s *Scheduler) ScheduleFiberTo(f *Fiber, threadID int64) {
	s.scheduleWork(WorkItem{Fiber: f, Thread: threadID})
}

// ScheduleBatch enqueues several work items under one lock acquisition and
// wakes a worker at most once.
func (s *Scheduler) ScheduleBatch(items []WorkItem) {
	s.scheduleWork(items...)
}

// scheduleWork is the single enqueue path. Items submitted while the
// scheduler is draining (Stop in progress) are still accepted and run by
// the drain; items submitted after Stop completed are rejected.
func (s *Scheduler) scheduleWork(items ...WorkItem) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		for range items {
			s.rejected.HandleRejectedWork(s.name, "stopped")
			s.metrics.RecordWorkRejected(s.name, "stopped")
		}
		return
	}
	wasEmpty := s.queue.empty()
	for _, it := range items {
		assertf(it.Fiber != nil || it.Func != nil, "work item needs a fiber or a closure")
		s.queue.push(it)
	}
	depth := s.queue.len()
	s.mu.Unlock()

	s.metrics.RecordQueueDepth(s.name, depth)
	if wasEmpty {
		s.tickle()
	}
}

// run is the dispatch loop. Every worker thread executes it, and so does
// the caller thread's root dispatch fiber when useCaller is set.
func (s *Scheduler) run() {
	s.logger.Debug("run", F("scheduler", s.name), F("thread", CurrentThreadName()))
	env := currentEnv()
	env.scheduler = s
	if env.threadID != s.rootThreadID {
		// Plain worker: its dispatch fiber is its thread main fiber. On the
		// caller thread the root dispatch fiber was installed at
		// construction, so yields from user work return to the dispatcher
		// rather than to pre-Start caller code.
		env.dispatch = mainFiberFor(env)
	}

	idleFiber := NewFiber(s.idle, 0, false)
	var funcFiber *Fiber

	for {
		var item WorkItem
		tickleMe := false
		isActive := false

		s.mu.Lock()
		it, ok, tick := s.queue.takeEligible(env.threadID)
		if ok {
			item = it
			s.activeCount.Add(1)
			isActive = true
		}
		tickleMe = tick
		s.mu.Unlock()

		if tickleMe {
			s.tickle()
		}

		switch {
		case item.Fiber != nil && !item.Fiber.State().terminal():
			f := item.Fiber
			s.resumeMarked(f, env)
			switch f.State() {
			case StateReady:
				s.scheduleWork(WorkItem{Fiber: f, Thread: AnyThread})
			case StateExec:
				// Suspended without a disposition (raw Back/SwapOut): park
				// it out of the queue until something reschedules it.
				f.forceHold()
			}

		case item.Func != nil:
			if funcFiber == nil {
				funcFiber = NewFiber(item.Func, 0, false)
			} else {
				funcFiber.Reset(item.Func)
			}
			fn := funcFiber
			fn.markExec()
			s.resumeMarked(fn, env)
			switch fn.State() {
			case StateReady:
				s.scheduleWork(WorkItem{Fiber: fn, Thread: AnyThread})
				funcFiber = nil
			case StateTerm, StateExcept:
				// Slot stays bound; the next closure reuses its stack.
			default:
				if fn.State() == StateExec {
					fn.forceHold()
				}
				// HOLD: whoever reschedules the fiber owns it now.
				funcFiber = nil
			}

		default:
			if isActive {
				// A terminal fiber item: nothing to run, just drop it.
				s.activeCount.Add(-1)
				continue
			}
			if idleFiber.State() == StateTerm {
				s.logger.Info("idle fiber term", F("scheduler", s.name), F("thread", CurrentThreadName()))
				return
			}
			s.idleCount.Add(1)
			idleFiber.SwapIn()
			s.idleCount.Add(-1)
		}
	}
}

// resumeMarked swaps in a fiber already marked EXEC (by the dispatch scan,
// or by run for its closure fiber) and accounts for the resume once it
// yields back.
func (s *Scheduler) resumeMarked(f *Fiber, env *threadEnv) {
	start := time.Now()
	f.swapInMarked(env)
	s.activeCount.Add(-1)
	d := time.Since(start)
	s.metrics.RecordResumeDuration(s.name, d)
	if s.history != nil {
		s.history.Append(ResumeRecord{
			FiberID:  f.ID(),
			ThreadID: env.threadID,
			EndState: f.State(),
			Duration: d,
			At:       start,
		})
	}
}

// idle runs inside each worker's idle fiber. It cooperatively yields until
// the stop predicate holds, then returns, which terminates the idle fiber
// and with it the worker's dispatch loop. An I/O-driven layer replaces the
// yield with blocking on descriptor readiness.
func (s *Scheduler) idle() {
	s.logger.Debug("idle", F("scheduler", s.name), F("thread", CurrentThreadName()))
	for !s.isStopping() {
		YieldToHold()
	}
}

// tickle is the wake signal sent when work arrives for an idle worker or
// when a worker skips an item pinned elsewhere. The default is a no-op
// (idle workers poll cooperatively); an override installed through
// SchedulerConfig.Tickle must make at least one idle worker progress
// within bounded time.
func (s *Scheduler) tickle() {
	if s.tickleFn != nil {
		s.tickleFn()
	}
}

func (s *Scheduler) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stoppingLocked()
}

func (s *Scheduler) stoppingLocked() bool {
	return s.autoStop && s.stopping && s.queue.empty() && s.activeCount.Load() == 0
}

// Stop drains the run queue and joins the workers. With useCaller it must
// be called from the constructing thread, where it reuses that thread to
// drain by calling the root dispatch fiber; otherwise it must be called
// from outside the scheduler's threads. Stop on a never-started scheduler
// short-circuits, and Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.autoStop = true

	if s.rootFiber != nil && s.threadCount == 0 {
		st := s.rootFiber.State()
		if st == StateTerm || st == StateInit {
			s.stopping = true
			if s.stoppingLocked() {
				s.stopped = true
				s.mu.Unlock()
				s.finishCallerStop()
				s.logger.Info("stopped", F("scheduler", s.name))
				return
			}
		}
	}

	if s.stopped {
		// A completed Stop already drained and joined; nothing left to do.
		s.mu.Unlock()
		return
	}

	if s.rootThreadID != AnyThread {
		assertf(CurrentScheduler() == s,
			"Stop of useCaller scheduler %q must run on its caller thread", s.name)
	} else {
		assertf(CurrentScheduler() != s,
			"Stop of scheduler %q must not run on one of its workers", s.name)
	}

	s.stopping = true
	threadCount := s.threadCount
	s.mu.Unlock()

	for i := 0; i < threadCount; i++ {
		s.tickle()
	}
	if s.rootFiber != nil {
		s.tickle()
	}

	if s.rootFiber != nil && !s.isStopping() {
		// Reuse the caller thread as the drain worker.
		s.rootFiber.Call()
	}

	s.mu.Lock()
	thrs := s.threads
	s.threads = nil
	s.mu.Unlock()

	for _, t := range thrs {
		t.Join()
	}

	// Only now is the drain complete; re-enqueues from workers were still
	// legal until they joined.
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.finishCallerStop()
	s.logger.Info("stopped", F("scheduler", s.name))
}

// finishCallerStop releases the caller thread's scheduler binding so the
// thread can construct another useCaller scheduler later. This is the Go
// placement of what the original does in its destructor.
func (s *Scheduler) finishCallerStop() {
	if s.rootFiber == nil {
		return
	}
	if env := glsGet(); env != nil && env.scheduler == s {
		env.scheduler = nil
		env.dispatch = nil
	}
}

// SwitchTo migrates the calling fiber onto this scheduler, optionally
// pinned to the worker with the given OS thread id. A no-op when already
// running on this scheduler and no specific other thread was requested.
func (s *Scheduler) SwitchTo(threadID int64) {
	assertf(CurrentScheduler() != nil, "SwitchTo requires a scheduler on this thread")
	if CurrentScheduler() == s {
		if threadID == AnyThread || threadID == CurrentThreadID() {
			return
		}
	}
	s.ScheduleFiberTo(Current(), threadID)
	YieldToHold()
}

// notifyPanic is called from the fiber trampoline when an entry closure
// panicked while this scheduler was resuming it.
func (s *Scheduler) notifyPanic(fiberID uint64, threadID int64, panicInfo any, backtrace string) {
	s.metrics.RecordFiberExcept(s.name)
	s.panics.HandlePanic(s.name, fiberID, threadID, panicInfo, backtrace)
}

// ThreadIDs returns the OS thread ids of the scheduler's workers, including
// the caller thread when useCaller was set.
func (s *Scheduler) ThreadIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.threadIDs))
	copy(out, s.threadIDs)
	return out
}

// Stats returns a point-in-time snapshot of the scheduler state.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedulerStats{
		Name:       s.name,
		Workers:    s.threadCount,
		Active:     int(s.activeCount.Load()),
		Idle:       int(s.idleCount.Load()),
		QueueDepth: s.queue.len(),
		Stopping:   s.stopping,
		RootThread: s.rootThreadID,
		LiveFibers: TotalFibers(),
	}
}

// Dump writes one line of scheduler state followed by the worker thread
// ids:
//
//	[Scheduler name=X size=N active_count=A idle_count=I stopping=B ]
//	<id1>, <id2>, ...
func (s *Scheduler) Dump(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(w, "[Scheduler name=%s size=%d active_count=%d idle_count=%d stopping=%t ]\n",
		s.name, s.threadCount, s.activeCount.Load(), s.idleCount.Load(), s.stopping)
	for i, id := range s.threadIDs {
		if i > 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprintf(w, "%d", id)
	}
	fmt.Fprintln(w)
}
