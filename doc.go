// Package fibersched provides an M:N cooperative fiber scheduler for Go.
//
// A fiber is a stackful user-space coroutine with explicit yield and
// resume. The Scheduler multiplexes a stream of fibers and closures onto a
// fixed pool of OS-locked worker threads, with optional affinity to a
// specific thread and the option of reusing the constructing thread as one
// of the workers.
//
// # Quick Start
//
// Initialize the global scheduler at application startup:
//
//	fibersched.InitGlobalScheduler(4) // 4 workers
//	defer fibersched.ShutdownGlobalScheduler()
//
//	fibersched.Schedule(func() {
//		fmt.Println("runs on a worker fiber")
//		core.YieldToHold() // cooperative suspension; reschedule to resume
//	})
//
// Or construct one directly:
//
//	sched := fibersched.NewScheduler(3, true, "app")
//	sched.Start()
//	sched.Schedule(work)
//	sched.Stop() // drains the queue, joins the workers
//
// # Key Concepts
//
// Fiber: a coroutine owning its lifecycle state (INIT, READY, EXEC, HOLD,
// TERM, EXCEPT). Yielding with YieldToReady re-enqueues the fiber;
// YieldToHold parks it until something schedules it again.
//
// Work item: a fiber or bare closure plus an optional OS thread affinity.
// Items run in FIFO order; items pinned to another thread and fibers
// already executing elsewhere are skipped, not reordered.
//
// use_caller: a scheduler built with useCaller=true counts the
// constructing thread as a worker. Stop then drains remaining work on that
// thread before joining the others.
//
// # Collaborators
//
// Logging, metrics, panic handling and work rejection are interfaces on
// core.SchedulerConfig; observability/prometheus ships a Prometheus
// implementation. The default fiber stack size is read from the config
// store under "fiber.stack_size".
package fibersched
