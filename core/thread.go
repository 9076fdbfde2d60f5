package core

import (
	"runtime"
)

const defaultThreadName = "UNKNOWN"

// threadEnv is the per-OS-thread state the original design keeps in
// thread-local statics. One instance exists per fiber-aware thread: either a
// Thread spawned by this package or a caller goroutine adopted lazily.
//
// Fields are only mutated by the goroutine that owns the thread or by the
// fiber goroutine it is currently handing control to; the strict handoff
// discipline means the two never run at the same time, so no locking is
// needed here.
type threadEnv struct {
	threadID   int64
	threadName string
	thread     *Thread // nil for adopted threads

	current    *Fiber // fiber presently in EXEC on this thread
	threadMain *Fiber // per-thread main fiber, created lazily
	scheduler  *Scheduler
	dispatch   *Fiber // fiber running the dispatch loop on this thread
}

// Thread runs a closure on a dedicated goroutine locked to an OS thread.
// The constructor does not return until the new thread has locked itself,
// published its id, and registered its environment, mirroring the
// semaphore-synchronized launch of a raw thread wrapper.
type Thread struct {
	fn      func()
	name    string
	id      int64
	started chan struct{}
	done    chan struct{}
}

// NewThread spawns the thread and blocks until it is ready to run fn.
func NewThread(fn func(), name string) *Thread {
	if name == "" {
		name = defaultThreadName
	}
	t := &Thread{
		fn:      fn,
		name:    name,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go t.run()
	<-t.started
	return t
}

func (t *Thread) run() {
	// The goroutine stays locked for its whole life. Exiting while locked
	// terminates the underlying OS thread, which guarantees nothing keyed to
	// this thread id can leak into unrelated goroutines.
	runtime.LockOSThread()
	gid := goid()
	t.id = osThreadID()
	env := &threadEnv{threadID: t.id, threadName: t.name, thread: t}
	glsSet(gid, env)

	fn := t.fn
	t.fn = nil
	close(t.started)

	defer func() {
		glsClear(gid)
		close(t.done)
	}()
	fn()
}

// Join blocks until the thread's closure has returned.
func (t *Thread) Join() {
	<-t.done
}

// ID returns the OS thread id, valid as soon as the constructor returns.
func (t *Thread) ID() int64 { return t.id }

// Name returns the thread name given at construction.
func (t *Thread) Name() string { return t.name }

// currentEnv returns the calling goroutine's thread environment, adopting
// the goroutine as a fiber-aware thread on first use. Adoption locks the
// goroutine to its OS thread so the published id stays meaningful; the lock
// is never released, which is the price of letting an arbitrary caller
// construct fibers or a use_caller scheduler.
func currentEnv() *threadEnv {
	gid := goid()
	if env := glsLookup(gid); env != nil {
		return env
	}
	runtime.LockOSThread()
	env := &threadEnv{threadID: osThreadID(), threadName: defaultThreadName}
	glsSet(gid, env)
	return env
}

// CurrentThread returns the Thread executing the caller, or nil when the
// caller is an adopted goroutine rather than a spawned Thread.
func CurrentThread() *Thread {
	return currentEnv().thread
}

// CurrentThreadID returns the OS thread id of the calling thread.
func CurrentThreadID() int64 {
	return currentEnv().threadID
}

// CurrentThreadName returns the name of the calling thread.
func CurrentThreadName() string {
	return currentEnv().threadName
}

// SetCurrentThreadName renames the calling thread. Empty names are ignored.
func SetCurrentThreadName(name string) {
	if name == "" {
		return
	}
	env := currentEnv()
	env.threadName = name
	if env.thread != nil {
		env.thread.name = name
	}
}
