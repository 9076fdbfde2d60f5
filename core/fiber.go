package core

import (
	"runtime"
	"sync/atomic"

	"github.com/Swind/go-fiber-sched/config"
)

// State is the lifecycle state of a Fiber.
//
// INIT -> EXEC -> {HOLD | READY | TERM | EXCEPT}; HOLD and READY fibers may
// re-enter EXEC any number of times. TERM and EXCEPT are terminal, except
// that Reset rearms a terminal sub-fiber with a new entry closure.
type State int32

const (
	StateInit State = iota
	StateReady
	StateExec
	StateHold
	StateTerm
	StateExcept
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StateExec:
		return "EXEC"
	case StateHold:
		return "HOLD"
	case StateTerm:
		return "TERM"
	case StateExcept:
		return "EXCEPT"
	default:
		return "UNKNOWN"
	}
}

func (s State) terminal() bool { return s == StateTerm || s == StateExcept }

// stateUnchanged tells yield to leave the state field alone (Back/SwapOut).
const stateUnchanged State = -1

type returnTarget int

const (
	returnToDispatch returnTarget = iota
	returnToThreadMain
)

var (
	nextFiberID atomic.Uint64
	liveFibers  atomic.Int64
)

var stackSizeVar = config.Lookup("fiber.stack_size", 128*1024, "fiber stack size")

// fiberBody carries everything the backing goroutine touches. It is a
// separate allocation from Fiber so the parked goroutine and the cleanup do
// not keep the handle itself alive: when the last Fiber handle is dropped,
// the cleanup closes quit and the goroutine exits.
type fiberBody struct {
	id       uint64
	returnTo returnTarget

	state atomic.Int32
	fn    func()

	// Unbuffered handoff channels. resume wakes the fiber goroutine,
	// yielded returns control to whoever resumed it; exactly one side runs
	// at any time, which is what lets the remaining fields go unlocked.
	resume  chan struct{}
	yielded chan struct{}
	quit    chan struct{}

	env     *threadEnv // environment of the resuming thread, set before each resume
	resumer *Fiber     // fiber control returns to on yield/completion
	gid     uint64     // goroutine id of the backing goroutine
	running bool       // backing goroutine exists
}

// Fiber is a stackful user-space coroutine with explicit yield and resume.
//
// Each sub-fiber is backed by a dedicated goroutine created lazily on first
// resume and parked on a channel between resumes; the Go runtime owns the
// actual stack, so StackSize is the fiber's accounting attribute rather
// than a malloc'd buffer. The backing goroutine survives TERM/EXCEPT so
// Reset reuses it, satisfying the rule that a reset fiber runs its new
// entry on the same stack.
//
// Caveats of the goroutine-backed context switch: a fiber must not be
// resumed from a signal handler, and dropping the last handle to a fiber
// that is merely suspended (HOLD) strands its parked goroutine until the
// handle is collected - the same misuse the original design catches with a
// destructor assertion.
type Fiber struct {
	id        uint64
	stackSize int
	main      bool
	returnTo  returnTarget
	body      *fiberBody
}

func fiberCleanup(b *fiberBody) {
	if b.quit != nil {
		close(b.quit)
	}
	liveFibers.Add(-1)
}

// NewFiber creates a sub-fiber in INIT around the given entry closure.
// A stackSize of 0 means the configured default ("fiber.stack_size",
// 128 KiB). useCaller selects the return path taken when the entry
// completes: false returns to the scheduler's dispatch fiber, true to the
// thread's main fiber.
func NewFiber(fn func(), stackSize int, useCaller bool) *Fiber {
	assertf(fn != nil, "fiber needs an entry closure")
	if stackSize <= 0 {
		stackSize = stackSizeVar.Get()
	}
	ret := returnToDispatch
	if useCaller {
		ret = returnToThreadMain
	}
	b := &fiberBody{
		returnTo: ret,
		fn:       fn,
		resume:   make(chan struct{}),
		yielded:  make(chan struct{}),
		quit:     make(chan struct{}),
	}
	b.state.Store(int32(StateInit))
	f := &Fiber{
		id:        nextFiberID.Add(1),
		stackSize: stackSize,
		returnTo:  ret,
		body:      b,
	}
	b.id = f.id
	liveFibers.Add(1)
	runtime.AddCleanup(f, fiberCleanup, b)
	sysLogger.Debug("fiber created", F("fiber_id", f.id), F("stack_size", stackSize))
	return f
}

// newMainFiber wraps the calling thread's native stack. It allocates no
// stack and no goroutine, starts in EXEC, and is published as both the
// thread main fiber and the current fiber.
func newMainFiber(env *threadEnv) *Fiber {
	b := &fiberBody{}
	b.state.Store(int32(StateExec))
	f := &Fiber{
		id:   nextFiberID.Add(1),
		main: true,
		body: b,
	}
	b.id = f.id
	liveFibers.Add(1)
	runtime.AddCleanup(f, fiberCleanup, b)
	env.threadMain = f
	env.current = f
	sysLogger.Debug("fiber created main", F("fiber_id", f.id))
	return f
}

func mainFiberFor(env *threadEnv) *Fiber {
	if env.threadMain == nil {
		newMainFiber(env)
	}
	return env.threadMain
}

// ID returns the fiber id, monotonic and never reused process-wide.
func (f *Fiber) ID() uint64 { return f.id }

// State returns the current lifecycle state.
func (f *Fiber) State() State { return State(f.body.state.Load()) }

// StackSize returns the stack size recorded at construction.
func (f *Fiber) StackSize() int { return f.stackSize }

// IsMain reports whether this is a thread main fiber.
func (f *Fiber) IsMain() bool { return f.main }

// Reset replaces the entry closure of a sub-fiber that is INIT, TERM or
// EXCEPT and rearms it to INIT. The backing goroutine (and with it the
// stack) is reused; a subsequent resume runs fn from the start.
func (f *Fiber) Reset(fn func()) {
	assertf(!f.main, "cannot reset a main fiber")
	assertf(fn != nil, "fiber needs an entry closure")
	st := f.State()
	assertf(st == StateInit || st.terminal(),
		"reset requires INIT/TERM/EXCEPT, fiber %d is %s", f.id, st)
	f.body.fn = fn
	f.body.state.Store(int32(StateInit))
}

// switchIn transfers control from the calling thread into this fiber and
// blocks until the fiber yields or completes. When premarked is true the
// caller already transitioned the state to EXEC: the dispatch scan does so
// under the scheduler mutex (closing the window two workers could otherwise
// race through), and the dispatch loop does so for its own closure fiber,
// which no run queue holds.
func (f *Fiber) switchIn(env *threadEnv, premarked bool) {
	assertf(!f.main, "cannot resume a main fiber")
	b := f.body
	if premarked {
		assertf(f.State() == StateExec, "premarked fiber %d is %s", f.id, f.State())
	} else {
		st := f.State()
		assertf(st != StateExec, "fiber %d is already executing", f.id)
		assertf(!st.terminal(), "fiber %d already completed (%s)", f.id, st)
		b.state.Store(int32(StateExec))
	}
	cur := env.current
	if cur == nil {
		cur = mainFiberFor(env)
	}
	assertf(cur != f, "fiber %d cannot resume into itself", f.id)

	b.env = env
	b.resumer = cur
	env.current = f
	if !b.running {
		b.running = true
		go b.trampoline()
	}
	b.resume <- struct{}{}
	<-b.yielded
}

// markExec transitions the fiber to EXEC. Called by the dispatch scan while
// it still holds the scheduler mutex, and by the dispatch loop for its
// closure fiber, which is not in any run queue.
func (f *Fiber) markExec() {
	f.body.state.Store(int32(StateExec))
}

// forceHold parks a fiber that came back from a resume still claiming EXEC
// (a raw Back/SwapOut with no yield state). The dispatcher owns the fiber
// at that point, so the store is safe.
func (f *Fiber) forceHold() {
	f.body.state.Store(int32(StateHold))
}

// Call resumes this fiber from the thread main fiber. Used when a fiber is
// driven directly by its owning thread rather than through a scheduler.
func (f *Fiber) Call() {
	env := currentEnv()
	main := mainFiberFor(env)
	assertf(env.current == nil || env.current == main,
		"Call requires the thread main fiber, current is fiber %d", currentFiberID(env))
	f.switchIn(env, false)
}

// Back returns control from this fiber to the thread main fiber. The state
// is left untouched; use YieldToHold/YieldToReady to record a disposition.
func (f *Fiber) Back() {
	b := f.body
	assertf(b.env != nil && b.env.current == f, "Back outside EXEC, fiber %d", f.id)
	assertf(b.resumer == b.env.threadMain,
		"Back on fiber %d, but it was not resumed by the thread main fiber", f.id)
	f.yield(stateUnchanged)
}

// SwapIn resumes this fiber from the scheduler's dispatch fiber. Only the
// dispatch loop calls this on a thread that has one.
func (f *Fiber) SwapIn() {
	env := currentEnv()
	assertf(env.dispatch != nil, "SwapIn needs a dispatch fiber on this thread")
	assertf(env.current == env.dispatch,
		"SwapIn must run on the dispatch fiber, current is fiber %d", currentFiberID(env))
	f.switchIn(env, false)
}

// swapInMarked is SwapIn for fibers the dispatch scan already moved to EXEC.
func (f *Fiber) swapInMarked(env *threadEnv) {
	f.switchIn(env, true)
}

// SwapOut returns control from this fiber to the scheduler's dispatch
// fiber, leaving the state untouched.
func (f *Fiber) SwapOut() {
	b := f.body
	assertf(b.env != nil && b.env.current == f, "SwapOut outside EXEC, fiber %d", f.id)
	assertf(b.resumer == b.env.dispatch,
		"SwapOut on fiber %d, but it was not resumed by the dispatch fiber", f.id)
	f.yield(stateUnchanged)
}

// yield suspends the fiber, publishes the resumer as the thread's current
// fiber, and hands control back to it. Runs on the fiber goroutine; returns
// when somebody resumes the fiber again.
func (f *Fiber) yield(next State) {
	b := f.body
	env := b.env
	to := b.resumer
	assertf(env != nil && env.current == f, "yield outside EXEC, fiber %d", f.id)
	env.current = to
	glsClear(b.gid)
	// The state store is the point at which another worker may legally take
	// this fiber from a run queue, so everything above reads its fields
	// first.
	if next != stateUnchanged {
		b.state.Store(int32(next))
	}
	b.yielded <- struct{}{}

	// Parked. The next switchIn re-arms env/resumer before signalling; quit
	// fires when the last handle to a suspended fiber was dropped and
	// collected, in which case the goroutine unwinds and dies.
	select {
	case <-b.resume:
	case <-b.quit:
		runtime.Goexit()
	}
	glsSet(b.gid, b.env)
}

// trampoline is the unified fiber entry. It parks until resumed, runs the
// entry closure with panic isolation, then returns control along the path
// selected at construction and parks again so Reset can rearm the fiber.
func (b *fiberBody) trampoline() {
	b.gid = goid()
	for {
		select {
		case <-b.resume:
		case <-b.quit:
			return
		}
		glsSet(b.gid, b.env)
		// Locals, not fields: once the entry stores a terminal state the
		// fiber may be Reset and rescheduled by its holder, and a new
		// resume would overwrite env/resumer under us.
		env := b.env
		resumer := b.resumer

		b.runEntry()

		var expect *Fiber
		if b.returnTo == returnToThreadMain {
			expect = env.threadMain
		} else {
			expect = env.dispatch
		}
		assertf(expect == nil || expect == resumer,
			"fiber %d completed onto an unexpected return path", b.id)
		env.current = resumer
		glsClear(b.gid)
		b.yielded <- struct{}{}
	}
}

func (b *fiberBody) runEntry() {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, fatal := r.(*assertionError); fatal {
			// A violated precondition (Back instead of SwapOut, yield from
			// the wrong state, ...) is a programming error, not a user-fiber
			// exception: it must abort the process, not become EXCEPT.
			panic(r)
		}
		b.fn = nil
		b.state.Store(int32(StateExcept))
		stack := Backtrace(3, backtraceDepth)
		sysLogger.Error("fiber except",
			F("fiber_id", b.id),
			F("panic", r),
			F("backtrace", stack),
		)
		if env := b.env; env != nil && env.scheduler != nil {
			env.scheduler.notifyPanic(b.id, env.threadID, r, stack)
		}
	}()
	fn := b.fn
	assertf(fn != nil, "fiber %d resumed with no entry closure", b.id)
	fn()
	b.fn = nil
	b.state.Store(int32(StateTerm))
}

func currentFiberID(env *threadEnv) uint64 {
	if env.current == nil {
		return 0
	}
	return env.current.id
}

// =============================================================================
// Statics
// =============================================================================

// Current returns the calling thread's fiber in EXEC, creating the thread
// main fiber lazily when the thread has none yet.
func Current() *Fiber {
	env := currentEnv()
	if env.current == nil {
		env.current = mainFiberFor(env)
	}
	return env.current
}

// SetCurrent publishes f as the calling thread's current fiber.
func SetCurrent(f *Fiber) {
	currentEnv().current = f
}

// CurrentID returns the id of the calling thread's current fiber, or 0 when
// the thread has never touched a fiber.
func CurrentID() uint64 {
	if env := glsGet(); env != nil && env.current != nil {
		return env.current.id
	}
	return 0
}

// TotalFibers returns the live fiber census: constructions minus
// collections, process-wide.
func TotalFibers() uint64 {
	n := liveFibers.Load()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// YieldToHold suspends the current fiber in HOLD. The fiber stays out of
// any run queue until something reschedules it.
func YieldToHold() {
	cur := Current()
	assertf(!cur.main, "cannot yield the thread main fiber")
	assertf(cur.State() == StateExec, "yield requires EXEC, fiber %d is %s", cur.id, cur.State())
	cur.yield(StateHold)
}

// YieldToReady suspends the current fiber in READY; a scheduler that
// resumed it re-enqueues it at the tail of its run queue.
func YieldToReady() {
	cur := Current()
	assertf(!cur.main, "cannot yield the thread main fiber")
	assertf(cur.State() == StateExec, "yield requires EXEC, fiber %d is %s", cur.id, cur.State())
	cur.yield(StateReady)
}
