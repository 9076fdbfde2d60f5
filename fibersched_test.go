package fibersched_test

import (
	"sync/atomic"
	"testing"
	"time"

	fibersched "github.com/Swind/go-fiber-sched"
	"github.com/Swind/go-fiber-sched/core"
)

// TestGlobalScheduler_Lifecycle tests the singleton helpers
// Given: an initialized global scheduler
// When: work is scheduled and the scheduler is shut down
// Then: the work ran and a second init/shutdown cycle works
func TestGlobalScheduler_Lifecycle(t *testing.T) {
	fibersched.InitGlobalScheduler(2)
	fibersched.InitGlobalScheduler(2) // idempotent

	var ran atomic.Int32
	fibersched.Schedule(func() { ran.Add(1) })
	fibersched.ShutdownGlobalScheduler()

	if ran.Load() != 1 {
		t.Fatalf("ran = %d, want 1", ran.Load())
	}

	fibersched.InitGlobalScheduler(1)
	fibersched.Schedule(func() { ran.Add(1) })
	fibersched.ShutdownGlobalScheduler()

	if ran.Load() != 2 {
		t.Fatalf("ran = %d after second cycle, want 2", ran.Load())
	}
}

// TestGlobalScheduler_PanicsWhenUninitialized tests the access contract
func TestGlobalScheduler_PanicsWhenUninitialized(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("GetGlobalScheduler must panic before InitGlobalScheduler")
		}
	}()
	fibersched.GetGlobalScheduler()
}

// TestScheduleAndReply tests the reply-to-submitting-thread wrapper
// Given: a closure running on a worker that submits work with a reply
// When: the work completes
// Then: the reply runs after the work, on the submitting thread
func TestScheduleAndReply(t *testing.T) {
	s := fibersched.NewScheduler(3, false, "reply")
	s.Start()

	// The submitting closure must not block its own thread: the reply is
	// pinned to it, so results flow out through buffered channels instead.
	originCh := make(chan int64, 1)
	workCh := make(chan int64, 1)
	replyCh := make(chan int64, 1)

	s.Schedule(func() {
		originCh <- core.CurrentThreadID()
		fibersched.ScheduleAndReply(s,
			func() { workCh <- core.CurrentThreadID() },
			func() { replyCh <- core.CurrentThreadID() })
	})

	recv := func(ch chan int64, what string) int64 {
		select {
		case v := <-ch:
			return v
		case <-time.After(10 * time.Second):
			t.Fatalf("%s timed out", what)
			return 0
		}
	}
	origin := recv(originCh, "submit")
	work := recv(workCh, "work")
	reply := recv(replyCh, "reply")
	s.Stop()

	if reply != origin {
		t.Fatalf("reply ran on thread %d, submitted from %d", reply, origin)
	}
	if work == 0 {
		t.Fatalf("work never recorded its thread")
	}
}
