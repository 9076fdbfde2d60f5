package core

import (
	"testing"
)

// TestThread_LaunchAndJoin tests synchronized thread launch
// Given: a closure that records its thread identity
// When: a Thread is constructed
// Then: the id is published before the constructor returns and matches
// what the closure observes
func TestThread_LaunchAndJoin(t *testing.T) {
	var observedID int64
	var observedName string

	th := NewThread(func() {
		observedID = CurrentThreadID()
		observedName = CurrentThreadName()
	}, "worker_a")

	if th.ID() == 0 {
		t.Fatalf("thread id not published by constructor")
	}
	th.Join()

	if observedID != th.ID() {
		t.Fatalf("closure saw thread id %d, constructor published %d", observedID, th.ID())
	}
	if observedName != "worker_a" {
		t.Fatalf("closure saw thread name %q, want \"worker_a\"", observedName)
	}
	if th.Name() != "worker_a" {
		t.Fatalf("Name() = %q, want \"worker_a\"", th.Name())
	}
}

// TestThread_DistinctIDs tests that spawned threads get distinct ids
func TestThread_DistinctIDs(t *testing.T) {
	ids := make(chan int64, 4)
	var threads []*Thread
	for i := 0; i < 4; i++ {
		threads = append(threads, NewThread(func() {
			ids <- CurrentThreadID()
		}, ""))
	}
	seen := make(map[int64]bool)
	for _, th := range threads {
		th.Join()
		id := <-ids
		if seen[id] {
			t.Fatalf("thread id %d observed twice", id)
		}
		seen[id] = true
	}
}

// TestThread_CallerAdoption tests lazy adoption of a plain goroutine
func TestThread_CallerAdoption(t *testing.T) {
	first := CurrentThreadID()
	if first == 0 {
		t.Fatalf("adopted thread id should be nonzero")
	}
	if again := CurrentThreadID(); again != first {
		t.Fatalf("adopted thread id changed: %d -> %d", first, again)
	}
	if CurrentThread() != nil {
		t.Fatalf("adopted goroutine should have no Thread handle")
	}

	SetCurrentThreadName("adopted")
	if CurrentThreadName() != "adopted" {
		t.Fatalf("SetCurrentThreadName did not stick")
	}
}

// TestThread_CurrentInsideSpawned tests the Thread handle thread-local
func TestThread_CurrentInsideSpawned(t *testing.T) {
	got := make(chan *Thread, 1)
	th := NewThread(func() {
		got <- CurrentThread()
	}, "self")
	th.Join()
	if inner := <-got; inner != th {
		t.Fatalf("CurrentThread inside the thread = %p, want %p", inner, th)
	}
}
