package core

import (
	"testing"
	"time"
)

// TestExecutionHistory_NewestFirst tests snapshot ordering
func TestExecutionHistory_NewestFirst(t *testing.T) {
	h := NewExecutionHistory(8)
	for i := 1; i <= 3; i++ {
		h.Append(ResumeRecord{FiberID: uint64(i), At: time.Now()})
	}
	snap := h.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot len = %d, want 3", len(snap))
	}
	if snap[0].FiberID != 3 || snap[1].FiberID != 2 || snap[2].FiberID != 1 {
		t.Fatalf("snapshot order = %v", []uint64{snap[0].FiberID, snap[1].FiberID, snap[2].FiberID})
	}
}

// TestExecutionHistory_RingOverwrite tests the fixed-capacity ring
func TestExecutionHistory_RingOverwrite(t *testing.T) {
	h := NewExecutionHistory(4)
	for i := 1; i <= 10; i++ {
		h.Append(ResumeRecord{FiberID: uint64(i)})
	}
	if h.Len() != 4 {
		t.Fatalf("len = %d, want 4", h.Len())
	}
	snap := h.Snapshot()
	want := []uint64{10, 9, 8, 7}
	for i, r := range snap {
		if r.FiberID != want[i] {
			t.Fatalf("snapshot[%d] = %d, want %d", i, r.FiberID, want[i])
		}
	}
}
