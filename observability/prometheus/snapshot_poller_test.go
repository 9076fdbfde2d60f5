package prometheus

import (
	"testing"
	"time"

	"github.com/Swind/go-fiber-sched/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type staticStats struct {
	stats core.SchedulerStats
}

func (s staticStats) Stats() core.SchedulerStats { return s.stats }

func TestSnapshotPoller_PollOnce(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, time.Second)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddScheduler("main", staticStats{stats: core.SchedulerStats{
		Name:       "main",
		Workers:    4,
		Active:     2,
		Idle:       1,
		QueueDepth: 9,
		Stopping:   true,
		LiveFibers: 12,
	}})
	poller.PollOnce()

	if got := testutil.ToFloat64(poller.workers.WithLabelValues("main")); got != 4 {
		t.Fatalf("workers gauge = %v, want 4", got)
	}
	if got := testutil.ToFloat64(poller.active.WithLabelValues("main")); got != 2 {
		t.Fatalf("active gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.queueDepth.WithLabelValues("main")); got != 9 {
		t.Fatalf("queue depth gauge = %v, want 9", got)
	}
	if got := testutil.ToFloat64(poller.stopping.WithLabelValues("main")); got != 1 {
		t.Fatalf("stopping gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.liveFibers); got != 12 {
		t.Fatalf("live fibers gauge = %v, want 12", got)
	}

	poller.RemoveScheduler("main")
}

func TestSnapshotPoller_StartStop(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	sched := core.NewScheduler(1, false, "polled")
	sched.Start()
	defer sched.Stop()

	poller.AddScheduler("polled", sched)
	poller.Start(t.Context())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(poller.workers.WithLabelValues("polled")) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	poller.Stop()
	poller.Stop() // idempotent

	if got := testutil.ToFloat64(poller.workers.WithLabelValues("polled")); got != 1 {
		t.Fatalf("workers gauge = %v, want 1", got)
	}
}
