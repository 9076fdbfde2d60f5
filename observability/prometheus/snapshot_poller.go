package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-fiber-sched/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// SnapshotPoller periodically exports scheduler Stats() snapshots into
// Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	workers    *prom.GaugeVec
	active     *prom.GaugeVec
	idle       *prom.GaugeVec
	queueDepth *prom.GaugeVec
	stopping   *prom.GaugeVec
	liveFibers prom.Gauge

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	workers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "scheduler_workers",
		Help:      "Worker thread count per scheduler.",
	}, []string{"scheduler"})
	active := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "scheduler_active",
		Help:      "Workers currently resuming a fiber, per scheduler.",
	}, []string{"scheduler"})
	idle := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "scheduler_idle",
		Help:      "Workers currently in their idle fiber, per scheduler.",
	}, []string{"scheduler"})
	queueDepth := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "scheduler_queue_depth",
		Help:      "Run-queue depth snapshot per scheduler.",
	}, []string{"scheduler"})
	stopping := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "scheduler_stopping",
		Help:      "Scheduler stopping state (1=stopping, 0=running).",
	}, []string{"scheduler"})
	liveFibers := prom.NewGauge(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "live_fibers",
		Help:      "Process-wide live fiber count.",
	})

	p := &SnapshotPoller{
		interval:   interval,
		schedulers: make(map[string]SchedulerSnapshotProvider),
		workers:    workers,
		active:     active,
		idle:       idle,
		queueDepth: queueDepth,
		stopping:   stopping,
		liveFibers: liveFibers,
	}

	// Register the vector gauges in one sweep, adopting whatever instance a
	// previous poller left in the registry.
	for _, slot := range []**prom.GaugeVec{&p.workers, &p.active, &p.idle, &p.queueDepth, &p.stopping} {
		live, err := registerOrReuse(reg, *slot)
		if err != nil {
			return nil, err
		}
		*slot = live.(*prom.GaugeVec)
	}
	live, err := registerOrReuse(reg, p.liveFibers)
	if err != nil {
		return nil, err
	}
	p.liveFibers = live.(prom.Gauge)

	return p, nil
}

// AddScheduler registers a scheduler for polling under the given key.
func (p *SnapshotPoller) AddScheduler(key string, s SchedulerSnapshotProvider) {
	p.schedulersMu.Lock()
	defer p.schedulersMu.Unlock()
	p.schedulers[key] = s
}

// RemoveScheduler stops polling the scheduler registered under key.
func (p *SnapshotPoller) RemoveScheduler(key string) {
	p.schedulersMu.Lock()
	defer p.schedulersMu.Unlock()
	delete(p.schedulers, key)
}

// Start launches the polling goroutine. Calling Start on a running poller
// is a no-op.
func (p *SnapshotPoller) Start(ctx context.Context) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.pollOnce()
			}
		}
	}()
}

// Stop terminates the polling goroutine and waits for it to exit.
func (p *SnapshotPoller) Stop() {
	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	p.cancel()
	done := p.done
	p.running = false
	p.stateMu.Unlock()
	<-done
}

// PollOnce exports one snapshot of every registered scheduler. Exposed for
// tests and for callers that want to drive polling themselves.
func (p *SnapshotPoller) PollOnce() {
	p.pollOnce()
}

func (p *SnapshotPoller) pollOnce() {
	p.schedulersMu.RLock()
	defer p.schedulersMu.RUnlock()
	for key, s := range p.schedulers {
		stats := s.Stats()
		p.workers.WithLabelValues(key).Set(float64(stats.Workers))
		p.active.WithLabelValues(key).Set(float64(stats.Active))
		p.idle.WithLabelValues(key).Set(float64(stats.Idle))
		p.queueDepth.WithLabelValues(key).Set(float64(stats.QueueDepth))
		if stats.Stopping {
			p.stopping.WithLabelValues(key).Set(1)
		} else {
			p.stopping.WithLabelValues(key).Set(0)
		}
		p.liveFibers.Set(float64(stats.LiveFibers))
	}
}
