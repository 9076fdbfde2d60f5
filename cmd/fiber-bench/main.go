// fiber-bench drives the scheduler with a configurable yield workload and
// reports throughput, optionally exposing Prometheus metrics while it runs.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/Swind/go-fiber-sched/core"
	obs "github.com/Swind/go-fiber-sched/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	flagWorkers     int
	flagFibers      int
	flagYields      int
	flagUseCaller   bool
	flagMetricsAddr string
)

func main() {
	root := &cobra.Command{
		Use:   "fiber-bench",
		Short: "Benchmark the fiber scheduler",
	}

	bench := &cobra.Command{
		Use:   "bench",
		Short: "Run fibers that repeatedly reschedule themselves and yield",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench()
		},
	}
	bench.Flags().IntVar(&flagWorkers, "workers", 4, "worker thread count")
	bench.Flags().IntVar(&flagFibers, "fibers", 1000, "number of fibers to schedule")
	bench.Flags().IntVar(&flagYields, "yields", 1000, "yield cycles per fiber")
	bench.Flags().BoolVar(&flagUseCaller, "use-caller", false, "reuse the main thread as a worker")
	bench.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "expose /metrics on this address while running")

	root.AddCommand(bench)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBench() error {
	conf := core.DefaultSchedulerConfig()
	conf.Logger = core.NopLogger{}

	reg := prom.NewRegistry()
	if flagMetricsAddr != "" {
		exporter, err := obs.NewMetricsExporter("fibersched", reg, obs.ExporterOptions{})
		if err != nil {
			return err
		}
		conf.Metrics = exporter
	}

	sched := core.NewSchedulerWithConfig(flagWorkers, flagUseCaller, "bench", conf)

	if flagMetricsAddr != "" {
		poller, err := obs.NewSnapshotPoller(reg, 250*time.Millisecond)
		if err != nil {
			return err
		}
		poller.AddScheduler("bench", sched)
		poller.Start(context.Background())
		defer poller.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			_ = http.ListenAndServe(flagMetricsAddr, mux)
		}()
		fmt.Printf("metrics on http://%s/metrics\n", flagMetricsAddr)
	}

	before := core.TotalFibers()
	start := time.Now()
	sched.Start()

	var completed atomic.Int64
	yields := flagYields
	for i := 0; i < flagFibers; i++ {
		sched.Schedule(func() {
			for j := 0; j < yields; j++ {
				core.CurrentScheduler().ScheduleFiber(core.Current())
				core.YieldToHold()
			}
			completed.Add(1)
		})
	}

	for completed.Load() < int64(flagFibers) {
		time.Sleep(time.Millisecond)
	}
	sched.Stop()
	elapsed := time.Since(start)

	switches := int64(flagFibers) * int64(yields+1)
	fmt.Printf("fibers=%d yields=%d workers=%d use_caller=%t\n",
		flagFibers, flagYields, flagWorkers, flagUseCaller)
	fmt.Printf("elapsed=%s resumes=%d (%.0f resumes/s)\n",
		elapsed, switches, float64(switches)/elapsed.Seconds())
	fmt.Printf("live fibers before=%d after=%d\n", before, core.TotalFibers())
	sched.Dump(os.Stdout)
	return nil
}
