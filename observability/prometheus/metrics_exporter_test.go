package prometheus

import (
	"fmt"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("fibersched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordResumeDuration("sched-a", 250*time.Millisecond)
	exporter.RecordFiberExcept("sched-a")
	exporter.RecordQueueDepth("sched-a", 7)
	exporter.RecordWorkRejected("sched-a", "stopped")

	exceptTotal := testutil.ToFloat64(exporter.fiberExceptTotal.WithLabelValues("sched-a"))
	if exceptTotal != 1 {
		t.Fatalf("except total = %v, want 1", exceptTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("sched-a"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	rejected := testutil.ToFloat64(exporter.workRejectedTotal.WithLabelValues("sched-a", "stopped"))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1", rejected)
	}

	histCount, err := histogramSampleCount(exporter.resumeDurationSeconds.WithLabelValues("sched-a"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("fibersched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("fibersched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordFiberExcept("sched-a")
	second.RecordFiberExcept("sched-a")

	total := testutil.ToFloat64(second.fiberExceptTotal.WithLabelValues("sched-a"))
	if total != 2 {
		t.Fatalf("both exporters must share collectors, total = %v, want 2", total)
	}
}

func TestMetricsExporter_EmptyLabelsNormalized(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("fibersched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordWorkRejected("", "")
	rejected := testutil.ToFloat64(exporter.workRejectedTotal.WithLabelValues("unknown", "unknown"))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1 under the fallback labels", rejected)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	metric, ok := observer.(prom.Metric)
	if !ok {
		return 0, fmt.Errorf("observer is not a Metric")
	}
	var out dto.Metric
	if err := metric.Write(&out); err != nil {
		return 0, err
	}
	if out.Histogram == nil {
		return 0, fmt.Errorf("metric is not a histogram")
	}
	return out.Histogram.GetSampleCount(), nil
}
