package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordStage("fusion", "succeeded", 1.5)
	r.RecordStage("fusion", "succeeded", 0.5)
	r.RecordCache(true)
	r.RecordCache(false)
	r.RecordCache(false)
	r.RecordRun(true, 10)

	if got := testutil.ToFloat64(r.stageOutcomes.WithLabelValues("fusion", "succeeded")); got != 2 {
		t.Fatalf("stage outcomes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.cache.WithLabelValues("miss")); got != 2 {
		t.Fatalf("cache misses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.runs.WithLabelValues("success")); got != 1 {
		t.Fatalf("runs = %v, want 1", got)
	}
}
