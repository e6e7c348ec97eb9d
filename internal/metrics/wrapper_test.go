package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestWrapper() (*Metrics, *MetricsWrapper) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	return metrics, NewWrapper(metrics)
}

func TestNewWrapper(t *testing.T) {
	metrics, wrapper := newTestWrapper()

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_DatasetMethods(t *testing.T) {
	metrics, wrapper := newTestWrapper()

	wrapper.SequencesEncodedAdd(120)
	wrapper.SequencesEncodedAdd(30)
	if v := testutil.ToFloat64(metrics.SequencesEncoded); v != 150 {
		t.Errorf("Expected 150 encoded sequences, got %f", v)
	}

	wrapper.PartitionRows(map[string]int{"train": 90, "valid": 10, "test": 50})
	if v := testutil.ToFloat64(metrics.DatasetRows.WithLabelValues("train")); v != 90 {
		t.Errorf("Expected 90 train rows, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.DatasetRows.WithLabelValues("test")); v != 50 {
		t.Errorf("Expected 50 test rows, got %f", v)
	}
}

func TestMetricsWrapper_StructureMethods(t *testing.T) {
	metrics, wrapper := newTestWrapper()

	for _, loop := range []string{"H", "I", "M", "E"} {
		wrapper.StructureRunInc(loop)
	}
	wrapper.StructureFailureInc("M")
	wrapper.StructureDurationObserve(1.5)

	if v := testutil.ToFloat64(metrics.StructureRuns.WithLabelValues("H")); v != 1 {
		t.Errorf("Expected 1 hairpin run, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.StructureFailures.WithLabelValues("M")); v != 1 {
		t.Errorf("Expected 1 multi-loop failure, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.ErrorsTotal); v != 1 {
		t.Errorf("Expected failures to count as errors, got %f", v)
	}
	if n := testutil.CollectAndCount(metrics.StructureDuration); n != 1 {
		t.Errorf("Expected one duration series, got %d", n)
	}
}

func TestMetricsWrapper_MLMethods(t *testing.T) {
	metrics, wrapper := newTestWrapper()

	wrapper.MLPredictionsAdd(100)
	if v := testutil.ToFloat64(metrics.MLPredictions); v != 100 {
		t.Errorf("Expected 100 ML predictions, got %f", v)
	}

	wrapper.MLBatchesInc()
	if v := testutil.ToFloat64(metrics.MLBatches); v != 1 {
		t.Errorf("Expected 1 ML batch, got %f", v)
	}

	wrapper.MLFailuresInc()
	if v := testutil.ToFloat64(metrics.MLFailures); v != 1 {
		t.Errorf("Expected 1 ML failure, got %f", v)
	}

	wrapper.MLTimeoutsInc()
	if v := testutil.ToFloat64(metrics.MLTimeouts); v != 1 {
		t.Errorf("Expected 1 ML timeout, got %f", v)
	}

	wrapper.MLLatencyObserve(0.25)
	if n := testutil.CollectAndCount(metrics.MLLatency); n != 1 {
		t.Errorf("Expected one latency series, got %d", n)
	}
}

func TestMetricsWrapper_GIAMethods(t *testing.T) {
	metrics, wrapper := newTestWrapper()

	wrapper.NullEnsembleSet(1000, 0.25)
	if v := testutil.ToFloat64(metrics.NullEnsembleSize); v != 1000 {
		t.Errorf("Expected ensemble size 1000, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.NullMeanScore); v != 0.25 {
		t.Errorf("Expected mean score 0.25, got %f", v)
	}

	wrapper.InterventionsInc()
	wrapper.InterventionsInc()
	if v := testutil.ToFloat64(metrics.Interventions); v != 2 {
		t.Errorf("Expected 2 interventions, got %f", v)
	}

	wrapper.EffectSizeObserve(0.3)
}

func TestCounterWrapper_DirectUsage(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter for unit tests",
	})

	wrapper := &CounterWrapper{c: counter}

	wrapper.Inc()
	if value := testutil.ToFloat64(counter); value != 1 {
		t.Errorf("Expected counter value 1, got %f", value)
	}
}

func TestMetricsWrapper_ConcurrentAccess(t *testing.T) {
	metrics, wrapper := newTestWrapper()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				wrapper.MLPredictionsAdd(1)
				wrapper.MLLatencyObserve(0.01)
				wrapper.InterventionsInc()
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	expected := 1000.0
	if v := testutil.ToFloat64(metrics.MLPredictions); v != expected {
		t.Errorf("Expected %f predictions after concurrent access, got %f", expected, v)
	}
	if v := testutil.ToFloat64(metrics.Interventions); v != expected {
		t.Errorf("Expected %f interventions after concurrent access, got %f", expected, v)
	}
}

func TestMetricsWrapper_NilGuard(t *testing.T) {
	wrapper := &MetricsWrapper{m: nil}

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when accessing nil metrics")
		}
	}()

	wrapper.MLBatchesInc()
}

func BenchmarkMetricsWrapper_MLLatencyObserve(b *testing.B) {
	_, wrapper := newTestWrapper()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.MLLatencyObserve(0.01)
	}
}
