package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

// MetricsWrapper adapts Metrics to the small per-package metrics interfaces
// declared by dataset, structure, ml and gia.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) ErrorsTotal() MetricsCounter {
	return &CounterWrapper{w.m.ErrorsTotal}
}

// dataset

func (w *MetricsWrapper) SequencesEncodedAdd(n int) {
	w.m.SequencesEncoded.Add(float64(n))
}

func (w *MetricsWrapper) PartitionRows(rows map[string]int) {
	w.m.RecordPartitions(rows)
}

// structure

func (w *MetricsWrapper) StructureRunInc(loop string) {
	w.m.StructureRuns.WithLabelValues(loop).Inc()
}

func (w *MetricsWrapper) StructureFailureInc(loop string) {
	w.m.StructureFailures.WithLabelValues(loop).Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) StructureDurationObserve(seconds float64) {
	w.m.StructureDuration.Observe(seconds)
}

// ml

func (w *MetricsWrapper) MLPredictionsAdd(n int) {
	w.m.MLPredictions.Add(float64(n))
}

func (w *MetricsWrapper) MLBatchesInc() {
	w.m.MLBatches.Inc()
}

func (w *MetricsWrapper) MLFailuresInc() {
	w.m.MLFailures.Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(seconds float64) {
	w.m.MLLatency.Observe(seconds)
}

func (w *MetricsWrapper) MLTimeoutsInc() {
	w.m.MLTimeouts.Inc()
}

// gia

func (w *MetricsWrapper) NullEnsembleSet(size int, mean float64) {
	w.m.NullEnsembleSize.Set(float64(size))
	w.m.NullMeanScore.Set(mean)
}

func (w *MetricsWrapper) InterventionsInc() {
	w.m.Interventions.Inc()
}

func (w *MetricsWrapper) EffectSizeObserve(v float64) {
	w.m.EffectSizes.Observe(v)
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}
