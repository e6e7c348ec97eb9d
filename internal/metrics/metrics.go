// Package metrics provides Prometheus metrics collection for the residualbind
// pipeline. It defines and manages the dataset, structure-prediction, model
// inference and GIA metrics exposed via the Prometheus metrics endpoint while
// long-running jobs execute.
//
// The package includes metrics for sequence encoding, external structure
// predictor runs, predictor batches and the state of the GIA null ensemble.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Dataset metrics
	SequencesEncoded prometheus.Counter   // Total number of sequences one-hot encoded
	DatasetRows      *prometheus.GaugeVec // Rows written per dataset partition

	// Structure prediction metrics
	StructureRuns     *prometheus.CounterVec // External structure predictor runs per loop type
	StructureFailures *prometheus.CounterVec // Failed structure predictor runs per loop type
	StructureDuration prometheus.Histogram   // Duration of a single structure predictor run

	// Predictor metrics
	MLPredictions prometheus.Counter   // Total number of sequences scored by the predictor
	MLBatches     prometheus.Counter   // Total number of predictor batches
	MLFailures    prometheus.Counter   // Total number of failed predictor batches
	MLLatency     prometheus.Histogram // Predictor batch latency in seconds
	MLTimeouts    prometheus.Counter   // Total number of predictor timeouts

	// GIA metrics
	NullEnsembleSize prometheus.Gauge     // Current number of null sequences
	NullMeanScore    prometheus.Gauge     // Mean baseline prediction of the null ensemble
	Interventions    prometheus.Counter   // Total number of pattern interventions scored
	EffectSizes      prometheus.Histogram // Distribution of mean effect sizes

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		SequencesEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "sequences_encoded_total",
			Help: "Total number of sequences one-hot encoded",
		}),
		DatasetRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dataset_rows",
			Help: "Number of rows written per dataset partition",
		}, []string{"partition"}),
		StructureRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "structure_runs_total",
			Help: "Total number of external structure predictor runs",
		}, []string{"loop"}),
		StructureFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "structure_failures_total",
			Help: "Total number of failed external structure predictor runs",
		}, []string{"loop"}),
		StructureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "structure_duration_seconds",
			Help:    "Duration of a single structure predictor run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of sequences scored by the predictor",
		}),
		MLBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_batches_total",
			Help: "Total number of predictor batches",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of failed predictor batches",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Predictor batch latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		MLTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_timeouts_total",
			Help: "Total number of predictor timeouts",
		}),
		NullEnsembleSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gia_null_ensemble_size",
			Help: "Current number of null sequences in the GIA ensemble",
		}),
		NullMeanScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gia_null_mean_score",
			Help: "Mean baseline prediction of the GIA null ensemble",
		}),
		Interventions: factory.NewCounter(prometheus.CounterOpts{
			Name: "gia_interventions_total",
			Help: "Total number of pattern interventions scored",
		}),
		EffectSizes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gia_effect_size",
			Help:    "Distribution of mean GIA effect sizes",
			Buckets: prometheus.LinearBuckets(-2, 0.25, 17),
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// RecordPartitions sets the dataset row gauges from a partition->rows map.
func (m *Metrics) RecordPartitions(rows map[string]int) {
	for partition, n := range rows {
		m.DatasetRows.WithLabelValues(partition).Set(float64(n))
	}
}
