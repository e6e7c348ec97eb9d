package ml

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"residualbind/internal/tensor"
)

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	MLPredictionsAdd(n int)
	MLBatchesInc()
	MLFailuresInc()
	MLLatencyObserve(seconds float64)
	MLTimeoutsInc()
}

// Instrumented wraps a Predictor, batching calls itself so that every batch
// is counted and timed.
type Instrumented struct {
	next    Predictor
	metrics MetricsInterface
}

// NewInstrumented wraps p. A nil metrics makes it a plain pass-through.
func NewInstrumented(p Predictor, metrics MetricsInterface) *Instrumented {
	return &Instrumented{next: p, metrics: metrics}
}

// Predict implements Predictor.
func (in *Instrumented) Predict(ctx context.Context, x *tensor.Tensor, batchSize int) ([][]float32, error) {
	return predictBatches(ctx, x, batchSize, in.predictBatch)
}

func (in *Instrumented) predictBatch(ctx context.Context, batch *tensor.Tensor) ([][]float32, error) {
	start := time.Now()
	preds, err := in.next.Predict(ctx, batch, batch.Len())

	if in.metrics == nil {
		return preds, err
	}
	in.metrics.MLLatencyObserve(time.Since(start).Seconds())
	in.metrics.MLBatchesInc()
	if err != nil {
		in.metrics.MLFailuresInc()
		if errors.Is(err, context.DeadlineExceeded) {
			in.metrics.MLTimeoutsInc()
		}
		log.Warn().Err(err).Int("batch", batch.Len()).Msg("Prediction batch failed")
		return nil, err
	}
	in.metrics.MLPredictionsAdd(len(preds))
	return preds, nil
}
