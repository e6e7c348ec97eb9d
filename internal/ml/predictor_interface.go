// Package ml connects the pipeline to a trained sequence model.
//
// The model itself is never loaded in-process. A Predictor maps a batch of
// position-major one-hot sequences (N, L, A) to an (N, classes) score matrix,
// either by running an inference script or by calling a model server. The
// package also provides instrumentation, Pearson evaluation of predictions
// against measured targets, and sliding-window prediction.
package ml

import (
	"context"
	"fmt"

	"residualbind/internal/tensor"
)

// Predictor scores sequences. batchSize only bounds how many sequences are
// sent to the model at once; results never depend on it.
type Predictor interface {
	// Predict returns one row of class scores per input sequence.
	Predict(ctx context.Context, x *tensor.Tensor, batchSize int) ([][]float32, error)
}

// PredictorFunc adapts a function scoring a single batch to a Predictor.
type PredictorFunc func(ctx context.Context, batch *tensor.Tensor) ([][]float32, error)

// Predict splits x into batches and calls f for each.
func (f PredictorFunc) Predict(ctx context.Context, x *tensor.Tensor, batchSize int) ([][]float32, error) {
	return predictBatches(ctx, x, batchSize, f)
}

// Batches returns the [from, to) ranges covering n rows in steps of size.
// A non-positive size yields a single batch.
func Batches(n, size int) [][2]int {
	if size <= 0 || size > n {
		size = n
	}
	var out [][2]int
	for from := 0; from < n; from += size {
		to := from + size
		if to > n {
			to = n
		}
		out = append(out, [2]int{from, to})
	}
	return out
}

func predictBatches(ctx context.Context, x *tensor.Tensor, batchSize int, fn func(context.Context, *tensor.Tensor) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, 0, x.Len())
	for _, b := range Batches(x.Len(), batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		preds, err := fn(ctx, x.Slice(b[0], b[1]))
		if err != nil {
			return nil, err
		}
		if len(preds) != b[1]-b[0] {
			return nil, fmt.Errorf("model returned %d predictions for a batch of %d", len(preds), b[1]-b[0])
		}
		out = append(out, preds...)
	}
	return out, nil
}

// Column extracts one class column from a prediction matrix.
func Column(preds [][]float32, class int) ([]float64, error) {
	col := make([]float64, len(preds))
	for i, row := range preds {
		if class < 0 || class >= len(row) {
			return nil, fmt.Errorf("class index %d out of range for %d outputs", class, len(row))
		}
		col[i] = float64(row[class])
	}
	return col, nil
}
