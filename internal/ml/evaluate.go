package ml

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"residualbind/internal/tensor"
)

// PearsonScores returns the Pearson correlation between measured targets and
// predictions for every class. Rows whose target is NaN are left out of that
// class's correlation.
func PearsonScores(yTrue *tensor.Matrix, yPred [][]float32) ([]float64, error) {
	if yTrue.Rows != len(yPred) {
		return nil, fmt.Errorf("have %d targets but %d predictions", yTrue.Rows, len(yPred))
	}

	scores := make([]float64, yTrue.Cols)
	for c := 0; c < yTrue.Cols; c++ {
		var xs, ys []float64
		for i := 0; i < yTrue.Rows; i++ {
			if c >= len(yPred[i]) {
				return nil, fmt.Errorf("prediction %d has %d classes, want %d", i, len(yPred[i]), yTrue.Cols)
			}
			t := float64(yTrue.Data[i*yTrue.Cols+c])
			if math.IsNaN(t) {
				continue
			}
			xs = append(xs, t)
			ys = append(ys, float64(yPred[i][c]))
		}
		if len(xs) < 2 {
			scores[c] = math.NaN()
			continue
		}
		scores[c] = stat.Correlation(xs, ys, nil)
	}
	return scores, nil
}

// PredictWindows slides a window of the given width along every sequence of
// x (N, L, A) with the given stride and predicts each window. The result has
// one row per sequence with the window predictions concatenated in order.
func PredictWindows(ctx context.Context, p Predictor, x *tensor.Tensor, window, stride, batchSize int) ([][]float32, error) {
	n, length, width := x.Shape[0], x.Shape[1], x.Shape[2]
	if window <= 0 || window > length {
		return nil, fmt.Errorf("window %d does not fit sequences of length %d", window, length)
	}
	if stride <= 0 {
		return nil, fmt.Errorf("stride must be positive, got %d", stride)
	}

	out := make([][]float32, n)
	for start := 0; start+window <= length; start += stride {
		crop := tensor.New(n, window, width)
		for i := 0; i < n; i++ {
			copy(crop.Example(i), x.Example(i)[start*width:(start+window)*width])
		}
		preds, err := p.Predict(ctx, crop, batchSize)
		if err != nil {
			return nil, fmt.Errorf("window at %d: %w", start, err)
		}
		for i := range out {
			out[i] = append(out[i], preds[i]...)
		}
	}
	return out, nil
}
