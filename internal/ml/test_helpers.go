package ml

import (
	"context"
	"sync"

	"residualbind/internal/tensor"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	predictions int
	batches     int
	failures    int
	latencySum  float64
	timeouts    int
}

func (m *MockMetrics) MLPredictionsAdd(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions += n
}

func (m *MockMetrics) MLBatchesInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLTimeoutsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts++
}

// CountingPredictor returns, for every sequence, the number of times symbol
// 0 occurs in it. It records the size of every batch it sees.
type CountingPredictor struct {
	mu      sync.Mutex
	Batches []int
}

func (c *CountingPredictor) Predict(ctx context.Context, x *tensor.Tensor, batchSize int) ([][]float32, error) {
	return PredictorFunc(func(_ context.Context, batch *tensor.Tensor) ([][]float32, error) {
		c.mu.Lock()
		c.Batches = append(c.Batches, batch.Len())
		c.mu.Unlock()

		out := make([][]float32, batch.Len())
		for i := range out {
			ex := batch.Example(i)
			var count float32
			for pos := 0; pos < batch.Shape[1]; pos++ {
				count += ex[pos*batch.Shape[2]]
			}
			out[i] = []float32{count}
		}
		return out, nil
	}).Predict(ctx, x, batchSize)
}
