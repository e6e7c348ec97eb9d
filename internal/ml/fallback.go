package ml

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"residualbind/internal/tensor"
)

// FallbackPredictor scores with primary and switches to fallback for the
// rest of its life once primary fails. A cancelled context is returned as is.
type FallbackPredictor struct {
	mu       sync.RWMutex
	primary  Predictor
	fallback Predictor
	failed   bool
}

// NewFallbackPredictor creates a new fallback predictor
func NewFallbackPredictor(primary, fallback Predictor) *FallbackPredictor {
	return &FallbackPredictor{primary: primary, fallback: fallback}
}

// Predict implements Predictor.
func (p *FallbackPredictor) Predict(ctx context.Context, x *tensor.Tensor, batchSize int) ([][]float32, error) {
	if p.Degraded() {
		return p.fallback.Predict(ctx, x, batchSize)
	}

	preds, err := p.primary.Predict(ctx, x, batchSize)
	if err == nil {
		return preds, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	log.Warn().Err(err).Msg("Primary predictor failed, switching to fallback")
	p.mu.Lock()
	p.failed = true
	p.mu.Unlock()
	return p.fallback.Predict(ctx, x, batchSize)
}

// Degraded reports whether the fallback is in use.
func (p *FallbackPredictor) Degraded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failed
}
