// Package gia implements Global Importance Analysis: motifs are embedded into
// an ensemble of null sequences and the change in the model's prediction
// against the ensemble's baseline is the motif's effect size.
//
// An Engine holds exactly one null ensemble. Every method that replaces or
// alters the ensemble recomputes the baseline predictions before returning,
// so effect-size queries never observe a stale baseline. An Engine is not
// safe for concurrent use.
package gia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"residualbind/internal/ml"
	"residualbind/internal/null"
	"residualbind/internal/seq"
	"residualbind/internal/tensor"
)

var (
	ErrEmptyEnsemble     = errors.New("gia: null ensemble is empty")
	ErrStemOutOfRange    = errors.New("gia: stem does not fit the null sequences")
	ErrPatternOutOfRange = errors.New("gia: pattern does not fit the null sequences")
)

// SymbolError reports a motif symbol that is not in the engine's alphabet.
type SymbolError struct {
	Motif  string
	Symbol byte
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("gia: symbol %q of motif %q is not in the alphabet", e.Symbol, e.Motif)
}

// MetricsInterface defines the metrics methods used by the engine
type MetricsInterface interface {
	NullEnsembleSet(size int, mean float64)
	InterventionsInc()
	EffectSizeObserve(v float64)
}

// Options configures an Engine.
type Options struct {
	Alphabet   string // symbol order of the one-hot channels, default seq.Alphabet
	ClassIndex int    // predictor output column that is analysed
	BatchSize  int    // passed straight to the predictor
	Metrics    MetricsInterface
	Progress   io.Writer // progress bar output for long scans, nil disables it
}

// Engine runs GIA experiments against a single null ensemble.
type Engine struct {
	predictor  ml.Predictor
	alphabet   string
	classIndex int
	batchSize  int
	metrics    MetricsInterface
	progress   io.Writer

	null *Ensemble
}

// NewEngine creates an engine around the given predictor. The null ensemble
// must be set before any effect can be measured.
func NewEngine(predictor ml.Predictor, opts Options) *Engine {
	alphabet := opts.Alphabet
	if alphabet == "" {
		alphabet = seq.Alphabet
	}
	return &Engine{
		predictor:  predictor,
		alphabet:   alphabet,
		classIndex: opts.ClassIndex,
		batchSize:  opts.BatchSize,
		metrics:    opts.Metrics,
		progress:   opts.Progress,
	}
}

// Null returns the current ensemble, nil before one is set.
func (e *Engine) Null() *Ensemble {
	return e.null
}

// Alphabet returns the symbol order used for motifs and one-hot channels.
func (e *Engine) Alphabet() string {
	return e.alphabet
}

// SetNullModel generates numSample null sequences from base (N, L, A) with
// the given model and makes them the engine's ensemble.
func (e *Engine) SetNullModel(ctx context.Context, rng *rand.Rand, model null.Model, base *tensor.Tensor, numSample int, scores []float32) error {
	x, err := null.Generate(rng, model, base, numSample, scores)
	if err != nil {
		return err
	}
	log.Debug().
		Str("model", model.String()).
		Int("samples", x.Len()).
		Msg("Generated null sequences")
	return e.SetNullEnsemble(ctx, x)
}

// SetNullEnsemble makes x (N, L, A) the engine's ensemble and predicts its
// baseline. On error the previous ensemble is kept.
func (e *Engine) SetNullEnsemble(ctx context.Context, x *tensor.Tensor) error {
	if x.Len() == 0 {
		return ErrEmptyEnsemble
	}
	if err := checkWidth(x, e.alphabet); err != nil {
		return err
	}

	scores, err := e.score(ctx, x)
	if err != nil {
		return fmt.Errorf("baseline prediction: %w", err)
	}
	e.null = newEnsemble(x, scores)

	if e.metrics != nil {
		e.metrics.NullEnsembleSet(e.null.Len(), e.null.mean)
	}
	log.Debug().
		Int("samples", e.null.Len()).
		Float64("mean", e.null.mean).
		Msg("Null ensemble baseline updated")
	return nil
}

// FilterNull keeps the members whose baseline lies strictly between the
// lowPct and highPct percentiles of the baseline distribution, truncates them
// to numSample (numSample <= 0 keeps all) and recomputes the baseline.
func (e *Engine) FilterNull(ctx context.Context, lowPct, highPct float64, numSample int) error {
	if e.null.Len() == 0 {
		return ErrEmptyEnsemble
	}
	if lowPct < 0 || highPct > 100 || lowPct >= highPct {
		return fmt.Errorf("invalid percentile bounds [%g, %g]", lowPct, highPct)
	}

	low := Percentile(e.null.scores, lowPct)
	high := Percentile(e.null.scores, highPct)

	var keep []int
	for i, s := range e.null.scores {
		if s > low && s < high {
			keep = append(keep, i)
		}
	}
	if numSample > 0 && len(keep) > numSample {
		keep = keep[:numSample]
	}
	if len(keep) == 0 {
		return ErrEmptyEnsemble
	}

	log.Debug().
		Float64("low", low).
		Float64("high", high).
		Int("kept", len(keep)).
		Int("of", e.null.Len()).
		Msg("Filtered null ensemble")
	return e.SetNullEnsemble(ctx, e.null.onehot.Select(keep))
}

// Percentile returns the pct-th percentile (0-100) of values, interpolating
// linearly between the two closest ranks at (n-1)*pct/100. pct is clamped
// to [0, 100]; an empty input gives NaN.
func Percentile(values []float64, pct float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pct = math.Max(0, math.Min(100, pct))
	h := float64(len(sorted)-1) * pct / 100
	lo, hi := math.Floor(h), math.Ceil(h)
	return sorted[int(lo)] + (h-lo)*(sorted[int(hi)]-sorted[int(lo)])
}

// PredictEffect returns, per null member, the prediction for x (N, L, A)
// minus that member's baseline. x must hold one sequence per member.
func (e *Engine) PredictEffect(ctx context.Context, x *tensor.Tensor) ([]float64, error) {
	if e.null.Len() == 0 {
		return nil, ErrEmptyEnsemble
	}
	if x.Len() != e.null.Len() {
		return nil, fmt.Errorf("have %d sequences for %d null members", x.Len(), e.null.Len())
	}

	scores, err := e.score(ctx, x)
	if err != nil {
		return nil, err
	}
	effect := make([]float64, len(scores))
	for i, s := range scores {
		effect[i] = s - e.null.scores[i]
	}

	if e.metrics != nil {
		e.metrics.InterventionsInc()
		e.metrics.EffectSizeObserve(stat.Mean(effect, nil))
	}
	return effect, nil
}

// EmbedPredictEffect embeds patterns into the null ensemble and returns the
// per-member effect against the baseline.
func (e *Engine) EmbedPredictEffect(ctx context.Context, patterns ...Pattern) ([]float64, error) {
	x, err := e.EmbedPatterns(patterns...)
	if err != nil {
		return nil, err
	}
	return e.PredictEffect(ctx, x)
}

func (e *Engine) meanEffect(ctx context.Context, patterns ...Pattern) (float64, error) {
	effect, err := e.EmbedPredictEffect(ctx, patterns...)
	if err != nil {
		return 0, err
	}
	return stat.Mean(effect, nil), nil
}

func (e *Engine) score(ctx context.Context, x *tensor.Tensor) ([]float64, error) {
	preds, err := e.predictor.Predict(ctx, x, e.batchSize)
	if err != nil {
		return nil, err
	}
	if len(preds) != x.Len() {
		return nil, fmt.Errorf("predictor returned %d rows for %d sequences", len(preds), x.Len())
	}
	return ml.Column(preds, e.classIndex)
}
