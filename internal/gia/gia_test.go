package gia

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"residualbind/internal/dataset"
	"residualbind/internal/ml"
	"residualbind/internal/null"
	"residualbind/internal/seq"
	"residualbind/internal/tensor"
)

// countPredictor scores class 0 with the number of A's and class 1 with the
// number of G's in each sequence.
func countPredictor() ml.Predictor {
	return ml.PredictorFunc(func(_ context.Context, batch *tensor.Tensor) ([][]float32, error) {
		out := make([][]float32, batch.Len())
		for i := range out {
			var a, g float32
			for l := 0; l < batch.Shape[1]; l++ {
				a += batch.At(i, l, 0)
				g += batch.At(i, l, 2)
			}
			out[i] = []float32{a, g}
		}
		return out, nil
	})
}

type recordingMetrics struct {
	mu            sync.Mutex
	size          int
	mean          float64
	interventions int
	effects       []float64
}

func (m *recordingMetrics) NullEnsembleSet(size int, mean float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.size, m.mean = size, mean
}

func (m *recordingMetrics) InterventionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interventions++
}

func (m *recordingMetrics) EffectSizeObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.effects = append(m.effects, v)
}

// positionMajor encodes sequences of equal length as (N, L, 4).
func positionMajor(t *testing.T, sequences ...string) *tensor.Tensor {
	t.Helper()
	x, err := seq.Encode(sequences, 0)
	require.NoError(t, err)
	return x.SwapAxes()
}

func decoded(x *tensor.Tensor) []string {
	out := make([]string, x.Len())
	for i, row := range decodeIndex(x) {
		var b strings.Builder
		for _, a := range row {
			b.WriteByte(seq.Alphabet[a])
		}
		out[i] = b.String()
	}
	return out
}

func newTestEngine(t *testing.T, sequences ...string) (*Engine, *recordingMetrics) {
	t.Helper()
	metrics := &recordingMetrics{}
	engine := NewEngine(countPredictor(), Options{BatchSize: 2, Metrics: metrics})
	require.NoError(t, engine.SetNullEnsemble(context.Background(), positionMajor(t, sequences...)))
	return engine, metrics
}

func TestSetNullEnsemble(t *testing.T) {
	engine, metrics := newTestEngine(t, "AACC", "ACCC", "CCCC")

	ens := engine.Null()
	assert.Equal(t, 3, ens.Len())
	assert.Equal(t, 4, ens.Length())
	assert.Equal(t, []float64{2, 1, 0}, ens.Scores())
	assert.InDelta(t, 1.0, ens.Mean(), 1e-12)
	assert.Equal(t, []int{0, 0, 1, 1}, ens.Index(0))

	assert.Equal(t, 3, metrics.size)
	assert.InDelta(t, 1.0, metrics.mean, 1e-12)
}

func TestSetNullEnsemble_Errors(t *testing.T) {
	engine := NewEngine(countPredictor(), Options{})

	err := engine.SetNullEnsemble(context.Background(), tensor.New(0, 4, 4))
	assert.ErrorIs(t, err, ErrEmptyEnsemble)

	err = engine.SetNullEnsemble(context.Background(), tensor.New(2, 4, 5))
	assert.Error(t, err)
	assert.Nil(t, engine.Null())

	failing := NewEngine(ml.PredictorFunc(func(context.Context, *tensor.Tensor) ([][]float32, error) {
		return nil, errors.New("model unavailable")
	}), Options{})
	err = failing.SetNullEnsemble(context.Background(), positionMajor(t, "ACGU"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestNoEnsemble(t *testing.T) {
	engine := NewEngine(countPredictor(), Options{})
	ctx := context.Background()

	_, err := engine.EmbedPatterns(Pattern{Motif: "A", Position: 0})
	assert.ErrorIs(t, err, ErrEmptyEnsemble)
	_, err = engine.PredictEffect(ctx, tensor.New(1, 4, 4))
	assert.ErrorIs(t, err, ErrEmptyEnsemble)
	assert.ErrorIs(t, engine.FilterNull(ctx, 10, 90, 0), ErrEmptyEnsemble)
	assert.ErrorIs(t, engine.SetHairpinNull(ctx, DefaultStem), ErrEmptyEnsemble)
	_, err = engine.PositionalBias(ctx, "A", []int{0})
	assert.ErrorIs(t, err, ErrEmptyEnsemble)
}

func TestSetNullModel(t *testing.T) {
	engine := NewEngine(countPredictor(), Options{})
	base := positionMajor(t, "ACGUACGU", "UUGGCCAA", "AAAACCCC")

	err := engine.SetNullModel(context.Background(), dataset.NewRand(7), null.Random, base, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, engine.Null().Len())
	assert.Len(t, engine.Null().Scores(), 3)

	err = engine.SetNullModel(context.Background(), dataset.NewRand(7), null.Quartile1, base, 3, nil)
	assert.ErrorIs(t, err, null.ErrScoresRequired)
}

func TestEmbedPatterns_LaterPatternWins(t *testing.T) {
	engine, _ := newTestEngine(t, "CCCCCCCC", "UUUUUUUU")

	x, err := engine.EmbedPatterns(
		Pattern{Motif: "AAA", Position: 2},
		Pattern{Motif: "GG", Position: 3},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"CCAGGCCC", "UUAGGUUU"}, decoded(x))

	// every position carries exactly one symbol
	for i := 0; i < x.Len(); i++ {
		for l := 0; l < x.Shape[1]; l++ {
			var sum float32
			for a := 0; a < x.Shape[2]; a++ {
				sum += x.At(i, l, a)
			}
			assert.Equal(t, float32(1), sum)
		}
	}

	// the ensemble is untouched
	assert.Equal(t, []string{"CCCCCCCC", "UUUUUUUU"}, decoded(engine.Null().OneHot()))
}

func TestEmbedPatterns_Errors(t *testing.T) {
	engine, _ := newTestEngine(t, "CCCCCC")

	_, err := engine.EmbedPatterns(Pattern{Motif: "ANA", Position: 0})
	var symErr *SymbolError
	require.ErrorAs(t, err, &symErr)
	assert.Equal(t, byte('N'), symErr.Symbol)

	_, err = engine.EmbedPatterns(Pattern{Motif: "AAA", Position: 4})
	assert.ErrorIs(t, err, ErrPatternOutOfRange)

	_, err = engine.EmbedPatterns(Pattern{Motif: "A", Position: -1})
	assert.ErrorIs(t, err, ErrPatternOutOfRange)
}

func TestSetHairpinNull(t *testing.T) {
	rng := dataset.NewRand(3)
	sequences := make([]string, 5)
	for i := range sequences {
		var b strings.Builder
		for l := 0; l < 41; l++ {
			b.WriteByte(seq.Alphabet[rng.IntN(4)])
		}
		sequences[i] = b.String()
	}
	engine, _ := newTestEngine(t, sequences...)

	stem := DefaultStem
	require.NoError(t, engine.SetHairpinNull(context.Background(), stem))

	x := engine.Null().OneHot()
	for i := 0; i < x.Len(); i++ {
		for k := 0; k < stem.Size; k++ {
			for a := 0; a < 4; a++ {
				assert.Equal(t,
					x.At(i, stem.Left+stem.Size-1-k, 3-a),
					x.At(i, stem.Right+k, a),
					"sequence %d stem offset %d channel %d", i, k, a)
			}
		}
	}

	// right stem is the reverse complement of the left stem
	for _, s := range decoded(x) {
		left := s[stem.Left : stem.Left+stem.Size]
		right := s[stem.Right : stem.Right+stem.Size]
		assert.Equal(t, seq.ReverseComplement(left), right)
	}

	// baseline follows the new ensemble
	preds, err := countPredictor().Predict(context.Background(), x, 0)
	require.NoError(t, err)
	col, err := ml.Column(preds, 0)
	require.NoError(t, err)
	assert.Equal(t, col, engine.Null().Scores())
}

func TestSetHairpinNull_OutOfRange(t *testing.T) {
	engine, _ := newTestEngine(t, "ACGUACGUACGU")
	before := engine.Null()

	err := engine.SetHairpinNull(context.Background(), Stem{Left: 0, Right: 8, Size: 5})
	assert.ErrorIs(t, err, ErrStemOutOfRange)
	err = engine.SetHairpinNull(context.Background(), Stem{Left: 0, Right: 4, Size: 0})
	assert.ErrorIs(t, err, ErrStemOutOfRange)
	assert.Same(t, before, engine.Null())
}

func TestEmbedPatternHairpin(t *testing.T) {
	engine, _ := newTestEngine(t, "CCCCCCCCCCCC", "GGGGGGGGGGGG")
	stem := Stem{Left: 1, Right: 8, Size: 3}

	x, err := engine.EmbedPatternHairpin(context.Background(), stem, Pattern{Motif: "AAU", Position: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"CAAUCCCCAUUC", "GAAUGGGGAUUG"}, decoded(x))

	// the ensemble keeps the hairpin, not the motif
	assert.Equal(t, []string{"CCCCCCCCGGGC", "GGGGGGGGCCCG"}, decoded(engine.Null().OneHot()))
}

func TestEmbedPredictEffect(t *testing.T) {
	engine, metrics := newTestEngine(t, "CCCCCCCCCC", "ACCCCCCCCC", "AACCCCCCCC")

	effect, err := engine.EmbedPredictEffect(context.Background(), Pattern{Motif: "AAA", Position: 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 3}, effect)

	// overwriting an existing A removes it from the count
	effect, err = engine.EmbedPredictEffect(context.Background(), Pattern{Motif: "G", Position: 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, -1, -1}, effect)

	assert.Equal(t, 2, metrics.interventions)
	require.Len(t, metrics.effects, 2)
	assert.InDelta(t, 3.0, metrics.effects[0], 1e-12)
}

func TestPredictEffect(t *testing.T) {
	engine, _ := newTestEngine(t, "CCCC", "ACCC")

	effect, err := engine.PredictEffect(context.Background(), positionMajor(t, "AAAA", "AAAA"))
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 3}, effect)

	_, err = engine.PredictEffect(context.Background(), positionMajor(t, "AAAA"))
	assert.Error(t, err)
}

func TestClassIndex(t *testing.T) {
	engine := NewEngine(countPredictor(), Options{ClassIndex: 1})
	require.NoError(t, engine.SetNullEnsemble(context.Background(), positionMajor(t, "CCCC", "GCCC")))
	assert.Equal(t, []float64{0, 1}, engine.Null().Scores())

	effect, err := engine.EmbedPredictEffect(context.Background(), Pattern{Motif: "GG", Position: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2}, effect)

	bad := NewEngine(countPredictor(), Options{ClassIndex: 5})
	assert.Error(t, bad.SetNullEnsemble(context.Background(), positionMajor(t, "CCCC")))
}

func TestFilterNull(t *testing.T) {
	sequences := make([]string, 10)
	for i := range sequences {
		sequences[i] = strings.Repeat("A", i) + strings.Repeat("C", 9-i)
	}
	engine, _ := newTestEngine(t, sequences...)
	scores := engine.Null().Scores()
	low, high := Percentile(scores, 10), Percentile(scores, 90)

	require.NoError(t, engine.FilterNull(context.Background(), 10, 90, 0))

	kept := engine.Null().Scores()
	assert.NotContains(t, kept, 0.0)
	assert.NotContains(t, kept, 9.0)
	// the 10th and 90th percentiles are 0.9 and 8.1, trimming one member from each end
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, kept)
	for i, s := range kept {
		assert.Greater(t, s, low)
		assert.Less(t, s, high)
		if i > 0 {
			assert.Greater(t, s, kept[i-1], "file order is kept")
		}
	}

	require.NoError(t, engine.FilterNull(context.Background(), 0, 100, 2))
	assert.Equal(t, 2, engine.Null().Len())
}

func TestFilterNull_InvalidBounds(t *testing.T) {
	engine, _ := newTestEngine(t, "AC", "CC")
	assert.Error(t, engine.FilterNull(context.Background(), 90, 10, 0))
	assert.Error(t, engine.FilterNull(context.Background(), -1, 50, 0))

	// every member equals the bounds, nothing is strictly inside
	flat, _ := newTestEngine(t, "CC", "CC", "CC")
	assert.ErrorIs(t, flat.FilterNull(context.Background(), 10, 90, 0), ErrEmptyEnsemble)
	assert.Equal(t, 3, flat.Null().Len())
}

func TestPercentile(t *testing.T) {
	values := []float64{5, 1, 4, 2, 3}
	assert.Equal(t, 1.0, Percentile(values, 0))
	assert.Equal(t, 5.0, Percentile(values, 100))
	assert.Equal(t, 3.0, Percentile(values, 50))
	assert.Equal(t, 2.0, Percentile(values, 25))
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, values)
	assert.True(t, math.IsNaN(Percentile(nil, 50)))
}

func TestPercentile_InterpolatesBetweenRanks(t *testing.T) {
	values := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.InDelta(t, 0.9, Percentile(values, 10), 1e-9)
	assert.InDelta(t, 8.1, Percentile(values, 90), 1e-9)
	assert.InDelta(t, 4.5, Percentile(values, 50), 1e-9)
	assert.Equal(t, 9.0, Percentile(values, 150))
}

func TestKmers(t *testing.T) {
	assert.Equal(t, []string{"AA", "AC", "AG", "AU", "CA", "CC", "CG", "CU", "GA", "GC", "GG", "GU", "UA", "UC", "UG", "UU"}, Kmers("ACGU", 2))
	assert.Len(t, Kmers("ACGU", 5), 1024)
	assert.Equal(t, []string{"G", "A"}, Kmers("GA", 1))
	assert.Nil(t, Kmers("ACGU", 0))
}

func TestOptimalKmer(t *testing.T) {
	var progress strings.Builder
	engine := NewEngine(countPredictor(), Options{Progress: &progress})
	require.NoError(t, engine.SetNullEnsemble(context.Background(), positionMajor(t, "CCCCCC", "CCCCCC")))

	scores, err := engine.OptimalKmer(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, scores, 16)

	assert.Equal(t, KmerScore{Kmer: "AA", Mean: 2}, scores[0])
	var ones []string
	for _, s := range scores[1:7] {
		assert.Equal(t, 1.0, s.Mean)
		ones = append(ones, s.Kmer)
	}
	assert.Equal(t, []string{"AC", "AG", "AU", "CA", "GA", "UA"}, ones)
	assert.Equal(t, "CC", scores[7].Kmer)
	assert.NotEmpty(t, progress.String())

	_, err = engine.OptimalKmer(context.Background(), 0, 2)
	assert.Error(t, err)
}

func TestKmerMutagenesis_ReusesWildType(t *testing.T) {
	// every call shifts the scores, so a recomputed wild type would differ
	var calls int
	noisy := ml.PredictorFunc(func(_ context.Context, batch *tensor.Tensor) ([][]float32, error) {
		calls++
		out := make([][]float32, batch.Len())
		for i := range out {
			var a float32
			for l := 0; l < batch.Shape[1]; l++ {
				a += batch.At(i, l, 0)
			}
			out[i] = []float32{a + float32(calls)/1000}
		}
		return out, nil
	})
	engine := NewEngine(noisy, Options{})
	require.NoError(t, engine.SetNullEnsemble(context.Background(), positionMajor(t, "CCCCCCCC", "GGGGGGGG")))
	calls = 0

	kmer := "UGCA"
	m, err := engine.KmerMutagenesis(context.Background(), kmer, 2)
	require.NoError(t, err)

	rows, cols := m.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 4, cols)
	assert.Equal(t, 1+len(kmer)*3, calls)

	wild := m.At(0, strings.IndexByte(seq.Alphabet, kmer[0]))
	for l := 0; l < len(kmer); l++ {
		for a := 0; a < 4; a++ {
			if kmer[l] == seq.Alphabet[a] {
				assert.Equal(t, wild, m.At(l, a), "position %d", l)
			} else {
				assert.NotEqual(t, wild, m.At(l, a), "position %d symbol %c", l, seq.Alphabet[a])
			}
		}
	}

	_, err = engine.KmerMutagenesis(context.Background(), "", 2)
	assert.Error(t, err)
}

func TestPositionalBias(t *testing.T) {
	engine, _ := newTestEngine(t, "CCCCCCCCCC", "ACCCCCCCCC")

	m, err := engine.PositionalBias(context.Background(), "AA", []int{0, 4, 8})
	require.NoError(t, err)
	rows, cols := m.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 2, cols)

	// at position 0 the motif overlaps the existing A of the second member
	assert.Equal(t, []float64{2, 1}, []float64{m.At(0, 0), m.At(0, 1)})
	assert.Equal(t, []float64{2, 2}, []float64{m.At(1, 0), m.At(1, 1)})
	assert.Equal(t, []float64{2, 2}, []float64{m.At(2, 0), m.At(2, 1)})
}

func TestMultipleSites(t *testing.T) {
	engine, _ := newTestEngine(t, "CCCCCCCCCCCC", "GGGGGGGGGGGG")

	m, err := engine.MultipleSites(context.Background(), "AAA", []int{4, 0, 8})
	require.NoError(t, err)
	rows, _ := m.Dims()
	require.Equal(t, 3, rows)
	for i := 0; i < rows; i++ {
		assert.Equal(t, float64(3*(i+1)), m.At(i, 0))
		assert.Equal(t, float64(3*(i+1)), m.At(i, 1))
	}
}

func TestGCBias(t *testing.T) {
	engine, _ := newTestEngine(t, "UUUUUUUUUUUU", "UUUUUUUUUUUU")

	m, err := engine.GCBias(context.Background(), "AAA", 4, "GCGC", []int{8, 0})
	require.NoError(t, err)
	rows, cols := m.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 2, cols)

	assert.Equal(t, 0.0, m.At(0, 0))
	assert.Equal(t, 3.0, m.At(1, 0))
	assert.Equal(t, 3.0, m.At(2, 0))
	assert.Equal(t, 3.0, m.At(3, 0))

	_, err = engine.GCBias(context.Background(), "AAA", 4, "GCGC", nil)
	assert.Error(t, err)
}
