// Package null generates null (background) sequence ensembles for global
// importance analysis.
//
// All generators take and return position-major one-hot tensors of shape
// (N, L, A) and draw every random number from the *rand.Rand they are given,
// so a fixed seed reproduces the ensemble exactly.
package null

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"residualbind/internal/tensor"
)

// Model selects a null sequence generator.
type Model int

const (
	Random Model = iota
	Profile
	Dinuc
	Quartile1
	Quartile2
	Quartile3
	Quartile4
)

var modelNames = map[Model]string{
	Random:    "random",
	Profile:   "profile",
	Dinuc:     "dinuc",
	Quartile1: "quartile1",
	Quartile2: "quartile2",
	Quartile3: "quartile3",
	Quartile4: "quartile4",
}

func (m Model) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

// Models lists every generator in declaration order.
func Models() []Model {
	return []Model{Random, Profile, Dinuc, Quartile1, Quartile2, Quartile3, Quartile4}
}

// Names returns the name of every generator in declaration order.
func Names() []string {
	models := Models()
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.String()
	}
	return names
}

// ParseModel maps a model name such as "dinuc" or "quartile3" to its Model.
func ParseModel(name string) (Model, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for m, s := range modelNames {
		if s == n {
			return m, nil
		}
	}
	return 0, &InvalidModelError{Name: name}
}

// InvalidModelError reports an unknown null model.
type InvalidModelError struct {
	Name string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("unknown null model %q, want one of %s", e.Name, strings.Join(Names(), ", "))
}

// ErrScoresRequired is returned by the quartile models when no binding scores
// accompany the base sequences.
var ErrScoresRequired = errors.New("quartile null models need one binding score per base sequence")

// Generate builds numSample null sequences from base. scores is only used by
// the quartile models and must then hold one value per base sequence. When
// the pool is smaller than numSample, every drawn sequence is returned.
func Generate(rng *rand.Rand, model Model, base *tensor.Tensor, numSample int, scores []float32) (*tensor.Tensor, error) {
	if numSample <= 0 {
		return nil, fmt.Errorf("num samples must be positive, got %d", numSample)
	}

	switch model {
	case Random:
		x := Draw(rng, base, numSample)
		for i := 0; i < x.Len(); i++ {
			ShufflePositions(rng, x, i)
		}
		return x, nil

	case Dinuc:
		x := Draw(rng, base, numSample)
		for i := 0; i < x.Len(); i++ {
			if err := DinucShuffle(rng, x, i); err != nil {
				return nil, err
			}
		}
		return x, nil

	case Profile:
		return SampleProfile(rng, PositionalProfile(base), numSample), nil

	case Quartile1, Quartile2, Quartile3, Quartile4:
		return quartile(rng, base, numSample, scores, int(model-Quartile1)+1)

	default:
		return nil, &InvalidModelError{Name: model.String()}
	}
}

// Draw takes a random subset of up to numSample sequences from base, without
// replacement. The result shares no memory with base.
func Draw(rng *rand.Rand, base *tensor.Tensor, numSample int) *tensor.Tensor {
	perm := rng.Perm(base.Len())
	if numSample < len(perm) {
		perm = perm[:numSample]
	}
	return base.Select(perm)
}

// QuartileBounds returns the [from, to) row range of quartile q (1..4) for a
// pool of n sequences sorted by descending score.
func QuartileBounds(n, q int) (int, int) {
	bounds := [5]int{0, n / 4, 2 * n / 4, 3 * n / 4, n}
	return bounds[q-1], bounds[q]
}

func quartile(rng *rand.Rand, base *tensor.Tensor, numSample int, scores []float32, q int) (*tensor.Tensor, error) {
	if scores == nil {
		return nil, ErrScoresRequired
	}
	if len(scores) != base.Len() {
		return nil, fmt.Errorf("%w: got %d scores for %d sequences", ErrScoresRequired, len(scores), base.Len())
	}

	order := make([]int, base.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	from, to := QuartileBounds(len(order), q)
	pool := base.Select(order[from:to])
	return Draw(rng, pool, numSample), nil
}
