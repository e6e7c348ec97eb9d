package gia

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"residualbind/internal/tensor"
)

// Ensemble is a set of null sequences together with the predictions the
// model makes for them. It is only ever built complete: the one-hot tensor,
// its decoded index form and the baseline scores change together.
type Ensemble struct {
	onehot *tensor.Tensor // (N, L, A)
	index  [][]int        // (N, L) argmax of onehot
	scores []float64      // baseline prediction per member
	mean   float64
}

func newEnsemble(x *tensor.Tensor, scores []float64) *Ensemble {
	return &Ensemble{
		onehot: x,
		index:  decodeIndex(x),
		scores: scores,
		mean:   stat.Mean(scores, nil),
	}
}

// Len returns the number of null sequences.
func (e *Ensemble) Len() int {
	if e == nil {
		return 0
	}
	return e.onehot.Len()
}

// Length returns the sequence length.
func (e *Ensemble) Length() int {
	return e.onehot.Shape[1]
}

// OneHot returns a copy of the (N, L, A) null sequences.
func (e *Ensemble) OneHot() *tensor.Tensor {
	return e.onehot.Clone()
}

// Index returns a copy of the decoded symbol indices of member i.
func (e *Ensemble) Index(i int) []int {
	out := make([]int, len(e.index[i]))
	copy(out, e.index[i])
	return out
}

// Scores returns a copy of the baseline predictions.
func (e *Ensemble) Scores() []float64 {
	out := make([]float64, len(e.scores))
	copy(out, e.scores)
	return out
}

// Mean returns the mean baseline prediction.
func (e *Ensemble) Mean() float64 {
	return e.mean
}

// decodeIndex takes the argmax over the symbol axis. An all-zero position
// decodes to symbol 0.
func decodeIndex(x *tensor.Tensor) [][]int {
	n, length, width := x.Shape[0], x.Shape[1], x.Shape[2]
	out := make([][]int, n)
	for i := 0; i < n; i++ {
		ex := x.Example(i)
		row := make([]int, length)
		for l := 0; l < length; l++ {
			best := 0
			for a := 1; a < width; a++ {
				if ex[l*width+a] > ex[l*width+best] {
					best = a
				}
			}
			row[l] = best
		}
		out[i] = row
	}
	return out
}

// encodeIndex materialises a one-hot (N, L, width) tensor from symbol
// indices.
func encodeIndex(index [][]int, width int) *tensor.Tensor {
	length := 0
	if len(index) > 0 {
		length = len(index[0])
	}
	out := tensor.New(len(index), length, width)
	for i, row := range index {
		for l, a := range row {
			out.Set(i, l, a, 1)
		}
	}
	return out
}

func cloneIndex(index [][]int) [][]int {
	out := make([][]int, len(index))
	for i, row := range index {
		out[i] = make([]int, len(row))
		copy(out[i], row)
	}
	return out
}

func checkWidth(x *tensor.Tensor, alphabet string) error {
	if x.Shape[2] != len(alphabet) {
		return fmt.Errorf("null sequences have %d channels, alphabet %q has %d", x.Shape[2], alphabet, len(alphabet))
	}
	return nil
}
