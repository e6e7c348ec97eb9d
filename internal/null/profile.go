package null

import (
	"math/rand/v2"

	"residualbind/internal/tensor"
)

// PositionalProfile averages base (N, L, A) over its sequences and
// normalises every position to a distribution over the alphabet. Positions
// that are all-zero across the pool get the uniform distribution.
func PositionalProfile(base *tensor.Tensor) [][]float64 {
	n, length, width := base.Shape[0], base.Shape[1], base.Shape[2]
	profile := make([][]float64, length)
	for pos := range profile {
		profile[pos] = make([]float64, width)
	}

	for i := 0; i < n; i++ {
		ex := base.Example(i)
		for pos := 0; pos < length; pos++ {
			for a := 0; a < width; a++ {
				profile[pos][a] += float64(ex[pos*width+a])
			}
		}
	}

	for _, row := range profile {
		var total float64
		for _, v := range row {
			total += v
		}
		for a := range row {
			if total == 0 {
				row[a] = 1 / float64(width)
			} else {
				row[a] /= total
			}
		}
	}
	return profile
}

// SampleProfile draws numSample sequences, one symbol per position, by
// inverse-CDF sampling of profile.
func SampleProfile(rng *rand.Rand, profile [][]float64, numSample int) *tensor.Tensor {
	length := len(profile)
	width := 0
	if length > 0 {
		width = len(profile[0])
	}

	cum := make([][]float64, length)
	for pos, row := range profile {
		cum[pos] = make([]float64, width)
		var acc float64
		for a, p := range row {
			acc += p
			cum[pos][a] = acc
		}
	}

	x := tensor.New(numSample, length, width)
	for i := 0; i < numSample; i++ {
		for pos := 0; pos < length; pos++ {
			x.Set(i, pos, pickBin(cum[pos], rng.Float64()), 1)
		}
	}
	return x
}

// pickBin returns the first bin whose cumulative probability exceeds z.
// Rounding can leave the total just below 1, so the last non-empty bin
// absorbs the remainder.
func pickBin(cum []float64, z float64) int {
	last := 0
	for a, c := range cum {
		if z < c {
			return a
		}
		if a == 0 || c > cum[a-1] {
			last = a
		}
	}
	return last
}
