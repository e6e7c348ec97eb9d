package gia

import (
	"context"
	"strings"

	"residualbind/internal/tensor"
)

// Pattern places Motif at Position (0-based) of every null sequence.
type Pattern struct {
	Motif    string
	Position int
}

// Stem describes a hairpin: the Size positions starting at Left pair with
// the Size positions starting at Right.
type Stem struct {
	Left  int
	Right int
	Size  int
}

// DefaultStem is a 9 bp stem closing positions 7-15 against 23-31.
var DefaultStem = Stem{Left: 7, Right: 23, Size: 9}

// EmbedPatterns writes every pattern into a copy of the null ensemble's
// decoded sequences and returns the resulting one-hot tensor (N, L, A).
// Patterns are applied in order, so a later pattern overwrites an earlier
// one where they overlap. The ensemble itself is not changed.
func (e *Engine) EmbedPatterns(patterns ...Pattern) (*tensor.Tensor, error) {
	if e.null.Len() == 0 {
		return nil, ErrEmptyEnsemble
	}

	encoded := make([][]int, len(patterns))
	for p, pattern := range patterns {
		if pattern.Position < 0 || pattern.Position+len(pattern.Motif) > e.null.Length() {
			return nil, ErrPatternOutOfRange
		}
		idx, err := e.motifIndex(pattern.Motif)
		if err != nil {
			return nil, err
		}
		encoded[p] = idx
	}

	index := cloneIndex(e.null.index)
	for p, pattern := range patterns {
		for _, row := range index {
			copy(row[pattern.Position:], encoded[p])
		}
	}
	return encodeIndex(index, len(e.alphabet)), nil
}

func (e *Engine) motifIndex(motif string) ([]int, error) {
	idx := make([]int, len(motif))
	for i := 0; i < len(motif); i++ {
		a := strings.IndexByte(e.alphabet, motif[i])
		if a < 0 {
			return nil, &SymbolError{Motif: motif, Symbol: motif[i]}
		}
		idx[i] = a
	}
	return idx, nil
}

// SetHairpinNull turns every null sequence into a stem-loop by writing the
// reverse complement of the left stem over the right stem, then recomputes
// the baseline.
func (e *Engine) SetHairpinNull(ctx context.Context, stem Stem) error {
	if e.null.Len() == 0 {
		return ErrEmptyEnsemble
	}
	if err := e.checkStem(stem); err != nil {
		return err
	}
	x := e.null.OneHot()
	enforceStem(x, stem)
	return e.SetNullEnsemble(ctx, x)
}

// EmbedPatternHairpin makes the null ensemble a stem-loop with SetHairpinNull,
// embeds patterns and restores the stem pairing afterwards, so a motif placed
// in the left stem is mirrored into the right one. It returns the embedded
// sequences; the ensemble keeps the hairpin but not the patterns.
func (e *Engine) EmbedPatternHairpin(ctx context.Context, stem Stem, patterns ...Pattern) (*tensor.Tensor, error) {
	if err := e.SetHairpinNull(ctx, stem); err != nil {
		return nil, err
	}
	x, err := e.EmbedPatterns(patterns...)
	if err != nil {
		return nil, err
	}
	enforceStem(x, stem)
	return x, nil
}

func (e *Engine) checkStem(stem Stem) error {
	length := e.null.Length()
	if stem.Size <= 0 || stem.Left < 0 || stem.Right < 0 ||
		stem.Left+stem.Size > length || stem.Right+stem.Size > length {
		return ErrStemOutOfRange
	}
	return nil
}

// enforceStem overwrites the right stem of every sequence with the left stem
// reversed along both the position and the channel axis. With channels
// ordered A, C, G, U the channel reversal is base complementation.
func enforceStem(x *tensor.Tensor, stem Stem) {
	width := x.Shape[2]
	for i := 0; i < x.Len(); i++ {
		ex := x.Example(i)
		// read the whole left stem first in case the two windows overlap
		left := make([]float32, stem.Size*width)
		copy(left, ex[stem.Left*width:(stem.Left+stem.Size)*width])
		for k := 0; k < stem.Size; k++ {
			src := left[(stem.Size-1-k)*width : (stem.Size-k)*width]
			dst := ex[(stem.Right+k)*width : (stem.Right+k+1)*width]
			for a := 0; a < width; a++ {
				dst[a] = src[width-1-a]
			}
		}
	}
}
