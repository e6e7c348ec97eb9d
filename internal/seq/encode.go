// Package seq converts nucleotide strings into one-hot tensors and back, and
// reads and writes the FASTA files consumed by the structure predictor.
//
// Encoded tensors are channel-major, shape (N, 4, maxLength), with channels
// in Alphabet order. Sequences shorter than maxLength are centered between
// all-zero padding columns; any odd remainder goes to the right.
package seq

import (
	"fmt"
	"strings"

	"residualbind/internal/tensor"
)

// Alphabet is the fixed channel order of every one-hot tensor.
const Alphabet = "ACGU"

// NumChannels is the width of the one-hot axis.
const NumChannels = len(Alphabet)

// LengthError reports a sequence that does not fit the requested width.
type LengthError struct {
	Index     int
	Length    int
	MaxLength int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("sequence %d has length %d, exceeds max length %d", e.Index, e.Length, e.MaxLength)
}

// Index returns the channel of nucleotide b, or -1 for symbols outside the
// alphabet. T is read as U and lowercase is accepted.
func Index(b byte) int {
	switch b {
	case 'A', 'a':
		return 0
	case 'C', 'c':
		return 1
	case 'G', 'g':
		return 2
	case 'U', 'u', 'T', 't':
		return 3
	}
	return -1
}

// MaxLength returns the length of the longest sequence.
func MaxLength(sequences []string) int {
	longest := 0
	for _, s := range sequences {
		if len(s) > longest {
			longest = len(s)
		}
	}
	return longest
}

// Padding returns the zero columns placed left and right of a sequence of
// length n in a window of width.
func Padding(n, width int) (left, right int) {
	left = (width - n) / 2
	right = width - n - left
	return left, right
}

// Encode converts sequences into a (N, 4, maxLength) one-hot tensor. A
// maxLength of zero or less uses the longest sequence. Unknown symbols
// produce an all-zero column. Every sequence is checked against maxLength
// before anything is encoded.
func Encode(sequences []string, maxLength int) (*tensor.Tensor, error) {
	if maxLength <= 0 {
		maxLength = MaxLength(sequences)
	}
	for i, s := range sequences {
		if len(s) > maxLength {
			return nil, &LengthError{Index: i, Length: len(s), MaxLength: maxLength}
		}
	}

	out := tensor.New(len(sequences), NumChannels, maxLength)
	for i, s := range sequences {
		left, _ := Padding(len(s), maxLength)
		for pos := 0; pos < len(s); pos++ {
			if c := Index(s[pos]); c >= 0 {
				out.Set(i, c, left+pos, 1)
			}
		}
	}
	return out, nil
}

// Decode turns a channel-major one-hot tensor back into strings. Columns with
// no active channel, padding included, decode to 'N'; callers that want the
// original sequence trim them.
func Decode(x *tensor.Tensor) []string {
	n, channels, length := x.Shape[0], x.Shape[1], x.Shape[2]
	out := make([]string, n)
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.Reset()
		for pos := 0; pos < length; pos++ {
			best, bestVal := -1, float32(0)
			for c := 0; c < channels && c < NumChannels; c++ {
				if v := x.At(i, c, pos); v > bestVal {
					best, bestVal = c, v
				}
			}
			if best < 0 {
				b.WriteByte('N')
			} else {
				b.WriteByte(Alphabet[best])
			}
		}
		out[i] = b.String()
	}
	return out
}

// ReverseComplement returns the reverse complement of an RNA sequence. Symbols
// outside the alphabet become 'N'.
func ReverseComplement(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := len(s) - 1; i >= 0; i-- {
		switch Index(s[i]) {
		case 0:
			b.WriteByte('U')
		case 1:
			b.WriteByte('G')
		case 2:
			b.WriteByte('C')
		case 3:
			b.WriteByte('A')
		default:
			b.WriteByte('N')
		}
	}
	return b.String()
}

// GCContent returns the fraction of G and C symbols in s.
func GCContent(s string) float64 {
	if s == "" {
		return 0
	}
	gc := 0
	for i := 0; i < len(s); i++ {
		if c := Index(s[i]); c == 1 || c == 2 {
			gc++
		}
	}
	return float64(gc) / float64(len(s))
}

// PositionMajor turns the leading channels of a channel-major (N, C, L)
// tensor into a position-major (N, L, channels) tensor, the layout predictors
// and null ensembles use. channels <= 0 or > C keeps every channel.
func PositionMajor(x *tensor.Tensor, channels int) *tensor.Tensor {
	n, c, length := x.Shape[0], x.Shape[1], x.Shape[2]
	if channels <= 0 || channels >= c {
		return x.SwapAxes()
	}
	out := tensor.New(n, length, channels)
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			for pos := 0; pos < length; pos++ {
				out.Set(i, pos, ch, x.At(i, ch, pos))
			}
		}
	}
	return out
}
