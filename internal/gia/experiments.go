package gia

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/mat"
)

// KmerScore is the mean effect of embedding one k-mer.
type KmerScore struct {
	Kmer string
	Mean float64
}

// Kmers enumerates every k-mer over alphabet in lexicographic order of the
// alphabet as given.
func Kmers(alphabet string, k int) []string {
	if k <= 0 {
		return nil
	}
	total := 1
	for i := 0; i < k; i++ {
		total *= len(alphabet)
	}
	out := make([]string, total)
	buf := make([]byte, k)
	for n := 0; n < total; n++ {
		rest := n
		for i := k - 1; i >= 0; i-- {
			buf[i] = alphabet[rest%len(alphabet)]
			rest /= len(alphabet)
		}
		out[n] = string(buf)
	}
	return out
}

// OptimalKmer embeds every k-mer at position and returns all k-mers sorted by
// descending mean effect. Ties keep enumeration order.
func (e *Engine) OptimalKmer(ctx context.Context, k, position int) ([]KmerScore, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k-mer size must be positive, got %d", k)
	}
	kmers := Kmers(e.alphabet, k)

	var bar *progressbar.ProgressBar
	if e.progress != nil {
		bar = progressbar.NewOptions(len(kmers),
			progressbar.OptionSetDescription(fmt.Sprintf("%d-mers", k)),
			progressbar.OptionSetWriter(e.progress),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("kmers"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
		)
	}

	scores := make([]KmerScore, len(kmers))
	for i, kmer := range kmers {
		mean, err := e.meanEffect(ctx, Pattern{Motif: kmer, Position: position})
		if err != nil {
			return nil, fmt.Errorf("k-mer %s: %w", kmer, err)
		}
		scores[i] = KmerScore{Kmer: kmer, Mean: mean}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Mean > scores[j].Mean
	})
	log.Info().
		Int("k", k).
		Int("position", position).
		Str("best", scores[0].Kmer).
		Float64("effect", scores[0].Mean).
		Msg("Optimal k-mer search complete")
	return scores, nil
}

// KmerMutagenesis returns a len(kmer) x |alphabet| matrix of mean effects
// for every single-symbol substitution of kmer embedded at position. Entries
// where the substitution leaves kmer unchanged hold the wild-type mean.
func (e *Engine) KmerMutagenesis(ctx context.Context, kmer string, position int) (*mat.Dense, error) {
	if kmer == "" {
		return nil, fmt.Errorf("empty k-mer")
	}
	wild, err := e.meanEffect(ctx, Pattern{Motif: kmer, Position: position})
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(len(kmer), len(e.alphabet), nil)
	mutant := []byte(kmer)
	for l := 0; l < len(kmer); l++ {
		for a := 0; a < len(e.alphabet); a++ {
			if kmer[l] == e.alphabet[a] {
				out.Set(l, a, wild)
				continue
			}
			mutant[l] = e.alphabet[a]
			mean, err := e.meanEffect(ctx, Pattern{Motif: string(mutant), Position: position})
			if err != nil {
				return nil, err
			}
			out.Set(l, a, mean)
		}
		mutant[l] = kmer[l]
	}
	return out, nil
}

// PositionalBias embeds motif at each position in turn. Row i of the result
// holds the per-member effects for positions[i].
func (e *Engine) PositionalBias(ctx context.Context, motif string, positions []int) (*mat.Dense, error) {
	configs := make([][]Pattern, len(positions))
	for i, p := range positions {
		configs[i] = []Pattern{{Motif: motif, Position: p}}
	}
	return e.effects(ctx, configs)
}

// MultipleSites embeds motif at a growing number of sites: row i holds the
// effects of motif placed at positions[0..i] together.
func (e *Engine) MultipleSites(ctx context.Context, motif string, positions []int) (*mat.Dense, error) {
	configs := make([][]Pattern, len(positions))
	for i := range positions {
		for _, p := range positions[:i+1] {
			configs[i] = append(configs[i], Pattern{Motif: motif, Position: p})
		}
	}
	return e.effects(ctx, configs)
}

// GCBias separates the effect of a motif from that of a GC-rich flank. The
// rows are: gcMotif alone at gcPositions[0], motif alone at motifPosition,
// then motif together with gcMotif at each of gcPositions.
func (e *Engine) GCBias(ctx context.Context, motif string, motifPosition int, gcMotif string, gcPositions []int) (*mat.Dense, error) {
	if len(gcPositions) == 0 {
		return nil, fmt.Errorf("at least one GC position is required")
	}
	site := Pattern{Motif: motif, Position: motifPosition}
	configs := [][]Pattern{
		{{Motif: gcMotif, Position: gcPositions[0]}},
		{site},
	}
	for _, p := range gcPositions {
		configs = append(configs, []Pattern{site, {Motif: gcMotif, Position: p}})
	}
	return e.effects(ctx, configs)
}

// effects measures every configuration; the result has one row per
// configuration and one column per null member.
func (e *Engine) effects(ctx context.Context, configs [][]Pattern) (*mat.Dense, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("no configurations to measure")
	}
	if e.null.Len() == 0 {
		return nil, ErrEmptyEnsemble
	}
	out := mat.NewDense(len(configs), e.null.Len(), nil)
	for i, patterns := range configs {
		effect, err := e.EmbedPredictEffect(ctx, patterns...)
		if err != nil {
			return nil, fmt.Errorf("configuration %d: %w", i, err)
		}
		out.SetRow(i, effect)
	}
	return out, nil
}
