package structure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"residualbind/internal/seq"
	"residualbind/internal/tensor"
)

const (
	fastaName  = "sequences.fa"
	mergedName = "structure_profiles.txt"
)

// Builder runs the full profile pipeline: FASTA, prediction, merge, extract.
type Builder struct {
	Predictor StructurePredictor
	// WorkDir keeps the FASTA and merged profile files.
	WorkDir string
}

// NewBuilder creates a Builder keeping intermediates in workDir.
func NewBuilder(predictor StructurePredictor, workDir string) *Builder {
	return &Builder{Predictor: predictor, WorkDir: workDir}
}

// Build returns the (N, 5, window) structure profile of sequences, aligned
// index for index with seq.Encode(sequences, window).
func (b *Builder) Build(ctx context.Context, sequences []string, window int) (*tensor.Tensor, error) {
	if window <= 0 {
		window = seq.MaxLength(sequences)
	}
	if err := os.MkdirAll(b.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	fastaPath := filepath.Join(b.WorkDir, fastaName)
	if err := seq.WriteFastaFile(fastaPath, sequences); err != nil {
		return nil, err
	}

	log.Info().
		Int("sequences", len(sequences)).
		Int("window", window).
		Str("fasta", fastaPath).
		Msg("Predicting secondary structure profiles")

	paths, err := b.Predictor.Predict(ctx, fastaPath, window)
	if err != nil {
		return nil, err
	}

	mergedPath := filepath.Join(b.WorkDir, mergedName)
	num, err := mergeToFile(paths, mergedPath)
	if err != nil {
		return nil, err
	}
	if num != len(sequences) {
		counts := make(map[LoopType]int, len(LoopTypes))
		for _, l := range LoopTypes {
			counts[l] = num
		}
		return nil, &AlignmentError{Counts: counts, Expected: len(sequences)}
	}

	f, err := os.Open(mergedPath)
	if err != nil {
		return nil, fmt.Errorf("open merged profile: %w", err)
	}
	defer f.Close()

	return ExtractProfiles(f, num, window)
}

func mergeToFile(paths ProfilePaths, mergedPath string) (int, error) {
	f, err := os.Create(mergedPath)
	if err != nil {
		return 0, fmt.Errorf("create merged profile: %w", err)
	}
	num, err := MergeProfiles(paths, f)
	if err != nil {
		f.Close()
		return 0, err
	}
	return num, f.Close()
}
