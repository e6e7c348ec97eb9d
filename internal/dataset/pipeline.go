package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"residualbind/internal/seq"
	"residualbind/internal/tensor"
)

// ProfileBuilder produces (N, 5, window) structure profiles aligned with the
// one-hot encoding of the same sequences.
type ProfileBuilder interface {
	Build(ctx context.Context, sequences []string, window int) (*tensor.Tensor, error)
}

// Sink persists an assembled dataset.
type Sink interface {
	SaveDataset(d *Dataset) error
}

// MetricsInterface defines metrics methods needed by the dataset pipeline
type MetricsInterface interface {
	SequencesEncodedAdd(n int)
	PartitionRows(rows map[string]int)
}

// Encoded holds both encodings of a sequence table. Structure is nil unless
// profiles were requested.
type Encoded struct {
	OneHot    *tensor.Tensor
	Structure *tensor.Tensor
	MaxLength int
}

// Inputs returns the model input: the one-hot channels, followed by the
// structure channels when present.
func (e *Encoded) Inputs() (*tensor.Tensor, error) {
	if e.Structure == nil {
		return e.OneHot, nil
	}
	return tensor.Concat(e.OneHot, e.Structure)
}

// Pipeline loads the raw tables, encodes the sequences, optionally adds
// structure profiles, partitions the rows and hands the result to Sink.
type Pipeline struct {
	TargetsPath    string
	SequencesPath  string
	SplitColumn    string
	SequenceColumn string
	Options        Options
	Seed           uint64

	// IncludeStructure appends the five structure channels to the inputs.
	IncludeStructure bool
	Structure        ProfileBuilder

	Sink    Sink
	Metrics MetricsInterface
}

// Run executes the pipeline and returns the assembled dataset.
func (p *Pipeline) Run(ctx context.Context) (*Dataset, error) {
	start := time.Now()

	targets, err := LoadTargetsFile(p.TargetsPath)
	if err != nil {
		return nil, err
	}
	table, err := LoadSequencesFile(p.SequencesPath, p.SplitColumn, p.SequenceColumn)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("rows", table.Len()).
		Int("experiments", len(targets.Experiments)).
		Msg("Loaded tables")

	enc, err := p.Encode(ctx, table.Sequences)
	if err != nil {
		return nil, err
	}
	inputs, err := enc.Inputs()
	if err != nil {
		return nil, err
	}

	ds, err := Assemble(targets, table, inputs, p.Options, NewRand(p.Seed))
	if err != nil {
		return nil, err
	}
	sizes := ds.Sizes()
	if p.Metrics != nil {
		p.Metrics.PartitionRows(sizes)
	}
	log.Info().
		Int("train", sizes["train"]).
		Int("valid", sizes["valid"]).
		Int("test", sizes["test"]).
		Str("input_size", humanize.Bytes(uint64(4*len(inputs.Data)))).
		Dur("elapsed", time.Since(start)).
		Msg("Dataset assembled")

	if p.Sink != nil {
		if err := p.Sink.SaveDataset(ds); err != nil {
			return nil, fmt.Errorf("save dataset: %w", err)
		}
	}
	return ds, nil
}

// Encode one-hot encodes sequences at their maximum length and, when
// IncludeStructure is set, builds structure profiles over the same window.
func (p *Pipeline) Encode(ctx context.Context, sequences []string) (*Encoded, error) {
	maxLength := seq.MaxLength(sequences)
	oneHot, err := seq.Encode(sequences, maxLength)
	if err != nil {
		return nil, err
	}
	if p.Metrics != nil {
		p.Metrics.SequencesEncodedAdd(len(sequences))
	}
	enc := &Encoded{OneHot: oneHot, MaxLength: maxLength}

	if !p.IncludeStructure {
		return enc, nil
	}
	if p.Structure == nil {
		return nil, fmt.Errorf("structure profiles requested without a profile builder")
	}
	enc.Structure, err = p.Structure.Build(ctx, sequences, maxLength)
	if err != nil {
		return nil, err
	}
	return enc, nil
}
