package dataset

import (
	"fmt"
	"io"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"residualbind/internal/tensor"
)

// Targets is the per-sequence affinity table: one column per experiment.
type Targets struct {
	Experiments []string
	Values      *tensor.Matrix
}

// SequenceTable holds the fold label and raw sequence of each row.
type SequenceTable struct {
	Splits    []string
	Sequences []string
}

// Len returns the number of rows.
func (s *SequenceTable) Len() int {
	return len(s.Sequences)
}

// LoadTargets reads a tab-separated table whose header names the
// experiments. Every cell is parsed as a float; empty cells become NaN.
func LoadTargets(r io.Reader) (*Targets, error) {
	df := dataframe.ReadCSV(r,
		dataframe.WithDelimiter('\t'),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.Float),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read targets: %w", df.Err)
	}

	names := df.Names()
	values := tensor.NewMatrix(df.Nrow(), len(names))
	for j, name := range names {
		for i, v := range df.Col(name).Float() {
			values.Data[i*values.Cols+j] = float32(v)
		}
	}
	return &Targets{Experiments: names, Values: values}, nil
}

// LoadSequences reads a tab-separated table and keeps the fold label column
// and the sequence column.
func LoadSequences(r io.Reader, splitColumn, sequenceColumn string) (*SequenceTable, error) {
	df := dataframe.ReadCSV(r,
		dataframe.WithDelimiter('\t'),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read sequences: %w", df.Err)
	}

	for _, col := range []string{splitColumn, sequenceColumn} {
		if !hasColumn(df, col) {
			return nil, fmt.Errorf("sequences table has no %q column (have %v)", col, df.Names())
		}
	}

	return &SequenceTable{
		Splits:    df.Col(splitColumn).Records(),
		Sequences: df.Col(sequenceColumn).Records(),
	}, nil
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// LoadTargetsFile opens path and calls LoadTargets.
func LoadTargetsFile(path string) (*Targets, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets: %w", err)
	}
	defer f.Close()
	return LoadTargets(f)
}

// LoadSequencesFile opens path and calls LoadSequences.
func LoadSequencesFile(path, splitColumn, sequenceColumn string) (*SequenceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sequences: %w", err)
	}
	defer f.Close()
	return LoadSequences(f, splitColumn, sequenceColumn)
}
