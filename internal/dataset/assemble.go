// Package dataset assembles encoded sequences and affinity targets into the
// train, validation and test partitions used for model fitting.
package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"residualbind/internal/tensor"
)

// DefaultSeed reproduces the reference partitioning.
const DefaultSeed = 100

// ErrRowMismatch is returned when the tables and the encoded tensor disagree
// on the number of rows.
var ErrRowMismatch = errors.New("row count mismatch between targets, sequences and inputs")

// Options controls partitioning.
type Options struct {
	TrainSplit    string
	TestSplit     string
	ValidFraction float64
}

// DefaultOptions returns the RNAcompete 2013 split: set A is the training
// pool, set B is held out, 10% of A is used for validation.
func DefaultOptions() Options {
	return Options{TrainSplit: "A", TestSplit: "B", ValidFraction: 0.1}
}

// Dataset is the assembled, partitioned data. X tensors are (N, channels, L);
// Y matrices are (N, experiments).
type Dataset struct {
	XTrain, XValid, XTest *tensor.Tensor
	YTrain, YValid, YTest *tensor.Matrix
	Experiments           []string
}

// Sizes reports the number of rows per partition.
func (d *Dataset) Sizes() map[string]int {
	return map[string]int{
		"train": d.XTrain.Len(),
		"valid": d.XValid.Len(),
		"test":  d.XTest.Len(),
	}
}

// NewRand returns the generator used for partitioning and null sampling.
// The same seed always yields the same stream.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// Assemble partitions inputs and targets by fold label. Rows labelled
// opts.TrainSplit are shuffled with rng; the first floor(ValidFraction*n) of
// the shuffled pool form the validation set and the rest the training set.
// Rows labelled opts.TestSplit form the test set in file order. Other labels
// are ignored.
func Assemble(targets *Targets, sequences *SequenceTable, inputs *tensor.Tensor, opts Options, rng *rand.Rand) (*Dataset, error) {
	n := targets.Values.Rows
	if sequences.Len() != n || inputs.Len() != n || len(sequences.Splits) != n {
		return nil, fmt.Errorf("%w: targets=%d sequences=%d inputs=%d", ErrRowMismatch, n, sequences.Len(), inputs.Len())
	}
	if opts.ValidFraction < 0 || opts.ValidFraction >= 1 {
		return nil, fmt.Errorf("valid fraction %v outside [0, 1)", opts.ValidFraction)
	}

	var pool, test []int
	for i, label := range sequences.Splits {
		switch label {
		case opts.TrainSplit:
			pool = append(pool, i)
		case opts.TestSplit:
			test = append(test, i)
		}
	}

	perm := rng.Perm(len(pool))
	shuffled := make([]int, len(pool))
	for i, p := range perm {
		shuffled[i] = pool[p]
	}
	numValid := int(opts.ValidFraction * float64(len(pool)))
	valid, train := shuffled[:numValid], shuffled[numValid:]

	experiments := make([]string, len(targets.Experiments))
	copy(experiments, targets.Experiments)

	return &Dataset{
		XTrain:      inputs.Select(train),
		YTrain:      targets.Values.SelectRows(train),
		XValid:      inputs.Select(valid),
		YValid:      targets.Values.SelectRows(valid),
		XTest:       inputs.Select(test),
		YTest:       targets.Values.SelectRows(test),
		Experiments: experiments,
	}, nil
}
