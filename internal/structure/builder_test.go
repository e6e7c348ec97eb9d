package structure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"residualbind/internal/seq"
)

// fakePredictor writes constant loop tracks for every FASTA record.
type fakePredictor struct {
	dir     string
	drop    LoopType
	calls   int
	records int
}

func (f *fakePredictor) Predict(_ context.Context, fastaPath string, _ int) (ProfilePaths, error) {
	f.calls++
	in, err := os.Open(fastaPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	records, err := seq.ReadFasta(in)
	if err != nil {
		return nil, err
	}
	f.records = len(records)

	values := map[LoopType]string{Hairpin: "0.1", Internal: "0.2", Multi: "0.3", External: "0.15"}
	paths := make(ProfilePaths)
	for _, l := range LoopTypes {
		var b strings.Builder
		for i, r := range records {
			if l == f.drop && i == len(records)-1 {
				break
			}
			fmt.Fprintf(&b, ">%s\n", r.Header)
			fmt.Fprintln(&b, strings.TrimSpace(strings.Repeat(values[l]+" ", len(r.Sequence))))
		}
		path := filepath.Join(f.dir, string(l)+"_profile.txt")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return nil, err
		}
		paths[l] = path
	}
	return paths, nil
}

func TestBuilder_Build(t *testing.T) {
	dir := t.TempDir()
	pred := &fakePredictor{dir: dir}
	builder := NewBuilder(pred, dir)

	x, err := builder.Build(context.Background(), []string{"ACGU", "AC"}, 4)
	require.NoError(t, err)
	require.Equal(t, [3]int{2, NumChannels, 4}, x.Shape)
	assert.Equal(t, 1, pred.calls)
	assert.Equal(t, 2, pred.records)

	assert.InDelta(t, 0.25, x.At(0, 0, 0), 1e-6)
	assert.InDelta(t, 0.1, x.At(0, 1, 3), 1e-6)

	// "AC" is centered in width 4 like its one-hot encoding
	assert.Equal(t, float32(0), x.At(1, 1, 0))
	assert.InDelta(t, 0.1, x.At(1, 1, 1), 1e-6)
	assert.InDelta(t, 0.1, x.At(1, 1, 2), 1e-6)
	assert.Equal(t, float32(0), x.At(1, 1, 3))

	assert.FileExists(t, filepath.Join(dir, "sequences.fa"))
	assert.FileExists(t, filepath.Join(dir, "structure_profiles.txt"))
}

func TestBuilder_DefaultWindow(t *testing.T) {
	dir := t.TempDir()
	x, err := NewBuilder(&fakePredictor{dir: dir}, dir).Build(context.Background(), []string{"ACG", "ACGUA"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, x.Shape[2])
}

func TestBuilder_CountMismatch(t *testing.T) {
	dir := t.TempDir()
	builder := NewBuilder(&fakePredictor{dir: dir, drop: Multi}, dir)

	_, err := builder.Build(context.Background(), []string{"ACGU", "AC"}, 4)
	var alignErr *AlignmentError
	require.True(t, errors.As(err, &alignErr))
}

type recordingMetrics struct {
	mu       sync.Mutex
	runs     map[string]int
	failures map[string]int
	observed int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{runs: map[string]int{}, failures: map[string]int{}}
}

func (m *recordingMetrics) StructureRunInc(loop string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[loop]++
}

func (m *recordingMetrics) StructureFailureInc(loop string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[loop]++
}

func (m *recordingMetrics) StructureDurationObserve(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed++
}

func TestRNAplfold_MissingBinary(t *testing.T) {
	binDir := t.TempDir()
	outDir := t.TempDir()
	fasta := filepath.Join(outDir, "sequences.fa")
	require.NoError(t, seq.WriteFastaFile(fasta, []string{"ACGU"}))

	metrics := newRecordingMetrics()
	_, err := NewRNAplfold(binDir, outDir, metrics).Predict(context.Background(), fasta, 4)

	var predErr *PredictionError
	require.True(t, errors.As(err, &predErr))
	assert.Contains(t, LoopTypes, predErr.Loop)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.GreaterOrEqual(t, len(metrics.failures), 1)
}

func TestRNAplfold_ScriptBinaries(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	binDir := t.TempDir()
	outDir := t.TempDir()

	// each fake binary echoes a single record with the window as its value
	for _, l := range LoopTypes {
		script := "#!/bin/sh\necho '>seq 0'\necho \"$2 $2\"\n"
		require.NoError(t, os.WriteFile(filepath.Join(binDir, string(l)+"_RNAplfold"), []byte(script), 0o755))
	}
	fasta := filepath.Join(outDir, "sequences.fa")
	require.NoError(t, seq.WriteFastaFile(fasta, []string{"AC"}))

	metrics := newRecordingMetrics()
	paths, err := NewRNAplfold(binDir, outDir, metrics).Predict(context.Background(), fasta, 7)
	require.NoError(t, err)
	require.Len(t, paths, len(LoopTypes))

	data, err := os.ReadFile(paths[Hairpin])
	require.NoError(t, err)
	assert.Equal(t, ">seq 0\n7 7\n", string(data))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 4, metrics.observed)
	assert.Empty(t, metrics.failures)
	for _, l := range LoopTypes {
		assert.Equal(t, 1, metrics.runs[string(l)])
	}
}

func TestRNAplfold_NonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	binDir := t.TempDir()
	outDir := t.TempDir()
	for _, l := range LoopTypes {
		script := "#!/bin/sh\necho ok\n"
		if l == External {
			script = "#!/bin/sh\necho 'bad window' >&2\nexit 3\n"
		}
		require.NoError(t, os.WriteFile(filepath.Join(binDir, string(l)+"_RNAplfold"), []byte(script), 0o755))
	}
	fasta := filepath.Join(outDir, "sequences.fa")
	require.NoError(t, seq.WriteFastaFile(fasta, []string{"AC"}))

	_, err := NewRNAplfold(binDir, outDir, nil).Predict(context.Background(), fasta, 7)
	var predErr *PredictionError
	require.True(t, errors.As(err, &predErr))
	assert.Equal(t, External, predErr.Loop)
	assert.Contains(t, err.Error(), "bad window")
}
