package structure

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// StructurePredictor produces the four loop-type profile files for the
// sequences in a FASTA file.
type StructurePredictor interface {
	Predict(ctx context.Context, fastaPath string, window int) (ProfilePaths, error)
}

// MetricsInterface defines metrics methods needed by the structure predictor
type MetricsInterface interface {
	StructureRunInc(loop string)
	StructureFailureInc(loop string)
	StructureDurationObserve(seconds float64)
}

// RNAplfold runs the per-loop-type RNAplfold builds (H_RNAplfold,
// I_RNAplfold, M_RNAplfold, E_RNAplfold), each as
//
//	<L>_RNAplfold -W <window> -u 1 < sequences.fa > <L>_profile.txt
//
// The four runs share nothing and execute concurrently; Predict returns once
// all of them have finished.
type RNAplfold struct {
	// BinDir holds the binaries. Empty means look them up in PATH.
	BinDir string
	// OutDir receives the <L>_profile.txt files.
	OutDir  string
	Metrics MetricsInterface
}

// NewRNAplfold creates a runner writing profiles into outDir.
func NewRNAplfold(binDir, outDir string, metrics MetricsInterface) *RNAplfold {
	return &RNAplfold{BinDir: binDir, OutDir: outDir, Metrics: metrics}
}

// Predict implements StructurePredictor. Any failing run fails the whole
// prediction with *PredictionError; nothing is retried.
func (r *RNAplfold) Predict(ctx context.Context, fastaPath string, window int) (ProfilePaths, error) {
	if err := os.MkdirAll(r.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	paths := make(ProfilePaths, len(LoopTypes))
	for _, l := range LoopTypes {
		paths[l] = filepath.Join(r.OutDir, string(l)+"_profile.txt")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range LoopTypes {
		g.Go(func() error {
			return r.run(gctx, l, fastaPath, paths[l], window)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (r *RNAplfold) binary(l LoopType) (string, error) {
	name := string(l) + "_RNAplfold"
	if r.BinDir != "" {
		path := filepath.Join(r.BinDir, name)
		if _, err := os.Stat(path); err != nil {
			return "", errors.Wrapf(err, "cannot find %s", name)
		}
		return path, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(err, "cannot find %s in PATH, needed for structure profiles", name)
	}
	return path, nil
}

func (r *RNAplfold) run(ctx context.Context, l LoopType, fastaPath, outPath string, window int) (err error) {
	start := time.Now()
	if r.Metrics != nil {
		r.Metrics.StructureRunInc(string(l))
	}
	defer func() {
		if r.Metrics == nil {
			return
		}
		r.Metrics.StructureDurationObserve(time.Since(start).Seconds())
		if err != nil {
			r.Metrics.StructureFailureInc(string(l))
		}
	}()

	bin, err := r.binary(l)
	if err != nil {
		return &PredictionError{Loop: l, Err: err}
	}

	in, err := os.Open(fastaPath)
	if err != nil {
		return &PredictionError{Loop: l, Err: errors.Wrapf(err, "open fasta %q", fastaPath)}
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return &PredictionError{Loop: l, Err: errors.Wrapf(err, "create profile %q", outPath)}
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, bin, "-W", strconv.Itoa(window), "-u", "1")
	cmd.Dir = r.OutDir
	cmd.Stdin = in
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error().
			Err(err).
			Str("loop", string(l)).
			Str("binary", bin).
			Str("fasta", fastaPath).
			Int("window", window).
			Str("stderr", stderr.String()).
			Msg("Structure predictor execution failed")
		err = errors.Wrapf(err, "failed executing %q", cmd)
		err = errors.WithMessagef(err, "STDERR captured:\n%s\n", stderr.String())
		return &PredictionError{Loop: l, Err: err}
	}

	info, err := out.Stat()
	if err != nil {
		return &PredictionError{Loop: l, Err: err}
	}
	if info.Size() == 0 {
		return &PredictionError{Loop: l, Err: errors.Errorf("%s produced an empty profile", filepath.Base(bin))}
	}

	log.Debug().
		Str("loop", string(l)).
		Str("profile", outPath).
		Dur("elapsed", time.Since(start)).
		Msg("Structure profile predicted")
	return nil
}
