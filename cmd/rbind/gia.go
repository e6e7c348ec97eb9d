package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"residualbind/internal/common"
	"residualbind/internal/dataset"
	"residualbind/internal/gia"
	"residualbind/internal/null"
	"residualbind/internal/report"
	"residualbind/internal/seq"
	"residualbind/internal/storage"
	"residualbind/internal/tensor"
)

var analyses = []string{"kmer", "mutagenesis", "positional", "multiple", "gc", "hairpin"}

type giaOptions struct {
	analyses    []string
	partition   string
	seed        uint64
	noFilter    bool
	motif       string
	position    int
	kmerSize    int
	top         int
	positions   []int
	sites       []int
	gcMotif     string
	gcPositions []int
}

func (a *app) giaCmd() *cobra.Command {
	o := &giaOptions{}
	var nullModel string
	var numSample, classIndex int

	cmd := &cobra.Command{
		Use:   "gia",
		Short: "run global importance analysis of a motif against a null ensemble",
		Long: "Generates null sequences from a dataset partition, scores them with the model and measures\n" +
			"the effect of embedding motifs. Analyses: " + strings.Join(analyses, ", ") + ".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("null-model") {
				a.settings.NullModel = nullModel
			}
			if flags.Changed("num-sample") {
				a.settings.NumSample = numSample
			}
			if flags.Changed("class") {
				a.settings.ClassIndex = classIndex
			}
			for _, name := range o.analyses {
				if !contains(analyses, name) {
					return fmt.Errorf("unknown analysis %q, want one of %s", name, strings.Join(analyses, ", "))
				}
			}
			return a.runGIA(cmd.Context(), o)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&o.analyses, "analysis", []string{"kmer"}, "analyses to run")
	flags.StringVar(&o.partition, "partition", "test", "dataset partition the null ensemble is drawn from (train, valid, test)")
	flags.Uint64Var(&o.seed, "seed", common.DefaultSeed, "null sequence seed")
	flags.BoolVar(&o.noFilter, "no-filter", false, "keep null sequences with extreme baseline predictions")
	flags.StringVar(&nullModel, "null-model", "", "null model ("+strings.Join(null.Names(), ", ")+")")
	flags.IntVar(&numSample, "num-sample", 0, "number of null sequences")
	flags.IntVar(&classIndex, "class", 0, "model output analysed")
	flags.StringVar(&o.motif, "motif", "UGCAUG", "motif for mutagenesis, positional, multiple-site, GC and hairpin analyses")
	flags.IntVar(&o.position, "position", 17, "motif position")
	flags.IntVar(&o.kmerSize, "kmer-size", 7, "k-mer size for the optimal k-mer search")
	flags.IntVar(&o.top, "top", 100, "k-mers written to the report, 0 writes all")
	flags.IntSliceVar(&o.positions, "positions", []int{2, 12, 23, 33}, "positions for the positional bias analysis")
	flags.IntSliceVar(&o.sites, "sites", []int{17, 10, 25, 3}, "positions for the multiple-site analysis")
	flags.StringVar(&o.gcMotif, "gc-motif", "GCGCGC", "GC-rich motif for the GC bias analysis")
	flags.IntSliceVar(&o.gcPositions, "gc-positions", []int{34, 2}, "GC motif positions for the GC bias analysis")
	return cmd
}

func (a *app) runGIA(ctx context.Context, o *giaOptions) error {
	s := a.settings
	model, err := null.ParseModel(s.NullModel)
	if err != nil {
		return err
	}

	store, err := storage.New(s.DatasetPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ds, err := store.LoadDataset()
	if err != nil {
		return fmt.Errorf("load dataset %s: %w", s.DatasetPath, err)
	}
	x, y, err := partition(ds, o.partition)
	if err != nil {
		return err
	}
	if s.ClassIndex >= y.Cols {
		return fmt.Errorf("class index %d out of range for %d experiments", s.ClassIndex, y.Cols)
	}
	experiment := fmt.Sprintf("class%d", s.ClassIndex)
	if s.ClassIndex < len(ds.Experiments) {
		experiment = ds.Experiments[s.ClassIndex]
	}

	p, err := a.predictor()
	if err != nil {
		return err
	}
	engine := gia.NewEngine(p, gia.Options{
		Alphabet:   s.Alphabet,
		ClassIndex: s.ClassIndex,
		BatchSize:  s.BatchSize,
		Metrics:    a.metrics,
		Progress:   os.Stderr,
	})

	base := seq.PositionMajor(x, seq.NumChannels)
	scores := make([]float32, y.Rows)
	for i := range scores {
		scores[i] = y.Row(i)[s.ClassIndex]
	}
	if err := engine.SetNullModel(ctx, dataset.NewRand(o.seed), model, base, s.NumSample, scores); err != nil {
		return err
	}
	if !o.noFilter {
		if err := engine.FilterNull(ctx, s.FilterLow, s.FilterHigh, s.NumSample); err != nil {
			return err
		}
	}
	log.Info().
		Str("experiment", experiment).
		Str("null_model", model.String()).
		Int("samples", engine.Null().Len()).
		Float64("baseline", engine.Null().Mean()).
		Msg("Null ensemble ready")

	out := &resultWriter{store: store, dir: filepath.Join(s.ReportDir, experiment), experiment: experiment}
	if err := os.MkdirAll(out.dir, 0o755); err != nil {
		return err
	}

	// hairpin replaces the ensemble, so it runs after everything else
	for _, name := range ordered(o.analyses) {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		if err := a.runAnalysis(ctx, engine, name, o, out); err != nil {
			return fmt.Errorf("%s analysis: %w", name, err)
		}
		log.Info().Str("analysis", name).Dur("elapsed", time.Since(start)).Msg("Analysis complete")
	}
	return nil
}

func (a *app) runAnalysis(ctx context.Context, engine *gia.Engine, name string, o *giaOptions, out *resultWriter) error {
	switch name {
	case "kmer":
		kmers, err := engine.OptimalKmer(ctx, o.kmerSize, o.position)
		if err != nil {
			return err
		}
		if err := out.file("optimal_kmers.tsv", func(f *os.File) error { return report.WriteKmers(f, kmers, o.top) }); err != nil {
			return err
		}
		n := len(kmers)
		if o.top > 0 && o.top < n {
			n = o.top
		}
		if n == 0 {
			return nil
		}
		labels := make([]string, n)
		m := mat.NewDense(n, 1, nil)
		for i := 0; i < n; i++ {
			labels[i] = kmers[i].Kmer
			m.Set(i, 0, kmers[i].Mean)
		}
		return out.save(name, labels, m)

	case "mutagenesis":
		m, err := engine.KmerMutagenesis(ctx, o.motif, o.position)
		if err != nil {
			return err
		}
		if err := out.file("mutagenesis.tsv", func(f *os.File) error {
			return report.WriteMutagenesis(f, o.motif, engine.Alphabet(), m)
		}); err != nil {
			return err
		}
		labels := make([]string, len(o.motif))
		for i := range labels {
			labels[i] = fmt.Sprintf("%d%c", i, o.motif[i])
		}
		return out.save(name, labels, m)

	case "positional":
		m, err := engine.PositionalBias(ctx, o.motif, o.positions)
		if err != nil {
			return err
		}
		return out.effects(name, intLabels(o.positions), m)

	case "multiple":
		m, err := engine.MultipleSites(ctx, o.motif, o.sites)
		if err != nil {
			return err
		}
		labels := make([]string, len(o.sites))
		for i := range labels {
			labels[i] = strconv.Itoa(i + 1)
		}
		return out.effects(name, labels, m)

	case "gc":
		log.Info().
			Float64("null_gc", nullGC(engine.Null())).
			Str("gc_motif", o.gcMotif).
			Float64("motif_gc", seq.GCContent(o.gcMotif)).
			Msg("GC content")
		m, err := engine.GCBias(ctx, o.motif, o.position, o.gcMotif, o.gcPositions)
		if err != nil {
			return err
		}
		labels := []string{fmt.Sprintf("gc@%d", o.gcPositions[0]), "motif"}
		for _, p := range o.gcPositions {
			labels = append(labels, fmt.Sprintf("motif+gc@%d", p))
		}
		return out.effects(name, labels, m)

	case "hairpin":
		x, err := engine.EmbedPatternHairpin(ctx, gia.DefaultStem, gia.Pattern{Motif: o.motif, Position: o.position})
		if err != nil {
			return err
		}
		effect, err := engine.PredictEffect(ctx, x)
		if err != nil {
			return err
		}
		m := mat.NewDense(1, len(effect), effect)
		return out.effects(name, []string{"hairpin"}, m)
	}
	return fmt.Errorf("unknown analysis %q", name)
}

// resultWriter sends analysis outputs to the report directory and to the
// results bucket of the dataset container.
type resultWriter struct {
	store      *storage.Store
	dir        string
	experiment string
}

func (w *resultWriter) file(name string, write func(f *os.File) error) error {
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (w *resultWriter) effects(name string, labels []string, m *mat.Dense) error {
	if err := w.file(name+".tsv", func(f *os.File) error { return report.WriteEffects(f, labels, m) }); err != nil {
		return err
	}
	title := fmt.Sprintf("%s: %s", w.experiment, name)
	if err := report.BoxPlot(filepath.Join(w.dir, name+".png"), title, labels, m); err != nil {
		return err
	}
	return w.save(name, labels, m)
}

func (w *resultWriter) save(name string, labels []string, m *mat.Dense) error {
	rows, cols := m.Dims()
	values := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		values = append(values, mat.Row(nil, i, m)...)
	}
	return w.store.StoreResult(storage.ResultRecord{
		Experiment: w.experiment,
		Analysis:   name,
		Timestamp:  time.Now(),
		Labels:     labels,
		Rows:       rows,
		Cols:       cols,
		Values:     values,
	})
}

// nullGC is the mean GC fraction of the null ensemble members.
func nullGC(ensemble *gia.Ensemble) float64 {
	if ensemble.Len() == 0 {
		return math.NaN()
	}
	sequences := seq.Decode(ensemble.OneHot().SwapAxes())
	gc := make([]float64, len(sequences))
	for i, s := range sequences {
		gc[i] = seq.GCContent(s)
	}
	return stat.Mean(gc, nil)
}

func partition(ds *dataset.Dataset, name string) (*tensor.Tensor, *tensor.Matrix, error) {
	switch name {
	case "train":
		return ds.XTrain, ds.YTrain, nil
	case "valid":
		return ds.XValid, ds.YValid, nil
	case "test":
		return ds.XTest, ds.YTest, nil
	}
	return nil, nil, fmt.Errorf("unknown partition %q", name)
}

func ordered(names []string) []string {
	var out []string
	for _, name := range analyses {
		if contains(names, name) {
			out = append(out, name)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func intLabels(values []int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.Itoa(v)
	}
	return out
}
