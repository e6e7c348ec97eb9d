package main

import (
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"residualbind/internal/common"
	"residualbind/internal/dataset"
	"residualbind/internal/storage"
	"residualbind/internal/structure"
)

func (a *app) datasetCmd() *cobra.Command {
	var (
		targets, sequences, output string
		seed                       uint64
		validFraction              float64
		withStructure              bool
	)

	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "encode the sequence tables, split them and write the dataset container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.settings
			flags := cmd.Flags()
			if flags.Changed("targets") {
				s.TargetsPath = targets
			}
			if flags.Changed("sequences") {
				s.SequencesPath = sequences
			}
			if flags.Changed("output") {
				s.DatasetPath = output
			}
			if flags.Changed("seed") {
				s.Seed = seed
			}
			if flags.Changed("valid-fraction") {
				s.ValidFraction = validFraction
			}
			if flags.Changed("structure") {
				s.IncludeStructure = withStructure
			}

			store, err := storage.New(s.DatasetPath)
			if err != nil {
				return err
			}
			defer store.Close()

			p := &dataset.Pipeline{
				TargetsPath:    s.TargetsPath,
				SequencesPath:  s.SequencesPath,
				SplitColumn:    s.SplitColumn,
				SequenceColumn: s.SequenceColumn,
				Options: dataset.Options{
					TrainSplit:    s.TrainSplit,
					TestSplit:     s.TestSplit,
					ValidFraction: s.ValidFraction,
				},
				Seed:             s.Seed,
				IncludeStructure: s.IncludeStructure,
				Sink:             store,
				Metrics:          a.metrics,
			}
			if s.IncludeStructure {
				plfold := structure.NewRNAplfold(s.RNAplfoldDir, filepath.Join(s.DataDir, "rnaplfold"), a.metrics)
				p.Structure = structure.NewBuilder(plfold, s.DataDir)
			}

			ds, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().
				Str("path", s.DatasetPath).
				Int("experiments", len(ds.Experiments)).
				Msg("Dataset written")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&targets, "targets", "", "targets TSV (overrides config)")
	flags.StringVar(&sequences, "sequences", "", "sequences TSV (overrides config)")
	flags.StringVar(&output, "output", "", "dataset container path (overrides config)")
	flags.Uint64Var(&seed, "seed", common.DefaultSeed, "partition seed")
	flags.Float64Var(&validFraction, "valid-fraction", 0.1, "fraction of the training pool held out for validation")
	flags.BoolVar(&withStructure, "structure", false, "append RNAplfold structure profiles to the inputs")
	return cmd
}
