package main

import (
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"residualbind/internal/ml"
	"residualbind/internal/seq"
	"residualbind/internal/storage"
)

func (a *app) evaluateCmd() *cobra.Command {
	var partitionName string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "score a dataset partition and report the Pearson correlation per experiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.settings
			store, err := storage.New(s.DatasetPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ds, err := store.LoadDataset()
			if err != nil {
				return fmt.Errorf("load dataset %s: %w", s.DatasetPath, err)
			}
			x, y, err := partition(ds, partitionName)
			if err != nil {
				return err
			}

			p, err := a.predictor()
			if err != nil {
				return err
			}
			log.Info().
				Str("partition", partitionName).
				Str("sequences", humanize.Comma(int64(x.Len()))).
				Msg("Scoring partition")

			// structure channels, when present, are part of the model input
			preds, err := p.Predict(cmd.Context(), seq.PositionMajor(x, 0), s.BatchSize)
			if err != nil {
				return err
			}
			scores, err := ml.PearsonScores(y, preds)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "experiment\tpearson_r")
			var valid []float64
			for j, r := range scores {
				name := fmt.Sprintf("class%d", j)
				if j < len(ds.Experiments) {
					name = ds.Experiments[j]
				}
				fmt.Fprintf(tw, "%s\t%.4f\n", name, r)
				if !math.IsNaN(r) {
					valid = append(valid, r)
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if len(valid) > 0 {
				mean, std := stat.MeanStdDev(valid, nil)
				log.Info().
					Int("experiments", len(scores)).
					Float64("mean_r", mean).
					Float64("std_r", std).
					Msg("Evaluation complete")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&partitionName, "partition", "test", "dataset partition to score (train, valid, test)")
	return cmd
}
