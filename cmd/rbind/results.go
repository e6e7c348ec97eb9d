package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"residualbind/internal/storage"
)

func (a *app) resultsCmd() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "results <experiment>",
		Short: "list stored GIA results of an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.New(a.settings.DatasetPath)
			if err != nil {
				return err
			}
			defer store.Close()

			end := time.Now()
			start := time.Unix(0, 0)
			if since > 0 {
				start = end.Add(-since)
			}
			records, err := store.GetResultsInRange(args[0], start, end)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "recorded\tanalysis\tconfig\tmean\tstd")
			for _, r := range records {
				when := humanize.Time(r.Timestamp)
				for i, label := range r.Labels {
					mean, std := stat.MeanStdDev(r.Values[i*r.Cols:(i+1)*r.Cols], nil)
					fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%.4f\n", when, r.Analysis, label, mean, std)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "only show results recorded within this duration (0 shows all)")
	return cmd
}
