package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"residualbind/internal/ml"
	"residualbind/internal/seq"
)

func (a *app) scanCmd() *cobra.Command {
	var window, stride int
	var output string
	var bothStrands bool

	cmd := &cobra.Command{
		Use:   "scan <fasta>",
		Short: "predict binding along sequences with a sliding window",
		Long: "Reads sequences from a FASTA file, slides a window along each one and writes the\n" +
			"prediction of the configured model output for every window position as TSV.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.settings
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			records, err := seq.ReadFasta(f)
			f.Close()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no sequences in %s", args[0])
			}
			if bothStrands {
				records = withReverseStrand(records)
			}

			x, err := seq.Encode(seq.Sequences(records), 0)
			if err != nil {
				return err
			}
			p, err := a.predictor()
			if err != nil {
				return err
			}
			preds, err := ml.PredictWindows(cmd.Context(), p, seq.PositionMajor(x, seq.NumChannels), window, stride, s.BatchSize)
			if err != nil {
				return err
			}

			numWindows := (x.Shape[2]-window)/stride + 1
			if err := writeScanOutput(output, records, preds, numWindows, stride, s.ClassIndex); err != nil {
				return err
			}
			log.Info().
				Int("sequences", len(records)).
				Int("windows", numWindows).
				Msg("Scan complete")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&window, "window", 41, "window width")
	flags.IntVar(&stride, "stride", 1, "window stride")
	flags.StringVarP(&output, "output", "o", "", "output TSV (default stdout)")
	flags.BoolVar(&bothStrands, "both-strands", false, "also scan the reverse complement of every sequence")
	return cmd
}

// withReverseStrand appends the reverse complement of every record, marked
// with a "(-)" suffix on its header.
func withReverseStrand(records []seq.Record) []seq.Record {
	out := make([]seq.Record, 0, 2*len(records))
	out = append(out, records...)
	for _, r := range records {
		out = append(out, seq.Record{Header: r.Header + " (-)", Sequence: seq.ReverseComplement(r.Sequence)})
	}
	return out
}

// writeScanOutput writes the scan table to path, or to stdout when path is
// empty.
func writeScanOutput(path string, records []seq.Record, preds [][]float32, numWindows, stride, class int) error {
	if path == "" {
		return writeScan(os.Stdout, records, preds, numWindows, stride, class)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeScan(f, records, preds, numWindows, stride, class); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeScan writes one row per sequence: its header followed by the
// prediction of class at each window start.
func writeScan(w io.Writer, records []seq.Record, preds [][]float32, numWindows, stride, class int) error {
	bw := bufio.NewWriter(w)
	header := make([]string, 0, numWindows+1)
	header = append(header, "id")
	for k := 0; k < numWindows; k++ {
		header = append(header, strconv.Itoa(k*stride))
	}
	fmt.Fprintln(bw, strings.Join(header, "\t"))

	for i, row := range preds {
		if len(row)%numWindows != 0 {
			return fmt.Errorf("sequence %d: %d predictions do not split into %d windows", i, len(row), numWindows)
		}
		classes := len(row) / numWindows
		if class >= classes {
			return fmt.Errorf("class index %d out of range for %d model outputs", class, classes)
		}
		fields := make([]string, 0, numWindows+1)
		fields = append(fields, records[i].Header)
		for k := 0; k < numWindows; k++ {
			fields = append(fields, strconv.FormatFloat(float64(row[k*classes+class]), 'g', 6, 32))
		}
		fmt.Fprintln(bw, strings.Join(fields, "\t"))
	}
	return bw.Flush()
}
