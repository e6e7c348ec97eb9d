// Package report writes GIA results as tab-separated tables and box plots.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"residualbind/internal/gia"
)

// WriteEffects writes one row per configuration of m (configurations x
// samples): the label, the mean and standard deviation of the effects, then
// every per-sample effect.
func WriteEffects(w io.Writer, labels []string, m *mat.Dense) error {
	rows, cols := m.Dims()
	if len(labels) != rows {
		return fmt.Errorf("have %d labels for %d configurations", len(labels), rows)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "config\tmean\tstd")
	for j := 0; j < cols; j++ {
		fmt.Fprintf(bw, "\tsample_%d", j)
	}
	fmt.Fprintln(bw)

	for i := 0; i < rows; i++ {
		row := mat.Row(nil, i, m)
		mean, std := stat.MeanStdDev(row, nil)
		fmt.Fprintf(bw, "%s\t%s\t%s", labels[i], formatFloat(mean), formatFloat(std))
		for _, v := range row {
			fmt.Fprintf(bw, "\t%s", formatFloat(v))
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WriteKmers writes the first top k-mer scores (all when top <= 0) as
// rank, k-mer and mean effect.
func WriteKmers(w io.Writer, scores []gia.KmerScore, top int) error {
	if top <= 0 || top > len(scores) {
		top = len(scores)
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "rank\tkmer\tmean_effect")
	for i, s := range scores[:top] {
		fmt.Fprintf(bw, "%d\t%s\t%s\n", i+1, s.Kmer, formatFloat(s.Mean))
	}
	return bw.Flush()
}

// WriteMutagenesis writes a k-mer mutagenesis matrix with one row per k-mer
// position and one column per alphabet symbol.
func WriteMutagenesis(w io.Writer, kmer, alphabet string, m *mat.Dense) error {
	rows, cols := m.Dims()
	if rows != len(kmer) || cols != len(alphabet) {
		return fmt.Errorf("matrix is %dx%d, want %dx%d", rows, cols, len(kmer), len(alphabet))
	}
	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "position\twild_type")
	for i := 0; i < len(alphabet); i++ {
		fmt.Fprintf(bw, "\t%c", alphabet[i])
	}
	fmt.Fprintln(bw)
	for l := 0; l < rows; l++ {
		fmt.Fprintf(bw, "%d\t%c", l, kmer[l])
		for a := 0; a < cols; a++ {
			fmt.Fprintf(bw, "\t%s", formatFloat(m.At(l, a)))
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// BoxPlot renders the per-sample effects of every configuration of m as one
// box each. The image format follows the extension of path (.png, .svg,
// .pdf, ...).
func BoxPlot(path, title string, labels []string, m *mat.Dense) error {
	rows, _ := m.Dims()
	if len(labels) != rows {
		return fmt.Errorf("have %d labels for %d configurations", len(labels), rows)
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "effect size"
	p.Add(plotter.NewGrid())

	width := vg.Points(20)
	for i := 0; i < rows; i++ {
		box, err := plotter.NewBoxPlot(width, float64(i), plotter.Values(mat.Row(nil, i, m)))
		if err != nil {
			return fmt.Errorf("box for %s: %w", labels[i], err)
		}
		p.Add(box)
	}
	p.NominalX(labels...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	boxWidth := vg.Length(rows) * 1.2 * vg.Inch
	if boxWidth < 4*vg.Inch {
		boxWidth = 4 * vg.Inch
	}
	return p.Save(boxWidth, 4*vg.Inch, path)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
