// Package structure builds per-nucleotide secondary-structure profiles.
//
// Four loop-type probability tracks (hairpin, internal, multi, external) are
// produced by an external predictor, merged with the computed paired track
// into a five-row text record per sequence, and finally parsed into a
// (N, 5, window) tensor padded the same way as the one-hot encoding.
package structure

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"residualbind/internal/seq"
	"residualbind/internal/tensor"
)

// LoopType names one of the four predicted loop tracks.
type LoopType string

const (
	Hairpin  LoopType = "H"
	Internal LoopType = "I"
	Multi    LoopType = "M"
	External LoopType = "E"
)

// LoopTypes lists the predicted tracks in merge order.
var LoopTypes = []LoopType{Hairpin, Internal, Multi, External}

// NumChannels is the number of rows per merged record:
// paired, hairpin, internal, multi, external.
const NumChannels = 5

// ProfilePaths holds the output file of each loop-type prediction.
type ProfilePaths map[LoopType]string

// PredictionError reports a failed external structure prediction.
type PredictionError struct {
	Loop LoopType
	Err  error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("structure prediction for loop type %s failed: %v", e.Loop, e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// AlignmentError reports loop-type profile files that disagree on how many
// records they hold.
type AlignmentError struct {
	Counts   map[LoopType]int
	Expected int
}

func (e *AlignmentError) Error() string {
	parts := make([]string, 0, len(LoopTypes))
	for _, l := range LoopTypes {
		if n, ok := e.Counts[l]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", l, n))
		}
	}
	if e.Expected > 0 {
		return fmt.Sprintf("profile record counts disagree (%s), expected %d", strings.Join(parts, " "), e.Expected)
	}
	return fmt.Sprintf("profile record counts disagree (%s)", strings.Join(parts, " "))
}

// Record is one two-line entry of a loop-type profile file.
type Record struct {
	ID     string
	Values []string
}

// ParseProfiles reads two-line records: an identifier line followed by a
// whitespace-separated probability line.
func ParseProfiles(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines)%2 != 0 {
		return nil, fmt.Errorf("profile has %d lines, want an id/values pair per record", len(lines))
	}

	records := make([]Record, len(lines)/2)
	for i := range records {
		records[i] = Record{
			ID:     strings.TrimSpace(lines[2*i]),
			Values: strings.Fields(lines[2*i+1]),
		}
	}
	return records, nil
}

func readProfileFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseProfiles(f)
}

// MergeProfiles reads the four loop-type files in lockstep and writes, per
// sequence, the identifier line followed by the paired, hairpin, internal,
// multi and external rows, tab separated. It returns the number of records
// written. Files with different record counts fail with *AlignmentError;
// record order is trusted.
func MergeProfiles(paths ProfilePaths, w io.Writer) (int, error) {
	tracks := make(map[LoopType][]Record, len(LoopTypes))
	for _, l := range LoopTypes {
		path, ok := paths[l]
		if !ok {
			return 0, fmt.Errorf("no profile for loop type %s", l)
		}
		records, err := readProfileFile(path)
		if err != nil {
			return 0, fmt.Errorf("loop type %s: %w", l, err)
		}
		tracks[l] = records
	}
	return mergeTracks(tracks, w)
}

func mergeTracks(tracks map[LoopType][]Record, w io.Writer) (int, error) {
	counts := make(map[LoopType]int, len(tracks))
	for l, records := range tracks {
		counts[l] = len(records)
	}
	num := counts[External]
	for _, n := range counts {
		if n != num {
			return 0, &AlignmentError{Counts: counts}
		}
	}

	bw := bufio.NewWriter(w)
	for i := 0; i < num; i++ {
		length := -1
		for _, l := range LoopTypes {
			if n := len(tracks[l][i].Values); length < 0 || n < length {
				length = n
			}
		}

		rows := make(map[LoopType][]float64, len(LoopTypes))
		for _, l := range LoopTypes {
			row := make([]float64, length)
			for j := 0; j < length; j++ {
				v, err := strconv.ParseFloat(tracks[l][i].Values[j], 64)
				if err != nil {
					return 0, fmt.Errorf("record %d loop type %s position %d: %w", i, l, j, err)
				}
				row[j] = v
			}
			rows[l] = row
		}

		paired := make([]float64, length)
		for j := range paired {
			paired[j] = 1 - rows[Hairpin][j] - rows[Internal][j] - rows[Multi][j] - rows[External][j]
		}

		if _, err := fmt.Fprintln(bw, tracks[External][i].ID); err != nil {
			return 0, err
		}
		for _, row := range [][]float64{paired, rows[Hairpin], rows[Internal], rows[Multi], rows[External]} {
			if err := writeRow(bw, row); err != nil {
				return 0, err
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return num, nil
}

func writeRow(w *bufio.Writer, row []float64) error {
	for j, v := range row {
		if j > 0 {
			if err := w.WriteByte('\t'); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// ExtractProfiles parses numSequences merged records from r into a
// (numSequences, 5, window) tensor. Each record is centered in the window
// according to its own length.
func ExtractProfiles(r io.Reader, numSequences, window int) (*tensor.Tensor, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	out := tensor.New(numSequences, NumChannels, window)
	for i := 0; i < numSequences; i++ {
		if !scanner.Scan() {
			return nil, fmt.Errorf("merged profile ended after %d of %d records", i, numSequences)
		}
		for c := 0; c < NumChannels; c++ {
			if !scanner.Scan() {
				return nil, fmt.Errorf("merged profile record %d is missing row %d", i, c)
			}
			fields := strings.Fields(scanner.Text())
			if len(fields) > window {
				return nil, &seq.LengthError{Index: i, Length: len(fields), MaxLength: window}
			}
			left, _ := seq.Padding(len(fields), window)
			for j, f := range fields {
				v, err := strconv.ParseFloat(f, 32)
				if err != nil {
					return nil, fmt.Errorf("merged profile record %d row %d position %d: %w", i, c, j, err)
				}
				out.Set(i, c, left+j, float32(v))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read merged profile: %w", err)
	}
	return out, nil
}
