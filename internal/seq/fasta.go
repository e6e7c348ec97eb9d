package seq

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is a single FASTA entry.
type Record struct {
	Header   string
	Sequence string
}

// WriteFasta writes each sequence as ">seq <index>" followed by the sequence
// on one line, with no wrapping.
func WriteFasta(w io.Writer, sequences []string) error {
	bw := bufio.NewWriter(w)
	for i, s := range sequences {
		if _, err := fmt.Fprintf(bw, ">seq %d\n%s\n", i, s); err != nil {
			return fmt.Errorf("write fasta record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// WriteFastaFile creates path and writes sequences to it.
func WriteFastaFile(path string, sequences []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create fasta %s: %w", path, err)
	}
	if err := WriteFasta(f, sequences); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFasta parses FASTA records from r. Sequence lines following a header
// are concatenated.
func ReadFasta(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var records []Record
	var current *Record
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, ">") {
			records = append(records, Record{Header: line[1:]})
			current = &records[len(records)-1]
			continue
		}
		if current == nil {
			if strings.TrimSpace(line) == "" {
				continue
			}
			return nil, fmt.Errorf("sequence data before first header")
		}
		current.Sequence += strings.TrimSpace(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read fasta: %w", err)
	}
	return records, nil
}

// Sequences returns the sequence of each record.
func Sequences(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Sequence
	}
	return out
}
