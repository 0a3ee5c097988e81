package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// Columns is the required header of a labeled CSV, in any order.
var Columns = []string{"file_size", "entropy", "suspicious_count", "label"}

// CSVSource reads samples from a CSV file on every call.
type CSVSource struct {
	Path string
}

// NewCSVSource returns a CSVSource for path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{Path: path}
}

// Samples opens and parses the file. All failures wrap ErrDataset.
func (c *CSVSource) Samples(ctx context.Context) ([]Sample, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrDataset, c.Path)
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrDataset, c.Path, err)
	}
	defer f.Close()
	return ReadCSV(ctx, f)
}

// ReadCSV parses labeled rows from r. Extra columns are ignored; at least one
// row is required.
func ReadCSV(ctx context.Context, r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrDataset)
		}
		return nil, fmt.Errorf("%w: header: %v", ErrDataset, err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range Columns {
		if _, ok := pos[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrDataset, col)
		}
	}

	var out []Sample
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrDataset, line, err)
		}
		s, err := parseRecord(rec, pos)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrDataset, line, err)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrDataset)
	}
	return out, nil
}

func parseRecord(rec []string, pos map[string]int) (Sample, error) {
	num := func(col string) (float64, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[pos[col]]), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %v", col, err)
		}
		return v, nil
	}

	var s Sample
	var err error
	if s.FileSize, err = num("file_size"); err != nil {
		return s, err
	}
	if s.Entropy, err = num("entropy"); err != nil {
		return s, err
	}
	if s.SuspiciousCount, err = num("suspicious_count"); err != nil {
		return s, err
	}
	label, err := num("label")
	if err != nil {
		return s, err
	}
	if label != 0 && label != 1 {
		return s, fmt.Errorf("label %v is not 0 or 1", label)
	}
	s.Label = int(label)
	return s, s.validate()
}
