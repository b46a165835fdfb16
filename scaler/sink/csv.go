// Package sink persists per-step rows and reads them back for analysis.
package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/inference-sim/adascale/scaler"
)

// CSV writes rows in the RowColumns schema, header first.
// Not safe for concurrent use.
type CSV struct {
	writer *csv.Writer
	closer io.Closer
	closed bool
}

// NewCSV writes to w. The caller keeps ownership of w.
func NewCSV(w io.Writer) (*CSV, error) {
	s := &CSV{writer: csv.NewWriter(w)}
	if err := s.writer.Write(scaler.RowColumns); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	return s, nil
}

// CreateCSV creates (or truncates) path. Flush closes the file.
func CreateCSV(path string) (*CSV, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating metrics file: %w", err)
	}
	s, err := NewCSV(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	s.closer = file
	return s, nil
}

// OutputPath names the per-rank output file: out.csv without a rank,
// out_<rank>.csv otherwise.
func OutputPath(dir string, rank int) string {
	name := "out.csv"
	if rank >= 0 {
		name = fmt.Sprintf("out_%d.csv", rank)
	}
	return filepath.Join(dir, name)
}

func (s *CSV) Record(r scaler.Row) error {
	if s.closed {
		return errors.New("metrics sink is closed")
	}
	row := []string{
		strconv.FormatInt(r.Step, 10),
		strconv.Itoa(r.SubStep),
		strconv.Itoa(r.Workers),
		strconv.FormatFloat(r.Duration, 'f', -1, 64),
		strconv.FormatFloat(r.Throughput, 'f', -1, 64),
		strconv.FormatFloat(r.DecisionLatency, 'f', -1, 64),
	}
	if err := s.writer.Write(row); err != nil {
		return fmt.Errorf("writing CSV row %d: %w", r.Step, err)
	}
	return nil
}

// Flush writes buffered rows and, for sinks created by CreateCSV, closes the
// file. Later calls are no-ops.
func (s *CSV) Flush() error {
	if s.closed {
		return nil
	}
	s.writer.Flush()
	err := s.writer.Error()
	if s.closer != nil {
		s.closed = true
		if cerr := s.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}

// LoadCSV reads a file written by CSV.
func LoadCSV(path string) ([]scaler.Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening metrics file: %w", err)
	}
	defer func() { _ = file.Close() }()
	return ReadCSV(file)
}

// ReadCSV parses rows from r, skipping the header.
func ReadCSV(r io.Reader) ([]scaler.Row, error) {
	reader := csv.NewReader(r)
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	var rows []scaler.Row
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		if len(rec) < len(scaler.RowColumns) {
			return nil, fmt.Errorf("CSV line %d has %d columns, expected %d", line, len(rec), len(scaler.RowColumns))
		}
		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("CSV line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(rec []string) (scaler.Row, error) {
	var (
		row  scaler.Row
		errs []error
	)
	var err error
	row.Step, err = strconv.ParseInt(rec[0], 10, 64)
	errs = append(errs, err)
	row.SubStep, err = strconv.Atoi(rec[1])
	errs = append(errs, err)
	row.Workers, err = strconv.Atoi(rec[2])
	errs = append(errs, err)
	row.Duration, err = strconv.ParseFloat(rec[3], 64)
	errs = append(errs, err)
	row.Throughput, err = strconv.ParseFloat(rec[4], 64)
	errs = append(errs, err)
	row.DecisionLatency, err = strconv.ParseFloat(rec[5], 64)
	errs = append(errs, err)
	return row, errors.Join(errs...)
}
