// Package sink provides the output backends for committed simulation rows:
// CSV files, a SQLite results store, Prometheus gauges, and a fan-out.
package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fleet-sim/fleet-sim/sim"
)

// baseColumns precede one 0/1 column per transition flag.
var baseColumns = []string{
	"day", "unit_id", "class", "state", "usage_total", "usage_since_overhaul", "owner_id",
}

// Header returns the CSV column layout.
func Header() []string {
	return append(append([]string(nil), baseColumns...), sim.FlagNames()...)
}

// CSVSink writes one CSV line per committed row.
type CSVSink struct {
	w      *csv.Writer
	closer io.Closer
	rows   int
}

// NewCSVSink writes rows to w, starting with the header. If w is also an
// io.Closer it is closed by Close.
func NewCSVSink(w io.Writer) (*CSVSink, error) {
	s := &CSVSink{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	if err := s.w.Write(Header()); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	return s, nil
}

// CreateCSV creates (or truncates) filename and returns a sink writing to it.
func CreateCSV(filename string) (*CSVSink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", filename, err)
	}
	s, err := NewCSVSink(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *CSVSink) WriteDay(day int, rows []sim.DayRecord) error {
	record := make([]string, len(baseColumns)+len(sim.FlagNames()))
	for _, r := range rows {
		record[0] = strconv.Itoa(r.Day)
		record[1] = r.UnitID
		record[2] = r.Class
		record[3] = r.State.String()
		record[4] = strconv.FormatInt(r.UsageTotal, 10)
		record[5] = strconv.FormatInt(r.UsageSinceOverhaul, 10)
		record[6] = r.OwnerID
		for i, set := range sim.FlagValues(r.Flags) {
			record[len(baseColumns)+i] = boolColumn(set)
		}
		if err := s.w.Write(record); err != nil {
			return fmt.Errorf("failed to write row for %s on day %d: %w", r.UnitID, day, err)
		}
	}
	s.rows += len(rows)
	s.w.Flush()
	return s.w.Error()
}

// Rows returns the number of data rows written so far.
func (s *CSVSink) Rows() int { return s.rows }

func (s *CSVSink) Close() error {
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	return err
}

func boolColumn(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ReadCSV parses rows previously written by a CSVSink.
func ReadCSV(r io.Reader) ([]sim.DayRecord, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	want := Header()
	if len(header) != len(want) {
		return nil, fmt.Errorf("CSV header has %d columns, expected %d", len(header), len(want))
	}
	for i := range want {
		if header[i] != want[i] {
			return nil, fmt.Errorf("CSV column %d is %q, expected %q", i+1, header[i], want[i])
		}
	}

	var rows []sim.DayRecord
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		row, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("CSV line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}

// ReadCSVFile opens filename and parses it with ReadCSV.
func ReadCSVFile(filename string) ([]sim.DayRecord, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func parseRow(record []string) (sim.DayRecord, error) {
	day, err := strconv.Atoi(record[0])
	if err != nil {
		return sim.DayRecord{}, fmt.Errorf("invalid day: %w", err)
	}
	state, err := sim.ParseState(record[3])
	if err != nil {
		return sim.DayRecord{}, err
	}
	total, err := strconv.ParseInt(record[4], 10, 64)
	if err != nil {
		return sim.DayRecord{}, fmt.Errorf("invalid usage_total: %w", err)
	}
	uso, err := strconv.ParseInt(record[5], 10, 64)
	if err != nil {
		return sim.DayRecord{}, fmt.Errorf("invalid usage_since_overhaul: %w", err)
	}
	r := sim.DayRecord{
		Day: day, UnitID: record[1], Class: record[2], State: state,
		UsageTotal: total, UsageSinceOverhaul: uso, OwnerID: record[6],
	}
	for i, col := range record[len(baseColumns):] {
		if col == "1" {
			r.Flags |= sim.FlagAt(i)
		}
	}
	return r, nil
}
