package plan

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fleet-sim/fleet-sim/sim"
)

// snapshotHeader is the column layout of a snapshot CSV. The limit override
// columns may be left empty.
var snapshotHeader = []string{
	"unit_id", "class", "state", "usage_total", "usage_since_overhaul",
	"manufacture_day", "registration_day", "owner_id", "repair_elapsed",
	"life_limit", "overhaul_limit", "beyond_repair",
}

// LoadSnapshotFile loads the initial snapshot from a CSV file.
func LoadSnapshotFile(filename string) ([]sim.UnitSpec, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file %s: %w", filename, err)
	}
	defer file.Close()
	return LoadSnapshot(file)
}

// LoadSnapshot reads snapshot rows from r. The header must match
// snapshotHeader exactly.
func LoadSnapshot(r io.Reader) ([]sim.UnitSpec, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot CSV: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("snapshot CSV must have a header")
	}

	header := records[0]
	if !validateHeader(header, snapshotHeader) {
		return nil, fmt.Errorf("snapshot CSV header mismatch. Expected: %v, Got: %v", snapshotHeader, header)
	}

	units := make([]sim.UnitSpec, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != len(snapshotHeader) {
			return nil, fmt.Errorf("snapshot CSV row %d: expected %d columns, got %d", i+2, len(snapshotHeader), len(record))
		}
		u, err := parseUnit(record)
		if err != nil {
			return nil, fmt.Errorf("snapshot CSV row %d: %w", i+2, err)
		}
		units = append(units, u)
	}
	return units, nil
}

func parseUnit(record []string) (sim.UnitSpec, error) {
	state, err := sim.ParseState(record[2])
	if err != nil {
		return sim.UnitSpec{}, err
	}
	u := sim.UnitSpec{
		ID:    strings.TrimSpace(record[0]),
		Class: strings.TrimSpace(record[1]),
		State: state,
		Owner: strings.TrimSpace(record[7]),
	}

	ints := []struct {
		col  int
		name string
		dst  *int64
	}{
		{3, "usage_total", &u.UsageTotal},
		{4, "usage_since_overhaul", &u.UsageSinceOverhaul},
		{9, "life_limit", &u.LifeLimit},
		{10, "overhaul_limit", &u.OverhaulLimit},
		{11, "beyond_repair", &u.BeyondRepair},
	}
	for _, f := range ints {
		v, err := parseOptionalInt(record[f.col])
		if err != nil {
			return sim.UnitSpec{}, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = v
	}

	days := []struct {
		col  int
		name string
		dst  *int
	}{
		{5, "manufacture_day", &u.ManufactureDay},
		{6, "registration_day", &u.RegistrationDay},
		{8, "repair_elapsed", &u.RepairElapsed},
	}
	for _, f := range days {
		v, err := parseOptionalInt(record[f.col])
		if err != nil {
			return sim.UnitSpec{}, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = int(v)
	}
	return u, nil
}

func parseOptionalInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func validateHeader(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}
	for i, col := range expected {
		if strings.TrimSpace(strings.ToLower(actual[i])) != col {
			return false
		}
	}
	return true
}
