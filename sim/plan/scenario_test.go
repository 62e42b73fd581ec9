package plan

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleet-sim/fleet-sim/sim"
)

const minimalScenario = `
horizon: 10
classes:
  - name: A
    kind: airframe
    life_limit: 1000
    overhaul_limit: 500
    repair_duration: 5
profiles:
  - name: base
    segments:
      - from: 1
        daily: 2
class_profiles:
  A: base
targets:
  A:
    - from: 1
      value: 1
units:
  - id: A-1
    class: A
    state: operations
`

func parse(t *testing.T, doc string) *Scenario {
	t.Helper()
	s, err := ParseScenario(strings.NewReader(doc))
	require.NoError(t, err)
	return s
}

func TestLoadScenario_TestdataFleet(t *testing.T) {
	// GIVEN the bundled two-type scenario
	s, err := LoadScenario(filepath.Join("testdata", "fleet.yaml"))
	require.NoError(t, err)

	// WHEN it is validated
	err = s.Validate()

	// THEN it is accepted and the snapshot path resolves next to it
	require.NoError(t, err)
	assert.Equal(t, 120, s.Horizon)
	assert.Len(t, s.Classes, 2)
	assert.Equal(t, filepath.Join("testdata", "snapshot.csv"), s.SnapshotPath())
	assert.Equal(t, "decisions", s.Trace)
}

func TestParseScenario_RejectsUnknownKeys(t *testing.T) {
	// GIVEN a scenario with a misspelled key
	doc := strings.Replace(minimalScenario, "repair_duration", "repair_durration", 1)

	// WHEN parsed
	_, err := ParseScenario(strings.NewReader(doc))

	// THEN strict decoding rejects it
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repair_durration")
}

func TestScenario_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Scenario)
		wantErr string
	}{
		{name: "minimal scenario is valid", mutate: func(*Scenario) {}},
		{name: "zero horizon", mutate: func(s *Scenario) { s.Horizon = 0 }, wantErr: "Horizon"},
		{name: "unknown kind", mutate: func(s *Scenario) { s.Classes[0].Kind = "rotor" }, wantErr: "Kind"},
		{name: "missing life limit", mutate: func(s *Scenario) { s.Classes[0].LifeLimit = 0 }, wantErr: "LifeLimit"},
		{name: "duplicate class", mutate: func(s *Scenario) { s.Classes = append(s.Classes, s.Classes[0]) }, wantErr: "defined twice"},
		{name: "mount on unknown airframe", mutate: func(s *Scenario) {
			s.Classes = append(s.Classes, ClassSpec{Name: "E", Kind: "aggregate", LifeLimit: 1, OverhaulLimit: 1, RepairDuration: 1,
				Mounts: []MountSpec{{Airframe: "B", Slots: 1}}})
		}, wantErr: "not an airframe class"},
		{name: "airframe with mounts", mutate: func(s *Scenario) {
			s.Classes[0].Mounts = []MountSpec{{Airframe: "A", Slots: 1}}
		}, wantErr: "only aggregates"},
		{name: "segments not starting on day 1", mutate: func(s *Scenario) { s.Profiles[0].Segments[0].From = 2 }, wantErr: "day 1"},
		{name: "segments out of order", mutate: func(s *Scenario) {
			s.Profiles[0].Segments = append(s.Profiles[0].Segments, Segment{From: 1, Daily: 3})
		}, wantErr: "not after day"},
		{name: "segment past horizon", mutate: func(s *Scenario) {
			s.Targets["A"] = append(s.Targets["A"], Step{From: 11, Value: 2})
		}, wantErr: "past the horizon"},
		{name: "unknown class profile", mutate: func(s *Scenario) { s.ClassProfiles["A"] = "nope" }, wantErr: "unknown profile"},
		{name: "unit profile for unknown profile", mutate: func(s *Scenario) {
			s.UnitProfiles = map[string]string{"A-1": "nope"}
		}, wantErr: "unknown profile"},
		{name: "target for unknown class", mutate: func(s *Scenario) { s.Targets["B"] = []Step{{From: 1}} }, wantErr: "not an airframe class"},
		{name: "negative target", mutate: func(s *Scenario) { s.Targets["A"][0].Value = -1 }, wantErr: "Value"},
		{name: "bad trace level", mutate: func(s *Scenario) { s.Trace = "verbose" }, wantErr: "trace level"},
		{name: "bad safety margin", mutate: func(s *Scenario) { s.Spawn = &SpawnSpec{SafetyMargin: "-1"} }, wantErr: "safety_margin"},
		{name: "csv and inline units", mutate: func(s *Scenario) { s.SnapshotCSV = "units.csv" }, wantErr: "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := parse(t, minimalScenario)
			tt.mutate(s)

			err := s.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScenario_Build_ExpandsSegments(t *testing.T) {
	// GIVEN the bundled scenario
	s, err := LoadScenario(filepath.Join("testdata", "fleet.yaml"))
	require.NoError(t, err)

	// WHEN built
	in, err := s.Build()
	require.NoError(t, err)

	// THEN piecewise profiles and targets become daily series
	base := in.Plan.CurveByName("mi8-base")
	require.NotNil(t, base)
	assert.Equal(t, int64(6), base.Daily(60))
	assert.Equal(t, int64(8), base.Daily(61))
	assert.Equal(t, int64(60*6+60*8), base.Cumulative(120))
	assert.Equal(t, 3, in.Plan.Target("Mi-8", 89))
	assert.Equal(t, 4, in.Plan.Target("Mi-8", 90))

	// THEN reference data, snapshot and options carry over
	assert.Equal(t, 2, in.Classes.Get("TV3").SlotsOn(in.Classes.Get("Mi-8")))
	assert.Len(t, in.Units, 14)
	assert.True(t, in.Config.Adaptive)
	assert.Equal(t, 2, in.Config.Workers)
	assert.Equal(t, 30, in.Config.SpawnConfig.CadenceDays)
	assert.Equal(t, 2, in.Config.SpawnConfig.MinReserve)
	assert.Equal(t, 30, in.Config.SpawnConfig.WindowDays, "omitted fields keep the engine defaults")
	assert.True(t, in.Config.TraceConfig.Enabled())
}

func TestScenario_Build_RunsEndToEnd(t *testing.T) {
	// GIVEN the bundled scenario built into simulator inputs
	s, err := LoadScenario(filepath.Join("testdata", "fleet.yaml"))
	require.NoError(t, err)
	in, err := s.Build()
	require.NoError(t, err)
	sink := sim.NewMemorySink()

	// WHEN simulated
	sm, err := in.NewSimulator(sink)
	require.NoError(t, err)
	require.NoError(t, sm.Run(context.Background()))

	// THEN it reaches the horizon and the target increase is met by day 90
	assert.Equal(t, 120, sm.Day)
	ops := 0
	for _, r := range sink.Rows() {
		if r.Day == 90 && r.Class == "Mi-8" && r.State == sim.StateOperations {
			ops++
		}
	}
	assert.Equal(t, 4, ops)
}

func TestScenario_Build_InlineUnits(t *testing.T) {
	s := parse(t, minimalScenario)

	in, err := s.Build()

	require.NoError(t, err)
	require.Len(t, in.Units, 1)
	assert.Equal(t, sim.StateOperations, in.Units[0].State)
	assert.False(t, in.Config.SpawnConfig.Scheduled())
}

func TestScenario_Build_BadInlineState(t *testing.T) {
	s := parse(t, strings.Replace(minimalScenario, "state: operations", "state: flying", 1))

	_, err := s.Build()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "flying")
}

func TestScenario_Build_MissingSnapshotFile(t *testing.T) {
	dir := t.TempDir()
	doc := strings.Split(minimalScenario, "units:")[0] + "snapshot_csv: missing.csv\n"
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	s, err := LoadScenario(path)
	require.NoError(t, err)

	_, err = s.Build()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.csv")
}

func TestInputs_Cumulative(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "fleet.yaml"))
	require.NoError(t, err)
	in, err := s.Build()
	require.NoError(t, err)

	base, ok := in.Cumulative("RF-01", "Mi-8", 61)
	require.True(t, ok)
	heavy, ok := in.Cumulative("RF-03", "Mi-8", 10)
	require.True(t, ok)
	spawned, ok := in.Cumulative("Mi-8-S1", "Mi-8", 1)
	require.True(t, ok, "units unknown to the snapshot fly the class profile")
	_, ok = in.Cumulative("E-01", "TV3", 10)

	assert.Equal(t, int64(60*6+8), base)
	assert.Equal(t, int64(120), heavy)
	assert.Equal(t, int64(6), spawned)
	assert.False(t, ok, "aggregates have no curve of their own")
	assert.Same(t, in.Classes.Get("TV3"), in.ClassByName("TV3"))
}
