// Package plan loads fleet scenarios: reference data, the daily plan, the
// initial snapshot and run options, from a YAML file and an optional CSV
// snapshot.
package plan

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/fleet-sim/fleet-sim/sim"
	"github.com/fleet-sim/fleet-sim/sim/trace"
)

// Scenario is the top-level scenario configuration.
// Loaded from YAML via LoadScenario(path).
type Scenario struct {
	Name          string            `yaml:"name"`
	Horizon       int               `yaml:"horizon" validate:"required,gt=0"`
	Classes       []ClassSpec       `yaml:"classes" validate:"required,min=1,dive"`
	Profiles      []ProfileSpec     `yaml:"profiles" validate:"dive"`
	ClassProfiles map[string]string `yaml:"class_profiles"`
	UnitProfiles  map[string]string `yaml:"unit_profiles,omitempty"`
	Targets       map[string][]Step `yaml:"targets" validate:"dive,min=1,dive"`
	Spawn         *SpawnSpec        `yaml:"spawn,omitempty"`
	Engine        EngineSpec        `yaml:"engine"`
	Trace         string            `yaml:"trace,omitempty"`
	SnapshotCSV   string            `yaml:"snapshot_csv,omitempty"` // relative to the scenario file
	Units         []UnitSpec        `yaml:"units,omitempty" validate:"dive"`

	dir string
}

// ClassSpec is the reference data of one unit class.
type ClassSpec struct {
	Name           string      `yaml:"name" validate:"required"`
	Kind           string      `yaml:"kind" validate:"required,oneof=airframe aggregate"`
	LifeLimit      int64       `yaml:"life_limit" validate:"gt=0"`
	OverhaulLimit  int64       `yaml:"overhaul_limit" validate:"gt=0"`
	BeyondRepair   int64       `yaml:"beyond_repair,omitempty" validate:"gte=0"`
	RepairDuration int         `yaml:"repair_duration" validate:"gt=0"`
	RepairSlots    int         `yaml:"repair_slots,omitempty" validate:"gte=0"` // 0 = unlimited
	Mounts         []MountSpec `yaml:"mounts,omitempty" validate:"dive"`
}

// MountSpec declares an airframe class an aggregate fits and how many it takes.
type MountSpec struct {
	Airframe string `yaml:"airframe" validate:"required"`
	Slots    int    `yaml:"slots" validate:"gt=0"`
}

// ProfileSpec is a named daily usage series, given as piecewise-constant
// segments. Each segment holds from its From day until the next one starts.
type ProfileSpec struct {
	Name     string    `yaml:"name" validate:"required"`
	Segments []Segment `yaml:"segments" validate:"required,min=1,dive"`
}

// Segment sets the daily usage from day From onwards.
type Segment struct {
	From  int   `yaml:"from" validate:"gte=1"`
	Daily int64 `yaml:"daily" validate:"gte=0"`
}

// Step sets the operational target from day From onwards.
type Step struct {
	From  int `yaml:"from" validate:"gte=1"`
	Value int `yaml:"value" validate:"gte=0"`
}

// SpawnSpec configures the dynamic spawner. Omitted fields take the engine
// defaults.
type SpawnSpec struct {
	Days          []int  `yaml:"days,omitempty" validate:"dive,gte=1"`
	CadenceDays   int    `yaml:"cadence_days,omitempty" validate:"gte=0"`
	WindowDays    int    `yaml:"window_days,omitempty" validate:"gte=0"`
	LookaheadDays int    `yaml:"lookahead_days,omitempty" validate:"gte=0"`
	SafetyMargin  string `yaml:"safety_margin,omitempty"`
	MinReserve    *int   `yaml:"min_reserve,omitempty" validate:"omitempty,gte=0"`
}

// EngineSpec configures the tick loop.
type EngineSpec struct {
	Workers        int  `yaml:"workers,omitempty" validate:"gte=0"`
	Adaptive       bool `yaml:"adaptive"`
	AssemblyPasses int  `yaml:"assembly_passes,omitempty" validate:"gte=0"`
}

// UnitSpec is one unit of an inline snapshot.
type UnitSpec struct {
	ID                 string `yaml:"id" validate:"required"`
	Class              string `yaml:"class" validate:"required"`
	State              string `yaml:"state" validate:"required"`
	UsageTotal         int64  `yaml:"usage_total" validate:"gte=0"`
	UsageSinceOverhaul int64  `yaml:"usage_since_overhaul" validate:"gte=0"`
	ManufactureDay     int    `yaml:"manufacture_day"`
	RegistrationDay    int    `yaml:"registration_day"`
	Owner              string `yaml:"owner,omitempty"`
	RepairElapsed      int    `yaml:"repair_elapsed,omitempty" validate:"gte=0"`
	LifeLimit          int64  `yaml:"life_limit,omitempty" validate:"gte=0"`
	OverhaulLimit      int64  `yaml:"overhaul_limit,omitempty" validate:"gte=0"`
	BeyondRepair       int64  `yaml:"beyond_repair,omitempty" validate:"gte=0"`
}

var validate = validator.New()

// LoadScenario reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	s, err := ParseScenario(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// ParseScenario decodes a scenario from r. Relative snapshot paths resolve
// against the working directory.
func ParseScenario(r io.Reader) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &s, nil
}

// Validate checks field ranges and the cross references between sections.
func (s *Scenario) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	if !trace.IsValidTraceLevel(s.Trace) {
		return fmt.Errorf("unknown trace level %q; valid: none, decisions, claims", s.Trace)
	}

	kinds := make(map[string]string, len(s.Classes))
	for _, c := range s.Classes {
		if _, dup := kinds[c.Name]; dup {
			return fmt.Errorf("class %q defined twice", c.Name)
		}
		kinds[c.Name] = c.Kind
	}
	for _, c := range s.Classes {
		if c.Kind == string(sim.KindAirframe) && len(c.Mounts) > 0 {
			return fmt.Errorf("class %q: only aggregates declare mounts", c.Name)
		}
		for _, m := range c.Mounts {
			if kinds[m.Airframe] != string(sim.KindAirframe) {
				return fmt.Errorf("class %q mounts on %q, which is not an airframe class", c.Name, m.Airframe)
			}
		}
	}

	profiles := make(map[string]bool, len(s.Profiles))
	for _, p := range s.Profiles {
		if profiles[p.Name] {
			return fmt.Errorf("profile %q defined twice", p.Name)
		}
		profiles[p.Name] = true
		if err := checkSteps(fmt.Sprintf("profile %q", p.Name), len(p.Segments), func(i int) int { return p.Segments[i].From }, s.Horizon); err != nil {
			return err
		}
	}
	for class, profile := range s.ClassProfiles {
		if _, ok := kinds[class]; !ok {
			return fmt.Errorf("class_profiles: unknown class %q", class)
		}
		if !profiles[profile] {
			return fmt.Errorf("class_profiles: class %q uses unknown profile %q", class, profile)
		}
	}
	for unit, profile := range s.UnitProfiles {
		if !profiles[profile] {
			return fmt.Errorf("unit_profiles: unit %q uses unknown profile %q", unit, profile)
		}
	}
	for class, steps := range s.Targets {
		if kinds[class] != string(sim.KindAirframe) {
			return fmt.Errorf("targets: %q is not an airframe class", class)
		}
		if _, ok := s.ClassProfiles[class]; !ok {
			return fmt.Errorf("targets: class %q has a target but no class profile", class)
		}
		if err := checkSteps(fmt.Sprintf("targets for %q", class), len(steps), func(i int) int { return steps[i].From }, s.Horizon); err != nil {
			return err
		}
	}

	if s.Spawn != nil && s.Spawn.SafetyMargin != "" {
		m, err := decimal.NewFromString(s.Spawn.SafetyMargin)
		if err != nil {
			return fmt.Errorf("spawn.safety_margin: %w", err)
		}
		if !m.IsPositive() {
			return fmt.Errorf("spawn.safety_margin must be positive, got %s", m)
		}
	}
	if s.SnapshotCSV != "" && len(s.Units) > 0 {
		return fmt.Errorf("snapshot_csv and inline units are mutually exclusive")
	}
	return nil
}

// checkSteps requires piecewise segments to start on day 1 and to advance
// strictly within the horizon.
func checkSteps(what string, n int, from func(int) int, horizon int) error {
	if from(0) != 1 {
		return fmt.Errorf("%s: first segment must start on day 1, got %d", what, from(0))
	}
	for i := 1; i < n; i++ {
		if from(i) <= from(i-1) {
			return fmt.Errorf("%s: segment %d starts on day %d, not after day %d", what, i, from(i), from(i-1))
		}
		if from(i) > horizon {
			return fmt.Errorf("%s: segment %d starts on day %d, past the horizon %d", what, i, from(i), horizon)
		}
	}
	return nil
}

// SnapshotPath resolves snapshot_csv against the scenario file's directory.
func (s *Scenario) SnapshotPath() string {
	if s.SnapshotCSV == "" || filepath.IsAbs(s.SnapshotCSV) {
		return s.SnapshotCSV
	}
	return filepath.Join(s.dir, s.SnapshotCSV)
}
