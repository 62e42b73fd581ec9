package plan

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fleet-sim/fleet-sim/sim"
	"github.com/fleet-sim/fleet-sim/sim/trace"
)

// Inputs is everything sim.NewSimulator needs, built from one scenario.
type Inputs struct {
	Name    string
	Classes *sim.ClassRegistry
	Plan    *sim.Plan
	Units   []sim.UnitSpec
	Config  sim.SimConfig
}

// Build validates the scenario, expands its piecewise segments into daily
// series and loads the snapshot.
func (s *Scenario) Build() (*Inputs, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	classes := make([]*sim.Class, 0, len(s.Classes))
	for _, cs := range s.Classes {
		c := &sim.Class{
			Name:           cs.Name,
			Kind:           sim.Kind(cs.Kind),
			LifeLimit:      cs.LifeLimit,
			OverhaulLimit:  cs.OverhaulLimit,
			BeyondRepair:   cs.BeyondRepair,
			RepairDuration: cs.RepairDuration,
			RepairSlots:    cs.RepairSlots,
		}
		for _, m := range cs.Mounts {
			c.Mounts = append(c.Mounts, sim.Mount{Airframe: m.Airframe, Slots: m.Slots})
		}
		classes = append(classes, c)
	}
	registry, err := sim.NewClassRegistry(classes)
	if err != nil {
		return nil, err
	}

	p := sim.NewPlan(s.Horizon)
	for _, ps := range s.Profiles {
		if err := p.AddProfile(ps.Name, expandSegments(ps.Segments, s.Horizon)); err != nil {
			return nil, err
		}
	}
	for _, class := range sortedKeys(s.ClassProfiles) {
		if err := p.SetClassProfile(class, s.ClassProfiles[class]); err != nil {
			return nil, err
		}
	}
	for _, unit := range sortedKeys(s.UnitProfiles) {
		if err := p.SetUnitProfile(unit, s.UnitProfiles[unit]); err != nil {
			return nil, err
		}
	}
	for _, class := range sortedKeys(s.Targets) {
		if err := p.SetTarget(class, expandSteps(s.Targets[class], s.Horizon)); err != nil {
			return nil, err
		}
	}

	units, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	cfg, err := s.config()
	if err != nil {
		return nil, err
	}
	logrus.Debugf("scenario %q: %d classes, %d profiles, %d targets, %d units, horizon=%d",
		s.Name, registry.Len(), len(s.Profiles), len(s.Targets), len(units), s.Horizon)
	return &Inputs{Name: s.Name, Classes: registry, Plan: p, Units: units, Config: cfg}, nil
}

// NewSimulator builds a simulator over in writing to sink.
func (in *Inputs) NewSimulator(sink sim.Sink) (*sim.Simulator, error) {
	return sim.NewSimulator(in.Classes, in.Plan, in.Units, in.Config, sink)
}

// ClassByName returns the named class, or nil.
func (in *Inputs) ClassByName(name string) *sim.Class { return in.Classes.Get(name) }

// Cumulative returns the planned usage of an airframe over days 1..day
// without simulating. It reports false for aggregates and for units the plan
// has no profile for.
func (in *Inputs) Cumulative(unitID, class string, day int) (int64, bool) {
	c := in.Classes.Get(class)
	if c == nil || c.Kind != sim.KindAirframe {
		return 0, false
	}
	curve := in.Plan.CurveFor(unitID, class)
	if curve == nil {
		return 0, false
	}
	return curve.Cumulative(day), true
}

func (s *Scenario) snapshot() ([]sim.UnitSpec, error) {
	if path := s.SnapshotPath(); path != "" {
		return LoadSnapshotFile(path)
	}
	units := make([]sim.UnitSpec, 0, len(s.Units))
	for i, us := range s.Units {
		state, err := sim.ParseState(us.State)
		if err != nil {
			return nil, fmt.Errorf("units[%d] %q: %w", i, us.ID, err)
		}
		units = append(units, sim.UnitSpec{
			ID:                 us.ID,
			Class:              us.Class,
			State:              state,
			UsageTotal:         us.UsageTotal,
			UsageSinceOverhaul: us.UsageSinceOverhaul,
			ManufactureDay:     us.ManufactureDay,
			RegistrationDay:    us.RegistrationDay,
			Owner:              us.Owner,
			RepairElapsed:      us.RepairElapsed,
			LifeLimit:          us.LifeLimit,
			OverhaulLimit:      us.OverhaulLimit,
			BeyondRepair:       us.BeyondRepair,
		})
	}
	return units, nil
}

func (s *Scenario) config() (sim.SimConfig, error) {
	cfg := sim.SimConfig{
		EngineConfig: sim.NewEngineConfig(s.Engine.Workers, s.Engine.Adaptive, s.Engine.AssemblyPasses),
		TraceConfig:  trace.TraceConfig{Level: trace.TraceLevel(s.Trace)},
	}
	if s.Spawn == nil {
		return cfg, nil
	}
	spawn := sim.NewSpawnConfig(append([]int(nil), s.Spawn.Days...), s.Spawn.CadenceDays)
	if s.Spawn.WindowDays > 0 {
		spawn.WindowDays = s.Spawn.WindowDays
	}
	if s.Spawn.LookaheadDays > 0 {
		spawn.LookaheadDays = s.Spawn.LookaheadDays
	}
	if s.Spawn.SafetyMargin != "" {
		m, err := decimal.NewFromString(s.Spawn.SafetyMargin)
		if err != nil {
			return cfg, fmt.Errorf("spawn.safety_margin: %w", err)
		}
		spawn.SafetyMargin = m
	}
	if s.Spawn.MinReserve != nil {
		spawn.MinReserve = *s.Spawn.MinReserve
	}
	cfg.SpawnConfig = spawn
	return cfg, nil
}

// expandSegments turns piecewise usage into one value per day 1..horizon.
func expandSegments(segs []Segment, horizon int) []int64 {
	out := make([]int64, horizon)
	for i, seg := range segs {
		end := horizon
		if i+1 < len(segs) {
			end = segs[i+1].From - 1
		}
		for d := seg.From; d <= end; d++ {
			out[d-1] = seg.Daily
		}
	}
	return out
}

// expandSteps turns a piecewise target into one value per day 1..horizon.
func expandSteps(steps []Step, horizon int) []int {
	out := make([]int, horizon)
	for i, st := range steps {
		end := horizon
		if i+1 < len(steps) {
			end = steps[i+1].From - 1
		}
		for d := st.From; d <= end; d++ {
			out[d-1] = st.Value
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
