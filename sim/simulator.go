// Drives the tick loop: each tick runs the phases in a fixed order with a
// barrier between them, then commits one row per unit to the sink.

package sim

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fleet-sim/fleet-sim/sim/trace"
)

// Simulator runs one fleet scenario from the day 0 snapshot to the plan horizon.
type Simulator struct {
	Day     int
	Metrics *Metrics
	Trace   *trace.SimulationTrace // nil unless tracing is enabled

	cfg   SimConfig
	plan  *Plan
	fleet *Fleet
	sink  Sink
	lanes lanes
	log   decisionLog

	ledger  repairLedger
	spawner *spawner

	airframes    []*Unit
	aggregates   []*Unit
	quotaClasses []*Class // airframe classes with a target
	mountable    []*Class // aggregate classes with at least one mount

	unresolved      int
	spawnedLastTick int
	pendingUnmet    []trace.UnmetDemandRecord
}

// NewSimulator validates the reference data, plan and snapshot and builds a
// simulator positioned at day 0. Nothing is simulated and nothing is written
// to the sink until Run. A nil sink discards rows into a MemorySink.
func NewSimulator(classes *ClassRegistry, plan *Plan, units []UnitSpec, cfg SimConfig, sink Sink) (*Simulator, error) {
	if classes == nil {
		return nil, fmt.Errorf("no class registry: %w", ErrMissingReferenceData)
	}
	if plan == nil || plan.Horizon < 1 {
		return nil, fmt.Errorf("plan must cover at least one day: %w", ErrInvalidPlan)
	}
	for class := range plan.targets {
		c := classes.Get(class)
		if c == nil {
			return nil, fmt.Errorf("target for unknown class %q: %w", class, ErrInvalidPlan)
		}
		if c.Kind != KindAirframe {
			return nil, fmt.Errorf("target for aggregate class %q: aggregates follow their airframes: %w", class, ErrInvalidPlan)
		}
	}
	for class := range plan.classProfile {
		if classes.Get(class) == nil {
			return nil, fmt.Errorf("profile for unknown class %q: %w", class, ErrInvalidPlan)
		}
	}
	if sink == nil {
		sink = NewMemorySink()
	}

	s := &Simulator{
		Metrics: NewMetrics(),
		cfg:     cfg,
		plan:    plan,
		fleet:   newFleet(classes),
		sink:    sink,
		lanes:   newLanes(cfg.Workers),
		spawner: newSpawner(cfg.SpawnConfig, plan.Horizon, classes.Len()),
	}
	if cfg.TraceConfig.Enabled() {
		s.Trace = trace.NewSimulationTrace(cfg.TraceConfig)
	}
	if err := s.fleet.load(units, plan); err != nil {
		return nil, err
	}

	for _, c := range classes.All() {
		switch {
		case c.Kind == KindAirframe && plan.HasTarget(c.Name):
			s.quotaClasses = append(s.quotaClasses, c)
		case c.Kind == KindAggregate && len(c.Mounts) > 0:
			s.mountable = append(s.mountable, c)
		}
	}
	for _, u := range s.fleet.units {
		if u.Class.Kind == KindAirframe {
			s.airframes = append(s.airframes, u)
		} else {
			s.aggregates = append(s.aggregates, u)
		}
		switch u.State() {
		case StateOperations:
			s.computeLimiter(u, 0)
		case StateRepair:
			s.ledger.add(RepairInterval{UnitID: u.ID, Class: u.Class.Name,
				Start: u.RepairExitDay - u.Class.RepairDuration, End: u.RepairExitDay})
		}
	}
	if cfg.SpawnConfig.Scheduled() {
		s.planCeilings()
	}
	s.Metrics.StartUnits = s.fleet.Len()
	return s, nil
}

// Fleet returns the unit arena.
func (s *Simulator) Fleet() *Fleet { return s.fleet }

// Plan returns the plan the simulator runs.
func (s *Simulator) Plan() *Plan { return s.plan }

// Ledger returns every repair interval recorded so far, real and backdated.
func (s *Simulator) Ledger() []RepairInterval { return s.ledger.sorted() }

// ClassByName returns the class named name, or nil.
func (s *Simulator) ClassByName(name string) *Class { return s.fleet.classes.Get(name) }

// Cumulative returns the planned usage an airframe flies on days 1..day.
// Units unknown to the fleet resolve through class. It reports false for
// aggregates and units without a usage profile.
func (s *Simulator) Cumulative(unitID, class string, day int) (int64, bool) {
	if u := s.fleet.Unit(unitID); u != nil {
		if u.Class.Kind != KindAirframe || u.Profile < 0 {
			return 0, false
		}
		return s.plan.Curve(u.Profile).Cumulative(day), true
	}
	if c := s.fleet.classes.Get(class); c == nil || c.Kind != KindAirframe {
		return 0, false
	}
	if curve := s.plan.CurveFor(unitID, class); curve != nil {
		return curve.Cumulative(day), true
	}
	return 0, false
}

// Run simulates every tick up to the plan horizon. Cancellation is checked
// between ticks only; a started tick always commits. Run does not close the
// sink.
func (s *Simulator) Run(ctx context.Context) error {
	logrus.Infof("Starting fleet simulation: %d units, %d classes, horizon=%d days, adaptive=%v",
		s.fleet.Len(), s.fleet.classes.Len(), s.plan.Horizon, s.cfg.Adaptive)
	if s.Day == 0 {
		if err := s.commit(0); err != nil {
			return err
		}
	}
	for s.Day < s.plan.Horizon {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := s.nextStep()
		s.accrueUnmet(step)
		if err := s.tick(s.Day + step); err != nil {
			return err
		}
	}
	s.accrueUnmet(1)
	s.finish()
	logrus.Infof("Fleet simulation complete: day %d after %d ticks", s.Day, s.Metrics.Ticks)
	return nil
}

// tick advances the fleet from s.Day to day d.
func (s *Simulator) tick(d int) error {
	p := s.Day
	s.Day = d
	logrus.Debugf("[day %05d] step of %d days", d, d-p)

	err := s.lanes.units(s.fleet.units, func(u *Unit) error {
		u.flags = 0
		u.repairRequested = false
		return nil
	})
	if err != nil {
		return err
	}

	// phase 1: state machine, airframes before the aggregates they carry
	advance := func(u *Unit) error { return s.advance(u, p, d) }
	if err := s.lanes.units(s.airframes, advance); err != nil {
		return fmt.Errorf("day %d state machine: %w", d, err)
	}
	if err := s.lanes.units(s.aggregates, advance); err != nil {
		return fmt.Errorf("day %d state machine: %w", d, err)
	}
	s.fleet.assignQueuePositions()

	// phase 2: quota controller
	if err := s.applyQuotas(d); err != nil {
		return fmt.Errorf("day %d quota: %w", d, err)
	}
	s.fleet.assignQueuePositions()

	// phase 3: assembly matcher
	if err := s.assemble(d); err != nil {
		return fmt.Errorf("day %d assembly: %w", d, err)
	}
	s.fleet.assignQueuePositions()

	// phase 4: repair admission
	if err := s.admitRepairs(d, indexPools(s.fleet)); err != nil {
		return fmt.Errorf("day %d repair admission: %w", d, err)
	}

	// phase 5: dynamic spawner
	if err := s.spawn(d); err != nil {
		return fmt.Errorf("day %d spawn: %w", d, err)
	}

	return s.commit(d)
}

// commit hands one row per unit to the sink and folds the tick's decisions
// into the metrics and trace.
func (s *Simulator) commit(d int) error {
	rows := make([]DayRecord, len(s.fleet.units))
	err := s.lanes.each(len(rows), func(i int) error {
		rows[i] = s.row(s.fleet.units[i], d)
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.sink.WriteDay(d, rows); err != nil {
		return fmt.Errorf("write day %d: %w", d, err)
	}

	decisions := s.log.drain()
	if d > 0 {
		s.Metrics.Ticks++
		s.Metrics.observeRows(rows)
		s.Metrics.observeDecisions(decisions)
		s.Metrics.UnresolvedClaims += s.unresolved
	}
	s.Metrics.Days = d
	s.pendingUnmet = decisions.unmet
	for _, r := range decisions.skips {
		logrus.Debugf("[day %05d] dropped %s -> %s for %s: %s", d, r.From, r.To, r.UnitID, r.Reason)
	}
	if s.Trace != nil {
		decisions.record(s.Trace)
	}
	return nil
}

func (s *Simulator) row(u *Unit, d int) DayRecord {
	r := DayRecord{
		Day:                d,
		UnitID:             u.ID,
		Class:              u.Class.Name,
		State:              u.State(),
		UsageTotal:         u.UsageTotal,
		UsageSinceOverhaul: u.UsageSinceOverhaul,
		Flags:              u.flags,
	}
	if o := u.Owner(); o != noOwner {
		r.OwnerID = s.fleet.units[o].ID
	}
	return r
}

// accrueUnmet charges the last tick's shortfalls for the days they held.
func (s *Simulator) accrueUnmet(days int) {
	for _, r := range s.pendingUnmet {
		s.Metrics.UnmetUnitDays[r.Class] += r.Shortfall * days
	}
	s.pendingUnmet = nil
}

func (s *Simulator) finish() {
	s.Metrics.EndUnits = s.fleet.Len()
	for _, c := range s.fleet.classes.All() {
		counts := make(map[State]int)
		for st := StateInactive; st <= StateUnserviceable; st++ {
			if n := s.fleet.Count(c, st); n > 0 {
				counts[st] = n
			}
		}
		s.Metrics.FinalCounts[c.Name] = counts
	}
}
