// Dynamic spawner: creates new units when a class is structurally short.

package sim

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fleet-sim/fleet-sim/sim/trace"
)

// reserveHorizonDays is the planning window the reserve ceiling is sized over.
const reserveHorizonDays = 3650

// ReserveInput is what a ReservePolicy sees about one class.
type ReserveInput struct {
	Class          *Class
	Existing       int             // units of the class not in storage at day 0
	FleetUsage     decimal.Decimal // planned usage of the whole class over ten years
	UnitDailyUsage decimal.Decimal // average planned daily usage of one unit
}

// ReservePolicy sizes how many units the spawner may create for a class over
// the whole run.
type ReservePolicy interface {
	Ceiling(in ReserveInput) int
}

// DefaultReservePolicy covers ten years of planned usage with a margin:
// ceil(fleet usage / life limit * margin) - existing, plus a repair buffer
// for classes that need overhauls before their life limit, never below
// MinReserve.
type DefaultReservePolicy struct {
	SafetyMargin decimal.Decimal
	MinReserve   int
}

func (p DefaultReservePolicy) Ceiling(in ReserveInput) int {
	c := in.Class
	existing := decimal.NewFromInt(int64(in.Existing))
	need := in.FleetUsage.
		Div(decimal.NewFromInt(c.LifeLimit)).
		Mul(p.SafetyMargin).
		Ceil().
		Sub(existing)

	if c.OverhaulLimit < c.LifeLimit && in.UnitDailyUsage.IsPositive() {
		daysBetweenOverhauls := decimal.NewFromInt(c.OverhaulLimit).Div(in.UnitDailyUsage)
		if daysBetweenOverhauls.IsPositive() {
			buffer := existing.
				Mul(decimal.NewFromInt(int64(c.RepairDuration))).
				Div(daysBetweenOverhauls).
				Ceil()
			need = need.Add(buffer)
		}
	}

	n := int(need.IntPart())
	if n < p.MinReserve {
		return p.MinReserve
	}
	return n
}

type shortfallSpan struct {
	day       int
	shortfall int
}

// spawner tracks rolling shortfalls and creates units on seed days.
type spawner struct {
	cfg      SpawnConfig
	seedDays []int
	ceiling  []int // per class index, -1 = never spawned
	spawned  []int
	window   [][]shortfallSpan
}

func newSpawner(cfg SpawnConfig, horizon, classes int) *spawner {
	sp := &spawner{
		cfg:     cfg,
		ceiling: make([]int, classes),
		spawned: make([]int, classes),
		window:  make([][]shortfallSpan, classes),
	}
	for i := range sp.ceiling {
		sp.ceiling[i] = -1
	}
	set := make(map[int]bool)
	for _, d := range cfg.Days {
		if d >= 1 && d <= horizon {
			set[d] = true
		}
	}
	if cfg.CadenceDays > 0 {
		for d := cfg.CadenceDays; d <= horizon; d += cfg.CadenceDays {
			set[d] = true
		}
	}
	for d := range set {
		sp.seedDays = append(sp.seedDays, d)
	}
	sort.Ints(sp.seedDays)
	return sp
}

func (sp *spawner) isSeedDay(d int) bool {
	i := sort.SearchInts(sp.seedDays, d)
	return i < len(sp.seedDays) && sp.seedDays[i] == d
}

// observe records the shortfall of class c at tick d. A shortfall holds for
// every day until the next observation, so the rolling sum is the same
// whether ticks are daily or adaptive.
func (sp *spawner) observe(c *Class, d, shortfall int) {
	if sp.ceiling[c.index] < 0 {
		return
	}
	w := sp.window[c.index]
	if n := len(w); n > 0 && w[n-1].day == d {
		w[n-1].shortfall += shortfall
	} else {
		w = append(w, shortfallSpan{day: d, shortfall: shortfall})
	}
	sp.window[c.index] = w
}

// deficit returns the unit-days of shortfall of class c over the window
// ending at day d, and drops spans that can no longer matter.
func (sp *spawner) deficit(c *Class, d int) int {
	windowDays := sp.cfg.WindowDays
	if windowDays <= 0 {
		windowDays = 1
	}
	from := d - windowDays + 1
	w := sp.window[c.index]
	total := 0
	keep := 0
	for i, span := range w {
		end := d
		if i+1 < len(w) {
			end = w[i+1].day - 1
		}
		if end < from {
			keep = i + 1
			continue
		}
		start := max(span.day, from)
		total += span.shortfall * (end - start + 1)
	}
	if keep > 0 && keep < len(w) {
		sp.window[c.index] = append(w[:0], w[keep:]...)
	}
	return total
}

// planCeilings sizes the spawn ceiling of every quota-controlled airframe class
// and every aggregate class mounted on one.
func (s *Simulator) planCeilings() {
	policy := s.cfg.SpawnConfig.policy()
	days := min(s.plan.Horizon, reserveHorizonDays)
	scale := decimal.NewFromInt(reserveHorizonDays).Div(decimal.NewFromInt(int64(days)))

	existing := make([]int, s.fleet.classes.Len())
	for _, u := range s.fleet.units {
		if u.State() != StateStorage {
			existing[u.Class.index]++
		}
	}

	fleetUsage := make(map[int]decimal.Decimal)
	unitDaily := make(map[int]decimal.Decimal)
	for _, c := range s.quotaClasses {
		ci := s.plan.classCurve(c.Name)
		if ci < 0 {
			logrus.Warnf("class %s has a target but no default profile; it will not be spawned", c.Name)
			continue
		}
		curve := s.plan.Curve(ci)
		total := decimal.Zero
		for d := 1; d <= days; d++ {
			total = total.Add(decimal.NewFromInt(int64(s.plan.Target(c.Name, d)) * curve.Daily(d)))
		}
		fleetUsage[c.index] = total.Mul(scale)
		unitDaily[c.index] = decimal.NewFromInt(curve.Cumulative(days)).Div(decimal.NewFromInt(int64(days)))
		s.spawner.ceiling[c.index] = policy.Ceiling(ReserveInput{
			Class:          c,
			Existing:       existing[c.index],
			FleetUsage:     fleetUsage[c.index],
			UnitDailyUsage: unitDaily[c.index],
		})
	}

	for _, g := range s.mountable {
		total := decimal.Zero
		daily := decimal.Zero
		mounts := 0
		for _, m := range g.Mounts {
			af := s.fleet.classes.Get(m.Airframe)
			usage, ok := fleetUsage[af.index]
			if !ok {
				continue
			}
			total = total.Add(usage.Mul(decimal.NewFromInt(int64(m.Slots))))
			daily = daily.Add(unitDaily[af.index])
			mounts++
		}
		if mounts == 0 {
			continue
		}
		s.spawner.ceiling[g.index] = policy.Ceiling(ReserveInput{
			Class:          g,
			Existing:       existing[g.index],
			FleetUsage:     total,
			UnitDailyUsage: daily.Div(decimal.NewFromInt(int64(mounts))),
		})
	}
}

// Ceilings returns the spawn ceiling per class name for every spawnable class.
func (s *Simulator) Ceilings() map[string]int {
	out := make(map[string]int)
	for _, c := range s.fleet.classes.All() {
		if n := s.spawner.ceiling[c.index]; n >= 0 {
			out[c.Name] = n
		}
	}
	return out
}

// structuralTarget is the most units of class c that the plan will want in
// operations over the lookahead window starting at d.
func (s *Simulator) structuralTarget(c *Class, d int) int {
	to := d + max(s.cfg.LookaheadDays, 0)
	if c.Kind == KindAirframe {
		return s.plan.MaxTarget(c.Name, d, to)
	}
	total := 0
	for _, m := range c.Mounts {
		total += m.Slots * s.plan.MaxTarget(m.Airframe, d, to)
	}
	return total
}

// spawn creates units on a seed day for every class whose rolling deficit is
// positive and whose available units fall below the structural target.
func (s *Simulator) spawn(d int) error {
	s.spawnedLastTick = 0
	if !s.spawner.isSeedDay(d) {
		return nil
	}
	for _, c := range s.fleet.classes.All() {
		ceiling := s.spawner.ceiling[c.index]
		if ceiling < 0 || s.spawner.deficit(c, d) <= 0 {
			continue
		}
		available := s.fleet.Count(c, StateOperations) + s.fleet.Count(c, StateServiceable) + s.fleet.Count(c, StateReserve)
		n := min(s.structuralTarget(c, d)-available, ceiling-s.spawner.spawned[c.index])
		if n <= 0 {
			continue
		}
		ids := make([]string, 0, n)
		for i := 0; i < n; i++ {
			u, err := s.newSpawnedUnit(c, d)
			if err != nil {
				return err
			}
			ids = append(ids, u.ID)
		}
		s.spawner.spawned[c.index] += n
		s.spawnedLastTick += n
		s.log.spawn(trace.SpawnRecord{Day: d, Class: c.Name, UnitIDs: ids, Ceiling: ceiling})
		logrus.Infof("[day %05d] spawned %d %s units (%d/%d of ceiling)", d, n, c.Name, s.spawner.spawned[c.index], ceiling)
	}
	s.fleet.assignQueuePositions()
	return nil
}

func (s *Simulator) newSpawnedUnit(c *Class, d int) (*Unit, error) {
	var id string
	for id == "" || s.fleet.Unit(id) != nil {
		s.fleet.spawnSeq[c.index]++
		id = fmt.Sprintf("%s-S%d", c.Name, s.fleet.spawnSeq[c.index])
	}
	u, err := s.fleet.add(id, c, StateServiceable, d)
	if err != nil {
		return nil, err
	}
	u.ManufactureDay = d
	u.Spawned = true
	u.Profile = -1
	if c.Kind == KindAirframe {
		u.Profile = s.plan.profileFor(id, c.Name)
		s.airframes = append(s.airframes, u)
	} else {
		s.aggregates = append(s.aggregates, u)
	}
	u.mark(FlagSpawned)
	return u, nil
}
