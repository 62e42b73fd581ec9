package sim

import "sort"

// computeLimiter sets the days from d until u's first limit trigger, found by
// binary search over the cumulative curve it flies on. The unit is assumed
// to have flown everything up to and including day d already.
func (s *Simulator) computeLimiter(u *Unit, d int) {
	i := s.fleet.curveOf(u)
	if i < 0 {
		u.Limiter = s.plan.Horizon - d + 1
		return
	}
	need := min(u.LifeLimit-u.UsageTotal, u.OverhaulLimit-u.UsageSinceOverhaul)
	u.Limiter = s.plan.Curve(i).FirstReach(d, need) - d
}

// nextStep returns how many days the next tick advances. In daily mode it is
// always 1; in adaptive mode it is the distance to the nearest day on which
// any unit, plan entry or seed day can change something.
func (s *Simulator) nextStep() int {
	d := s.Day
	step := s.plan.Horizon - d
	if step <= 1 || !s.cfg.Adaptive {
		return min(step, 1)
	}
	if s.unresolved > 0 || s.spawnedLastTick > 0 {
		return 1
	}
	if d == 0 && !s.settled() {
		return 1
	}

	for _, u := range s.fleet.units {
		var until int
		switch u.State() {
		case StateOperations:
			until = u.Limiter
		case StateRepair:
			until = u.RepairExitDay - d
		case StateInactive, StateUnserviceable:
			if !s.plan.HasTarget(u.Class.Name) {
				continue
			}
			until = u.RegistrationDay + u.Class.RepairDuration - d
		default:
			continue
		}
		if until >= 1 && until < step {
			step = until
		}
	}

	if until := nextAfter(s.plan.ChangeDays(), d) - d; until >= 1 && until < step {
		step = until
	}
	if until := nextAfter(s.spawner.seedDays, d) - d; until >= 1 && until < step {
		step = until
	}
	return step
}

// nextAfter returns the first element of sorted days greater than d, or d
// when there is none.
func nextAfter(days []int, d int) int {
	i := sort.SearchInts(days, d+1)
	if i == len(days) {
		return d
	}
	return days[i]
}

// settled reports whether the day 0 snapshot leaves nothing for day 1 to do
// besides flying: every target met, no aggregate waiting for an open slot and
// no parked unit waiting for a free repair slot. Later ticks end settled by
// construction.
func (s *Simulator) settled() bool {
	for _, c := range s.quotaClasses {
		if s.fleet.Count(c, StateOperations) != s.plan.Target(c.Name, 1) {
			return false
		}
	}
	for _, g := range s.mountable {
		if free, open := s.matchable(g); free > 0 && open > 0 {
			return false
		}
	}
	for _, c := range s.fleet.classes.All() {
		if s.fleet.Count(c, StateUnserviceable) > 0 && s.fleet.repairs.free(c.index) > 0 {
			return false
		}
	}
	return true
}
