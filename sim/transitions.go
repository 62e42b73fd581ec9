// Per-unit state machine: usage accrual, limit triggers and repair progress.
// Runs as phase 1 of every tick, airframes first, then aggregates, so that an
// aggregate always sees its owner's state for the day.

package sim

import (
	"github.com/fleet-sim/fleet-sim/sim/trace"
)

// advance moves one unit from the previous tick p to day d.
func (s *Simulator) advance(u *Unit, p, d int) error {
	switch u.State() {
	case StateOperations:
		s.fly(u, p, d)
	case StateRepair:
		s.progressRepair(u, d, d-p)
	}
	return nil
}

// fly accrues the usage of days p+1..d-1, which the step scheduler guarantees
// were flown without crossing a limit, then decides day d against the limits.
func (s *Simulator) fly(u *Unit, p, d int) {
	var curve *UsageCurve
	if i := s.fleet.curveOf(u); i >= 0 {
		curve = s.plan.Curve(i)
	}
	if curve != nil {
		base := curve.Between(p, d-1)
		u.UsageTotal += base
		u.UsageSinceOverhaul += base
	}
	u.Limiter -= d - p

	if u.Class.Kind == KindAggregate {
		o := u.Owner()
		if o == noOwner || s.fleet.At(o).State() != StateOperations {
			s.leaveOperations(u, StateServiceable, d, FlagDetached, "owner left operations")
			return
		}
	}

	var next int64
	if curve != nil {
		next = curve.Daily(d)
	}
	total := u.UsageTotal + next
	sinceOverhaul := u.UsageSinceOverhaul + next
	switch {
	case total >= u.LifeLimit:
		s.leaveOperations(u, StateStorage, d, FlagRetired, "life limit")
	case sinceOverhaul >= u.OverhaulLimit && total >= u.BeyondRepair:
		s.leaveOperations(u, StateStorage, d, FlagRetired, "beyond economical repair")
	case sinceOverhaul >= u.OverhaulLimit:
		if s.leaveOperations(u, StateUnserviceable, d, 0, "overhaul limit") {
			u.repairRequested = true
		}
	default:
		u.UsageTotal = total
		u.UsageSinceOverhaul = sinceOverhaul
	}
}

// leaveOperations moves u out of operations. An aggregate gives its slot back.
func (s *Simulator) leaveOperations(u *Unit, to State, d int, f Flag, reason string) bool {
	if !s.fleet.transition(u, StateOperations, to, d) {
		s.log.skip(trace.SkipRecord{Day: d, UnitID: u.ID, From: StateOperations.String(), To: to.String(), Reason: reason})
		return false
	}
	if u.Class.Kind == KindAggregate && u.Owner() != noOwner {
		s.fleet.detach(u)
		f |= FlagDetached
	}
	u.Limiter = 0
	u.mark(f)
	return true
}
