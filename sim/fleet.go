package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Fleet is the arena of units plus the shared counters the phases mutate.
// Units are appended, never removed, so an arena index stays valid for the
// whole run.
type Fleet struct {
	classes  *ClassRegistry
	units    []*Unit
	byID     map[string]int
	counts   *stateCounts
	tails    *poolTails
	repairs  *repairSlots
	spawnSeq []int
}

func newFleet(classes *ClassRegistry) *Fleet {
	return &Fleet{
		classes:  classes,
		byID:     make(map[string]int),
		counts:   newStateCounts(classes.Len()),
		tails:    newPoolTails(classes.Len()),
		repairs:  newRepairSlots(classes.All()),
		spawnSeq: make([]int, classes.Len()),
	}
}

// Classes returns the class registry.
func (f *Fleet) Classes() *ClassRegistry { return f.classes }

// Units returns the arena in index order. Callers must not append to it.
func (f *Fleet) Units() []*Unit { return f.units }

// Len returns the number of units ever created.
func (f *Fleet) Len() int { return len(f.units) }

// At returns the unit at arena index i.
func (f *Fleet) At(i int) *Unit { return f.units[i] }

// Unit returns the unit with the given id, or nil.
func (f *Fleet) Unit(id string) *Unit {
	i, ok := f.byID[id]
	if !ok {
		return nil
	}
	return f.units[i]
}

// Count returns how many units of class are currently in state s.
func (f *Fleet) Count(class *Class, s State) int {
	return f.counts.get(class.index, s)
}

// InRepair returns how many repair slots of class are taken.
func (f *Fleet) InRepair(class *Class) int {
	return f.repairs.busy(class.index)
}

// add appends a new unit in state s. It is only called between phases.
func (f *Fleet) add(id string, class *Class, s State, day int) (*Unit, error) {
	if id == "" {
		return nil, fmt.Errorf("unit of class %q has no id: %w", class.Name, ErrInvalidSnapshot)
	}
	if _, dup := f.byID[id]; dup {
		return nil, fmt.Errorf("unit %q defined twice: %w", id, ErrInvalidSnapshot)
	}
	u := newUnit(id, len(f.units), class)
	u.state.Store(int32(s))
	u.RegistrationDay = day
	u.enqueue = s.IsPool()
	f.counts.add(class.index, s, 1)
	f.byID[id] = u.Index
	f.units = append(f.units, u)
	return u, nil
}

// transition moves u from one state to another with a compare-and-swap. It
// returns false, changing nothing, when u is no longer in from.
func (f *Fleet) transition(u *Unit, from, to State, day int) bool {
	if !u.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	f.counts.add(u.Class.index, from, -1)
	f.counts.add(u.Class.index, to, 1)
	u.RegistrationDay = day
	u.QueuePosition = noPosition
	u.enqueue = to.IsPool()
	return true
}

// assignQueuePositions gives every unit that entered a pool during the last
// phase its queue position. It runs after the phase barrier, in arena order,
// so arrival sequences do not depend on lane scheduling.
func (f *Fleet) assignQueuePositions() {
	for _, u := range f.units {
		if !u.enqueue {
			continue
		}
		u.QueuePosition = queuePosition(u.ManufactureDay, f.tails.next(u.Class.index, u.State()))
		u.enqueue = false
	}
}

// detach unmounts an aggregate from its airframe and vacates the slot.
func (f *Fleet) detach(agg *Unit) {
	o := agg.Owner()
	if o == noOwner {
		return
	}
	if c := f.units[o].slotCounter(agg.Class); c != nil {
		c.Add(-1)
	}
	agg.owner.Store(noOwner)
}

// curveOf returns the usage curve index a unit flies on: its own for an
// airframe, its owner's for a mounted aggregate, -1 otherwise.
func (f *Fleet) curveOf(u *Unit) int {
	if u.Class.Kind == KindAirframe {
		return u.Profile
	}
	if o := u.Owner(); o != noOwner {
		return f.units[o].Profile
	}
	return -1
}

// load builds the arena from the initial snapshot.
func (f *Fleet) load(specs []UnitSpec, plan *Plan) error {
	first := len(f.units)
	for _, s := range specs {
		c := f.classes.Get(s.Class)
		if c == nil {
			return fmt.Errorf("unit %q: unknown class %q: %w", s.ID, s.Class, ErrMissingReferenceData)
		}
		if !s.State.Valid() {
			return fmt.Errorf("unit %q: invalid state %d: %w", s.ID, int32(s.State), ErrInvalidSnapshot)
		}
		if s.UsageTotal < 0 || s.UsageSinceOverhaul < 0 || s.UsageSinceOverhaul > s.UsageTotal {
			return fmt.Errorf("unit %q: inconsistent usage total=%d since_overhaul=%d: %w",
				s.ID, s.UsageTotal, s.UsageSinceOverhaul, ErrInvalidSnapshot)
		}
		u, err := f.add(s.ID, c, s.State, s.RegistrationDay)
		if err != nil {
			return err
		}
		u.UsageTotal = s.UsageTotal
		u.UsageSinceOverhaul = s.UsageSinceOverhaul
		u.ManufactureDay = s.ManufactureDay
		if s.LifeLimit > 0 {
			u.LifeLimit = s.LifeLimit
		}
		if s.OverhaulLimit > 0 {
			u.OverhaulLimit = s.OverhaulLimit
		}
		if s.BeyondRepair > 0 {
			u.BeyondRepair = s.BeyondRepair
		}
		u.Profile = -1
		if c.Kind == KindAirframe {
			u.Profile = plan.profileFor(s.ID, c.Name)
			if u.Profile < 0 {
				return fmt.Errorf("unit %q: no usage profile for it or its class %q: %w", s.ID, c.Name, ErrInvalidPlan)
			}
		}
		if s.State == StateRepair {
			elapsed := s.RepairElapsed
			if elapsed == 0 {
				elapsed = 1
			}
			if elapsed < 1 || elapsed > c.RepairDuration {
				return fmt.Errorf("unit %q: repair_elapsed %d outside 1..%d: %w",
					s.ID, s.RepairElapsed, c.RepairDuration, ErrInvalidSnapshot)
			}
			u.RepairElapsed = elapsed
			u.RepairExitDay = c.RepairDuration + 1 - elapsed
			if !f.repairs.acquire(c.index) {
				logrus.Warnf("unit %s starts in repair beyond the %d slots of class %s", s.ID, c.RepairSlots, c.Name)
				f.repairs.inUse[c.index].Add(1)
			}
		}
	}

	for i, s := range specs {
		u := f.units[first+i]
		if u.Class.Kind == KindAirframe {
			if s.Owner != "" {
				return fmt.Errorf("airframe %q cannot have an owner: %w", s.ID, ErrInvalidSnapshot)
			}
			continue
		}
		if s.Owner == "" {
			if u.State() == StateOperations {
				return fmt.Errorf("aggregate %q is in operations but not mounted: %w", s.ID, ErrInvalidSnapshot)
			}
			continue
		}
		af := f.Unit(s.Owner)
		if af == nil || af.Class.Kind != KindAirframe {
			return fmt.Errorf("aggregate %q: unknown owner airframe %q: %w", s.ID, s.Owner, ErrInvalidSnapshot)
		}
		if u.Class.SlotsOn(af.Class) == 0 {
			return fmt.Errorf("aggregate %q of class %q does not mount on %q (class %q): %w",
				s.ID, u.Class.Name, af.ID, af.Class.Name, ErrInvalidSnapshot)
		}
		if u.State() != StateOperations || af.State() != StateOperations {
			return fmt.Errorf("aggregate %q (%s) mounted on %q (%s): both must be in operations: %w",
				s.ID, u.State(), af.ID, af.State(), ErrInvalidSnapshot)
		}
		if int(af.slotCounter(u.Class).Add(1)) > u.Class.SlotsOn(af.Class) {
			return fmt.Errorf("airframe %q holds more than %d aggregates of class %q: %w",
				af.ID, u.Class.SlotsOn(af.Class), u.Class.Name, ErrInvalidSnapshot)
		}
		u.owner.Store(int32(af.Index))
	}

	f.assignQueuePositions()
	return nil
}
