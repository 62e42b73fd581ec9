// Defines the Unit record held in the fleet arena and the snapshot row
// (UnitSpec) it is built from.

package sim

import (
	"fmt"
	"sync/atomic"
)

// noOwner marks an aggregate sitting in the free pool.
const noOwner = -1

// noPosition marks a unit that is not waiting in any pool.
const noPosition int64 = -1

// queuePosition packs manufacture day and arrival sequence so that positions in
// one (class, pool) order by manufacture day first and arrival second.
func queuePosition(manufactureDay int, seq int64) int64 {
	return int64(manufactureDay)<<24 | (seq & (1<<24 - 1))
}

// Unit is one serialized airframe or aggregate. Units live in the Fleet arena
// at a stable Index and refer to each other only by that index.
//
// Within a phase, a unit's plain fields are written only by the lane that owns
// it. State, owner and slot counters are atomics because other lanes read or
// bump them concurrently.
type Unit struct {
	ID    string
	Index int
	Class *Class

	state atomic.Int32
	owner atomic.Int32 // airframe arena index, noOwner when free
	slots []atomic.Int32

	UsageTotal         int64
	UsageSinceOverhaul int64
	LifeLimit          int64
	OverhaulLimit      int64
	BeyondRepair       int64

	ManufactureDay  int
	RegistrationDay int // day the unit entered its current state
	RepairElapsed   int
	RepairExitDay   int
	QueuePosition   int64
	Limiter         int
	Profile         int // usage curve index (airframes; aggregates follow their owner)
	Spawned         bool

	flags           Flag
	enqueue         bool // entered a pool this phase, needs a queue position
	repairRequested bool // hit its overhaul limit this tick
	claimTarget     int  // assembly: airframe claimed in the current pass, or noOwner
	claimRank       int  // rank among the claimants of claimTarget
}

func newUnit(id string, index int, class *Class) *Unit {
	u := &Unit{
		ID:            id,
		Index:         index,
		Class:         class,
		LifeLimit:     class.LifeLimit,
		OverhaulLimit: class.OverhaulLimit,
		BeyondRepair:  class.BeyondRepairThreshold(),
		QueuePosition: noPosition,
		claimTarget:   noOwner,
	}
	u.owner.Store(noOwner)
	if class.Kind == KindAirframe {
		u.slots = make([]atomic.Int32, len(class.aggregates))
	}
	return u
}

// State returns the unit's current state.
func (u *Unit) State() State { return State(u.state.Load()) }

// Owner returns the arena index of the airframe this aggregate is mounted on.
func (u *Unit) Owner() int { return int(u.owner.Load()) }

// Flags returns the transitions that fired for the unit during the last tick.
func (u *Unit) Flags() Flag { return u.flags }

// Filled returns how many aggregates of class agg are mounted on this airframe.
func (u *Unit) Filled(agg *Class) int {
	i := u.Class.slotIndex(agg.index)
	if i < 0 {
		return 0
	}
	return int(u.slots[i].Load())
}

// OpenSlots returns how many more aggregates of class agg this airframe takes.
// Only airframes in operations have open slots.
func (u *Unit) OpenSlots(agg *Class) int {
	if u.State() != StateOperations {
		return 0
	}
	open := agg.SlotsOn(u.Class) - u.Filled(agg)
	if open < 0 {
		return 0
	}
	return open
}

func (u *Unit) slotCounter(agg *Class) *atomic.Int32 {
	i := u.Class.slotIndex(agg.index)
	if i < 0 {
		return nil
	}
	return &u.slots[i]
}

func (u *Unit) mark(f Flag) { u.flags |= f }

func (u *Unit) String() string {
	return fmt.Sprintf("%s[%s %s tsn=%d tso=%d]", u.ID, u.Class.Name, u.State(), u.UsageTotal, u.UsageSinceOverhaul)
}

// UnitSpec is one row of the initial fleet snapshot.
type UnitSpec struct {
	ID                 string
	Class              string
	State              State
	UsageTotal         int64
	UsageSinceOverhaul int64
	ManufactureDay     int
	RegistrationDay    int
	Owner              string // airframe id for a mounted aggregate
	RepairElapsed      int    // days already spent in repair, 1..repair_duration
	LifeLimit          int64  // per-unit override, 0 = class value
	OverhaulLimit      int64  // per-unit override, 0 = class value
	BeyondRepair       int64  // per-unit override, 0 = class value
}
