package sim

import (
	"sort"
	"sync"

	"github.com/fleet-sim/fleet-sim/sim/trace"
)

// RepairInterval is one entry of the repair ledger: the unit was in repair on
// days Start..End-1.
type RepairInterval struct {
	UnitID    string
	Class     string
	Start     int
	End       int
	Backdated bool // written for a P2 promotion; holds a slot over past days only
}

type repairLedger struct {
	mu        sync.Mutex
	intervals []RepairInterval
}

func (l *repairLedger) add(iv RepairInterval) {
	l.mu.Lock()
	l.intervals = append(l.intervals, iv)
	l.mu.Unlock()
}

// sorted returns the ledger ordered by start day, then unit id.
func (l *repairLedger) sorted() []RepairInterval {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]RepairInterval(nil), l.intervals...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].UnitID < out[j].UnitID
	})
	return out
}

// peak returns the most intervals of class open on any one day in [from, to).
func (l *repairLedger) peak(class string, from, to int) int {
	type edge struct{ day, delta int }
	l.mu.Lock()
	var edges []edge
	for _, iv := range l.intervals {
		if iv.Class != class || iv.End <= from || iv.Start >= to {
			continue
		}
		edges = append(edges, edge{max(iv.Start, from), 1}, edge{iv.End, -1})
	}
	l.mu.Unlock()

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].day != edges[j].day {
			return edges[i].day < edges[j].day
		}
		return edges[i].delta < edges[j].delta
	})
	open, most := 0, 0
	for _, e := range edges {
		open += e.delta
		most = max(most, open)
	}
	return most
}

// backdateBudget is how many P2 promotions class c can take on day d: each
// one books a slot over [d - repair_duration, d), so the past days must have
// room for it next to every repair already recorded there.
func (s *Simulator) backdateBudget(c *Class, d int) int {
	if c.RepairSlots == 0 {
		return int(^uint(0) >> 1)
	}
	return max(c.RepairSlots-s.ledger.peak(c.Name, d-c.RepairDuration, d), 0)
}

// progressRepair advances a unit in repair to day d and releases it into
// reserve when the elapsed count hits the class duration exactly.
func (s *Simulator) progressRepair(u *Unit, d, step int) {
	u.RepairElapsed += step - 1
	if u.RepairElapsed != u.Class.RepairDuration {
		u.RepairElapsed++
		return
	}
	if !s.fleet.transition(u, StateRepair, StateReserve, d) {
		s.log.skip(trace.SkipRecord{Day: d, UnitID: u.ID, From: StateRepair.String(), To: StateReserve.String(), Reason: "stale repair exit"})
		return
	}
	s.fleet.repairs.release(u.Class.index)
	u.UsageSinceOverhaul = 0
	u.RepairElapsed = 0
	u.RepairExitDay = 0
	u.mark(FlagExitedRepair)
}

// admitRepairs hands free repair slots to units waiting in unserviceable,
// FIFO by queue position within each class. Units that asked for repair this
// tick and got no slot stay parked.
func (s *Simulator) admitRepairs(d int, pools *poolIndex) error {
	var admit []*Unit
	for _, c := range s.fleet.classes.All() {
		waiting := pools.get(c, StateUnserviceable)
		if len(waiting) == 0 {
			continue
		}
		byQueue(waiting)
		n := min(s.fleet.repairs.free(c.index), len(waiting))
		admit = append(admit, waiting[:n]...)
		for _, u := range waiting[n:] {
			if u.repairRequested {
				u.mark(FlagParked)
				s.log.repair(trace.RepairRecord{Day: d, UnitID: u.ID, Class: c.Name, Admitted: false})
			}
		}
	}
	return s.lanes.units(admit, func(u *Unit) error {
		if !s.fleet.repairs.acquire(u.Class.index) {
			u.mark(FlagParked)
			s.log.repair(trace.RepairRecord{Day: d, UnitID: u.ID, Class: u.Class.Name, Admitted: false})
			return nil
		}
		if !s.fleet.transition(u, StateUnserviceable, StateRepair, d) {
			s.fleet.repairs.release(u.Class.index)
			s.log.skip(trace.SkipRecord{Day: d, UnitID: u.ID, From: StateUnserviceable.String(), To: StateRepair.String(), Reason: "stale repair admission"})
			return nil
		}
		u.RepairElapsed = 1
		u.RepairExitDay = d + u.Class.RepairDuration
		u.mark(FlagEnteredRepair)
		s.ledger.add(RepairInterval{UnitID: u.ID, Class: u.Class.Name, Start: d, End: u.RepairExitDay})
		s.log.repair(trace.RepairRecord{Day: d, UnitID: u.ID, Class: u.Class.Name, Admitted: true, Start: d, End: u.RepairExitDay})
		return nil
	})
}

// backdateRepair writes the synthetic repair a P2 promotion implies: the
// unit is treated as overhauled over the repair_duration days before d,
// holding one of the class's slots for that window.
func (s *Simulator) backdateRepair(u *Unit, d int) {
	start := d - u.Class.RepairDuration
	u.UsageSinceOverhaul = 0
	s.ledger.add(RepairInterval{UnitID: u.ID, Class: u.Class.Name, Start: start, End: d, Backdated: true})
	s.log.repair(trace.RepairRecord{Day: d, UnitID: u.ID, Class: u.Class.Name, Admitted: true, Backdated: true, Start: start, End: d})
}
