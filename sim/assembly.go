// Assembly matcher: mounts free aggregates on airframes in operations that
// have open slots, in bounded claim/verify passes.

package sim

import (
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/fleet-sim/fleet-sim/sim/trace"
)

// assemble runs the detach sweep and then up to EngineConfig.AssemblyPasses
// matcher passes for day d. Claims still open after the budget are counted as
// unresolved.
func (s *Simulator) assemble(d int) error {
	if len(s.mountable) == 0 {
		return nil
	}
	err := s.lanes.units(s.aggregates, func(u *Unit) error {
		if u.State() != StateOperations {
			return nil
		}
		if o := u.Owner(); o != noOwner && s.fleet.At(o).State() == StateOperations {
			return nil
		}
		s.leaveOperations(u, StateServiceable, d, FlagDetached, "owner left operations")
		return nil
	})
	if err != nil {
		return err
	}
	s.fleet.assignQueuePositions()

	passes := s.cfg.passes()
	for pass := 1; pass <= passes; pass++ {
		committed, err := s.assemblyPass(d, pass)
		if err != nil {
			return err
		}
		if committed == 0 {
			break
		}
	}

	s.unresolved = 0
	for _, g := range s.mountable {
		free, open := s.matchable(g)
		s.unresolved += min(free, open)
		s.spawner.observe(g, d, max(open-free, 0))
	}
	if s.unresolved > 0 {
		logrus.Warnf("[day %05d] %d assembly claims unresolved after %d passes", d, s.unresolved, passes)
	}
	return nil
}

// matchable counts the free aggregates of class g and the open slots for g on
// airframes in operations.
func (s *Simulator) matchable(g *Class) (free, open int) {
	for _, u := range s.aggregates {
		if u.Class == g && isFree(u) {
			free++
		}
	}
	for _, af := range s.airframes {
		open += af.OpenSlots(g)
	}
	return free, open
}

func isFree(u *Unit) bool {
	st := u.State()
	return (st == StateServiceable || st == StateReserve) && u.Owner() == noOwner
}

type passPlan struct {
	class    *Class
	claims   []*Unit
	openAt   map[int]int // airframe index -> open slots at pass start
	airframe map[int]*Unit
}

// assemblyPass runs one claim/verify round over every mountable class and
// returns the number of aggregates mounted.
func (s *Simulator) assemblyPass(d, pass int) (int, error) {
	var plans []passPlan
	var claimants []*Unit
	for _, g := range s.mountable {
		p, ok := s.planPass(g)
		if !ok {
			continue
		}
		plans = append(plans, p)
		claimants = append(claimants, p.claims...)
	}
	if len(claimants) == 0 {
		return 0, nil
	}

	// claim: optimistic fetch-and-add on the target's slot counter
	err := s.lanes.units(claimants, func(u *Unit) error {
		s.fleet.At(u.claimTarget).slotCounter(u.Class).Add(1)
		return nil
	})
	if err != nil {
		return 0, err
	}

	openAt := make(map[int]map[int]int, len(plans))
	for _, p := range plans {
		openAt[p.class.index] = p.openAt
	}

	// verify: claimants ranked past the open slots revert and retry next pass
	var committed atomic.Int64
	err = s.lanes.units(claimants, func(u *Unit) error {
		af := s.fleet.At(u.claimTarget)
		counter := af.slotCounter(u.Class)
		ok := u.claimRank < openAt[u.Class.index][af.Index]
		if ok {
			ok = s.mount(u, af, d)
		}
		if !ok {
			counter.Add(-1)
		} else {
			committed.Add(1)
		}
		if s.cfg.TraceConfig.Claims() {
			s.log.claim(trace.ClaimRecord{Day: d, Pass: pass, AggregateID: u.ID, AirframeID: af.ID, Committed: ok})
		}
		u.claimTarget = noOwner
		u.claimRank = 0
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(committed.Load()), nil
}

// planPass snapshots the open slots for class g and assigns each free
// aggregate, by FIFO rank r, to candidates[r mod len(candidates)], where the
// candidates are the compatible airframes with the fewest filled slots.
func (s *Simulator) planPass(g *Class) (passPlan, bool) {
	p := passPlan{class: g, openAt: make(map[int]int)}
	var cands []*Unit
	totalOpen := 0
	minFilled := -1
	for _, af := range s.airframes {
		open := af.OpenSlots(g)
		if open == 0 {
			continue
		}
		p.openAt[af.Index] = open
		totalOpen += open
		filled := af.Filled(g)
		switch {
		case minFilled < 0 || filled < minFilled:
			minFilled = filled
			cands = append(cands[:0], af)
		case filled == minFilled:
			cands = append(cands, af)
		}
	}
	if totalOpen == 0 {
		return p, false
	}

	var free []*Unit
	for _, u := range s.aggregates {
		if u.Class == g && isFree(u) {
			free = append(free, u)
		}
	}
	if len(free) == 0 {
		return p, false
	}
	byQueue(free)
	sort.Slice(cands, func(i, j int) bool { return cands[i].Index < cands[j].Index })

	n := min(len(free), totalOpen)
	for r, u := range free[:n] {
		u.claimTarget = cands[r%len(cands)].Index
		u.claimRank = r / len(cands)
	}
	p.claims = free[:n]
	return p, true
}

// mount commits a verified claim: owner, state and limiter. The slot counter
// already holds the claim.
func (s *Simulator) mount(u, af *Unit, d int) bool {
	from := u.State()
	u.owner.Store(int32(af.Index))
	if !s.fleet.transition(u, from, StateOperations, d) {
		u.owner.Store(noOwner)
		s.log.skip(trace.SkipRecord{Day: d, UnitID: u.ID, From: from.String(), To: StateOperations.String(), Reason: "stale assembly claim"})
		return false
	}
	s.computeLimiter(u, d)
	u.mark(FlagAssembled)
	return true
}
