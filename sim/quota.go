package sim

import (
	"github.com/sirupsen/logrus"

	"github.com/fleet-sim/fleet-sim/sim/trace"
)

// Promotion tiers, in the order the quota controller drains them.
const (
	TierAirworthy     = "P1" // serviceable, then reserve
	TierUnserviceable = "P2" // parked units, with a backdated repair
	TierInactive      = "P3" // dormant units past their recall gate
)

type quotaAction struct {
	unit   *Unit
	from   State
	tier   string // empty for a demotion
	demote bool
}

type quotaDecision struct {
	actions   []quotaAction
	target    int
	shortfall int
}

// applyQuotas balances every quota-controlled class against its target for
// day d. Selection is rank-based over the pools as they stood after the state
// machine phase; the chosen transitions then run in parallel lanes.
func (s *Simulator) applyQuotas(d int) error {
	pools := indexPools(s.fleet)
	decisions := make([]quotaDecision, len(s.quotaClasses))
	err := s.lanes.each(len(s.quotaClasses), func(i int) error {
		decisions[i] = s.selectQuota(s.quotaClasses[i], d, pools)
		return nil
	})
	if err != nil {
		return err
	}

	var actions []quotaAction
	for i, dec := range decisions {
		actions = append(actions, dec.actions...)
		c := s.quotaClasses[i]
		s.spawner.observe(c, d, dec.shortfall)
		if dec.shortfall > 0 {
			s.log.shortfall(trace.UnmetDemandRecord{Day: d, Class: c.Name, Target: dec.target, Shortfall: dec.shortfall})
			logrus.Debugf("[day %05d] %s short by %d of target %d", d, c.Name, dec.shortfall, dec.target)
		}
	}
	return s.lanes.each(len(actions), func(i int) error {
		s.applyQuotaAction(actions[i], d)
		return nil
	})
}

// selectQuota picks the units to demote or promote for one class.
func (s *Simulator) selectQuota(c *Class, d int, pools *poolIndex) quotaDecision {
	target := s.plan.Target(c.Name, d)
	balance := s.fleet.Count(c, StateOperations) - target
	dec := quotaDecision{target: target}

	if balance > 0 {
		ops := pools.get(c, StateOperations)
		byDemotion(ops)
		for _, u := range ops[:min(balance, len(ops))] {
			dec.actions = append(dec.actions, quotaAction{unit: u, from: StateOperations, demote: true})
		}
		return dec
	}

	need := -balance
	take := func(us []*Unit, from State, tier string) {
		for _, u := range us {
			if need == 0 {
				return
			}
			dec.actions = append(dec.actions, quotaAction{unit: u, from: from, tier: tier})
			need--
		}
	}

	svc := pools.get(c, StateServiceable)
	byQueue(svc)
	take(svc, StateServiceable, TierAirworthy)
	reserve := pools.get(c, StateReserve)
	byQueue(reserve)
	take(reserve, StateReserve, TierAirworthy)

	if need > 0 {
		parked := eligible(pools.get(c, StateUnserviceable), d)
		byQueue(parked)
		take(parked[:min(len(parked), s.backdateBudget(c, d))], StateUnserviceable, TierUnserviceable)
	}
	if need > 0 {
		dormant := eligible(pools.get(c, StateInactive), d)
		byAge(dormant)
		take(dormant, StateInactive, TierInactive)
	}
	dec.shortfall = need
	return dec
}

// eligible keeps the units that have sat in their pool for at least the
// class repair duration.
func eligible(us []*Unit, d int) []*Unit {
	out := us[:0]
	for _, u := range us {
		if d-u.RegistrationDay >= u.Class.RepairDuration {
			out = append(out, u)
		}
	}
	return out
}

func (s *Simulator) applyQuotaAction(a quotaAction, d int) {
	u := a.unit
	if a.demote {
		sinceOverhaul := u.UsageSinceOverhaul
		if !s.fleet.transition(u, StateOperations, StateServiceable, d) {
			s.log.skip(trace.SkipRecord{Day: d, UnitID: u.ID, From: StateOperations.String(), To: StateServiceable.String(), Reason: "stale demotion"})
			return
		}
		u.Limiter = 0
		u.mark(FlagDemoted)
		s.log.demote(trace.DemotionRecord{Day: d, UnitID: u.ID, Class: u.Class.Name, UsageSinceOverhaul: sinceOverhaul})
		return
	}

	if !s.fleet.transition(u, a.from, StateOperations, d) {
		s.log.skip(trace.SkipRecord{Day: d, UnitID: u.ID, From: a.from.String(), To: StateOperations.String(), Reason: "stale promotion"})
		return
	}
	if a.tier == TierUnserviceable {
		s.backdateRepair(u, d)
	}
	s.computeLimiter(u, d)
	u.mark(FlagPromoted)
	s.log.promote(trace.PromotionRecord{Day: d, UnitID: u.ID, Class: u.Class.Name, Tier: a.tier, From: a.from.String()})
}
