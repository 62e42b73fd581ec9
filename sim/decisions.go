package sim

import (
	"sort"
	"sync"

	"github.com/fleet-sim/fleet-sim/sim/trace"
)

// decisionLog buffers the decisions of one tick. Lanes append under the
// mutex; drain sorts each list so the committed order never depends on
// goroutine scheduling.
type decisionLog struct {
	mu         sync.Mutex
	promotions []trace.PromotionRecord
	demotions  []trace.DemotionRecord
	repairs    []trace.RepairRecord
	claims     []trace.ClaimRecord
	skips      []trace.SkipRecord
	unmet      []trace.UnmetDemandRecord
	spawns     []trace.SpawnRecord
}

func (l *decisionLog) promote(r trace.PromotionRecord) {
	l.mu.Lock()
	l.promotions = append(l.promotions, r)
	l.mu.Unlock()
}

func (l *decisionLog) demote(r trace.DemotionRecord) {
	l.mu.Lock()
	l.demotions = append(l.demotions, r)
	l.mu.Unlock()
}

func (l *decisionLog) repair(r trace.RepairRecord) {
	l.mu.Lock()
	l.repairs = append(l.repairs, r)
	l.mu.Unlock()
}

func (l *decisionLog) claim(r trace.ClaimRecord) {
	l.mu.Lock()
	l.claims = append(l.claims, r)
	l.mu.Unlock()
}

func (l *decisionLog) skip(r trace.SkipRecord) {
	l.mu.Lock()
	l.skips = append(l.skips, r)
	l.mu.Unlock()
}

func (l *decisionLog) shortfall(r trace.UnmetDemandRecord) {
	l.mu.Lock()
	l.unmet = append(l.unmet, r)
	l.mu.Unlock()
}

func (l *decisionLog) spawn(r trace.SpawnRecord) {
	l.mu.Lock()
	l.spawns = append(l.spawns, r)
	l.mu.Unlock()
}

// tickDecisions is one drained, ordered tick of the decision log.
type tickDecisions struct {
	promotions []trace.PromotionRecord
	demotions  []trace.DemotionRecord
	repairs    []trace.RepairRecord
	claims     []trace.ClaimRecord
	skips      []trace.SkipRecord
	unmet      []trace.UnmetDemandRecord
	spawns     []trace.SpawnRecord
}

func (l *decisionLog) drain() tickDecisions {
	l.mu.Lock()
	t := tickDecisions{
		promotions: l.promotions,
		demotions:  l.demotions,
		repairs:    l.repairs,
		claims:     l.claims,
		skips:      l.skips,
		unmet:      l.unmet,
		spawns:     l.spawns,
	}
	l.promotions, l.demotions, l.repairs, l.claims = nil, nil, nil, nil
	l.skips, l.unmet, l.spawns = nil, nil, nil
	l.mu.Unlock()

	sort.Slice(t.promotions, func(i, j int) bool {
		a, b := t.promotions[i], t.promotions[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		return a.UnitID < b.UnitID
	})
	sort.Slice(t.demotions, func(i, j int) bool { return t.demotions[i].UnitID < t.demotions[j].UnitID })
	sort.Slice(t.repairs, func(i, j int) bool {
		a, b := t.repairs[i], t.repairs[j]
		if a.UnitID != b.UnitID {
			return a.UnitID < b.UnitID
		}
		return a.Backdated && !b.Backdated
	})
	sort.Slice(t.claims, func(i, j int) bool {
		a, b := t.claims[i], t.claims[j]
		if a.Pass != b.Pass {
			return a.Pass < b.Pass
		}
		return a.AggregateID < b.AggregateID
	})
	sort.Slice(t.skips, func(i, j int) bool { return t.skips[i].UnitID < t.skips[j].UnitID })
	sort.Slice(t.unmet, func(i, j int) bool { return t.unmet[i].Class < t.unmet[j].Class })
	sort.Slice(t.spawns, func(i, j int) bool { return t.spawns[i].Class < t.spawns[j].Class })
	return t
}

// record appends a drained tick to the trace.
func (t tickDecisions) record(st *trace.SimulationTrace) {
	for _, r := range t.promotions {
		st.RecordPromotion(r)
	}
	for _, r := range t.demotions {
		st.RecordDemotion(r)
	}
	for _, r := range t.repairs {
		st.RecordRepair(r)
	}
	if st.Config.Claims() {
		for _, r := range t.claims {
			st.RecordClaim(r)
		}
	}
	for _, r := range t.skips {
		st.RecordSkip(r)
	}
	for _, r := range t.unmet {
		st.RecordUnmet(r)
	}
	for _, r := range t.spawns {
		st.RecordSpawn(r)
	}
}
