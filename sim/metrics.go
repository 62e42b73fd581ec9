// Tracks run-wide counts of the transitions and decisions taken, for the
// end-of-run summary.

package sim

import (
	"fmt"
	"io"
	"os"
	"sort"
)

// Metrics aggregates statistics about a run for final reporting.
type Metrics struct {
	Ticks      int // ticks simulated (excluding the day 0 snapshot)
	Days       int // last simulated day
	StartUnits int
	EndUnits   int

	Promotions       map[string]int // tier -> units promoted
	Demotions        int
	RepairsEntered   int
	RepairsExited    int
	RepairsParked    int // repair requests that found no free slot
	RepairsBackdated int
	Retired          int
	Assembled        int
	Detached         int
	Skipped          int // transitions dropped on a stale precondition
	UnresolvedClaims int // summed over ticks

	Spawned       map[string]int // class -> units created
	UnmetUnitDays map[string]int // class -> shortfall summed over days

	FinalCounts map[string]map[State]int // class -> state -> units at end of run
}

// NewMetrics returns an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Promotions:    make(map[string]int),
		Spawned:       make(map[string]int),
		UnmetUnitDays: make(map[string]int),
		FinalCounts:   make(map[string]map[State]int),
	}
}

// observeRows folds the flags of one committed tick into the counters.
func (m *Metrics) observeRows(rows []DayRecord) {
	for _, r := range rows {
		f := r.Flags
		if f == 0 {
			continue
		}
		if f.Has(FlagEnteredRepair) {
			m.RepairsEntered++
		}
		if f.Has(FlagExitedRepair) {
			m.RepairsExited++
		}
		if f.Has(FlagParked) {
			m.RepairsParked++
		}
		if f.Has(FlagDemoted) {
			m.Demotions++
		}
		if f.Has(FlagRetired) {
			m.Retired++
		}
		if f.Has(FlagAssembled) {
			m.Assembled++
		}
		if f.Has(FlagDetached) {
			m.Detached++
		}
	}
}

func (m *Metrics) observeDecisions(t tickDecisions) {
	for _, p := range t.promotions {
		m.Promotions[p.Tier]++
	}
	for _, r := range t.repairs {
		if r.Backdated {
			m.RepairsBackdated++
		}
	}
	m.Skipped += len(t.skips)
	for _, sp := range t.spawns {
		m.Spawned[sp.Class] += len(sp.UnitIDs)
	}
}

// Print displays aggregated metrics at the end of the run.
func (m *Metrics) Print() { m.Fprint(os.Stdout) }

// Fprint writes the run summary to w.
func (m *Metrics) Fprint(w io.Writer) {
	fmt.Fprintln(w, "=== Fleet Simulation Metrics ===")
	fmt.Fprintf(w, "Days simulated       : %d (%d ticks)\n", m.Days, m.Ticks)
	fmt.Fprintf(w, "Units                : %d at start, %d at end\n", m.StartUnits, m.EndUnits)
	fmt.Fprintf(w, "Promotions           : P1=%d P2=%d P3=%d\n",
		m.Promotions[TierAirworthy], m.Promotions[TierUnserviceable], m.Promotions[TierInactive])
	fmt.Fprintf(w, "Demotions            : %d\n", m.Demotions)
	fmt.Fprintf(w, "Repairs              : %d entered, %d exited, %d parked, %d backdated\n",
		m.RepairsEntered, m.RepairsExited, m.RepairsParked, m.RepairsBackdated)
	fmt.Fprintf(w, "Retired              : %d\n", m.Retired)
	fmt.Fprintf(w, "Assembly             : %d mounted, %d detached, %d unresolved\n",
		m.Assembled, m.Detached, m.UnresolvedClaims)
	fmt.Fprintf(w, "Skipped transitions  : %d\n", m.Skipped)

	for _, class := range sortedKeys(m.UnmetUnitDays) {
		if n := m.UnmetUnitDays[class]; n > 0 {
			fmt.Fprintf(w, "Unmet demand         : %s %d unit-days\n", class, n)
		}
	}
	for _, class := range sortedKeys(m.Spawned) {
		fmt.Fprintf(w, "Spawned              : %s %d\n", class, m.Spawned[class])
	}
	for _, class := range sortedKeys(m.FinalCounts) {
		counts := m.FinalCounts[class]
		fmt.Fprintf(w, "Final %-14s : ops=%d svc=%d rep=%d rsv=%d sto=%d uns=%d ina=%d\n", class,
			counts[StateOperations], counts[StateServiceable], counts[StateRepair], counts[StateReserve],
			counts[StateStorage], counts[StateUnserviceable], counts[StateInactive])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
