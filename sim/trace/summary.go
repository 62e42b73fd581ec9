package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	Promotions       int
	PromotionsByTier map[string]int // "P1"/"P2"/"P3" -> count
	Demotions        int
	RepairsAdmitted  int
	RepairsDenied    int
	RepairsBackdated int
	ClaimsCommitted  int
	ClaimsReverted   int
	Skips            int
	UnmetDays        int
	UnmetTotal       int
	Spawned          int
	SpawnedByClass   map[string]int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		PromotionsByTier: make(map[string]int),
		SpawnedByClass:   make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.Promotions = len(st.Promotions)
	for _, p := range st.Promotions {
		summary.PromotionsByTier[p.Tier]++
	}
	summary.Demotions = len(st.Demotions)

	for _, r := range st.Repairs {
		switch {
		case r.Backdated:
			summary.RepairsBackdated++
		case r.Admitted:
			summary.RepairsAdmitted++
		default:
			summary.RepairsDenied++
		}
	}

	for _, c := range st.Claims {
		if c.Committed {
			summary.ClaimsCommitted++
		} else {
			summary.ClaimsReverted++
		}
	}

	summary.Skips = len(st.Skips)

	days := make(map[int]bool)
	for _, u := range st.Unmet {
		days[u.Day] = true
		summary.UnmetTotal += u.Shortfall
	}
	summary.UnmetDays = len(days)

	for _, s := range st.Spawns {
		summary.Spawned += len(s.UnitIDs)
		summary.SpawnedByClass[s.Class] += len(s.UnitIDs)
	}

	return summary
}
