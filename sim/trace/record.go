// Package trace provides decision-trace recording for fleet lifecycle runs.
// This package has no dependencies on sim/ — it stores pure data types.
package trace

// PromotionRecord captures one unit admitted into operations by the quota controller.
type PromotionRecord struct {
	Day    int
	UnitID string
	Class  string
	Tier   string // "P1", "P2" or "P3"
	From   string // state the unit was promoted from
}

// DemotionRecord captures one unit removed from operations on a surplus.
type DemotionRecord struct {
	Day                int
	UnitID             string
	Class              string
	UsageSinceOverhaul int64
}

// RepairRecord captures a repair request and how the capacity scheduler answered it.
type RepairRecord struct {
	Day       int
	UnitID    string
	Class     string
	Admitted  bool
	Backdated bool // synthetic interval written for a P2 promotion
	Start     int
	End       int // exit day, exclusive
}

// ClaimRecord captures one aggregate's claim on an airframe slot in an assembly pass.
type ClaimRecord struct {
	Day         int
	Pass        int
	AggregateID string
	AirframeID  string
	Committed   bool // false = over-claim, reverted and retried next pass
}

// SkipRecord captures a transition dropped because its precondition went stale.
type SkipRecord struct {
	Day    int
	UnitID string
	From   string
	To     string
	Reason string
}

// UnmetDemandRecord captures the quota shortfall left after all promotion tiers.
type UnmetDemandRecord struct {
	Day       int
	Class     string
	Target    int
	Shortfall int
}

// SpawnRecord captures units created by the dynamic spawner on a seed day.
type SpawnRecord struct {
	Day     int
	Class   string
	UnitIDs []string
	Ceiling int
}
