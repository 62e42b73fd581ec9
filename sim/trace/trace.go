package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures quota, repair and spawn decisions.
	TraceLevelDecisions TraceLevel = "decisions"
	// TraceLevelClaims additionally captures every assembly claim.
	TraceLevelClaims TraceLevel = "claims"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	TraceLevelClaims:    true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// Enabled reports whether any records are collected.
func (c TraceConfig) Enabled() bool {
	return c.Level != TraceLevelNone && c.Level != ""
}

// Claims reports whether assembly claims are collected.
func (c TraceConfig) Claims() bool {
	return c.Level == TraceLevelClaims
}

// SimulationTrace collects decision records during a run, in commit order.
type SimulationTrace struct {
	Config     TraceConfig
	Promotions []PromotionRecord
	Demotions  []DemotionRecord
	Repairs    []RepairRecord
	Claims     []ClaimRecord
	Skips      []SkipRecord
	Unmet      []UnmetDemandRecord
	Spawns     []SpawnRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{Config: config}
}

// RecordPromotion appends a promotion record.
func (st *SimulationTrace) RecordPromotion(record PromotionRecord) {
	st.Promotions = append(st.Promotions, record)
}

// RecordDemotion appends a demotion record.
func (st *SimulationTrace) RecordDemotion(record DemotionRecord) {
	st.Demotions = append(st.Demotions, record)
}

// RecordRepair appends a repair record.
func (st *SimulationTrace) RecordRepair(record RepairRecord) {
	st.Repairs = append(st.Repairs, record)
}

// RecordClaim appends an assembly claim record.
func (st *SimulationTrace) RecordClaim(record ClaimRecord) {
	st.Claims = append(st.Claims, record)
}

// RecordSkip appends a dropped-transition record.
func (st *SimulationTrace) RecordSkip(record SkipRecord) {
	st.Skips = append(st.Skips, record)
}

// RecordUnmet appends an unmet-demand record.
func (st *SimulationTrace) RecordUnmet(record UnmetDemandRecord) {
	st.Unmet = append(st.Unmet, record)
}

// RecordSpawn appends a spawn record.
func (st *SimulationTrace) RecordSpawn(record SpawnRecord) {
	st.Spawns = append(st.Spawns, record)
}
