package sim

import (
	"github.com/shopspring/decimal"

	"github.com/fleet-sim/fleet-sim/sim/trace"
)

// DefaultAssemblyPasses bounds the assembly matcher's claim/verify loop per tick.
const DefaultAssemblyPasses = 8

// EngineConfig groups tick loop parameters.
type EngineConfig struct {
	Workers        int  // parallel lanes per phase (0 = GOMAXPROCS)
	Adaptive       bool // multi-day steps between state-changing events
	AssemblyPasses int  // max matcher passes per tick (0 = DefaultAssemblyPasses)
}

// NewEngineConfig creates an EngineConfig. All fields are explicit.
func NewEngineConfig(workers int, adaptive bool, assemblyPasses int) EngineConfig {
	return EngineConfig{
		Workers:        workers,
		Adaptive:       adaptive,
		AssemblyPasses: assemblyPasses,
	}
}

func (c EngineConfig) passes() int {
	if c.AssemblyPasses <= 0 {
		return DefaultAssemblyPasses
	}
	return c.AssemblyPasses
}

// SpawnConfig groups dynamic spawner parameters.
// Zero Days and zero CadenceDays disable spawning.
type SpawnConfig struct {
	Days          []int           // explicit seed days
	CadenceDays   int             // seed every N days starting at N (0 = off)
	WindowDays    int             // rolling unmet-demand window (default 30)
	LookaheadDays int             // structural target horizon (default 365)
	SafetyMargin  decimal.Decimal // reserve sizing margin (default 1.2)
	MinReserve    int             // ceiling floor per class (default 10)
	Policy        ReservePolicy   // nil = DefaultReservePolicy built from the fields above
}

// NewSpawnConfig creates a SpawnConfig with the default window, lookahead,
// margin and floor.
func NewSpawnConfig(days []int, cadenceDays int) SpawnConfig {
	return SpawnConfig{
		Days:          days,
		CadenceDays:   cadenceDays,
		WindowDays:    30,
		LookaheadDays: 365,
		SafetyMargin:  decimal.RequireFromString("1.2"),
		MinReserve:    10,
	}
}

// Scheduled reports whether any seed day is configured.
func (c SpawnConfig) Scheduled() bool {
	return len(c.Days) > 0 || c.CadenceDays > 0
}

func (c SpawnConfig) policy() ReservePolicy {
	if c.Policy != nil {
		return c.Policy
	}
	margin := c.SafetyMargin
	if margin.IsZero() {
		margin = decimal.RequireFromString("1.2")
	}
	return DefaultReservePolicy{SafetyMargin: margin, MinReserve: c.MinReserve}
}

// SimConfig holds the configuration for creating a Simulator.
type SimConfig struct {
	EngineConfig
	SpawnConfig
	trace.TraceConfig
}
