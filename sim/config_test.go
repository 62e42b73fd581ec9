package sim

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewEngineConfig_FieldEquivalence(t *testing.T) {
	got := NewEngineConfig(4, true, 3)
	want := EngineConfig{
		Workers:        4,
		Adaptive:       true,
		AssemblyPasses: 3,
	}
	assert.Equal(t, want, got)
}

func TestEngineConfig_Passes_DefaultsWhenUnset(t *testing.T) {
	assert.Equal(t, DefaultAssemblyPasses, EngineConfig{}.passes())
	assert.Equal(t, 2, NewEngineConfig(0, false, 2).passes())
}

func TestNewSpawnConfig_Defaults(t *testing.T) {
	got := NewSpawnConfig([]int{10}, 30)

	assert.True(t, got.Scheduled())
	assert.Equal(t, 30, got.WindowDays)
	assert.Equal(t, 365, got.LookaheadDays)
	assert.True(t, got.SafetyMargin.Equal(decimal.RequireFromString("1.2")))
	assert.Equal(t, 10, got.MinReserve)
	assert.False(t, SpawnConfig{}.Scheduled())
}

func TestSpawnConfig_Policy(t *testing.T) {
	// GIVEN a zero margin and an explicit floor
	p := SpawnConfig{MinReserve: 3}.policy()

	// THEN the default margin fills in and the floor carries over
	def, ok := p.(DefaultReservePolicy)
	if assert.True(t, ok) {
		assert.True(t, def.SafetyMargin.Equal(decimal.RequireFromString("1.2")))
		assert.Equal(t, 3, def.MinReserve)
	}

	// GIVEN a custom policy
	custom := fixedPolicy(7)
	assert.Equal(t, custom, SpawnConfig{Policy: custom}.policy())
}

type fixedPolicy int

func (f fixedPolicy) Ceiling(ReserveInput) int { return int(f) }
