package sim

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultReservePolicy_Ceiling(t *testing.T) {
	policy := DefaultReservePolicy{SafetyMargin: decimal.RequireFromString("1.2"), MinReserve: 10}
	tests := []struct {
		name     string
		class    *Class
		existing int
		usage    int64
		daily    string
		want     int
	}{
		{
			name:     "usage-driven without overhauls",
			class:    airframe("A", 10_000, 10_000, 30),
			existing: 5,
			usage:    1_000_000,
			daily:    "0",
			want:     115,
		},
		{
			name:     "repair buffer for classes overhauled before their life limit",
			class:    airframe("A", 10_000, 9_000, 30),
			existing: 5,
			usage:    1_000_000,
			daily:    "10",
			want:     116, // 115 + ceil(5 * 30 / 900)
		},
		{
			name:     "floor when the fleet is already large enough",
			class:    airframe("A", 10_000, 10_000, 30),
			existing: 500,
			usage:    1_000_000,
			daily:    "0",
			want:     10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Ceiling(ReserveInput{
				Class:          tt.class,
				Existing:       tt.existing,
				FleetUsage:     decimal.NewFromInt(tt.usage),
				UnitDailyUsage: decimal.RequireFromString(tt.daily),
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpawner_SeedDays(t *testing.T) {
	sp := newSpawner(SpawnConfig{Days: []int{7, 0, 30, 7, 200}, CadenceDays: 30}, 100, 1)

	assert.Equal(t, []int{7, 30, 60, 90}, sp.seedDays)
	assert.True(t, sp.isSeedDay(60))
	assert.False(t, sp.isSeedDay(61))
	assert.Equal(t, -1, sp.ceiling[0], "classes start unspawnable until a ceiling is planned")
}

func TestSpawner_DeficitHoldsUntilNextObservation(t *testing.T) {
	c := airframe("A", 1, 1, 1)
	tests := []struct {
		name string
		obs  [][2]int // day, shortfall
		at   int
		want int
	}{
		{name: "daily observations", obs: [][2]int{{8, 2}, {9, 2}, {10, 2}}, at: 10, want: 6},
		{name: "one span across skipped days", obs: [][2]int{{8, 2}, {10, 2}}, at: 10, want: 6},
		{name: "resolved shortfall", obs: [][2]int{{8, 2}, {9, 0}, {10, 0}}, at: 10, want: 2},
		{name: "window cuts older days", obs: [][2]int{{1, 1}}, at: 10, want: 5},
		{name: "no observations", at: 10, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := newSpawner(SpawnConfig{WindowDays: 5}, 100, 1)
			sp.ceiling[0] = 10
			for _, o := range tt.obs {
				sp.observe(c, o[0], o[1])
			}
			assert.Equal(t, tt.want, sp.deficit(c, tt.at))
		})
	}
}

func TestSpawn_RespectsCeiling(t *testing.T) {
	// GIVEN a class 20 short with a ceiling of 4
	tf := newTestFleet(20, airframe("A", 1_000_000, 1_000_000, 30)).profile(t, "A", 1).
		target(t, "A", flatTarget(20, 20))
	tf.cfg.SpawnConfig = NewSpawnConfig([]int{5, 10}, 0)
	tf.cfg.SpawnConfig.MinReserve = 4

	// WHEN the run completes
	s, _ := tf.run(t)

	// THEN only 4 units are ever created
	assert.Equal(t, map[string]int{"A": 4}, s.Ceilings())
	assert.Equal(t, 4, s.Metrics.Spawned["A"])
	assert.Equal(t, 4, s.Fleet().Count(s.ClassByName("A"), StateOperations))
}

func TestSpawn_SkipsIDsAlreadyInUse(t *testing.T) {
	// GIVEN a snapshot that already uses the first spawn id
	tf := newTestFleet(10, airframe("A", 1_000_000, 1_000_000, 30)).profile(t, "A", 1).
		target(t, "A", flatTarget(10, 3)).
		add(UnitSpec{ID: "A-S1", Class: "A", State: StateOperations})
	tf.cfg.SpawnConfig = NewSpawnConfig([]int{2}, 0)

	// WHEN the run completes
	s, _ := tf.run(t)

	// THEN new ids continue past it
	assert.NotNil(t, s.Fleet().Unit("A-S2"))
	assert.NotNil(t, s.Fleet().Unit("A-S3"))
	assert.True(t, s.Fleet().Unit("A-S2").Spawned)
	assert.False(t, s.Fleet().Unit("A-S1").Spawned)
}

func TestSpawn_AggregatesFollowMountDemand(t *testing.T) {
	// GIVEN an airframe class with 2 engine slots each and no free engines
	tf := newTestFleet(10,
		airframe("A", 1_000_000, 1_000_000, 30),
		aggregate("E", 1_000_000, 1_000_000, 20, Mount{Airframe: "A", Slots: 2}),
	).profile(t, "A", 1).
		target(t, "A", flatTarget(10, 2)).
		addN("A", "A", StateOperations, 2)
	tf.cfg.SpawnConfig = NewSpawnConfig([]int{3}, 0)

	// WHEN the run completes
	s, sink := tf.run(t)

	// THEN 4 engines are spawned on day 3 and mounted on day 4
	require.Equal(t, 4, s.Metrics.Spawned["E"])
	r := rowAt(t, sink, "E-S1", 3)
	assert.Equal(t, StateServiceable, r.State)
	assert.True(t, r.Flags.Has(FlagSpawned))
	assert.Equal(t, 4, s.Fleet().Count(s.ClassByName("E"), StateOperations))
	assert.True(t, rowAt(t, sink, "E-S1", 4).Flags.Has(FlagAssembled))
}
