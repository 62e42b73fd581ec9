package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// engineFleet is two airframes in operations with two engine slots each.
func engineFleet(horizon int) *testFleet {
	return newTestFleet(horizon,
		airframe("A", 1_000_000, 1_000_000, 30),
		aggregate("E", 1_000_000, 1_000_000, 20, Mount{Airframe: "A", Slots: 2}),
	).add(
		UnitSpec{ID: "A-1", Class: "A", State: StateOperations},
		UnitSpec{ID: "A-2", Class: "A", State: StateOperations},
	)
}

func TestAssembly_ThreeEnginesOnTwoAirframes_FillsFewestFirst(t *testing.T) {
	// GIVEN 2 airframes with 2 open slots each and 3 free engines
	tf := engineFleet(5).addN("E", "E", StateServiceable, 3)
	tf = tf.profile(t, "A", 10)

	// WHEN day 1 is simulated
	s, sink := tf.run(t)

	// THEN one airframe carries 2 engines and the other 1
	a1 := s.Fleet().Unit("A-1")
	a2 := s.Fleet().Unit("A-2")
	e := s.ClassByName("E")
	assert.Equal(t, 2, a1.Filled(e))
	assert.Equal(t, 1, a2.Filled(e))

	// THEN engines are handed out in FIFO order, round-robin over the emptiest airframes
	assert.Equal(t, "A-1", rowAt(t, sink, "E-00", 1).OwnerID)
	assert.Equal(t, "A-2", rowAt(t, sink, "E-01", 1).OwnerID)
	assert.Equal(t, "A-1", rowAt(t, sink, "E-02", 1).OwnerID)
	for _, id := range []string{"E-00", "E-01", "E-02"} {
		r := rowAt(t, sink, id, 1)
		assert.Equal(t, StateOperations, r.State, id)
		assert.True(t, r.Flags.Has(FlagAssembled), id)
	}
	assert.Equal(t, 3, s.Metrics.Assembled)
	assert.Zero(t, s.Metrics.UnresolvedClaims)
}

func TestAssembly_NoSlotIsOverfilled(t *testing.T) {
	// GIVEN far more free engines than open slots
	tf := engineFleet(3).profile(t, "A", 10).addN("E", "E", StateReserve, 9)

	// WHEN the run completes
	s, sink := tf.run(t)

	// THEN exactly 4 engines are mounted and no airframe holds more than 2
	e := s.ClassByName("E")
	for _, id := range []string{"A-1", "A-2"} {
		assert.Equal(t, 2, s.Fleet().Unit(id).Filled(e), id)
	}
	owners := map[string]int{}
	for _, r := range sink.Rows() {
		if r.Day == 3 && r.OwnerID != "" {
			owners[r.OwnerID]++
		}
	}
	assert.Equal(t, map[string]int{"A-1": 2, "A-2": 2}, owners)
	assert.Equal(t, 5, s.Fleet().Count(e, StateReserve))
}

func TestAssembly_PrefersAirframeWithFewerFilledSlots(t *testing.T) {
	// GIVEN A-1 already carrying one engine and a single free engine
	tf := engineFleet(3).profile(t, "A", 10).add(
		UnitSpec{ID: "E-on", Class: "E", State: StateOperations, Owner: "A-1"},
		UnitSpec{ID: "E-free", Class: "E", State: StateServiceable},
	)

	// WHEN day 1 is simulated
	_, sink := tf.run(t)

	// THEN the free engine goes to the emptier airframe
	assert.Equal(t, "A-2", rowAt(t, sink, "E-free", 1).OwnerID)
	assert.Equal(t, "A-1", rowAt(t, sink, "E-on", 1).OwnerID)
}

func TestAssembly_MountedEngineAccruesOwnerUsage(t *testing.T) {
	// GIVEN an engine mounted on an airframe flying 10 per day
	tf := engineFleet(5).profile(t, "A", 10).add(
		UnitSpec{ID: "E-on", Class: "E", State: StateOperations, Owner: "A-1", UsageTotal: 50, UsageSinceOverhaul: 50},
	)

	// WHEN the run completes
	_, sink := tf.run(t)

	// THEN the engine's counters follow the airframe's day by day
	for d := 1; d <= 5; d++ {
		r := rowAt(t, sink, "E-on", d)
		assert.Equal(t, int64(50+10*d), r.UsageTotal, "day %d", d)
	}
}

func TestAssembly_DemotedAirframeReleasesItsEngines(t *testing.T) {
	// GIVEN two single-slot airframes with an engine each and a target dropping to 1 on day 5
	tf := newTestFleet(10,
		airframe("A", 1_000_000, 1_000_000, 30),
		aggregate("E", 1_000_000, 1_000_000, 20, Mount{Airframe: "A", Slots: 1}),
	).profile(t, "A", 1).
		target(t, "A", stepTarget(10, 2, 1, 5)).
		add(
			UnitSpec{ID: "A-1", Class: "A", State: StateOperations, UsageTotal: 500, UsageSinceOverhaul: 500},
			UnitSpec{ID: "A-2", Class: "A", State: StateOperations},
			UnitSpec{ID: "E-1", Class: "E", State: StateOperations, Owner: "A-1"},
			UnitSpec{ID: "E-2", Class: "E", State: StateOperations, Owner: "A-2"},
		)

	// WHEN the run completes
	s, sink := tf.run(t)

	// THEN A-1 is demoted on day 5 and its engine is detached the same day
	assert.Equal(t, StateServiceable, rowAt(t, sink, "A-1", 5).State)
	e1 := rowAt(t, sink, "E-1", 5)
	assert.Equal(t, StateServiceable, e1.State)
	assert.True(t, e1.Flags.Has(FlagDetached))
	assert.Empty(t, e1.OwnerID)
	assert.Zero(t, s.Fleet().Unit("A-1").Filled(s.ClassByName("E")))

	// THEN the engine stays free because the only airframe left is full
	assert.Equal(t, StateServiceable, rowAt(t, sink, "E-1", 10).State)
	assert.Equal(t, "A-2", rowAt(t, sink, "E-2", 10).OwnerID)
}

func TestAssembly_EngineInRepairDetaches(t *testing.T) {
	// GIVEN a mounted engine that reaches its overhaul limit on day 3
	tf := newTestFleet(10,
		airframe("A", 1_000_000, 1_000_000, 30),
		aggregate("E", 1_000_000, 30, 4, Mount{Airframe: "A", Slots: 1}),
	).profile(t, "A", 10).add(
		UnitSpec{ID: "A-1", Class: "A", State: StateOperations},
		UnitSpec{ID: "E-1", Class: "E", State: StateOperations, Owner: "A-1"},
		UnitSpec{ID: "E-2", Class: "E", State: StateServiceable},
	)

	// WHEN the run completes
	_, sink := tf.run(t)

	// THEN E-1 leaves for repair with its slot freed and E-2 takes the slot the same day
	e1 := rowAt(t, sink, "E-1", 3)
	assert.Equal(t, StateRepair, e1.State)
	assert.True(t, e1.Flags.Has(FlagDetached))
	assert.Empty(t, e1.OwnerID)
	e2 := rowAt(t, sink, "E-2", 3)
	assert.Equal(t, StateOperations, e2.State)
	assert.Equal(t, "A-1", e2.OwnerID)

	// THEN E-2 reaches its own limit on day 6 and vacates the slot
	e2 = rowAt(t, sink, "E-2", 6)
	assert.NotEqual(t, StateOperations, e2.State)
	assert.Empty(t, e2.OwnerID)

	// THEN E-1 leaves repair on day 7 and goes straight back onto A-1
	e1 = rowAt(t, sink, "E-1", 7)
	assert.True(t, e1.Flags.Has(FlagExitedRepair))
	assert.True(t, e1.Flags.Has(FlagAssembled))
	assert.Equal(t, StateOperations, e1.State)
	assert.Equal(t, "A-1", e1.OwnerID)
}

func TestAssembly_ExtraPassIsANoOp(t *testing.T) {
	// GIVEN a completed run with mounts
	tf := engineFleet(3).profile(t, "A", 10).addN("E", "E", StateServiceable, 5)
	s, _ := tf.run(t)

	// WHEN another matcher pass runs on the final state
	committed, err := s.assemblyPass(s.Day, 99)

	// THEN nothing changes
	require.NoError(t, err)
	assert.Zero(t, committed)
}

func TestAssembly_PassBudget(t *testing.T) {
	tests := []struct {
		name           string
		passes         int
		wantDay1Free   int
		wantUnresolved int
	}{
		{name: "single pass leaves a claim for the next day", passes: 1, wantDay1Free: 1, wantUnresolved: 1},
		{name: "default budget converges on day 1", passes: 0, wantDay1Free: 0, wantUnresolved: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN A-1 at 1/3 engines, A-2 at 2/3 and 3 free engines
			tf := newTestFleet(3,
				airframe("A", 1_000_000, 1_000_000, 30),
				aggregate("E", 1_000_000, 1_000_000, 20, Mount{Airframe: "A", Slots: 3}),
			).profile(t, "A", 1).add(
				UnitSpec{ID: "A-1", Class: "A", State: StateOperations},
				UnitSpec{ID: "A-2", Class: "A", State: StateOperations},
				UnitSpec{ID: "E-a", Class: "E", State: StateOperations, Owner: "A-1"},
				UnitSpec{ID: "E-b", Class: "E", State: StateOperations, Owner: "A-2"},
				UnitSpec{ID: "E-c", Class: "E", State: StateOperations, Owner: "A-2"},
			).addN("E", "E", StateServiceable, 3)
			tf.cfg.AssemblyPasses = tt.passes

			// WHEN the run completes
			s, sink := tf.run(t)

			// THEN all three pile onto A-1 in pass 1, where only two fit
			free := 0
			for _, id := range []string{"E-00", "E-01", "E-02"} {
				if rowAt(t, sink, id, 1).OwnerID == "" {
					free++
				}
			}
			assert.Equal(t, tt.wantDay1Free, free)
			assert.Equal(t, tt.wantUnresolved, s.Metrics.UnresolvedClaims)

			// THEN both airframes are full by the end
			e := s.ClassByName("E")
			assert.Equal(t, 3, s.Fleet().Unit("A-1").Filled(e))
			assert.Equal(t, 3, s.Fleet().Unit("A-2").Filled(e))
		})
	}
}
