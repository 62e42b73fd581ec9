package sim

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// flatUsage returns a daily usage series of the given length.
func flatUsage(days int, v int64) []int64 {
	out := make([]int64, days)
	for i := range out {
		out[i] = v
	}
	return out
}

// flatTarget returns a daily target series of the given length.
func flatTarget(days, v int) []int {
	out := make([]int, days)
	for i := range out {
		out[i] = v
	}
	return out
}

// stepTarget returns a target of before on days 1..changeDay-1 and after from changeDay.
func stepTarget(days, before, after, changeDay int) []int {
	out := flatTarget(days, before)
	for d := changeDay; d <= days; d++ {
		out[d-1] = after
	}
	return out
}

func airframe(name string, lifeLimit, overhaulLimit int64, repairDuration int) *Class {
	return &Class{
		Name:           name,
		Kind:           KindAirframe,
		LifeLimit:      lifeLimit,
		OverhaulLimit:  overhaulLimit,
		RepairDuration: repairDuration,
	}
}

func aggregate(name string, lifeLimit, overhaulLimit int64, repairDuration int, mounts ...Mount) *Class {
	return &Class{
		Name:           name,
		Kind:           KindAggregate,
		LifeLimit:      lifeLimit,
		OverhaulLimit:  overhaulLimit,
		RepairDuration: repairDuration,
		Mounts:         mounts,
	}
}

// testFleet collects what NewSimulator needs for one scenario.
type testFleet struct {
	classes []*Class
	plan    *Plan
	units   []UnitSpec
	cfg     SimConfig
}

func newTestFleet(horizon int, classes ...*Class) *testFleet {
	return &testFleet{
		classes: classes,
		plan:    NewPlan(horizon),
		cfg:     SimConfig{EngineConfig: NewEngineConfig(1, false, 0)},
	}
}

// profile registers a flat usage profile as the default of class.
func (tf *testFleet) profile(t *testing.T, class string, daily int64) *testFleet {
	t.Helper()
	name := class + "-default"
	require.NoError(t, tf.plan.AddProfile(name, flatUsage(tf.plan.Horizon, daily)))
	require.NoError(t, tf.plan.SetClassProfile(class, name))
	return tf
}

func (tf *testFleet) target(t *testing.T, class string, daily []int) *testFleet {
	t.Helper()
	require.NoError(t, tf.plan.SetTarget(class, daily))
	return tf
}

func (tf *testFleet) add(specs ...UnitSpec) *testFleet {
	tf.units = append(tf.units, specs...)
	return tf
}

// addN adds n units of class in state, named <prefix>-<i>, with ascending
// manufacture days.
func (tf *testFleet) addN(prefix, class string, state State, n int) *testFleet {
	for i := 0; i < n; i++ {
		tf.units = append(tf.units, UnitSpec{
			ID:              fmt.Sprintf("%s-%02d", prefix, i),
			Class:           class,
			State:           state,
			ManufactureDay:  -1000 + i,
			RegistrationDay: -1000,
		})
	}
	return tf
}

func (tf *testFleet) build(t *testing.T) (*Simulator, *MemorySink) {
	t.Helper()
	reg, err := NewClassRegistry(tf.classes)
	require.NoError(t, err)
	sink := NewMemorySink()
	s, err := NewSimulator(reg, tf.plan, tf.units, tf.cfg, sink)
	require.NoError(t, err)
	return s, sink
}

func (tf *testFleet) run(t *testing.T) (*Simulator, *MemorySink) {
	t.Helper()
	s, sink := tf.build(t)
	require.NoError(t, s.Run(context.Background()))
	return s, sink
}

// rowAt returns the row of unit on day, failing the test when it is missing.
func rowAt(t *testing.T, sink *MemorySink, unitID string, day int) DayRecord {
	t.Helper()
	r, ok := sink.At(unitID, day)
	require.Truef(t, ok, "no row for %s on day %d", unitID, day)
	return r
}
