package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySink_History(t *testing.T) {
	m := NewMemorySink()
	require.NoError(t, m.WriteDay(0, []DayRecord{{Day: 0, UnitID: "a"}, {Day: 0, UnitID: "b"}}))
	require.NoError(t, m.WriteDay(4, []DayRecord{{Day: 4, UnitID: "a", State: StateRepair}}))

	assert.Equal(t, []int{0, 4}, m.Days())
	assert.Len(t, m.Rows(), 3)
	assert.Len(t, m.History("a"), 2)

	r, ok := m.At("a", 4)
	require.True(t, ok)
	assert.Equal(t, StateRepair, r.State)
	_, ok = m.At("b", 4)
	assert.False(t, ok)
	assert.NoError(t, m.Close())
}

func TestChangeOnly_ForwardsSnapshotAndFlaggedRows(t *testing.T) {
	m := NewMemorySink()
	s := ChangeOnly(m)
	snapshot := []DayRecord{{Day: 0, UnitID: "a"}, {Day: 0, UnitID: "b"}}
	tick := []DayRecord{
		{Day: 1, UnitID: "a"},
		{Day: 1, UnitID: "b", Flags: FlagPromoted},
	}

	require.NoError(t, s.WriteDay(0, snapshot))
	require.NoError(t, s.WriteDay(1, tick))
	require.NoError(t, s.Close())

	assert.Equal(t, append(snapshot, tick[1]), m.Rows())
}
