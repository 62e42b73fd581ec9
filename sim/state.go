// Defines the unit lifecycle states and the per-day transition flags
// carried on every committed DayRecord.

package sim

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a unit. The numeric values are stable and
// appear in exported results, so new states must be appended.
type State int32

const (
	StateInactive      State = 1 // long dormant, gated before it can be recalled
	StateOperations    State = 2 // flying, counters advance
	StateServiceable   State = 3 // airworthy, in a ready pool
	StateRepair        State = 4 // under deterministic repair
	StateReserve       State = 5 // post-repair or spawned, awaiting admission
	StateStorage       State = 6 // permanently retired, counters frozen
	StateUnserviceable State = 7 // overhaul limit reached, awaiting a repair slot
)

// numStates sizes per-state counter arrays (index 0 is unused).
const numStates = 8

var stateNames = map[State]string{
	StateInactive:      "inactive",
	StateOperations:    "operations",
	StateServiceable:   "serviceable",
	StateRepair:        "repair",
	StateReserve:       "reserve",
	StateStorage:       "storage",
	StateUnserviceable: "unserviceable",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// IsPool reports whether units in s wait in a FIFO pool and carry a queue position.
func (s State) IsPool() bool {
	switch s {
	case StateInactive, StateServiceable, StateReserve, StateUnserviceable:
		return true
	}
	return false
}

// ParseState maps a state name (case-insensitive) or its numeric code to a State.
func ParseState(name string) (State, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for s, sn := range stateNames {
		if sn == n || fmt.Sprint(int32(s)) == n {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}

// Flag marks a transition that fired for a unit during one tick.
type Flag uint16

const (
	FlagEnteredRepair Flag = 1 << iota
	FlagExitedRepair
	FlagPromoted
	FlagDemoted
	FlagSpawned
	FlagRetired
	FlagAssembled
	FlagDetached
	FlagParked // repair requested but no slot was free
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagEnteredRepair, "entered_repair"},
	{FlagExitedRepair, "exited_repair"},
	{FlagPromoted, "promoted"},
	{FlagDemoted, "demoted"},
	{FlagSpawned, "spawned"},
	{FlagRetired, "retired"},
	{FlagAssembled, "assembled"},
	{FlagDetached, "detached"},
	{FlagParked, "parked"},
}

// Has reports whether all bits of other are set in f.
func (f Flag) Has(other Flag) bool { return f&other == other && other != 0 }

func (f Flag) String() string {
	if f == 0 {
		return ""
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// FlagNames lists the flag column names in their stable export order.
func FlagNames() []string {
	names := make([]string, len(flagNames))
	for i, fn := range flagNames {
		names[i] = fn.name
	}
	return names
}

// FlagValues expands f into one boolean per FlagNames entry.
func FlagValues(f Flag) []bool {
	vals := make([]bool, len(flagNames))
	for i, fn := range flagNames {
		vals[i] = f&fn.flag != 0
	}
	return vals
}

// FlagAt returns the flag in column i of FlagNames, or 0 when i is out of range.
func FlagAt(i int) Flag {
	if i < 0 || i >= len(flagNames) {
		return 0
	}
	return flagNames[i].flag
}
