package sim

import "sync/atomic"

// stateCounts holds the live number of units per (class, state). Lanes update
// it only through add, so reads after a barrier are exact.
type stateCounts struct {
	n [][numStates]atomic.Int64
}

func newStateCounts(classes int) *stateCounts {
	return &stateCounts{n: make([][numStates]atomic.Int64, classes)}
}

func (c *stateCounts) add(class int, s State, delta int64) {
	c.n[class][s].Add(delta)
}

func (c *stateCounts) get(class int, s State) int {
	return int(c.n[class][s].Load())
}

// repairSlots bounds concurrent repairs per class. A limit of 0 means unlimited.
type repairSlots struct {
	limit []int
	inUse []atomic.Int32
}

func newRepairSlots(classes []*Class) *repairSlots {
	r := &repairSlots{limit: make([]int, len(classes)), inUse: make([]atomic.Int32, len(classes))}
	for i, c := range classes {
		r.limit[i] = c.RepairSlots
	}
	return r
}

// acquire takes a slot for class, failing when the class is at capacity.
func (r *repairSlots) acquire(class int) bool {
	limit := int32(r.limit[class])
	for {
		cur := r.inUse[class].Load()
		if limit > 0 && cur >= limit {
			return false
		}
		if r.inUse[class].CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (r *repairSlots) release(class int) {
	r.inUse[class].Add(-1)
}

func (r *repairSlots) free(class int) int {
	if r.limit[class] == 0 {
		return int(^uint(0) >> 1)
	}
	return max(r.limit[class]-int(r.inUse[class].Load()), 0)
}

func (r *repairSlots) busy(class int) int {
	return int(r.inUse[class].Load())
}
