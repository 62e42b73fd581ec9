package sim

import (
	"sort"
	"sync/atomic"
)

// poolTails hands out arrival sequence numbers per (class, pool). Sequences
// only grow, so a queue position is never reused.
type poolTails struct {
	tail [][numStates]atomic.Int64
}

func newPoolTails(classes int) *poolTails {
	return &poolTails{tail: make([][numStates]atomic.Int64, classes)}
}

func (t *poolTails) next(class int, s State) int64 {
	return t.tail[class][s].Add(1) - 1
}

// byQueue orders pool members by queue position, then arena index.
func byQueue(us []*Unit) {
	sort.Slice(us, func(i, j int) bool {
		if us[i].QueuePosition != us[j].QueuePosition {
			return us[i].QueuePosition < us[j].QueuePosition
		}
		return us[i].Index < us[j].Index
	})
}

// byAge orders units oldest manufacture first, then by queue position.
func byAge(us []*Unit) {
	sort.Slice(us, func(i, j int) bool {
		if us[i].ManufactureDay != us[j].ManufactureDay {
			return us[i].ManufactureDay < us[j].ManufactureDay
		}
		if us[i].QueuePosition != us[j].QueuePosition {
			return us[i].QueuePosition < us[j].QueuePosition
		}
		return us[i].Index < us[j].Index
	})
}

// byDemotion orders units in operations for surplus removal: highest
// usage since overhaul first, then oldest manufacture, then arena index.
func byDemotion(us []*Unit) {
	sort.Slice(us, func(i, j int) bool {
		if us[i].UsageSinceOverhaul != us[j].UsageSinceOverhaul {
			return us[i].UsageSinceOverhaul > us[j].UsageSinceOverhaul
		}
		if us[i].ManufactureDay != us[j].ManufactureDay {
			return us[i].ManufactureDay < us[j].ManufactureDay
		}
		return us[i].Index < us[j].Index
	})
}

// poolIndex groups units by (class, state) as of the moment it was built.
type poolIndex struct {
	lists [][numStates][]*Unit
}

func indexPools(f *Fleet) *poolIndex {
	p := &poolIndex{lists: make([][numStates][]*Unit, f.classes.Len())}
	for _, u := range f.units {
		s := u.State()
		p.lists[u.Class.index][s] = append(p.lists[u.Class.index][s], u)
	}
	return p
}

// get returns a copy of the (class, state) list, in arena order.
func (p *poolIndex) get(c *Class, s State) []*Unit {
	return append([]*Unit(nil), p.lists[c.index][s]...)
}
