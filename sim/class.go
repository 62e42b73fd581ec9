package sim

import (
	"fmt"
	"math"
	"sort"
)

// Kind distinguishes airframes from the aggregates mounted on them.
type Kind string

const (
	KindAirframe  Kind = "airframe"
	KindAggregate Kind = "aggregate"
)

// Mount declares that an aggregate class fits an airframe class and how many
// of it the airframe needs to be equipped.
type Mount struct {
	Airframe string
	Slots    int
}

// Class carries the reference data shared by all units of one type.
type Class struct {
	Name           string
	Kind           Kind
	LifeLimit      int64 // usage_total ceiling, must be > 0
	OverhaulLimit  int64 // usage_since_overhaul ceiling, must be > 0
	BeyondRepair   int64 // usage_total above which an overhaul means retirement; 0 = never
	RepairDuration int   // days in repair
	RepairSlots    int   // concurrent repairs allowed; 0 = unlimited
	Mounts         []Mount

	index int
	// airframe classes: aggregate class indices in slot-counter order
	aggregates []int
	// aggregate classes: airframe class index -> slots required
	slotsOn map[int]int
}

// Index is the class's stable position in the registry.
func (c *Class) Index() int { return c.index }

// BeyondRepairThreshold returns the effective threshold, treating 0 as unbounded.
func (c *Class) BeyondRepairThreshold() int64 {
	if c.BeyondRepair <= 0 {
		return math.MaxInt64
	}
	return c.BeyondRepair
}

// SlotsOn returns how many aggregates of this class an airframe of class
// airframe needs, or 0 when this class does not mount on it.
func (c *Class) SlotsOn(airframe *Class) int {
	if c.slotsOn == nil || airframe == nil {
		return 0
	}
	return c.slotsOn[airframe.index]
}

// AggregateClasses returns the indices of aggregate classes that mount on an
// airframe class, in the order of the airframe's slot counters.
func (c *Class) AggregateClasses() []int { return c.aggregates }

// slotIndex is the position of aggregate class agg among c's slot counters.
func (c *Class) slotIndex(agg int) int {
	for i, a := range c.aggregates {
		if a == agg {
			return i
		}
	}
	return -1
}

// ClassRegistry holds every class known to a run, indexed by name.
type ClassRegistry struct {
	classes []*Class
	byName  map[string]*Class
}

// NewClassRegistry validates the classes and resolves their mounts.
// A class with missing limits aborts with ErrMissingReferenceData.
func NewClassRegistry(classes []*Class) (*ClassRegistry, error) {
	r := &ClassRegistry{byName: make(map[string]*Class, len(classes))}
	for i, c := range classes {
		if c == nil {
			return nil, fmt.Errorf("class[%d] is nil: %w", i, ErrMissingReferenceData)
		}
		if c.Name == "" {
			return nil, fmt.Errorf("class[%d] has no name: %w", i, ErrMissingReferenceData)
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("class %q defined twice: %w", c.Name, ErrMissingReferenceData)
		}
		if c.Kind != KindAirframe && c.Kind != KindAggregate {
			return nil, fmt.Errorf("class %q: unknown kind %q: %w", c.Name, c.Kind, ErrMissingReferenceData)
		}
		if c.LifeLimit <= 0 || c.OverhaulLimit <= 0 {
			return nil, fmt.Errorf("class %q: life_limit=%d overhaul_limit=%d: %w",
				c.Name, c.LifeLimit, c.OverhaulLimit, ErrMissingReferenceData)
		}
		if c.RepairDuration <= 0 {
			return nil, fmt.Errorf("class %q: repair_duration must be positive, got %d: %w",
				c.Name, c.RepairDuration, ErrMissingReferenceData)
		}
		if c.RepairSlots < 0 {
			return nil, fmt.Errorf("class %q: repair_slots must be non-negative, got %d: %w",
				c.Name, c.RepairSlots, ErrMissingReferenceData)
		}
		c.index = i
		c.aggregates = nil
		c.slotsOn = nil
		r.classes = append(r.classes, c)
		r.byName[c.Name] = c
	}
	for _, c := range r.classes {
		if c.Kind == KindAirframe {
			if len(c.Mounts) > 0 {
				return nil, fmt.Errorf("class %q: airframes cannot declare mounts: %w", c.Name, ErrMissingReferenceData)
			}
			continue
		}
		c.slotsOn = make(map[int]int, len(c.Mounts))
		for _, m := range c.Mounts {
			af, ok := r.byName[m.Airframe]
			if !ok || af.Kind != KindAirframe {
				return nil, fmt.Errorf("class %q mounts on unknown airframe class %q: %w",
					c.Name, m.Airframe, ErrMissingReferenceData)
			}
			if m.Slots <= 0 {
				return nil, fmt.Errorf("class %q on %q: slots must be positive, got %d: %w",
					c.Name, m.Airframe, m.Slots, ErrMissingReferenceData)
			}
			c.slotsOn[af.index] = m.Slots
			af.aggregates = append(af.aggregates, c.index)
		}
	}
	for _, c := range r.classes {
		sort.Ints(c.aggregates)
	}
	return r, nil
}

// Get returns the class named name, or nil.
func (r *ClassRegistry) Get(name string) *Class { return r.byName[name] }

// At returns the class at index i.
func (r *ClassRegistry) At(i int) *Class { return r.classes[i] }

// Len returns the number of classes.
func (r *ClassRegistry) Len() int { return len(r.classes) }

// All returns the classes in index order.
func (r *ClassRegistry) All() []*Class { return r.classes }
