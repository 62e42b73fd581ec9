package sim

import (
	"fmt"
	"sort"
)

// UsageCurve is the cumulative planned usage of one profile. cum[d] is the
// usage flown on days 1..d, so cum[0] is always zero.
type UsageCurve struct {
	Name string
	cum  []int64
}

// NewUsageCurve builds a curve from daily usage, where daily[0] is day 1.
func NewUsageCurve(name string, daily []int64) (*UsageCurve, error) {
	c := &UsageCurve{Name: name, cum: make([]int64, len(daily)+1)}
	for i, v := range daily {
		if v < 0 {
			return nil, fmt.Errorf("profile %q day %d: negative usage %d: %w", name, i+1, v, ErrInvalidPlan)
		}
		c.cum[i+1] = c.cum[i] + v
	}
	return c, nil
}

// Horizon is the last day the curve covers.
func (c *UsageCurve) Horizon() int { return len(c.cum) - 1 }

// Cumulative returns the usage flown on days 1..day. Days past the horizon
// add nothing.
func (c *UsageCurve) Cumulative(day int) int64 {
	if day <= 0 {
		return 0
	}
	if day >= len(c.cum) {
		return c.cum[len(c.cum)-1]
	}
	return c.cum[day]
}

// Daily returns the usage planned for a single day.
func (c *UsageCurve) Daily(day int) int64 {
	return c.Cumulative(day) - c.Cumulative(day-1)
}

// Between returns the usage flown on days from+1..to.
func (c *UsageCurve) Between(from, to int) int64 {
	return c.Cumulative(to) - c.Cumulative(from)
}

// FirstReach returns the first day t > after for which the usage flown on days
// after+1..t reaches need. It returns Horizon()+1 when the curve never gets
// there.
func (c *UsageCurve) FirstReach(after int, need int64) int {
	if need <= 0 {
		return after + 1
	}
	h := c.Horizon()
	if after >= h {
		return h + 1
	}
	base := c.Cumulative(after)
	span := h - after
	i := sort.Search(span, func(i int) bool {
		return c.cum[after+1+i]-base >= need
	})
	return after + 1 + i
}

// Plan holds the external daily plan: usage profiles, their assignment to
// classes and units, and per-class operational targets.
type Plan struct {
	Horizon int

	curves       []*UsageCurve
	curveIdx     map[string]int
	classProfile map[string]int
	unitProfile  map[string]int
	targets      map[string][]int // class -> target per day, index 0 = day 1
	changeDays   []int
}

// NewPlan returns an empty plan covering days 1..horizon.
func NewPlan(horizon int) *Plan {
	return &Plan{
		Horizon:      horizon,
		curveIdx:     make(map[string]int),
		classProfile: make(map[string]int),
		unitProfile:  make(map[string]int),
		targets:      make(map[string][]int),
	}
}

// AddProfile registers a named daily usage series. daily must cover the horizon.
func (p *Plan) AddProfile(name string, daily []int64) error {
	if _, dup := p.curveIdx[name]; dup {
		return fmt.Errorf("profile %q defined twice: %w", name, ErrInvalidPlan)
	}
	if len(daily) != p.Horizon {
		return fmt.Errorf("profile %q covers %d days, horizon is %d: %w", name, len(daily), p.Horizon, ErrInvalidPlan)
	}
	c, err := NewUsageCurve(name, daily)
	if err != nil {
		return err
	}
	p.curveIdx[name] = len(p.curves)
	p.curves = append(p.curves, c)
	return nil
}

// SetClassProfile makes profile the default for every unit of class.
func (p *Plan) SetClassProfile(class, profile string) error {
	i, ok := p.curveIdx[profile]
	if !ok {
		return fmt.Errorf("class %q: unknown profile %q: %w", class, profile, ErrInvalidPlan)
	}
	p.classProfile[class] = i
	return nil
}

// SetUnitProfile overrides the class default for a single unit.
func (p *Plan) SetUnitProfile(unitID, profile string) error {
	i, ok := p.curveIdx[profile]
	if !ok {
		return fmt.Errorf("unit %q: unknown profile %q: %w", unitID, profile, ErrInvalidPlan)
	}
	p.unitProfile[unitID] = i
	return nil
}

// SetTarget sets the operational headcount target of class, where daily[0] is day 1.
func (p *Plan) SetTarget(class string, daily []int) error {
	if len(daily) != p.Horizon {
		return fmt.Errorf("targets for %q cover %d days, horizon is %d: %w", class, len(daily), p.Horizon, ErrInvalidPlan)
	}
	for i, v := range daily {
		if v < 0 {
			return fmt.Errorf("targets for %q day %d: negative target %d: %w", class, i+1, v, ErrInvalidPlan)
		}
	}
	p.targets[class] = append([]int(nil), daily...)
	p.changeDays = nil
	return nil
}

// HasTarget reports whether class is quota-controlled.
func (p *Plan) HasTarget(class string) bool {
	_, ok := p.targets[class]
	return ok
}

// Target returns the target of class on day (clamped to the plan's days).
func (p *Plan) Target(class string, day int) int {
	t, ok := p.targets[class]
	if !ok || len(t) == 0 {
		return 0
	}
	if day < 1 {
		day = 1
	}
	if day > len(t) {
		day = len(t)
	}
	return t[day-1]
}

// MaxTarget returns the largest target of class over days from..to.
func (p *Plan) MaxTarget(class string, from, to int) int {
	best := 0
	if to > p.Horizon {
		to = p.Horizon
	}
	for d := from; d <= to; d++ {
		if v := p.Target(class, d); v > best {
			best = v
		}
	}
	return best
}

// ChangeDays returns the sorted days on which any class target differs from
// the day before.
func (p *Plan) ChangeDays() []int {
	if p.changeDays != nil {
		return p.changeDays
	}
	set := make(map[int]bool)
	for _, t := range p.targets {
		for i := 1; i < len(t); i++ {
			if t[i] != t[i-1] {
				set[i+1] = true
			}
		}
	}
	days := make([]int, 0, len(set))
	for d := range set {
		days = append(days, d)
	}
	sort.Ints(days)
	p.changeDays = days
	return days
}

// Curve returns the usage curve at index i.
func (p *Plan) Curve(i int) *UsageCurve { return p.curves[i] }

// CurveByName returns the named usage curve, or nil.
func (p *Plan) CurveByName(name string) *UsageCurve {
	i, ok := p.curveIdx[name]
	if !ok {
		return nil
	}
	return p.curves[i]
}

// classCurve returns the default curve index for class, or -1.
func (p *Plan) classCurve(class string) int {
	if i, ok := p.classProfile[class]; ok {
		return i
	}
	return -1
}

// profileFor resolves the curve flown by a unit: its own profile when the plan
// has one, otherwise its class default.
func (p *Plan) profileFor(unitID, class string) int {
	if i, ok := p.unitProfile[unitID]; ok {
		return i
	}
	return p.classCurve(class)
}

// CurveFor returns the curve flown by unitID of class, or nil when the plan
// has none for it.
func (p *Plan) CurveFor(unitID, class string) *UsageCurve {
	if i := p.profileFor(unitID, class); i >= 0 {
		return p.curves[i]
	}
	return nil
}
