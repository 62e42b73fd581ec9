// Package validate checks committed simulation rows against the lifecycle
// invariants after the fact. The engine never corrects itself; a violation
// here means a bug or a bad snapshot.
package validate

import (
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/fleet-sim/fleet-sim/sim"
)

// Check names, as they appear in a Report.
const (
	CheckMonotonic     = "monotonic"
	CheckOpsUsage      = "usage_outside_operations"
	CheckUsageAmount   = "usage_amount"
	CheckTerminal      = "terminal_immutable"
	CheckConservation  = "conservation"
	CheckSlots         = "slot_capacity"
	CheckMount         = "mount_state"
	CheckRepairSlots   = "repair_capacity"
	CheckLedgerOverlap = "repair_ledger_capacity"
)

// maxKept bounds how many violations a report keeps verbatim; the per-check
// counts stay exact.
const maxKept = 1000

// Reference is what the checker needs to know about classes and usage plans.
// *sim.Simulator and *plan.Inputs satisfy it.
type Reference interface {
	ClassByName(name string) *sim.Class
	Cumulative(unitID, class string, day int) (int64, bool)
}

// Violation is one broken invariant on one row.
type Violation struct {
	Day    int
	UnitID string
	Check  string
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("day %d %s [%s]: %s", v.Day, v.UnitID, v.Check, v.Detail)
}

// Report summarizes a validation pass.
type Report struct {
	Days       int
	Rows       int
	Counts     map[string]int
	Violations []Violation // first maxKept, in detection order
}

// OK reports whether no invariant was broken.
func (r *Report) OK() bool { return len(r.Counts) == 0 }

// Fprint writes a human-readable summary of the report to w.
func (r *Report) Fprint(w io.Writer) {
	fmt.Fprintln(w, "=== Validation ===")
	fmt.Fprintf(w, "Checked              : %d rows over %d days\n", r.Rows, r.Days)
	if r.OK() {
		fmt.Fprintln(w, "Result               : all invariants hold")
		return
	}
	checks := make([]string, 0, len(r.Counts))
	for c := range r.Counts {
		checks = append(checks, c)
	}
	sort.Strings(checks)
	for _, c := range checks {
		fmt.Fprintf(w, "Violations %-10s: %d\n", c, r.Counts[c])
	}
	for i, v := range r.Violations {
		if i == 20 {
			fmt.Fprintf(w, "  ... %d more\n", len(r.Violations)-i)
			break
		}
		fmt.Fprintf(w, "  %s\n", v)
	}
}

// Checker validates rows as they are committed. It implements sim.Sink so
// it can sit next to the real output sinks; it needs every row of every
// tick, so it must not be placed behind sim.ChangeOnly.
type Checker struct {
	ref     Reference
	report  Report
	prev    map[string]sim.DayRecord
	prevDay int
	started bool
}

// NewChecker returns a Checker using ref for class data and usage curves.
func NewChecker(ref Reference) *Checker {
	return &Checker{
		ref:    ref,
		report: Report{Counts: make(map[string]int)},
		prev:   make(map[string]sim.DayRecord),
	}
}

// Check validates a complete row history in one go.
func Check(ref Reference, rows []sim.DayRecord) *Report {
	c := NewChecker(ref)
	start := 0
	for i := 1; i <= len(rows); i++ {
		if i == len(rows) || rows[i].Day != rows[start].Day {
			_ = c.WriteDay(rows[start].Day, rows[start:i])
			start = i
		}
	}
	return c.Report()
}

// Report returns a copy of the violations found so far.
func (c *Checker) Report() *Report {
	r := c.report
	r.Counts = make(map[string]int, len(c.report.Counts))
	for k, n := range c.report.Counts {
		r.Counts[k] = n
	}
	r.Violations = append([]Violation(nil), c.report.Violations...)
	return &r
}

// Add folds violations found elsewhere, such as by CheckLedger, into the report.
func (r *Report) Add(vs ...Violation) {
	for _, v := range vs {
		r.Counts[v.Check]++
		if len(r.Violations) < maxKept {
			r.Violations = append(r.Violations, v)
		}
	}
}

func (c *Checker) Close() error {
	if !c.report.OK() {
		logrus.Warnf("validation found %d violations over %d days", len(c.report.Violations), c.report.Days)
	}
	return nil
}

func (c *Checker) flag(day int, unitID, check, format string, args ...any) {
	c.report.Add(Violation{Day: day, UnitID: unitID, Check: check, Detail: fmt.Sprintf(format, args...)})
}

// WriteDay checks one tick against the previous one.
func (c *Checker) WriteDay(day int, rows []sim.DayRecord) error {
	c.report.Days++
	c.report.Rows += len(rows)

	cur := make(map[string]sim.DayRecord, len(rows))
	for _, r := range rows {
		cur[r.UnitID] = r
	}

	c.checkCapacity(day, rows, cur)
	if c.started {
		for _, r := range rows {
			p, ok := c.prev[r.UnitID]
			if !ok {
				if !r.Flags.Has(sim.FlagSpawned) {
					c.flag(day, r.UnitID, CheckConservation, "appeared without being spawned")
				}
				continue
			}
			c.checkTransition(p, r)
		}
		for id := range c.prev {
			if _, ok := cur[id]; !ok {
				c.flag(day, id, CheckConservation, "missing from day %d", day)
			}
		}
	}

	c.prev = cur
	c.prevDay = day
	c.started = true
	return nil
}

func (c *Checker) checkTransition(p, r sim.DayRecord) {
	d := r.Day
	if r.UsageTotal < p.UsageTotal {
		c.flag(d, r.UnitID, CheckMonotonic, "usage_total fell from %d to %d", p.UsageTotal, r.UsageTotal)
	}
	if r.UsageSinceOverhaul < p.UsageSinceOverhaul && r.UsageSinceOverhaul != 0 {
		c.flag(d, r.UnitID, CheckMonotonic, "usage_since_overhaul fell from %d to %d without an overhaul",
			p.UsageSinceOverhaul, r.UsageSinceOverhaul)
	}
	if r.UsageSinceOverhaul == 0 && p.UsageSinceOverhaul > 0 &&
		!r.Flags.Has(sim.FlagExitedRepair) && !(r.Flags.Has(sim.FlagPromoted) && p.State == sim.StateUnserviceable) {
		c.flag(d, r.UnitID, CheckMonotonic, "usage_since_overhaul reset outside a repair exit")
	}

	if p.State == sim.StateStorage {
		if r.State != sim.StateStorage || r.UsageTotal != p.UsageTotal || r.UsageSinceOverhaul != p.UsageSinceOverhaul {
			c.flag(d, r.UnitID, CheckTerminal, "changed after retirement: %s total=%d", r.State, r.UsageTotal)
		}
		return
	}

	delta := r.UsageTotal - p.UsageTotal
	if p.State != sim.StateOperations {
		if delta != 0 {
			c.flag(d, r.UnitID, CheckOpsUsage, "accrued %d while %s", delta, p.State)
		}
		return
	}

	curveID, curveClass := r.UnitID, r.Class
	if p.OwnerID != "" {
		owner, ok := c.prev[p.OwnerID]
		if !ok {
			return
		}
		curveID, curveClass = owner.UnitID, owner.Class
	}
	full, ok := c.ref.Cumulative(curveID, curveClass, d)
	if !ok {
		return
	}
	base, _ := c.ref.Cumulative(curveID, curveClass, d-1)
	from, _ := c.ref.Cumulative(curveID, curveClass, c.prevDay)
	if delta != full-from && delta != base-from {
		c.flag(d, r.UnitID, CheckUsageAmount, "accrued %d over days %d..%d, plan allows %d or %d",
			delta, c.prevDay+1, d, full-from, base-from)
	}
}

// checkCapacity verifies slot occupancy, mount states and repair occupancy
// for one day.
func (c *Checker) checkCapacity(day int, rows []sim.DayRecord, cur map[string]sim.DayRecord) {
	type mountKey struct{ owner, class string }
	mounted := make(map[mountKey]int)
	repairs := make(map[string]int)
	for _, r := range rows {
		if r.State == sim.StateRepair {
			repairs[r.Class]++
		}
		if r.OwnerID == "" {
			continue
		}
		owner, ok := cur[r.OwnerID]
		if !ok {
			c.flag(day, r.UnitID, CheckMount, "mounted on unknown unit %s", r.OwnerID)
			continue
		}
		if r.State != sim.StateOperations || owner.State != sim.StateOperations {
			c.flag(day, r.UnitID, CheckMount, "mounted on %s while %s/%s", r.OwnerID, r.State, owner.State)
		}
		mounted[mountKey{r.OwnerID, r.Class}]++
	}

	for k, n := range mounted {
		agg := c.ref.ClassByName(k.class)
		af := c.ref.ClassByName(cur[k.owner].Class)
		if agg == nil || af == nil {
			continue
		}
		if limit := agg.SlotsOn(af); n > limit {
			c.flag(day, k.owner, CheckSlots, "%d %s mounted, %d slots", n, k.class, limit)
		}
	}
	for class, n := range repairs {
		cl := c.ref.ClassByName(class)
		if cl == nil || cl.RepairSlots == 0 {
			continue
		}
		if n > cl.RepairSlots {
			c.flag(day, class, CheckRepairSlots, "%d units in repair, %d slots", n, cl.RepairSlots)
		}
	}
}

// CheckLedger verifies that repair intervals, backdated ones included, never
// exceed a class's slots on any day.
func CheckLedger(ref Reference, ledger []sim.RepairInterval) []Violation {
	type edge struct {
		day   int
		delta int
	}
	byClass := make(map[string][]edge)
	for _, iv := range ledger {
		byClass[iv.Class] = append(byClass[iv.Class], edge{iv.Start, 1}, edge{iv.End, -1})
	}

	var out []Violation
	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		cl := ref.ClassByName(class)
		if cl == nil || cl.RepairSlots == 0 {
			continue
		}
		edges := byClass[class]
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].day != edges[j].day {
				return edges[i].day < edges[j].day
			}
			return edges[i].delta < edges[j].delta // exits free the slot before entries take it
		})
		open := 0
		for _, e := range edges {
			open += e.delta
			if open > cl.RepairSlots {
				out = append(out, Violation{Day: e.day, UnitID: class, Check: CheckLedgerOverlap,
					Detail: fmt.Sprintf("%d overlapping repairs, %d slots", open, cl.RepairSlots)})
			}
		}
	}
	return out
}
