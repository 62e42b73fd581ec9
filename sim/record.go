package sim

import "sync"

// DayRecord is the committed state of one unit at the end of one tick.
type DayRecord struct {
	Day                int
	UnitID             string
	Class              string
	State              State
	UsageTotal         int64
	UsageSinceOverhaul int64
	OwnerID            string // airframe id for a mounted aggregate
	Flags              Flag
}

// Sink receives committed rows, one call per simulated tick, in day order.
// Day 0 carries the initial snapshot.
type Sink interface {
	WriteDay(day int, rows []DayRecord) error
	Close() error
}

// MemorySink keeps every row in memory. It is safe for concurrent reads
// while the simulator writes.
type MemorySink struct {
	mu   sync.Mutex
	rows []DayRecord
	days []int
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) WriteDay(day int, rows []DayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
	m.days = append(m.days, day)
	return nil
}

func (m *MemorySink) Close() error { return nil }

// Rows returns a copy of all rows written so far.
func (m *MemorySink) Rows() []DayRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DayRecord(nil), m.rows...)
}

// Days returns the ticks written so far.
func (m *MemorySink) Days() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.days...)
}

// History returns the rows of one unit in day order.
func (m *MemorySink) History(unitID string) []DayRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DayRecord
	for _, r := range m.rows {
		if r.UnitID == unitID {
			out = append(out, r)
		}
	}
	return out
}

// At returns the row of unitID on day, if one was written.
func (m *MemorySink) At(unitID string, day int) (DayRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UnitID == unitID && r.Day == day {
			return r, true
		}
	}
	return DayRecord{}, false
}

// changeOnlySink forwards only rows on which some transition fired. The
// initial snapshot (day 0) passes through whole.
type changeOnlySink struct {
	next Sink
}

// ChangeOnly wraps next so that it receives only changed rows.
func ChangeOnly(next Sink) Sink { return changeOnlySink{next: next} }

func (c changeOnlySink) WriteDay(day int, rows []DayRecord) error {
	if day == 0 {
		return c.next.WriteDay(day, rows)
	}
	changed := make([]DayRecord, 0, len(rows)/8)
	for _, r := range rows {
		if r.Flags != 0 {
			changed = append(changed, r)
		}
	}
	return c.next.WriteDay(day, changed)
}

func (c changeOnlySink) Close() error { return c.next.Close() }
