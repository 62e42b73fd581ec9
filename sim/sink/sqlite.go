package sink

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/fleet-sim/fleet-sim/sim"
)

// SQLiteSink stores committed rows in a SQLite database. Every run gets its
// own UUID so several runs can share one file.
type SQLiteSink struct {
	db    *sql.DB
	runID string
	rows  int
}

// OpenSQLite opens (or creates) the database at dbPath and registers a new
// run named scenario.
func OpenSQLite(dbPath, scenario string, horizon int) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := tuneSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to tune database: %w", err)
	}

	s := &SQLiteSink{db: db, runID: uuid.NewString()}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO runs (id, scenario, horizon, started_at) VALUES (?, ?, ?, ?)`,
		s.runID, scenario, horizon, time.Now().UTC()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register run: %w", err)
	}
	logrus.Debugf("sqlite sink: run %s in %s", s.runID, dbPath)
	return s, nil
}

// tuneSQLite favours bulk insert speed; a lost results file is rerun, not
// recovered.
func tuneSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteSink) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			scenario TEXT NOT NULL,
			horizon INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS unit_days (
			run_id TEXT NOT NULL REFERENCES runs(id),
			day INTEGER NOT NULL,
			unit_id TEXT NOT NULL,
			class TEXT NOT NULL,
			state INTEGER NOT NULL,
			usage_total INTEGER NOT NULL,
			usage_since_overhaul INTEGER NOT NULL,
			owner_id TEXT,
			flags INTEGER NOT NULL,
			PRIMARY KEY (run_id, day, unit_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_unit_days_unit ON unit_days(run_id, unit_id)`,
		`CREATE INDEX IF NOT EXISTS idx_unit_days_flags ON unit_days(run_id, flags) WHERE flags != 0`,
		`CREATE TABLE IF NOT EXISTS run_classes (
			run_id TEXT NOT NULL REFERENCES runs(id),
			class TEXT NOT NULL,
			spawned INTEGER NOT NULL,
			unmet_unit_days INTEGER NOT NULL,
			PRIMARY KEY (run_id, class)
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RunID identifies this run's rows.
func (s *SQLiteSink) RunID() string { return s.runID }

// WriteDay inserts one tick's rows in a single transaction.
func (s *SQLiteSink) WriteDay(day int, rows []sim.DayRecord) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO unit_days (
		run_id, day, unit_id, class, state, usage_total, usage_since_overhaul, owner_id, flags
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		var owner any
		if r.OwnerID != "" {
			owner = r.OwnerID
		}
		if _, err := stmt.Exec(s.runID, r.Day, r.UnitID, r.Class, int(r.State),
			r.UsageTotal, r.UsageSinceOverhaul, owner, int(r.Flags)); err != nil {
			return fmt.Errorf("failed to insert %s on day %d: %w", r.UnitID, day, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit day %d: %w", day, err)
	}
	s.rows += len(rows)
	return nil
}

// SaveSummary stores the per-class outcome of the run.
func (s *SQLiteSink) SaveSummary(m *sim.Metrics) error {
	classes := make(map[string]struct{})
	for c := range m.Spawned {
		classes[c] = struct{}{}
	}
	for c := range m.UnmetUnitDays {
		classes[c] = struct{}{}
	}
	for c := range classes {
		if _, err := s.db.Exec(`INSERT OR REPLACE INTO run_classes (run_id, class, spawned, unmet_unit_days)
			VALUES (?, ?, ?, ?)`, s.runID, c, m.Spawned[c], m.UnmetUnitDays[c]); err != nil {
			return fmt.Errorf("failed to save summary for %s: %w", c, err)
		}
	}
	return nil
}

// LoadRows reads back every row of runID in day order.
func (s *SQLiteSink) LoadRows(runID string) ([]sim.DayRecord, error) {
	return loadRows(s.db, runID)
}

// LoadRunRows opens dbPath and returns the rows of runID. An empty
// runID selects the most recently started run.
func LoadRunRows(dbPath, runID string) ([]sim.DayRecord, string, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if runID == "" {
		err := db.QueryRow(`SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&runID)
		if err == sql.ErrNoRows {
			return nil, "", fmt.Errorf("no runs in %s", dbPath)
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to find latest run: %w", err)
		}
	}
	rows, err := loadRows(db, runID)
	return rows, runID, err
}

func loadRows(db *sql.DB, runID string) ([]sim.DayRecord, error) {
	q, err := db.Query(`SELECT day, unit_id, class, state, usage_total, usage_since_overhaul,
		COALESCE(owner_id, ''), flags FROM unit_days WHERE run_id = ? ORDER BY day, unit_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer q.Close()

	var out []sim.DayRecord
	for q.Next() {
		var r sim.DayRecord
		var state, flags int
		if err := q.Scan(&r.Day, &r.UnitID, &r.Class, &state, &r.UsageTotal,
			&r.UsageSinceOverhaul, &r.OwnerID, &flags); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.State = sim.State(state)
		r.Flags = sim.Flag(flags)
		out = append(out, r)
	}
	return out, q.Err()
}

// Close marks the run finished and closes the database.
func (s *SQLiteSink) Close() error {
	if _, err := s.db.Exec(`UPDATE runs SET finished_at = ? WHERE id = ?`, time.Now().UTC(), s.runID); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to finish run: %w", err)
	}
	logrus.Debugf("sqlite sink: %d rows stored for run %s", s.rows, s.runID)
	return s.db.Close()
}
