package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordCycle(c CycleRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO cycles
		(cycle_id, started_at, duration_ms, mode, suggested_mode, recovery_mode, ok_ticks,
		 quarantined, symbols, blocked, failed_stages, persist_errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CycleID, c.StartedAt.UTC(), c.Duration.Milliseconds(), c.Mode, c.SuggestedMode,
		c.RecoveryMode, c.OKTicks, c.Quarantined, c.Symbols, c.Blocked, c.FailedStages, c.PersistErrors,
	)
	return err
}

func (j *SQLite) RecordModeChange(m ModeChange) error {
	_, err := j.db.Exec(`
		INSERT INTO mode_changes (cycle_id, ts, from_mode, to_mode, reasons)
		VALUES (?, ?, ?, ?, ?)`,
		m.CycleID, m.TS.UTC(), m.From, m.To, m.Reasons,
	)
	return err
}

func (j *SQLite) RecordQuarantineEvent(e QuarantineEvent) error {
	_, err := j.db.Exec(`
		INSERT INTO quarantine_events
		(cycle_id, ts, symbol, action, pnl_usd, contribution_pct, cooldown_until)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.CycleID, e.TS.UTC(), e.Symbol, e.Action, e.PnLUSD, e.ContributionPct, e.CooldownUntil.UTC(),
	)
	return err
}

func (j *SQLite) RecordTransition(t Transition) error {
	_, err := j.db.Exec(`
		INSERT INTO earnback_transitions (cycle_id, ts, symbol, from_stage, to_stage, reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.CycleID, t.TS.UTC(), t.Symbol, t.From, t.To, t.Reason,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
