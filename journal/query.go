package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// GetCycle returns a single cycle by ID.
func (j *SQLite) GetCycle(cycleID string) (CycleRecord, error) {
	row := j.db.QueryRow(`
		SELECT cycle_id, started_at, duration_ms, mode, suggested_mode, recovery_mode, ok_ticks,
		       quarantined, symbols, blocked, failed_stages, persist_errors
		FROM cycles
		WHERE cycle_id = ?`, cycleID)

	rec, err := scanCycle(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return CycleRecord{}, fmt.Errorf("cycle %q not found", cycleID)
		}
		return CycleRecord{}, err
	}
	return rec, nil
}

// ListCycles returns the most recent cycles, newest first.
func (j *SQLite) ListCycles(limit int) ([]CycleRecord, error) {
	rows, err := j.db.Query(`
		SELECT cycle_id, started_at, duration_ms, mode, suggested_mode, recovery_mode, ok_ticks,
		       quarantined, symbols, blocked, failed_stages, persist_errors
		FROM cycles
		ORDER BY started_at DESC, cycle_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListModeChanges returns the most recent applied mode changes, newest first.
func (j *SQLite) ListModeChanges(limit int) ([]ModeChange, error) {
	rows, err := j.db.Query(`
		SELECT cycle_id, ts, from_mode, to_mode, reasons
		FROM mode_changes
		ORDER BY ts DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModeChange
	for rows.Next() {
		var m ModeChange
		if err := rows.Scan(&m.CycleID, &m.TS, &m.From, &m.To, &m.Reasons); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListQuarantineEvents returns a symbol's quarantine events within [start, end).
func (j *SQLite) ListQuarantineEvents(symbol string, start, end time.Time) ([]QuarantineEvent, error) {
	rows, err := j.db.Query(`
		SELECT cycle_id, ts, symbol, action, pnl_usd, contribution_pct, cooldown_until
		FROM quarantine_events
		WHERE symbol = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC`, symbol, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QuarantineEvent
	for rows.Next() {
		var e QuarantineEvent
		if err := rows.Scan(&e.CycleID, &e.TS, &e.Symbol, &e.Action, &e.PnLUSD, &e.ContributionPct, &e.CooldownUntil); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(s scanner) (CycleRecord, error) {
	var (
		rec CycleRecord
		ms  int64
	)
	err := s.Scan(
		&rec.CycleID,
		&rec.StartedAt,
		&ms,
		&rec.Mode,
		&rec.SuggestedMode,
		&rec.RecoveryMode,
		&rec.OKTicks,
		&rec.Quarantined,
		&rec.Symbols,
		&rec.Blocked,
		&rec.FailedStages,
		&rec.PersistErrors,
	)
	rec.Duration = time.Duration(ms) * time.Millisecond
	return rec, err
}
