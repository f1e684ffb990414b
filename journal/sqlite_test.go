package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, tbl := range []string{"cycles", "mode_changes", "quarantine_events", "earnback_transitions"} {
		assert.True(t, found[tbl], tbl)
	}
}

func TestSQLiteCycles(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"C1", "C2", "C3"} {
		require.NoError(t, j.RecordCycle(CycleRecord{
			CycleID:      id,
			StartedAt:    start.Add(time.Duration(i) * 5 * time.Minute),
			Duration:     1500 * time.Millisecond,
			Mode:         "de_risk",
			RecoveryMode: "OFF",
			OKTicks:      i,
			Symbols:      12,
			FailedStages: "",
		}))
	}

	got, err := j.ListCycles(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "C3", got[0].CycleID)
	assert.Equal(t, "C2", got[1].CycleID)
	assert.Equal(t, 1500*time.Millisecond, got[0].Duration)
	assert.True(t, got[0].StartedAt.Equal(start.Add(10*time.Minute)))

	one, err := j.GetCycle("C1")
	require.NoError(t, err)
	assert.Equal(t, "de_risk", one.Mode)
	assert.Equal(t, 12, one.Symbols)

	_, err = j.GetCycle("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteEvents(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	ts := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordModeChange(ModeChange{CycleID: "C1", TS: ts, From: "normal", To: "de_risk", Reasons: "pf_7d=0.93<0.95"}))
	require.NoError(t, j.RecordModeChange(ModeChange{CycleID: "C2", TS: ts.Add(5 * time.Hour), From: "de_risk", To: "halt_new_entries"}))
	require.NoError(t, j.RecordQuarantineEvent(QuarantineEvent{
		CycleID: "C2", TS: ts, Symbol: "BTC", Action: "enter", PnLUSD: -300, ContributionPct: 75,
		CooldownUntil: ts.Add(48 * time.Hour),
	}))
	require.NoError(t, j.RecordTransition(Transition{CycleID: "C2", TS: ts, Symbol: "ETH", From: "none", To: "sampling"}))

	changes, err := j.ListModeChanges(10)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "halt_new_entries", changes[0].To)
	assert.Equal(t, "pf_7d=0.93<0.95", changes[1].Reasons)

	events, err := j.ListQuarantineEvents("BTC", ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "enter", events[0].Action)
	assert.InDelta(t, 75.0, events[0].ContributionPct, 1e-9)
	assert.True(t, events[0].CooldownUntil.Equal(ts.Add(48*time.Hour)))

	var n int
	require.NoError(t, j.db.QueryRow(`SELECT COUNT(*) FROM earnback_transitions`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	j, err := Open(Config{Type: "none"})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, j)

	dir := t.TempDir()
	j, err = Open(Config{Type: "sqlite", DBPath: filepath.Join(dir, "j.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, j)
	require.NoError(t, j.Close())

	_, err = Open(Config{Type: "sqlite"})
	assert.Error(t, err)
	_, err = Open(Config{Type: "parquet"})
	assert.Error(t, err)
}
