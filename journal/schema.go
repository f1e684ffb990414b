package journal

const Schema = `
CREATE TABLE IF NOT EXISTS cycles (
	cycle_id TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL,
	mode TEXT NOT NULL,
	suggested_mode TEXT NOT NULL,
	recovery_mode TEXT NOT NULL,
	ok_ticks INTEGER NOT NULL,
	quarantined INTEGER NOT NULL,
	symbols INTEGER NOT NULL,
	blocked INTEGER NOT NULL,
	failed_stages TEXT NOT NULL,
	persist_errors INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS mode_changes (
	cycle_id TEXT NOT NULL,
	ts DATETIME NOT NULL,
	from_mode TEXT NOT NULL,
	to_mode TEXT NOT NULL,
	reasons TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS quarantine_events (
	cycle_id TEXT NOT NULL,
	ts DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	pnl_usd REAL NOT NULL,
	contribution_pct REAL NOT NULL,
	cooldown_until DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS earnback_transitions (
	cycle_id TEXT NOT NULL,
	ts DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	from_stage TEXT NOT NULL,
	to_stage TEXT NOT NULL,
	reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at);
CREATE INDEX IF NOT EXISTS idx_mode_changes_ts ON mode_changes(ts);
CREATE INDEX IF NOT EXISTS idx_quarantine_symbol ON quarantine_events(symbol, ts);
`
