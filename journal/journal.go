// Package journal keeps an audit trail of governance cycles: one row per
// cycle plus every applied mode change, quarantine event and earn-back
// transition.
package journal

import (
	"fmt"
	"path/filepath"
	"time"
)

type CycleRecord struct {
	CycleID       string
	StartedAt     time.Time
	Duration      time.Duration
	Mode          string
	SuggestedMode string
	RecoveryMode  string
	OKTicks       int
	Quarantined   int
	Symbols       int
	Blocked       int
	FailedStages  string // comma separated
	PersistErrors int
}

type ModeChange struct {
	CycleID string
	TS      time.Time
	From    string
	To      string
	Reasons string
}

type QuarantineEvent struct {
	CycleID         string
	TS              time.Time
	Symbol          string
	Action          string
	PnLUSD          float64
	ContributionPct float64
	CooldownUntil   time.Time
}

type Transition struct {
	CycleID string
	TS      time.Time
	Symbol  string
	From    string
	To      string
	Reason  string
}

type Journal interface {
	RecordCycle(CycleRecord) error
	RecordModeChange(ModeChange) error
	RecordQuarantineEvent(QuarantineEvent) error
	RecordTransition(Transition) error
	Close() error
}

// Config selects and locates the journal backend.
type Config struct {
	Type   string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"` // csv output directory
}

func (c Config) Validate() error {
	switch c.Type {
	case "", "none":
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite type")
		}
	case "csv":
		if c.Dir == "" {
			return fmt.Errorf("journal.dir required for csv type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}
	return nil
}

// Open returns the configured journal.
func Open(c Config) (Journal, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Type {
	case "sqlite":
		return NewSQLite(c.DBPath)
	case "csv":
		return NewCSV(filepath.Join(c.Dir, "cycles.csv"), filepath.Join(c.Dir, "events.csv"))
	}
	return Nop{}, nil
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordCycle(CycleRecord) error               { return nil }
func (Nop) RecordModeChange(ModeChange) error           { return nil }
func (Nop) RecordQuarantineEvent(QuarantineEvent) error { return nil }
func (Nop) RecordTransition(Transition) error           { return nil }
func (Nop) Close() error                                { return nil }
