package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

var (
	cycleHeader = []string{"cycle_id", "started_at", "duration_ms", "mode", "suggested_mode", "recovery_mode",
		"ok_ticks", "quarantined", "symbols", "blocked", "failed_stages", "persist_errors"}
	eventHeader = []string{"cycle_id", "ts", "kind", "symbol", "from", "to", "detail"}
)

// CSV appends cycles to one file and every other record to an events file.
type CSV struct {
	cycles *csv.Writer
	events *csv.Writer
	cf, ef *os.File
}

func NewCSV(cyclesPath, eventsPath string) (*CSV, error) {
	cf, cw, err := openCSV(cyclesPath, cycleHeader)
	if err != nil {
		return nil, err
	}
	ef, ew, err := openCSV(eventsPath, eventHeader)
	if err != nil {
		_ = cf.Close()
		return nil, err
	}
	return &CSV{cycles: cw, events: ew, cf: cf, ef: ef}, nil
}

// openCSV opens path for append, writing the header only to a new file.
func openCSV(path string, header []string) (*os.File, *csv.Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	w := csv.NewWriter(f)
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, nil, err
		}
	}
	return f, w, nil
}

func (j *CSV) RecordCycle(c CycleRecord) error {
	return write(j.cycles, []string{
		c.CycleID,
		c.StartedAt.UTC().Format(time.RFC3339),
		strconv.FormatInt(c.Duration.Milliseconds(), 10),
		c.Mode,
		c.SuggestedMode,
		c.RecoveryMode,
		strconv.Itoa(c.OKTicks),
		strconv.Itoa(c.Quarantined),
		strconv.Itoa(c.Symbols),
		strconv.Itoa(c.Blocked),
		c.FailedStages,
		strconv.Itoa(c.PersistErrors),
	})
}

func (j *CSV) RecordModeChange(m ModeChange) error {
	return write(j.events, []string{m.CycleID, ts(m.TS), "mode_change", "", m.From, m.To, m.Reasons})
}

func (j *CSV) RecordQuarantineEvent(e QuarantineEvent) error {
	detail := "pnl_usd=" + f(e.PnLUSD) + " contribution_pct=" + f(e.ContributionPct) +
		" cooldown_until=" + ts(e.CooldownUntil)
	return write(j.events, []string{e.CycleID, ts(e.TS), "quarantine", e.Symbol, "", e.Action, detail})
}

func (j *CSV) RecordTransition(t Transition) error {
	return write(j.events, []string{t.CycleID, ts(t.TS), "earnback", t.Symbol, t.From, t.To, t.Reason})
}

func (j *CSV) Close() error {
	j.cycles.Flush()
	if err := j.cycles.Error(); err != nil {
		return err
	}
	j.events.Flush()
	if err := j.events.Error(); err != nil {
		return err
	}

	if err := j.cf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}

func write(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 2, 64)
}
