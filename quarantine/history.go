package quarantine

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/rustyeddy/riskgov/internal/store"
	"github.com/rustyeddy/riskgov/snapshot"
)

type Action string

const (
	ActionEnter Action = "enter"
	ActionRenew Action = "renew"
	ActionExit  Action = "exit"
)

// Event is one line of the append-only quarantine history.
type Event struct {
	TS              time.Time `json:"ts"`
	Symbol          string    `json:"symbol"`
	Action          Action    `json:"action"`
	Reason          string    `json:"reason,omitempty"`
	PnLUSD          float64   `json:"pnl_usd"`
	ContributionPct float64   `json:"contribution_pct"`
	CooldownUntil   time.Time `json:"cooldown_until"`
}

// History is the JSONL file backing quarantine lock-in.
type History struct {
	Path string
}

// Load returns all well-formed events in file order. Malformed lines are
// skipped and counted. A missing file is an empty history.
func (h History) Load() ([]Event, int, error) {
	f, err := os.Open(h.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var (
		events  []Event
		skipped int
	)
	err = snapshot.EachLine(f, snapshot.MaxLineBytes, func(_ int, line []byte, lerr error) {
		var ev Event
		if lerr != nil || json.Unmarshal(line, &ev) != nil || ev.Symbol == "" {
			skipped++
			return
		}
		switch ev.Action {
		case ActionEnter, ActionRenew, ActionExit:
			events = append(events, ev)
		default:
			skipped++
		}
	})
	return events, skipped, err
}

func (h History) Append(events ...Event) error {
	return store.AppendJSONL(h.Path, events...)
}

// latest returns the most recent event per symbol.
func latest(events []Event) map[string]Event {
	out := make(map[string]Event)
	for _, ev := range events {
		prev, ok := out[ev.Symbol]
		if !ok || !ev.TS.Before(prev.TS) {
			out[ev.Symbol] = ev
		}
	}
	return out
}
