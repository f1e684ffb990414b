package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/riskgov/risk"
)

// maxRecordErrors bounds how many record errors are kept for diagnostics;
// all of them are still counted.
const maxRecordErrors = 20

// RecordError is a malformed close record. It is skipped, never fatal.
type RecordError struct {
	Line int
	Err  error
}

func (e RecordError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e RecordError) Unwrap() error { return e.Err }

// CloseEvent is one realized position close.
type CloseEvent struct {
	TS        time.Time `json:"ts"`
	Symbol    string    `json:"symbol"`
	Lane      risk.Lane `json:"lane"`
	PnLUSD    float64   `json:"pnl_usd"`
	Corrupted bool      `json:"corrupted,omitempty"`
}

// Valid reports a close usable for attribution and counting.
func (c CloseEvent) Valid() bool { return !c.Corrupted }

type rawClose struct {
	TS        time.Time `json:"ts"`
	Symbol    string    `json:"symbol"`
	Lane      string    `json:"lane"`
	PnLUSD    *float64  `json:"pnl_usd"`
	Corrupted bool      `json:"corrupted"`
}

func parseClose(line []byte) (CloseEvent, error) {
	var r rawClose
	if err := json.Unmarshal(line, &r); err != nil {
		return CloseEvent{}, err
	}
	if r.TS.IsZero() {
		return CloseEvent{}, errors.New("missing ts")
	}
	sym := strings.TrimSpace(r.Symbol)
	if sym == "" {
		return CloseEvent{}, errors.New("missing symbol")
	}
	if r.PnLUSD == nil {
		return CloseEvent{}, errors.New("missing pnl_usd")
	}
	lane, err := risk.ParseLane(r.Lane)
	if err != nil {
		return CloseEvent{}, err
	}
	return CloseEvent{
		TS:        r.TS.UTC(),
		Symbol:    sym,
		Lane:      lane,
		PnLUSD:    *r.PnLUSD,
		Corrupted: r.Corrupted,
	}, nil
}

// CloseLog is the parsed close-event log, ordered by time.
type CloseLog struct {
	Events  []CloseEvent
	Skipped int
	Errors  []RecordError
}

// LoadCloses reads a JSONL close log. Malformed lines are skipped and
// counted; a missing file yields StatusMissing with an empty log.
func LoadCloses(path string) Result[CloseLog] {
	res := Result[CloseLog]{Path: path}

	f, err := os.Open(path)
	if err != nil {
		res.Status = StatusMissing
		res.Err = fmt.Errorf("%w: %s: %v", ErrMissing, path, err)
		return res
	}
	defer f.Close()

	var log CloseLog
	err = EachLine(f, MaxLineBytes, func(n int, line []byte, lerr error) {
		ev, err := CloseEvent{}, lerr
		if err == nil {
			ev, err = parseClose(line)
		}
		if err != nil {
			log.Skipped++
			if len(log.Errors) < maxRecordErrors {
				log.Errors = append(log.Errors, RecordError{Line: n, Err: err})
			}
			return
		}
		log.Events = append(log.Events, ev)
	})
	if err != nil {
		res.Status = StatusUnparsable
		res.Err = fmt.Errorf("%w: %s: %v", ErrUnparsable, path, err)
		return res
	}

	sort.SliceStable(log.Events, func(i, j int) bool {
		return log.Events[i].TS.Before(log.Events[j].TS)
	})
	res.Value = log
	res.Status = StatusOK
	return res
}

// Between returns valid closes with from < ts <= to.
func (l CloseLog) Between(from, to time.Time) []CloseEvent {
	var out []CloseEvent
	for _, ev := range l.Events {
		if !ev.Valid() {
			continue
		}
		if ev.TS.After(from) && !ev.TS.After(to) {
			out = append(out, ev)
		}
	}
	return out
}

// ForSymbol returns valid closes of symbol with ts > since.
func (l CloseLog) ForSymbol(symbol string, since time.Time) []CloseEvent {
	var out []CloseEvent
	for _, ev := range l.Events {
		if ev.Valid() && ev.Symbol == symbol && ev.TS.After(since) {
			out = append(out, ev)
		}
	}
	return out
}

// Recent counts valid closes and losing closes in (now-window, now].
func (l CloseLog) Recent(now time.Time, window time.Duration) (clean, losses int) {
	for _, ev := range l.Between(now.Add(-window), now) {
		clean++
		if ev.PnLUSD < 0 {
			losses++
		}
	}
	return clean, losses
}

// PnLs extracts realized PnL values in order.
func PnLs(events []CloseEvent) []float64 {
	out := make([]float64, len(events))
	for i, ev := range events {
		out[i] = ev.PnLUSD
	}
	return out
}
