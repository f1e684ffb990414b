// Package quarantine isolates the symbols contributing most to aggregate
// losses while the global mode is risk-off. Quarantine blocks new entries
// only; exits and closes are never restricted.
package quarantine

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/riskgov/risk"
	"github.com/rustyeddy/riskgov/snapshot"
)

// ExitPolicyUnrestricted is the only exit policy quarantine ever applies.
const ExitPolicyUnrestricted = "unrestricted"

// Record is an active quarantine.
type Record struct {
	Symbol          string    `json:"symbol"`
	Reason          string    `json:"reason"`
	PnLUSD          float64   `json:"pnl_usd"`
	ContributionPct float64   `json:"contribution_pct"`
	QuarantinedAt   time.Time `json:"quarantined_at"`
	CooldownUntil   time.Time `json:"cooldown_until"`
}

type WeightAdjustment struct {
	Multiplier float64 `json:"multiplier"`
	Floor      float64 `json:"floor"`
}

// State is the quarantine document.
type State struct {
	Enabled           bool                        `json:"enabled"`
	Mode              risk.Mode                   `json:"mode"`
	BlockedSymbols    []string                    `json:"blocked_symbols"`
	WeightAdjustments map[string]WeightAdjustment `json:"weight_adjustments"`
	Records           []Record                    `json:"records"`
	Contributors      []Contribution              `json:"contributors"`
	ExitPolicy        string                      `json:"exit_policy"`
	WindowLossUSD     float64                     `json:"window_loss_usd"`
	SkippedRecords    int                         `json:"skipped_records"`
	GeneratedAt       time.Time                   `json:"generated_at"`
}

func (s State) Generated() time.Time { return s.GeneratedAt }

// Empty returns a state with no quarantines.
func Empty(now time.Time) State {
	return State{
		BlockedSymbols:    []string{},
		WeightAdjustments: map[string]WeightAdjustment{},
		Records:           []Record{},
		Contributors:      []Contribution{},
		ExitPolicy:        ExitPolicyUnrestricted,
		GeneratedAt:       now,
	}
}

func (s State) Record(symbol string) (Record, bool) {
	for _, r := range s.Records {
		if r.Symbol == symbol {
			return r, true
		}
	}
	return Record{}, false
}

// BlocksEntry reports whether new entries on symbol are blocked.
func (s State) BlocksEntry(symbol string) bool {
	_, ok := s.Record(symbol)
	return ok
}

// AllowsExit is always true: quarantine never restricts closing a position.
func (s State) AllowsExit(string) bool { return true }

// HasContributor reports an active quarantine with at least one record.
func (s State) HasContributor() bool { return s.Enabled && len(s.Records) > 0 }

// ApplyWeightOverlay returns a copy of weights with quarantined symbols
// capped. A weight is never raised and never pushed below the floor.
func (s State) ApplyWeightOverlay(weights map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for sym, pre := range weights {
		adj, ok := s.WeightAdjustments[sym]
		if !ok {
			out[sym] = pre
			continue
		}
		out[sym] = adj.apply(pre)
	}
	return out
}

func (a WeightAdjustment) apply(pre float64) float64 {
	post := pre * a.Multiplier
	if post < a.Floor {
		post = a.Floor
	}
	if post > pre {
		post = pre
	}
	return post
}

type Engine struct {
	cfg     Config
	riskOff risk.ModeSet
	log     zerolog.Logger
}

func New(cfg Config, riskOff risk.ModeSet, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, riskOff: riskOff, log: log.With().Str("stage", "quarantine").Logger()}
}

// Evaluate computes the quarantine state for this cycle and returns the
// history events it produced. Symbols already in history stay locked until
// their cooldown elapses, whether or not they still qualify.
func (e *Engine) Evaluate(mode risk.Mode, closes snapshot.CloseLog, history []Event, now time.Time) (State, []Event) {
	st := Empty(now)
	st.Mode = mode
	st.Enabled = e.riskOff.Contains(mode)
	st.SkippedRecords = closes.Skipped

	window := closes.Between(now.Add(-e.cfg.Window.Duration), now)
	ranked, total := Attribute(window)
	st.WindowLossUSD = total
	if ranked != nil {
		st.Contributors = ranked
	}

	qualifying := map[string]Contribution{}
	if st.Enabled {
		for _, c := range e.cfg.Candidates(ranked) {
			qualifying[c.Symbol] = c
		}
	}

	var (
		events []Event
		active = map[string]Event{}
	)

	last := latest(history)
	for _, sym := range snapshot.SortedKeys(last) {
		ev := last[sym]
		if ev.Action == ActionExit {
			continue
		}
		if ev.CooldownUntil.After(now) {
			active[sym] = ev
			continue
		}
		if c, ok := qualifying[sym]; ok {
			renew := e.event(ActionRenew, c, now)
			events = append(events, renew)
			active[sym] = renew
			e.log.Warn().Str("symbol", sym).Float64("contribution_pct", c.ContributionPct).
				Time("cooldown_until", renew.CooldownUntil).Msg("quarantine renewed")
			continue
		}
		events = append(events, Event{
			TS:            now,
			Symbol:        sym,
			Action:        ActionExit,
			Reason:        "cooldown elapsed",
			CooldownUntil: ev.CooldownUntil,
		})
		e.log.Info().Str("symbol", sym).Msg("quarantine released")
	}

	for _, sym := range snapshot.SortedKeys(qualifying) {
		if _, ok := active[sym]; ok {
			continue
		}
		c := qualifying[sym]
		enter := e.event(ActionEnter, c, now)
		events = append(events, enter)
		active[sym] = enter
		e.log.Warn().Str("symbol", sym).Float64("pnl_usd", c.PnLUSD).
			Float64("contribution_pct", c.ContributionPct).Msg("symbol quarantined")
	}

	for _, sym := range snapshot.SortedKeys(active) {
		ev := active[sym]
		st.Records = append(st.Records, Record{
			Symbol:          sym,
			Reason:          ev.Reason,
			PnLUSD:          ev.PnLUSD,
			ContributionPct: ev.ContributionPct,
			QuarantinedAt:   ev.TS,
			CooldownUntil:   ev.CooldownUntil,
		})
		st.BlockedSymbols = append(st.BlockedSymbols, sym)
		st.WeightAdjustments[sym] = WeightAdjustment{
			Multiplier: e.cfg.WeightMultiplier,
			Floor:      e.cfg.WeightFloor,
		}
	}
	sort.Strings(st.BlockedSymbols)
	return st, events
}

func (e *Engine) event(action Action, c Contribution, now time.Time) Event {
	return Event{
		TS:              now,
		Symbol:          c.Symbol,
		Action:          action,
		Reason:          fmt.Sprintf("loss_contributor: %.2f%% of window losses", c.ContributionPct),
		PnLUSD:          c.PnLUSD,
		ContributionPct: c.ContributionPct,
		CooldownUntil:   now.Add(e.cfg.Cooldown.Duration),
	}
}
