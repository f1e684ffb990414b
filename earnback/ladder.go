// Package earnback tracks the per-symbol reinstatement ladder that follows
// an individual demotion: sampling, proving, recovered.
package earnback

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/riskgov/risk"
	"github.com/rustyeddy/riskgov/snapshot"
)

type Stage string

const (
	StageNone      Stage = "none"
	StageSampling  Stage = "sampling"
	StageProving   Stage = "proving"
	StageRecovered Stage = "recovered"
)

// Index orders stages along the ladder. Unknown stages sit at the bottom.
func (s Stage) Index() int {
	switch s {
	case StageSampling:
		return 1
	case StageProving:
		return 2
	case StageRecovered:
		return 3
	}
	return 0
}

// InProgress reports a stage that still restricts the symbol.
func (s Stage) InProgress() bool { return s == StageSampling || s == StageProving }

// State is one symbol's earn-back record.
type State struct {
	Symbol              string     `json:"symbol"`
	RecoveryStage       Stage      `json:"recovery_stage"`
	DemotedAt           time.Time  `json:"demoted_at"`
	DemotionReason      string     `json:"demotion_reason,omitempty"`
	AllowCore           bool       `json:"allow_core"`
	AllowExploration    bool       `json:"allow_exploration"`
	AllowRecovery       bool       `json:"allow_recovery"`
	ExplorationRiskMult float64    `json:"exploration_risk_mult"`
	Window              risk.Stats `json:"earnback_window"`
	Amnesty             bool       `json:"amnesty"`
	RejectedTransition  string     `json:"rejected_transition,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Document is the persisted earn-back state for every tracked symbol.
type Document struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Symbols     map[string]State `json:"symbols"`
}

func (d Document) Generated() time.Time { return d.GeneratedAt }

// Lookup returns the symbol's state, or an unrestricted none state.
func (d Document) Lookup(symbol string) State {
	if st, ok := d.Symbols[symbol]; ok {
		return st
	}
	return State{Symbol: symbol, RecoveryStage: StageNone, AllowCore: true, AllowExploration: true,
		AllowRecovery: true, ExplorationRiskMult: 1}
}

// Transition is an applied stage change.
type Transition struct {
	TS     time.Time `json:"ts"`
	Symbol string    `json:"symbol"`
	From   Stage     `json:"from"`
	To     Stage     `json:"to"`
	Reason string    `json:"reason"`
}

type Ladder struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Ladder {
	return &Ladder{cfg: cfg, log: log.With().Str("stage", "earnback").Logger()}
}

// Candidate computes the stage the window supports, ignoring history.
func (l *Ladder) Candidate(demotedAt time.Time, w risk.Stats, now time.Time) (Stage, bool, string) {
	c := l.cfg
	if now.Sub(demotedAt) > c.MaxAge.Duration {
		return StageRecovered, true, fmt.Sprintf("amnesty: demoted %s ago", now.Sub(demotedAt).Round(time.Minute))
	}
	switch {
	case w.N >= c.Stage2Closes && c.Recovered.Met(w):
		return StageRecovered, false, fmt.Sprintf("n=%d pf=%.2f win=%.2f dd=%.2f cleared recovered", w.N, w.PF, w.WinRate, w.MaxDrawdown)
	case w.N >= c.Stage1Closes:
		return StageProving, false, fmt.Sprintf("n=%d>=%d", w.N, c.Stage1Closes)
	}
	return StageSampling, false, fmt.Sprintf("n=%d<%d", w.N, c.Stage1Closes)
}

// Step advances one symbol. demotion is nil when the symbol is absent from
// the demotion feed; prev is nil when nothing is stored. The boolean result
// is false when the symbol has no earn-back state left to keep.
func (l *Ladder) Step(symbol string, demotion *snapshot.Demotion, prev *State, closes snapshot.CloseLog, now time.Time) (State, *Transition, bool) {
	var (
		demotedAt time.Time
		reason    string
		fresh     bool
	)
	switch {
	case demotion == nil && prev == nil:
		return State{}, nil, false
	case demotion == nil:
		if prev.RecoveryStage == StageRecovered {
			l.log.Info().Str("symbol", symbol).Msg("earn-back complete, state reset")
			return State{}, &Transition{TS: now, Symbol: symbol, From: StageRecovered, To: StageNone,
				Reason: "demotion cleared"}, false
		}
		demotedAt, reason = prev.DemotedAt, prev.DemotionReason
	default:
		demotedAt, reason = demotion.DemotedAt.UTC(), demotion.Reason
		fresh = prev == nil || demotedAt.After(prev.DemotedAt)
	}

	window := risk.Summarize(snapshot.PnLs(closes.ForSymbol(symbol, demotedAt)))
	cand, amnesty, why := l.Candidate(demotedAt, window, now)

	st := State{
		Symbol:         symbol,
		DemotedAt:      demotedAt,
		DemotionReason: reason,
		Window:         window,
		Amnesty:        amnesty,
		UpdatedAt:      now,
	}

	from := StageNone
	if prev != nil {
		from = prev.RecoveryStage
	}

	switch {
	case fresh:
		// a new demotion enters at sampling; the next cycle climbs from there
		st.RecoveryStage = StageSampling
		if amnesty {
			st.RecoveryStage = cand
		}
		if prev != nil {
			l.log.Warn().Str("symbol", symbol).Time("demoted_at", demotedAt).
				Str("from", string(from)).Msg("fresh demotion, ladder reset")
		}
	case cand.Index() >= from.Index():
		st.RecoveryStage = cand
	default:
		st.RecoveryStage = from
		st.Amnesty = prev.Amnesty
		st.RejectedTransition = fmt.Sprintf("%s->%s", from, cand)
		l.log.Warn().Str("symbol", symbol).Str("from", string(from)).Str("to", string(cand)).
			Msg("earn-back regression rejected")
	}
	l.permit(&st)

	var tr *Transition
	if fresh || st.RecoveryStage != from {
		tr = &Transition{TS: now, Symbol: symbol, From: from, To: st.RecoveryStage, Reason: why}
		if fresh {
			tr.Reason = "demotion: " + reason
		}
	}
	return st, tr, true
}

// permit sets lane permissions for the state's stage.
func (l *Ladder) permit(st *State) {
	st.ExplorationRiskMult = 1
	st.AllowRecovery = true
	switch st.RecoveryStage {
	case StageSampling:
		st.AllowCore = false
		st.AllowExploration = true
		st.ExplorationRiskMult = l.cfg.ExplorationRiskMult
	case StageProving:
		st.AllowCore = l.cfg.Proving.Met(st.Window)
		st.AllowExploration = true
	default:
		st.AllowCore = true
		st.AllowExploration = true
	}
}

// Evaluate steps every symbol in the demotion feed or in the previous
// document and returns the new document with the transitions it applied.
func (l *Ladder) Evaluate(demotions snapshot.Demotions, prev Document, closes snapshot.CloseLog, now time.Time) (Document, []Transition) {
	doc := Document{GeneratedAt: now, Symbols: map[string]State{}}

	symbols := map[string]struct{}{}
	for s := range demotions.Symbols {
		symbols[s] = struct{}{}
	}
	for s := range prev.Symbols {
		symbols[s] = struct{}{}
	}

	var transitions []Transition
	for _, sym := range snapshot.SortedKeys(symbols) {
		var (
			dem *snapshot.Demotion
			old *State
		)
		if d, ok := demotions.Symbols[sym]; ok {
			dem = &d
		}
		if p, ok := prev.Symbols[sym]; ok {
			old = &p
		}
		st, tr, keep := l.Step(sym, dem, old, closes, now)
		if tr != nil {
			transitions = append(transitions, *tr)
			l.log.Info().Str("symbol", sym).Str("from", string(tr.From)).Str("to", string(tr.To)).
				Str("reason", tr.Reason).Msg("earn-back transition")
		}
		if keep {
			doc.Symbols[sym] = st
		}
	}
	return doc, transitions
}
