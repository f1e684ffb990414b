// Package globalmode derives the single global risk mode from rolling
// profit-factor, sample-size and loss-streak signals.
package globalmode

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/riskgov/risk"
	"github.com/rustyeddy/riskgov/snapshot"
)

// Inputs are the signals consumed by one derivation.
type Inputs struct {
	Windows              snapshot.PFWindows
	SanityRecommendation string
	CleanCloses24h       int
}

// Memory is the persisted cross-cycle record. It is only rewritten when a
// mode change is actually applied.
type Memory struct {
	Mode             risk.Mode `json:"mode"`
	LastModeChangeTS time.Time `json:"last_mode_change_ts"`
}

// State is the per-cycle global risk document.
type State struct {
	Mode             risk.Mode `json:"mode"`
	SuggestedMode    risk.Mode `json:"suggested_mode"`
	PF1D             float64   `json:"pf_1d"`
	PF7D             float64   `json:"pf_7d"`
	PF30D            float64   `json:"pf_30d"`
	PF90D            float64   `json:"pf_90d"`
	PFMTD            float64   `json:"pf_mtd"`
	Trades7D         int       `json:"trades_7d"`
	Trades30D        int       `json:"trades_30d"`
	LossStreak       int       `json:"loss_streak"`
	CleanCloses24h   int       `json:"clean_closes_24h"`
	Reasons          []string  `json:"reasons"`
	LastModeChangeTS time.Time `json:"last_mode_change_ts"`
	Changed          bool      `json:"changed"`
	Pinned           bool      `json:"pinned"`
	GeneratedAt      time.Time `json:"generated_at"`
}

func (s State) Generated() time.Time { return s.GeneratedAt }

type Deriver struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Deriver {
	return &Deriver{cfg: cfg, log: log.With().Str("stage", "global_mode").Logger()}
}

// Suggest runs the signal part of the decision: sample check, PF ladder,
// sanity escalation and the hard loss-streak override. It ignores cooldown
// and the operator pin.
func (d *Deriver) Suggest(in Inputs) (mode risk.Mode, reasons []string, hard bool) {
	w := in.Windows
	c := d.cfg

	switch {
	case w.Trades7D < c.MinTrades7D || w.Trades30D < c.MinTrades30D:
		reasons = append(reasons, fmt.Sprintf("insufficient_sample: trades_7d=%d/%d trades_30d=%d/%d",
			w.Trades7D, c.MinTrades7D, w.Trades30D, c.MinTrades30D))
		mode = risk.ModeReview
		if c.CleanCloseOverride > 0 && in.CleanCloses24h >= c.CleanCloseOverride {
			mode = risk.ModeDeRisk
			reasons = append(reasons, fmt.Sprintf("clean_close_override: clean_closes_24h=%d>=%d",
				in.CleanCloses24h, c.CleanCloseOverride))
		}
	case w.PF7D < c.HaltPF7D:
		mode = risk.ModeHaltNewEntries
		reasons = append(reasons, fmt.Sprintf("pf_7d=%.4f<%.2f", w.PF7D, c.HaltPF7D))
	case w.PF7D < c.DeRiskPF7D:
		mode = risk.ModeDeRisk
		reasons = append(reasons, fmt.Sprintf("pf_7d=%.4f<%.2f", w.PF7D, c.DeRiskPF7D))
	case w.PF30D >= c.HarvestPF30D && w.PF7D >= c.HarvestPF7D:
		mode = risk.ModeHarvest
		reasons = append(reasons, fmt.Sprintf("harvest: pf_30d=%.4f pf_7d=%.4f", w.PF30D, w.PF7D))
	default:
		mode = risk.ModeNormal
	}

	if in.SanityRecommendation != "" {
		rec, err := risk.ParseMode(in.SanityRecommendation)
		switch {
		case err != nil:
			reasons = append(reasons, fmt.Sprintf("sanity_recommendation_ignored: %q", in.SanityRecommendation))
		case rec.Severity() > mode.Severity():
			reasons = append(reasons, fmt.Sprintf("sanity_escalation: %s->%s", mode, rec))
			mode = rec
		}
	}

	if w.LossStreak >= c.HardLossStreak {
		hard = true
		mode = risk.ModeHaltNewEntries
		reasons = append(reasons, fmt.Sprintf("hard_override: loss_streak=%d>=%d", w.LossStreak, c.HardLossStreak))
	}
	return mode, reasons, hard
}

// Derive produces the cycle's global state. The returned Memory is non-nil
// only when a mode change was applied and must be persisted.
func (d *Deriver) Derive(in Inputs, mem *Memory, now time.Time) (State, *Memory) {
	suggested, reasons, hard := d.Suggest(in)
	w := in.Windows

	st := State{
		SuggestedMode:  suggested,
		PF1D:           w.PF1D,
		PF7D:           w.PF7D,
		PF30D:          w.PF30D,
		PF90D:          w.PF90D,
		PFMTD:          w.PFMTD,
		Trades7D:       w.Trades7D,
		Trades30D:      w.Trades30D,
		LossStreak:     w.LossStreak,
		CleanCloses24h: in.CleanCloses24h,
		GeneratedAt:    now,
	}

	var next *Memory
	switch {
	case mem == nil || !mem.Mode.Valid():
		st.Mode = suggested
		st.LastModeChangeTS = now
		st.Changed = true
		next = &Memory{Mode: suggested, LastModeChangeTS: now}
		reasons = append(reasons, "initialized")
	case suggested == mem.Mode:
		st.Mode = mem.Mode
		st.LastModeChangeTS = mem.LastModeChangeTS
	case hard:
		st.Mode = suggested
		st.LastModeChangeTS = now
		st.Changed = true
		next = &Memory{Mode: suggested, LastModeChangeTS: now}
	default:
		elapsed := now.Sub(mem.LastModeChangeTS)
		if elapsed < d.cfg.Cooldown.Duration {
			st.Mode = mem.Mode
			st.LastModeChangeTS = mem.LastModeChangeTS
			remaining := d.cfg.Cooldown.Duration - elapsed
			reasons = append(reasons, fmt.Sprintf("cooldown_hold: suggested=%s remaining=%s", suggested, remaining.Round(time.Second)))
			d.log.Info().Str("mode", string(mem.Mode)).Str("suggested", string(suggested)).
				Dur("remaining", remaining).Msg("mode change held by cooldown")
		} else {
			st.Mode = suggested
			st.LastModeChangeTS = now
			st.Changed = true
			next = &Memory{Mode: suggested, LastModeChangeTS: now}
		}
	}

	if st.Changed && mem != nil {
		d.log.Warn().Str("from", string(mem.Mode)).Str("to", string(st.Mode)).Bool("hard", hard).Msg("global mode change applied")
	}

	if d.cfg.PinnedMode != "" {
		pinned, err := risk.ParseMode(d.cfg.PinnedMode)
		if err == nil {
			st.Pinned = true
			if hard {
				reasons = append(reasons, fmt.Sprintf("pin_overridden: pinned=%s", pinned))
			} else {
				reasons = append(reasons, fmt.Sprintf("pinned: mode=%s suggested=%s", pinned, suggested))
				st.Mode = pinned
				st.Changed = false
				next = nil
				if mem != nil {
					st.LastModeChangeTS = mem.LastModeChangeTS
				}
			}
		}
	}

	if reasons == nil {
		reasons = []string{}
	}
	st.Reasons = reasons
	return st, next
}
