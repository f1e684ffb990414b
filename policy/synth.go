// Package policy merges the global mode, quarantine, recovery ramp,
// earn-back ladder and promotions into the final per-symbol lane policy.
package policy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/riskgov/earnback"
	"github.com/rustyeddy/riskgov/quarantine"
	"github.com/rustyeddy/riskgov/recovery"
	"github.com/rustyeddy/riskgov/risk"
	"github.com/rustyeddy/riskgov/snapshot"
)

type SampleStage string

const (
	StageSampleBuilding SampleStage = "sample_building"
	StageEvaluation     SampleStage = "evaluation"
	StageEligible       SampleStage = "eligible"
	StageQuarantined    SampleStage = "quarantined"
)

type State string

const (
	StateActive     State = "active"
	StateRestricted State = "restricted"
	StateBlocked    State = "blocked"
)

// Policy is the final decision for one symbol.
type Policy struct {
	Symbol           string            `json:"symbol"`
	State            State             `json:"state"`
	Stance           risk.Stance       `json:"stance"`
	SampleStage      SampleStage       `json:"sample_stage"`
	Quarantined      bool              `json:"quarantined"`
	PromotionActive  bool              `json:"promotion_active"`
	PromotionExpiry  *time.Time        `json:"promotion_expiry,omitempty"`
	AllowCore        bool              `json:"allow_core"`
	AllowExploration bool              `json:"allow_exploration"`
	AllowRecovery    bool              `json:"allow_recovery"`
	CapsByLane       risk.LaneCaps     `json:"caps_by_lane"`
	Weight           float64           `json:"weight"`
	Reasons          map[string]string `json:"reasons"`
	Violations       risk.Violations   `json:"violations,omitempty"`
}

// Violation codes recorded when a rule closes lanes.
const (
	CodeQuarantined   = "QUARANTINED"
	CodeCoreBelowEval = "CORE_PF_BELOW_EVAL"
	CodeEarnBackStage = "EARNBACK_STAGE"
	CodeStanceHalt    = "STANCE_HALT"
	CodeGlobalMode    = "GLOBAL_MODE"
	CodeRampClosed    = "RECOVERY_RAMP_CLOSED"
)

// deny closes lanes and records why.
func (p *Policy) deny(code, msg string, lanes ...risk.Lane) {
	for _, l := range lanes {
		switch l {
		case risk.LaneCore:
			p.AllowCore = false
		case risk.LaneExploration:
			p.AllowExploration = false
		case risk.LaneRecovery:
			p.AllowRecovery = false
		}
	}
	p.Violations.Add(code, msg, lanes...)
}

// Allows reports whether new entries may open on lane.
func (p Policy) Allows(l risk.Lane) bool {
	switch l {
	case risk.LaneCore:
		return p.AllowCore
	case risk.LaneExploration:
		return p.AllowExploration
	case risk.LaneRecovery:
		return p.AllowRecovery
	}
	return false
}

// Document is the policy file read by the trading loop.
type Document struct {
	GeneratedAt time.Time         `json:"generated_at"`
	GlobalMode  risk.Mode         `json:"global_mode"`
	Symbols     map[string]Policy `json:"symbols"`
}

func (d Document) Generated() time.Time { return d.GeneratedAt }

// Lookup finds a symbol's policy as given, falling back to a
// case-insensitive match.
func (d Document) Lookup(symbol string) (Policy, bool) {
	if p, ok := d.Symbols[symbol]; ok {
		return p, true
	}
	for _, sym := range snapshot.SortedKeys(d.Symbols) {
		if strings.EqualFold(sym, symbol) {
			return d.Symbols[sym], true
		}
	}
	return Policy{}, false
}

// Counts tallies policies by state.
func (d Document) Counts() map[State]int {
	out := map[State]int{StateActive: 0, StateRestricted: 0, StateBlocked: 0}
	for _, p := range d.Symbols {
		out[p.State]++
	}
	return out
}

// Inputs are the upstream states for one synthesis.
type Inputs struct {
	Mode       risk.Mode
	Quarantine quarantine.State
	Ramp       recovery.State
	EarnBack   earnback.Document
	Stats      snapshot.PFTimeSeries
	Drift      snapshot.Drift
	Promotions snapshot.Promotions
	Portfolio  snapshot.Portfolio
}

// Universe is every symbol any input knows about, sorted.
func (in Inputs) Universe() []string {
	set := map[string]struct{}{}
	for s := range in.Portfolio.Symbols {
		set[s] = struct{}{}
	}
	for s := range in.Stats.Symbols {
		set[s] = struct{}{}
	}
	for s := range in.Promotions.Symbols {
		set[s] = struct{}{}
	}
	for s := range in.EarnBack.Symbols {
		set[s] = struct{}{}
	}
	for _, r := range in.Quarantine.Records {
		set[r.Symbol] = struct{}{}
	}
	return snapshot.SortedKeys(set)
}

type Synthesizer struct {
	cfg     Config
	riskOff risk.ModeSet
	log     zerolog.Logger
}

func New(cfg Config, riskOff risk.ModeSet, log zerolog.Logger) *Synthesizer {
	return &Synthesizer{cfg: cfg, riskOff: riskOff, log: log.With().Str("stage", "policy").Logger()}
}

// Synthesize builds the policy document for every symbol in the universe.
func (s *Synthesizer) Synthesize(in Inputs, now time.Time) Document {
	doc := Document{GeneratedAt: now, GlobalMode: in.Mode, Symbols: map[string]Policy{}}
	weights := in.Quarantine.ApplyWeightOverlay(in.Portfolio.Weights())
	for _, sym := range in.Universe() {
		p := s.Decide(sym, in, now)
		p.Weight = weights[sym]
		doc.Symbols[sym] = p
	}
	counts := doc.Counts()
	s.log.Info().Str("mode", string(in.Mode)).Int("symbols", len(doc.Symbols)).
		Int("active", counts[StateActive]).Int("restricted", counts[StateRestricted]).
		Int("blocked", counts[StateBlocked]).Msg("policy synthesized")
	return doc
}

// Decide applies the precedence chain to one symbol. Quarantine is final;
// nothing after it can reopen a lane.
func (s *Synthesizer) Decide(symbol string, in Inputs, now time.Time) Policy {
	c := s.cfg
	stats := in.Stats.Symbols[symbol]
	stance, stanceWhy := c.Stance.DeriveStance(stats, in.Drift.Class(symbol))

	p := Policy{
		Symbol:  symbol,
		Stance:  stance,
		Reasons: map[string]string{"stance": fmt.Sprintf("%s: %s", stance, stanceWhy)},
	}

	promo, hasPromo := in.Promotions.Symbols[symbol]
	if hasPromo && promo.Active(now) {
		p.PromotionActive = true
		exp := promo.ExpiresAt.UTC()
		p.PromotionExpiry = &exp
	}

	if rec, ok := in.Quarantine.Record(symbol); ok {
		p.Quarantined = true
		p.SampleStage = StageQuarantined
		p.Reasons["quarantine"] = fmt.Sprintf("%s until %s", rec.Reason, rec.CooldownUntil.Format(time.RFC3339))
		p.deny(CodeQuarantined, p.Reasons["quarantine"], risk.Lanes()...)
		p.finish()
		return p
	}

	caps := c.BaseCaps
	explMult := 1.0
	stanceHalt := false
	eb := in.EarnBack.Lookup(symbol)

	switch {
	case stats.TradesTotal < c.EvalMinTrades:
		p.SampleStage = StageSampleBuilding
		p.AllowCore, p.AllowExploration = true, true
		p.Reasons["sample"] = fmt.Sprintf("trades_total=%d<%d", stats.TradesTotal, c.EvalMinTrades)
	case stats.TradesTotal < c.EligibleMinTrades:
		p.SampleStage = StageEvaluation
		p.AllowCore, p.AllowExploration = true, true
		p.Reasons["evaluation"] = fmt.Sprintf("pf_30d=%.2f core_min=%.2f", stats.PF30D, c.EvalCorePF30D)
		if stats.PF30D < c.EvalCorePF30D {
			p.deny(CodeCoreBelowEval, p.Reasons["evaluation"], risk.LaneCore)
		}
	default:
		p.SampleStage = StageEligible
		p.AllowCore, p.AllowExploration = true, true
		explMult = eb.ExplorationRiskMult
		if eb.RecoveryStage != earnback.StageNone {
			p.Reasons["earnback"] = fmt.Sprintf("stage=%s n=%d pf=%.2f", eb.RecoveryStage, eb.Window.N, eb.Window.PF)
		}
		var closed []risk.Lane
		if !eb.AllowCore {
			closed = append(closed, risk.LaneCore)
		}
		if !eb.AllowExploration {
			closed = append(closed, risk.LaneExploration)
		}
		if len(closed) > 0 {
			p.deny(CodeEarnBackStage, fmt.Sprintf("earn-back stage %s", eb.RecoveryStage), closed...)
		}
		if stance == risk.StanceHalt {
			stanceHalt = true
			p.deny(CodeStanceHalt, stanceWhy, risk.Lanes()...)
		}
	}

	switch in.Mode {
	case risk.ModeHaltNewEntries:
		p.Reasons["global_mode"] = "halt_new_entries blocks core and exploration"
		p.deny(CodeGlobalMode, p.Reasons["global_mode"], risk.LaneCore, risk.LaneExploration)
	case risk.ModeReview:
		p.Reasons["global_mode"] = "review blocks core and exploration until the sample rebuilds"
		p.deny(CodeGlobalMode, p.Reasons["global_mode"], risk.LaneCore, risk.LaneExploration)
	}

	fromRamp := false
	switch {
	case stanceHalt:
		p.AllowRecovery = false
	case s.riskOff.Contains(in.Mode):
		p.AllowRecovery = in.Ramp.Allowances.Allows(symbol)
		if p.AllowRecovery {
			fromRamp = true
			caps.Recovery = caps.Recovery.Min(in.Ramp.Allowances.Caps())
			p.Reasons["recovery"] = fmt.Sprintf("ramp %s", in.Ramp.RecoveryMode)
		} else {
			p.Reasons["recovery"] = fmt.Sprintf("ramp %s, symbol not allowed", in.Ramp.RecoveryMode)
			p.deny(CodeRampClosed, p.Reasons["recovery"], risk.LaneRecovery)
		}
	default:
		p.AllowRecovery = eb.RecoveryStage.InProgress() && eb.AllowRecovery
		if p.AllowRecovery {
			p.Reasons["recovery"] = fmt.Sprintf("earnback %s", eb.RecoveryStage)
		}
	}

	if p.PromotionActive && stance != risk.StanceHalt {
		p.AllowCore = true
		p.Violations = p.Violations.Lift(risk.LaneCore)
		caps.Core = caps.Core.Min(promotionCaps(promo, caps.Core))
		p.Reasons["promotion"] = fmt.Sprintf("until %s", p.PromotionExpiry.Format(time.RFC3339))
	}

	caps.Exploration.RiskMultCap = round4(caps.Exploration.RiskMultCap * explMult)

	if f, ok := c.Tightening[in.Mode]; ok {
		for _, l := range risk.Lanes() {
			if l == risk.LaneRecovery && fromRamp {
				continue
			}
			caps.Set(l, caps.Get(l).Scale(f.Risk, f.Positions))
		}
		caps = caps.Min(c.BaseCaps)
		p.Reasons["tightening"] = fmt.Sprintf("%s risk x%.2f positions x%.2f", in.Mode, f.Risk, f.Positions)
	}

	if p.AllowExploration {
		floor := math.Min(c.ExplorationFloor, c.BaseCaps.Exploration.RiskMultCap)
		if caps.Exploration.RiskMultCap < floor {
			p.Reasons["exploration_floor"] = fmt.Sprintf("risk_mult_cap %.4f raised to %.2f", caps.Exploration.RiskMultCap, floor)
			caps.Exploration.RiskMultCap = floor
		}
	}

	p.CapsByLane = caps
	p.finish()
	return p
}

// promotionCaps returns the promotion's caps, leaving unset fields at base.
func promotionCaps(p snapshot.Promotion, base risk.Caps) risk.Caps {
	out := base
	if p.RiskMultCap > 0 {
		out.RiskMultCap = p.RiskMultCap
	}
	if p.MaxPositions > 0 {
		out.MaxPositions = p.MaxPositions
	}
	return out
}

// finish zeroes caps on disallowed lanes and derives the state.
func (p *Policy) finish() {
	for _, l := range risk.Lanes() {
		if !p.Allows(l) {
			p.CapsByLane.Set(l, risk.Caps{})
		}
	}
	switch {
	case p.AllowCore && p.AllowExploration:
		p.State = StateActive
	case p.AllowCore || p.AllowExploration || p.AllowRecovery:
		p.State = StateRestricted
	default:
		p.State = StateBlocked
	}
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
