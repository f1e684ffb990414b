// Package recovery implements the hysteresis-gated recovery ramp: a small
// trading lane that may reopen while the global mode is still risk-off.
package recovery

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/riskgov/quarantine"
	"github.com/rustyeddy/riskgov/risk"
	"github.com/rustyeddy/riskgov/snapshot"
)

type Gate string

const (
	GateDataFresh             Gate = "data_fresh"
	GatePFFloor               Gate = "pf_floor"
	GatePFSlope               Gate = "pf_slope"
	GateCleanCloses           Gate = "clean_closes"
	GateLossCloses            Gate = "loss_closes"
	GateQuarantineConsistency Gate = "quarantine_consistency"
)

// Gates returns every gate in evaluation order. data_fresh is first and hard.
func Gates() []Gate {
	return []Gate{GateDataFresh, GatePFFloor, GatePFSlope, GateCleanCloses, GateLossCloses, GateQuarantineConsistency}
}

type Mode string

const (
	ModeOff            Mode = "OFF"
	ModeRamping        Mode = "RAMPING"
	ModeReadyForDeRisk Mode = "READY_FOR_DE_RISK"
	ModeReadyForNormal Mode = "READY_FOR_NORMAL"
)

// Actionable reports a mode that exposes the recovery lane.
func (m Mode) Actionable() bool { return m != ModeOff && m != "" }

type Hysteresis struct {
	OKTicks       int `json:"ok_ticks"`
	NeededOKTicks int `json:"needed_ok_ticks"`
}

type Allowances struct {
	AllowRecoveryTrading bool     `json:"allow_recovery_trading"`
	AllowedSymbols       []string `json:"allowed_symbols"`
	MaxPositions         int      `json:"max_positions"`
	RiskMultCap          float64  `json:"risk_mult_cap"`
}

// Allows reports whether symbol may trade the recovery lane.
func (a Allowances) Allows(symbol string) bool {
	if !a.AllowRecoveryTrading {
		return false
	}
	return slices.Contains(a.AllowedSymbols, symbol)
}

func (a Allowances) Caps() risk.Caps {
	return risk.Caps{RiskMultCap: a.RiskMultCap, MaxPositions: a.MaxPositions}
}

func closed() Allowances {
	return Allowances{AllowedSymbols: []string{}}
}

// State is the recovery ramp document. OKTicks is the only value carried
// from one cycle to the next.
type State struct {
	CapitalMode        risk.Mode       `json:"capital_mode"`
	RecoveryMode       Mode            `json:"recovery_mode"`
	RecoveryScore      float64         `json:"recovery_score"`
	Gates              map[Gate]bool   `json:"gates"`
	GateDetails        map[Gate]string `json:"gate_details"`
	Hysteresis         Hysteresis      `json:"hysteresis"`
	Allowances         Allowances      `json:"allowances"`
	PF7D               float64         `json:"pf_7d"`
	PF30D              float64         `json:"pf_30d"`
	PFSlope            float64         `json:"pf_slope"`
	CleanCloses24h     int             `json:"clean_closes_24h"`
	LossCloses24h      int             `json:"loss_closes_24h"`
	SnapshotAgeSeconds float64         `json:"snapshot_age_seconds"`
	GeneratedAt        time.Time       `json:"generated_at"`
}

func (s State) Generated() time.Time { return s.GeneratedAt }

// Disabled returns a copy of s with the recovery lane closed. The counter is
// kept so a failed cycle does not erase progress it cannot see.
func (s State) Disabled() State {
	s.RecoveryMode = ModeOff
	s.Allowances = closed()
	return s
}

// AllPass reports whether every gate held.
func (s State) AllPass() bool {
	for _, g := range Gates() {
		if !s.Gates[g] {
			return false
		}
	}
	return true
}

// Inputs for one ramp evaluation.
type Inputs struct {
	Mode           risk.Mode
	Windows        snapshot.PFWindows
	SnapshotStatus snapshot.Status
	SnapshotAge    time.Duration
	CleanCloses24h int
	LossCloses24h  int
	Quarantine     quarantine.State
	Portfolio      snapshot.Portfolio
	Exec           snapshot.ExecQuality
}

type Ramp struct {
	cfg     Config
	riskOff risk.ModeSet
	log     zerolog.Logger
}

func New(cfg Config, riskOff risk.ModeSet, log zerolog.Logger) *Ramp {
	return &Ramp{cfg: cfg, riskOff: riskOff, log: log.With().Str("stage", "recovery_ramp").Logger()}
}

// PFFloor returns the PF_7D floor for mode.
func (c Config) PFFloor(mode risk.Mode) float64 {
	switch mode {
	case risk.ModeHaltNewEntries:
		return c.PFFloorHalt
	case risk.ModeDeRisk:
		return c.PFFloorDeRisk
	}
	return c.PFFloorDefault
}

// MinClean returns the clean-close minimum for mode.
func (c Config) MinClean(mode risk.Mode) int {
	if mode == risk.ModeDeRisk {
		return max(c.MinCleanCloses-c.DeRiskRelief, 0)
	}
	return c.MinCleanCloses
}

// Check evaluates every gate and the weighted score. A stale or missing
// snapshot forces the score to zero.
func (r *Ramp) Check(in Inputs) (gates map[Gate]bool, details map[Gate]string, score float64) {
	c := r.cfg
	w := in.Windows
	gates = make(map[Gate]bool, len(Gates()))
	details = make(map[Gate]string, len(Gates()))

	fresh := in.SnapshotStatus == snapshot.StatusOK && in.SnapshotAge <= c.MaxSnapshotAge.Duration
	gates[GateDataFresh] = fresh
	details[GateDataFresh] = fmt.Sprintf("status=%s age=%.0fs max=%.0fs",
		in.SnapshotStatus, in.SnapshotAge.Seconds(), c.MaxSnapshotAge.Seconds())

	floor := c.PFFloor(in.Mode)
	gates[GatePFFloor] = w.PF7D >= floor
	details[GatePFFloor] = fmt.Sprintf("pf_7d=%.4f floor=%.2f", w.PF7D, floor)

	slope := risk.Slope(w.PF7D, w.PF30D)
	gates[GatePFSlope] = slope >= c.MinSlope
	details[GatePFSlope] = fmt.Sprintf("slope=%.4f min=%.4f", slope, c.MinSlope)

	minClean := c.MinClean(in.Mode)
	gates[GateCleanCloses] = in.CleanCloses24h >= minClean
	details[GateCleanCloses] = fmt.Sprintf("clean=%d min=%d", in.CleanCloses24h, minClean)

	gates[GateLossCloses] = in.LossCloses24h <= c.MaxLossCloses
	details[GateLossCloses] = fmt.Sprintf("losses=%d max=%d", in.LossCloses24h, c.MaxLossCloses)

	consistent := true
	if in.Mode == risk.ModeHaltNewEntries {
		consistent = in.Quarantine.HasContributor()
	}
	gates[GateQuarantineConsistency] = consistent
	details[GateQuarantineConsistency] = fmt.Sprintf("mode=%s quarantine_enabled=%t records=%d",
		in.Mode, in.Quarantine.Enabled, len(in.Quarantine.Records))

	if !fresh {
		return gates, details, 0
	}
	for _, g := range Gates()[1:] {
		if gates[g] {
			score += c.Weights.of(g)
		}
	}
	return gates, details, math.Round(score*1e4) / 1e4
}

// Step is the hysteresis recursion: one more tick on a passing cycle, capped
// at needed, and an immediate reset to zero otherwise.
func Step(prev int, pass bool, needed int) int {
	if !pass {
		return 0
	}
	if prev < 0 {
		prev = 0
	}
	return min(needed, prev+1)
}

// Evaluate runs the ramp for one cycle. prevTicks is the counter persisted
// by the previous cycle.
func (r *Ramp) Evaluate(in Inputs, prevTicks int, now time.Time) State {
	c := r.cfg
	gates, details, score := r.Check(in)

	st := State{
		CapitalMode:        in.Mode,
		RecoveryMode:       ModeOff,
		RecoveryScore:      score,
		Gates:              gates,
		GateDetails:        details,
		Allowances:         closed(),
		PF7D:               in.Windows.PF7D,
		PF30D:              in.Windows.PF30D,
		PFSlope:            risk.Slope(in.Windows.PF7D, in.Windows.PF30D),
		CleanCloses24h:     in.CleanCloses24h,
		LossCloses24h:      in.LossCloses24h,
		SnapshotAgeSeconds: math.Round(in.SnapshotAge.Seconds()),
		GeneratedAt:        now,
	}

	pass := score >= c.ScoreThreshold && st.AllPass()
	ticks := Step(prevTicks, pass, c.NeededOKTicks)
	st.Hysteresis = Hysteresis{OKTicks: ticks, NeededOKTicks: c.NeededOKTicks}

	if !pass && prevTicks > 0 {
		ev := r.log.Info().Int("prev_ok_ticks", prevTicks).Float64("score", score)
		for _, g := range Gates() {
			if !gates[g] {
				ev = ev.Str(string(g), details[g])
			}
		}
		ev.Msg("recovery gates failed, counter reset")
	}

	if !r.riskOff.Contains(in.Mode) || ticks < c.NeededOKTicks {
		return st
	}

	switch {
	case in.Mode == risk.ModeHaltNewEntries && in.Windows.PF7D >= c.ReadyDeRiskPF7D:
		st.RecoveryMode = ModeReadyForDeRisk
	case in.Mode == risk.ModeDeRisk && in.Windows.PF7D >= c.ReadyNormalPF7D:
		st.RecoveryMode = ModeReadyForNormal
	default:
		st.RecoveryMode = ModeRamping
	}
	st.Allowances = Allowances{
		AllowRecoveryTrading: true,
		AllowedSymbols:       r.Rank(in.Portfolio, in.Quarantine, in.Exec),
		MaxPositions:         c.MaxPositions,
		RiskMultCap:          c.RiskMultCap,
	}
	r.log.Info().Str("recovery_mode", string(st.RecoveryMode)).
		Strs("allowed_symbols", st.Allowances.AllowedSymbols).Msg("recovery lane open")
	return st
}

// Rank orders eligible portfolio symbols by tier ascending, then weight
// descending, then symbol, and keeps the first MaxSymbols. Quarantined and
// execution-hostile symbols are excluded.
func (r *Ramp) Rank(p snapshot.Portfolio, q quarantine.State, exec snapshot.ExecQuality) []string {
	type cand struct {
		sym string
		snapshot.Holding
	}
	var cands []cand
	for sym, h := range p.Symbols {
		if q.BlocksEntry(sym) || exec.Class(sym) == snapshot.ExecHostile {
			continue
		}
		cands = append(cands, cand{sym, h})
	}
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		return a.sym < b.sym
	})

	out := []string{}
	for _, c := range cands {
		if len(out) >= r.cfg.MaxSymbols {
			break
		}
		out = append(out, c.sym)
	}
	return out
}
