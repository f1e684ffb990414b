// Package pipeline drives one governance cycle: load inputs, run every stage
// in dependency order with failures isolated, persist the documents, then
// journal and export metrics.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/riskgov/config"
	"github.com/rustyeddy/riskgov/earnback"
	"github.com/rustyeddy/riskgov/globalmode"
	"github.com/rustyeddy/riskgov/internal/metrics"
	"github.com/rustyeddy/riskgov/journal"
	"github.com/rustyeddy/riskgov/pkg/id"
	"github.com/rustyeddy/riskgov/policy"
	"github.com/rustyeddy/riskgov/quarantine"
	"github.com/rustyeddy/riskgov/recovery"
	"github.com/rustyeddy/riskgov/risk"
	"github.com/rustyeddy/riskgov/snapshot"
)

// Stage names, in execution order.
const (
	StageGlobalMode = "global_mode"
	StageQuarantine = "quarantine"
	StageRecovery   = "recovery_ramp"
	StageEarnBack   = "earnback"
	StagePolicy     = "policy"
)

func Stages() []string {
	return []string{StageGlobalMode, StageQuarantine, StageRecovery, StageEarnBack, StagePolicy}
}

const dayWindow = 24 * time.Hour

// Runner evaluates and persists governance cycles. Journal and Metrics are
// optional; Now defaults to time.Now.
type Runner struct {
	Config  *config.Config
	Log     zerolog.Logger
	Journal journal.Journal
	Metrics *metrics.Metrics
	Now     func() time.Time

	// beforeStage runs ahead of each stage body; tests use it to inject faults.
	beforeStage func(stage string)
}

// Outcome is everything one cycle computed, persisted or not.
type Outcome struct {
	CycleID   string
	StartedAt time.Time

	Inputs   Inputs
	Previous Previous

	Global           globalmode.State
	Memory           *globalmode.Memory
	Quarantine       quarantine.State
	QuarantineEvents []quarantine.Event
	Recovery         recovery.State
	EarnBack         earnback.Document
	Transitions      []earnback.Transition
	Policy           policy.Document

	Failed map[string]error
}

// Succeeded reports whether stage ran to completion.
func (o *Outcome) Succeeded(stage string) bool {
	_, failed := o.Failed[stage]
	return !failed
}

// FailedStages lists failed stages in execution order.
func (o *Outcome) FailedStages() []string {
	out := []string{}
	for _, s := range Stages() {
		if !o.Succeeded(s) {
			out = append(out, s)
		}
	}
	return out
}

// Report summarizes a persisted cycle.
type Report struct {
	CycleID        string    `json:"cycle_id"`
	StartedAt      time.Time `json:"started_at"`
	Duration       string    `json:"duration"`
	Mode           risk.Mode `json:"mode"`
	Changed        bool      `json:"changed"`
	Blocked        []string  `json:"blocked"`
	RecoveryMode   string    `json:"recovery_mode"`
	OKTicks        int       `json:"ok_ticks"`
	Symbols        int       `json:"symbols"`
	FailedStages   []string  `json:"failed_stages"`
	PersistErrors  int       `json:"persist_errors"`
	SkippedRecords int       `json:"skipped_records"`
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Runner) validate() error {
	if r.Config == nil {
		return fmt.Errorf("pipeline: Config is required")
	}
	return nil
}

// Run executes one full cycle and persists its documents. The returned
// error covers only a missing config or a cancelled context; stage failures
// are reported on the Report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	wall := time.Now()
	out, err := r.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	log := r.Log.With().Str("cycle_id", out.CycleID).Logger()

	persistErrs := r.persist(out, log)
	r.journal(out, persistErrs, time.Since(wall), log)

	rep := &Report{
		CycleID:        out.CycleID,
		StartedAt:      out.StartedAt,
		Duration:       time.Since(wall).Round(time.Millisecond).String(),
		Mode:           out.Global.Mode,
		Changed:        out.Global.Changed,
		Blocked:        out.Quarantine.BlockedSymbols,
		RecoveryMode:   string(out.Recovery.RecoveryMode),
		OKTicks:        out.Recovery.Hysteresis.OKTicks,
		Symbols:        len(out.Policy.Symbols),
		FailedStages:   out.FailedStages(),
		PersistErrors:  persistErrs,
		SkippedRecords: out.skipped(),
	}
	r.observe(out, rep, time.Since(wall), log)

	ev := log.Info()
	if len(rep.FailedStages) > 0 || rep.PersistErrors > 0 {
		ev = log.Error()
	}
	ev.Str("mode", string(rep.Mode)).
		Strs("blocked", rep.Blocked).
		Str("recovery_mode", rep.RecoveryMode).
		Int("ok_ticks", rep.OKTicks).
		Int("symbols", rep.Symbols).
		Strs("failed_stages", rep.FailedStages).
		Int("persist_errors", rep.PersistErrors).
		Str("duration", rep.Duration).
		Msg("cycle complete")

	return rep, nil
}

// Evaluate runs every stage against current inputs and persisted state
// without writing anything.
func (r *Runner) Evaluate(ctx context.Context) (*Outcome, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := r.now()
	cfg := r.Config
	out := &Outcome{
		CycleID:   id.NewCycleID(now),
		StartedAt: now,
		Failed:    map[string]error{},
	}
	log := r.Log.With().Str("cycle_id", out.CycleID).Logger()

	out.Inputs = LoadInputs(cfg, now)
	out.Inputs.logStatus(log)
	out.Previous = LoadPrevious(cfg, now)

	in, prev := out.Inputs, out.Previous
	closes := in.closes()
	clean24h, losses24h := closes.Recent(now, dayWindow)

	// global mode
	if !r.stage(out, StageGlobalMode, log, func() error {
		if prev.MemoryErr != nil {
			return fmt.Errorf("mode memory: %w", prev.MemoryErr)
		}
		pf := in.pf()
		d := globalmode.New(cfg.GlobalMode, log)
		out.Global, out.Memory = d.Derive(globalmode.Inputs{
			Windows:              pf.Global,
			SanityRecommendation: pf.SanityRecommendation,
			CleanCloses24h:       clean24h,
		}, prev.Memory, now)
		return nil
	}) {
		out.Global = fallbackGlobal(prev, now, out.Failed[StageGlobalMode])
		out.Memory = nil
	}
	mode := out.Global.Mode

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// quarantine
	if !r.stage(out, StageQuarantine, log, func() error {
		if prev.HistoryErr != nil {
			return fmt.Errorf("quarantine history: %w", prev.HistoryErr)
		}
		e := quarantine.New(cfg.Quarantine, cfg.RiskOffModes, log)
		out.Quarantine, out.QuarantineEvents = e.Evaluate(mode, closes, prev.History, now)
		return nil
	}) {
		out.Quarantine = prev.Quarantine.Or(quarantine.Empty(now))
		out.QuarantineEvents = nil
	}

	// recovery ramp
	if !r.stage(out, StageRecovery, log, func() error {
		prevTicks := 0
		if prev.Recovery.Usable() {
			prevTicks = prev.Recovery.Value.Hysteresis.OKTicks
		}
		ramp := recovery.New(cfg.Recovery, cfg.RiskOffModes, log)
		out.Recovery = ramp.Evaluate(recovery.Inputs{
			Mode:           mode,
			Windows:        in.pf().Global,
			SnapshotStatus: in.PF.Status,
			SnapshotAge:    in.PF.Age,
			CleanCloses24h: clean24h,
			LossCloses24h:  losses24h,
			Quarantine:     out.Quarantine,
			Portfolio:      in.portfolio(),
			Exec:           in.exec(),
		}, prevTicks, now)
		return nil
	}) {
		out.Recovery = fallbackRecovery(prev, cfg, mode, now)
	}

	// earn-back ladder
	if !r.stage(out, StageEarnBack, log, func() error {
		if prev.EarnBack.Status == snapshot.StatusUnparsable {
			return prev.EarnBack.Err
		}
		l := earnback.New(cfg.EarnBack, log)
		out.EarnBack, out.Transitions = l.Evaluate(in.demotions(), prev.EarnBack.Or(earnback.Document{}), closes, now)
		return nil
	}) {
		out.EarnBack = prev.EarnBack.Or(earnback.Document{GeneratedAt: now, Symbols: map[string]earnback.State{}})
		out.Transitions = nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// policy
	r.stage(out, StagePolicy, log, func() error {
		s := policy.New(cfg.Policy, cfg.RiskOffModes, log)
		out.Policy = s.Synthesize(policy.Inputs{
			Mode:       mode,
			Quarantine: out.Quarantine,
			Ramp:       out.Recovery,
			EarnBack:   out.EarnBack,
			Stats:      in.pf(),
			Drift:      in.drift(),
			Promotions: in.promotions(),
			Portfolio:  in.portfolio(),
		}, now)
		return nil
	})

	return out, nil
}

// stage runs fn with panics recovered. It reports whether fn completed.
func (r *Runner) stage(out *Outcome, name string, log zerolog.Logger, fn func() error) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			out.Failed[name] = fmt.Errorf("panic: %v", p)
			log.Error().Str("stage", name).Interface("panic", p).Msg("stage panicked, falling back")
			ok = false
		}
	}()

	if r.beforeStage != nil {
		r.beforeStage(name)
	}
	if err := fn(); err != nil {
		out.Failed[name] = err
		log.Error().Str("stage", name).Err(err).Msg("stage failed, falling back")
		return false
	}
	return true
}

// fallbackGlobal keeps the last persisted mode, or review when there is none.
func fallbackGlobal(prev Previous, now time.Time, cause error) globalmode.State {
	st := globalmode.State{
		Mode:          risk.ModeReview,
		SuggestedMode: risk.ModeReview,
		Reasons:       []string{},
		GeneratedAt:   now,
	}
	if prev.Global.Usable() && prev.Global.Value.Mode.Valid() {
		st = prev.Global.Value
		st.Changed = false
		st.GeneratedAt = now
		st.Reasons = append([]string{}, st.Reasons...)
	}
	st.Reasons = append(st.Reasons, fmt.Sprintf("stage_failed: %v", cause))
	return st
}

// fallbackRecovery keeps the previous counter with the lane closed.
func fallbackRecovery(prev Previous, cfg *config.Config, mode risk.Mode, now time.Time) recovery.State {
	if prev.Recovery.Usable() {
		st := prev.Recovery.Value.Disabled()
		st.CapitalMode = mode
		st.GeneratedAt = now
		return st
	}
	return recovery.State{
		CapitalMode: mode,
		Gates:       map[recovery.Gate]bool{},
		GateDetails: map[recovery.Gate]string{},
		Hysteresis:  recovery.Hysteresis{NeededOKTicks: cfg.Recovery.NeededOKTicks},
		GeneratedAt: now,
	}.Disabled()
}

func (o *Outcome) skipped() int {
	in := o.Inputs
	return in.closes().Skipped + len(in.exec().Skipped) + len(in.drift().Skipped) + o.Previous.HistorySkipped
}

// journal writes the audit trail. Journal failures are logged only.
func (r *Runner) journal(out *Outcome, persistErrs int, took time.Duration, log zerolog.Logger) {
	if r.Journal == nil {
		return
	}
	warn := func(err error, what string) {
		if err != nil {
			log.Warn().Err(err).Str("record", what).Msg("journal write failed")
		}
	}

	warn(r.Journal.RecordCycle(journal.CycleRecord{
		CycleID:       out.CycleID,
		StartedAt:     out.StartedAt,
		Duration:      took,
		Mode:          string(out.Global.Mode),
		SuggestedMode: string(out.Global.SuggestedMode),
		RecoveryMode:  string(out.Recovery.RecoveryMode),
		OKTicks:       out.Recovery.Hysteresis.OKTicks,
		Quarantined:   len(out.Quarantine.Records),
		Symbols:       len(out.Policy.Symbols),
		Blocked:       out.Policy.Counts()[policy.StateBlocked],
		FailedStages:  strings.Join(out.FailedStages(), ","),
		PersistErrors: persistErrs,
	}), "cycle")

	if out.Global.Changed && out.Previous.Memory != nil {
		warn(r.Journal.RecordModeChange(journal.ModeChange{
			CycleID: out.CycleID,
			TS:      out.StartedAt,
			From:    string(out.Previous.Memory.Mode),
			To:      string(out.Global.Mode),
			Reasons: strings.Join(out.Global.Reasons, "; "),
		}), "mode_change")
	}

	for _, ev := range out.QuarantineEvents {
		warn(r.Journal.RecordQuarantineEvent(journal.QuarantineEvent{
			CycleID:         out.CycleID,
			TS:              ev.TS,
			Symbol:          ev.Symbol,
			Action:          string(ev.Action),
			PnLUSD:          ev.PnLUSD,
			ContributionPct: ev.ContributionPct,
			CooldownUntil:   ev.CooldownUntil,
		}), "quarantine_event")
	}

	for _, tr := range out.Transitions {
		warn(r.Journal.RecordTransition(journal.Transition{
			CycleID: out.CycleID,
			TS:      tr.TS,
			Symbol:  tr.Symbol,
			From:    string(tr.From),
			To:      string(tr.To),
			Reason:  tr.Reason,
		}), "earnback_transition")
	}
}

// observe updates the metrics and, when configured, the textfile export.
func (r *Runner) observe(out *Outcome, rep *Report, took time.Duration, log zerolog.Logger) {
	m := r.Metrics
	if m == nil {
		return
	}
	m.SetMode(out.Global.Mode)
	m.SetRecovery(out.Recovery.Hysteresis.OKTicks, out.Recovery.RecoveryScore)
	m.SetQuarantined(len(out.Quarantine.Records))

	counts := map[string]int{}
	for state, n := range out.Policy.Counts() {
		counts[string(state)] = n
	}
	m.SetPolicyCounts(counts)

	for _, s := range rep.FailedStages {
		m.StageFailed(s)
	}
	m.SkippedRecords(rep.SkippedRecords)
	m.ObserveCycle(took.Seconds())

	if path := r.Config.Metrics.Textfile; path != "" {
		if err := m.WriteTextfile(path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("metrics textfile write failed")
		}
	}
}
