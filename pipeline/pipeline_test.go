package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskgov/config"
	"github.com/rustyeddy/riskgov/earnback"
	"github.com/rustyeddy/riskgov/globalmode"
	"github.com/rustyeddy/riskgov/internal/metrics"
	"github.com/rustyeddy/riskgov/internal/store"
	"github.com/rustyeddy/riskgov/journal"
	"github.com/rustyeddy/riskgov/policy"
	"github.com/rustyeddy/riskgov/quarantine"
	"github.com/rustyeddy/riskgov/recovery"
	"github.com/rustyeddy/riskgov/risk"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ts(d time.Duration) string { return now.Add(-d).Format(time.RFC3339) }

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

// seed writes a de_risk world: PF 7d of 0.93 with DOGE and ADA driving the
// window losses.
func seed(t *testing.T, cfg *config.Config) {
	t.Helper()
	in := cfg.Paths.Inputs

	write(t, in, store.PFTimeSeriesFile, fmt.Sprintf(`{
  "generated_at": %q,
  "global": {"pf_1d": 0.8, "pf_7d": 0.93, "pf_30d": 1.02, "pf_90d": 1.1, "pf_mtd": 0.97,
             "trades_7d": 40, "trades_30d": 150, "loss_streak": 2},
  "symbols": {
    "BTC":  {"pf_7d": 1.3, "pf_30d": 1.25, "trades_7d": 12, "trades_30d": 60, "trades_total": 400},
    "ETH":  {"pf_7d": 0.9, "pf_30d": 1.05, "trades_7d": 8, "trades_30d": 40, "trades_total": 220},
    "DOGE": {"pf_7d": 0.4, "pf_30d": 0.6, "trades_7d": 9, "trades_30d": 30, "trades_total": 90},
    "ADA":  {"pf_7d": 0.8, "pf_30d": 0.9, "trades_7d": 5, "trades_30d": 20, "trades_total": 70},
    "NEW":  {"pf_7d": 0, "pf_30d": 0, "trades_7d": 2, "trades_30d": 3, "trades_total": 3}
  }
}`, ts(5*time.Minute)))

	write(t, in, store.ExecQualityFile, fmt.Sprintf(`{"generated_at": %q, "symbols": {"ADA": "hostile", "BTC": "friendly"}}`, ts(time.Hour)))
	write(t, in, store.DriftFile, fmt.Sprintf(`{"generated_at": %q, "symbols": {"ETH": "degrading"}}`, ts(time.Hour)))
	write(t, in, store.PromotionsFile, fmt.Sprintf(`{"generated_at": %q, "symbols": {"BTC": {"enabled": true, "expires_at": %q, "risk_mult_cap": 0.6, "max_positions": 2}}}`,
		ts(time.Hour), now.Add(48*time.Hour).Format(time.RFC3339)))
	write(t, in, store.DemotionsFile, fmt.Sprintf(`{"generated_at": %q, "symbols": {"ETH": {"demoted_at": %q, "reason": "pf collapse"}}}`,
		ts(time.Hour), ts(48*time.Hour)))
	write(t, in, store.PortfolioFile, fmt.Sprintf(`{"generated_at": %q, "symbols": {
  "BTC": {"tier": 1, "weight": 0.4}, "ETH": {"tier": 1, "weight": 0.3},
  "DOGE": {"tier": 3, "weight": 0.1}, "ADA": {"tier": 2, "weight": 0.2}}}`, ts(time.Hour)))

	var closes []string
	add := func(ago time.Duration, sym, lane string, pnl float64) {
		closes = append(closes, fmt.Sprintf(`{"ts": %q, "symbol": %q, "lane": %q, "pnl_usd": %g}`, ts(ago), sym, lane, pnl))
	}
	add(10*24*time.Hour, "DOGE", "core", -180)
	add(9*24*time.Hour, "DOGE", "exploration", -120)
	add(8*24*time.Hour, "ADA", "core", -100)
	add(7*24*time.Hour, "BTC", "core", 200)
	add(24*time.Hour+time.Minute, "ETH", "core", -50) // post-demotion
	add(6*time.Hour, "BTC", "core", 30)
	add(5*time.Hour, "BTC", "core", 20)
	closes = append(closes, `{"ts": "garbage"}`, `not json`)
	write(t, in, store.ClosesFile, strings.Join(closes, "\n")+"\n")
}

func newRunner(t *testing.T) *Runner {
	t.Helper()
	cfg := config.Default()
	cfg.SetDataDir(t.TempDir())
	seed(t, cfg)
	return &Runner{
		Config: cfg,
		Log:    zerolog.Nop(),
		Now:    func() time.Time { return now },
	}
}

func readState[T any](t *testing.T, r *Runner, name string) T {
	t.Helper()
	var v T
	require.NoError(t, store.ReadJSON(r.Config.Paths.StateFile(name), &v))
	return v
}

func TestRunPersistsEveryDocument(t *testing.T) {
	r := newRunner(t)

	rep, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, risk.ModeDeRisk, rep.Mode)
	assert.True(t, rep.Changed)
	assert.Equal(t, []string{"ADA", "DOGE"}, rep.Blocked)
	assert.Empty(t, rep.FailedStages)
	assert.Zero(t, rep.PersistErrors)
	assert.Equal(t, 2, rep.SkippedRecords)
	assert.Equal(t, 5, rep.Symbols)
	assert.Equal(t, string(recovery.ModeOff), rep.RecoveryMode)
	assert.Len(t, rep.CycleID, 26)

	for _, name := range []string{
		store.GlobalStateFile, store.GlobalMemoryFile, store.QuarantineStateFile,
		store.QuarantineHistoryFile, store.RecoveryStateFile, store.EarnBackStateFile,
		store.SymbolPolicyFile,
	} {
		assert.FileExists(t, r.Config.Paths.StateFile(name))
	}

	mem := readState[globalmode.Memory](t, r, store.GlobalMemoryFile)
	assert.Equal(t, risk.ModeDeRisk, mem.Mode)
	assert.True(t, mem.LastModeChangeTS.Equal(now))

	q := readState[quarantine.State](t, r, store.QuarantineStateFile)
	assert.True(t, q.Enabled)
	require.Len(t, q.Records, 2)
	assert.True(t, q.Records[1].CooldownUntil.Equal(now.Add(48*time.Hour)))

	hist, _, err := quarantine.History{Path: r.Config.Paths.StateFile(store.QuarantineHistoryFile)}.Load()
	require.NoError(t, err)
	assert.Len(t, hist, 2)

	eb := readState[earnback.Document](t, r, store.EarnBackStateFile)
	require.Contains(t, eb.Symbols, "ETH")
	assert.Equal(t, earnback.StageSampling, eb.Symbols["ETH"].RecoveryStage)
	assert.Equal(t, 1, eb.Symbols["ETH"].Window.N)

	doc := readState[policy.Document](t, r, store.SymbolPolicyFile)
	assert.Equal(t, risk.ModeDeRisk, doc.GlobalMode)

	doge := doc.Symbols["DOGE"]
	assert.Equal(t, policy.StateBlocked, doge.State)
	assert.True(t, doge.Quarantined)
	assert.Equal(t, risk.Caps{}, doge.CapsByLane.Core)

	btc := doc.Symbols["BTC"]
	assert.True(t, btc.AllowCore)
	assert.True(t, btc.PromotionActive)
	assert.LessOrEqual(t, btc.CapsByLane.Core.RiskMultCap, r.Config.Policy.BaseCaps.Core.RiskMultCap)

	eth := doc.Symbols["ETH"]
	assert.False(t, eth.AllowCore)
	assert.True(t, eth.AllowExploration)

	assert.Equal(t, policy.StageSampleBuilding, doc.Symbols["NEW"].SampleStage)
}

func TestRunIsIdempotent(t *testing.T) {
	r := newRunner(t)
	ctx := context.Background()

	_, err := r.Run(ctx)
	require.NoError(t, err)

	snap := map[string][]byte{}
	entries, err := os.ReadDir(r.Config.Paths.State)
	require.NoError(t, err)
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(r.Config.Paths.State, e.Name()))
		require.NoError(t, err)
		snap[e.Name()] = b
	}

	capture := func() map[string][]byte {
		out := map[string][]byte{}
		for name := range snap {
			b, err := os.ReadFile(filepath.Join(r.Config.Paths.State, name))
			require.NoError(t, err)
			out[name] = b
		}
		return out
	}

	_, err = r.Run(ctx)
	require.NoError(t, err)
	second := capture()

	for name, b := range snap {
		require.NoError(t, os.WriteFile(filepath.Join(r.Config.Paths.State, name), b, 0o644))
	}
	_, err = r.Run(ctx)
	require.NoError(t, err)
	third := capture()

	for name := range snap {
		assert.True(t, bytes.Equal(second[name], third[name]), "%s differs between identical cycles", name)
	}
	// the quarantine lock-in produced no new history on replay
	assert.Equal(t, snap[store.QuarantineHistoryFile], third[store.QuarantineHistoryFile])
}

func TestMissingInputsAreConservative(t *testing.T) {
	cfg := config.Default()
	cfg.SetDataDir(t.TempDir())
	r := &Runner{Config: cfg, Log: zerolog.Nop(), Now: func() time.Time { return now }}

	rep, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, risk.ModeReview, rep.Mode)
	assert.Empty(t, rep.FailedStages)
	assert.Empty(t, rep.Blocked)
	assert.Zero(t, rep.Symbols)

	rs := readState[recovery.State](t, r, store.RecoveryStateFile)
	assert.False(t, rs.Gates[recovery.GateDataFresh])
	assert.Zero(t, rs.RecoveryScore)
}

func TestStagePanicIsIsolated(t *testing.T) {
	r := newRunner(t)
	r.beforeStage = func(stage string) {
		if stage == StageQuarantine {
			panic("attribution exploded")
		}
	}

	rep, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{StageQuarantine}, rep.FailedStages)
	assert.Equal(t, risk.ModeDeRisk, rep.Mode)
	assert.Empty(t, rep.Blocked)

	assert.NoFileExists(t, r.Config.Paths.StateFile(store.QuarantineStateFile))
	assert.NoFileExists(t, r.Config.Paths.StateFile(store.QuarantineHistoryFile))
	assert.FileExists(t, r.Config.Paths.StateFile(store.SymbolPolicyFile))
	assert.FileExists(t, r.Config.Paths.StateFile(store.RecoveryStateFile))
}

func TestQuarantineFallbackUsesPreviousState(t *testing.T) {
	r := newRunner(t)
	ctx := context.Background()
	_, err := r.Run(ctx)
	require.NoError(t, err)

	r.beforeStage = func(stage string) {
		if stage == StageQuarantine {
			panic("boom")
		}
	}
	out, err := r.Evaluate(ctx)
	require.NoError(t, err)
	assert.False(t, out.Succeeded(StageQuarantine))
	assert.Equal(t, []string{"ADA", "DOGE"}, out.Quarantine.BlockedSymbols)
	assert.True(t, out.Policy.Symbols["DOGE"].Quarantined)
}

func TestCorruptMemoryFallsBack(t *testing.T) {
	r := newRunner(t)
	write(t, r.Config.Paths.State, store.GlobalMemoryFile, "{not json")

	rep, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{StageGlobalMode}, rep.FailedStages)
	assert.Equal(t, risk.ModeReview, rep.Mode)

	b, err := os.ReadFile(r.Config.Paths.StateFile(store.GlobalMemoryFile))
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(b))
	assert.NoFileExists(t, r.Config.Paths.StateFile(store.GlobalStateFile))
}

func TestRampFallbackKeepsCounterClosesLane(t *testing.T) {
	r := newRunner(t)
	prev := recovery.State{
		CapitalMode:  risk.ModeDeRisk,
		RecoveryMode: recovery.ModeRamping,
		Hysteresis:   recovery.Hysteresis{OKTicks: 6, NeededOKTicks: 6},
		Allowances:   recovery.Allowances{AllowRecoveryTrading: true, AllowedSymbols: []string{"BTC"}, MaxPositions: 1, RiskMultCap: 0.25},
		GeneratedAt:  now.Add(-5 * time.Minute),
	}
	require.NoError(t, store.WriteJSON(r.Config.Paths.StateFile(store.RecoveryStateFile), prev))

	r.beforeStage = func(stage string) {
		if stage == StageRecovery {
			panic("gate math")
		}
	}
	out, err := r.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, out.Recovery.Hysteresis.OKTicks)
	assert.Equal(t, recovery.ModeOff, out.Recovery.RecoveryMode)
	assert.False(t, out.Recovery.Allowances.AllowRecoveryTrading)
	assert.False(t, out.Policy.Symbols["BTC"].AllowRecovery)
}

func TestEvaluateWritesNothing(t *testing.T) {
	r := newRunner(t)
	out, err := r.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, risk.ModeDeRisk, out.Global.Mode)
	assert.NotNil(t, out.Memory)

	_, err = os.Stat(r.Config.Paths.State)
	assert.True(t, os.IsNotExist(err))
}

func TestRunHonoursCancelledContext(t *testing.T) {
	r := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRequiresConfig(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background())
	assert.Error(t, err)
}

func TestJournalAndMetrics(t *testing.T) {
	r := newRunner(t)
	require.NoError(t, store.WriteJSON(r.Config.Paths.StateFile(store.GlobalMemoryFile), globalmode.Memory{
		Mode:             risk.ModeNormal,
		LastModeChangeTS: now.Add(-10 * time.Hour),
	}))

	j, err := journal.NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	r.Journal = j
	r.Metrics = metrics.New()
	r.Config.Metrics.Textfile = filepath.Join(t.TempDir(), "riskgov.prom")

	rep, err := r.Run(context.Background())
	require.NoError(t, err)

	cycles, err := j.ListCycles(10)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, rep.CycleID, cycles[0].CycleID)
	assert.Equal(t, "de_risk", cycles[0].Mode)
	assert.Equal(t, 2, cycles[0].Quarantined)

	changes, err := j.ListModeChanges(10)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "normal", changes[0].From)
	assert.Equal(t, "de_risk", changes[0].To)

	events, err := j.ListQuarantineEvents("DOGE", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "enter", events[0].Action)

	prom, err := os.ReadFile(r.Config.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `riskgov_global_mode{mode="de_risk"} 1`)
	assert.Contains(t, string(prom), "riskgov_quarantined_symbols 2")
	assert.Contains(t, string(prom), "riskgov_skipped_records_total 2")
}
