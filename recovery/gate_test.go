package recovery

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskgov/quarantine"
	"github.com/rustyeddy/riskgov/risk"
	"github.com/rustyeddy/riskgov/snapshot"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func activeQuarantine(symbols ...string) quarantine.State {
	st := quarantine.Empty(now)
	st.Enabled = true
	for _, s := range symbols {
		st.Records = append(st.Records, quarantine.Record{Symbol: s, CooldownUntil: now.Add(time.Hour)})
		st.BlockedSymbols = append(st.BlockedSymbols, s)
	}
	return st
}

func portfolio() snapshot.Portfolio {
	return snapshot.Portfolio{Symbols: map[string]snapshot.Holding{
		"BTC":  {Tier: 1, Weight: 0.30},
		"ETH":  {Tier: 1, Weight: 0.25},
		"SOL":  {Tier: 2, Weight: 0.10},
		"AVAX": {Tier: 2, Weight: 0.10},
		"ADA":  {Tier: 3, Weight: 0.08},
		"DOGE": {Tier: 3, Weight: 0.07},
		"XRP":  {Tier: 1, Weight: 0.05},
		"LINK": {Tier: 2, Weight: 0.05},
	}}
}

// scenarioB is halt_new_entries with every gate passing.
func scenarioB() Inputs {
	return Inputs{
		Mode:           risk.ModeHaltNewEntries,
		Windows:        snapshot.PFWindows{PF7D: 0.97, PF30D: 0.95},
		SnapshotStatus: snapshot.StatusOK,
		SnapshotAge:    5 * time.Minute,
		CleanCloses24h: 6,
		LossCloses24h:  0,
		Quarantine:     activeQuarantine("ETH"),
		Portfolio:      portfolio(),
		Exec:           snapshot.ExecQuality{Symbols: map[string]snapshot.ExecClass{"XRP": snapshot.ExecHostile}},
	}
}

func newRamp() *Ramp {
	return New(DefaultConfig(), risk.DefaultRiskOff(), zerolog.Nop())
}

func TestScenarioB(t *testing.T) {
	t.Parallel()

	r := newRamp()
	in := scenarioB()

	ticks := 0
	for i := 1; i <= 5; i++ {
		st := r.Evaluate(in, ticks, now)
		require.True(t, st.AllPass())
		assert.Equal(t, 1.0, st.RecoveryScore)
		assert.Equal(t, i, st.Hysteresis.OKTicks)
		assert.Equal(t, ModeOff, st.RecoveryMode)
		assert.False(t, st.Allowances.AllowRecoveryTrading)
		ticks = st.Hysteresis.OKTicks
	}

	st := r.Evaluate(in, ticks, now)
	assert.Equal(t, 6, st.Hysteresis.OKTicks)
	assert.Equal(t, ModeRamping, st.RecoveryMode)
	assert.True(t, st.Allowances.AllowRecoveryTrading)
	assert.Equal(t, []string{"BTC", "AVAX", "SOL", "LINK", "ADA"}, st.Allowances.AllowedSymbols)
	assert.Equal(t, 1, st.Allowances.MaxPositions)
	assert.Equal(t, 0.25, st.Allowances.RiskMultCap)
	assert.True(t, st.Allowances.Allows("BTC"))
	assert.False(t, st.Allowances.Allows("ETH"), "quarantined")
	assert.False(t, st.Allowances.Allows("XRP"), "execution hostile")

	// capped at needed
	st = r.Evaluate(in, st.Hysteresis.OKTicks, now)
	assert.Equal(t, 6, st.Hysteresis.OKTicks)
}

func TestReadyModes(t *testing.T) {
	t.Parallel()

	r := newRamp()

	in := scenarioB()
	in.Windows = snapshot.PFWindows{PF7D: 1.02, PF30D: 0.98}
	assert.Equal(t, ModeReadyForDeRisk, r.Evaluate(in, 6, now).RecoveryMode)

	in.Mode = risk.ModeDeRisk
	in.Windows = snapshot.PFWindows{PF7D: 1.06, PF30D: 1.0}
	assert.Equal(t, ModeReadyForNormal, r.Evaluate(in, 6, now).RecoveryMode)

	in.Windows = snapshot.PFWindows{PF7D: 1.0, PF30D: 1.0}
	assert.Equal(t, ModeRamping, r.Evaluate(in, 6, now).RecoveryMode)
}

func TestOffOutsideRiskOff(t *testing.T) {
	t.Parallel()

	in := scenarioB()
	in.Mode = risk.ModeNormal
	st := newRamp().Evaluate(in, 6, now)

	assert.Equal(t, 6, st.Hysteresis.OKTicks)
	assert.Equal(t, ModeOff, st.RecoveryMode)
	assert.False(t, st.Allowances.AllowRecoveryTrading)
	assert.Equal(t, []string{}, st.Allowances.AllowedSymbols)
}

func TestStaleSnapshotForcesZeroScore(t *testing.T) {
	t.Parallel()

	r := newRamp()
	for _, mutate := range []func(*Inputs){
		func(in *Inputs) { in.SnapshotAge = 31 * time.Minute },
		func(in *Inputs) { in.SnapshotStatus = snapshot.StatusStale },
		func(in *Inputs) { in.SnapshotStatus = snapshot.StatusMissing },
	} {
		in := scenarioB()
		mutate(&in)
		st := r.Evaluate(in, 5, now)
		assert.False(t, st.Gates[GateDataFresh])
		assert.Zero(t, st.RecoveryScore)
		assert.Zero(t, st.Hysteresis.OKTicks)
	}
}

func TestGates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Inputs)
		gate   Gate
		score  float64
	}{
		{"pf below halt floor", func(in *Inputs) { in.Windows = snapshot.PFWindows{PF7D: 0.94, PF30D: 0.90} }, GatePFFloor, 0.70},
		{"negative slope", func(in *Inputs) { in.Windows = snapshot.PFWindows{PF7D: 0.97, PF30D: 1.10} }, GatePFSlope, 0.80},
		{"too few clean closes", func(in *Inputs) { in.CleanCloses24h = 4 }, GateCleanCloses, 0.80},
		{"too many losses", func(in *Inputs) { in.LossCloses24h = 3 }, GateLossCloses, 0.85},
		{"halt without contributor", func(in *Inputs) { in.Quarantine = quarantine.Empty(now) }, GateQuarantineConsistency, 0.85},
	}

	r := newRamp()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := scenarioB()
			tt.mutate(&in)
			gates, _, score := r.Check(in)
			assert.False(t, gates[tt.gate])
			assert.InDelta(t, tt.score, score, 1e-9)
			for _, g := range Gates() {
				if g != tt.gate {
					assert.True(t, gates[g], g)
				}
			}
		})
	}
}

func TestDeRiskRelief(t *testing.T) {
	t.Parallel()

	in := scenarioB()
	in.Mode = risk.ModeDeRisk
	in.CleanCloses24h = 4
	in.Windows = snapshot.PFWindows{PF7D: 0.93, PF30D: 0.93}
	in.Quarantine = quarantine.Empty(now)

	gates, _, _ := newRamp().Check(in)
	assert.True(t, gates[GateCleanCloses])
	assert.True(t, gates[GatePFFloor])
	assert.True(t, gates[GateQuarantineConsistency], "only halt requires a contributor")
}

func TestHysteresisRecursion(t *testing.T) {
	t.Parallel()

	r := newRamp()
	good := scenarioB()
	bad := scenarioB()
	bad.LossCloses24h = 5

	seq := []bool{true, true, true, false, true, true, true, true, true, true, true, true, false, true}
	prev := 0
	for i, pass := range seq {
		in := bad
		if pass {
			in = good
		}
		st := r.Evaluate(in, prev, now)
		want := 0
		if pass {
			want = min(6, prev+1)
		}
		require.Equal(t, want, st.Hysteresis.OKTicks, "cycle %d", i)
		prev = st.Hysteresis.OKTicks
	}
}

func TestRankExcludesHostileDespiteBadEntry(t *testing.T) {
	t.Parallel()

	var exec snapshot.ExecQuality
	require.NoError(t, json.Unmarshal([]byte(`{"symbols":{"BTC":"hostile","ETH":"toxic"}}`), &exec))
	require.Len(t, exec.Skipped, 1)

	r := New(DefaultConfig(), risk.DefaultRiskOff(), zerolog.Nop())
	got := r.Rank(portfolio(), quarantine.Empty(now), exec)
	assert.NotContains(t, got, "BTC")
	assert.Contains(t, got, "ETH", "unclassified symbols read as neutral")
}

func TestStep(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, Step(0, true, 6))
	assert.Equal(t, 6, Step(6, true, 6))
	assert.Equal(t, 6, Step(9, true, 6))
	assert.Equal(t, 0, Step(5, false, 6))
	assert.Equal(t, 1, Step(-3, true, 6))
}

func TestDisabledKeepsCounter(t *testing.T) {
	t.Parallel()

	st := newRamp().Evaluate(scenarioB(), 6, now)
	require.True(t, st.Allowances.AllowRecoveryTrading)

	off := st.Disabled()
	assert.Equal(t, ModeOff, off.RecoveryMode)
	assert.False(t, off.Allowances.AllowRecoveryTrading)
	assert.Equal(t, 6, off.Hysteresis.OKTicks)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Weights.PFFloor = 0.5
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.NeededOKTicks = 0
	assert.Error(t, bad.Validate())
}
