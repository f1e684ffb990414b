package risk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode(" HALT_NEW_ENTRIES ")
	require.NoError(t, err)
	assert.Equal(t, ModeHaltNewEntries, m)

	_, err = ParseMode("panic")
	assert.Error(t, err)
}

func TestStricter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ModeDeRisk, Stricter(ModeNormal, ModeDeRisk))
	assert.Equal(t, ModeHaltNewEntries, Stricter(ModeHaltNewEntries, ModeReview))
	assert.Equal(t, ModeNormal, Stricter(ModeHarvest, ModeNormal))
	assert.Equal(t, ModeHaltNewEntries, Stricter(ModeNormal, Mode("bogus")), "unknown ranks as most conservative")
}

func TestParseLane(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Lane
	}{
		{"core", LaneCore},
		{"normal", LaneCore},
		{"Exploration", LaneExploration},
		{"recovery_v2", LaneRecovery},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLane(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLane("swing")
	assert.Error(t, err)
}

func TestLaneJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(struct {
		L Lane `json:"lane"`
	}{LaneRecovery})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lane":"recovery"}`, string(b))

	var out struct {
		L Lane `json:"lane"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"lane":"explore"}`), &out))
	assert.Equal(t, LaneExploration, out.L)

	assert.Error(t, json.Unmarshal([]byte(`{"lane":"mystery"}`), &out))
	_, err = Lane(9).MarshalText()
	assert.Error(t, err)
}

func TestCapsScale(t *testing.T) {
	t.Parallel()

	c := Caps{RiskMultCap: 1.0, MaxPositions: 3}
	assert.Equal(t, Caps{RiskMultCap: 0.5, MaxPositions: 1}, c.Scale(0.5, 0.5))
	assert.Equal(t, Caps{RiskMultCap: 0.25, MaxPositions: 1}, c.Scale(0.25, 0.34))
	assert.Equal(t, Caps{}, Caps{}.Scale(0.5, 0.5))
}

func TestLaneCapsWithin(t *testing.T) {
	t.Parallel()

	normal := LaneCaps{
		Core:        Caps{1.0, 3},
		Exploration: Caps{0.5, 2},
		Recovery:    Caps{0.25, 1},
	}
	tight := normal.Min(LaneCaps{Core: Caps{0.5, 5}, Exploration: Caps{0.1, 1}, Recovery: Caps{1, 1}})
	assert.True(t, tight.Within(normal))
	assert.Equal(t, Caps{0.5, 3}, tight.Core)

	loose := normal
	loose.Set(LaneRecovery, Caps{0.3, 1})
	assert.False(t, loose.Within(normal))
}

func TestProfitFactor(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.0, ProfitFactor(200, -100), 1e-12)
	assert.InDelta(t, 2.0, ProfitFactor(200, 100), 1e-12)
	assert.Equal(t, MaxProfitFactor, ProfitFactor(10, 0))
	assert.Equal(t, 0.0, ProfitFactor(0, 0))
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := Summarize([]float64{10, -5, -20, 30, 0})
	assert.Equal(t, 5, s.N)
	assert.Equal(t, 2, s.Wins)
	assert.InDelta(t, 40.0/25.0, s.PF, 1e-4)
	assert.InDelta(t, 0.4, s.WinRate, 1e-12)
	// curve: 10, 5, -15, 15, 15 -> peak 10, trough -15
	assert.InDelta(t, 25.0, s.MaxDrawdown, 1e-9)

	empty := Summarize(nil)
	assert.Equal(t, Stats{}, empty)
}

func TestSlope(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, Slope(1, 1), 1e-12)
	assert.Greater(t, Slope(0.97, 0.90), 0.0)
	assert.Less(t, Slope(0.85, 1.0), 0.0)
}

func TestViolations(t *testing.T) {
	t.Parallel()

	var v Violations
	v.Add("GLOBAL_MODE", "review", LaneCore, LaneExploration)
	v.Add("EARNBACK_STAGE", "sampling", LaneCore)

	assert.True(t, v.Has("GLOBAL_MODE"))
	assert.False(t, v.Has("QUARANTINED"))
	assert.True(t, v.Closes(LaneCore))
	assert.False(t, v.Closes(LaneRecovery))

	lifted := v.Lift(LaneCore)
	require.Len(t, lifted, 1)
	assert.Equal(t, []Lane{LaneExploration}, lifted[0].Lanes)
	assert.False(t, lifted.Closes(LaneCore))
	assert.Len(t, v[0].Lanes, 2, "Lift leaves the receiver untouched")

	b, err := json.Marshal(lifted)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"code":"GLOBAL_MODE","msg":"review","lanes":["exploration"]}]`, string(b))
}
