package earnback

import (
	"fmt"
	"time"

	"github.com/rustyeddy/riskgov/pkg/duration"
	"github.com/rustyeddy/riskgov/risk"
)

// Thresholds a post-demotion window must clear.
type Thresholds struct {
	MinPF       float64 `json:"min_pf" yaml:"min_pf"`
	MinWinRate  float64 `json:"min_win_rate" yaml:"min_win_rate"`
	MaxDrawdown float64 `json:"max_drawdown" yaml:"max_drawdown"` // USD
}

// Met reports whether s clears every threshold.
func (t Thresholds) Met(s risk.Stats) bool {
	return s.PF >= t.MinPF && s.WinRate >= t.MinWinRate && s.MaxDrawdown <= t.MaxDrawdown
}

type Config struct {
	Stage1Closes        int               `json:"stage1_closes" yaml:"stage1_closes"`
	Stage2Closes        int               `json:"stage2_closes" yaml:"stage2_closes"`
	Proving             Thresholds        `json:"proving" yaml:"proving"`
	Recovered           Thresholds        `json:"recovered" yaml:"recovered"`
	MaxAge              duration.Duration `json:"max_age" yaml:"max_age"`
	ExplorationRiskMult float64           `json:"exploration_risk_mult" yaml:"exploration_risk_mult"`
}

func DefaultConfig() Config {
	return Config{
		Stage1Closes:        10,
		Stage2Closes:        30,
		Proving:             Thresholds{MinPF: 1.0, MinWinRate: 0.40, MaxDrawdown: 200},
		Recovered:           Thresholds{MinPF: 1.20, MinWinRate: 0.45, MaxDrawdown: 150},
		MaxAge:              duration.Of(30 * 24 * time.Hour),
		ExplorationRiskMult: 0.5,
	}
}

func (c Config) Validate() error {
	if c.Stage1Closes < 1 || c.Stage2Closes <= c.Stage1Closes {
		return fmt.Errorf("earnback: need 0 < stage1_closes < stage2_closes, got %d/%d", c.Stage1Closes, c.Stage2Closes)
	}
	if c.Recovered.MinPF < c.Proving.MinPF || c.Recovered.MinWinRate < c.Proving.MinWinRate ||
		c.Recovered.MaxDrawdown > c.Proving.MaxDrawdown {
		return fmt.Errorf("earnback: recovered thresholds must be at least as strict as proving")
	}
	if c.MaxAge.Duration <= 0 {
		return fmt.Errorf("earnback.max_age must be positive")
	}
	if c.ExplorationRiskMult <= 0 || c.ExplorationRiskMult > 1 {
		return fmt.Errorf("earnback.exploration_risk_mult must be in (0, 1]")
	}
	return nil
}
