package globalmode

import (
	"fmt"
	"time"

	"github.com/rustyeddy/riskgov/pkg/duration"
	"github.com/rustyeddy/riskgov/risk"
)

// Config holds the thresholds of the global mode decision.
type Config struct {
	MinTrades7D        int     `json:"min_trades_7d" yaml:"min_trades_7d"`
	MinTrades30D       int     `json:"min_trades_30d" yaml:"min_trades_30d"`
	CleanCloseOverride int     `json:"clean_close_override" yaml:"clean_close_override"` // closes in last 24h that downgrade review to de_risk
	HaltPF7D           float64 `json:"halt_pf_7d" yaml:"halt_pf_7d"`
	DeRiskPF7D         float64 `json:"de_risk_pf_7d" yaml:"de_risk_pf_7d"`
	HarvestPF30D       float64 `json:"harvest_pf_30d" yaml:"harvest_pf_30d"`
	HarvestPF7D        float64 `json:"harvest_pf_7d" yaml:"harvest_pf_7d"`
	HardLossStreak     int     `json:"hard_loss_streak" yaml:"hard_loss_streak"`

	Cooldown duration.Duration `json:"cooldown" yaml:"cooldown"`

	// PinnedMode is the operator disable switch. Empty means governed.
	PinnedMode string `json:"pinned_mode,omitempty" yaml:"pinned_mode,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		MinTrades7D:        20,
		MinTrades30D:       60,
		CleanCloseOverride: 5,
		HaltPF7D:           0.90,
		DeRiskPF7D:         0.95,
		HarvestPF30D:       1.10,
		HarvestPF7D:        1.05,
		HardLossStreak:     7,
		Cooldown:           duration.Of(4 * time.Hour),
	}
}

func (c Config) Validate() error {
	if c.MinTrades7D < 0 || c.MinTrades30D < 0 {
		return fmt.Errorf("global_mode.min_trades must not be negative")
	}
	if c.HaltPF7D <= 0 || c.DeRiskPF7D <= 0 {
		return fmt.Errorf("global_mode pf thresholds must be positive")
	}
	if c.HaltPF7D > c.DeRiskPF7D {
		return fmt.Errorf("global_mode.halt_pf_7d (%.2f) must not exceed de_risk_pf_7d (%.2f)", c.HaltPF7D, c.DeRiskPF7D)
	}
	if c.HardLossStreak <= 0 {
		return fmt.Errorf("global_mode.hard_loss_streak must be positive")
	}
	if c.Cooldown.Duration < 0 {
		return fmt.Errorf("global_mode.cooldown must not be negative")
	}
	if c.PinnedMode != "" {
		if _, err := risk.ParseMode(c.PinnedMode); err != nil {
			return fmt.Errorf("global_mode.pinned_mode: %w", err)
		}
	}
	return nil
}
