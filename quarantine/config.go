package quarantine

import (
	"fmt"
	"time"

	"github.com/rustyeddy/riskgov/pkg/duration"
)

type Config struct {
	Window             duration.Duration `json:"window" yaml:"window"`
	MaxSymbols         int               `json:"max_symbols" yaml:"max_symbols"`
	MinContributionPct float64           `json:"min_contribution_pct" yaml:"min_contribution_pct"`
	MinLossUSD         float64           `json:"min_loss_usd" yaml:"min_loss_usd"`
	Cooldown           duration.Duration `json:"cooldown" yaml:"cooldown"`

	// weight overlay for quarantined symbols: post = clamp(pre*multiplier, floor, pre)
	WeightMultiplier float64 `json:"weight_multiplier" yaml:"weight_multiplier"`
	WeightFloor      float64 `json:"weight_floor" yaml:"weight_floor"`
}

func DefaultConfig() Config {
	return Config{
		Window:             duration.Of(30 * 24 * time.Hour),
		MaxSymbols:         2,
		MinContributionPct: 20,
		MinLossUSD:         25,
		Cooldown:           duration.Of(48 * time.Hour),
		WeightMultiplier:   0.25,
		WeightFloor:        0.01,
	}
}

func (c Config) Validate() error {
	if c.Window.Duration <= 0 {
		return fmt.Errorf("quarantine.window must be positive")
	}
	if c.MaxSymbols < 0 {
		return fmt.Errorf("quarantine.max_symbols must not be negative")
	}
	if c.MinContributionPct < 0 || c.MinContributionPct > 100 {
		return fmt.Errorf("quarantine.min_contribution_pct must be between 0 and 100")
	}
	if c.Cooldown.Duration <= 0 {
		return fmt.Errorf("quarantine.cooldown must be positive")
	}
	if c.WeightMultiplier < 0 || c.WeightMultiplier > 1 {
		return fmt.Errorf("quarantine.weight_multiplier must be between 0 and 1")
	}
	if c.WeightFloor <= 0 || c.WeightFloor >= 1 {
		return fmt.Errorf("quarantine.weight_floor must be between 0 and 1 (exclusive)")
	}
	return nil
}
