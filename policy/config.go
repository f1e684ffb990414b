package policy

import (
	"fmt"

	"github.com/rustyeddy/riskgov/risk"
)

// Factors scale lane caps under a risk-off mode.
type Factors struct {
	Risk      float64 `json:"risk" yaml:"risk"`
	Positions float64 `json:"positions" yaml:"positions"`
}

type StanceConfig struct {
	ObserveMinTrades int     `json:"observe_min_trades" yaml:"observe_min_trades"`
	HaltPF30D        float64 `json:"halt_pf_30d" yaml:"halt_pf_30d"`
	UnderweightPF30D float64 `json:"underweight_pf_30d" yaml:"underweight_pf_30d"`
}

type Config struct {
	EvalMinTrades     int     `json:"eval_min_trades" yaml:"eval_min_trades"`
	EligibleMinTrades int     `json:"eligible_min_trades" yaml:"eligible_min_trades"`
	EvalCorePF30D     float64 `json:"eval_core_pf_30d" yaml:"eval_core_pf_30d"`

	// BaseCaps are the caps every lane gets under the normal mode.
	BaseCaps risk.LaneCaps `json:"base_caps" yaml:"base_caps"`

	Stance     StanceConfig          `json:"stance" yaml:"stance"`
	Tightening map[risk.Mode]Factors `json:"tightening" yaml:"tightening"`

	ExplorationFloor float64 `json:"exploration_floor" yaml:"exploration_floor"`
}

func DefaultConfig() Config {
	return Config{
		EvalMinTrades:     20,
		EligibleMinTrades: 50,
		EvalCorePF30D:     1.0,
		BaseCaps: risk.LaneCaps{
			Core:        risk.Caps{RiskMultCap: 1.0, MaxPositions: 3},
			Exploration: risk.Caps{RiskMultCap: 0.5, MaxPositions: 2},
			Recovery:    risk.Caps{RiskMultCap: 0.25, MaxPositions: 1},
		},
		Stance: StanceConfig{
			ObserveMinTrades: 10,
			HaltPF30D:        0.70,
			UnderweightPF30D: 1.0,
		},
		Tightening: map[risk.Mode]Factors{
			risk.ModeObserve:        {Risk: 0.75, Positions: 0.67},
			risk.ModeReview:         {Risk: 0.5, Positions: 0.5},
			risk.ModeDeRisk:         {Risk: 0.5, Positions: 0.5},
			risk.ModeHaltNewEntries: {Risk: 0.25, Positions: 0.34},
		},
		ExplorationFloor: 0.10,
	}
}

func (c Config) Validate() error {
	if c.EvalMinTrades < 0 || c.EligibleMinTrades < c.EvalMinTrades {
		return fmt.Errorf("policy: need 0 <= eval_min_trades <= eligible_min_trades")
	}
	for _, l := range risk.Lanes() {
		caps := c.BaseCaps.Get(l)
		if caps.RiskMultCap <= 0 || caps.MaxPositions < 1 {
			return fmt.Errorf("policy.base_caps.%s must allow at least one position with positive risk", l)
		}
	}
	for m, f := range c.Tightening {
		if !m.Valid() {
			return fmt.Errorf("policy.tightening: unknown mode %q", m)
		}
		if f.Risk <= 0 || f.Risk > 1 || f.Positions <= 0 || f.Positions > 1 {
			return fmt.Errorf("policy.tightening.%s factors must be in (0, 1]", m)
		}
	}
	if c.ExplorationFloor < 0 || c.ExplorationFloor > c.BaseCaps.Exploration.RiskMultCap {
		return fmt.Errorf("policy.exploration_floor must be between 0 and the exploration base cap")
	}
	return nil
}
