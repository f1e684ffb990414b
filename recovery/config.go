package recovery

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/riskgov/pkg/duration"
)

// Weights are the score contributions of each passing soft gate.
type Weights struct {
	PFFloor               float64 `json:"pf_floor" yaml:"pf_floor"`
	PFSlope               float64 `json:"pf_slope" yaml:"pf_slope"`
	CleanCloses           float64 `json:"clean_closes" yaml:"clean_closes"`
	LossCloses            float64 `json:"loss_closes" yaml:"loss_closes"`
	QuarantineConsistency float64 `json:"quarantine_consistency" yaml:"quarantine_consistency"`
}

func (w Weights) sum() float64 {
	return w.PFFloor + w.PFSlope + w.CleanCloses + w.LossCloses + w.QuarantineConsistency
}

func (w Weights) of(g Gate) float64 {
	switch g {
	case GatePFFloor:
		return w.PFFloor
	case GatePFSlope:
		return w.PFSlope
	case GateCleanCloses:
		return w.CleanCloses
	case GateLossCloses:
		return w.LossCloses
	case GateQuarantineConsistency:
		return w.QuarantineConsistency
	}
	return 0
}

type Config struct {
	MaxSnapshotAge duration.Duration `json:"max_snapshot_age" yaml:"max_snapshot_age"`

	PFFloorHalt    float64 `json:"pf_floor_halt" yaml:"pf_floor_halt"`
	PFFloorDeRisk  float64 `json:"pf_floor_de_risk" yaml:"pf_floor_de_risk"`
	PFFloorDefault float64 `json:"pf_floor_default" yaml:"pf_floor_default"`
	MinSlope       float64 `json:"min_slope" yaml:"min_slope"`

	CloseWindow    duration.Duration `json:"close_window" yaml:"close_window"`
	MinCleanCloses int               `json:"min_clean_closes" yaml:"min_clean_closes"`
	DeRiskRelief   int               `json:"de_risk_relief" yaml:"de_risk_relief"` // subtracted from MinCleanCloses in de_risk
	MaxLossCloses  int               `json:"max_loss_closes" yaml:"max_loss_closes"`

	Weights        Weights `json:"weights" yaml:"weights"`
	ScoreThreshold float64 `json:"score_threshold" yaml:"score_threshold"`
	NeededOKTicks  int     `json:"needed_ok_ticks" yaml:"needed_ok_ticks"`

	ReadyDeRiskPF7D float64 `json:"ready_de_risk_pf_7d" yaml:"ready_de_risk_pf_7d"`
	ReadyNormalPF7D float64 `json:"ready_normal_pf_7d" yaml:"ready_normal_pf_7d"`

	MaxSymbols   int     `json:"max_symbols" yaml:"max_symbols"`
	MaxPositions int     `json:"max_positions" yaml:"max_positions"`
	RiskMultCap  float64 `json:"risk_mult_cap" yaml:"risk_mult_cap"`
}

func DefaultConfig() Config {
	return Config{
		MaxSnapshotAge: duration.Of(30 * time.Minute),
		PFFloorHalt:    0.95,
		PFFloorDeRisk:  0.92,
		PFFloorDefault: 0.90,
		MinSlope:       0,
		CloseWindow:    duration.Of(24 * time.Hour),
		MinCleanCloses: 5,
		DeRiskRelief:   1,
		MaxLossCloses:  2,
		Weights: Weights{
			PFFloor:               0.30,
			PFSlope:               0.20,
			CleanCloses:           0.20,
			LossCloses:            0.15,
			QuarantineConsistency: 0.15,
		},
		ScoreThreshold:  0.70,
		NeededOKTicks:   6,
		ReadyDeRiskPF7D: 1.00,
		ReadyNormalPF7D: 1.05,
		MaxSymbols:      5,
		MaxPositions:    1,
		RiskMultCap:     0.25,
	}
}

func (c Config) Validate() error {
	if c.MaxSnapshotAge.Duration <= 0 {
		return fmt.Errorf("recovery.max_snapshot_age must be positive")
	}
	if c.CloseWindow.Duration <= 0 {
		return fmt.Errorf("recovery.close_window must be positive")
	}
	if math.Abs(c.Weights.sum()-1) > 1e-9 {
		return fmt.Errorf("recovery.weights must sum to 1, got %.4f", c.Weights.sum())
	}
	if c.ScoreThreshold <= 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("recovery.score_threshold must be in (0, 1]")
	}
	if c.NeededOKTicks < 1 {
		return fmt.Errorf("recovery.needed_ok_ticks must be at least 1")
	}
	if c.MaxSymbols < 0 || c.MaxPositions < 0 {
		return fmt.Errorf("recovery allowances must not be negative")
	}
	if c.RiskMultCap < 0 || c.RiskMultCap > 1 {
		return fmt.Errorf("recovery.risk_mult_cap must be between 0 and 1")
	}
	return nil
}
