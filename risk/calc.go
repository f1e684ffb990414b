package risk

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// MaxProfitFactor stands in for an infinite PF (wins and no losses) so the
// value stays JSON encodable.
const MaxProfitFactor = 99.0

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// ProfitFactor is gross winning PnL over gross losing PnL. grossLoss may be
// passed signed or unsigned.
func ProfitFactor(grossWin, grossLoss float64) float64 {
	grossLoss = abs(grossLoss)
	if grossLoss == 0 {
		if grossWin > 0 {
			return MaxProfitFactor
		}
		return 0
	}
	return math.Min(grossWin/grossLoss, MaxProfitFactor)
}

// Stats summarizes a sequence of realized PnLs in close order.
type Stats struct {
	N           int     `json:"n_closes"`
	Wins        int     `json:"-"`
	GrossWin    float64 `json:"-"`
	GrossLoss   float64 `json:"-"`
	PF          float64 `json:"pf"`
	WinRate     float64 `json:"win_rate"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

func Summarize(pnls []float64) Stats {
	s := Stats{N: len(pnls)}
	for _, p := range pnls {
		switch {
		case p > 0:
			s.Wins++
			s.GrossWin += p
		case p < 0:
			s.GrossLoss += -p
		}
	}
	s.PF = round4(ProfitFactor(s.GrossWin, s.GrossLoss))
	s.WinRate = round4(WinRate(s.Wins, s.N))
	s.MaxDrawdown = round4(MaxDrawdown(pnls))
	return s
}

func WinRate(wins, n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(wins) / float64(n)
}

// MaxDrawdown is the largest peak-to-trough decline of cumulative PnL,
// measured from a zero starting balance, reported as a positive amount.
func MaxDrawdown(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}
	curve := make([]float64, len(pnls))
	floats.CumSum(curve, pnls)

	peak, dd := 0.0, 0.0
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if d := peak - v; d > dd {
			dd = d
		}
	}
	return dd
}

// Slope is the normalized change of a short-window PF against its long
// window. Non-negative means flat or improving.
func Slope(short, long float64) float64 {
	return round4((short - long) / math.Max(long, 0.01))
}
