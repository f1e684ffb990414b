package policy

import (
	"fmt"

	"github.com/rustyeddy/riskgov/risk"
	"github.com/rustyeddy/riskgov/snapshot"
)

// DeriveStance categorizes a symbol from its 30d statistics and drift.
func (c StanceConfig) DeriveStance(s snapshot.SymbolStats, drift snapshot.DriftClass) (risk.Stance, string) {
	switch {
	case s.Trades30D < c.ObserveMinTrades:
		return risk.StanceObserve, fmt.Sprintf("trades_30d=%d<%d", s.Trades30D, c.ObserveMinTrades)
	case s.PF30D < c.HaltPF30D:
		return risk.StanceHalt, fmt.Sprintf("pf_30d=%.2f<%.2f", s.PF30D, c.HaltPF30D)
	case s.PF30D < c.UnderweightPF30D:
		return risk.StanceUnderweight, fmt.Sprintf("pf_30d=%.2f<%.2f", s.PF30D, c.UnderweightPF30D)
	case drift == snapshot.DriftDegrading:
		return risk.StanceUnderweight, "drift=degrading"
	}
	return risk.StanceNormal, fmt.Sprintf("pf_30d=%.2f", s.PF30D)
}
