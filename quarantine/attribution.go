package quarantine

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/riskgov/snapshot"
)

var hundred = decimal.NewFromInt(100)

// Contribution is a losing symbol's share of aggregate window losses.
type Contribution struct {
	Symbol          string  `json:"symbol"`
	PnLUSD          float64 `json:"pnl_usd"`
	ContributionPct float64 `json:"contribution_pct"`

	// unrounded values; thresholds compare against these
	pct  decimal.Decimal
	loss decimal.Decimal
}

func (r Contribution) exactPct() decimal.Decimal {
	if r.pct.IsZero() {
		return decimal.NewFromFloat(r.ContributionPct)
	}
	return r.pct
}

func (r Contribution) exactLoss() decimal.Decimal {
	if r.loss.IsZero() {
		return decimal.NewFromFloat(-r.PnLUSD)
	}
	return r.loss
}

// Attribute sums realized PnL per symbol across all lanes and ranks the
// losing symbols by their share of total losses (descending, ties by
// symbol). The total loss is returned as a positive amount.
func Attribute(closes []snapshot.CloseEvent) ([]Contribution, float64) {
	sums := make(map[string]decimal.Decimal)
	for _, ev := range closes {
		if !ev.Valid() {
			continue
		}
		sums[ev.Symbol] = sums[ev.Symbol].Add(decimal.NewFromFloat(ev.PnLUSD))
	}

	total := decimal.Zero
	for _, s := range sums {
		if s.IsNegative() {
			total = total.Add(s.Abs())
		}
	}
	if total.IsZero() {
		return nil, 0
	}

	out := make([]Contribution, 0, len(sums))
	for sym, s := range sums {
		if !s.IsNegative() {
			continue
		}
		pct := s.Abs().Div(total).Mul(hundred)
		out = append(out, Contribution{
			Symbol:          sym,
			PnLUSD:          s.Round(2).InexactFloat64(),
			ContributionPct: pct.Round(2).InexactFloat64(),
			pct:             pct,
			loss:            s.Abs(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].exactPct().Cmp(out[j].exactPct()); c != 0 {
			return c > 0
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, total.Round(2).InexactFloat64()
}

// Candidates filters ranked contributions down to the symbols that qualify
// for quarantine, keeping at most max of them.
func (c Config) Candidates(ranked []Contribution) []Contribution {
	minPct := decimal.NewFromFloat(c.MinContributionPct)
	minLoss := decimal.NewFromFloat(c.MinLossUSD)
	var out []Contribution
	for _, r := range ranked {
		if len(out) >= c.MaxSymbols {
			break
		}
		if r.exactPct().LessThan(minPct) {
			continue
		}
		if r.exactLoss().LessThan(minLoss) {
			continue
		}
		out = append(out, r)
	}
	return out
}
