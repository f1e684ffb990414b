package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PFWindows are the global profit-factor statistics.
type PFWindows struct {
	PF1D       float64 `json:"pf_1d"`
	PF7D       float64 `json:"pf_7d"`
	PF30D      float64 `json:"pf_30d"`
	PF90D      float64 `json:"pf_90d"`
	PFMTD      float64 `json:"pf_mtd"`
	Trades7D   int     `json:"trades_7d"`
	Trades30D  int     `json:"trades_30d"`
	LossStreak int     `json:"loss_streak"`
}

// SymbolStats are per-symbol statistics from the time-series engine.
type SymbolStats struct {
	PF7D        float64 `json:"pf_7d"`
	PF30D       float64 `json:"pf_30d"`
	Trades7D    int     `json:"trades_7d"`
	Trades30D   int     `json:"trades_30d"`
	TradesTotal int     `json:"trades_total"`
}

// PFTimeSeries is the time-series engine's snapshot.
type PFTimeSeries struct {
	GeneratedAt          time.Time              `json:"generated_at"`
	Global               PFWindows              `json:"global"`
	SanityRecommendation string                 `json:"sanity_recommendation,omitempty"`
	Symbols              map[string]SymbolStats `json:"symbols"`
}

func (d PFTimeSeries) Generated() time.Time { return d.GeneratedAt }

type ExecClass string

const (
	ExecFriendly ExecClass = "friendly"
	ExecNeutral  ExecClass = "neutral"
	ExecHostile  ExecClass = "hostile"
)

func ParseExecClass(s string) (ExecClass, error) {
	switch v := ExecClass(strings.ToLower(strings.TrimSpace(s))); v {
	case ExecFriendly, ExecNeutral, ExecHostile:
		return v, nil
	}
	return "", fmt.Errorf("unknown execution class %q", s)
}

func (c *ExecClass) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseExecClass(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// EntryError is a classifier entry that was skipped.
type EntryError struct {
	Symbol string
	Err    error
}

func (e EntryError) Error() string { return fmt.Sprintf("symbol %s: %v", e.Symbol, e.Err) }

func (e EntryError) Unwrap() error { return e.Err }

// decodeClasses validates each entry on its own so one bad class does not
// cost the rest of the document.
func decodeClasses[C ~string](raw map[string]json.RawMessage, parse func(string) (C, error)) (map[string]C, []EntryError) {
	out := make(map[string]C, len(raw))
	var skipped []EntryError
	for _, sym := range SortedKeys(raw) {
		var s string
		if err := json.Unmarshal(raw[sym], &s); err != nil {
			skipped = append(skipped, EntryError{Symbol: sym, Err: err})
			continue
		}
		c, err := parse(s)
		if err != nil {
			skipped = append(skipped, EntryError{Symbol: sym, Err: err})
			continue
		}
		out[sym] = c
	}
	return out, skipped
}

type classDoc struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	Symbols     map[string]json.RawMessage `json:"symbols"`
}

// ExecQuality is the execution-quality classifier's output.
type ExecQuality struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Symbols     map[string]ExecClass `json:"symbols"`
	Skipped     []EntryError         `json:"-"`
}

func (d *ExecQuality) UnmarshalJSON(b []byte) error {
	var raw classDoc
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = ExecQuality{GeneratedAt: raw.GeneratedAt}
	d.Symbols, d.Skipped = decodeClasses(raw.Symbols, ParseExecClass)
	return nil
}

func (d ExecQuality) Generated() time.Time { return d.GeneratedAt }

// Class returns the symbol's class, neutral when unclassified.
func (d ExecQuality) Class(symbol string) ExecClass {
	if c, ok := d.Symbols[symbol]; ok {
		return c
	}
	return ExecNeutral
}

type DriftClass string

const (
	DriftImproving DriftClass = "improving"
	DriftNeutral   DriftClass = "neutral"
	DriftDegrading DriftClass = "degrading"
)

func ParseDriftClass(s string) (DriftClass, error) {
	switch v := DriftClass(strings.ToLower(strings.TrimSpace(s))); v {
	case DriftImproving, DriftNeutral, DriftDegrading:
		return v, nil
	}
	return "", fmt.Errorf("unknown drift class %q", s)
}

func (c *DriftClass) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseDriftClass(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Drift is the drift classifier's output.
type Drift struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Symbols     map[string]DriftClass `json:"symbols"`
	Skipped     []EntryError          `json:"-"`
}

func (d *Drift) UnmarshalJSON(b []byte) error {
	var raw classDoc
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = Drift{GeneratedAt: raw.GeneratedAt}
	d.Symbols, d.Skipped = decodeClasses(raw.Symbols, ParseDriftClass)
	return nil
}

func (d Drift) Generated() time.Time { return d.GeneratedAt }

func (d Drift) Class(symbol string) DriftClass {
	if c, ok := d.Symbols[symbol]; ok {
		return c
	}
	return DriftNeutral
}

// Promotion is a promotion-eligibility record.
type Promotion struct {
	Enabled      bool      `json:"enabled"`
	ExpiresAt    time.Time `json:"expires_at"`
	RiskMultCap  float64   `json:"risk_mult_cap"`
	MaxPositions int       `json:"max_positions"`
}

// Active reports an enabled promotion that has not expired at now.
func (p Promotion) Active(now time.Time) bool {
	return p.Enabled && p.ExpiresAt.After(now)
}

type Promotions struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Symbols     map[string]Promotion `json:"symbols"`
}

func (d Promotions) Generated() time.Time { return d.GeneratedAt }

// Demotion marks the start of a symbol's earn-back.
type Demotion struct {
	DemotedAt time.Time `json:"demoted_at"`
	Reason    string    `json:"reason,omitempty"`
}

type Demotions struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Symbols     map[string]Demotion `json:"symbols"`
}

func (d Demotions) Generated() time.Time { return d.GeneratedAt }

// Holding is a symbol's place in the portfolio.
type Holding struct {
	Tier   int     `json:"tier"`
	Weight float64 `json:"weight"`
}

type Portfolio struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Symbols     map[string]Holding `json:"symbols"`
}

func (d Portfolio) Generated() time.Time { return d.GeneratedAt }

// Weights returns the symbol -> weight map.
func (d Portfolio) Weights() map[string]float64 {
	out := make(map[string]float64, len(d.Symbols))
	for s, h := range d.Symbols {
		out[s] = h.Weight
	}
	return out
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
