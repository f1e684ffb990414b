package risk

import "math"

// Caps bounds new entries on a single lane.
type Caps struct {
	RiskMultCap  float64 `json:"risk_mult_cap" yaml:"risk_mult_cap"`
	MaxPositions int     `json:"max_positions" yaml:"max_positions"`
}

// Min returns the tighter of c and o on both axes.
func (c Caps) Min(o Caps) Caps {
	out := c
	if o.RiskMultCap < out.RiskMultCap {
		out.RiskMultCap = o.RiskMultCap
	}
	if o.MaxPositions < out.MaxPositions {
		out.MaxPositions = o.MaxPositions
	}
	return out
}

// Scale multiplies both caps. Position counts round down but never drop
// below one while the source allowed at least one.
func (c Caps) Scale(riskFactor, posFactor float64) Caps {
	out := Caps{RiskMultCap: round4(c.RiskMultCap * riskFactor)}
	if c.MaxPositions > 0 {
		out.MaxPositions = int(math.Floor(float64(c.MaxPositions) * posFactor))
		if out.MaxPositions < 1 {
			out.MaxPositions = 1
		}
	}
	return out
}

func (c Caps) IsZero() bool { return c.RiskMultCap == 0 && c.MaxPositions == 0 }

// LaneCaps holds caps for every lane.
type LaneCaps struct {
	Core        Caps `json:"core" yaml:"core"`
	Exploration Caps `json:"exploration" yaml:"exploration"`
	Recovery    Caps `json:"recovery" yaml:"recovery"`
}

func (lc LaneCaps) Get(l Lane) Caps {
	switch l {
	case LaneCore:
		return lc.Core
	case LaneExploration:
		return lc.Exploration
	case LaneRecovery:
		return lc.Recovery
	}
	return Caps{}
}

func (lc *LaneCaps) Set(l Lane, c Caps) {
	switch l {
	case LaneCore:
		lc.Core = c
	case LaneExploration:
		lc.Exploration = c
	case LaneRecovery:
		lc.Recovery = c
	}
}

// Min applies Caps.Min lane by lane.
func (lc LaneCaps) Min(o LaneCaps) LaneCaps {
	var out LaneCaps
	for _, l := range Lanes() {
		out.Set(l, lc.Get(l).Min(o.Get(l)))
	}
	return out
}

// Within reports whether every lane of lc is no looser than o.
func (lc LaneCaps) Within(o LaneCaps) bool {
	for _, l := range Lanes() {
		a, b := lc.Get(l), o.Get(l)
		if a.RiskMultCap > b.RiskMultCap || a.MaxPositions > b.MaxPositions {
			return false
		}
	}
	return true
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
