package risk

import (
	"fmt"
	"strings"
)

// Mode is the global risk mode derived once per cycle.
type Mode string

const (
	ModeNormal         Mode = "normal"
	ModeObserve        Mode = "observe"
	ModeReview         Mode = "review"
	ModeDeRisk         Mode = "de_risk"
	ModeHaltNewEntries Mode = "halt_new_entries"
	ModeHarvest        Mode = "harvest"
)

var modeSeverity = map[Mode]int{
	ModeHarvest:        0,
	ModeNormal:         1,
	ModeObserve:        2,
	ModeReview:         3,
	ModeDeRisk:         4,
	ModeHaltNewEntries: 5,
}

// Modes returns every mode ordered from least to most conservative.
func Modes() []Mode {
	return []Mode{ModeHarvest, ModeNormal, ModeObserve, ModeReview, ModeDeRisk, ModeHaltNewEntries}
}

// ParseMode accepts a canonical mode tag, case-insensitive.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := modeSeverity[m]; !ok {
		return "", fmt.Errorf("unknown risk mode %q", s)
	}
	return m, nil
}

func (m Mode) Valid() bool {
	_, ok := modeSeverity[m]
	return ok
}

// Severity orders modes by conservativeness. Unknown modes rank as the
// most conservative so they can never loosen anything.
func (m Mode) Severity() int {
	if s, ok := modeSeverity[m]; ok {
		return s
	}
	return modeSeverity[ModeHaltNewEntries]
}

// Stricter returns whichever of a and b is more conservative.
func Stricter(a, b Mode) Mode {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// ModeSet is a small set of modes, used for the configured risk-off set.
type ModeSet []Mode

func (s ModeSet) Contains(m Mode) bool {
	for _, x := range s {
		if x == m {
			return true
		}
	}
	return false
}

// DefaultRiskOff is the mode set in which quarantine and the recovery ramp act.
func DefaultRiskOff() ModeSet {
	return ModeSet{ModeDeRisk, ModeHaltNewEntries}
}
