package risk

import (
	"fmt"
	"strings"
)

// Stance is the coarse per-symbol risk category.
type Stance string

const (
	StanceNormal      Stance = "normal"
	StanceUnderweight Stance = "underweight"
	StanceHalt        Stance = "halt"
	StanceObserve     Stance = "observe"
)

func ParseStance(s string) (Stance, error) {
	switch st := Stance(strings.ToLower(strings.TrimSpace(s))); st {
	case StanceNormal, StanceUnderweight, StanceHalt, StanceObserve:
		return st, nil
	}
	return "", fmt.Errorf("unknown stance %q", s)
}
