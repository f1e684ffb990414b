package risk

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Lane is one of the three trading sleeves. The set is closed: anything
// that does not parse is rejected at the boundary instead of falling back
// to a default lane.
type Lane int

const (
	LaneCore Lane = iota
	LaneExploration
	LaneRecovery
)

// Lanes returns every lane in canonical order.
func Lanes() []Lane {
	return []Lane{LaneCore, LaneExploration, LaneRecovery}
}

// legacy tags seen in close logs written by older trading loops
var laneAliases = map[string]Lane{
	"core":        LaneCore,
	"normal":      LaneCore,
	"main":        LaneCore,
	"exploration": LaneExploration,
	"explore":     LaneExploration,
	"recovery":    LaneRecovery,
	"recovery_v2": LaneRecovery,
}

func ParseLane(s string) (Lane, error) {
	l, ok := laneAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown lane %q", s)
	}
	return l, nil
}

func (l Lane) String() string {
	switch l {
	case LaneCore:
		return "core"
	case LaneExploration:
		return "exploration"
	case LaneRecovery:
		return "recovery"
	default:
		return fmt.Sprintf("lane(%d)", int(l))
	}
}

func (l Lane) MarshalText() ([]byte, error) {
	switch l {
	case LaneCore, LaneExploration, LaneRecovery:
		return []byte(l.String()), nil
	}
	return nil, fmt.Errorf("invalid lane %d", int(l))
}

func (l *Lane) UnmarshalText(b []byte) error {
	v, err := ParseLane(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

func (l Lane) MarshalJSON() ([]byte, error) {
	b, err := l.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(b))
}

func (l *Lane) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("lane must be a string: %w", err)
	}
	return l.UnmarshalText([]byte(s))
}
