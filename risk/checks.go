package risk

import "slices"

// Violation is one rule that closed lanes for a symbol.
type Violation struct {
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Lanes []Lane `json:"lanes"`
}

// Violations accumulate in decision order.
type Violations []Violation

func (v *Violations) Add(code, msg string, lanes ...Lane) {
	*v = append(*v, Violation{Code: code, Msg: msg, Lanes: lanes})
}

func (v Violations) Has(code string) bool {
	return slices.ContainsFunc(v, func(x Violation) bool { return x.Code == code })
}

// Closes reports whether any violation closed lane l.
func (v Violations) Closes(l Lane) bool {
	for _, x := range v {
		if slices.Contains(x.Lanes, l) {
			return true
		}
	}
	return false
}

// Lift drops lane l from every violation, removing the ones left empty.
func (v Violations) Lift(l Lane) Violations {
	out := v[:0:0]
	for _, x := range v {
		x.Lanes = slices.DeleteFunc(slices.Clone(x.Lanes), func(y Lane) bool { return y == l })
		if len(x.Lanes) > 0 {
			out = append(out, x)
		}
	}
	return out
}
