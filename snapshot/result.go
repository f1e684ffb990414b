// Package snapshot reads the upstream documents the governance pipeline
// consumes. Every read returns a Result that carries either the parsed
// document or the reason it is absent or stale; callers pick their own
// fallback.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	ErrMissing    = errors.New("snapshot missing")
	ErrUnparsable = errors.New("snapshot unparsable")
	ErrStale      = errors.New("snapshot stale")
)

type Status string

const (
	StatusOK         Status = "ok"
	StatusMissing    Status = "missing"
	StatusUnparsable Status = "unparsable"
	StatusStale      Status = "stale"
)

// Document is implemented by every input carrying a generation timestamp.
type Document interface {
	Generated() time.Time
}

// Result is the outcome of a fallible read.
type Result[T any] struct {
	Path   string
	Value  T
	Status Status
	Age    time.Duration
	Err    error
}

// OK reports a fresh, parsed document.
func (r Result[T]) OK() bool { return r.Status == StatusOK }

// Usable reports whether Value holds parsed data, fresh or not.
func (r Result[T]) Usable() bool { return r.Status == StatusOK || r.Status == StatusStale }

// Or returns the parsed value when usable and def otherwise.
func (r Result[T]) Or(def T) T {
	if r.Usable() {
		return r.Value
	}
	return def
}

// Load reads and decodes the JSON document at path. maxAge <= 0 disables
// the staleness check. A document with no generation time is treated as
// infinitely old when a maxAge is set.
func Load[T Document](path string, maxAge time.Duration, now time.Time) Result[T] {
	res := Result[T]{Path: path}

	b, err := os.ReadFile(path)
	if err != nil {
		res.Status = StatusMissing
		res.Err = fmt.Errorf("%w: %s: %v", ErrMissing, path, err)
		return res
	}

	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		res.Status = StatusUnparsable
		res.Err = fmt.Errorf("%w: %s: %v", ErrUnparsable, path, err)
		return res
	}
	res.Value = v
	res.Status = StatusOK

	gen := v.Generated()
	if !gen.IsZero() {
		res.Age = now.Sub(gen)
		if res.Age < 0 {
			res.Age = 0
		}
	}
	if maxAge > 0 && (gen.IsZero() || res.Age > maxAge) {
		res.Status = StatusStale
		res.Err = fmt.Errorf("%w: %s age %s exceeds %s", ErrStale, path, res.Age, maxAge)
	}
	return res
}
