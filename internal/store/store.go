// Package store persists governance documents. Every write goes to a temp
// file in the target directory and is renamed into place, so readers never
// observe a half-written document.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PersistenceError reports a document that could not be written.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.Path, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(path, op string, err error) error {
	return &PersistenceError{Path: path, Op: op, Err: err}
}

// WriteFileAtomic writes data to path via tmp file + fsync + rename.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistErr(path, "mkdir", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return persistErr(path, "create", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return persistErr(path, "write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return persistErr(path, "sync", err)
	}
	if err := tmp.Close(); err != nil {
		return persistErr(path, "close", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return persistErr(path, "chmod", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return persistErr(path, "rename", err)
	}

	// best-effort fsync of the parent so the rename survives a crash
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Marshal is the canonical document encoding: indented, trailing newline.
func Marshal(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// WriteJSON atomically replaces path with the JSON encoding of v.
func WriteJSON(path string, v any) error {
	b, err := Marshal(v)
	if err != nil {
		return persistErr(path, "marshal", err)
	}
	return WriteFileAtomic(path, b, 0o644)
}

// ReadJSON decodes path into v. A missing file yields an error matching
// os.ErrNotExist.
func ReadJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path names an existing file.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

// AppendJSONL appends one JSON line per record. The file is opened in
// append mode so concurrent readers see whole lines only.
func AppendJSONL[T any](path string, records ...T) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return persistErr(path, "mkdir", err)
	}

	var buf []byte
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return persistErr(path, "marshal", err)
		}
		buf = append(buf, b...)
		buf = append(buf, '\n')
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return persistErr(path, "open", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return persistErr(path, "append", err)
	}
	if err := f.Close(); err != nil {
		return persistErr(path, "close", err)
	}
	return nil
}
