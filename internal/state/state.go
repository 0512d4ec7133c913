// Package state persists per-dataset update watermarks between runs.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"peacesecurity/pkg/utils"
)

// DefaultKey is the fallback watermark used for datasets with no entry.
const DefaultKey = "DEFAULT"

// State errors.
var (
	ErrMissingDefault = errors.New("state has no DEFAULT entry")
	ErrMalformedEntry = errors.New("malformed state entry")
)

// Watermarks maps dataset identifiers to the last processed update time.
type Watermarks map[string]time.Time

// For returns the watermark of a dataset, or the DEFAULT one.
func (w Watermarks) For(datasetID string) time.Time {
	if t, ok := w[datasetID]; ok {
		return t
	}

	return w[DefaultKey]
}

// Advance moves the watermark of a dataset forward to t.
// Older values are ignored so a watermark never regresses.
func (w Watermarks) Advance(datasetID string, t time.Time) bool {
	if current, ok := w[datasetID]; ok && !t.After(current) {
		return false
	}

	w[datasetID] = t.UTC()

	return true
}

// Clone returns an independent copy.
func (w Watermarks) Clone() Watermarks {
	out := make(Watermarks, len(w))
	for k, v := range w {
		out[k] = v
	}

	return out
}

// Keys returns the identifiers in sorted order.
func (w Watermarks) Keys() []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Parse reads the flat "KEY=DATE,KEY=DATE" state format.
func Parse(content string) (Watermarks, error) {
	marks := Watermarks{}

	for _, entry := range strings.FieldsFunc(content, func(r rune) bool { return r == ',' || r == '\n' }) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)

		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedEntry, entry)
		}

		t, err := utils.ParseDate(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrMalformedEntry, entry, err)
		}

		marks[key] = t
	}

	if _, ok := marks[DefaultKey]; !ok {
		return nil, ErrMissingDefault
	}

	return marks, nil
}

// Format renders watermarks in the flat state format with sorted keys.
// Midnight values are written as plain dates.
func Format(marks Watermarks) string {
	entries := make([]string, 0, len(marks))

	for _, key := range marks.Keys() {
		entries = append(entries, key+"="+formatTime(marks[key]))
	}

	return strings.Join(entries, ",")
}

func formatTime(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return utils.FormatDate(t)
	}

	return t.Format(time.RFC3339Nano)
}

// Store reads and writes the state file.
type Store struct {
	path string
}

// NewStore creates a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the watermarks from disk.
func (s *Store) Load() (Watermarks, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	marks, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}

	return marks, nil
}

// Save replaces the state file atomically.
func (s *Store) Save(marks Watermarks) error {
	if _, ok := marks[DefaultKey]; !ok {
		return ErrMissingDefault
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.WriteString(Format(marks) + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("failed to write state: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}
