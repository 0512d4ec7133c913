// Package report collects per-dataset failures and run counters and renders them.
package report

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"peacesecurity/pkg/utils"
)

const maxMessageLength = 500

// Entry is one recorded failure.
type Entry struct {
	Category   string
	Identifier string
	Message    string
}

// String renders the entry as "category - identifier: message".
func (e Entry) String() string {
	return fmt.Sprintf("%s - %s: %s", e.Category, e.Identifier, e.Message)
}

// ErrorHandler collects failures keyed by category and identifier.
// Identical messages for the same key are recorded once.
type ErrorHandler struct {
	seen    map[Entry]bool
	entries []Entry
	errs    *multierror.Error
	strings *utils.StringHelper
	mu      sync.Mutex
}

// NewErrorHandler creates an empty error handler.
func NewErrorHandler() *ErrorHandler {
	return &ErrorHandler{
		seen:    make(map[Entry]bool),
		strings: utils.NewStringHelper(),
	}
}

// AddError records err under category and identifier.
func (h *ErrorHandler) AddError(category, identifier string, err error) {
	if err == nil {
		return
	}

	entry := Entry{
		Category:   category,
		Identifier: identifier,
		Message:    h.strings.TruncateString(h.strings.NormalizeWhitespace(err.Error()), maxMessageLength),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.seen[entry] {
		return
	}

	h.seen[entry] = true
	h.entries = append(h.entries, entry)

	h.errs = multierror.Append(h.errs, fmt.Errorf("%s - %s: %w", category, identifier, err))
}

// Len returns the number of recorded failures.
func (h *ErrorHandler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.entries)
}

// Entries returns the recorded failures sorted by category, identifier and message.
func (h *ErrorHandler) Entries() []Entry {
	h.mu.Lock()
	entries := append([]Entry(nil), h.entries...)
	h.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}

		if a.Identifier != b.Identifier {
			return a.Identifier < b.Identifier
		}

		return a.Message < b.Message
	})

	return entries
}

// Messages returns the sorted failures as lines.
func (h *ErrorHandler) Messages() []string {
	entries := h.Entries()

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.String())
	}

	return lines
}

// Err returns every recorded failure as one error, or nil when there were none.
func (h *ErrorHandler) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.errs.ErrorOrNil()
}
