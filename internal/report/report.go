package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RunReport holds the counters and failures of one run.
type RunReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Errors     *ErrorHandler
	Batch      string
	Selected   int
	Fetched    int
	Published  int
	Retired    int
	Skipped    int
	DryRun     bool
}

// NewRunReport creates a report for a run identified by batch.
func NewRunReport(batch string, startedAt time.Time) *RunReport {
	return &RunReport{
		StartedAt: startedAt,
		Errors:    NewErrorHandler(),
		Batch:     batch,
	}
}

// Failed returns the number of recorded failures.
func (r *RunReport) Failed() int {
	return r.Errors.Len()
}

// SummaryTable renders the run counters as a markdown table.
func (r *RunReport) SummaryTable() []string {
	rows := [][]string{
		{"batch", r.Batch},
		{"selected", strconv.Itoa(r.Selected)},
		{"fetched", strconv.Itoa(r.Fetched)},
		{"published", strconv.Itoa(r.Published)},
		{"retired", strconv.Itoa(r.Retired)},
		{"skipped", strconv.Itoa(r.Skipped)},
		{"failed", strconv.Itoa(r.Failed())},
	}

	if !r.FinishedAt.IsZero() {
		rows = append(rows, []string{"duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()})
	}

	if r.DryRun {
		rows = append(rows, []string{"dry run", "yes"})
	}

	return FormatTable([]string{"Metric", "Value"}, rows)
}

// ErrorTable renders the recorded failures as a markdown table.
func (r *RunReport) ErrorTable() []string {
	entries := r.Errors.Entries()
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Category, e.Identifier, e.Message})
	}

	return FormatTable([]string{"Category", "Dataset", "Message"}, rows)
}

// WriteErrors writes the error table to path, leaving an empty file when
// the run had no failures.
func (r *RunReport) WriteErrors(path string) error {
	content := ""
	if table := r.ErrorTable(); len(table) > 0 {
		content = strings.Join(table, "\n") + "\n"
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create errors dir: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write errors file: %w", err)
	}

	return nil
}
