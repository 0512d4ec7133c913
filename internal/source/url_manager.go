package source

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"peacesecurity/internal/config"
)

// AttemptResult records the result of a URL fetch attempt.
type AttemptResult struct {
	Timestamp  time.Time
	URL        string
	Error      string
	Attempt    int
	Duration   time.Duration
	StatusCode int
	Success    bool
}

// URLManager builds source API URLs and keeps a log of fetch attempts.
type URLManager struct {
	attemptLog map[string][]AttemptResult
	source     *config.SourceConfig
	baseURL    string
	mu         sync.Mutex
}

// NewURLManager creates a URL manager for the configured source.
func NewURLManager(cfg *config.SourceConfig) *URLManager {
	return &URLManager{
		baseURL:    cfg.NormalizedBaseURL(),
		source:     cfg,
		attemptLog: make(map[string][]AttemptResult),
	}
}

// MetadataURL returns the URL listing metadata of every dataset.
func (um *URLManager) MetadataURL() string {
	return um.baseURL + "metadata/all"
}

// DataURL returns the row endpoint of a dataset, including any configured filter.
func (um *URLManager) DataURL(datasetID string) string {
	u := um.baseURL + "data/" + url.PathEscape(datasetID) + "/json"

	if filter := strings.TrimSpace(um.source.DataFilter(datasetID)); filter != "" {
		u += filter
	}

	return u
}

// RecordAttempt appends the outcome of one request to the attempt log.
func (um *URLManager) RecordAttempt(target string, success bool, err error, statusCode int, duration time.Duration) {
	um.mu.Lock()
	defer um.mu.Unlock()

	result := AttemptResult{
		Timestamp:  time.Now(),
		URL:        target,
		Attempt:    len(um.attemptLog[target]) + 1,
		Duration:   duration,
		StatusCode: statusCode,
		Success:    success,
	}

	if err != nil {
		result.Error = err.Error()
	}

	um.attemptLog[target] = append(um.attemptLog[target], result)
}

// GetAttemptLog returns the recorded attempts for a URL.
func (um *URLManager) GetAttemptLog(target string) []AttemptResult {
	um.mu.Lock()
	defer um.mu.Unlock()

	return append([]AttemptResult(nil), um.attemptLog[target]...)
}

// GetStatistics summarises all recorded attempts.
func (um *URLManager) GetStatistics() map[string]any {
	um.mu.Lock()
	defer um.mu.Unlock()

	totalAttempts := 0
	successful := 0
	failed := 0

	var totalDuration time.Duration

	for _, attempts := range um.attemptLog {
		for _, a := range attempts {
			totalAttempts++
			totalDuration += a.Duration

			if a.Success {
				successful++
			} else {
				failed++
			}
		}
	}

	return map[string]any{
		"urls":           len(um.attemptLog),
		"total_attempts": totalAttempts,
		"successful":     successful,
		"failed":         failed,
		"total_duration": totalDuration,
	}
}
