// Package source fetches metadata and rows from the peace and security API.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"peacesecurity/internal/config"
	"peacesecurity/pkg/utils"
)

// ErrUnexpectedStatusCode indicates an HTTP response with unexpected status.
var ErrUnexpectedStatusCode = errors.New("unexpected status code")

// Scraper performs HTTP GETs with config-driven retry and throttling.
type Scraper struct {
	client       *http.Client
	retryPolicy  *config.RetryPolicy
	limiter      *rate.Limiter
	headers      *utils.HTTPHelper
	urls         *URLManager
	bufferSizeKb int
}

// NewScraper creates a scraper from the source configuration.
func NewScraper(cfg *config.SourceConfig, urls *URLManager) *Scraper {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Scraper{
		client: &http.Client{
			Timeout: cfg.Retry.GetTimeout(),
		},
		retryPolicy:  &cfg.Retry,
		limiter:      limiter,
		headers:      utils.NewHTTPHelper(cfg.UserAgent),
		urls:         urls,
		bufferSizeKb: cfg.BufferSizeKb,
	}
}

// FetchWithMetrics returns (body, statusCode, duration, error).
func (s *Scraper) FetchWithMetrics(ctx context.Context, target string) ([]byte, int, time.Duration, error) {
	var lastErr error

	var lastStatusCode int

	totalDuration := time.Duration(0)

	for attempt := 1; attempt <= s.retryPolicy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, s.retryPolicy.GetRetryDelay(attempt)); err != nil {
				return nil, lastStatusCode, totalDuration, err
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, lastStatusCode, totalDuration, fmt.Errorf("rate limiter: %w", err)
		}

		startTime := time.Now()
		body, statusCode, err := s.fetchOnce(ctx, target)
		duration := time.Since(startTime)
		totalDuration += duration
		lastStatusCode = statusCode

		if s.urls != nil {
			s.urls.RecordAttempt(target, err == nil, err, statusCode, duration)
		}

		if err == nil {
			return body, statusCode, totalDuration, nil
		}

		lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, s.retryPolicy.MaxAttempts, err)

		if ctx.Err() != nil {
			return nil, statusCode, totalDuration, ctx.Err()
		}

		// Only retry on transport errors and specific status codes
		if statusCode != 0 && !isRetryableStatus(statusCode) {
			break
		}
	}

	return nil, lastStatusCode, totalDuration, lastErr
}

// Fetch returns the body of target.
func (s *Scraper) Fetch(ctx context.Context, target string) ([]byte, error) {
	body, _, _, err := s.FetchWithMetrics(ctx, target)

	return body, err
}

func (s *Scraper) fetchOnce(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header = s.headers.BuildHeaders(nil)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	// bufferSizeKb is in KB, convert to bytes
	limit := int64(s.bufferSizeKb) * 1024
	reader := io.LimitReader(resp.Body, limit)

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}

// ReadLocalFile reads content from a local file path.
func (s *Scraper) ReadLocalFile(filePath string) ([]byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read local file %s: %w", filePath, err)
	}

	return content, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRetryableStatus determines if we should retry based on HTTP status code.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusServiceUnavailable, // 503
		http.StatusGatewayTimeout,  // 504
		http.StatusBadGateway,      // 502
		http.StatusTooManyRequests, // 429
		http.StatusRequestTimeout:  // 408
		return true
	}

	return false
}
