package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/goccy/go-json"

	"peacesecurity/internal/config"
	"peacesecurity/internal/logger"
	"peacesecurity/internal/models"
)

// ErrFetchFailed wraps any transport, status or decode failure of a source request.
var ErrFetchFailed = errors.New("could not download")

// Mode selects where response bodies come from.
type Mode int

const (
	// ModeLive fetches from the network only.
	ModeLive Mode = iota
	// ModeSave fetches from the network and writes each body under the saved-data dir.
	ModeSave
	// ModeUseSaved reads bodies from the saved-data dir instead of the network.
	ModeUseSaved
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Client downloads metadata and rows from the source API.
type Client struct {
	scraper  *Scraper
	urls     *URLManager
	logger   *logger.Logger
	savedDir string
	mode     Mode
}

// NewClient creates a source client with default dependencies.
func NewClient(cfg *config.SourceConfig, mode Mode, log *logger.Logger) *Client {
	urls := NewURLManager(cfg)

	return NewClientWithDeps(NewScraper(cfg, urls), urls, cfg.SavedDir, mode, log)
}

// NewClientWithDeps creates a source client with injected dependencies.
func NewClientWithDeps(scraper *Scraper, urls *URLManager, savedDir string, mode Mode, log *logger.Logger) *Client {
	return &Client{
		scraper:  scraper,
		urls:     urls,
		logger:   log,
		savedDir: savedDir,
		mode:     mode,
	}
}

// FetchMetadata returns the metadata of every dataset the source publishes.
func (c *Client) FetchMetadata(ctx context.Context) ([]models.MetadataRecord, error) {
	target := c.urls.MetadataURL()

	body, err := c.download(ctx, target, "metadata-all.json")
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrFetchFailed, target, err)
	}

	var records []models.MetadataRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w %s: failed to decode metadata: %w", ErrFetchFailed, target, err)
	}

	c.logger.Debug("Fetched metadata", "url", target, "records", len(records))

	return records, nil
}

// FetchRows returns the rows of one dataset in source order.
func (c *Client) FetchRows(ctx context.Context, datasetID string) ([]models.Row, error) {
	target := c.urls.DataURL(datasetID)

	body, err := c.download(ctx, target, "data-"+unsafeFileChars.ReplaceAllString(datasetID, "_")+".json")
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrFetchFailed, target, err)
	}

	var rows []models.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w %s: failed to decode rows: %w", ErrFetchFailed, target, err)
	}

	c.logger.Debug("Fetched rows", "dataset", datasetID, "url", target, "rows", len(rows))

	return rows, nil
}

// Statistics summarises the requests made so far.
func (c *Client) Statistics() map[string]any {
	return c.urls.GetStatistics()
}

func (c *Client) download(ctx context.Context, target, fileName string) ([]byte, error) {
	savedPath := filepath.Join(c.savedDir, fileName)

	if c.mode == ModeUseSaved {
		return c.scraper.ReadLocalFile(savedPath)
	}

	body, err := c.scraper.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	if c.mode == ModeSave {
		if err := os.MkdirAll(c.savedDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create saved data dir: %w", err)
		}

		if err := os.WriteFile(savedPath, body, 0o644); err != nil {
			return nil, fmt.Errorf("failed to save response: %w", err)
		}
	}

	return body, nil
}
