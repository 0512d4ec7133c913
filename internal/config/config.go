// Package config provides configuration management for the peace and security connector.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrMissingBaseURL           = errors.New("source.base_url is required")
	ErrInvalidBaseURL           = errors.New("source.base_url must be an absolute http(s) URL")
	ErrMissingCatalogURL        = errors.New("catalog.url is required")
	ErrMissingOrganization      = errors.New("catalog.organization is required")
	ErrMissingOwnerOrg          = errors.New("catalog.owner_org is required")
	ErrMissingMaintainer        = errors.New("catalog.maintainer is required")
	ErrInvalidInactivePolicy    = errors.New("catalog.inactive_policy must be 'archive' or 'private'")
	ErrNoAllowedTags            = errors.New("dataset.allowed_tags must not be empty")
	ErrMissingStatePath         = errors.New("run.state_path is required")
	ErrInvalidMaxAttempts       = errors.New("source.retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("source.retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("source.retry.backoff_multiplier must be >= 1.0")
	ErrInvalidTimeout           = errors.New("source.retry.timeout_sec must be at least 1")
	ErrInvalidRateLimit         = errors.New("source.requests_per_second must be non-negative")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
)

// Inactive dataset policies.
const (
	PolicyArchive = "archive"
	PolicyPrivate = "private"
)

// EnvCatalogAPIKey overrides catalog.api_key when set.
const EnvCatalogAPIKey = "HDX_KEY"

const (
	defaultTitlePrefix     = "Peace and Security Pillar: "
	defaultUserAgent       = "hdx-scraper-peacesecurity"
	defaultUpdatedByScript = "HDX Scraper: peacesecurity"
	defaultLocation        = "world"
	defaultSavedDir        = "saved_data"
	defaultErrorsPath      = "errors.txt"
)

// Config represents the complete connector configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Catalog CatalogConfig `yaml:"catalog"`
	Dataset DatasetConfig `yaml:"dataset"`
	Run     RunConfig     `yaml:"run"`
	Logging LoggingConfig `yaml:"logging"`
}

// SourceConfig describes the remote statistics API.
type SourceConfig struct {
	DataFilters       map[string]string `yaml:"data_filters"`
	BaseURL           string            `yaml:"base_url"`
	UserAgent         string            `yaml:"user_agent"`
	SavedDir          string            `yaml:"saved_dir"`
	Datasets          []string          `yaml:"datasets"`
	Retry             RetryPolicy       `yaml:"retry"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	BufferSizeKb      int               `yaml:"buffer_size_kb"`
}

// RetryPolicy defines retry behavior.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// CatalogConfig describes the open-data catalog the datasets are published to.
type CatalogConfig struct {
	URL              string `yaml:"url"`
	APIKey           string `yaml:"api_key"`
	Organization     string `yaml:"organization"`
	OwnerOrg         string `yaml:"owner_org"`
	Maintainer       string `yaml:"maintainer"`
	InactivePolicy   string `yaml:"inactive_policy"`
	UpdatedByScript  string `yaml:"updated_by_script"`
	TagVocabularyID  string `yaml:"tag_vocabulary_id"`
	TimeoutSec       int    `yaml:"timeout_sec"`
	PublishShowcases bool   `yaml:"publish_showcases"`
}

// DatasetConfig holds the fixed values used when shaping datasets.
type DatasetConfig struct {
	DatasetNames     map[string]string `yaml:"dataset_names"`
	Static           StaticFields      `yaml:"static"`
	TitlePrefix      string            `yaml:"title_prefix"`
	ShowcaseImageURL string            `yaml:"showcase_image_url"`
	Location         string            `yaml:"location"`
	BaseTags         []string          `yaml:"base_tags"`
	AllowedTags      []string          `yaml:"allowed_tags"`
}

// StaticFields are copied verbatim onto every published dataset.
type StaticFields struct {
	LicenseID      string `yaml:"license_id"`
	Methodology    string `yaml:"methodology"`
	DatasetSource  string `yaml:"dataset_source"`
	PackageCreator string `yaml:"package_creator"`
	Caveats        string `yaml:"caveats"`
}

// RunConfig controls run bookkeeping.
type RunConfig struct {
	StatePath  string `yaml:"state_path"`
	ErrorsPath string `yaml:"errors_path"`
	WorkDir    string `yaml:"work_dir"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig loads configuration from YAML file.
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.ApplyDefaults()

	if key := os.Getenv(EnvCatalogAPIKey); key != "" {
		cfg.Catalog.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills zero values with the connector defaults.
func (c *Config) ApplyDefaults() {
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = defaultUserAgent
	}

	if c.Source.SavedDir == "" {
		c.Source.SavedDir = defaultSavedDir
	}

	if c.Source.BufferSizeKb == 0 {
		c.Source.BufferSizeKb = 64 * 1024
	}

	if c.Source.Retry == (RetryPolicy{}) {
		c.Source.Retry = RetryPolicy{
			MaxAttempts:       3,
			InitialDelayMs:    500,
			MaxDelayMs:        30000,
			BackoffMultiplier: 2.0,
			TimeoutSec:        60,
		}
	}

	if c.Catalog.InactivePolicy == "" {
		c.Catalog.InactivePolicy = PolicyArchive
	}

	if c.Catalog.UpdatedByScript == "" {
		c.Catalog.UpdatedByScript = defaultUpdatedByScript
	}

	if c.Catalog.TimeoutSec == 0 {
		c.Catalog.TimeoutSec = 120
	}

	if c.Dataset.TitlePrefix == "" {
		c.Dataset.TitlePrefix = defaultTitlePrefix
	}

	if c.Dataset.Location == "" {
		c.Dataset.Location = defaultLocation
	}

	if c.Run.ErrorsPath == "" {
		c.Run.ErrorsPath = defaultErrorsPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Source.BaseURL == "" {
		return ErrMissingBaseURL
	}

	u, err := url.Parse(c.Source.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.Source.BaseURL)
	}

	if c.Source.RequestsPerSecond < 0 {
		return ErrInvalidRateLimit
	}

	// Validate retry policy
	if c.Source.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if c.Source.Retry.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}

	if c.Source.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}

	if c.Source.Retry.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	// Validate catalog config
	if c.Catalog.URL == "" {
		return ErrMissingCatalogURL
	}

	if c.Catalog.Organization == "" {
		return ErrMissingOrganization
	}

	if c.Catalog.OwnerOrg == "" {
		return ErrMissingOwnerOrg
	}

	if c.Catalog.Maintainer == "" {
		return ErrMissingMaintainer
	}

	if c.Catalog.InactivePolicy != PolicyArchive && c.Catalog.InactivePolicy != PolicyPrivate {
		return fmt.Errorf("%w: got %q", ErrInvalidInactivePolicy, c.Catalog.InactivePolicy)
	}

	if len(c.Dataset.AllowedTags) == 0 {
		return ErrNoAllowedTags
	}

	if c.Run.StatePath == "" {
		return ErrMissingStatePath
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	return nil
}

// GetRetryDelay calculates exponential backoff delay for attempt number.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 1; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	// Cap at max delay
	if int(delayMs) > rp.MaxDelayMs {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(int(delayMs)) * time.Millisecond
}

// GetTimeout returns the timeout duration.
func (rp *RetryPolicy) GetTimeout() time.Duration {
	return time.Duration(rp.TimeoutSec) * time.Second
}

// CatalogName returns the catalog-facing name for a source dataset id,
// falling back to the id itself when no rename is configured.
func (d *DatasetConfig) CatalogName(datasetID string) string {
	if name, ok := d.DatasetNames[datasetID]; ok && name != "" {
		return name
	}

	return datasetID
}

// IsTagAllowed reports whether tag is on the allow-list.
func (d *DatasetConfig) IsTagAllowed(tag string) bool {
	for _, allowed := range d.AllowedTags {
		if allowed == tag {
			return true
		}
	}

	return false
}

// DataFilter returns the query suffix configured for a dataset's row endpoint.
func (s *SourceConfig) DataFilter(datasetID string) string {
	return s.DataFilters[datasetID]
}

// NormalizedBaseURL returns the base URL with exactly one trailing slash.
func (s *SourceConfig) NormalizedBaseURL() string {
	return strings.TrimRight(s.BaseURL, "/") + "/"
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Source: %s, Catalog: %s, Organization: %s, Policy: %s}",
		c.Source.BaseURL,
		c.Catalog.URL,
		c.Catalog.Organization,
		c.Catalog.InactivePolicy,
	)
}
