package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/quantmind-br/photofeed/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Flickr  FlickrConfig  `mapstructure:"flickr" yaml:"flickr"`
	Feed    FeedConfig    `mapstructure:"feed" yaml:"feed"`
	Poll    PollConfig    `mapstructure:"poll" yaml:"poll"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// FlickrConfig contains photo source settings
type FlickrConfig struct {
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	UserAgent  string        `mapstructure:"user_agent" yaml:"user_agent"`
	RateLimit  int           `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// FeedConfig contains foreground list settings
type FeedConfig struct {
	PageSize int           `mapstructure:"page_size" yaml:"page_size"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// PollConfig contains background reconciliation settings
type PollConfig struct {
	Interval     time.Duration `mapstructure:"interval" yaml:"interval"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryInitial time.Duration `mapstructure:"retry_initial" yaml:"retry_initial"`
	RetryMax     time.Duration `mapstructure:"retry_max" yaml:"retry_max"`
}

// StoreConfig contains snapshot/scheduler store settings
type StoreConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	InMemory  bool   `mapstructure:"in_memory" yaml:"in_memory"`
}

// CacheConfig contains cache settings
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Directory string        `mapstructure:"directory" yaml:"directory"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig contains the prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Flickr.BaseURL == "" {
		c.Flickr.BaseURL = DefaultFlickrBaseURL
	} else if u, err := url.Parse(c.Flickr.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid flickr.base_url %q: %w", c.Flickr.BaseURL, domain.ErrInvalidURL)
	}
	if c.Flickr.Timeout < time.Second {
		c.Flickr.Timeout = DefaultTimeout
	}
	if c.Flickr.MaxRetries < 0 {
		c.Flickr.MaxRetries = DefaultMaxRetries
	}
	if c.Flickr.RateLimit <= 0 {
		c.Flickr.RateLimit = DefaultRateLimit
	}
	if c.Feed.PageSize < 1 || c.Feed.PageSize > MaxPageSize {
		c.Feed.PageSize = DefaultPageSize
	}
	if c.Feed.Debounce <= 0 {
		c.Feed.Debounce = DefaultDebounce
	}
	if c.Poll.Interval < MinPollInterval {
		c.Poll.Interval = DefaultPollInterval
	}
	if c.Poll.InitialDelay < 0 {
		c.Poll.InitialDelay = 0
	}
	if c.Poll.MaxRetries < 0 {
		c.Poll.MaxRetries = DefaultPollMaxRetries
	}
	if c.Poll.RetryInitial <= 0 {
		c.Poll.RetryInitial = DefaultPollRetryInitial
	}
	if c.Poll.RetryMax < c.Poll.RetryInitial {
		c.Poll.RetryMax = DefaultPollRetryMax
	}
	if c.Cache.TTL < time.Minute {
		c.Cache.TTL = DefaultCacheTTL
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "pretty", "text":
	default:
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = DefaultMetricsAddress
	}
	return nil
}

// RequireAPIKey reports a missing API key. Only commands that talk to the
// photo source call it, so `snapshot show` works without credentials.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Flickr.APIKey) == "" {
		return fmt.Errorf("flickr.api_key: %w (set %s_FLICKR_API_KEY)", domain.ErrMissingAPIKey, EnvPrefix)
	}
	return nil
}
