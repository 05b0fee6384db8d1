package config

import (
	"os"
	"path/filepath"
	"time"
)

// EnvPrefix is the prefix of environment overrides (PHOTOFEED_FEED_PAGE_SIZE)
const EnvPrefix = "PHOTOFEED"

// Default values
const (
	// Photo source defaults
	DefaultFlickrBaseURL = "https://api.flickr.com/services/rest/"
	DefaultTimeout       = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultRateLimit     = 3600 // requests per hour

	// Feed defaults
	DefaultPageSize = 30
	MaxPageSize     = 500
	DefaultDebounce = 400 * time.Millisecond

	// Poll defaults
	DefaultPollInterval     = 15 * time.Minute
	MinPollInterval         = time.Minute
	DefaultPollMaxRetries   = 3
	DefaultPollRetryInitial = 30 * time.Second
	DefaultPollRetryMax     = 10 * time.Minute

	// Cache defaults
	DefaultCacheEnabled = true
	DefaultCacheTTL     = 24 * time.Hour

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "pretty"

	// Metrics defaults
	DefaultMetricsAddress = "127.0.0.1:9464"
)

// ConfigDir returns the config directory path
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".photofeed"
	}
	return filepath.Join(home, ".photofeed")
}

// CacheDir returns the cache directory path
func CacheDir() string {
	return filepath.Join(ConfigDir(), "cache")
}

// StoreDir returns the snapshot and scheduler store path
func StoreDir() string {
	return filepath.Join(ConfigDir(), "store")
}

// ConfigFilePath returns the config file path
func ConfigFilePath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Flickr: FlickrConfig{
			BaseURL:    DefaultFlickrBaseURL,
			Timeout:    DefaultTimeout,
			MaxRetries: DefaultMaxRetries,
			RateLimit:  DefaultRateLimit,
		},
		Feed: FeedConfig{
			PageSize: DefaultPageSize,
			Debounce: DefaultDebounce,
		},
		Poll: PollConfig{
			Interval:     DefaultPollInterval,
			MaxRetries:   DefaultPollMaxRetries,
			RetryInitial: DefaultPollRetryInitial,
			RetryMax:     DefaultPollRetryMax,
		},
		Store: StoreConfig{
			Directory: StoreDir(),
		},
		Cache: CacheConfig{
			Enabled:   DefaultCacheEnabled,
			TTL:       DefaultCacheTTL,
			Directory: CacheDir(),
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddress,
		},
	}
}
