package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load resolves the configuration through the global viper instance, which
// is where the CLI binds its flags. Precedence: flags, PHOTOFEED_*
// environment, config file, defaults.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom resolves the configuration through v
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(ConfigDir())
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Every key needs a default so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("flickr.api_key", d.Flickr.APIKey)
	v.SetDefault("flickr.base_url", d.Flickr.BaseURL)
	v.SetDefault("flickr.timeout", d.Flickr.Timeout)
	v.SetDefault("flickr.max_retries", d.Flickr.MaxRetries)
	v.SetDefault("flickr.user_agent", d.Flickr.UserAgent)
	v.SetDefault("flickr.rate_limit", d.Flickr.RateLimit)

	v.SetDefault("feed.page_size", d.Feed.PageSize)
	v.SetDefault("feed.debounce", d.Feed.Debounce)

	v.SetDefault("poll.interval", d.Poll.Interval)
	v.SetDefault("poll.initial_delay", d.Poll.InitialDelay)
	v.SetDefault("poll.max_retries", d.Poll.MaxRetries)
	v.SetDefault("poll.retry_initial", d.Poll.RetryInitial)
	v.SetDefault("poll.retry_max", d.Poll.RetryMax)

	v.SetDefault("store.directory", d.Store.Directory)
	v.SetDefault("store.in_memory", d.Store.InMemory)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.directory", d.Cache.Directory)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)
}

// EnsureConfigDir creates ~/.photofeed if needed
func EnsureConfigDir() error {
	return os.MkdirAll(ConfigDir(), 0755)
}

// Marshal renders cfg as the YAML a config file holds
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes cfg to path. The file may hold an API key, so it is only
// readable by the owner.
func Save(cfg *Config, path string) error {
	data, err := Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Redacted returns a copy of cfg that is safe to print
func (c *Config) Redacted() *Config {
	cp := *c
	if k := cp.Flickr.APIKey; len(k) > 4 {
		cp.Flickr.APIKey = strings.Repeat("*", len(k)-4) + k[len(k)-4:]
	} else if k != "" {
		cp.Flickr.APIKey = "****"
	}
	return &cp
}
