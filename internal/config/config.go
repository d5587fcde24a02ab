// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Data     DataConfig     `mapstructure:"data"`
	DocStore DocStoreConfig `mapstructure:"docstore"`
	Search   SearchConfig   `mapstructure:"search"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Events   EventsConfig   `mapstructure:"events"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ScrapeConfig governs the pagination driver and the fetch client identity.
type ScrapeConfig struct {
	BaseURL         string  `mapstructure:"base_url"`
	MaxPages        int     `mapstructure:"max_pages"`
	MinDelaySeconds float64 `mapstructure:"min_delay_seconds"`
	MaxDelaySeconds float64 `mapstructure:"max_delay_seconds"`
	UserAgent       string  `mapstructure:"user_agent"`
	AcceptLanguage  string  `mapstructure:"accept_language"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds            int `mapstructure:"timeout_seconds"`
	MaxAttempts               int `mapstructure:"max_attempts"`
	BackoffBaseMs             int `mapstructure:"backoff_base_ms"`
	RetryAfterFallbackSeconds int `mapstructure:"retry_after_fallback_seconds"`
}

// DataConfig sets directories for the intermediate run artifacts.
type DataConfig struct {
	RawDir   string `mapstructure:"raw_dir"`
	CleanDir string `mapstructure:"clean_dir"`
}

// DocStoreConfig controls access to the document store.
type DocStoreConfig struct {
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	ChunkSize int    `mapstructure:"chunk_size"`
	MaxConns  int32  `mapstructure:"max_conns"`
}

// SearchConfig controls access to the search index.
type SearchConfig struct {
	Addresses      []string `mapstructure:"addresses"`
	Index          string   `mapstructure:"index"`
	ChunkSize      int      `mapstructure:"chunk_size"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	Username       string   `mapstructure:"username"`
	Password       string   `mapstructure:"password"`
	APIKey         string   `mapstructure:"api_key"`
}

// ArchiveConfig names the optional bucket raw artifacts are mirrored to.
type ArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// EventsConfig holds metadata for run-summary notifications.
type EventsConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the optional ops listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REVIEWPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scrape.max_pages", 10)
	v.SetDefault("scrape.min_delay_seconds", 1.5)
	v.SetDefault("scrape.max_delay_seconds", 3.5)
	v.SetDefault("scrape.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36")
	v.SetDefault("scrape.accept_language", "fr-FR,fr;q=0.9,en;q=0.8")
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.max_attempts", 5)
	v.SetDefault("http.backoff_base_ms", 1200)
	v.SetDefault("http.retry_after_fallback_seconds", 30)
	v.SetDefault("data.raw_dir", "data/raw")
	v.SetDefault("data.clean_dir", "data/clean")
	v.SetDefault("docstore.table", "avis")
	v.SetDefault("docstore.chunk_size", 1000)
	v.SetDefault("docstore.max_conns", 10)
	v.SetDefault("search.index", "avis")
	v.SetDefault("search.chunk_size", 500)
	v.SetDefault("search.timeout_seconds", 120)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits. Sink endpoints
// are checked by the commands that need them, so that scrape-only runs do
// not require a configured store.
func (c Config) Validate() error {
	if c.Scrape.MaxPages <= 0 {
		return fmt.Errorf("scrape.max_pages must be > 0")
	}
	if c.Scrape.MinDelaySeconds < 0 || c.Scrape.MaxDelaySeconds < c.Scrape.MinDelaySeconds {
		return fmt.Errorf("scrape delay window is invalid: [%v, %v]",
			c.Scrape.MinDelaySeconds, c.Scrape.MaxDelaySeconds)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.DocStore.ChunkSize <= 0 {
		return fmt.Errorf("docstore.chunk_size must be > 0")
	}
	if c.Search.ChunkSize <= 0 {
		return fmt.Errorf("search.chunk_size must be > 0")
	}
	return nil
}

// Timeout converts the HTTP timeout config into a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffBase converts the backoff config into a duration.
func (c HTTPConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// RetryAfterFallback is the wait applied on 429 without a usable Retry-After.
func (c HTTPConfig) RetryAfterFallback() time.Duration {
	return time.Duration(c.RetryAfterFallbackSeconds) * time.Second
}

// DelayWindow returns the randomized inter-page delay bounds.
func (c ScrapeConfig) DelayWindow() (time.Duration, time.Duration) {
	minDelay := time.Duration(c.MinDelaySeconds * float64(time.Second))
	maxDelay := time.Duration(c.MaxDelaySeconds * float64(time.Second))
	return minDelay, maxDelay
}
