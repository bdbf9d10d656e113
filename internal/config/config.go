// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Renderer backends.
const (
	RendererChromedp = "chromedp"
	RendererStatic   = "static"
	RendererHybrid   = "hybrid"
)

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Lemma    LemmaConfig    `mapstructure:"lemma"`
	Search   SearchConfig   `mapstructure:"search"`
	Database DatabaseConfig `mapstructure:"database"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the query API.
type ServerConfig struct {
	Port                  int    `mapstructure:"port"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	CORSOrigin            string `mapstructure:"cors_origin"`
}

// CrawlerConfig governs the frontier scheduler and crawl tasks.
type CrawlerConfig struct {
	Concurrency           int    `mapstructure:"concurrency"`
	ThrottleIntervalMs    int    `mapstructure:"throttle_interval_ms"`
	IdleSleepSeconds      int    `mapstructure:"idle_sleep_seconds"`
	BackoffBaseMs         int    `mapstructure:"backoff_base_ms"`
	BackoffMaxExp         int    `mapstructure:"backoff_max_exp"`
	URLScheme             string `mapstructure:"url_scheme"`
	SeedFile              string `mapstructure:"seed_file"`
	SeedBatchSize         int    `mapstructure:"seed_batch_size"`
	UserAgent             string `mapstructure:"user_agent"`
	RobotsPolicy          string `mapstructure:"robots_policy"`
	RobotsTimeoutSeconds  int    `mapstructure:"robots_timeout_seconds"`
	RobotsCacheTTLSeconds int    `mapstructure:"robots_cache_ttl_seconds"`
	ValidateDNS           bool   `mapstructure:"validate_dns"`
	ShutdownGraceSeconds  int    `mapstructure:"shutdown_grace_seconds"`
}

// RendererConfig selects and tunes the page renderer.
type RendererConfig struct {
	Backend           string `mapstructure:"backend"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	ExecPath          string `mapstructure:"exec_path"`
	NoSandbox         bool   `mapstructure:"no_sandbox"`
}

// LemmaConfig points at the lemma dictionary.
type LemmaConfig struct {
	DictionaryPath string `mapstructure:"dictionary_path"`
	Fallback       string `mapstructure:"fallback"`
}

// SearchConfig tunes the ranking API.
type SearchConfig struct {
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
}

// DatabaseConfig controls access to Postgres. An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// ArchiveConfig selects where page text snapshots are written.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Prefix  string `mapstructure:"prefix"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
}

// EventsConfig holds Pub/Sub settings for document events.
type EventsConfig struct {
	Topic     string `mapstructure:"topic"`
	ProjectID string `mapstructure:"project_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindCompatEnv(v); err != nil {
		return Config{}, err
	}

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
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.cors_origin", "*")
	v.SetDefault("crawler.concurrency", 10)
	v.SetDefault("crawler.throttle_interval_ms", 100)
	v.SetDefault("crawler.idle_sleep_seconds", 60)
	v.SetDefault("crawler.backoff_base_ms", 1000)
	v.SetDefault("crawler.backoff_max_exp", 10)
	v.SetDefault("crawler.url_scheme", "https")
	v.SetDefault("crawler.seed_file", "top-1m.txt")
	v.SetDefault("crawler.seed_batch_size", 5000)
	v.SetDefault("crawler.user_agent", "realtime-search-bot/0.1")
	v.SetDefault("crawler.robots_policy", "root")
	v.SetDefault("crawler.robots_timeout_seconds", 10)
	v.SetDefault("crawler.robots_cache_ttl_seconds", 3600)
	v.SetDefault("crawler.validate_dns", true)
	v.SetDefault("crawler.shutdown_grace_seconds", 30)
	v.SetDefault("renderer.backend", RendererChromedp)
	v.SetDefault("renderer.nav_timeout_seconds", 120)
	v.SetDefault("renderer.exec_path", "")
	v.SetDefault("renderer.no_sandbox", false)
	v.SetDefault("lemma.dictionary_path", "lemmatizedMap.json")
	v.SetDefault("lemma.fallback", "identity")
	v.SetDefault("search.cache_ttl_seconds", 30)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime_seconds", 1800)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.dir", "archive")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("events.topic", "")
	v.SetDefault("events.project_id", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// bindCompatEnv keeps the bare environment names used by older deployments.
// The prefixed name wins when both are set.
func bindCompatEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"crawler.concurrency":          "CONCURRENCY_LIMIT",
		"crawler.throttle_interval_ms": "THROTTLE_INTERVAL_MS",
		"server.port":                  "PORT",
		"database.dsn":                 "DATABASE_URL",
	}
	for key, legacy := range bindings {
		prefixed := "SEARCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.ThrottleIntervalMs < 0 {
		return fmt.Errorf("crawler.throttle_interval_ms must be >= 0")
	}
	if c.Crawler.ShutdownGraceSeconds <= 0 {
		return fmt.Errorf("crawler.shutdown_grace_seconds must be > 0")
	}
	if c.Crawler.IdleSleepSeconds <= 0 {
		return fmt.Errorf("crawler.idle_sleep_seconds must be > 0")
	}
	if c.Crawler.BackoffBaseMs <= 0 {
		return fmt.Errorf("crawler.backoff_base_ms must be > 0")
	}
	if c.Crawler.BackoffMaxExp < 0 {
		return fmt.Errorf("crawler.backoff_max_exp must be >= 0")
	}
	if c.Crawler.URLScheme != "http" && c.Crawler.URLScheme != "https" {
		return fmt.Errorf("crawler.url_scheme must be http or https")
	}
	if c.Crawler.SeedBatchSize <= 0 {
		return fmt.Errorf("crawler.seed_batch_size must be > 0")
	}
	if c.Crawler.RobotsPolicy != "root" && c.Crawler.RobotsPolicy != "agent" {
		return fmt.Errorf("crawler.robots_policy must be root or agent")
	}
	switch c.Renderer.Backend {
	case RendererChromedp, RendererStatic, RendererHybrid:
	default:
		return fmt.Errorf("renderer.backend must be %s, %s or %s", RendererChromedp, RendererStatic, RendererHybrid)
	}
	if c.Renderer.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("renderer.nav_timeout_seconds must be > 0")
	}
	if c.Search.CacheTTLSeconds < 0 {
		return fmt.Errorf("search.cache_ttl_seconds must be >= 0")
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir must be set for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend must be one of none, memory, local, gcs")
	}
	return nil
}

// ThrottleInterval is the re-check interval kept for THROTTLE_INTERVAL_MS.
// The channel-based throttle wakes waiters on release and does not use it.
func (c CrawlerConfig) ThrottleInterval() time.Duration {
	return time.Duration(c.ThrottleIntervalMs) * time.Millisecond
}

// IdleSleep is the pause after an empty batch.
func (c CrawlerConfig) IdleSleep() time.Duration {
	return time.Duration(c.IdleSleepSeconds) * time.Second
}

// BackoffBase is the retry delay unit.
func (c CrawlerConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// ShutdownGrace bounds how long in-flight HTTP requests get to finish on stop.
func (c CrawlerConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// NavTimeout is the per-page navigation budget.
func (c RendererConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}

// CacheTTL is how long query responses are cached.
func (c SearchConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RequestTimeout bounds each API request.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
