// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Backoff    BackoffConfig    `mapstructure:"backoff"`
	Frontier   FrontierConfig   `mapstructure:"frontier"`
	Articles   ArticlesConfig   `mapstructure:"articles"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the crawl run.
type CrawlerConfig struct {
	SeedURLs             []string `mapstructure:"seed_urls"`
	AllowedHosts         []string `mapstructure:"allowed_hosts"`
	Workers              int      `mapstructure:"workers"`
	MaxRetries           int      `mapstructure:"max_retries"`
	UserAgent            string   `mapstructure:"user_agent"`
	RespectRobots        bool     `mapstructure:"respect_robots"`
	MinArticleTextLength int      `mapstructure:"min_article_text_length"`
	DrainTimeoutSeconds  int      `mapstructure:"drain_timeout_seconds"`
}

// HostOverride is a per-host politeness override.
type HostOverride struct {
	MinDelaySeconds      float64 `mapstructure:"min_delay_seconds"`
	MaxConcurrentPerHost int     `mapstructure:"max_concurrent_per_host"`
}

// PolitenessConfig sets per-host fetch limits.
type PolitenessConfig struct {
	MinDelaySeconds      float64                 `mapstructure:"min_delay_seconds"`
	MaxConcurrentPerHost int                     `mapstructure:"max_concurrent_per_host"`
	Hosts                map[string]HostOverride `mapstructure:"hosts"`
}

// BackoffConfig sets retry backoff bounds.
type BackoffConfig struct {
	InitialMs int `mapstructure:"initial_ms"`
	MaxMs     int `mapstructure:"max_ms"`
}

// PostgresConfig points the frontier journal at Postgres.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// FrontierConfig selects and configures the frontier store backend.
type FrontierConfig struct {
	Provider string         `mapstructure:"provider"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// MongoConfig points the article store at MongoDB.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// ArticlesConfig selects and configures the article store backend.
type ArticlesConfig struct {
	Provider string      `mapstructure:"provider"`
	Mongo    MongoConfig `mapstructure:"mongo"`
}

// HTTPConfig configures outbound HTTP behavior.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSDEX")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.user_agent", "newsdex-bot/0.1")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.min_article_text_length", 150)
	v.SetDefault("crawler.drain_timeout_seconds", 30)
	v.SetDefault("politeness.min_delay_seconds", 1.0)
	v.SetDefault("politeness.max_concurrent_per_host", 2)
	v.SetDefault("backoff.initial_ms", 500)
	v.SetDefault("backoff.max_ms", 300_000)
	v.SetDefault("frontier.provider", "memory")
	v.SetDefault("frontier.postgres.table", "frontier")
	v.SetDefault("articles.provider", "memory")
	v.SetDefault("articles.mongo.database", "newsdex")
	v.SetDefault("articles.mongo.collection", "articles")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if len(c.Crawler.SeedURLs) == 0 {
		return fmt.Errorf("crawler.seed_urls must not be empty")
	}
	for _, seed := range c.Crawler.SeedURLs {
		u, err := url.Parse(seed)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("crawler.seed_urls entry %q is not an absolute http(s) url", seed)
		}
	}
	if c.Politeness.MinDelaySeconds < 0 {
		return fmt.Errorf("politeness.min_delay_seconds must be >= 0")
	}
	if c.Backoff.InitialMs <= 0 || c.Backoff.MaxMs < c.Backoff.InitialMs {
		return fmt.Errorf("backoff.initial_ms must be > 0 and <= backoff.max_ms")
	}
	switch c.Frontier.Provider {
	case "memory":
	case "postgres":
		if c.Frontier.Postgres.DSN == "" {
			return fmt.Errorf("frontier.postgres.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("frontier.provider must be memory or postgres, got %q", c.Frontier.Provider)
	}
	switch c.Articles.Provider {
	case "memory":
	case "mongo":
		if c.Articles.Mongo.URI == "" {
			return fmt.Errorf("articles.mongo.uri must be set for the mongo provider")
		}
	default:
		return fmt.Errorf("articles.provider must be memory or mongo, got %q", c.Articles.Provider)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	return nil
}

// DrainTimeout returns the drain budget as a duration.
func (c Config) DrainTimeout() time.Duration {
	return time.Duration(c.Crawler.DrainTimeoutSeconds) * time.Second
}

// HTTPTimeout returns the outbound request timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffInitial returns the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Backoff.InitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay cap.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Backoff.MaxMs) * time.Millisecond
}

// MinDelay converts the default politeness delay to a duration.
func (p PolitenessConfig) MinDelay() time.Duration {
	return time.Duration(p.MinDelaySeconds * float64(time.Second))
}

// MinDelay converts a host override's delay to a duration.
func (h HostOverride) MinDelay() time.Duration {
	return time.Duration(h.MinDelaySeconds * float64(time.Second))
}
