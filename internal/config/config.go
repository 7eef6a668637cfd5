// Package config loads tripmatch settings from config.yaml and TRIPMATCH_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Location   LocationConfig   `yaml:"location" mapstructure:"location"`
	Attachment AttachmentConfig `yaml:"attachment" mapstructure:"attachment"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the extraction call.
type AnthropicConfig struct {
	Key          string      `yaml:"key" mapstructure:"key"`
	BaseURL      string      `yaml:"base_url" mapstructure:"base_url"`
	SonnetModel  string      `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	MaxTokens    int64       `yaml:"max_tokens" mapstructure:"max_tokens"`
	ExampleLimit int         `yaml:"example_limit" mapstructure:"example_limit"`
	Retry        RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures retries of the extraction call.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// EngineConfig tunes normalization and matching.
type EngineConfig struct {
	ToleranceDays     int     `yaml:"tolerance_days" mapstructure:"tolerance_days"`
	ReviewThreshold   float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
	YearSearchHorizon int     `yaml:"year_search_horizon" mapstructure:"year_search_horizon"`
	Timezone          string  `yaml:"timezone" mapstructure:"timezone"`
	// Routing is "first_item" or "by_kind".
	Routing string `yaml:"routing" mapstructure:"routing"`
}

// Location returns the zone used to pick the processing day. An empty
// timezone means UTC.
func (e EngineConfig) Location() (*time.Location, error) {
	if e.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", e.Timezone)
	}
	return loc, nil
}

// LocationConfig configures the airport resolver.
type LocationConfig struct {
	AirportsFile string `yaml:"airports_file" mapstructure:"airports_file"`
}

// AttachmentConfig configures PDF attachment text extraction.
type AttachmentConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port"`
	RateLimit    float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst    int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRIPMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "tripmatch.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.example_limit", 3)
	v.SetDefault("anthropic.retry.max_attempts", 3)
	v.SetDefault("anthropic.retry.initial_backoff_ms", 500)
	v.SetDefault("anthropic.retry.max_backoff_ms", 10000)
	v.SetDefault("engine.tolerance_days", 1)
	v.SetDefault("engine.review_threshold", 0.65)
	v.SetDefault("engine.year_search_horizon", 8)
	v.SetDefault("engine.timezone", "UTC")
	v.SetDefault("engine.routing", "first_item")
	v.SetDefault("location.airports_file", "")
	v.SetDefault("attachment.pdftotext_path", "pdftotext")
	v.SetDefault("batch.max_concurrent_documents", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is the command name:
// normalize, assign, batch, serve, migrate or examples.
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := func() {
		switch c.Store.Driver {
		case "postgres", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}
	needExtraction := func() {
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	}

	switch mode {
	case "normalize":
	case "migrate", "examples":
		needStore()
	case "assign", "batch":
		needStore()
		needExtraction()
	case "serve":
		needStore()
		needExtraction()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RateLimit <= 0 {
			errs = append(errs, "server.rate_limit must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Engine.ReviewThreshold <= 0 || c.Engine.ReviewThreshold > 1 {
		errs = append(errs, "engine.review_threshold must be in (0, 1]")
	}
	if c.Engine.ToleranceDays < 0 {
		errs = append(errs, "engine.tolerance_days must be >= 0")
	}
	if c.Engine.YearSearchHorizon < 1 {
		errs = append(errs, "engine.year_search_horizon must be >= 1")
	}
	switch c.Engine.Routing {
	case "", "first_item", "by_kind":
	default:
		errs = append(errs, fmt.Sprintf("engine.routing %q must be first_item or by_kind", c.Engine.Routing))
	}
	if _, err := c.Engine.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("engine.timezone %q is not a known zone", c.Engine.Timezone))
	}
	if mode == "batch" && (c.Batch.MaxConcurrentDocuments < 1 || c.Batch.MaxConcurrentDocuments > 50) {
		errs = append(errs, "batch.max_concurrent_documents must be between 1 and 50")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
