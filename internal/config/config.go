// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/wellness-aggregator/internal/relevance"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Relevance RelevanceConfig `mapstructure:"relevance"`
	Coach     CoachConfig     `mapstructure:"coach"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// RequestTimeout is the per-request handler budget.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FetchConfig configures the outbound fetch client.
type FetchConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	AcceptLanguage string  `mapstructure:"accept_language"`
	Accept         string  `mapstructure:"accept"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Timeout is the default per-fetch timeout.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// SourceConfig configures one upstream adapter.
type SourceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRecords     int    `mapstructure:"max_records"`
}

// Timeout is the adapter's fetch timeout.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// EventbriteConfig adds an optional region prefix to the discovery path.
type EventbriteConfig struct {
	SourceConfig `mapstructure:",squash"`
	Region       string `mapstructure:"region"`
}

// SourcesConfig groups the adapters.
type SourcesConfig struct {
	AllEvents  SourceConfig     `mapstructure:"allevents"`
	Eventbrite EventbriteConfig `mapstructure:"eventbrite"`
	Places     SourceConfig     `mapstructure:"places"`
}

// RelevanceConfig holds the in-domain vocabulary.
type RelevanceConfig struct {
	Keywords []string `mapstructure:"keywords"`
}

// FallbackRule maps question keywords to a canned coach answer.
type FallbackRule struct {
	Keywords []string `mapstructure:"keywords"`
	Response string   `mapstructure:"response"`
}

// CoachConfig configures the generative endpoints and their fallback.
// Empty FallbackRules and DefaultAnswer select the built-in answers.
type CoachConfig struct {
	APIKey                string         `mapstructure:"api_key"`
	BaseURL               string         `mapstructure:"base_url"`
	Models                []string       `mapstructure:"models"`
	TimeoutSeconds        int            `mapstructure:"timeout_seconds"`
	RateLimitDelaySeconds int            `mapstructure:"rate_limit_delay_seconds"`
	Temperature           float64        `mapstructure:"temperature"`
	MaxOutputTokens       int            `mapstructure:"max_output_tokens"`
	FallbackRules         []FallbackRule `mapstructure:"fallback_rules"`
	DefaultAnswer         string         `mapstructure:"default_answer"`
}

// Timeout is the per-endpoint HTTP timeout.
func (c CoachConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateLimitDelay is the pause before retrying a rate-limited endpoint.
func (c CoachConfig) RateLimitDelay() time.Duration {
	return time.Duration(c.RateLimitDelaySeconds) * time.Second
}

// Load builds a Config from disk/environment. Environment variables use the
// AGGREGATOR_ prefix with dots replaced by underscores; PORT and
// GEMINI_API_KEY are also honored.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGGREGATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
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

func bindEnv(v *viper.Viper) error {
	if err := v.BindEnv("server.port", "AGGREGATOR_SERVER_PORT", "PORT"); err != nil {
		return fmt.Errorf("bind server.port: %w", err)
	}
	if err := v.BindEnv("coach.api_key", "AGGREGATOR_COACH_API_KEY", "GEMINI_API_KEY"); err != nil {
		return fmt.Errorf("bind coach.api_key: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 90)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("fetch.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("fetch.accept_language", "en-US,en;q=0.9")
	v.SetDefault("fetch.accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.rate_limit_rps", 0)
	v.SetDefault("fetch.rate_limit_burst", 1)

	v.SetDefault("sources.allevents.enabled", true)
	v.SetDefault("sources.allevents.base_url", "https://allevents.in")
	v.SetDefault("sources.allevents.timeout_seconds", 10)
	v.SetDefault("sources.allevents.max_records", 15)
	v.SetDefault("sources.eventbrite.enabled", true)
	v.SetDefault("sources.eventbrite.base_url", "https://www.eventbrite.com")
	v.SetDefault("sources.eventbrite.timeout_seconds", 15)
	v.SetDefault("sources.eventbrite.max_records", 15)
	v.SetDefault("sources.eventbrite.region", "")
	v.SetDefault("sources.places.enabled", true)
	v.SetDefault("sources.places.base_url", "https://www.google.com")
	v.SetDefault("sources.places.timeout_seconds", 10)
	v.SetDefault("sources.places.max_records", 10)

	v.SetDefault("relevance.keywords", relevance.DefaultKeywords)

	v.SetDefault("coach.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("coach.models", []string{"gemini-2.0-flash", "gemini-1.5-flash", "gemini-1.5-pro", "gemini-pro"})
	v.SetDefault("coach.timeout_seconds", 15)
	v.SetDefault("coach.rate_limit_delay_seconds", 10)
	v.SetDefault("coach.temperature", 0.7)
	v.SetDefault("coach.max_output_tokens", 512)
	v.SetDefault("coach.default_answer", "")
}

// Validate enforces required values and reasonable limits. The coach API key
// is optional here; a missing key is reported per request.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return errors.New("server.request_timeout_seconds must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return errors.New("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.RateLimitRPS > 0 && c.Fetch.RateLimitBurst <= 0 {
		return errors.New("fetch.rate_limit_burst must be > 0 when rate limiting is enabled")
	}
	for name, s := range map[string]SourceConfig{
		"allevents":  c.Sources.AllEvents,
		"eventbrite": c.Sources.Eventbrite.SourceConfig,
		"places":     c.Sources.Places,
	} {
		if !s.Enabled {
			continue
		}
		if strings.TrimSpace(s.BaseURL) == "" {
			return fmt.Errorf("sources.%s.base_url must be set when the source is enabled", name)
		}
		if s.TimeoutSeconds <= 0 {
			return fmt.Errorf("sources.%s.timeout_seconds must be > 0", name)
		}
		if s.MaxRecords < 0 {
			return fmt.Errorf("sources.%s.max_records must be >= 0", name)
		}
	}
	if len(c.Coach.Models) == 0 {
		return errors.New("coach.models must list at least one model")
	}
	if c.Coach.TimeoutSeconds <= 0 {
		return errors.New("coach.timeout_seconds must be > 0")
	}
	if c.Coach.RateLimitDelaySeconds < 0 {
		return errors.New("coach.rate_limit_delay_seconds must be >= 0")
	}
	return nil
}
