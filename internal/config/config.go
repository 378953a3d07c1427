// Package config loads service configuration from the environment and an optional
// config file.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved service configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	LLM       LLMConfig
	JWT       JWTSettings
	Catalog   CatalogConfig
	Voice     VoiceConfig
	Provider  ProviderConfig
	Review    ReviewConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig configures Postgres access.
type DatabaseConfig struct {
	URL string
}

// LLMConfig configures the feedback scoring provider.
type LLMConfig struct {
	APIKey     string
	Categories []string
}

// JWTSettings are the raw token settings; JWTConfig validates them.
type JWTSettings struct {
	Secret          string
	ExpirationHours int
}

// CatalogConfig locates the question catalog. An empty path uses the built-in catalog.
type CatalogConfig struct {
	Path string
}

// VoiceConfig configures voice sessions and the signaling provider.
type VoiceConfig struct {
	SignalingURL    string
	SignalingAPIKey string
	WebhookBaseURL  string
	WebhookSecret   string
	STUNURLs        []string
	IdleTimeout     time.Duration
	SweepInterval   time.Duration
	Retention       time.Duration
}

// ProviderConfig bounds retries against external providers.
type ProviderConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// ReviewConfig configures the review queue. Empty Levels reviews every level.
type ReviewConfig struct {
	Levels []int
}

// RateLimitConfig configures request limiting.
type RateLimitConfig struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       string
	Blacklist       string
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string
	Pretty bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)
	v.SetDefault("JWT_EXPIRATION_HOURS", 24)
	v.SetDefault("VOICE_IDLE_TIMEOUT", 5*time.Minute)
	v.SetDefault("VOICE_SWEEP_INTERVAL", 30*time.Second)
	v.SetDefault("VOICE_RETENTION", 15*time.Minute)
	v.SetDefault("PROVIDER_MAX_ATTEMPTS", 3)
	v.SetDefault("PROVIDER_BASE_DELAY", 500*time.Millisecond)
	v.SetDefault("PROVIDER_MAX_DELAY", 5*time.Second)
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_DEFAULT_LIMIT", 1000)
	v.SetDefault("RATE_LIMIT_DEFAULT_WINDOW", time.Minute)
	v.SetDefault("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
}

// Load reads configuration from the environment, overlaid on the file at path when
// one is given. Keys use the environment spelling in both sources.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if strings.HasSuffix(path, ".env") {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	levels, err := parseLevels(v.GetString("REVIEW_LEVELS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("SERVER_PORT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{URL: v.GetString("DATABASE_URL")},
		LLM: LLMConfig{
			APIKey:     v.GetString("GEMINI_API_KEY"),
			Categories: splitList(v.GetString("FEEDBACK_CATEGORIES")),
		},
		JWT: JWTSettings{
			Secret:          v.GetString("JWT_SECRET"),
			ExpirationHours: v.GetInt("JWT_EXPIRATION_HOURS"),
		},
		Catalog: CatalogConfig{Path: v.GetString("CATALOG_PATH")},
		Voice: VoiceConfig{
			SignalingURL:    v.GetString("VOICE_SIGNALING_URL"),
			SignalingAPIKey: v.GetString("VOICE_SIGNALING_API_KEY"),
			WebhookBaseURL:  v.GetString("VOICE_WEBHOOK_BASE_URL"),
			WebhookSecret:   v.GetString("VOICE_WEBHOOK_SECRET"),
			STUNURLs:        splitList(v.GetString("VOICE_STUN_URLS")),
			IdleTimeout:     v.GetDuration("VOICE_IDLE_TIMEOUT"),
			SweepInterval:   v.GetDuration("VOICE_SWEEP_INTERVAL"),
			Retention:       v.GetDuration("VOICE_RETENTION"),
		},
		Provider: ProviderConfig{
			MaxAttempts: v.GetInt("PROVIDER_MAX_ATTEMPTS"),
			BaseDelay:   v.GetDuration("PROVIDER_BASE_DELAY"),
			MaxDelay:    v.GetDuration("PROVIDER_MAX_DELAY"),
		},
		Review: ReviewConfig{Levels: levels},
		RateLimit: RateLimitConfig{
			Enabled:         v.GetBool("RATE_LIMIT_ENABLED"),
			DefaultLimit:    v.GetInt("RATE_LIMIT_DEFAULT_LIMIT"),
			DefaultWindow:   v.GetDuration("RATE_LIMIT_DEFAULT_WINDOW"),
			CleanupInterval: v.GetDuration("RATE_LIMIT_CLEANUP_INTERVAL"),
			Whitelist:       v.GetString("RATE_LIMIT_WHITELIST"),
			Blacklist:       v.GetString("RATE_LIMIT_BLACKLIST"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Pretty: v.GetBool("LOG_PRETTY"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration has valid values. Secrets are checked by
// the components that need them.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: SERVER_PORT out of range: %d", c.Server.Port)
	}
	if c.Provider.MaxAttempts < 1 {
		return fmt.Errorf("config error: PROVIDER_MAX_ATTEMPTS must be at least 1")
	}
	if c.Voice.IdleTimeout <= 0 {
		return fmt.Errorf("config error: VOICE_IDLE_TIMEOUT must be positive")
	}
	if c.Voice.SweepInterval <= 0 {
		return fmt.Errorf("config error: VOICE_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// JWTConfig returns the validated token configuration.
func (c *Config) JWTConfig() (*JWTConfig, error) {
	return NewJWTConfig(c.JWT.Secret, c.JWT.ExpirationHours)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevels(s string) ([]int, error) {
	var levels []int
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("config error: invalid level %q in REVIEW_LEVELS", part)
		}
		levels = append(levels, n)
	}
	return levels, nil
}
