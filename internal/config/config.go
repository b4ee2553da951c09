package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ADAPTER_"

// Config is built once at process start and passed to constructors.
type Config struct {
	DeepSeekAPIKey      string        `koanf:"deepseek_api_key"`
	DeepSeekAPIKeyParam string        `koanf:"deepseek_api_key_param"`
	DeepSeekBaseURL     string        `koanf:"deepseek_base_url"`
	DeepSeekModel       string        `koanf:"deepseek_model"`
	DeepSeekMaxTokens   int           `koanf:"deepseek_max_tokens"`
	DeepSeekTemperature float64       `koanf:"deepseek_temperature"`
	// DeepSeekTimeout bounds connecting and each silent gap in the stream,
	// not the total length of a completion.
	DeepSeekTimeout     time.Duration `koanf:"deepseek_timeout"`

	// CompletionAttempts bounds how many times a retryable completion
	// failure is attempted. 1 disables retries.
	CompletionAttempts int `koanf:"completion_attempts"`

	TextometrURL     string        `koanf:"textometr_url"`
	TextometrTimeout time.Duration `koanf:"textometr_timeout"`

	UsersTable      string        `koanf:"users_table"`
	SendGridAPIKey  string        `koanf:"sendgrid_api_key"`
	MailFromName    string        `koanf:"mail_from_name"`
	MailFromEmail   string        `koanf:"mail_from_email"`
	VerificationTTL time.Duration `koanf:"verification_ttl"`

	LogLevel       string `koanf:"log_level"`
	TracingEnabled bool   `koanf:"tracing_enabled"`
}

var defaults = map[string]any{
	"deepseek_base_url":    "https://api.deepseek.com",
	"deepseek_model":       "deepseek-chat",
	"deepseek_max_tokens":  8000,
	"deepseek_temperature": 0.7,
	"deepseek_timeout":     "120s",
	"completion_attempts":  1,
	"textometr_timeout":    "30s",
	"mail_from_name":       "Text Adapter",
	"verification_ttl":     "2m",
	"log_level":            "info",
	"tracing_enabled":      false,
}

// Load reads an optional .env file, then ADAPTER_* environment variables,
// applies defaults and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("config: default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DeepSeekAPIKey) == "" && strings.TrimSpace(c.DeepSeekAPIKeyParam) == "" {
		errs = append(errs, errors.New("one of DEEPSEEK_API_KEY or DEEPSEEK_API_KEY_PARAM is required"))
	}
	if strings.TrimSpace(c.TextometrURL) == "" {
		errs = append(errs, errors.New("TEXTOMETR_URL is required"))
	}
	if strings.TrimSpace(c.UsersTable) == "" {
		errs = append(errs, errors.New("USERS_TABLE is required"))
	}
	if c.DeepSeekTimeout <= 0 {
		errs = append(errs, errors.New("DEEPSEEK_TIMEOUT must be positive"))
	}
	if c.CompletionAttempts < 1 {
		errs = append(errs, errors.New("COMPLETION_ATTEMPTS must be at least 1"))
	}
	if c.VerificationTTL <= 0 {
		errs = append(errs, errors.New("VERIFICATION_TTL must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
