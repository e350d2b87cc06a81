package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/skosovsky/toolloop"
)

const (
	defaultProvider   = ProviderAnthropic
	defaultTimeout    = 2 * time.Minute
	defaultMaxRetries = 2
	defaultLogFormat  = LogFormatText
	defaultLogLevel   = slog.LevelWarn
)

type ProviderKind string

const (
	ProviderAnthropic    ProviderKind = "anthropic"
	ProviderOpenAI       ProviderKind = "openai"
	ProviderOpenAICompat ProviderKind = "openaicompat"
)

// defaultModels is used when AGENTRUN_MODEL is unset.
var defaultModels = map[ProviderKind]string{
	ProviderAnthropic:    "claude-sonnet-4-5",
	ProviderOpenAI:       "gpt-4.1-mini",
	ProviderOpenAICompat: "qwen2.5:7b",
}

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Config is read from AGENTRUN_* environment variables.
type Config struct {
	Provider      ProviderKind
	APIKey        string
	Model         string
	BaseURL       string
	SystemPrompt  string
	MaxIterations int
	MaxTokens     int
	Timeout       time.Duration
	MaxRetries    int
	LogLevel      slog.Level
	LogFormat     LogFormat
	MCPCommand    []string
}

func defaultConfig() Config {
	return Config{
		Provider:      defaultProvider,
		MaxIterations: toolloop.DefaultMaxIterations,
		Timeout:       defaultTimeout,
		MaxRetries:    defaultMaxRetries,
		LogLevel:      defaultLogLevel,
		LogFormat:     defaultLogFormat,
	}
}

// loadConfig reads the configuration through getenv (os.Getenv outside tests).
func loadConfig(getenv func(string) string) (Config, error) {
	cfg := defaultConfig()
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	if p := env("AGENTRUN_PROVIDER"); p != "" {
		cfg.Provider = ProviderKind(strings.ToLower(p))
	}
	cfg.APIKey = env("AGENTRUN_API_KEY")
	cfg.Model = env("AGENTRUN_MODEL")
	cfg.BaseURL = env("AGENTRUN_BASE_URL")
	cfg.SystemPrompt = env("AGENTRUN_SYSTEM_PROMPT")

	var err error
	if v := env("AGENTRUN_MAX_ITERATIONS"); v != "" {
		if cfg.MaxIterations, err = parsePositiveInt("AGENTRUN_MAX_ITERATIONS", v); err != nil {
			return Config{}, err
		}
	}
	if v := env("AGENTRUN_MAX_TOKENS"); v != "" {
		if cfg.MaxTokens, err = parsePositiveInt("AGENTRUN_MAX_TOKENS", v); err != nil {
			return Config{}, err
		}
	}
	if v := env("AGENTRUN_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("parse AGENTRUN_MAX_RETRIES: %q is not a non-negative integer", v)
		}
		cfg.MaxRetries = n
	}
	if v := env("AGENTRUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse AGENTRUN_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return Config{}, errors.New("parse AGENTRUN_TIMEOUT: value must be > 0")
		}
		cfg.Timeout = d
	}
	if v := env("AGENTRUN_LOG_LEVEL"); v != "" {
		if cfg.LogLevel, err = parseLogLevel(v); err != nil {
			return Config{}, err
		}
	}
	if v := env("AGENTRUN_LOG_FORMAT"); v != "" {
		if cfg.LogFormat, err = parseLogFormat(v); err != nil {
			return Config{}, err
		}
	}
	if v := env("AGENTRUN_MCP_COMMAND"); v != "" {
		cfg.MCPCommand = strings.Fields(v)
	}

	if cfg.Model == "" {
		cfg.Model = defaultModels[cfg.Provider]
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI:
		if c.APIKey == "" {
			errs = append(errs, fmt.Errorf("AGENTRUN_API_KEY is required for provider %q", c.Provider))
		}
	case ProviderOpenAICompat:
	default:
		errs = append(errs, fmt.Errorf("AGENTRUN_PROVIDER: unknown provider %q (want anthropic, openai or openaicompat)", c.Provider))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("AGENTRUN_MODEL must not be empty"))
	}
	return errors.Join(errs...)
}

func parsePositiveInt(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("parse %s: %q is not a positive integer", key, v)
	}
	return n, nil
}

func parseLogLevel(v string) (slog.Level, error) {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("parse AGENTRUN_LOG_LEVEL: unsupported level %q", v)
	}
}

func parseLogFormat(v string) (LogFormat, error) {
	switch f := LogFormat(strings.ToLower(v)); f {
	case LogFormatText, LogFormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("parse AGENTRUN_LOG_FORMAT: unsupported format %q", v)
	}
}
