package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(envMap(map[string]string{"AGENTRUN_API_KEY": "sk"}))
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, cfg.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Model)
	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
	assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Zero(t, cfg.MaxTokens)
	assert.Nil(t, cfg.MCPCommand)
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := loadConfig(envMap(map[string]string{
		"AGENTRUN_PROVIDER":       " OpenAICompat ",
		"AGENTRUN_MODEL":          "llama3.2",
		"AGENTRUN_BASE_URL":       "http://gpu-box:8000/v1",
		"AGENTRUN_SYSTEM_PROMPT":  "Be terse.",
		"AGENTRUN_MAX_ITERATIONS": "4",
		"AGENTRUN_MAX_TOKENS":     "800",
		"AGENTRUN_MAX_RETRIES":    "0",
		"AGENTRUN_TIMEOUT":        "45s",
		"AGENTRUN_LOG_LEVEL":      "DEBUG",
		"AGENTRUN_LOG_FORMAT":     "json",
		"AGENTRUN_MCP_COMMAND":    "npx -y @modelcontextprotocol/server-everything",
	}))
	require.NoError(t, err)
	assert.Equal(t, Config{
		Provider:      ProviderOpenAICompat,
		Model:         "llama3.2",
		BaseURL:       "http://gpu-box:8000/v1",
		SystemPrompt:  "Be terse.",
		MaxIterations: 4,
		MaxTokens:     800,
		Timeout:       45 * time.Second,
		MaxRetries:    0,
		LogLevel:      slog.LevelDebug,
		LogFormat:     LogFormatJSON,
		MCPCommand:    []string{"npx", "-y", "@modelcontextprotocol/server-everything"},
	}, cfg)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing key", map[string]string{"AGENTRUN_PROVIDER": "openai"}, "AGENTRUN_API_KEY is required"},
		{"unknown provider", map[string]string{"AGENTRUN_PROVIDER": "palm"}, "unknown provider"},
		{"zero iterations", map[string]string{"AGENTRUN_API_KEY": "k", "AGENTRUN_MAX_ITERATIONS": "0"}, "AGENTRUN_MAX_ITERATIONS"},
		{"bad tokens", map[string]string{"AGENTRUN_API_KEY": "k", "AGENTRUN_MAX_TOKENS": "lots"}, "AGENTRUN_MAX_TOKENS"},
		{"negative retries", map[string]string{"AGENTRUN_API_KEY": "k", "AGENTRUN_MAX_RETRIES": "-1"}, "AGENTRUN_MAX_RETRIES"},
		{"bad timeout", map[string]string{"AGENTRUN_API_KEY": "k", "AGENTRUN_TIMEOUT": "soon"}, "AGENTRUN_TIMEOUT"},
		{"negative timeout", map[string]string{"AGENTRUN_API_KEY": "k", "AGENTRUN_TIMEOUT": "-1s"}, "must be > 0"},
		{"bad level", map[string]string{"AGENTRUN_API_KEY": "k", "AGENTRUN_LOG_LEVEL": "trace"}, "AGENTRUN_LOG_LEVEL"},
		{"bad format", map[string]string{"AGENTRUN_API_KEY": "k", "AGENTRUN_LOG_FORMAT": "xml"}, "AGENTRUN_LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(envMap(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
	} {
		got, err := parseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
