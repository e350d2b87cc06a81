// Command agentrun answers a prompt with a tool-calling agent.
//
// Configuration comes from AGENTRUN_* environment variables (see config.go). The agent has two
// built-in tools, current_time and calculate, plus every tool of the MCP server started from
// AGENTRUN_MCP_COMMAND when set.
//
//	AGENTRUN_API_KEY=... agentrun "What is 17% of 2340?"
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skosovsky/toolloop"
	"github.com/skosovsky/toolloop/ext/looptel"
	"github.com/skosovsky/toolloop/httpruntime"
	"github.com/skosovsky/toolloop/mcptools"
	"github.com/skosovsky/toolloop/providers/anthropic"
	"github.com/skosovsky/toolloop/providers/openai"
	"github.com/skosovsky/toolloop/providers/openaicompat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "agentrun:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return errors.New(`usage: agentrun "<prompt>"`)
	}
	cfg, err := loadConfig(getenv)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, cfg.LogFormat, cfg.LogLevel)

	tools, err := builtinTools()
	if err != nil {
		return err
	}
	agent := toolloop.NewAgent[*session](newProvider(cfg)).
		WithLogger(logger).
		WithTools(tools...).
		WithMaxIterations(cfg.MaxIterations).
		WithMiddleware(toolloop.WithLogging[*session](logger), looptel.Middleware[*session]())
	if cfg.SystemPrompt != "" {
		agent = agent.WithSystemPrompt(cfg.SystemPrompt)
	}
	if cfg.MaxTokens > 0 {
		agent = agent.WithMaxTokens(cfg.MaxTokens)
	}

	if len(cfg.MCPCommand) > 0 {
		mcpSession, err := mcptools.Connect(ctx, cfg.MCPCommand[0], cfg.MCPCommand[1:]...)
		if err != nil {
			return err
		}
		defer func() { _ = mcpSession.Close() }()
		mcpTools, err := mcptools.Load[*session](ctx, mcpSession, mcptools.WithToolOptions(toolloop.WithTimeout(cfg.Timeout)))
		if err != nil {
			return err
		}
		logger.Info("mcp tools loaded", "command", cfg.MCPCommand[0], "count", len(mcpTools))
		agent = agent.WithTools(mcpTools...)
	}

	rt := looptel.WrapRuntime(newRuntime(cfg, logger), looptel.WithModel(cfg.Model), looptel.WithSystem(string(cfg.Provider)))
	res, err := toolloop.Run(ctx, agent, &session{now: time.Now}, []toolloop.Message{toolloop.UserMessage(prompt)}, rt)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, res.Response.Text())
	logger.Info("done", "run_id", res.RunID, "iterations", res.Iterations,
		"input_tokens", res.Response.Usage.InputTokens, "output_tokens", res.Response.Usage.OutputTokens)
	return nil
}

func newProvider(cfg Config) toolloop.Provider {
	switch cfg.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.Model, opts...)
	case ProviderOpenAICompat:
		var opts []openaicompat.Option
		if cfg.APIKey != "" {
			opts = append(opts, openaicompat.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openaicompat.WithBaseURL(cfg.BaseURL))
		}
		return openaicompat.New(cfg.Model, opts...)
	default:
		opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(cfg.Model, opts...)
	}
}

func newRuntime(cfg Config, logger *slog.Logger) *httpruntime.Runtime {
	return httpruntime.New(
		httpruntime.WithTimeout(cfg.Timeout),
		httpruntime.WithRetry(httpruntime.RetryConfig{MaxAttempts: cfg.MaxRetries + 1}),
		httpruntime.WithLogger(logger),
	)
}
