package toolloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// RunResult is the outcome of a successful Run.
type RunResult struct {
	// RunID correlates the log records and spans of one run.
	RunID string
	// Response is the final model response, the one without tool calls.
	Response *CompletionResponse
	// Messages is the full history: the system prompt (if any), the input messages, and every
	// assistant and tool-result message produced during the run, in order.
	Messages []Message
	// Iterations counts model round-trips.
	Iterations int
}

// Run drives the conversation until the model answers without requesting tools.
//
// Each iteration builds a request from the history, sends it through runtime and parses the
// response. If the response requests tools, they are executed one after another in the order
// the model listed them, their results are appended as a single user message, and the loop
// continues. Tool failures (invalid arguments, handler errors, panics, unknown tool names) do
// not end the run: they are reported to the model as error results so it can react.
//
// Run fails immediately on any error from the provider or runtime, and with
// ErrMaxIterationsExceeded once the agent's iteration bound is reached while the model still
// asks for tools. On failure the partial history is not returned.
//
// messages is not modified. c is passed to every tool run and is never used concurrently.
func Run[C any](ctx context.Context, agent AgentConfig[C], c C, messages []Message, runtime Runtime) (RunResult, error) {
	if agent.provider == nil {
		return RunResult{}, ErrMissingProvider
	}
	if runtime == nil {
		return RunResult{}, ErrMissingRuntime
	}
	l := &loop[C]{
		agent:   agent,
		execCtx: c,
		runtime: runtime,
		runID:   uuid.NewString(),
	}
	l.logger = agent.loggerOrDiscard().With("run_id", l.runID)
	return l.run(ctx, messages)
}

type loop[C any] struct {
	agent   AgentConfig[C]
	execCtx C
	runtime Runtime
	runID   string
	logger  *slog.Logger
}

func (l *loop[C]) run(ctx context.Context, input []Message) (RunResult, error) {
	history := make([]Message, 0, len(input)+3)
	if prompt, ok := l.agent.SystemPrompt(); ok {
		history = append(history, SystemMessage(prompt))
	}
	history = append(history, input...)
	specs := l.agent.tools.Specs()

	for iteration := 0; ; iteration++ {
		if iteration >= l.agent.maxIterations {
			err := &APIError{
				Code:    CodeMaxIterationsExceeded,
				Message: fmt.Sprintf("model still requested tools after %d iterations", l.agent.maxIterations),
			}
			l.logger.ErrorContext(ctx, "run failed", "iteration", iteration, "error", err)
			return RunResult{}, err
		}

		resp, err := l.complete(ctx, iteration, history, specs)
		if err != nil {
			l.logger.ErrorContext(ctx, "run failed", "iteration", iteration, "error", err)
			return RunResult{}, err
		}
		history = append(history, resp.Message())

		if !resp.HasToolCalls() {
			l.logger.InfoContext(ctx, "run completed",
				"iterations", iteration+1,
				"stop_reason", resp.StopReason,
				"messages", len(history),
			)
			return RunResult{
				RunID:      l.runID,
				Response:   resp,
				Messages:   history,
				Iterations: iteration + 1,
			}, nil
		}

		calls := resp.ToolCalls()
		blocks := make([]ContentBlock, 0, len(calls))
		for _, call := range calls {
			result := l.execute(ctx, iteration, call)
			blocks = append(blocks, result.Block())
		}
		history = append(history, NewMessage(RoleUser, blocks...))
	}
}

// complete performs one model round-trip.
func (l *loop[C]) complete(ctx context.Context, iteration int, history []Message, specs []ToolSpec) (*CompletionResponse, error) {
	provider := l.agent.provider
	req := CompletionRequest{
		Model:          provider.Model(),
		Messages:       slices.Clone(history),
		Tools:          specs,
		MaxTokens:      l.agent.maxTokens,
		Temperature:    l.agent.temperature,
		ResponseFormat: l.agent.responseFormat,
	}
	l.logger.DebugContext(ctx, "model call", "iteration", iteration, "model", req.Model, "messages", len(req.Messages))

	wireReq, err := provider.BuildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	start := time.Now()
	wireResp, err := l.runtime.Send(ctx, wireReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	resp, err := provider.ParseResponse(wireResp)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	l.logger.DebugContext(ctx, "model response",
		"iteration", iteration,
		"duration", time.Since(start),
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return resp, nil
}

// execute resolves one tool call. It never fails: every problem becomes an error result.
func (l *loop[C]) execute(ctx context.Context, iteration int, call ToolCall) (result ToolCallResult) {
	result.ToolUseID = call.ID
	if l.agent.onBefore != nil {
		l.agent.onBefore(ctx, call)
	}
	start := time.Now()
	defer func() {
		summary := ExecutionSummary{
			CallID:   call.ID,
			ToolName: call.Name,
			Output:   result.Output,
			Error:    result.Err,
			Duration: time.Since(start),
		}
		l.logResult(ctx, iteration, summary)
		if l.agent.onAfter != nil {
			l.agent.onAfter(ctx, call, summary)
		}
	}()

	t, ok := l.agent.FindTool(call.Name)
	if !ok {
		result.Err = &ExecutionError{Message: "Unknown tool: " + call.Name, Err: ErrToolNotFound}
		return result
	}
	l.logger.DebugContext(ctx, "tool call", "iteration", iteration, "tool", call.Name, "call_id", call.ID)
	result.Output, result.Err = l.runTool(ctx, t, call)
	return result
}

func (l *loop[C]) runTool(ctx context.Context, t Tool[C], call ToolCall) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			pe := &panicError{p: p}
			out, err = "", &ExecutionError{Message: pe.Error(), Err: pe}
		}
	}()
	if d := toolTimeout(t); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	wrapped := Chain(t, l.agent.middlewares...)
	return wrapped.Run(ctx, l.execCtx, call.Arguments)
}

func (l *loop[C]) logResult(ctx context.Context, iteration int, s ExecutionSummary) {
	attrs := []any{"iteration", iteration, "tool", s.ToolName, "call_id", s.CallID, "duration", s.Duration}
	if s.Error == nil {
		l.logger.DebugContext(ctx, "tool succeeded", attrs...)
		return
	}
	kind := "execution"
	switch {
	case errors.Is(s.Error, ErrToolNotFound):
		kind = "unknown_tool"
	case IsParseError(s.Error):
		kind = "parse"
	}
	l.logger.WarnContext(ctx, "tool failed", append(attrs, "kind", kind, "error", s.Error)...)
}
