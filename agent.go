package toolloop

import (
	"context"
	"log/slog"
	"time"
)

// DefaultMaxIterations bounds the model round-trips of a run unless WithMaxIterations says otherwise.
const DefaultMaxIterations = 10

// AgentConfig is an immutable description of an agent: the provider it talks to, an optional
// system prompt, its tools, sampling limits and the iteration bound. Every With* method returns
// a modified copy and leaves the receiver untouched, so one base config can be specialized many
// times. Slices held by a config are never written after construction.
type AgentConfig[C any] struct {
	provider       Provider
	systemPrompt   *string
	tools          Toolset[C]
	maxTokens      *int
	temperature    *float64
	maxIterations  int
	responseFormat *ResponseFormat
	middlewares    []Middleware[C]
	logger         *slog.Logger
	onBefore       func(context.Context, ToolCall)
	onAfter        func(context.Context, ToolCall, ExecutionSummary)
}

// NewAgent returns a config for provider with DefaultMaxIterations and no tools.
func NewAgent[C any](provider Provider) AgentConfig[C] {
	return AgentConfig[C]{
		provider:      provider,
		maxIterations: DefaultMaxIterations,
	}
}

// WithSystemPrompt sets the prompt sent as a leading system message.
func (a AgentConfig[C]) WithSystemPrompt(prompt string) AgentConfig[C] {
	a.systemPrompt = &prompt
	return a
}

// WithTool adds a tool. Tools added later shadow earlier tools with the same name.
func (a AgentConfig[C]) WithTool(t Tool[C]) AgentConfig[C] {
	a.tools = a.tools.With(t)
	return a
}

// WithTools adds tools as if by successive WithTool calls.
func (a AgentConfig[C]) WithTools(tools ...Tool[C]) AgentConfig[C] {
	a.tools = a.tools.With(tools...)
	return a
}

func (a AgentConfig[C]) WithMaxTokens(n int) AgentConfig[C] {
	a.maxTokens = &n
	return a
}

func (a AgentConfig[C]) WithTemperature(t float64) AgentConfig[C] {
	a.temperature = &t
	return a
}

// WithMaxIterations bounds the number of model round-trips. Zero makes Run fail without calling
// the provider; negative values are treated as zero.
func (a AgentConfig[C]) WithMaxIterations(n int) AgentConfig[C] {
	a.maxIterations = max(n, 0)
	return a
}

// WithResponseFormat requests structured output on every model call.
func (a AgentConfig[C]) WithResponseFormat(f ResponseFormat) AgentConfig[C] {
	a.responseFormat = &f
	return a
}

// WithMiddleware appends middlewares applied around every tool run (first is outermost).
func (a AgentConfig[C]) WithMiddleware(middlewares ...Middleware[C]) AgentConfig[C] {
	a.middlewares = append(append([]Middleware[C](nil), a.middlewares...), middlewares...)
	return a
}

// WithLogger sets the logger used by the loop. Without it the loop is silent.
func (a AgentConfig[C]) WithLogger(logger *slog.Logger) AgentConfig[C] {
	a.logger = logger
	return a
}

// WithToolHooks sets functions called before and after every tool call, including calls to
// unknown tools. Either may be nil.
func (a AgentConfig[C]) WithToolHooks(
	before func(context.Context, ToolCall),
	after func(context.Context, ToolCall, ExecutionSummary),
) AgentConfig[C] {
	a.onBefore = before
	a.onAfter = after
	return a
}

func (a AgentConfig[C]) Provider() Provider { return a.provider }

// SystemPrompt returns the system prompt and whether one is set.
func (a AgentConfig[C]) SystemPrompt() (string, bool) {
	if a.systemPrompt == nil {
		return "", false
	}
	return *a.systemPrompt, true
}

func (a AgentConfig[C]) Tools() Toolset[C] { return a.tools }

// MaxTokens returns the output token limit and whether one is set.
func (a AgentConfig[C]) MaxTokens() (int, bool) {
	if a.maxTokens == nil {
		return 0, false
	}
	return *a.maxTokens, true
}

// Temperature returns the sampling temperature and whether one is set.
func (a AgentConfig[C]) Temperature() (float64, bool) {
	if a.temperature == nil {
		return 0, false
	}
	return *a.temperature, true
}

func (a AgentConfig[C]) MaxIterations() int { return a.maxIterations }

// FindTool returns the first tool named name, i.e. the most recently added one.
func (a AgentConfig[C]) FindTool(name string) (Tool[C], bool) {
	return a.tools.Find(name)
}

// toolTimeout returns the per-tool timeout declared through ToolMetadata, or zero.
func toolTimeout[C any](t Tool[C]) time.Duration {
	if tm, ok := t.(ToolMetadata); ok {
		return tm.Timeout()
	}
	return 0
}

func (a AgentConfig[C]) loggerOrDiscard() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.New(slog.DiscardHandler)
}
