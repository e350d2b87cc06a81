package toolloop

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Middleware wraps a Tool with cross-cutting behavior (logging, recovery, timeout).
type Middleware[C any] func(Tool[C]) Tool[C]

// WithLogging returns a middleware that logs start, end, duration, and errors.
func WithLogging[C any](logger *slog.Logger) Middleware[C] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Tool[C]) Tool[C] {
		return &loggingTool[C]{toolBase: toolBase[C]{next: next}, logger: logger}
	}
}

// WithRecovery returns a middleware that recovers panics and returns an ExecutionError.
func WithRecovery[C any]() Middleware[C] {
	return func(next Tool[C]) Tool[C] {
		return &recoveryTool[C]{toolBase[C]{next: next}}
	}
}

// WithTimeoutMiddleware returns a middleware that enforces a per-tool timeout.
// Named with "Middleware" suffix to avoid collision with ToolOption WithTimeout. When both
// apply, the effective timeout is the minimum of the two (inner context cancels first).
func WithTimeoutMiddleware[C any](d time.Duration) Middleware[C] {
	return func(next Tool[C]) Tool[C] {
		return &timeoutTool[C]{toolBase: toolBase[C]{next: next}, timeout: d}
	}
}

// Chain applies middlewares to t in onion order: the first middleware is outermost.
func Chain[C any](t Tool[C], middlewares ...Middleware[C]) Tool[C] {
	for i := len(middlewares) - 1; i >= 0; i-- {
		t = middlewares[i](t)
	}
	return t
}

// toolBase delegates Tool and ToolMetadata to the wrapped Tool; used by middleware wrappers.
type toolBase[C any] struct{ next Tool[C] }

func (b *toolBase[C]) Name() string            { return b.next.Name() }
func (b *toolBase[C]) Description() string     { return b.next.Description() }
func (b *toolBase[C]) Schema() json.RawMessage { return b.next.Schema() }

func (b *toolBase[C]) Timeout() time.Duration {
	if tm, ok := b.next.(ToolMetadata); ok {
		return tm.Timeout()
	}
	return 0
}
func (b *toolBase[C]) Tags() []string {
	if tm, ok := b.next.(ToolMetadata); ok {
		return tm.Tags()
	}
	return nil
}
func (b *toolBase[C]) Version() string {
	if tm, ok := b.next.(ToolMetadata); ok {
		return tm.Version()
	}
	return ""
}
func (b *toolBase[C]) IsDangerous() bool {
	if tm, ok := b.next.(ToolMetadata); ok {
		return tm.IsDangerous()
	}
	return false
}

type loggingTool[C any] struct {
	toolBase[C]
	logger *slog.Logger
}

func (m *loggingTool[C]) Run(ctx context.Context, c C, args []byte) (string, error) {
	m.logger.InfoContext(ctx, "tool start", "tool", m.next.Name())
	start := time.Now()
	res, err := m.next.Run(ctx, c, args)
	dur := time.Since(start)
	if err != nil {
		m.logger.ErrorContext(ctx, "tool error", "tool", m.next.Name(), "duration", dur, "error", err)
		return "", err
	}
	m.logger.InfoContext(ctx, "tool end", "tool", m.next.Name(), "duration", dur)
	return res, nil
}

type recoveryTool[C any] struct{ toolBase[C] }

func (r *recoveryTool[C]) Run(ctx context.Context, c C, args []byte) (res string, err error) {
	defer func() {
		if p := recover(); p != nil {
			pe := &panicError{p: p}
			res = ""
			err = &ExecutionError{Message: pe.Error(), Err: pe}
		}
	}()
	return r.next.Run(ctx, c, args)
}

type timeoutTool[C any] struct {
	toolBase[C]
	timeout time.Duration
}

func (t *timeoutTool[C]) Timeout() time.Duration {
	if t.timeout > 0 {
		return t.timeout
	}
	return t.toolBase.Timeout()
}

func (t *timeoutTool[C]) Run(ctx context.Context, c C, args []byte) (string, error) {
	if t.timeout <= 0 {
		return t.next.Run(ctx, c, args)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Run(ctx, c, args)
}
