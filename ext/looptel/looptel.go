// Package looptel adds OpenTelemetry tracing to toolloop: one client span per model round-trip
// (WrapRuntime) and one span per tool execution (Middleware).
package looptel

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/toolloop"
)

const instrumentationName = "github.com/skosovsky/toolloop/ext/looptel"

type config struct {
	provider trace.TracerProvider
	model    string
	system   string
}

// Option configures WrapRuntime and Middleware.
type Option func(*config)

// WithTracerProvider sets the provider spans are created with. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.provider = tp }
}

// WithModel records the requested model as gen_ai.request.model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithSystem records the vendor (e.g. "anthropic", "openai") as gen_ai.system.
func WithSystem(system string) Option {
	return func(c *config) { c.system = system }
}

func newConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	if c.provider == nil {
		c.provider = otel.GetTracerProvider()
	}
	return c
}

func (c config) tracer() trace.Tracer {
	return c.provider.Tracer(instrumentationName)
}

// WrapRuntime returns a Runtime that traces every Send. Responses with status 400 and above
// mark the span as failed; the response itself is passed through untouched.
func WrapRuntime(rt toolloop.Runtime, opts ...Option) toolloop.Runtime {
	c := newConfig(opts)
	return &tracedRuntime{next: rt, cfg: c, tracer: c.tracer()}
}

type tracedRuntime struct {
	next   toolloop.Runtime
	cfg    config
	tracer trace.Tracer
}

func (r *tracedRuntime) Send(ctx context.Context, req *toolloop.WireRequest) (*toolloop.WireResponse, error) {
	name := "chat"
	if r.cfg.model != "" {
		name += " " + r.cfg.model
	}
	attrs := []attribute.KeyValue{attribute.String("gen_ai.operation.name", "chat")}
	if r.cfg.model != "" {
		attrs = append(attrs, attribute.String("gen_ai.request.model", r.cfg.model))
	}
	if r.cfg.system != "" {
		attrs = append(attrs, attribute.String("gen_ai.system", r.cfg.system))
	}
	if req != nil {
		attrs = append(attrs, attribute.String("http.request.method", req.Method))
		if u, err := url.Parse(req.URL); err == nil && u.Host != "" {
			attrs = append(attrs, attribute.String("server.address", u.Hostname()))
		}
	}
	ctx, span := r.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
	defer span.End()

	resp, err := r.next.Send(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}
	if resp != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		if resp.StatusCode >= 400 {
			span.SetStatus(codes.Error, strings.TrimSpace(string(resp.Body)))
		}
	}
	return resp, nil
}

// Middleware returns a tool middleware that wraps every Run in an "execute_tool" span.
// Failed runs record the error and its kind (parse or execution).
func Middleware[C any](opts ...Option) toolloop.Middleware[C] {
	c := newConfig(opts)
	tracer := c.tracer()
	return func(next toolloop.Tool[C]) toolloop.Tool[C] {
		return &tracedTool[C]{Tool: next, tracer: tracer}
	}
}

type tracedTool[C any] struct {
	toolloop.Tool[C]
	tracer trace.Tracer
}

func (t *tracedTool[C]) Run(ctx context.Context, c C, argsJSON []byte) (string, error) {
	ctx, span := t.tracer.Start(ctx, "execute_tool "+t.Name(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "execute_tool"),
			attribute.String("gen_ai.tool.name", t.Name()),
		),
	)
	defer span.End()

	out, err := t.Tool.Run(ctx, c, argsJSON)
	if err != nil {
		span.SetAttributes(attribute.String("error.type", errorKind(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func errorKind(err error) string {
	switch {
	case toolloop.IsParseError(err):
		return "parse"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "execution"
	}
}
