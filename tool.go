package toolloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Tool is the contract for an LLM-callable instrument, with its argument type erased.
// C is the caller's execution context, handed unchanged to every tool of a run.
// Tool is provider-agnostic (no knowledge of OpenAI, Anthropic, etc.).
type Tool[C any] interface {
	Name() string
	Description() string
	// Schema returns the JSON Schema of the arguments, rendered once when the tool was built.
	Schema() json.RawMessage
	// Run parses and validates argsJSON, then executes the tool. Invalid input yields a
	// *ParseError; a failure of the tool itself yields an *ExecutionError.
	Run(ctx context.Context, c C, argsJSON []byte) (string, error)
}

// ToolMetadata is implemented by tools created with NewTool, NewJSONTool and NewDynamicTool.
// The loop uses Timeout() to bound a single Run when set. Other methods expose tags, version,
// and the dangerous flag for hooks or discovery.
type ToolMetadata interface {
	Timeout() time.Duration
	Tags() []string
	Version() string
	IsDangerous() bool
}

// ToolCall is a single execution request (as produced by the LLM).
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage // JSON payload of arguments, verbatim
}

// ToolCallResult is the outcome of one ToolCall. Exactly one of Output and Err is meaningful.
type ToolCallResult struct {
	ToolUseID string
	Output    string
	Err       error
}

// Block renders the result as a tool_result content block. Failures are rendered as the
// error text; the model sees no difference between kinds of failure.
func (r ToolCallResult) Block() ContentBlock {
	if r.Err != nil {
		return ToolResultBlock(r.ToolUseID, true, TextBlock(r.Err.Error()))
	}
	return ToolResultBlock(r.ToolUseID, false, TextBlock(r.Output))
}

// ToolSpec describes a tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// SpecOf renders the description of t sent to the provider.
func SpecOf[C any](t Tool[C]) ToolSpec {
	return ToolSpec{Name: t.Name(), Description: t.Description(), InputSchema: t.Schema()}
}

// ExecutionSummary is passed to the after-tool hook when a tool call finishes (success or error).
type ExecutionSummary struct {
	CallID   string
	ToolName string
	Output   string
	Error    error
	Duration time.Duration
}

// tool is the internal implementation of Tool built by NewTool, NewJSONTool, or NewDynamicTool.
type tool[C any] struct {
	name        string
	description string
	schema      json.RawMessage
	run         func(context.Context, C, []byte) (string, error)
	opts        toolOptions
}

// NewTool builds a Tool from a typed function. The schema of T is generated here, once; every Run
// validates and decodes the arguments through an Extractor[T] and then calls fn. It fails when
// no schema can be generated for T.
func NewTool[C, T any](
	name, description string,
	fn func(ctx context.Context, c C, args T) (string, error),
	opts ...ToolOption,
) (Tool[C], error) {
	if fn == nil {
		return nil, fmt.Errorf("tool %q: handler must not be nil", name)
	}
	o := buildToolOptions(opts)
	ext, err := NewExtractor[T](o.strict)
	if err != nil {
		return nil, err
	}
	run := func(ctx context.Context, c C, argsJSON []byte) (string, error) {
		args, err := ext.ParseAndValidate(argsJSON)
		if err != nil {
			return "", err
		}
		out, err := fn(ctx, c, args)
		if err != nil {
			return "", wrapHandlerError(err)
		}
		return out, nil
	}
	return &tool[C]{
		name:        name,
		description: description,
		schema:      ext.schema.raw,
		run:         run,
		opts:        o,
	}, nil
}

// NewJSONTool is NewTool for handlers that return a structured value; the value is marshaled
// to JSON and that text becomes the tool result.
func NewJSONTool[C, T, R any](
	name, description string,
	fn func(ctx context.Context, c C, args T) (R, error),
	opts ...ToolOption,
) (Tool[C], error) {
	if fn == nil {
		return nil, fmt.Errorf("tool %q: handler must not be nil", name)
	}
	return NewTool(name, description, func(ctx context.Context, c C, args T) (string, error) {
		res, err := fn(ctx, c, args)
		if err != nil {
			return "", err
		}
		b, err := json.Marshal(res)
		if err != nil {
			return "", &ExecutionError{Message: "marshal result: " + err.Error(), Err: err}
		}
		return string(b), nil
	}, opts...)
}

// NewDynamicTool builds a Tool from a JSON Schema known only at runtime, such as one listed by an
// MCP server. fn receives the arguments after schema validation. schemaMap is copied and never
// modified. Error handling matches NewTool.
func NewDynamicTool[C any](
	name, description string,
	schemaMap map[string]any,
	fn func(ctx context.Context, c C, argsJSON json.RawMessage) (string, error),
	opts ...ToolOption,
) (Tool[C], error) {
	o := buildToolOptions(opts)
	if fn == nil {
		return nil, errors.New("dynamic tool handler must not be nil")
	}
	schema, err := dynamicSchema(schemaMap, o.strict)
	if err != nil {
		return nil, err
	}
	run := func(ctx context.Context, c C, argsJSON []byte) (string, error) {
		if err := schema.check(argsJSON); err != nil {
			return "", err
		}
		out, err := fn(ctx, c, json.RawMessage(argsJSON))
		if err != nil {
			return "", wrapHandlerError(err)
		}
		return out, nil
	}
	return &tool[C]{
		name:        name,
		description: description,
		schema:      schema.raw,
		run:         run,
		opts:        o,
	}, nil
}

func (t *tool[C]) Name() string        { return t.name }
func (t *tool[C]) Description() string { return t.description }

// Schema returns a copy of the rendered JSON Schema.
func (t *tool[C]) Schema() json.RawMessage { return append(json.RawMessage(nil), t.schema...) }

func (t *tool[C]) Run(ctx context.Context, c C, argsJSON []byte) (string, error) {
	return t.run(ctx, c, argsJSON)
}

func (t *tool[C]) Timeout() time.Duration { return t.opts.timeout }
func (t *tool[C]) Tags() []string         { return append([]string(nil), t.opts.tags...) }
func (t *tool[C]) Version() string        { return t.opts.version }
func (t *tool[C]) IsDangerous() bool      { return t.opts.dangerous }

var (
	_ Tool[any]    = (*tool[any])(nil)
	_ ToolMetadata = (*tool[any])(nil)
)
