// Package mcptools exposes the tools of a Model Context Protocol server as toolloop tools.
//
// Each MCP tool becomes a dynamic tool: its input schema validates the model's arguments
// before the call leaves the process, and the server's result content is flattened to text.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/skosovsky/toolloop"
)

// Session is the part of *mcp.ClientSession used here.
type Session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
}

type options struct {
	prefix   string
	filter   func(*mcp.Tool) bool
	toolOpts []toolloop.ToolOption
}

// Option configures Load.
type Option func(*options)

// WithPrefix prepends prefix to every tool name, e.g. "github_" when several servers are loaded
// into one agent. The server still sees the original name.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithFilter keeps only the tools for which keep returns true.
func WithFilter(keep func(*mcp.Tool) bool) Option {
	return func(o *options) { o.filter = keep }
}

// WithToolOptions applies opts (timeouts, tags, strict mode) to every loaded tool.
func WithToolOptions(opts ...toolloop.ToolOption) Option {
	return func(o *options) { o.toolOpts = append(o.toolOpts, opts...) }
}

// Load lists every tool of the session, following pagination, and wraps each one.
// Tools annotated as destructive are marked dangerous.
func Load[C any](ctx context.Context, session Session, opts ...Option) ([]toolloop.Tool[C], error) {
	if session == nil {
		return nil, errors.New("mcptools: nil session")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	var (
		tools  []toolloop.Tool[C]
		cursor string
	)
	for {
		res, err := session.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("mcptools: list tools: %w", err)
		}
		for _, t := range res.Tools {
			if t == nil || (o.filter != nil && !o.filter(t)) {
				continue
			}
			tool, err := wrap[C](session, t, o)
			if err != nil {
				return nil, err
			}
			tools = append(tools, tool)
		}
		if res.NextCursor == "" {
			return tools, nil
		}
		cursor = res.NextCursor
	}
}

func wrap[C any](session Session, t *mcp.Tool, o options) (toolloop.Tool[C], error) {
	schema, err := inputSchema(t)
	if err != nil {
		return nil, err
	}
	toolOpts := append([]toolloop.ToolOption(nil), o.toolOpts...)
	if a := t.Annotations; a != nil && !a.ReadOnlyHint && a.DestructiveHint != nil && *a.DestructiveHint {
		toolOpts = append(toolOpts, toolloop.WithDangerous())
	}
	name := t.Name
	run := func(ctx context.Context, _ C, argsJSON json.RawMessage) (string, error) {
		var args map[string]any
		if err := json.Unmarshal(argsJSON, &args); err != nil {
			return "", &toolloop.ParseError{Message: "invalid JSON: " + err.Error(), Err: err}
		}
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
		if err != nil {
			return "", fmt.Errorf("mcp call %s: %w", name, err)
		}
		out, err := flatten(res)
		if err != nil {
			return "", err
		}
		if res.IsError {
			return "", &toolloop.ExecutionError{Message: out}
		}
		return out, nil
	}
	tool, err := toolloop.NewDynamicTool[C](o.prefix+name, t.Description, schema, run, toolOpts...)
	if err != nil {
		return nil, fmt.Errorf("mcptools: tool %q: %w", name, err)
	}
	return tool, nil
}

// inputSchema converts the tool's schema, whatever Go type the SDK decoded it into, to a map.
// A missing schema accepts any object.
func inputSchema(t *mcp.Tool) (map[string]any, error) {
	if t.InputSchema == nil {
		return map[string]any{"type": "object"}, nil
	}
	if m, ok := t.InputSchema.(map[string]any); ok {
		return m, nil
	}
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("mcptools: tool %q: encode schema: %w", t.Name, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("mcptools: tool %q: schema is not an object: %w", t.Name, err)
	}
	return m, nil
}

// flatten joins text content with newlines. Other content kinds are rendered as their JSON
// form; structured content is used when the result has no content at all.
func flatten(res *mcp.CallToolResult) (string, error) {
	if res == nil {
		return "", nil
	}
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
			continue
		}
		data, err := json.Marshal(c)
		if err != nil {
			return "", &toolloop.ExecutionError{Message: "encode mcp content: " + err.Error(), Err: err}
		}
		parts = append(parts, string(data))
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		data, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return "", &toolloop.ExecutionError{Message: "encode structured content: " + err.Error(), Err: err}
		}
		return string(data), nil
	}
	return strings.Join(parts, "\n"), nil
}

// Connect starts command as an MCP server over stdio and returns the client session.
// Closing the session stops the server.
func Connect(ctx context.Context, command string, args ...string) (*mcp.ClientSession, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "toolloop", Version: "v1"}, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: exec.Command(command, args...)}, nil)
	if err != nil {
		return nil, fmt.Errorf("mcptools: connect %s: %w", command, err)
	}
	return session, nil
}

var _ Session = (*mcp.ClientSession)(nil)
