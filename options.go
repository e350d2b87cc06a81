package toolloop

import (
	"slices"
	"time"
)

type toolOptions struct {
	strict    bool
	timeout   time.Duration
	tags      []string
	version   string
	dangerous bool
}

// ToolOption adjusts a tool built by NewTool, NewJSONTool or NewDynamicTool.
type ToolOption func(*toolOptions)

func buildToolOptions(opts []ToolOption) toolOptions {
	var o toolOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithStrict closes every object of the argument schema and makes all properties required,
// the form OpenAI strict function calling accepts. Arguments with unknown fields are rejected.
func WithStrict() ToolOption {
	return func(o *toolOptions) { o.strict = true }
}

// WithTimeout bounds each Run of the tool inside the loop. Zero means no bound.
func WithTimeout(d time.Duration) ToolOption {
	return func(o *toolOptions) { o.timeout = max(d, 0) }
}

// WithTags replaces the tool's tags.
func WithTags(tags ...string) ToolOption {
	return func(o *toolOptions) { o.tags = slices.Clone(tags) }
}

func WithVersion(version string) ToolOption {
	return func(o *toolOptions) { o.version = version }
}

// WithDangerous flags a tool with side effects worth confirming, e.g. from a before-tool hook.
func WithDangerous() ToolOption {
	return func(o *toolOptions) { o.dangerous = true }
}
