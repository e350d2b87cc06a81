package toolloop

// Toolset is an immutable, ordered collection of tools. Adding a tool returns a new Toolset
// with the tool placed first, so on a name collision the most recently added tool shadows
// older ones: Find scans in order and returns the first match. Toolset values may be shared
// freely; no method modifies the receiver.
type Toolset[C any] struct {
	tools []Tool[C]
}

// NewToolset returns a Toolset as if each tool had been added with With, in argument order.
func NewToolset[C any](tools ...Tool[C]) Toolset[C] {
	var ts Toolset[C]
	return ts.With(tools...)
}

// With returns a new Toolset with tools prepended, the last argument ending up first.
func (ts Toolset[C]) With(tools ...Tool[C]) Toolset[C] {
	if len(tools) == 0 {
		return ts
	}
	out := make([]Tool[C], 0, len(tools)+len(ts.tools))
	for i := len(tools) - 1; i >= 0; i-- {
		if tools[i] == nil {
			continue
		}
		out = append(out, tools[i])
	}
	out = append(out, ts.tools...)
	return Toolset[C]{tools: out}
}

// Find returns the first tool with the given name.
func (ts Toolset[C]) Find(name string) (Tool[C], bool) {
	for _, t := range ts.tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Len returns the number of tools, shadowed duplicates included.
func (ts Toolset[C]) Len() int { return len(ts.tools) }

// All returns the tools in lookup order. The returned slice is a copy.
func (ts Toolset[C]) All() []Tool[C] {
	return append([]Tool[C](nil), ts.tools...)
}

// Names returns tool names in lookup order.
func (ts Toolset[C]) Names() []string {
	names := make([]string, 0, len(ts.tools))
	for _, t := range ts.tools {
		names = append(names, t.Name())
	}
	return names
}

// Specs renders the tools for a completion request, in lookup order. A tool shadowed by a
// newer tool of the same name is not rendered, since the model could never reach it.
func (ts Toolset[C]) Specs() []ToolSpec {
	if len(ts.tools) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ts.tools))
	specs := make([]ToolSpec, 0, len(ts.tools))
	for _, t := range ts.tools {
		if _, dup := seen[t.Name()]; dup {
			continue
		}
		seen[t.Name()] = struct{}{}
		specs = append(specs, SpecOf(t))
	}
	return specs
}
