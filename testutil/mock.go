// Package testutil provides a scripted Provider and Runtime pair and a MockTool for testing code
// built on toolloop without a model or a network.
package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/skosovsky/toolloop"
)

// MockTool is a Tool[C] whose behavior is set field by field. Zero fields give a tool named
// "mock" with an empty object schema that returns "". It records the arguments of every Run.
type MockTool[C any] struct {
	NameVal   string
	DescVal   string
	SchemaVal json.RawMessage
	RunFn     func(ctx context.Context, c C, args []byte) (string, error)

	mu   sync.Mutex
	seen []json.RawMessage
}

func (m *MockTool[C]) Name() string {
	if m.NameVal == "" {
		return "mock"
	}
	return m.NameVal
}

func (m *MockTool[C]) Description() string { return m.DescVal }

func (m *MockTool[C]) Schema() json.RawMessage {
	if m.SchemaVal == nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return m.SchemaVal
}

func (m *MockTool[C]) Run(ctx context.Context, c C, args []byte) (string, error) {
	m.mu.Lock()
	m.seen = append(m.seen, append(json.RawMessage(nil), args...))
	m.mu.Unlock()
	if m.RunFn == nil {
		return "", nil
	}
	return m.RunFn(ctx, c, args)
}

// Invocations returns the arguments of every Run so far, oldest first.
func (m *MockTool[C]) Invocations() []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]json.RawMessage(nil), m.seen...)
}

var _ toolloop.Tool[any] = (*MockTool[any])(nil)
