package toolloop

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// session is the execution context used by tests: tools record what they saw in it.
type session struct {
	calls []string
}

func schemaMap(t *testing.T, tl interface{ Schema() json.RawMessage }) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(tl.Schema(), &m))
	return m
}

func TestNewTool_Simple(t *testing.T) {
	type Args struct {
		X int `json:"x"`
	}
	tool, err := NewTool("add_one", "Add one", func(_ context.Context, _ *session, a Args) (string, error) {
		return strconv.Itoa(a.X + 1), nil
	})
	require.NoError(t, err)
	require.NotNil(t, tool)
	assert.Equal(t, "add_one", tool.Name())
	assert.Equal(t, "Add one", tool.Description())
	obj := findSchemaObject(schemaMap(t, tool))
	require.NotNil(t, obj)
	assert.Contains(t, obj["properties"], "x")
}

func TestNewTool_Run_Success(t *testing.T) {
	type Args struct {
		X int `json:"x"`
	}
	s := &session{}
	tool, err := NewTool("add_one", "Add one", func(_ context.Context, s *session, a Args) (string, error) {
		s.calls = append(s.calls, "add_one")
		return strconv.Itoa(a.X + 1), nil
	})
	require.NoError(t, err)
	out, err := tool.Run(context.Background(), s, []byte(`{"x": 5}`))
	require.NoError(t, err)
	assert.Equal(t, "6", out)
	assert.Equal(t, []string{"add_one"}, s.calls)
}

func TestNewTool_Run_InvalidJSON(t *testing.T) {
	type Args struct {
		X int `json:"x"`
	}
	called := false
	tool, err := NewTool("id", "desc", func(_ context.Context, _ *session, _ Args) (string, error) {
		called = true
		return "", nil
	})
	require.NoError(t, err)
	_, err = tool.Run(context.Background(), &session{}, []byte(`{invalid`))
	require.Error(t, err)
	assert.True(t, IsParseError(err))
	assert.Contains(t, err.Error(), "invalid JSON: ")
	assert.False(t, called, "handler must not run on invalid JSON")
}

func TestNewTool_Run_SchemaValidation(t *testing.T) {
	type Args struct {
		Count int `json:"count"`
	}
	called := false
	tool, err := NewTool("id", "desc", func(_ context.Context, _ *session, _ Args) (string, error) {
		called = true
		return "", nil
	})
	require.NoError(t, err)
	// Wrong type for count (string instead of int) yields schema validation error
	_, err = tool.Run(context.Background(), &session{}, []byte(`{"count": "not a number"}`))
	require.Error(t, err)
	assert.True(t, IsParseError(err))
	assert.Contains(t, err.Error(), "validation failed: ")
	assert.Contains(t, err.Error(), "/count")
	assert.False(t, called, "handler must not run on schema violation")
}

func TestNewTool_Run_HandlerErrors(t *testing.T) {
	type Args struct {
		X int `json:"x"`
	}
	tests := []struct {
		name       string
		handlerErr error
		parse      bool
		execution  bool
	}{
		{"plain error becomes ExecutionError", errors.New("db down"), false, true},
		{"ExecutionError passes through", &ExecutionError{Message: "upstream 502"}, false, true},
		{"ParseError passes through", &ParseError{Message: "x must be even"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, err := NewTool("failing", "desc", func(_ context.Context, _ *session, _ Args) (string, error) {
				return "", tt.handlerErr
			})
			require.NoError(t, err)
			_, err = tool.Run(context.Background(), &session{}, []byte(`{"x": 1}`))
			require.Error(t, err)
			assert.Equal(t, tt.parse, IsParseError(err))
			assert.Equal(t, tt.execution, IsExecutionError(err))
			assert.Equal(t, tt.handlerErr.Error(), err.Error())
		})
	}
}

func TestNewTool_NilHandler(t *testing.T) {
	_, err := NewTool[*session, struct{}]("nil", "desc", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler must not be nil")
}

func TestNewJSONTool_MarshalsResult(t *testing.T) {
	type Args struct {
		X int `json:"x"`
	}
	type Result struct {
		Y int `json:"y"`
	}
	tool, err := NewJSONTool("double", "Double", func(_ context.Context, _ *session, a Args) (Result, error) {
		return Result{Y: a.X * 2}, nil
	})
	require.NoError(t, err)
	out, err := tool.Run(context.Background(), &session{}, []byte(`{"x": 21}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"y":42}`, out)
}

func TestNewJSONTool_UnmarshalableResult(t *testing.T) {
	tool, err := NewJSONTool("chan", "desc", func(_ context.Context, _ *session, _ struct{}) (chan int, error) {
		return make(chan int), nil
	})
	require.NoError(t, err)
	_, err = tool.Run(context.Background(), &session{}, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, IsExecutionError(err))
}

// TestTools_ErasedInOneCollection stores tools of different argument types together and runs
// them through the erased interface only.
func TestTools_ErasedInOneCollection(t *testing.T) {
	type AddArgs struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	type EchoArgs struct {
		Text string `json:"text"`
	}
	add, err := NewTool("add", "Add", func(_ context.Context, _ *session, a AddArgs) (string, error) {
		return strconv.Itoa(a.A + a.B), nil
	})
	require.NoError(t, err)
	echo, err := NewTool("echo", "Echo", func(_ context.Context, _ *session, a EchoArgs) (string, error) {
		return a.Text, nil
	})
	require.NoError(t, err)

	tools := []Tool[*session]{add, echo}
	inputs := map[string]string{"add": `{"a":2,"b":3}`, "echo": `{"text":"hi"}`}
	want := map[string]string{"add": "5", "echo": "hi"}
	for _, tl := range tools {
		out, err := tl.Run(context.Background(), &session{}, []byte(inputs[tl.Name()]))
		require.NoError(t, err)
		assert.Equal(t, want[tl.Name()], out)
	}
}

func TestTool_Tags_ReturnsCopy(t *testing.T) {
	tool, err := NewTool("t", "d", func(_ context.Context, _ *session, _ struct{}) (string, error) {
		return "", nil
	}, WithTags("a", "b"))
	require.NoError(t, err)
	meta, ok := tool.(ToolMetadata)
	require.True(t, ok)
	tags := meta.Tags()
	require.Equal(t, []string{"a", "b"}, tags)
	tags[0] = "mutated"
	require.Equal(t, []string{"a", "b"}, meta.Tags())
}

func TestTool_Schema_ReturnsCopy(t *testing.T) {
	type Args struct {
		X int `json:"x"`
	}
	tool, err := NewTool("t", "d", func(_ context.Context, _ *session, _ Args) (string, error) {
		return "", nil
	})
	require.NoError(t, err)
	s := tool.Schema()
	require.NotEmpty(t, s)
	s[0] = 'X'
	assert.True(t, json.Valid(tool.Schema()), "mutating the returned bytes must not affect the tool")
}

func TestToolCallResult_Block(t *testing.T) {
	ok := ToolCallResult{ToolUseID: "call_1", Output: "sunny"}.Block()
	assert.Equal(t, BlockToolResult, ok.Type)
	assert.Equal(t, "call_1", ok.ToolUseID)
	assert.False(t, ok.IsError)
	require.Len(t, ok.Content, 1)
	assert.Equal(t, "sunny", ok.Content[0].Text)

	failed := ToolCallResult{ToolUseID: "call_2", Err: &ParseError{Message: "invalid JSON: x"}}.Block()
	assert.True(t, failed.IsError)
	assert.Equal(t, "invalid JSON: x", failed.Content[0].Text)
}

func BenchmarkRun(b *testing.B) {
	type Args struct {
		X int `json:"x"`
	}
	tool, err := NewTool("bench", "desc", func(_ context.Context, _ *session, a Args) (string, error) {
		return strconv.Itoa(a.X + 1), nil
	})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	s := &session{}
	argsJSON := []byte(`{"x": 42}`)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = tool.Run(ctx, s, argsJSON)
	}
}
