package toolloop

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoArgs(_ context.Context, _ *session, argsJSON json.RawMessage) (string, error) {
	return string(argsJSON), nil
}

func TestNewDynamicTool_Success(t *testing.T) {
	t.Parallel()
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": "integer"}},
		"required":   []any{"x"},
	}
	tool, err := NewDynamicTool("dynamic", "A dynamic tool", schema, echoArgs)
	require.NoError(t, err)
	assert.Equal(t, "dynamic", tool.Name())
	assert.Equal(t, "A dynamic tool", tool.Description())

	out, err := tool.Run(context.Background(), &session{}, []byte(`{"x": 42}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"x": 42}`, out, "handler receives the arguments verbatim")
}

func TestNewDynamicTool_ValidationError(t *testing.T) {
	t.Parallel()
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"unit": map[string]any{"type": "string", "enum": []any{"celsius", "fahrenheit"}},
		},
		"required": []any{"unit"},
	}
	called := false
	tool, err := NewDynamicTool("weather", "Weather", schema, func(_ context.Context, _ *session, _ json.RawMessage) (string, error) {
		called = true
		return "", nil
	})
	require.NoError(t, err)

	for _, args := range []string{`{}`, `{"unit": "kelvin"}`, `not json`} {
		_, err = tool.Run(context.Background(), &session{}, []byte(args))
		require.Error(t, err, args)
		assert.True(t, IsParseError(err), args)
	}
	assert.False(t, called)
}

func TestNewDynamicTool_InvalidArguments(t *testing.T) {
	t.Parallel()
	schema := map[string]any{"type": 123}
	_, err := NewDynamicTool("bad", "Bad", schema, echoArgs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile dynamic schema")

	_, err = NewDynamicTool("nil", "Nil", nil, echoArgs)
	require.Error(t, err)

	_, err = NewDynamicTool[*session]("no_handler", "No handler", map[string]any{"type": "object"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler must not be nil")
}

func TestNewDynamicTool_ErrorClassification(t *testing.T) {
	t.Parallel()
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": "integer"}},
	}
	parseErr := &ParseError{Message: "x must be positive"}
	tool, err := NewDynamicTool("classify", "Classify", schema, func(_ context.Context, _ *session, _ json.RawMessage) (string, error) {
		return "", parseErr
	})
	require.NoError(t, err)
	_, err = tool.Run(context.Background(), &session{}, []byte(`{"x": -1}`))
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Same(t, parseErr, pe)

	tool2, err := NewDynamicTool("sys", "Sys", schema, func(_ context.Context, _ *session, _ json.RawMessage) (string, error) {
		return "", errors.New("internal failure")
	})
	require.NoError(t, err)
	_, err = tool2.Run(context.Background(), &session{}, []byte(`{"x": 1}`))
	require.Error(t, err)
	assert.True(t, IsExecutionError(err))
	assert.Equal(t, "internal failure", err.Error())
}

func TestNewDynamicTool_MetadataOptions(t *testing.T) {
	t.Parallel()
	schema := map[string]any{"type": "object", "properties": map[string]any{}}
	tool, err := NewDynamicTool("meta", "Meta", schema, echoArgs,
		WithTimeout(30*time.Second), WithTags("a", "b"), WithVersion("1.0"), WithDangerous())
	require.NoError(t, err)

	tm, ok := tool.(ToolMetadata)
	require.True(t, ok, "dynamic tool must implement ToolMetadata")
	assert.Equal(t, 30*time.Second, tm.Timeout())
	assert.Equal(t, []string{"a", "b"}, tm.Tags())
	assert.Equal(t, "1.0", tm.Version())
	assert.True(t, tm.IsDangerous())
}

func TestNewDynamicTool_StrictOption(t *testing.T) {
	t.Parallel()
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "string"},
			"b": map[string]any{"type": "integer"},
		},
	}
	tool, err := NewDynamicTool("strict_tool", "Strict", schema, echoArgs, WithStrict())
	require.NoError(t, err)

	obj := findSchemaObject(schemaMap(t, tool))
	require.NotNil(t, obj)
	assert.Equal(t, false, obj["additionalProperties"])
	assert.Equal(t, []any{"a", "b"}, obj["required"])

	_, err = tool.Run(context.Background(), &session{}, []byte(`{"a":"x"}`))
	assert.True(t, IsParseError(err), "strict mode makes every property required")
}

func TestNewDynamicTool_DoesNotMutateCallerSchema(t *testing.T) {
	t.Parallel()
	nested := map[string]any{
		"type":       "object",
		"$id":        "https://example.com/nested",
		"id":         "nested",
		"properties": map[string]any{"a": map[string]any{"type": "string"}},
	}
	schema := map[string]any{
		"type": "object",
		"$id":  "https://example.com/root",
		"properties": map[string]any{
			"x":      map[string]any{"type": "integer"},
			"nested": nested,
		},
	}
	_, err := NewDynamicTool("no_mutate", "No mutate", schema, echoArgs, WithStrict())
	require.NoError(t, err)

	assert.Nil(t, schema["required"])
	assert.Nil(t, schema["additionalProperties"])
	assert.Equal(t, "https://example.com/root", schema["$id"])
	assert.Equal(t, "https://example.com/nested", nested["$id"])
	assert.Equal(t, "nested", nested["id"])
	assert.Nil(t, nested["required"])
	assert.Nil(t, nested["additionalProperties"])
}

func TestNewDynamicTool_LaterCallerMutationIsInvisible(t *testing.T) {
	t.Parallel()
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": "integer"}},
	}
	tool, err := NewDynamicTool("isolated", "Isolated", schema, echoArgs)
	require.NoError(t, err)

	schema["mutatedRoot"] = true
	schema["properties"].(map[string]any)["y"] = map[string]any{"type": "string"}

	after := schemaMap(t, tool)
	assert.Nil(t, after["mutatedRoot"])
	props := after["properties"].(map[string]any)
	assert.Contains(t, props, "x")
	assert.NotContains(t, props, "y")
}
