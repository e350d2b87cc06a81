package testutil

import (
	"encoding/json"
	"strconv"

	"github.com/skosovsky/toolloop"
)

// TextResponse returns a final answer with a single text block.
func TextResponse(text string) *toolloop.CompletionResponse {
	return &toolloop.CompletionResponse{
		ID:         "msg_text",
		Model:      "mock-model",
		Content:    []toolloop.ContentBlock{toolloop.TextBlock(text)},
		StopReason: "end_turn",
	}
}

// ToolUseResponse returns a response requesting the given calls, in order.
func ToolUseResponse(calls ...toolloop.ToolCall) *toolloop.CompletionResponse {
	blocks := make([]toolloop.ContentBlock, 0, len(calls))
	for _, c := range calls {
		blocks = append(blocks, toolloop.ToolUseBlock(c.ID, c.Name, c.Arguments))
	}
	return &toolloop.CompletionResponse{
		ID:         "msg_tool_use",
		Model:      "mock-model",
		Content:    blocks,
		StopReason: "tool_use",
	}
}

// Call is shorthand for a ToolCall with JSON arguments given as a string.
func Call(id, name, args string) toolloop.ToolCall {
	return toolloop.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

// Calls builds n calls to the same tool with ids call_1..call_n.
func Calls(name, args string, n int) []toolloop.ToolCall {
	out := make([]toolloop.ToolCall, n)
	for i := range out {
		out[i] = Call("call_"+strconv.Itoa(i+1), name, args)
	}
	return out
}
