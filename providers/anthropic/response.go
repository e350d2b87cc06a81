package anthropic

import (
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/skosovsky/toolloop"
)

// errorEnvelope is the body of every non-2xx Messages API response and of "error" stream events.
type errorEnvelope struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeAPIError(body []byte) (*toolloop.APIError, bool) {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Type != "error" || env.Error.Type == "" {
		return nil, false
	}
	return &toolloop.APIError{Code: env.Error.Type, Message: env.Error.Message}, true
}

// ParseResponse decodes a Messages API response. Text, tool_use and thinking blocks are kept;
// other block types (server tools, redacted thinking) are dropped.
func (p *Provider) ParseResponse(resp *toolloop.WireResponse) (*toolloop.CompletionResponse, error) {
	if err := toolloop.ClassifyStatus(resp, decodeAPIError); err != nil {
		return nil, err
	}
	var msg sdk.Message
	if err := json.Unmarshal(resp.Body, &msg); err != nil {
		return nil, &toolloop.JSONError{Message: err.Error(), Err: err}
	}
	if msg.ID == "" {
		return nil, &toolloop.ParseError{Message: "anthropic: response has no message id"}
	}
	out := &toolloop.CompletionResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Usage: toolloop.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, b := range msg.Content {
		switch b.Type {
		case "text":
			out.Content = append(out.Content, toolloop.TextBlock(b.Text))
		case "tool_use":
			args := b.Input
			if len(args) == 0 {
				args = json.RawMessage(`{}`)
			}
			out.Content = append(out.Content, toolloop.ToolUseBlock(b.ID, b.Name, args))
		case "thinking":
			out.Content = append(out.Content, toolloop.ThinkingBlock(b.Thinking, b.Signature))
		}
	}
	return out, nil
}

// ParseStreamDelta decodes the data of one server-sent event of a streamed Messages call.
// An "error" event is returned as *toolloop.APIError.
func (p *Provider) ParseStreamDelta(data []byte) (toolloop.StreamDelta, error) {
	var ev sdk.MessageStreamEventUnion
	if err := json.Unmarshal(data, &ev); err != nil {
		return toolloop.StreamDelta{}, &toolloop.JSONError{Message: err.Error(), Err: err}
	}
	idx := int(ev.Index)
	switch ev.Type {
	case "message_start":
		return toolloop.StreamDelta{Type: toolloop.DeltaUsage, Usage: &toolloop.Usage{
			InputTokens:  ev.Message.Usage.InputTokens,
			OutputTokens: ev.Message.Usage.OutputTokens,
		}}, nil
	case "content_block_start":
		switch cb := ev.ContentBlock; cb.Type {
		case "tool_use":
			return toolloop.StreamDelta{Type: toolloop.DeltaToolUseStart, Index: idx, ToolUseID: cb.ID, ToolName: cb.Name}, nil
		case "text":
			return toolloop.StreamDelta{Type: toolloop.DeltaText, Index: idx, Text: cb.Text}, nil
		case "thinking":
			return toolloop.StreamDelta{Type: toolloop.DeltaThinking, Index: idx, Text: cb.Thinking}, nil
		}
	case "content_block_delta":
		switch d := ev.Delta; d.Type {
		case "text_delta":
			return toolloop.StreamDelta{Type: toolloop.DeltaText, Index: idx, Text: d.Text}, nil
		case "input_json_delta":
			return toolloop.StreamDelta{Type: toolloop.DeltaToolArguments, Index: idx, PartialArguments: d.PartialJSON}, nil
		case "thinking_delta":
			return toolloop.StreamDelta{Type: toolloop.DeltaThinking, Index: idx, Text: d.Thinking}, nil
		}
	case "message_delta":
		return toolloop.StreamDelta{
			Type:       toolloop.DeltaStop,
			StopReason: string(ev.Delta.StopReason),
			Usage:      &toolloop.Usage{InputTokens: ev.Usage.InputTokens, OutputTokens: ev.Usage.OutputTokens},
		}, nil
	case "error":
		if apiErr, ok := decodeAPIError(data); ok {
			return toolloop.StreamDelta{}, apiErr
		}
		return toolloop.StreamDelta{}, &toolloop.ParseError{Message: "anthropic: malformed error event"}
	}
	return toolloop.StreamDelta{Type: toolloop.DeltaIgnored, Index: idx}, nil
}
