package openai

import (
	"encoding/json"
	"strings"

	sdk "github.com/openai/openai-go/v3"

	"github.com/skosovsky/toolloop"
)

type errorEnvelope struct {
	Error *sdk.ErrorObject `json:"error"`
}

// decodeAPIError reads {"error": {...}}. The code falls back to the error type, since many
// errors carry a null code.
func decodeAPIError(body []byte) (*toolloop.APIError, bool) {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return nil, false
	}
	if env.Error.Message == "" && env.Error.Type == "" {
		return nil, false
	}
	code := env.Error.Code
	if code == "" {
		code = env.Error.Type
	}
	return &toolloop.APIError{Code: code, Message: env.Error.Message}, true
}

// ParseResponse decodes a chat completion and maps its first choice.
func (p *Provider) ParseResponse(resp *toolloop.WireResponse) (*toolloop.CompletionResponse, error) {
	if err := toolloop.ClassifyStatus(resp, decodeAPIError); err != nil {
		return nil, err
	}
	var completion sdk.ChatCompletion
	if err := json.Unmarshal(resp.Body, &completion); err != nil {
		return nil, &toolloop.JSONError{Message: err.Error(), Err: err}
	}
	if len(completion.Choices) == 0 {
		return nil, &toolloop.ParseError{Message: "openai: response has no choices"}
	}
	choice := completion.Choices[0]
	out := &toolloop.CompletionResponse{
		ID:         completion.ID,
		Model:      completion.Model,
		StopReason: choice.FinishReason,
		Usage: toolloop.Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
	}
	switch {
	case choice.Message.Content != "":
		out.Content = append(out.Content, toolloop.TextBlock(choice.Message.Content))
	case choice.Message.Refusal != "":
		out.Content = append(out.Content, toolloop.TextBlock(choice.Message.Refusal))
	}
	for _, call := range choice.Message.ToolCalls {
		if call.Type != "function" {
			continue
		}
		args := strings.TrimSpace(call.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		out.Content = append(out.Content, toolloop.ToolUseBlock(call.ID, call.Function.Name, json.RawMessage(args)))
	}
	return out, nil
}

// ParseStreamDelta decodes one chunk of a streamed completion. The terminal "[DONE]" payload
// and chunks without content are reported as DeltaIgnored.
//
// One chunk yields one delta. OpenAI sends a single tool call fragment per chunk and never
// mixes it with content; if a chunk did carry several, only the first tool call fragment is
// returned and the rest of the chunk (further calls, content, finish reason) is dropped.
func (p *Provider) ParseStreamDelta(data []byte) (toolloop.StreamDelta, error) {
	if strings.TrimSpace(string(data)) == "[DONE]" {
		return toolloop.StreamDelta{Type: toolloop.DeltaIgnored}, nil
	}
	if apiErr, ok := decodeAPIError(data); ok {
		return toolloop.StreamDelta{}, apiErr
	}
	var chunk sdk.ChatCompletionChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return toolloop.StreamDelta{}, &toolloop.JSONError{Message: err.Error(), Err: err}
	}
	if len(chunk.Choices) == 0 {
		if chunk.JSON.Usage.Valid() {
			return toolloop.StreamDelta{Type: toolloop.DeltaUsage, Usage: &toolloop.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}}, nil
		}
		return toolloop.StreamDelta{Type: toolloop.DeltaIgnored}, nil
	}
	choice := chunk.Choices[0]
	if calls := choice.Delta.ToolCalls; len(calls) > 0 {
		call := calls[0]
		d := toolloop.StreamDelta{
			Type:             toolloop.DeltaToolArguments,
			Index:            int(call.Index),
			PartialArguments: call.Function.Arguments,
		}
		if call.ID != "" {
			d.Type = toolloop.DeltaToolUseStart
			d.ToolUseID = call.ID
			d.ToolName = call.Function.Name
		}
		return d, nil
	}
	if choice.Delta.Content != "" {
		return toolloop.StreamDelta{Type: toolloop.DeltaText, Index: int(choice.Index), Text: choice.Delta.Content}, nil
	}
	if choice.FinishReason != "" {
		d := toolloop.StreamDelta{Type: toolloop.DeltaStop, Index: int(choice.Index), StopReason: choice.FinishReason}
		if chunk.JSON.Usage.Valid() {
			d.Usage = &toolloop.Usage{InputTokens: chunk.Usage.PromptTokens, OutputTokens: chunk.Usage.CompletionTokens}
		}
		return d, nil
	}
	return toolloop.StreamDelta{Type: toolloop.DeltaIgnored, Index: int(choice.Index)}, nil
}
