package openaicompat

import (
	"encoding/json"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/skosovsky/toolloop"
)

// decodeAPIError accepts the OpenAI envelope {"error": {...}} and the flat
// {"object": "error", "message": ...} body returned by vLLM.
func decodeAPIError(body []byte) (*toolloop.APIError, bool) {
	var env goopenai.ErrorResponse
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return toAPIError(env.Error), true
	}
	var flat struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(body, &flat); err != nil || flat.Object != "error" {
		return nil, false
	}
	var e goopenai.APIError
	if err := json.Unmarshal(body, &e); err != nil || e.Message == "" {
		return nil, false
	}
	return toAPIError(&e), true
}

func toAPIError(e *goopenai.APIError) *toolloop.APIError {
	code := e.Type
	switch c := e.Code.(type) {
	case string:
		if c != "" {
			code = c
		}
	case int:
		code = fmt.Sprint(c)
	}
	return &toolloop.APIError{Code: code, Message: e.Message}
}

// ParseResponse decodes a chat completion and maps its first choice. reasoning_content, when
// the server sends it, becomes a leading thinking block.
func (p *Provider) ParseResponse(resp *toolloop.WireResponse) (*toolloop.CompletionResponse, error) {
	if err := toolloop.ClassifyStatus(resp, decodeAPIError); err != nil {
		return nil, err
	}
	var completion goopenai.ChatCompletionResponse
	if err := json.Unmarshal(resp.Body, &completion); err != nil {
		return nil, &toolloop.JSONError{Message: err.Error(), Err: err}
	}
	if len(completion.Choices) == 0 {
		return nil, &toolloop.ParseError{Message: "openaicompat: response has no choices"}
	}
	choice := completion.Choices[0]
	msg := choice.Message
	out := &toolloop.CompletionResponse{
		ID:         completion.ID,
		Model:      completion.Model,
		StopReason: string(choice.FinishReason),
		Usage: toolloop.Usage{
			InputTokens:  int64(completion.Usage.PromptTokens),
			OutputTokens: int64(completion.Usage.CompletionTokens),
		},
	}
	if msg.ReasoningContent != "" {
		out.Content = append(out.Content, toolloop.ThinkingBlock(msg.ReasoningContent, ""))
	}
	text := msg.Content
	for _, part := range msg.MultiContent {
		if part.Type == goopenai.ChatMessagePartTypeText {
			text += part.Text
		}
	}
	if text != "" {
		out.Content = append(out.Content, toolloop.TextBlock(text))
	}
	for i, call := range msg.ToolCalls {
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		args := strings.TrimSpace(call.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		out.Content = append(out.Content, toolloop.ToolUseBlock(id, call.Function.Name, json.RawMessage(args)))
	}
	return out, nil
}

// ParseStreamDelta decodes one streamed chunk.
func (p *Provider) ParseStreamDelta(data []byte) (toolloop.StreamDelta, error) {
	if strings.TrimSpace(string(data)) == "[DONE]" {
		return toolloop.StreamDelta{Type: toolloop.DeltaIgnored}, nil
	}
	if apiErr, ok := decodeAPIError(data); ok {
		return toolloop.StreamDelta{}, apiErr
	}
	var chunk goopenai.ChatCompletionStreamResponse
	if err := json.Unmarshal(data, &chunk); err != nil {
		return toolloop.StreamDelta{}, &toolloop.JSONError{Message: err.Error(), Err: err}
	}
	var usage *toolloop.Usage
	if chunk.Usage != nil {
		usage = &toolloop.Usage{
			InputTokens:  int64(chunk.Usage.PromptTokens),
			OutputTokens: int64(chunk.Usage.CompletionTokens),
		}
	}
	if len(chunk.Choices) == 0 {
		if usage != nil {
			return toolloop.StreamDelta{Type: toolloop.DeltaUsage, Usage: usage}, nil
		}
		return toolloop.StreamDelta{Type: toolloop.DeltaIgnored}, nil
	}
	choice := chunk.Choices[0]
	delta := choice.Delta
	switch {
	case len(delta.ToolCalls) > 0:
		call := delta.ToolCalls[0]
		d := toolloop.StreamDelta{Type: toolloop.DeltaToolArguments, PartialArguments: call.Function.Arguments}
		if call.Index != nil {
			d.Index = *call.Index
		}
		if call.ID != "" {
			d.Type = toolloop.DeltaToolUseStart
			d.ToolUseID = call.ID
			d.ToolName = call.Function.Name
		}
		return d, nil
	case delta.ReasoningContent != "":
		return toolloop.StreamDelta{Type: toolloop.DeltaThinking, Index: choice.Index, Text: delta.ReasoningContent}, nil
	case delta.Content != "":
		return toolloop.StreamDelta{Type: toolloop.DeltaText, Index: choice.Index, Text: delta.Content}, nil
	case choice.FinishReason != "":
		return toolloop.StreamDelta{Type: toolloop.DeltaStop, Index: choice.Index, StopReason: string(choice.FinishReason), Usage: usage}, nil
	}
	return toolloop.StreamDelta{Type: toolloop.DeltaIgnored, Index: choice.Index}, nil
}
