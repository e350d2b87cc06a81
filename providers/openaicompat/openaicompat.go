// Package openaicompat implements toolloop.Provider for servers that speak the OpenAI Chat
// Completions dialect without tracking the newest OpenAI fields: Ollama, vLLM, LM Studio,
// Groq, OpenRouter and similar gateways. It sends max_tokens rather than
// max_completion_tokens and reads reasoning_content as thinking.
package openaicompat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/skosovsky/toolloop"
)

// DefaultBaseURL is Ollama's OpenAI-compatible endpoint.
const DefaultBaseURL = "http://localhost:11434/v1"

type Provider struct {
	model   string
	apiKey  string
	baseURL string
	header  http.Header
}

type Option func(*Provider)

func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

func WithHeader(key, value string) Option {
	return func(p *Provider) { p.header.Add(key, value) }
}

func New(model string, opts ...Option) *Provider {
	p := &Provider{
		model:   model,
		baseURL: DefaultBaseURL,
		header:  make(http.Header),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Model() string { return p.model }

// BuildRequest renders req as a POST to /chat/completions.
func (p *Provider) BuildRequest(req toolloop.CompletionRequest) (*toolloop.WireRequest, error) {
	body := goopenai.ChatCompletionRequest{Model: req.Model}
	if req.MaxTokens != nil {
		body.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		body.Temperature = float32(*req.Temperature)
	}
	for _, m := range req.Messages {
		msgs, err := encodeMessage(m)
		if err != nil {
			return nil, err
		}
		body.Messages = append(body.Messages, msgs...)
	}
	for _, spec := range req.Tools {
		def := &goopenai.FunctionDefinition{Name: spec.Name, Description: spec.Description}
		if len(spec.InputSchema) > 0 {
			def.Parameters = spec.InputSchema
		} else {
			def.Parameters = json.RawMessage(`{"type":"object"}`)
		}
		body.Tools = append(body.Tools, goopenai.Tool{Type: goopenai.ToolTypeFunction, Function: def})
	}
	if f := req.ResponseFormat; f != nil {
		body.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
				Name:   f.Name,
				Schema: f.Schema,
				Strict: f.Strict,
			},
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: encode request: %w", err)
	}
	h := p.header.Clone()
	h.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		h.Set("Authorization", "Bearer "+p.apiKey)
	}
	return &toolloop.WireRequest{
		Method: http.MethodPost,
		URL:    p.baseURL + "/chat/completions",
		Header: h,
		Body:   data,
	}, nil
}

func encodeMessage(m toolloop.Message) ([]goopenai.ChatCompletionMessage, error) {
	switch m.Role {
	case toolloop.RoleSystem:
		return []goopenai.ChatCompletionMessage{{Role: goopenai.ChatMessageRoleSystem, Content: m.Text()}}, nil
	case toolloop.RoleAssistant:
		msg := goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: m.Text()}
		for _, call := range m.ToolCalls() {
			args := string(call.Arguments)
			if args == "" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
				ID:       call.ID,
				Type:     goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{Name: call.Name, Arguments: args},
			})
		}
		return []goopenai.ChatCompletionMessage{msg}, nil
	case toolloop.RoleUser:
		return encodeUser(m)
	default:
		return nil, fmt.Errorf("openaicompat: unsupported role %q", m.Role)
	}
}

func encodeUser(m toolloop.Message) ([]goopenai.ChatCompletionMessage, error) {
	var (
		out   []goopenai.ChatCompletionMessage
		parts []goopenai.ChatMessagePart
	)
	for _, b := range m.Content {
		switch b.Type {
		case toolloop.BlockToolResult:
			var text []string
			for _, c := range b.Content {
				if c.Type == toolloop.BlockText {
					text = append(text, c.Text)
				}
			}
			out = append(out, goopenai.ChatCompletionMessage{
				Role:       goopenai.ChatMessageRoleTool,
				Content:    strings.Join(text, "\n"),
				ToolCallID: b.ToolUseID,
			})
		case toolloop.BlockText:
			parts = append(parts, goopenai.ChatMessagePart{Type: goopenai.ChatMessagePartTypeText, Text: b.Text})
		case toolloop.BlockImage:
			if b.Source == nil {
				return nil, errors.New("openaicompat: image block without source")
			}
			url := b.Source.URL
			if b.Source.Type == toolloop.SourceBase64 {
				url = "data:" + b.Source.MediaType + ";base64," + b.Source.Data
			}
			parts = append(parts, goopenai.ChatMessagePart{
				Type:     goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{URL: url},
			})
		case toolloop.BlockThinking:
		default:
			return nil, fmt.Errorf("openaicompat: unsupported content block %q", b.Type)
		}
	}
	switch {
	case len(parts) == 1 && parts[0].Type == goopenai.ChatMessagePartTypeText:
		out = append(out, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: parts[0].Text})
	case len(parts) > 0:
		out = append(out, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, MultiContent: parts})
	}
	return out, nil
}

var _ toolloop.Provider = (*Provider)(nil)
