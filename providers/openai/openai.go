// Package openai implements toolloop.Provider for the OpenAI Chat Completions API.
// Requests and responses are encoded with the official SDK's param and response types.
package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v3"

	"github.com/skosovsky/toolloop"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Provider renders canonical requests as Chat Completions calls. It is immutable and safe for
// concurrent use.
type Provider struct {
	model   string
	apiKey  string
	baseURL string
	header  http.Header
}

// Option configures a Provider.
type Option func(*Provider)

func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// WithBaseURL points the provider at a proxy or an Azure-style gateway.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

func WithHeader(key, value string) Option {
	return func(p *Provider) { p.header.Add(key, value) }
}

// WithOrganization sets the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return WithHeader("OpenAI-Organization", org)
}

// WithProject sets the OpenAI-Project header.
func WithProject(project string) Option {
	return WithHeader("OpenAI-Project", project)
}

// New returns a provider for model.
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

// BuildRequest renders req as a POST to /chat/completions. Tool results, which the canonical
// model carries inside a user message, become one "tool" message each; thinking blocks are
// not sent.
func (p *Provider) BuildRequest(req toolloop.CompletionRequest) (*toolloop.WireRequest, error) {
	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(req.Model)}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = sdk.Int(int64(*req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	for _, m := range req.Messages {
		msgs, err := encodeMessage(m)
		if err != nil {
			return nil, err
		}
		params.Messages = append(params.Messages, msgs...)
	}
	for _, spec := range req.Tools {
		fn, err := encodeFunction(spec)
		if err != nil {
			return nil, err
		}
		params.Tools = append(params.Tools, sdk.ChatCompletionFunctionTool(fn))
	}
	if f := req.ResponseFormat; f != nil {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &sdk.ResponseFormatJSONSchemaParam{
				JSONSchema: sdk.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   f.Name,
					Strict: sdk.Bool(f.Strict),
					Schema: f.Schema,
				},
			},
		}
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
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
		Body:   body,
	}, nil
}

func encodeMessage(m toolloop.Message) ([]sdk.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case toolloop.RoleSystem:
		return []sdk.ChatCompletionMessageParamUnion{sdk.SystemMessage(m.Text())}, nil
	case toolloop.RoleAssistant:
		return []sdk.ChatCompletionMessageParamUnion{encodeAssistant(m)}, nil
	case toolloop.RoleUser:
		return encodeUser(m)
	default:
		return nil, fmt.Errorf("openai: unsupported role %q", m.Role)
	}
}

func encodeAssistant(m toolloop.Message) sdk.ChatCompletionMessageParamUnion {
	var assistant sdk.ChatCompletionAssistantMessageParam
	if text := m.Text(); text != "" {
		assistant.Content.OfString = sdk.String(text)
	}
	for _, call := range m.ToolCalls() {
		args := string(call.Arguments)
		if args == "" {
			args = "{}"
		}
		assistant.ToolCalls = append(assistant.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &sdk.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: args,
				},
			},
		})
	}
	return sdk.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

// encodeUser emits tool results first, then the remaining content as one user message.
func encodeUser(m toolloop.Message) ([]sdk.ChatCompletionMessageParamUnion, error) {
	var (
		out   []sdk.ChatCompletionMessageParamUnion
		parts []sdk.ChatCompletionContentPartUnionParam
	)
	for _, b := range m.Content {
		switch b.Type {
		case toolloop.BlockToolResult:
			out = append(out, sdk.ToolMessage(joinText(b.Content), b.ToolUseID))
		case toolloop.BlockText:
			parts = append(parts, sdk.TextContentPart(b.Text))
		case toolloop.BlockImage:
			if b.Source == nil {
				return nil, errors.New("openai: image block without source")
			}
			parts = append(parts, sdk.ImageContentPart(sdk.ChatCompletionContentPartImageImageURLParam{
				URL: sourceURL(*b.Source, b.Source.MediaType),
			}))
		case toolloop.BlockDocument:
			if b.Source == nil || b.Source.Type != toolloop.SourceBase64 {
				return nil, errors.New("openai: document blocks must carry base64 data")
			}
			parts = append(parts, sdk.FileContentPart(sdk.ChatCompletionContentPartFileFileParam{
				FileData: sdk.String(sourceURL(*b.Source, b.MediaType)),
				Filename: sdk.String("document"),
			}))
		case toolloop.BlockThinking:
		default:
			return nil, fmt.Errorf("openai: unsupported content block %q", b.Type)
		}
	}
	switch {
	case len(parts) == 1 && parts[0].OfText != nil:
		out = append(out, sdk.UserMessage(parts[0].OfText.Text))
	case len(parts) > 0:
		out = append(out, sdk.UserMessage(parts))
	}
	return out, nil
}

// sourceURL renders a source as a URL, using a data URL for inline bytes.
func sourceURL(src toolloop.Source, mediaType string) string {
	if src.Type == toolloop.SourceURL {
		return src.URL
	}
	if mediaType == "" {
		mediaType = src.MediaType
	}
	return "data:" + mediaType + ";base64," + src.Data
}

func encodeFunction(spec toolloop.ToolSpec) (sdk.FunctionDefinitionParam, error) {
	fn := sdk.FunctionDefinitionParam{Name: spec.Name}
	if spec.Description != "" {
		fn.Description = sdk.String(spec.Description)
	}
	if len(spec.InputSchema) > 0 {
		var params sdk.FunctionParameters
		if err := json.Unmarshal(spec.InputSchema, &params); err != nil {
			return fn, fmt.Errorf("openai: tool %q: decode schema: %w", spec.Name, err)
		}
		fn.Parameters = params
		if isStrict(params) {
			fn.Strict = sdk.Bool(true)
		}
	}
	return fn, nil
}

// isStrict reports whether a schema meets structured-output rules at every level: each object
// closed with additionalProperties false and listing all of its properties as required.
func isStrict(schema map[string]any) bool {
	props, hasProps := schema["properties"].(map[string]any)
	if hasProps || schema["type"] == "object" {
		if additional, ok := schema["additionalProperties"].(bool); !ok || additional {
			return false
		}
		required, _ := schema["required"].([]any)
		if len(props) != len(required) {
			return false
		}
		for _, prop := range props {
			if !isStrictNode(prop) {
				return false
			}
		}
	}
	if !isStrictNode(schema["items"]) {
		return false
	}
	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		variants, _ := schema[key].([]any)
		for _, v := range variants {
			if !isStrictNode(v) {
				return false
			}
		}
	}
	for _, key := range []string{"$defs", "definitions"} {
		defs, _ := schema[key].(map[string]any)
		for _, d := range defs {
			if !isStrictNode(d) {
				return false
			}
		}
	}
	return true
}

// isStrictNode applies isStrict to v when it is a schema object; anything else passes.
func isStrictNode(v any) bool {
	m, ok := v.(map[string]any)
	return !ok || isStrict(m)
}

func joinText(blocks []toolloop.ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == toolloop.BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ toolloop.Provider = (*Provider)(nil)
