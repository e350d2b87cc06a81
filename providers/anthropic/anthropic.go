// Package anthropic implements toolloop.Provider for the Anthropic Messages API.
// Requests and responses are encoded with the official SDK's types; no SDK client is used.
package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/skosovsky/toolloop"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	APIVersion       = "2023-06-01"
	DefaultMaxTokens = 4096
)

// Provider renders canonical requests as Messages API calls. It is immutable and safe for
// concurrent use.
type Provider struct {
	model     string
	apiKey    string
	baseURL   string
	header    http.Header
	maxTokens int
}

// Option configures a Provider.
type Option func(*Provider)

func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// WithBaseURL points the provider at a proxy or gateway instead of DefaultBaseURL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithHeader adds a header to every request (e.g. anthropic-beta).
func WithHeader(key, value string) Option {
	return func(p *Provider) { p.header.Add(key, value) }
}

// WithDefaultMaxTokens sets max_tokens for requests that do not carry their own limit.
// The Messages API requires the field.
func WithDefaultMaxTokens(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// New returns a provider for model.
func New(model string, opts ...Option) *Provider {
	p := &Provider{
		model:     model,
		baseURL:   DefaultBaseURL,
		header:    make(http.Header),
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Model() string { return p.model }

// BuildRequest renders req as a POST to /v1/messages. System messages are lifted into the
// top-level system field; a response format becomes an extra system instruction, since the
// Messages API has no structured-output parameter.
func (p *Provider) BuildRequest(req toolloop.CompletionRequest) (*toolloop.WireRequest, error) {
	maxTokens := p.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	for _, m := range req.Messages {
		if m.Role == toolloop.RoleSystem {
			block := sdk.TextBlockParam{Text: m.Text()}
			if m.CacheControl != nil {
				block.CacheControl = sdk.NewCacheControlEphemeralParam()
			}
			params.System = append(params.System, block)
			continue
		}
		msg, err := encodeMessage(m)
		if err != nil {
			return nil, err
		}
		params.Messages = append(params.Messages, msg)
	}
	if f := req.ResponseFormat; f != nil {
		params.System = append(params.System, sdk.TextBlockParam{Text: formatInstruction(*f)})
	}
	for _, spec := range req.Tools {
		tool, err := encodeTool(spec)
		if err != nil {
			return nil, err
		}
		params.Tools = append(params.Tools, sdk.ToolUnionParam{OfTool: tool})
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode request: %w", err)
	}
	h := p.header.Clone()
	h.Set("Content-Type", "application/json")
	h.Set("Anthropic-Version", APIVersion)
	if p.apiKey != "" {
		h.Set("X-Api-Key", p.apiKey)
	}
	return &toolloop.WireRequest{
		Method: http.MethodPost,
		URL:    p.baseURL + "/v1/messages",
		Header: h,
		Body:   body,
	}, nil
}

func encodeMessage(m toolloop.Message) (sdk.MessageParam, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
	for _, b := range m.Content {
		block, err := encodeBlock(b)
		if err != nil {
			return sdk.MessageParam{}, err
		}
		blocks = append(blocks, block)
	}
	if m.CacheControl != nil && len(blocks) > 0 {
		if cc := blocks[len(blocks)-1].GetCacheControl(); cc != nil {
			*cc = sdk.NewCacheControlEphemeralParam()
		}
	}
	switch m.Role {
	case toolloop.RoleUser:
		return sdk.NewUserMessage(blocks...), nil
	case toolloop.RoleAssistant:
		return sdk.NewAssistantMessage(blocks...), nil
	default:
		return sdk.MessageParam{}, fmt.Errorf("anthropic: unsupported role %q", m.Role)
	}
}

func encodeBlock(b toolloop.ContentBlock) (sdk.ContentBlockParamUnion, error) {
	switch b.Type {
	case toolloop.BlockText:
		return sdk.NewTextBlock(b.Text), nil
	case toolloop.BlockImage:
		if b.Source == nil {
			return sdk.ContentBlockParamUnion{}, errors.New("anthropic: image block without source")
		}
		if b.Source.Type == toolloop.SourceURL {
			return sdk.NewImageBlock(sdk.URLImageSourceParam{URL: b.Source.URL}), nil
		}
		return sdk.NewImageBlockBase64(b.Source.MediaType, b.Source.Data), nil
	case toolloop.BlockDocument:
		if b.Source == nil {
			return sdk.ContentBlockParamUnion{}, errors.New("anthropic: document block without source")
		}
		switch {
		case b.Source.Type == toolloop.SourceURL:
			return sdk.NewDocumentBlock(sdk.URLPDFSourceParam{URL: b.Source.URL}), nil
		case b.MediaType == "text/plain" || b.Source.MediaType == "text/plain":
			return sdk.NewDocumentBlock(sdk.PlainTextSourceParam{Data: b.Source.Data}), nil
		default:
			return sdk.NewDocumentBlock(sdk.Base64PDFSourceParam{Data: b.Source.Data}), nil
		}
	case toolloop.BlockToolUse:
		args := b.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		return sdk.NewToolUseBlock(b.ID, args, b.Name), nil
	case toolloop.BlockToolResult:
		result := sdk.ToolResultBlockParam{ToolUseID: b.ToolUseID}
		if b.IsError {
			result.IsError = sdk.Bool(true)
		}
		for _, c := range b.Content {
			switch c.Type {
			case toolloop.BlockText:
				result.Content = append(result.Content, sdk.ToolResultBlockParamContentUnion{
					OfText: &sdk.TextBlockParam{Text: c.Text},
				})
			case toolloop.BlockImage:
				img, err := encodeBlock(c)
				if err != nil {
					return sdk.ContentBlockParamUnion{}, err
				}
				result.Content = append(result.Content, sdk.ToolResultBlockParamContentUnion{OfImage: img.OfImage})
			default:
				return sdk.ContentBlockParamUnion{}, fmt.Errorf("anthropic: unsupported tool result content %q", c.Type)
			}
		}
		return sdk.ContentBlockParamUnion{OfToolResult: &result}, nil
	case toolloop.BlockThinking:
		return sdk.NewThinkingBlock(b.Signature, b.Text), nil
	default:
		return sdk.ContentBlockParamUnion{}, fmt.Errorf("anthropic: unsupported content block %q", b.Type)
	}
}

// encodeTool splits a JSON Schema into the properties/required fields of input_schema and
// passes every other keyword through as an extra field.
func encodeTool(spec toolloop.ToolSpec) (*sdk.ToolParam, error) {
	var schema map[string]any
	if len(spec.InputSchema) > 0 {
		if err := json.Unmarshal(spec.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: tool %q: decode schema: %w", spec.Name, err)
		}
	}
	input := sdk.ToolInputSchemaParam{Properties: schema["properties"]}
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				input.Required = append(input.Required, s)
			}
		}
	}
	extra := maps.Clone(schema)
	delete(extra, "type")
	delete(extra, "properties")
	delete(extra, "required")
	if len(extra) > 0 {
		input.ExtraFields = extra
	}
	tool := &sdk.ToolParam{Name: spec.Name, InputSchema: input}
	if spec.Description != "" {
		tool.Description = sdk.String(spec.Description)
	}
	return tool, nil
}

func formatInstruction(f toolloop.ResponseFormat) string {
	return fmt.Sprintf("Respond only with a JSON document named %q that matches this JSON Schema:\n%s", f.Name, f.Schema)
}

var _ toolloop.Provider = (*Provider)(nil)
