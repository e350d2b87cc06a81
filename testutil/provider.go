package testutil

import (
	"encoding/json"
	"net/http"

	"github.com/skosovsky/toolloop"
)

// MockURL is the URL of every request built by Provider.
const MockURL = "mock://completions"

// Provider is a toolloop.Provider whose wire format is the canonical types encoded as JSON.
// Pair it with ScriptedRuntime.
type Provider struct {
	ModelName string
	// BuildErr, when set, is returned by every BuildRequest.
	BuildErr error
}

// NewProvider returns a Provider reporting the given model name.
func NewProvider(model string) *Provider {
	return &Provider{ModelName: model}
}

func (p *Provider) Model() string {
	if p.ModelName == "" {
		return "mock-model"
	}
	return p.ModelName
}

// BuildRequest encodes req as the JSON body of a POST to MockURL.
func (p *Provider) BuildRequest(req toolloop.CompletionRequest) (*toolloop.WireRequest, error) {
	if p.BuildErr != nil {
		return nil, p.BuildErr
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &toolloop.WireRequest{Method: http.MethodPost, URL: MockURL, Header: h, Body: body}, nil
}

// ParseResponse classifies the status and decodes a CompletionResponse from the body.
// Error bodies of the form {"code":"…","message":"…"} become *toolloop.APIError.
func (p *Provider) ParseResponse(resp *toolloop.WireResponse) (*toolloop.CompletionResponse, error) {
	if err := toolloop.ClassifyStatus(resp, decodeAPIError); err != nil {
		return nil, err
	}
	var out toolloop.CompletionResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, &toolloop.JSONError{Message: err.Error(), Err: err}
	}
	return &out, nil
}

// ParseStreamDelta decodes a StreamDelta encoded as JSON.
func (p *Provider) ParseStreamDelta(data []byte) (toolloop.StreamDelta, error) {
	var d toolloop.StreamDelta
	if err := json.Unmarshal(data, &d); err != nil {
		return toolloop.StreamDelta{}, &toolloop.JSONError{Message: err.Error(), Err: err}
	}
	return d, nil
}

func decodeAPIError(body []byte) (*toolloop.APIError, bool) {
	var env struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Message == "" {
		return nil, false
	}
	return &toolloop.APIError{Code: env.Code, Message: env.Message}, true
}

var _ toolloop.Provider = (*Provider)(nil)
