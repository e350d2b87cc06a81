package toolloop

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CompletionRequest is the canonical, vendor-neutral request for one model round-trip.
// System messages are carried in Messages; providers move them wherever their wire format wants.
type CompletionRequest struct {
	Model          string
	Messages       []Message
	Tools          []ToolSpec
	MaxTokens      *int
	Temperature    *float64
	ResponseFormat *ResponseFormat
}

// WireRequest is a vendor-specific HTTP request, ready to send.
type WireRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// WireResponse is the raw HTTP response for a WireRequest.
type WireResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Provider translates between canonical types and one vendor's wire format. It performs no I/O.
type Provider interface {
	// Model is the model identifier put into every request built by the loop.
	Model() string
	// BuildRequest renders req for the vendor. An error means req could not be encoded.
	BuildRequest(req CompletionRequest) (*WireRequest, error)
	// ParseResponse classifies the status code (see ClassifyStatus) and decodes a successful body.
	ParseResponse(resp *WireResponse) (*CompletionResponse, error)
	// ParseStreamDelta decodes the data payload of one server-sent event.
	ParseStreamDelta(data []byte) (StreamDelta, error)
}

// Runtime sends wire requests. It is the only I/O boundary of the loop, which calls Send exactly
// once per iteration; retries and backoff, if any, belong inside the Runtime.
type Runtime interface {
	Send(ctx context.Context, req *WireRequest) (*WireResponse, error)
}

// RuntimeFunc adapts a function to the Runtime interface.
type RuntimeFunc func(ctx context.Context, req *WireRequest) (*WireResponse, error)

func (f RuntimeFunc) Send(ctx context.Context, req *WireRequest) (*WireResponse, error) {
	return f(ctx, req)
}

// DeltaType discriminates StreamDelta.
type DeltaType string

const (
	DeltaText          DeltaType = "text"
	DeltaThinking      DeltaType = "thinking"
	DeltaToolUseStart  DeltaType = "tool_use_start"
	DeltaToolArguments DeltaType = "tool_arguments"
	DeltaStop          DeltaType = "stop"
	DeltaUsage         DeltaType = "usage"
	// DeltaIgnored marks events that carry nothing for the canonical model (pings, keep-alives).
	DeltaIgnored DeltaType = "ignored"
)

// StreamDelta is one incremental piece of a streamed response. Index identifies the content
// block (or tool call) the delta belongs to.
type StreamDelta struct {
	Type             DeltaType
	Index            int
	Text             string
	ToolUseID        string
	ToolName         string
	PartialArguments string
	StopReason       string
	Usage            *Usage
}

// ResponseFormat asks the model for output matching a JSON Schema.
type ResponseFormat struct {
	Name   string
	Schema json.RawMessage
	Strict bool
}

// ClassifyStatus maps a non-2xx response to the error taxonomy; it returns nil for 2xx.
// decodeAPIError, when non-nil, extracts a vendor error envelope from the body; it reports
// false when the body is not one, and the response becomes an *HTTPError.
func ClassifyStatus(resp *WireResponse, decodeAPIError func(body []byte) (*APIError, bool)) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var apiErr *APIError
	if decodeAPIError != nil {
		if e, ok := decodeAPIError(resp.Body); ok {
			apiErr = e
		}
	}
	message := strings.TrimSpace(string(resp.Body))
	if apiErr != nil {
		message = apiErr.Message
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Message: message}
	case http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: RetryAfter(resp.Header, time.Now()), Message: message}
	}
	if apiErr != nil {
		return apiErr
	}
	return &HTTPError{Status: resp.StatusCode, Body: string(resp.Body)}
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
// It returns zero when the header is absent, malformed, or in the past.
func RetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
