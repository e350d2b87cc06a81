package toolloop

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wrapErr struct {
	err error
}

func (e wrapErr) Error() string {
	if e.err == nil {
		return ""
	}
	return "wrap: " + e.err.Error()
}
func (e wrapErr) Unwrap() error { return e.err }

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect string
	}{
		{"http", &HTTPError{Status: 502, Body: "bad gateway"}, "http error: status 502: bad gateway"},
		{"json", &JSONError{Message: "unexpected end of input"}, "json error: unexpected end of input"},
		{"api with code", &APIError{Code: "overloaded", Message: "try later"}, "api error: overloaded: try later"},
		{"api without code", &APIError{Message: "boom"}, "api error: boom"},
		{"parse", &ParseError{Message: "invalid JSON: x"}, "invalid JSON: x"},
		{"execution", &ExecutionError{Message: "Unknown tool: fly"}, "Unknown tool: fly"},
		{"rate limit with hint", &RateLimitError{RetryAfter: 2 * time.Second}, "rate limited: retry after 2s"},
		{"rate limit without hint", &RateLimitError{}, "rate limited"},
		{"auth", &AuthError{Message: "invalid x-api-key"}, "authentication failed: invalid x-api-key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.err.Error())
		})
	}
}

func TestErrMaxIterationsExceeded_MatchesByCode(t *testing.T) {
	synthesized := &APIError{Code: CodeMaxIterationsExceeded, Message: "model still requested tools after 3 iterations"}
	assert.ErrorIs(t, synthesized, ErrMaxIterationsExceeded)
	assert.ErrorIs(t, fmt.Errorf("run: %w", synthesized), ErrMaxIterationsExceeded)
	assert.NotErrorIs(t, &APIError{Code: "overloaded"}, ErrMaxIterationsExceeded)
	assert.NotErrorIs(t, &APIError{Message: "no code"}, &APIError{Message: "no code"})

	var apiErr *APIError
	require.ErrorAs(t, ErrMaxIterationsExceeded, &apiErr)
	assert.Equal(t, CodeMaxIterationsExceeded, apiErr.Code)
}

func TestIsParseError_IsExecutionError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		parse     bool
		execution bool
	}{
		{"parse direct", &ParseError{Message: "x"}, true, false},
		{"parse wrapped", wrapErr{err: &ParseError{Message: "x"}}, true, false},
		{"execution direct", &ExecutionError{Message: "x"}, false, true},
		{"execution wrapped", wrapErr{err: &ExecutionError{Message: "x"}}, false, true},
		{"sentinel", ErrToolNotFound, false, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.parse, IsParseError(tt.err))
			assert.Equal(t, tt.execution, IsExecutionError(tt.err))
		})
	}
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("db connection refused")
	assert.Same(t, inner, (&ExecutionError{Message: "x", Err: inner}).Unwrap())
	assert.Same(t, inner, (&ParseError{Message: "x", Err: inner}).Unwrap())
	assert.Same(t, inner, (&JSONError{Message: "x", Err: inner}).Unwrap())
	assert.ErrorIs(t, &ExecutionError{Message: "Unknown tool: x", Err: ErrToolNotFound}, ErrToolNotFound)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &RateLimitError{}, true},
		{"wrapped rate limit", fmt.Errorf("send request: %w", &RateLimitError{}), true},
		{"server error", &HTTPError{Status: http.StatusServiceUnavailable}, true},
		{"client error", &HTTPError{Status: http.StatusBadRequest}, false},
		{"auth", &AuthError{}, false},
		{"api", &APIError{Code: "invalid_request_error"}, false},
		{"max iterations", ErrMaxIterationsExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestWrapHandlerError(t *testing.T) {
	require.NoError(t, wrapHandlerError(nil))

	pe := &ParseError{Message: "p"}
	assert.Same(t, pe, wrapHandlerError(pe))

	plain := errors.New("plain")
	wrapped := wrapHandlerError(plain)
	var ee *ExecutionError
	require.ErrorAs(t, wrapped, &ee)
	assert.Equal(t, "plain", ee.Message)
	assert.ErrorIs(t, wrapped, plain)
}

func TestPanicError(t *testing.T) {
	assert.Equal(t, "panic: boom", (&panicError{p: "boom"}).Error())
	assert.Equal(t, "panic: 42", (&panicError{p: 42}).Error())
}
