package toolloop

import (
	"errors"
	"fmt"
	"time"
)

// CodeMaxIterationsExceeded is the APIError code the loop uses when it gives up.
const CodeMaxIterationsExceeded = "max_iterations_exceeded"

// Sentinel errors. Use errors.Is to check.
var (
	// ErrMaxIterationsExceeded is returned by Run when the model keeps requesting tools after
	// max_iterations round-trips. It is an *APIError so it can be handled like vendor errors.
	ErrMaxIterationsExceeded error = &APIError{Code: CodeMaxIterationsExceeded, Message: "maximum iterations exceeded"}

	ErrMissingProvider = errors.New("agent has no provider")
	ErrMissingRuntime  = errors.New("runtime must not be nil")
	ErrToolNotFound    = errors.New("tool not found")
)

// HTTPError is a non-2xx response the provider could not classify further.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: status %d: %s", e.Status, e.Body)
}

// JSONError reports malformed JSON at the wire layer.
type JSONError struct {
	Message string
	Err     error
}

func (e *JSONError) Error() string { return "json error: " + e.Message }

func (e *JSONError) Unwrap() error { return e.Err }

// APIError is a structured error reported by the vendor, or synthesized by the loop
// (see ErrMaxIterationsExceeded).
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return "api error: " + e.Message
	}
	return fmt.Sprintf("api error: %s: %s", e.Code, e.Message)
}

// Is matches another *APIError with the same code, so errors.Is(err, ErrMaxIterationsExceeded)
// holds for any loop-synthesized error regardless of its message.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// ParseError is a shape mismatch: a tool's arguments did not parse or validate, or a
// provider response did not have the expected structure. For tools the message is sent back
// to the model so it can correct itself.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string { return e.Message }

func (e *ParseError) Unwrap() error { return e.Err }

// ExecutionError means the tool accepted its input, ran, and failed.
type ExecutionError struct {
	Message string
	Err     error
}

func (e *ExecutionError) Error() string { return e.Message }

func (e *ExecutionError) Unwrap() error { return e.Err }

// RateLimitError is vendor throttling. RetryAfter is zero when the vendor gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// AuthError means the credentials were rejected.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return "authentication failed: " + e.Message }

// IsParseError returns true if err is or wraps a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsExecutionError returns true if err is or wraps an ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// IsRetryable reports whether a caller-level retry of the whole run may succeed:
// rate limits and 5xx responses.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status >= 500
	}
	return false
}

// wrapJSONParseError returns a ParseError for tool argument JSON that does not parse.
// Used by Extractor.ParseAndValidate and NewDynamicTool so parse errors are consistent.
func wrapJSONParseError(err error) error {
	return &ParseError{Message: "invalid JSON: " + err.Error(), Err: err}
}

// wrapHandlerError passes through ParseError and ExecutionError; wraps other errors as ExecutionError.
func wrapHandlerError(err error) error {
	if err == nil {
		return nil
	}
	if IsParseError(err) || IsExecutionError(err) {
		return err
	}
	return &ExecutionError{Message: err.Error(), Err: err}
}

// panicError wraps a recovered panic value; used by the WithRecovery middleware.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
