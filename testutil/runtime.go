package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/skosovsky/toolloop"
)

// ErrScriptExhausted is returned by ScriptedRuntime when it has no step left to play.
var ErrScriptExhausted = errors.New("scripted runtime: no more steps")

// Step is one scripted reply: a canonical response (sent as 200), a raw wire response, or a
// transport error. Exactly one field should be set.
type Step struct {
	Response *toolloop.CompletionResponse
	Wire     *toolloop.WireResponse
	Err      error
}

// ScriptedRuntime replays steps in order and records the requests it receives. It is meant for
// Provider; the recorded requests are decoded back into toolloop.CompletionRequest.
type ScriptedRuntime struct {
	mu         sync.Mutex
	steps      []Step
	repeatLast bool
	requests   []toolloop.CompletionRequest
}

// NewScriptedRuntime returns a runtime replaying steps.
func NewScriptedRuntime(steps ...Step) *ScriptedRuntime {
	return &ScriptedRuntime{steps: steps}
}

// Respond returns a runtime that answers with responses in order.
func Respond(responses ...*toolloop.CompletionResponse) *ScriptedRuntime {
	steps := make([]Step, len(responses))
	for i, r := range responses {
		steps[i] = Step{Response: r}
	}
	return NewScriptedRuntime(steps...)
}

// RepeatLast makes the runtime replay its final step forever instead of failing.
func (r *ScriptedRuntime) RepeatLast() *ScriptedRuntime {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repeatLast = true
	return r
}

func (r *ScriptedRuntime) Send(ctx context.Context, req *toolloop.WireRequest) (*toolloop.WireResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var decoded toolloop.CompletionRequest
	if err := json.Unmarshal(req.Body, &decoded); err != nil {
		return nil, fmt.Errorf("scripted runtime: decode request: %w", err)
	}
	r.requests = append(r.requests, decoded)

	idx := len(r.requests) - 1
	if idx >= len(r.steps) {
		if !r.repeatLast || len(r.steps) == 0 {
			return nil, ErrScriptExhausted
		}
		idx = len(r.steps) - 1
	}
	step := r.steps[idx]
	switch {
	case step.Err != nil:
		return nil, step.Err
	case step.Wire != nil:
		return step.Wire, nil
	default:
		body, err := json.Marshal(step.Response)
		if err != nil {
			return nil, err
		}
		return &toolloop.WireResponse{StatusCode: http.StatusOK, Header: make(http.Header), Body: body}, nil
	}
}

// Calls returns how many requests were sent.
func (r *ScriptedRuntime) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// Requests returns the decoded requests in the order they were sent.
func (r *ScriptedRuntime) Requests() []toolloop.CompletionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]toolloop.CompletionRequest(nil), r.requests...)
}

var _ toolloop.Runtime = (*ScriptedRuntime)(nil)
