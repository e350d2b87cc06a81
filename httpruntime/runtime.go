// Package httpruntime sends toolloop wire requests over HTTP, with optional retries.
package httpruntime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/skosovsky/toolloop"
)

// Defaults applied by New.
const (
	DefaultTimeout   = 2 * time.Minute
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultMaxDelay  = 30 * time.Second
)

// RetryConfig controls retries of a single Send. MaxAttempts below 2 disables retrying.
type RetryConfig struct {
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles on every further attempt.
	BaseDelay time.Duration
	// MaxDelay caps every wait. A Retry-After hint longer than MaxDelay stops retrying and the
	// throttled response is returned as is.
	MaxDelay time.Duration
	// ShouldRetry overrides the default policy (transport errors, 429 and 5xx). Exactly one of
	// resp and err is non-nil.
	ShouldRetry func(resp *toolloop.WireResponse, err error) bool
}

// Runtime is a toolloop.Runtime backed by an *http.Client. It is safe for concurrent use.
type Runtime struct {
	client  *http.Client
	timeout time.Duration
	retry   RetryConfig
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithHTTPClient sets the client used for every attempt.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runtime) {
		if c != nil {
			r.client = c
		}
	}
}

// WithTimeout bounds each attempt. Zero or negative disables the per-attempt bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.timeout = d
	}
}

// WithRetry enables retries.
func WithRetry(cfg RetryConfig) Option {
	return func(r *Runtime) {
		if cfg.BaseDelay <= 0 {
			cfg.BaseDelay = DefaultBaseDelay
		}
		if cfg.MaxDelay <= 0 {
			cfg.MaxDelay = DefaultMaxDelay
		}
		r.retry = cfg
	}
}

// WithLogger sets the logger for retry decisions.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a Runtime using http.DefaultClient, DefaultTimeout and no retries.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		retry:   RetryConfig{MaxAttempts: 1},
		logger:  slog.New(slog.DiscardHandler),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send performs the request. Non-2xx responses are returned without error so the provider can
// classify them; err is non-nil only when no response was obtained.
func (r *Runtime) Send(ctx context.Context, req *toolloop.WireRequest) (*toolloop.WireResponse, error) {
	if req == nil {
		return nil, errors.New("httpruntime: nil request")
	}
	attempts := max(r.retry.MaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		resp, err := r.attempt(ctx, req)
		if attempt == attempts || ctx.Err() != nil || !r.shouldRetry(resp, err) {
			return resp, err
		}
		delay := r.backoff(attempt)
		if resp != nil {
			if hint := toolloop.RetryAfter(resp.Header, time.Now()); hint > 0 {
				if hint > r.retry.MaxDelay {
					return resp, nil
				}
				delay = hint
			}
		}
		r.logger.WarnContext(ctx, "retrying request",
			"url", req.URL,
			"attempt", attempt,
			"delay", delay,
			"status", statusOf(resp),
			"error", err,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (r *Runtime) attempt(ctx context.Context, req *toolloop.WireRequest) (*toolloop.WireResponse, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build http request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &toolloop.WireResponse{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

func (r *Runtime) shouldRetry(resp *toolloop.WireResponse, err error) bool {
	if r.retry.ShouldRetry != nil {
		return r.retry.ShouldRetry(resp, err)
	}
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
}

// backoff returns BaseDelay·2^(attempt-1), capped at MaxDelay.
func (r *Runtime) backoff(attempt int) time.Duration {
	d := r.retry.BaseDelay
	for i := 1; i < attempt && d < r.retry.MaxDelay; i++ {
		d *= 2
	}
	return min(d, r.retry.MaxDelay)
}

func statusOf(resp *toolloop.WireResponse) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ toolloop.Runtime = (*Runtime)(nil)
