package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RetryConfig bounds the retry orchestrator.
type RetryConfig struct {
	// MaxRetries is the total number of attempts, the first one included. Must be >= 1.
	MaxRetries int

	// RetryDelay is the pause between a failed attempt and the next one
	RetryDelay time.Duration
}

// Validate checks the retry bounds.
func (c RetryConfig) Validate() error {
	if c.MaxRetries < 1 {
		return &InputError{Field: "max_retries", Value: c.MaxRetries, Reason: "at least one attempt is required", Err: ErrInvalidInput}
	}
	if c.RetryDelay < 0 {
		return &InputError{Field: "retry_delay", Value: c.RetryDelay, Reason: "must not be negative", Err: ErrInvalidInput}
	}
	return nil
}

// SleepFunc pauses for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ProbeFunc reports whether the service endpoint accepts connections.
type ProbeFunc func(ctx context.Context) (bool, error)

// Retrier wraps a Generator with bounded automatic retry.
//
// Failed attempts are retried with the caller's original context; the last
// allowed attempt is sent without any context. A Retrier holds no per-call
// state and may be shared between goroutines.
type Retrier struct {
	gen    Generator
	cfg    RetryConfig
	logger *slog.Logger
	sleep  SleepFunc
	probe  ProbeFunc
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithRetryLogger sets the logger receiving one record per failed attempt.
func WithRetryLogger(logger *slog.Logger) RetrierOption {
	return func(r *Retrier) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSleep replaces the pause between attempts.
func WithSleep(sleep SleepFunc) RetrierOption {
	return func(r *Retrier) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithProbe gates every attempt behind a reachability check of host:port.
// An unreachable endpoint counts as a failed attempt.
func WithProbe(host string, port int, timeout time.Duration) RetrierOption {
	return WithProbeFunc(func(ctx context.Context) (bool, error) {
		return IsReachableContext(ctx, host, port, timeout)
	})
}

// WithProbeFunc gates every attempt behind probe.
func WithProbeFunc(probe ProbeFunc) RetrierOption {
	return func(r *Retrier) {
		r.probe = probe
	}
}

// NewRetrier creates a retry orchestrator around gen.
func NewRetrier(gen Generator, cfg RetryConfig, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		gen:    gen,
		cfg:    cfg,
		logger: slog.Default(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate runs up to MaxRetries attempts and returns the first success.
//
// A success is returned unchanged, even with empty text. When every attempt
// fails the result is nil and the error is an *ExhaustedError wrapping
// ErrRetriesExhausted and the last failure. Invalid requests and retry
// settings return an *InputError without any attempt; this includes a
// Context that is not valid JSON, which is never retried without context.
// If ctx ends, the loop stops and returns a *TransportError carrying the
// context error.
func (r *Retrier) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	logger := r.logger.With("call_id", uuid.NewString(), "model", req.Model)
	original := req.Context
	carried := original

	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		if attempt == r.cfg.MaxRetries-1 {
			carried = nil
		}

		result, err := r.attempt(ctx, req.withContext(carried))
		if err == nil {
			if attempt > 0 {
				logger.Info("generate succeeded after retry", "attempt", attempt+1, "max_attempts", r.cfg.MaxRetries)
			}
			return result, nil
		}
		if IsInputError(err) {
			return nil, err
		}

		lastErr = err
		logger.Warn("generate attempt failed",
			"attempt", attempt+1,
			"max_attempts", r.cfg.MaxRetries,
			"sent_context", contextPresent(carried),
			"error", err)

		carried = original

		if ctx.Err() != nil {
			return nil, abortedError(ctx, err)
		}
		if attempt+1 < r.cfg.MaxRetries {
			if err := r.sleep(ctx, r.cfg.RetryDelay); err != nil {
				return nil, abortedError(ctx, lastErr)
			}
		}
	}

	logger.Error("generate failed, retries exhausted", "attempts", r.cfg.MaxRetries, "error", lastErr)
	return nil, &ExhaustedError{Attempts: r.cfg.MaxRetries, Last: lastErr}
}

// attempt runs the optional probe and one generator call.
func (r *Retrier) attempt(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	if r.probe != nil {
		ok, err := r.probe(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &TransportError{Message: "reachability probe failed", Err: ErrUnreachable}
		}
	}

	result, err := r.gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNoResult
	}
	return result, nil
}

// abortedError reports a retry loop ended by its context.
func abortedError(ctx context.Context, last error) error {
	var transportErr *TransportError
	if errors.As(last, &transportErr) && errors.Is(transportErr, ctx.Err()) {
		return transportErr
	}
	return &TransportError{Message: "retry aborted: " + ctx.Err().Error(), Err: ctx.Err()}
}

// sleepContext is the default SleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GenerateWithRetry builds a client for cfg.BaseURL() and runs req through a
// Retrier configured from cfg. When cfg.ProbeTimeout is positive every
// attempt is gated by a reachability probe of cfg.Host:cfg.Port.
//
// An empty req.Model falls back to cfg.Model.
func GenerateWithRetry(ctx context.Context, cfg Config, req *GenerateRequest, opts ...RetrierOption) (*GenerateResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if req != nil && req.Model == "" && cfg.Model != "" {
		req = req.withContext(req.Context)
		req.Model = cfg.Model
	}

	client := NewClient(cfg.BaseURL(), WithHTTPClient(cfg.HTTPClient()))
	if cfg.ProbeTimeout > 0 {
		opts = append([]RetrierOption{WithProbe(cfg.Host, cfg.Port, cfg.ProbeTimeout)}, opts...)
	}

	return NewRetrier(client, cfg.Retry(), opts...).Generate(ctx, req)
}

// ContinueWith returns a copy of req carrying result's context, for the next turn.
func ContinueWith(req *GenerateRequest, result *GenerateResult) *GenerateRequest {
	var next json.RawMessage
	if result != nil {
		next = result.Context
	}
	return req.withContext(next)
}
