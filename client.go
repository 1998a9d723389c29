package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

const (
	// GeneratePath is the endpoint path appended to the base URL
	GeneratePath = "/api/generate"

	// maxErrorBody bounds how much of a failed response body is kept
	maxErrorBody = 4 * 1024

	defaultUserAgent = "meridian-ollama-go"
)

// Client performs single, non-retried generate calls against one base URL.
// It is safe for concurrent use; calls share no mutable state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	userAgent  string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
// Its Timeout, if any, bounds the whole call including the stream read.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the structured logger for debug records.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRateLimiter makes every request wait for a token from l first.
func WithRateLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a client for the service at baseURL (e.g., "http://localhost:11434").
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL the client was created with, without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Endpoint returns the full generate URL.
func (c *Client) Endpoint() string {
	return c.baseURL + GeneratePath
}

// Generate performs one streamed generate call and returns the assembled result.
//
// Failures are *TransportError (dial, status, cancellation, broken read),
// *StreamError (malformed line or missing terminal chunk) or *InputError
// (invalid request). No partial result is ever returned with an error.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	resp, err := c.open(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result, err := ConsumeStream(resp.Body, nil)
	if err != nil {
		return nil, c.streamFailure(ctx, err)
	}

	c.logger.Debug("generate stream complete",
		"url", c.Endpoint(),
		"model", req.Model,
		"chunks", result.Chunks,
		"chars", len(result.Text),
		"has_context", result.HasContext())

	return result, nil
}

// Stream performs one streamed generate call and emits chunks as they arrive.
//
// Request and status failures are returned directly. Afterwards the channel
// receives one event per decoded chunk, then exactly one event carrying
// either the Result or the Error, and is closed. Cancelling ctx aborts the
// read and closes the connection.
//
// Usage:
//
//	events, err := client.Stream(ctx, req)
//	if err != nil { return err }
//	for ev := range events {
//	  if ev.Error != nil { handle error }
//	  if ev.Chunk != nil { fmt.Print(ev.Chunk.Response) }
//	  if ev.Result != nil { save ev.Result.Context }
//	}
func (c *Client) Stream(ctx context.Context, req *GenerateRequest) (<-chan StreamEvent, error) {
	resp, err := c.open(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 10)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		send := func(ev StreamEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		result, err := ConsumeStream(resp.Body, func(chunk *GenerateChunk) {
			send(StreamEvent{Chunk: chunk})
		})
		if err != nil {
			send(StreamEvent{Error: c.streamFailure(ctx, err)})
			return
		}
		send(StreamEvent{Result: result})
	}()

	return events, nil
}

// open validates req, sends it and returns a response with a 2xx status.
// The caller owns the response body.
func (c *Client) open(ctx context.Context, req *GenerateRequest) (*http.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	url := c.Endpoint()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{URL: url, Message: "rate limiter: " + err.Error(), Err: err}
		}
	}

	httpReq, err := c.buildHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("generate request",
		"url", url,
		"model", req.Model,
		"messages", len(req.Messages),
		"has_context", contextPresent(req.Context))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.handleErrorResponse(resp)
	}

	return resp, nil
}

// buildHTTPRequest creates the POST request carrying the minimal payload.
func (c *Client) buildHTTPRequest(ctx context.Context, req *GenerateRequest) (*http.Request, error) {
	body, err := json.Marshal(BuildPayload(req))
	if err != nil {
		return nil, &InputError{Field: "request", Reason: "payload is not JSON-encodable", Err: fmt.Errorf("%w: %w", ErrInvalidInput, err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, &InputError{Field: "base_url", Value: c.baseURL, Reason: err.Error(), Err: ErrInvalidInput}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	httpReq.Header.Set("User-Agent", c.userAgent)

	return httpReq, nil
}

// handleErrorResponse turns a non-2xx response into a *TransportError.
// The service reports errors as {"error": "..."}; anything else is kept as text.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var errResp struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		msg = errResp.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &TransportError{
		URL:        c.Endpoint(),
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}

// streamFailure attaches the endpoint to read failures. A read ended by the
// caller's context is always a transport failure carrying the context error.
func (c *Client) streamFailure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &TransportError{URL: c.Endpoint(), Message: "stream aborted: " + ctxErr.Error(), Err: ctxErr}
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) && transportErr.URL == "" {
		transportErr.URL = c.Endpoint()
	}
	return err
}

// Generate performs a single attempt against baseURL with a default client.
func Generate(ctx context.Context, baseURL string, req *GenerateRequest) (*GenerateResult, error) {
	return NewClient(baseURL).Generate(ctx, req)
}
