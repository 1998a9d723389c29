package ollama

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrTransport indicates the request could not be completed: connection
	// refused, timeout, cancellation, a non-2xx status or a broken read.
	ErrTransport = errors.New("ollama: transport failure")

	// ErrMalformedStream indicates a stream line was not valid JSON.
	ErrMalformedStream = errors.New("ollama: malformed stream")

	// ErrIncompleteStream indicates the stream ended before a done=true chunk.
	ErrIncompleteStream = errors.New("ollama: incomplete stream")

	// ErrInvalidInput indicates a caller supplied an invalid argument
	// (empty host, out-of-range port, missing model, bad retry settings).
	ErrInvalidInput = errors.New("ollama: invalid input")

	// ErrUnreachable indicates the reachability probe could not connect.
	ErrUnreachable = errors.New("ollama: endpoint unreachable")

	// ErrRetriesExhausted indicates every allowed attempt failed.
	ErrRetriesExhausted = errors.New("ollama: retries exhausted")

	// ErrNoResult indicates a generator returned neither a result nor an error.
	ErrNoResult = errors.New("ollama: generator returned no result")
)

// TransportError represents a failure to carry out the HTTP exchange.
type TransportError struct {
	URL        string // The endpoint that was called
	StatusCode int    // HTTP status code (0 when no response was received)
	Message    string // Human-readable explanation or response body excerpt
	Err        error  // Underlying cause (net error, context error), may be nil
}

func (e *TransportError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error calling %s (status %d): %s", e.URL, e.StatusCode, msg)
	}
	return fmt.Sprintf("transport error calling %s: %s", e.URL, msg)
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// StreamError represents a problem with the content of the response stream.
type StreamError struct {
	Line int    // 1-based line number where the problem was detected
	Kind error  // ErrMalformedStream or ErrIncompleteStream
	Err  error  // Decoder error for malformed lines, nil otherwise
	Raw  string // Excerpt of the offending line
}

func (e *StreamError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%v at line %d: %v", e.Kind, e.Line, e.Err)
	case e.Kind == ErrIncompleteStream:
		return fmt.Sprintf("%v after %d lines", e.Kind, e.Line)
	default:
		return fmt.Sprintf("%v at line %d", e.Kind, e.Line)
	}
}

func (e *StreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InputError represents an invalid argument supplied by the caller.
// It is never retried.
type InputError struct {
	Field  string // The argument that failed validation
	Value  any    // The invalid value
	Reason string // Human-readable explanation
	Err    error  // Wrapped error (usually ErrInvalidInput)
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s (value: %v): %s (%v)", e.Field, e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s (value: %v): %s", e.Field, e.Value, e.Reason)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned by Retrier.Generate when no attempt succeeded.
type ExhaustedError struct {
	Attempts int   // Number of attempts made
	Last     error // Failure of the final attempt
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrRetriesExhausted}
	}
	return []error{ErrRetriesExhausted, e.Last}
}

// IsRetryable checks if an error is a failure the retry orchestrator recovers from.
// Transport, malformed and incomplete stream failures are retryable; caller
// input errors are not.
func IsRetryable(err error) bool {
	if err == nil || IsInputError(err) || errors.Is(err, ErrRetriesExhausted) {
		return false
	}

	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrMalformedStream) ||
		errors.Is(err, ErrIncompleteStream) ||
		errors.Is(err, ErrNoResult)
}

// IsInputError checks if an error was caused by invalid caller input.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}

	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return true
	}

	return errors.Is(err, ErrInvalidInput)
}
