package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", &TransportError{URL: "u", StatusCode: 503, Message: "busy"}, true},
		{"transport with cause", &TransportError{URL: "u", Err: context.DeadlineExceeded}, true},
		{"malformed", &StreamError{Line: 3, Kind: ErrMalformedStream, Err: errors.New("bad")}, true},
		{"incomplete", &StreamError{Line: 3, Kind: ErrIncompleteStream}, true},
		{"no result", ErrNoResult, true},
		{"wrapped transport", fmt.Errorf("call: %w", &TransportError{URL: "u"}), true},
		{"input", &InputError{Field: "model", Reason: "required", Err: ErrInvalidInput}, false},
		{"bare invalid input", ErrInvalidInput, false},
		{"exhausted", &ExhaustedError{Attempts: 3, Last: &TransportError{URL: "u"}}, false},
		{"unknown", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "transport with status",
			err:  &TransportError{URL: "http://h/api/generate", StatusCode: 500, Message: "boom"},
			want: "transport error calling http://h/api/generate (status 500): boom",
		},
		{
			name: "transport falls back to cause",
			err:  &TransportError{URL: "http://h/api/generate", Err: errors.New("connection refused")},
			want: "transport error calling http://h/api/generate: connection refused",
		},
		{
			name: "malformed line",
			err:  &StreamError{Line: 2, Kind: ErrMalformedStream, Err: errors.New("unexpected end of JSON input")},
			want: "ollama: malformed stream at line 2: unexpected end of JSON input",
		},
		{
			name: "incomplete",
			err:  &StreamError{Line: 4, Kind: ErrIncompleteStream},
			want: "ollama: incomplete stream after 4 lines",
		},
		{
			name: "input",
			err:  &InputError{Field: "port", Value: 70000, Reason: "port must be between 0 and 65535"},
			want: "invalid port (value: 70000): port must be between 0 and 65535",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExhaustedError_Unwrap(t *testing.T) {
	last := &StreamError{Line: 1, Kind: ErrMalformedStream}
	err := error(&ExhaustedError{Attempts: 10, Last: last})

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Error("expected ErrRetriesExhausted")
	}
	if !errors.Is(err, ErrMalformedStream) {
		t.Error("expected last failure to be reachable")
	}

	var streamErr *StreamError
	if !errors.As(err, &streamErr) || streamErr != last {
		t.Error("errors.As should find the last StreamError")
	}
	if !strings.Contains(err.Error(), "10 attempts") {
		t.Errorf("message %q should mention the attempt count", err.Error())
	}
}
