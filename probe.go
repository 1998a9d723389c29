package ollama

import (
	"context"
	"net"
	"strconv"
	"time"
)

// DefaultProbeTimeout is used when a non-positive probe timeout is given.
const DefaultProbeTimeout = time.Second

// IsReachable reports whether a TCP connection to host:port can be opened
// within timeout. The connection is closed immediately.
//
// An empty host or a port outside 0-65535 is a caller error and returns an
// *InputError. Refused, timed-out or otherwise failed connections return
// false with a nil error.
func IsReachable(host string, port int, timeout time.Duration) (bool, error) {
	return IsReachableContext(context.Background(), host, port, timeout)
}

// IsReachableContext is IsReachable bounded additionally by ctx.
func IsReachableContext(ctx context.Context, host string, port int, timeout time.Duration) (bool, error) {
	if err := validateHostPort(host, port); err != nil {
		return false, err
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false, nil
	}
	_ = conn.Close()
	return true, nil
}

func validateHostPort(host string, port int) error {
	if host == "" {
		return &InputError{Field: "host", Value: host, Reason: "host must be a non-empty string", Err: ErrInvalidInput}
	}
	if port < 0 || port > 65535 {
		return &InputError{Field: "port", Value: port, Reason: "port must be between 0 and 65535", Err: ErrInvalidInput}
	}
	return nil
}
