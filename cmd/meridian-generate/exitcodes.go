package main

import "fmt"

// Exit codes for meridian-generate.
const (
	ExitOK               = 0 // Generation or probe succeeded.
	ExitInvalidArgs      = 1 // Invalid flags, config or request.
	ExitUnreachable      = 2 // The service endpoint did not accept connections.
	ExitGenerationFailed = 3 // Every attempt failed.
)

// exitCodeError carries a non-zero exit code through cobra's error handling.
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string { return e.msg }

// ExitCode returns the exit code for this error.
func (e *exitCodeError) ExitCode() int { return e.code }

// exitError creates an exitCodeError. If msg is empty, the error message is
// set to a generic description of the exit code.
func exitError(code int, format string, args ...any) *exitCodeError {
	msg := fmt.Sprintf(format, args...)
	if msg == "" {
		switch code {
		case ExitUnreachable:
			msg = "meridian-generate: service unreachable"
		case ExitGenerationFailed:
			msg = "meridian-generate: generation failed"
		default:
			msg = "meridian-generate: error"
		}
	}
	return &exitCodeError{code: code, msg: msg}
}
