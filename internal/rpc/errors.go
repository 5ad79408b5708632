package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork wraps transport-level connection failures.
	ErrNetwork = errors.New("rpc: transport unreachable")

	// ErrParse marks a response body that is not the expected envelope.
	ErrParse = errors.New("rpc: unable to parse response")

	ErrMissingMethod = errors.New("rpc: method is required")
)

// RemoteError is a failure the server explicitly reported through the
// {"error": ...} envelope. Callers branch on the type, not the message.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: remote error: %s", e.Message)
}
