package remote

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnavailable matches every failure of the remote store. Callers fall
// back to local storage on it and never need to tell the kinds apart.
var ErrUnavailable = errors.New("remote store unavailable")

// TransportError is a failure to reach the API or to read its answer:
// network errors, timeouts, unreadable or undecodable bodies.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrUnavailable }

// RejectionError is an answer from the API that reports failure, either by
// status code or by a success=false envelope.
type RejectionError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RejectionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request rejected"
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, msg)
}

func (e *RejectionError) Is(target error) bool { return target == ErrUnavailable }
