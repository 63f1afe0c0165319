package peer

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned when a message is sent on a session that has
// already been shut down.
var ErrSessionClosed = errors.New("peer session closed")

// ConnectionError is returned when the transport fails before the handshake
// completes.
type ConnectionError struct {
	Err error
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

// Unwrap returns the underlying transport error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}
