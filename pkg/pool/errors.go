package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by EnsureServer after Close.
	ErrClosed = errors.New("pool: closed")

	// ErrInvalidPort is returned for ports outside 1-65535.
	ErrInvalidPort = errors.New("pool: invalid port")
)

// Error describes a failed pool operation on one port.
type Error struct {
	Op   Op
	Port int
	Err  error
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("pool: %s port %d: %v", e.Op, e.Port, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
