package broadcast

import (
	"errors"
	"fmt"
)

// Sentinel errors for server lifecycle and delivery conditions.
var (
	// ErrBind is matched by errors.Is for every *BindError.
	ErrBind = errors.New("broadcast: bind failed")

	// ErrAlreadyStarted is returned by Start on a server that is starting or
	// listening.
	ErrAlreadyStarted = errors.New("broadcast: server already started")

	// ErrServerClosed is returned by Start on a stopped or failed server.
	// Such a server is never reused.
	ErrServerClosed = errors.New("broadcast: server closed")

	// ErrNotListening is logged when a message is published to a server
	// that is not listening. It is never returned to producers.
	ErrNotListening = errors.New("broadcast: server not listening")

	// ErrInvalidText is logged when a message is not valid UTF-8.
	ErrInvalidText = errors.New("broadcast: message is not valid UTF-8")
)

// BindError reports that the listening socket could not be opened.
type BindError struct {
	Port int
	Addr string
	Err  error
}

// Error returns the error message.
func (e *BindError) Error() string {
	return fmt.Sprintf("broadcast: bind %s (port %d): %v", e.Addr, e.Port, e.Err)
}

// Unwrap returns the underlying listen error.
func (e *BindError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrBind.
func (e *BindError) Is(target error) bool {
	return target == ErrBind
}

// ServeError reports that the accept loop died while the server was
// listening. It ends the server's event loop and moves it to StateFailed.
type ServeError struct {
	Port int
	Err  error
}

// Error returns the error message.
func (e *ServeError) Error() string {
	return fmt.Sprintf("broadcast: serve port %d: %v", e.Port, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServeError) Unwrap() error {
	return e.Err
}
