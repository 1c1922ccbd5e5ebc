package loop

import (
	"errors"
	"fmt"
)

var (
	// ErrStarted is returned by Start when the loop was already started.
	ErrStarted = errors.New("loop: already started")

	// ErrNoApp is returned by Start when the factory returned a nil App.
	ErrNoApp = errors.New("loop: factory returned nil app")
)

// PanicError is reported through Config.OnExit when a closure or the
// application panicked on the loop goroutine.
type PanicError struct {
	Value any
	Stack []byte
}

// Error returns the error message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("loop: panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
