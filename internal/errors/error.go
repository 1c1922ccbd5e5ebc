package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig  Category = "config"
	CategoryServer  Category = "server"
	CategoryPool    Category = "pool"
	CategoryCLI     Category = "cli"
	CategoryRuntime Category = "runtime"
)

// BroadcastError is a structured error with a code, an explanation and a
// suggestion, rendered for the terminal by the CLI.
type BroadcastError struct {
	// Code is a unique error identifier (e.g., "E201").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *BroadcastError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *BroadcastError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *BroadcastError) WithSuggestion(s string) *BroadcastError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *BroadcastError) WithDetail(d string) *BroadcastError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *BroadcastError) Wrap(err error) *BroadcastError {
	e.Wrapped = err
	return e
}

// New creates a BroadcastError from a registered error code.
func New(code string) *BroadcastError {
	template, ok := registry[code]
	if !ok {
		return &BroadcastError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &BroadcastError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new BroadcastError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *BroadcastError {
	return &BroadcastError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a BroadcastError. An error that already
// is (or wraps) a BroadcastError is returned as that BroadcastError.
func FromError(err error, code string) *BroadcastError {
	if err == nil {
		return nil
	}
	var be *BroadcastError
	if stderrors.As(err, &be) {
		return be
	}
	return New(code).Wrap(err)
}

// Is reports whether err is a BroadcastError with the given code.
func Is(err error, code string) bool {
	var be *BroadcastError
	return stderrors.As(err, &be) && be.Code == code
}
