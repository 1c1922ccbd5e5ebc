// Package errors provides coded, actionable errors for the wsbroadcast CLI.
//
// Each error has a unique code that maps to a category, a short message, a
// detailed explanation and usually a suggestion:
//
//   - E1xx: configuration (file, validation, environment overrides)
//   - E2xx: broadcast servers and the server pool
//   - E3xx: command line usage
//
// # Usage
//
//	err := errors.New("E201").Wrap(bindErr)
//	errors.PrintError(err)
//	// ERROR E201: Port bind failed
//	//
//	//   The broadcast server could not listen on its port. Another process
//	//   may already be bound to it.
//	//
//	//   Cause: broadcast: bind :9001 (port 9001): address already in use
//	//
//	//   Hint: Stop the other process or choose a different port
//
// Wrapped errors stay reachable through errors.Is and errors.As.
package errors
