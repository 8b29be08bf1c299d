// Package maestroerrors contains the errors shared by the maestro packages.
//
// Functions should wrap these with github.com/pkg/errors (errors.WithStack or errors.WithMessage) so that a
// stack trace is available when the error is logged. Callers inspect the chain with errors.As, or with
// KindFromError when only the category matters.
//
// If multiple errors occur in some function (e.g., stopping several peers), that function should return an
// error of type multierror.Error from package github.com/hashicorp/go-multierror.
package maestroerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMalformedNote is returned when a payload does not decode to a valid note.
type ErrMalformedNote struct {
	Field   string      // The wire field that could not be read, e.g., "command"
	Value   interface{} // The offending value, if one was read
	Message string
}

func (err *ErrMalformedNote) Error() string {
	if err.Value == nil {
		return fmt.Sprintf("malformed note at field %q: %s", err.Field, err.Message)
	}
	return fmt.Sprintf("malformed note at field %q (value %v): %s", err.Field, err.Value, err.Message)
}

// ErrConnection is returned when talking to the broker fails.
type ErrConnection struct {
	URL string // Broker URL
	Op  string // The failed operation, e.g., "connect" or "publish"
	Err error  // Underlying error, if any
}

func (err *ErrConnection) Error() string {
	if err.Err == nil {
		return fmt.Sprintf("%s on %s failed", err.Op, err.URL)
	}
	return fmt.Sprintf("%s on %s failed: %s", err.Op, err.URL, err.Err)
}

func (err *ErrConnection) Unwrap() error {
	return err.Err
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	} else {
		return s
	}
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "rate"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", fmt.Sprint(err.Value), err.Name)
	} else {
		return fmt.Sprintf("value %q is invalid for field %q; %s", fmt.Sprint(err.Value), err.Name, err.Message)
	}
}

// ErrAlreadyRunning is returned when a test is started on a coordinator that is already running one.
type ErrAlreadyRunning struct {
	State string // The state the coordinator was in
}

func (err *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("a test is already running (state %s)", err.State)
}

// Kind is a coarse category of error, used to pick exit codes.
type Kind int

const (
	KindOK Kind = iota
	KindUnknown
	KindMalformedNote
	KindConnection
	KindNotFound
	KindInvalidArgument
	KindAlreadyRunning
)

// KindFromError maps error types to a Kind.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func KindFromError(err error) Kind {
	if err == nil {
		return KindOK
	}

	// Using {} scopes just to re-use the "e" variable name for each case.
	{
		var e *ErrMalformedNote
		if errors.As(err, &e) {
			return KindMalformedNote
		}
	}
	{
		var e *ErrConnection
		if errors.As(err, &e) {
			return KindConnection
		}
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return KindNotFound
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return KindInvalidArgument
		}
	}
	{
		var e *ErrAlreadyRunning
		if errors.As(err, &e) {
			return KindAlreadyRunning
		}
	}

	return KindUnknown
}

// ExitCode is the process exit code the CLI uses for err.
func ExitCode(err error) int {
	switch KindFromError(err) {
	case KindOK:
		return 0
	case KindConnection:
		return 3
	case KindInvalidArgument, KindNotFound:
		return 2
	default:
		return 1
	}
}
