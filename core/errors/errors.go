// Package errors provides structured error handling compatible with the standard library.
//
// Overview:
//   - Responsibility: Classify observer failures with codes and wrap causes
//   - Key Types: Code for classification, E for structured errors
//   - Concurrency Model: All functions are safe for concurrent use
//   - Error Semantics: E unwraps to its cause, so errors.Is and errors.As see through it
//
// Usage:
//
//	err := errors.Wrapf(errors.CodeUnavailable, "hostx.disks", cause, "list partitions")
//	if errors.IsCode(err, errors.CodeUnavailable) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Code represents an error classification code.
type Code string

// Codes used across the module.
const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeInternal        Code = "INTERNAL"
	CodeAborted         Code = "ABORTED"
)

// E is a structured error with code, operation, message and cause.
type E struct {
	Code Code   // Error classification code
	Op   string // Operation that failed, e.g. "hostx.network"
	Err  error  // Underlying error (may be nil)
	Msg  string // Human-readable message
}

// Error implements the error interface.
func (e *E) Error() string {
	prefix := string(e.Code)
	if e.Op != "" {
		prefix += ": " + e.Op
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	}
}

// Unwrap returns the underlying error.
func (e *E) Unwrap() error {
	return e.Err
}

// New creates a structured error with the given code and message.
func New(code Code, msg string) error {
	return &E{Code: code, Msg: msg}
}

// Wrap wraps err with a code and the name of the failing operation.
// It returns nil when err is nil.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{Code: code, Op: op, Err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(code Code, op string, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &E{Code: code, Op: op, Err: err, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the outermost code from an error chain.
// Returns the empty code if the chain carries none.
func CodeOf(err error) Code {
	var e *E
	if err != nil && errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// OpOf returns the operation recorded on the outermost *E, if any.
func OpOf(err error) string {
	var e *E
	if err != nil && errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Is forwards to the standard library errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As forwards to the standard library errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
