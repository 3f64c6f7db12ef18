// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import "errors"

// Error kinds returned by [*Parser.Parse], [*ConnectFunc] and [Conn]
// methods. Test them with [errors.Is]. A connect failure caused by the
// driver wraps both [ErrConnectionFailed] and [ErrBinary] or
// [ErrOpenSession]. Configuration loading and [*DNSResolver] return
// plain errors that wrap no kind.
var (
	// ErrParseFailed indicates a malformed address string.
	ErrParseFailed = errors.New("parse failed")

	// ErrConnectionFailed indicates a dial, open or clear failure.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrFunctionFailure indicates that an operation on an open
	// connection failed. The connection stays open.
	ErrFunctionFailure = errors.New("function failure")

	// ErrConflictingSettings indicates an invalid combination of
	// connection settings. Nothing is applied.
	ErrConflictingSettings = errors.New("conflicting settings")

	// ErrTimeout indicates that an I/O operation exceeded the timeout.
	ErrTimeout = errors.New("timeout")

	// ErrBinary indicates that the driver library could not be loaded.
	ErrBinary = errors.New("driver binary error")

	// ErrOpenSession indicates that the driver library loaded but its
	// resource manager session did not instantiate.
	ErrOpenSession = errors.New("driver session error")
)

// Error is the error type returned by this package.
//
// Unwrap yields both Kind and Err, so [errors.Is] matches the kind
// as well as anything in the cause chain.
type Error struct {
	// Kind is one of the Err* sentinels.
	Kind error

	// Detail is a human readable description.
	Detail string

	// Err is the optional underlying cause.
	Err error
}

func newError(kind error, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

// Error implements error.
func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
