// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"errors"

	"github.com/bassosimone/errclass"
)

// ErrClassifier classifies errors into categorical strings for analysis.
//
// Implementations map errors to short, descriptive labels (e.g., "ETIMEDOUT",
// "ECONNREFUSED") that end up in the errClass field of log events.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// Labels returned by [DefaultErrClassifier] for this package's error kinds.
const (
	EPARSE       = "EPARSE"
	ECONFLICT    = "ECONFLICT"
	EFUNCTION    = "EFUNCTION"
	EBINARY      = "EBINARY"
	EOPENSESSION = "EOPENSESSION"
	ECONNFAILED  = "ECONNFAILED"
)

// DefaultErrClassifier labels this package's error kinds and defers
// to [errclass.New] for network errors.
//
// Driver-load failures win over the connection failure wrapping them, and
// a connection failure caused by a network error keeps the network label
// (e.g. ECONNREFUSED). A nil error maps to the empty string.
var DefaultErrClassifier = ErrClassifierFunc(classifyError)

func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrParseFailed):
		return EPARSE
	case errors.Is(err, ErrConflictingSettings):
		return ECONFLICT
	case errors.Is(err, ErrBinary):
		return EBINARY
	case errors.Is(err, ErrOpenSession):
		return EOPENSESSION
	case errors.Is(err, ErrTimeout):
		return errclass.ETIMEDOUT
	case errors.Is(err, ErrFunctionFailure):
		return EFUNCTION
	}
	class := errclass.New(err)
	if class == errclass.EGENERIC && errors.Is(err, ErrConnectionFailed) {
		return ECONNFAILED
	}
	return class
}
