// SPDX-License-Identifier: GPL-3.0-or-later

package instr

// SLogger abstracts the [*slog.Logger] behavior.
//
// This package uses two log levels:
//   - Info for lifecycle events (lookup, connect, driver load, session
//     open, reconnect, close, DNS exchange)
//   - Debug for per-I/O events (read, write, deadline and attribute changes)
//
// The [*slog.Logger] type satisfies this interface.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// DefaultSLogger returns the default [SLogger], which discards everything.
//
// Use a custom [*slog.Logger] for emitting logs.
func DefaultSLogger() SLogger {
	return discardSLogger{}
}

type discardSLogger struct{}

var _ SLogger = discardSLogger{}

// Debug implements [SLogger].
func (discardSLogger) Debug(msg string, args ...any) {}

// Info implements [SLogger].
func (discardSLogger) Info(msg string, args ...any) {}
