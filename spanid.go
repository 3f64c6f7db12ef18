// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 identifying the lifetime of a connection.
//
// Attach it to the logger passed to [NewConnectFunc] so that all the
// events of one connection share the same "spanID" attribute:
//
//	logger := slog.Default().With("spanID", instr.NewSpanID())
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
