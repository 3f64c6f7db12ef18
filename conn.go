// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"context"
	"time"
)

// DefaultTimeout is the I/O timeout of a freshly opened [Conn].
const DefaultTimeout = 2 * time.Second

// maxMessageSize bounds a single [Conn.ReadMessage].
const maxMessageSize = 50_000_000

// readChunkSize is the size of each native read and of the socket buffer.
const readChunkSize = 4096

// Conn is an open connection to an instrument.
//
// Implementations are [*NativeConn] and [*SocketConn]. A Conn is not
// safe for concurrent use. Errors from an open connection wrap
// [ErrFunctionFailure], [ErrTimeout] or [ErrConflictingSettings] and
// leave the connection open. Methods called after Close return an
// error wrapping [net.ErrClosed].
type Conn interface {
	// Address returns the address this connection was opened for.
	Address() Address

	// Timeout returns the read and write timeout. Zero means none.
	Timeout() time.Duration

	// SetTimeout sets the read and write timeout.
	SetTimeout(d time.Duration) error

	// Termination returns the message terminator.
	Termination() Termination

	// SetTermination sets the message terminator. [TerminationNone]
	// fails with [ErrConflictingSettings] unless a frame size is set.
	SetTermination(term Termination) error

	// FrameSize returns the fixed message size, or zero.
	FrameSize() int

	// SetFrameSize makes [Conn.ReadMessage] read exactly size bytes.
	// Zero restores terminator framing, which fails with
	// [ErrConflictingSettings] while the termination is none.
	SetFrameSize(size int) error

	// Read performs a single read into buf.
	Read(buf []byte) (int, error)

	// ReadMessage reads one message and strips its terminator.
	ReadMessage() ([]byte, error)

	// Write writes data.
	Write(data []byte) (int, error)

	// Reconnect closes and reopens the transport keeping timeout,
	// termination and frame size. On failure the connection is closed.
	Reconnect(ctx context.Context) error

	// Close releases the socket or device session. The shared
	// driver [Binding] is never released.
	Close() error
}

// framing holds the settings shared by both connection types.
type framing struct {
	frameSize   int
	termination Termination
	timeout     time.Duration
}

func (f *framing) FrameSize() int {
	return f.frameSize
}

func (f *framing) Termination() Termination {
	return f.termination
}

func (f *framing) Timeout() time.Duration {
	return f.timeout
}

func (f *framing) checkTermination(term Termination) error {
	if term.IsNone() && f.frameSize <= 0 {
		return newError(ErrConflictingSettings, "termination none requires a fixed frame size", nil)
	}
	return nil
}

func (f *framing) checkFrameSize(size int) error {
	switch {
	case size < 0:
		return newError(ErrConflictingSettings, "negative frame size", nil)
	case size > maxMessageSize:
		return newError(ErrConflictingSettings, "frame size exceeds the maximum message size", nil)
	case size == 0 && f.termination.IsNone():
		return newError(ErrConflictingSettings, "termination none requires a fixed frame size", nil)
	default:
		return nil
	}
}

func checkTimeout(d time.Duration) error {
	if d < 0 {
		return newError(ErrConflictingSettings, "negative timeout", nil)
	}
	return nil
}
