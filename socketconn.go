// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"go.uber.org/multierr"
)

// SocketConn is a [Conn] over a raw TCP stream.
//
// Construct using [*ConnectFunc].
type SocketConn struct {
	framing
	addr     Address
	closed   bool
	conn     net.Conn
	endpoint SocketEndpoint
	op       *ConnectFunc
	reader   *bufio.Reader
}

var _ Conn = &SocketConn{}

func (c *SocketConn) open(ctx context.Context) error {
	conn, err := c.op.dialEndpoint(ctx, c.endpoint)
	if err != nil {
		return err
	}
	c.conn = conn
	if c.reader == nil {
		c.reader = bufio.NewReaderSize(conn, readChunkSize)
	} else {
		c.reader.Reset(conn)
	}
	return nil
}

// Address implements [Conn].
func (c *SocketConn) Address() Address {
	return c.addr
}

// SetTimeout implements [Conn].
//
// The timeout is applied to each read and write as a deadline.
func (c *SocketConn) SetTimeout(d time.Duration) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if err := checkTimeout(d); err != nil {
		return err
	}
	c.timeout = d
	return nil
}

// SetTermination implements [Conn].
func (c *SocketConn) SetTermination(term Termination) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if err := c.checkTermination(term); err != nil {
		return err
	}
	c.termination = term
	return nil
}

// SetFrameSize implements [Conn].
func (c *SocketConn) SetFrameSize(size int) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if err := c.checkFrameSize(size); err != nil {
		return err
	}
	c.frameSize = size
	return nil
}

// Read implements [Conn].
func (c *SocketConn) Read(buf []byte) (int, error) {
	if err := c.ensureOpen(); err != nil {
		return 0, err
	}
	if err := c.conn.SetReadDeadline(c.deadline()); err != nil {
		return 0, c.ioError("read", err)
	}
	count, err := c.reader.Read(buf)
	return count, c.ioError("read", err)
}

// ReadMessage implements [Conn].
func (c *SocketConn) ReadMessage() ([]byte, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	if err := c.conn.SetReadDeadline(c.deadline()); err != nil {
		return nil, c.ioError("read", err)
	}
	if c.frameSize > 0 {
		msg := make([]byte, c.frameSize)
		if _, err := io.ReadFull(c.reader, msg); err != nil {
			return nil, c.ioError("read", err)
		}
		return msg, nil
	}
	msg, err := readUntil(c.reader, c.termination.Bytes(), maxMessageSize)
	if err != nil {
		return nil, c.ioError("read", err)
	}
	return msg, nil
}

// errMessageTooLarge indicates that no terminator arrived within maxMessageSize bytes.
var errMessageTooLarge = errors.New("message exceeds the maximum size")

// readUntil reads up to and including term and returns the bytes before it.
func readUntil(r *bufio.Reader, term []byte, limit int) ([]byte, error) {
	last := term[len(term)-1]
	var msg []byte
	for {
		chunk, err := r.ReadSlice(last)
		msg = append(msg, chunk...)
		switch {
		case err == nil && bytes.HasSuffix(msg, term):
			return msg[:len(msg)-len(term)], nil
		case err != nil && !errors.Is(err, bufio.ErrBufferFull):
			return nil, err
		case len(msg) > limit:
			return nil, errMessageTooLarge
		}
	}
}

// Write implements [Conn].
func (c *SocketConn) Write(data []byte) (int, error) {
	if err := c.ensureOpen(); err != nil {
		return 0, err
	}
	if err := c.conn.SetWriteDeadline(c.deadline()); err != nil {
		return 0, c.ioError("write", err)
	}
	count, err := c.conn.Write(data)
	return count, c.ioError("write", err)
}

// Reconnect implements [Conn].
func (c *SocketConn) Reconnect(ctx context.Context) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	t0 := c.op.TimeNow()
	c.op.Logger.Info(
		"reconnectStart",
		slog.String("instrAddr", c.addr.String()),
		slog.Time("t", t0),
	)
	closeErr := c.conn.Close()
	err := c.open(ctx)
	if err != nil {
		c.closed = true
		err = multierr.Append(err, closeErr)
	}
	c.op.Logger.Info(
		"reconnectDone",
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.String("instrAddr", c.addr.String()),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)
	return err
}

// Close implements [Conn].
func (c *SocketConn) Close() error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	c.closed = true
	return c.ioError("close", c.conn.Close())
}

func (c *SocketConn) ensureOpen() error {
	if c.closed {
		return newError(ErrFunctionFailure, c.addr.String(), net.ErrClosed)
	}
	return nil
}

func (c *SocketConn) deadline() time.Time {
	if c.timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.timeout)
}

// ioError maps deadline expiry to [ErrTimeout] and other failures to
// [ErrFunctionFailure]. It returns nil for a nil err.
func (c *SocketConn) ioError(operation string, err error) error {
	if err == nil {
		return nil
	}
	detail := fmt.Sprintf("%s %s", operation, c.addr)
	var netErr net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newError(ErrTimeout, detail, err)
	}
	return newError(ErrFunctionFailure, detail, err)
}
