// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/bassosimone/instr/visa"
	"go.uber.org/multierr"
)

// NativeConn is a [Conn] over a native driver session.
//
// Construct using [*ConnectFunc].
type NativeConn struct {
	framing
	addr    Address
	binding *Binding
	closed  bool
	op      *ConnectFunc
	vi      visa.Session
}

var _ Conn = &NativeConn{}

// open opens and clears the device session and applies the current
// timeout and termination. On failure no session is left open.
func (c *NativeConn) open() error {
	t0 := c.op.TimeNow()
	c.op.Logger.Info(
		"sessionOpenStart",
		slog.String("driverVariant", c.binding.Variant.String()),
		slog.String("instrAddr", c.addr.String()),
		slog.Time("t", t0),
	)
	err := c.openSession()
	c.op.Logger.Info(
		"sessionOpenDone",
		slog.String("driverVariant", c.binding.Variant.String()),
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.String("instrAddr", c.addr.String()),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)
	return err
}

func (c *NativeConn) openSession() error {
	driver := c.binding.Driver
	var vi visa.Session
	if status := driver.Open(c.binding.Session, c.addr.String(), 0, 0, &vi); status != visa.StatusSuccess {
		err := c.connectError("open", c.binding.Session, status)
		if vi != 0 {
			driver.Close(vi)
		}
		return err
	}
	if status := driver.Clear(vi); status != visa.StatusSuccess {
		err := c.connectError("clear", vi, status)
		driver.Close(vi)
		return err
	}
	c.vi = vi
	if err := multierr.Append(c.applyTimeout(c.timeout), c.applyTermination(c.termination)); err != nil {
		driver.Close(vi)
		c.vi = 0
		return newError(ErrConnectionFailed, fmt.Sprintf("configure %s", c.addr), err)
	}
	return nil
}

func (c *NativeConn) connectError(step string, vi visa.Session, status visa.Status) error {
	cause := visa.NewError(c.binding.Driver, vi, status)
	return newError(ErrConnectionFailed, fmt.Sprintf("%s %s", step, c.addr), cause)
}

// Address implements [Conn].
func (c *NativeConn) Address() Address {
	return c.addr
}

// SetTimeout implements [Conn].
//
// The timeout is programmed as the driver's timeout attribute with
// millisecond resolution. Zero disables the timeout.
func (c *NativeConn) SetTimeout(d time.Duration) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if err := checkTimeout(d); err != nil {
		return err
	}
	if err := c.applyTimeout(d); err != nil {
		return err
	}
	c.timeout = d
	return nil
}

func (c *NativeConn) applyTimeout(d time.Duration) error {
	value := uint64(visa.TimeoutInfinite)
	if d > 0 {
		millis := max(d.Milliseconds(), 1)
		value = uint64(min(millis, math.MaxUint32-1))
	}
	return c.setAttribute(visa.AttrTimeoutValue, value)
}

// SetTermination implements [Conn].
//
// GPIB sessions always disable terminator detection and rely on the
// bus end signal. Other sessions stop reading at the last byte of
// the terminator.
func (c *NativeConn) SetTermination(term Termination) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if err := c.checkTermination(term); err != nil {
		return err
	}
	if err := c.applyTermination(term); err != nil {
		return err
	}
	c.termination = term
	return nil
}

func (c *NativeConn) applyTermination(term Termination) error {
	seq := term.Bytes()
	if c.addr.Kind() == KindGPIB || len(seq) == 0 {
		return c.setAttribute(visa.AttrTermCharEnabled, 0)
	}
	if err := c.setAttribute(visa.AttrTermChar, uint64(seq[len(seq)-1])); err != nil {
		return err
	}
	return c.setAttribute(visa.AttrTermCharEnabled, 1)
}

func (c *NativeConn) setAttribute(attr visa.Attribute, value uint64) error {
	status := c.binding.Driver.SetAttribute(c.vi, attr, value)
	c.op.Logger.Debug(
		"setAttribute",
		slog.String("instrAddr", c.addr.String()),
		slog.Uint64("visaAttr", uint64(attr)),
		slog.Uint64("visaAttrValue", value),
		slog.Int64("visaStatus", int64(status)),
		slog.Time("t", c.op.TimeNow()),
	)
	if status.Failed() {
		return c.statusError(fmt.Sprintf("set attribute %#x", uint32(attr)), status)
	}
	return nil
}

// SetFrameSize implements [Conn].
func (c *NativeConn) SetFrameSize(size int) error {
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
func (c *NativeConn) Read(buf []byte) (int, error) {
	if err := c.ensureOpen(); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	count, status := c.read(buf)
	if status.Failed() {
		return count, c.statusError("read", status)
	}
	return count, nil
}

func (c *NativeConn) read(buf []byte) (int, visa.Status) {
	t0 := c.op.TimeNow()
	var count uint32
	status := c.binding.Driver.Read(c.vi, buf, &count)
	c.op.Logger.Debug(
		"readDone",
		slog.Int("ioBufferSize", len(buf)),
		slog.Int("ioBytesCount", int(count)),
		slog.String("instrAddr", c.addr.String()),
		slog.Int64("visaStatus", int64(status)),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)
	return int(count), status
}

// ReadMessage implements [Conn].
//
// With terminator framing, reading continues while the driver reports
// that the buffer filled up, or that it stopped at a terminator byte
// that does not complete the terminator sequence.
func (c *NativeConn) ReadMessage() ([]byte, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	if c.frameSize > 0 {
		return c.readFrame()
	}
	term := c.termination.Bytes()
	var msg []byte
	chunk := make([]byte, readChunkSize)
	for {
		count, status := c.read(chunk)
		msg = append(msg, chunk[:count]...)
		if status.Failed() {
			return nil, c.statusError("read", status)
		}
		more := status == visa.StatusSuccessMaxCount ||
			(status == visa.StatusSuccessTermChar && !bytes.HasSuffix(msg, term))
		if !more {
			break
		}
		if len(msg) > maxMessageSize {
			return nil, newError(ErrFunctionFailure, fmt.Sprintf("read %s", c.addr), errMessageTooLarge)
		}
	}
	if len(term) > 0 && bytes.HasSuffix(msg, term) {
		msg = msg[:len(msg)-len(term)]
	}
	return msg, nil
}

func (c *NativeConn) readFrame() ([]byte, error) {
	msg := make([]byte, c.frameSize)
	for offset := 0; offset < len(msg); {
		count, status := c.read(msg[offset:])
		if status.Failed() {
			return nil, c.statusError("read", status)
		}
		if count == 0 {
			return nil, newError(ErrFunctionFailure, fmt.Sprintf("read %s", c.addr), io.ErrUnexpectedEOF)
		}
		offset += count
	}
	return msg, nil
}

// Write implements [Conn].
func (c *NativeConn) Write(data []byte) (int, error) {
	if err := c.ensureOpen(); err != nil {
		return 0, err
	}
	t0 := c.op.TimeNow()
	var count uint32
	status := c.binding.Driver.Write(c.vi, data, &count)
	c.op.Logger.Debug(
		"writeDone",
		slog.Int("ioBufferSize", len(data)),
		slog.Int("ioBytesCount", int(count)),
		slog.String("instrAddr", c.addr.String()),
		slog.Int64("visaStatus", int64(status)),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)
	switch {
	case status.Failed():
		return int(count), c.statusError("write", status)
	case int(count) < len(data):
		return int(count), newError(ErrFunctionFailure, fmt.Sprintf("write %s", c.addr), io.ErrShortWrite)
	default:
		return int(count), nil
	}
}

// Reconnect implements [Conn].
//
// The device session is closed and reopened. The shared [Binding]
// is reused.
func (c *NativeConn) Reconnect(ctx context.Context) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	t0 := c.op.TimeNow()
	c.op.Logger.Info(
		"reconnectStart",
		slog.String("instrAddr", c.addr.String()),
		slog.Time("t", t0),
	)
	err := c.reopen(ctx)
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

func (c *NativeConn) reopen(ctx context.Context) error {
	var closeErr error
	if status := c.binding.Driver.Close(c.vi); status.Failed() {
		closeErr = c.statusError("close", status)
	}
	c.vi = 0
	if err := ctx.Err(); err != nil {
		c.closed = true
		return multierr.Append(newError(ErrConnectionFailed, c.addr.String(), err), closeErr)
	}
	if err := c.open(); err != nil {
		c.closed = true
		return multierr.Append(err, closeErr)
	}
	return nil
}

// Close implements [Conn].
func (c *NativeConn) Close() error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	c.closed = true
	t0 := c.op.TimeNow()
	status := c.binding.Driver.Close(c.vi)
	var err error
	if status.Failed() {
		err = c.statusError("close", status)
	}
	c.op.Logger.Info(
		"closeDone",
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.String("instrAddr", c.addr.String()),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)
	return err
}

func (c *NativeConn) ensureOpen() error {
	if c.closed {
		return newError(ErrFunctionFailure, c.addr.String(), net.ErrClosed)
	}
	return nil
}

// statusError maps a driver timeout to [ErrTimeout] and any other
// failure to [ErrFunctionFailure].
func (c *NativeConn) statusError(operation string, status visa.Status) error {
	kind := ErrFunctionFailure
	if status == visa.StatusErrorTimeout {
		kind = ErrTimeout
	}
	return newError(kind, fmt.Sprintf("%s %s", operation, c.addr), visa.NewError(c.binding.Driver, c.vi, status))
}
