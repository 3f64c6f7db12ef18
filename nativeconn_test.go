// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bassosimone/errclass"
	"github.com/bassosimone/instr/visa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connectNative parses input and connects it through driver.
func connectNative(t *testing.T, driver *fakeDriver, input string) Conn {
	t.Helper()
	cfg, _ := newTestConfig(driver)
	addr, err := NewParser(cfg).Parse(input)
	require.NoError(t, err)
	conn, err := NewConnectFunc(cfg, DefaultSLogger()).Call(context.Background(), addr)
	require.NoError(t, err)
	require.IsType(t, &NativeConn{}, conn)
	return conn
}

func TestNativeConnOpen(t *testing.T) {
	t.Run("gpib disables terminator detection", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "GPIB0::15::INSTR")

		assert.Equal(t, []string{"gpib0::15::instr"}, driver.opened)
		assert.Equal(t, 1, driver.clears)
		assert.Equal(t, uint64(2000), driver.attrs[visa.AttrTimeoutValue])
		assert.Equal(t, uint64(0), driver.attrs[visa.AttrTermCharEnabled])
		assert.NotContains(t, driver.attrs, visa.AttrTermChar)
		assert.Equal(t, DefaultTimeout, conn.Timeout())
		assert.Equal(t, TerminationLF, conn.Termination())
		assert.Equal(t, "gpib0::15::instr", conn.Address().String())
	})

	t.Run("vxi11 programs the terminator", func(t *testing.T) {
		driver := newFakeDriver()
		connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")

		assert.Equal(t, []string{"tcpip0::10.0.0.5::instr"}, driver.opened)
		assert.Equal(t, uint64('\n'), driver.attrs[visa.AttrTermChar])
		assert.Equal(t, uint64(1), driver.attrs[visa.AttrTermCharEnabled])
	})

	t.Run("open failure", func(t *testing.T) {
		driver := newFakeDriver()
		driver.OpenFunc = func(rm visa.Session, resource string, mode, timeout uint32, vi *visa.Session) visa.Status {
			return visa.StatusErrorResourceNotFound
		}
		cfg, _ := newTestConfig(driver)
		addr, err := NewParser(cfg).Parse("TCPIP0::10.0.0.5::INSTR")
		require.NoError(t, err)

		conn, err := NewConnectFunc(cfg, DefaultSLogger()).Call(context.Background(), addr)

		assert.Nil(t, conn)
		require.ErrorIs(t, err, ErrConnectionFailed)
		assert.Contains(t, err.Error(), "fake driver error")
		var visaErr *visa.Error
		require.True(t, errors.As(err, &visaErr))
		assert.Equal(t, visa.StatusErrorResourceNotFound, visaErr.Status)
		assert.Empty(t, driver.closed)
		assert.Equal(t, ECONNFAILED, DefaultErrClassifier.Classify(err))
	})

	t.Run("clear failure closes the session", func(t *testing.T) {
		driver := newFakeDriver()
		driver.ClearFunc = func(vi visa.Session) visa.Status {
			return visa.StatusErrorTimeout
		}
		cfg, _ := newTestConfig(driver)
		addr, err := NewParser(cfg).Parse("GPIB0::3")
		require.NoError(t, err)

		_, err = NewConnectFunc(cfg, DefaultSLogger()).Call(context.Background(), addr)

		require.ErrorIs(t, err, ErrConnectionFailed)
		assert.Equal(t, []visa.Session{101}, driver.closed)
	})

	t.Run("the driver is loaded once", func(t *testing.T) {
		driver := newFakeDriver()
		cfg, loads := newTestConfig(driver)
		connect := NewConnectFunc(cfg, DefaultSLogger())
		for _, input := range []string{"GPIB0::1", "GPIB0::2", "TCPIP0::10.0.0.5"} {
			addr, err := NewParser(cfg).Parse(input)
			require.NoError(t, err)
			_, err = connect.Call(context.Background(), addr)
			require.NoError(t, err)
		}
		assert.Equal(t, int64(1), loads.Load())
	})

	t.Run("missing binary", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Registry = NewRegistry(LoaderFunc(func(variant visa.Variant) (visa.Driver, error) {
			return nil, visa.ErrUnsupportedPlatform
		}))
		addr, err := NewGPIBAddress(0, 1)
		require.NoError(t, err)

		_, err = NewConnectFunc(cfg, DefaultSLogger()).Call(context.Background(), addr)

		assert.ErrorIs(t, err, ErrConnectionFailed)
		assert.ErrorIs(t, err, ErrBinary)
		assert.ErrorIs(t, err, visa.ErrUnsupportedPlatform)
	})
}

func TestNativeConnSettings(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")

		require.NoError(t, conn.SetTimeout(500*time.Millisecond))
		assert.Equal(t, uint64(500), driver.attrs[visa.AttrTimeoutValue])

		require.NoError(t, conn.SetTimeout(0))
		assert.Equal(t, uint64(visa.TimeoutInfinite), driver.attrs[visa.AttrTimeoutValue])

		require.NoError(t, conn.SetTimeout(time.Microsecond))
		assert.Equal(t, uint64(1), driver.attrs[visa.AttrTimeoutValue])

		err := conn.SetTimeout(-time.Second)
		assert.ErrorIs(t, err, ErrConflictingSettings)
		assert.Equal(t, time.Microsecond, conn.Timeout())
	})

	t.Run("termination on vxi11", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")

		require.NoError(t, conn.SetTermination(TerminationCR))
		assert.Equal(t, uint64('\r'), driver.attrs[visa.AttrTermChar])

		require.NoError(t, conn.SetTermination(TerminationCRLF))
		assert.Equal(t, uint64('\n'), driver.attrs[visa.AttrTermChar])
		assert.Equal(t, uint64(1), driver.attrs[visa.AttrTermCharEnabled])
		assert.Equal(t, TerminationCRLF, conn.Termination())
	})

	t.Run("termination on gpib", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "GPIB0::15::INSTR")

		require.NoError(t, conn.SetTermination(TerminationCR))
		assert.Equal(t, uint64(0), driver.attrs[visa.AttrTermCharEnabled])
		assert.NotContains(t, driver.attrs, visa.AttrTermChar)
		assert.Equal(t, TerminationCR, conn.Termination())
	})

	t.Run("termination none requires a frame size", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")

		err := conn.SetTermination(TerminationNone)
		assert.ErrorIs(t, err, ErrConflictingSettings)
		assert.Equal(t, ECONFLICT, DefaultErrClassifier.Classify(err))
		assert.Equal(t, TerminationLF, conn.Termination())
		assert.Equal(t, uint64(1), driver.attrs[visa.AttrTermCharEnabled])

		require.NoError(t, conn.SetFrameSize(8))
		require.NoError(t, conn.SetTermination(TerminationNone))
		assert.Equal(t, uint64(0), driver.attrs[visa.AttrTermCharEnabled])

		assert.ErrorIs(t, conn.SetFrameSize(0), ErrConflictingSettings)
		assert.Equal(t, 8, conn.FrameSize())
		assert.ErrorIs(t, conn.SetFrameSize(-1), ErrConflictingSettings)
	})

	t.Run("attribute failure", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")
		driver.SetAttributeFunc = func(vi visa.Session, attr visa.Attribute, state uint64) visa.Status {
			return visa.StatusErrorResourceNotFound
		}

		err := conn.SetTimeout(time.Second)

		assert.ErrorIs(t, err, ErrFunctionFailure)
		assert.Equal(t, DefaultTimeout, conn.Timeout())
	})
}

func TestNativeConnIO(t *testing.T) {
	t.Run("read message strips the terminator", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")
		driver.reads = []fakeRead{{[]byte("1.234\n"), visa.StatusSuccessTermChar}}

		msg, err := conn.ReadMessage()

		require.NoError(t, err)
		assert.Equal(t, []byte("1.234"), msg)
	})

	t.Run("read message spanning several driver reads", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")
		payload := bytes.Repeat([]byte("x"), 3*readChunkSize+17)
		driver.reads = []fakeRead{{append(payload, '\n'), visa.StatusSuccessTermChar}}

		msg, err := conn.ReadMessage()

		require.NoError(t, err)
		assert.Equal(t, payload, msg)
	})

	t.Run("read message with a multi-byte terminator", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")
		require.NoError(t, conn.SetTermination(TerminationCRLF))
		driver.reads = []fakeRead{
			{[]byte("ab\n"), visa.StatusSuccessTermChar},
			{[]byte("cd\r\n"), visa.StatusSuccessTermChar},
		}

		msg, err := conn.ReadMessage()

		require.NoError(t, err)
		assert.Equal(t, []byte("ab\ncd"), msg)
	})

	t.Run("gpib message ends with the end signal", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "GPIB0::15::INSTR")
		driver.reads = []fakeRead{{[]byte("\x00\n\x01\n"), visa.StatusSuccess}}

		msg, err := conn.ReadMessage()

		require.NoError(t, err)
		assert.Equal(t, []byte("\x00\n\x01"), msg)
	})

	t.Run("fixed frame", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")
		require.NoError(t, conn.SetFrameSize(4))
		driver.reads = []fakeRead{
			{[]byte("ab"), visa.StatusSuccess},
			{[]byte("cd"), visa.StatusSuccess},
		}

		msg, err := conn.ReadMessage()

		require.NoError(t, err)
		assert.Equal(t, []byte("abcd"), msg)
	})

	t.Run("timeout keeps the connection open", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")

		_, err := conn.ReadMessage()
		require.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, errclass.ETIMEDOUT, DefaultErrClassifier.Classify(err))

		count, err := conn.Write([]byte("*IDN?\n"))
		require.NoError(t, err)
		assert.Equal(t, 6, count)
		assert.Equal(t, "*IDN?\n", driver.written.String())
	})

	t.Run("single read", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")
		driver.reads = []fakeRead{{[]byte("abcdef"), visa.StatusSuccess}}

		buf := make([]byte, 4)
		count, err := conn.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 4, count)
		assert.Equal(t, []byte("abcd"), buf)

		count, err = conn.Read(nil)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("short write", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")
		driver.WriteFunc = func(vi visa.Session, buf []byte, count *uint32) visa.Status {
			*count = 1
			return visa.StatusSuccess
		}

		count, err := conn.Write([]byte("*RST\n"))

		assert.Equal(t, 1, count)
		assert.ErrorIs(t, err, ErrFunctionFailure)
	})
}

func TestNativeConnLifecycle(t *testing.T) {
	t.Run("close releases the device session only", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")

		require.NoError(t, conn.Close())
		assert.Equal(t, []visa.Session{101}, driver.closed)

		err := conn.Close()
		assert.ErrorIs(t, err, net.ErrClosed)
		_, err = conn.Write([]byte("*RST\n"))
		assert.ErrorIs(t, err, net.ErrClosed)
		assert.ErrorIs(t, err, ErrFunctionFailure)
		assert.Equal(t, []visa.Session{101}, driver.closed)
	})

	t.Run("reconnect preserves the settings", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")
		require.NoError(t, conn.SetTimeout(750*time.Millisecond))
		require.NoError(t, conn.SetTermination(TerminationCR))
		clear(driver.attrs)

		require.NoError(t, conn.Reconnect(context.Background()))

		assert.Equal(t, []string{"tcpip0::10.0.0.5::instr", "tcpip0::10.0.0.5::instr"}, driver.opened)
		assert.Equal(t, []visa.Session{101}, driver.closed)
		assert.Equal(t, uint64(750), driver.attrs[visa.AttrTimeoutValue])
		assert.Equal(t, uint64('\r'), driver.attrs[visa.AttrTermChar])
		assert.Equal(t, 750*time.Millisecond, conn.Timeout())
		assert.Equal(t, TerminationCR, conn.Termination())

		require.NoError(t, conn.Close())
		assert.Equal(t, []visa.Session{101, 102}, driver.closed)
	})

	t.Run("failed reconnect closes the connection", func(t *testing.T) {
		driver := newFakeDriver()
		conn := connectNative(t, driver, "TCPIP0::10.0.0.5::INSTR")
		driver.OpenFunc = func(rm visa.Session, resource string, mode, timeout uint32, vi *visa.Session) visa.Status {
			return visa.StatusErrorResourceNotFound
		}

		err := conn.Reconnect(context.Background())

		require.ErrorIs(t, err, ErrConnectionFailed)
		_, err = conn.ReadMessage()
		assert.ErrorIs(t, err, net.ErrClosed)
	})

	t.Run("logs", func(t *testing.T) {
		driver := newFakeDriver()
		cfg, _ := newTestConfig(driver)
		logger, records := newCapturingLogger()
		addr, err := NewGPIBAddress(0, 5)
		require.NoError(t, err)

		conn, err := NewConnectFunc(cfg, logger).Call(context.Background(), addr)
		require.NoError(t, err)
		require.NoError(t, conn.Close())

		got := messages(*records)
		assert.Equal(t, "connectStart", got[0])
		assert.Contains(t, got, "sessionOpenStart")
		assert.Contains(t, got, "sessionOpenDone")
		assert.Contains(t, got, "setAttribute")
		assert.Contains(t, got, "connectDone")
		assert.Equal(t, "closeDone", got[len(got)-1])
	})
}
