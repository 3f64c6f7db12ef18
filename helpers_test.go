// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"

	"github.com/bassosimone/instr/visa"
	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
	"github.com/stretchr/testify/require"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// messages returns the message of each captured record.
func messages(records []slog.Record) []string {
	out := make([]string, 0, len(records))
	for _, record := range records {
		out = append(out, record.Message)
	}
	return out
}

// newMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc and
// RemoteAddrFunc set, which is what [safeconn] needs during construction.
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
	}
}

// fakeRead is one scripted [visa.Driver.Read] result.
type fakeRead struct {
	data   []byte
	status visa.Status
}

// fakeDriver is an in-memory [visa.Driver] recording what the code under
// test does. Reads consume the scripted results in order; a result larger
// than the caller's buffer is split and reported with MaxCount. With no
// scripted result left, reads time out.
type fakeDriver struct {
	visa.FuncDriver
	attrs   map[visa.Attribute]uint64
	clears  int
	closed  []visa.Session
	nextVI  visa.Session
	opened  []string
	reads   []fakeRead
	written bytes.Buffer
}

func newFakeDriver() *fakeDriver {
	fd := &fakeDriver{attrs: make(map[visa.Attribute]uint64), nextVI: 100}
	fd.FuncDriver = visa.FuncDriver{
		OpenDefaultRMFunc: func(session *visa.Session) visa.Status {
			*session = 1
			return visa.StatusSuccess
		},
		OpenFunc: func(rm visa.Session, resource string, mode, timeout uint32, vi *visa.Session) visa.Status {
			fd.opened = append(fd.opened, resource)
			fd.nextVI++
			*vi = fd.nextVI
			return visa.StatusSuccess
		},
		ClearFunc: func(vi visa.Session) visa.Status {
			fd.clears++
			return visa.StatusSuccess
		},
		ReadFunc: func(vi visa.Session, buf []byte, count *uint32) visa.Status {
			if len(fd.reads) == 0 {
				*count = 0
				return visa.StatusErrorTimeout
			}
			next := fd.reads[0]
			n := copy(buf, next.data)
			*count = uint32(n)
			if n < len(next.data) {
				fd.reads[0].data = next.data[n:]
				return visa.StatusSuccessMaxCount
			}
			fd.reads = fd.reads[1:]
			return next.status
		},
		WriteFunc: func(vi visa.Session, buf []byte, count *uint32) visa.Status {
			fd.written.Write(buf)
			*count = uint32(len(buf))
			return visa.StatusSuccess
		},
		SetAttributeFunc: func(vi visa.Session, attr visa.Attribute, state uint64) visa.Status {
			fd.attrs[attr] = state
			return visa.StatusSuccess
		},
		StatusDescFunc: func(vi visa.Session, status visa.Status, desc []byte) visa.Status {
			copy(desc, "fake driver error\x00")
			return visa.StatusSuccess
		},
		CloseFunc: func(vi visa.Session) visa.Status {
			fd.closed = append(fd.closed, vi)
			return visa.StatusSuccess
		},
	}
	return fd
}

// newTestConfig returns a [*Config] whose registry loads driver and
// counts the loads.
func newTestConfig(driver visa.Driver) (*Config, *atomic.Int64) {
	loads := &atomic.Int64{}
	cfg := NewConfig()
	cfg.Hostname = func() string { return "labpc" }
	cfg.Registry = NewRegistry(LoaderFunc(func(variant visa.Variant) (visa.Driver, error) {
		loads.Add(1)
		return driver, nil
	}))
	return cfg, loads
}

// newLoopbackServer accepts TCP connections on 127.0.0.1 and runs
// handler on each of them. It returns the listening port.
func newLoopbackServer(t *testing.T, handler func(conn net.Conn)) uint16 {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handler(conn)
			}()
		}
	}()
	return uint16(listener.Addr().(*net.TCPAddr).Port)
}

// attrValue returns the value of the first attribute named key.
func attrValue(record slog.Record, key string) (value slog.Value, found bool) {
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key {
			value, found = attr.Value, true
			return false
		}
		return true
	})
	return
}
