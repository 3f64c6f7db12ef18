//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/httpslog/httpslog.go
//

package instr

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
	"github.com/bassosimone/sud"
	"golang.org/x/net/http2"
)

// HTTPConn is an HTTP transport bound to a single TLS connection.
//
// Used by [*DNSResolver] for DNS over HTTPS. Each round trip emits
// httpRoundTripStart/httpRoundTripDone and closing a response body
// emits httpBodyDone.
//
// Construct using [*HTTPConnFunc]. The caller must call Close.
type HTTPConn struct {
	conn      net.Conn
	txp       http.RoundTripper
	closeIdle func()

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

var _ http.RoundTripper = &HTTPConn{}

// Conn returns the underlying connection.
func (hc *HTTPConn) Conn() net.Conn {
	return hc.conn
}

func (hc *HTTPConn) endpoint(req *http.Request) []any {
	return []any{
		slog.String("httpMethod", req.Method),
		slog.String("httpUrl", req.URL.String()),
		slog.String("localAddr", safeconn.LocalAddr(hc.conn)),
		slog.String("protocol", safeconn.Network(hc.conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(hc.conn)),
	}
}

// RoundTrip implements [http.RoundTripper].
func (hc *HTTPConn) RoundTrip(req *http.Request) (*http.Response, error) {
	t0 := hc.TimeNow()
	deadline, _ := req.Context().Deadline()
	endpoint := hc.endpoint(req)
	hc.Logger.Info("httpRoundTripStart", append(endpoint,
		slog.Time("deadline", deadline),
		slog.Time("t", t0),
	)...)

	resp, err := hc.txp.RoundTrip(req)

	var status int
	if resp != nil {
		status = resp.StatusCode
	}
	hc.Logger.Info("httpRoundTripDone", append(endpoint,
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", hc.ErrClassifier.Classify(err)),
		slog.Int("httpResponseStatusCode", status),
		slog.Time("t0", t0),
		slog.Time("t", hc.TimeNow()),
	)...)
	if err != nil {
		return nil, err
	}

	resp.Body = &httpObservedBody{ReadCloser: resp.Body, conn: hc, endpoint: endpoint, t0: t0}
	return resp, nil
}

// Close closes idle transport state and the underlying connection.
func (hc *HTTPConn) Close() error {
	hc.closeIdle()
	return hc.conn.Close()
}

// httpObservedBody counts the body bytes and logs them once on Close.
type httpObservedBody struct {
	io.ReadCloser
	conn     *HTTPConn
	count    int64
	endpoint []any
	once     sync.Once
	t0       time.Time
}

func (b *httpObservedBody) Read(buf []byte) (int, error) {
	count, err := b.ReadCloser.Read(buf)
	b.count += int64(count)
	return count, err
}

func (b *httpObservedBody) Close() (err error) {
	b.once.Do(func() {
		err = b.ReadCloser.Close()
		b.conn.Logger.Info("httpBodyDone", append(b.endpoint,
			slog.Int64("httpBodyLength", b.count),
			slog.Any("err", err),
			slog.String("errClass", b.conn.ErrClassifier.Classify(err)),
			slog.Time("t0", b.t0),
			slog.Time("t", b.conn.TimeNow()),
		)...)
	})
	return
}

// NewHTTPConnFunc returns a new [*HTTPConnFunc].
func NewHTTPConnFunc(cfg *Config, logger SLogger) *HTTPConnFunc {
	return &HTTPConnFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// HTTPConnFunc wraps a [TLSConn] into an [*HTTPConn].
//
// HTTP/2 is used when ALPN negotiated "h2" and HTTP/1.1 otherwise.
type HTTPConnFunc struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

var _ Func[TLSConn, *HTTPConn] = &HTTPConnFunc{}

// Call implements [Func].
func (op *HTTPConnFunc) Call(ctx context.Context, conn TLSConn) (*HTTPConn, error) {
	dialer := sud.NewSingleUseDialer(conn)
	hc := &HTTPConn{
		conn:          conn,
		ErrClassifier: op.ErrClassifier,
		Logger:        op.Logger,
		TimeNow:       op.TimeNow,
	}
	switch conn.ConnectionState().NegotiatedProtocol {
	case "h2":
		txp := &http2.Transport{DialTLSContext: dialer.DialTLSContext}
		hc.txp, hc.closeIdle = txp, txp.CloseIdleConnections
	default:
		txp := &http.Transport{
			DialContext:       dialer.DialContext,
			DialTLSContext:    dialer.DialContext,
			DisableKeepAlives: true,
		}
		hc.txp, hc.closeIdle = txp, txp.CloseIdleConnections
	}
	return hc, nil
}
