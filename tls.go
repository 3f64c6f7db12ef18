//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/tls.go
//

package instr

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
)

// TLSConn abstracts over [*tls.Conn].
type TLSConn interface {
	ConnectionState() tls.ConnectionState
	HandshakeContext(ctx context.Context) error
	net.Conn
}

// TLSClientStdlib wraps conn using [tls.Client].
func TLSClientStdlib(conn net.Conn, config *tls.Config) TLSConn {
	return tls.Client(conn, config)
}

// NewTLSHandshakeFunc returns a new [*TLSHandshakeFunc] using the given [*tls.Config].
func NewTLSHandshakeFunc(cfg *Config, tlsConfig *tls.Config, logger SLogger) *TLSHandshakeFunc {
	runtimex.Assert(tlsConfig != nil)
	return &TLSHandshakeFunc{
		Client:        TLSClientStdlib,
		Config:        tlsConfig,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// TLSHandshakeFunc performs a client TLS handshake over a [net.Conn].
//
// Used by [*DNSResolver] for DNS over TLS. On failure the input
// connection is closed.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type TLSHandshakeFunc struct {
	// Client wraps the connection for the client handshake.
	//
	// Set by [NewTLSHandshakeFunc] to [TLSClientStdlib].
	Client func(conn net.Conn, config *tls.Config) TLSConn

	// Config is cloned for each handshake.
	Config *tls.Config

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

var _ Func[net.Conn, TLSConn] = &TLSHandshakeFunc{}

// Call implements [Func].
func (op *TLSHandshakeFunc) Call(ctx context.Context, conn net.Conn) (TLSConn, error) {
	config := op.Config.Clone()
	config.Time = op.TimeNow
	tconn := op.Client(conn, config)

	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	endpoint := []any{
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.String("tlsServerName", config.ServerName),
		slog.Bool("tlsSkipVerify", config.InsecureSkipVerify),
	}
	op.Logger.Info("tlsHandshakeStart", append(endpoint,
		slog.Time("deadline", deadline),
		slog.Time("t", t0),
	)...)

	err := tconn.HandshakeContext(ctx)
	state := tconn.ConnectionState()

	op.Logger.Info("tlsHandshakeDone", append(endpoint,
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
		slog.String("tlsCipherSuite", tls.CipherSuiteName(state.CipherSuite)),
		slog.String("tlsVersion", tls.VersionName(state.Version)),
	)...)

	if err != nil {
		tconn.Close()
		return nil, err
	}
	return tconn, nil
}
