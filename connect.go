// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/instr/visa"
)

// NewConnectFunc returns a new [*ConnectFunc].
//
// The cfg argument contains the common configuration for instr operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewConnectFunc(cfg *Config, logger SLogger) *ConnectFunc {
	return &ConnectFunc{
		ConnectTimeout: cfg.ConnectTimeout,
		Dialer:         cfg.Dialer,
		ErrClassifier:  cfg.ErrClassifier,
		Logger:         logger,
		Registry:       cfg.Registry,
		Resolver:       cfg.Resolver,
		SocketFallback: cfg.SocketFallback,
		TimeNow:        cfg.TimeNow,
		Variant:        cfg.Variant,
	}
}

// ConnectFunc opens a [Conn] to an [Address].
//
// GPIB, VXI-11 and VISA socket addresses are opened through the native
// driver obtained from the [*Registry]. Socket addresses are dialed over
// TCP. With SocketFallback set, a VISA socket address whose driver is
// unavailable is dialed over TCP too.
//
// Returns either a valid [Conn] or an error wrapping [ErrConnectionFailed],
// never both.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ConnectFunc struct {
	// ConnectTimeout bounds hostname resolution and the TCP dial.
	ConnectTimeout time.Duration

	// Dialer is the [Dialer] to use.
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Connections keep logging through it after Call returns. Use a
	// logger carrying a "spanID" (see [NewSpanID]) to correlate events.
	Logger SLogger

	// Registry provides native driver bindings.
	Registry *Registry

	// Resolver looks up raw hostnames.
	Resolver Resolver

	// SocketFallback enables the raw TCP fallback for VISA socket addresses.
	SocketFallback bool

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time

	// Variant selects the native driver.
	Variant visa.Variant
}

var _ Func[Address, Conn] = &ConnectFunc{}

// Call implements [Func].
func (op *ConnectFunc) Call(ctx context.Context, addr Address) (Conn, error) {
	t0 := op.TimeNow()
	op.Logger.Info(
		"connectStart",
		slog.String("instrAddr", addressString(addr)),
		slog.Time("t", t0),
	)
	conn, err := op.connect(ctx, addr)
	op.Logger.Info(
		"connectDone",
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("instrAddr", addressString(addr)),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
	return conn, err
}

func (op *ConnectFunc) connect(ctx context.Context, addr Address) (Conn, error) {
	switch addr := addr.(type) {
	case SocketAddress:
		return op.connectSocket(ctx, addr, addr.Endpoint())

	case VisaSocketAddress:
		conn, err := op.connectNative(ctx, addr)
		if err != nil && op.SocketFallback && driverUnavailable(err) {
			op.Logger.Info(
				"socketFallback",
				slog.Any("err", err),
				slog.String("instrAddr", addr.String()),
				slog.Time("t", op.TimeNow()),
			)
			return op.connectSocket(ctx, addr, addr.Endpoint())
		}
		return conn, err

	case GPIBAddress, VXI11Address:
		return op.connectNative(ctx, addr)

	default:
		return nil, newError(ErrConnectionFailed, fmt.Sprintf("unsupported address %q", addressString(addr)), nil)
	}
}

func (op *ConnectFunc) connectSocket(ctx context.Context, addr Address, endpoint SocketEndpoint) (Conn, error) {
	conn := &SocketConn{
		addr:     addr,
		endpoint: endpoint,
		framing:  framing{termination: TerminationLF, timeout: DefaultTimeout},
		op:       op,
	}
	if err := conn.open(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

func (op *ConnectFunc) connectNative(ctx context.Context, addr Address) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(ErrConnectionFailed, addr.String(), err)
	}
	binding, err := op.Registry.Load(op.Variant)
	if err != nil {
		return nil, newError(ErrConnectionFailed, addr.String(), err)
	}
	conn := &NativeConn{
		addr:    addr,
		binding: binding,
		framing: framing{termination: TerminationLF, timeout: DefaultTimeout},
		op:      op,
	}
	if err := conn.open(); err != nil {
		return nil, err
	}
	return conn, nil
}

func driverUnavailable(err error) bool {
	return errors.Is(err, ErrBinary) || errors.Is(err, ErrOpenSession)
}

// dialEndpoint resolves and dials endpoint, each step bounded by ConnectTimeout.
func (op *ConnectFunc) dialEndpoint(ctx context.Context, endpoint SocketEndpoint) (net.Conn, error) {
	cfg := &Config{
		Dialer:        op.Dialer,
		ErrClassifier: op.ErrClassifier,
		Resolver:      op.Resolver,
		TimeNow:       op.TimeNow,
	}
	resolve := NewResolveEndpointFunc(cfg, op.Logger)
	dial := NewDialFunc(cfg, "tcp", op.Logger)
	observe := NewObserveConnFunc(cfg, op.Logger)

	addrport, err := callWithTimeout(ctx, op.ConnectTimeout, resolve, endpoint)
	if err != nil {
		return nil, newError(ErrConnectionFailed, fmt.Sprintf("cannot resolve %s", endpoint), err)
	}
	conn, err := callWithTimeout(ctx, op.ConnectTimeout, Compose2[netip.AddrPort, net.Conn, net.Conn](dial, observe), addrport)
	if err != nil {
		return nil, newError(ErrConnectionFailed, fmt.Sprintf("cannot connect to %s", endpoint), err)
	}
	return conn, nil
}

func callWithTimeout[A, B any](ctx context.Context, timeout time.Duration, fx Func[A, B], input A) (B, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fx.Call(ctx, input)
}

func addressString(addr Address) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
