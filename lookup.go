// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"context"
	"log/slog"
	"net/netip"
	"time"
)

// Resolver abstracts the [*net.Resolver] behavior.
//
// The network argument is "ip", "ip4" or "ip6". Both [*net.Resolver]
// and [*DNSResolver] satisfy this interface.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// NewResolveEndpointFunc returns a new [*ResolveEndpointFunc].
//
// The cfg argument contains the common configuration for instr operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewResolveEndpointFunc(cfg *Config, logger SLogger) *ResolveEndpointFunc {
	return &ResolveEndpointFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Resolver:      cfg.Resolver,
		TimeNow:       cfg.TimeNow,
	}
}

// ResolveEndpointFunc turns a [SocketEndpoint] into a [netip.AddrPort].
//
// Raw hosts are looked up on every call, so repeated connects observe
// DNS changes. See [SocketEndpoint.Resolve] for the selection policy.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ResolveEndpointFunc struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// Resolver performs hostname lookups.
	Resolver Resolver

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

var _ Func[SocketEndpoint, netip.AddrPort] = &ResolveEndpointFunc{}

// Call implements [Func].
func (op *ResolveEndpointFunc) Call(ctx context.Context, endpoint SocketEndpoint) (netip.AddrPort, error) {
	if endpoint.Address().Kind() != NetworkRawHost {
		return endpoint.Resolve(ctx, op.Resolver)
	}
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.Logger.Info(
		"lookupStart",
		slog.Time("deadline", deadline),
		slog.String("lookupHost", endpoint.Address().Host()),
		slog.Time("t", t0),
	)
	addrport, err := endpoint.Resolve(ctx, op.Resolver)
	op.Logger.Info(
		"lookupDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("lookupHost", endpoint.Address().Host()),
		slog.String("lookupResult", addrportString(addrport)),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
	return addrport, err
}

func addrportString(ap netip.AddrPort) string {
	if !ap.IsValid() {
		return ""
	}
	return ap.String()
}
