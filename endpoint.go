// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// SocketEndpoint is a [NetworkAddress] plus a TCP port.
//
// Values are immutable and comparable with ==.
type SocketEndpoint struct {
	addr NetworkAddress
	port uint16
}

// NewSocketEndpoint builds a [SocketEndpoint].
func NewSocketEndpoint(addr NetworkAddress, port uint16) SocketEndpoint {
	return SocketEndpoint{addr: addr, port: port}
}

// Address returns the network address.
func (e SocketEndpoint) Address() NetworkAddress {
	return e.addr
}

// Port returns the TCP port.
func (e SocketEndpoint) Port() uint16 {
	return e.port
}

// String returns "host:port", bracketing IPv6 literals.
func (e SocketEndpoint) String() string {
	return net.JoinHostPort(e.addr.String(), strconv.Itoa(int(e.port)))
}

// Resolve returns the [netip.AddrPort] to dial.
//
// Literals are returned without lookup. A raw host is looked up using
// the given [Resolver] and the first IPv4 result wins over IPv6 ones.
func (e SocketEndpoint) Resolve(ctx context.Context, reso Resolver) (netip.AddrPort, error) {
	if ip, ok := e.addr.IP(); ok {
		return netip.AddrPortFrom(ip, e.port), nil
	}
	addrs, err := reso.LookupNetIP(ctx, "ip", e.addr.Host())
	if err != nil {
		return netip.AddrPort{}, err
	}
	ip, ok := preferIPv4(addrs)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("no addresses for %q", e.addr.Host())
	}
	return netip.AddrPortFrom(ip, e.port), nil
}

func preferIPv4(addrs []netip.Addr) (netip.Addr, bool) {
	var fallback netip.Addr
	for _, addr := range addrs {
		addr = addr.Unmap()
		if addr.Is4() {
			return addr, true
		}
		if !fallback.IsValid() {
			fallback = addr
		}
	}
	return fallback, fallback.IsValid()
}
