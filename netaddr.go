// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

// NetworkKind enumerates the variants of [NetworkAddress].
type NetworkKind uint8

const (
	// NetworkIPv4 is an IPv4 literal (loopback aliases included).
	NetworkIPv4 NetworkKind = iota + 1

	// NetworkIPv6 is an IPv6 literal.
	NetworkIPv6

	// NetworkRawHost is a hostname whose lookup is deferred to connect time.
	NetworkRawHost
)

// String implements [fmt.Stringer].
func (k NetworkKind) String() string {
	switch k {
	case NetworkIPv4:
		return "ipv4"
	case NetworkIPv6:
		return "ipv6"
	case NetworkRawHost:
		return "rawhost"
	default:
		return "invalid"
	}
}

// NetworkAddress is an IPv4 literal, an IPv6 literal or an unresolved
// hostname. Values are immutable and comparable with ==; hostnames
// are stored lowercase.
//
// Construct using [*Parser.ResolveNetworkAddress].
type NetworkAddress struct {
	ip   netip.Addr
	host string
}

// IPv4Loopback is the address every loopback alias resolves to.
var IPv4Loopback = NetworkAddress{ip: netip.AddrFrom4([4]byte{127, 0, 0, 1})}

// Kind returns the variant.
func (n NetworkAddress) Kind() NetworkKind {
	switch {
	case n.host != "":
		return NetworkRawHost
	case n.ip.Is4():
		return NetworkIPv4
	case n.ip.Is6():
		return NetworkIPv6
	default:
		return 0
	}
}

// IP returns the literal address, or false for a raw host.
func (n NetworkAddress) IP() (netip.Addr, bool) {
	return n.ip, n.ip.IsValid()
}

// Host returns the unresolved hostname, or the empty string.
func (n NetworkAddress) Host() string {
	return n.host
}

// String returns the canonical textual form (no brackets for IPv6).
func (n NetworkAddress) String() string {
	if n.host != "" {
		return n.host
	}
	return n.ip.String()
}

// hostLabels matches dot-separated alphanumeric/hyphen labels without
// leading or trailing hyphens.
var hostLabels = regexp.MustCompile(`^(?i)[a-z0-9](?:[a-z0-9-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]*[a-z0-9])?)*$`)

// ResolveNetworkAddress classifies a host token.
//
// The token is tried, in order, as: four dot-separated octets that parse
// as 8-bit integers after trimming leading zeros (so "127.00.000.001"
// is 127.0.0.1); "localhost", "::1" or the machine hostname, which all
// become [IPv4Loopback]; an IPv6 literal, where any spelling of ::1 is
// also [IPv4Loopback]; hostname labels, which are kept
// unresolved. Anything else fails with [ErrParseFailed].
func (p *Parser) ResolveNetworkAddress(token string) (NetworkAddress, error) {
	if addr, ok := parseDottedOctets(token); ok {
		return NetworkAddress{ip: addr}, nil
	}
	if p.isLoopbackAlias(token) {
		return IPv4Loopback, nil
	}
	if addr, err := netip.ParseAddr(token); err == nil && addr.Is6() {
		if addr == netip.IPv6Loopback() {
			return IPv4Loopback, nil
		}
		return NetworkAddress{ip: addr}, nil
	}
	if hostLabels.MatchString(token) {
		return NetworkAddress{host: strings.ToLower(token)}, nil
	}
	return NetworkAddress{}, newError(ErrParseFailed, fmt.Sprintf("unable to resolve IP address or hostname %q", token), nil)
}

func (p *Parser) isLoopbackAlias(token string) bool {
	if strings.EqualFold(token, "localhost") || strings.EqualFold(token, "::1") {
		return true
	}
	hostname := p.Hostname()
	return hostname != "" && strings.EqualFold(token, hostname)
}

func parseDottedOctets(token string) (netip.Addr, bool) {
	segments := strings.Split(token, ".")
	if len(segments) != 4 {
		return netip.Addr{}, false
	}
	var octets [4]byte
	for idx, segment := range segments {
		trimmed := strings.TrimLeft(segment, "0")
		if trimmed == "" && segment != "" {
			trimmed = "0"
		}
		value, err := strconv.ParseUint(trimmed, 10, 8)
		if err != nil {
			return netip.Addr{}, false
		}
		octets[idx] = byte(value)
	}
	return netip.AddrFrom4(octets), true
}
