// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"context"
	"fmt"
)

// Kind enumerates the transports an [Address] can name.
type Kind uint8

const (
	// KindGPIB is a GPIB bus address, opened through the native driver.
	KindGPIB Kind = iota + 1

	// KindVisaSocket is a VISA TCPIP SOCKET resource.
	KindVisaSocket

	// KindVXI11 is a VISA TCPIP INSTR resource (VXI-11).
	KindVXI11

	// KindSocket is a plain host:port reached with a raw TCP stream.
	KindSocket

	// The following kinds are reserved. The parser never produces them.
	KindUSB
	KindSerial
	KindHiSLIP
	KindVXI
)

// String implements [fmt.Stringer].
func (k Kind) String() string {
	switch k {
	case KindGPIB:
		return "gpib"
	case KindVisaSocket:
		return "visa-socket"
	case KindVXI11:
		return "vxi11"
	case KindSocket:
		return "socket"
	case KindUSB:
		return "usb"
	case KindSerial:
		return "serial"
	case KindHiSLIP:
		return "hislip"
	case KindVXI:
		return "vxi"
	default:
		return "invalid"
	}
}

// Native reports whether the kind is opened through the native driver.
func (k Kind) Native() bool {
	return k >= KindGPIB && k <= KindVXI && k != KindSocket
}

// Address is the canonical form of an instrument address.
//
// The concrete types are [GPIBAddress], [VisaSocketAddress],
// [VXI11Address] and [SocketAddress]. They are immutable, comparable
// with == and their String method returns the canonical form, which
// [Parse] maps back to an equal value.
type Address interface {
	// Kind returns the transport kind.
	Kind() Kind

	// String returns the canonical address string.
	String() string

	// Connect opens a [Conn] using [NewConfig] defaults.
	Connect(ctx context.Context) (Conn, error)

	sealed()
}

func connectDefault(ctx context.Context, addr Address) (Conn, error) {
	return NewConnectFunc(NewConfig(), DefaultSLogger()).Call(ctx, addr)
}

// MaxGPIBPrimary is the highest valid GPIB primary address.
const MaxGPIBPrimary = 30

// GPIBAddress is "gpib<board>::<primary>::instr".
type GPIBAddress struct {
	board     uint16
	primary   uint8
	canonical string
}

var _ Address = GPIBAddress{}

// NewGPIBAddress validates the fields and builds a [GPIBAddress].
func NewGPIBAddress(board uint16, primary uint8) (GPIBAddress, error) {
	if primary > MaxGPIBPrimary {
		return GPIBAddress{}, newError(ErrParseFailed,
			fmt.Sprintf("GPIB primary address %d out of range [0, %d]", primary, MaxGPIBPrimary), nil)
	}
	return newGPIBAddress(board, primary), nil
}

func newGPIBAddress(board uint16, primary uint8) GPIBAddress {
	return GPIBAddress{
		board:     board,
		primary:   primary,
		canonical: fmt.Sprintf("gpib%d::%d::instr", board, primary),
	}
}

// Board returns the interface board number.
func (a GPIBAddress) Board() uint16 { return a.board }

// Primary returns the primary bus address.
func (a GPIBAddress) Primary() uint8 { return a.primary }

// Kind implements [Address].
func (a GPIBAddress) Kind() Kind { return KindGPIB }

// String implements [Address].
func (a GPIBAddress) String() string { return a.canonical }

// Connect implements [Address].
func (a GPIBAddress) Connect(ctx context.Context) (Conn, error) { return connectDefault(ctx, a) }

func (GPIBAddress) sealed() {}

// Complement returns the address paired with this one on two-address
// instruments: even primaries map to primary+1 and odd ones to primary-1.
//
// The boolean is false when the complement would exceed [MaxGPIBPrimary].
func (a GPIBAddress) Complement() (GPIBAddress, bool) {
	primary := a.primary ^ 1
	if primary > MaxGPIBPrimary {
		return GPIBAddress{}, false
	}
	return newGPIBAddress(a.board, primary), true
}

// VisaSocketAddress is "tcpip<board>::<host>::<port>::socket".
type VisaSocketAddress struct {
	board     uint16
	endpoint  SocketEndpoint
	canonical string
}

var _ Address = VisaSocketAddress{}

// NewVisaSocketAddress builds a [VisaSocketAddress].
func NewVisaSocketAddress(board uint16, endpoint SocketEndpoint) VisaSocketAddress {
	return VisaSocketAddress{
		board:     board,
		endpoint:  endpoint,
		canonical: fmt.Sprintf("tcpip%d::%s::%d::socket", board, visaHost(endpoint.Address()), endpoint.Port()),
	}
}

// Board returns the interface board number.
func (a VisaSocketAddress) Board() uint16 { return a.board }

// Endpoint returns the host and port.
func (a VisaSocketAddress) Endpoint() SocketEndpoint { return a.endpoint }

// Kind implements [Address].
func (a VisaSocketAddress) Kind() Kind { return KindVisaSocket }

// String implements [Address].
func (a VisaSocketAddress) String() string { return a.canonical }

// Connect implements [Address].
func (a VisaSocketAddress) Connect(ctx context.Context) (Conn, error) { return connectDefault(ctx, a) }

func (VisaSocketAddress) sealed() {}

// VXI11Address is "tcpip<board>::<host>::instr".
type VXI11Address struct {
	board     uint16
	host      NetworkAddress
	canonical string
}

var _ Address = VXI11Address{}

// NewVXI11Address builds a [VXI11Address].
func NewVXI11Address(board uint16, host NetworkAddress) VXI11Address {
	return VXI11Address{
		board:     board,
		host:      host,
		canonical: fmt.Sprintf("tcpip%d::%s::instr", board, visaHost(host)),
	}
}

// Board returns the interface board number.
func (a VXI11Address) Board() uint16 { return a.board }

// Host returns the instrument host.
func (a VXI11Address) Host() NetworkAddress { return a.host }

// Kind implements [Address].
func (a VXI11Address) Kind() Kind { return KindVXI11 }

// String implements [Address].
func (a VXI11Address) String() string { return a.canonical }

// Connect implements [Address].
func (a VXI11Address) Connect(ctx context.Context) (Conn, error) { return connectDefault(ctx, a) }

func (VXI11Address) sealed() {}

// SocketAddress is a plain "host:port" endpoint.
type SocketAddress struct {
	endpoint  SocketEndpoint
	canonical string
}

var _ Address = SocketAddress{}

// NewSocketAddress builds a [SocketAddress].
func NewSocketAddress(endpoint SocketEndpoint) SocketAddress {
	return SocketAddress{endpoint: endpoint, canonical: endpoint.String()}
}

// Endpoint returns the host and port.
func (a SocketAddress) Endpoint() SocketEndpoint { return a.endpoint }

// Kind implements [Address].
func (a SocketAddress) Kind() Kind { return KindSocket }

// String implements [Address].
func (a SocketAddress) String() string { return a.canonical }

// Connect implements [Address].
func (a SocketAddress) Connect(ctx context.Context) (Conn, error) { return connectDefault(ctx, a) }

func (SocketAddress) sealed() {}

// visaHost brackets IPv6 literals so "::" stays a field separator.
func visaHost(addr NetworkAddress) string {
	if addr.Kind() == NetworkIPv6 {
		return "[" + addr.String() + "]"
	}
	return addr.String()
}
