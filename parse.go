// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Parser turns raw address strings into [Address] values.
//
// The zero value is not ready to use; construct using [NewParser].
type Parser struct {
	// Hostname returns the name of the executing machine, which
	// resolves to the IPv4 loopback address.
	//
	// Set by [NewParser] from [Config.Hostname].
	Hostname func() string
}

// NewParser returns a new [*Parser].
func NewParser(cfg *Config) *Parser {
	return &Parser{Hostname: cfg.Hostname}
}

// Parse parses raw using [NewConfig] defaults.
func Parse(raw string) (Address, error) {
	return NewParser(NewConfig()).Parse(raw)
}

// The input reaching these expressions is lowercase and whitespace-free.
var (
	gpibRegexp = regexp.MustCompile(`^gpib(\d*)::(\d+)(?:::\d+)?(?:::instr)?$`)

	visaSocketRegexp = regexp.MustCompile(`^tcpip(\d*)::([a-z0-9.\-]+|\[[0-9a-z:.%]+\])::(\d+)::socket$`)

	vxi11Regexp = regexp.MustCompile(`^tcpip(\d*)::([a-z0-9.\-]+|\[[0-9a-z:.%]+\])(?:::instr)?$`)
)

// Parse parses an instrument address.
//
// All whitespace is removed and the input is lowercased before matching.
// The grammars are tried in order and the first match wins:
//
//	gpib<board>::<primary>[::<secondary>][::instr]
//	tcpip<board>::<host>::<port>::socket
//	tcpip<board>::<host>[::instr]
//	<host>:<port>
//
// The board defaults to zero and the GPIB secondary address is discarded.
// In the last form the rightmost colon separates the port, so IPv6
// literals work with or without brackets. Failures wrap [ErrParseFailed].
func (p *Parser) Parse(raw string) (Address, error) {
	address := normalizeAddress(raw)
	if m := gpibRegexp.FindStringSubmatch(address); m != nil {
		return p.parseGPIB(m[1], m[2])
	}
	if m := visaSocketRegexp.FindStringSubmatch(address); m != nil {
		return p.parseVisaSocket(m[1], m[2], m[3])
	}
	if m := vxi11Regexp.FindStringSubmatch(address); m != nil {
		return p.parseVXI11(m[1], m[2])
	}
	return p.parseSocket(address)
}

func normalizeAddress(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), ""))
}

func (p *Parser) parseGPIB(board, primary string) (Address, error) {
	boardNum, err := parseBoard(board)
	if err != nil {
		return nil, err
	}
	if len(primary) >= 3 {
		return nil, newError(ErrParseFailed, fmt.Sprintf("GPIB primary address %q has too many digits", primary), nil)
	}
	value, err := strconv.ParseUint(primary, 10, 8)
	if err != nil {
		return nil, newError(ErrParseFailed, fmt.Sprintf("invalid GPIB primary address %q", primary), err)
	}
	addr, err := NewGPIBAddress(boardNum, uint8(value))
	if err != nil {
		return nil, err
	}
	return addr, nil
}

func (p *Parser) parseVisaSocket(board, host, port string) (Address, error) {
	boardNum, err := parseBoard(board)
	if err != nil {
		return nil, err
	}
	endpoint, err := p.parseEndpoint(host, port)
	if err != nil {
		return nil, err
	}
	return NewVisaSocketAddress(boardNum, endpoint), nil
}

func (p *Parser) parseVXI11(board, host string) (Address, error) {
	boardNum, err := parseBoard(board)
	if err != nil {
		return nil, err
	}
	addr, err := p.ResolveNetworkAddress(unbracket(host))
	if err != nil {
		return nil, err
	}
	return NewVXI11Address(boardNum, addr), nil
}

func (p *Parser) parseSocket(address string) (Address, error) {
	segments := strings.Split(address, ":")
	if len(segments) < 2 {
		return nil, newError(ErrParseFailed, fmt.Sprintf(
			"incorrect socket address format %q, expected IP:port or hostname:port, e.g. 192.168.0.20:8080 or PCNAME1:50050",
			address), nil)
	}
	port := segments[len(segments)-1]
	host := strings.Join(segments[:len(segments)-1], ":")
	endpoint, err := p.parseEndpoint(host, port)
	if err != nil {
		return nil, err
	}
	return NewSocketAddress(endpoint), nil
}

func (p *Parser) parseEndpoint(host, port string) (SocketEndpoint, error) {
	portNum, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return SocketEndpoint{}, newError(ErrParseFailed, fmt.Sprintf("unable to parse port %q into a number", port), err)
	}
	addr, err := p.ResolveNetworkAddress(unbracket(host))
	if err != nil {
		return SocketEndpoint{}, err
	}
	return NewSocketEndpoint(addr, uint16(portNum)), nil
}

func parseBoard(board string) (uint16, error) {
	if board == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(board, 10, 16)
	if err != nil {
		return 0, newError(ErrParseFailed, fmt.Sprintf("invalid board number %q", board), err)
	}
	return uint16(value), nil
}

func unbracket(host string) string {
	if len(host) >= 2 && host[0] == '[' && host[len(host)-1] == ']' {
		return host[1 : len(host)-1]
	}
	return host
}
