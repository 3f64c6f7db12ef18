// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/dnsoverhttps"
	"github.com/bassosimone/dnsoverstream"
	"github.com/bassosimone/minest"
	"github.com/miekg/dns"
)

// DNS protocols supported by [*DNSResolver].
const (
	DNSProtocolUDP = "udp"
	DNSProtocolTCP = "tcp"
	DNSProtocolDoT = "dot"
	DNSProtocolDoH = "doh"
)

// NewDNSResolver returns a [*DNSResolver] querying server using protocol.
//
// For [DNSProtocolDoT] and [DNSProtocolDoH] the TLS server name defaults
// to the server address. The DoH URL defaults to "https://<server>/dns-query".
func NewDNSResolver(cfg *Config, protocol string, server netip.AddrPort, logger SLogger) *DNSResolver {
	return &DNSResolver{
		URL:           "https://" + server.String() + "/dns-query",
		Dialer:        cfg.Dialer,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Protocol:      protocol,
		Server:        server,
		TLSConfig:     &tls.Config{ServerName: server.Addr().String()},
		TimeNow:       cfg.TimeNow,
	}
}

// DNSResolver is a [Resolver] sending A queries to a specific server.
//
// Use it instead of the system resolver when instruments live on a lab
// network with its own DNS server. Each query uses a fresh connection
// that is closed when the lookup context is done.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [LookupNetIP].
type DNSResolver struct {
	// Dialer is the [Dialer] to use.
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// Protocol is [DNSProtocolUDP], [DNSProtocolTCP], [DNSProtocolDoT]
	// or [DNSProtocolDoH].
	Protocol string

	// Server is the DNS server endpoint.
	Server netip.AddrPort

	// TLSConfig is used with [DNSProtocolDoT] and [DNSProtocolDoH]. With
	// DoH, empty NextProtos offer "h2" and "http/1.1".
	TLSConfig *tls.Config

	// URL is the DoH endpoint.
	URL string

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

var _ Resolver = &DNSResolver{}

// LookupNetIP implements [Resolver].
//
// Only IPv4 addresses are looked up, so network must be "ip" or "ip4".
func (r *DNSResolver) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	if network != "ip" && network != "ip4" {
		return nil, fmt.Errorf("dns resolver: unsupported network %q", network)
	}
	records, err := r.exchange(ctx, dnscodec.NewQuery(host, dns.TypeA))
	if err != nil {
		return nil, err
	}
	addrs := make([]netip.Addr, 0, len(records))
	for _, record := range records {
		if addr, err := netip.ParseAddr(record); err == nil {
			addrs = append(addrs, addr)
		}
	}
	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return addrs, nil
}

func (r *DNSResolver) exchange(ctx context.Context, query *dnscodec.Query) ([]string, error) {
	cfg := &Config{Dialer: r.Dialer, ErrClassifier: r.ErrClassifier, TimeNow: r.TimeNow}
	endpoint := ConstFunc(r.Server)
	observe := NewObserveConnFunc(cfg, r.Logger)
	watch := NewCancelWatchFunc()

	var (
		conn net.Conn
		err  error
	)
	switch r.Protocol {
	case DNSProtocolUDP:
		conn, err = Compose4(endpoint, NewDialFunc(cfg, "udp", r.Logger), observe, watch).Call(ctx, Unit{})
	case DNSProtocolTCP:
		conn, err = Compose4(endpoint, NewDialFunc(cfg, "tcp", r.Logger), observe, watch).Call(ctx, Unit{})
	case DNSProtocolDoT:
		handshake := NewTLSHandshakeFunc(cfg, r.TLSConfig, r.Logger)
		var tconn TLSConn
		tconn, err = Compose2(Compose4(endpoint, NewDialFunc(cfg, "tcp", r.Logger), observe, watch), handshake).Call(ctx, Unit{})
		conn = tconn
	case DNSProtocolDoH:
		return r.exchangeHTTPS(ctx, cfg, Compose4(endpoint, NewDialFunc(cfg, "tcp", r.Logger), observe, watch), query)
	default:
		return nil, fmt.Errorf("dns resolver: unsupported protocol %q", r.Protocol)
	}
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := r.exchangeWithConn(ctx, conn, query)
	if err != nil {
		return nil, err
	}
	return resp.RecordsA()
}

func (r *DNSResolver) exchangeHTTPS(ctx context.Context,
	cfg *Config, connect Func[Unit, net.Conn], query *dnscodec.Query) ([]string, error) {
	tlsConfig := r.TLSConfig.Clone()
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{"h2", "http/1.1"}
	}
	handshake := NewTLSHandshakeFunc(cfg, tlsConfig, r.Logger)
	hc, err := Compose3(connect, handshake, NewHTTPConnFunc(cfg, r.Logger)).Call(ctx, Unit{})
	if err != nil {
		return nil, err
	}
	defer hc.Close()

	resp, err := r.logExchange(ctx, hc.Conn(), func(lc *dnsExchangeLogContext) (*dnscodec.Response, error) {
		return r.roundTripHTTPS(ctx, lc, hc, query)
	})
	if err != nil {
		return nil, err
	}
	return resp.RecordsA()
}

func (r *DNSResolver) roundTripHTTPS(ctx context.Context,
	lc *dnsExchangeLogContext, hc *HTTPConn, query *dnscodec.Query) (*dnscodec.Response, error) {
	req, queryMsg, err := dnsoverhttps.NewRequestWithHook(ctx, query, r.URL, lc.observeQuery)
	if err != nil {
		return nil, err
	}
	httpResp, err := hc.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	return dnsoverhttps.ReadResponseWithHook(ctx, httpResp, queryMsg, lc.observeResponse)
}

func (r *DNSResolver) exchangeWithConn(ctx context.Context, conn net.Conn, query *dnscodec.Query) (*dnscodec.Response, error) {
	return r.logExchange(ctx, conn, func(lc *dnsExchangeLogContext) (*dnscodec.Response, error) {
		return r.roundTrip(ctx, lc, conn, query)
	})
}

func (r *DNSResolver) logExchange(ctx context.Context,
	conn net.Conn, fn func(lc *dnsExchangeLogContext) (*dnscodec.Response, error)) (*dnscodec.Response, error) {
	t0 := r.TimeNow()
	deadline, _ := ctx.Deadline()
	lc := newDNSExchangeLogContext(r, conn)
	lc.logStart(t0, deadline)
	resp, err := fn(lc)
	lc.logDone(t0, deadline, err)
	return resp, err
}

func (r *DNSResolver) roundTrip(ctx context.Context,
	lc *dnsExchangeLogContext, conn net.Conn, query *dnscodec.Query) (*dnscodec.Response, error) {
	// The transports below exchange over conn and must never dial.
	if r.Protocol == DNSProtocolUDP {
		txp := minest.NewDNSOverUDPTransport(dnsUnusedDialer{}, netip.AddrPortFrom(netip.IPv4Unspecified(), 0))
		txp.ObserveRawQuery = lc.observeQuery
		txp.ObserveRawResponse = lc.observeResponse
		return txp.ExchangeWithConn(ctx, conn, query)
	}

	txp := dnsoverstream.NewTransport(
		dnsoverstream.NewStreamOpenerDialerTCP(dnsUnusedDialer{}),
		netip.AddrPortFrom(netip.IPv4Unspecified(), 0),
	)
	txp.ObserveRawQuery = lc.observeQuery
	txp.ObserveRawResponse = lc.observeResponse
	if tconn, ok := conn.(TLSConn); ok {
		return txp.ExchangeWithStreamOpener(ctx, dnsoverstream.NewTLSStreamOpener(tconn), query)
	}
	return txp.ExchangeWithStreamOpener(ctx, dnsoverstream.NewTCPStreamOpener(conn), query)
}

// dnsUnusedDialer is a [Dialer] that panics if DialContext is called.
type dnsUnusedDialer struct{}

var _ Dialer = dnsUnusedDialer{}

// DialContext implements [Dialer] and always panics.
func (dnsUnusedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	panic("instr: DNS transport must not dial")
}
