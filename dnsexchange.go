// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// dnsExchangeLogContext holds the logging state of one DNS exchange.
type dnsExchangeLogContext struct {
	ErrClassifier  ErrClassifier
	Logger         SLogger
	ServerProtocol string
	TimeNow        func() time.Time

	endpoint []any
	rawQuery []byte
}

func newDNSExchangeLogContext(resolver *DNSResolver, conn net.Conn) *dnsExchangeLogContext {
	return &dnsExchangeLogContext{
		ErrClassifier:  resolver.ErrClassifier,
		Logger:         resolver.Logger,
		ServerProtocol: resolver.Protocol,
		TimeNow:        resolver.TimeNow,
		endpoint: []any{
			slog.String("localAddr", safeconn.LocalAddr(conn)),
			slog.String("protocol", safeconn.Network(conn)),
			slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
			slog.String("serverProtocol", resolver.Protocol),
		},
	}
}

func (lc *dnsExchangeLogContext) attrs(extra ...any) []any {
	return append(extra, lc.endpoint...)
}

func (lc *dnsExchangeLogContext) logStart(t0, deadline time.Time) {
	lc.Logger.Info("dnsExchangeStart", lc.attrs(
		slog.Time("deadline", deadline),
		slog.Time("t", t0),
	)...)
}

func (lc *dnsExchangeLogContext) logDone(t0, deadline time.Time, err error) {
	lc.Logger.Info("dnsExchangeDone", lc.attrs(
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", lc.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", lc.TimeNow()),
	)...)
}

func (lc *dnsExchangeLogContext) observeQuery(rawQuery []byte) {
	lc.rawQuery = rawQuery
	lc.Logger.Info("dnsQuery", lc.attrs(
		slog.Any("dnsRawQuery", rawQuery),
		slog.Time("t", lc.TimeNow()),
	)...)
}

func (lc *dnsExchangeLogContext) observeResponse(rawResp []byte) {
	lc.Logger.Info("dnsResponse", lc.attrs(
		slog.Any("dnsRawQuery", lc.rawQuery),
		slog.Any("dnsRawResponse", rawResp),
		slog.Time("t", lc.TimeNow()),
	)...)
}
