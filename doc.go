// SPDX-License-Identifier: GPL-3.0-or-later

// Package instr resolves laboratory instrument addresses and opens
// connections to the instruments they name.
//
// # Addresses
//
// [Parse] (or [*Parser.Parse]) accepts four address grammars, tried in
// this order, case-insensitively and ignoring whitespace:
//
//	gpib<board>::<primary>[::<secondary>][::instr]     GPIBAddress
//	tcpip<board>::<host>::<port>::socket                VisaSocketAddress
//	tcpip<board>::<host>[::instr]                       VXI11Address
//	<host>:<port>                                       SocketAddress
//
// Every [Address] freezes a lowercase canonical string at construction.
// Parsing the canonical string again yields an equal value, so addresses
// are usable as map keys. Host tokens become a [NetworkAddress]: numeric
// literals and loopback aliases (including the machine hostname) are
// normalized, and anything else matching the hostname grammar is kept as
// a raw host that is looked up only at connect time.
//
// # Connections
//
// [*ConnectFunc] opens a [Conn] for an [Address]. GPIB, VXI-11 and VISA
// socket addresses go through a native VISA driver loaded once per
// process by the [*Registry] (see package visa). Socket addresses are
// dialed over TCP, and VISA socket addresses can fall back to TCP when
// the driver is missing (see [Config.SocketFallback]).
//
// Both connection kinds share the same framing: a [Termination] suffix
// or a fixed frame size, plus a per-operation timeout. A connection is
// not safe for concurrent use.
//
// # Errors
//
// Parsing, connecting and connection I/O return errors wrapping
// [ErrParseFailed], [ErrConnectionFailed], [ErrFunctionFailure],
// [ErrConflictingSettings] or [ErrTimeout]. Driver load failures also
// wrap [ErrBinary] or [ErrOpenSession]. Use [errors.Is] to test the kind.
// [DefaultErrClassifier] turns errors into short labels for logs.
//
// # Observability
//
// Operations log through an [SLogger], which [*slog.Logger] satisfies.
// Logging is disabled by default. Lifecycle events come in *Start/*Done
// pairs at [slog.LevelInfo]; completion events carry t0, err and errClass.
// Per-I/O events use [slog.LevelDebug]. Attach a [NewSpanID] value to the
// logger to correlate the events of one connection.
//
// # Hostname lookup
//
// Raw hosts are looked up through [Config.Resolver], which defaults to
// the system resolver. Use [*DNSResolver] to query a lab DNS server over
// UDP, TCP, TLS or HTTPS instead.
package instr
