// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"net"
	"time"

	"github.com/bassosimone/instr/visa"
)

// DefaultConnectTimeout bounds resolving and dialing socket endpoints.
const DefaultConnectTimeout = 2 * time.Second

// Config holds common configuration for instr operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// ConnectTimeout bounds hostname resolution and the TCP dial.
	//
	// Set by [NewConfig] to [DefaultConnectTimeout].
	ConnectTimeout time.Duration

	// Dialer is used by [*DialFunc].
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// Hostname returns the name of the executing machine.
	//
	// Set by [NewConfig] to [LocalHostname].
	Hostname func() string

	// Registry provides native driver bindings.
	//
	// Set by [NewConfig] to [DefaultRegistry].
	Registry *Registry

	// Resolver looks up raw hostnames at connect time.
	//
	// Set by [NewConfig] to [net.DefaultResolver].
	Resolver Resolver

	// SocketFallback makes VISA socket addresses use a raw TCP
	// stream when the native driver is not available.
	//
	// Set by [NewConfig] to false.
	SocketFallback bool

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time

	// Variant selects the native driver.
	//
	// Set by [NewConfig] to [visa.Primary].
	Variant visa.Variant
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		ConnectTimeout: DefaultConnectTimeout,
		Dialer:         &net.Dialer{},
		ErrClassifier:  DefaultErrClassifier,
		Hostname:       LocalHostname,
		Registry:       DefaultRegistry(),
		Resolver:       net.DefaultResolver,
		SocketFallback: false,
		TimeNow:        time.Now,
		Variant:        visa.Primary,
	}
}
