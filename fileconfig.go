// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/bassosimone/instr/visa"
	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration file format.
//
// Example:
//
//	driver:
//	  variant: keysight
//	connectTimeout: 3s
//	socketFallback: true
//	dns:
//	  server: 10.0.0.1
//	  protocol: udp
//	instruments:
//	  scope: TCPIP0::10.0.0.9::INSTR
//	  psu: GPIB0::5::INSTR
type FileConfig struct {
	// Driver selects the native driver binary.
	Driver FileDriverConfig `yaml:"driver"`

	// ConnectTimeout overrides [DefaultConnectTimeout] when positive.
	ConnectTimeout time.Duration `yaml:"connectTimeout"`

	// SocketFallback sets [Config.SocketFallback].
	SocketFallback bool `yaml:"socketFallback"`

	// DNS configures a [*DNSResolver] when Server is not empty.
	DNS FileDNSConfig `yaml:"dns"`

	// Instruments maps aliases to instrument addresses.
	Instruments map[string]string `yaml:"instruments"`
}

// FileDriverConfig is the driver section of [FileConfig].
type FileDriverConfig struct {
	// Variant is a name accepted by [visa.ParseVariant].
	Variant string `yaml:"variant"`

	// Path is a custom binary path. It takes precedence over Variant.
	Path string `yaml:"path"`
}

// FileDNSConfig is the dns section of [FileConfig].
type FileDNSConfig struct {
	// Server is "ip" or "ip:port". The default port is 53, 853 with
	// [DNSProtocolDoT] or 443 with [DNSProtocolDoH].
	Server string `yaml:"server"`

	// Protocol is [DNSProtocolUDP] (the default), [DNSProtocolTCP],
	// [DNSProtocolDoT] or [DNSProtocolDoH].
	Protocol string `yaml:"protocol"`

	// TLSServerName overrides the server name checked with DoT and DoH.
	TLSServerName string `yaml:"tlsServerName"`

	// URL overrides the DoH endpoint.
	URL string `yaml:"url"`
}

// LoadFileConfig reads a [*FileConfig] from path. Unknown keys are errors.
func LoadFileConfig(path string) (*FileConfig, error) {
	filep, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer filep.Close()
	return decodeFileConfig(filep)
}

func decodeFileConfig(r io.Reader) (*FileConfig, error) {
	fc := &FileConfig{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("instr: invalid configuration: %w", err)
	}
	return fc, nil
}

// Apply copies the file settings into cfg.
//
// The logger is used by the [*DNSResolver], if any. On error cfg is
// left unchanged.
func (fc *FileConfig) Apply(cfg *Config, logger SLogger) error {
	variant, err := fc.variant()
	if err != nil {
		return err
	}
	resolver, err := fc.resolver(cfg, logger)
	if err != nil {
		return err
	}
	cfg.Variant = variant
	if resolver != nil {
		cfg.Resolver = resolver
	}
	if fc.ConnectTimeout > 0 {
		cfg.ConnectTimeout = fc.ConnectTimeout
	}
	cfg.SocketFallback = cfg.SocketFallback || fc.SocketFallback
	return nil
}

func (fc *FileConfig) variant() (visa.Variant, error) {
	if fc.Driver.Path != "" {
		return visa.Custom(fc.Driver.Path), nil
	}
	return visa.ParseVariant(fc.Driver.Variant)
}

func (fc *FileConfig) resolver(cfg *Config, logger SLogger) (*DNSResolver, error) {
	if fc.DNS.Server == "" {
		return nil, nil
	}
	protocol := strings.ToLower(fc.DNS.Protocol)
	port := uint16(53)
	switch protocol {
	case "":
		protocol = DNSProtocolUDP
	case DNSProtocolUDP, DNSProtocolTCP:
	case DNSProtocolDoT:
		port = 853
	case DNSProtocolDoH:
		port = 443
	default:
		return nil, fmt.Errorf("instr: unsupported DNS protocol %q", fc.DNS.Protocol)
	}
	server, err := parseServer(fc.DNS.Server, port)
	if err != nil {
		return nil, err
	}
	resolver := NewDNSResolver(cfg, protocol, server, logger)
	if fc.DNS.TLSServerName != "" {
		resolver.TLSConfig.ServerName = fc.DNS.TLSServerName
	}
	if fc.DNS.URL != "" {
		resolver.URL = fc.DNS.URL
	}
	return resolver, nil
}

func parseServer(value string, port uint16) (netip.AddrPort, error) {
	if addr, err := netip.ParseAddr(value); err == nil {
		return netip.AddrPortFrom(addr, port), nil
	}
	server, err := netip.ParseAddrPort(value)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("instr: invalid DNS server %q: %w", value, err)
	}
	return server, nil
}

// Lookup returns the address registered for alias, or alias itself.
func (fc *FileConfig) Lookup(alias string) string {
	if addr, found := fc.Instruments[alias]; found {
		return addr
	}
	return alias
}
