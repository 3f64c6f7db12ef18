// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bassosimone/instr/visa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instr.yaml")
	content := `
driver:
  variant: keysight
connectTimeout: 3s
socketFallback: true
dns:
  server: 10.0.0.1
  protocol: dot
  tlsServerName: dns.lab
instruments:
  scope: TCPIP0::10.0.0.9::INSTR
  psu: GPIB0::5::INSTR
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	fc, err := LoadFileConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "keysight", fc.Driver.Variant)
	assert.Equal(t, 3*time.Second, fc.ConnectTimeout)
	assert.True(t, fc.SocketFallback)
	assert.Equal(t, "TCPIP0::10.0.0.9::INSTR", fc.Lookup("scope"))
	assert.Equal(t, "GPIB0::7", fc.Lookup("GPIB0::7"))

	cfg := NewConfig()
	require.NoError(t, fc.Apply(cfg, DefaultSLogger()))

	assert.Equal(t, visa.Keysight, cfg.Variant)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.True(t, cfg.SocketFallback)
	resolver, ok := cfg.Resolver.(*DNSResolver)
	require.True(t, ok)
	assert.Equal(t, DNSProtocolDoT, resolver.Protocol)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:853"), resolver.Server)
	assert.Equal(t, "dns.lab", resolver.TLSConfig.ServerName)
}

func TestLoadFileConfigMissing(t *testing.T) {
	_, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodeFileConfig(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		fc, err := decodeFileConfig(strings.NewReader(""))
		require.NoError(t, err)

		cfg := NewConfig()
		require.NoError(t, fc.Apply(cfg, DefaultSLogger()))
		assert.Equal(t, visa.Primary, cfg.Variant)
		assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
		assert.False(t, cfg.SocketFallback)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := decodeFileConfig(strings.NewReader("sockteFallback: true\n"))
		assert.ErrorContains(t, err, "invalid configuration")
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := decodeFileConfig(strings.NewReader("connectTimeout: soon\n"))
		assert.Error(t, err)
	})
}

func TestFileConfigApply(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// fc is the file configuration to apply.
		fc FileConfig

		// wantErr is a substring of the expected error, if any.
		wantErr string

		// check inspects the resulting config on success.
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "custom path wins over the variant",
			fc:   FileConfig{Driver: FileDriverConfig{Variant: "keysight", Path: "/opt/visa/libvisa.so"}},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, visa.Custom("/opt/visa/libvisa.so"), cfg.Variant)
			},
		},

		{
			name: "udp resolver with explicit port",
			fc:   FileConfig{DNS: FileDNSConfig{Server: "10.0.0.1:5353"}},
			check: func(t *testing.T, cfg *Config) {
				resolver := cfg.Resolver.(*DNSResolver)
				assert.Equal(t, DNSProtocolUDP, resolver.Protocol)
				assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:5353"), resolver.Server)
			},
		},

		{
			name: "tcp resolver with default port",
			fc:   FileConfig{DNS: FileDNSConfig{Server: "10.0.0.1", Protocol: "TCP"}},
			check: func(t *testing.T, cfg *Config) {
				resolver := cfg.Resolver.(*DNSResolver)
				assert.Equal(t, DNSProtocolTCP, resolver.Protocol)
				assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:53"), resolver.Server)
			},
		},

		{
			name: "doh resolver with custom url",
			fc:   FileConfig{DNS: FileDNSConfig{Server: "10.0.0.1", Protocol: "doh", URL: "https://10.0.0.1/lab-query"}},
			check: func(t *testing.T, cfg *Config) {
				resolver := cfg.Resolver.(*DNSResolver)
				assert.Equal(t, DNSProtocolDoH, resolver.Protocol)
				assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:443"), resolver.Server)
				assert.Equal(t, "https://10.0.0.1/lab-query", resolver.URL)
			},
		},

		{
			name: "doh resolver with default url",
			fc:   FileConfig{DNS: FileDNSConfig{Server: "10.0.0.1", Protocol: "doh"}},
			check: func(t *testing.T, cfg *Config) {
				resolver := cfg.Resolver.(*DNSResolver)
				assert.Equal(t, "https://10.0.0.1:443/dns-query", resolver.URL)
			},
		},

		{
			name:    "unknown variant",
			fc:      FileConfig{Driver: FileDriverConfig{Variant: "rohde"}},
			wantErr: `unknown driver variant "rohde"`,
		},

		{
			name:    "unknown protocol",
			fc:      FileConfig{DNS: FileDNSConfig{Server: "10.0.0.1", Protocol: "doq"}},
			wantErr: `unsupported DNS protocol "doq"`,
		},

		{
			name:    "hostname server",
			fc:      FileConfig{DNS: FileDNSConfig{Server: "dns.lab"}},
			wantErr: `invalid DNS server "dns.lab"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := tt.fc.Apply(cfg, DefaultSLogger())

			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Equal(t, visa.Primary, cfg.Variant)
				assert.Equal(t, NewConfig().Resolver, cfg.Resolver)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
