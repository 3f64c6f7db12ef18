// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bassosimone/tlsstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
)

// funcRoundTripper implements [http.RoundTripper] using a function.
type funcRoundTripper func(*http.Request) (*http.Response, error)

func (f funcRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// newStubTLSConn returns a [*tlsstub.FuncTLSConn] that negotiated alpn.
func newStubTLSConn(alpn string) *tlsstub.FuncTLSConn {
	return &tlsstub.FuncTLSConn{
		FuncConn: newMinimalConn(),
		ConnectionStateFunc: func() tls.ConnectionState {
			return tls.ConnectionState{NegotiatedProtocol: alpn}
		},
		HandshakeContextFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

func TestHTTPConnFunc(t *testing.T) {
	tests := []struct {
		// alpn is the negotiated protocol.
		alpn string

		// wantHTTP2 is true when the HTTP/2 transport is expected.
		wantHTTP2 bool
	}{
		{alpn: "h2", wantHTTP2: true},
		{alpn: "http/1.1", wantHTTP2: false},
		{alpn: "", wantHTTP2: false},
	}

	for _, tt := range tests {
		t.Run("alpn="+tt.alpn, func(t *testing.T) {
			tconn := newStubTLSConn(tt.alpn)

			hc, err := NewHTTPConnFunc(NewConfig(), DefaultSLogger()).Call(context.Background(), tconn)

			require.NoError(t, err)
			assert.Same(t, tconn, hc.Conn())
			_, isHTTP2 := hc.txp.(*http2.Transport)
			assert.Equal(t, tt.wantHTTP2, isHTTP2)
		})
	}
}

// newFuncHTTPConn returns an [*HTTPConn] whose transport is txp.
func newFuncHTTPConn(txp funcRoundTripper, logger SLogger) *HTTPConn {
	return &HTTPConn{
		conn:          newMinimalConn(),
		txp:           txp,
		closeIdle:     func() {},
		ErrClassifier: DefaultErrClassifier,
		Logger:        logger,
		TimeNow:       time.Now,
	}
}

func TestHTTPConnRoundTrip(t *testing.T) {
	t.Run("success logs the exchange and the body", func(t *testing.T) {
		logger, records := newCapturingLogger()
		hc := newFuncHTTPConn(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("ACME")),
			}, nil
		}, logger)
		req, err := http.NewRequest(http.MethodPost, "https://10.0.0.1/dns-query", nil)
		require.NoError(t, err)

		resp, err := hc.RoundTrip(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.NoError(t, resp.Body.Close())

		assert.Equal(t, "ACME", string(body))
		assert.Equal(t, []string{"httpRoundTripStart", "httpRoundTripDone", "httpBodyDone"}, messages(*records))
		value, found := attrValue((*records)[1], "httpResponseStatusCode")
		require.True(t, found)
		assert.Equal(t, int64(http.StatusOK), value.Int64())
		value, found = attrValue((*records)[2], "httpBodyLength")
		require.True(t, found)
		assert.Equal(t, int64(4), value.Int64())
	})

	t.Run("failure", func(t *testing.T) {
		wantErr := errors.New("connection reset by peer")
		logger, records := newCapturingLogger()
		hc := newFuncHTTPConn(func(req *http.Request) (*http.Response, error) {
			return nil, wantErr
		}, logger)
		req, err := http.NewRequest(http.MethodGet, "https://10.0.0.1/dns-query", nil)
		require.NoError(t, err)

		resp, err := hc.RoundTrip(req)

		assert.ErrorIs(t, err, wantErr)
		assert.Nil(t, resp)
		assert.Equal(t, []string{"httpRoundTripStart", "httpRoundTripDone"}, messages(*records))
	})
}

func TestHTTPConnClose(t *testing.T) {
	idleClosed, connClosed := false, false
	conn := newMinimalConn()
	conn.CloseFunc = func() error {
		connClosed = true
		return nil
	}
	hc := &HTTPConn{conn: conn, closeIdle: func() { idleClosed = true }}

	require.NoError(t, hc.Close())

	assert.True(t, idleClosed)
	assert.True(t, connClosed)
}
