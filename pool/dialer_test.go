// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gogama/httptxn/auth"
	"github.com/gogama/httptxn/neterr"
	"github.com/gogama/httptxn/transient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func helloHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Length", "5")
	_, _ = w.Write([]byte("hello"))
}

// roundTrip writes a GET for / over h and returns the whole response,
// which must be five bytes of body framed by Content-Length.
func roundTrip(t *testing.T, h Handle) string {
	ctx := context.Background()
	_, err := h.Write(ctx, []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	require.NoError(t, err)
	var sb strings.Builder
	buf := make([]byte, 512)
	for !strings.HasSuffix(sb.String(), "hello") {
		n, err := h.Read(ctx, buf)
		require.NoError(t, err)
		sb.Write(buf[:n])
	}
	return sb.String()
}

func serverAddr(t *testing.T, srv *httptest.Server) string {
	return srv.Listener.Addr().String()
}

func rootsFor(srv *httptest.Server) *x509.CertPool {
	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())
	return roots
}

func TestDialer_PlainAndReuse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(helloHandler))
	defer srv.Close()
	d := NewDialer()
	defer d.CloseIdle()
	ctx := context.Background()

	h, err := d.Acquire(ctx, "g")
	require.NoError(t, err)
	assert.False(t, h.IsConnected())
	assert.False(t, h.IsReused())
	require.NoError(t, h.Connect(ctx, []string{serverAddr(t, srv)}, ConnectOptions{}))
	assert.True(t, h.IsConnected())
	assert.Contains(t, roundTrip(t, h), "HTTP/1.1 200 OK")

	h.Release(true)
	h.Release(true)
	assert.Equal(t, 1, d.IdleCount("g"))
	assert.Equal(t, 0, d.IdleCount("other"))

	h2, err := d.Acquire(ctx, "g")
	require.NoError(t, err)
	assert.True(t, h2.IsReused())
	assert.True(t, h2.IsConnected())
	assert.Contains(t, roundTrip(t, h2), "hello")
	h2.Release(false)
	assert.Equal(t, 0, d.IdleCount("g"))
}

func TestDialer_IdleExpiryAndCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(helloHandler))
	defer srv.Close()
	now := time.Now()
	d := &Dialer{MaxIdlePerGroup: 2, IdleTimeout: time.Minute, now: func() time.Time { return now }}
	defer d.CloseIdle()
	ctx := context.Background()

	handles := make([]Handle, 3)
	for i := range handles {
		h, err := d.Acquire(ctx, "g")
		require.NoError(t, err)
		require.NoError(t, h.Connect(ctx, []string{serverAddr(t, srv)}, ConnectOptions{}))
		handles[i] = h
	}
	for _, h := range handles {
		h.Release(true)
	}
	assert.Equal(t, 2, d.IdleCount("g"))

	now = now.Add(2 * time.Minute)
	h, err := d.Acquire(ctx, "g")
	require.NoError(t, err)
	assert.False(t, h.IsReused(), "expired idle connection must not be reused")
	assert.Equal(t, 0, d.IdleCount("g"))
}

func TestDialer_ConnectErrors(t *testing.T) {
	ctx := context.Background()
	d := NewDialer()

	t.Run("no addresses", func(t *testing.T) {
		h, _ := d.Acquire(ctx, "g")
		assert.ErrorIs(t, h.Connect(ctx, nil, ConnectOptions{}), neterr.NameNotResolved)
	})
	t.Run("refused", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := l.Addr().String()
		require.NoError(t, l.Close())
		h, _ := d.Acquire(ctx, "g")
		err = h.Connect(ctx, []string{addr}, ConnectOptions{})
		require.Error(t, err)
		assert.Equal(t, transient.ConnRefused, transient.Categorize(err))
	})
	t.Run("falls through to next address", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(helloHandler))
		defer srv.Close()
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		dead := l.Addr().String()
		require.NoError(t, l.Close())
		h, _ := d.Acquire(ctx, "g")
		require.NoError(t, h.Connect(ctx, []string{dead, serverAddr(t, srv)}, ConnectOptions{}))
		h.Release(false)
	})
	t.Run("cancelled acquire", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := d.Acquire(cctx, "g")
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run("unconnected io", func(t *testing.T) {
		h, _ := d.Acquire(ctx, "g")
		_, err := h.Read(ctx, make([]byte, 1))
		assert.ErrorIs(t, err, neterr.ConnectionClosed)
		_, err = h.Write(ctx, []byte("x"))
		assert.ErrorIs(t, err, neterr.ConnectionClosed)
	})
}

func TestDialer_CancelAndTimeout(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	t.Run("cancel", func(t *testing.T) {
		d := NewDialer()
		ctx, cancel := context.WithCancel(context.Background())
		h, _ := d.Acquire(ctx, "g")
		require.NoError(t, h.Connect(ctx, []string{l.Addr().String()}, ConnectOptions{}))
		defer h.Release(false)
		time.AfterFunc(50*time.Millisecond, cancel)
		_, err := h.Read(ctx, make([]byte, 1))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, neterr.Aborted, transient.Code(err))
	})
	t.Run("io timeout", func(t *testing.T) {
		d := &Dialer{IOTimeout: 50 * time.Millisecond}
		ctx := context.Background()
		h, _ := d.Acquire(ctx, "g")
		require.NoError(t, h.Connect(ctx, []string{l.Addr().String()}, ConnectOptions{}))
		defer h.Release(false)
		_, err := h.Read(ctx, make([]byte, 1))
		require.Error(t, err)
		assert.Equal(t, transient.Timeout, transient.Categorize(err))
	})
}

func TestDialer_TLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(helloHandler))
	defer srv.Close()
	ctx := context.Background()
	addrs := []string{serverAddr(t, srv)}

	connect := func(d *Dialer, opts ConnectOptions) (Handle, error) {
		h, err := d.Acquire(ctx, "tls")
		require.NoError(t, err)
		opts.TLS = true
		return h, h.Connect(ctx, addrs, opts)
	}

	t.Run("trusted", func(t *testing.T) {
		d := &Dialer{RootCAs: rootsFor(srv)}
		h, err := connect(d, ConnectOptions{ServerName: "example.com", SSL: DefaultSSLConfig()})
		require.NoError(t, err)
		assert.Contains(t, roundTrip(t, h), "hello")
		h.Release(false)
	})
	t.Run("tls 1.3 disabled", func(t *testing.T) {
		d := &Dialer{RootCAs: rootsFor(srv)}
		h, err := connect(d, ConnectOptions{ServerName: "example.com"})
		require.NoError(t, err)
		tc := h.(*handle).nc.(*tls.Conn)
		assert.Equal(t, uint16(tls.VersionTLS12), tc.ConnectionState().Version)
		h.Release(false)
	})
	t.Run("untrusted authority", func(t *testing.T) {
		d := &Dialer{RootCAs: x509.NewCertPool()}
		_, err := connect(d, ConnectOptions{ServerName: "example.com", SSL: DefaultSSLConfig()})
		assert.ErrorIs(t, err, neterr.CertAuthorityInvalid)
		assert.Equal(t, transient.Certificate, transient.Categorize(err))

		ssl := DefaultSSLConfig()
		ssl.IgnoredCertErrors = CertAuthorityInvalid
		h, err := connect(d, ConnectOptions{ServerName: "example.com", SSL: ssl})
		require.NoError(t, err)
		h.Release(false)
	})
	t.Run("name mismatch", func(t *testing.T) {
		d := &Dialer{RootCAs: rootsFor(srv)}
		_, err := connect(d, ConnectOptions{ServerName: "wrong.test", SSL: DefaultSSLConfig()})
		assert.ErrorIs(t, err, neterr.CertCommonNameInvalid)

		ssl := DefaultSSLConfig()
		ssl.IgnoredCertErrors = CertCommonNameInvalid
		h, err := connect(d, ConnectOptions{ServerName: "wrong.test", SSL: ssl})
		require.NoError(t, err)
		h.Release(false)
	})
	t.Run("expired", func(t *testing.T) {
		d := &Dialer{RootCAs: rootsFor(srv), now: func() time.Time { return srv.Certificate().NotAfter.Add(time.Hour) }}
		_, err := connect(d, ConnectOptions{ServerName: "example.com", SSL: DefaultSSLConfig()})
		assert.ErrorIs(t, err, neterr.CertDateInvalid)

		ssl := DefaultSSLConfig()
		ssl.IgnoredCertErrors = CertDateInvalid
		h, err := connect(d, ConnectOptions{ServerName: "example.com", SSL: ssl})
		require.NoError(t, err)
		h.Release(false)
	})
}

// fakeProxy accepts one connection, reads a CONNECT request header
// block, hands it to check, and writes reply. When tunnel is true it
// then echoes whatever it receives.
func fakeProxy(t *testing.T, reply string, tunnel bool, check func(req string)) net.Listener {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		r := bufio.NewReader(c)
		var req strings.Builder
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			req.WriteString(line)
			if line == "\r\n" {
				break
			}
		}
		check(req.String())
		_, _ = io.WriteString(c, reply)
		if tunnel {
			_, _ = io.Copy(c, r)
		}
	}()
	return l
}

func TestDialer_Tunnel(t *testing.T) {
	ctx := context.Background()

	t.Run("established", func(t *testing.T) {
		reqs := make(chan string, 1)
		l := fakeProxy(t, "HTTP/1.1 200 Connection established\r\n\r\n", true, func(req string) { reqs <- req })
		defer l.Close()
		d := NewDialer()
		h, _ := d.Acquire(ctx, "proxy/p:80/")
		require.NoError(t, h.Connect(ctx, []string{l.Addr().String()}, ConnectOptions{
			Tunnel:             "example.com:443",
			ProxyAuthorization: "Basic dTpw",
			UserAgent:          "ua/1",
		}))
		defer h.Release(false)
		assert.Equal(t, "CONNECT example.com:443 HTTP/1.1\r\n"+
			"Host: example.com:443\r\n"+
			"Proxy-Connection: keep-alive\r\n"+
			"User-Agent: ua/1\r\n"+
			"Proxy-Authorization: Basic dTpw\r\n"+
			"\r\n", <-reqs)

		_, err := h.Write(ctx, []byte("ping"))
		require.NoError(t, err)
		buf := make([]byte, 4)
		_, err = io.ReadFull(readerFunc(func(p []byte) (int, error) { return h.Read(ctx, p) }), buf)
		require.NoError(t, err)
		assert.Equal(t, "ping", string(buf))
	})
	t.Run("auth required", func(t *testing.T) {
		l := fakeProxy(t, "HTTP/1.1 407 Proxy Authentication Required\r\n"+
			"Proxy-Authenticate: Basic realm=\"corp\"\r\nContent-Length: 0\r\n\r\n", false, func(string) {})
		defer l.Close()
		d := NewDialer()
		h, _ := d.Acquire(ctx, "proxy/p:80/")
		err := h.Connect(ctx, []string{l.Addr().String()}, ConnectOptions{Tunnel: "example.com:443"})
		assert.ErrorIs(t, err, neterr.TunnelConnectionFailed)
		var authErr *TunnelAuthError
		require.True(t, errors.As(err, &authErr))
		require.NotNil(t, authErr.Response.AuthChallenge)
		assert.Equal(t, auth.Proxy, authErr.Response.AuthChallenge.Target)
		assert.Equal(t, "corp", authErr.Response.AuthChallenge.Realm)
		assert.False(t, h.IsConnected())
	})
	t.Run("refused by proxy", func(t *testing.T) {
		l := fakeProxy(t, "HTTP/1.1 403 Forbidden\r\n\r\n", false, func(string) {})
		defer l.Close()
		d := NewDialer()
		h, _ := d.Acquire(ctx, "proxy/p:80/")
		err := h.Connect(ctx, []string{l.Addr().String()}, ConnectOptions{Tunnel: "example.com:443"})
		assert.ErrorIs(t, err, neterr.TunnelConnectionFailed)
	})
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

func TestCertErrors(t *testing.T) {
	all := CertCommonNameInvalid | CertDateInvalid | CertAuthorityInvalid
	assert.True(t, all.Has(CertDateInvalid))
	assert.False(t, CertDateInvalid.Has(all))

	c, ok := CertErrorsFor(neterr.CertAuthorityInvalid)
	assert.True(t, ok)
	assert.Equal(t, CertAuthorityInvalid, c)
	_, ok = CertErrorsFor(neterr.CertInvalid)
	assert.False(t, ok)
	_, ok = CertErrorsFor(neterr.ConnectionReset)
	assert.False(t, ok)
}

func TestResolvers(t *testing.T) {
	ctx := context.Background()

	addrs, err := SystemResolver{}.LookupHost(ctx, "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1"}, addrs)

	r := StaticResolver{"example.com": {"10.0.0.1", "10.0.0.2"}}
	addrs, err = r.LookupHost(ctx, "example.com")
	require.NoError(t, err)
	assert.Len(t, addrs, 2)
	_, err = r.LookupHost(ctx, "missing.test")
	assert.ErrorIs(t, err, neterr.NameNotResolved)
	assert.Equal(t, transient.NameNotResolved, transient.Categorize(err))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = r.LookupHost(cctx, "example.com")
	assert.ErrorIs(t, err, context.Canceled)
}
