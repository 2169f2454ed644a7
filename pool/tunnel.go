// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gogama/httptxn/internal/wire"
	"github.com/gogama/httptxn/neterr"
	"github.com/gogama/httptxn/response"
)

// maxTunnelResponse bounds the header block of a CONNECT response.
const maxTunnelResponse = 16 * 1024

// A TunnelAuthError reports that the proxy answered a CONNECT request
// with 407 Proxy Authentication Required. It wraps
// neterr.TunnelConnectionFailed.
type TunnelAuthError struct {
	// Response is the parsed 407 response, whose AuthChallenge is set
	// when the proxy sent a parseable Proxy-Authenticate header.
	Response *response.Info
}

func (err *TunnelAuthError) Error() string {
	return "httptxn/pool: proxy requires authentication for tunnel"
}

// Unwrap returns neterr.TunnelConnectionFailed.
func (err *TunnelAuthError) Unwrap() error {
	return neterr.TunnelConnectionFailed
}

func (d *Dialer) tunnel(ctx context.Context, nc net.Conn, opts ConnectOptions) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CONNECT %s HTTP/1.1\r\n", opts.Tunnel)
	fmt.Fprintf(&b, "Host: %s\r\n", opts.Tunnel)
	b.WriteString("Proxy-Connection: keep-alive\r\n")
	if opts.UserAgent != "" {
		fmt.Fprintf(&b, "User-Agent: %s\r\n", opts.UserAgent)
	}
	if opts.ProxyAuthorization != "" {
		fmt.Fprintf(&b, "Proxy-Authorization: %s\r\n", opts.ProxyAuthorization)
	}
	b.WriteString("\r\n")

	req := []byte(b.String())
	for len(req) > 0 {
		n, err := d.do(ctx, nc, req, nc.Write)
		if err != nil {
			return err
		}
		req = req[n:]
	}

	buf := make([]byte, 0, 1024)
	end := -1
	for end < 0 {
		if len(buf) >= maxTunnelResponse {
			return neterr.Wrap(neterr.TunnelConnectionFailed, neterr.ResponseHeadersTooBig)
		}
		if len(buf) == cap(buf) {
			grown := make([]byte, len(buf), 2*cap(buf))
			copy(grown, buf)
			buf = grown
		}
		n, err := d.do(ctx, nc, buf[len(buf):cap(buf)], nc.Read)
		buf = buf[:len(buf)+n]
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return neterr.Wrap(neterr.TunnelConnectionFailed, err)
		}
		end = wire.FindEndOfHeaders(buf)
	}

	info, err := response.Parse(buf[:end], "CONNECT")
	if err != nil {
		return neterr.Wrap(neterr.TunnelConnectionFailed, err)
	}
	switch {
	case info.StatusCode == http.StatusProxyAuthRequired:
		return &TunnelAuthError{Response: info}
	case info.StatusCode/100 != 2:
		return neterr.Wrap(neterr.TunnelConnectionFailed, fmt.Errorf("proxy responded %q", info.StatusLine))
	case end < len(buf):
		return neterr.Wrap(neterr.TunnelConnectionFailed, fmt.Errorf("proxy sent %d bytes after tunnel response", len(buf)-end))
	}
	d.Logger.Debug().Str("tunnel", opts.Tunnel).Msg("tunnel established")
	return nil
}
