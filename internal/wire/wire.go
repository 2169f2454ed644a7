// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package wire builds HTTP/1.1 request header blocks and locates and
// decodes the framing of HTTP/1.x responses.
package wire

import (
	"bytes"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/gogama/httptxn/request"
	"golang.org/x/net/http/httpguts"
)

// RequestOptions carries the per-attempt inputs of BuildRequest that
// are not part of the logical request.
type RequestOptions struct {
	// ViaProxy selects the absolute request URI and Proxy-Connection
	// header used when sending through an HTTP proxy without a tunnel.
	ViaProxy bool
	// ContentLength is the upload size. A negative value means no
	// upload.
	ContentLength int64
	// Credentials are authentication header fields to include.
	Credentials request.Header
}

// engineFields are header names the engine generates itself; caller
// supplied fields with these names are dropped.
var engineFields = []string{"Host", "Connection", "Proxy-Connection", "Content-Length"}

// ValidateHeader reports the first field of h whose name or value is
// not valid on the wire.
func ValidateHeader(h request.Header) error {
	for _, f := range h {
		if !httpguts.ValidHeaderFieldName(f.Name) {
			return fmt.Errorf("httptxn/wire: invalid header field name %q", f.Name)
		}
		if !httpguts.ValidHeaderFieldValue(f.Value) {
			return fmt.Errorf("httptxn/wire: invalid header field value for %q", f.Name)
		}
	}
	return nil
}

// BuildRequest returns the request line and header block for r,
// terminated by a blank line.
func BuildRequest(r *request.Request, opts RequestOptions) []byte {
	var b bytes.Buffer
	method := r.EffectiveMethod()
	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(requestURI(r.URL, opts.ViaProxy))
	b.WriteString(" HTTP/1.1\r\n")

	writeField(&b, "Host", HostHeader(r.URL))
	if opts.ViaProxy {
		writeField(&b, "Proxy-Connection", "keep-alive")
	} else {
		writeField(&b, "Connection", "keep-alive")
	}
	if r.UserAgent != "" {
		writeField(&b, "User-Agent", r.UserAgent)
	}
	if ref := r.ValidReferrer(); ref != "" {
		writeField(&b, "Referer", ref)
	}
	if opts.ContentLength >= 0 {
		writeField(&b, "Content-Length", strconv.FormatInt(opts.ContentLength, 10))
	} else if method == "POST" || method == "PUT" || method == "HEAD" {
		writeField(&b, "Content-Length", "0")
	}
	if r.LoadFlags.Has(request.BypassCache) {
		writeField(&b, "Pragma", "no-cache")
		writeField(&b, "Cache-Control", "no-cache")
	} else if r.LoadFlags.Has(request.ValidateCache) {
		writeField(&b, "Cache-Control", "max-age=0")
	}
	for _, f := range opts.Credentials {
		writeField(&b, f.Name, f.Value)
	}
	for _, f := range r.Header {
		if isEngineField(f.Name) {
			continue
		}
		writeField(&b, f.Name, f.Value)
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// HostHeader returns the Host header value for u: the host, plus the
// port when it is not the scheme default.
func HostHeader(u *url.URL) string {
	host := u.Hostname()
	if strings.IndexByte(host, ':') >= 0 {
		host = "[" + host + "]"
	}
	port := u.Port()
	if port == "" || port == DefaultPort(u.Scheme) {
		return host
	}
	return host + ":" + port
}

// HostPort returns "host:port" for u, filling in the scheme default
// port.
func HostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = DefaultPort(u.Scheme)
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// DefaultPort returns the default port of an http or https scheme.
func DefaultPort(scheme string) string {
	if strings.EqualFold(scheme, "https") {
		return "443"
	}
	return "80"
}

// FindEndOfHeaders returns the offset just past the blank line ending
// the header block in buf, or -1 if the block is incomplete. Both CRLF
// and bare LF line endings are accepted.
func FindEndOfHeaders(buf []byte) int {
	for i := 0; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		if i+1 < len(buf) && buf[i+1] == '\n' {
			return i + 2
		}
		if i+2 < len(buf) && buf[i+1] == '\r' && buf[i+2] == '\n' {
			return i + 3
		}
	}
	return -1
}

// HasStatusLine reports whether buf starts like an HTTP/1.x status
// line. It needs at least four bytes to decide; with fewer it reports
// true so the caller keeps reading.
func HasStatusLine(buf []byte) bool {
	if len(buf) < 4 {
		return bytes.HasPrefix([]byte("HTTP"), bytes.ToUpper(buf))
	}
	return bytes.EqualFold(buf[:4], []byte("HTTP"))
}

func requestURI(u *url.URL, viaProxy bool) string {
	if viaProxy {
		abs := *u
		abs.User = nil
		abs.Fragment = ""
		abs.RawFragment = ""
		return abs.String()
	}
	return u.RequestURI()
}

func writeField(b *bytes.Buffer, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

func isEngineField(name string) bool {
	for _, f := range engineFields {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}
