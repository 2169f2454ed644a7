// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package response parses HTTP/1.x response header blocks and derives
// how the response body is framed.
//
// Parsing is deliberately lenient, in the manner of browsers rather
// than of strict servers: a malformed status code is taken to be 200,
// a malformed version to be HTTP/1.0, and header lines without a colon
// are skipped.
package response

import (
	"bytes"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/gogama/httptxn/auth"
	"github.com/gogama/httptxn/neterr"
	"golang.org/x/net/http/httpguts"
)

// Framing identifies how the end of a response body is determined.
type Framing int

const (
	// UntilClose means the body extends until the server closes the
	// connection.
	UntilClose Framing = iota
	// ContentLength means the body is exactly Info.ContentLength bytes.
	ContentLength
	// Chunked means the body uses chunked transfer coding and ends at
	// the terminating zero-size chunk.
	Chunked
)

var framingNames = []string{"UntilClose", "ContentLength", "Chunked"}

// String returns the name of the framing mode.
func (f Framing) String() string {
	if f < 0 || int(f) >= len(framingNames) {
		return "Unknown"
	}
	return framingNames[f]
}

// An Info describes a parsed final (or interim) response.
//
// An Info is built once per successful header parse and is not
// modified afterward, except that the transaction fills in the
// timestamps and the challenger host.
type Info struct {
	// StatusLine is the normalized status line, for example
	// "HTTP/1.1 200 OK".
	StatusLine string
	// Proto is the protocol version, for example "HTTP/1.1".
	Proto      string
	ProtoMajor int
	ProtoMinor int
	// StatusCode is the numeric status code.
	StatusCode int
	// Header holds the response header fields, keyed by canonical
	// name.
	Header http.Header
	// Framing is the body framing mode derived from the status,
	// request method, and headers.
	Framing Framing
	// ContentLength is the body length when Framing is ContentLength,
	// and -1 otherwise.
	ContentLength int64
	// AuthChallenge is set for 401 and 407 responses that carry a
	// parseable challenge header.
	AuthChallenge *auth.Challenge
	// RequestTime is when the request headers were sent.
	RequestTime time.Time
	// ResponseTime is when the first byte of the response headers was
	// received.
	ResponseTime time.Time
}

// Parse parses a raw response header block, from the status line up to
// and including the terminating blank line. The method is the request
// method, which affects framing (responses to HEAD have no body).
//
// Parse returns an error wrapping neterr.InvalidResponse if raw does
// not begin with an HTTP status line.
func Parse(raw []byte, method string) (*Info, error) {
	lines := splitLines(raw)
	if len(lines) == 0 || !hasHTTPPrefix(lines[0]) {
		return nil, neterr.InvalidResponse
	}
	info := &Info{Header: make(http.Header)}
	info.parseStatusLine(lines[0])
	info.parseHeaderLines(lines[1:])
	info.deriveFraming(method)
	info.extractChallenge()
	return info, nil
}

// HTTP09 returns the Info synthesized for a response that has no
// status line: an HTTP/0.9 200 whose body is the entire stream.
func HTTP09() *Info {
	return &Info{
		StatusLine:    "HTTP/0.9 200 OK",
		Proto:         "HTTP/0.9",
		ProtoMajor:    0,
		ProtoMinor:    9,
		StatusCode:    http.StatusOK,
		Header:        make(http.Header),
		Framing:       UntilClose,
		ContentLength: -1,
	}
}

// IsInterim reports whether the response is a 100 Continue interim
// response, which is discarded in favor of the response that follows.
func (info *Info) IsInterim() bool {
	return info.StatusCode == http.StatusContinue
}

// KeepAlive reports whether the connection the response arrived on may
// carry another request once the body has been read: HTTP/1.1 unless
// the server sent "Connection: close", HTTP/1.0 only if the server sent
// "keep-alive".
func (info *Info) KeepAlive() bool {
	if info.ProtoMajor < 1 || info.Framing == UntilClose {
		return false
	}
	var conn []string
	conn = append(conn, info.Header.Values("Connection")...)
	conn = append(conn, info.Header.Values("Proxy-Connection")...)
	if info.ProtoMajor == 1 && info.ProtoMinor == 0 {
		return httpguts.HeaderValuesContainsToken(conn, "keep-alive")
	}
	return !httpguts.HeaderValuesContainsToken(conn, "close")
}

// HasBody reports whether the framing admits any body bytes.
func (info *Info) HasBody() bool {
	return info.Framing != ContentLength || info.ContentLength > 0
}

func (info *Info) parseStatusLine(line string) {
	line = strings.TrimSpace(line)
	version := line
	rest := ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		version = line[:i]
		rest = strings.TrimLeft(line[i+1:], " \t")
	}

	major, minor, ok := http.ParseHTTPVersion(strings.ToUpper(version))
	if !ok {
		major, minor = 1, 0
	}
	info.ProtoMajor, info.ProtoMinor = major, minor
	info.Proto = "HTTP/" + strconv.Itoa(major) + "." + strconv.Itoa(minor)

	code := rest
	reason := ""
	if i := strings.IndexAny(rest, " \t"); i >= 0 {
		code = rest[:i]
		reason = strings.TrimSpace(rest[i+1:])
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 100 || n > 999 {
		n = http.StatusOK
		reason = ""
	}
	info.StatusCode = n
	if reason == "" {
		reason = http.StatusText(n)
	}

	info.StatusLine = info.Proto + " " + strconv.Itoa(n)
	if reason != "" {
		info.StatusLine += " " + reason
	}
}

func (info *Info) parseHeaderLines(lines []string) {
	var last string
	for _, line := range lines {
		if line == "" {
			break
		}
		if (line[0] == ' ' || line[0] == '\t') && last != "" {
			vs := info.Header[last]
			vs[len(vs)-1] = strings.TrimSpace(vs[len(vs)-1] + " " + strings.TrimSpace(line))
			continue
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			last = ""
			continue
		}
		name := strings.TrimSpace(line[:i])
		if !httpguts.ValidHeaderFieldName(name) {
			last = ""
			continue
		}
		last = textproto.CanonicalMIMEHeaderKey(name)
		info.Header[last] = append(info.Header[last], strings.TrimSpace(line[i+1:]))
	}
}

func (info *Info) deriveFraming(method string) {
	info.ContentLength = -1
	switch {
	case info.StatusCode == http.StatusNoContent,
		info.StatusCode == http.StatusResetContent,
		info.StatusCode == http.StatusNotModified,
		strings.EqualFold(method, "HEAD"):
		info.Framing = ContentLength
		info.ContentLength = 0
	case info.chunked():
		info.Framing = Chunked
	default:
		if n, ok := info.contentLength(); ok {
			info.Framing = ContentLength
			info.ContentLength = n
		} else {
			info.Framing = UntilClose
		}
	}
}

func (info *Info) chunked() bool {
	if info.ProtoMajor == 1 && info.ProtoMinor == 0 {
		return false
	}
	return httpguts.HeaderValuesContainsToken(info.Header.Values("Transfer-Encoding"), "chunked")
}

func (info *Info) contentLength() (int64, bool) {
	vs := info.Header.Values("Content-Length")
	if len(vs) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(vs[0]), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	for _, v := range vs[1:] {
		if m, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil || m != n {
			return 0, false
		}
	}
	return n, true
}

func (info *Info) extractChallenge() {
	var target auth.Target
	switch info.StatusCode {
	case http.StatusUnauthorized:
		target = auth.Server
	case http.StatusProxyAuthRequired:
		target = auth.Proxy
	default:
		return
	}
	for _, v := range info.Header.Values(target.ChallengeHeader()) {
		if c, ok := auth.ParseChallenge(target, v); ok {
			info.AuthChallenge = &c
			return
		}
	}
}

func splitLines(raw []byte) []string {
	var lines []string
	for len(raw) > 0 {
		i := bytes.IndexByte(raw, '\n')
		var line []byte
		if i < 0 {
			line, raw = raw, nil
		} else {
			line, raw = raw[:i], raw[i+1:]
		}
		lines = append(lines, string(bytes.TrimSuffix(line, []byte{'\r'})))
	}
	return lines
}

func hasHTTPPrefix(line string) bool {
	return len(line) >= 4 && strings.EqualFold(line[:4], "HTTP")
}
