// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"errors"
	"fmt"
	urlpkg "net/url"
	"strings"

	"github.com/gogama/httptxn/neterr"
	"golang.org/x/net/http/httpguts"
)

const (
	nilCtxMsg = "httptxn/request: nil context"
)

// LoadFlags modify how a transaction loads a request.
type LoadFlags uint32

const (
	// BypassCache asks every cache between the client and the origin
	// to ignore its stored copy (Pragma: no-cache and Cache-Control:
	// no-cache are sent).
	BypassCache LoadFlags = 1 << iota
	// ValidateCache asks caches to revalidate their stored copy with
	// the origin (Cache-Control: max-age=0 is sent).
	ValidateCache
	// IgnoreCertCommonNameInvalid accepts a server certificate whose
	// names do not match the host.
	IgnoreCertCommonNameInvalid
	// IgnoreCertDateInvalid accepts an expired or not-yet-valid server
	// certificate.
	IgnoreCertDateInvalid
	// IgnoreCertAuthorityInvalid accepts a server certificate signed
	// by an untrusted authority.
	IgnoreCertAuthorityInvalid
	// BypassProxy pins the request to a direct connection, regardless
	// of what the session's proxy resolver would decide.
	BypassProxy
)

// IgnoreCertErrors is the union of all IgnoreCert* flags.
const IgnoreCertErrors = IgnoreCertCommonNameInvalid | IgnoreCertDateInvalid | IgnoreCertAuthorityInvalid

// Has reports whether every flag in g is set in f.
func (f LoadFlags) Has(g LoadFlags) bool {
	return f&g == g
}

// A Request describes one logical HTTP request for execution by a
// transaction.
//
// A Request is treated as immutable once a transaction has started
// executing it. The engine may make several attempts to send the same
// logical Request (for example after a stale keep-alive connection is
// detected, or after the caller supplies credentials), and each attempt
// reads the same Request.
type Request struct {
	// Method specifies the HTTP method (GET, POST, PUT, etc.).
	// An empty string means GET.
	Method string

	// URL specifies the URL to access. Only the http and https schemes
	// are supported.
	URL *urlpkg.URL

	// Header contains extra request header fields, written after the
	// headers the engine generates and in the order given.
	Header Header

	// Upload is the optional request body. A nil Upload means no body
	// is sent.
	Upload *UploadData

	// LoadFlags modify cache-control headers, certificate tolerance,
	// and proxy selection.
	LoadFlags LoadFlags

	// UserAgent, if not empty, is sent as the User-Agent header.
	UserAgent string

	// Referrer, if valid, is sent as the Referer header. A referrer is
	// valid when it is an absolute http or https URL; invalid
	// referrers are silently dropped. The fragment and any embedded
	// credentials are never sent.
	Referrer *urlpkg.URL

	// Proxy, if not nil, pins the request to the given HTTP proxy.
	// A pinned proxy is never reconsidered after a connection failure.
	Proxy *urlpkg.URL

	// ctx controls the entire transaction. It should only be modified
	// by copying the whole Request using WithContext.
	ctx context.Context
}

// NewRequest wraps NewRequestWithContext using the background context.
func NewRequest(method, url string, upload *UploadData) (*Request, error) {
	return NewRequestWithContext(context.Background(), method, url, upload)
}

// NewRequestWithContext returns a new Request given a method, URL, and
// optional upload body.
//
// The URL must be absolute and use the http or https scheme.
func NewRequestWithContext(ctx context.Context, method, url string, upload *UploadData) (*Request, error) {
	if ctx == nil {
		return nil, errors.New(nilCtxMsg)
	}
	if method == "" {
		method = "GET"
	}
	if !validMethod(method) {
		return nil, fmt.Errorf("httptxn/request: invalid method %q", method)
	}
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, neterr.Wrap(neterr.InvalidURL, err)
	}
	if err = checkURL(u); err != nil {
		return nil, err
	}
	u.Host = removeEmptyPort(u.Host)
	return &Request{
		ctx:    ctx,
		Method: method,
		URL:    u,
		Upload: upload,
	}, nil
}

// Context returns the request's context. The context controls
// cancellation of the whole transaction. To change the context, use
// WithContext.
//
// The returned context is always non-nil; it defaults to the
// background context.
func (r *Request) Context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of r with its context changed to
// ctx, which must be non-nil.
func (r *Request) WithContext(ctx context.Context) *Request {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	r2 := new(Request)
	*r2 = *r
	r2.ctx = ctx
	return r2
}

// Validate reports whether r can be executed by a transaction.
func (r *Request) Validate() error {
	if r.URL == nil {
		return neterr.InvalidURL
	}
	if r.Method != "" && !validMethod(r.Method) {
		return fmt.Errorf("httptxn/request: invalid method %q", r.Method)
	}
	return checkURL(r.URL)
}

// EffectiveMethod returns the request method, defaulting to GET.
func (r *Request) EffectiveMethod() string {
	if r.Method == "" {
		return "GET"
	}
	return r.Method
}

// IsSecure reports whether the request URL uses the https scheme.
func (r *Request) IsSecure() bool {
	return strings.EqualFold(r.URL.Scheme, "https")
}

// ValidReferrer returns the referrer to send, or the empty string if
// Referrer is absent or invalid.
func (r *Request) ValidReferrer() string {
	ref := r.Referrer
	if ref == nil || !ref.IsAbs() || ref.Host == "" {
		return ""
	}
	scheme := strings.ToLower(ref.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	clean := *ref
	clean.User = nil
	clean.Fragment = ""
	clean.RawFragment = ""
	return clean.String()
}

func checkURL(u *urlpkg.URL) error {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return neterr.InvalidURL
	default:
		return neterr.Wrap(neterr.UnsupportedScheme, fmt.Errorf("scheme %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return neterr.InvalidURL
	}
	return nil
}

func validMethod(method string) bool {
	/*
	     Method         = "OPTIONS"                ; Section 9.2
	                    | "GET"                    ; Section 9.3
	                    | "HEAD"                   ; Section 9.4
	                    | "POST"                   ; Section 9.5
	                    | "PUT"                    ; Section 9.6
	                    | "DELETE"                 ; Section 9.7
	                    | "TRACE"                  ; Section 9.8
	                    | "CONNECT"                ; Section 9.9
	                    | extension-method
	   extension-method = token
	     token          = 1*<any CHAR except CTLs or separators>
	*/
	return len(method) > 0 && strings.IndexFunc(method, isNotToken) == -1
}

func isNotToken(r rune) bool {
	return !httpguts.IsTokenRune(r)
}

// hasPort is lifted verbatim from net/http/http.go
//
// Given a string of the form "host", "host:port", or "[ipv6::address]:port",
// return true if the string includes a port.
func hasPort(s string) bool { return strings.LastIndex(s, ":") > strings.LastIndex(s, "]") }

// removeEmptyPort is lifted verbatim from net/http/http.go
//
// removeEmptyPort strips the empty port in ":port" to ""
// as mandated by RFC 3986 Section 6.2.3.
func removeEmptyPort(host string) string {
	if hasPort(host) {
		return strings.TrimSuffix(host, ":")
	}
	return host
}
