// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package pool provides the connection layer consumed by the
// transaction engine: a pool of reusable connections keyed by
// destination group, the handles through which a transaction connects,
// reads, and writes, and host name resolution.
//
// All blocking methods take a context.Context. Cancelling the context
// interrupts an outstanding operation promptly, which is what allows a
// transaction to be closed while an I/O operation is in flight.
package pool

import (
	"context"

	"github.com/gogama/httptxn/neterr"
)

// A Pool hands out connection handles by destination group.
//
// Implementations must be safe for concurrent use by multiple
// goroutines.
type Pool interface {
	// Acquire returns a handle for group. The handle is either an idle
	// connection previously released as reusable (IsReused reports
	// true), or an unconnected handle the caller must Connect.
	Acquire(ctx context.Context, group string) (Handle, error)
	// CloseIdle closes every idle connection.
	CloseIdle()
}

// A Handle is exclusively owned by one transaction between Acquire and
// Release. A Handle is not safe for concurrent use, except that Release
// may be called while no other method is executing.
type Handle interface {
	// IsConnected reports whether the handle holds an open connection.
	IsConnected() bool
	// IsReused reports whether the connection was obtained from the
	// idle list rather than freshly connected.
	IsReused() bool
	// Connect opens a connection to the first reachable address of
	// addrs (each "ip:port"), then establishes the tunnel and TLS
	// session called for by opts.
	Connect(ctx context.Context, addrs []string, opts ConnectOptions) error
	// Read reads from the connection. It returns io.EOF when the peer
	// closed the connection.
	Read(ctx context.Context, p []byte) (int, error)
	// Write writes to the connection.
	Write(ctx context.Context, p []byte) (int, error)
	// Release gives the handle back to the pool. If reusable is true
	// and the handle is connected, the connection becomes idle and may
	// be handed out by a later Acquire for the same group; otherwise it
	// is closed. Release is idempotent.
	Release(reusable bool)
}

// ConnectOptions describe how a handle connects.
type ConnectOptions struct {
	// Tunnel, if not empty, is the "host:port" to request from an HTTP
	// proxy with the CONNECT method after the TCP connection to the
	// proxy is open.
	Tunnel string
	// ProxyAuthorization, if not empty, is sent as the
	// Proxy-Authorization header of the CONNECT request.
	ProxyAuthorization string
	// UserAgent, if not empty, is sent with the CONNECT request.
	UserAgent string
	// TLS selects a TLS session on top of the (possibly tunnelled)
	// connection.
	TLS bool
	// ServerName is the host name the server certificate must match.
	ServerName string
	// SSL is the TLS configuration of the attempt.
	SSL SSLConfig
}

// SSLConfig is the per-transaction TLS configuration. The transaction
// engine changes it between attempts: the version fallback clears
// TLS13Enabled, and RestartIgnoringLastError widens IgnoredCertErrors.
type SSLConfig struct {
	// TLS13Enabled allows TLS 1.3. When false, the handshake offers at
	// most TLS 1.2.
	TLS13Enabled bool
	// IgnoredCertErrors are certificate problem classes to accept.
	IgnoredCertErrors CertErrors
}

// DefaultSSLConfig returns the configuration new transactions start
// with: every protocol version enabled and no certificate problem
// ignored.
func DefaultSSLConfig() SSLConfig {
	return SSLConfig{TLS13Enabled: true}
}

// CertErrors is a set of ignorable certificate problem classes.
type CertErrors uint8

const (
	// CertCommonNameInvalid is a name mismatch.
	CertCommonNameInvalid CertErrors = 1 << iota
	// CertDateInvalid is an expired or not-yet-valid certificate.
	CertDateInvalid
	// CertAuthorityInvalid is an untrusted issuer.
	CertAuthorityInvalid
)

// Has reports whether every class in other is in e.
func (e CertErrors) Has(other CertErrors) bool {
	return e&other == other
}

// CertErrorsFor returns the class matching code, and false if code is
// not an ignorable certificate error.
func CertErrorsFor(code neterr.Code) (CertErrors, bool) {
	switch code {
	case neterr.CertCommonNameInvalid:
		return CertCommonNameInvalid, true
	case neterr.CertDateInvalid:
		return CertDateInvalid, true
	case neterr.CertAuthorityInvalid:
		return CertAuthorityInvalid, true
	}
	return 0, false
}
