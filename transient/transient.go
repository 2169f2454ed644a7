// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/gogama/httptxn/neterr"
)

// A Category is the recovery class of a particular error, as reported
// by function Categorize.
//
// The category Not means the error belongs to no recovery class and
// is fatal to the transaction. All other categories name a condition
// the transaction engine may recover from, subject to its own bounded
// retry rules.
type Category int

const (
	// Not indicates any error with no recovery class.
	Not Category = iota
	// Timeout indicates a timeout enforced by the socket or connect
	// layer.
	//
	// Categorize returns Timeout if the error or any of its wrapped
	// causes has a Timeout() function that reports true, or is the
	// code neterr.TimedOut.
	Timeout
	// ConnRefused indicates the remote host refused the connection,
	// and corresponds to the POSIX error code ECONNREFUSED.
	ConnRefused
	// ConnReset indicates the remote host reset a previously active
	// TCP connection (ECONNRESET), or a write hit a broken pipe
	// (EPIPE).
	ConnReset
	// ConnClosed indicates the peer closed the connection where more
	// data was expected (io.EOF, io.ErrUnexpectedEOF, net.ErrClosed).
	ConnClosed
	// ConnAborted indicates the connection was aborted locally
	// (ECONNABORTED).
	ConnAborted
	// NameNotResolved indicates a host name lookup failure.
	NameNotResolved
	// ProtocolVersion indicates a TLS protocol or version mismatch,
	// typical of servers that are intolerant of newer TLS versions.
	ProtocolVersion
	// Certificate indicates the server certificate failed
	// verification.
	Certificate
)

var categoryNames = []string{
	"Not",
	"Timeout",
	"ConnRefused",
	"ConnReset",
	"ConnClosed",
	"ConnAborted",
	"NameNotResolved",
	"ProtocolVersion",
	"Certificate",
}

// String returns the name of the category.
func (cat Category) String() string {
	if cat < 0 || int(cat) >= len(categoryNames) {
		return "Unknown"
	}
	return categoryNames[cat]
}

// Stale reports whether cat is one of the classes that indicate a
// reused keep-alive connection went stale: ConnReset, ConnClosed, or
// ConnAborted.
func (cat Category) Stale() bool {
	return cat == ConnReset || cat == ConnClosed || cat == ConnAborted
}

// ProxyFallback reports whether cat is one of the connection-class
// errors that justify trying the next proxy candidate:
// NameNotResolved, ConnRefused, or Timeout.
func (cat Category) ProxyFallback() bool {
	return cat == NameNotResolved || cat == ConnRefused || cat == Timeout
}

// Categorize returns the recovery category of the given error. A nil
// error, and an error with no recovery class, both produce Not.
//
// In assessing the category, Categorize looks at wrapped cause errors
// contained within err, not just err itself. Stable codes from package
// neterr take precedence over the causes they wrap.
func Categorize(err error) Category {
	if err == nil {
		return Not
	}

	if code, ok := codeOf(err); ok {
		return categoryOf(code)
	}

	var hasTimeout hasTimeout
	if errors.As(err, &hasTimeout) && hasTimeout.Timeout() {
		return Timeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET, syscall.EPIPE:
			return ConnReset
		case syscall.ECONNREFUSED:
			return ConnRefused
		case syscall.ECONNABORTED:
			return ConnAborted
		}
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return ConnClosed
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NameNotResolved
	}

	if certCode(err) != 0 {
		return Certificate
	}

	if tlsVersionError(err) {
		return ProtocolVersion
	}

	return Not
}

// Code translates err into a stable error code. A nil error produces
// the zero Code. An error already carrying a neterr code produces that
// code; errors without a recovery class produce neterr.Failed, except
// context cancellation, which produces neterr.Aborted.
func Code(err error) neterr.Code {
	if err == nil {
		return 0
	}
	if code, ok := codeOf(err); ok {
		return code
	}
	if c := certCode(err); c != 0 {
		return c
	}
	switch Categorize(err) {
	case Timeout:
		return neterr.TimedOut
	case ConnRefused:
		return neterr.ConnectionRefused
	case ConnReset:
		return neterr.ConnectionReset
	case ConnClosed:
		return neterr.ConnectionClosed
	case ConnAborted:
		return neterr.ConnectionAborted
	case NameNotResolved:
		return neterr.NameNotResolved
	case ProtocolVersion:
		return neterr.SSLProtocolError
	}
	if errors.Is(err, context.Canceled) {
		return neterr.Aborted
	}
	return neterr.Failed
}

func codeOf(err error) (neterr.Code, bool) {
	var ne *neterr.Error
	if errors.As(err, &ne) {
		return ne.Code, true
	}
	var code neterr.Code
	if errors.As(err, &code) {
		return code, true
	}
	return 0, false
}

func categoryOf(code neterr.Code) Category {
	switch code {
	case neterr.TimedOut:
		return Timeout
	case neterr.ConnectionRefused:
		return ConnRefused
	case neterr.ConnectionReset:
		return ConnReset
	case neterr.ConnectionClosed:
		return ConnClosed
	case neterr.ConnectionAborted:
		return ConnAborted
	case neterr.NameNotResolved:
		return NameNotResolved
	case neterr.SSLProtocolError, neterr.SSLVersionOrCipherMismatch:
		return ProtocolVersion
	}
	if code.IsCertificate() {
		return Certificate
	}
	return Not
}

func certCode(err error) neterr.Code {
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return neterr.CertCommonNameInvalid
	}
	var authErr x509.UnknownAuthorityError
	if errors.As(err, &authErr) {
		return neterr.CertAuthorityInvalid
	}
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &invalidErr) {
		if invalidErr.Reason == x509.Expired {
			return neterr.CertDateInvalid
		}
		return neterr.CertInvalid
	}
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return neterr.CertInvalid
	}
	return 0
}

// TLS alerts that servers intolerant of newer protocol versions send
// in response to a ClientHello they do not understand.
const (
	alertHandshakeFailure = 40
	alertProtocolVersion  = 70
)

func tlsVersionError(err error) bool {
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return alert == alertProtocolVersion || alert == alertHandshakeFailure
	}
	var recordErr tls.RecordHeaderError
	return errors.As(err, &recordErr)
}

type hasTimeout interface {
	Timeout() bool
}
