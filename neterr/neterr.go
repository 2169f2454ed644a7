// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package neterr defines the stable error codes reported by the
// transaction engine and its collaborators.
//
// Every Code is itself an error, so callers can test for a specific
// failure with errors.Is regardless of how deeply the code is wrapped:
//
//	if errors.Is(err, neterr.ConnectionReset) {
//		...
//	}
//
// Collaborators (connection pools, resolvers) that know the precise
// cause of a failure should return it wrapped with Wrap, so that both
// the stable code and the underlying cause remain available.
package neterr

import "fmt"

// A Code is a stable, comparable identifier for a class of network or
// protocol failure.
type Code int

const (
	// Failed is the generic failure code used when no more specific
	// code applies.
	Failed Code = iota + 1
	// Aborted indicates the operation was cancelled by the caller.
	Aborted
	// ConnectionClosed indicates the peer closed the connection
	// (a TCP FIN, or io.EOF where more data was expected).
	ConnectionClosed
	// ConnectionReset indicates the peer reset the connection (a TCP
	// RST).
	ConnectionReset
	// ConnectionRefused indicates the remote host refused the
	// connection attempt.
	ConnectionRefused
	// ConnectionAborted indicates the connection was aborted locally,
	// for example because an acknowledgement was never received.
	ConnectionAborted
	// ConnectionFailed indicates a connection attempt failed for a
	// reason not covered by a more specific code.
	ConnectionFailed
	// NameNotResolved indicates the host name could not be resolved.
	NameNotResolved
	// AddressUnreachable indicates the address is not reachable.
	AddressUnreachable
	// TimedOut indicates an operation timed out.
	TimedOut
	// SSLProtocolError indicates the TLS handshake failed because of a
	// protocol or version mismatch with the server.
	SSLProtocolError
	// SSLVersionOrCipherMismatch indicates the server and client share
	// no protocol version or cipher suite.
	SSLVersionOrCipherMismatch
	// CertCommonNameInvalid indicates the server certificate does not
	// match the host name.
	CertCommonNameInvalid
	// CertDateInvalid indicates the server certificate is expired or
	// not yet valid.
	CertDateInvalid
	// CertAuthorityInvalid indicates the server certificate is not
	// signed by a trusted authority.
	CertAuthorityInvalid
	// CertInvalid indicates any other certificate problem. It can not
	// be ignored.
	CertInvalid
	// TunnelConnectionFailed indicates a CONNECT tunnel through a proxy
	// could not be established.
	TunnelConnectionFailed
	// ProxyConnectionFailed indicates every proxy candidate failed.
	ProxyConnectionFailed
	// EmptyResponse indicates the server closed the connection without
	// sending any response data.
	EmptyResponse
	// ResponseHeadersTooBig indicates the response header block
	// exceeded the maximum allowed size.
	ResponseHeadersTooBig
	// InvalidResponse indicates the response could not be parsed.
	InvalidResponse
	// InvalidChunkedEncoding indicates a malformed chunked body.
	InvalidChunkedEncoding
	// InvalidURL indicates the request URL is not usable.
	InvalidURL
	// UnsupportedScheme indicates the URL scheme is not http or https.
	UnsupportedScheme
	// FileNotFound indicates an upload file could not be found.
	FileNotFound
	// UploadFileChanged indicates an upload file ended before the
	// length it had when the upload was sized.
	UploadFileChanged
	// UnexpectedProxyAuth indicates a proxy asked for authentication
	// on a request that was not sent through a proxy.
	UnexpectedProxyAuth
	// codeSentinel marks the end of the code list.
	codeSentinel
)

var codeNames = [...]string{
	Failed:                     "failed",
	Aborted:                    "aborted",
	ConnectionClosed:           "connection closed",
	ConnectionReset:            "connection reset",
	ConnectionRefused:          "connection refused",
	ConnectionAborted:          "connection aborted",
	ConnectionFailed:           "connection failed",
	NameNotResolved:            "name not resolved",
	AddressUnreachable:         "address unreachable",
	TimedOut:                   "timed out",
	SSLProtocolError:           "ssl protocol error",
	SSLVersionOrCipherMismatch: "ssl version or cipher mismatch",
	CertCommonNameInvalid:      "certificate common name invalid",
	CertDateInvalid:            "certificate date invalid",
	CertAuthorityInvalid:       "certificate authority invalid",
	CertInvalid:                "certificate invalid",
	TunnelConnectionFailed:     "tunnel connection failed",
	ProxyConnectionFailed:      "proxy connection failed",
	EmptyResponse:              "empty response",
	ResponseHeadersTooBig:      "response headers too big",
	InvalidResponse:            "invalid response",
	InvalidChunkedEncoding:     "invalid chunked encoding",
	InvalidURL:                 "invalid url",
	UnsupportedScheme:          "unsupported scheme",
	FileNotFound:               "file not found",
	UploadFileChanged:          "upload file changed",
	UnexpectedProxyAuth:        "unexpected proxy auth",
}

// Name returns the short name of the code.
func (c Code) Name() string {
	if c <= 0 || c >= codeSentinel {
		return fmt.Sprintf("code(%d)", int(c))
	}
	return codeNames[c]
}

// Error returns the error string for the code.
func (c Code) Error() string {
	return "httptxn: " + c.Name()
}

// String returns the name of the code.
func (c Code) String() string {
	return c.Name()
}

// IsCertificate reports whether c is one of the certificate error
// codes.
func (c Code) IsCertificate() bool {
	return c >= CertCommonNameInvalid && c <= CertInvalid
}

// Timeout reports whether c is TimedOut.
func (c Code) Timeout() bool {
	return c == TimedOut
}

// An Error pairs a stable Code with the underlying cause.
type Error struct {
	Code  Code
	Cause error
}

// Wrap returns an *Error carrying code and cause. If cause is nil, the
// bare code is returned.
func Wrap(code Code, cause error) error {
	if cause == nil {
		return code
	}
	return &Error{Code: code, Cause: cause}
}

func (err *Error) Error() string {
	return fmt.Sprintf("%s: %v", err.Code.Error(), err.Cause)
}

// Unwrap returns the underlying cause.
func (err *Error) Unwrap() error {
	return err.Cause
}

// Timeout reports whether the code of err is TimedOut, so that
// wrapping errors such as *url.Error report timeouts.
func (err *Error) Timeout() bool {
	return err.Code.Timeout()
}

// Is reports whether target is the same Code as err.
func (err *Error) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == err.Code
}
