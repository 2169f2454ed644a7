// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"time"

	"github.com/gogama/httptxn/neterr"
	"github.com/gogama/httptxn/transient"
)

func (d *Dialer) handshake(ctx context.Context, nc net.Conn, opts ConnectOptions) (*tls.Conn, error) {
	cfg := &tls.Config{
		ServerName: opts.ServerName,
		// Verification happens in VerifyConnection so that individual
		// problem classes can be accepted.
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			return verifyPeer(cs, opts.ServerName, d.RootCAs, opts.SSL.IgnoredCertErrors, d.clock())
		},
	}
	if !opts.SSL.TLS13Enabled {
		cfg.MaxVersion = tls.VersionTLS12
	}

	tc := tls.Client(nc, cfg)
	hctx, cancel := context.WithTimeout(ctx, d.connectTimeout())
	defer cancel()
	if err := tc.HandshakeContext(hctx); err != nil {
		d.Logger.Debug().Str("server_name", opts.ServerName).Err(err).Msg("tls handshake failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	state := tc.ConnectionState()
	d.Logger.Debug().
		Str("server_name", opts.ServerName).
		Str("version", tls.VersionName(state.Version)).
		Msg("tls handshake complete")
	return tc, nil
}

// verifyPeer verifies the server certificate chain and host name,
// accepting the problem classes in ignored. It returns the first
// problem not ignored, wrapped with its neterr code.
func verifyPeer(cs tls.ConnectionState, serverName string, roots *x509.CertPool, ignored CertErrors, now time.Time) error {
	if len(cs.PeerCertificates) == 0 {
		return neterr.Wrap(neterr.CertInvalid, errors.New("no peer certificate"))
	}
	leaf := cs.PeerCertificates[0]
	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: x509.NewCertPool(),
		CurrentTime:   now,
	}
	for _, c := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(c)
	}

	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		if !ignored.Has(CertDateInvalid) {
			return neterr.Wrap(neterr.CertDateInvalid, x509.CertificateInvalidError{Cert: leaf, Reason: x509.Expired})
		}
		opts.CurrentTime = leaf.NotBefore.Add(leaf.NotAfter.Sub(leaf.NotBefore) / 2)
	}

	if _, err := leaf.Verify(opts); err != nil {
		code := transient.Code(err)
		class, ignorable := CertErrorsFor(code)
		if !ignorable {
			return neterr.Wrap(neterr.CertInvalid, err)
		}
		if !ignored.Has(class) {
			return neterr.Wrap(code, err)
		}
	}

	if err := leaf.VerifyHostname(serverName); err != nil && !ignored.Has(CertCommonNameInvalid) {
		return neterr.Wrap(neterr.CertCommonNameInvalid, err)
	}
	return nil
}
