// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package neterr

import (
	"errors"
	"fmt"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	assert.Equal(t, "connection reset", ConnectionReset.Name())
	assert.Equal(t, "httptxn: connection reset", ConnectionReset.Error())
	assert.Equal(t, "code(0)", Code(0).Name())
	assert.Equal(t, "code(999)", Code(999).String())
	for c := Failed; c < codeSentinel; c++ {
		assert.NotEmpty(t, codeNames[c], "missing name for code %d", int(c))
	}
}

func TestCode_IsCertificate(t *testing.T) {
	assert.True(t, CertCommonNameInvalid.IsCertificate())
	assert.True(t, CertDateInvalid.IsCertificate())
	assert.True(t, CertAuthorityInvalid.IsCertificate())
	assert.True(t, CertInvalid.IsCertificate())
	assert.False(t, SSLProtocolError.IsCertificate())
	assert.False(t, TunnelConnectionFailed.IsCertificate())
}

func TestWrap(t *testing.T) {
	t.Run("nil cause", func(t *testing.T) {
		assert.Equal(t, TimedOut, Wrap(TimedOut, nil))
	})
	t.Run("with cause", func(t *testing.T) {
		err := Wrap(ConnectionReset, syscall.ECONNRESET)
		assert.True(t, errors.Is(err, ConnectionReset))
		assert.False(t, errors.Is(err, ConnectionClosed))
		assert.True(t, errors.Is(err, syscall.ECONNRESET))
		assert.Equal(t, fmt.Sprintf("httptxn: connection reset: %v", syscall.ECONNRESET), err.Error())
	})
	t.Run("deeply wrapped", func(t *testing.T) {
		err := &url.Error{Op: "Get", URL: "http://example.com", Err: Wrap(NameNotResolved, errors.New("no such host"))}
		assert.True(t, errors.Is(err, NameNotResolved))
		var ne *Error
		assert.True(t, errors.As(err, &ne))
		assert.Equal(t, NameNotResolved, ne.Code)
	})
}

func TestTimeout(t *testing.T) {
	assert.True(t, TimedOut.Timeout())
	assert.False(t, ConnectionReset.Timeout())
	err := &url.Error{Op: "Get", URL: "http://example.com", Err: Wrap(TimedOut, errors.New("deadline"))}
	assert.True(t, err.Timeout())
	err.Err = Wrap(ConnectionRefused, errors.New("refused"))
	assert.False(t, err.Timeout())
}
