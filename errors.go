// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httptxn

import "errors"

var (
	// ErrPending is returned by Transaction methods that completed
	// asynchronously. The callback passed to the method will be called
	// exactly once with the result.
	ErrPending = errors.New("httptxn: operation pending")

	// ErrBusy is returned when a Transaction method is called while
	// another operation on the same transaction is still pending.
	ErrBusy = errors.New("httptxn: transaction busy")

	// ErrClosed is returned when a method is called on a closed
	// Transaction.
	ErrClosed = errors.New("httptxn: transaction closed")

	// ErrNotStarted is returned when Read or a restart method is
	// called on a Transaction that has no response or error to act on.
	ErrNotStarted = errors.New("httptxn: transaction not started")

	// ErrNotIgnorable is returned by RestartIgnoringLastError when the
	// last error was not a certificate error that can be ignored.
	ErrNotIgnorable = errors.New("httptxn: last error can not be ignored")

	// ErrNoAuthChallenge is returned by RestartWithAuth when the
	// current response carries no authentication challenge.
	ErrNoAuthChallenge = errors.New("httptxn: no authentication challenge")

	// ErrUnsupportedAuthScheme is returned by RestartWithAuth when the
	// challenge uses a scheme other than Basic.
	ErrUnsupportedAuthScheme = errors.New("httptxn: unsupported authentication scheme")
)
