// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httptxn

// A LoadState describes what a Transaction is currently waiting for.
type LoadState int

const (
	// Idle means no operation is outstanding.
	Idle LoadState = iota
	// ResolvingProxy means the proxy resolver is deciding the route.
	ResolvingProxy
	// WaitingForSlot means the connection throttle has not yet
	// admitted the transaction.
	WaitingForSlot
	// ResolvingHost means a host name lookup is outstanding.
	ResolvingHost
	// Connecting means a connection, tunnel, or TLS session is being
	// established.
	Connecting
	// SendingRequest means request headers or body are being written.
	SendingRequest
	// WaitingForResponse means the request was sent and the response
	// headers are awaited.
	WaitingForResponse
	// ReadingResponse means response body bytes are being read.
	ReadingResponse
)

var loadStateNames = []string{
	"Idle",
	"ResolvingProxy",
	"WaitingForSlot",
	"ResolvingHost",
	"Connecting",
	"SendingRequest",
	"WaitingForResponse",
	"ReadingResponse",
}

func (s LoadState) String() string {
	if s < 0 || int(s) >= len(loadStateNames) {
		return "LoadState(?)"
	}
	return loadStateNames[s]
}
