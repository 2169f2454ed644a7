// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"net/http"
	"time"

	"github.com/gogama/httptxn/response"
	"github.com/gogama/httptxn/transient"
)

// An Execution represents the state of one transaction executing a
// Request.
//
// A transaction creates an Execution when it is created, updates it as
// the transaction progresses (for example when the response headers
// arrive, or when the engine restarts internally after a recoverable
// failure), and hands it to event handlers. The Client returns the
// Execution of the last transaction it ran.
//
// Event handlers may set values on an Execution using its SetValue
// method and read them back using the Value method. They should treat
// the exported field values as immutable.
type Execution struct {
	// Request is the request being executed. It is set when the
	// transaction starts and does not change thereafter.
	Request *Request

	// ID uniquely identifies the transaction. It is also the "txn"
	// field of every log event the transaction emits.
	ID string

	// Start is the time the transaction started. It is assigned a
	// non-zero value by Start, and this value remains constant
	// thereafter.
	Start time.Time

	// End is the time the transaction was closed. It contains the zero
	// value until then.
	End time.Time

	// Attempt is the zero-based number of the transaction within a
	// sequence of whole-request retries made by the Client. It is zero
	// for transactions not driven by a Client.
	Attempt int

	// AttemptTimeouts counts the preceding transactions in the same
	// Client retry sequence that ended with a timeout. Timeout
	// policies use it to lengthen later attempts.
	AttemptTimeouts int

	// Restarts counts the internal restarts made by the transaction:
	// stale connection retries, TLS version fallback, proxy fallback,
	// and restarts with credentials or ignored certificate errors.
	Restarts int

	// RestartReason names the cause of the most recent internal
	// restart. It is empty when Restarts is zero.
	RestartReason string

	// Proxy describes the route of the current connection attempt, for
	// example "DIRECT" or "PROXY proxy.example.com:8080". It is empty
	// until the proxy has been resolved.
	Proxy string

	// Response is the parsed final response of the most recent
	// connection attempt. It is nil until the response headers have
	// been received, and reset to nil by an internal restart.
	Response *response.Info

	// Err is the error which ended the most recent operation of the
	// transaction, or nil.
	Err error

	// BodyBytes counts the decoded response body bytes delivered to
	// the caller so far.
	BodyBytes int64

	// Body is the complete response body. It is only set by the Client,
	// which buffers the body.
	Body []byte

	data context.Context
}

// StatusCode returns the status code of the response. If there is no
// response, 0 is returned.
func (e *Execution) StatusCode() int {
	if e.Response == nil {
		return 0
	}

	return e.Response.StatusCode
}

// Header returns the response headers. If there is no response, the nil
// header is returned.
//
// A nil return value is always safe for read-only operations, since
// http.Header is a map type.
func (e *Execution) Header() http.Header {
	if e.Response == nil {
		var nilHeader http.Header
		return nilHeader
	}

	return e.Response.Header
}

// Duration returns the duration of the execution.
//
// If the execution has not yet started, the duration is zero. If the
// execution has Ended, the duration returned is equal to End minus
// Start. Otherwise, it is equal to the current time minus Start.
func (e *Execution) Duration() time.Duration {
	if !e.Started() {
		return time.Duration(0)
	} else if !e.Ended() {
		return time.Since(e.Start)
	}

	return e.End.Sub(e.Start)
}

// Started indicates whether the execution has started.
func (e *Execution) Started() bool {
	return e.Start != (time.Time{})
}

// Ended indicates whether the execution has ended.
//
// If the return value is true, End is a non-zero time and there will be
// no further changes to the execution.
func (e *Execution) Ended() bool {
	return e.End != (time.Time{})
}

// Timeout indicates whether Err currently contains a non-nil value
// which indicates a timeout.
func (e *Execution) Timeout() bool {
	cat := transient.Categorize(e.Err)
	return cat == transient.Timeout
}

// SetValue allows event handlers to store arbitrary data in the
// execution.
//
// The key must follow the same rules as the key parameter in
// context.WithValue, namely it:
//
// • it may not be nil;
//
// • it must be comparable;
//
// • it should not be of type string or any other built-in type to avoid
// collisions between different event handlers putting data into the
// same execution.
func (e *Execution) SetValue(key, value interface{}) {
	ctx := e.data
	if ctx == nil {
		ctx = context.Background()
	}

	e.data = context.WithValue(ctx, key, value)
}

// Value returns the data value associated with this execution for key,
// or nil if there is no value associated with key.
func (e *Execution) Value(key interface{}) interface{} {
	ctx := e.data
	if ctx == nil {
		return nil
	}

	return ctx.Value(key)
}
