// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httptxn

// An Event identifies the event type when installing or running a
// Handler. Install event handlers in a Session or a Client to observe
// transactions.
//
// Handlers run on the goroutine executing the transaction, so they must
// not call back into the Transaction they observe.
type Event int

const (
	// BeforeStart identifies the event that occurs when Start is
	// called, after the request has been validated.
	//
	// When a Transaction fires BeforeStart, the execution's request,
	// ID, start time, and attempt fields are set.
	BeforeStart Event = iota
	// AfterProxyResolved identifies the event that occurs after the
	// route of a connection attempt has been decided, including after
	// a proxy fallback.
	//
	// When a Transaction fires AfterProxyResolved, the execution's
	// proxy field describes the chosen route.
	AfterProxyResolved
	// AfterAdmission identifies the event that occurs after the
	// connection throttle admitted the transaction to send to its
	// destination.
	AfterAdmission
	// BeforeSend identifies the event that occurs immediately before
	// the request headers are written to a connection. It fires once
	// per request sent, so it fires again after every internal
	// restart.
	BeforeSend
	// AfterRestart identifies the event that occurs after the
	// transaction decided to restart internally.
	//
	// When a Transaction fires AfterRestart, the execution's restart
	// counter has been incremented and its restart reason is set.
	AfterRestart
	// AfterHeaders identifies the event that occurs after the final
	// response headers have been parsed, before they are delivered to
	// the caller.
	//
	// When a Transaction fires AfterHeaders, the execution's response
	// field is set. AfterHeaders does not fire for interim responses,
	// nor for challenges the transaction answers internally with
	// cached credentials.
	AfterHeaders
	// AfterBodyEOF identifies the event that occurs after the last
	// byte of the response body was delivered to the caller.
	AfterBodyEOF
	// AfterEnd identifies the event that occurs when the transaction is
	// closed.
	//
	// When a Transaction fires AfterEnd, the execution's end time is
	// set, and its error field holds the error, if any, which ended
	// the last operation.
	AfterEnd
	// eventSentinel provides the total number of events typed as an
	// Event.
	eventSentinel

	// numEvents provides the total number of events types as an int.
	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"BeforeStart",
	"AfterProxyResolved",
	"AfterAdmission",
	"BeforeSend",
	"AfterRestart",
	"AfterHeaders",
	"AfterBodyEOF",
	"AfterEnd",
}

// Events returns a slice containing all events which can occur in a
// transaction, in the order in which they would first occur.
func Events() []Event {
	return []Event{
		BeforeStart,
		AfterProxyResolved,
		AfterAdmission,
		BeforeSend,
		AfterRestart,
		AfterHeaders,
		AfterBodyEOF,
		AfterEnd,
	}
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
