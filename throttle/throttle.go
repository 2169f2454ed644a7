// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package throttle bounds the number of concurrent in-flight sends per
// destination, queuing excess sends in strict FIFO order.
//
// A destination is a connection group key: an origin such as
// "https://example.com:443" or a proxy endpoint such as
// "proxy/proxy.example:3128/". A Throttle is typically owned by a
// session and shared by every transaction created against it.
package throttle

import (
	"context"
	"sync"
)

const (
	// DefaultLimit is the default maximum number of concurrent
	// admitted sends per destination.
	DefaultLimit = 6
	// DefaultCompactThreshold is the default number of tracked
	// destinations above which idle destinations are forgotten.
	DefaultCompactThreshold = 64
)

// A Throttle admits sends per destination. Up to Limit sends per
// destination are in flight at any instant; further sends wait in a
// FIFO queue and are issued, one per NotifyDone, in the order they
// were submitted.
//
// A Throttle is safe for concurrent use by multiple goroutines. The
// issue functions passed to Submit are always invoked without the
// Throttle's lock held, so they may call back into the Throttle.
type Throttle struct {
	limit            int
	compactThreshold int

	lock  sync.Mutex
	dests map[string]*destination
}

type destination struct {
	inFlight int
	queue    []*Ticket
}

// A Ticket identifies one submitted send.
type Ticket struct {
	t     *Throttle
	dest  string
	size  int64
	ctx   context.Context
	issue func()
	state ticketState
}

type ticketState int

const (
	queued ticketState = iota
	issued
	finished
)

// New returns a Throttle admitting at most limit concurrent sends per
// destination and compacting its bookkeeping once more than
// compactThreshold destinations are tracked. Non-positive arguments
// select DefaultLimit and DefaultCompactThreshold.
func New(limit, compactThreshold int) *Throttle {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if compactThreshold <= 0 {
		compactThreshold = DefaultCompactThreshold
	}
	return &Throttle{
		limit:            limit,
		compactThreshold: compactThreshold,
		dests:            make(map[string]*destination),
	}
}

// Limit returns the per-destination ceiling.
func (t *Throttle) Limit() int {
	return t.limit
}

// Submit submits a send to dest. If fewer than Limit sends are in
// flight for dest, the send is admitted at once: the in-flight count is
// incremented and issue is called before Submit returns. Otherwise the
// send is appended to the destination's queue and issue is called later
// from whichever goroutine calls NotifyDone for dest.
//
// The size and ctx are carried on the returned Ticket for the benefit
// of the issuer; the Throttle does not interpret them.
func (t *Throttle) Submit(ctx context.Context, dest string, size int64, issue func()) *Ticket {
	tk := &Ticket{
		t:     t,
		dest:  dest,
		size:  size,
		ctx:   ctx,
		issue: issue,
	}

	t.lock.Lock()
	d := t.dests[dest]
	if d == nil {
		t.compactLocked()
		d = &destination{}
		t.dests[dest] = d
	}
	admit := d.inFlight < t.limit
	if admit {
		d.inFlight++
		tk.state = issued
	} else {
		d.queue = append(d.queue, tk)
	}
	t.lock.Unlock()

	if admit {
		tk.fire()
	}
	return tk
}

// NotifyDone records that one in-flight send to dest has finished. If
// the destination's queue is non-empty, its front ticket is admitted
// and issued.
//
// NotifyDone is for callers that track admissions themselves. A caller
// holding a Ticket should use Ticket.Release instead, never both.
func (t *Throttle) NotifyDone(dest string) {
	t.lock.Lock()
	next := t.doneLocked(dest)
	t.lock.Unlock()

	if next != nil {
		next.fire()
	}
}

// Remove excises tk from its destination's queue. It returns false if
// tk was not queued, either because it was admitted already or because
// it was removed before.
func (t *Throttle) Remove(tk *Ticket) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.removeLocked(tk)
}

// InFlight returns the number of admitted, unfinished sends to dest.
func (t *Throttle) InFlight(dest string) int {
	t.lock.Lock()
	defer t.lock.Unlock()
	if d := t.dests[dest]; d != nil {
		return d.inFlight
	}
	return 0
}

// Queued returns the number of sends waiting for admission to dest.
func (t *Throttle) Queued(dest string) int {
	t.lock.Lock()
	defer t.lock.Unlock()
	if d := t.dests[dest]; d != nil {
		return len(d.queue)
	}
	return 0
}

// Len returns the number of destinations currently tracked.
func (t *Throttle) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.dests)
}

func (t *Throttle) doneLocked(dest string) *Ticket {
	d := t.dests[dest]
	if d == nil || d.inFlight == 0 {
		panic("httptxn/throttle: NotifyDone without admitted send")
	}
	d.inFlight--
	if len(d.queue) == 0 {
		return nil
	}
	next := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.inFlight++
	next.state = issued
	return next
}

func (t *Throttle) removeLocked(tk *Ticket) bool {
	if tk.state != queued {
		return false
	}
	d := t.dests[tk.dest]
	if d == nil {
		return false
	}
	for i, q := range d.queue {
		if q == tk {
			copy(d.queue[i:], d.queue[i+1:])
			d.queue[len(d.queue)-1] = nil
			d.queue = d.queue[:len(d.queue)-1]
			tk.state = finished
			return true
		}
	}
	return false
}

// compactLocked forgets idle destinations once the number tracked
// exceeds the threshold.
func (t *Throttle) compactLocked() {
	if len(t.dests) <= t.compactThreshold {
		return
	}
	for key, d := range t.dests {
		if d.inFlight == 0 && len(d.queue) == 0 {
			delete(t.dests, key)
		}
	}
}

// Destination returns the destination the ticket was submitted to.
func (tk *Ticket) Destination() string {
	return tk.dest
}

// Size returns the size given to Submit.
func (tk *Ticket) Size() int64 {
	return tk.size
}

// Context returns the context given to Submit.
func (tk *Ticket) Context() context.Context {
	return tk.ctx
}

// Admitted reports whether the ticket has been admitted.
func (tk *Ticket) Admitted() bool {
	tk.t.lock.Lock()
	defer tk.t.lock.Unlock()
	return tk.state == issued
}

// Release gives up the ticket. A queued ticket is removed from the
// queue; an admitted ticket is counted as done, which may admit the
// next queued send. Release is idempotent.
func (tk *Ticket) Release() {
	t := tk.t
	t.lock.Lock()
	var next *Ticket
	switch tk.state {
	case queued:
		t.removeLocked(tk)
	case issued:
		tk.state = finished
		next = t.doneLocked(tk.dest)
	}
	t.lock.Unlock()

	if next != nil {
		next.fire()
	}
}

func (tk *Ticket) fire() {
	if tk.issue != nil {
		tk.issue()
	}
}
