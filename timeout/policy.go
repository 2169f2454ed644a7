// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"time"

	"github.com/gogama/httptxn/request"
)

// A Policy tells the client how long the next transaction in a retry
// sequence may run.
//
// Implementations of Policy must be safe for concurrent use by multiple
// goroutines.
type Policy interface {
	// Timeout returns the deadline for the next transaction. Parameter
	// e is the execution of the previous transaction, or an execution
	// which has not started if there was none.
	Timeout(e *request.Execution) time.Duration
}

// DefaultPolicy gives every transaction 30 seconds.
var DefaultPolicy Policy = Fixed(30 * time.Second)

// Infinite never times out.
var Infinite Policy = Fixed(1<<63 - 1)

// Fixed returns a policy which gives every transaction the same
// deadline d.
func Fixed(d time.Duration) Policy {
	return policy([]time.Duration{d})
}

// Adaptive returns a policy which lengthens the deadline after a
// transaction times out.
//
// The usual deadline applies to the first transaction and to every
// transaction whose predecessor did not time out. After a timeout, the
// policy returns after[k-1], where k is the number of timeouts so far
// in the sequence, and keeps returning the last element once k runs
// past the end of after.
//
// For example, the following policy usually waits 200 milliseconds,
// waits 1 second after the first timeout, and 10 seconds after any
// later one:
//
//	p := Adaptive(200*time.Millisecond, time.Second, 10*time.Second)
func Adaptive(usual time.Duration, after ...time.Duration) Policy {
	p := make([]time.Duration, 1, 1+len(after))
	p[0] = usual
	return policy(append(p, after...))
}

type policy []time.Duration

func (p policy) Timeout(e *request.Execution) time.Duration {
	if !e.Timeout() {
		return p[0]
	}

	i := e.AttemptTimeouts
	if i > len(p)-1 {
		i = len(p) - 1
	}

	return p[i]
}
