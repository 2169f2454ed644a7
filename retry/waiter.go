// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gogama/httptxn/request"
)

// A Waiter specifies how long to wait before retrying.
//
// Implementations of Waiter must be safe for concurrent use by multiple
// goroutines. The client only calls Wait after Decide returned true.
type Waiter interface {
	Wait(e *request.Execution) time.Duration
}

// DefaultWaiter honors a Retry-After response header up to 5 seconds,
// and otherwise uses a jittered exponential backoff with a base of 50
// milliseconds and a ceiling of 1 second.
var DefaultWaiter = RetryAfter(NewExpWaiter(50*time.Millisecond, 1*time.Second, time.Now()), 5*time.Second)

// NewFixedWaiter constructs a Waiter that always returns d.
func NewFixedWaiter(d time.Duration) Waiter {
	return fixedWaiter(d)
}

type fixedWaiter time.Duration

func (w fixedWaiter) Wait(_ *request.Execution) time.Duration {
	return time.Duration(w)
}

// NewExpWaiter constructs a Waiter implementing exponential backoff
// with optional "full jitter": the wait is a random duration between
// zero and min(base * 2**attempt, max).
//
// Base must be positive and max at least base. Jitter may be nil (no
// jitter, the ceiling is returned), a seed (time.Time, int, or int64),
// or a *rand.Rand or rand.Source.
func NewExpWaiter(base, max time.Duration, jitter interface{}) Waiter {
	if base < 1 {
		panic("httptxn/retry: base must be positive")
	}
	if max < base {
		panic("httptxn/retry: max must be at least base")
	}
	return &expWaiter{
		base: base,
		max:  max,
		rand: jitterToRand(jitter),
	}
}

type expWaiter struct {
	base time.Duration
	max  time.Duration
	lock sync.Mutex
	rand *rand.Rand
}

func (w *expWaiter) Wait(e *request.Execution) time.Duration {
	ceil := w.max
	if e.Attempt < 62 {
		if c := w.base << uint(e.Attempt); c >= w.base && c < w.max {
			ceil = c
		}
	}
	if w.rand == nil {
		return ceil
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	return time.Duration(w.rand.Int63n(int64(ceil)))
}

func jitterToRand(jitter interface{}) *rand.Rand {
	var s rand.Source
	switch j := jitter.(type) {
	case nil:
		return nil
	case time.Time:
		s = rand.NewSource(j.UnixNano())
	case int:
		s = rand.NewSource(int64(j))
	case int64:
		s = rand.NewSource(j)
	case *rand.Rand:
		if j == nil {
			panic("httptxn/retry: jitter may not be a typed nil")
		}
		return j
	case rand.Source:
		s = j
	default:
		panic("httptxn/retry: invalid jitter type")
	}
	return rand.New(s)
}

// RetryAfter returns a Waiter that waits as long as the response's
// Retry-After header asks, in delay-seconds or HTTP-date form, capped
// at max. Without a usable header it defers to fallback.
func RetryAfter(fallback Waiter, max time.Duration) Waiter {
	if fallback == nil {
		panic("httptxn/retry: nil fallback waiter")
	}
	return retryAfterWaiter{fallback: fallback, max: max, now: time.Now}
}

type retryAfterWaiter struct {
	fallback Waiter
	max      time.Duration
	now      func() time.Time
}

func (w retryAfterWaiter) Wait(e *request.Execution) time.Duration {
	if d, ok := w.header(e); ok {
		if d > w.max {
			return w.max
		}
		return d
	}
	return w.fallback.Wait(e)
}

func (w retryAfterWaiter) header(e *request.Execution) (time.Duration, bool) {
	v := strings.TrimSpace(e.Header().Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		if secs > int64(w.max/time.Second)+1 {
			return w.max, true
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	d := at.Sub(w.now())
	if d < 0 {
		d = 0
	}
	return d, true
}
