// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"errors"
	"time"

	"github.com/gogama/httptxn/neterr"
	"github.com/gogama/httptxn/request"
	"github.com/gogama/httptxn/transient"
)

// A Decider decides if a retry should be done.
//
// Implementations of Decider must be safe for concurrent use by
// multiple goroutines.
type Decider interface {
	Decide(e *request.Execution) bool
}

// The DeciderFunc type is an adapter to allow the use of ordinary
// functions as retry deciders. It also provides the logical
// composition methods And and Or.
type DeciderFunc func(e *request.Execution) bool

// DefaultTimes is the number of times DefaultPolicy will retry.
const DefaultTimes = 5

// DefaultDecider allows up to DefaultTimes retries of idempotent
// requests which failed with a transient error or received status 429,
// 502, 503, or 504.
var DefaultDecider = Times(DefaultTimes).And(Idempotent).And(StatusCode(429, 502, 503, 504).Or(TransientErr))

// TransientErr indicates a retry if the error has a recovery category
// according to transient.Categorize. Certificate errors are excluded
// since repeating the request can not change them.
var TransientErr DeciderFunc = transientErr

// Idempotent indicates a retry if the request method is idempotent:
// GET, HEAD, OPTIONS, TRACE, PUT, or DELETE.
var Idempotent DeciderFunc = idempotent

// Decide returns true if a retry should be done.
func (f DeciderFunc) Decide(e *request.Execution) bool {
	return f(e)
}

// And composes two deciders into one that returns true only if both
// do. g is not evaluated if f returns false.
func (f DeciderFunc) And(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) && g(e)
	}
}

// Or composes two deciders into one that returns true if either does.
// g is not evaluated if f returns true.
func (f DeciderFunc) Or(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) || g(e)
	}
}

// Times allows up to n retries: it returns true while e.Attempt is less
// than n.
func Times(n int) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Attempt < n
	}
}

// Before allows retries while less than d has elapsed since the start
// of the execution.
func Before(d time.Duration) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Duration() < d
	}
}

// StatusCode allows a retry if the response status code is one of ss.
func StatusCode(ss ...int) DeciderFunc {
	ss2 := make([]int, len(ss))
	copy(ss2, ss)
	return func(e *request.Execution) bool {
		for _, s := range ss2 {
			if e.StatusCode() == s {
				return true
			}
		}
		return false
	}
}

// Code allows a retry if the error carries one of the given codes.
func Code(codes ...neterr.Code) DeciderFunc {
	codes2 := make([]neterr.Code, len(codes))
	copy(codes2, codes)
	return func(e *request.Execution) bool {
		if e.Err == nil {
			return false
		}
		for _, c := range codes2 {
			if errors.Is(e.Err, c) {
				return true
			}
		}
		return false
	}
}

func transientErr(e *request.Execution) bool {
	cat := transient.Categorize(e.Err)
	return cat != transient.Not && cat != transient.Certificate
}

func idempotent(e *request.Execution) bool {
	if e.Request == nil {
		return false
	}
	switch e.Request.EffectiveMethod() {
	case "GET", "HEAD", "OPTIONS", "TRACE", "PUT", "DELETE":
		return true
	}
	return false
}
