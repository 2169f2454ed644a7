// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry provides policies deciding whether httptxn.Client runs
// a whole request again after a transaction failed or produced a
// retryable status, and how long it waits first.
//
// Retries decided here sit above the recoveries a Transaction makes on
// its own (stale connection resend, TLS version fallback, proxy
// fallback): a Policy only sees what a transaction could not recover.
//
// A Policy is assembled from a Decider and a Waiter:
//
//	decider := retry.Times(3).
//		And(retry.Idempotent).
//		And(retry.StatusCode(503).Or(retry.Code(neterr.ConnectionRefused)))
//	waiter := retry.RetryAfter(retry.NewExpWaiter(100*time.Millisecond, 2*time.Second, nil), 10*time.Second)
//	policy := retry.NewPolicy(decider, waiter)
package retry
