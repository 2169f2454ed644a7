// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package timeout defines policies for the deadline httptxn.Client
// places on each transaction it runs, including the transactions it
// runs as whole-request retries.
//
// The deadline covers the whole transaction: proxy resolution,
// admission by the connection throttle, connecting, sending, and
// reading the response body.
package timeout
