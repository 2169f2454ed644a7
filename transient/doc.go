// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transient classifies errors raised while executing an HTTP
// transaction into the recovery classes the transaction engine acts
// on: stale connections, proxy-fallback candidates, TLS intolerance,
// and certificate problems. It also translates arbitrary errors into
// the stable codes of package neterr.
package transient
