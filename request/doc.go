// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request contains the core types Request (describes one logical
HTTP request) and Execution (describes the state of a transaction
executing a Request).

The first core type is Request. For those familiar with the Go standard
HTTP library, net/http, a Request looks like a stripped-down
http.Request with all server-side fields removed. Its header is an
ordered list of fields, because fields are written to the wire in the
order given, and its body is UploadData: a list of in-memory byte
buffers and file ranges which a transaction can rewind and resend when
it restarts internally.

Create a request:

	r, err := request.NewRequest("GET", "https://example.com", nil)
	...
	e, err := client.Do(r)
	...

Build a body from several parts, one of them a file:

	u := request.NewUploadData(request.BytesElement(preamble))
	u.AppendFile("/var/data/blob", 0, request.ToEOF)
	r, err := request.NewRequestWithContext(ctx, "PUT", "https://example.com/blob", u)
	...

The request context controls the whole transaction, including every
internal restart. If a Client runs the request, the context deadline is
separate from the per-transaction deadline set by the client's
timeout.Policy.

The second core type is Execution. Execution is both the output type of
httptxn.Client's request executing methods, and the input type for the
callbacks invoked while a transaction runs: timeout policies, retry
policies, and event handlers. You will typically not allocate Execution
instances yourself, but will instead work with the ones handed out by
transactions.
*/
package request
