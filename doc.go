// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package httptxn provides an HTTP/1.1 client transaction engine: a
resumable state machine which drives one logical request over a pooled
connection, and recovers internally from stale keep-alive connections,
TLS version intolerance, failed proxies, and authentication challenges
it can answer from cache.

Most programs should use a Client, which runs a request to completion,
buffers the response body, and retries according to a policy.

	client := &httptxn.Client{}
	e, err := client.Get("https://www.example.com")
	...
	e, err := client.Post("https://www.example.com/upload",
		"application/json", &buf)
	...
	e, err := client.PostForm("http://example.com/form",
		url.Values{"key": {"Value"}, "id": {"123"}})

State shared between transactions lives in a Session: the
authentication cache, the per-destination connection throttle, the
proxy resolver, and the connection pool. Build one from explicit
options, or from configuration loaded by package config:

	cfg, err := config.Load()
	...
	session, err := httptxn.NewSessionFromConfig(cfg, nil)
	...
	client := &httptxn.Client{
		Session: session,
		Credentials: func(c auth.Challenge) (string, string, bool) {
			return "user", "secret", c.Realm == "intranet"
		},
	}

For control over the client's retry decisions and timing, create a
custom retry policy using components from package retry:

	retryWaiter := retry.NewExpWaiter(250*time.Millisecond, 5*time.Second, time.Now())
	retryPolicy := retry.NewPolicy(retry.DefaultDecider, retryWaiter)
	client := &httptxn.Client{
		RetryPolicy: retryPolicy,
	}

For control over the deadline of each transaction, set a custom timeout
policy using package timeout:

	client := &httptxn.Client{
		TimeoutPolicy: timeout.Fixed(10 * time.Second),
	}

To hook into the details of transaction execution, install a handler
into the appropriate handler chain:

	handlers := &httptxn.HandlerGroup{}
	handlers.PushBack(httptxn.AfterRestart, httptxn.HandlerFunc(
		func(_ httptxn.Event, e *request.Execution) {
			log.Printf("%s restarted: %s", e.ID, e.RestartReason)
		}),
	)
	client := &httptxn.Client{
		Handlers: handlers,
	}

Programs which need the asynchronous interface use a Transaction
directly. Each operation either completes synchronously, or returns
ErrPending and later reports its result to a Callback:

	txn := session.NewTransaction()
	defer txn.Close()
	err := txn.Start(r, func(n int, err error) {
		...
	})

At most one operation of a Transaction is outstanding at a time. After
Close, no callback is delivered.

Code that only needs to run requests can depend on the Doer interface,
which Client implements. Get, Head, Post, PostForm and PostFile build
a request and send it through any Doer, and Inflate turns a Doer into
an Executor carrying the same convenience methods as Client.
*/
package httptxn
