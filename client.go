// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httptxn

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gogama/httptxn/auth"
	"github.com/gogama/httptxn/request"
	"github.com/gogama/httptxn/retry"
	"github.com/gogama/httptxn/timeout"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"
)

// maxAuthRounds bounds how many times Client answers authentication
// challenges within one transaction.
const maxAuthRounds = 3

// A CredentialsFunc supplies Basic credentials for an authentication
// challenge. It returns ok false to leave the challenge unanswered, in
// which case the challenge response is returned to the caller.
type CredentialsFunc func(c auth.Challenge) (username, password string, ok bool)

var defaultSession = sync.OnceValue(func() *Session {
	return NewSession(SessionOptions{})
})

// A Client runs requests to completion on top of Transactions. Its zero
// value is a valid configuration.
//
// The zero value client runs transactions on a shared default Session,
// uses timeout.DefaultPolicy as the timeout policy and
// retry.DefaultPolicy as the retry policy, answers no authentication
// challenges, and has no event handlers.
//
// On top of what a single Transaction does, Client adds the following
// features:
//
// • Client reads and buffers the entire response body into a []byte
// (returned as the Execution.Body field);
//
// • Client answers Basic authentication challenges with credentials
// from its Credentials function;
//
// • Client runs the whole request again, as a new transaction, when
// its retry policy says so;
//
// • Client places a deadline on each transaction using its timeout
// policy;
//
// • Client optionally paces transactions using a rate limiter, and
// optionally asks for and decodes gzip-compressed responses; and
//
// • Client implements the httptxn.Executor interface.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	// Session provides the auth cache, connection throttle, proxy
	// resolver, and connection pool shared by the client's
	// transactions.
	//
	// If Session is nil, a package-level default session is used.
	Session *Session
	// Credentials answers authentication challenges.
	//
	// If Credentials is nil, challenges the session's auth cache can
	// not answer are returned to the caller as ordinary responses.
	Credentials CredentialsFunc
	// RetryPolicy decides when to run a request again and how long to
	// sleep before doing so.
	//
	// If RetryPolicy is nil, retry.DefaultPolicy is used.
	RetryPolicy retry.Policy
	// TimeoutPolicy specifies the deadline of each transaction.
	//
	// If TimeoutPolicy is nil, timeout.DefaultPolicy is used.
	TimeoutPolicy timeout.Policy
	// Handlers are run, in addition to the session's handlers, for
	// events of the client's transactions.
	//
	// If Handlers is nil, only the session's handlers are run.
	Handlers *HandlerGroup
	// Limiter, if not nil, is waited on before each transaction,
	// including retries.
	Limiter *rate.Limiter
	// DecompressGzip, if true, adds "Accept-Encoding: gzip" to requests
	// that do not specify an Accept-Encoding, and decodes response
	// bodies sent with "Content-Encoding: gzip".
	DecompressGzip bool
}

// Do runs r, following the timeout and retry policy set on Client,
// and returns the execution of the last transaction it ran.
//
// An error is returned if, after any retries mandated by the retry
// policy, the final transaction ended in an error. A non-2XX status
// code does not result in an error; neither does an authentication
// challenge that was left unanswered.
//
// The returned Execution is never nil and its Request is r. If the
// returned error is nil, the Execution contains a non-nil Response and
// a non-nil Body (although Body may have zero length). If an error was
// returned, the Err field of the Execution references the same error,
// which is always of type *url.Error and wraps an error carrying a
// neterr code.
//
// For simple use cases, the Get, Head, Post, and PostForm methods may
// prove easier to use than Do.
func (c *Client) Do(r *request.Request) (*request.Execution, error) {
	s := c.session()

	timeoutPolicy := c.TimeoutPolicy
	if timeoutPolicy == nil {
		timeoutPolicy = timeout.DefaultPolicy
	}

	retryPolicy := c.RetryPolicy
	if retryPolicy == nil {
		retryPolicy = retry.DefaultPolicy
	}

	orig := r
	if c.DecompressGzip && !r.Header.Has("Accept-Encoding") {
		r2 := r.WithContext(r.Context())
		r2.Header = r.Header.Clone()
		r2.Header.Set("Accept-Encoding", "gzip")
		r = r2
	}

	ctx := r.Context()
	prev := &request.Execution{Request: orig}
	var attempt, timeouts int
	for {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				prev.Err = urlErrorWrap(r, err)
				return prev, prev.Err
			}
		}

		e := c.runTransaction(s, r, attempt, timeouts, timeoutPolicy.Timeout(prev))
		e.Request = orig
		if e.Timeout() {
			timeouts++
			e.AttemptTimeouts = timeouts
		}
		if ctx.Err() != nil || !retryPolicy.Decide(e) {
			return e, e.Err
		}

		wait := retryPolicy.Wait(e)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			e.Err = urlErrorWrap(r, ctx.Err())
			return e, e.Err
		}
		s.logger.Debug().
			Str("txn", e.ID).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("retrying request")
		prev = e
		attempt++
	}
}

// runTransaction runs one transaction of r to completion, answering
// challenges and buffering the body, and returns its execution.
func (c *Client) runTransaction(s *Session, r *request.Request, attempt, timeouts int, d time.Duration) *request.Execution {
	ctx, cancel := context.WithTimeout(r.Context(), d)
	defer cancel()

	t := newTransaction(s, c.Handlers)
	t.exec.Attempt = attempt
	t.exec.AttemptTimeouts = timeouts
	defer t.Close()
	e := t.Execution()

	err := await(func(cb Callback) error {
		return t.Start(r.WithContext(ctx), cb)
	})
	for rounds := 0; err == nil && c.Credentials != nil && rounds < maxAuthRounds; rounds++ {
		info := t.GetResponseInfo()
		if info == nil || info.AuthChallenge == nil || !info.AuthChallenge.IsBasic() {
			break
		}
		user, pass, ok := c.Credentials(*info.AuthChallenge)
		if !ok {
			break
		}
		err = await(func(cb Callback) error {
			return t.RestartWithAuth(user, pass, cb)
		})
	}
	if err == nil {
		e.Body, err = c.readBody(t)
	}
	if err != nil {
		e.Body = nil
		e.Err = urlErrorWrap(r, err)
	}
	return e
}

func (c *Client) readBody(t *Transaction) ([]byte, error) {
	body, err := io.ReadAll(t.Body())
	if err != nil {
		return nil, err
	}
	if !c.DecompressGzip || len(body) == 0 || !strings.EqualFold(t.exec.Header().Get("Content-Encoding"), "gzip") {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = zr.Close()
	}()
	return io.ReadAll(zr)
}

// await runs op and, if it returned ErrPending, waits for its callback.
func await(op func(cb Callback) error) error {
	ch := make(chan error, 1)
	err := op(func(_ int, err error) {
		ch <- err
	})
	if err == ErrPending {
		return <-ch
	}
	return err
}

// Get issues a GET to url. See Do for how the result is reported.
func (c *Client) Get(url string) (*request.Execution, error) {
	return Get(c, url)
}

// Head issues a HEAD to url.
func (c *Client) Head(url string) (*request.Execution, error) {
	return Head(c, url)
}

// Post issues a POST to url. body is anything request.BodyUpload
// accepts; use request.NewRequest and Do for custom headers.
func (c *Client) Post(url, contentType string, body interface{}) (*request.Execution, error) {
	return Post(c, url, contentType, body)
}

// PostForm issues a form POST to url with data URL-encoded as the
// body.
func (c *Client) PostForm(url string, data url.Values) (*request.Execution, error) {
	return PostForm(c, url, data)
}

// CloseIdleConnections closes the idle keep-alive connections of the
// client's session. It does not interrupt connections in use.
func (c *Client) CloseIdleConnections() {
	c.session().CloseIdleConnections()
}

func (c *Client) session() *Session {
	if c.Session == nil {
		return defaultSession()
	}

	return c.Session
}

func urlErrorWrap(r *request.Request, err error) error {
	if _, ok := err.(*url.Error); ok {
		return err
	}

	return &url.Error{
		Op:  urlErrorOp(r.Method),
		URL: r.URL.Redacted(),
		Err: err,
	}
}

// urlErrorOp is lifted verbatim from net/http/client.go
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
