// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httptxn

import (
	"net/url"

	"github.com/gogama/httptxn/request"
)

// Doer runs a request through to the end of its response body and
// returns the execution of the last transaction attempted.
//
// A Doer reports an error only when a transaction failed: a response
// of any status is a success, including a 401 or 407 whose challenge
// went unanswered. Client is the reference Doer.
type Doer interface {
	Do(r *request.Request) (*request.Execution, error)
}

// Executor is a Doer with the convenience methods of Client. Inflate
// turns any Doer into an Executor.
type Executor interface {
	Doer
	Get(url string) (*request.Execution, error)
	Head(url string) (*request.Execution, error)
	Post(url, contentType string, body interface{}) (*request.Execution, error)
	PostForm(url string, data url.Values) (*request.Execution, error)
	CloseIdleConnections()
}

type idleCloser interface {
	CloseIdleConnections()
}

// Get sends a GET for url through d.
func Get(d Doer, url string) (*request.Execution, error) {
	return send(d, "GET", url, "", nil)
}

// Head sends a HEAD for url through d. The execution's Body is empty
// but not nil on success.
func Head(d Doer, url string) (*request.Execution, error) {
	return send(d, "HEAD", url, "", nil)
}

// Post sends a POST for url through d with the given Content-Type.
//
// body is converted to UploadData by request.BodyUpload, so it may be
// nil, a string, a []byte, an io.Reader or an *request.UploadData. A
// reader is consumed before the first transaction starts, which lets
// the body be resent on restart or retry.
func Post(d Doer, url, contentType string, body interface{}) (*request.Execution, error) {
	return send(d, "POST", url, contentType, body)
}

// PostForm sends data URL-encoded as an
// application/x-www-form-urlencoded POST through d.
func PostForm(d Doer, url string, data url.Values) (*request.Execution, error) {
	return send(d, "POST", url, "application/x-www-form-urlencoded", data.Encode())
}

// PostFile sends the contents of the file at path as a POST through d.
// The file is opened by the session's filesystem each time the body is
// sent, so it must stay in place until the execution ends.
func PostFile(d Doer, url, contentType, path string) (*request.Execution, error) {
	u := request.NewUploadData(request.FileElement(path, 0, request.ToEOF))
	return send(d, "POST", url, contentType, u)
}

func send(d Doer, method, url, contentType string, body interface{}) (*request.Execution, error) {
	u, err := request.BodyUpload(body)
	if err != nil {
		return nil, err
	}
	r, err := request.NewRequest(method, url, u)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return d.Do(r)
}

// Inflate returns d as an Executor. If d already is one it is returned
// unchanged. CloseIdleConnections on the result is a no-op unless d
// has that method.
func Inflate(d Doer) Executor {
	if d == nil {
		panic("httptxn: nil doer")
	}
	if x, ok := d.(Executor); ok {
		return x
	}
	return &inflated{d}
}

type inflated struct {
	Doer
}

func (i *inflated) Get(url string) (*request.Execution, error) { return Get(i.Doer, url) }

func (i *inflated) Head(url string) (*request.Execution, error) { return Head(i.Doer, url) }

func (i *inflated) Post(url, contentType string, body interface{}) (*request.Execution, error) {
	return Post(i.Doer, url, contentType, body)
}

func (i *inflated) PostForm(url string, data url.Values) (*request.Execution, error) {
	return PostForm(i.Doer, url, data)
}

func (i *inflated) CloseIdleConnections() {
	if ic, ok := i.Doer.(idleCloser); ok {
		ic.CloseIdleConnections()
	}
}
