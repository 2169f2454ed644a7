// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httptxn

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogama/httptxn/auth"
	"github.com/gogama/httptxn/internal/wire"
	"github.com/gogama/httptxn/neterr"
	"github.com/gogama/httptxn/pool"
	"github.com/gogama/httptxn/proxy"
	"github.com/gogama/httptxn/request"
	"github.com/gogama/httptxn/response"
	"github.com/gogama/httptxn/throttle"
	"github.com/gogama/httptxn/transient"
	"github.com/gogama/httptxn/upload"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Restart reasons recorded in request.Execution.RestartReason.
const (
	RestartStaleConnection = "stale_connection"
	RestartTLSFallback     = "tls_fallback"
	RestartProxyFallback   = "proxy_fallback"
	RestartAuth            = "auth"
	RestartIgnoreCertError = "ignore_cert_error"
)

// A Callback receives the result of a Transaction operation that
// returned ErrPending. For Start and the restart methods n is always
// zero; for Read it is the number of body bytes placed in the buffer,
// with zero and a nil error meaning the end of the body.
type Callback func(n int, err error)

// A Transaction executes one HTTP request over a connection obtained
// from its Session and delivers the response headers and body to the
// caller.
//
// Every operation either completes synchronously or returns ErrPending,
// in which case its Callback is called exactly once, on another
// goroutine, when the operation completes. Only one operation may be
// outstanding at a time; a second one fails with ErrBusy. After Close
// returns, no Callback is called.
//
// Recoverable failures are handled internally: a request sent on a
// reused keep-alive connection the server had already closed is resent
// once on a fresh connection, a TLS protocol version failure is retried
// once with TLS 1.3 disabled, and a connection failure to a proxy falls
// back to the next proxy candidate.
type Transaction struct {
	s     *Session
	extra *HandlerGroup
	log   zerolog.Logger
	exec  request.Execution

	lock      sync.Mutex
	started   bool
	busy      bool
	closed    bool
	loadState LoadState
	response  *response.Info
	progress  atomic.Int64
	wg        sync.WaitGroup
	closedCh  chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc

	// The fields below belong to whichever goroutine runs the current
	// operation.
	req         *request.Request
	next        state
	ioN         int
	readN       int
	readBuf     []byte
	drainBuf    []byte
	proxyInfo   proxy.Info
	proxyPinned bool
	group       string
	ticket      *throttle.Ticket
	handle      pool.Handle
	reused      bool
	addrs       []string
	ssl         pool.SSLConfig
	upload      *upload.Stream
	tried       map[auth.Target]auth.Entry
	lastErr     error

	reqHeaders    []byte
	headersSent   int
	requestTime   time.Time
	responseTime  time.Time
	headerBuf     []byte
	responseBytes int64
	staleRetried  bool
	pending       []byte
	peerClosed    bool
	chunked       *wire.ChunkedDecoder
	bodyRead      int64
	bodyEOF       bool
	keepAlive     bool
	drained       int
}

func newTransaction(s *Session, extra *HandlerGroup) *Transaction {
	id := uuid.NewString()
	t := &Transaction{
		s:        s,
		extra:    extra,
		log:      s.logger.With().Str("txn", id).Logger(),
		ssl:      s.ssl,
		tried:    make(map[auth.Target]auth.Entry),
		closedCh: make(chan struct{}),
	}
	t.exec.ID = id
	return t
}

// Start begins executing req. It returns ErrPending, after which cb is
// called once the final response headers are available or the
// transaction failed, or a synchronous error if req is invalid or the
// transaction was already started or closed.
//
// A response carrying an authentication challenge the transaction
// could not answer from the session's AuthCache is delivered as a
// success; the caller may read its body, or call RestartWithAuth.
func (t *Transaction) Start(req *request.Request, cb Callback) error {
	if req == nil || cb == nil {
		panic("httptxn: nil request or callback")
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if err := wire.ValidateHeader(req.Header); err != nil {
		return err
	}

	t.lock.Lock()
	switch {
	case t.closed:
		t.lock.Unlock()
		return ErrClosed
	case t.started:
		t.lock.Unlock()
		return ErrBusy
	}
	t.started = true
	t.beginLocked()
	t.ctx, t.cancel = context.WithCancel(req.Context())
	t.lock.Unlock()

	t.req = req
	if req.Upload != nil {
		t.upload = upload.New(t.s.fs, req.Upload, t.s.uploadBufferSize)
	}
	t.ssl.IgnoredCertErrors |= ignoredCertErrors(req.LoadFlags)
	t.exec.Request = req
	t.exec.Start = time.Now()
	t.log.Debug().
		Str("method", req.EffectiveMethod()).
		Str("url", req.URL.Redacted()).
		Msg("starting transaction")
	t.fire(BeforeStart)

	t.next = stateResolveProxy
	t.spawn(cb)
	return ErrPending
}

// Read reads response body bytes into buf. Bytes that arrived together
// with the response headers are returned synchronously; otherwise Read
// returns ErrPending and cb receives the result. A zero count with a
// nil error, synchronous or through cb, means the body is complete.
// Once reading the body failed, Read returns the same error.
func (t *Transaction) Read(buf []byte, cb Callback) (int, error) {
	if cb == nil {
		panic("httptxn: nil callback")
	}
	if len(buf) == 0 {
		return 0, io.ErrShortBuffer
	}

	t.lock.Lock()
	if err := t.checkLocked(); err != nil {
		t.lock.Unlock()
		return 0, err
	}
	if t.response == nil {
		t.lock.Unlock()
		return 0, ErrNotStarted
	}
	if err := t.lastErr; err != nil {
		t.lock.Unlock()
		return 0, err
	}
	t.beginLocked()
	t.lock.Unlock()

	if t.bodyEOF {
		t.endSync()
		return 0, nil
	}
	for len(t.pending) > 0 {
		n, err := t.fillBody(buf)
		n, err = t.filterBody(buf, n, err)
		if err != nil {
			err = t.settle(err)
			t.endSync()
			return 0, err
		}
		if t.bodyEOF {
			t.bodyDone()
		}
		if n > 0 || t.bodyEOF {
			t.endSync()
			return n, nil
		}
	}

	t.readBuf = buf
	t.next = stateReadBody
	t.spawn(cb)
	return 0, ErrPending
}

// RestartWithAuth resends the request with Basic credentials answering
// the challenge of the current response. The credentials are added to
// the session's AuthCache. It returns ErrPending, after which cb is
// called as for Start.
//
// RestartWithAuth returns ErrNoAuthChallenge if the current response
// has no challenge, and ErrUnsupportedAuthScheme if the challenge is
// not Basic.
func (t *Transaction) RestartWithAuth(username, password string, cb Callback) error {
	if cb == nil {
		panic("httptxn: nil callback")
	}
	t.lock.Lock()
	if err := t.checkLocked(); err != nil {
		t.lock.Unlock()
		return err
	}
	info := t.response
	if info == nil || info.AuthChallenge == nil {
		t.lock.Unlock()
		return ErrNoAuthChallenge
	}
	c := *info.AuthChallenge
	if !c.IsBasic() {
		t.lock.Unlock()
		return ErrUnsupportedAuthScheme
	}
	t.beginLocked()
	t.lock.Unlock()

	e := auth.Entry{
		Key:       t.authKey(c),
		Challenge: c,
		Username:  username,
		Password:  password,
		State:     auth.HaveAuth,
	}
	t.s.authCache.Add(e)
	t.tried[c.Target] = e
	t.staleRetried = false
	t.lastErr = nil
	t.exec.Err = nil
	t.log.Info().Stringer("target", c.Target).Str("realm", c.Realm).Msg("restarting with credentials")

	t.next = stateDrainBodyForAuthRestart
	t.spawn(cb)
	return ErrPending
}

// RestartIgnoringLastError reconnects accepting the class of
// certificate error which ended the last operation. It returns
// ErrPending, after which cb is called as for Start, or
// ErrNotIgnorable if the last error was not an ignorable certificate
// error.
func (t *Transaction) RestartIgnoringLastError(cb Callback) error {
	if cb == nil {
		panic("httptxn: nil callback")
	}
	t.lock.Lock()
	if err := t.checkLocked(); err != nil {
		t.lock.Unlock()
		return err
	}
	if !t.started {
		t.lock.Unlock()
		return ErrNotStarted
	}
	class, ok := pool.CertErrorsFor(transient.Code(t.lastErr))
	if !ok {
		t.lock.Unlock()
		return ErrNotIgnorable
	}
	t.beginLocked()
	t.lock.Unlock()

	t.ssl.IgnoredCertErrors |= class
	t.lastErr = nil
	t.exec.Err = nil
	t.staleRetried = false
	t.restart(RestartIgnoreCertError, nil)
	t.spawn(cb)
	return ErrPending
}

// GetResponseInfo returns the final response headers, or nil if they
// are not yet available.
func (t *Transaction) GetResponseInfo() *response.Info {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.response
}

// GetLoadState returns what the transaction is currently waiting for.
func (t *Transaction) GetLoadState() LoadState {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.loadState
}

// GetUploadProgress returns the number of upload body bytes written to
// the current connection.
func (t *Transaction) GetUploadProgress() int64 {
	return t.progress.Load()
}

// Execution returns the execution record of the transaction. It must
// only be read while no operation is outstanding.
func (t *Transaction) Execution() *request.Execution {
	return &t.exec
}

// Body returns a blocking io.Reader over the response body, for use
// once Start has completed successfully.
func (t *Transaction) Body() io.Reader {
	return bodyReader{t}
}

// Close cancels any outstanding operation, waits for it to stop, and
// releases the connection and the throttle slot held by the
// transaction. The connection is returned to the pool for reuse only
// if the whole body was read from a keep-alive connection. Close is
// idempotent.
func (t *Transaction) Close() {
	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		return
	}
	t.closed = true
	close(t.closedCh)
	cancel := t.cancel
	started := t.started
	t.lock.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()

	t.releaseHandle(false)
	t.releaseTicket()
	if t.upload != nil {
		_ = t.upload.Close()
	}
	if started {
		t.exec.End = time.Now()
		t.log.Debug().Dur("duration", t.exec.Duration()).Msg("transaction closed")
		t.fire(AfterEnd)
	}
}

// checkLocked reports whether a new operation may begin.
func (t *Transaction) checkLocked() error {
	switch {
	case t.closed:
		return ErrClosed
	case t.busy:
		return ErrBusy
	}
	return nil
}

// beginLocked marks an operation outstanding. Close waits for it.
func (t *Transaction) beginLocked() {
	t.busy = true
	t.wg.Add(1)
}

func (t *Transaction) endSync() {
	t.lock.Lock()
	t.busy = false
	t.loadState = Idle
	t.lock.Unlock()
	t.wg.Done()
}

// spawn runs the dispatch loop from t.next on a task goroutine and
// reports the result to cb.
func (t *Transaction) spawn(cb Callback) {
	t.readN = 0
	go func() {
		n, err := t.runLoop()
		err = t.settle(err)

		t.lock.Lock()
		t.busy = false
		t.loadState = Idle
		closed := t.closed
		t.lock.Unlock()
		t.wg.Done()

		if !closed {
			cb(n, err)
		}
	}()
}

// settle records a terminal error, releasing the connection and the
// throttle slot. It returns the error carrying a neterr code.
func (t *Transaction) settle(err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := t.ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	err = withCode(err)
	t.lastErr = err
	t.exec.Err = err
	t.releaseHandle(false)
	t.releaseTicket()
	t.log.Warn().Err(err).Msg("transaction failed")
	return err
}

func withCode(err error) error {
	var ne *neterr.Error
	var code neterr.Code
	if errors.As(err, &ne) || errors.As(err, &code) {
		return err
	}
	return neterr.Wrap(transient.Code(err), err)
}

func (t *Transaction) setLoadState(s LoadState) {
	t.lock.Lock()
	t.loadState = s
	t.lock.Unlock()
}

func (t *Transaction) setResponse(info *response.Info) {
	t.lock.Lock()
	t.response = info
	t.lock.Unlock()
}

func (t *Transaction) fire(evt Event) {
	t.s.handlers.run(evt, &t.exec)
	t.extra.run(evt, &t.exec)
}

func (t *Transaction) releaseHandle(reusable bool) {
	if t.handle != nil {
		t.handle.Release(reusable)
		t.handle = nil
	}
	t.reused = false
}

func (t *Transaction) releaseTicket() {
	if t.ticket != nil {
		t.ticket.Release()
		t.ticket = nil
	}
}

func ignoredCertErrors(flags request.LoadFlags) pool.CertErrors {
	var ignored pool.CertErrors
	if flags.Has(request.IgnoreCertCommonNameInvalid) {
		ignored |= pool.CertCommonNameInvalid
	}
	if flags.Has(request.IgnoreCertDateInvalid) {
		ignored |= pool.CertDateInvalid
	}
	if flags.Has(request.IgnoreCertAuthorityInvalid) {
		ignored |= pool.CertAuthorityInvalid
	}
	return ignored
}

type bodyReader struct {
	t *Transaction
}

type readResult struct {
	n   int
	err error
}

func (r bodyReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	ch := make(chan readResult, 1)
	n, err := r.t.Read(p, func(n int, err error) {
		ch <- readResult{n, err}
	})
	if err == ErrPending {
		select {
		case res := <-ch:
			n, err = res.n, res.err
		case <-r.t.closedCh:
			select {
			case res := <-ch:
				n, err = res.n, res.err
			default:
				return 0, ErrClosed
			}
		}
	}
	if err == nil && n == 0 {
		return 0, io.EOF
	}
	return n, err
}
