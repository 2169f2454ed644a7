// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httptxn

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gogama/httptxn/auth"
	"github.com/gogama/httptxn/internal/wire"
	"github.com/gogama/httptxn/neterr"
	"github.com/gogama/httptxn/pool"
	"github.com/gogama/httptxn/proxy"
	"github.com/gogama/httptxn/request"
	"github.com/gogama/httptxn/response"
	"github.com/gogama/httptxn/transient"
)

const (
	// maxHeaderBytes bounds the response header block, interim
	// responses included.
	maxHeaderBytes = 256 * 1024
	// headerBufSize is the initial size of the header buffer.
	headerBufSize = 4 * 1024
	// maxDrainBytes bounds the body read and discarded to keep a
	// connection for an auth restart.
	maxDrainBytes = 64 * 1024
	// drainBufSize is the read size used while draining.
	drainBufSize = 4 * 1024
)

type state int

const (
	stateNone state = iota
	stateResolveProxy
	stateResolveProxyComplete
	stateInitConnection
	stateInitConnectionComplete
	stateResolveHost
	stateResolveHostComplete
	stateConnect
	stateConnectComplete
	stateWriteHeaders
	stateWriteHeadersComplete
	stateWriteBody
	stateWriteBodyComplete
	stateReadHeaders
	stateReadHeadersComplete
	stateReadBody
	stateReadBodyComplete
	stateDrainBodyForAuthRestart
	stateDrainBodyForAuthRestartComplete
)

var stateNames = []string{
	"None",
	"ResolveProxy",
	"ResolveProxyComplete",
	"InitConnection",
	"InitConnectionComplete",
	"ResolveHost",
	"ResolveHostComplete",
	"Connect",
	"ConnectComplete",
	"WriteHeaders",
	"WriteHeadersComplete",
	"WriteBody",
	"WriteBodyComplete",
	"ReadHeaders",
	"ReadHeadersComplete",
	"ReadBody",
	"ReadBodyComplete",
	"DrainBodyForAuthRestart",
	"DrainBodyForAuthRestartComplete",
}

func (s state) String() string {
	return stateNames[s]
}

// runLoop dispatches states until one leaves t.next empty. Each step
// sets t.next to continue; a step's error is passed to the following
// step, and the error of the last step is the result of the loop.
func (t *Transaction) runLoop() (int, error) {
	var err error
	for t.next != stateNone {
		st := t.next
		t.next = stateNone
		if e := t.log.Debug(); e.Enabled() {
			e.Stringer("state", st).Msg("state")
		}
		switch st {
		case stateResolveProxy:
			err = t.doResolveProxy()
		case stateResolveProxyComplete:
			err = t.doResolveProxyComplete(err)
		case stateInitConnection:
			err = t.doInitConnection()
		case stateInitConnectionComplete:
			err = t.doInitConnectionComplete(err)
		case stateResolveHost:
			err = t.doResolveHost()
		case stateResolveHostComplete:
			err = t.doResolveHostComplete(err)
		case stateConnect:
			err = t.doConnect()
		case stateConnectComplete:
			err = t.doConnectComplete(err)
		case stateWriteHeaders:
			err = t.doWriteHeaders()
		case stateWriteHeadersComplete:
			err = t.doWriteHeadersComplete(err)
		case stateWriteBody:
			err = t.doWriteBody()
		case stateWriteBodyComplete:
			err = t.doWriteBodyComplete(err)
		case stateReadHeaders:
			err = t.doReadHeaders()
		case stateReadHeadersComplete:
			err = t.doReadHeadersComplete(err)
		case stateReadBody:
			err = t.doReadBody()
		case stateReadBodyComplete:
			err = t.doReadBodyComplete(err)
		case stateDrainBodyForAuthRestart:
			err = t.doDrainBodyForAuthRestart()
		case stateDrainBodyForAuthRestartComplete:
			err = t.doDrainBodyForAuthRestartComplete(err)
		default:
			panic(fmt.Sprintf("httptxn: invalid state %d", int(st)))
		}
	}
	return t.readN, err
}

func (t *Transaction) doResolveProxy() error {
	t.setLoadState(ResolvingProxy)
	t.next = stateResolveProxyComplete
	switch {
	case t.req.LoadFlags.Has(request.BypassProxy):
		t.proxyInfo, t.proxyPinned = proxy.Direct(), true
		return nil
	case t.req.Proxy != nil:
		t.proxyInfo, t.proxyPinned = proxy.NewInfo(t.req.Proxy), true
		return nil
	}
	info, err := t.s.proxyResolver.Resolve(t.ctx, t.req.URL)
	t.proxyInfo = info
	return err
}

func (t *Transaction) doResolveProxyComplete(err error) error {
	if err != nil {
		return err
	}
	t.routeChanged()
	t.next = stateInitConnection
	return nil
}

// routeChanged recomputes the connection group after the proxy
// decision changed.
func (t *Transaction) routeChanged() {
	t.group = t.groupKey()
	t.exec.Proxy = t.proxyInfo.String()
	t.log.Debug().Str("proxy", t.exec.Proxy).Str("group", t.group).Msg("route resolved")
	t.fire(AfterProxyResolved)
}

// groupKey names the set of interchangeable connections: the origin for
// direct connections, the proxy for proxied ones, and the proxy plus
// origin for tunnels, whose connections are bound to one origin.
func (t *Transaction) groupKey() string {
	origin := strings.ToLower(t.req.URL.Scheme) + "://" + strings.ToLower(wire.HostPort(t.req.URL))
	if t.proxyInfo.IsDirect() {
		return origin
	}
	key := "proxy/" + t.proxyInfo.HostPort() + "/"
	if t.usingTunnel() {
		key += origin
	}
	return key
}

func (t *Transaction) usingProxy() bool {
	return !t.proxyInfo.IsDirect()
}

func (t *Transaction) usingTunnel() bool {
	return t.usingProxy() && t.req.IsSecure()
}

func (t *Transaction) doInitConnection() error {
	t.next = stateInitConnectionComplete
	if err := t.admit(); err != nil {
		return err
	}
	h, err := t.s.pool.Acquire(t.ctx, t.group)
	if err != nil {
		return err
	}
	t.handle = h
	return nil
}

// admit waits for the connection throttle to admit a send to the
// current group. A transaction keeps its ticket across restarts to the
// same group.
func (t *Transaction) admit() error {
	if t.ticket != nil {
		return nil
	}
	t.setLoadState(WaitingForSlot)
	admitted := make(chan struct{})
	t.ticket = t.s.throttle.Submit(t.ctx, t.group, t.uploadSize(), func() {
		close(admitted)
	})
	select {
	case <-admitted:
	case <-t.ctx.Done():
		t.releaseTicket()
		return t.ctx.Err()
	}
	t.log.Debug().Str("group", t.group).Msg("admitted by throttle")
	t.fire(AfterAdmission)
	return nil
}

func (t *Transaction) uploadSize() int64 {
	if t.upload == nil {
		return 0
	}
	return t.upload.Size()
}

func (t *Transaction) doInitConnectionComplete(err error) error {
	if err != nil {
		return err
	}
	t.reused = t.handle.IsReused()
	if t.handle.IsConnected() {
		t.next = stateWriteHeaders
	} else {
		t.next = stateResolveHost
	}
	return nil
}

func (t *Transaction) doResolveHost() error {
	t.setLoadState(ResolvingHost)
	t.next = stateResolveHostComplete
	hostPort := wire.HostPort(t.req.URL)
	if t.usingProxy() {
		hostPort = t.proxyInfo.HostPort()
	}
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return neterr.Wrap(neterr.InvalidURL, err)
	}
	ips, err := t.s.hostResolver.LookupHost(t.ctx, host)
	if err != nil {
		return err
	}
	t.addrs = make([]string, len(ips))
	for i, ip := range ips {
		t.addrs[i] = net.JoinHostPort(ip, port)
	}
	return nil
}

func (t *Transaction) doResolveHostComplete(err error) error {
	if err != nil {
		return t.handleError(err, true)
	}
	t.next = stateConnect
	return nil
}

func (t *Transaction) doConnect() error {
	t.setLoadState(Connecting)
	t.next = stateConnectComplete
	opts := pool.ConnectOptions{
		UserAgent:  t.req.UserAgent,
		TLS:        t.req.IsSecure(),
		ServerName: t.req.URL.Hostname(),
		SSL:        t.ssl,
	}
	if t.usingTunnel() {
		opts.Tunnel = wire.HostPort(t.req.URL)
		opts.ProxyAuthorization = t.credentialsFor(auth.Proxy)
	}
	return t.handle.Connect(t.ctx, t.addrs, opts)
}

func (t *Transaction) doConnectComplete(err error) error {
	var tae *pool.TunnelAuthError
	if errors.As(err, &tae) {
		return t.handleTunnelAuth(tae.Response)
	}
	if err != nil {
		return t.handleError(err, true)
	}
	t.next = stateWriteHeaders
	return nil
}

func (t *Transaction) doWriteHeaders() error {
	if t.reqHeaders == nil {
		if err := t.buildRequest(); err != nil {
			return err
		}
	}
	t.setLoadState(SendingRequest)
	t.next = stateWriteHeadersComplete
	n, err := t.handle.Write(t.ctx, t.reqHeaders[t.headersSent:])
	t.ioN = n
	return err
}

func (t *Transaction) buildRequest() error {
	contentLength := int64(-1)
	if t.upload != nil {
		if err := t.upload.Reset(); err != nil {
			return err
		}
		t.progress.Store(0)
		contentLength = t.upload.Size()
	}

	viaProxy := t.usingProxy() && !t.usingTunnel()
	var creds request.Header
	if v := t.credentialsFor(auth.Server); v != "" {
		creds.Add(auth.Server.CredentialsHeader(), v)
	}
	if viaProxy {
		if v := t.credentialsFor(auth.Proxy); v != "" {
			creds.Add(auth.Proxy.CredentialsHeader(), v)
		}
	}
	t.reqHeaders = wire.BuildRequest(t.req, wire.RequestOptions{
		ViaProxy:      viaProxy,
		ContentLength: contentLength,
		Credentials:   creds,
	})
	t.headersSent = 0
	t.requestTime = time.Now()
	t.fire(BeforeSend)
	return nil
}

func (t *Transaction) doWriteHeadersComplete(err error) error {
	if err != nil {
		return t.handleError(err, false)
	}
	t.headersSent += t.ioN
	switch {
	case t.headersSent < len(t.reqHeaders):
		t.next = stateWriteHeaders
	case t.upload != nil && !t.upload.EOF():
		t.next = stateWriteBody
	default:
		t.next = stateReadHeaders
	}
	return nil
}

func (t *Transaction) doWriteBody() error {
	t.next = stateWriteBodyComplete
	buf := t.upload.Buf()
	if len(buf) == 0 {
		return neterr.UploadFileChanged
	}
	n, err := t.handle.Write(t.ctx, buf)
	t.ioN = n
	return err
}

func (t *Transaction) doWriteBodyComplete(err error) error {
	if errors.Is(err, neterr.UploadFileChanged) {
		return err
	}
	if err != nil {
		return t.handleError(err, false)
	}
	if err = t.upload.DidConsume(t.ioN); err != nil {
		return err
	}
	t.progress.Store(t.upload.Position())
	if t.upload.EOF() {
		t.next = stateReadHeaders
	} else {
		t.next = stateWriteBody
	}
	return nil
}

func (t *Transaction) doReadHeaders() error {
	t.setLoadState(WaitingForResponse)
	t.next = stateReadHeadersComplete
	if len(t.headerBuf) == cap(t.headerBuf) {
		if len(t.headerBuf) >= maxHeaderBytes {
			t.next = stateNone
			return neterr.ResponseHeadersTooBig
		}
		size := 2 * cap(t.headerBuf)
		if size < headerBufSize {
			size = headerBufSize
		} else if size > maxHeaderBytes {
			size = maxHeaderBytes
		}
		grown := make([]byte, len(t.headerBuf), size)
		copy(grown, t.headerBuf)
		t.headerBuf = grown
	}
	n, err := t.handle.Read(t.ctx, t.headerBuf[len(t.headerBuf):cap(t.headerBuf)])
	t.ioN = n
	return err
}

func (t *Transaction) doReadHeadersComplete(err error) error {
	if n := t.ioN; n > 0 {
		t.headerBuf = t.headerBuf[:len(t.headerBuf)+n]
		if t.responseBytes == 0 {
			t.responseTime = time.Now()
		}
		t.responseBytes += int64(n)
	}
	if errors.Is(err, io.EOF) {
		t.peerClosed = true
		if t.responseBytes == 0 {
			if t.reused && !t.staleRetried {
				t.staleRetried = true
				return t.restart(RestartStaleConnection, err)
			}
			return neterr.EmptyResponse
		}
	} else if err != nil {
		return t.handleError(err, false)
	}
	return t.processHeaders()
}

// processHeaders parses the buffered header block, skipping interim
// responses, or arranges to read more.
func (t *Transaction) processHeaders() error {
	for {
		if len(t.headerBuf) == 0 {
			if t.peerClosed {
				return neterr.EmptyResponse
			}
			t.next = stateReadHeaders
			return nil
		}
		if !wire.HasStatusLine(t.headerBuf) {
			t.log.Debug().Msg("no status line, assuming HTTP/0.9")
			return t.headersDone(response.HTTP09(), 0)
		}
		end := wire.FindEndOfHeaders(t.headerBuf)
		if end < 0 {
			if !t.peerClosed {
				if len(t.headerBuf) >= maxHeaderBytes {
					return neterr.ResponseHeadersTooBig
				}
				t.next = stateReadHeaders
				return nil
			}
			end = len(t.headerBuf)
		}
		info, err := response.Parse(t.headerBuf[:end], t.req.EffectiveMethod())
		if err != nil {
			return err
		}
		if info.IsInterim() {
			t.log.Debug().Str("status", info.StatusLine).Msg("skipping interim response")
			t.headerBuf = t.headerBuf[:copy(t.headerBuf, t.headerBuf[end:])]
			continue
		}
		return t.headersDone(info, end)
	}
}

// headersDone installs the final response whose header block ends at
// offset end of the header buffer.
func (t *Transaction) headersDone(info *response.Info, end int) error {
	if info.StatusCode == http.StatusProxyAuthRequired && (!t.usingProxy() || t.usingTunnel()) {
		return neterr.UnexpectedProxyAuth
	}
	info.RequestTime = t.requestTime
	info.ResponseTime = t.responseTime
	if c := info.AuthChallenge; c != nil {
		c.Host = t.authHostPort(c.Target)
	}
	t.pending = t.headerBuf[end:]
	t.bodyRead = 0
	t.chunked = nil
	if info.Framing == response.Chunked {
		t.chunked = &wire.ChunkedDecoder{}
	}
	t.keepAlive = info.KeepAlive()
	t.bodyEOF = !info.HasBody()
	t.setResponse(info)

	if t.answerFromCache(info) {
		t.next = stateDrainBodyForAuthRestart
		return nil
	}
	t.deliverHeaders(info)
	return nil
}

func (t *Transaction) deliverHeaders(info *response.Info) {
	t.exec.Response = info
	t.log.Debug().
		Int("status", info.StatusCode).
		Stringer("framing", info.Framing).
		Int64("content_length", info.ContentLength).
		Msg("response headers received")
	t.fire(AfterHeaders)
	if t.bodyEOF {
		t.bodyDone()
	}
}

// handleTunnelAuth surfaces a proxy's 407 answer to CONNECT as the
// response of the transaction. Its body is never exposed.
func (t *Transaction) handleTunnelAuth(info *response.Info) error {
	t.releaseHandle(false)
	if c := info.AuthChallenge; c != nil {
		c.Host = t.authHostPort(auth.Proxy)
	}
	info.RequestTime = t.requestTime
	t.pending = nil
	t.chunked = nil
	t.keepAlive = false
	t.bodyEOF = true
	t.setResponse(info)
	if t.answerFromCache(info) {
		return t.restart(RestartAuth, nil)
	}
	t.deliverHeaders(info)
	return nil
}

// answerFromCache consults the AuthCache for a challenge. It reports
// true if the transaction holds cached credentials it has not yet
// tried, which are then used for a restart. Otherwise the challenge
// is surfaced and its protection space is marked NeedAuth; credentials
// it just rejected are dropped from the cache.
func (t *Transaction) answerFromCache(info *response.Info) bool {
	c := info.AuthChallenge
	if c == nil {
		return false
	}
	key := t.authKey(*c)
	if tried, ok := t.tried[c.Target]; ok {
		delete(t.tried, c.Target)
		if tried.Key == key {
			t.s.authCache.Reject(key, tried.Username, tried.Password)
			t.log.Info().Stringer("target", c.Target).Str("realm", c.Realm).Msg("credentials rejected")
			t.s.authCache.Challenged(key, *c)
			return false
		}
	}
	if c.IsBasic() {
		if e, ok := t.s.authCache.Lookup(key); ok && e.State == auth.HaveAuth {
			t.tried[c.Target] = e
			t.log.Info().Stringer("target", c.Target).Str("realm", c.Realm).Msg("answering challenge from cache")
			return true
		}
	}
	state := t.s.authCache.Challenged(key, *c)
	t.log.Debug().Stringer("target", c.Target).Str("realm", c.Realm).Stringer("state", state).Msg("challenge surfaced")
	return false
}

func (t *Transaction) authKey(c auth.Challenge) string {
	if c.Target == auth.Proxy {
		if u := t.proxyInfo.Proxy(); u != nil {
			return auth.Key(u, c.Realm)
		}
	}
	return auth.Key(t.req.URL, c.Realm)
}

func (t *Transaction) authHostPort(target auth.Target) string {
	if target == auth.Proxy && t.usingProxy() {
		return t.proxyInfo.HostPort()
	}
	return wire.HostPort(t.req.URL)
}

func (t *Transaction) credentialsFor(target auth.Target) string {
	e, ok := t.tried[target]
	if !ok {
		return ""
	}
	return e.HeaderValue()
}

func (t *Transaction) doDrainBodyForAuthRestart() error {
	t.next = stateDrainBodyForAuthRestartComplete
	if t.bodyEOF || !t.keepAlive || t.handle == nil {
		t.ioN = 0
		return nil
	}
	t.setLoadState(ReadingResponse)
	if t.drainBuf == nil {
		t.drainBuf = make([]byte, drainBufSize)
	}
	n, err := t.fillBody(t.drainBuf)
	t.ioN = n
	return err
}

func (t *Transaction) doDrainBodyForAuthRestartComplete(err error) error {
	if !t.bodyEOF && t.keepAlive && t.handle != nil {
		n, ferr := t.filterBody(t.drainBuf, t.ioN, err)
		t.drained += n
		switch {
		case ferr != nil || t.drained > maxDrainBytes:
			t.keepAlive = false
		case !t.bodyEOF:
			t.next = stateDrainBodyForAuthRestart
			return nil
		}
	}
	if t.handle != nil && t.connectionReusable() {
		t.noteRestart(RestartAuth, nil)
		t.resetRequest()
		t.reused = true
		t.next = stateWriteHeaders
		return nil
	}
	return t.restart(RestartAuth, nil)
}

func (t *Transaction) doReadBody() error {
	t.setLoadState(ReadingResponse)
	t.next = stateReadBodyComplete
	n, err := t.fillBody(t.readBuf)
	t.ioN = n
	return err
}

func (t *Transaction) doReadBodyComplete(err error) error {
	n, err := t.filterBody(t.readBuf, t.ioN, err)
	if err != nil {
		return err
	}
	if n == 0 && !t.bodyEOF {
		t.next = stateReadBody
		return nil
	}
	t.readN = n
	if t.bodyEOF {
		t.bodyDone()
	}
	return nil
}

// fillBody places raw body bytes in p: first the bytes that arrived
// with the headers, then bytes read from the connection. It never
// reads past the declared content length.
func (t *Transaction) fillBody(p []byte) (int, error) {
	if t.response.Framing == response.ContentLength {
		if rem := t.response.ContentLength - t.bodyRead; int64(len(p)) > rem {
			p = p[:rem]
		}
	}
	if len(t.pending) > 0 {
		n := copy(p, t.pending)
		t.pending = t.pending[n:]
		return n, nil
	}
	if t.peerClosed {
		return 0, io.EOF
	}
	n, err := t.handle.Read(t.ctx, p)
	t.responseBytes += int64(n)
	return n, err
}

// filterBody decodes n raw bytes at the front of p according to the
// response framing and returns the number of payload bytes.
func (t *Transaction) filterBody(p []byte, n int, err error) (int, error) {
	info := t.response
	if n > 0 {
		switch info.Framing {
		case response.Chunked:
			m, derr := t.chunked.Filter(p[:n])
			if derr != nil {
				return 0, neterr.Wrap(neterr.InvalidChunkedEncoding, derr)
			}
			n = m
			t.bodyEOF = t.chunked.EOF()
		case response.ContentLength:
			t.bodyRead += int64(n)
			t.bodyEOF = t.bodyRead >= info.ContentLength
		}
		t.exec.BodyBytes += int64(n)
	}
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, io.EOF) {
		return 0, err
	}
	t.peerClosed = true
	if info.Framing == response.UntilClose {
		t.bodyEOF = true
	}
	if !t.bodyEOF {
		return 0, neterr.Wrap(neterr.ConnectionClosed, io.ErrUnexpectedEOF)
	}
	return n, nil
}

// connectionReusable reports whether the connection can carry another
// request now that the body is complete.
func (t *Transaction) connectionReusable() bool {
	return t.bodyEOF && t.keepAlive && !t.peerClosed && len(t.pending) == 0 &&
		(t.chunked == nil || t.chunked.BytesAfterEOF() == 0)
}

// bodyDone releases the connection, back to the pool if it is
// reusable, and the throttle slot once the whole body was delivered.
func (t *Transaction) bodyDone() {
	reusable := t.connectionReusable()
	t.releaseHandle(reusable)
	t.releaseTicket()
	t.log.Debug().Bool("reusable", reusable).Int64("body_bytes", t.exec.BodyBytes).Msg("response body complete")
	t.fire(AfterBodyEOF)
}

// handleError decides whether err is recovered by an internal restart.
// It returns nil with t.next set if so, and err otherwise. Proxy
// fallback only applies to errors reaching the proxy, so connecting
// tells whether err came from host resolution or connection set-up.
func (t *Transaction) handleError(err error, connecting bool) error {
	if t.ctx.Err() != nil {
		return err
	}
	cat := transient.Categorize(err)
	switch {
	case cat.Stale() && t.reused && t.responseBytes == 0 && !t.staleRetried:
		t.staleRetried = true
		return t.restart(RestartStaleConnection, err)
	case cat == transient.ProtocolVersion && t.req.IsSecure() && t.ssl.TLS13Enabled && t.responseBytes == 0:
		t.ssl.TLS13Enabled = false
		return t.restart(RestartTLSFallback, err)
	case connecting && cat.ProxyFallback() && !t.proxyPinned:
		return t.fallBackProxy(err)
	}
	return err
}

// fallBackProxy moves to the next proxy candidate. If the resolver has
// none left, the original error is returned.
func (t *Transaction) fallBackProxy(err error) error {
	info, rerr := t.s.proxyResolver.Reconsider(t.ctx, t.req.URL, t.proxyInfo)
	if rerr != nil {
		t.log.Debug().Err(rerr).Msg("no proxy fallback")
		return err
	}
	t.restart(RestartProxyFallback, err)
	t.releaseTicket()
	t.proxyInfo = info
	t.routeChanged()
	return nil
}

// restart releases the connection and resends the request from
// InitConnection.
func (t *Transaction) restart(reason string, cause error) error {
	t.releaseHandle(false)
	t.resetRequest()
	t.noteRestart(reason, cause)
	t.next = stateInitConnection
	return nil
}

func (t *Transaction) noteRestart(reason string, cause error) {
	t.exec.Restarts++
	t.exec.RestartReason = reason
	t.log.Info().Str("reason", reason).AnErr("cause", cause).Int("restarts", t.exec.Restarts).Msg("restarting")
	t.fire(AfterRestart)
}

// resetRequest forgets the request bytes sent and the response received
// so far, so the request can be sent again.
func (t *Transaction) resetRequest() {
	t.reqHeaders = nil
	t.headersSent = 0
	t.requestTime = time.Time{}
	t.responseTime = time.Time{}
	t.headerBuf = t.headerBuf[:0]
	t.responseBytes = 0
	t.pending = nil
	t.peerClosed = false
	t.chunked = nil
	t.bodyRead = 0
	t.bodyEOF = false
	t.keepAlive = false
	t.drained = 0
	t.exec.Response = nil
	t.progress.Store(0)
	t.setResponse(nil)
}
