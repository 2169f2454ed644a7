// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gogama/httptxn/neterr"
	"github.com/rs/zerolog"
)

const (
	// DefaultConnectTimeout bounds one TCP connection attempt.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultIdleTimeout is how long a released connection stays idle
	// before it is discarded.
	DefaultIdleTimeout = 90 * time.Second
	// DefaultMaxIdlePerGroup bounds the idle connections kept for one
	// group.
	DefaultMaxIdlePerGroup = 6
)

// aLongTimeAgo is a non-zero time far in the past, used to interrupt
// blocked I/O immediately.
var aLongTimeAgo = time.Unix(1, 0)

// A Dialer is a Pool of TCP connections, optionally tunnelled through
// an HTTP proxy with CONNECT and optionally secured with TLS.
//
// The exported fields must not be changed after the first call to
// Acquire.
type Dialer struct {
	// ConnectTimeout bounds each TCP connection attempt. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// IOTimeout, if positive, bounds each individual Read and Write.
	IOTimeout time.Duration
	// IdleTimeout is how long an idle connection is kept. Zero means
	// DefaultIdleTimeout.
	IdleTimeout time.Duration
	// MaxIdlePerGroup bounds the idle connections per group. Zero
	// means DefaultMaxIdlePerGroup.
	MaxIdlePerGroup int
	// RootCAs are the trusted roots for server certificates. Nil means
	// the system roots.
	RootCAs *x509.CertPool
	// DialContext, if not nil, replaces net.Dialer.DialContext for
	// opening TCP connections.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
	// Logger receives connection-level debug events.
	Logger zerolog.Logger

	now func() time.Time

	lock sync.Mutex
	idle map[string][]idleConn
}

type idleConn struct {
	nc    net.Conn
	since time.Time
}

// NewDialer returns a Dialer with default settings and a disabled
// logger.
func NewDialer() *Dialer {
	return &Dialer{Logger: zerolog.Nop()}
}

// Acquire returns the most recently released idle connection for group
// if there is one that has not expired, and otherwise a fresh
// unconnected handle.
func (d *Dialer) Acquire(ctx context.Context, group string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if nc := d.takeIdle(group); nc != nil {
		d.Logger.Debug().Str("group", group).Str("remote", nc.RemoteAddr().String()).Msg("reusing idle connection")
		return &handle{d: d, group: group, nc: nc, reused: true}, nil
	}
	return &handle{d: d, group: group}, nil
}

// CloseIdle closes every idle connection.
func (d *Dialer) CloseIdle() {
	d.lock.Lock()
	idle := d.idle
	d.idle = nil
	d.lock.Unlock()

	for _, list := range idle {
		for _, ic := range list {
			_ = ic.nc.Close()
		}
	}
}

// IdleCount returns the number of idle connections kept for group.
func (d *Dialer) IdleCount(group string) int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.idle[group])
}

func (d *Dialer) takeIdle(group string) net.Conn {
	d.lock.Lock()
	defer d.lock.Unlock()
	list := d.idle[group]
	cutoff := d.clock().Add(-d.idleTimeout())
	for len(list) > 0 {
		ic := list[len(list)-1]
		list = list[:len(list)-1]
		if ic.since.After(cutoff) {
			d.setIdleLocked(group, list)
			return ic.nc
		}
		_ = ic.nc.Close()
	}
	d.setIdleLocked(group, nil)
	return nil
}

func (d *Dialer) putIdle(group string, nc net.Conn) {
	d.lock.Lock()
	if d.idle == nil {
		d.idle = make(map[string][]idleConn)
	}
	list := append(d.idle[group], idleConn{nc: nc, since: d.clock()})
	var evicted net.Conn
	if len(list) > d.maxIdle() {
		evicted = list[0].nc
		list = list[1:]
	}
	d.idle[group] = list
	d.lock.Unlock()

	if evicted != nil {
		_ = evicted.Close()
	}
}

func (d *Dialer) setIdleLocked(group string, list []idleConn) {
	if len(list) == 0 {
		delete(d.idle, group)
		return
	}
	d.idle[group] = list
}

func (d *Dialer) dial(ctx context.Context, addrs []string) (net.Conn, error) {
	if len(addrs) == 0 {
		return nil, neterr.Wrap(neterr.NameNotResolved, errors.New("no addresses"))
	}
	dial := d.DialContext
	if dial == nil {
		nd := &net.Dialer{Timeout: d.connectTimeout(), KeepAlive: 30 * time.Second}
		dial = nd.DialContext
	}
	var lastErr error
	for _, addr := range addrs {
		nc, err := dial(ctx, "tcp", addr)
		if err == nil {
			d.Logger.Debug().Str("remote", addr).Msg("connected")
			return nc, nil
		}
		d.Logger.Debug().Str("remote", addr).Err(err).Msg("connect failed")
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (d *Dialer) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

func (d *Dialer) connectTimeout() time.Duration {
	if d.ConnectTimeout > 0 {
		return d.ConnectTimeout
	}
	return DefaultConnectTimeout
}

func (d *Dialer) idleTimeout() time.Duration {
	if d.IdleTimeout > 0 {
		return d.IdleTimeout
	}
	return DefaultIdleTimeout
}

func (d *Dialer) maxIdle() int {
	if d.MaxIdlePerGroup > 0 {
		return d.MaxIdlePerGroup
	}
	return DefaultMaxIdlePerGroup
}

type handle struct {
	d        *Dialer
	group    string
	nc       net.Conn
	reused   bool
	released bool
}

func (h *handle) IsConnected() bool {
	return h.nc != nil
}

func (h *handle) IsReused() bool {
	return h.reused
}

func (h *handle) Connect(ctx context.Context, addrs []string, opts ConnectOptions) error {
	if h.nc != nil {
		panic("httptxn/pool: handle already connected")
	}
	nc, err := h.d.dial(ctx, addrs)
	if err != nil {
		return err
	}
	if opts.Tunnel != "" {
		if err = h.d.tunnel(ctx, nc, opts); err != nil {
			_ = nc.Close()
			return err
		}
	}
	if opts.TLS {
		tc, err := h.d.handshake(ctx, nc, opts)
		if err != nil {
			_ = nc.Close()
			return err
		}
		nc = tc
	}
	h.nc = nc
	return nil
}

func (h *handle) Read(ctx context.Context, p []byte) (int, error) {
	if h.nc == nil {
		return 0, neterr.ConnectionClosed
	}
	return h.d.do(ctx, h.nc, p, h.nc.Read)
}

func (h *handle) Write(ctx context.Context, p []byte) (int, error) {
	if h.nc == nil {
		return 0, neterr.ConnectionClosed
	}
	return h.d.do(ctx, h.nc, p, h.nc.Write)
}

func (h *handle) Release(reusable bool) {
	if h.released {
		return
	}
	h.released = true
	if h.nc == nil {
		return
	}
	if reusable {
		if err := h.nc.SetDeadline(time.Time{}); err == nil {
			h.d.putIdle(h.group, h.nc)
			h.nc = nil
			return
		}
	}
	_ = h.nc.Close()
	h.nc = nil
}

// do runs one I/O operation on nc, bounded by IOTimeout and
// interrupted when ctx is done.
func (d *Dialer) do(ctx context.Context, nc net.Conn, p []byte, op func([]byte) (int, error)) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var deadline time.Time
	if d.IOTimeout > 0 {
		deadline = time.Now().Add(d.IOTimeout)
	}
	if err := nc.SetDeadline(deadline); err != nil {
		return 0, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = nc.SetDeadline(aLongTimeAgo)
	})
	n, err := op(p)
	if !stop() && err != nil {
		err = ctx.Err()
	}
	return n, err
}
