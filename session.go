// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httptxn

import (
	"context"
	"net/url"

	"github.com/gogama/httptxn/auth"
	"github.com/gogama/httptxn/config"
	"github.com/gogama/httptxn/pool"
	"github.com/gogama/httptxn/proxy"
	"github.com/gogama/httptxn/throttle"
	"github.com/gogama/httptxn/upload"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// SessionOptions configure a Session. Every zero-valued field is
// replaced by a default in NewSession.
type SessionOptions struct {
	// AuthCache stores credentials across transactions. Default is a
	// new, empty cache.
	AuthCache *auth.Cache
	// Throttle limits concurrent sends per destination. Default is
	// throttle.New(throttle.DefaultLimit, throttle.DefaultCompactThreshold).
	Throttle *throttle.Throttle
	// ProxyResolver decides the route of each request. Default is a
	// resolver that always connects directly.
	ProxyResolver proxy.Resolver
	// Pool hands out connections. Default is pool.NewDialer().
	Pool pool.Pool
	// HostResolver resolves host names. Default is
	// pool.SystemResolver{}.
	HostResolver pool.HostResolver
	// Fs is the file system upload file elements are read from.
	// Default is the OS file system.
	Fs afero.Fs
	// UploadBufferSize is the size of each transaction's upload
	// buffer. Default is upload.DefaultBufferSize.
	UploadBufferSize int
	// SSL is the initial TLS configuration of every transaction. Nil
	// means pool.DefaultSSLConfig().
	SSL *pool.SSLConfig
	// Logger receives transaction log events. Nil means a disabled
	// logger.
	Logger *zerolog.Logger
	// Handlers receive the events of every transaction in the session.
	Handlers *HandlerGroup
}

// A Session holds the state shared by transactions: the authentication
// cache, the connection throttle, and the proxy, connection, and host
// resolution collaborators.
//
// A Session is safe for concurrent use by multiple goroutines.
type Session struct {
	authCache        *auth.Cache
	throttle         *throttle.Throttle
	proxyResolver    proxy.Resolver
	pool             pool.Pool
	hostResolver     pool.HostResolver
	fs               afero.Fs
	uploadBufferSize int
	ssl              pool.SSLConfig
	logger           zerolog.Logger
	handlers         *HandlerGroup
}

// NewSession returns a Session built from opts.
func NewSession(opts SessionOptions) *Session {
	s := &Session{
		authCache:        opts.AuthCache,
		throttle:         opts.Throttle,
		proxyResolver:    opts.ProxyResolver,
		pool:             opts.Pool,
		hostResolver:     opts.HostResolver,
		fs:               opts.Fs,
		uploadBufferSize: opts.UploadBufferSize,
		ssl:              pool.DefaultSSLConfig(),
		logger:           zerolog.Nop(),
		handlers:         opts.Handlers,
	}
	if s.authCache == nil {
		s.authCache = auth.NewCache()
	}
	if s.throttle == nil {
		s.throttle = throttle.New(throttle.DefaultLimit, throttle.DefaultCompactThreshold)
	}
	if s.proxyResolver == nil {
		s.proxyResolver = proxy.Fixed()
	}
	if s.pool == nil {
		s.pool = pool.NewDialer()
	}
	if s.hostResolver == nil {
		s.hostResolver = pool.SystemResolver{}
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.uploadBufferSize <= 0 {
		s.uploadBufferSize = upload.DefaultBufferSize
	}
	if opts.SSL != nil {
		s.ssl = *opts.SSL
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}
	return s
}

// NewSessionFromConfig returns a Session built from cfg: a Dialer pool,
// a proxy service, and a logger as configured. The logger writes to
// standard error.
func NewSessionFromConfig(cfg *config.Config, handlers *HandlerGroup) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger(nil)

	var resolver *proxy.Service
	switch {
	case cfg.List != "":
		candidates, err := proxy.ParseList(cfg.List)
		if err != nil {
			return nil, err
		}
		resolver = proxy.NewService(func(_ context.Context, _ *url.URL) ([]*url.URL, error) {
			return candidates, nil
		}, cfg.RetryDelay)
	case cfg.FromEnvironment:
		resolver = proxy.FromEnvironment()
	default:
		resolver = proxy.Fixed()
	}

	d := pool.NewDialer()
	d.ConnectTimeout = cfg.ConnectTimeout
	d.IOTimeout = cfg.IOTimeout
	d.IdleTimeout = cfg.IdleTimeout
	d.MaxIdlePerGroup = cfg.MaxIdlePerGroup
	d.Logger = logger.With().Str("component", "pool").Logger()

	ssl := pool.DefaultSSLConfig()
	ssl.TLS13Enabled = cfg.TLS13

	return NewSession(SessionOptions{
		Throttle:         throttle.New(cfg.Limit, cfg.CompactThreshold),
		ProxyResolver:    resolver,
		Pool:             d,
		UploadBufferSize: cfg.BufferSize,
		SSL:              &ssl,
		Logger:           &logger,
		Handlers:         handlers,
	}), nil
}

// AuthCache returns the session's credential cache.
func (s *Session) AuthCache() *auth.Cache {
	return s.authCache
}

// ConnectionThrottle returns the session's connection throttle.
func (s *Session) ConnectionThrottle() *throttle.Throttle {
	return s.throttle
}

// ProxyResolver returns the session's proxy resolver.
func (s *Session) ProxyResolver() proxy.Resolver {
	return s.proxyResolver
}

// ConnectionPool returns the session's connection pool.
func (s *Session) ConnectionPool() pool.Pool {
	return s.pool
}

// HostResolver returns the session's host resolver.
func (s *Session) HostResolver() pool.HostResolver {
	return s.hostResolver
}

// Logger returns the session's logger.
func (s *Session) Logger() zerolog.Logger {
	return s.logger
}

// CloseIdleConnections closes the idle connections of the session's
// pool.
func (s *Session) CloseIdleConnections() {
	s.pool.CloseIdle()
}

// NewTransaction returns a new Transaction bound to the session.
func (s *Session) NewTransaction() *Transaction {
	return newTransaction(s, nil)
}
