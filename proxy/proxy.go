// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package proxy decides how a request URL is reached: directly, or
// through one of an ordered list of HTTP proxies.
//
// The transaction engine consumes proxy decisions through the Resolver
// interface. A resolution yields an Info holding the ordered candidate
// list; when the current candidate fails with a connection-class error
// the engine asks the Resolver to reconsider, which advances to the
// next candidate and remembers the failed proxy as bad for a while.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gogama/httptxn/neterr"
	"golang.org/x/net/http/httpproxy"
)

// DefaultRetryDelay is how long a failed proxy is deprioritized.
const DefaultRetryDelay = 5 * time.Minute

// A Resolver maps URLs to proxy decisions.
//
// Implementations must be safe for concurrent use by multiple
// goroutines. Both methods may block; they must return promptly with
// an error when ctx is done.
type Resolver interface {
	// Resolve returns the proxy decision for u.
	Resolve(ctx context.Context, u *url.URL) (Info, error)
	// Reconsider is called after the current candidate of last failed
	// with a connection-class error. It returns the decision advanced
	// to the next usable candidate, or an error wrapping
	// neterr.ProxyConnectionFailed if the candidates are exhausted.
	Reconsider(ctx context.Context, u *url.URL, last Info) (Info, error)
}

// An Info is an ordered list of candidates, each either a proxy URL or
// direct, with a cursor on the candidate currently in use. The zero
// value is a single direct candidate.
type Info struct {
	candidates []*url.URL
	index      int
}

// Direct returns a decision to connect directly.
func Direct() Info {
	return Info{}
}

// NewInfo returns a decision over the given candidates, in order. A nil
// candidate means direct. An empty list is the same as Direct.
func NewInfo(candidates ...*url.URL) Info {
	return Info{candidates: candidates}
}

// IsDirect reports whether the current candidate is direct.
func (i Info) IsDirect() bool {
	return i.Proxy() == nil
}

// Proxy returns the URL of the current proxy candidate, or nil when
// the current candidate is direct.
func (i Info) Proxy() *url.URL {
	if i.index >= len(i.candidates) {
		return nil
	}
	return i.candidates[i.index]
}

// HostPort returns "host:port" of the current proxy, with the port
// defaulted from the proxy scheme, or the empty string when direct.
func (i Info) HostPort() string {
	p := i.Proxy()
	if p == nil {
		return ""
	}
	port := p.Port()
	if port == "" {
		port = "80"
		if strings.EqualFold(p.Scheme, "https") {
			port = "443"
		}
	}
	return net.JoinHostPort(p.Hostname(), port)
}

// Remaining returns the number of candidates after the current one.
func (i Info) Remaining() int {
	if r := len(i.candidates) - i.index - 1; r > 0 {
		return r
	}
	return 0
}

// Fallback returns the decision advanced to the next candidate, and
// false if there is none.
func (i Info) Fallback() (Info, bool) {
	if i.Remaining() == 0 {
		return i, false
	}
	return Info{candidates: i.candidates, index: i.index + 1}, true
}

// String returns "DIRECT" or "PROXY host:port".
func (i Info) String() string {
	if i.IsDirect() {
		return "DIRECT"
	}
	return "PROXY " + i.HostPort()
}

// A ListFunc returns the ordered proxy candidates for u. A nil entry
// means direct; an empty list means direct only.
type ListFunc func(ctx context.Context, u *url.URL) ([]*url.URL, error)

// A Service is a Resolver over a ListFunc that remembers proxies which
// recently failed and moves them to the end of later candidate lists
// until their retry delay passes.
type Service struct {
	list       ListFunc
	retryDelay time.Duration
	now        func() time.Time

	lock sync.Mutex
	bad  map[string]time.Time
}

// NewService returns a Service over list. A non-positive retryDelay
// selects DefaultRetryDelay.
func NewService(list ListFunc, retryDelay time.Duration) *Service {
	if list == nil {
		panic("httptxn/proxy: nil list func")
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Service{
		list:       list,
		retryDelay: retryDelay,
		now:        time.Now,
		bad:        make(map[string]time.Time),
	}
}

// Fixed returns a Service that offers the same candidates for every
// URL. With no candidates, every URL is reached directly.
func Fixed(candidates ...*url.URL) *Service {
	return NewService(func(_ context.Context, _ *url.URL) ([]*url.URL, error) {
		return candidates, nil
	}, 0)
}

// FromEnvironment returns a Service whose decisions follow the
// HTTP_PROXY, HTTPS_PROXY, and NO_PROXY environment variables (and
// their lowercase versions), read once when FromEnvironment is called.
func FromEnvironment() *Service {
	return FromConfig(httpproxy.FromEnvironment())
}

// FromConfig returns a Service whose decisions follow cfg.
func FromConfig(cfg *httpproxy.Config) *Service {
	proxyFunc := cfg.ProxyFunc()
	return NewService(func(_ context.Context, u *url.URL) ([]*url.URL, error) {
		p, err := proxyFunc(u)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, nil
		}
		return []*url.URL{p}, nil
	}, 0)
}

// Resolve returns the candidates for u with recently failed proxies
// moved to the end.
func (s *Service) Resolve(ctx context.Context, u *url.URL) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	candidates, err := s.list(ctx, u)
	if err != nil {
		return Info{}, err
	}
	return NewInfo(s.deprioritize(candidates)...), nil
}

// Reconsider marks the current candidate of last as bad and advances
// to the next candidate.
func (s *Service) Reconsider(ctx context.Context, _ *url.URL, last Info) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	if p := last.Proxy(); p != nil {
		s.MarkBad(last.HostPort())
	}
	next, ok := last.Fallback()
	if !ok {
		return last, neterr.Wrap(neterr.ProxyConnectionFailed, errors.New("no more proxy candidates"))
	}
	return next, nil
}

// MarkBad records that the proxy at hostPort just failed.
func (s *Service) MarkBad(hostPort string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.bad[hostPort] = s.now().Add(s.retryDelay)
}

// IsBad reports whether the proxy at hostPort failed within its retry
// delay.
func (s *Service) IsBad(hostPort string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.isBadLocked(hostPort)
}

func (s *Service) isBadLocked(hostPort string) bool {
	until, ok := s.bad[hostPort]
	if !ok {
		return false
	}
	if !s.now().Before(until) {
		delete(s.bad, hostPort)
		return false
	}
	return true
}

func (s *Service) deprioritize(candidates []*url.URL) []*url.URL {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.bad) == 0 {
		return candidates
	}
	good := make([]*url.URL, 0, len(candidates))
	var bad []*url.URL
	for _, c := range candidates {
		if c != nil && s.isBadLocked(NewInfo(c).HostPort()) {
			bad = append(bad, c)
		} else {
			good = append(good, c)
		}
	}
	return append(good, bad...)
}

// ParseList parses a comma-separated candidate list. Each entry is
// either "DIRECT" or a proxy given as "host:port" or as an http URL.
func ParseList(s string) ([]*url.URL, error) {
	var candidates []*url.URL
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.EqualFold(entry, "DIRECT") {
			candidates = append(candidates, nil)
			continue
		}
		if !strings.Contains(entry, "://") {
			entry = "http://" + entry
		}
		u, err := url.Parse(entry)
		if err != nil {
			return nil, fmt.Errorf("httptxn/proxy: invalid proxy %q: %w", entry, err)
		}
		if u.Hostname() == "" {
			return nil, fmt.Errorf("httptxn/proxy: invalid proxy %q: missing host", entry)
		}
		if !strings.EqualFold(u.Scheme, "http") {
			return nil, fmt.Errorf("httptxn/proxy: unsupported proxy scheme %q", u.Scheme)
		}
		candidates = append(candidates, u)
	}
	return candidates, nil
}
