// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"net"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/idna"
)

// A Cache stores credential entries keyed by protection space: the
// scheme, host, port, and realm of a challenge.
//
// Cache is safe for concurrent use by multiple goroutines.
type Cache struct {
	lock    sync.Mutex
	entries map[string]Entry
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Key computes the cache key for a URL and realm.
//
// The key is built from the scheme, host, and port of u (the scheme's
// default port if u has none) and the realm. Path, query, fragment, and
// any credentials embedded in u are ignored, so two URLs differing only
// in those components produce the same key.
func Key(u *url.URL, realm string) string {
	scheme := strings.ToLower(u.Scheme)
	host := canonicalHost(u.Hostname())
	port := u.Port()
	if port == "" {
		port = defaultPort(scheme)
	}
	return scheme + "://" + net.JoinHostPort(host, port) + "/" + realm
}

// Lookup returns a copy of the entry stored under key.
func (c *Cache) Lookup(key string) (Entry, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Add stores a copy of e under e.Key, replacing any existing entry.
func (c *Cache) Add(e Entry) {
	if e.Key == "" {
		panic("httptxn/auth: entry without key")
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]Entry)
	}
	c.entries[e.Key] = e
}

// Remove deletes the entry stored under key. It reports whether an
// entry was removed.
func (c *Cache) Remove(key string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// State returns the state of the entry stored under key, or NoAuth if
// there is none.
func (c *Cache) State(key string) State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.entries[key].State
}

// Challenged records that the protection space key issued challenge ch
// which was not answered. A space with no entry moves to NeedAuth. An
// existing entry is left as is.
func (c *Cache) Challenged(key string, ch Challenge) State {
	c.lock.Lock()
	defer c.lock.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.State
	}
	if c.entries == nil {
		c.entries = make(map[string]Entry)
	}
	c.entries[key] = Entry{Key: key, Challenge: ch, State: NeedAuth}
	return NeedAuth
}

// Reject moves the entry stored under key back to NeedAuth, forgetting
// its credentials, if it still holds username and password. It
// reports whether the entry changed. Credentials stored since by
// another transaction are kept.
func (c *Cache) Reject(key, username, password string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	e, ok := c.entries[key]
	if !ok || e.State != HaveAuth || !e.Matches(username, password) {
		return false
	}
	e.State = NeedAuth
	e.Username, e.Password = "", ""
	c.entries[key] = e
	return true
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.entries)
}

func canonicalHost(host string) string {
	host = strings.ToLower(host)
	if net.ParseIP(host) != nil {
		return host
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	return host
}

func defaultPort(scheme string) string {
	switch scheme {
	case "https":
		return "443"
	case "ftp":
		return "21"
	default:
		return "80"
	}
}
