// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package auth holds HTTP authentication state shared across the
// transactions of a session: challenges parsed from 401/407
// responses, the credential entries answering them, and the cache
// that lets later transactions reuse accepted credentials.
package auth

import (
	"encoding/base64"
	"strings"
)

// A Target identifies who issued a challenge.
type Target int

const (
	// Server identifies an origin server challenge (401,
	// WWW-Authenticate, Authorization).
	Server Target = iota
	// Proxy identifies a proxy challenge (407, Proxy-Authenticate,
	// Proxy-Authorization).
	Proxy
)

// String returns "server" or "proxy".
func (t Target) String() string {
	if t == Proxy {
		return "proxy"
	}
	return "server"
}

// ChallengeHeader returns the response header carrying challenges for
// the target.
func (t Target) ChallengeHeader() string {
	if t == Proxy {
		return "Proxy-Authenticate"
	}
	return "WWW-Authenticate"
}

// CredentialsHeader returns the request header carrying credentials
// for the target.
func (t Target) CredentialsHeader() string {
	if t == Proxy {
		return "Proxy-Authorization"
	}
	return "Authorization"
}

// A Challenge is an authentication challenge extracted from a 401 or
// 407 response.
type Challenge struct {
	// Target is the challenger: Server or Proxy.
	Target Target
	// Host is the host:port of the challenger, for display.
	Host string
	// Scheme is the authentication scheme token, for example "Basic".
	Scheme string
	// Realm is the value of the realm parameter, possibly empty.
	Realm string
}

// ParseChallenge parses a WWW-Authenticate or Proxy-Authenticate header
// value. The scheme is the token before the first space, and the realm
// is the value of the realm="..." parameter. It returns false if the
// value has no scheme.
func ParseChallenge(target Target, value string) (Challenge, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Challenge{}, false
	}
	scheme := value
	params := ""
	if i := strings.IndexAny(value, " \t"); i >= 0 {
		scheme = value[:i]
		params = value[i+1:]
	}
	return Challenge{
		Target: target,
		Scheme: scheme,
		Realm:  realmParam(params),
	}, true
}

// IsBasic reports whether the challenge uses the Basic scheme, which
// is the only scheme for which credentials can be generated.
func (c Challenge) IsBasic() bool {
	return strings.EqualFold(c.Scheme, "basic")
}

func realmParam(params string) string {
	for params != "" {
		params = strings.TrimLeft(params, " \t,")
		eq := strings.IndexByte(params, '=')
		if eq < 0 {
			return ""
		}
		name := strings.TrimSpace(params[:eq])
		rest := strings.TrimLeft(params[eq+1:], " \t")
		var val string
		if strings.HasPrefix(rest, `"`) {
			val, rest = unquote(rest[1:])
		} else {
			end := strings.IndexByte(rest, ',')
			if end < 0 {
				end = len(rest)
			}
			val, rest = strings.TrimSpace(rest[:end]), rest[end:]
		}
		if strings.EqualFold(name, "realm") {
			return val
		}
		params = rest
	}
	return ""
}

func unquote(s string) (string, string) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			return b.String(), s[i+1:]
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), ""
}

// A State is the lifecycle state of an authentication entry. A
// protection space starts in NoAuth, moves to NeedAuth when a
// challenge from it goes unanswered (Cache.Challenged) and to HaveAuth
// when credentials are supplied (Cache.Add). Rejected credentials move
// it back to NeedAuth (Cache.Reject).
type State int

const (
	// NoAuth means no challenge has been received.
	NoAuth State = iota
	// NeedAuth means a challenge was received and credentials are
	// required, either because none were sent or because the ones sent
	// were rejected.
	NeedAuth
	// HaveAuth means credentials are available and will be sent.
	HaveAuth
)

var stateNames = []string{"NoAuth", "NeedAuth", "HaveAuth"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// An Entry holds credentials answering a challenge.
type Entry struct {
	Key       string
	Challenge Challenge
	Username  string
	Password  string
	State     State
}

// Matches reports whether e holds the given credentials.
func (e *Entry) Matches(username, password string) bool {
	return e.Username == username && e.Password == password
}

// HeaderValue returns the credentials header value for the entry. Only
// the Basic scheme is supported; for any other scheme the empty string
// is returned.
func (e *Entry) HeaderValue() string {
	if !e.Challenge.IsBasic() {
		return ""
	}
	return "Basic " + BasicCredentials(e.Username, e.Password)
}

// BasicCredentials returns the base64 encoding of "username:password".
// It is not meant to be urlencoded.
func BasicCredentials(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
