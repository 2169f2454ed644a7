// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httptxn

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogama/httptxn/auth"
	"github.com/gogama/httptxn/neterr"
	"github.com/gogama/httptxn/pool"
	"github.com/gogama/httptxn/request"
	"github.com/gogama/httptxn/retry"
	"github.com/gogama/httptxn/timeout"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var httpServer = httptest.NewUnstartedServer(http.HandlerFunc(serverHandler))
var httpsServer = httptest.NewUnstartedServer(http.HandlerFunc(serverHandler))
var servers = []*httptest.Server{httpServer, httpsServer}

// failures counts the requests failed so far, by instruction ID.
var failures sync.Map

const (
	serverUser = "alice"
	serverPass = "open sesame"
)

func TestMain(m *testing.M) {
	httpServer.Start()
	httpsServer.StartTLS()
	code := m.Run()
	httpServer.Close()
	httpsServer.Close()
	os.Exit(code)
}

func serverName(server *httptest.Server) string {
	switch server {
	case httpServer:
		return "http"
	case httpsServer:
		return "https"
	default:
		panic("unknown server")
	}
}

// newServerSession returns a session whose dialer trusts the test
// server certificates.
func newServerSession(server *httptest.Server) (*Session, *pool.Dialer) {
	d := pool.NewDialer()
	if server.Certificate() != nil {
		roots := x509.NewCertPool()
		roots.AddCert(server.Certificate())
		d.RootCAs = roots
	}
	s := NewSession(SessionOptions{
		Pool:         d,
		HostResolver: pool.StaticResolver{},
	})
	return s, d
}

func TestClient_Server(t *testing.T) {
	for _, server := range servers {
		t.Run(serverName(server), func(t *testing.T) {
			t.Run("happy path", func(t *testing.T) {
				s, d := newServerSession(server)
				cl := &Client{Session: s, RetryPolicy: retry.Never}
				i := &serverInstruction{
					StatusCode: 200,
					Body:       []bodyChunk{{Data: []byte("foo")}, {Data: []byte("bar")}},
				}

				e, err := cl.Do(i.toRequest(context.Background(), server))
				require.NoError(t, err)
				assert.Equal(t, 200, e.StatusCode())
				assert.Equal(t, "foobar", string(e.Body))
				assert.Equal(t, int64(6), e.BodyBytes)
				assert.Equal(t, 1, d.IdleCount(server.URL))

				e, err = cl.Do(i.toRequest(context.Background(), server))
				require.NoError(t, err)
				assert.Equal(t, "foobar", string(e.Body))
				assert.Equal(t, 1, d.IdleCount(server.URL))

				cl.CloseIdleConnections()
				assert.Equal(t, 0, d.IdleCount(server.URL))
			})
			t.Run("header timeout", func(t *testing.T) {
				s, _ := newServerSession(server)
				cl := &Client{
					Session:       s,
					RetryPolicy:   retry.Never,
					TimeoutPolicy: timeout.Fixed(50 * time.Millisecond),
				}
				i := &serverInstruction{StatusCode: 200, HeaderPause: 250 * time.Millisecond}

				e, err := cl.Do(i.toRequest(context.Background(), server))
				require.Error(t, err)
				assert.True(t, e.Timeout())
				assert.Nil(t, e.Response)
			})
			t.Run("body timeout", func(t *testing.T) {
				s, _ := newServerSession(server)
				cl := &Client{
					Session:       s,
					RetryPolicy:   retry.Never,
					TimeoutPolicy: timeout.Fixed(100 * time.Millisecond),
				}
				i := &serverInstruction{
					StatusCode: 200,
					Body:       []bodyChunk{{Data: []byte("slow"), Pause: 400 * time.Millisecond}},
				}

				e, err := cl.Do(i.toRequest(context.Background(), server))
				require.Error(t, err)
				assert.True(t, e.Timeout())
				assert.NotNil(t, e.Response)
				assert.Nil(t, e.Body)
			})
			t.Run("retry", func(t *testing.T) {
				s, _ := newServerSession(server)
				cl := &Client{
					Session:     s,
					RetryPolicy: retry.NewPolicy(retry.Times(3).And(retry.StatusCode(503)), retry.NewFixedWaiter(time.Millisecond)),
				}
				i := &serverInstruction{
					ID:         uuid.NewString(),
					StatusCode: 200,
					Fail:       2,
					Body:       []bodyChunk{{Data: []byte("finally")}},
				}

				e, err := cl.Do(i.toRequest(context.Background(), server))
				require.NoError(t, err)
				assert.Equal(t, 200, e.StatusCode())
				assert.Equal(t, "finally", string(e.Body))
				assert.Equal(t, 2, e.Attempt)
			})
			t.Run("auth", func(t *testing.T) {
				s, _ := newServerSession(server)
				var challenges int32
				cl := &Client{
					Session:     s,
					RetryPolicy: retry.Never,
					Credentials: func(c auth.Challenge) (string, string, bool) {
						atomic.AddInt32(&challenges, 1)
						return serverUser, serverPass, c.Realm == "test"
					},
				}
				i := &serverInstruction{
					StatusCode:  200,
					RequireAuth: true,
					Body:        []bodyChunk{{Data: []byte("secret")}},
				}

				e, err := cl.Do(i.toRequest(context.Background(), server))
				require.NoError(t, err)
				assert.Equal(t, 200, e.StatusCode())
				assert.Equal(t, "secret", string(e.Body))

				e, err = cl.Do(i.toRequest(context.Background(), server))
				require.NoError(t, err)
				assert.Equal(t, "secret", string(e.Body))
				assert.Equal(t, int32(1), atomic.LoadInt32(&challenges), "second challenge is answered from the auth cache")
			})
			t.Run("gzip", func(t *testing.T) {
				s, _ := newServerSession(server)
				cl := &Client{Session: s, RetryPolicy: retry.Never, DecompressGzip: true}
				i := &serverInstruction{
					StatusCode: 200,
					Gzip:       true,
					Body:       []bodyChunk{{Data: []byte("squeeze me")}},
				}

				e, err := cl.Do(i.toRequest(context.Background(), server))
				require.NoError(t, err)
				assert.Equal(t, "gzip", e.Header().Get("Content-Encoding"))
				assert.Equal(t, "squeeze me", string(e.Body))
			})
		})
	}
}

func TestClient_ServerCertificate(t *testing.T) {
	s := NewSession(SessionOptions{
		Pool:         pool.NewDialer(),
		HostResolver: pool.StaticResolver{},
	})
	cl := &Client{Session: s, RetryPolicy: retry.Never}
	i := &serverInstruction{StatusCode: 204}

	e, err := cl.Do(i.toRequest(context.Background(), httpsServer))
	require.Error(t, err)
	assert.ErrorIs(t, err, neterr.CertAuthorityInvalid)
	assert.Nil(t, e.Response)

	r := i.toRequest(context.Background(), httpsServer)
	r.LoadFlags |= request.IgnoreCertAuthorityInvalid
	e, err = cl.Do(r)
	require.NoError(t, err)
	assert.Equal(t, 204, e.StatusCode())
}

func TestClient_ZeroValue(t *testing.T) {
	var cl Client
	i := &serverInstruction{StatusCode: 201, Body: []bodyChunk{{Data: []byte("made")}}}

	e, err := cl.Do(i.toRequest(context.Background(), httpServer))
	require.NoError(t, err)
	assert.Equal(t, 201, e.StatusCode())
	assert.Equal(t, "made", string(e.Body))
	cl.CloseIdleConnections()
}

type bodyChunk struct {
	Pause time.Duration
	Data  []byte
}

type serverInstruction struct {
	ID          string
	HeaderPause time.Duration
	StatusCode  int
	Fail        int
	RequireAuth bool
	Gzip        bool
	Body        []bodyChunk
}

func (i *serverInstruction) toJSON() []byte {
	b, err := json.Marshal(i)
	if err != nil {
		panic(err)
	}

	return b
}

func (i *serverInstruction) toRequest(ctx context.Context, server *httptest.Server) *request.Request {
	upload := request.NewUploadData(request.BytesElement(i.toJSON()))
	r, err := request.NewRequestWithContext(ctx, "POST", server.URL, upload)
	if err != nil {
		panic(err)
	}
	r.Header.Set("Content-Type", "application/json")

	return r
}

func (i *serverInstruction) fromRequest(req *http.Request) error {
	b, err := io.ReadAll(req.Body)
	_ = req.Body.Close()

	if err != nil {
		return err
	}

	return json.Unmarshal(b, i)
}

// failNow reports whether the request should be failed with a 503,
// consuming one of the instruction's failures.
func (i *serverInstruction) failNow() bool {
	if i.Fail == 0 {
		return false
	}
	n, _ := failures.LoadOrStore(i.ID, new(int32))
	return atomic.AddInt32(n.(*int32), 1) <= int32(i.Fail)
}

func serverHandler(w http.ResponseWriter, req *http.Request) {
	// Decode the instructions.
	var i serverInstruction
	err := i.fromRequest(req)
	if err != nil {
		w.WriteHeader(400)
		_, _ = io.WriteString(w, fmt.Sprintf("failed to read request: %s", err.Error()))
		return
	}

	// Validate the instruction.
	if i.StatusCode == 0 {
		w.WriteHeader(400)
		_, _ = io.WriteString(w, fmt.Sprintf("bad StatusCode in instruction: %v", i))
		return
	}

	if i.RequireAuth {
		user, pass, ok := req.BasicAuth()
		if !ok || user != serverUser || pass != serverPass {
			w.Header().Set("WWW-Authenticate", `Basic realm="test"`)
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(401)
			return
		}
	}

	if i.failNow() {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(503)
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		panic("w does not implement Flusher")
	}

	if i.Gzip {
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		time.Sleep(i.HeaderPause)
		w.WriteHeader(i.StatusCode)
		for _, chunk := range i.Body {
			_, _ = zw.Write(chunk.Data)
		}
		_ = zw.Close()
		return
	}

	// Determine the content length of the response.
	contentLength := 0
	for _, chunk := range i.Body {
		contentLength += len(chunk.Data)
	}
	w.Header().Set("Content-Length", strconv.Itoa(contentLength))

	// Sleep for the duration indicated by the pause field. This is done
	// to allow the client to play with timeouts.
	time.Sleep(i.HeaderPause)

	w.WriteHeader(i.StatusCode)
	f.Flush()

	// Write the response in chunks, pausing before each chunk.
	for _, chunk := range i.Body {
		data := chunk.Data
		pause := chunk.Pause
		ppb := chunk.Pause / time.Duration(len(chunk.Data))

		for j := range data {
			_, err = w.Write(data[j : j+1])
			if err != nil {
				return
			}
			f.Flush()
			time.Sleep(ppb)
			pause -= ppb
		}

		// Pause for any unconsumed time in the chunk pause.
		if pause > 0 {
			time.Sleep(pause)
		}
	}
}
