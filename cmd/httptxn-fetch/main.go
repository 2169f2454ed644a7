// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command httptxn-fetch fetches one or more URLs concurrently through a
// shared session and writes each response body to standard output, or
// to a directory.
//
// Session settings come from HTTPTXN_* environment variables (see
// package config); request settings come from flags.
//
//	httptxn-fetch [flags] URL...
package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gogama/httptxn"
	"github.com/gogama/httptxn/auth"
	"github.com/gogama/httptxn/config"
	"github.com/gogama/httptxn/metrics"
	"github.com/gogama/httptxn/request"
	"github.com/gogama/httptxn/retry"
	"github.com/gogama/httptxn/timeout"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type headerFlags []string

func (h *headerFlags) String() string { return strings.Join(*h, ", ") }

func (h *headerFlags) Set(v string) error {
	if !strings.Contains(v, ":") {
		return fmt.Errorf("header %q is not of the form Name: value", v)
	}
	*h = append(*h, v)
	return nil
}

type options struct {
	method   string
	data     string
	file     string
	headers  headerFlags
	user     string
	insecure bool
	retries  int
	timeout  time.Duration
	rps      float64
	gzip     bool
	outDir   string
	stats    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.method, "X", "GET", "request method")
	flag.StringVar(&opts.data, "d", "", "request body")
	flag.StringVar(&opts.file, "f", "", "file to append to the request body")
	flag.Var(&opts.headers, "H", "extra request header, may be repeated")
	flag.StringVar(&opts.user, "u", "", "user:password answering Basic challenges")
	flag.BoolVar(&opts.insecure, "k", false, "accept invalid server certificates")
	flag.IntVar(&opts.retries, "retries", retry.DefaultTimes, "maximum retries per URL")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "deadline of each attempt")
	flag.Float64Var(&opts.rps, "rate", 0, "maximum attempts per second, 0 for unlimited")
	flag.BoolVar(&opts.gzip, "gzip", false, "request and decode gzip responses")
	flag.StringVar(&opts.outDir, "o", "", "directory to write bodies to, one file per URL")
	flag.BoolVar(&opts.stats, "stats", false, "log transaction metrics before exiting")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cfg.Logger(nil)

	os.Exit(run(cfg, logger, opts, flag.Args()))
}

func run(cfg *config.Config, logger zerolog.Logger, opts options, urls []string) int {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "")
	handlers := &httptxn.HandlerGroup{}
	m.Install(handlers)

	session, err := httptxn.NewSessionFromConfig(cfg, handlers)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create session")
		return 1
	}

	cl := &httptxn.Client{
		Session:        session,
		RetryPolicy:    retry.NewPolicy(retryDecider(opts.retries), retry.DefaultWaiter),
		TimeoutPolicy:  timeout.Fixed(opts.timeout),
		DecompressGzip: opts.gzip,
	}
	if user, pass, ok := strings.Cut(opts.user, ":"); ok {
		cl.Credentials = func(c auth.Challenge) (string, string, bool) {
			logger.Info().Str("host", c.Host).Str("realm", c.Realm).Msg("answering challenge")
			return user, pass, true
		}
	}
	if opts.rps > 0 {
		cl.Limiter = rate.NewLimiter(rate.Limit(opts.rps), 1)
	}

	var wg sync.WaitGroup
	var lock sync.Mutex
	failed := 0
	for i, u := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fetch(cl, logger, opts, i, u); err != nil {
				logger.Error().Err(err).Str("url", u).Msg("fetch failed")
				lock.Lock()
				failed++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	cl.CloseIdleConnections()

	if opts.stats {
		logStats(logger, reg)
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func fetch(cl *httptxn.Client, logger zerolog.Logger, opts options, i int, rawURL string) error {
	r, err := newRequest(opts, rawURL)
	if err != nil {
		return err
	}

	e, err := cl.Do(r)
	if err != nil {
		return err
	}
	logger.Info().
		Str("url", rawURL).
		Str("txn", e.ID).
		Int("status", e.StatusCode()).
		Int("attempt", e.Attempt).
		Int("restarts", e.Restarts).
		Int("bytes", len(e.Body)).
		Dur("duration", e.Duration()).
		Msg("fetched")

	if opts.outDir == "" {
		_, err = os.Stdout.Write(e.Body)
		return err
	}
	name := filepath.Join(opts.outDir, fmt.Sprintf("%03d-%s", i, fileName(r.URL)))
	return os.WriteFile(name, e.Body, 0o644)
}

func newRequest(opts options, rawURL string) (*request.Request, error) {
	var upload *request.UploadData
	if opts.data != "" || opts.file != "" {
		upload = request.NewUploadData()
		if opts.data != "" {
			upload.AppendBytes([]byte(opts.data))
		}
		if opts.file != "" {
			upload.AppendFile(opts.file, 0, request.ToEOF)
		}
	}
	r, err := request.NewRequest(opts.method, rawURL, upload)
	if err != nil {
		return nil, err
	}
	for _, h := range opts.headers {
		name, value, _ := strings.Cut(h, ":")
		r.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	r.UserAgent = "httptxn-fetch"
	if opts.insecure {
		r.LoadFlags |= request.IgnoreCertErrors
	}
	return r, nil
}

func fileName(u *url.URL) string {
	base := filepath.Base(u.Path)
	if base == "." || base == "/" {
		base = "index"
	}
	return u.Hostname() + "-" + base
}

// logStats logs the value of every gathered counter and gauge.
func logStats(logger zerolog.Logger, g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to gather metrics")
		return
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			evt := logger.Info().Str("metric", mf.GetName())
			for _, lp := range metric.GetLabel() {
				evt = evt.Str(lp.GetName(), lp.GetValue())
			}
			switch {
			case metric.GetCounter() != nil:
				evt = evt.Float64("value", metric.GetCounter().GetValue())
			case metric.GetGauge() != nil:
				evt = evt.Float64("value", metric.GetGauge().GetValue())
			case metric.GetHistogram() != nil:
				evt = evt.Uint64("count", metric.GetHistogram().GetSampleCount()).
					Float64("sum", metric.GetHistogram().GetSampleSum())
			}
			evt.Msg("stats")
		}
	}
}

func retryDecider(n int) retry.DeciderFunc {
	return retry.Times(n).
		And(retry.Idempotent).
		And(retry.StatusCode(429, 502, 503, 504).Or(retry.TransientErr))
}
