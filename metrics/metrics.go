// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package metrics exports Prometheus metrics about transactions by
// installing event handlers.
//
//	m := metrics.New(prometheus.DefaultRegisterer, "myapp")
//	handlers := &httptxn.HandlerGroup{}
//	m.Install(handlers)
//	client := &httptxn.Client{Handlers: handlers}
package metrics

import (
	"strconv"
	"strings"

	"github.com/gogama/httptxn"
	"github.com/gogama/httptxn/request"
	"github.com/gogama/httptxn/transient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ResultOK is the result label of transactions which ended without an
// error.
const ResultOK = "ok"

// Metrics holds the transaction metrics.
type Metrics struct {
	Started   prometheus.Counter
	InFlight  prometheus.Gauge
	Restarts  *prometheus.CounterVec
	Responses *prometheus.CounterVec
	Results   *prometheus.CounterVec
	BodyBytes prometheus.Counter
	Duration  prometheus.Histogram
}

// New creates the metrics and registers them with reg. A nil reg
// creates unregistered metrics. Metric names are prefixed with
// namespace, if it is not empty.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Started: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "httptxn_transactions_started_total",
			Help:      "Total number of transactions started",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "httptxn_transactions_in_flight",
			Help:      "Number of transactions started and not yet closed",
		}),
		Restarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "httptxn_restarts_total",
			Help:      "Total number of internal transaction restarts",
		}, []string{"reason"}),
		Responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "httptxn_responses_total",
			Help:      "Total number of final responses delivered",
		}, []string{"status"}),
		Results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "httptxn_transactions_total",
			Help:      "Total number of transactions closed, by result",
		}, []string{"result"}),
		BodyBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "httptxn_body_bytes_total",
			Help:      "Total number of decoded response body bytes delivered",
		}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "httptxn_transaction_duration_seconds",
			Help:      "Transaction duration from start to close in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// Install adds the metrics handlers to the back of g's chains.
func (m *Metrics) Install(g *httptxn.HandlerGroup) {
	g.PushBack(httptxn.BeforeStart, httptxn.HandlerFunc(m.start))
	g.PushBack(httptxn.AfterRestart, httptxn.HandlerFunc(m.restart))
	g.PushBack(httptxn.AfterHeaders, httptxn.HandlerFunc(m.headers))
	g.PushBack(httptxn.AfterEnd, httptxn.HandlerFunc(m.end))
}

func (m *Metrics) start(_ httptxn.Event, _ *request.Execution) {
	m.Started.Inc()
	m.InFlight.Inc()
}

func (m *Metrics) restart(_ httptxn.Event, e *request.Execution) {
	m.Restarts.WithLabelValues(e.RestartReason).Inc()
}

func (m *Metrics) headers(_ httptxn.Event, e *request.Execution) {
	m.Responses.WithLabelValues(strconv.Itoa(e.StatusCode())).Inc()
}

func (m *Metrics) end(_ httptxn.Event, e *request.Execution) {
	m.InFlight.Dec()
	m.Results.WithLabelValues(Result(e)).Inc()
	m.BodyBytes.Add(float64(e.BodyBytes))
	m.Duration.Observe(e.Duration().Seconds())
}

// Result returns the result label of an execution: ResultOK, or the
// name of the neterr code of its error with spaces replaced by
// underscores.
func Result(e *request.Execution) string {
	if e.Err == nil {
		return ResultOK
	}
	return strings.ReplaceAll(transient.Code(e.Err).Name(), " ", "_")
}
