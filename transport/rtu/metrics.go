// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ffutop/sinilink-xy/modbus"
	rtupacket "github.com/ffutop/sinilink-xy/modbus/rtu"
	"github.com/ffutop/sinilink-xy/transport"
	"github.com/prometheus/client_golang/prometheus"
)

// Failure classes used as the "error" label.
const (
	failTransport  = "transport"
	failTimeout    = "timeout"
	failCRC        = "crc"
	failTruncated  = "truncated"
	failException  = "exception"
	failUnexpected = "unexpected"
	failCancelled  = "cancelled"
	failOther      = "other"
)

var failureLabels = []string{
	failTransport, failTimeout, failCRC, failTruncated,
	failException, failUnexpected, failCancelled, failOther,
}

// Metrics counts transactions run by a Client. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	transactions *prometheus.CounterVec
	attempts     prometheus.Counter
	retries      prometheus.Counter
	failures     *prometheus.CounterVec
	duration     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with r.
func NewMetrics(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xy_modbus_transactions_total",
				Help: "Number of Modbus transactions started",
			},
			[]string{"function"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xy_modbus_attempts_total",
			Help: "Number of request frames written to the line",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xy_modbus_retries_total",
			Help: "Number of attempts repeated after a timeout or framing error",
		}),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xy_modbus_errors_total",
				Help: "Failed attempts by error class",
			},
			[]string{"error"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "xy_modbus_transaction_duration_seconds",
			Help:    "Time from first write to final outcome",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
	r.MustRegister(m.transactions, m.attempts, m.retries, m.failures, m.duration)
	for _, label := range failureLabels {
		m.failures.WithLabelValues(label)
	}
	return m
}

func (m *Metrics) transaction(functionCode byte) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(fmt.Sprintf("0x%02X", functionCode)).Inc()
}

func (m *Metrics) attempt(n int) {
	if m == nil {
		return
	}
	m.attempts.Inc()
	if n > 0 {
		m.retries.Inc()
	}
}

func (m *Metrics) failure(err error) {
	if m == nil || err == nil {
		return
	}
	m.failures.WithLabelValues(classify(err)).Inc()
}

func (m *Metrics) observe(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

func classify(err error) string {
	var te *transport.Error
	var exc *modbus.ExceptionError
	switch {
	case errors.As(err, &te):
		return failTransport
	case errors.Is(err, ErrRequestTimedOut):
		return failTimeout
	case errors.Is(err, rtupacket.ErrCRCMismatch):
		return failCRC
	case errors.Is(err, rtupacket.ErrTruncated):
		return failTruncated
	case errors.As(err, &exc):
		return failException
	case errors.Is(err, ErrUnexpectedResponse):
		return failUnexpected
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return failCancelled
	default:
		return failOther
	}
}
