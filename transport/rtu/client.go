// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtu runs Modbus RTU transactions against a single slave over a
// transport.Port.
package rtu

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/sinilink-xy/modbus"
	rtupacket "github.com/ffutop/sinilink-xy/modbus/rtu"
	"github.com/ffutop/sinilink-xy/transport"
)

const (
	DefaultTimeout = 300 * time.Millisecond
	DefaultRetries = 2
)

var (
	ErrRequestTimedOut    = errors.New("modbus: request timed out")
	ErrUnexpectedResponse = errors.New("modbus: unexpected response")
)

// Transaction is one request/response exchange.
type Transaction struct {
	Request rtupacket.ApplicationDataUnit
	// ResponseLength is the full expected response frame length. Zero derives
	// it from the request.
	ResponseLength int
	// Timeout bounds each attempt's read phase. Zero uses the client default.
	Timeout time.Duration
	// Retries is the number of additional attempts after a timeout or a
	// framing error.
	Retries int
}

// Client is a Modbus RTU master bound to one port and slave address.
//
// Transactions are serialised. A request that timed out may still have reached
// the device, so a retried write is delivered at least once.
type Client struct {
	SlaveID byte
	Timeout time.Duration
	Retries int
	// BaudRate sets the inter-frame gap. Zero assumes a fast line.
	BaudRate int
	// RequestPause is a minimum silence between transactions, for devices
	// slower than the Modbus frame gap.
	RequestPause time.Duration
	Metrics      *Metrics

	port         transport.Port
	mu           sync.Mutex
	lastActivity time.Time
}

// NewClient allocates a client with the default timeout and retry budget.
func NewClient(port transport.Port, slaveID byte) *Client {
	return &Client{
		SlaveID: slaveID,
		Timeout: DefaultTimeout,
		Retries: DefaultRetries,
		port:    port,
	}
}

// Port returns the underlying port.
func (mb *Client) Port() transport.Port {
	return mb.port
}

// Send wraps pdu for the configured slave and runs it with the client's
// timeout and retry budget.
func (mb *Client) Send(ctx context.Context, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	return mb.Do(ctx, &Transaction{
		Request: rtupacket.ApplicationDataUnit{SlaveID: mb.SlaveID, Pdu: pdu},
		Timeout: mb.Timeout,
		Retries: mb.Retries,
	})
}

// Do runs tx to completion. Timeouts and framing errors are retried up to
// tx.Retries times; device exceptions, mismatched responses and transport
// failures are returned at once.
func (mb *Client) Do(ctx context.Context, tx *Transaction) (modbus.ProtocolDataUnit, error) {
	request, err := tx.Request.Encode()
	if err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("failed to encode ADU: %w", err)
	}
	want := tx.ResponseLength
	if want <= 0 {
		want = rtupacket.CalculateResponseLength(request)
	}
	timeout := tx.Timeout
	if timeout <= 0 {
		timeout = mb.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.Metrics.transaction(tx.Request.Pdu.FunctionCode)
	start := time.Now()
	defer func() { mb.Metrics.observe(time.Since(start)) }()

	retries := tx.Retries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return modbus.ProtocolDataUnit{}, lastErr
			}
			return modbus.ProtocolDataUnit{}, err
		}
		if attempt > 0 {
			slog.Warn("retrying modbus request", "slave", tx.Request.SlaveID, "attempt", attempt, "err", lastErr)
		}
		mb.Metrics.attempt(attempt)

		resp, err := mb.exchange(ctx, request, want, timeout)
		var exc *modbus.ExceptionError
		if resp != nil && (err == nil || errors.As(err, &exc)) {
			if verr := tx.Request.Verify(resp); verr != nil {
				err = fmt.Errorf("%w: %v", ErrUnexpectedResponse, verr)
			}
		}
		if err == nil {
			return resp.Pdu, nil
		}
		mb.Metrics.failure(err)
		if !retryable(err) {
			return modbus.ProtocolDataUnit{}, err
		}
		lastErr = err
	}
	return modbus.ProtocolDataUnit{}, lastErr
}

// exchange performs a single attempt: pace, flush, write, collect, decode.
func (mb *Client) exchange(ctx context.Context, request []byte, want int, timeout time.Duration) (*rtupacket.ApplicationDataUnit, error) {
	if err := mb.pause(ctx); err != nil {
		return nil, err
	}
	defer func() { mb.lastActivity = time.Now() }()

	if err := mb.port.FlushInput(); err != nil {
		return nil, &transport.Error{Op: "flush", Err: err}
	}
	slog.Debug("send to modbus slave", "request", hex.EncodeToString(request))
	if err := mb.port.Write(request); err != nil {
		return nil, &transport.Error{Op: "write", Err: err}
	}

	deadline := time.Now().Add(timeout + mb.calculateDelay(len(request)+want))
	bounded := false
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline, bounded = d, true
	}

	buf := make([]byte, max(want, rtupacket.ExceptionSize))
	n := 0
	for n < want {
		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			break
		}
		m, err := mb.port.Read(buf[n:want], remaining)
		if err != nil {
			return nil, &transport.Error{Op: "read", Err: err}
		}
		n += m
		if err := checkHeader(request, buf[:n]); err != nil {
			// The rest of the frame is drained by the next FlushInput.
			slog.Debug("recv foreign modbus frame", "response", hex.EncodeToString(buf[:n]))
			return nil, err
		}
		want = rtupacket.ExpectedLength(buf[:n], want)
	}
	if n < want {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRequestTimedOut, err)
		}
		if bounded {
			return nil, fmt.Errorf("%w: %w", ErrRequestTimedOut, context.DeadlineExceeded)
		}
		if n == 0 {
			return nil, ErrRequestTimedOut
		}
		return nil, fmt.Errorf("%w: received %d of %d bytes", rtupacket.ErrTruncated, n, want)
	}
	slog.Debug("recv from modbus slave", "response", hex.EncodeToString(buf[:want]))
	return rtupacket.Decode(buf[:want])
}

// checkHeader rejects a response whose slave address or function code does
// not answer request, as soon as the first two bytes are in.
func checkHeader(request, partial []byte) error {
	if len(partial) >= 1 && partial[0] != request[0] {
		return fmt.Errorf("%w: response slave id '%v' does not match request '%v'", ErrUnexpectedResponse, partial[0], request[0])
	}
	if len(partial) >= 2 && partial[1]&^modbus.ExceptionFlag != request[1] {
		return fmt.Errorf("%w: response function code '%v' does not match request '%v'", ErrUnexpectedResponse, partial[1], request[1])
	}
	return nil
}

// pause waits out the inter-frame silence since the previous exchange.
func (mb *Client) pause(ctx context.Context) error {
	gap := mb.calculateDelay(0)
	if mb.RequestPause > gap {
		gap = mb.RequestPause
	}
	wait := time.Until(mb.lastActivity.Add(gap))
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// calculateDelay calculates the needed delay to separate frames.
func (mb *Client) calculateDelay(chars int) time.Duration {
	var characterDelay, frameDelay int

	if mb.BaudRate <= 0 || mb.BaudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / mb.BaudRate
		frameDelay = 35000000 / mb.BaudRate
	}
	return time.Duration(characterDelay*chars+frameDelay) * time.Microsecond
}

func retryable(err error) bool {
	var te *transport.Error
	if errors.As(err, &te) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrRequestTimedOut) ||
		errors.Is(err, rtupacket.ErrCRCMismatch) ||
		errors.Is(err, rtupacket.ErrTruncated)
}
