// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transport defines the byte channel the RTU engine talks through and
// the handler contract used by slave-side servers.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ffutop/sinilink-xy/modbus"
)

// Port is an already-opened byte duplex to the device.
//
// Read may return fewer bytes than requested. It returns 0, nil when nothing
// arrived within timeout. FlushInput discards any buffered input.
type Port interface {
	Write(p []byte) error
	Read(p []byte, timeout time.Duration) (int, error)
	FlushInput() error
}

// Error reports a failure of the underlying channel. It is never retried.
type Error struct {
	Op  string // "write", "read" or "flush"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RequestHandler answers a request addressed to slaveID.
type RequestHandler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)

// ErrNoResponse tells a server to stay silent, as a slave does for frames
// addressed to another station.
var ErrNoResponse = errors.New("transport: no response")

// Reply maps a handler result to the PDU a server sends back. It reports
// false when nothing should be sent.
func Reply(req modbus.ProtocolDataUnit, resp modbus.ProtocolDataUnit, err error) (modbus.ProtocolDataUnit, bool) {
	if err == nil {
		return resp, true
	}
	if errors.Is(err, ErrNoResponse) {
		return modbus.ProtocolDataUnit{}, false
	}
	var exc *modbus.ExceptionError
	if errors.As(err, &exc) {
		return modbus.Exception(req.FunctionCode, exc.ExceptionCode), true
	}
	code := byte(modbus.ExceptionCodeServerDeviceFailure)
	if errors.Is(err, context.DeadlineExceeded) {
		code = modbus.ExceptionCodeGatewayTargetDeviceFailedToRespond
	}
	return modbus.Exception(req.FunctionCode, code), true
}

// Upstream accepts requests from an external master and dispatches them to a
// handler.
type Upstream interface {
	// Start blocks until ctx is cancelled or the listener fails.
	Start(ctx context.Context, handler RequestHandler) error
	Close() error
}
