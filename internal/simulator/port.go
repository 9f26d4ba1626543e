// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	rtupacket "github.com/ffutop/sinilink-xy/modbus/rtu"
	"github.com/ffutop/sinilink-xy/transport"
)

// ErrInjected is returned by a Write that was told to fail.
var ErrInjected = errors.New("simulator: injected write failure")

// Fault disturbs the exchange triggered by one Write.
type Fault int

const (
	// DropResponse loses the response.
	DropResponse Fault = iota + 1
	// CorruptCRC flips bits in the response checksum.
	CorruptCRC
	// WrongSlave answers with a different slave address.
	WrongSlave
	// Truncate loses the last byte of the response.
	Truncate
	// FailWrite makes Write return ErrInjected.
	FailWrite
)

// Port is an in-memory transport.Port wired straight to a request handler,
// usually Bus.Handle. Every Write is answered synchronously.
type Port struct {
	handler transport.RequestHandler

	mu     sync.Mutex
	rx     []byte
	ready  chan struct{}
	faults []Fault
	writes int
	// chunk caps the bytes returned by one Read.
	chunk int
}

// NewPort connects a port to handler.
func NewPort(handler transport.RequestHandler) *Port {
	return &Port{
		handler: handler,
		ready:   make(chan struct{}, 1),
	}
}

// SetChunk splits responses into reads of at most n bytes. Zero delivers
// whatever is buffered.
func (p *Port) SetChunk(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunk = n
}

// Inject queues faults, one per following Write.
func (p *Port) Inject(faults ...Fault) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults = append(p.faults, faults...)
}

// Writes returns the number of frames written so far.
func (p *Port) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

func (p *Port) Write(b []byte) error {
	p.mu.Lock()
	p.writes++
	var fault Fault
	if len(p.faults) > 0 {
		fault, p.faults = p.faults[0], p.faults[1:]
	}
	p.mu.Unlock()

	if fault == FailWrite {
		return ErrInjected
	}
	req, err := rtupacket.Decode(b)
	if err != nil {
		slog.Debug("simulator dropped request", "request", hex.EncodeToString(b), "err", err)
		return nil
	}
	resp, err := p.handler(context.Background(), req.SlaveID, req.Pdu)
	pdu, ok := transport.Reply(req.Pdu, resp, err)
	if !ok || fault == DropResponse {
		return nil
	}

	out := rtupacket.ApplicationDataUnit{SlaveID: req.SlaveID, Pdu: pdu}
	if fault == WrongSlave {
		out.SlaveID++
	}
	raw, err := out.Encode()
	if err != nil {
		return err
	}
	switch fault {
	case CorruptCRC:
		raw[len(raw)-1] ^= 0xFF
	case Truncate:
		raw = raw[:len(raw)-1]
	}

	p.mu.Lock()
	p.rx = append(p.rx, raw...)
	p.mu.Unlock()
	select {
	case p.ready <- struct{}{}:
	default:
	}
	return nil
}

func (p *Port) Read(b []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		if len(p.rx) > 0 {
			n := len(b)
			if p.chunk > 0 && n > p.chunk {
				n = p.chunk
			}
			n = copy(b[:n], p.rx)
			p.rx = p.rx[n:]
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-p.ready:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (p *Port) FlushInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx = nil
	return nil
}
