// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package serial

import (
	"fmt"
	"sync"
	"time"

	"github.com/ffutop/sinilink-xy/internal/config"
	bugst "go.bug.st/serial"
)

// Bugst is a serial line opened with go.bug.st/serial, which supports per
// read timeouts and a kernel input buffer reset.
type Bugst struct {
	Device string
	Mode   *bugst.Mode

	mu   sync.Mutex
	port bugst.Port
}

// NewBugst maps cfg onto a go.bug.st serial mode.
func NewBugst(cfg config.SerialConfig) (*Bugst, error) {
	mode, err := bugstMode(cfg)
	if err != nil {
		return nil, err
	}
	return &Bugst{Device: cfg.Device, Mode: mode}, nil
}

func bugstMode(cfg config.SerialConfig) (*bugst.Mode, error) {
	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}
	switch cfg.Parity {
	case "", "N":
		mode.Parity = bugst.NoParity
	case "E":
		mode.Parity = bugst.EvenParity
	case "O":
		mode.Parity = bugst.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", cfg.Parity)
	}
	switch cfg.StopBits {
	case 0, 1:
		mode.StopBits = bugst.OneStopBit
	case 2:
		mode.StopBits = bugst.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %d", cfg.StopBits)
	}
	return mode, nil
}

func (p *Bugst) connect() error {
	if p.port != nil {
		return nil
	}
	port, err := bugst.Open(p.Device, p.Mode)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", p.Device, err)
	}
	p.port = port
	return nil
}

func (p *Bugst) Write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(); err != nil {
		return err
	}
	for len(b) > 0 {
		n, err := p.port.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Read returns 0, nil when nothing arrived within timeout.
func (p *Bugst) Read(b []byte, timeout time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(); err != nil {
		return 0, err
	}
	if err := p.port.SetReadTimeout(timeout); err != nil {
		return 0, err
	}
	return p.port.Read(b)
}

func (p *Bugst) FlushInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return nil
	}
	return p.port.ResetInputBuffer()
}

func (p *Bugst) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}
