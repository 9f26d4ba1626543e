// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package psu drives a Sinilink XY series power supply over Modbus RTU.
//
// A Device owns its transport.Port. Calls are serialised, one transaction
// at a time, because the line is half duplex.
package psu

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ffutop/sinilink-xy/transport"
	"github.com/ffutop/sinilink-xy/transport/rtu"
	"github.com/ffutop/sinilink-xy/xy"
)

// Option tunes a Device at construction.
type Option func(*Device)

// WithTimeout sets the per-attempt response timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) { d.client.Timeout = timeout }
}

// WithRetries sets how many times a timed out or corrupted exchange is
// repeated. Negative values mean no retries.
func WithRetries(retries int) Option {
	return func(d *Device) { d.client.Retries = max(retries, 0) }
}

// WithBaudRate tells the engine the line speed so it can keep the Modbus
// inter-frame gap.
func WithBaudRate(baudRate int) Option {
	return func(d *Device) { d.client.BaudRate = baudRate }
}

// WithRequestPause enforces extra silence between transactions.
func WithRequestPause(pause time.Duration) Option {
	return func(d *Device) { d.client.RequestPause = pause }
}

// WithMetrics records transaction metrics.
func WithMetrics(m *rtu.Metrics) Option {
	return func(d *Device) { d.client.Metrics = m }
}

// WithScaling fixes the register scaling instead of DefaultScaling.
func WithScaling(s xy.Scaling) Option {
	return func(d *Device) { d.regs = xy.NewMap(s) }
}

// Device is a handle to one power supply on a line.
type Device struct {
	client *rtu.Client
	regs   *xy.Map
	mu     sync.Mutex
}

// New binds a Device to port and slaveID. The port must already be open and
// configured for the device line settings, 115200 8N1 by default.
func New(port transport.Port, slaveID byte, opts ...Option) *Device {
	d := &Device{
		client: rtu.NewClient(port, slaveID),
		regs:   xy.NewMap(xy.DefaultScaling),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SlaveID returns the address the device is bound to.
func (d *Device) SlaveID() byte {
	return d.client.SlaveID
}

// Scaling returns the fixed-point steps in use.
func (d *Device) Scaling() xy.Scaling {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs.Scaling()
}

// Close releases the port if it can be closed.
func (d *Device) Close() error {
	if c, ok := d.client.Port().(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Read returns p in canonical units.
func (d *Device) Read(ctx context.Context, p xy.Property) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.read(ctx, p)
	return v, wrap("read", p.String(), err)
}

func (d *Device) read(ctx context.Context, p xy.Property) (float64, error) {
	r := d.regs.Lookup(p)
	if !r.Access.Readable() {
		return 0, xy.ErrWriteOnlyRegister
	}
	words, err := d.readRegisters(ctx, r.Address, uint16(r.Width))
	if err != nil {
		return 0, err
	}
	return xy.DecodeValue(r, words)
}

// Write sets p to v. Validation happens before anything is sent. A write
// whose response was lost is repeated, so it may reach the device twice.
func (d *Device) Write(ctx context.Context, p xy.Property, v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap("write", p.String(), d.write(ctx, p, v))
}

func (d *Device) write(ctx context.Context, p xy.Property, v float64) error {
	r := d.regs.Lookup(p)
	if !r.Access.Writable() {
		return xy.ErrReadOnlyRegister
	}
	words, err := xy.EncodeValue(r, v)
	if err != nil {
		return err
	}
	return d.writeRegisters(ctx, r.Address, words)
}

// ReadRaw reads quantity registers starting at address without scaling.
func (d *Device) ReadRaw(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.readRegisters(ctx, address, quantity)
	return words, wrap("read", hexAddress(address), err)
}

// WriteRaw writes values starting at address without scaling.
func (d *Device) WriteRaw(ctx context.Context, address uint16, values ...uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap("write", hexAddress(address), d.writeRegisters(ctx, address, values))
}
