// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ffutop/sinilink-xy/modbus"
	"github.com/ffutop/sinilink-xy/transport"
)

// Bus routes requests to the simulated devices by slave address, as an
// RS-485 line shared by several supplies would.
type Bus struct {
	mu      sync.RWMutex
	devices []*Device
}

// NewBus creates a bus with the given devices attached.
func NewBus(devices ...*Device) *Bus {
	return &Bus{devices: devices}
}

// Add attaches a device.
func (b *Bus) Add(d *Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = append(b.devices, d)
}

// Devices returns the attached devices.
func (b *Bus) Devices() []*Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Device(nil), b.devices...)
}

// Handle is a transport.RequestHandler. Frames for an address nobody
// answers on, and broadcasts, get no response.
func (b *Bus) Handle(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	devices := b.Devices()
	if slaveID == 0 {
		for _, d := range devices {
			d.Process(pdu)
		}
		return modbus.ProtocolDataUnit{}, transport.ErrNoResponse
	}
	for _, d := range devices {
		if d.SlaveID() == slaveID {
			return d.Process(pdu)
		}
	}
	slog.Debug("No device on slave ID", "slaveID", slaveID)
	return modbus.ProtocolDataUnit{}, transport.ErrNoResponse
}

// Serve starts the upstreams and blocks until ctx is cancelled or every
// upstream has stopped. Upstream failures are returned joined.
func (b *Bus) Serve(ctx context.Context, upstreams ...transport.Upstream) error {
	var wg sync.WaitGroup
	errs := make([]error, len(upstreams))
	for i, us := range upstreams {
		wg.Add(1)
		go func(ups transport.Upstream, idx int) {
			defer wg.Done()
			slog.Info("Starting upstream", "index", idx)
			if err := ups.Start(ctx, b.Handle); err != nil {
				slog.Error("Upstream stopped with error", "index", idx, "err", err)
				errs[idx] = fmt.Errorf("upstream %d: %w", idx, err)
			}
		}(us, i)
	}
	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
	case <-stopped:
		slog.Warn("All upstreams stopped")
	}

	for _, us := range upstreams {
		us.Close()
	}
	<-stopped
	return errors.Join(errs...)
}
