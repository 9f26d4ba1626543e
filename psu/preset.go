// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"context"
	"fmt"

	"github.com/ffutop/sinilink-xy/xy"
)

func groupName(group int) string {
	return fmt.Sprintf("M%d", group)
}

// ReadPreset reads stored group 0 to 9.
func (d *Device) ReadPreset(ctx context.Context, group int) (xy.Preset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.readPreset(ctx, group)
	return p, wrap("read preset", groupName(group), err)
}

func (d *Device) readPreset(ctx context.Context, group int) (xy.Preset, error) {
	addr, err := xy.PresetAddress(group)
	if err != nil {
		return xy.Preset{}, err
	}
	words, err := d.readRegisters(ctx, addr, xy.PresetSize)
	if err != nil {
		return xy.Preset{}, err
	}
	p, err := d.regs.DecodePreset(words)
	if err != nil {
		return p, err
	}
	unit, err := d.temperatureUnit(ctx)
	if err != nil {
		return xy.Preset{}, err
	}
	p.Protections = p.Protections.InCelsius(unit)
	return p, nil
}

// temperatureUnit reads the display unit the temperature limits are stored in.
func (d *Device) temperatureUnit(ctx context.Context) (xy.TemperatureUnit, error) {
	v, err := d.read(ctx, xy.TemperatureDisplayUnit)
	return xy.TemperatureUnit(v), err
}

// WritePreset stores p in group with a single WriteMultipleRegisters, after
// reading the display unit to convert the temperature limits.
func (d *Device) WritePreset(ctx context.Context, group int, p xy.Preset) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap("write preset", groupName(group), d.writePreset(ctx, group, p))
}

func (d *Device) writePreset(ctx context.Context, group int, p xy.Preset) error {
	addr, err := xy.PresetAddress(group)
	if err != nil {
		return err
	}
	unit, err := d.temperatureUnit(ctx)
	if err != nil {
		return err
	}
	p.Protections = p.Protections.InUnit(unit)
	words, err := d.regs.EncodePreset(p)
	if err != nil {
		return err
	}
	return d.writeRegisters(ctx, addr, words)
}

// RecallPreset loads group into the running settings.
func (d *Device) RecallPreset(ctx context.Context, group int) error {
	return d.Write(ctx, xy.RecallPreset, float64(group))
}

// Protections reads the limits of group M0, which the device applies to the
// running output.
func (d *Device) Protections(ctx context.Context) (xy.Protections, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.readPreset(ctx, 0)
	return p.Protections, wrap("read", "protections", err)
}

// SetProtections writes the limits of group M0. The power-on output flag
// between them is left untouched.
func (d *Device) SetProtections(ctx context.Context, pr xy.Protections) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap("write", "protections", d.setProtections(ctx, pr))
}

func (d *Device) setProtections(ctx context.Context, pr xy.Protections) error {
	unit, err := d.temperatureUnit(ctx)
	if err != nil {
		return err
	}
	words, err := d.regs.EncodePreset(xy.Preset{Protections: pr.InUnit(unit)})
	if err != nil {
		return err
	}
	first := d.regs.Lookup(xy.LowVoltageProtection).Address
	skip := d.regs.Lookup(xy.PowerOnOutput).Address
	last := d.regs.Lookup(xy.ExternalOverTemperatureProtection).Address
	start, err := xy.PresetAddress(0)
	if err != nil {
		return err
	}
	if err := d.writeRegisters(ctx, first, words[first-start:skip-start]); err != nil {
		return err
	}
	return d.writeRegisters(ctx, last, words[last-start:last-start+1])
}
