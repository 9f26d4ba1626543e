// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"context"

	"github.com/ffutop/sinilink-xy/xy"
)

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SetOutputEnabled switches the output on or off.
func (d *Device) SetOutputEnabled(ctx context.Context, on bool) error {
	return d.Write(ctx, xy.OutputEnabled, boolValue(on))
}

// OutputEnabled reports whether the output is on.
func (d *Device) OutputEnabled(ctx context.Context) (bool, error) {
	v, err := d.Read(ctx, xy.OutputEnabled)
	return v != 0, err
}

// SetVoltage sets the output voltage setpoint in volts.
func (d *Device) SetVoltage(ctx context.Context, volts float64) error {
	return d.Write(ctx, xy.OutputVoltageSetpoint, volts)
}

// SetCurrentLimit sets the output current limit in amperes.
func (d *Device) SetCurrentLimit(ctx context.Context, amps float64) error {
	return d.Write(ctx, xy.OutputCurrentSetpoint, amps)
}

// Voltage reads the measured output voltage.
func (d *Device) Voltage(ctx context.Context) (float64, error) {
	return d.Read(ctx, xy.OutputVoltageReadback)
}

// Current reads the measured output current.
func (d *Device) Current(ctx context.Context) (float64, error) {
	return d.Read(ctx, xy.OutputCurrentReadback)
}

// Power reads the measured output power.
func (d *Device) Power(ctx context.Context) (float64, error) {
	return d.Read(ctx, xy.OutputPowerReadback)
}

// InputVoltage reads the supply input voltage.
func (d *Device) InputVoltage(ctx context.Context) (float64, error) {
	return d.Read(ctx, xy.InputVoltage)
}

// SetOverVoltageProtection sets the OVP threshold of the running group.
func (d *Device) SetOverVoltageProtection(ctx context.Context, volts float64) error {
	return d.Write(ctx, xy.OverVoltageProtection, volts)
}

// SetOverCurrentProtection sets the OCP threshold of the running group.
func (d *Device) SetOverCurrentProtection(ctx context.Context, amps float64) error {
	return d.Write(ctx, xy.OverCurrentProtection, amps)
}

// ClearProtection resets tripped protections and silences the alarm.
func (d *Device) ClearProtection(ctx context.Context) error {
	return d.Write(ctx, xy.ProtectionStatus, 0)
}

// SetKeyLock locks or unlocks the front panel.
func (d *Device) SetKeyLock(ctx context.Context, locked bool) error {
	return d.Write(ctx, xy.KeyLock, boolValue(locked))
}
