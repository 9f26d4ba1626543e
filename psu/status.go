// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ffutop/sinilink-xy/xy"
)

// Status is a snapshot of the live registers taken in one transaction.
type Status struct {
	VoltageSetpoint     float64
	CurrentSetpoint     float64
	Voltage             float64
	Current             float64
	Power               float64
	InputVoltage        float64
	Capacity            float64 // Ah since output on
	Energy              float64 // Wh since output on
	OutputTime          time.Duration
	InternalTemperature float64
	ExternalTemperature float64
	KeyLock             bool
	Protection          xy.ProtectionFlags
	Mode                xy.ControlMode
	OutputEnabled       bool
}

// statusQuantity covers OutputVoltageSetpoint through OutputEnabled.
const statusQuantity = 0x13

// Status reads the measurement and state block.
func (d *Device) Status(ctx context.Context) (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.status(ctx)
	return s, wrap("status", "", err)
}

func (d *Device) status(ctx context.Context) (Status, error) {
	var s Status
	words, err := d.readRegisters(ctx, 0, statusQuantity)
	if err != nil {
		return s, err
	}
	var errs []error
	get := func(p xy.Property) float64 {
		r := d.regs.Lookup(p)
		v, err := xy.DecodeValue(r, words[r.Address:int(r.Address)+r.Width])
		if err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", p, err))
		}
		return v
	}
	s.VoltageSetpoint = get(xy.OutputVoltageSetpoint)
	s.CurrentSetpoint = get(xy.OutputCurrentSetpoint)
	s.Voltage = get(xy.OutputVoltageReadback)
	s.Current = get(xy.OutputCurrentReadback)
	s.Power = get(xy.OutputPowerReadback)
	s.InputVoltage = get(xy.InputVoltage)
	s.Capacity = get(xy.OutputCapacity)
	s.Energy = get(xy.OutputEnergy)
	s.OutputTime = time.Duration(get(xy.OutputTimeHours))*time.Hour +
		time.Duration(get(xy.OutputTimeMinutes))*time.Minute +
		time.Duration(get(xy.OutputTimeSeconds))*time.Second
	s.InternalTemperature = get(xy.InternalTemperature)
	s.ExternalTemperature = get(xy.ExternalTemperature)
	s.KeyLock = get(xy.KeyLock) != 0
	s.Protection = xy.ProtectionFlags(get(xy.ProtectionStatus))
	s.Mode = xy.ControlMode(get(xy.OutputMode))
	s.OutputEnabled = get(xy.OutputEnabled) != 0
	return s, errors.Join(errs...)
}

// Temperatures holds both probes in the unit the device displays.
type Temperatures struct {
	Internal float64
	External float64
	Unit     xy.TemperatureUnit
}

// Temperatures reads both probes and the display unit in one transaction.
func (d *Device) Temperatures(ctx context.Context) (Temperatures, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	in := d.regs.Lookup(xy.InternalTemperature)
	ext := d.regs.Lookup(xy.ExternalTemperature)
	unit := d.regs.Lookup(xy.TemperatureDisplayUnit)
	words, err := d.readRegisters(ctx, in.Address, unit.Address-in.Address+1)
	if err != nil {
		return Temperatures{}, wrap("temperatures", "", err)
	}
	return Temperatures{
		Internal: float64(words[0]) / in.Scale,
		External: float64(words[ext.Address-in.Address]) / ext.Scale,
		Unit:     xy.TemperatureUnit(words[unit.Address-in.Address]),
	}, nil
}

// Model reads the product model register.
func (d *Device) Model(ctx context.Context) (xy.ProductModel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.model(ctx)
	return m, wrap("read", xy.Model.String(), err)
}

func (d *Device) model(ctx context.Context) (xy.ProductModel, error) {
	r := d.regs.Lookup(xy.Model)
	words, err := d.readRegisters(ctx, r.Address, 1)
	if err != nil {
		return 0, err
	}
	return xy.ProductModel(words[0]), nil
}

// Detect reads the model and adopts its scaling. For a model without a
// confirmed scaling the current one is kept and the error wraps
// xy.ErrScalingUnavailable; ReadRaw and WriteRaw still work.
func (d *Device) Detect(ctx context.Context) (xy.ProductModel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.model(ctx)
	if err != nil {
		return 0, wrap("detect", xy.Model.String(), err)
	}
	s, err := xy.ScalingFor(m)
	if err != nil {
		return m, wrap("detect", xy.Model.String(), err)
	}
	d.regs = xy.NewMap(s)
	return m, nil
}
