// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xy

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTableComplete(t *testing.T) {
	for _, p := range Properties() {
		r := Lookup(p)
		if r.Width != 1 && r.Width != 2 {
			t.Errorf("%v: width %d", p, r.Width)
		}
		if r.Scale <= 0 {
			t.Errorf("%v: scale %v", p, r.Scale)
		}
	}
	if got := len(Properties()); got != int(numProperties) {
		t.Errorf("Properties() returned %d, want %d", got, numProperties)
	}
}

func TestTableNoOverlap(t *testing.T) {
	owner := make(map[uint16]Property)
	for _, p := range Properties() {
		r := Lookup(p)
		for i := 0; i < r.Width; i++ {
			addr := r.Address + uint16(i)
			if q, ok := owner[addr]; ok {
				t.Errorf("register 0x%02X used by %v and %v", addr, q, p)
			}
			owner[addr] = p
		}
	}
}

func TestLookupUnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Lookup of undeclared property did not panic")
		}
	}()
	Lookup(numProperties)
}

func TestKnownRegisters(t *testing.T) {
	tests := []struct {
		prop    Property
		address uint16
		access  Access
		scale   float64
	}{
		{OutputVoltageSetpoint, 0x00, ReadWrite, 100},
		{OutputCurrentSetpoint, 0x01, ReadWrite, 100},
		{OutputVoltageReadback, 0x02, ReadOnly, 100},
		{OutputCurrentReadback, 0x03, ReadOnly, 100},
		{OutputPowerReadback, 0x04, ReadOnly, 1},
		{InputVoltage, 0x05, ReadOnly, 100},
		{OutputEnabled, 0x12, ReadWrite, 1},
		{Model, 0x16, ReadOnly, 1},
		{RecallPreset, 0x1D, WriteOnly, 1},
		{OverVoltageProtection, 0x53, ReadWrite, 100},
		{OverCurrentProtection, 0x54, ReadWrite, 100},
	}
	for _, tt := range tests {
		r := Lookup(tt.prop)
		if r.Address != tt.address || r.Access != tt.access || r.Scale != tt.scale {
			t.Errorf("%v = {0x%02X %v %v}, want {0x%02X %v %v}", tt.prop, r.Address, r.Access, r.Scale, tt.address, tt.access, tt.scale)
		}
	}
}

func TestNewMapScaling(t *testing.T) {
	m := NewMap(ScalingXY3607F)
	tests := []struct {
		prop  Property
		scale float64
	}{
		{OutputVoltageSetpoint, 100},
		{OutputCurrentSetpoint, 1000},
		{OutputPowerReadback, 10},
		{OutputCapacity, 1000},
		{OutputEnergy, 100},
		{InternalTemperature, 10},
		{MPPTCoefficient, 100},
		{OverTimeHours, 1},
	}
	for _, tt := range tests {
		if got := m.Lookup(tt.prop).Scale; got != tt.scale {
			t.Errorf("%v scale = %v, want %v", tt.prop, got, tt.scale)
		}
	}
	if m.Scaling() != ScalingXY3607F {
		t.Errorf("Scaling() = %+v", m.Scaling())
	}
}

func TestScalingFor(t *testing.T) {
	for _, model := range []ProductModel{XY3607F, XY6020L, XY7025, XY12522} {
		if _, err := ScalingFor(model); err != nil {
			t.Errorf("ScalingFor(%v) error = %v", model, err)
		}
	}
	if _, err := ScalingFor(ProductModel(1234)); !errors.Is(err, ErrScalingUnavailable) {
		t.Errorf("ScalingFor(unknown) error = %v, want ErrScalingUnavailable", err)
	}
}

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		name  string
		prop  Property
		words []uint16
		want  float64
	}{
		{"voltage", OutputVoltageReadback, []uint16{2500}, 25.00},
		{"current", OutputCurrentReadback, []uint16{123}, 1.23},
		{"power", OutputPowerReadback, []uint16{42}, 42},
		{"capacity low word first", OutputCapacity, []uint16{0x0001, 0x0001}, 655.37},
		{"temperature", InternalTemperature, []uint16{253}, 25.3},
		{"boolean", OutputEnabled, []uint16{1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeValue(Lookup(tt.prop), tt.words)
			if err != nil {
				t.Fatalf("DecodeValue() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DecodeValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeValueWrongWidth(t *testing.T) {
	if _, err := DecodeValue(Lookup(OutputEnergy), []uint16{1}); err == nil {
		t.Error("expected error for short input")
	}
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name string
		prop Property
		v    float64
		want []uint16
	}{
		{"voltage", OutputVoltageSetpoint, 12.50, []uint16{0x04E2}},
		{"rounds to nearest step", OutputVoltageSetpoint, 5.004, []uint16{500}},
		{"rounds up", OutputCurrentSetpoint, 1.006, []uint16{101}},
		{"two words", OverEnergyProtection, 10000, []uint16{0x86A0, 0x0001}},
		{"boolean", OutputEnabled, 1, []uint16{1}},
		{"slave address", SlaveAddress, 247, []uint16{247}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeValue(Lookup(tt.prop), tt.v)
			if err != nil {
				t.Fatalf("EncodeValue() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("EncodeValue() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeValueOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		prop Property
		v    float64
	}{
		{"negative", OutputVoltageSetpoint, -1},
		{"NaN", OutputVoltageSetpoint, math.NaN()},
		{"infinite", OutputCurrentSetpoint, math.Inf(1)},
		{"beyond 16 bits", OutputVoltageSetpoint, 655.36},
		{"beyond 32 bits", OverCapacityProtection, 5e7},
		{"boolean", OutputEnabled, 2},
		{"slave address zero", SlaveAddress, 0},
		{"slave address", SlaveAddress, 248},
		{"baud code", BaudRate, 9},
		{"preset group", RecallPreset, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeValue(Lookup(tt.prop), tt.v); !errors.Is(err, ErrValueOutOfRange) {
				t.Errorf("EncodeValue(%v) error = %v, want ErrValueOutOfRange", tt.v, err)
			}
		})
	}
}

func TestValueRoundTrip(t *testing.T) {
	for _, s := range []Scaling{ScalingXY3607F, ScalingXY7025} {
		m := NewMap(s)
		for _, p := range []Property{OutputVoltageSetpoint, OutputCurrentSetpoint, ConstantPower, OverCapacityProtection, OverEnergyProtection} {
			r := m.Lookup(p)
			step := 1 / r.Scale
			for _, v := range []float64{0, 0.004, 1.2345, 7.77, 59.999} {
				words, err := EncodeValue(r, v)
				if err != nil {
					t.Fatalf("%v EncodeValue(%v) error = %v", p, v, err)
				}
				got, err := DecodeValue(r, words)
				if err != nil {
					t.Fatalf("%v DecodeValue() error = %v", p, err)
				}
				if math.Abs(got-v) > step {
					t.Errorf("%v round trip %v -> %v, more than one step %v", p, v, got, step)
				}
			}
		}
	}
}
