// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xy

import (
	"errors"
	"fmt"
)

var (
	ErrValueOutOfRange    = errors.New("xy: value out of range")
	ErrReadOnlyRegister   = errors.New("xy: register is read-only")
	ErrWriteOnlyRegister  = errors.New("xy: register is write-only")
	ErrScalingUnavailable = errors.New("xy: no confirmed scaling for model")
)

// Encoding says how the raw words of a register are interpreted.
type Encoding int

const (
	Raw Encoding = iota
	Scaled
	Boolean
	Bitfield
)

// Access is the direction a register can be used in.
type Access int

const (
	ReadOnly Access = iota
	WriteOnly
	ReadWrite
)

func (a Access) Readable() bool { return a != WriteOnly }
func (a Access) Writable() bool { return a != ReadOnly }

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "R"
	case WriteOnly:
		return "W"
	case ReadWrite:
		return "R/W"
	}
	return fmt.Sprintf("Access(%d)", int(a))
}

// Quantity names the physical quantity whose fixed-point step depends on
// the supply model.
type Quantity int

const (
	NoQuantity Quantity = iota
	Voltage
	Current
	Power
	Capacity
	Energy
)

// Register describes where a property lives and how it is encoded.
type Register struct {
	Address  uint16
	Width    int // 16-bit words; two-word values are low word first
	Encoding Encoding
	Quantity Quantity
	// Scale is raw steps per canonical unit: 100 means 0.01 V per step.
	Scale  float64
	Access Access
	Unit   string
	// Min and Max bound writes in canonical units. A zero Max leaves the
	// register bit width as the only bound.
	Min, Max float64
}

var table = [numProperties]Register{
	OutputVoltageSetpoint: {Address: 0x00, Width: 1, Encoding: Scaled, Quantity: Voltage, Access: ReadWrite, Unit: "V"},
	OutputCurrentSetpoint: {Address: 0x01, Width: 1, Encoding: Scaled, Quantity: Current, Access: ReadWrite, Unit: "A"},
	OutputVoltageReadback: {Address: 0x02, Width: 1, Encoding: Scaled, Quantity: Voltage, Access: ReadOnly, Unit: "V"},
	OutputCurrentReadback: {Address: 0x03, Width: 1, Encoding: Scaled, Quantity: Current, Access: ReadOnly, Unit: "A"},
	OutputPowerReadback:   {Address: 0x04, Width: 1, Encoding: Scaled, Quantity: Power, Access: ReadOnly, Unit: "W"},
	InputVoltage:          {Address: 0x05, Width: 1, Encoding: Scaled, Quantity: Voltage, Access: ReadOnly, Unit: "V"},
	OutputCapacity:        {Address: 0x06, Width: 2, Encoding: Scaled, Quantity: Capacity, Access: ReadOnly, Unit: "Ah"},
	OutputEnergy:          {Address: 0x08, Width: 2, Encoding: Scaled, Quantity: Energy, Access: ReadOnly, Unit: "Wh"},
	OutputTimeHours:       {Address: 0x0A, Width: 1, Access: ReadOnly, Unit: "h"},
	OutputTimeMinutes:     {Address: 0x0B, Width: 1, Access: ReadOnly, Unit: "min"},
	OutputTimeSeconds:     {Address: 0x0C, Width: 1, Access: ReadOnly, Unit: "s"},
	InternalTemperature:   {Address: 0x0D, Width: 1, Encoding: Scaled, Scale: 10, Access: ReadOnly, Unit: "°"},
	ExternalTemperature:   {Address: 0x0E, Width: 1, Encoding: Scaled, Scale: 10, Access: ReadOnly, Unit: "°"},
	KeyLock:               {Address: 0x0F, Width: 1, Encoding: Boolean, Access: ReadWrite, Max: 1},
	// Writing zero clears active protections and silences the buzzer.
	ProtectionStatus:          {Address: 0x10, Width: 1, Encoding: Bitfield, Access: ReadWrite, Max: 0x07FF},
	OutputMode:                {Address: 0x11, Width: 1, Access: ReadOnly},
	OutputEnabled:             {Address: 0x12, Width: 1, Encoding: Boolean, Access: ReadWrite, Max: 1},
	TemperatureDisplayUnit:    {Address: 0x13, Width: 1, Access: ReadWrite, Max: 1},
	BacklightLevel:            {Address: 0x14, Width: 1, Access: ReadWrite, Max: 5},
	SleepTimeout:              {Address: 0x15, Width: 1, Access: ReadWrite, Unit: "min"},
	Model:                     {Address: 0x16, Width: 1, Access: ReadOnly},
	FirmwareVersion:           {Address: 0x17, Width: 1, Access: ReadOnly},
	SlaveAddress:              {Address: 0x18, Width: 1, Access: ReadWrite, Min: 1, Max: 247},
	BaudRate:                  {Address: 0x19, Width: 1, Access: ReadWrite, Max: 8},
	InternalTemperatureOffset: {Address: 0x1A, Width: 1, Access: ReadWrite},
	ExternalTemperatureOffset: {Address: 0x1B, Width: 1, Access: ReadWrite},
	Buzzer:                    {Address: 0x1C, Width: 1, Encoding: Boolean, Access: ReadWrite, Max: 1},
	// Writing a group number loads that preset.
	RecallPreset:         {Address: 0x1D, Width: 1, Access: WriteOnly, Max: 9},
	DeviceAwake:          {Address: 0x1E, Width: 1, Encoding: Boolean, Access: ReadWrite, Max: 1},
	MPPTEnabled:          {Address: 0x1F, Width: 1, Encoding: Boolean, Access: ReadWrite, Max: 1},
	MPPTCoefficient:      {Address: 0x20, Width: 1, Encoding: Scaled, Scale: 100, Access: ReadWrite, Max: 1},
	BatteryFullCurrent:   {Address: 0x21, Width: 1, Encoding: Scaled, Quantity: Current, Access: ReadWrite, Unit: "A"},
	ConstantPowerEnabled: {Address: 0x22, Width: 1, Encoding: Boolean, Access: ReadWrite, Max: 1},
	ConstantPower:        {Address: 0x23, Width: 1, Encoding: Scaled, Quantity: Power, Access: ReadWrite, Unit: "W"},

	LowVoltageProtection:              {Address: 0x52, Width: 1, Encoding: Scaled, Quantity: Voltage, Access: ReadWrite, Unit: "V"},
	OverVoltageProtection:             {Address: 0x53, Width: 1, Encoding: Scaled, Quantity: Voltage, Access: ReadWrite, Unit: "V"},
	OverCurrentProtection:             {Address: 0x54, Width: 1, Encoding: Scaled, Quantity: Current, Access: ReadWrite, Unit: "A"},
	OverPowerProtection:               {Address: 0x55, Width: 1, Encoding: Scaled, Quantity: Power, Access: ReadWrite, Unit: "W"},
	OverTimeHours:                     {Address: 0x56, Width: 1, Access: ReadWrite, Unit: "h"},
	OverTimeMinutes:                   {Address: 0x57, Width: 1, Access: ReadWrite, Unit: "min", Max: 59},
	OverCapacityProtection:            {Address: 0x58, Width: 2, Encoding: Scaled, Quantity: Capacity, Access: ReadWrite, Unit: "Ah"},
	OverEnergyProtection:              {Address: 0x5A, Width: 2, Encoding: Scaled, Quantity: Energy, Access: ReadWrite, Unit: "Wh"},
	OverTemperatureProtection:         {Address: 0x5C, Width: 1, Access: ReadWrite, Unit: "°"},
	PowerOnOutput:                     {Address: 0x5D, Width: 1, Encoding: Boolean, Access: ReadWrite, Max: 1},
	ExternalOverTemperatureProtection: {Address: 0x5E, Width: 1, Access: ReadWrite, Unit: "°"},
}

// Map is the register table with the fixed-point steps of one supply model.
type Map struct {
	scaling Scaling
	regs    [numProperties]Register
}

var defaultMap = NewMap(DefaultScaling)

// NewMap applies s to every model-scaled register.
func NewMap(s Scaling) *Map {
	m := &Map{scaling: s, regs: table}
	for i := range m.regs {
		r := &m.regs[i]
		if r.Quantity != NoQuantity {
			r.Scale = s.steps(r.Quantity)
		}
		if r.Scale == 0 {
			r.Scale = 1
		}
	}
	return m
}

// Scaling returns the steps the map was built with.
func (m *Map) Scaling() Scaling {
	return m.scaling
}

// Lookup returns the register for p. p must be one of the declared
// properties; anything else is a programming error and panics.
func (m *Map) Lookup(p Property) Register {
	if p < 0 || p >= numProperties {
		panic(fmt.Sprintf("xy: lookup of undeclared property %d", int(p)))
	}
	return m.regs[p]
}

// Lookup returns the register for p under DefaultScaling.
func Lookup(p Property) Register {
	return defaultMap.Lookup(p)
}
