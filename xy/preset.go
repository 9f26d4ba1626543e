// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xy

import "fmt"

const (
	// PresetGroups is the number of stored groups, M0 to M9.
	PresetGroups = 10
	// PresetSize is the number of registers in one group.
	PresetSize = 15

	presetBase   = 0x50
	presetStride = 0x10
)

// Protections are the limits stored in a preset group. Temperatures are in
// degrees Celsius; the device stores them in its display unit, see InUnit.
type Protections struct {
	LowVoltage              float64 `yaml:"low_voltage"`
	OverVoltage             float64 `yaml:"over_voltage"`
	OverCurrent             float64 `yaml:"over_current"`
	OverPower               float64 `yaml:"over_power"`
	OverTimeHours           uint16  `yaml:"over_time_hours"`
	OverTimeMinutes         uint16  `yaml:"over_time_minutes"`
	OverCapacity            float64 `yaml:"over_capacity"`
	OverEnergy              float64 `yaml:"over_energy"`
	OverTemperature         float64 `yaml:"over_temperature"`
	ExternalOverTemperature float64 `yaml:"external_over_temperature"`
}

// InUnit returns pr with the temperature limits converted from Celsius to u,
// the unit the device stores them in. A zero limit stays zero.
func (pr Protections) InUnit(u TemperatureUnit) Protections {
	pr.OverTemperature = convertLimit(pr.OverTemperature, u.FromCelsius)
	pr.ExternalOverTemperature = convertLimit(pr.ExternalOverTemperature, u.FromCelsius)
	return pr
}

// InCelsius is the inverse of InUnit.
func (pr Protections) InCelsius(u TemperatureUnit) Protections {
	pr.OverTemperature = convertLimit(pr.OverTemperature, u.ToCelsius)
	pr.ExternalOverTemperature = convertLimit(pr.ExternalOverTemperature, u.ToCelsius)
	return pr
}

func convertLimit(v float64, conv func(float64) float64) float64 {
	if v == 0 {
		return 0
	}
	return conv(v)
}

// Preset is one stored group: output setpoints, protections and whether the
// output switches on at power up.
type Preset struct {
	Voltage       float64     `yaml:"voltage"`
	Current       float64     `yaml:"current"`
	Protections   Protections `yaml:"protections"`
	PowerOnOutput bool        `yaml:"power_on_output"`
}

// PresetAddress returns the first register of group.
func PresetAddress(group int) (uint16, error) {
	if group < 0 || group >= PresetGroups {
		return 0, fmt.Errorf("%w: preset group %d", ErrValueOutOfRange, group)
	}
	return uint16(presetBase + presetStride*group), nil
}

// Offset of p inside a preset group, if p is one of the group M0 registers.
func (m *Map) presetOffset(p Property) int {
	return int(m.Lookup(p).Address) - presetBase
}

type presetField struct {
	prop   Property
	offset int
	value  func(*Preset) *float64
}

// presetFields lists the float valued slots; the integer and boolean slots
// are handled next to them.
var presetFields = []presetField{
	{OutputVoltageSetpoint, 0, func(p *Preset) *float64 { return &p.Voltage }},
	{OutputCurrentSetpoint, 1, func(p *Preset) *float64 { return &p.Current }},
	{LowVoltageProtection, -1, func(p *Preset) *float64 { return &p.Protections.LowVoltage }},
	{OverVoltageProtection, -1, func(p *Preset) *float64 { return &p.Protections.OverVoltage }},
	{OverCurrentProtection, -1, func(p *Preset) *float64 { return &p.Protections.OverCurrent }},
	{OverPowerProtection, -1, func(p *Preset) *float64 { return &p.Protections.OverPower }},
	{OverCapacityProtection, -1, func(p *Preset) *float64 { return &p.Protections.OverCapacity }},
	{OverEnergyProtection, -1, func(p *Preset) *float64 { return &p.Protections.OverEnergy }},
	{OverTemperatureProtection, -1, func(p *Preset) *float64 { return &p.Protections.OverTemperature }},
	{ExternalOverTemperatureProtection, -1, func(p *Preset) *float64 { return &p.Protections.ExternalOverTemperature }},
}

func (m *Map) fieldOffset(f presetField) int {
	if f.offset >= 0 {
		return f.offset
	}
	return m.presetOffset(f.prop)
}

// EncodePreset returns the PresetSize words of p in register order.
// Temperature limits are stored as given, already in the device unit.
func (m *Map) EncodePreset(p Preset) ([]uint16, error) {
	words := make([]uint16, PresetSize)
	for _, f := range presetFields {
		r := m.Lookup(f.prop)
		w, err := EncodeValue(r, *f.value(&p))
		if err != nil {
			return nil, fmt.Errorf("%v: %w", f.prop, err)
		}
		copy(words[m.fieldOffset(f):], w)
	}
	for _, f := range []struct {
		prop Property
		v    uint16
	}{
		{OverTimeHours, p.Protections.OverTimeHours},
		{OverTimeMinutes, p.Protections.OverTimeMinutes},
	} {
		w, err := EncodeValue(m.Lookup(f.prop), float64(f.v))
		if err != nil {
			return nil, fmt.Errorf("%v: %w", f.prop, err)
		}
		words[m.presetOffset(f.prop)] = w[0]
	}
	if p.PowerOnOutput {
		words[m.presetOffset(PowerOnOutput)] = 1
	}
	return words, nil
}

// DecodePreset is the inverse of EncodePreset.
func (m *Map) DecodePreset(words []uint16) (Preset, error) {
	var p Preset
	if len(words) != PresetSize {
		return p, fmt.Errorf("xy: preset needs %d words, got %d", PresetSize, len(words))
	}
	for _, f := range presetFields {
		r := m.Lookup(f.prop)
		off := m.fieldOffset(f)
		v, err := DecodeValue(r, words[off:off+r.Width])
		if err != nil {
			return p, fmt.Errorf("%v: %w", f.prop, err)
		}
		*f.value(&p) = v
	}
	p.Protections.OverTimeHours = words[m.presetOffset(OverTimeHours)]
	p.Protections.OverTimeMinutes = words[m.presetOffset(OverTimeMinutes)]
	p.PowerOnOutput = words[m.presetOffset(PowerOnOutput)] != 0
	return p, nil
}

// EncodePreset encodes p under DefaultScaling.
func EncodePreset(p Preset) ([]uint16, error) {
	return defaultMap.EncodePreset(p)
}

// DecodePreset decodes words under DefaultScaling.
func DecodePreset(words []uint16) (Preset, error) {
	return defaultMap.DecodePreset(words)
}
