// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xy

import (
	"fmt"
	"strings"
)

// Property is a logical setting or reading of the power supply.
type Property int

// The live register file, followed by the protection settings of preset M0,
// which the device applies to the running output.
const (
	OutputVoltageSetpoint Property = iota
	OutputCurrentSetpoint
	OutputVoltageReadback
	OutputCurrentReadback
	OutputPowerReadback
	InputVoltage
	OutputCapacity
	OutputEnergy
	OutputTimeHours
	OutputTimeMinutes
	OutputTimeSeconds
	InternalTemperature
	ExternalTemperature
	KeyLock
	ProtectionStatus
	OutputMode
	OutputEnabled
	TemperatureDisplayUnit
	BacklightLevel
	SleepTimeout
	Model
	FirmwareVersion
	SlaveAddress
	BaudRate
	InternalTemperatureOffset
	ExternalTemperatureOffset
	Buzzer
	RecallPreset
	DeviceAwake
	MPPTEnabled
	MPPTCoefficient
	BatteryFullCurrent
	ConstantPowerEnabled
	ConstantPower

	LowVoltageProtection
	OverVoltageProtection
	OverCurrentProtection
	OverPowerProtection
	OverTimeHours
	OverTimeMinutes
	OverCapacityProtection
	OverEnergyProtection
	OverTemperatureProtection
	PowerOnOutput
	ExternalOverTemperatureProtection

	numProperties
)

var propertyNames = [numProperties]string{
	OutputVoltageSetpoint:             "OutputVoltageSetpoint",
	OutputCurrentSetpoint:             "OutputCurrentSetpoint",
	OutputVoltageReadback:             "OutputVoltageReadback",
	OutputCurrentReadback:             "OutputCurrentReadback",
	OutputPowerReadback:               "OutputPowerReadback",
	InputVoltage:                      "InputVoltage",
	OutputCapacity:                    "OutputCapacity",
	OutputEnergy:                      "OutputEnergy",
	OutputTimeHours:                   "OutputTimeHours",
	OutputTimeMinutes:                 "OutputTimeMinutes",
	OutputTimeSeconds:                 "OutputTimeSeconds",
	InternalTemperature:               "InternalTemperature",
	ExternalTemperature:               "ExternalTemperature",
	KeyLock:                           "KeyLock",
	ProtectionStatus:                  "ProtectionStatus",
	OutputMode:                        "OutputMode",
	OutputEnabled:                     "OutputEnabled",
	TemperatureDisplayUnit:            "TemperatureDisplayUnit",
	BacklightLevel:                    "BacklightLevel",
	SleepTimeout:                      "SleepTimeout",
	Model:                             "Model",
	FirmwareVersion:                   "FirmwareVersion",
	SlaveAddress:                      "SlaveAddress",
	BaudRate:                          "BaudRate",
	InternalTemperatureOffset:         "InternalTemperatureOffset",
	ExternalTemperatureOffset:         "ExternalTemperatureOffset",
	Buzzer:                            "Buzzer",
	RecallPreset:                      "RecallPreset",
	DeviceAwake:                       "DeviceAwake",
	MPPTEnabled:                       "MPPTEnabled",
	MPPTCoefficient:                   "MPPTCoefficient",
	BatteryFullCurrent:                "BatteryFullCurrent",
	ConstantPowerEnabled:              "ConstantPowerEnabled",
	ConstantPower:                     "ConstantPower",
	LowVoltageProtection:              "LowVoltageProtection",
	OverVoltageProtection:             "OverVoltageProtection",
	OverCurrentProtection:             "OverCurrentProtection",
	OverPowerProtection:               "OverPowerProtection",
	OverTimeHours:                     "OverTimeHours",
	OverTimeMinutes:                   "OverTimeMinutes",
	OverCapacityProtection:            "OverCapacityProtection",
	OverEnergyProtection:              "OverEnergyProtection",
	OverTemperatureProtection:         "OverTemperatureProtection",
	PowerOnOutput:                     "PowerOnOutput",
	ExternalOverTemperatureProtection: "ExternalOverTemperatureProtection",
}

func (p Property) String() string {
	if p < 0 || p >= numProperties {
		return fmt.Sprintf("Property(%d)", int(p))
	}
	return propertyNames[p]
}

// Properties returns every declared property in register order.
func Properties() []Property {
	ps := make([]Property, numProperties)
	for i := range ps {
		ps[i] = Property(i)
	}
	return ps
}

// ParseProperty looks a property up by name. Case, dashes and underscores are
// ignored, so "output-voltage-setpoint" names OutputVoltageSetpoint.
func ParseProperty(name string) (Property, error) {
	want := normalize(name)
	for p, n := range propertyNames {
		if normalize(n) == want {
			return Property(p), nil
		}
	}
	return 0, fmt.Errorf("xy: unknown property %q", name)
}

func normalize(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
}
