// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xy

import (
	"fmt"
	"strconv"
	"strings"
)

// ControlMode is the regulation loop currently limiting the output.
type ControlMode uint16

const (
	ConstantVoltage ControlMode = 0
	ConstantCurrent ControlMode = 1
)

func (m ControlMode) String() string {
	switch m {
	case ConstantVoltage:
		return "CV"
	case ConstantCurrent:
		return "CC"
	}
	return fmt.Sprintf("ControlMode(%d)", uint16(m))
}

// TemperatureUnit selects how the front panel and the temperature
// registers report degrees.
type TemperatureUnit uint16

const (
	Celsius    TemperatureUnit = 0
	Fahrenheit TemperatureUnit = 1
)

func (u TemperatureUnit) String() string {
	switch u {
	case Celsius:
		return "°C"
	case Fahrenheit:
		return "°F"
	}
	return fmt.Sprintf("TemperatureUnit(%d)", uint16(u))
}

// ToCelsius converts a reading expressed in u.
func (u TemperatureUnit) ToCelsius(v float64) float64 {
	if u == Fahrenheit {
		return (v - 32) * 5 / 9
	}
	return v
}

// FromCelsius converts a Celsius value into u.
func (u TemperatureUnit) FromCelsius(v float64) float64 {
	if u == Fahrenheit {
		return v*9/5 + 32
	}
	return v
}

// BaudRateCode is the value stored in the baud rate register.
type BaudRateCode uint16

var bitRates = [...]int{9600, 14400, 19200, 38400, 56000, 57600, 115200, 2400, 4800}

// DefaultBaudRate is the factory setting.
const DefaultBaudRate BaudRateCode = 6

// BitRate returns the line speed for c, or zero for an unknown code.
func (c BaudRateCode) BitRate() int {
	if int(c) >= len(bitRates) {
		return 0
	}
	return bitRates[c]
}

func (c BaudRateCode) String() string {
	if r := c.BitRate(); r != 0 {
		return fmt.Sprintf("%d", r)
	}
	return fmt.Sprintf("BaudRateCode(%d)", uint16(c))
}

// BaudRateFor returns the register code for a line speed.
func BaudRateFor(bitRate int) (BaudRateCode, error) {
	for i, r := range bitRates {
		if r == bitRate {
			return BaudRateCode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unsupported baud rate %d", ErrValueOutOfRange, bitRate)
}

// ProtectionFlags is the protection status bitfield. A zero value means
// no protection has tripped.
type ProtectionFlags uint16

const (
	ProtectOVP ProtectionFlags = 1 << iota // over voltage
	ProtectOCP                             // over current
	ProtectOPP                             // over power
	ProtectLVP                             // low input voltage
	ProtectOAH                             // capacity limit
	ProtectOHP                             // output time limit
	ProtectOTP                             // internal over temperature
	ProtectOEP                             // output voltage limit
	ProtectOWH                             // energy limit
	ProtectICP                             // input current
	ProtectETP                             // external over temperature
)

var protectionNames = [...]string{"OVP", "OCP", "OPP", "LVP", "OAH", "OHP", "OTP", "OEP", "OWH", "ICP", "ETP"}

// Has reports whether every flag in g is set.
func (f ProtectionFlags) Has(g ProtectionFlags) bool {
	return f&g == g
}

func (f ProtectionFlags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for i, name := range protectionNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if rest := f &^ (1<<len(protectionNames) - 1); rest != 0 {
		names = append(names, fmt.Sprintf("0x%04X", uint16(rest)))
	}
	return strings.Join(names, "|")
}

// ProductModel is the identifier reported in the model register.
type ProductModel uint16

const (
	XY3607F ProductModel = 3607
	XY6020L ProductModel = 6020
	XY7025  ProductModel = 7025
	XY12522 ProductModel = 12522
)

func (m ProductModel) String() string {
	switch m {
	case XY3607F:
		return "XY3607F"
	case XY6020L:
		return "XY6020L"
	case XY7025:
		return "XY7025"
	case XY12522:
		return "XY12522"
	}
	return fmt.Sprintf("unknown(%d)", uint16(m))
}

// ParseProductModel accepts a model name such as "XY7025" or its numeric
// code.
func ParseProductModel(name string) (ProductModel, error) {
	for _, m := range []ProductModel{XY3607F, XY6020L, XY7025, XY12522} {
		if strings.EqualFold(name, m.String()) {
			return m, nil
		}
	}
	code, err := strconv.ParseUint(name, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("xy: unknown model %q", name)
	}
	return ProductModel(code), nil
}

// FormatFirmwareVersion formats the raw version register, e.g. 113 as "1.13".
func FormatFirmwareVersion(raw uint16) string {
	return fmt.Sprintf("%d.%02d", raw/100, raw%100)
}
