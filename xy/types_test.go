// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xy

import (
	"errors"
	"testing"
)

func TestBaudRateCode(t *testing.T) {
	tests := []struct {
		code BaudRateCode
		rate int
	}{
		{0, 9600},
		{4, 56000},
		{5, 57600},
		{DefaultBaudRate, 115200},
		{8, 4800},
		{9, 0},
	}
	for _, tt := range tests {
		if got := tt.code.BitRate(); got != tt.rate {
			t.Errorf("BaudRateCode(%d).BitRate() = %d, want %d", tt.code, got, tt.rate)
		}
		if tt.rate == 0 {
			continue
		}
		code, err := BaudRateFor(tt.rate)
		if err != nil || code != tt.code {
			t.Errorf("BaudRateFor(%d) = %d, %v, want %d", tt.rate, code, err, tt.code)
		}
	}
	if _, err := BaudRateFor(1200); !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("BaudRateFor(1200) error = %v", err)
	}
}

func TestProtectionFlags(t *testing.T) {
	tests := []struct {
		flags ProtectionFlags
		want  string
	}{
		{0, "none"},
		{ProtectOVP, "OVP"},
		{ProtectOCP | ProtectOTP, "OCP|OTP"},
		{ProtectETP, "ETP"},
		{ProtectLVP | 0x8000, "LVP|0x8000"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("ProtectionFlags(0x%04X).String() = %q, want %q", uint16(tt.flags), got, tt.want)
		}
	}
	if ProtectETP != 1<<10 {
		t.Errorf("ProtectETP = 0x%X, want bit 10", uint16(ProtectETP))
	}
	f := ProtectOVP | ProtectOPP
	if !f.Has(ProtectOPP) || f.Has(ProtectOCP) {
		t.Errorf("Has() mismatch for %v", f)
	}
}

func TestProductModel(t *testing.T) {
	if got := XY7025.String(); got != "XY7025" {
		t.Errorf("String() = %q", got)
	}
	if got := ProductModel(1).String(); got != "unknown(1)" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseProductModel(t *testing.T) {
	tests := []struct {
		name    string
		want    ProductModel
		wantErr bool
	}{
		{"XY7025", XY7025, false},
		{"xy3607f", XY3607F, false},
		{"6020", XY6020L, false},
		{"1234", ProductModel(1234), false},
		{"DPS5005", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseProductModel(tt.name)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseProductModel(%q) = %v, %v", tt.name, got, err)
		}
	}
}

func TestTemperatureUnit(t *testing.T) {
	if got := Fahrenheit.ToCelsius(212); got != 100 {
		t.Errorf("ToCelsius(212) = %v", got)
	}
	if got := Celsius.ToCelsius(21.5); got != 21.5 {
		t.Errorf("ToCelsius(21.5) = %v", got)
	}
	if got := Fahrenheit.FromCelsius(100); got != 212 {
		t.Errorf("FromCelsius(100) = %v", got)
	}
	if got := Celsius.FromCelsius(21.5); got != 21.5 {
		t.Errorf("FromCelsius(21.5) = %v", got)
	}
}

func TestFormatFirmwareVersion(t *testing.T) {
	if got := FormatFirmwareVersion(113); got != "1.13" {
		t.Errorf("FormatFirmwareVersion(113) = %q", got)
	}
}

func TestParseProperty(t *testing.T) {
	for _, name := range []string{"OutputVoltageSetpoint", "output-voltage-setpoint", "OUTPUT_VOLTAGE_SETPOINT"} {
		p, err := ParseProperty(name)
		if err != nil || p != OutputVoltageSetpoint {
			t.Errorf("ParseProperty(%q) = %v, %v", name, p, err)
		}
	}
	if _, err := ParseProperty("flux"); err == nil {
		t.Error("expected error for unknown property")
	}
	if got := Property(-1).String(); got != "Property(-1)" {
		t.Errorf("String() = %q", got)
	}
}
