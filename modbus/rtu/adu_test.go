// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ffutop/sinilink-xy/modbus"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		adu  ApplicationDataUnit
		want []byte
	}{
		{
			"ReadHoldingRegisters",
			ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x01}}},
			[]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A},
		},
		{
			"WriteSingleRegister",
			ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0x00, 0x00, 0x04, 0xE2}}},
			[]byte{0x01, 0x06, 0x00, 0x00, 0x04, 0xE2, 0x0B, 0x43},
		},
		{
			"WriteMultipleRegisters",
			ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x10, Data: []byte{0x00, 0x06, 0x00, 0x02, 0x04, 0x00, 0x01, 0x00, 0x02}}},
			[]byte{0x01, 0x10, 0x00, 0x06, 0x00, 0x02, 0x04, 0x00, 0x01, 0x00, 0x02, 0xA3, 0x84},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.adu.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestEncodeTooLarge(t *testing.T) {
	adu := ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x10, Data: make([]byte, MaxSize)}}
	if _, err := adu.Encode(); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}

func TestDecode(t *testing.T) {
	adu, err := Decode([]byte{0x01, 0x03, 0x02, 0x09, 0xC4, 0xBF, 0x87})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if adu.SlaveID != 1 || adu.Pdu.FunctionCode != 0x03 {
		t.Errorf("header = %d/%#02x, want 1/0x03", adu.SlaveID, adu.Pdu.FunctionCode)
	}
	if !bytes.Equal(adu.Pdu.Data, []byte{0x02, 0x09, 0xC4}) {
		t.Errorf("data = % X", adu.Pdu.Data)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	in := ApplicationDataUnit{SlaveID: 7, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x04, 0x01, 0x02, 0x03, 0x04}}}
	raw, err := in.Encode()
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out.SlaveID != in.SlaveID || out.Pdu.FunctionCode != in.Pdu.FunctionCode || !bytes.Equal(out.Pdu.Data, in.Pdu.Data) {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestDecodeBitFlip(t *testing.T) {
	good := []byte{0x01, 0x03, 0x02, 0x09, 0xC4, 0xBF, 0x87}
	for i := range good {
		for bit := 0; bit < 8; bit++ {
			raw := append([]byte(nil), good...)
			raw[i] ^= 1 << bit
			if _, err := Decode(raw); !errors.Is(err, ErrCRCMismatch) {
				t.Errorf("flip byte %d bit %d: err = %v, want ErrCRCMismatch", i, bit, err)
			}
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	for _, raw := range [][]byte{nil, {0x01}, {0x01, 0x03, 0x02}} {
		if _, err := Decode(raw); !errors.Is(err, ErrTruncated) {
			t.Errorf("Decode(% X) err = %v, want ErrTruncated", raw, err)
		}
	}
}

func TestDecodeException(t *testing.T) {
	adu, err := Decode([]byte{0x01, 0x83, 0x02, 0xC0, 0xF1})
	var exc *modbus.ExceptionError
	if !errors.As(err, &exc) {
		t.Fatalf("err = %v, want *modbus.ExceptionError", err)
	}
	if exc.ExceptionCode != modbus.ExceptionCodeIllegalDataAddress {
		t.Errorf("exception code = %d, want %d", exc.ExceptionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	if adu == nil || adu.SlaveID != 1 {
		t.Errorf("adu = %+v, want slave 1", adu)
	}
}

func TestVerify(t *testing.T) {
	req := &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x03}}
	tests := []struct {
		name    string
		resp    *ApplicationDataUnit
		wantErr bool
	}{
		{"Match", &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x03}}, false},
		{"Exception", &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x83}}, false},
		{"OtherSlave", &ApplicationDataUnit{SlaveID: 2, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x03}}, true},
		{"OtherFunction", &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x06}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := req.Verify(tt.resp); (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
