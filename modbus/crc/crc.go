// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc computes the CRC16 used by Modbus RTU
// (polynomial 0xA001 reflected, initial value 0xFFFF).
package crc

import "github.com/sigurn/crc16"

var table = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC is a running Modbus CRC16. The zero value must be Reset before use.
type CRC struct {
	reg uint16
}

// Reset sets the register to the initial value.
func (crc *CRC) Reset() *CRC {
	crc.reg = crc16.Init(table)
	return crc
}

// PushBytes feeds bs into the register.
func (crc *CRC) PushBytes(bs []byte) *CRC {
	crc.reg = crc16.Update(crc.reg, bs, table)
	return crc
}

// Value returns the checksum of all bytes pushed since the last Reset.
func (crc *CRC) Value() uint16 {
	return crc16.Complete(crc.reg, table)
}

// Checksum returns the CRC of bs.
func Checksum(bs []byte) uint16 {
	return crc16.Checksum(bs, table)
}

// Append appends the CRC of bs to bs, low byte first.
func Append(bs []byte) []byte {
	sum := Checksum(bs)
	return append(bs, byte(sum), byte(sum>>8))
}
