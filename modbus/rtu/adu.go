// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"

	"github.com/ffutop/sinilink-xy/modbus"
	"github.com/ffutop/sinilink-xy/modbus/crc"
)

var (
	// ErrTruncated is returned for frames shorter than their layout requires.
	ErrTruncated = errors.New("modbus: frame truncated")
	// ErrCRCMismatch is returned when the trailing checksum does not match.
	ErrCRCMismatch = errors.New("modbus: crc mismatch")
)

// ApplicationDataUnit is a Modbus RTU frame.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode parses and checks a raw RTU frame.
//
// Exception responses decode successfully at the framing level, so Decode
// returns the frame together with a *modbus.ExceptionError. Callers that only
// care about the outcome can treat any non-nil error as failure.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		err = fmt.Errorf("%w: length '%v' does not meet minimum '%v'", ErrTruncated, length, MinSize)
		return
	}

	// Calculate checksum
	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-CRCSize])
	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if checksum != c.Value() {
		err = fmt.Errorf("%w: received '%#04x', computed '%#04x'", ErrCRCMismatch, checksum, c.Value())
		return
	}

	data := make([]byte, length-MinSize)
	copy(data, raw[2:length-CRCSize])
	adu = &ApplicationDataUnit{
		SlaveID: raw[0],
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: raw[1],
			Data:         data,
		},
	}

	if adu.Pdu.IsException() {
		if length != ExceptionSize {
			adu = nil
			err = fmt.Errorf("%w: exception response length '%v', want '%v'", ErrTruncated, length, ExceptionSize)
			return
		}
		err = &modbus.ExceptionError{
			FunctionCode:  adu.Pdu.FunctionCode,
			ExceptionCode: adu.Pdu.Data[0],
		}
	}
	return
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + MinSize
	if length > MaxSize {
		err = fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
		return
	}
	raw = make([]byte, length)

	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	copy(raw[2:], adu.Pdu.Data)

	// Append crc
	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-CRCSize])
	checksum := c.Value()

	raw[length-1] = byte(checksum >> 8)
	raw[length-2] = byte(checksum)
	return
}

// Verify checks that resp answers req: same slave and same function code.
// An exception response for the request's function code passes.
func (req *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) (err error) {
	if req.SlaveID != resp.SlaveID {
		err = fmt.Errorf("modbus: response slave id '%v' does not match request '%v'", resp.SlaveID, req.SlaveID)
		return
	}
	if resp.Pdu.FunctionCode&^modbus.ExceptionFlag != req.Pdu.FunctionCode {
		err = fmt.Errorf("modbus: response function code '%v' does not match request '%v'", resp.Pdu.FunctionCode, req.Pdu.FunctionCode)
		return
	}
	return
}
