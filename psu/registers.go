// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ffutop/sinilink-xy/modbus"
	"github.com/ffutop/sinilink-xy/transport/rtu"
)

// readRegisters issues ReadHoldingRegisters and checks the byte count.
func (d *Device) readRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	if quantity < 1 || quantity > modbus.MaxReadRegisters {
		return nil, fmt.Errorf("quantity %d must be between 1 and %d", quantity, modbus.MaxReadRegisters)
	}
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:], address)
	binary.BigEndian.PutUint16(data[2:], quantity)

	resp, err := d.client.Send(ctx, modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeReadHoldingRegisters, Data: data})
	if err != nil {
		return nil, err
	}
	count := int(quantity) * 2
	if len(resp.Data) != count+1 || int(resp.Data[0]) != count {
		return nil, fmt.Errorf("%w: byte count %d, want %d", rtu.ErrUnexpectedResponse, len(resp.Data)-1, count)
	}
	words := make([]uint16, quantity)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(resp.Data[1+2*i:])
	}
	return words, nil
}

// writeRegisters uses WriteSingleRegister for one word and
// WriteMultipleRegisters otherwise, and checks the echo.
func (d *Device) writeRegisters(ctx context.Context, address uint16, values []uint16) error {
	if len(values) < 1 || len(values) > modbus.MaxWriteRegisters {
		return fmt.Errorf("quantity %d must be between 1 and %d", len(values), modbus.MaxWriteRegisters)
	}
	var pdu modbus.ProtocolDataUnit
	if len(values) == 1 {
		pdu.FunctionCode = modbus.FuncCodeWriteSingleRegister
		pdu.Data = make([]byte, 4)
		binary.BigEndian.PutUint16(pdu.Data[0:], address)
		binary.BigEndian.PutUint16(pdu.Data[2:], values[0])
	} else {
		pdu.FunctionCode = modbus.FuncCodeWriteMultipleRegisters
		pdu.Data = make([]byte, 5+2*len(values))
		binary.BigEndian.PutUint16(pdu.Data[0:], address)
		binary.BigEndian.PutUint16(pdu.Data[2:], uint16(len(values)))
		pdu.Data[4] = byte(2 * len(values))
		for i, v := range values {
			binary.BigEndian.PutUint16(pdu.Data[5+2*i:], v)
		}
	}

	resp, err := d.client.Send(ctx, pdu)
	if err != nil {
		return err
	}
	// Both functions echo the first four data bytes of the request.
	if len(resp.Data) != 4 || binary.BigEndian.Uint32(resp.Data) != binary.BigEndian.Uint32(pdu.Data) {
		return fmt.Errorf("%w: echo % X does not match request", rtu.ErrUnexpectedResponse, resp.Data)
	}
	return nil
}
