// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package simulator emulates Sinilink XY power supplies on a Modbus RTU bus,
// for tests and for developing against without hardware.
package simulator

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ffutop/sinilink-xy/internal/simulator/model"
	"github.com/ffutop/sinilink-xy/internal/simulator/persistence"
	"github.com/ffutop/sinilink-xy/modbus"
	"github.com/ffutop/sinilink-xy/xy"
)

const (
	defaultLoad     = 10.0 // ohms
	firmwareVersion = 113
)

// Device is one simulated supply. It answers the three function codes the
// XY firmware implements and models a resistive load on the output.
type Device struct {
	regs    *model.Registers
	storage persistence.Storage
	m       *xy.Map

	mu sync.Mutex
	// load is the resistance across the output terminals.
	load float64
	// Sub-step remainders of the output counters.
	ah, wh, seconds float64
}

// NewDevice returns a device with factory defaults and no persistence.
func NewDevice(product xy.ProductModel, slaveID byte) *Device {
	d := newDevice(model.NewRegisters(), persistence.NewMemoryStorage(), product)
	d.Reset(product, slaveID)
	return d
}

// LoadDevice restores a device from storage. Fresh storage is initialised
// with factory defaults for product and slaveID.
func LoadDevice(storage persistence.Storage, product xy.ProductModel, slaveID byte) (*Device, error) {
	regs, fresh, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load registers: %w", err)
	}
	if !fresh {
		product = xy.ProductModel(regs.Get(xy.Lookup(xy.Model).Address))
	}
	d := newDevice(regs, storage, product)
	if fresh {
		d.Reset(product, slaveID)
		if err := storage.Save(regs); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func newDevice(regs *model.Registers, storage persistence.Storage, product xy.ProductModel) *Device {
	s, err := xy.ScalingFor(product)
	if err != nil {
		s = xy.DefaultScaling
	}
	return &Device{
		regs:    regs,
		storage: storage,
		m:       xy.NewMap(s),
		load:    defaultLoad,
	}
}

// Registers exposes the register file.
func (d *Device) Registers() *model.Registers {
	return d.regs
}

// SlaveID returns the address the device currently answers on.
func (d *Device) SlaveID() byte {
	return byte(d.regs.Get(uint16(d.addr(xy.SlaveAddress))))
}

// SetLoad changes the resistance across the output. Zero leaves the output
// open.
func (d *Device) SetLoad(ohms float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.load = ohms
	d.regs.Update(d.settle)
}

// Reset restores factory defaults.
func (d *Device) Reset(product xy.ProductModel, slaveID byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs.Update(func(w []uint16) {
		for i := range w {
			w[i] = 0
		}
		d.put(w, xy.OutputVoltageSetpoint, 5)
		d.put(w, xy.OutputCurrentSetpoint, 1)
		d.put(w, xy.InputVoltage, 24)
		d.put(w, xy.InternalTemperature, 25)
		d.put(w, xy.ExternalTemperature, 25)
		w[d.addr(xy.Model)] = uint16(product)
		w[d.addr(xy.FirmwareVersion)] = firmwareVersion
		w[d.addr(xy.SlaveAddress)] = uint16(slaveID)
		w[d.addr(xy.BaudRate)] = uint16(xy.DefaultBaudRate)
		w[d.addr(xy.BacklightLevel)] = 5
		w[d.addr(xy.DeviceAwake)] = 1
		for g := 0; g < xy.PresetGroups; g++ {
			base, _ := xy.PresetAddress(g)
			copy(w[base:], w[d.addr(xy.OutputVoltageSetpoint):d.addr(xy.OutputCurrentSetpoint)+1])
		}
		d.settle(w)
	})
}

func (d *Device) addr(p xy.Property) int {
	return int(d.m.Lookup(p).Address)
}

func (d *Device) get(w []uint16, p xy.Property) float64 {
	r := d.m.Lookup(p)
	v, _ := xy.DecodeValue(r, w[r.Address:int(r.Address)+r.Width])
	return v
}

// put stores v, saturating at the register limits.
func (d *Device) put(w []uint16, p xy.Property, v float64) {
	r := d.m.Lookup(p)
	raw := math.Round(v * r.Scale)
	limit := math.Pow(2, float64(16*r.Width)) - 1
	raw = math.Max(0, math.Min(raw, limit))
	words, _ := xy.Split(r, uint32(raw))
	copy(w[r.Address:], words)
}

// Process executes a request against the register file. Protocol errors
// come back as exception responses, never as errors.
func (d *Device) Process(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return d.handleReadHoldingRegisters(req)
	case modbus.FuncCodeWriteSingleRegister:
		return d.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return d.handleWriteMultipleRegisters(req)
	default:
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}
}

func (d *Device) handleReadHoldingRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > modbus.MaxReadRegisters {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	words, err := d.regs.Read(address, quantity)
	if err != nil {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}
	respData := make([]byte, 1+2*len(words))
	respData[0] = byte(2 * len(words))
	for i, v := range words {
		binary.BigEndian.PutUint16(respData[1+2*i:], v)
	}
	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}

func (d *Device) handleWriteSingleRegister(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if code := d.write(address, []uint16{value}); code != 0 {
		return modbus.Exception(req.FunctionCode, code), nil
	}
	return req, nil // Echo request
}

func (d *Device) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 7 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > modbus.MaxWriteRegisters {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	if int(byteCount) != 2*int(quantity) || len(req.Data)-5 != int(byteCount) {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(req.Data[5+2*i:])
	}
	if code := d.write(address, values); code != 0 {
		return modbus.Exception(req.FunctionCode, code), nil
	}

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)
	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}

// write validates and stores values, then applies side effects. It returns
// an exception code, or zero on success.
func (d *Device) write(address uint16, values []uint16) byte {
	if int(address)+len(values) > model.Size {
		return modbus.ExceptionCodeIllegalDataAddress
	}
	for i, v := range values {
		if code := d.check(address+uint16(i), v); code != 0 {
			return code
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs.Update(func(w []uint16) {
		copy(w[address:], values)
		d.apply(w, address, len(values))
		d.settle(w)
	})
	d.storage.OnWrite(address, uint16(len(values)))
	return 0
}

// check decides whether v may be stored at address.
func (d *Device) check(address, v uint16) byte {
	if inPreset(address) {
		return 0
	}
	for _, p := range xy.Properties() {
		r := d.m.Lookup(p)
		if address < r.Address || int(address) >= int(r.Address)+r.Width {
			continue
		}
		if !r.Access.Writable() {
			return modbus.ExceptionCodeIllegalDataAddress
		}
		if r.Width == 1 && r.Max != 0 {
			lo, hi := math.Round(r.Min*r.Scale), math.Round(r.Max*r.Scale)
			if float64(v) < lo || float64(v) > hi {
				return modbus.ExceptionCodeIllegalDataValue
			}
		}
		return 0
	}
	return modbus.ExceptionCodeIllegalDataAddress
}

func inPreset(address uint16) bool {
	first, _ := xy.PresetAddress(0)
	last, _ := xy.PresetAddress(xy.PresetGroups - 1)
	return address >= first && address < last+xy.PresetSize && (address-first)%0x10 < xy.PresetSize
}

// apply runs the actions triggered by writing registers address..+n.
func (d *Device) apply(w []uint16, address uint16, n int) {
	touched := func(p xy.Property) bool {
		a := d.addr(p)
		return a >= int(address) && a < int(address)+n
	}
	if touched(xy.RecallPreset) {
		group := int(w[d.addr(xy.RecallPreset)])
		w[d.addr(xy.RecallPreset)] = 0
		base, _ := xy.PresetAddress(group)
		m0, _ := xy.PresetAddress(0)
		if group != 0 {
			copy(w[m0:m0+xy.PresetSize], w[base:base+xy.PresetSize])
		}
		w[d.addr(xy.OutputVoltageSetpoint)] = w[m0]
		w[d.addr(xy.OutputCurrentSetpoint)] = w[m0+1]
	}
	if touched(xy.OutputEnabled) && w[d.addr(xy.OutputEnabled)] != 0 {
		d.ah, d.wh, d.seconds = 0, 0, 0
		for _, p := range []xy.Property{xy.OutputCapacity, xy.OutputEnergy, xy.OutputTimeHours, xy.OutputTimeMinutes, xy.OutputTimeSeconds} {
			d.put(w, p, 0)
		}
	}
}

// settle recomputes the readbacks from the setpoints, the load and the
// protection limits of group M0.
func (d *Device) settle(w []uint16) {
	off := func() {
		w[d.addr(xy.OutputEnabled)] = 0
		d.put(w, xy.OutputVoltageReadback, 0)
		d.put(w, xy.OutputCurrentReadback, 0)
		d.put(w, xy.OutputPowerReadback, 0)
		w[d.addr(xy.OutputMode)] = uint16(xy.ConstantVoltage)
	}
	trip := func(f xy.ProtectionFlags) {
		w[d.addr(xy.ProtectionStatus)] |= uint16(f)
		off()
	}
	if w[d.addr(xy.OutputEnabled)] == 0 || xy.ProtectionFlags(w[d.addr(xy.ProtectionStatus)]) != 0 {
		off()
		return
	}

	vset := d.get(w, xy.OutputVoltageSetpoint)
	iset := d.get(w, xy.OutputCurrentSetpoint)
	if ovp := d.get(w, xy.OverVoltageProtection); ovp > 0 && vset > ovp {
		trip(xy.ProtectOVP)
		return
	}
	v, i, mode := vset, 0.0, xy.ConstantVoltage
	if d.load > 0 {
		i = vset / d.load
	}
	if i > iset {
		i, mode = iset, xy.ConstantCurrent
		v = i * d.load
	}
	if ocp := d.get(w, xy.OverCurrentProtection); ocp > 0 && i > ocp {
		trip(xy.ProtectOCP)
		return
	}
	if opp := d.get(w, xy.OverPowerProtection); opp > 0 && v*i > opp {
		trip(xy.ProtectOPP)
		return
	}
	d.put(w, xy.OutputVoltageReadback, v)
	d.put(w, xy.OutputCurrentReadback, i)
	d.put(w, xy.OutputPowerReadback, v*i)
	w[d.addr(xy.OutputMode)] = uint16(mode)
}

// Advance runs the output counters forward by elapsed.
func (d *Device) Advance(elapsed time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs.Update(func(w []uint16) {
		if w[d.addr(xy.OutputEnabled)] == 0 {
			return
		}
		h := elapsed.Hours()
		d.ah += d.get(w, xy.OutputCurrentReadback) * h
		d.wh += d.get(w, xy.OutputPowerReadback) * h
		d.seconds += elapsed.Seconds()
		d.put(w, xy.OutputCapacity, d.ah)
		d.put(w, xy.OutputEnergy, d.wh)
		total := int(d.seconds)
		d.put(w, xy.OutputTimeHours, float64(total/3600))
		d.put(w, xy.OutputTimeMinutes, float64(total/60%60))
		d.put(w, xy.OutputTimeSeconds, float64(total%60))
	})
}
