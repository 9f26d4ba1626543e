// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"fmt"
	"sync"
)

// Size covers the live registers and all ten preset groups.
const Size = 0x100

// Registers is the holding register file of one simulated supply.
type Registers struct {
	mu sync.RWMutex

	// Words may be backed by persistent storage; access it through the
	// methods once the device is serving.
	Words []uint16
}

// NewRegisters returns a zeroed register file.
func NewRegisters() *Registers {
	return &Registers{Words: make([]uint16, Size)}
}

// Read copies quantity registers starting at address.
func (m *Registers) Read(address, quantity uint16) ([]uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	out := make([]uint16, quantity)
	copy(out, m.Words[address:])
	return out, nil
}

// Write stores values starting at address.
func (m *Registers) Write(address uint16, values []uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, uint16(len(values))); err != nil {
		return err
	}
	copy(m.Words[address:], values)
	return nil
}

// Get returns one register, or zero outside the file.
func (m *Registers) Get(address uint16) uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(address) >= len(m.Words) {
		return 0
	}
	return m.Words[address]
}

// Update runs fn with the register file locked for writing.
func (m *Registers) Update(fn func(words []uint16)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.Words)
}

func validateRange(address, quantity uint16) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	if int(address)+int(quantity) > Size {
		return fmt.Errorf("address range 0x%04X+%d out of bounds", address, quantity)
	}
	return nil
}
