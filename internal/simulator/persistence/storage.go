// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence keeps the simulated register file across restarts.
package persistence

import (
	"fmt"

	"github.com/ffutop/sinilink-xy/internal/config"
	"github.com/ffutop/sinilink-xy/internal/simulator/model"
)

// Storage defines the interface for persisting a simulated register file.
type Storage interface {
	// Load returns the register file. Fresh storage yields zeroed registers
	// and reports fresh as true so the caller can apply factory defaults.
	Load() (regs *model.Registers, fresh bool, err error)

	// Save flushes the register file to storage.
	Save(regs *model.Registers) error

	// OnWrite is called after registers were modified.
	OnWrite(address, quantity uint16)

	Close() error
}

// Open builds the storage selected by cfg.
func Open(cfg config.PersistenceConfig) (Storage, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "file":
		return NewFileStorage(cfg.Path), nil
	case "mmap":
		return NewMmapStorage(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown persistence type: %s", cfg.Type)
	}
}
