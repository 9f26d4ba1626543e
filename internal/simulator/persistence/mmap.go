// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"errors"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/sinilink-xy/internal/simulator/model"
)

var errNotMapped = errors.New("register file is not mapped")

// MmapStorage maps the register file into memory. The simulator's registers
// alias the mapping, so a write from the bus is already in the page cache
// and persisting it is a single msync.
type MmapStorage struct {
	path string
	file *os.File
	view mmap.MMap
}

// NewMmapStorage returns a storage for the register file at path.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{path: path}
}

// Load maps the register file and reports whether it was blank.
func (s *MmapStorage) Load() (*model.Registers, bool, error) {
	f, err := openRegisterFile(s.path)
	if err != nil {
		return nil, false, err
	}
	view, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, false, errors.Join(errNotMapped, err)
	}
	s.file, s.view = f, view
	return mapBytesToRegisters(view), isZero(view), nil
}

// Save msyncs the mapping. The registers are the mapping, so regs is unused.
func (s *MmapStorage) Save(*model.Registers) error {
	if s.view == nil {
		return errNotMapped
	}
	return s.view.Flush()
}

// OnWrite msyncs after every register write.
func (s *MmapStorage) OnWrite(address, quantity uint16) {
	if s.view == nil {
		return
	}
	if err := s.view.Flush(); err != nil {
		slog.Error("Failed to msync register file", "path", s.path, "address", address, "quantity", quantity, "err", err)
	}
}

// Close unmaps the registers and closes the file. The registers returned
// by Load must not be used afterwards.
func (s *MmapStorage) Close() error {
	var errs []error
	if s.view != nil {
		errs = append(errs, s.view.Unmap())
		s.view = nil
	}
	if s.file != nil {
		errs = append(errs, s.file.Close())
		s.file = nil
	}
	return errors.Join(errs...)
}
