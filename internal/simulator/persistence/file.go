// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/sinilink-xy/internal/simulator/model"
)

// FileStorage keeps the register file in an ordinary file, rewritten and
// synced after every write.
//
// Layout: model.Size registers of two bytes each, host byte order.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the register file, creating it if necessary.
func (ms *FileStorage) Load() (*model.Registers, bool, error) {
	f, err := openRegisterFile(ms.path)
	if err != nil {
		return nil, false, err
	}
	ms.file = f

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) != totalSize {
		f.Close()
		return nil, false, fmt.Errorf("short read: %d of %d bytes", len(data), totalSize)
	}
	ms.data = data

	return mapBytesToRegisters(data), isZero(data), nil
}

// Save flushes the data to disk.
func (ms *FileStorage) Save(regs *model.Registers) error {
	return ms.sync()
}

// OnWrite syncs the file so a restart sees the write.
func (ms *FileStorage) OnWrite(address, quantity uint16) {
	if err := ms.sync(); err != nil {
		slog.Error("Failed to sync file", "err", err)
	}
}

func (ms *FileStorage) sync() error {
	if ms.data == nil || ms.file == nil {
		return nil
	}
	if _, err := ms.file.WriteAt(ms.data, 0); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := ms.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (ms *FileStorage) Close() error {
	if ms.file == nil {
		return nil
	}
	err := ms.file.Close()
	ms.file = nil
	return err
}
