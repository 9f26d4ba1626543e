// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/ffutop/sinilink-xy/internal/simulator/model"
)

// totalSize is the byte size of a stored register file.
const totalSize = model.Size * 2

// mapBytesToRegisters constructs a register file backed by data.
// Warning: the words are read in host byte order, so a stored file is only
// portable between machines of the same endianness.
func mapBytesToRegisters(data []byte) *model.Registers {
	return &model.Registers{
		Words: unsafe.Slice((*uint16)(unsafe.Pointer(&data[0])), totalSize/2),
	}
}

func isZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// openRegisterFile opens path and sizes it to hold exactly one register file.
// A freshly created or resized file reads back as all zeros.
func openRegisterFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open register file: %w", err)
	}
	fi, err := f.Stat()
	if err == nil && fi.Size() != int64(totalSize) {
		err = f.Truncate(int64(totalSize))
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size register file %s: %w", path, err)
	}
	return f, nil
}
