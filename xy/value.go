// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xy

import (
	"fmt"
	"math"
)

// DecodeValue converts the raw words of r into canonical units.
func DecodeValue(r Register, words []uint16) (float64, error) {
	raw, err := Join(r, words)
	if err != nil {
		return 0, err
	}
	return float64(raw) / r.scale(), nil
}

// EncodeValue converts v into the raw words of r, rounding to the nearest
// step. Values that are negative, not finite, outside the register limits or
// too large for its width fail with ErrValueOutOfRange.
func EncodeValue(r Register, v float64) ([]uint16, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil, fmt.Errorf("%w: %v", ErrValueOutOfRange, v)
	}
	if v < r.Min || (r.Max != 0 && v > r.Max) {
		return nil, fmt.Errorf("%w: %v not in [%v, %v]", ErrValueOutOfRange, v, r.Min, r.Max)
	}
	raw := math.Round(v * r.scale())
	if raw > float64(r.limit()) {
		return nil, fmt.Errorf("%w: %v exceeds %d-bit register", ErrValueOutOfRange, v, 16*r.Width)
	}
	return Split(r, uint32(raw))
}

// Join assembles the raw register value, low word first.
func Join(r Register, words []uint16) (uint32, error) {
	if len(words) != r.Width {
		return 0, fmt.Errorf("xy: register 0x%02X needs %d words, got %d", r.Address, r.Width, len(words))
	}
	switch r.Width {
	case 1:
		return uint32(words[0]), nil
	case 2:
		return uint32(words[0]) | uint32(words[1])<<16, nil
	}
	return 0, fmt.Errorf("xy: unsupported register width %d", r.Width)
}

// Split is the inverse of Join.
func Split(r Register, raw uint32) ([]uint16, error) {
	if uint64(raw) > r.limit() {
		return nil, fmt.Errorf("%w: raw 0x%X exceeds %d-bit register", ErrValueOutOfRange, raw, 16*r.Width)
	}
	switch r.Width {
	case 1:
		return []uint16{uint16(raw)}, nil
	case 2:
		return []uint16{uint16(raw), uint16(raw >> 16)}, nil
	}
	return nil, fmt.Errorf("xy: unsupported register width %d", r.Width)
}

func (r Register) scale() float64 {
	if r.Scale == 0 {
		return 1
	}
	return r.Scale
}

func (r Register) limit() uint64 {
	return 1<<(16*uint(r.Width)) - 1
}
