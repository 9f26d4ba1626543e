// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegisters(t *testing.T) {
	m := NewRegisters()
	if err := m.Write(0x10, []uint16{1, 2, 3}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := m.Read(0x0F, 5)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if diff := cmp.Diff([]uint16{0, 1, 2, 3, 0}, got); diff != "" {
		t.Errorf("Read() mismatch (-want +got):\n%s", diff)
	}
	if v := m.Get(0x11); v != 2 {
		t.Errorf("Get(0x11) = %d", v)
	}
	m.Update(func(w []uint16) { w[0x11]++ })
	if v := m.Get(0x11); v != 3 {
		t.Errorf("Get(0x11) after Update = %d", v)
	}
}

func TestRegistersBounds(t *testing.T) {
	m := NewRegisters()
	tests := []struct {
		name     string
		address  uint16
		quantity uint16
	}{
		{"zero quantity", 0, 0},
		{"past end", Size - 1, 2},
		{"outside", Size, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Read(tt.address, tt.quantity); err == nil {
				t.Error("Read() expected error")
			}
			if tt.quantity > 0 {
				if err := m.Write(tt.address, make([]uint16, tt.quantity)); err == nil {
					t.Error("Write() expected error")
				}
			}
		})
	}
	if v := m.Get(Size); v != 0 {
		t.Errorf("Get(Size) = %d", v)
	}
}
