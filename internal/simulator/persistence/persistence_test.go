// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ffutop/sinilink-xy/internal/config"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		cfg     config.PersistenceConfig
		want    string
		wantErr bool
	}{
		{config.PersistenceConfig{}, "*persistence.MemoryStorage", false},
		{config.PersistenceConfig{Type: "memory"}, "*persistence.MemoryStorage", false},
		{config.PersistenceConfig{Type: "file", Path: filepath.Join(dir, "a")}, "*persistence.FileStorage", false},
		{config.PersistenceConfig{Type: "mmap", Path: filepath.Join(dir, "b")}, "*persistence.MmapStorage", false},
		{config.PersistenceConfig{Type: "sql"}, "", true},
	}
	for _, tt := range tests {
		s, err := Open(tt.cfg)
		if (err != nil) != tt.wantErr {
			t.Errorf("Open(%+v) error = %v", tt.cfg, err)
			continue
		}
		if err == nil {
			if got := fmt.Sprintf("%T", s); got != tt.want {
				t.Errorf("Open(%+v) = %s, want %s", tt.cfg, got, tt.want)
			}
		}
	}
}

func TestStorageSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	backends := map[string]func() Storage{
		"file": func() Storage { return NewFileStorage(filepath.Join(dir, "regs.bin")) },
		"mmap": func() Storage { return NewMmapStorage(filepath.Join(dir, "regs.mmap")) },
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open()
			regs, fresh, err := s.Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !fresh {
				t.Error("first Load() should report fresh storage")
			}
			if err := regs.Write(0x50, []uint16{1250, 0xCAFE}); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			s.OnWrite(0x50, 2)
			if err := s.Save(regs); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			s = open()
			defer s.Close()
			regs, fresh, err = s.Load()
			if err != nil {
				t.Fatalf("reload error = %v", err)
			}
			if fresh {
				t.Error("reload should not report fresh storage")
			}
			if got := regs.Get(0x51); got != 0xCAFE {
				t.Errorf("register 0x51 = 0x%04X after reload, want 0xCAFE", got)
			}
		})
	}
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	regs, fresh, err := s.Load()
	if err != nil || !fresh || regs == nil {
		t.Fatalf("Load() = %v, %v, %v", regs, fresh, err)
	}
	s.OnWrite(0, 1)
	if err := s.Save(regs); err != nil {
		t.Errorf("Save() error = %v", err)
	}
}

func BenchmarkFileStorage_OnWrite(b *testing.B) {
	s := NewFileStorage(filepath.Join(b.TempDir(), "bench_file.bin"))
	regs, _, err := s.Load()
	if err != nil {
		b.Fatalf("Failed to load file storage: %v", err)
	}
	defer s.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		regs.Words[0x10] = uint16(i)
		s.OnWrite(0x10, 1)
	}
}

func BenchmarkMmapStorage_OnWrite(b *testing.B) {
	s := NewMmapStorage(filepath.Join(b.TempDir(), "bench_mmap.bin"))
	regs, _, err := s.Load()
	if err != nil {
		b.Fatalf("Failed to load mmap storage: %v", err)
	}
	defer s.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		regs.Words[0x10] = uint16(i)
		s.OnWrite(0x10, 1)
	}
}

func TestStorageResizesForeignFile(t *testing.T) {
	for name, newStorage := range map[string]func(string) Storage{
		"file": func(p string) Storage { return NewFileStorage(p) },
		"mmap": func(p string) Storage { return NewMmapStorage(p) },
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "regs.bin")
			if err := os.WriteFile(path, make([]byte, 3), 0644); err != nil {
				t.Fatal(err)
			}
			s := newStorage(path)
			if _, fresh, err := s.Load(); err != nil || !fresh {
				t.Fatalf("Load() fresh = %v, err = %v", fresh, err)
			}
			if err := s.Close(); err != nil {
				t.Fatal(err)
			}
			fi, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if fi.Size() != int64(totalSize) {
				t.Errorf("size = %d, want %d", fi.Size(), totalSize)
			}
		})
	}
}

func TestMmapStorageSaveBeforeLoad(t *testing.T) {
	s := NewMmapStorage(filepath.Join(t.TempDir(), "regs.mmap"))
	if err := s.Save(nil); !errors.Is(err, errNotMapped) {
		t.Errorf("Save() error = %v, want errNotMapped", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
