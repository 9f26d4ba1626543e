// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serial adapts operating system serial ports to transport.Port.
// Ports open lazily on first use.
package serial

import (
	"fmt"
	"io"

	"github.com/ffutop/sinilink-xy/internal/config"
	"github.com/ffutop/sinilink-xy/transport"
)

// Port is a transport.Port that owns an operating system handle.
type Port interface {
	transport.Port
	io.Closer
}

var (
	_ Port = (*GridX)(nil)
	_ Port = (*Bugst)(nil)
)

// Open returns the adapter selected by cfg.Driver.
func Open(cfg config.SerialConfig) (Port, error) {
	switch cfg.Driver {
	case "", "grid-x":
		return NewGridX(cfg), nil
	case "bugst":
		if cfg.RS485 {
			return nil, fmt.Errorf("driver bugst has no RS485 support, use grid-x")
		}
		return NewBugst(cfg)
	default:
		return nil, fmt.Errorf("unknown serial driver %q", cfg.Driver)
	}
}
