// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import "fmt"

// Error is the single error returned by Device methods. Err keeps the
// underlying class reachable through errors.Is and errors.As: a
// *transport.Error, rtu.ErrRequestTimedOut, rtu.ErrCRCMismatch,
// rtu.ErrTruncated, *modbus.ExceptionError, rtu.ErrUnexpectedResponse or
// one of the xy validation errors.
type Error struct {
	Op       string // "read", "write", "status", ...
	Property string // property name or register address
	Err      error
}

func (e *Error) Error() string {
	if e.Property == "" {
		return fmt.Sprintf("psu: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("psu: %s %s: %v", e.Op, e.Property, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op, property string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Property: property, Err: err}
}

func hexAddress(addr uint16) string {
	return fmt.Sprintf("0x%04X", addr)
}
