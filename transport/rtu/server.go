// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	rtupacket "github.com/ffutop/sinilink-xy/modbus/rtu"
	"github.com/ffutop/sinilink-xy/transport"
)

const (
	serverPollInterval = 100 * time.Millisecond
	serverFrameTimeout = 50 * time.Millisecond
)

// Server implements a Modbus RTU Server (Upstream).
// It acts as a slave on the line, waiting for requests from an external master.
type Server struct {
	Port transport.Port
	// FrameTimeout ends a frame that stopped arriving half way.
	FrameTimeout time.Duration
}

// NewServer creates a new RTU Server reading requests from port.
func NewServer(port transport.Port) *Server {
	return &Server{
		Port:         port,
		FrameTimeout: serverFrameTimeout,
	}
}

// Start serves requests until ctx is cancelled.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	slog.Info("RTU Server listening")
	err := s.scanLoop(ctx, handler)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) scanLoop(ctx context.Context, handler transport.RequestHandler) error {
	buf := make([]byte, rtupacket.MaxSize)
	frameTimeout := s.FrameTimeout
	if frameTimeout <= 0 {
		frameTimeout = serverFrameTimeout
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Wait for the first byte of a frame.
		n, err := s.Port.Read(buf[:1], serverPollInterval)
		if err != nil {
			return &transport.Error{Op: "read", Err: err}
		}
		if n == 0 {
			continue
		}

		// Header up to ByteCount covers variable length functions.
		current, err := s.readFull(buf, 1, 7, frameTimeout)
		if err != nil {
			return err
		}
		if current < 2 {
			continue
		}

		expectedLen, err := rtupacket.CalculateRequestLength(buf[1], buf[:current])
		if err != nil {
			s.discard(buf[:current], err)
			continue
		}
		if expectedLen > len(buf) {
			s.discard(buf[:current], fmt.Errorf("request length %d exceeds %d", expectedLen, len(buf)))
			continue
		}
		if expectedLen > current {
			if current, err = s.readFull(buf, current, expectedLen, frameTimeout); err != nil {
				return err
			}
		}
		if current < expectedLen {
			continue
		}

		req, err := rtupacket.Decode(buf[:expectedLen])
		if err != nil {
			slog.Debug("discarding request", "err", err, "frame", hex.EncodeToString(buf[:expectedLen]))
			continue
		}

		respPDU, err := handler(ctx, req.SlaveID, req.Pdu)
		if err != nil {
			slog.Debug("handler failed", "slave", req.SlaveID, "func", req.Pdu.FunctionCode, "err", err)
		}
		respPDU, ok := transport.Reply(req.Pdu, respPDU, err)
		if !ok {
			continue
		}

		resp := rtupacket.ApplicationDataUnit{SlaveID: req.SlaveID, Pdu: respPDU}
		raw, err := resp.Encode()
		if err != nil {
			slog.Error("failed to encode response", "err", err)
			continue
		}
		if err := s.Port.Write(raw); err != nil {
			return &transport.Error{Op: "write", Err: err}
		}
	}
}

// discard drops a frame that cannot be parsed, along with whatever of it is
// still buffered.
func (s *Server) discard(frame []byte, reason error) {
	slog.Debug("discarding request", "err", reason, "frame", hex.EncodeToString(frame))
	if err := s.Port.FlushInput(); err != nil {
		slog.Debug("failed to flush input", "err", err)
	}
}

// readFull reads into buf[from:to] until filled or a read times out.
func (s *Server) readFull(buf []byte, from, to int, timeout time.Duration) (int, error) {
	current := from
	for current < to {
		n, err := s.Port.Read(buf[current:to], timeout)
		if err != nil {
			return current, &transport.Error{Op: "read", Err: err}
		}
		if n == 0 {
			break
		}
		current += n
	}
	return current, nil
}

// Close closes the port if it can be closed.
func (s *Server) Close() error {
	if c, ok := s.Port.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
