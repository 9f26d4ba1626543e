// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	rtupacket "github.com/ffutop/sinilink-xy/modbus/rtu"
	"github.com/ffutop/sinilink-xy/transport"
)

// Server implements a Modbus RTU over TCP Server.
// It listens on a TCP port and handles incoming connections as Modbus RTU streams.
type Server struct {
	Address string

	mu       sync.Mutex
	listener net.Listener
	// serialises handler calls across connections, like a single bus
	bus sync.Mutex
}

// NewServer creates a new RTU over TCP Server.
func NewServer(address string) *Server {
	return &Server{
		Address: address,
	}
}

// Start starts the TCP server.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	slog.Info("RTU over TCP server listening", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Failed to accept connection", "err", err)
			continue
		}
		go s.handleConnection(ctx, conn, handler)
	}
}

// Addr returns the listening address once Start has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the server listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, handler transport.RequestHandler) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	slog.Info("New RTU over TCP client connected", "addr", conn.RemoteAddr())

	buf := make([]byte, rtupacket.MaxSize)
	for {
		frame, err := readRequest(conn, buf)
		if err != nil {
			var hdr *headerError
			switch {
			case ctx.Err() != nil, errors.Is(err, io.EOF):
			case errors.As(err, &hdr):
				// No way to resync a stream after an unknown header.
				slog.Warn("Invalid RTU frame header", "addr", conn.RemoteAddr(), "err", err)
			default:
				slog.Error("Connection read error", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}

		adu, err := rtupacket.Decode(frame)
		if err != nil {
			slog.Warn("RTU frame decode failed", "err", err)
			continue
		}

		s.bus.Lock()
		respPdu, err := handler(ctx, adu.SlaveID, adu.Pdu)
		s.bus.Unlock()
		if err != nil {
			slog.Debug("Handler failed", "slave", adu.SlaveID, "err", err)
		}
		respPdu, ok := transport.Reply(adu.Pdu, respPdu, err)
		if !ok {
			continue
		}

		respAdu := &rtupacket.ApplicationDataUnit{
			SlaveID: adu.SlaveID,
			Pdu:     respPdu,
		}
		respRaw, err := respAdu.Encode()
		if err != nil {
			slog.Error("Failed to encode response", "err", err)
			continue
		}
		if _, err := conn.Write(respRaw); err != nil {
			slog.Error("Failed to write response", "err", err)
			return
		}
	}
}

type headerError struct{ err error }

func (e *headerError) Error() string { return e.err.Error() }

// readRequest reads one request frame. Seven bytes reach the byte count of
// the variable length functions.
func readRequest(r io.Reader, buf []byte) ([]byte, error) {
	if _, err := io.ReadFull(r, buf[:7]); err != nil {
		return nil, err
	}
	expectedLen, err := rtupacket.CalculateRequestLength(buf[1], buf[:7])
	if err != nil {
		return nil, &headerError{err}
	}
	if expectedLen > len(buf) {
		return nil, &headerError{fmt.Errorf("frame length %d exceeds %d", expectedLen, len(buf))}
	}
	if _, err := io.ReadFull(r, buf[7:expectedLen]); err != nil {
		return nil, err
	}
	return buf[:expectedLen], nil
}
