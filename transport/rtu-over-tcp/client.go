// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtuovertcp carries raw RTU frames over a TCP stream, as serial
// device servers and RS-485 to Ethernet bridges do.
package rtuovertcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

const (
	tcpTimeout   = 10 * time.Second
	flushTimeout = time.Millisecond
	maxDrain     = 4096
)

// Client is a transport.Port over a TCP connection to a bridge. It dials on
// first use and redials after a connection failure.
type Client struct {
	Address string
	Timeout time.Duration // dial and write timeout

	mu   sync.Mutex
	conn net.Conn
}

// NewClient allocates and initializes a TCP Client.
func NewClient(address string) *Client {
	return &Client{
		Address: address,
		Timeout: tcpTimeout,
	}
}

func (mb *Client) Write(b []byte) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", mb.Address, err)
	}
	if err := mb.conn.SetWriteDeadline(time.Now().Add(mb.Timeout)); err != nil {
		mb.close()
		return err
	}
	if _, err := mb.conn.Write(b); err != nil {
		mb.close() // Close connection on write failure to force reconnect next time
		return err
	}
	return nil
}

// Read returns 0, nil when nothing arrived within timeout.
func (mb *Client) Read(b []byte, timeout time.Duration) (int, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.connect(); err != nil {
		return 0, fmt.Errorf("failed to connect to %s: %w", mb.Address, err)
	}
	if err := mb.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		mb.close()
		return 0, err
	}
	n, err := mb.conn.Read(b)
	if err != nil {
		if isTimeout(err) {
			return n, nil
		}
		mb.close()
		return n, err
	}
	return n, nil
}

// FlushInput discards bytes already queued on the connection, such as a late
// answer to a request that timed out.
func (mb *Client) FlushInput() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.conn == nil {
		return nil
	}
	buf := make([]byte, 256)
	for drained := 0; drained < maxDrain; {
		if err := mb.conn.SetReadDeadline(time.Now().Add(flushTimeout)); err != nil {
			mb.close()
			return err
		}
		n, err := mb.conn.Read(buf)
		drained += n
		if err != nil {
			if isTimeout(err) {
				return nil
			}
			mb.close()
			return err
		}
	}
	return nil
}

// Connect dials now instead of on first use.
func (mb *Client) Connect(ctx context.Context) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: mb.Timeout}
	conn, err := d.DialContext(ctx, "tcp", mb.Address)
	if err != nil {
		return err
	}
	mb.conn = conn
	return nil
}

func (mb *Client) Close() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.close()
	return nil
}

// connect ensures there is an active connection. Caller must hold the mutex.
func (mb *Client) connect() error {
	if mb.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", mb.Address, mb.Timeout)
	if err != nil {
		return err
	}
	mb.conn = conn
	return nil
}

// close closes the connection and resets the state. Caller must hold the mutex.
func (mb *Client) close() {
	if mb.conn != nil {
		mb.conn.Close()
		mb.conn = nil
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
