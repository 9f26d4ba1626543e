// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtu

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ffutop/sinilink-xy/modbus"
	rtupacket "github.com/ffutop/sinilink-xy/modbus/rtu"
	"github.com/ffutop/sinilink-xy/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var (
	readReq      = []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	readResp     = []byte{0x01, 0x03, 0x02, 0x09, 0xC4, 0xBF, 0x87}
	writeReq     = []byte{0x01, 0x06, 0x00, 0x00, 0x04, 0xE2, 0x0B, 0x43}
	exceptResp   = []byte{0x01, 0x83, 0x02, 0xC0, 0xF1}
	otherSlave   = []byte{0x02, 0x03, 0x02, 0x00, 0x0A, 0x7C, 0x43}
	readHoldings = modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x01}}
)

// scriptedPort answers each write with the next scripted response, handed out
// chunk bytes at a time.
type scriptedPort struct {
	mu        sync.Mutex
	responses [][]byte
	chunk     int
	pending   []byte
	writes    [][]byte
	flushes   int
	writeErr  error
	readErr   error
}

func (p *scriptedPort) Write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, append([]byte(nil), b...))
	if p.writeErr != nil {
		return p.writeErr
	}
	p.pending = nil
	if len(p.responses) > 0 {
		p.pending = p.responses[0]
		p.responses = p.responses[1:]
	}
	return nil
}

func (p *scriptedPort) Read(b []byte, timeout time.Duration) (int, error) {
	p.mu.Lock()
	if p.readErr != nil {
		p.mu.Unlock()
		return 0, p.readErr
	}
	if len(p.pending) == 0 {
		p.mu.Unlock()
		time.Sleep(timeout)
		return 0, nil
	}
	n := len(b)
	if p.chunk > 0 && n > p.chunk {
		n = p.chunk
	}
	n = copy(b[:n], p.pending)
	p.pending = p.pending[n:]
	p.mu.Unlock()
	return n, nil
}

func (p *scriptedPort) FlushInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	p.pending = nil
	return nil
}

func newTestClient(p transport.Port) *Client {
	c := NewClient(p, 1)
	c.Timeout = 20 * time.Millisecond
	return c
}

func TestClient_Send(t *testing.T) {
	port := &scriptedPort{responses: [][]byte{readResp}, chunk: 1}
	client := newTestClient(port)

	resp, err := client.Send(context.Background(), readHoldings)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(port.writes) != 1 || !bytes.Equal(port.writes[0], readReq) {
		t.Errorf("Request mismatch.\nWant: % X\nGot:  % X", readReq, port.writes)
	}
	if resp.FunctionCode != 0x03 {
		t.Errorf("Response Func mismatch: %02X", resp.FunctionCode)
	}
	if !bytes.Equal(resp.Data, []byte{0x02, 0x09, 0xC4}) {
		t.Errorf("Response Data mismatch: % X", resp.Data)
	}
}

func TestClient_WriteEcho(t *testing.T) {
	port := &scriptedPort{responses: [][]byte{writeReq}, chunk: 3}
	client := newTestClient(port)

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0x00, 0x00, 0x04, 0xE2}}
	resp, err := client.Send(context.Background(), pdu)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !bytes.Equal(port.writes[0], writeReq) {
		t.Errorf("Request mismatch: % X", port.writes[0])
	}
	if !bytes.Equal(resp.Data, pdu.Data) {
		t.Errorf("echo = % X, want % X", resp.Data, pdu.Data)
	}
}

func TestClient_RetryBound(t *testing.T) {
	for _, retries := range []int{0, 1, 3} {
		port := &scriptedPort{}
		client := newTestClient(port)
		client.Retries = retries

		_, err := client.Send(context.Background(), readHoldings)
		if !errors.Is(err, ErrRequestTimedOut) {
			t.Fatalf("retries=%d: err = %v, want ErrRequestTimedOut", retries, err)
		}
		if len(port.writes) != retries+1 {
			t.Errorf("retries=%d: %d writes, want %d", retries, len(port.writes), retries+1)
		}
		if port.flushes != retries+1 {
			t.Errorf("retries=%d: %d flushes, want %d", retries, port.flushes, retries+1)
		}
	}
}

func TestClient_NoRetryOnException(t *testing.T) {
	port := &scriptedPort{responses: [][]byte{exceptResp, readResp}}
	client := newTestClient(port)

	_, err := client.Send(context.Background(), readHoldings)
	var exc *modbus.ExceptionError
	if !errors.As(err, &exc) {
		t.Fatalf("err = %v, want *modbus.ExceptionError", err)
	}
	if exc.ExceptionCode != modbus.ExceptionCodeIllegalDataAddress {
		t.Errorf("exception code = %d", exc.ExceptionCode)
	}
	if len(port.writes) != 1 {
		t.Errorf("%d writes, want 1", len(port.writes))
	}
}

func TestClient_RetryOnCRCError(t *testing.T) {
	bad := append([]byte(nil), readResp...)
	bad[4] ^= 0x01
	port := &scriptedPort{responses: [][]byte{bad, readResp}}
	client := newTestClient(port)

	resp, err := client.Send(context.Background(), readHoldings)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !bytes.Equal(resp.Data, []byte{0x02, 0x09, 0xC4}) {
		t.Errorf("Response Data mismatch: % X", resp.Data)
	}
	if len(port.writes) != 2 {
		t.Errorf("%d writes, want 2", len(port.writes))
	}
}

func TestClient_CRCErrorExhausted(t *testing.T) {
	bad := []byte{0x01, 0x03, 0x02, 0xAA, 0xBB, 0xFF, 0xFF}
	port := &scriptedPort{responses: [][]byte{bad, bad, bad}}
	client := newTestClient(port)

	_, err := client.Send(context.Background(), readHoldings)
	if !errors.Is(err, rtupacket.ErrCRCMismatch) {
		t.Fatalf("err = %v, want ErrCRCMismatch", err)
	}
	if len(port.writes) != DefaultRetries+1 {
		t.Errorf("%d writes, want %d", len(port.writes), DefaultRetries+1)
	}
}

func TestClient_Truncated(t *testing.T) {
	short := readResp[:3]
	port := &scriptedPort{responses: [][]byte{short, short, short}}
	client := newTestClient(port)

	_, err := client.Send(context.Background(), readHoldings)
	if !errors.Is(err, rtupacket.ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
	if len(port.writes) != 3 {
		t.Errorf("%d writes, want 3", len(port.writes))
	}
}

func TestClient_UnexpectedResponse(t *testing.T) {
	tests := []struct {
		name     string
		response []byte
		chunk    int
	}{
		{"OtherSlave", otherSlave, 0},
		// A write echo is one byte longer than the read answer expected.
		{"OtherFunction", writeReq, 0},
		{"OtherFunctionByteWise", writeReq, 1},
		{"OtherSlaveException", []byte{0x02, 0x83, 0x02, 0xC0, 0xF1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &scriptedPort{responses: [][]byte{tt.response, readResp}, chunk: tt.chunk}
			client := newTestClient(port)

			_, err := client.Send(context.Background(), readHoldings)
			if !errors.Is(err, ErrUnexpectedResponse) {
				t.Fatalf("err = %v, want ErrUnexpectedResponse", err)
			}
			if len(port.writes) != 1 {
				t.Errorf("%d writes, want 1", len(port.writes))
			}
		})
	}
}

func TestClient_NegativeRetries(t *testing.T) {
	port := &scriptedPort{responses: [][]byte{readResp}}
	client := newTestClient(port)

	req, err := rtupacket.Decode(readReq)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Do(context.Background(), &Transaction{Request: *req, Retries: -1})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if len(port.writes) != 1 {
		t.Errorf("%d writes, want 1", len(port.writes))
	}
	if !bytes.Equal(resp.Data, []byte{0x02, 0x09, 0xC4}) {
		t.Errorf("Response Data mismatch: % X", resp.Data)
	}

	port = &scriptedPort{}
	client = newTestClient(port)
	client.Retries = -3
	if _, err := client.Send(context.Background(), readHoldings); !errors.Is(err, ErrRequestTimedOut) {
		t.Errorf("err = %v, want ErrRequestTimedOut", err)
	}
	if len(port.writes) != 1 {
		t.Errorf("%d writes, want 1", len(port.writes))
	}
}

func TestClient_TransportErrors(t *testing.T) {
	tests := []struct {
		name   string
		port   *scriptedPort
		wantOp string
	}{
		{"Write", &scriptedPort{writeErr: errors.New("port closed")}, "write"},
		{"Read", &scriptedPort{readErr: errors.New("framing error")}, "read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(tt.port)
			_, err := client.Send(context.Background(), readHoldings)
			var te *transport.Error
			if !errors.As(err, &te) {
				t.Fatalf("err = %v, want *transport.Error", err)
			}
			if te.Op != tt.wantOp {
				t.Errorf("op = %q, want %q", te.Op, tt.wantOp)
			}
			if len(tt.port.writes) != 1 {
				t.Errorf("%d writes, want 1", len(tt.port.writes))
			}
		})
	}
}

func TestClient_CancelledContext(t *testing.T) {
	port := &scriptedPort{responses: [][]byte{readResp}}
	client := newTestClient(port)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Send(ctx, readHoldings); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(port.writes) != 0 {
		t.Errorf("%d writes, want 0", len(port.writes))
	}
}

func TestClient_ContextDeadline(t *testing.T) {
	port := &scriptedPort{}
	client := newTestClient(port)
	client.Timeout = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := client.Send(ctx, readHoldings)
	if !errors.Is(err, ErrRequestTimedOut) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want timeout wrapping context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Send took %v, context deadline not honoured", elapsed)
	}
	if len(port.writes) != 1 {
		t.Errorf("%d writes, want 1", len(port.writes))
	}
}

func TestClient_Metrics(t *testing.T) {
	bad := append([]byte(nil), readResp...)
	bad[6] ^= 0x80
	port := &scriptedPort{responses: [][]byte{bad, readResp}}
	client := newTestClient(port)
	client.Metrics = NewMetrics(prometheus.NewRegistry())

	if _, err := client.Send(context.Background(), readHoldings); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	m := client.Metrics
	if got := testutil.ToFloat64(m.transactions.WithLabelValues("0x03")); got != 1 {
		t.Errorf("transactions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.attempts); got != 2 {
		t.Errorf("attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.retries); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues(failCRC)); got != 1 {
		t.Errorf("crc failures = %v, want 1", got)
	}
}

func TestCalculateDelay(t *testing.T) {
	tests := []struct {
		baud  int
		chars int
		want  time.Duration
	}{
		{0, 0, 1750 * time.Microsecond},
		{115200, 8, (750*8 + 1750) * time.Microsecond},
		{9600, 0, 3645 * time.Microsecond},
		{9600, 1, (1562 + 3645) * time.Microsecond},
	}
	for _, tt := range tests {
		c := &Client{BaudRate: tt.baud}
		if got := c.calculateDelay(tt.chars); got != tt.want {
			t.Errorf("calculateDelay(baud=%d, chars=%d) = %v, want %v", tt.baud, tt.chars, got, tt.want)
		}
	}
}

func TestClient_Pacing(t *testing.T) {
	port := &scriptedPort{responses: [][]byte{readResp, readResp}}
	client := newTestClient(port)
	client.RequestPause = 30 * time.Millisecond

	if _, err := client.Send(context.Background(), readHoldings); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if _, err := client.Send(context.Background(), readHoldings); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("second transaction started after %v, want >= RequestPause", elapsed)
	}
}
