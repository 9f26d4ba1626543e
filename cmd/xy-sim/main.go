// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Command xy-sim serves simulated XY power supplies over Modbus RTU, either on
// a serial line or on an RTU over TCP listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ffutop/sinilink-xy/internal/config"
	"github.com/ffutop/sinilink-xy/internal/simulator"
	"github.com/ffutop/sinilink-xy/internal/simulator/persistence"
	"github.com/ffutop/sinilink-xy/transport"
	"github.com/ffutop/sinilink-xy/transport/rtu"
	rtuovertcp "github.com/ffutop/sinilink-xy/transport/rtu-over-tcp"
	"github.com/ffutop/sinilink-xy/transport/serial"
	"github.com/ffutop/sinilink-xy/xy"
)

func main() {
	flags := pflag.NewFlagSet("xy-sim", pflag.ContinueOnError)
	configFile := flags.StringP("config", "c", "", "Path to config file")
	flags.String("simulator.listen", "", "RTU over TCP listen address, empty serves on serial.device")
	flags.String("simulator.slave_ids", "1", "Slave addresses to simulate, e.g. 1,3,5-10")
	flags.String("simulator.model", "XY7025", "Simulated product model")
	flags.Float64("simulator.load", 10, "Resistive load in ohms, 0 for an open circuit")
	flags.String("simulator.persistence.type", "memory", "memory, file or mmap")
	flags.String("simulator.persistence.path", "", "Register image path for file and mmap storage")
	flags.String("serial.device", "/dev/ttyUSB0", "Serial device")
	flags.Int("serial.baud_rate", 115200, "Serial baud rate")
	flags.String("log.level", "info", "Log level")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configFile, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logCloser := config.SetupLogger(cfg.Log)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting XY simulator...")
	if err := run(ctx, cfg); err != nil {
		slog.Error("Simulator stopped with error", "err", err)
		stop()
		logCloser.Close()
		os.Exit(1)
	}
	slog.Info("Goodbye.")
}

func run(ctx context.Context, cfg *config.Config) error {
	bus, closers, err := newBus(cfg.Simulator)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	if err != nil {
		return err
	}

	us, err := newUpstream(cfg)
	if err != nil {
		return err
	}

	if cfg.Simulator.Tick > 0 {
		go advance(ctx, bus, cfg.Simulator.Tick)
	}
	return bus.Serve(ctx, us)
}

// newBus creates one device per configured slave address. With more than one
// device each gets its own register image, suffixed with the slave address.
func newBus(cfg config.SimulatorConfig) (*simulator.Bus, []io.Closer, error) {
	ids, err := config.ParseSlaveIDs(cfg.SlaveIDs)
	if err != nil {
		return nil, nil, err
	}
	product, err := xy.ParseProductModel(cfg.Model)
	if err != nil {
		return nil, nil, err
	}

	bus := simulator.NewBus()
	var closers []io.Closer
	for _, id := range ids {
		pc := cfg.Persistence
		if len(ids) > 1 && pc.Path != "" {
			pc.Path = fmt.Sprintf("%s.%d", pc.Path, id)
		}
		storage, err := persistence.Open(pc)
		if err != nil {
			return nil, closers, fmt.Errorf("slave %d: %w", id, err)
		}
		closers = append(closers, storage)
		d, err := simulator.LoadDevice(storage, product, id)
		if err != nil {
			return nil, closers, fmt.Errorf("slave %d: %w", id, err)
		}
		d.SetLoad(cfg.Load)
		bus.Add(d)
		slog.Info("Simulating device", "slaveID", d.SlaveID(), "model", product, "storage", pc.Type)
	}
	return bus, closers, nil
}

func newUpstream(cfg *config.Config) (transport.Upstream, error) {
	if cfg.Simulator.Listen != "" {
		return rtuovertcp.NewServer(cfg.Simulator.Listen), nil
	}
	port, err := serial.Open(cfg.Serial)
	if err != nil {
		return nil, err
	}
	return rtu.NewServer(port), nil
}

func advance(ctx context.Context, bus *simulator.Bus, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, d := range bus.Devices() {
				d.Advance(now.Sub(last))
			}
			last = now
		}
	}
}
