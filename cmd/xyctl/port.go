// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"log/slog"

	"github.com/ffutop/sinilink-xy/internal/config"
	"github.com/ffutop/sinilink-xy/psu"
	"github.com/ffutop/sinilink-xy/transport/rtu"
	rtuovertcp "github.com/ffutop/sinilink-xy/transport/rtu-over-tcp"
	"github.com/ffutop/sinilink-xy/transport/serial"
	"github.com/ffutop/sinilink-xy/xy"
)

func openPort(cfg *config.Config) (serial.Port, error) {
	switch cfg.Transport {
	case "serial":
		slog.Debug("init serial port", "device", cfg.Serial.Device, "driver", cfg.Serial.Driver, "baudRate", cfg.Serial.BaudRate, "parity", cfg.Serial.Parity)
		return serial.Open(cfg.Serial)
	case "rtu-over-tcp":
		slog.Debug("init RTU over TCP client", "addr", cfg.Tcp.Address)
		return rtuovertcp.NewClient(cfg.Tcp.Address), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// deviceOptions maps the configuration onto psu options.
func deviceOptions(cfg *config.Config, metrics *rtu.Metrics) ([]psu.Option, error) {
	opts := []psu.Option{
		psu.WithTimeout(cfg.Serial.Timeout),
		psu.WithRetries(cfg.Retries),
		psu.WithRequestPause(cfg.Serial.RqstPause),
		psu.WithMetrics(metrics),
	}
	if cfg.Transport == "serial" {
		opts = append(opts, psu.WithBaudRate(cfg.Serial.BaudRate))
	}
	if cfg.Model != "" {
		m, err := xy.ParseProductModel(cfg.Model)
		if err != nil {
			return nil, err
		}
		s, err := xy.ScalingFor(m)
		if err != nil {
			return nil, err
		}
		opts = append(opts, psu.WithScaling(s))
	}
	return opts, nil
}
