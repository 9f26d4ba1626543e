// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Command xyctl controls a Sinilink XY power supply over Modbus RTU.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ffutop/sinilink-xy/internal/config"
)

const usage = `Usage: xyctl [flags] <command> [args]

Commands:
  info                          model, firmware and line settings
  status                        live measurements
  get <property>                read one property
  set <property> <value>        write one property
  output on|off                 switch the output
  preset show <group>           print a stored group as YAML
  preset apply <group> -f FILE  store a group from a YAML file
  preset recall <group>         load a group into the running settings
  protect show|clear            print or reset protection limits
  protect set -f FILE           write protection limits from YAML
  properties                    list property names
  scan [--ids 1-10]             find supplies on the line
  watch [--interval 1s]         print status periodically

Flags:
`

func main() {
	flags := pflag.NewFlagSet("xyctl", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	configFile := flags.StringP("config", "c", "", "Path to config file")
	flags.String("transport", "serial", "serial or rtu-over-tcp")
	flags.String("serial.device", "/dev/ttyUSB0", "Serial device")
	flags.Int("serial.baud_rate", 115200, "Serial baud rate")
	flags.String("serial.driver", "grid-x", "Serial driver: grid-x or bugst")
	flags.Duration("serial.timeout", 0, "Response timeout")
	flags.String("tcp.address", "", "RTU over TCP bridge address")
	flags.Int("slave_id", 1, "Modbus slave address")
	flags.Int("retries", 2, "Retries after a timeout or corrupted frame")
	flags.String("model", "", "Force the scaling of a model instead of detecting it")
	flags.String("log.level", "info", "Log level")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if flags.NArg() == 0 {
		flags.Usage()
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

	if err := run(ctx, cfg, flags.Args()); err != nil {
		slog.Error("Command failed", "command", flags.Arg(0), "err", err)
		fmt.Fprintf(os.Stderr, "xyctl: %v\n", err)
		stop()
		logCloser.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string) error {
	port, err := openPort(cfg)
	if err != nil {
		return err
	}
	defer port.Close()

	cli := &cli{out: os.Stdout, cfg: cfg, port: port}
	return cli.dispatch(ctx, args)
}
