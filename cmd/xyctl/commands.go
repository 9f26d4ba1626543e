// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ffutop/sinilink-xy/internal/config"
	"github.com/ffutop/sinilink-xy/psu"
	"github.com/ffutop/sinilink-xy/transport"
	"github.com/ffutop/sinilink-xy/transport/rtu"
	"github.com/ffutop/sinilink-xy/xy"
)

type cli struct {
	out     io.Writer
	cfg     *config.Config
	port    transport.Port
	metrics *rtu.Metrics
}

func (c *cli) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command")
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "properties":
		return c.properties()
	case "scan":
		return c.scan(ctx, args)
	case "watch":
		return c.watch(ctx, args)
	}

	d, err := c.device(ctx)
	if err != nil {
		return err
	}
	switch cmd {
	case "info":
		return c.info(ctx, d)
	case "status":
		return c.status(ctx, d)
	case "get":
		return c.get(ctx, d, args)
	case "set":
		return c.set(ctx, d, args)
	case "output":
		return c.output(ctx, d, args)
	case "preset":
		return c.preset(ctx, d, args)
	case "protect":
		return c.protect(ctx, d, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// device binds to the configured slave and settles the scaling, either
// forced by configuration or read from the model register.
func (c *cli) device(ctx context.Context) (*psu.Device, error) {
	opts, err := deviceOptions(c.cfg, c.metrics)
	if err != nil {
		return nil, err
	}
	d := psu.New(c.port, byte(c.cfg.SlaveID), opts...)
	if c.cfg.Model != "" {
		return d, nil
	}
	if m, err := d.Detect(ctx); err != nil {
		if !errors.Is(err, xy.ErrScalingUnavailable) {
			return nil, err
		}
		slog.Warn("Unconfirmed model, using default scaling", "model", m)
	}
	return d, nil
}

func argCount(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: xyctl %s", usage)
	}
	return nil
}

func (c *cli) info(ctx context.Context, d *psu.Device) error {
	base := xy.Lookup(xy.TemperatureDisplayUnit).Address
	last := xy.Lookup(xy.BaudRate).Address
	words, err := d.ReadRaw(ctx, base, last-base+1)
	if err != nil {
		return err
	}
	at := func(p xy.Property) uint16 { return words[xy.Lookup(p).Address-base] }
	fmt.Fprintf(c.out, "model:       %v\n", xy.ProductModel(at(xy.Model)))
	fmt.Fprintf(c.out, "firmware:    %s\n", xy.FormatFirmwareVersion(at(xy.FirmwareVersion)))
	fmt.Fprintf(c.out, "address:     %d\n", at(xy.SlaveAddress))
	fmt.Fprintf(c.out, "baud rate:   %v\n", xy.BaudRateCode(at(xy.BaudRate)))
	fmt.Fprintf(c.out, "temperature: %v\n", xy.TemperatureUnit(at(xy.TemperatureDisplayUnit)))
	fmt.Fprintf(c.out, "backlight:   %d\n", at(xy.BacklightLevel))
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (c *cli) status(ctx context.Context, d *psu.Device) error {
	s, err := d.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "output:      %s (%v)\n", onOff(s.OutputEnabled), s.Mode)
	fmt.Fprintf(c.out, "setpoint:    %.2f V  %.3f A\n", s.VoltageSetpoint, s.CurrentSetpoint)
	fmt.Fprintf(c.out, "measured:    %.2f V  %.3f A  %.2f W\n", s.Voltage, s.Current, s.Power)
	fmt.Fprintf(c.out, "input:       %.2f V\n", s.InputVoltage)
	fmt.Fprintf(c.out, "delivered:   %.3f Ah  %.2f Wh  %v\n", s.Capacity, s.Energy, s.OutputTime)
	fmt.Fprintf(c.out, "temperature: %.1f internal  %.1f external\n", s.InternalTemperature, s.ExternalTemperature)
	fmt.Fprintf(c.out, "protection:  %v\n", s.Protection)
	fmt.Fprintf(c.out, "key lock:    %s\n", onOff(s.KeyLock))
	return nil
}

func (c *cli) get(ctx context.Context, d *psu.Device, args []string) error {
	if err := argCount(args, 1, "get <property>"); err != nil {
		return err
	}
	p, err := xy.ParseProperty(args[0])
	if err != nil {
		return err
	}
	v, err := d.Read(ctx, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%g %s\n", v, xy.Lookup(p).Unit)
	return nil
}

// parseValue accepts numbers and on/off for boolean registers.
func parseValue(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "on", "true":
		return 1, nil
	case "off", "false":
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func (c *cli) set(ctx context.Context, d *psu.Device, args []string) error {
	if err := argCount(args, 2, "set <property> <value>"); err != nil {
		return err
	}
	p, err := xy.ParseProperty(args[0])
	if err != nil {
		return err
	}
	v, err := parseValue(args[1])
	if err != nil {
		return err
	}
	return d.Write(ctx, p, v)
}

func (c *cli) output(ctx context.Context, d *psu.Device, args []string) error {
	if err := argCount(args, 1, "output on|off"); err != nil {
		return err
	}
	switch args[0] {
	case "on":
		return d.SetOutputEnabled(ctx, true)
	case "off":
		return d.SetOutputEnabled(ctx, false)
	}
	return fmt.Errorf("usage: xyctl output on|off")
}

func parseGroup(s string) (int, error) {
	g, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(s), "M"))
	if err != nil {
		return 0, fmt.Errorf("invalid preset group %q", s)
	}
	return g, nil
}

// decodeFile reads a YAML document into v, rejecting unknown keys.
func decodeFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (c *cli) printYAML(v any) error {
	enc := yaml.NewEncoder(c.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func fileFlag(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	file := fs.StringP("file", "f", "", "YAML file")
	return fs, file
}

func (c *cli) preset(ctx context.Context, d *psu.Device, args []string) error {
	fs, file := fileFlag("preset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	args = fs.Args()
	if len(args) != 2 {
		return fmt.Errorf("usage: xyctl preset show|apply|recall <group>")
	}
	group, err := parseGroup(args[1])
	if err != nil {
		return err
	}
	switch args[0] {
	case "show":
		p, err := d.ReadPreset(ctx, group)
		if err != nil {
			return err
		}
		return c.printYAML(p)
	case "apply":
		if *file == "" {
			return fmt.Errorf("usage: xyctl preset apply <group> -f FILE")
		}
		var p xy.Preset
		if err := decodeFile(*file, &p); err != nil {
			return err
		}
		return d.WritePreset(ctx, group, p)
	case "recall":
		return d.RecallPreset(ctx, group)
	}
	return fmt.Errorf("unknown preset command %q", args[0])
}

func (c *cli) protect(ctx context.Context, d *psu.Device, args []string) error {
	fs, file := fileFlag("protect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	args = fs.Args()
	if err := argCount(args, 1, "protect show|clear|set"); err != nil {
		return err
	}
	switch args[0] {
	case "show":
		pr, err := d.Protections(ctx)
		if err != nil {
			return err
		}
		return c.printYAML(pr)
	case "clear":
		return d.ClearProtection(ctx)
	case "set":
		if *file == "" {
			return fmt.Errorf("usage: xyctl protect set -f FILE")
		}
		var pr xy.Protections
		if err := decodeFile(*file, &pr); err != nil {
			return err
		}
		return d.SetProtections(ctx, pr)
	}
	return fmt.Errorf("unknown protect command %q", args[0])
}

func (c *cli) properties() error {
	for _, p := range xy.Properties() {
		r := xy.Lookup(p)
		fmt.Fprintf(c.out, "%-34v 0x%02X %-3v %s\n", p, r.Address, r.Access, r.Unit)
	}
	return nil
}

func (c *cli) scan(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	ids := fs.String("ids", "1-247", "Slave addresses to probe, e.g. 1,3,5-10")
	if err := fs.Parse(args); err != nil {
		return err
	}
	slaveIDs, err := config.ParseSlaveIDs(*ids)
	if err != nil {
		return err
	}
	found := 0
	for _, id := range slaveIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := psu.New(c.port, id, psu.WithTimeout(c.cfg.ScanTimeout), psu.WithRetries(0))
		m, err := d.Model(ctx)
		if errors.Is(err, rtu.ErrRequestTimedOut) {
			continue
		}
		if err != nil {
			fmt.Fprintf(c.out, "slave %d: %v\n", id, err)
			continue
		}
		found++
		fmt.Fprintf(c.out, "slave %d: %v\n", id, m)
	}
	slog.Info("Scan finished", "probed", len(slaveIDs), "found", found)
	return nil
}
