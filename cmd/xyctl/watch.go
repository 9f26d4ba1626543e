// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/ffutop/sinilink-xy/psu"
	"github.com/ffutop/sinilink-xy/transport/rtu"
)

// exporter publishes the last status snapshot as Prometheus gauges.
type exporter struct {
	reg        *prometheus.Registry
	readings   *prometheus.GaugeVec
	output     *prometheus.GaugeVec
	protection *prometheus.GaugeVec
}

func newExporter(slaveID byte) *exporter {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"slave": strconv.Itoa(int(slaveID))}
	e := &exporter{
		reg: reg,
		readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "xy_psu_reading",
			Help:        "Latest reading in canonical units (V, A, W, Ah, Wh, degrees)",
			ConstLabels: labels,
		}, []string{"quantity"}),
		output: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "xy_psu_output_enabled",
			Help:        "1 when the output is switched on",
			ConstLabels: labels,
		}, []string{"mode"}),
		protection: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "xy_psu_protection_status",
			Help:        "Raw protection status bitfield",
			ConstLabels: labels,
		}, nil),
	}
	reg.MustRegister(e.readings, e.output, e.protection)
	return e
}

func (e *exporter) update(s psu.Status) {
	for name, v := range map[string]float64{
		"voltage_setpoint":     s.VoltageSetpoint,
		"current_setpoint":     s.CurrentSetpoint,
		"voltage":              s.Voltage,
		"current":              s.Current,
		"power":                s.Power,
		"input_voltage":        s.InputVoltage,
		"capacity":             s.Capacity,
		"energy":               s.Energy,
		"output_seconds":       s.OutputTime.Seconds(),
		"internal_temperature": s.InternalTemperature,
		"external_temperature": s.ExternalTemperature,
	} {
		e.readings.WithLabelValues(name).Set(v)
	}
	e.output.Reset()
	on := 0.0
	if s.OutputEnabled {
		on = 1
	}
	e.output.WithLabelValues(s.Mode.String()).Set(on)
	e.protection.WithLabelValues().Set(float64(s.Protection))
}

func (e *exporter) serve(ctx context.Context, listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{Registry: e.reg}))
	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	slog.Info("Starting metrics listener", "addr", listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics listener failed", "err", err)
	}
}

func (c *cli) watch(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	interval := fs.Duration("interval", c.cfg.WatchPeriod, "Polling interval")
	listen := fs.String("metrics-listen", c.cfg.MetricsListen, "Serve Prometheus metrics on this address")
	count := fs.Int("count", 0, "Stop after this many samples, 0 runs until interrupted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	var e *exporter
	if *listen != "" {
		e = newExporter(byte(c.cfg.SlaveID))
		c.metrics = rtu.NewMetrics(e.reg)
		go e.serve(ctx, *listen)
	}
	d, err := c.device(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for n := 0; *count == 0 || n < *count; n++ {
		if n > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		s, err := d.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("Status read failed", "err", err)
			continue
		}
		if e != nil {
			e.update(s)
		}
		fmt.Fprintf(c.out, "%s %s %.2fV %.3fA %.2fW %v\n",
			time.Now().Format(time.TimeOnly), onOff(s.OutputEnabled), s.Voltage, s.Current, s.Power, s.Mode)
	}
	return nil
}
