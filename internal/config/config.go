// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Transport string       `mapstructure:"transport"` // "serial" or "rtu-over-tcp"
	Serial    SerialConfig `mapstructure:"serial"`
	Tcp       TcpConfig    `mapstructure:"tcp"`

	SlaveID       int           `mapstructure:"slave_id"`
	Retries       int           `mapstructure:"retries"`
	Model         string        `mapstructure:"model"` // force a scaling table, e.g. "XY7025"
	ScanTimeout   time.Duration `mapstructure:"scan_timeout"`
	WatchPeriod   time.Duration `mapstructure:"watch_period"`
	MetricsListen string        `mapstructure:"metrics_listen"`

	Simulator SimulatorConfig `mapstructure:"simulator"`
	Log       LogConfig       `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// SimulatorConfig defines the simulated power supply served by xy-sim.
type SimulatorConfig struct {
	Listen      string            `mapstructure:"listen"` // rtu-over-tcp address; empty serves on the serial port
	SlaveIDs    string            `mapstructure:"slave_ids"`
	Model       string            `mapstructure:"model"`
	Load        float64           `mapstructure:"load"` // ohms across the output
	Tick        time.Duration     `mapstructure:"tick"` // output counter update period
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "192.168.1.100:8899"
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Driver    string        `mapstructure:"driver"` // "grid-x" or "bugst"
	Device    string        `mapstructure:"device"`
	BaudRate  int           `mapstructure:"baud_rate"`
	DataBits  int           `mapstructure:"data_bits"`
	Parity    string        `mapstructure:"parity"`
	StopBits  int           `mapstructure:"stop_bits"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RqstPause time.Duration `mapstructure:"rqst_pause"` // Pause between requests

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// SetDefaults registers default values. Every key gets one so that
// environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("transport", "serial")
	v.SetDefault("serial.driver", "grid-x")
	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.timeout", 300*time.Millisecond)
	v.SetDefault("serial.rqst_pause", 0)
	v.SetDefault("serial.rs485", false)
	v.SetDefault("serial.delay_rts_before_send", 0)
	v.SetDefault("serial.delay_rts_after_send", 0)
	v.SetDefault("serial.rts_high_during_send", false)
	v.SetDefault("serial.rts_high_after_send", false)
	v.SetDefault("serial.rx_during_tx", false)
	v.SetDefault("tcp.address", "")
	v.SetDefault("slave_id", 1)
	v.SetDefault("retries", 2)
	v.SetDefault("model", "")
	v.SetDefault("scan_timeout", 100*time.Millisecond)
	v.SetDefault("watch_period", time.Second)
	v.SetDefault("metrics_listen", "")
	v.SetDefault("simulator.listen", "")
	v.SetDefault("simulator.slave_ids", "1")
	v.SetDefault("simulator.model", "XY7025")
	v.SetDefault("simulator.load", 10.0)
	v.SetDefault("simulator.tick", time.Second)
	v.SetDefault("simulator.persistence.type", "memory")
	v.SetDefault("simulator.persistence.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// LoadConfig loads configuration from the file, XY_* environment variables and
// the flags that were set on the command line, in increasing precedence.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/xyctl/")
		v.AddConfigPath("$HOME/.xyctl")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("XY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind pflags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Settings can come from flags and environment alone.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Serial)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.Transport {
	case "serial":
		if c.Serial.Device == "" {
			return fmt.Errorf("serial.device must be set")
		}
	case "rtu-over-tcp":
		if c.Tcp.Address == "" {
			return fmt.Errorf("tcp.address must be set for rtu-over-tcp")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.SlaveID < 1 || c.SlaveID > 247 {
		return fmt.Errorf("slave_id %d out of range 1-247", c.SlaveID)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	switch c.Serial.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("unknown parity %q", c.Serial.Parity)
	}
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	s.Driver = strings.ToLower(s.Driver)
	if s.Timeout == 0 {
		s.Timeout = 300 * time.Millisecond
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
}
