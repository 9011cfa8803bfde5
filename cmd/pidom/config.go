package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pidom/internal/registry"
	"pidom/internal/store"
)

const defaultConfigPath = "~/.config/pidom/config.yaml"

type Config struct {
	Store struct {
		Driver string `yaml:"driver"` // "bolt" or "yaml"
		Path   string `yaml:"path"`
	} `yaml:"store"`
	IDs struct {
		Base  uint32 `yaml:"base"`
		Count int    `yaml:"count"`
	} `yaml:"ids"`
	Transmitter struct {
		Type       string   `yaml:"type"` // "exec" or "serial"
		Command    []string `yaml:"command"`
		Button     string   `yaml:"button"`
		Timeout    string   `yaml:"timeout"`
		Port       string   `yaml:"port"`
		Baud       int      `yaml:"baud"`
		Ack        bool     `yaml:"ack"`
		AckTimeout string   `yaml:"ack_timeout"`
	} `yaml:"transmitter"`
	Pairing struct {
		Window   string `yaml:"window"`
		Interval string `yaml:"interval"`
	} `yaml:"pairing"`
	MQTT struct {
		Enabled         bool   `yaml:"enabled"`
		Broker          string `yaml:"broker"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		ClientID        string `yaml:"client_id"`
		TopicPrefix     string `yaml:"topic_prefix"`
		DiscoveryPrefix string `yaml:"discovery_prefix"`
	} `yaml:"mqtt"`
	Hooks struct {
		Dir     string `yaml:"dir"`
		Timeout string `yaml:"timeout"`
	} `yaml:"hooks"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "bolt", "yaml":
	default:
		return fmt.Errorf("store.driver must be bolt or yaml, got %q", c.Store.Driver)
	}
	if c.IDs.Count <= 0 {
		return fmt.Errorf("ids.count must be positive, got %d", c.IDs.Count)
	}
	if uint64(c.IDs.Base)+uint64(c.IDs.Count) > 1<<32 {
		return fmt.Errorf("ids: range 0x%08X+%d overflows", c.IDs.Base, c.IDs.Count)
	}
	switch c.Transmitter.Type {
	case "exec":
		if len(c.Transmitter.Command) == 0 {
			return fmt.Errorf("transmitter.command is required for type exec")
		}
	case "serial":
		if c.Transmitter.Port == "" {
			return fmt.Errorf("transmitter.port is required for type serial")
		}
	default:
		return fmt.Errorf("unknown transmitter type: %q (supported: exec, serial)", c.Transmitter.Type)
	}
	for key, val := range map[string]string{
		"transmitter.timeout":     c.Transmitter.Timeout,
		"transmitter.ack_timeout": c.Transmitter.AckTimeout,
		"pairing.window":          c.Pairing.Window,
		"pairing.interval":        c.Pairing.Interval,
		"hooks.timeout":           c.Hooks.Timeout,
	} {
		if val == "" {
			continue
		}
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// loadConfig reads path, expanding ${VAR} references. A missing file yields
// the defaults.
func loadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "bolt"
	}
	if cfg.Store.Path == "" {
		if cfg.Store.Driver == "yaml" {
			cfg.Store.Path = "~/.pidom.yaml"
		} else {
			cfg.Store.Path = "~/.pidom.db"
		}
	}
	if cfg.IDs.Base == 0 {
		cfg.IDs.Base = registry.DefaultBaseID
	}
	if cfg.IDs.Count == 0 {
		cfg.IDs.Count = registry.DefaultPoolSize
	}
	if cfg.Transmitter.Type == "" {
		cfg.Transmitter.Type = "exec"
	}
	if cfg.Transmitter.Type == "exec" && len(cfg.Transmitter.Command) == 0 {
		cfg.Transmitter.Command = []string{"sudo", "emit"}
	}
	if cfg.Transmitter.Button == "" {
		cfg.Transmitter.Button = "A1"
	}
	if cfg.Transmitter.Baud == 0 {
		cfg.Transmitter.Baud = 9600
	}
	if cfg.Pairing.Window == "" {
		cfg.Pairing.Window = registry.DefaultPairingWindow.String()
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "pidom"
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if cfg.Hooks.Dir == "" {
		cfg.Hooks.Dir = "~/.config/pidom/hooks"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if cfg.Store.Path, err = store.ExpandHome(cfg.Store.Path); err != nil {
		return nil, err
	}
	if cfg.Hooks.Dir, err = store.ExpandHome(cfg.Hooks.Dir); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// duration parses a validated duration string; empty means def.
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
