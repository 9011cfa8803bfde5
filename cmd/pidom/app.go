package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"pidom/internal/events"
	"pidom/internal/idpool"
	"pidom/internal/registry"
	"pidom/internal/store"
	"pidom/internal/transmit"
)

type stopper interface {
	Stop()
}

// app is one CLI invocation: the registry restored from disk plus the
// optional observers attached to its bus.
type app struct {
	cfg     *Config
	logger  *slog.Logger
	reg     *registry.Registry
	closers []func() error
	stops   []stopper
}

func newApp(cfg *Config, logger *slog.Logger, tolerate bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	pool, err := idpool.New(cfg.IDs.Base, cfg.IDs.Count)
	if err != nil {
		return nil, err
	}
	tx, err := a.createTransmitter()
	if err != nil {
		return nil, err
	}

	a.reg, err = registry.New(registry.Options{
		Pool:        pool,
		Transmitter: tx,
		Bus:         events.NewBus(logger),
		Store:       createStore(cfg),
		Pairer: &registry.WindowPairer{
			Window:   duration(cfg.Pairing.Window, registry.DefaultPairingWindow),
			Interval: duration(cfg.Pairing.Interval, 0),
		},
		Logger:              logger,
		TolerateUnreachable: tolerate,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	if err := a.reg.Restore(); err != nil {
		a.close()
		return nil, err
	}

	// Observers attach after restore so the mirror announces restored devices.
	hooks, err := initHooks(a.reg, cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.stops = append(a.stops, hooks, initMQTT(a.reg, cfg, logger))
	return a, nil
}

func (a *app) createTransmitter() (transmit.Transmitter, error) {
	t := a.cfg.Transmitter
	switch t.Type {
	case "serial":
		tx, err := transmit.NewSerialTransmitter(transmit.SerialConfig{
			Port:       t.Port,
			Baud:       t.Baud,
			Ack:        t.Ack,
			AckTimeout: duration(t.AckTimeout, 0),
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, tx.Close)
		return tx, nil
	case "exec", "":
		return transmit.NewExecTransmitter(transmit.ExecConfig{
			Command: t.Command,
			Button:  t.Button,
			Timeout: duration(t.Timeout, 0),
		}, a.logger)
	default:
		return nil, fmt.Errorf("unknown transmitter type: %q (supported: exec, serial)", t.Type)
	}
}

func createStore(cfg *Config) store.Store {
	if cfg.Store.Driver == "yaml" {
		return store.NewFileStore(cfg.Store.Path)
	}
	return store.NewBoltStore(cfg.Store.Path)
}

// run executes fn against the registry. Mutating commands back up even when
// fn fails, since a bulk operation may have switched some devices already.
func (a *app) run(ctx context.Context, mutate bool, fn func(context.Context, *registry.Registry) error) error {
	err := fn(ctx, a.reg)
	if mutate {
		if berr := a.reg.Backup(); berr != nil {
			err = errors.Join(err, berr)
		}
	}
	return err
}

func (a *app) close() {
	for i := len(a.stops) - 1; i >= 0; i-- {
		a.stops[i].Stop()
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close", "err", err)
		}
	}
}

// withApp loads the configuration named by the root flags and runs fn.
func withApp(ctx context.Context, opts *rootOptions, stderr io.Writer, tolerate, mutate bool, fn func(context.Context, *registry.Registry) error) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg, stderr)

	a, err := newApp(cfg, logger, tolerate)
	if err != nil {
		return err
	}
	defer a.close()
	return a.run(ctx, mutate, fn)
}
