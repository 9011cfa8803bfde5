//go:build !no_hooks

package main

import (
	"log/slog"

	"pidom/internal/hooks"
	"pidom/internal/registry"
)

func initHooks(reg *registry.Registry, cfg *Config, logger *slog.Logger) (stopper, error) {
	engine := hooks.NewEngine(reg, logger, duration(cfg.Hooks.Timeout, hooks.DefaultTimeout))
	if err := engine.LoadDir(cfg.Hooks.Dir); err != nil {
		engine.Stop()
		return nil, err
	}
	engine.Start(reg.Bus())
	return engine, nil
}
