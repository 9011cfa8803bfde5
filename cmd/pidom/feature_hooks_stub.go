//go:build no_hooks

package main

import (
	"log/slog"

	"pidom/internal/registry"
)

type hooksStopper struct{}

func (h *hooksStopper) Stop() {}

func initHooks(_ *registry.Registry, _ *Config, _ *slog.Logger) (stopper, error) {
	return &hooksStopper{}, nil
}
