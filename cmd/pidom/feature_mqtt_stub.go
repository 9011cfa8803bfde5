//go:build no_mqtt

package main

import (
	"log/slog"

	"pidom/internal/registry"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *registry.Registry, _ *Config, _ *slog.Logger) stopper {
	return &mqttStopper{}
}
