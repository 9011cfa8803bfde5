//go:build !no_mqtt

package main

import (
	"log/slog"

	mqttmirror "pidom/internal/mqtt"
	"pidom/internal/registry"
)

type mqttStopper struct {
	mirror *mqttmirror.Mirror
}

func (m *mqttStopper) Stop() {
	if m.mirror != nil {
		m.mirror.Stop()
	}
}

// initMQTT connects the state mirror. A broker that cannot be reached is
// logged and the command proceeds without it.
func initMQTT(reg *registry.Registry, cfg *Config, logger *slog.Logger) stopper {
	if !cfg.MQTT.Enabled {
		return &mqttStopper{}
	}
	mirror, err := mqttmirror.NewMirror(reg, mqttmirror.Config{
		Broker:          cfg.MQTT.Broker,
		Username:        cfg.MQTT.Username,
		Password:        cfg.MQTT.Password,
		ClientID:        cfg.MQTT.ClientID,
		TopicPrefix:     cfg.MQTT.TopicPrefix,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
	}, logger)
	if err != nil {
		logger.Error("mqtt mirror", "err", err)
		return &mqttStopper{}
	}
	mirror.Start(reg.Bus())
	return &mqttStopper{mirror: mirror}
}
