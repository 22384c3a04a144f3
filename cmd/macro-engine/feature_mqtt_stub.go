//go:build no_mqtt

package main

import (
	"errors"
	"log/slog"

	"macro-go-engine/internal/bridge"
	"macro-go-engine/internal/engine"
	"macro-go-engine/internal/macro"
)

type mqttFeature struct{}

type macroSource interface {
	GetMacro(id string) (*macro.Macro, error)
	ListMacros() ([]*macro.Macro, error)
}

func initMQTT(cfg *Config, logger *slog.Logger) (*mqttFeature, error) {
	if cfg.MQTT.Enabled {
		logger.Warn("mqtt.enabled ignored: built without MQTT support")
	}
	return &mqttFeature{}, nil
}

func (f *mqttFeature) bridgeTransport(string, *slog.Logger) (bridge.Transport, error) {
	return nil, errors.New("mqtt bridge unavailable: built without MQTT support")
}

func (f *mqttFeature) start(*engine.Engine, macroSource, *slog.Logger) {}

func (f *mqttFeature) refreshDiscovery() {}

func (f *mqttFeature) Stop() {}
