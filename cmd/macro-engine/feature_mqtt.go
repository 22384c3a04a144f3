//go:build !no_mqtt

package main

import (
	"fmt"
	"log/slog"

	"macro-go-engine/internal/bridge"
	"macro-go-engine/internal/engine"
	"macro-go-engine/internal/mqtt"
)

type mqttFeature struct {
	conn *mqtt.Conn
	pub  *mqtt.Publisher
}

func initMQTT(cfg *Config, logger *slog.Logger) (*mqttFeature, error) {
	if !cfg.MQTT.Enabled {
		return &mqttFeature{}, nil
	}
	conn, err := mqtt.Dial(mqtt.Config{
		Broker:      cfg.MQTT.Broker,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("mqtt: %w", err)
	}
	return &mqttFeature{conn: conn}, nil
}

func (f *mqttFeature) bridgeTransport(device string, logger *slog.Logger) (bridge.Transport, error) {
	if f.conn == nil {
		return nil, fmt.Errorf("mqtt bridge requires mqtt.enabled")
	}
	logger.Info("using mqtt bridge", "device", device)
	return mqtt.NewTransport(f.conn, device, logger), nil
}

// start publishes engine state and accepts commands.
func (f *mqttFeature) start(eng *engine.Engine, macros mqtt.MacroSource, logger *slog.Logger) {
	if f.conn == nil {
		return
	}
	f.pub = mqtt.NewPublisher(f.conn, eng, macros, logger)
	f.pub.Start()
}

func (f *mqttFeature) refreshDiscovery() {
	if f.pub != nil {
		f.pub.PublishDiscovery()
	}
}

func (f *mqttFeature) Stop() {
	if f.pub != nil {
		f.pub.Stop()
	}
	if f.conn != nil {
		f.conn.Close()
	}
}
