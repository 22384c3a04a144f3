package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"macro-go-engine/internal/backend"
	"macro-go-engine/internal/condition"
	"macro-go-engine/internal/engine"
	"macro-go-engine/internal/webapi"
)

type Config struct {
	Engine struct {
		Mode      string `yaml:"mode"`
		StepDelay string `yaml:"step_delay"`
		FailFast  bool   `yaml:"fail_fast"`
		Simulator struct {
			SuccessRate float64 `yaml:"success_rate"`
			MinDelay    string  `yaml:"min_delay"`
			MaxDelay    string  `yaml:"max_delay"`
		} `yaml:"simulator"`
	} `yaml:"engine"`
	Bridge struct {
		Type string `yaml:"type"` // none, adb, serial, mqtt
		ADB  struct {
			Path   string `yaml:"path"`
			Serial string `yaml:"serial"`
		} `yaml:"adb"`
		Serial struct {
			Port string `yaml:"port"`
			Baud int    `yaml:"baud"`
		} `yaml:"serial"`
		Timeout string `yaml:"timeout"`
	} `yaml:"bridge"`
	WebPlatform webapi.Config `yaml:"web_platform"`
	Permissions struct {
		AutoGrant bool `yaml:"auto_grant"`
	} `yaml:"permissions"`
	Conditions struct {
		Evaluator string `yaml:"evaluator"` // always, lua
		Timeout   string `yaml:"timeout"`
	} `yaml:"conditions"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled      bool   `yaml:"enabled"`
		Broker       string `yaml:"broker"`
		Username     string `yaml:"username"`
		Password     string `yaml:"password"`
		TopicPrefix  string `yaml:"topic_prefix"`
		BridgeDevice string `yaml:"bridge_device"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	if _, err := engine.ParseMode(c.Engine.Mode); err != nil {
		return fmt.Errorf("engine.mode: %w", err)
	}
	durations := map[string]string{
		"engine.step_delay":          c.Engine.StepDelay,
		"engine.simulator.min_delay": c.Engine.Simulator.MinDelay,
		"engine.simulator.max_delay": c.Engine.Simulator.MaxDelay,
		"bridge.timeout":             c.Bridge.Timeout,
		"conditions.timeout":         c.Conditions.Timeout,
	}
	for key, v := range durations {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if r := c.Engine.Simulator.SuccessRate; r < 0.9 || r > 1 {
		return fmt.Errorf("engine.simulator.success_rate must be 0.9-1, got %v", r)
	}
	switch c.Bridge.Type {
	case "none", "adb":
	case "serial":
		if c.Bridge.Serial.Port == "" {
			return fmt.Errorf("bridge.serial.port is required for the serial bridge")
		}
	case "mqtt":
		if !c.MQTT.Enabled {
			return fmt.Errorf("bridge.type mqtt requires mqtt.enabled")
		}
	default:
		return fmt.Errorf("unknown bridge.type: %q (supported: none, adb, serial, mqtt)", c.Bridge.Type)
	}
	switch c.Conditions.Evaluator {
	case condition.KindAlways, condition.KindLua:
	default:
		return fmt.Errorf("unknown conditions.evaluator: %q (supported: always, lua)", c.Conditions.Evaluator)
	}
	switch backend.NotificationPermission(c.WebPlatform.NotificationPermission) {
	case backend.PermissionDefault, backend.PermissionGranted, backend.PermissionDenied:
	default:
		return fmt.Errorf("web_platform.notification_permission must be default, granted or denied")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// stepDelay returns the configured pause between steps. "0s" disables it.
func (c *Config) stepDelay() time.Duration {
	d, _ := time.ParseDuration(c.Engine.StepDelay)
	if d == 0 {
		return -1
	}
	return d
}

func (c *Config) simulator() backend.SimulatorConfig {
	lo, _ := time.ParseDuration(c.Engine.Simulator.MinDelay)
	hi, _ := time.ParseDuration(c.Engine.Simulator.MaxDelay)
	return backend.SimulatorConfig{
		SuccessRate: c.Engine.Simulator.SuccessRate,
		MinDelay:    lo,
		MaxDelay:    hi,
	}
}

func (c *Config) bridgeTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Bridge.Timeout)
	return d
}

func (c *Config) conditionTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Conditions.Timeout)
	return d
}

func defaultConfig() *Config {
	var cfg Config
	cfg.WebPlatform = webapi.DefaultConfig()
	applyDefaults(&cfg)
	return &cfg
}

// loadConfig reads path and fills in defaults. A missing file is an error
// unless optional is set, in which case the defaults are returned.
func loadConfig(path string, optional bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.Mode == "" {
		cfg.Engine.Mode = string(engine.ModeDemo)
	}
	if cfg.Engine.StepDelay == "" {
		cfg.Engine.StepDelay = engine.DefaultStepDelay.String()
	}
	def := backend.DefaultSimulatorConfig()
	if cfg.Engine.Simulator.SuccessRate == 0 {
		cfg.Engine.Simulator.SuccessRate = def.SuccessRate
	}
	if cfg.Engine.Simulator.MinDelay == "" {
		cfg.Engine.Simulator.MinDelay = def.MinDelay.String()
	}
	if cfg.Engine.Simulator.MaxDelay == "" {
		cfg.Engine.Simulator.MaxDelay = def.MaxDelay.String()
	}
	if cfg.Bridge.Type == "" {
		cfg.Bridge.Type = "none"
	}
	if cfg.Bridge.Serial.Baud == 0 {
		cfg.Bridge.Serial.Baud = 115200
	}
	if cfg.Bridge.Timeout == "" {
		cfg.Bridge.Timeout = "10s"
	}
	if cfg.WebPlatform.NotificationPermission == "" {
		cfg.WebPlatform.NotificationPermission = string(backend.PermissionDefault)
	}
	if cfg.Conditions.Evaluator == "" {
		cfg.Conditions.Evaluator = condition.KindAlways
	}
	if cfg.Conditions.Timeout == "" {
		cfg.Conditions.Timeout = "1s"
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "macro-engine.db"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "macro-engine"
	}
	if cfg.MQTT.BridgeDevice == "" {
		cfg.MQTT.BridgeDevice = "android"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func newLogger(cfg *Config) *slog.Logger {
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
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
