package main

import (
	"errors"
	"fmt"
	"log/slog"

	"macro-go-engine/internal/backend"
	"macro-go-engine/internal/bridge"
	"macro-go-engine/internal/condition"
	"macro-go-engine/internal/engine"
	"macro-go-engine/internal/permission"
	"macro-go-engine/internal/store"
	"macro-go-engine/internal/web"
	"macro-go-engine/internal/webapi"
)

// app holds the wired engine and everything it depends on.
type app struct {
	cfg      *Config
	logger   *slog.Logger
	db       *store.BoltStore // nil for one-shot runs
	hub      *web.WSHub
	platform *webapi.HubPlatform
	client   *bridge.Client // nil without a bridge
	perms    *permission.Manager
	router   *engine.Router
	engine   *engine.Engine
	mqtt     *mqttFeature

	closers []func()
}

// newApp wires the engine from cfg. persistent opens the bolt store so
// macros, runs, grants and the selected mode survive restarts.
func newApp(cfg *Config, logger *slog.Logger, persistent bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()

	if persistent {
		db, err := store.NewBoltStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, func() { db.Close() })
	}

	var err error
	a.mqtt, err = initMQTT(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.mqtt.Stop)

	transport, err := a.openBridge()
	if err != nil {
		return nil, err
	}
	native := backend.NewNative(nil, logger)
	if transport != nil {
		a.client = bridge.NewClient(transport, cfg.bridgeTimeout(), logger)
		native = backend.NewNative(a.client, logger)
	}

	a.hub = web.NewWSHub(logger)
	go a.hub.Run()
	a.closers = append(a.closers, a.hub.Stop)
	a.platform = webapi.NewHubPlatform(a.hub, cfg.WebPlatform, logger)

	var permOpts []permission.Option
	if a.db != nil {
		permOpts = append(permOpts, permission.WithSettings(a.db))
	}
	if a.client != nil {
		permOpts = append(permOpts, permission.WithDevice(a.client))
	}
	a.perms, err = permission.NewManager(permission.Config{AutoGrant: cfg.Permissions.AutoGrant}, logger, permOpts...)
	if err != nil {
		return nil, fmt.Errorf("permissions: %w", err)
	}

	mode, err := a.initialMode()
	if err != nil {
		return nil, err
	}
	routerOpts := []engine.RouterOption{engine.WithPermissions(a.perms)}
	if a.db != nil {
		routerOpts = append(routerOpts, engine.WithSettings(a.db))
	}
	a.router = engine.NewRouter(mode, backend.NewSimulator(cfg.simulator()), backend.NewWeb(a.platform, logger), native, logger, routerOpts...)

	conds, err := condition.New(cfg.Conditions.Evaluator, cfg.conditionTimeout(), logger)
	if err != nil {
		return nil, err
	}
	var engOpts []engine.Option
	if a.db != nil {
		engOpts = append(engOpts, engine.WithStore(a.db))
	}
	a.engine = engine.New(a.router, engine.Config{
		StepDelay:  cfg.stepDelay(),
		FailFast:   cfg.Engine.FailFast,
		Conditions: conds,
	}, logger, engOpts...)
	a.closers = append(a.closers, a.engine.Close)

	logger.Info("engine ready", "mode", mode, "bridge", cfg.Bridge.Type, "conditions", cfg.Conditions.Evaluator)
	ready = true
	return a, nil
}

// openBridge creates the configured native bridge transport, or nil for
// "none".
func (a *app) openBridge() (bridge.Transport, error) {
	cfg := a.cfg
	switch cfg.Bridge.Type {
	case "adb":
		a.logger.Info("using adb bridge", "path", cfg.Bridge.ADB.Path, "serial", cfg.Bridge.ADB.Serial)
		return bridge.NewADBTransport(cfg.Bridge.ADB.Path, cfg.Bridge.ADB.Serial, a.logger), nil
	case "serial":
		a.logger.Info("using serial bridge", "port", cfg.Bridge.Serial.Port, "baud", cfg.Bridge.Serial.Baud)
		t, err := bridge.OpenSerial(cfg.Bridge.Serial.Port, cfg.Bridge.Serial.Baud, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { t.Close() })
		return t, nil
	case "mqtt":
		return a.mqtt.bridgeTransport(cfg.MQTT.BridgeDevice, a.logger)
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown bridge type: %q", cfg.Bridge.Type)
}

// initialMode prefers the persisted mode over the configured one.
func (a *app) initialMode() (engine.Mode, error) {
	mode, err := engine.ParseMode(a.cfg.Engine.Mode)
	if err != nil {
		return "", err
	}
	if a.db == nil {
		return mode, nil
	}
	var saved string
	err = a.db.GetSetting(engine.SettingMode, &saved)
	switch {
	case err == nil:
		if m, perr := engine.ParseMode(saved); perr == nil {
			return m, nil
		}
		a.logger.Warn("ignoring invalid persisted mode", "mode", saved)
	case !errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("load mode: %w", err)
	}
	return mode, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
