package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"macro-go-engine/internal/action"
	"macro-go-engine/internal/backend"
	"macro-go-engine/internal/bridge"
	"macro-go-engine/internal/macro"
)

// SettingMode is the settings key the active mode is persisted under.
const SettingMode = "engine.mode"

// Simulator is the demo surface plus the synthetic success used by Hybrid
// mode for known-unsupported steps.
type Simulator interface {
	backend.Executor
	Fallback(step macro.Step, env string, reason backend.Result) backend.Result
}

// Native is the device bridge backend. Available is checked once per native
// dispatch; the context passed to Execute then carries that confirmation.
type Native interface {
	backend.Executor
	Available(ctx context.Context) bool
}

// PermissionOracle answers whether an Android permission is granted.
type PermissionOracle interface {
	IsGranted(permission string) bool
}

// SettingsStore persists the selected mode.
type SettingsStore interface {
	SaveSetting(key string, value any) error
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithPermissions gates native-only actions in Android mode on granted
// permissions.
func WithPermissions(p PermissionOracle) RouterOption {
	return func(r *Router) { r.perms = p }
}

// WithSettings persists mode changes.
func WithSettings(s SettingsStore) RouterOption {
	return func(r *Router) { r.settings = s }
}

// Router dispatches normalized actions to backends according to the current
// mode. The mode is read once per dispatch.
type Router struct {
	mode     atomic.Value // Mode
	sim      Simulator
	web      backend.Executor
	native   Native
	perms    PermissionOracle
	settings SettingsStore
	logger   *slog.Logger
}

// NewRouter creates a router starting in mode.
func NewRouter(mode Mode, sim Simulator, web backend.Executor, native Native, logger *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		sim:    sim,
		web:    web,
		native: native,
		logger: logger.With("component", "router"),
	}
	r.mode.Store(mode)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the active mode.
func (r *Router) Mode() Mode {
	return r.mode.Load().(Mode)
}

// SetMode switches the active mode. Runs already dispatching a step keep the
// mode they read.
func (r *Router) SetMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	r.mode.Store(m)
	if r.settings != nil {
		if err := r.settings.SaveSetting(SettingMode, string(m)); err != nil {
			return fmt.Errorf("persist mode: %w", err)
		}
	}
	r.logger.Info("execution mode changed", "mode", m)
	return nil
}

// NativeAvailable reports whether the device bridge is present.
func (r *Router) NativeAvailable(ctx context.Context) bool {
	return r.native != nil && r.native.Available(ctx)
}

// Dispatch executes one step in the current mode. Trigger and condition
// steps never reach a backend.
func (r *Router) Dispatch(ctx context.Context, step macro.Step) backend.Result {
	return r.dispatch(ctx, r.Mode(), step)
}

func (r *Router) dispatch(ctx context.Context, mode Mode, step macro.Step) backend.Result {
	act := action.Normalize(step)
	if !act.Executable() {
		return backend.Result{Success: true, Message: step.Title + ": not executed"}
	}
	r.logger.Debug("dispatch", "action", act.ID, "mode", mode, "step", step.Title)

	if act.ID == action.Unknown {
		res := backend.Result{
			Kind:    backend.KindUnknownAction,
			Message: fmt.Sprintf("Unknown action '%s' for step '%s'", act.Declared, step.Title),
		}
		if mode == ModeHybrid && action.KnownUnsupported(step.Title) {
			r.logger.Info("simulating known-unsupported step", "step", step.Title)
			return r.sim.Fallback(step, mode.Label(), res)
		}
		return res
	}

	switch mode {
	case ModeDemo:
		return r.sim.Execute(ctx, act, step)
	case ModeWeb:
		return r.web.Execute(ctx, act, step)
	case ModeAndroid:
		return r.android(ctx, act, step)
	case ModeHybrid:
		return r.hybrid(ctx, act, step)
	}
	return backend.Result{Kind: backend.KindUnsupported, Message: fmt.Sprintf("unknown execution mode %q", mode)}
}

func (r *Router) android(ctx context.Context, act action.Normalized, step macro.Step) backend.Result {
	if !r.NativeAvailable(ctx) {
		return backend.Result{
			Kind:    backend.KindBridgeUnavailable,
			Backend: backend.NameNative,
			Message: fmt.Sprintf("%s: cannot execute '%s' in Android mode", backend.BridgeUnavailable, step.Title),
		}
	}
	if r.perms != nil && !action.WebCapable(act.ID) {
		for _, p := range action.Permissions(act.ID) {
			if !r.perms.IsGranted(p) {
				return backend.Result{
					Kind:    backend.KindPermissionDenied,
					Backend: backend.NameNative,
					Message: fmt.Sprintf("Permission %s not granted for '%s'", p, step.Title),
					Data:    map[string]any{"permission": p},
				}
			}
		}
	}
	return r.native.Execute(bridge.WithConfirmed(ctx), act, step)
}

func (r *Router) hybrid(ctx context.Context, act action.Normalized, step macro.Step) backend.Result {
	var failure backend.Result
	if r.NativeAvailable(ctx) {
		res := r.native.Execute(bridge.WithConfirmed(ctx), act, step)
		if res.Success {
			return res
		}
		failure = res
		if action.WebCapable(act.ID) {
			r.logger.Info("native failed, retrying on web", "action", act.ID, "reason", res.Message)
			web := r.web.Execute(ctx, act, step)
			if web.Success {
				return web
			}
			failure.Data = mergeData(failure.Data, map[string]any{"web_fallback": web.Message})
		}
	} else {
		res := r.web.Execute(ctx, act, step)
		if res.Success {
			return res
		}
		failure = res
	}

	if action.KnownUnsupported(step.Title) {
		r.logger.Info("simulating known-unsupported step", "step", step.Title, "reason", failure.Message)
		return r.sim.Fallback(step, ModeHybrid.Label(), failure)
	}
	return failure
}

func mergeData(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
