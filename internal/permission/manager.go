package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"macro-go-engine/internal/action"
	"macro-go-engine/internal/macro"
	"macro-go-engine/internal/store"
)

// ErrUnknown is returned for names missing from the catalog.
var ErrUnknown = errors.New("unknown permission")

// SettingGranted is the settings key holding the granted set.
const SettingGranted = "permissions.granted"

// Settings persists the granted set.
type Settings interface {
	SaveSetting(key string, value any) error
	GetSetting(key string, dst any) error
}

// Device asks a connected phone to grant a permission.
type Device interface {
	Available(ctx context.Context) bool
	RequestPermission(ctx context.Context, permission string) (bool, error)
}

// DefaultGranted are held without asking.
var DefaultGranted = []string{"MODIFY_AUDIO_SETTINGS", "ACCESS_WIFI_STATE", "WAKE_LOCK"}

// Config controls the request policy.
type Config struct {
	// AutoGrant grants dangerous permissions on request. When false they
	// are refused unless a device grants them.
	AutoGrant bool `yaml:"auto_grant"`
}

// Outcome is the answer to a request.
type Outcome struct {
	Permission string `json:"permission"`
	Granted    bool   `json:"granted"`
	Message    string `json:"message"`
}

// Check summarizes a macro's permission state.
type Check struct {
	AllGranted bool     `json:"all_granted"`
	Missing    []Info   `json:"missing"`
	Granted    []string `json:"granted"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithSettings loads and persists the granted set.
func WithSettings(s Settings) Option {
	return func(m *Manager) { m.settings = s }
}

// WithDevice forwards requests to a connected device when it is available.
func WithDevice(d Device) Option {
	return func(m *Manager) { m.device = d }
}

// Manager is the permission oracle.
type Manager struct {
	cfg      Config
	settings Settings
	device   Device
	logger   *slog.Logger

	mu      sync.RWMutex
	granted map[string]bool
}

// NewManager creates a manager holding DefaultGranted plus anything
// previously persisted.
func NewManager(cfg Config, logger *slog.Logger, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:     cfg,
		logger:  logger.With("component", "permissions"),
		granted: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, p := range DefaultGranted {
		m.granted[p] = true
	}
	if m.settings != nil {
		var saved []string
		err := m.settings.GetSetting(SettingGranted, &saved)
		switch {
		case err == nil:
			for _, p := range saved {
				m.granted[Canonical(p)] = true
			}
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, fmt.Errorf("load granted permissions: %w", err)
		}
	}
	return m, nil
}

// IsGranted reports whether permission is held.
func (m *Manager) IsGranted(permission string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.granted[Canonical(permission)]
}

// Granted returns the held permissions, sorted.
func (m *Manager) Granted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.granted))
	for p := range m.granted {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Request asks for permission. Normal permissions are granted, dangerous ones
// follow the device or AutoGrant, signature ones are refused.
func (m *Manager) Request(ctx context.Context, permission string) (Outcome, error) {
	info, ok := Lookup(permission)
	if !ok {
		return Outcome{Permission: permission}, fmt.Errorf("%w: %s", ErrUnknown, permission)
	}
	out := Outcome{Permission: info.Name}
	if m.IsGranted(info.Name) {
		out.Granted = true
		out.Message = "Permission already granted: " + info.DisplayName
		return out, nil
	}

	if m.device != nil && m.device.Available(ctx) {
		granted, err := m.device.RequestPermission(ctx, info.Name)
		if err != nil {
			m.logger.Warn("device permission request failed", "permission", info.Name, "err", err)
		} else {
			out.Granted = granted
			if granted {
				out.Message = "Permission granted on device: " + info.DisplayName
			} else {
				out.Message = "Permission denied on device: " + info.DisplayName
			}
			return out, m.record(out)
		}
	}

	switch info.Danger {
	case Normal:
		out.Granted = true
		out.Message = "Permission auto-granted: " + info.DisplayName
	case Dangerous:
		if m.cfg.AutoGrant {
			out.Granted = true
			out.Message = "Permission granted: " + info.DisplayName
		} else {
			out.Message = "Permission denied by user: " + info.DisplayName
		}
	case Signature:
		out.Message = "Signature permission requires system access: " + info.DisplayName
	default:
		out.Message = "Could not process permission: " + info.Name
	}
	return out, m.record(out)
}

// RequestAll requests each permission and reports which were granted.
// Unknown names are reported as not granted.
func (m *Manager) RequestAll(ctx context.Context, permissions []string) map[string]bool {
	results := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		out, err := m.Request(ctx, p)
		if err != nil && !errors.Is(err, ErrUnknown) {
			m.logger.Error("permission request", "permission", p, "err", err)
		}
		results[Canonical(p)] = out.Granted
	}
	return results
}

// Required returns the permissions m needs: the ones it declares plus those
// of its action steps.
func Required(m *macro.Macro) []string {
	ids := make([]action.ID, 0, len(m.Steps))
	for _, s := range m.Steps {
		if s.Kind == macro.KindAction {
			ids = append(ids, action.Normalize(s).ID)
		}
	}
	set := make(map[string]bool)
	for _, p := range m.Permissions {
		set[Canonical(p)] = true
	}
	for _, p := range action.RequiredPermissions(ids) {
		set[p] = true
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CheckMacro reports which of the macro's required permissions are held.
// Names missing from the catalog are ignored.
func (m *Manager) CheckMacro(mac *macro.Macro) Check {
	c := Check{Missing: []Info{}, Granted: []string{}}
	for _, p := range Required(mac) {
		if m.IsGranted(p) {
			c.Granted = append(c.Granted, p)
			continue
		}
		if info, ok := Lookup(p); ok {
			c.Missing = append(c.Missing, info)
		}
	}
	c.AllGranted = len(c.Missing) == 0
	return c
}

func (m *Manager) record(out Outcome) error {
	m.logger.Info("permission request", "permission", out.Permission, "granted", out.Granted)
	if !out.Granted {
		return nil
	}
	m.mu.Lock()
	m.granted[out.Permission] = true
	m.mu.Unlock()

	if m.settings == nil {
		return nil
	}
	if err := m.settings.SaveSetting(SettingGranted, m.Granted()); err != nil {
		return fmt.Errorf("persist granted permissions: %w", err)
	}
	return nil
}
