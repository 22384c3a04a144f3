// Package webapi delivers web-surface actions (notifications, vibration and
// URL opening) to browser clients connected over WebSocket.
package webapi

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"macro-go-engine/internal/backend"
)

// ErrNoClients is returned when a web action has nobody to deliver to.
var ErrNoClients = errors.New("webapi: no web clients connected")

// Broadcaster fans a message out to connected clients.
type Broadcaster interface {
	Broadcast(msg interface{})
	ClientCount() int
}

// Config selects the emulated browser capabilities.
type Config struct {
	Features               []string `yaml:"features"`
	NotificationPermission string   `yaml:"notification_permission"` // default, granted, denied
	AutoGrant              bool     `yaml:"auto_grant"`              // answer permission prompts with "granted"
}

// DefaultConfig enables every feature with the permission not yet decided.
func DefaultConfig() Config {
	return Config{
		Features:               []string{backend.FeatureNotifications, backend.FeatureVibration, backend.FeatureOpenURL},
		NotificationPermission: string(backend.PermissionDefault),
		AutoGrant:              true,
	}
}

// Message is pushed to clients for every web action.
type Message struct {
	Type    string    `json:"type"`
	Action  string    `json:"action"`
	Title   string    `json:"title,omitempty"`
	Body    string    `json:"body,omitempty"`
	Pattern []int     `json:"pattern,omitempty"`
	URL     string    `json:"url,omitempty"`
	Time    time.Time `json:"time"`
}

// HubPlatform implements backend.Platform on top of a Broadcaster.
type HubPlatform struct {
	hub      Broadcaster
	features map[string]bool
	logger   *slog.Logger

	mu        sync.Mutex
	perm      backend.NotificationPermission
	autoGrant bool
}

// NewHubPlatform creates a platform delivering through hub.
func NewHubPlatform(hub Broadcaster, cfg Config, logger *slog.Logger) *HubPlatform {
	p := &HubPlatform{
		hub:       hub,
		features:  make(map[string]bool, len(cfg.Features)),
		logger:    logger.With("component", "webapi"),
		perm:      backend.PermissionDefault,
		autoGrant: cfg.AutoGrant,
	}
	for _, f := range cfg.Features {
		p.features[f] = true
	}
	switch backend.NotificationPermission(cfg.NotificationPermission) {
	case backend.PermissionGranted, backend.PermissionDenied:
		p.perm = backend.NotificationPermission(cfg.NotificationPermission)
	}
	return p
}

func (p *HubPlatform) IsSupported(feature string) bool {
	return p.features[feature]
}

// Features lists the enabled browser capabilities in sorted order.
func (p *HubPlatform) Features() []string {
	out := make([]string, 0, len(p.features))
	for f, on := range p.features {
		if on {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func (p *HubPlatform) NotificationPermission() backend.NotificationPermission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.perm
}

// SetNotificationPermission records a decision made by a client.
func (p *HubPlatform) SetNotificationPermission(perm backend.NotificationPermission) {
	p.mu.Lock()
	p.perm = perm
	p.mu.Unlock()
}

// RequestNotificationPermission resolves a pending prompt. Decided
// permissions are returned unchanged.
func (p *HubPlatform) RequestNotificationPermission(ctx context.Context) (backend.NotificationPermission, error) {
	if err := ctx.Err(); err != nil {
		return backend.PermissionDefault, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.perm == backend.PermissionDefault {
		if p.autoGrant {
			p.perm = backend.PermissionGranted
		} else {
			p.perm = backend.PermissionDenied
		}
		p.logger.Info("notification permission resolved", "permission", p.perm)
	}
	return p.perm, nil
}

func (p *HubPlatform) ShowNotification(ctx context.Context, title, body string) error {
	return p.send(ctx, Message{Action: "notify", Title: title, Body: body})
}

func (p *HubPlatform) Vibrate(ctx context.Context, pattern []int) error {
	return p.send(ctx, Message{Action: "vibrate", Pattern: pattern})
}

func (p *HubPlatform) OpenURL(ctx context.Context, target string) error {
	return p.send(ctx, Message{Action: "open_url", URL: target})
}

func (p *HubPlatform) send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.hub == nil || p.hub.ClientCount() == 0 {
		return ErrNoClients
	}
	msg.Type = "web_action"
	msg.Time = time.Now().UTC()
	p.hub.Broadcast(msg)
	return nil
}
