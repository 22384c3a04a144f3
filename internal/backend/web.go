package backend

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"macro-go-engine/internal/action"
	"macro-go-engine/internal/macro"
)

// Web platform features.
const (
	FeatureNotifications = "notifications"
	FeatureVibration     = "vibration"
	FeatureOpenURL       = "open_url"
)

// NotificationPermission mirrors the browser's tri-state permission.
type NotificationPermission string

const (
	PermissionDefault NotificationPermission = "default"
	PermissionGranted NotificationPermission = "granted"
	PermissionDenied  NotificationPermission = "denied"
)

// Platform is the browser-like surface the web backend drives.
type Platform interface {
	IsSupported(feature string) bool
	NotificationPermission() NotificationPermission
	RequestNotificationPermission(ctx context.Context) (NotificationPermission, error)
	ShowNotification(ctx context.Context, title, body string) error
	Vibrate(ctx context.Context, pattern []int) error
	OpenURL(ctx context.Context, target string) error
}

var webSuggestions = map[action.ID]string{
	action.SetVolume:       "System volume control requires Android mode.",
	action.SetBrightness:   "Screen brightness control requires Android mode.",
	action.ToggleWifi:      "WiFi control requires Android mode.",
	action.ToggleBluetooth: "Bluetooth control requires Android mode.",
	action.SendSMS:         "SMS sending requires Android mode.",
	action.MakeCall:        "Phone calls require Android mode.",
}

func webSuggestion(id action.ID) string {
	if s, ok := webSuggestions[id]; ok {
		return s
	}
	return "Try using Hybrid or Android mode for full functionality."
}

// Web executes the narrow set of actions a browser can perform.
type Web struct {
	platform Platform
	logger   *slog.Logger
}

// NewWeb creates a web backend over platform.
func NewWeb(platform Platform, logger *slog.Logger) *Web {
	return &Web{platform: platform, logger: logger.With("component", "backend.web")}
}

// Execute implements Executor.
func (w *Web) Execute(ctx context.Context, act action.Normalized, step macro.Step) (res Result) {
	defer guard(NameWeb, &res)
	params := act.Parameters

	switch act.ID {
	case action.SendNotify:
		title := paramString(params, step.Title, "title")
		body := paramString(params, step.Description, "message", "text", "body")
		return w.notify(ctx, title, body)

	case action.Vibrate:
		return w.vibrate(ctx, vibrationPattern(params), "Vibration triggered")

	case action.LaunchApp:
		target := urlTarget(params)
		if target == "" {
			return fail(NameWeb, KindUnsupported, "App launching requires Android mode")
		}
		if !w.platform.IsSupported(FeatureOpenURL) {
			return fail(NameWeb, KindUnsupported, "Opening URLs is not supported by this browser")
		}
		if err := w.platform.OpenURL(ctx, target); err != nil {
			return fail(NameWeb, KindBackendError, "Web API error: failed to open URL: %v", err)
		}
		return ok(NameWeb, "URL opened: "+target)

	case action.SetVolume, action.SetBrightness, action.ToggleWifi, action.ToggleBluetooth:
		return fail(NameWeb, KindUnsupported,
			"%s is not available in Web mode. Please use Android or Hybrid mode for full device control.", act.ID)
	}

	if w.platform.IsSupported(FeatureVibration) {
		w.logger.Debug("approximating action with vibration", "action", act.ID, "step", step.Title)
		res := w.vibrate(ctx, []int{200}, "Simulated "+step.Title+" with vibration (limited Web API support)")
		if res.Success {
			res.Data = map[string]any{"approximation": "vibration", "action": string(act.ID)}
		}
		return res
	}
	return fail(NameWeb, KindUnsupported, "Action '%s' not available in Web mode. %s", act.ID, webSuggestion(act.ID))
}

func (w *Web) notify(ctx context.Context, title, body string) Result {
	if !w.platform.IsSupported(FeatureNotifications) {
		return fail(NameWeb, KindUnsupported, "Notifications API not supported")
	}
	perm := w.platform.NotificationPermission()
	if perm == PermissionDefault {
		var err error
		perm, err = w.platform.RequestNotificationPermission(ctx)
		if err != nil {
			return fail(NameWeb, KindPermissionDenied, "Notification permission request failed: %v", err)
		}
		if perm != PermissionGranted {
			return fail(NameWeb, KindPermissionDenied, "Notification permission denied")
		}
	}
	if perm != PermissionGranted {
		return fail(NameWeb, KindPermissionDenied, "Notification permission not granted")
	}
	if err := w.platform.ShowNotification(ctx, title, body); err != nil {
		return fail(NameWeb, KindBackendError, "Web API error: notification failed: %v", err)
	}
	return ok(NameWeb, "Notification sent")
}

func (w *Web) vibrate(ctx context.Context, pattern []int, msg string) Result {
	if !w.platform.IsSupported(FeatureVibration) {
		return fail(NameWeb, KindUnsupported, "Vibration API not supported")
	}
	if err := w.platform.Vibrate(ctx, pattern); err != nil {
		return fail(NameWeb, KindBackendError, "Web API error: vibration failed: %v", err)
	}
	return ok(NameWeb, msg)
}

// urlTarget returns the first parameter that looks like a URL (it has a
// scheme), or "".
func urlTarget(params map[string]any) string {
	for _, k := range []string{"url", "uri", "link", "packageName", "package", "data"} {
		s, ok := params[k].(string)
		if !ok || s == "" {
			continue
		}
		u, err := url.Parse(strings.TrimSpace(s))
		if err != nil || u.Scheme == "" {
			continue
		}
		if u.Host == "" && u.Opaque == "" && u.Path == "" {
			continue
		}
		return u.String()
	}
	return ""
}
