package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"macro-go-engine/internal/action"
	"macro-go-engine/internal/bridge"
	"macro-go-engine/internal/macro"
)

// BridgeUnavailable is the message for every call made while the native
// surface is absent.
const BridgeUnavailable = "Android bridge not available"

// Surface is the device-control capability supplied by the host at runtime.
// *bridge.Client implements it.
type Surface interface {
	Available(ctx context.Context) bool

	SetVolume(ctx context.Context, stream string, level int) (bridge.Response, error)
	SetBrightness(ctx context.Context, level int) (bridge.Response, error)
	ToggleWifi(ctx context.Context, enabled bool) (bridge.Response, error)
	ToggleBluetooth(ctx context.Context, enabled bool) (bridge.Response, error)
	ToggleFlashlight(ctx context.Context, enabled bool) (bridge.Response, error)
	ToggleLocation(ctx context.Context, enabled bool) (bridge.Response, error)
	SendNotification(ctx context.Context, title, message, priority string) (bridge.Response, error)
	SetDoNotDisturb(ctx context.Context, mode string) (bridge.Response, error)
	SetRingerMode(ctx context.Context, mode string) (bridge.Response, error)
	LaunchApp(ctx context.Context, packageName, data string) (bridge.Response, error)
	CloseApp(ctx context.Context, packageName string) (bridge.Response, error)
	SendSMS(ctx context.Context, phoneNumber, message string) (bridge.Response, error)
	MakeCall(ctx context.Context, phoneNumber string) (bridge.Response, error)
	ControlMedia(ctx context.Context, command string) (bridge.Response, error)
	SetAlarm(ctx context.Context, alarm bridge.Alarm) (bridge.Response, error)
	SetWallpaper(ctx context.Context, imageURL string) (bridge.Response, error)
}

// Native forwards actions to the device bridge. A nil surface is valid and
// means the bridge is absent.
type Native struct {
	surface Surface
	logger  *slog.Logger
}

// NewNative creates a native backend. surface may be nil.
func NewNative(surface Surface, logger *slog.Logger) *Native {
	return &Native{surface: surface, logger: logger.With("component", "backend.native")}
}

// Available reports whether the bridge is present. It is checked before any
// call.
func (n *Native) Available(ctx context.Context) bool {
	return n.surface != nil && n.surface.Available(ctx)
}

// Execute implements Executor.
func (n *Native) Execute(ctx context.Context, act action.Normalized, step macro.Step) (res Result) {
	if !n.Available(ctx) {
		return fail(NameNative, KindBridgeUnavailable, BridgeUnavailable)
	}
	defer guard(NameNative, &res)

	resp, err := n.call(ctx, act, step)
	var pe paramError
	if errors.As(err, &pe) {
		return fail(NameNative, KindInvalidParams, "%s", pe)
	}
	if err != nil {
		n.logger.Warn("bridge call failed", "action", act.ID, "err", err)
		return fail(NameNative, KindBackendError, "Android bridge error: %v", err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = resp.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("%s failed", act.ID)
		}
		kind := KindBackendError
		if resp.PermissionDenied() {
			kind = KindPermissionDenied
		}
		return fail(NameNative, kind, "%s", msg)
	}
	msg := resp.Message
	if msg == "" {
		msg = defaultSuccess(act.ID, step)
	}
	res = ok(NameNative, msg)
	if len(resp.Data) > 0 {
		res.Data = resp.Data
	}
	return res
}

// paramError reports parameters that cannot form a valid bridge call.
type paramError string

func (e paramError) Error() string { return string(e) }

// call maps the action onto the bridge method.
func (n *Native) call(ctx context.Context, act action.Normalized, step macro.Step) (bridge.Response, error) {
	s := n.surface
	p := act.Parameters

	switch act.ID {
	case action.SetVolume:
		level := paramInt(p, 50, "level", "value", "volume")
		if level < 0 || level > 100 {
			return bridge.Response{}, paramError("Volume level must be between 0 and 100")
		}
		return s.SetVolume(ctx, paramString(p, "media", "stream", "streamType"), level)

	case action.SetBrightness:
		level := paramInt(p, 50, "level", "value", "brightness")
		if level < 0 || level > 100 {
			return bridge.Response{}, paramError("Brightness level must be between 0 and 100")
		}
		return s.SetBrightness(ctx, level)

	case action.ToggleWifi:
		return s.ToggleWifi(ctx, enabledParam(step, p))

	case action.ToggleBluetooth:
		return s.ToggleBluetooth(ctx, enabledParam(step, p))

	case action.ToggleFlash:
		return s.ToggleFlashlight(ctx, enabledParam(step, p))

	case action.ToggleLocation:
		return s.ToggleLocation(ctx, enabledParam(step, p))

	case action.SendNotify:
		return s.SendNotification(ctx,
			paramString(p, step.Title, "title"),
			paramString(p, step.Description, "message", "text", "body"),
			paramString(p, "default", "priority"))

	case action.SetDoNotDisturb:
		mode := paramString(p, "", "mode")
		if mode == "" {
			mode = "off"
			if enabledParam(step, p) {
				mode = "silent"
			}
		}
		return s.SetDoNotDisturb(ctx, mode)

	case action.SetRingerMode:
		mode := paramString(p, "", "mode")
		if mode == "" {
			mode = "normal"
			if strings.Contains(strings.ToLower(step.Title), "silent") {
				mode = "silent"
			}
		}
		return s.SetRingerMode(ctx, mode)

	case action.LaunchApp:
		pkg := paramString(p, "", "packageName", "package", "app")
		if pkg == "" {
			return bridge.Response{}, paramError("launch_app requires a packageName")
		}
		return s.LaunchApp(ctx, pkg, paramString(p, "", "data", "url"))

	case action.CloseApp:
		pkg := paramString(p, "", "packageName", "package", "app")
		if pkg == "" {
			return bridge.Response{}, paramError("close_app requires a packageName")
		}
		return s.CloseApp(ctx, pkg)

	case action.SendSMS:
		phone := paramString(p, "", "phoneNumber", "phone", "number")
		if phone == "" {
			return bridge.Response{}, paramError("send_sms requires a phoneNumber")
		}
		return s.SendSMS(ctx, phone, paramString(p, "", "message", "text"))

	case action.MakeCall:
		phone := paramString(p, "", "phoneNumber", "phone", "number")
		if phone == "" {
			return bridge.Response{}, paramError("make_call requires a phoneNumber")
		}
		return s.MakeCall(ctx, phone)

	case action.ControlMedia:
		return s.ControlMedia(ctx, paramString(p, "play", "action", "command"))

	case action.SetAlarm:
		alarm, msg := alarmParams(p)
		if msg != "" {
			return bridge.Response{}, paramError(msg)
		}
		return s.SetAlarm(ctx, alarm)

	case action.SetWallpaper:
		img := paramString(p, "", "imageUrl", "image", "url")
		if img == "" {
			return bridge.Response{}, paramError("set_wallpaper requires an imageUrl")
		}
		return s.SetWallpaper(ctx, img)
	}

	return bridge.Response{Error: fmt.Sprintf("Action type '%s' not supported in Android mode", act.ID)}, nil
}

func alarmParams(p map[string]any) (bridge.Alarm, string) {
	a := bridge.Alarm{
		Hour:   paramInt(p, -1, "hour"),
		Minute: paramInt(p, 0, "minute", "minutes"),
		Label:  paramString(p, "Macro Alarm", "label"),
	}
	if t := paramString(p, "", "time"); t != "" && a.Hour < 0 {
		h, m, found := strings.Cut(t, ":")
		hh, err1 := strconv.Atoi(strings.TrimSpace(h))
		mm := 0
		var err2 error
		if found {
			mm, err2 = strconv.Atoi(strings.TrimSpace(m))
		}
		if err1 != nil || err2 != nil {
			return a, fmt.Sprintf("invalid alarm time %q", t)
		}
		a.Hour, a.Minute = hh, mm
	}
	if a.Hour < 0 || a.Hour > 23 || a.Minute < 0 || a.Minute > 59 {
		return a, "set_alarm requires a valid hour and minute"
	}
	if days, ok := p["days"].([]any); ok {
		for _, d := range days {
			if s, ok := d.(string); ok {
				a.Days = append(a.Days, s)
			}
		}
	}
	return a, ""
}

func defaultSuccess(id action.ID, step macro.Step) string {
	return fmt.Sprintf("%s executed (%s)", step.Title, id)
}
