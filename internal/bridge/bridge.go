// Package bridge talks to the native device-control surface. A Client exposes
// typed calls and delegates the wire to a Transport (adb, serial or MQTT).
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrUnavailable is returned when no transport is attached or the device does
// not answer its availability probe.
var ErrUnavailable = errors.New("bridge: not available")

// Transport carries a single method call to the device and returns the raw
// JSON reply.
type Transport interface {
	Available(ctx context.Context) bool
	Call(ctx context.Context, method string, args map[string]any) ([]byte, error)
}

// Response is the reply of every bridge method.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Granted bool           `json:"granted,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// PermissionDenied reports whether the device refused the call for lack of a
// permission.
func (r Response) PermissionDenied() bool {
	e := strings.ToLower(r.Error)
	return strings.Contains(e, "permission") || strings.Contains(e, "securityexception")
}

// ParseResponse decodes a reply. Malformed replies become a failed Response
// rather than an error so callers see a uniform result.
func ParseResponse(raw []byte) Response {
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{Error: fmt.Sprintf("invalid bridge response: %v", err)}
	}
	return r
}

func okResponse(format string, args ...any) []byte {
	b, _ := json.Marshal(Response{Success: true, Message: fmt.Sprintf(format, args...)})
	return b
}

func errResponse(format string, args ...any) []byte {
	b, _ := json.Marshal(Response{Error: fmt.Sprintf(format, args...)})
	return b
}

// Alarm describes a device alarm.
type Alarm struct {
	Hour   int
	Minute int
	Label  string
	Days   []string
}

// Method names on the wire.
const (
	MethodSetVolume         = "setVolume"
	MethodSetBrightness     = "setBrightness"
	MethodToggleWifi        = "toggleWifi"
	MethodToggleBluetooth   = "toggleBluetooth"
	MethodToggleFlashlight  = "toggleFlashlight"
	MethodToggleLocation    = "toggleLocation"
	MethodSendNotification  = "sendNotification"
	MethodSetDoNotDisturb   = "setDoNotDisturb"
	MethodSetRingerMode     = "setRingerMode"
	MethodLaunchApp         = "launchApp"
	MethodCloseApp          = "closeApp"
	MethodSendSMS           = "sendSMS"
	MethodMakeCall          = "makeCall"
	MethodControlMedia      = "controlMedia"
	MethodSetAlarm          = "setAlarm"
	MethodSetWallpaper      = "setWallpaper"
	MethodCheckPermission   = "checkPermission"
	MethodRequestPermission = "requestPermission"
)

// Client issues typed bridge calls over a Transport.
type Client struct {
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger
}

// NewClient creates a client. A nil transport yields a client that is never
// available. timeout bounds each call; zero means no bound beyond ctx.
func NewClient(t Transport, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{transport: t, timeout: timeout, logger: logger.With("component", "bridge")}
}

type confirmedKey struct{}

// WithConfirmed marks ctx as carrying an availability check that already
// passed. Clients trust it instead of probing the transport again, so one
// dispatch costs one probe.
func WithConfirmed(ctx context.Context) context.Context {
	return context.WithValue(ctx, confirmedKey{}, true)
}

func confirmed(ctx context.Context) bool {
	v, _ := ctx.Value(confirmedKey{}).(bool)
	return v
}

// Available reports whether the device answers.
func (c *Client) Available(ctx context.Context) bool {
	if c == nil || c.transport == nil {
		return false
	}
	return confirmed(ctx) || c.transport.Available(ctx)
}

func (c *Client) call(ctx context.Context, method string, args map[string]any) (Response, error) {
	if !c.Available(ctx) {
		return Response{}, ErrUnavailable
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	c.logger.Debug("bridge call", "method", method, "args", args)
	raw, err := c.transport.Call(ctx, method, args)
	if err != nil {
		return Response{}, fmt.Errorf("%s: %w", method, err)
	}
	resp := ParseResponse(raw)
	if !resp.Success {
		c.logger.Debug("bridge call failed", "method", method, "error", resp.Error)
	}
	return resp, nil
}

func (c *Client) SetVolume(ctx context.Context, stream string, level int) (Response, error) {
	return c.call(ctx, MethodSetVolume, map[string]any{"streamType": stream, "level": level})
}

func (c *Client) SetBrightness(ctx context.Context, level int) (Response, error) {
	return c.call(ctx, MethodSetBrightness, map[string]any{"level": level})
}

func (c *Client) ToggleWifi(ctx context.Context, enabled bool) (Response, error) {
	return c.call(ctx, MethodToggleWifi, map[string]any{"enabled": enabled})
}

func (c *Client) ToggleBluetooth(ctx context.Context, enabled bool) (Response, error) {
	return c.call(ctx, MethodToggleBluetooth, map[string]any{"enabled": enabled})
}

func (c *Client) ToggleFlashlight(ctx context.Context, enabled bool) (Response, error) {
	return c.call(ctx, MethodToggleFlashlight, map[string]any{"enabled": enabled})
}

func (c *Client) ToggleLocation(ctx context.Context, enabled bool) (Response, error) {
	return c.call(ctx, MethodToggleLocation, map[string]any{"enabled": enabled})
}

func (c *Client) SendNotification(ctx context.Context, title, message, priority string) (Response, error) {
	return c.call(ctx, MethodSendNotification, map[string]any{"title": title, "message": message, "priority": priority})
}

func (c *Client) SetDoNotDisturb(ctx context.Context, mode string) (Response, error) {
	return c.call(ctx, MethodSetDoNotDisturb, map[string]any{"mode": mode})
}

func (c *Client) SetRingerMode(ctx context.Context, mode string) (Response, error) {
	return c.call(ctx, MethodSetRingerMode, map[string]any{"mode": mode})
}

func (c *Client) LaunchApp(ctx context.Context, packageName, data string) (Response, error) {
	args := map[string]any{"packageName": packageName}
	if data != "" {
		args["data"] = data
	}
	return c.call(ctx, MethodLaunchApp, args)
}

func (c *Client) CloseApp(ctx context.Context, packageName string) (Response, error) {
	return c.call(ctx, MethodCloseApp, map[string]any{"packageName": packageName})
}

func (c *Client) SendSMS(ctx context.Context, phoneNumber, message string) (Response, error) {
	return c.call(ctx, MethodSendSMS, map[string]any{"phoneNumber": phoneNumber, "message": message})
}

func (c *Client) MakeCall(ctx context.Context, phoneNumber string) (Response, error) {
	return c.call(ctx, MethodMakeCall, map[string]any{"phoneNumber": phoneNumber})
}

func (c *Client) ControlMedia(ctx context.Context, command string) (Response, error) {
	return c.call(ctx, MethodControlMedia, map[string]any{"action": command})
}

func (c *Client) SetAlarm(ctx context.Context, a Alarm) (Response, error) {
	args := map[string]any{"hour": a.Hour, "minute": a.Minute, "label": a.Label}
	if len(a.Days) > 0 {
		args["days"] = strings.Join(a.Days, ",")
	}
	return c.call(ctx, MethodSetAlarm, args)
}

func (c *Client) SetWallpaper(ctx context.Context, imageURL string) (Response, error) {
	return c.call(ctx, MethodSetWallpaper, map[string]any{"imageUrl": imageURL})
}

// CheckPermission asks the device whether an Android permission is held.
func (c *Client) CheckPermission(ctx context.Context, permission string) (bool, error) {
	resp, err := c.call(ctx, MethodCheckPermission, map[string]any{"permission": permission})
	if err != nil {
		return false, err
	}
	return resp.Success && resp.Granted, nil
}

// RequestPermission asks the device to grant an Android permission.
func (c *Client) RequestPermission(ctx context.Context, permission string) (bool, error) {
	resp, err := c.call(ctx, MethodRequestPermission, map[string]any{"permission": permission})
	if err != nil {
		return false, err
	}
	return resp.Success && resp.Granted, nil
}
