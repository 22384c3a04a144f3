package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Android stream ids used by "cmd media_session volume".
var adbStreams = map[string]int{
	"call":         0,
	"system":       1,
	"ring":         2,
	"media":        3,
	"alarm":        4,
	"notification": 5,
}

var adbMediaKeys = map[string]string{
	"play":       "KEYCODE_MEDIA_PLAY",
	"pause":      "KEYCODE_MEDIA_PAUSE",
	"toggle":     "KEYCODE_MEDIA_PLAY_PAUSE",
	"play_pause": "KEYCODE_MEDIA_PLAY_PAUSE",
	"next":       "KEYCODE_MEDIA_NEXT",
	"previous":   "KEYCODE_MEDIA_PREVIOUS",
	"prev":       "KEYCODE_MEDIA_PREVIOUS",
	"stop":       "KEYCODE_MEDIA_STOP",
}

// ADBTransport drives a device with adb shell commands. Each bridge method is
// translated into the closest stock Android shell command.
type ADBTransport struct {
	path   string
	serial string
	logger *slog.Logger

	// run executes adb with the given arguments; replaced in tests.
	run func(ctx context.Context, args ...string) ([]byte, error)
}

// NewADBTransport creates a transport using the adb binary at path ("adb" if
// empty). serial selects a device when several are attached.
func NewADBTransport(path, serial string, logger *slog.Logger) *ADBTransport {
	if path == "" {
		path = "adb"
	}
	t := &ADBTransport{path: path, serial: serial, logger: logger.With("component", "bridge.adb")}
	t.run = func(ctx context.Context, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, t.path, args...).CombinedOutput()
	}
	return t
}

func (t *ADBTransport) adbArgs(args ...string) []string {
	if t.serial == "" {
		return args
	}
	return append([]string{"-s", t.serial}, args...)
}

// Available reports whether adb sees the device in the "device" state.
func (t *ADBTransport) Available(ctx context.Context) bool {
	out, err := t.run(ctx, t.adbArgs("get-state")...)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "device"
}

func (t *ADBTransport) shell(ctx context.Context, cmd ...string) (string, error) {
	quoted := make([]string, len(cmd))
	for i, c := range cmd {
		quoted[i] = shellQuote(c)
	}
	out, err := t.run(ctx, t.adbArgs("shell", strings.Join(quoted, " "))...)
	text := strings.TrimSpace(string(out))
	if err != nil {
		return text, fmt.Errorf("adb shell %s: %w", cmd[0], err)
	}
	return text, nil
}

// Call implements Transport.
func (t *ADBTransport) Call(ctx context.Context, method string, args map[string]any) ([]byte, error) {
	cmd, msg, unsupported := t.command(method, args)
	if unsupported != "" {
		return errResponse("%s", unsupported), nil
	}
	if cmd == nil {
		return okResponse("%s", msg), nil
	}
	t.logger.Debug("adb shell", "method", method, "cmd", cmd)
	out, err := t.shell(ctx, cmd...)
	if err != nil {
		return nil, err
	}
	if failure := shellFailure(out); failure != "" {
		return errResponse("%s", failure), nil
	}
	return okResponse("%s", msg), nil
}

// command maps a bridge method onto a shell command and its success message.
// A nil command with an empty unsupported reason means nothing needs to run.
func (t *ADBTransport) command(method string, args map[string]any) (cmd []string, msg, unsupported string) {
	switch method {
	case MethodSetVolume:
		stream := argString(args, "streamType")
		id, ok := adbStreams[stream]
		if !ok {
			return nil, "", fmt.Sprintf("unknown stream type %q", stream)
		}
		level := argInt(args, "level")
		index := level * 15 / 100
		return []string{"cmd", "media_session", "volume", "--stream", strconv.Itoa(id), "--set", strconv.Itoa(index)},
			fmt.Sprintf("Volume set to %d%%", level), ""

	case MethodSetBrightness:
		level := argInt(args, "level")
		return []string{"settings", "put", "system", "screen_brightness", strconv.Itoa(level * 255 / 100)},
			fmt.Sprintf("Brightness set to %d%%", level), ""

	case MethodToggleWifi:
		on := argBool(args, "enabled")
		return []string{"svc", "wifi", enableWord(on)}, "WiFi " + onOff(on), ""

	case MethodToggleBluetooth:
		on := argBool(args, "enabled")
		return []string{"svc", "bluetooth", enableWord(on)}, "Bluetooth " + onOff(on), ""

	case MethodToggleLocation:
		on := argBool(args, "enabled")
		mode := "0"
		if on {
			mode = "3"
		}
		return []string{"settings", "put", "secure", "location_mode", mode}, "Location " + onOff(on), ""

	case MethodSendNotification:
		title := argString(args, "title")
		return []string{"cmd", "notification", "post", "-S", "bigtext", "-t", title, "macro_engine", argString(args, "message")},
			"Notification sent: " + title, ""

	case MethodSetDoNotDisturb:
		mode := argString(args, "mode")
		return []string{"cmd", "notification", "set_dnd", dndMode(mode)}, "Do Not Disturb set to " + mode, ""

	case MethodSetRingerMode:
		mode := strings.ToUpper(argString(args, "mode"))
		switch mode {
		case "NORMAL", "VIBRATE", "SILENT":
		default:
			return nil, "", fmt.Sprintf("unknown ringer mode %q", argString(args, "mode"))
		}
		return []string{"cmd", "audio", "set-ringer-mode", mode}, "Ringer mode set to " + strings.ToLower(mode), ""

	case MethodLaunchApp:
		pkg := argString(args, "packageName")
		if data := argString(args, "data"); data != "" {
			return []string{"am", "start", "-a", "android.intent.action.VIEW", "-d", data, "-p", pkg}, "Launched " + pkg, ""
		}
		return []string{"monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1"}, "Launched " + pkg, ""

	case MethodCloseApp:
		pkg := argString(args, "packageName")
		return []string{"am", "force-stop", pkg}, "Closed " + pkg, ""

	case MethodSendSMS:
		phone := argString(args, "phoneNumber")
		return []string{"am", "start", "-a", "android.intent.action.SENDTO", "-d", "sms:" + phone, "--es", "sms_body", argString(args, "message")},
			"SMS composed for " + phone, ""

	case MethodMakeCall:
		phone := argString(args, "phoneNumber")
		return []string{"am", "start", "-a", "android.intent.action.CALL", "-d", "tel:" + phone}, "Calling " + phone, ""

	case MethodControlMedia:
		key, ok := adbMediaKeys[strings.ToLower(argString(args, "action"))]
		if !ok {
			return nil, "", fmt.Sprintf("unknown media action %q", argString(args, "action"))
		}
		return []string{"input", "keyevent", key}, "Media " + argString(args, "action"), ""

	case MethodSetAlarm:
		hour, minute := argInt(args, "hour"), argInt(args, "minute")
		return []string{"am", "start", "-a", "android.intent.action.SET_ALARM",
				"--ei", "android.intent.extra.alarm.HOUR", strconv.Itoa(hour),
				"--ei", "android.intent.extra.alarm.MINUTES", strconv.Itoa(minute),
				"--es", "android.intent.extra.alarm.MESSAGE", argString(args, "label"),
				"--ez", "android.intent.extra.alarm.SKIP_UI", "true"},
			fmt.Sprintf("Alarm set for %02d:%02d", hour, minute), ""

	case MethodCheckPermission, MethodRequestPermission:
		// adb shell already runs with the shell user's grants.
		return nil, "granted to adb shell", ""

	case MethodToggleFlashlight, MethodSetWallpaper:
		return nil, "", method + " is not available over adb"
	}
	return nil, "", "unknown bridge method " + method
}

// shellFailure extracts an error from command output; adb shell often exits 0
// even when the command failed.
func shellFailure(out string) string {
	lines := strings.Split(out, "\n")
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.Contains(l, "SecurityException") || strings.Contains(l, "Permission Denial") {
			return "permission denied: " + l
		}
	}
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "Error") || strings.HasPrefix(l, "Exception") || strings.Contains(l, "Unknown command") {
			return l
		}
	}
	return ""
}

func dndMode(mode string) string {
	switch strings.ToLower(mode) {
	case "priority":
		return "priority"
	case "alarms":
		return "alarms"
	case "off", "all", "normal", "":
		return "all"
	}
	return "none"
}

func enableWord(on bool) string {
	if on {
		return "enable"
	}
	return "disable"
}

func onOff(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

// shellQuote quotes s for the device's sh.
func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>()*?![]{}#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func argInt(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func argBool(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}
