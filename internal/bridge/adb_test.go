package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type adbRecorder struct {
	out   map[string]string // keyed by the first adb argument after -s
	err   error
	calls [][]string
}

func newFakeADB(serial string, rec *adbRecorder) *ADBTransport {
	t := NewADBTransport("", serial, testLogger())
	t.run = func(_ context.Context, args ...string) ([]byte, error) {
		rec.calls = append(rec.calls, args)
		key := args[0]
		if key == "-s" {
			key = args[2]
		}
		return []byte(rec.out[key]), rec.err
	}
	return t
}

func TestADBAvailable(t *testing.T) {
	rec := &adbRecorder{out: map[string]string{"get-state": "device\n"}}
	tr := newFakeADB("", rec)
	if !tr.Available(context.Background()) {
		t.Error("available = false, want true")
	}

	rec.out["get-state"] = "unauthorized\n"
	if tr.Available(context.Background()) {
		t.Error("available = true for unauthorized device")
	}

	rec.err = errors.New("no devices")
	if tr.Available(context.Background()) {
		t.Error("available = true on adb error")
	}
}

func TestADBSerialPrefix(t *testing.T) {
	rec := &adbRecorder{out: map[string]string{"get-state": "device"}}
	tr := newFakeADB("emulator-5554", rec)
	tr.Available(context.Background())
	got := strings.Join(rec.calls[0], " ")
	if got != "-s emulator-5554 get-state" {
		t.Errorf("args = %q", got)
	}
}

func TestADBSetVolume(t *testing.T) {
	rec := &adbRecorder{out: map[string]string{}}
	tr := newFakeADB("", rec)

	raw, err := tr.Call(context.Background(), MethodSetVolume, map[string]any{"streamType": "media", "level": 50})
	if err != nil {
		t.Fatal(err)
	}
	resp := ParseResponse(raw)
	if !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(rec.calls))
	}
	want := []string{"shell", "cmd media_session volume --stream 3 --set 7"}
	if strings.Join(rec.calls[0], "|") != strings.Join(want, "|") {
		t.Errorf("args = %q, want %q", rec.calls[0], want)
	}
}

func TestADBQuotesArguments(t *testing.T) {
	rec := &adbRecorder{out: map[string]string{}}
	tr := newFakeADB("", rec)

	_, err := tr.Call(context.Background(), MethodSendNotification, map[string]any{
		"title": "Good night", "message": "It's late",
	})
	if err != nil {
		t.Fatal(err)
	}
	cmd := rec.calls[0][1]
	if !strings.Contains(cmd, "'Good night'") {
		t.Errorf("title not quoted: %s", cmd)
	}
	if !strings.Contains(cmd, `'It'\''s late'`) {
		t.Errorf("message not quoted: %s", cmd)
	}
}

func TestADBSecurityExceptionIsPermissionFailure(t *testing.T) {
	rec := &adbRecorder{out: map[string]string{
		"shell": "Exception occurred while executing:\njava.lang.SecurityException: WRITE_SECURE_SETTINGS",
	}}
	tr := newFakeADB("", rec)

	raw, err := tr.Call(context.Background(), MethodToggleLocation, map[string]any{"enabled": true})
	if err != nil {
		t.Fatal(err)
	}
	resp := ParseResponse(raw)
	if resp.Success {
		t.Fatal("success = true, want false")
	}
	if !resp.PermissionDenied() {
		t.Errorf("error = %q, want permission failure", resp.Error)
	}
}

func TestADBUnsupportedMethods(t *testing.T) {
	rec := &adbRecorder{out: map[string]string{}}
	tr := newFakeADB("", rec)

	for _, m := range []string{MethodToggleFlashlight, MethodSetWallpaper, "teleport"} {
		raw, err := tr.Call(context.Background(), m, nil)
		if err != nil {
			t.Fatalf("%s: %v", m, err)
		}
		if ParseResponse(raw).Success {
			t.Errorf("%s: success = true, want false", m)
		}
	}
	if len(rec.calls) != 0 {
		t.Errorf("adb invoked %d times for unsupported methods", len(rec.calls))
	}
}

func TestADBRingerModeValidated(t *testing.T) {
	rec := &adbRecorder{out: map[string]string{}}
	tr := newFakeADB("", rec)

	raw, _ := tr.Call(context.Background(), MethodSetRingerMode, map[string]any{"mode": "loud"})
	if ParseResponse(raw).Success {
		t.Error("unknown ringer mode accepted")
	}
	raw, _ = tr.Call(context.Background(), MethodSetRingerMode, map[string]any{"mode": "vibrate"})
	if !ParseResponse(raw).Success {
		t.Error("vibrate rejected")
	}
	if got := rec.calls[0][1]; got != "cmd audio set-ringer-mode VIBRATE" {
		t.Errorf("cmd = %q", got)
	}
}

func TestADBShellError(t *testing.T) {
	rec := &adbRecorder{out: map[string]string{}, err: errors.New("exit status 1")}
	tr := newFakeADB("", rec)
	if _, err := tr.Call(context.Background(), MethodCloseApp, map[string]any{"packageName": "com.example"}); err == nil {
		t.Error("expected error")
	}
}

func TestDNDMode(t *testing.T) {
	tests := map[string]string{
		"silent":   "none",
		"on":       "none",
		"priority": "priority",
		"alarms":   "alarms",
		"off":      "all",
	}
	for in, want := range tests {
		if got := dndMode(in); got != want {
			t.Errorf("dndMode(%q) = %q, want %q", in, got, want)
		}
	}
}
