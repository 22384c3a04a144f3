package bridge

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeCall struct {
	method string
	args   map[string]any
}

type fakeTransport struct {
	available bool
	reply     []byte
	err       error
	calls     []fakeCall
	probes    int
}

func (f *fakeTransport) Available(context.Context) bool {
	f.probes++
	return f.available
}

func (f *fakeTransport) Call(_ context.Context, method string, args map[string]any) ([]byte, error) {
	f.calls = append(f.calls, fakeCall{method, args})
	return f.reply, f.err
}

func TestClientNilTransportUnavailable(t *testing.T) {
	c := NewClient(nil, 0, testLogger())
	if c.Available(context.Background()) {
		t.Fatal("available = true, want false")
	}
	_, err := c.SetVolume(context.Background(), "media", 50)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestClientTrustsConfirmedContext(t *testing.T) {
	ft := &fakeTransport{available: true, reply: okResponse("ok")}
	c := NewClient(ft, 0, testLogger())

	ctx := WithConfirmed(context.Background())
	if !c.Available(ctx) {
		t.Fatal("available = false with confirmed context")
	}
	if _, err := c.SetVolume(ctx, "media", 50); err != nil {
		t.Fatal(err)
	}
	if ft.probes != 0 {
		t.Errorf("transport probed %d times, want 0", ft.probes)
	}

	if _, err := c.SetVolume(context.Background(), "media", 50); err != nil {
		t.Fatal(err)
	}
	if ft.probes != 1 {
		t.Errorf("transport probed %d times, want 1", ft.probes)
	}

	if NewClient(nil, 0, testLogger()).Available(ctx) {
		t.Error("nil transport available with confirmed context")
	}
}

func TestClientUnavailableSkipsCall(t *testing.T) {
	ft := &fakeTransport{available: false}
	c := NewClient(ft, 0, testLogger())
	if _, err := c.ToggleWifi(context.Background(), true); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if len(ft.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(ft.calls))
	}
}

func TestClientSendsArgs(t *testing.T) {
	ft := &fakeTransport{available: true, reply: []byte(`{"success":true,"message":"Volume set to 80%"}`)}
	c := NewClient(ft, 0, testLogger())

	resp, err := c.SetVolume(context.Background(), "alarm", 80)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Message != "Volume set to 80%" {
		t.Errorf("resp = %+v", resp)
	}
	if len(ft.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(ft.calls))
	}
	call := ft.calls[0]
	if call.method != MethodSetVolume {
		t.Errorf("method = %q", call.method)
	}
	if call.args["streamType"] != "alarm" || call.args["level"] != 80 {
		t.Errorf("args = %v", call.args)
	}
}

func TestClientAlarmDays(t *testing.T) {
	ft := &fakeTransport{available: true, reply: []byte(`{"success":true}`)}
	c := NewClient(ft, 0, testLogger())
	if _, err := c.SetAlarm(context.Background(), Alarm{Hour: 7, Minute: 30, Label: "Wake", Days: []string{"mon", "tue"}}); err != nil {
		t.Fatal(err)
	}
	if got := ft.calls[0].args["days"]; got != "mon,tue" {
		t.Errorf("days = %v, want mon,tue", got)
	}
}

func TestClientInvalidReply(t *testing.T) {
	ft := &fakeTransport{available: true, reply: []byte(`not json`)}
	c := NewClient(ft, 0, testLogger())
	resp, err := c.SetBrightness(context.Background(), 40)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Success {
		t.Error("success = true, want false")
	}
	if !strings.Contains(resp.Error, "invalid bridge response") {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestClientTransportError(t *testing.T) {
	boom := errors.New("boom")
	ft := &fakeTransport{available: true, err: boom}
	c := NewClient(ft, 0, testLogger())
	_, err := c.MakeCall(context.Background(), "123")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
	if !strings.Contains(err.Error(), MethodMakeCall) {
		t.Errorf("err = %q, want method name", err)
	}
}

func TestClientCheckPermission(t *testing.T) {
	ft := &fakeTransport{available: true, reply: []byte(`{"success":true,"granted":true}`)}
	c := NewClient(ft, 0, testLogger())
	granted, err := c.CheckPermission(context.Background(), "android.permission.CAMERA")
	if err != nil {
		t.Fatal(err)
	}
	if !granted {
		t.Error("granted = false, want true")
	}
}

func TestResponsePermissionDenied(t *testing.T) {
	tests := []struct {
		err  string
		want bool
	}{
		{"Permission denied: WRITE_SETTINGS", true},
		{"java.lang.SecurityException: not allowed", true},
		{"device busy", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := (Response{Error: tt.err}).PermissionDenied(); got != tt.want {
			t.Errorf("PermissionDenied(%q) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
