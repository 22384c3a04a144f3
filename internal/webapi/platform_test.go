package webapi

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"strings"
	"testing"

	"macro-go-engine/internal/backend"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeHub struct {
	clients int
	msgs    []interface{}
}

func (h *fakeHub) Broadcast(msg interface{}) { h.msgs = append(h.msgs, msg) }
func (h *fakeHub) ClientCount() int          { return h.clients }

var _ backend.Platform = (*HubPlatform)(nil)

func TestHubPlatformFeatures(t *testing.T) {
	p := NewHubPlatform(&fakeHub{}, Config{Features: []string{backend.FeatureVibration}}, testLogger())
	if !p.IsSupported(backend.FeatureVibration) {
		t.Error("vibration not supported")
	}
	if p.IsSupported(backend.FeatureNotifications) {
		t.Error("notifications supported but not configured")
	}

	all := NewHubPlatform(&fakeHub{}, DefaultConfig(), testLogger()).Features()
	want := []string{backend.FeatureNotifications, backend.FeatureOpenURL, backend.FeatureVibration}
	sort.Strings(want)
	if strings.Join(all, ",") != strings.Join(want, ",") {
		t.Errorf("Features() = %v, want %v", all, want)
	}
}

func TestHubPlatformPermissionPrompt(t *testing.T) {
	p := NewHubPlatform(&fakeHub{}, Config{AutoGrant: false}, testLogger())
	if p.NotificationPermission() != backend.PermissionDefault {
		t.Fatalf("initial = %q, want default", p.NotificationPermission())
	}
	got, err := p.RequestNotificationPermission(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != backend.PermissionDenied {
		t.Errorf("permission = %q, want denied", got)
	}

	p = NewHubPlatform(&fakeHub{}, DefaultConfig(), testLogger())
	got, _ = p.RequestNotificationPermission(context.Background())
	if got != backend.PermissionGranted {
		t.Errorf("permission = %q, want granted", got)
	}
}

func TestHubPlatformPresetPermission(t *testing.T) {
	p := NewHubPlatform(&fakeHub{}, Config{NotificationPermission: "denied", AutoGrant: true}, testLogger())
	got, _ := p.RequestNotificationPermission(context.Background())
	if got != backend.PermissionDenied {
		t.Errorf("permission = %q, want denied to stick", got)
	}
}

func TestHubPlatformDelivers(t *testing.T) {
	hub := &fakeHub{clients: 2}
	p := NewHubPlatform(hub, DefaultConfig(), testLogger())

	if err := p.ShowNotification(context.Background(), "Hello", "World"); err != nil {
		t.Fatal(err)
	}
	if err := p.OpenURL(context.Background(), "https://example.com"); err != nil {
		t.Fatal(err)
	}
	if len(hub.msgs) != 2 {
		t.Fatalf("msgs = %d, want 2", len(hub.msgs))
	}
	m := hub.msgs[0].(Message)
	if m.Type != "web_action" || m.Action != "notify" || m.Title != "Hello" {
		t.Errorf("msg = %+v", m)
	}
	if hub.msgs[1].(Message).URL != "https://example.com" {
		t.Errorf("msg = %+v", hub.msgs[1])
	}
}

func TestHubPlatformNoClients(t *testing.T) {
	hub := &fakeHub{}
	p := NewHubPlatform(hub, DefaultConfig(), testLogger())
	if err := p.Vibrate(context.Background(), []int{100}); !errors.Is(err, ErrNoClients) {
		t.Errorf("err = %v, want ErrNoClients", err)
	}
	if len(hub.msgs) != 0 {
		t.Error("message broadcast with no clients")
	}
}
