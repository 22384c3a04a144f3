package action

import (
	"reflect"
	"testing"

	"macro-go-engine/internal/macro"
)

func actionStep(title string, params map[string]any) macro.Step {
	return macro.Step{ID: "s", Kind: macro.KindAction, Title: title, Parameters: params}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		title string
		want  ID
	}{
		{"Set Volume", SetVolume},
		{"Media Volume to 30%", SetVolume},
		{"Lower Brightness", SetBrightness},
		{"Toggle WiFi Off", ToggleWifi},
		{"Enable Bluetooth", ToggleBluetooth},
		{"Enable Do Not Disturb", SetDoNotDisturb},
		{"DND on", SetDoNotDisturb},
		{"Turn on Torch", ToggleFlash},
		{"Launch Spotify", LaunchApp},
		{"Open Calendar", LaunchApp},
		{"Send SMS to Mom", SendSMS},
		{"Send text message", SendSMS},
		{"Call Home", MakeCall},
		{"Vibrate twice", Vibrate},
		{"Vibration pattern", Vibrate},
		{"Set Ringer Mode", SetRingerMode},
		{"Go Silent", SetRingerMode},
		{"Send Notification", SendNotify},
		{"Dance", Unknown},
		// Priority: volume beats notification.
		{"Notification Volume", SetVolume},
		// Priority: dnd beats notification, and the notification rule is vetoed by "disturb".
		{"Notification do not disturb", SetDoNotDisturb},
		// Priority: launch beats call.
		{"Open Call Log", LaunchApp},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := Classify(tt.title); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestNormalizeSkipsTriggerAndCondition(t *testing.T) {
	for _, k := range []macro.Kind{macro.KindTrigger, macro.KindCondition} {
		n := Normalize(macro.Step{ID: "x", Kind: k, Title: "Set Volume"})
		if n.ID != NotExecuted || n.Executable() {
			t.Errorf("kind %s: got %q, want not_executed", k, n.ID)
		}
	}
}

func TestNormalizeToggleWifiOff(t *testing.T) {
	for i := 0; i < 10; i++ {
		n := Normalize(actionStep("Toggle WiFi Off", nil))
		if n.ID != ToggleWifi {
			t.Fatalf("got %q, want toggle_wifi", n.ID)
		}
	}
}

func TestNormalizeCarriesParameters(t *testing.T) {
	params := map[string]any{"level": 80}
	n := Normalize(actionStep("Set Volume", params))
	if !reflect.DeepEqual(n.Parameters, params) {
		t.Errorf("parameters = %v, want %v", n.Parameters, params)
	}
}

func TestNormalizeDeclaredType(t *testing.T) {
	n := Normalize(actionStep("Morning wallpaper", map[string]any{"action": "set_wallpaper"}))
	if n.ID != SetWallpaper {
		t.Errorf("got %q, want set_wallpaper", n.ID)
	}

	n = Normalize(actionStep("Brew coffee", map[string]any{"action": "brew_coffee"}))
	if n.ID != Unknown || n.Declared != "brew_coffee" {
		t.Errorf("got %q/%q, want unknown/brew_coffee", n.ID, n.Declared)
	}

	n = Normalize(actionStep("Brew coffee", nil))
	if n.ID != Unknown || n.Declared != "action" {
		t.Errorf("got %q/%q, want unknown/action", n.ID, n.Declared)
	}
}

func TestRulesOnlyProduceKnownIDs(t *testing.T) {
	for _, r := range Rules {
		if !Known(r.ID) {
			t.Errorf("rule id %q not in vocabulary", r.ID)
		}
	}
	if len(All()) != 17 {
		t.Errorf("vocabulary size = %d, want 17", len(All()))
	}
}

func TestWebCapable(t *testing.T) {
	for _, id := range All() {
		want := id == SendNotify || id == Vibrate || id == LaunchApp
		if WebCapable(id) != want {
			t.Errorf("WebCapable(%q) = %v, want %v", id, !want, want)
		}
	}
}

func TestNativeCapable(t *testing.T) {
	for _, id := range All() {
		if NativeCapable(id) != (id != Vibrate) {
			t.Errorf("NativeCapable(%q) = %v", id, NativeCapable(id))
		}
	}
	if NativeCapable(Unknown) || NativeCapable(NotExecuted) {
		t.Error("non-vocabulary ids reported native-capable")
	}
}

func TestKnownUnsupported(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"Set Audio Mode", true},
		{"set audio mode", true},
		{"Bedtime Trigger at 22:00", true},
		{"Ring Volume", true},
		{"Send Notification", false},
		{"Toggle WiFi", false},
	}
	for _, tt := range tests {
		if got := KnownUnsupported(tt.title); got != tt.want {
			t.Errorf("KnownUnsupported(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}
}

func TestUnsupportedSteps(t *testing.T) {
	steps := []macro.Step{
		{ID: "1", Kind: macro.KindTrigger, Title: "Time Trigger"},
		{ID: "2", Kind: macro.KindCondition, Title: "Silent Mode check"},
		{ID: "3", Kind: macro.KindAction, Title: "Set Volume"},
		{ID: "4", Kind: macro.KindAction, Title: "Toggle WiFi"},
		// Trigger phrases only apply to triggers on this check.
		{ID: "5", Kind: macro.KindAction, Title: "Alarm Trigger"},
	}
	got := UnsupportedSteps(steps)
	want := []string{"Time Trigger", "Set Volume"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UnsupportedSteps = %v, want %v", got, want)
	}
}

func TestRequiredPermissions(t *testing.T) {
	got := RequiredPermissions([]ID{SetVolume, ControlMedia, ToggleWifi, SendNotify})
	want := []string{"ACCESS_WIFI_STATE", "CHANGE_WIFI_STATE", "MODIFY_AUDIO_SETTINGS"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RequiredPermissions = %v, want %v", got, want)
	}
	if p := Permissions(Vibrate); len(p) != 0 {
		t.Errorf("vibrate permissions = %v, want none", p)
	}
}
