// Package action defines the fixed action vocabulary and the rules that map
// free-form macro steps onto it.
package action

// ID is a canonical action identifier.
type ID string

// Native vocabulary.
const (
	SetVolume       ID = "set_volume"
	SetBrightness   ID = "set_brightness"
	ToggleWifi      ID = "toggle_wifi"
	ToggleBluetooth ID = "toggle_bluetooth"
	ToggleFlash     ID = "toggle_flashlight"
	SendNotify      ID = "send_notification"
	SetDoNotDisturb ID = "set_do_not_disturb"
	SetRingerMode   ID = "set_ringer_mode"
	LaunchApp       ID = "launch_app"
	CloseApp        ID = "close_app"
	SendSMS         ID = "send_sms"
	MakeCall        ID = "make_call"
	ControlMedia    ID = "control_media"
	SetAlarm        ID = "set_alarm"
	SetWallpaper    ID = "set_wallpaper"
	ToggleLocation  ID = "toggle_location"
)

// Vibrate is only offered by the web surface.
const Vibrate ID = "vibrate"

// Unknown marks a step that matched no rule and declared no known type.
const Unknown ID = "unknown"

// NotExecuted marks trigger and condition steps; it never reaches a backend.
const NotExecuted ID = "not_executed"

var vocabulary = map[ID]struct{}{
	SetVolume: {}, SetBrightness: {}, ToggleWifi: {}, ToggleBluetooth: {},
	ToggleFlash: {}, SendNotify: {}, SetDoNotDisturb: {}, SetRingerMode: {},
	LaunchApp: {}, CloseApp: {}, SendSMS: {}, MakeCall: {},
	ControlMedia: {}, SetAlarm: {}, SetWallpaper: {}, ToggleLocation: {},
	Vibrate: {},
}

// Known reports whether id belongs to the vocabulary.
func Known(id ID) bool {
	_, ok := vocabulary[id]
	return ok
}

// All returns the vocabulary in a stable order.
func All() []ID {
	return []ID{
		SetVolume, SetBrightness, ToggleWifi, ToggleBluetooth, ToggleFlash,
		SendNotify, SetDoNotDisturb, SetRingerMode, LaunchApp, CloseApp,
		SendSMS, MakeCall, ControlMedia, SetAlarm, SetWallpaper, ToggleLocation,
		Vibrate,
	}
}

// WebCapable reports whether the web surface can perform id. These are the
// only actions Hybrid mode retries on the web surface after a native failure.
func WebCapable(id ID) bool {
	switch id {
	case SendNotify, Vibrate, LaunchApp:
		return true
	}
	return false
}

// NativeCapable reports whether the device bridge has a method for id.
func NativeCapable(id ID) bool {
	return Known(id) && id != Vibrate
}

// Normalized is a step mapped onto the vocabulary.
type Normalized struct {
	ID         ID             `json:"action_id"`
	Parameters map[string]any `json:"parameters,omitempty"`
	// Declared holds the step's own declared action type when it did not
	// resolve to a vocabulary entry.
	Declared string `json:"declared,omitempty"`
}

// Executable reports whether the action should be dispatched.
func (n Normalized) Executable() bool {
	return n.ID != NotExecuted
}
