package action

import "sort"

var requiredPermissions = map[ID][]string{
	SetVolume:       {"MODIFY_AUDIO_SETTINGS"},
	SetBrightness:   {"WRITE_SETTINGS"},
	ToggleWifi:      {"CHANGE_WIFI_STATE", "ACCESS_WIFI_STATE"},
	ToggleBluetooth: {"BLUETOOTH", "BLUETOOTH_ADMIN"},
	SetDoNotDisturb: {"ACCESS_NOTIFICATION_POLICY"},
	SendNotify:      {},
	LaunchApp:       {"QUERY_ALL_PACKAGES"},
	CloseApp:        {"PACKAGE_USAGE_STATS"},
	SetRingerMode:   {"MODIFY_AUDIO_SETTINGS"},
	ToggleLocation:  {"ACCESS_FINE_LOCATION"},
	SetAlarm:        {"SET_ALARM"},
	SendSMS:         {"SEND_SMS"},
	MakeCall:        {"CALL_PHONE"},
	ControlMedia:    {"MODIFY_AUDIO_SETTINGS"},
	ToggleFlash:     {"CAMERA", "FLASHLIGHT"},
	SetWallpaper:    {},
}

// Permissions returns the Android permissions id needs on the native surface.
func Permissions(id ID) []string {
	return append([]string(nil), requiredPermissions[id]...)
}

// RequiredPermissions returns the sorted union of permissions for ids.
func RequiredPermissions(ids []ID) []string {
	set := make(map[string]struct{})
	for _, id := range ids {
		for _, p := range requiredPermissions[id] {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
