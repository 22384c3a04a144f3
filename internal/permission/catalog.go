// Package permission tracks which Android permissions the engine may use on
// the native surface.
package permission

import (
	"sort"
	"strings"
)

// Danger is the Android protection level of a permission.
type Danger string

const (
	Normal    Danger = "normal"
	Dangerous Danger = "dangerous"
	Signature Danger = "signature"
)

// Category groups permissions for display.
type Category string

const (
	CategorySystem        Category = "System"
	CategoryPrivacy       Category = "Privacy"
	CategoryNetwork       Category = "Network"
	CategoryDevice        Category = "Device"
	CategoryCommunication Category = "Communication"
)

// Info describes one permission.
type Info struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Danger      Danger   `json:"danger_level"`
	Required    bool     `json:"required"`
}

var catalog = map[string]Info{
	"MODIFY_AUDIO_SETTINGS": {
		DisplayName: "Modify Audio Settings",
		Description: "Change global audio settings such as volume and output speaker.",
		Category:    CategorySystem, Danger: Normal, Required: true,
	},
	"WRITE_SETTINGS": {
		DisplayName: "Modify System Settings",
		Description: "Change system settings, including brightness.",
		Category:    CategorySystem, Danger: Signature, Required: true,
	},
	"CHANGE_WIFI_STATE": {
		DisplayName: "Change WiFi State",
		Description: "Connect to and disconnect from Wi-Fi networks.",
		Category:    CategoryNetwork, Danger: Normal, Required: true,
	},
	"ACCESS_WIFI_STATE": {
		DisplayName: "View WiFi Connections",
		Description: "See whether Wi-Fi is enabled and which network is connected.",
		Category:    CategoryNetwork, Danger: Normal, Required: true,
	},
	"BLUETOOTH": {
		DisplayName: "Pair with Bluetooth Devices",
		Description: "View Bluetooth configuration and connect to paired devices.",
		Category:    CategoryNetwork, Danger: Normal, Required: true,
	},
	"BLUETOOTH_ADMIN": {
		DisplayName: "Access Bluetooth Settings",
		Description: "Configure the local Bluetooth adapter and pair with remote devices.",
		Category:    CategoryNetwork, Danger: Normal, Required: true,
	},
	"ACCESS_NOTIFICATION_POLICY": {
		DisplayName: "Access Do Not Disturb",
		Description: "Read and change the Do Not Disturb configuration.",
		Category:    CategoryPrivacy, Danger: Normal, Required: true,
	},
	"BIND_NOTIFICATION_LISTENER_SERVICE": {
		DisplayName: "Notification Access",
		Description: "Receive notifications posted by any application.",
		Category:    CategoryPrivacy, Danger: Signature,
	},
	"ACCESS_FINE_LOCATION": {
		DisplayName: "Precise Location",
		Description: "Get the exact device location from location services.",
		Category:    CategoryPrivacy, Danger: Dangerous,
	},
	"ACCESS_COARSE_LOCATION": {
		DisplayName: "Approximate Location",
		Description: "Get the approximate device location from network sources.",
		Category:    CategoryPrivacy, Danger: Dangerous,
	},
	"CALL_PHONE": {
		DisplayName: "Make Phone Calls",
		Description: "Call phone numbers without user intervention.",
		Category:    CategoryCommunication, Danger: Dangerous,
	},
	"SEND_SMS": {
		DisplayName: "Send SMS Messages",
		Description: "Send SMS messages. This may result in charges.",
		Category:    CategoryCommunication, Danger: Dangerous,
	},
	"CAMERA": {
		DisplayName: "Take Pictures and Videos",
		Description: "Use the camera, which also drives the flashlight.",
		Category:    CategoryPrivacy, Danger: Dangerous,
	},
	"FLASHLIGHT": {
		DisplayName: "Control Flashlight",
		Description: "Turn the flashlight on and off.",
		Category:    CategoryDevice, Danger: Normal,
	},
	"PACKAGE_USAGE_STATS": {
		DisplayName: "Usage Access",
		Description: "Read usage statistics for installed apps.",
		Category:    CategorySystem, Danger: Signature,
	},
	"QUERY_ALL_PACKAGES": {
		DisplayName: "Query All Packages",
		Description: "See all installed applications.",
		Category:    CategorySystem, Danger: Normal,
	},
	"DEVICE_POWER": {
		DisplayName: "Turn Screen On/Off",
		Description: "Turn the device screen on or off.",
		Category:    CategoryDevice, Danger: Signature,
	},
	"WAKE_LOCK": {
		DisplayName: "Prevent Device from Sleeping",
		Description: "Keep the device awake.",
		Category:    CategoryDevice, Danger: Normal,
	},
	"BATTERY_STATS": {
		DisplayName: "Battery Statistics",
		Description: "Collect battery statistics.",
		Category:    CategoryDevice, Danger: Normal,
	},
	"SET_ALARM": {
		DisplayName: "Set Alarms",
		Description: "Set an alarm in the installed alarm clock app.",
		Category:    CategorySystem, Danger: Normal,
	},
}

const androidPrefix = "android.permission."

// Canonical strips the "android.permission." prefix and upper-cases name.
func Canonical(name string) string {
	name = strings.TrimSpace(name)
	if len(name) >= len(androidPrefix) && strings.EqualFold(name[:len(androidPrefix)], androidPrefix) {
		name = name[len(androidPrefix):]
	}
	return strings.ToUpper(name)
}

// Lookup returns the catalog entry for name.
func Lookup(name string) (Info, bool) {
	name = Canonical(name)
	info, ok := catalog[name]
	if !ok {
		return Info{}, false
	}
	info.Name = name
	return info, true
}

// All returns every catalog entry ordered by category, then name.
func All() []Info {
	out := make([]Info, 0, len(catalog))
	for name := range catalog {
		info, _ := Lookup(name)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}
