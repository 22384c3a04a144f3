package action

import (
	"strings"

	"macro-go-engine/internal/macro"
)

// Steps whose titles contain one of these phrases cannot run for real on a
// device without system-level access. Hybrid mode simulates them and the
// Android-mode check reports them; both read these lists.
var (
	UnsupportedTriggers = []string{
		"Time Trigger", "Bedtime Trigger", "Schedule Trigger", "Timer Trigger", "Alarm Trigger",
	}
	UnsupportedActions = []string{
		"Set Audio Mode", "Silent Mode", "Change Volume", "Set Volume", "Audio Mode",
		"Media Volume", "Ring Volume", "Notification Volume",
	}
)

func containsAny(title string, phrases []string) bool {
	lower := strings.ToLower(title)
	for _, p := range phrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// KnownUnsupported reports whether title matches either phrase list,
// case-insensitively.
func KnownUnsupported(title string) bool {
	return containsAny(title, UnsupportedTriggers) || containsAny(title, UnsupportedActions)
}

// SupportedOnAndroid reports whether a step can run in Android mode.
// Conditions are always supported.
func SupportedOnAndroid(step macro.Step) bool {
	switch step.Kind {
	case macro.KindTrigger:
		return !containsAny(step.Title, UnsupportedTriggers)
	case macro.KindAction:
		return !containsAny(step.Title, UnsupportedActions)
	}
	return true
}

// UnsupportedSteps returns the titles of steps that cannot run in Android
// mode, in macro order.
func UnsupportedSteps(steps []macro.Step) []string {
	var out []string
	for _, s := range steps {
		if !SupportedOnAndroid(s) {
			out = append(out, s.Title)
		}
	}
	return out
}
