package action

import (
	"strings"

	"macro-go-engine/internal/macro"
)

// Rule maps title substrings to an action. Exclude vetoes the rule when any
// of its phrases is also present.
type Rule struct {
	ID      ID
	Match   []string
	Exclude []string
}

func (r Rule) matches(lowerTitle string) bool {
	for _, x := range r.Exclude {
		if strings.Contains(lowerTitle, x) {
			return false
		}
	}
	for _, m := range r.Match {
		if strings.Contains(lowerTitle, m) {
			return true
		}
	}
	return false
}

// Rules is the title classification table. First match wins.
var Rules = []Rule{
	{ID: SetVolume, Match: []string{"volume"}},
	{ID: SetBrightness, Match: []string{"brightness"}},
	{ID: ToggleWifi, Match: []string{"wifi", "wi-fi"}},
	{ID: ToggleBluetooth, Match: []string{"bluetooth"}},
	{ID: SetDoNotDisturb, Match: []string{"do not disturb", "dnd"}},
	{ID: ToggleFlash, Match: []string{"flashlight", "torch"}},
	{ID: LaunchApp, Match: []string{"launch", "open"}},
	{ID: SendSMS, Match: []string{"sms", "text message"}},
	{ID: MakeCall, Match: []string{"call"}},
	{ID: Vibrate, Match: []string{"vibrat"}},
	{ID: SetRingerMode, Match: []string{"ringer", "silent"}},
	{ID: SendNotify, Match: []string{"notification"}, Exclude: []string{"disturb"}},
}

// Classify returns the first rule matching title, or Unknown.
func Classify(title string) ID {
	lower := strings.ToLower(title)
	for _, r := range Rules {
		if r.matches(lower) {
			return r.ID
		}
	}
	return Unknown
}

// Normalize maps a step onto the vocabulary. Triggers and conditions yield
// NotExecuted. Actions are classified by title; when no rule matches, a
// declared "action" (or "type") parameter naming a vocabulary entry is used.
// Anything else is Unknown with the declared string preserved.
func Normalize(step macro.Step) Normalized {
	if !step.Kind.Executable() {
		return Normalized{ID: NotExecuted}
	}
	n := Normalized{ID: Classify(step.Title), Parameters: step.Parameters}
	if n.ID != Unknown {
		return n
	}
	if v, ok := step.Param("action", "action_type", "type"); ok {
		if s, ok := v.(string); ok {
			declared := ID(strings.ToLower(strings.TrimSpace(s)))
			if Known(declared) {
				n.ID = declared
				return n
			}
			n.Declared = s
			return n
		}
	}
	n.Declared = string(step.Kind)
	return n
}
