//go:build !no_mqtt

package mqtt

import (
	"strings"

	"macro-go-engine/internal/engine"
	"macro-go-engine/internal/macro"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/button/macro_engine/bedtime_run/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic,omitempty"`
	CommandTopic        string   `json:"command_topic,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	JSONAttributesTopic string   `json:"json_attributes_topic,omitempty"`
	Options             []string `json:"options,omitempty"`
	PayloadPress        string   `json:"payload_press,omitempty"`
	Icon                string   `json:"icon,omitempty"`
	Device              haDevice `json:"device"`
}

// nodeID returns the HA node id for the engine published under prefix.
func nodeID(prefix string) string {
	return "macro_engine_" + topicSafe(prefix)
}

// topicSafe lowercases s and replaces anything outside [a-z0-9_-] with '_'.
func topicSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, strings.ToLower(s))
}

// macroDisplayName returns a display name for the macro.
func macroDisplayName(m *macro.Macro) string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// buildDiscovery generates HA discovery messages: one mode select for the
// engine, and a run button plus last-run sensor per enabled macro.
func buildDiscovery(prefix string, macros []*macro.Macro) []discoveryMsg {
	node := nodeID(prefix)
	avail := prefix + "/bridge/state"
	haDev := haDevice{
		Identifiers:  []string{node},
		Manufacturer: "macro-engine",
		Model:        "Macro Engine",
		Name:         "Macro Engine",
	}

	options := make([]string, len(engine.Modes))
	for i, m := range engine.Modes {
		options[i] = string(m)
	}
	msgs := []discoveryMsg{{
		Topic: "homeassistant/select/" + node + "/mode/config",
		Payload: mustJSON(haDiscovery{
			Name:              "Execution Mode",
			UniqueID:          node + "_mode",
			StateTopic:        prefix + "/mode",
			CommandTopic:      prefix + "/mode/set",
			AvailabilityTopic: avail,
			Options:           options,
			Icon:              "mdi:swap-horizontal",
			Device:            haDev,
		}),
	}}

	for _, m := range macros {
		if m == nil || m.ID == "" || !m.Enabled {
			continue
		}
		msgs = append(msgs, buildRunButton(node, prefix, avail, haDev, m), buildLastRunSensor(node, prefix, avail, haDev, m))
	}
	return msgs
}

func buildRunButton(node, prefix, avail string, haDev haDevice, m *macro.Macro) discoveryMsg {
	obj := topicSafe(m.ID) + "_run"
	payload := haDiscovery{
		Name:              "Run " + macroDisplayName(m),
		UniqueID:          node + "_" + obj,
		CommandTopic:      prefix + "/macros/" + m.ID + "/run",
		AvailabilityTopic: avail,
		PayloadPress:      "RUN",
		Icon:              "mdi:play",
		Device:            haDev,
	}
	return discoveryMsg{Topic: "homeassistant/button/" + node + "/" + obj + "/config", Payload: mustJSON(payload)}
}

func buildLastRunSensor(node, prefix, avail string, haDev haDevice, m *macro.Macro) discoveryMsg {
	obj := topicSafe(m.ID) + "_last_run"
	stateTopic := prefix + "/macros/" + m.ID + "/state"
	payload := haDiscovery{
		Name:                macroDisplayName(m) + " Last Run",
		UniqueID:            node + "_" + obj,
		StateTopic:          stateTopic,
		AvailabilityTopic:   avail,
		ValueTemplate:       "{{ value_json.status }}",
		JSONAttributesTopic: stateTopic,
		Icon:                "mdi:history",
		Device:              haDev,
	}
	return discoveryMsg{Topic: "homeassistant/sensor/" + node + "/" + obj + "/config", Payload: mustJSON(payload)}
}

// buildRemoveDiscovery generates empty payloads that remove a macro's
// entities from HA.
func buildRemoveDiscovery(prefix, macroID string) []discoveryMsg {
	node := nodeID(prefix)
	obj := topicSafe(macroID)
	return []discoveryMsg{
		{Topic: "homeassistant/button/" + node + "/" + obj + "_run/config", Payload: []byte{}},
		{Topic: "homeassistant/sensor/" + node + "/" + obj + "_last_run/config", Payload: []byte{}},
	}
}
