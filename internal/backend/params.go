package backend

import (
	"fmt"
	"strconv"
	"strings"

	"macro-go-engine/internal/macro"
)

// Parameter bags come from JSON, YAML or AI output, so numbers may arrive as
// float64, int or numeric strings and booleans as "on"/"off".

func paramString(params map[string]any, def string, keys ...string) string {
	for _, k := range keys {
		v, ok := params[k]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			if s != "" {
				return s
			}
		case fmt.Stringer:
			return s.String()
		default:
			return fmt.Sprint(v)
		}
	}
	return def
}

func paramInt(params map[string]any, def int, keys ...string) int {
	for _, k := range keys {
		if n, ok := toInt(params[k]); ok {
			return n
		}
	}
	return def
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(n), "%"))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "on", "true", "enable", "enabled", "yes", "1":
			return true, true
		case "off", "false", "disable", "disabled", "no", "0":
			return false, true
		}
	}
	if n, ok := toInt(v); ok {
		return n != 0, true
	}
	return false, false
}

// enabledParam resolves the on/off target of a toggle from "enabled", then
// "state", then the step title ("Toggle WiFi Off"). Defaults to on.
func enabledParam(step macro.Step, params map[string]any) bool {
	for _, k := range []string{"enabled", "state", "enable"} {
		if b, ok := toBool(params[k]); ok {
			return b
		}
	}
	lower := " " + strings.ToLower(step.Title) + " "
	for _, w := range []string{" off ", " disable ", " deactivate "} {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return true
}

// vibrationPattern accepts a list of millisecond values or a single duration.
func vibrationPattern(params map[string]any) []int {
	if raw, ok := params["pattern"]; ok {
		switch p := raw.(type) {
		case []any:
			out := make([]int, 0, len(p))
			for _, v := range p {
				if n, ok := toInt(v); ok {
					out = append(out, n)
				}
			}
			if len(out) > 0 {
				return out
			}
		case []int:
			if len(p) > 0 {
				return p
			}
		default:
			if n, ok := toInt(p); ok {
				return []int{n}
			}
		}
	}
	return []int{paramInt(params, 200, "duration", "ms")}
}
