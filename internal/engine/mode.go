package engine

import (
	"errors"
	"fmt"
	"strings"

	"macro-go-engine/internal/action"
)

// ErrUnknownMode is returned when parsing an unrecognized mode name.
var ErrUnknownMode = errors.New("unknown execution mode")

// Mode selects which backends the router consults.
type Mode string

const (
	ModeDemo    Mode = "demo"
	ModeWeb     Mode = "web"
	ModeHybrid  Mode = "hybrid"
	ModeAndroid Mode = "android"
)

// Modes lists every mode in display order.
var Modes = []Mode{ModeDemo, ModeWeb, ModeHybrid, ModeAndroid}

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeDemo, ModeWeb, ModeHybrid, ModeAndroid:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Label is the human form used in messages ("Hybrid").
func (m Mode) Label() string {
	switch m {
	case ModeDemo:
		return "Demo"
	case ModeWeb:
		return "Web"
	case ModeHybrid:
		return "Hybrid"
	case ModeAndroid:
		return "Android"
	}
	return string(m)
}

// Supports reports whether mode can serve id, given whether the native bridge
// is up. Demo serves the whole vocabulary.
func Supports(mode Mode, id action.ID, nativeUp bool) bool {
	if !action.Known(id) {
		return false
	}
	native := nativeUp && action.NativeCapable(id)
	switch mode {
	case ModeDemo:
		return true
	case ModeWeb:
		return action.WebCapable(id)
	case ModeAndroid:
		return native
	case ModeHybrid:
		return native || action.WebCapable(id)
	}
	return false
}
