//go:build no_lua

package condition

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"macro-go-engine/internal/macro"
)

// Lua is a stub when Lua support is compiled out.
type Lua struct{}

// NewLua returns an evaluator that rejects every expression.
func NewLua(_ time.Duration, _ *slog.Logger) *Lua { return &Lua{} }

// Evaluate passes steps without an expression and fails the rest.
func (e *Lua) Evaluate(_ context.Context, step macro.Step, _ Env) (bool, error) {
	for _, k := range []string{"expression", "lua", "script"} {
		if _, ok := step.Parameters[k]; ok {
			return false, errors.New("lua conditions disabled in this build")
		}
	}
	return true, nil
}
