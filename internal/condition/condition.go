// Package condition decides whether condition steps let a run continue.
package condition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"macro-go-engine/internal/macro"
)

// Env is the run context visible to an evaluator.
type Env struct {
	MacroID   string
	MacroName string
	Mode      string
	Now       time.Time
}

// Evaluator decides a condition step.
type Evaluator interface {
	Evaluate(ctx context.Context, step macro.Step, env Env) (bool, error)
}

// Func adapts a function to Evaluator.
type Func func(ctx context.Context, step macro.Step, env Env) (bool, error)

func (f Func) Evaluate(ctx context.Context, step macro.Step, env Env) (bool, error) {
	return f(ctx, step, env)
}

// Always passes every condition.
type Always struct{}

func (Always) Evaluate(context.Context, macro.Step, Env) (bool, error) { return true, nil }

// Evaluator names accepted by New.
const (
	KindAlways = "always"
	KindLua    = "lua"
)

// New builds the evaluator named by kind.
func New(kind string, timeout time.Duration, logger *slog.Logger) (Evaluator, error) {
	switch kind {
	case "", KindAlways:
		return Always{}, nil
	case KindLua:
		return NewLua(timeout, logger), nil
	}
	return nil, fmt.Errorf("unknown condition evaluator %q", kind)
}
