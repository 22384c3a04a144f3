//go:build !no_lua

package condition

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"macro-go-engine/internal/macro"
)

// expressionKeys are the step parameters that may hold a Lua condition.
var expressionKeys = []string{"expression", "lua", "script"}

// Lua evaluates condition steps with a Lua expression such as
//
//	system.time_between(22, 6) and params.battery_below ~= nil
//
// Each evaluation gets a fresh sandboxed VM. A step with no expression
// passes.
type Lua struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewLua creates a Lua evaluator. timeout bounds each evaluation (default 2s).
func NewLua(timeout time.Duration, logger *slog.Logger) *Lua {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Lua{timeout: timeout, logger: logger.With("component", "condition.lua")}
}

// Evaluate implements Evaluator.
func (e *Lua) Evaluate(ctx context.Context, step macro.Step, env Env) (bool, error) {
	code := ""
	for _, k := range expressionKeys {
		if s, ok := step.Parameters[k].(string); ok && strings.TrimSpace(s) != "" {
			code = s
			break
		}
	}
	if code == "" {
		return true, nil
	}
	if env.Now.IsZero() {
		env.Now = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	defer L.Close()

	// Sandbox
	L.SetGlobal("os", lua.LNil)
	L.SetGlobal("io", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("require", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("debug", lua.LNil)
	L.SetGlobal("package", lua.LNil)

	L.SetContext(ctx)

	L.SetGlobal("params", toLValue(L, step.Parameters))
	m := L.NewTable()
	m.RawSetString("id", lua.LString(env.MacroID))
	m.RawSetString("name", lua.LString(env.MacroName))
	m.RawSetString("mode", lua.LString(env.Mode))
	L.SetGlobal("macro", m)
	e.registerSystem(L, env.Now)

	fn, err := L.LoadString("return " + code)
	if err != nil {
		// Not a bare expression; run it as a chunk that returns a value.
		fn, err = L.LoadString(code)
		if err != nil {
			return false, fmt.Errorf("condition %q: %w", step.Title, err)
		}
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return false, fmt.Errorf("condition %q: %w", step.Title, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	ok := lua.LVAsBool(ret)
	e.logger.Debug("condition evaluated", "step", step.Title, "result", ok)
	return ok, nil
}

func (e *Lua) registerSystem(L *lua.LState, now time.Time) {
	mod := L.NewTable()

	mod.RawSetString("datetime", L.NewFunction(func(L *lua.LState) int {
		component := L.CheckString(1)
		switch component {
		case "hour":
			L.Push(lua.LNumber(now.Hour()))
		case "minute":
			L.Push(lua.LNumber(now.Minute()))
		case "weekday":
			L.Push(lua.LNumber(now.Weekday()))
		case "day":
			L.Push(lua.LNumber(now.Day()))
		case "month":
			L.Push(lua.LNumber(now.Month()))
		case "year":
			L.Push(lua.LNumber(now.Year()))
		case "timestamp":
			L.Push(lua.LNumber(now.Unix()))
		case "time_str":
			L.Push(lua.LString(now.Format("15:04")))
		default:
			L.ArgError(1, "unknown component: "+component)
			return 0
		}
		return 1
	}))

	// system.time_between(from_hour, to_hour) wraps past midnight when from > to.
	mod.RawSetString("time_between", L.NewFunction(func(L *lua.LState) int {
		from := L.CheckInt(1)
		to := L.CheckInt(2)
		hour := now.Hour()
		var in bool
		if from <= to {
			in = hour >= from && hour < to
		} else {
			in = hour >= from || hour < to
		}
		L.Push(lua.LBool(in))
		return 1
	}))

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		e.logger.Info("condition log", "msg", L.CheckString(1))
		return 0
	}))

	L.SetGlobal("system", mod)
}

func toLValue(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case []any:
		t := L.NewTable()
		for _, item := range x {
			t.Append(toLValue(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range x {
			t.RawSetString(k, toLValue(L, item))
		}
		return t
	}
	return lua.LString(fmt.Sprint(v))
}
