// Package backend implements the action vocabulary against three surfaces:
// a pure simulator, a web platform and a native device bridge.
package backend

import (
	"context"
	"fmt"

	"macro-go-engine/internal/action"
	"macro-go-engine/internal/macro"
)

// Kind classifies a failed result.
type Kind string

const (
	KindUnsupported       Kind = "unsupported"
	KindBridgeUnavailable Kind = "bridge_unavailable"
	KindPermissionDenied  Kind = "permission_denied"
	KindBackendError      Kind = "backend_error"
	KindInvalidParams     Kind = "invalid_params"
	KindUnknownAction     Kind = "unknown_action"
)

// Backend names.
const (
	NameSimulator = "simulator"
	NameWeb       = "web"
	NameNative    = "native"
)

// Result is the outcome of one action on one surface.
type Result struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Kind      Kind           `json:"kind,omitempty"`
	Backend   string         `json:"backend,omitempty"`
	Simulated bool           `json:"simulated,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Executor runs a normalized action for a step.
type Executor interface {
	Execute(ctx context.Context, act action.Normalized, step macro.Step) Result
}

func ok(backend, msg string) Result {
	return Result{Success: true, Message: msg, Backend: backend}
}

func fail(backend string, kind Kind, format string, args ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...), Kind: kind, Backend: backend}
}

// guard converts a panic inside a surface call into a backend_error result.
func guard(backend string, res *Result) {
	if r := recover(); r != nil {
		*res = fail(backend, KindBackendError, "%s error: %v", backend, r)
	}
}
