package macro

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a macro step.
type Kind string

const (
	KindTrigger   Kind = "trigger"
	KindCondition Kind = "condition"
	KindAction    Kind = "action"
)

// Valid reports whether k is one of the known step kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTrigger, KindCondition, KindAction:
		return true
	}
	return false
}

// Executable reports whether steps of this kind are dispatched to a backend.
// Triggers and conditions define when/if a macro runs, not what it does.
func (k Kind) Executable() bool {
	return k == KindAction
}

// UnmarshalText accepts kinds case-insensitively ("Action", "ACTION").
func (k *Kind) UnmarshalText(b []byte) error {
	v := Kind(strings.ToLower(strings.TrimSpace(string(b))))
	if !v.Valid() {
		return fmt.Errorf("unknown step kind %q", string(b))
	}
	*k = v
	return nil
}

// Step is a single trigger, condition or action. Steps are read-only during
// execution.
type Step struct {
	ID          string         `json:"id" yaml:"id"`
	Kind        Kind           `json:"type" yaml:"type"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Param returns the first non-nil parameter among keys.
func (s Step) Param(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := s.Parameters[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Macro is an ordered list of steps plus metadata. Step order is execution
// order.
type Macro struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string    `json:"category,omitempty" yaml:"category,omitempty"`
	Permissions []string  `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	RunCount    int       `json:"run_count" yaml:"run_count,omitempty"`
	LastRun     time.Time `json:"last_run,omitempty" yaml:"-"`
	Steps       []Step    `json:"steps" yaml:"steps"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// Actions returns the number of executable steps.
func (m *Macro) Actions() int {
	n := 0
	for _, s := range m.Steps {
		if s.Kind.Executable() {
			n++
		}
	}
	return n
}

// Validate checks identity and step invariants. A macro without action steps
// is valid.
func (m *Macro) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("macro name is required")
	}
	seen := make(map[string]struct{}, len(m.Steps))
	for i, s := range m.Steps {
		if s.ID == "" {
			return fmt.Errorf("step %d: id is required", i+1)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("step %d: duplicate id %q", i+1, s.ID)
		}
		seen[s.ID] = struct{}{}
		if !s.Kind.Valid() {
			return fmt.Errorf("step %q: unknown kind %q", s.ID, s.Kind)
		}
		if strings.TrimSpace(s.Title) == "" {
			return fmt.Errorf("step %q: title is required", s.ID)
		}
	}
	return nil
}

// Clone returns a deep copy of the macro, so runs never share step
// parameter maps with the caller.
func (m *Macro) Clone() *Macro {
	c := *m
	c.Permissions = append([]string(nil), m.Permissions...)
	c.Steps = make([]Step, len(m.Steps))
	for i, s := range m.Steps {
		c.Steps[i] = s
		if s.Parameters != nil {
			c.Steps[i].Parameters = cloneMap(s.Parameters)
		}
	}
	return &c
}

func cloneMap(in map[string]any) map[string]any {
	data, err := json.Marshal(in)
	if err != nil {
		out := make(map[string]any, len(in))
		for k, v := range in {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return in
	}
	return out
}
