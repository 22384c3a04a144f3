package store

import "time"

// Run is the persisted record of one macro execution.
type Run struct {
	ID          string       `json:"id"`
	MacroID     string       `json:"macro_id"`
	MacroName   string       `json:"macro_name,omitempty"`
	Mode        string       `json:"mode"`
	Status      string       `json:"status"`
	CurrentStep int          `json:"current_step"`
	TotalSteps  int          `json:"total_steps"`
	Progress    int          `json:"progress"`
	Log         []string     `json:"log"`
	Steps       []StepResult `json:"steps,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

// StepResult is the outcome of one step within a run.
type StepResult struct {
	Index     int            `json:"index"`
	StepID    string         `json:"step_id"`
	Title     string         `json:"title"`
	Action    string         `json:"action,omitempty"`
	Skipped   bool           `json:"skipped,omitempty"`
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Kind      string         `json:"kind,omitempty"`
	Backend   string         `json:"backend,omitempty"`
	Simulated bool           `json:"simulated,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}
