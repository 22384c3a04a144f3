package engine

import (
	"time"

	"macro-go-engine/internal/backend"
	"macro-go-engine/internal/store"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepResult records what happened to one step.
type StepResult struct {
	Index   int    `json:"index"`
	StepID  string `json:"step_id"`
	Title   string `json:"title"`
	Action  string `json:"action,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	backend.Result
}

// Run is a snapshot of one macro execution. Snapshots are copies; holding one
// never blocks the run.
type Run struct {
	ID          string       `json:"id"`
	MacroID     string       `json:"macro_id"`
	MacroName   string       `json:"macro_name"`
	Mode        Mode         `json:"mode"`
	Status      Status       `json:"status"`
	CurrentStep int          `json:"current_step"` // 1-based; 0 before the first step
	TotalSteps  int          `json:"total_steps"`
	Progress    int          `json:"progress"` // percent
	Log         []string     `json:"log"`
	Steps       []StepResult `json:"steps"`
	Summary     string       `json:"summary,omitempty"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

func (r *Run) clone() Run {
	c := *r
	c.Log = append([]string(nil), r.Log...)
	c.Steps = append([]StepResult(nil), r.Steps...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return c
}

// Record converts the snapshot to its persisted form.
func (r Run) Record() *store.Run {
	rec := &store.Run{
		ID:          r.ID,
		MacroID:     r.MacroID,
		MacroName:   r.MacroName,
		Mode:        string(r.Mode),
		Status:      string(r.Status),
		CurrentStep: r.CurrentStep,
		TotalSteps:  r.TotalSteps,
		Progress:    r.Progress,
		Log:         r.Log,
		Summary:     r.Summary,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
	for _, s := range r.Steps {
		rec.Steps = append(rec.Steps, store.StepResult{
			Index:     s.Index,
			StepID:    s.StepID,
			Title:     s.Title,
			Action:    s.Action,
			Skipped:   s.Skipped,
			Success:   s.Success,
			Message:   s.Message,
			Kind:      string(s.Kind),
			Backend:   s.Backend,
			Simulated: s.Simulated,
			Data:      s.Data,
		})
	}
	return rec
}

// FromRecord rebuilds a snapshot from its persisted form.
func FromRecord(rec *store.Run) Run {
	r := Run{
		ID:          rec.ID,
		MacroID:     rec.MacroID,
		MacroName:   rec.MacroName,
		Mode:        Mode(rec.Mode),
		Status:      Status(rec.Status),
		CurrentStep: rec.CurrentStep,
		TotalSteps:  rec.TotalSteps,
		Progress:    rec.Progress,
		Log:         rec.Log,
		Summary:     rec.Summary,
		Error:       rec.Error,
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
	}
	for _, s := range rec.Steps {
		r.Steps = append(r.Steps, StepResult{
			Index:   s.Index,
			StepID:  s.StepID,
			Title:   s.Title,
			Action:  s.Action,
			Skipped: s.Skipped,
			Result: backend.Result{
				Success:   s.Success,
				Message:   s.Message,
				Kind:      backend.Kind(s.Kind),
				Backend:   s.Backend,
				Simulated: s.Simulated,
				Data:      s.Data,
			},
		})
	}
	return r
}
