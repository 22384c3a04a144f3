package engine

import (
	"errors"
	"fmt"
	"time"

	"macro-go-engine/internal/action"
	"macro-go-engine/internal/backend"
	"macro-go-engine/internal/condition"
	"macro-go-engine/internal/macro"
	"macro-go-engine/internal/store"
)

// Log line prefixes.
const (
	markSuccess = "✓"
	markFailure = "✗"
	markSkipped = "⏭"
	markStopped = "⏹"
)

type tally struct {
	succeeded, failed, skipped int
}

func (t tally) String() string {
	return fmt.Sprintf("%d succeeded, %d failed, %d skipped", t.succeeded, t.failed, t.skipped)
}

func (e *Engine) execute(rs *runState, m *macro.Macro) {
	defer e.wg.Done()
	defer close(rs.done)

	snap := rs.update(func(r *Run) { r.Status = StatusRunning })
	e.events.Emit(Event{Type: EventRunStarted, Data: snap})

	env := condition.Env{
		MacroID:   m.ID,
		MacroName: m.Name,
		Mode:      string(snap.Mode),
	}
	total := len(m.Steps)
	var t tally

	for i, step := range m.Steps {
		if rs.cancelRequested() {
			e.finish(rs, StatusCancelled, markStopped+" Run cancelled by user", "", t)
			return
		}

		rs.update(func(r *Run) {
			r.CurrentStep = i + 1
			r.Progress = (i + 1) * 100 / total
		})

		res := StepResult{Index: i, StepID: step.ID, Title: step.Title}
		var line string

		switch step.Kind {
		case macro.KindTrigger:
			res.Skipped = true
			res.Result = backend.Result{Success: true, Message: "trigger defines when to run"}
			line = fmt.Sprintf("%s %s: skipped (trigger defines when to run)", markSkipped, step.Title)
			t.skipped++

		case macro.KindCondition:
			env.Now = e.now()
			passed, err := e.cfg.Conditions.Evaluate(e.ctx, step, env)
			if err != nil {
				res.Result = backend.Result{Message: err.Error(), Kind: backend.KindInvalidParams}
				e.record(rs, res, fmt.Sprintf("%s %s: condition error: %v", markFailure, step.Title, err))
				t.failed++
				e.finish(rs, StatusFailed, "", fmt.Sprintf("condition %q: %v", step.Title, err), t)
				return
			}
			if !passed {
				res.Result = backend.Result{Message: "condition not met"}
				e.record(rs, res, fmt.Sprintf("%s %s: condition not met", markStopped, step.Title))
				e.finish(rs, StatusCompleted, "", "", t)
				return
			}
			res.Skipped = true
			res.Result = backend.Result{Success: true, Message: "condition met"}
			line = fmt.Sprintf("%s %s: condition checked (defines if to run)", markSkipped, step.Title)
			t.skipped++

		default:
			res.Action = string(action.Normalize(step).ID)
			res.Result = e.router.Dispatch(e.ctx, step)
			if res.Success {
				line = markSuccess + " " + res.Message
				t.succeeded++
			} else {
				line = markFailure + " " + res.Message
				t.failed++
			}
		}

		e.record(rs, res, line)

		if !res.Success && !res.Skipped && e.cfg.FailFast {
			e.finish(rs, StatusFailed, "", res.Message, t)
			return
		}

		if i < total-1 && !e.pause(rs) {
			e.finish(rs, StatusCancelled, markStopped+" Run cancelled by user", "", t)
			return
		}
	}

	// A cancel accepted while the last step was in flight still counts.
	if rs.cancelRequested() {
		e.finish(rs, StatusCancelled, markStopped+" Run cancelled by user", "", t)
		return
	}
	e.finish(rs, StatusCompleted, "", "", t)
}

// record appends a step result and its log line, then publishes the update.
func (e *Engine) record(rs *runState, res StepResult, line string) {
	snap := rs.update(func(r *Run) {
		r.Steps = append(r.Steps, res)
		r.Log = append(r.Log, line)
	})
	e.logger.Debug("step finished", "run", snap.ID, "step", res.StepID, "success", res.Success, "message", res.Message)
	e.events.Emit(Event{Type: EventRunStep, Data: snap})
}

// pause waits the configured delay between steps. It returns false when the
// run is cancelled meanwhile.
func (e *Engine) pause(rs *runState) bool {
	if e.cfg.StepDelay < 0 {
		return !rs.cancelRequested()
	}
	timer := time.NewTimer(e.cfg.StepDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-rs.cancelCh:
		return false
	case <-e.ctx.Done():
		return false
	}
}

func (e *Engine) finish(rs *runState, status Status, line, errMsg string, t tally) {
	at := e.now()
	snap := rs.update(func(r *Run) {
		if line != "" {
			r.Log = append(r.Log, line)
		}
		r.Status = status
		r.FinishedAt = &at
		r.Error = errMsg
		if status == StatusCompleted {
			r.Progress = 100
		}
		r.Summary = fmt.Sprintf("%s: %s", status, t)
	})

	e.logger.Info("run finished", "run", snap.ID, "macro", snap.MacroID, "status", status, "summary", snap.Summary)
	e.persist(snap)

	e.mu.Lock()
	if e.active[snap.MacroID] == snap.ID {
		delete(e.active, snap.MacroID)
	}
	e.finished = append(e.finished, snap.ID)
	for len(e.finished) > e.retain {
		delete(e.runs, e.finished[0])
		e.finished = e.finished[1:]
	}
	e.mu.Unlock()

	e.events.Emit(Event{Type: EventRunFinished, Data: snap})
}

func (e *Engine) persist(snap Run) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveRun(snap.Record()); err != nil {
		e.logger.Error("failed to save run", "run", snap.ID, "err", err)
	}
	if snap.MacroID == "" {
		return
	}
	if err := e.store.IncrementRunCount(snap.MacroID, *snap.FinishedAt); err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Error("failed to update run count", "macro", snap.MacroID, "err", err)
	}
}
