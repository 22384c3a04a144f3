// Package engine runs macros: it sequences steps, routes actions to backends
// by execution mode and tracks run state for concurrent observers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"macro-go-engine/internal/condition"
	"macro-go-engine/internal/macro"
	"macro-go-engine/internal/store"
)

var (
	// ErrRunNotFound is returned for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunInProgress is returned when the macro already has an active run.
	ErrRunInProgress = errors.New("macro already running")
)

// DefaultStepDelay is the pause between steps.
const DefaultStepDelay = 500 * time.Millisecond

// maxRetainedRuns bounds finished runs kept in memory; with a store, older
// ones are still served from it.
const maxRetainedRuns = 200

// Config tunes the run loop.
type Config struct {
	StepDelay time.Duration
	// FailFast stops a run as Failed on the first failed action. By default
	// failures are recorded and the run continues.
	FailFast bool
	// Conditions decides condition steps. Defaults to condition.Always.
	Conditions condition.Evaluator
}

// RunStore persists finished runs and run statistics.
type RunStore interface {
	SaveRun(run *store.Run) error
	GetRun(id string) (*store.Run, error)
	ListRuns(macroID string) ([]*store.Run, error)
	IncrementRunCount(id string, at time.Time) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists runs when they finish.
func WithStore(s RunStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithRetainedRuns caps how many finished runs stay in memory.
func WithRetainedRuns(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.retain = n
		}
	}
}

// WithEventBus publishes run events on bus instead of a private one.
func WithEventBus(bus *EventBus) Option {
	return func(e *Engine) { e.events = bus }
}

// Engine owns all runs.
type Engine struct {
	router *Router
	cfg    Config
	events *EventBus
	store  RunStore
	logger *slog.Logger

	ctx  context.Context
	stop context.CancelFunc

	mu       sync.RWMutex
	runs     map[string]*runState
	active   map[string]string // macro id -> run id
	finished []string          // finished run ids, oldest first
	retain   int
	wg       sync.WaitGroup

	now func() time.Time
}

type runState struct {
	mu         sync.Mutex
	run        Run
	cancelCh   chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
}

func (rs *runState) snapshot() Run {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.run.clone()
}

// update mutates the run under its lock and returns the new snapshot.
func (rs *runState) update(fn func(r *Run)) Run {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	fn(&rs.run)
	return rs.run.clone()
}

func (rs *runState) cancelRequested() bool {
	select {
	case <-rs.cancelCh:
		return true
	default:
		return false
	}
}

// New creates an engine dispatching through router.
func New(router *Router, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.StepDelay == 0 {
		cfg.StepDelay = DefaultStepDelay
	}
	if cfg.Conditions == nil {
		cfg.Conditions = condition.Always{}
	}
	ctx, stop := context.WithCancel(context.Background())
	e := &Engine{
		router: router,
		cfg:    cfg,
		logger: logger.With("component", "engine"),
		ctx:    ctx,
		stop:   stop,
		runs:   make(map[string]*runState),
		active: make(map[string]string),
		retain: maxRetainedRuns,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.events == nil {
		e.events = NewEventBus(logger)
	}
	return e
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus { return e.events }

// Router returns the engine's router.
func (e *Engine) Router() *Router { return e.router }

// GetMode returns the active execution mode.
func (e *Engine) GetMode() Mode { return e.router.Mode() }

// SetMode switches the execution mode for subsequent step dispatches.
func (e *Engine) SetMode(m Mode) error {
	if err := e.router.SetMode(m); err != nil {
		return err
	}
	e.events.Emit(Event{Type: EventModeChanged, Data: m})
	return nil
}

// StartRun starts executing m in the background and returns the run id. The
// macro is copied; later changes to m do not affect the run.
func (e *Engine) StartRun(ctx context.Context, m *macro.Macro) (string, error) {
	if m == nil {
		return "", errors.New("start run: nil macro")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := m.Validate(); err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	select {
	case <-e.ctx.Done():
		return "", errors.New("start run: engine stopped")
	default:
	}

	m = m.Clone()
	id := uuid.NewString()
	rs := &runState{
		run: Run{
			ID:         id,
			MacroID:    m.ID,
			MacroName:  m.Name,
			Mode:       e.router.Mode(),
			Status:     StatusPending,
			TotalSteps: len(m.Steps),
			Log:        []string{},
			Steps:      []StepResult{},
			StartedAt:  e.now(),
		},
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}

	e.mu.Lock()
	if m.ID != "" {
		if running, ok := e.active[m.ID]; ok {
			e.mu.Unlock()
			return "", fmt.Errorf("%w: %s (run %s)", ErrRunInProgress, m.ID, running)
		}
		e.active[m.ID] = id
	}
	e.runs[id] = rs
	e.mu.Unlock()

	e.logger.Info("run started", "run", id, "macro", m.ID, "mode", rs.run.Mode, "steps", len(m.Steps))
	e.wg.Add(1)
	go e.execute(rs, m)
	return id, nil
}

// GetRunStatus returns a snapshot of the run. Finished runs evicted from
// memory are loaded from the store.
func (e *Engine) GetRunStatus(id string) (Run, error) {
	e.mu.RLock()
	rs, ok := e.runs[id]
	e.mu.RUnlock()
	if ok {
		return rs.snapshot(), nil
	}
	if e.store != nil {
		rec, err := e.store.GetRun(id)
		if err == nil {
			return FromRecord(rec), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Run{}, err
		}
	}
	return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

// CancelRun requests cooperative cancellation. It returns false when the run
// is unknown or already finished. The step in flight is allowed to finish.
func (e *Engine) CancelRun(id string) bool {
	e.mu.RLock()
	rs, ok := e.runs[id]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	if rs.snapshot().Status.Terminal() {
		return false
	}
	rs.cancelOnce.Do(func() { close(rs.cancelCh) })
	e.logger.Info("run cancel requested", "run", id)
	return true
}

// Wait blocks until the run finishes or ctx is done.
func (e *Engine) Wait(ctx context.Context, id string) (Run, error) {
	e.mu.RLock()
	rs, ok := e.runs[id]
	e.mu.RUnlock()
	if !ok {
		return e.GetRunStatus(id)
	}
	select {
	case <-rs.done:
		return rs.snapshot(), nil
	case <-ctx.Done():
		return rs.snapshot(), ctx.Err()
	}
}

// ListRuns returns runs newest first, combining in-memory and stored runs.
// An empty macroID lists every run.
func (e *Engine) ListRuns(macroID string) ([]Run, error) {
	seen := make(map[string]bool)
	var out []Run

	e.mu.RLock()
	states := make([]*runState, 0, len(e.runs))
	for _, rs := range e.runs {
		states = append(states, rs)
	}
	e.mu.RUnlock()
	for _, rs := range states {
		r := rs.snapshot()
		if macroID != "" && r.MacroID != macroID {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}

	if e.store != nil {
		recs, err := e.store.ListRuns(macroID)
		if err != nil {
			return nil, fmt.Errorf("list stored runs: %w", err)
		}
		for _, rec := range recs {
			if !seen[rec.ID] {
				out = append(out, FromRecord(rec))
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// Close cancels every active run and waits for the run loops to exit.
func (e *Engine) Close() {
	e.mu.RLock()
	for _, rs := range e.runs {
		rs.cancelOnce.Do(func() { close(rs.cancelCh) })
	}
	e.mu.RUnlock()
	e.wg.Wait()
	e.stop()
}
