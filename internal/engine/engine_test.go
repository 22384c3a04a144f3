package engine

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"macro-go-engine/internal/action"
	"macro-go-engine/internal/backend"
	"macro-go-engine/internal/condition"
	"macro-go-engine/internal/macro"
	"macro-go-engine/internal/store"
)

func newTestEngine(t *testing.T, r *Router, cfg Config, opts ...Option) *Engine {
	t.Helper()
	if cfg.StepDelay == 0 {
		cfg.StepDelay = -1
	}
	e := New(r, cfg, testLogger(), opts...)
	t.Cleanup(e.Close)
	return e
}

func waitRun(t *testing.T, e *Engine, id string) Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := e.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s): %v", id, err)
	}
	return run
}

func threeStepMacro() *macro.Macro {
	return &macro.Macro{
		ID:   "m1",
		Name: "Evening",
		Steps: []macro.Step{
			{ID: "t1", Kind: macro.KindTrigger, Title: "Time Trigger"},
			{ID: "a1", Kind: macro.KindAction, Title: "Set Volume", Parameters: map[string]any{"level": 80}},
			{ID: "a2", Kind: macro.KindAction, Title: "Send Notification", Parameters: map[string]any{"title": "Hi"}},
		},
	}
}

// blockingSpy holds every Execute call until release is closed.
type blockingSpy struct {
	*spyExecutor
	started chan struct{}
	release chan struct{}
}

func newBlockingSpy(name string) *blockingSpy {
	return &blockingSpy{
		spyExecutor: newSpy(name, true),
		started:     make(chan struct{}, 16),
		release:     make(chan struct{}),
	}
}

func (b *blockingSpy) Execute(ctx context.Context, act action.Normalized, step macro.Step) backend.Result {
	b.started <- struct{}{}
	<-b.release
	return b.spyExecutor.Execute(ctx, act, step)
}

func TestDemoRunScenario(t *testing.T) {
	sim := backend.NewSimulator(backend.SimulatorConfig{SuccessRate: 0.95})
	r := NewRouter(ModeDemo, sim, newSpy("web", true), newSpy("native", true), testLogger())
	e := newTestEngine(t, r, Config{})

	id, err := e.StartRun(context.Background(), threeStepMacro())
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	run := waitRun(t, e, id)

	if run.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", run.Status)
	}
	if len(run.Log) != 3 {
		t.Fatalf("log has %d entries, want 3: %q", len(run.Log), run.Log)
	}
	if !strings.HasPrefix(run.Log[0], "⏭ Time Trigger: skipped") {
		t.Errorf("log[0] = %q", run.Log[0])
	}
	for i, line := range run.Log[1:] {
		if !strings.HasPrefix(line, "✓ Demo: Successfully executed") && !strings.HasPrefix(line, "✗ Demo: Failed to execute") {
			t.Errorf("log[%d] = %q", i+1, line)
		}
	}
	if run.CurrentStep != 3 || run.TotalSteps != 3 || run.Progress != 100 {
		t.Errorf("progress = %d/%d %d%%", run.CurrentStep, run.TotalSteps, run.Progress)
	}
	if run.FinishedAt == nil {
		t.Error("finished_at not set")
	}
	if len(run.Steps) != 3 || !run.Steps[0].Skipped || run.Steps[1].Action != string(action.SetVolume) {
		t.Errorf("steps = %+v", run.Steps)
	}
}

func TestRunNeverExecutesTriggersOrConditions(t *testing.T) {
	r, sp := newRouter(ModeHybrid)
	e := newTestEngine(t, r, Config{})

	m := &macro.Macro{ID: "m", Name: "Only checks", Steps: []macro.Step{
		{ID: "t", Kind: macro.KindTrigger, Title: "Send Notification at 7am"},
		{ID: "c", Kind: macro.KindCondition, Title: "Wifi connected"},
	}}
	id, err := e.StartRun(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	run := waitRun(t, e, id)
	if run.Status != StatusCompleted {
		t.Errorf("status = %q", run.Status)
	}
	if n := sp.sim.count() + sp.web.count() + sp.native.count(); n != 0 {
		t.Errorf("backend calls = %d, want 0", n)
	}
	if !strings.Contains(run.Log[1], "condition checked") {
		t.Errorf("log = %q", run.Log)
	}
}

func TestCancelAfterFirstStep(t *testing.T) {
	r, sp := newRouter(ModeDemo)
	e := newTestEngine(t, r, Config{StepDelay: time.Hour})

	var runID string
	var mu sync.Mutex
	e.Events().On(func(ev Event) {
		run := ev.Data.(Run)
		mu.Lock()
		defer mu.Unlock()
		if run.ID == runID && len(run.Log) == 1 {
			e.CancelRun(run.ID)
		}
	}, EventRunStep)

	m := threeStepMacro()
	m.Steps[0] = macro.Step{ID: "a0", Kind: macro.KindAction, Title: "Send Notification"}

	mu.Lock()
	id, err := e.StartRun(context.Background(), m)
	runID = id
	mu.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	run := waitRun(t, e, id)

	if run.Status != StatusCancelled {
		t.Fatalf("status = %q, want cancelled", run.Status)
	}
	if run.CurrentStep != 1 {
		t.Errorf("current step = %d, want 1", run.CurrentStep)
	}
	if len(run.Log) != 2 || run.Log[1] != "⏹ Run cancelled by user" {
		t.Errorf("log = %q", run.Log)
	}
	if sp.sim.count() != 1 {
		t.Errorf("simulator calls = %d, want 1", sp.sim.count())
	}
	if run.FinishedAt == nil {
		t.Error("finished_at not set")
	}
}

func TestCancelLetsInFlightStepFinish(t *testing.T) {
	sim := newBlockingSpy("simulator")
	r := NewRouter(ModeDemo, sim, newSpy("web", true), newSpy("native", true), testLogger())
	e := newTestEngine(t, r, Config{})

	id, err := e.StartRun(context.Background(), threeStepMacro())
	if err != nil {
		t.Fatal(err)
	}
	<-sim.started
	if !e.CancelRun(id) {
		t.Fatal("CancelRun returned false for a running run")
	}
	close(sim.release)

	run := waitRun(t, e, id)
	if run.Status != StatusCancelled {
		t.Fatalf("status = %q", run.Status)
	}
	if run.CurrentStep != 2 {
		t.Errorf("current step = %d, want 2", run.CurrentStep)
	}
	if len(run.Log) != 3 || !strings.HasPrefix(run.Log[1], "✓") {
		t.Errorf("log = %q", run.Log)
	}
	if sim.count() != 1 {
		t.Errorf("simulator calls = %d, want 1", sim.count())
	}
}

func TestCancelDuringLastStep(t *testing.T) {
	sim := newBlockingSpy("simulator")
	r := NewRouter(ModeDemo, sim, newSpy("web", true), newSpy("native", true), testLogger())
	e := newTestEngine(t, r, Config{})

	m := &macro.Macro{ID: "one", Name: "One step", Steps: []macro.Step{
		{ID: "a1", Kind: macro.KindAction, Title: "Set Volume"},
	}}
	id, err := e.StartRun(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	<-sim.started
	if !e.CancelRun(id) {
		t.Fatal("CancelRun returned false for a running run")
	}
	close(sim.release)

	run := waitRun(t, e, id)
	if run.Status != StatusCancelled {
		t.Fatalf("status = %q, want cancelled", run.Status)
	}
	want := []string{"✓ simulator result", "⏹ Run cancelled by user"}
	if !reflect.DeepEqual(run.Log, want) {
		t.Errorf("log = %q, want %q", run.Log, want)
	}
	if run.FinishedAt == nil {
		t.Error("finished_at not set")
	}
}

func TestRunWithoutActions(t *testing.T) {
	tests := []struct {
		name  string
		steps []macro.Step
	}{
		{"no steps", nil},
		{"trigger only", []macro.Step{{ID: "t1", Kind: macro.KindTrigger, Title: "Time Trigger"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, sp := newRouter(ModeAndroid)
			e := newTestEngine(t, r, Config{})

			id, err := e.StartRun(context.Background(), &macro.Macro{ID: "noop", Name: "Noop", Steps: tt.steps})
			if err != nil {
				t.Fatalf("StartRun: %v", err)
			}
			run := waitRun(t, e, id)
			if run.Status != StatusCompleted || run.Progress != 100 {
				t.Errorf("status = %q progress = %d", run.Status, run.Progress)
			}
			if run.FinishedAt == nil {
				t.Error("finished_at not set")
			}
			if run.TotalSteps != len(tt.steps) || len(run.Log) != len(tt.steps) {
				t.Errorf("total = %d log = %q", run.TotalSteps, run.Log)
			}
			if n := sp.sim.count() + sp.web.count() + sp.native.count(); n != 0 {
				t.Errorf("backend calls = %d, want 0", n)
			}
		})
	}
}

func TestFinishedRunsCappedWithoutStore(t *testing.T) {
	r, _ := newRouter(ModeDemo)
	e := newTestEngine(t, r, Config{}, WithRetainedRuns(2))

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := e.StartRun(context.Background(), threeStepMacro())
		if err != nil {
			t.Fatal(err)
		}
		waitRun(t, e, id)
		ids = append(ids, id)
	}

	if _, err := e.GetRunStatus(ids[0]); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("oldest run err = %v, want ErrRunNotFound", err)
	}
	runs, err := e.ListRuns("")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("got %d runs, want 2", len(runs))
	}
}

func TestCancelRunUnknownOrFinished(t *testing.T) {
	r, _ := newRouter(ModeDemo)
	e := newTestEngine(t, r, Config{})

	if e.CancelRun("nope") {
		t.Error("CancelRun(unknown) = true")
	}
	id, err := e.StartRun(context.Background(), threeStepMacro())
	if err != nil {
		t.Fatal(err)
	}
	waitRun(t, e, id)
	if e.CancelRun(id) {
		t.Error("CancelRun(finished) = true")
	}
	run, _ := e.GetRunStatus(id)
	if run.Status != StatusCompleted {
		t.Errorf("finished run changed to %q", run.Status)
	}
}

func TestGetRunStatusIdempotent(t *testing.T) {
	sim := newBlockingSpy("simulator")
	r := NewRouter(ModeDemo, sim, newSpy("web", true), newSpy("native", true), testLogger())
	e := newTestEngine(t, r, Config{})

	id, err := e.StartRun(context.Background(), threeStepMacro())
	if err != nil {
		t.Fatal(err)
	}
	<-sim.started

	a, err := e.GetRunStatus(id)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.GetRunStatus(id)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("snapshots differ:\n%+v\n%+v", a, b)
	}
	if a.Status != StatusRunning || a.CurrentStep != 2 {
		t.Errorf("mid-run snapshot = %s step %d", a.Status, a.CurrentStep)
	}

	// Snapshots are copies.
	a.Log[0] = "tampered"
	c, _ := e.GetRunStatus(id)
	if c.Log[0] == "tampered" {
		t.Error("snapshot shares log with the run")
	}

	close(sim.release)
	waitRun(t, e, id)
}

func TestGetRunStatusNotFound(t *testing.T) {
	r, _ := newRouter(ModeDemo)
	e := newTestEngine(t, r, Config{})
	if _, err := e.GetRunStatus("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestFailuresContinueByDefault(t *testing.T) {
	r, sp := newRouter(ModeWeb)
	sp.web.result = backend.Result{Message: "nope", Kind: backend.KindUnsupported, Backend: "web"}
	e := newTestEngine(t, r, Config{})

	id, _ := e.StartRun(context.Background(), threeStepMacro())
	run := waitRun(t, e, id)
	if run.Status != StatusCompleted {
		t.Errorf("status = %q", run.Status)
	}
	if sp.web.count() != 2 {
		t.Errorf("web calls = %d, want 2", sp.web.count())
	}
	if run.Log[1] != "✗ nope" || run.Log[2] != "✗ nope" {
		t.Errorf("log = %q", run.Log)
	}
	if !strings.Contains(run.Summary, "0 succeeded, 2 failed, 1 skipped") {
		t.Errorf("summary = %q", run.Summary)
	}
}

func TestFailFast(t *testing.T) {
	r, sp := newRouter(ModeWeb)
	sp.web.result = backend.Result{Message: "nope", Backend: "web"}
	e := newTestEngine(t, r, Config{FailFast: true})

	id, _ := e.StartRun(context.Background(), threeStepMacro())
	run := waitRun(t, e, id)
	if run.Status != StatusFailed {
		t.Fatalf("status = %q", run.Status)
	}
	if run.Error != "nope" {
		t.Errorf("error = %q", run.Error)
	}
	if sp.web.count() != 1 {
		t.Errorf("web calls = %d, want 1", sp.web.count())
	}
}

func TestConditionNotMetStopsRun(t *testing.T) {
	r, sp := newRouter(ModeDemo)
	var seen condition.Env
	cond := condition.Func(func(_ context.Context, _ macro.Step, env condition.Env) (bool, error) {
		seen = env
		return false, nil
	})
	e := newTestEngine(t, r, Config{Conditions: cond})

	m := threeStepMacro()
	m.Steps[0] = macro.Step{ID: "c", Kind: macro.KindCondition, Title: "Battery above 50%"}
	id, _ := e.StartRun(context.Background(), m)
	run := waitRun(t, e, id)

	if run.Status != StatusCompleted {
		t.Errorf("status = %q", run.Status)
	}
	if len(run.Log) != 1 || !strings.Contains(run.Log[0], "condition not met") {
		t.Errorf("log = %q", run.Log)
	}
	if sp.sim.count() != 0 {
		t.Error("actions executed after unmet condition")
	}
	if seen.MacroID != "m1" || seen.Mode != "demo" || seen.Now.IsZero() {
		t.Errorf("env = %+v", seen)
	}
}

func TestConditionErrorFailsRun(t *testing.T) {
	r, _ := newRouter(ModeDemo)
	cond := condition.Func(func(context.Context, macro.Step, condition.Env) (bool, error) {
		return false, errors.New("syntax error")
	})
	e := newTestEngine(t, r, Config{Conditions: cond})

	m := threeStepMacro()
	m.Steps[0] = macro.Step{ID: "c", Kind: macro.KindCondition, Title: "Broken"}
	id, _ := e.StartRun(context.Background(), m)
	run := waitRun(t, e, id)
	if run.Status != StatusFailed {
		t.Errorf("status = %q", run.Status)
	}
	if !strings.Contains(run.Error, "syntax error") {
		t.Errorf("error = %q", run.Error)
	}
}

func TestStartRunRejectsInvalidMacro(t *testing.T) {
	r, _ := newRouter(ModeDemo)
	e := newTestEngine(t, r, Config{})

	if _, err := e.StartRun(context.Background(), nil); err == nil {
		t.Error("nil macro accepted")
	}
	if _, err := e.StartRun(context.Background(), &macro.Macro{ID: "x"}); err == nil {
		t.Error("macro without name accepted")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.StartRun(ctx, threeStepMacro()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestStartRunSameMacroTwice(t *testing.T) {
	sim := newBlockingSpy("simulator")
	r := NewRouter(ModeDemo, sim, newSpy("web", true), newSpy("native", true), testLogger())
	e := newTestEngine(t, r, Config{})

	id, err := e.StartRun(context.Background(), threeStepMacro())
	if err != nil {
		t.Fatal(err)
	}
	<-sim.started
	if _, err := e.StartRun(context.Background(), threeStepMacro()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("err = %v, want ErrRunInProgress", err)
	}
	close(sim.release)
	waitRun(t, e, id)

	id2, err := e.StartRun(context.Background(), threeStepMacro())
	if err != nil {
		t.Fatalf("restart after finish: %v", err)
	}
	waitRun(t, e, id2)
}

func TestRunUsesCopyOfMacro(t *testing.T) {
	sim := newBlockingSpy("simulator")
	r := NewRouter(ModeDemo, sim, newSpy("web", true), newSpy("native", true), testLogger())
	e := newTestEngine(t, r, Config{})

	m := threeStepMacro()
	id, _ := e.StartRun(context.Background(), m)
	<-sim.started
	m.Steps[2].Title = "Make Coffee"
	close(sim.release)

	run := waitRun(t, e, id)
	if run.Steps[2].Title != "Send Notification" {
		t.Errorf("run saw caller mutation: %q", run.Steps[2].Title)
	}
}

func TestModeChangeAppliesToNextStep(t *testing.T) {
	sim := newBlockingSpy("simulator")
	web := newSpy("web", true)
	r := NewRouter(ModeDemo, sim, web, newSpy("native", true), testLogger())
	e := newTestEngine(t, r, Config{})

	var modes []Mode
	e.Events().On(func(ev Event) { modes = append(modes, ev.Data.(Mode)) }, EventModeChanged)

	id, _ := e.StartRun(context.Background(), threeStepMacro())
	<-sim.started
	if err := e.SetMode(ModeWeb); err != nil {
		t.Fatal(err)
	}
	close(sim.release)
	waitRun(t, e, id)

	if sim.count() != 1 || web.count() != 1 {
		t.Errorf("sim=%d web=%d, want 1 each", sim.count(), web.count())
	}
	if e.GetMode() != ModeWeb {
		t.Errorf("mode = %q", e.GetMode())
	}
	if len(modes) != 1 || modes[0] != ModeWeb {
		t.Errorf("mode events = %v", modes)
	}
}

func TestRunEvents(t *testing.T) {
	r, _ := newRouter(ModeDemo)
	bus := NewEventBus(testLogger())
	e := newTestEngine(t, r, Config{}, WithEventBus(bus))

	var mu sync.Mutex
	counts := make(map[string]int)
	bus.OnAll(func(ev Event) {
		mu.Lock()
		counts[ev.Type]++
		mu.Unlock()
	})

	id, _ := e.StartRun(context.Background(), threeStepMacro())
	waitRun(t, e, id)

	mu.Lock()
	defer mu.Unlock()
	if counts[EventRunStarted] != 1 || counts[EventRunStep] != 3 || counts[EventRunFinished] != 1 {
		t.Errorf("event counts = %v", counts)
	}
}

func TestRunPersistence(t *testing.T) {
	db, err := store.NewBoltStore(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	m := threeStepMacro()
	if err := db.SaveMacro(m); err != nil {
		t.Fatal(err)
	}

	r, _ := newRouter(ModeDemo)
	e := newTestEngine(t, r, Config{}, WithStore(db))

	id, _ := e.StartRun(context.Background(), m)
	run := waitRun(t, e, id)

	rec, err := db.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Status != string(StatusCompleted) || len(rec.Log) != 3 {
		t.Errorf("stored run = %+v", rec)
	}
	if got := FromRecord(rec); !reflect.DeepEqual(got.Log, run.Log) || got.Steps[1].Backend != "simulator" {
		t.Errorf("round trip = %+v", got)
	}

	saved, err := db.GetMacro("m1")
	if err != nil {
		t.Fatal(err)
	}
	if saved.RunCount != 1 || saved.LastRun.IsZero() {
		t.Errorf("run count = %d, last run = %v", saved.RunCount, saved.LastRun)
	}

	runs, err := e.ListRuns("m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != id {
		t.Errorf("ListRuns = %+v", runs)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	r, _ := newRouter(ModeDemo)
	e := newTestEngine(t, r, Config{})
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	tick := 0
	e.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, _ := e.StartRun(context.Background(), threeStepMacro())
	waitRun(t, e, first)
	other := threeStepMacro()
	other.ID = "m2"
	second, _ := e.StartRun(context.Background(), other)
	waitRun(t, e, second)

	runs, err := e.ListRuns("")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != second || runs[1].ID != first {
		t.Errorf("order = %v", []string{runs[0].ID, runs[1].ID})
	}
	only, _ := e.ListRuns("m2")
	if len(only) != 1 || only[0].ID != second {
		t.Errorf("filtered = %+v", only)
	}
}
