package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"macro-go-engine/internal/macro"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testMacro(id string) *macro.Macro {
	return &macro.Macro{
		ID:          id,
		Name:        "Bedtime Routine",
		Category:    "sleep",
		Permissions: []string{"android.permission.ACCESS_NOTIFICATION_POLICY"},
		Enabled:     true,
		Steps: []macro.Step{
			{ID: "s1", Kind: macro.KindTrigger, Title: "Time Trigger", Parameters: map[string]any{"time": "22:00"}},
			{ID: "s2", Kind: macro.KindAction, Title: "Enable Do Not Disturb"},
		},
		CreatedAt: time.Now().Truncate(time.Millisecond),
	}
}

func TestSaveAndGetMacro(t *testing.T) {
	s := newTestStore(t)

	m := testMacro("bedtime")
	if err := s.SaveMacro(m); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMacro("bedtime")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != m.Name {
		t.Errorf("name = %q, want %q", got.Name, m.Name)
	}
	if len(got.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(got.Steps))
	}
	if got.Steps[0].Kind != macro.KindTrigger {
		t.Errorf("step kind = %q, want trigger", got.Steps[0].Kind)
	}
	if got.Steps[0].Parameters["time"] != "22:00" {
		t.Errorf("params = %v", got.Steps[0].Parameters)
	}
	if len(got.Permissions) != 1 {
		t.Errorf("permissions = %v", got.Permissions)
	}
}

func TestSaveMacroEmptyID(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveMacro(&macro.Macro{Name: "x"}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestGetMacroNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetMacro("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteMacro(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveMacro(testMacro("bedtime")); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteMacro("bedtime"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetMacro("bedtime"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after delete", err)
	}
	if err := s.DeleteMacro("bedtime"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestListMacros(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveMacro(testMacro(id)); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListMacros()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("list count = %d, want 3", len(list))
	}
}

func TestIncrementRunCount(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveMacro(testMacro("bedtime")); err != nil {
		t.Fatal(err)
	}
	at := time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if err := s.IncrementRunCount("bedtime", at); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetMacro("bedtime")
	if err != nil {
		t.Fatal(err)
	}
	if got.RunCount != 2 {
		t.Errorf("run_count = %d, want 2", got.RunCount)
	}
	if !got.LastRun.Equal(at) {
		t.Errorf("last_run = %v, want %v", got.LastRun, at)
	}

	if err := s.IncrementRunCount("missing", at); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	runs := []*Run{
		{ID: "r1", MacroID: "a", Status: "completed", StartedAt: base},
		{ID: "r2", MacroID: "b", Status: "failed", StartedAt: base.Add(time.Minute)},
		{ID: "r3", MacroID: "a", Status: "cancelled", StartedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range runs {
		if err := s.SaveRun(r); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListRuns("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "r3" || all[2].ID != "r1" {
		t.Fatalf("order = %v", runIDs(all))
	}

	forA, err := s.ListRuns("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(forA) != 2 || forA[0].ID != "r3" || forA[1].ID != "r1" {
		t.Errorf("runs for a = %v", runIDs(forA))
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStore(t)

	end := time.Now().Truncate(time.Millisecond)
	run := &Run{
		ID:         "r1",
		MacroID:    "bedtime",
		Mode:       "demo",
		Status:     "completed",
		TotalSteps: 2,
		Progress:   100,
		Log:        []string{"⏭ Time Trigger: skipped", "✓ Demo: Successfully executed Enable Do Not Disturb"},
		Steps:      []StepResult{{Index: 1, StepID: "s2", Success: true, Simulated: true}},
		FinishedAt: &end,
	}
	if err := s.SaveRun(run); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRun("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Log) != 2 {
		t.Errorf("log = %v", got.Log)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(end) {
		t.Errorf("finished_at = %v, want %v", got.FinishedAt, end)
	}
	if len(got.Steps) != 1 || !got.Steps[0].Simulated {
		t.Errorf("steps = %+v", got.Steps)
	}

	if _, err := s.GetRun("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveSetting("mode", "hybrid"); err != nil {
		t.Fatal(err)
	}
	var mode string
	if err := s.GetSetting("mode", &mode); err != nil {
		t.Fatal(err)
	}
	if mode != "hybrid" {
		t.Errorf("mode = %q, want hybrid", mode)
	}

	granted := []string{"android.permission.CAMERA"}
	if err := s.SaveSetting("permissions.granted", granted); err != nil {
		t.Fatal(err)
	}
	var got []string
	if err := s.GetSetting("permissions.granted", &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != granted[0] {
		t.Errorf("granted = %v", got)
	}

	if err := s.GetSetting("absent", &mode); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func runIDs(runs []*Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}
