package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/installer/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestStoreLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "history.db")
	ctx := context.Background()

	store, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.CreateRun(ctx, &Run{ID: "r", Kind: RunKindInstall, Status: RunStatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	// Migrating again is a no-op and keeps the data.
	store, err = Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store.Close()
	if _, err := store.GetRun(ctx, "r"); err != nil {
		t.Errorf("GetRun() after reopen error = %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("NewSQLiteStore() accepted an empty path")
	}
	store, _ := NewSQLiteStore(Config{Path: ":memory:"})
	if err := store.Migrate(context.Background()); err == nil {
		t.Error("Migrate() before Init() succeeded")
	}
}

func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	run := &Run{
		ID:          "run-001",
		Kind:        RunKindInstall,
		Planner:     "linux",
		Version:     "0.1.0",
		ReceiptPath: "/nix/receipt.json",
		Status:      RunStatusRunning,
		TotalSteps:  7,
		StartedAt:   started,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Planner != "linux" || got.TotalSteps != 7 || got.Status != RunStatusRunning || got.CompletedAt != nil {
		t.Errorf("GetRun() = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}

	msg := "provision_nix: download failed"
	if err := store.FinishRun(ctx, run.ID, RunStatusFailed, started.Add(90*time.Second), &msg); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	got, err = store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Status != RunStatusFailed || got.Error == nil || *got.Error != msg {
		t.Errorf("finished run = %+v", got)
	}
	if got.Duration() != 90*time.Second {
		t.Errorf("Duration() = %v", got.Duration())
	}

	if err := store.FinishRun(ctx, "missing", RunStatusSucceeded, time.Now(), nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun(missing) error = %v", err)
	}
	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(missing) error = %v", err)
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	if err := store.DeleteRun(ctx, run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteRun() error = %v", err)
	}
}

func TestListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"old", "middle", "new"} {
		run := &Run{ID: id, Kind: RunKindInstall, Status: RunStatusSucceeded, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun(%s) error = %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "middle" {
		t.Errorf("ListRuns(2, 0) = %v", runIDs(runs))
	}

	runs, err = store.ListRuns(ctx, 10, 2)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "old" {
		t.Errorf("ListRuns(10, 2) = %v", runIDs(runs))
	}
}

func runIDs(runs []*Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

func TestSteps(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := store.CreateRun(ctx, &Run{ID: "run", Kind: RunKindUninstall, Status: RunStatusRunning, StartedAt: now}); err != nil {
		t.Fatal(err)
	}

	for _, index := range []int{1, 0} {
		if err := store.StartStep(ctx, &Step{RunID: "run", Index: index, Tag: "remove_directory", StartedAt: now}); err != nil {
			t.Fatalf("StartStep(%d) error = %v", index, err)
		}
	}
	done := now.Add(1500 * time.Millisecond)
	if err := store.FinishStep(ctx, &Step{RunID: "run", Index: 0, Outcome: "succeeded", CompletedAt: &done, Duration: 1500 * time.Millisecond}); err != nil {
		t.Fatalf("FinishStep() error = %v", err)
	}
	if err := store.FinishStep(ctx, &Step{RunID: "run", Index: 9, Outcome: "failed"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishStep(unstarted) error = %v", err)
	}
	if err := store.StartStep(ctx, &Step{RunID: "missing", Index: 0, Tag: "x", StartedAt: now}); err == nil {
		t.Error("StartStep() accepted a step of an unknown run")
	}

	steps, err := store.ListSteps(ctx, "run")
	if err != nil {
		t.Fatalf("ListSteps() error = %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps", len(steps))
	}
	if steps[0].Index != 0 || steps[0].Outcome != "succeeded" || steps[0].Duration != 1500*time.Millisecond || steps[0].CompletedAt == nil {
		t.Errorf("step 0 = %+v", steps[0])
	}
	if steps[1].Outcome != "running" || steps[1].CompletedAt != nil {
		t.Errorf("step 1 = %+v", steps[1])
	}

	if err := store.DeleteRun(ctx, "run"); err != nil {
		t.Fatal(err)
	}
	steps, err = store.ListSteps(ctx, "run")
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 0 {
		t.Errorf("steps survived their run: %+v", steps)
	}
}

func TestRecorder(t *testing.T) {
	store := setupTestStore(t)
	rec := NewRecorder(store)
	ctx := context.Background()
	now := time.Now()

	ev := func(typ engine.EventType, index int, outcome engine.Outcome, errMsg string) *engine.Event {
		return &engine.Event{
			Type:        typ,
			Timestamp:   now.Add(time.Duration(index) * time.Second),
			RunID:       "run-1",
			Stage:       engine.StageInstall,
			Planner:     "linux",
			Version:     engine.Version,
			ReceiptPath: "/nix/receipt.json",
			Index:       index,
			Total:       2,
			Tag:         "create_directory",
			Synopsis:    "Create directory `/nix`",
			Outcome:     outcome,
			Error:       errMsg,
			Duration:    time.Second,
		}
	}

	events := []*engine.Event{
		ev(engine.EventTypeRunStarted, 0, "", ""),
		ev(engine.EventTypeStepStarted, 0, "", ""),
		ev(engine.EventTypeStepFinished, 0, engine.OutcomeSkipped, ""),
		ev(engine.EventTypeStepStarted, 1, "", ""),
		ev(engine.EventTypeStepFinished, 1, engine.OutcomeFailed, "boom"),
		ev(engine.EventTypeRunFinished, 2, engine.OutcomeFailed, "boom"),
	}
	for _, e := range events {
		if err := rec.HandleEvent(ctx, e); err != nil {
			t.Fatalf("HandleEvent(%s) error = %v", e.Type, err)
		}
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Kind != RunKindInstall || run.Status != RunStatusFailed || run.TotalSteps != 2 || *run.Error != "boom" {
		t.Errorf("run = %+v", run)
	}

	steps, err := store.ListSteps(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListSteps() error = %v", err)
	}
	if len(steps) != 2 || steps[0].Outcome != "skipped" || steps[1].Outcome != "failed" || *steps[1].Error != "boom" {
		t.Errorf("steps = %+v %+v", steps[0], steps[1])
	}
}

func TestRunStatus(t *testing.T) {
	tests := map[engine.Outcome]RunStatus{
		engine.OutcomeSucceeded: RunStatusSucceeded,
		engine.OutcomeCancelled: RunStatusCancelled,
		engine.OutcomeFailed:    RunStatusFailed,
	}
	for outcome, want := range tests {
		if got := runStatus(outcome); got != want {
			t.Errorf("runStatus(%s) = %s, want %s", outcome, got, want)
		}
	}
}
