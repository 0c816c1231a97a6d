package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gurre/csvfusion/model"
)

func TestMemoryStore_SaveLoad(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := model.CheckpointRecord{JobID: "job-1", Phase: "materialize", Payload: []byte(`{"a":1}`)}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	loaded, err := store.Load(ctx, "job-1", "materialize")
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if string(loaded.Payload) != `{"a":1}` {
		t.Errorf("payload mismatch: got %s", loaded.Payload)
	}
}

func TestMemoryStore_EmptyState(t *testing.T) {
	store := NewMemoryStore()
	rec, err := store.Load(context.Background(), "unknown", "materialize")
	if err != nil {
		t.Fatalf("failed to load empty state: %v", err)
	}
	if rec.Payload != nil {
		t.Errorf("expected nil payload for unknown job, got %v", rec.Payload)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	uri := "file://" + tmpDir

	store, err := NewFileStore(uri)
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	ctx := context.Background()
	rec := model.CheckpointRecord{JobID: "job-2", Phase: "analyze", Payload: []byte(`{"b":2}`), UpdatedAt: time.Now()}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	loaded, err := store.Load(ctx, "job-2", "analyze")
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if string(loaded.Payload) != `{"b":2}` {
		t.Errorf("payload mismatch: got %s", loaded.Payload)
	}
}

func TestFileStore_NonExistent(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFileStore("file://" + tmpDir)
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	rec, err := store.Load(context.Background(), "nope", "analyze")
	if err != nil {
		t.Fatalf("failed to load non-existent state: %v", err)
	}
	if rec.Payload != nil {
		t.Errorf("expected nil payload for non-existent checkpoint, got %v", rec.Payload)
	}
}

func TestFileStore_InvalidURI(t *testing.T) {
	testCases := []string{
		"s3://bucket/key",
		"http://example.com/file",
		"/path/without/scheme",
	}
	for _, uri := range testCases {
		t.Run(uri, func(t *testing.T) {
			if _, err := NewFileStore(uri); err == nil {
				t.Errorf("expected error for invalid file URI: %s", uri)
			}
		})
	}
}

func TestFileStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	nestedDir := filepath.Join(tmpDir, "nested", "dir")

	store, err := NewFileStore("file://" + nestedDir)
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	rec := model.CheckpointRecord{JobID: "job-3", Phase: "analyze"}
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}
}

func TestJobLog_LegalTransitions(t *testing.T) {
	now := time.Now()
	log := NewJobLog("job-4", now)

	steps := []model.JobState{model.JobAnalyzing, model.JobMapping, model.JobMaterializing, model.JobValidating, model.JobDone}
	for _, s := range steps {
		if err := log.Transition(s, "", now); err != nil {
			t.Fatalf("unexpected error transitioning to %s: %v", s, err)
		}
	}
	if log.Status().State != model.JobDone {
		t.Errorf("expected DONE, got %s", log.Status().State)
	}
	if len(log.Events()) != len(steps) {
		t.Errorf("expected %d events, got %d", len(steps), len(log.Events()))
	}
}

func TestJobLog_IllegalTransitionRejected(t *testing.T) {
	now := time.Now()
	log := NewJobLog("job-5", now)
	if err := log.Transition(model.JobMaterializing, "", now); err == nil {
		t.Error("expected error skipping ANALYZING/MAPPING")
	}
}

func TestJobLog_TerminalStateIsSticky(t *testing.T) {
	now := time.Now()
	log := NewJobLog("job-6", now)
	if err := log.Transition(model.JobAnalyzing, "", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := log.Transition(model.JobFailed, "disk full", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := log.Transition(model.JobAnalyzing, "", now); err == nil {
		t.Error("expected error resurrecting a failed job")
	}
	if log.Status().LastError != "disk full" {
		t.Errorf("expected LastError to be recorded, got %q", log.Status().LastError)
	}
}
