// Package checkpoint implements the Checkpoint Registry and Job State
// Machine (component J): durable per-(job, phase) progress records that
// let analyze/cluster/normalize/materialize resume after a crash without
// reprocessing completed blocks, plus an append-only event log and
// current-status row per job.
package checkpoint

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gurre/csvfusion/model"
)

// Store is the contract for saving and loading a phase checkpoint. Save
// must be safe to call repeatedly with the same JobID/Phase; the latest
// call wins.
type Store interface {
	Load(ctx context.Context, jobID, phase string) (model.CheckpointRecord, error)
	Save(ctx context.Context, rec model.CheckpointRecord) error
}

// FileStore implements Store on the local filesystem. Saves are
// write-temp-then-rename so a crash mid-write never leaves a corrupt,
// partially-written checkpoint file behind; Load always sees either the
// previous complete record or the new one, never a torn write.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at a file:// URI. The path
// must be absolute and is cleaned to prevent path traversal.
func NewFileStore(uri string) (*FileStore, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid file URI: %w", err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("invalid file URI scheme: %s", u.Scheme)
	}

	cleanPath := filepath.Clean(u.Path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("checkpoint path must be absolute: %s", cleanPath)
	}

	if err := os.MkdirAll(cleanPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	return &FileStore{dir: cleanPath}, nil
}

func (f *FileStore) path(jobID, phase string) string {
	return filepath.Join(f.dir, fmt.Sprintf("%s.%s.json", jobID, phase))
}

// Load returns the zero-value record (UpdatedAt zero) if no checkpoint
// has been saved yet for (jobID, phase).
func (f *FileStore) Load(ctx context.Context, jobID, phase string) (model.CheckpointRecord, error) {
	data, err := os.ReadFile(f.path(jobID, phase))
	if err != nil {
		if os.IsNotExist(err) {
			return model.CheckpointRecord{JobID: jobID, Phase: phase}, nil
		}
		return model.CheckpointRecord{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var rec model.CheckpointRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.CheckpointRecord{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return rec, nil
}

// Save writes rec to a temp file and renames it into place.
func (f *FileStore) Save(ctx context.Context, rec model.CheckpointRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	final := f.path(rec.JobID, rec.Phase)
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to rename checkpoint into place: %w", err)
	}
	return nil
}

// transitions enumerates the legal edges of the job state machine:
// PENDING -> ANALYZING -> MAPPING -> MATERIALIZING -> VALIDATING -> DONE,
// with FAILED and CANCELLED reachable from any non-terminal state.
var transitions = map[model.JobState][]model.JobState{
	model.JobPending:       {model.JobAnalyzing, model.JobFailed, model.JobCancelled},
	model.JobAnalyzing:     {model.JobMapping, model.JobFailed, model.JobCancelled},
	model.JobMapping:       {model.JobMaterializing, model.JobFailed, model.JobCancelled},
	model.JobMaterializing: {model.JobValidating, model.JobFailed, model.JobCancelled},
	model.JobValidating:    {model.JobDone, model.JobFailed, model.JobCancelled},
}

func isTerminal(s model.JobState) bool {
	return s == model.JobDone || s == model.JobFailed || s == model.JobCancelled
}

// canTransition reports whether from -> to is a legal edge.
func canTransition(from, to model.JobState) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// JobLog is an append-only event log plus current-status row for one
// job, guarded against concurrent phase goroutines racing on status
// updates.
type JobLog struct {
	mu     sync.Mutex
	status model.JobStatus
	events []model.JobEvent
}

// NewJobLog creates a job in PENDING state.
func NewJobLog(jobID string, now time.Time) *JobLog {
	return &JobLog{
		status: model.JobStatus{
			JobID:     jobID,
			State:     model.JobPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Transition moves the job to state, appending an event. It refuses
// illegal transitions (e.g. DONE -> ANALYZING) and returns an error,
// leaving the state unchanged, once the job has reached a terminal state,
// since a failed or cancelled job must not be resurrected by a
// late-arriving phase update.
func (j *JobLog) Transition(state model.JobState, detail string, now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if isTerminal(j.status.State) {
		return fmt.Errorf("job %s already in terminal state %s", j.status.JobID, j.status.State)
	}
	if !canTransition(j.status.State, state) {
		return fmt.Errorf("illegal job transition %s -> %s", j.status.State, state)
	}

	j.status.State = state
	j.status.Detail = detail
	j.status.UpdatedAt = now
	if state == model.JobFailed {
		j.status.LastError = detail
	}
	j.events = append(j.events, model.JobEvent{
		JobID:  j.status.JobID,
		State:  state,
		Detail: detail,
		At:     now,
	})
	return nil
}

// ResumeJobLog reconstructs a JobLog from a previously persisted status
// row, so a later CLI verb in the same job can continue the state
// machine a prior process started.
func ResumeJobLog(status model.JobStatus) *JobLog {
	return &JobLog{status: status}
}

// Status returns a copy of the current status row.
func (j *JobLog) Status() model.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Events returns a copy of the event log.
func (j *JobLog) Events() []model.JobEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]model.JobEvent, len(j.events))
	copy(out, j.events)
	return out
}
