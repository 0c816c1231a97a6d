package main

import (
	"context"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/gurre/csvfusion/checkpoint"
	"github.com/gurre/csvfusion/config"
	"github.com/gurre/csvfusion/model"
	"github.com/gurre/csvfusion/pipelineerr"
	"github.com/gurre/csvfusion/store"
)

// resolveProfile accepts the conventional profile names or a path to a
// JSON profile file holding a custom numeric combination.
func resolveProfile(name string) (config.Profile, error) {
	switch name {
	case "", "low_memory":
		return config.LowMemory(), nil
	case "workstation":
		return config.Workstation(), nil
	default:
		p, err := config.Load(name)
		if err != nil {
			return config.Profile{}, pipelineerr.New(pipelineerr.CodeConfigError, "load profile", err)
		}
		return p, nil
	}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipelineerr.New(pipelineerr.CodeIOError, fmt.Sprintf("read %s", path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return pipelineerr.New(pipelineerr.CodeIOError, fmt.Sprintf("decode %s", path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return pipelineerr.New(pipelineerr.CodeIOError, fmt.Sprintf("encode %s", path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return pipelineerr.New(pipelineerr.CodeIOError, fmt.Sprintf("write %s", path), err)
	}
	return nil
}

// resolveJobID returns id unchanged if non-empty, otherwise mints a new
// one — the first verb in a job's lifecycle (analyze) is normally the one
// that generates it; later verbs pass it through explicitly.
func resolveJobID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// loadOrStartJobLog resumes a job's state machine from its last persisted
// status row, or starts a fresh PENDING job if none exists yet.
func loadOrStartJobLog(ctx context.Context, st *store.Store, jobID string) (*checkpoint.JobLog, error) {
	status, ok, err := st.GetJobStatus(ctx, jobID)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.CodeStorageFailure, "load job status", err)
	}
	if !ok {
		return checkpoint.NewJobLog(jobID, time.Now()), nil
	}
	return checkpoint.ResumeJobLog(status), nil
}

// transitionJob moves log to state, persisting both the status row and
// the event it appends; a transition failure or a storage failure while
// persisting it both surface as pipeline errors rather than silently
// dropping the job's history.
func transitionJob(ctx context.Context, st *store.Store, log *checkpoint.JobLog, state model.JobState, detail string) error {
	if err := log.Transition(state, detail, time.Now()); err != nil {
		return pipelineerr.New(pipelineerr.CodeStorageFailure, "job transition", err)
	}
	if err := st.PutJobStatus(ctx, log.Status()); err != nil {
		return pipelineerr.New(pipelineerr.CodeStorageFailure, "persist job status", err)
	}
	events := log.Events()
	if len(events) > 0 {
		if err := st.AppendJobEvent(ctx, events[len(events)-1]); err != nil {
			return pipelineerr.New(pipelineerr.CodeStorageFailure, "append job event", err)
		}
	}
	return nil
}
