package checkpoint

import (
	"context"
	"sync"

	"github.com/gurre/csvfusion/model"
)

// MemoryStore implements Store in memory, for tests that don't need
// resume across process restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.CheckpointRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.CheckpointRecord)}
}

func memKey(jobID, phase string) string {
	return jobID + "/" + phase
}

// Load returns the zero-value record if none has been saved yet.
func (s *MemoryStore) Load(ctx context.Context, jobID, phase string) (model.CheckpointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[memKey(jobID, phase)]; ok {
		return rec, nil
	}
	return model.CheckpointRecord{JobID: jobID, Phase: phase}, nil
}

// Save stores rec, replacing any prior record for (JobID, Phase).
func (s *MemoryStore) Save(ctx context.Context, rec model.CheckpointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[memKey(rec.JobID, rec.Phase)] = rec
	return nil
}
