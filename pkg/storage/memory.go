package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MemoryStore keeps run records in memory. It is safe for concurrent use.
// Records are lost when the process exits; use SQLiteStore or RedisStore to
// keep results across invocations.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]RunRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string][]RunRecord),
	}
}

// Put appends a run record to its experiment.
func (s *MemoryStore) Put(ctx context.Context, run RunRecord) error {
	if run.Experiment == "" {
		return errors.New("run experiment cannot be empty")
	}
	if !ValidExperiment(run.Experiment) {
		return fmt.Errorf("%w: %q", ErrInvalidExperiment, run.Experiment)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.Experiment] = append(s.runs[run.Experiment], run)
	return nil
}

// GetLatest returns the most recently stored run of an experiment.
func (s *MemoryStore) GetLatest(ctx context.Context, experiment string) (RunRecord, bool, error) {
	select {
	case <-ctx.Done():
		return RunRecord{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := s.runs[experiment]
	if len(runs) == 0 {
		return RunRecord{}, false, nil
	}
	return runs[len(runs)-1], true, nil
}

// List returns all runs of an experiment in insertion order.
func (s *MemoryStore) List(ctx context.Context, experiment string) ([]RunRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunRecord, len(s.runs[experiment]))
	copy(out, s.runs[experiment])
	return out, nil
}

// Ping only fails once ctx is done; memory is always reachable.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the total number of stored runs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, runs := range s.runs {
		n += len(runs)
	}
	return n
}
