package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"gramforge/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	individuals map[string]model.IndividualRecord
	runs        map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.individuals = make(map[string]model.IndividualRecord)
	s.runs = make(map[string]model.RunRecord)
	return nil
}

func (s *MemoryStore) SaveIndividual(_ context.Context, record model.IndividualRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return err
	}
	s.individuals[record.ID] = record
	return nil
}

func (s *MemoryStore) GetIndividual(_ context.Context, id string) (model.IndividualRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.individuals[id]
	return record, ok, nil
}

func (s *MemoryStore) ListIndividuals(_ context.Context, runID string) ([]model.IndividualRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.IndividualRecord, 0)
	for _, record := range s.individuals {
		if record.RunID == runID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index == out[j].Index {
			return out[i].ID < out[j].ID
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return err
	}
	run.IndividualIDs = append([]string(nil), run.IndividualIDs...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run.IndividualIDs = append([]string(nil), run.IndividualIDs...)
	return run, true, nil
}
