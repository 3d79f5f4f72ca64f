package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dunamismax/derivatives/internal/domain"
)

var ErrMissingID = errors.New("invocation record has no id")

type MemoryOutcomeStore struct {
	mu      sync.RWMutex
	records map[string]domain.InvocationRecord
}

func NewMemoryOutcomeStore() *MemoryOutcomeStore {
	return &MemoryOutcomeStore{
		records: make(map[string]domain.InvocationRecord),
	}
}

func (s *MemoryOutcomeStore) Save(ctx context.Context, rec domain.InvocationRecord) error {
	if rec.ID == "" {
		return ErrMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Versions = append([]domain.VersionOutcome(nil), rec.Versions...)
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryOutcomeStore) Get(ctx context.Context, id string) (domain.InvocationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *MemoryOutcomeStore) ListBySource(ctx context.Context, bucket, key string, limit int) ([]domain.InvocationRecord, error) {
	s.mu.RLock()
	var out []domain.InvocationRecord
	for _, rec := range s.records {
		if rec.Bucket == bucket && rec.Key == key {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
