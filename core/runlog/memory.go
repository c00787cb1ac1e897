package runlog

import (
	"context"
	"sync"
)

// MemoryStore keeps records in memory. Records are lost on exit.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []RunRecord
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(_ context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []RunRecord
	for _, r := range s.recs {
		if q.match(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

func (s *MemoryStore) Close() error { return nil }
