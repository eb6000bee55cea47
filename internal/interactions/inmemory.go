package interactions

import (
	"context"
	"sync"
)

// InMemoryStore keeps records in process for local and test use.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, r Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r = stamp(r)
	r.ID = s.nextID
	s.records = append(s.records, r)
	return r.ID, nil
}

func (s *InMemoryStore) Recent(_ context.Context, customerID string, limit int) ([]Record, error) {
	limit = normalizeLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if customerID != "" && s.records[i].CustomerID != customerID {
			continue
		}
		out = append(out, s.records[i])
	}
	return out, nil
}

// Len reports how many records are stored.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
