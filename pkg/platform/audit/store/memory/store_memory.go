package memory

import (
	"context"
	"sync"

	id "kycflow/pkg/domain"
	audit "kycflow/pkg/platform/audit"
)

// InMemoryStore keeps entries per case in append order.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.CaseID][]audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.CaseID][]audit.Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.CaseID] = append(s.entries[entry.CaseID], entry)
	return nil
}

// History returns entries in append order, strictly after q.Since when set.
func (s *InMemoryStore) History(_ context.Context, caseID id.CaseID, q audit.Query) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]audit.Entry, 0, len(s.entries[caseID]))
	for _, e := range s.entries[caseID] {
		if !q.Since.IsZero() && !e.Timestamp.After(q.Since) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}
