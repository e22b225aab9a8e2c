package cases

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kycflow/internal/cases/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
)

// InMemoryStore keeps cases in a map. Callers receive clones, so mutations are
// visible only after Save.
type InMemoryStore struct {
	mu    sync.RWMutex
	cases map[id.CaseID]*models.Case
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{cases: make(map[id.CaseID]*models.Case)}
}

func (s *InMemoryStore) Create(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[c.ID]; ok {
		return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrConflict)
	}
	c.Version = 1
	s.cases[c.ID] = c.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, caseID id.CaseID) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", caseID, sentinel.ErrNotFound)
	}
	return c.Clone(), nil
}

// Save replaces the stored case when its version matches, then bumps the
// version on both copies.
func (s *InMemoryStore) Save(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.cases[c.ID]
	if !ok {
		return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrNotFound)
	}
	if existing.Version != c.Version {
		return fmt.Errorf("case %s version %d: %w", c.ID, c.Version, sentinel.ErrConflict)
	}
	c.Version++
	s.cases[c.ID] = c.Clone()
	return nil
}

// List returns cases newest first.
func (s *InMemoryStore) List(_ context.Context, f Filter) ([]*models.Case, error) {
	s.mu.RLock()
	out := make([]*models.Case, 0, len(s.cases))
	for _, c := range s.cases {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

func (s *InMemoryStore) LatestForCustomer(_ context.Context, customerID id.CustomerID) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Case
	for _, c := range s.cases {
		if c.CustomerID != customerID {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("customer %s: %w", customerID, sentinel.ErrNotFound)
	}
	return latest.Clone(), nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Status]int, len(models.AllStatuses))
	for _, st := range models.AllStatuses {
		counts[st] = 0
	}
	for _, c := range s.cases {
		counts[c.Status]++
	}
	return counts, nil
}
