package document

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kycflow/internal/cases/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
)

// InMemoryStore keeps document metadata in a map.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*models.Document
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{docs: make(map[id.DocumentID]*models.Document)}
}

func clone(d *models.Document) *models.Document {
	cp := *d
	cp.ExtractedData = make(map[string]string, len(d.ExtractedData))
	for k, v := range d.ExtractedData {
		cp.ExtractedData[k] = v
	}
	if d.SupersededBy != nil {
		s := *d.SupersededBy
		cp.SupersededBy = &s
	}
	return &cp
}

func (s *InMemoryStore) Create(_ context.Context, d *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[d.ID]; ok {
		return fmt.Errorf("document %s: %w", d.ID, sentinel.ErrConflict)
	}
	s.docs[d.ID] = clone(d)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[docID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", docID, sentinel.ErrNotFound)
	}
	return clone(d), nil
}

// FindByIDs returns documents in the order requested; any missing ID fails the
// whole lookup.
func (s *InMemoryStore) FindByIDs(ctx context.Context, ids []id.DocumentID) ([]*models.Document, error) {
	out := make([]*models.Document, 0, len(ids))
	for _, docID := range ids {
		d, err := s.FindByID(ctx, docID)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ListByCase returns every document ever attached to the case, superseded ones
// included, oldest first.
func (s *InMemoryStore) ListByCase(_ context.Context, caseID id.CaseID) ([]*models.Document, error) {
	s.mu.RLock()
	var out []*models.Document
	for _, d := range s.docs {
		if d.CaseID == caseID {
			out = append(out, clone(d))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (s *InMemoryStore) Save(_ context.Context, d *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[d.ID]; !ok {
		return fmt.Errorf("document %s: %w", d.ID, sentinel.ErrNotFound)
	}
	s.docs[d.ID] = clone(d)
	return nil
}
