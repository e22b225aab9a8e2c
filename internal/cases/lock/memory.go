package lock

import (
	"context"
	"sync"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// numShards spreads the held-set across independent mutexes so unrelated
// cases do not contend.
const numShards = 128

type shard struct {
	mu   sync.Mutex
	held map[id.CaseID]struct{}
}

// Memory is an in-process Locker. Only valid for a single server instance.
type Memory struct {
	shards [numShards]shard
}

func NewMemory() *Memory {
	m := &Memory{}
	for i := range m.shards {
		m.shards[i].held = make(map[id.CaseID]struct{})
	}
	return m
}

func (m *Memory) TryAcquire(ctx context.Context, caseID id.CaseID) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "lock aborted: context cancelled")
	}
	s := &m.shards[shardFor(caseID)]
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.held[caseID]; busy {
		return nil, ErrInProgress(caseID)
	}
	s.held[caseID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.held, caseID)
			s.mu.Unlock()
		})
	}, nil
}

// Held reports whether caseID is currently locked.
func (m *Memory) Held(caseID id.CaseID) bool {
	s := &m.shards[shardFor(caseID)]
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.held[caseID]
	return ok
}

// shardFor hashes the case ID with FNV-1a.
func shardFor(caseID id.CaseID) int {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for _, b := range caseID {
		h ^= uint32(b)
		h *= fnvPrime
	}
	return int(h % numShards)
}
