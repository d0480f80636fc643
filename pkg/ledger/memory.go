package ledger

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node
// deployments. Records live for the process lifetime.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []AlertRecord
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, rec AlertRecord) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.recs); n == 0 {
		rec.PrevHash = ChainSeed
	} else {
		rec.PrevHash = s.recs[n-1].RecordHash
	}
	rec.RecordHash = chainHash(rec)
	s.recs = append(s.recs, rec)
	return uint64(len(s.recs) - 1), nil
}

func (s *MemoryStore) Get(_ context.Context, pos uint64) (AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pos >= uint64(len(s.recs)) {
		return AlertRecord{}, ErrNotFound
	}
	return s.recs[pos], nil
}

// Range returns a copy of records in [from, to]. The snapshot is taken
// under the read lock, so an append finishing after the call returns is
// simply not included.
func (s *MemoryStore) Range(_ context.Context, from, to uint64) ([]AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := uint64(len(s.recs))
	if from >= n {
		return nil, nil
	}
	if to >= n {
		to = n - 1
	}
	out := make([]AlertRecord, to-from+1)
	copy(out, s.recs[from:to+1])
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.recs)), nil
}
