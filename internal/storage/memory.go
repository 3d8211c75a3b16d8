package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cuongbtq/scan-service/internal/domain"
)

// defaultMemoryCapacity bounds the records a MemoryStore keeps
const defaultMemoryCapacity = 1000

// MemoryStore keeps outcomes in process memory. It is used when no database
// is configured; records do not survive a restart. Once it holds more than
// its capacity, the oldest records that need no recovery are evicted. Parked
// jobs and deliveries still waiting for the ledger are never evicted.
type MemoryStore struct {
	mu       sync.RWMutex
	recs     map[string]*domain.AttemptRecord
	capacity int
}

// NewMemoryStore creates an empty MemoryStore with the default capacity
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCapacity(defaultMemoryCapacity)
}

// NewMemoryStoreWithCapacity creates an empty MemoryStore. A capacity of
// zero or less disables eviction.
func NewMemoryStoreWithCapacity(capacity int) *MemoryStore {
	return &MemoryStore{
		recs:     make(map[string]*domain.AttemptRecord),
		capacity: capacity,
	}
}

func (s *MemoryStore) RecordOutcome(_ context.Context, rec *domain.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.JobID] = clone(rec)
	s.evictLocked()
	return nil
}

// evictLocked drops settled records, oldest first, until the store is back
// within capacity. Caller must hold s.mu.
func (s *MemoryStore) evictLocked() {
	over := len(s.recs) - s.capacity
	if s.capacity <= 0 || over <= 0 {
		return
	}

	settled := make([]*domain.AttemptRecord, 0, len(s.recs))
	for _, rec := range s.recs {
		if !needsRecovery(rec) {
			settled = append(settled, rec)
		}
	}
	sort.Slice(settled, func(i, j int) bool {
		return settled[i].FinishedAt.Before(settled[j].FinishedAt)
	})

	for i := 0; i < over && i < len(settled); i++ {
		delete(s.recs, settled[i].JobID)
	}
}

func needsRecovery(rec *domain.AttemptRecord) bool {
	return rec.Status == domain.StatusParked ||
		(rec.Status == domain.StatusDelivered && !rec.LedgerMarked)
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (*domain.AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return clone(rec), nil
}

func (s *MemoryStore) List(_ context.Context, status domain.AttemptStatus, limit int) ([]*domain.AttemptRecord, error) {
	return s.filter(func(r *domain.AttemptRecord) bool {
		return status == "" || r.Status == status
	}, limit, true), nil
}

func (s *MemoryStore) PendingLedger(_ context.Context, limit int) ([]*domain.AttemptRecord, error) {
	return s.filter(func(r *domain.AttemptRecord) bool {
		return r.Status == domain.StatusDelivered && !r.LedgerMarked
	}, limit, false), nil
}

func (s *MemoryStore) MarkLedger(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	rec.LedgerMarked = true
	return nil
}

func (s *MemoryStore) TransitionStatus(_ context.Context, jobID string, from, to domain.AttemptStatus) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if rec.Status != from {
		return ErrStatusMismatch
	}
	rec.Status = to
	rec.Error = ""
	return nil
}

func (s *MemoryStore) filter(keep func(*domain.AttemptRecord) bool, limit int, newestFirst bool) []*domain.AttemptRecord {
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.RLock()
	out := make([]*domain.AttemptRecord, 0)
	for _, rec := range s.recs {
		if keep(rec) {
			out = append(out, clone(rec))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].FinishedAt.After(out[j].FinishedAt)
		}
		return out[i].FinishedAt.Before(out[j].FinishedAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clone(rec *domain.AttemptRecord) *domain.AttemptRecord {
	c := *rec
	c.AudioArtifacts = append([]string(nil), rec.AudioArtifacts...)
	return &c
}
