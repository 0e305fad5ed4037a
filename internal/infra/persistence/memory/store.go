// Package memory provides in-process implementations of the persistence
// interfaces for local development and tests. Append serialization and
// batch atomicity hold under a single mutex instead of database locks.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/spounge-ai/auditvault/internal/crypto"
	"github.com/spounge-ai/auditvault/internal/domain"
)

// EventStore is the in-memory append log.
type EventStore struct {
	mu      sync.Mutex
	records []*domain.AuditRecord
}

// NewEventStore creates an empty in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{}
}

func (s *EventStore) Append(ctx context.Context, build func(latest *domain.AuditRecord) (*domain.AuditRecord, error)) (*domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *domain.AuditRecord
	if len(s.records) > 0 {
		latest = cloneRecord(s.records[len(s.records)-1])
	}

	rec, err := build(latest)
	if err != nil {
		return nil, err
	}

	s.records = append(s.records, cloneRecord(rec))
	s.sortLocked()
	return rec, nil
}

func (s *EventStore) ReadLatest(ctx context.Context) (*domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	return cloneRecord(s.records[len(s.records)-1]), nil
}

func (s *EventStore) Recent(ctx context.Context, limit int) ([]*domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.AuditRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneRecord(s.records[i]))
	}
	return out, nil
}

func (s *EventStore) All(ctx context.Context) ([]*domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.AuditRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func (s *EventStore) ReencryptBatch(ctx context.Context, fromKid string, limit int, after *domain.Checkpoint, reencrypt func(rec *domain.AuditRecord) ([]byte, error)) (*domain.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var selected []*domain.AuditRecord
	for _, rec := range s.records {
		if len(selected) >= limit {
			break
		}
		kid, err := crypto.EnvelopeKid(rec.Payload)
		if err != nil || kid != fromKid {
			continue
		}
		if after != nil && !afterCheckpoint(rec, after) {
			continue
		}
		selected = append(selected, rec)
	}

	// Stage rewrites so a mid-batch failure leaves nothing half-applied.
	staged := make([][]byte, len(selected))
	for i, rec := range selected {
		newPayload, err := reencrypt(cloneRecord(rec))
		if err != nil {
			return nil, err
		}
		staged[i] = newPayload
	}

	result := &domain.BatchResult{Checkpoint: after}
	for i, rec := range selected {
		rec.Payload = staged[i]
		result.Processed++
		result.Checkpoint = &domain.Checkpoint{CreatedAt: rec.CreatedAt, ID: rec.ID}
	}
	result.Done = len(selected) < limit
	return result, nil
}

func (s *EventStore) CountsByKid(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64)
	for _, rec := range s.records {
		kid, err := crypto.EnvelopeKid(rec.Payload)
		if err != nil {
			kid = ""
		}
		counts[kid]++
	}
	return counts, nil
}

// Tamper overwrites stored fields of a record in place, bypassing every
// integrity guarantee. Test hook for chain verification failures.
func (s *EventStore) Tamper(mutate func(rec *domain.AuditRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		mutate(rec)
	}
}

func (s *EventStore) sortLocked() {
	sort.SliceStable(s.records, func(i, j int) bool {
		a, b := s.records[i], s.records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return strings.Compare(a.ID.String(), b.ID.String()) < 0
	})
}

func afterCheckpoint(rec *domain.AuditRecord, cp *domain.Checkpoint) bool {
	if rec.CreatedAt.After(cp.CreatedAt) {
		return true
	}
	if !rec.CreatedAt.Equal(cp.CreatedAt) {
		return false
	}
	return strings.Compare(rec.ID.String(), cp.ID.String()) > 0
}

func cloneRecord(rec *domain.AuditRecord) *domain.AuditRecord {
	out := *rec
	out.Payload = append([]byte(nil), rec.Payload...)
	out.PrevHash = append([]byte(nil), rec.PrevHash...)
	out.Hash = append([]byte(nil), rec.Hash...)
	if rec.PrevHash == nil {
		out.PrevHash = nil
	}
	return &out
}
