// Package memory provides an in-memory store implementation used by tests
// and by the daemon's sandbox mode. It mirrors the sqlite store's semantics
// (per-entity sequences, copy-on-read records) without a database file.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docflowGM/holocron/internal/platform/id"
	"github.com/docflowGM/holocron/internal/storage"
)

// Store is an in-memory MutationLogStore and ViolationStore.
type Store struct {
	mu         sync.RWMutex
	mutations  []storage.MutationRecord
	byID       map[string]int
	nextSeq    map[string]uint64
	violations []storage.Violation
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		byID:    map[string]int{},
		nextSeq: map[string]uint64{},
	}
}

// AppendMutation stores a record, assigning id and per-entity sequence.
func (s *Store) AppendMutation(ctx context.Context, rec storage.MutationRecord) (storage.MutationRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.MutationRecord{}, err
	}
	if rec.EntityID == "" {
		return storage.MutationRecord{}, fmt.Errorf("entity id is required")
	}
	if !rec.Outcome.IsValid() {
		return storage.MutationRecord{}, fmt.Errorf("invalid outcome %q", rec.Outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		recordID, err := id.NewID()
		if err != nil {
			return storage.MutationRecord{}, fmt.Errorf("generate record id: %w", err)
		}
		rec.ID = recordID
	}
	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = time.Now().UTC()
	}
	rec.AppliedAt = rec.AppliedAt.UTC().Truncate(time.Millisecond)

	seq := s.nextSeq[rec.EntityID] + 1
	s.nextSeq[rec.EntityID] = seq
	rec.Seq = seq

	stored := copyRecord(rec)
	s.byID[rec.ID] = len(s.mutations)
	s.mutations = append(s.mutations, stored)
	return copyRecord(stored), nil
}

// GetMutation retrieves a record by id.
func (s *Store) GetMutation(ctx context.Context, recordID string) (storage.MutationRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.MutationRecord{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[recordID]
	if !ok {
		return storage.MutationRecord{}, storage.ErrNotFound
	}
	return copyRecord(s.mutations[idx]), nil
}

// ListMutations returns an entity's records after the given sequence.
func (s *Store) ListMutations(ctx context.Context, entityID string, afterSeq uint64, limit int) ([]storage.MutationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.MutationRecord
	for _, rec := range s.mutations {
		if rec.EntityID != entityID || rec.Seq <= afterSeq {
			continue
		}
		out = append(out, copyRecord(rec))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// AppendViolation stores a violation, assigning its id.
func (s *Store) AppendViolation(ctx context.Context, v storage.Violation) (storage.Violation, error) {
	if err := ctx.Err(); err != nil {
		return storage.Violation{}, err
	}
	if v.Layer == "" {
		return storage.Violation{}, fmt.Errorf("layer is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		violationID, err := id.NewID()
		if err != nil {
			return storage.Violation{}, fmt.Errorf("generate violation id: %w", err)
		}
		v.ID = violationID
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now().UTC()
	}
	v.Timestamp = v.Timestamp.UTC().Truncate(time.Millisecond)
	if v.Count <= 0 {
		v.Count = 1
	}

	stored := copyViolation(v)
	s.violations = append(s.violations, stored)
	return copyViolation(stored), nil
}

// ListViolations returns violations matching the filter.
func (s *Store) ListViolations(ctx context.Context, f storage.ViolationFilter) ([]storage.Violation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Violation
	for _, v := range s.violations {
		if f.Layer != "" && v.Layer != f.Layer {
			continue
		}
		if f.EntityID != "" && v.EntityID != f.EntityID {
			continue
		}
		if f.MinSeverity != "" && v.Severity.Rank() < f.MinSeverity.Rank() {
			continue
		}
		if !f.Since.IsZero() && v.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, copyViolation(v))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func copyRecord(rec storage.MutationRecord) storage.MutationRecord {
	out := rec
	out.Delta = rec.Delta.Clone()
	out.SnapshotBefore = rec.SnapshotBefore.Clone()
	return out
}

func copyViolation(v storage.Violation) storage.Violation {
	out := v
	if v.Context != nil {
		out.Context = make(map[string]any, len(v.Context))
		for key, value := range v.Context {
			out.Context[key] = value
		}
	}
	return out
}

var (
	_ storage.MutationLogStore = (*Store)(nil)
	_ storage.ViolationStore   = (*Store)(nil)
)
