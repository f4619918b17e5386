// Package memstore is an in-memory Store implementation used by the
// dispatcher's unit tests. It implements the same claim/complete/
// reschedule/fail/reclaim semantics as the Postgres store — a mutex
// standing in for "SELECT ... FOR UPDATE SKIP LOCKED" — so the dispatcher
// and its state machine can be tested without a database, the same way
// the corpus tests Redis-backed queues against miniredis rather than a
// live broker. One difference: an operation on an unknown entry ID
// returns store.ErrNotFound here, where the Postgres store treats it as a
// zero-row no-op.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerbridge/outboxcore/internal/domain"
	"github.com/ledgerbridge/outboxcore/internal/outbox"
	"github.com/ledgerbridge/outboxcore/internal/store"
)

// Store is a goroutine-safe, in-process Store + IntentWriter.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*outbox.Entry
	entities map[string]*domain.Entity
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entries:  make(map[string]*outbox.Entry),
		entities: make(map[string]*domain.Entity),
	}
}

var (
	_ store.Store        = (*Store)(nil)
	_ store.IntentWriter = (*Store)(nil)
)

// Write implements store.IntentWriter. Both maps are mutated under the
// same lock, modeling the single-transaction guarantee the real Postgres
// implementation provides.
func (s *Store) Write(_ context.Context, entity domain.Entity, payload json.RawMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	entity.LedgerStatus = domain.LedgerStatusPending
	entity.CreatedAt, entity.UpdatedAt = now, now
	s.entities[entity.ID] = &entity

	entryID := uuid.NewString()
	entry := outbox.New(entryID, entity.ID, payload, now)
	s.entries[entryID] = &entry

	return entryID, nil
}

// Claim implements store.Store.
func (s *Store) Claim(_ context.Context, limit int, now time.Time) ([]outbox.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*outbox.Entry
	for _, e := range s.entries {
		if e.Eligible(now) {
			eligible = append(eligible, e)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		an, bn := a.NextRetryAt == nil, b.NextRetryAt == nil
		if an != bn {
			return an // NULLS FIRST
		}
		if !an && !a.NextRetryAt.Equal(*b.NextRetryAt) {
			return a.NextRetryAt.Before(*b.NextRetryAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]outbox.Entry, 0, len(eligible))
	for _, e := range eligible {
		e.Status = outbox.StatusProcessing
		e.UpdatedAt = now
		claimed = append(claimed, *e)
	}
	return claimed, nil
}

// Complete implements store.Store.
func (s *Store) Complete(_ context.Context, entryID string, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status == outbox.StatusCompleted || e.Status == outbox.StatusFailed {
		return nil // idempotent; terminal states are absorbing
	}
	now := time.Now().UTC()
	e.Status = outbox.StatusCompleted
	e.AttemptBlockhash = nil
	e.UpdatedAt = now

	if ent, ok := s.entities[e.AggregateID]; ok {
		ent.LedgerStatus = domain.LedgerStatusConfirmed
		ent.LedgerSignature = signature
		ent.UpdatedAt = now
	}
	return nil
}

// Reschedule implements store.Store.
func (s *Store) Reschedule(_ context.Context, entryID string, now time.Time, delay time.Duration, pinnedBlockhash *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status == outbox.StatusCompleted || e.Status == outbox.StatusFailed {
		return nil
	}
	next := now.Add(delay)
	e.Status = outbox.StatusPending
	e.RetryCount++
	e.NextRetryAt = &next
	e.AttemptBlockhash = pinnedBlockhash
	e.UpdatedAt = now
	return nil
}

// Fail implements store.Store.
func (s *Store) Fail(_ context.Context, entryID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status == outbox.StatusCompleted || e.Status == outbox.StatusFailed {
		return nil
	}
	now := time.Now().UTC()
	e.Status = outbox.StatusFailed
	e.AttemptBlockhash = nil
	e.UpdatedAt = now

	if ent, ok := s.entities[e.AggregateID]; ok {
		ent.LedgerStatus = domain.LedgerStatusFailed
		ent.LedgerLastError = reason
		ent.UpdatedAt = now
	}
	return nil
}

// ReclaimZombies implements store.Store.
func (s *Store) ReclaimZombies(_ context.Context, ageThreshold time.Duration, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.Status != outbox.StatusProcessing {
			continue
		}
		if now.Sub(e.UpdatedAt) <= ageThreshold {
			continue
		}
		e.Status = outbox.StatusPending
		e.UpdatedAt = now
		n++
	}
	return n, nil
}

// CountByStatus implements store.Store.
func (s *Store) CountByStatus(_ context.Context) (map[outbox.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[outbox.Status]int)
	for _, e := range s.entries {
		counts[e.Status]++
	}
	return counts, nil
}

// ListFailed implements store.Store.
func (s *Store) ListFailed(_ context.Context, limit int) ([]outbox.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []*outbox.Entry
	for _, e := range s.entries {
		if e.Status == outbox.StatusFailed {
			failed = append(failed, e)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].UpdatedAt.After(failed[j].UpdatedAt) })
	if len(failed) > limit {
		failed = failed[:limit]
	}
	out := make([]outbox.Entry, len(failed))
	for i, e := range failed {
		out[i] = *e
	}
	return out, nil
}

// Entity returns a copy of the domain entity for assertions in tests.
func (s *Store) Entity(id string) (domain.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return domain.Entity{}, false
	}
	return *e, true
}

// Entry returns a copy of the outbox entry for assertions in tests.
func (s *Store) Entry(id string) (outbox.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return outbox.Entry{}, false
	}
	return *e, true
}
