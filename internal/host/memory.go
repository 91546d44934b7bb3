package host

import (
	"context"
	"sync"
	"time"

	"github.com/docflowGM/holocron/internal/governance/delta"
)

// MemoryHost is an in-memory entity table. The daemon uses it in sandbox
// mode; tests use it everywhere. It notifies subscribed observers of every
// change, tagged with the writer's origin, so the sovereignty watcher can
// spot writes that bypassed governance.
type MemoryHost struct {
	mu        sync.Mutex
	entities  map[string]delta.Snapshot
	observers []ChangeObserver
	failNext  string
}

// NewMemoryHost creates an empty host.
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{entities: map[string]delta.Snapshot{}}
}

// PutEntity seeds or replaces an entity's state.
func (h *MemoryHost) PutEntity(entityID string, fields map[string]any, collections map[string][]delta.Item) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entities[entityID] = delta.NewSnapshot(entityID, fields, collections, time.Now())
}

// Subscribe registers an observer for change notifications. Observers run
// synchronously, in registration order, while the host lock is not held.
func (h *MemoryHost) Subscribe(observer ChangeObserver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, observer)
}

// RejectNext makes the next Apply fail with the given reason. Test hook for
// the rejected-mutation path.
func (h *MemoryHost) RejectNext(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext = reason
}

// TakeSnapshot captures the entity's current state.
func (h *MemoryHost) TakeSnapshot(ctx context.Context, entityID string) (delta.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return delta.Snapshot{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.entities[entityID]
	if !ok {
		return delta.Snapshot{}, ErrUnknownEntity
	}
	snap := current.Clone()
	snap.TakenAt = time.Now().UTC()
	return snap, nil
}

// Apply applies the delta and returns the new state. The change
// notification carries the origin tag from the context.
func (h *MemoryHost) Apply(ctx context.Context, entityID string, d delta.Delta) (delta.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return delta.Snapshot{}, err
	}
	origin := OriginFromContext(ctx)

	h.mu.Lock()
	if h.failNext != "" {
		reason := h.failNext
		h.failNext = ""
		h.mu.Unlock()
		return delta.Snapshot{}, &Rejection{EntityID: entityID, Reason: reason}
	}

	current, ok := h.entities[entityID]
	if !ok {
		h.mu.Unlock()
		return delta.Snapshot{}, ErrUnknownEntity
	}

	next, err := delta.ApplyInMemory(current, d)
	if err != nil {
		h.mu.Unlock()
		return delta.Snapshot{}, &Rejection{EntityID: entityID, Reason: err.Error(), Cause: err}
	}
	next.TakenAt = time.Now().UTC()
	h.entities[entityID] = next
	observers := append([]ChangeObserver(nil), h.observers...)
	h.mu.Unlock()

	change := Change{EntityID: entityID, Origin: origin, At: next.TakenAt}
	for _, observer := range observers {
		observer(change)
	}
	return next.Clone(), nil
}

// Poke writes fields directly, bypassing governance, and notifies
// observers with a direct origin. Simulates the legacy call sites the
// sovereignty watcher exists to catch.
func (h *MemoryHost) Poke(entityID string, fields map[string]any) error {
	h.mu.Lock()
	current, ok := h.entities[entityID]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownEntity
	}

	next := current.Clone()
	for key, value := range fields {
		next.Fields[key] = value
	}
	next.TakenAt = time.Now().UTC()
	h.entities[entityID] = next
	observers := append([]ChangeObserver(nil), h.observers...)
	h.mu.Unlock()

	change := Change{EntityID: entityID, Origin: OriginDirect, At: next.TakenAt}
	for _, observer := range observers {
		observer(change)
	}
	return nil
}

var _ Host = (*MemoryHost)(nil)
