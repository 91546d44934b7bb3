// Package authority is the single legal gateway for mutating entity state.
// It serializes deltas per entity, applies them through the host's
// primitive, appends an audit record for every attempt, and schedules the
// post-mutation integrity pass. Nothing else in the kernel holds a live
// handle capable of writing to the host.
package authority

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/docflowGM/holocron/internal/governance/delta"
	"github.com/docflowGM/holocron/internal/governance/integrity"
	"github.com/docflowGM/holocron/internal/governance/monitor"
	"github.com/docflowGM/holocron/internal/host"
	"github.com/docflowGM/holocron/internal/storage"
)

var tracer trace.Tracer = otel.Tracer("github.com/docflowGM/holocron/internal/governance/authority")

// ErrEmptyEntityID indicates a mutation without a target.
var ErrEmptyEntityID = errors.New("entity id is required")

// ErrEmptyDelta indicates a mutation describing no change.
var ErrEmptyDelta = errors.New("delta is empty")

// ErrNotRollbackable indicates a rollback of a record that never applied.
var ErrNotRollbackable = errors.New("record was not applied")

// Meta identifies a mutation's caller in the audit trail.
type Meta struct {
	// Origin names the call path, e.g. "compiler", "repair". Empty means
	// unknown.
	Origin string
}

// OriginRollback tags audit records produced by Rollback.
const OriginRollback = "rollback"

// Options wires an Authority. Host and Mutations are required; the rest
// degrade gracefully when absent.
type Options struct {
	Host       host.Host
	Mutations  storage.MutationLogStore
	Violations storage.ViolationStore
	Monitor    *monitor.Registry
	Checker    *integrity.Checker
	// OnAsyncFailure receives failures from kernel goroutines that no
	// caller is waiting on. Optional.
	OnAsyncFailure func(origin string, err error)
	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// Authority owns the per-entity mutation queues.
type Authority struct {
	host       host.Host
	mutations  storage.MutationLogStore
	violations storage.ViolationStore
	monitor    *monitor.Registry
	checker    *integrity.Checker
	onFailure  func(origin string, err error)
	now        func() time.Time

	mu      sync.Mutex
	queues  map[string]*entityQueue
	passWG  sync.WaitGroup
}

// New creates an Authority.
func New(opts Options) (*Authority, error) {
	if opts.Host == nil {
		return nil, fmt.Errorf("host is required")
	}
	if opts.Mutations == nil {
		return nil, fmt.Errorf("mutation log store is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	onFailure := opts.OnAsyncFailure
	if onFailure == nil {
		onFailure = func(string, error) {}
	}
	return &Authority{
		host:       opts.Host,
		mutations:  opts.Mutations,
		violations: opts.Violations,
		monitor:    opts.Monitor,
		checker:    opts.Checker,
		onFailure:  onFailure,
		now:        now,
		queues:     map[string]*entityQueue{},
	}, nil
}

// ApplyDelta serializes the delta behind any in-flight mutation for the
// entity, applies it through the host, and appends an audit record. On
// host rejection the record is marked rejected and the host's error is
// returned verbatim; nothing is retried, since a retry could double-apply
// a non-idempotent add.
func (a *Authority) ApplyDelta(ctx context.Context, entityID string, d delta.Delta, meta Meta) (storage.MutationRecord, error) {
	return a.apply(ctx, entityID, d, meta, "")
}

// Rollback inverts the record's delta against its pre-mutation snapshot
// and applies the inverse as a new, separately audited mutation. The audit
// log only ever moves forward; the original record is untouched.
func (a *Authority) Rollback(ctx context.Context, rec storage.MutationRecord) (storage.MutationRecord, error) {
	if rec.Outcome != storage.OutcomeApplied && rec.Outcome != storage.OutcomeRolledBack {
		return storage.MutationRecord{}, fmt.Errorf("rollback %s: %w", rec.ID, ErrNotRollbackable)
	}
	inverse, err := delta.Invert(rec.Delta, rec.SnapshotBefore)
	if err != nil {
		return storage.MutationRecord{}, fmt.Errorf("invert mutation %s: %w", rec.ID, err)
	}
	return a.apply(ctx, rec.EntityID, inverse, Meta{Origin: OriginRollback}, rec.ID)
}

func (a *Authority) apply(ctx context.Context, entityID string, d delta.Delta, meta Meta, rolledBackFrom string) (storage.MutationRecord, error) {
	ctx, span := tracer.Start(ctx, "authority.apply_delta")
	defer span.End()
	span.SetAttributes(attribute.String("entity.id", entityID))

	if entityID == "" {
		return storage.MutationRecord{}, ErrEmptyEntityID
	}
	if d.IsEmpty() {
		return storage.MutationRecord{}, fmt.Errorf("mutate %s: %w", entityID, ErrEmptyDelta)
	}

	q := a.queue(entityID)
	if err := q.acquire(ctx); err != nil {
		return storage.MutationRecord{}, err
	}
	defer q.release()

	start := a.now()
	snap, err := a.host.TakeSnapshot(ctx, entityID)
	if err != nil {
		span.SetStatus(codes.Error, "snapshot failed")
		return storage.MutationRecord{}, fmt.Errorf("snapshot %s: %w", entityID, err)
	}

	rec := storage.MutationRecord{
		EntityID:       entityID,
		Delta:          d,
		SnapshotBefore: snap,
		AppliedAt:      a.now().UTC(),
		Origin:         meta.Origin,
		RolledBackFrom: rolledBackFrom,
	}
	if rec.Origin == "" {
		rec.Origin = "unknown"
	}
	if rolledBackFrom != "" {
		rec.Origin = OriginRollback
	}

	after, applyErr := a.host.Apply(host.WithOrigin(ctx, host.OriginAuthority), entityID, d)
	if applyErr != nil {
		rec.Outcome = storage.OutcomeRejected
		rec.Reason = applyErr.Error()
		stored, appendErr := a.mutations.AppendMutation(ctx, rec)
		if appendErr != nil {
			a.onFailure("audit", appendErr)
			stored = rec
		}
		a.publish(stored, delta.Snapshot{}, a.now().Sub(start))
		span.SetStatus(codes.Error, "host rejected")
		span.SetAttributes(attribute.String("mutation.outcome", string(storage.OutcomeRejected)))
		return stored, applyErr
	}

	rec.Outcome = storage.OutcomeApplied
	if rolledBackFrom != "" {
		rec.Outcome = storage.OutcomeRolledBack
	}
	stored, err := a.mutations.AppendMutation(ctx, rec)
	if err != nil {
		// the mutation landed; an unrecorded one must not pass silently
		a.onFailure("audit", err)
		return storage.MutationRecord{}, fmt.Errorf("record mutation for %s: %w", entityID, err)
	}

	a.scheduleIntegrity(entityID, after, q)
	a.publish(stored, after, a.now().Sub(start))
	span.SetAttributes(attribute.String("mutation.outcome", string(stored.Outcome)))
	return stored, nil
}

func (a *Authority) publish(rec storage.MutationRecord, after delta.Snapshot, elapsed time.Duration) {
	if a.monitor == nil {
		return
	}
	a.monitor.PublishMutation(monitor.MutationEvent{
		Record:   rec,
		After:    after,
		Duration: elapsed,
	})
}

func (a *Authority) queue(entityID string) *entityQueue {
	a.mu.Lock()
	defer a.mu.Unlock()
	q, ok := a.queues[entityID]
	if !ok {
		q = &entityQueue{}
		a.queues[entityID] = q
	}
	return q
}

// Settled reports whether the entity has no queued or running mutation and
// no outstanding integrity pass.
func (a *Authority) Settled(entityID string) bool {
	a.mu.Lock()
	q, ok := a.queues[entityID]
	a.mu.Unlock()
	if !ok {
		return true
	}
	return q.settled()
}

// WaitSettled blocks until the entity settles or the context ends.
func (a *Authority) WaitSettled(ctx context.Context, entityID string) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if a.Settled(entityID) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
