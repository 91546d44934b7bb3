// Package host defines the outbound boundary to the system that owns live
// entity state. The kernel only ever asks the host for snapshots and hands
// it deltas to apply; it never holds a mutable reference to an entity.
package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docflowGM/holocron/internal/governance/delta"
)

// ErrUnknownEntity indicates the host has no entity with the requested id.
var ErrUnknownEntity = errors.New("unknown entity")

// Host is the delta-application and snapshot primitive the kernel consumes.
type Host interface {
	// TakeSnapshot captures the entity's current state.
	TakeSnapshot(ctx context.Context, entityID string) (delta.Snapshot, error)
	// Apply applies the delta to the entity and returns the new state, or a
	// *Rejection when the host refuses.
	Apply(ctx context.Context, entityID string, d delta.Delta) (delta.Snapshot, error)
}

// Rejection is the host's refusal to apply a delta. It is propagated to
// callers verbatim and never retried automatically.
type Rejection struct {
	EntityID string
	Reason   string
	Cause    error
}

func (e *Rejection) Error() string {
	return fmt.Sprintf("host rejected mutation of %q: %s", e.EntityID, e.Reason)
}

func (e *Rejection) Unwrap() error {
	return e.Cause
}

// Origin tags attached to change notifications.
const (
	// OriginAuthority marks changes made through the mutation authority.
	OriginAuthority = "authority"
	// OriginDirect marks writes that bypassed governance entirely.
	OriginDirect = "direct"
	// OriginUnknown marks changes whose caller did not identify itself.
	OriginUnknown = "unknown"
)

// Change is a host change notification. Origin identifies the write path so
// watchers can tell governed mutations from bypasses.
type Change struct {
	EntityID string
	Origin   string
	At       time.Time
}

// ChangeObserver receives change notifications synchronously.
type ChangeObserver func(Change)

type originKey struct{}

// WithOrigin tags the context with the caller's write-path identity.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFromContext returns the context's origin tag, or OriginUnknown.
func OriginFromContext(ctx context.Context) string {
	if origin, ok := ctx.Value(originKey{}).(string); ok && origin != "" {
		return origin
	}
	return OriginUnknown
}
