// Package storage defines the persistence contracts for the governance
// kernel's append-only records: the mutation audit log and the violation log.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/docflowGM/holocron/internal/governance/delta"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Outcome describes how a mutation concluded.
type Outcome string

const (
	// OutcomeApplied records a mutation the host accepted.
	OutcomeApplied Outcome = "applied"
	// OutcomeRejected records a mutation the host refused.
	OutcomeRejected Outcome = "rejected"
	// OutcomeRolledBack records a mutation that undid an earlier record.
	OutcomeRolledBack Outcome = "rolled_back"
)

// IsValid reports whether the outcome is one of the known values.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeApplied, OutcomeRejected, OutcomeRolledBack:
		return true
	}
	return false
}

// MutationRecord is an append-only audit trail entry for one mutation
// attempt. Records are never modified after creation; a rollback is a new
// record pointing back at the one it undoes.
type MutationRecord struct {
	// ID is the record's opaque identifier.
	ID string
	// EntityID is the entity the mutation targeted.
	EntityID string
	// Seq is the per-entity sequence number (starts at 1). Assigned by
	// storage on append.
	Seq uint64
	// Delta is the change that was attempted.
	Delta delta.Delta
	// SnapshotBefore is the entity state immediately before the attempt.
	SnapshotBefore delta.Snapshot
	// AppliedAt is when the outcome was decided.
	AppliedAt time.Time
	// Origin identifies the caller ("compiler", "rollback", "repair", ...).
	Origin string
	// Outcome is applied, rejected, or rolled_back.
	Outcome Outcome
	// RolledBackFrom is the id of the record this rollback undoes, when
	// Outcome is rolled_back.
	RolledBackFrom string
	// Reason carries the host's rejection reason for rejected records.
	Reason string
}

// Severity ranks a violation's gravity.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns the severity's ordering value; higher is graver.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarn:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// Escalate returns the next severity up; CRITICAL stays CRITICAL.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityInfo:
		return SeverityWarn
	case SeverityWarn:
		return SeverityError
	case SeverityError, SeverityCritical:
		return SeverityCritical
	default:
		return s
	}
}

// Violation is an immutable, severity-tagged observation of a governance or
// structural problem. Violations never cause mutation themselves.
type Violation struct {
	// ID is the violation's opaque identifier.
	ID string
	// Layer is the monitor layer that reported it.
	Layer string
	// Severity is the reported (possibly escalated) severity.
	Severity Severity
	// Message is the human-readable description.
	Message string
	// Context carries layer-specific structured detail.
	Context map[string]any
	// AggregateKey groups repeated occurrences of the same problem.
	AggregateKey string
	// EntityID is the affected entity, when one is identifiable.
	EntityID string
	// Count is 1 for individual reports and the occurrence total for
	// escalated summary records.
	Count int
	// Timestamp is when the violation was observed.
	Timestamp time.Time
}

// MutationLogStore persists the append-only mutation audit trail.
type MutationLogStore interface {
	// AppendMutation stores a record, assigning its per-entity sequence
	// number, and returns the stored record.
	AppendMutation(ctx context.Context, rec MutationRecord) (MutationRecord, error)
	// GetMutation retrieves a record by id.
	GetMutation(ctx context.Context, id string) (MutationRecord, error)
	// ListMutations returns an entity's records with Seq > afterSeq,
	// ordered by sequence ascending, up to limit.
	ListMutations(ctx context.Context, entityID string, afterSeq uint64, limit int) ([]MutationRecord, error)
}

// ViolationFilter narrows violation listings. Zero values match everything.
type ViolationFilter struct {
	Layer       string
	EntityID    string
	MinSeverity Severity
	Since       time.Time
	Limit       int
}

// ViolationStore persists the violation log.
type ViolationStore interface {
	// AppendViolation stores a violation and returns it with its id set.
	AppendViolation(ctx context.Context, v Violation) (Violation, error)
	// ListViolations returns violations matching the filter, ordered by
	// timestamp ascending.
	ListViolations(ctx context.Context, f ViolationFilter) ([]Violation, error)
}
