package intent

import (
	"fmt"
	"strings"
)

// ValidationKind classifies a validation failure so boundaries can map it
// to an enumerable code without parsing the message.
type ValidationKind string

const (
	KindMissingSelection   ValidationKind = "missing-selection"
	KindWrongArity         ValidationKind = "wrong-arity"
	KindWrongType          ValidationKind = "wrong-type"
	KindDuplicateSelection ValidationKind = "duplicate-selection"
	KindUnknownStep        ValidationKind = "unknown-step"
)

// ValidationError reports structurally invalid selections: a missing key,
// wrong arity, wrong type, a duplicate id, or an unknown step. Always the
// caller's fault; retrying without changing the input cannot succeed.
type ValidationError struct {
	Step   string
	Field  string
	Kind   ValidationKind
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("step %q: %s", e.Step, e.Reason)
	}
	return fmt.Sprintf("step %q: selection %q: %s", e.Step, e.Field, e.Reason)
}

// PrerequisiteError reports a well-formed selection that is illegal against
// the current snapshot. Unmet carries the specific failing descriptors so a
// caller can explain them to a user.
type PrerequisiteError struct {
	Step      string
	Candidate string
	Unmet     []Prerequisite
}

func (e *PrerequisiteError) Error() string {
	parts := make([]string, len(e.Unmet))
	for i, p := range e.Unmet {
		parts[i] = p.Describe()
	}
	return fmt.Sprintf("step %q: candidate %q: unmet prerequisites: %s",
		e.Step, e.Candidate, strings.Join(parts, ", "))
}

// BudgetError reports a budgeted selection that requested more than the
// snapshot allows, or a budget that could not be computed at all. When the
// budget is unavailable the compiler fails closed rather than guessing.
type BudgetError struct {
	Step        string
	Requested   int
	Remaining   int
	Unavailable bool
}

func (e *BudgetError) Error() string {
	if e.Unavailable {
		return fmt.Sprintf("step %q: budget unavailable", e.Step)
	}
	return fmt.Sprintf("step %q: requested %d with %d remaining", e.Step, e.Requested, e.Remaining)
}
