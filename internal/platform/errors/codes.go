// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors (malformed selections - always the caller's fault)
	CodeValidationMissingSelection Code = "VALIDATION_MISSING_SELECTION"
	CodeValidationWrongArity       Code = "VALIDATION_WRONG_ARITY"
	CodeValidationWrongType        Code = "VALIDATION_WRONG_TYPE"
	CodeValidationUnknownStep      Code = "VALIDATION_UNKNOWN_STEP"
	CodeValidationEmptyEntityID    Code = "VALIDATION_EMPTY_ENTITY_ID"

	// Prerequisite errors (well-formed but illegal against current state)
	CodePrerequisiteUnmet  Code = "PREREQUISITE_UNMET"
	CodeBudgetExceeded     Code = "BUDGET_EXCEEDED"
	CodeBudgetUnavailable  Code = "BUDGET_UNAVAILABLE"
	CodeDuplicateSelection Code = "DUPLICATE_SELECTION"

	// Authority errors
	CodeHostRejected       Code = "HOST_REJECTED"
	CodeEmptyDelta         Code = "EMPTY_DELTA"
	CodeRollbackNotApplied Code = "ROLLBACK_NOT_APPLIED"

	// Monitor errors
	CodeSovereigntyViolation Code = "SOVEREIGNTY_VIOLATION"
	CodeMonitorEnforced      Code = "MONITOR_ENFORCED"
	CodeLayerUnknown         Code = "LAYER_UNKNOWN"
	CodeLayerDuplicate       Code = "LAYER_DUPLICATE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeValidationMissingSelection,
		CodeValidationWrongArity,
		CodeValidationWrongType,
		CodeValidationUnknownStep,
		CodeValidationEmptyEntityID,
		CodeEmptyDelta:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow the operation
	case CodePrerequisiteUnmet,
		CodeBudgetExceeded,
		CodeBudgetUnavailable,
		CodeDuplicateSelection,
		CodeRollbackNotApplied:
		return codes.FailedPrecondition

	// Aborted - the host refused the mutation
	case CodeHostRejected:
		return codes.Aborted

	// PermissionDenied - governance bypass
	case CodeSovereigntyViolation,
		CodeMonitorEnforced:
		return codes.PermissionDenied

	// NotFound
	case CodeNotFound,
		CodeLayerUnknown:
		return codes.NotFound

	// AlreadyExists
	case CodeLayerDuplicate:
		return codes.AlreadyExists

	default:
		return codes.Internal
	}
}
