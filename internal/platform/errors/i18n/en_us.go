package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeValidationMissingSelection = "VALIDATION_MISSING_SELECTION"
	CodeValidationWrongArity       = "VALIDATION_WRONG_ARITY"
	CodeValidationWrongType        = "VALIDATION_WRONG_TYPE"
	CodeValidationUnknownStep      = "VALIDATION_UNKNOWN_STEP"
	CodeValidationEmptyEntityID    = "VALIDATION_EMPTY_ENTITY_ID"
	CodePrerequisiteUnmet          = "PREREQUISITE_UNMET"
	CodeBudgetExceeded             = "BUDGET_EXCEEDED"
	CodeBudgetUnavailable          = "BUDGET_UNAVAILABLE"
	CodeDuplicateSelection         = "DUPLICATE_SELECTION"
	CodeHostRejected               = "HOST_REJECTED"
	CodeEmptyDelta                 = "EMPTY_DELTA"
	CodeRollbackNotApplied         = "ROLLBACK_NOT_APPLIED"
	CodeSovereigntyViolation       = "SOVEREIGNTY_VIOLATION"
	CodeMonitorEnforced            = "MONITOR_ENFORCED"
	CodeLayerUnknown               = "LAYER_UNKNOWN"
	CodeLayerDuplicate             = "LAYER_DUPLICATE"
	CodeNotFound                   = "NOT_FOUND"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		// Validation errors
		CodeValidationMissingSelection: "Selection {{.Selection}} is required for step {{.Step}}",
		CodeValidationWrongArity:       "Step {{.Step}} expects {{.Expected}} selection(s), got {{.Got}}",
		CodeValidationWrongType:        "Selection {{.Selection}} has the wrong type",
		CodeValidationUnknownStep:      "Unknown step {{.Step}}",
		CodeValidationEmptyEntityID:    "Entity id cannot be empty",

		// Prerequisite errors
		CodePrerequisiteUnmet:  "{{.Candidate}} is missing prerequisites: {{.Unmet}}",
		CodeBudgetExceeded:     "Requested {{.Requested}} but only {{.Remaining}} remaining",
		CodeBudgetUnavailable:  "The remaining budget for {{.Budget}} cannot be determined",
		CodeDuplicateSelection: "{{.Candidate}} is already selected",

		// Authority errors
		CodeHostRejected:       "The host refused the mutation: {{.Reason}}",
		CodeEmptyDelta:         "The delta describes no change",
		CodeRollbackNotApplied: "Only applied mutations can be rolled back",

		// Monitor errors
		CodeSovereigntyViolation: "Entity {{.EntityID}} was mutated without going through the authority",
		CodeMonitorEnforced:      "Operation aborted by the runtime monitor",
		CodeLayerUnknown:         "Unknown monitor layer {{.Layer}}",
		CodeLayerDuplicate:       "Monitor layer {{.Layer}} is already registered",

		// Storage errors
		CodeNotFound: "The requested record was not found",
	},
}
