package mcp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/docflowGM/holocron/internal/governance/authority"
	"github.com/docflowGM/holocron/internal/governance/intent"
	"github.com/docflowGM/holocron/internal/governance/monitor"
	"github.com/docflowGM/holocron/internal/host"
	apperrors "github.com/docflowGM/holocron/internal/platform/errors"
	"github.com/docflowGM/holocron/internal/platform/errors/i18n"
	"github.com/docflowGM/holocron/internal/storage"
)

// toolError converts a kernel error into the structured form MCP clients
// see: a stable code, templated metadata, and a localized message, with the
// original error preserved in the chain.
func toolError(err error) error {
	if err == nil {
		return nil
	}
	code, meta := classify(err)
	message := i18n.GetCatalog(i18n.BaseLocale).Format(string(code), meta)
	return apperrors.WrapWithMetadata(code, fmt.Sprintf("%s: %s", code, message), meta, err)
}

// classify maps kernel errors onto machine-readable codes. Unrecognized
// errors fall through to CodeUnknown rather than guessing.
func classify(err error) (apperrors.Code, map[string]string) {
	var validation *intent.ValidationError
	if errors.As(err, &validation) {
		meta := map[string]string{
			"Step":      validation.Step,
			"Selection": validation.Field,
		}
		switch validation.Kind {
		case intent.KindMissingSelection:
			return apperrors.CodeValidationMissingSelection, meta
		case intent.KindWrongArity:
			return apperrors.CodeValidationWrongArity, meta
		case intent.KindDuplicateSelection:
			meta["Candidate"] = validation.Field
			return apperrors.CodeDuplicateSelection, meta
		case intent.KindUnknownStep:
			return apperrors.CodeValidationUnknownStep, meta
		default:
			return apperrors.CodeValidationWrongType, meta
		}
	}

	var prereq *intent.PrerequisiteError
	if errors.As(err, &prereq) {
		unmet := make([]string, len(prereq.Unmet))
		for i, p := range prereq.Unmet {
			unmet[i] = p.Describe()
		}
		return apperrors.CodePrerequisiteUnmet, map[string]string{
			"Step":      prereq.Step,
			"Candidate": prereq.Candidate,
			"Unmet":     strings.Join(unmet, ", "),
		}
	}

	var budget *intent.BudgetError
	if errors.As(err, &budget) {
		if budget.Unavailable {
			return apperrors.CodeBudgetUnavailable, map[string]string{"Budget": budget.Step}
		}
		return apperrors.CodeBudgetExceeded, map[string]string{
			"Step":      budget.Step,
			"Requested": strconv.Itoa(budget.Requested),
			"Remaining": strconv.Itoa(budget.Remaining),
		}
	}

	var rejection *host.Rejection
	if errors.As(err, &rejection) {
		return apperrors.CodeHostRejected, map[string]string{
			"EntityID": rejection.EntityID,
			"Reason":   rejection.Reason,
		}
	}

	switch {
	case errors.Is(err, authority.ErrEmptyEntityID):
		return apperrors.CodeValidationEmptyEntityID, nil
	case errors.Is(err, authority.ErrEmptyDelta):
		return apperrors.CodeEmptyDelta, nil
	case errors.Is(err, authority.ErrNotRollbackable):
		return apperrors.CodeRollbackNotApplied, nil
	case errors.Is(err, monitor.ErrEnforced):
		return apperrors.CodeMonitorEnforced, nil
	case errors.Is(err, monitor.ErrUnknownLayer):
		return apperrors.CodeLayerUnknown, nil
	case errors.Is(err, monitor.ErrDuplicateLayer):
		return apperrors.CodeLayerDuplicate, nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, host.ErrUnknownEntity):
		return apperrors.CodeNotFound, nil
	}
	return apperrors.CodeUnknown, nil
}
