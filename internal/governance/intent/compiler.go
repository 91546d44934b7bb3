// Package intent compiles high-level character-step selections into
// validated, deterministic deltas. Callers hand a snapshot, a step id, and
// structural selections to CompileStep and get back either a delta ready for
// the mutation authority or a typed error; the intermediate intent vocabulary
// never leaves this package.
package intent

import (
	"fmt"
	"math"
	"sort"

	"github.com/docflowGM/holocron/internal/governance/delta"
)

// Step identifiers recognized by CompileStep.
const (
	StepAbilities   = "abilities"
	StepSpecies     = "species"
	StepClass       = "class"
	StepFeats       = "feats"
	StepTalents     = "talents"
	StepSkills      = "skills"
	StepForcePowers = "force-powers"
	StepCredits     = "credits"
	StepLevel       = "level"
)

// Collection and field names in the entity state the steps touch.
const (
	collectionSpecies     = "species"
	collectionClasses     = "classes"
	collectionFeats       = "feats"
	collectionTalents     = "talents"
	collectionSkills      = "skills"
	collectionForcePowers = "forcePowers"

	fieldCredits        = "credits"
	fieldLevel          = "level"
	fieldSkillBudget    = "skillBudget"
	fieldForceSensitive = "forceSensitive"
)

// Options configures a Compiler.
type Options struct {
	// Freebuild relaxes prerequisite enforcement for sandbox entities.
	// Structural validation and budgets stay enforced.
	Freebuild bool
}

// StepOptions carries per-call overrides for a single CompileStep.
type StepOptions struct {
	Freebuild bool
}

// Compiler turns step selections into deltas. The zero value enforces
// prerequisites; it is safe to copy and share.
type Compiler struct {
	opts Options
}

// NewCompiler creates a Compiler with the given options.
func NewCompiler(opts Options) Compiler {
	return Compiler{opts: opts}
}

// intentKind enumerates the closed set of change shapes a step compiles
// into.
type intentKind int

const (
	intentSetField intentKind = iota
	intentAddItems
	intentIncrement
)

// intent is one element of the private tagged union behind CompileStep.
type intent struct {
	kind intentKind

	// setField, increment
	path   string
	value  any
	amount float64

	// addItems
	collection string
	items      []delta.Item
	replace    bool
	budget     *budgetSpec
}

// budgetSpec limits an addItems intent to the slots remaining out of a
// total derived from the snapshot.
type budgetSpec struct {
	total float64
}

type stepBuilder func(snap delta.Snapshot, sel Selections) ([]intent, error)

var stepBuilders = map[string]stepBuilder{
	StepAbilities:   buildAbilities,
	StepSpecies:     buildSpecies,
	StepClass:       buildClass,
	StepFeats:       buildFeats,
	StepTalents:     buildTalents,
	StepSkills:      buildSkills,
	StepForcePowers: buildForcePowers,
	StepCredits:     buildCredits,
	StepLevel:       buildLevel,
}

// CompileStep validates the selections for the step against the snapshot
// and compiles them into a normalized delta. It returns *ValidationError
// for malformed selections, *PrerequisiteError when a candidate's declared
// prerequisites are unmet, and *BudgetError for budget overruns. Any
// failing candidate aborts the whole step with no partial delta.
//
// Compilation is deterministic: identical inputs produce byte-identical
// deltas once encoded. Nothing here reads the clock or randomness.
func (c Compiler) CompileStep(snap delta.Snapshot, stepID string, sel Selections, opts StepOptions) (delta.Delta, error) {
	build, ok := stepBuilders[stepID]
	if !ok {
		return delta.Delta{}, &ValidationError{Step: stepID, Kind: KindUnknownStep, Reason: "unknown step"}
	}

	intents, err := build(snap, sel)
	if err != nil {
		return delta.Delta{}, err
	}

	freebuild := c.opts.Freebuild || opts.Freebuild
	out, err := compileIntents(snap, stepID, intents, freebuild)
	if err != nil {
		return delta.Delta{}, err
	}
	return delta.Normalize(out), nil
}

func compileIntents(snap delta.Snapshot, stepID string, intents []intent, freebuild bool) (delta.Delta, error) {
	var out delta.Delta
	for _, in := range intents {
		switch in.kind {
		case intentSetField:
			if out.Set == nil {
				out.Set = map[string]any{}
			}
			out.Set[in.path] = in.value

		case intentIncrement:
			current := 0.0
			if value, ok := snap.Field(in.path); ok {
				number, ok := asNumber(value)
				if !ok {
					return delta.Delta{}, &ValidationError{
						Step:   stepID,
						Field:  in.path,
						Kind:   KindWrongType,
						Reason: "current value is not numeric",
					}
				}
				current = number
			}
			if out.Set == nil {
				out.Set = map[string]any{}
			}
			out.Set[in.path] = current + in.amount

		case intentAddItems:
			if err := compileAddItems(snap, stepID, in, freebuild, &out); err != nil {
				return delta.Delta{}, err
			}

		default:
			return delta.Delta{}, fmt.Errorf("unhandled intent kind %d", in.kind)
		}
	}
	return out, nil
}

// compileAddItems validates every candidate before emitting anything so a
// late failure cannot leave a partial delta behind.
func compileAddItems(snap delta.Snapshot, stepID string, in intent, freebuild bool, out *delta.Delta) error {
	if in.budget != nil {
		used := len(snap.Collection(in.collection))
		remaining := int(in.budget.total) - used
		if len(in.items) > remaining {
			return &BudgetError{Step: stepID, Requested: len(in.items), Remaining: remaining}
		}
	}

	seen := make(map[string]bool, len(in.items))
	for _, item := range in.items {
		id := delta.ItemID(item)
		if id == "" {
			return &ValidationError{Step: stepID, Field: in.collection, Kind: KindMissingSelection, Reason: "candidate has no id"}
		}
		if seen[id] {
			return &ValidationError{Step: stepID, Field: in.collection, Kind: KindDuplicateSelection, Reason: fmt.Sprintf("duplicate candidate %q", id)}
		}
		seen[id] = true
		if !in.replace {
			if _, exists := snap.CollectionItem(in.collection, id); exists {
				return &ValidationError{Step: stepID, Field: in.collection, Kind: KindDuplicateSelection, Reason: fmt.Sprintf("%q is already present", id)}
			}
		}

		prereqs, err := ItemPrerequisites(item)
		if err != nil {
			return &ValidationError{Step: stepID, Field: in.collection, Kind: KindWrongType, Reason: fmt.Sprintf("candidate %q: %v", id, err)}
		}
		if !freebuild {
			if unmet := Unmet(snap, prereqs); len(unmet) > 0 {
				return &PrerequisiteError{Step: stepID, Candidate: id, Unmet: unmet}
			}
		}
	}

	if in.replace {
		// Re-selected ids stay out of the delete list: deltas apply adds
		// before deletes, so deleting a re-added id would drop it again.
		existing := snap.Collection(in.collection)
		ids := make([]string, 0, len(existing))
		for _, item := range existing {
			if id := delta.ItemID(item); id != "" && !seen[id] {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			sort.Strings(ids)
			if out.Delete == nil {
				out.Delete = map[string][]string{}
			}
			out.Delete[in.collection] = append(out.Delete[in.collection], ids...)
		}
	}

	if out.Add == nil {
		out.Add = map[string][]delta.Item{}
	}
	for _, item := range in.items {
		out.Add[in.collection] = append(out.Add[in.collection], item)
	}
	return nil
}

// abilityModifier derives the standard modifier from an ability score.
func abilityModifier(score float64) int {
	return int(math.Floor((score - 10) / 2))
}
