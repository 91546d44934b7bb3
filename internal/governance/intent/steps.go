package intent

import (
	"fmt"

	"github.com/docflowGM/holocron/internal/governance/delta"
)

// abilityKeys is the fixed six-score vocabulary; the abilities step requires
// exactly these, no more and no fewer.
var abilityKeys = []string{"str", "dex", "con", "int", "wis", "cha"}

func buildAbilities(_ delta.Snapshot, sel Selections) ([]intent, error) {
	scores, ok := sel.Group("scores")
	if !ok {
		return nil, &ValidationError{Step: StepAbilities, Field: "scores", Kind: KindMissingSelection, Reason: "missing score group"}
	}
	if len(scores) != len(abilityKeys) {
		return nil, &ValidationError{
			Step:   StepAbilities,
			Field:  "scores",
			Kind:   KindWrongArity,
			Reason: fmt.Sprintf("expected %d scores, got %d", len(abilityKeys), len(scores)),
		}
	}

	intents := make([]intent, 0, len(abilityKeys))
	for _, key := range abilityKeys {
		value, ok := scores[key]
		if !ok {
			return nil, &ValidationError{Step: StepAbilities, Field: "scores", Kind: KindMissingSelection, Reason: fmt.Sprintf("missing score %q", key)}
		}
		score, ok := asNumber(value)
		if !ok {
			return nil, &ValidationError{Step: StepAbilities, Field: "scores", Kind: KindWrongType, Reason: fmt.Sprintf("score %q is not numeric", key)}
		}
		intents = append(intents, intent{
			kind:  intentSetField,
			path:  "abilities." + key + ".base",
			value: score,
		})
	}
	return intents, nil
}

func buildSpecies(_ delta.Snapshot, sel Selections) ([]intent, error) {
	item, ok := sel.Item("species")
	if !ok {
		return nil, &ValidationError{Step: StepSpecies, Field: "species", Kind: KindMissingSelection, Reason: "missing species item"}
	}
	return []intent{{
		kind:       intentAddItems,
		collection: collectionSpecies,
		items:      []delta.Item{item},
		replace:    true,
	}}, nil
}

func buildClass(_ delta.Snapshot, sel Selections) ([]intent, error) {
	item, ok := sel.Item("class")
	if !ok {
		return nil, &ValidationError{Step: StepClass, Field: "class", Kind: KindMissingSelection, Reason: "missing class item"}
	}
	return []intent{{
		kind:       intentAddItems,
		collection: collectionClasses,
		items:      []delta.Item{item},
	}}, nil
}

func buildFeats(_ delta.Snapshot, sel Selections) ([]intent, error) {
	items, ok := sel.Items("feats")
	if !ok || len(items) == 0 {
		return nil, &ValidationError{Step: StepFeats, Field: "feats", Kind: KindMissingSelection, Reason: "missing feat candidates"}
	}
	return []intent{{
		kind:       intentAddItems,
		collection: collectionFeats,
		items:      items,
	}}, nil
}

func buildTalents(_ delta.Snapshot, sel Selections) ([]intent, error) {
	items, ok := sel.Items("talents")
	if !ok || len(items) == 0 {
		return nil, &ValidationError{Step: StepTalents, Field: "talents", Kind: KindMissingSelection, Reason: "missing talent candidates"}
	}
	return []intent{{
		kind:       intentAddItems,
		collection: collectionTalents,
		items:      items,
	}}, nil
}

// buildSkills spends trained-skill slots against the budget the snapshot
// declares. No budget field means the budget cannot be computed and the
// step fails closed.
func buildSkills(snap delta.Snapshot, sel Selections) ([]intent, error) {
	skillIDs, ok := sel.Strings("skillIds")
	if !ok || len(skillIDs) == 0 {
		return nil, &ValidationError{Step: StepSkills, Field: "skillIds", Kind: KindMissingSelection, Reason: "missing skill ids"}
	}

	budgetValue, ok := snap.Field(fieldSkillBudget)
	if !ok {
		return nil, &BudgetError{Step: StepSkills, Unavailable: true}
	}
	total, ok := asNumber(budgetValue)
	if !ok {
		return nil, &BudgetError{Step: StepSkills, Unavailable: true}
	}

	items := make([]delta.Item, len(skillIDs))
	for i, id := range skillIDs {
		items[i] = delta.Item{"id": id, "trained": true}
	}
	return []intent{{
		kind:       intentAddItems,
		collection: collectionSkills,
		items:      items,
		budget:     &budgetSpec{total: total},
	}}, nil
}

// buildForcePowers budgets known powers at 1 + the wisdom modifier, per the
// host ruleset, and still checks each candidate's own prerequisites.
func buildForcePowers(snap delta.Snapshot, sel Selections) ([]intent, error) {
	items, ok := sel.Items("powers")
	if !ok || len(items) == 0 {
		return nil, &ValidationError{Step: StepForcePowers, Field: "powers", Kind: KindMissingSelection, Reason: "missing power candidates"}
	}

	wisValue, ok := snap.Field("abilities.wis.base")
	if !ok {
		return nil, &BudgetError{Step: StepForcePowers, Unavailable: true}
	}
	wis, ok := asNumber(wisValue)
	if !ok {
		return nil, &BudgetError{Step: StepForcePowers, Unavailable: true}
	}
	total := 1 + abilityModifier(wis)
	if total < 1 {
		total = 1
	}

	return []intent{{
		kind:       intentAddItems,
		collection: collectionForcePowers,
		items:      items,
		budget:     &budgetSpec{total: float64(total)},
	}}, nil
}

func buildCredits(_ delta.Snapshot, sel Selections) ([]intent, error) {
	credits, ok := sel.Number("credits")
	if !ok {
		return nil, &ValidationError{Step: StepCredits, Field: "credits", Kind: KindMissingSelection, Reason: "missing credit amount"}
	}
	if credits < 0 {
		return nil, &ValidationError{Step: StepCredits, Field: "credits", Kind: KindWrongType, Reason: "credits cannot be negative"}
	}
	return []intent{{
		kind:  intentSetField,
		path:  fieldCredits,
		value: credits,
	}}, nil
}

// buildLevel increments the character level, by one when the selection does
// not say otherwise.
func buildLevel(_ delta.Snapshot, sel Selections) ([]intent, error) {
	amount := 1.0
	if raw, ok := sel["levels"]; ok {
		number, numOK := asNumber(raw)
		if !numOK || number < 1 || number != float64(int(number)) {
			return nil, &ValidationError{Step: StepLevel, Field: "levels", Kind: KindWrongType, Reason: "levels must be a positive integer"}
		}
		amount = number
	}
	return []intent{{
		kind:   intentIncrement,
		path:   fieldLevel,
		amount: amount,
	}}, nil
}
