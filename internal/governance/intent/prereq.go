package intent

import (
	"fmt"

	"github.com/docflowGM/holocron/internal/governance/delta"
)

// Prerequisite types understood by the compiler and the integrity checker.
const (
	PrereqFeat           = "feat"
	PrereqTalent         = "talent"
	PrereqTrainedSkill   = "trained-skill"
	PrereqAbility        = "ability"
	PrereqLevel          = "level"
	PrereqForceSensitive = "force-sensitive"
)

// Prerequisite is one declared requirement on a candidate item. Target names
// the required feat/talent/skill id or ability key; Minimum carries the
// required score or level for the numeric types.
type Prerequisite struct {
	Type    string `json:"type"`
	Target  string `json:"target,omitempty"`
	Minimum int    `json:"minimum,omitempty"`
}

// Describe renders the prerequisite for error messages.
func (p Prerequisite) Describe() string {
	switch p.Type {
	case PrereqAbility:
		return fmt.Sprintf("%s %s >= %d", p.Type, p.Target, p.Minimum)
	case PrereqLevel:
		return fmt.Sprintf("level >= %d", p.Minimum)
	case PrereqForceSensitive:
		return "force-sensitive"
	default:
		return fmt.Sprintf("%s %s", p.Type, p.Target)
	}
}

// ItemPrerequisites parses the item's declared "prerequisites" list. A
// missing key means no prerequisites; a malformed block is an error so
// structural contamination surfaces instead of silently passing.
func ItemPrerequisites(item delta.Item) ([]Prerequisite, error) {
	raw, ok := item["prerequisites"]
	if !ok || raw == nil {
		return nil, nil
	}

	entries, ok := asList(raw)
	if !ok {
		return nil, fmt.Errorf("prerequisites is not a list")
	}

	out := make([]Prerequisite, 0, len(entries))
	for i, entry := range entries {
		node, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("prerequisite %d is not an object", i)
		}
		prereqType, ok := node["type"].(string)
		if !ok || prereqType == "" {
			return nil, fmt.Errorf("prerequisite %d has no type", i)
		}
		p := Prerequisite{Type: prereqType}
		if target, ok := node["target"].(string); ok {
			p.Target = target
		}
		if minimum, ok := asNumber(node["minimum"]); ok {
			p.Minimum = int(minimum)
		}
		out = append(out, p)
	}
	return out, nil
}

// Unmet returns the prerequisites not satisfied by the snapshot. Unknown
// prerequisite types are treated as unmet so the compiler fails closed; the
// integrity checker separately reports them as advisory.
func Unmet(snap delta.Snapshot, prereqs []Prerequisite) []Prerequisite {
	var unmet []Prerequisite
	for _, p := range prereqs {
		if !satisfied(snap, p) {
			unmet = append(unmet, p)
		}
	}
	return unmet
}

func satisfied(snap delta.Snapshot, p Prerequisite) bool {
	switch p.Type {
	case PrereqFeat:
		_, ok := snap.CollectionItem(collectionFeats, p.Target)
		return ok
	case PrereqTalent:
		_, ok := snap.CollectionItem(collectionTalents, p.Target)
		return ok
	case PrereqTrainedSkill:
		_, ok := snap.CollectionItem(collectionSkills, p.Target)
		return ok
	case PrereqAbility:
		value, ok := snap.Field("abilities." + p.Target + ".base")
		if !ok {
			return false
		}
		score, ok := asNumber(value)
		return ok && int(score) >= p.Minimum
	case PrereqLevel:
		value, ok := snap.Field(fieldLevel)
		if !ok {
			return false
		}
		level, ok := asNumber(value)
		return ok && int(level) >= p.Minimum
	case PrereqForceSensitive:
		value, ok := snap.Field(fieldForceSensitive)
		if !ok {
			return false
		}
		flag, ok := value.(bool)
		return ok && flag
	default:
		return false
	}
}

func asList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
