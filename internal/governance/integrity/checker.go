// Package integrity re-derives structural invariants after every applied
// mutation, as a second line of defense against callers that bypassed the
// intent compiler. It only records violations; it never mutates state and
// never undoes the mutation that already landed. Repair is a separate,
// explicit operation that goes back through the mutation authority.
package integrity

import (
	"fmt"
	"sync"
	"time"

	"github.com/docflowGM/holocron/internal/governance/delta"
	"github.com/docflowGM/holocron/internal/governance/intent"
	"github.com/docflowGM/holocron/internal/storage"
)

// LayerID tags integrity findings in the violation log.
const LayerID = "integrity"

// Checker evaluates snapshots and keeps a per-entity index of known
// violations so repeated evaluations are diffable.
type Checker struct {
	mu    sync.Mutex
	known map[string]map[string]storage.Violation
}

// NewChecker creates a Checker with an empty known-violations index.
func NewChecker() *Checker {
	return &Checker{known: map[string]map[string]storage.Violation{}}
}

// Evaluate re-checks every collection item's declared prerequisites and the
// snapshot's budgets against current state. Clearly illegal state is ERROR;
// ambiguous or advisory findings are WARN. Read-only.
func (c *Checker) Evaluate(snap delta.Snapshot) []storage.Violation {
	var out []storage.Violation
	now := time.Now().UTC()

	for name, items := range snap.Collections {
		for _, item := range items {
			id := delta.ItemID(item)
			if id == "" {
				// the structure layer owns missing-id contamination
				continue
			}

			prereqs, err := intent.ItemPrerequisites(item)
			if err != nil {
				out = append(out, violation(snap.EntityID, storage.SeverityWarn,
					fmt.Sprintf("item %q in %q has a malformed prerequisite block: %v", id, name, err),
					fmt.Sprintf("integrity:malformed:%s:%s", name, id),
					map[string]any{"collection": name, "item": id},
					now,
				))
				continue
			}

			unmet := intent.Unmet(snap, prereqs)
			if len(unmet) == 0 {
				continue
			}
			severity := storage.SeverityError
			if hasUnknownType(unmet) {
				// cannot prove illegality for a prerequisite type the
				// kernel does not understand
				severity = storage.SeverityWarn
			}
			descriptions := make([]string, len(unmet))
			for i, p := range unmet {
				descriptions[i] = p.Describe()
			}
			out = append(out, violation(snap.EntityID, severity,
				fmt.Sprintf("item %q in %q lacks prerequisites: %v", id, name, descriptions),
				fmt.Sprintf("integrity:prereq:%s:%s", name, id),
				map[string]any{"collection": name, "item": id, "unmet": descriptions},
				now,
			))
		}
	}

	out = append(out, c.checkBudgets(snap, now)...)
	return out
}

// checkBudgets reports collections holding more than the snapshot's budget
// allows. Budgets that cannot be computed are skipped; the compiler already
// fails closed on them at mutation time.
func (c *Checker) checkBudgets(snap delta.Snapshot, now time.Time) []storage.Violation {
	var out []storage.Violation

	if value, ok := snap.Field("skillBudget"); ok {
		if budget, ok := asInt(value); ok {
			if trained := len(snap.Collections["skills"]); trained > budget {
				out = append(out, violation(snap.EntityID, storage.SeverityError,
					fmt.Sprintf("%d trained skills exceed budget %d", trained, budget),
					"integrity:budget:skills",
					map[string]any{"trained": trained, "budget": budget},
					now,
				))
			}
		}
	}

	if value, ok := snap.Field("abilities.wis.base"); ok {
		if wis, ok := asInt(value); ok {
			budget := 1 + (wis-10)/2
			if budget < 1 {
				budget = 1
			}
			if powers := len(snap.Collections["forcePowers"]); powers > budget {
				out = append(out, violation(snap.EntityID, storage.SeverityError,
					fmt.Sprintf("%d force powers exceed budget %d", powers, budget),
					"integrity:budget:forcePowers",
					map[string]any{"powers": powers, "budget": budget},
					now,
				))
			}
		}
	}
	return out
}

// Delta diffs the current findings against the entity's known violations
// and replaces the index with the current set. Violations are matched by
// aggregate key.
func (c *Checker) Delta(entityID string, current []storage.Violation) (added, persisting, resolved []storage.Violation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.known[entityID]
	next := make(map[string]storage.Violation, len(current))
	for _, v := range current {
		next[v.AggregateKey] = v
		if _, seen := previous[v.AggregateKey]; seen {
			persisting = append(persisting, v)
		} else {
			added = append(added, v)
		}
	}
	for key, v := range previous {
		if _, still := next[key]; !still {
			resolved = append(resolved, v)
		}
	}
	c.known[entityID] = next
	return added, persisting, resolved
}

// Known returns a copy of the entity's currently known violations.
func (c *Checker) Known(entityID string) []storage.Violation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]storage.Violation, 0, len(c.known[entityID]))
	for _, v := range c.known[entityID] {
		out = append(out, v)
	}
	return out
}

func violation(entityID string, severity storage.Severity, message, key string, vctx map[string]any, now time.Time) storage.Violation {
	return storage.Violation{
		Layer:        LayerID,
		Severity:     severity,
		Message:      message,
		Context:      vctx,
		AggregateKey: key,
		EntityID:     entityID,
		Count:        1,
		Timestamp:    now,
	}
}

func hasUnknownType(prereqs []intent.Prerequisite) bool {
	for _, p := range prereqs {
		switch p.Type {
		case intent.PrereqFeat, intent.PrereqTalent, intent.PrereqTrainedSkill,
			intent.PrereqAbility, intent.PrereqLevel, intent.PrereqForceSensitive:
		default:
			return true
		}
	}
	return false
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}
