// Package delta defines the atomic change vocabulary of the governance
// kernel: deltas describing field and collection changes, and immutable
// snapshots of entity state they are validated and inverted against.
package delta

import (
	"sort"
	"time"
)

// Item is a single embedded-collection entry. Every item carries an "id"
// string key; everything else is entity data the kernel treats as opaque.
type Item = map[string]any

// ItemID returns the item's id, or an empty string when the id is missing
// or not a string.
func ItemID(item Item) string {
	id, _ := item["id"].(string)
	return id
}

// Delta is an atomic description of a state change. Pure data, no behavior.
//
// Set maps dot-separated field paths to replacement values. Add maps
// collection names to items to insert. Delete maps collection names to item
// ids to remove. Application order is Set, then Add, then Delete, so an id
// appearing in both Add and Delete ends up removed. Applying a Delta twice
// against the same base snapshot is idempotent for Set, and deleting an
// absent id is a no-op.
type Delta struct {
	Set    map[string]any      `json:"set,omitempty"`
	Add    map[string][]Item   `json:"add,omitempty"`
	Delete map[string][]string `json:"delete,omitempty"`
}

// IsEmpty reports whether the delta describes no change.
func (d Delta) IsEmpty() bool {
	return len(d.Set) == 0 && len(d.Add) == 0 && len(d.Delete) == 0
}

// Clone returns a deep copy of the delta.
func (d Delta) Clone() Delta {
	out := Delta{}
	if len(d.Set) > 0 {
		out.Set = make(map[string]any, len(d.Set))
		for path, value := range d.Set {
			out.Set[path] = copyValue(value)
		}
	}
	if len(d.Add) > 0 {
		out.Add = make(map[string][]Item, len(d.Add))
		for name, items := range d.Add {
			copied := make([]Item, len(items))
			for i, item := range items {
				copied[i] = copyMap(item)
			}
			out.Add[name] = copied
		}
	}
	if len(d.Delete) > 0 {
		out.Delete = make(map[string][]string, len(d.Delete))
		for name, ids := range d.Delete {
			out.Delete[name] = append([]string(nil), ids...)
		}
	}
	return out
}

// Normalize returns a copy with add items sorted by id and delete ids sorted,
// so deltas compiled from the same inputs compare byte-identical once encoded.
func Normalize(d Delta) Delta {
	out := d.Clone()
	for name, items := range out.Add {
		sort.SliceStable(items, func(i, j int) bool {
			return ItemID(items[i]) < ItemID(items[j])
		})
		out.Add[name] = items
	}
	for name, ids := range out.Delete {
		sort.Strings(ids)
		out.Delete[name] = ids
	}
	return out
}

// Snapshot is an immutable, deep-copied capture of an entity's state at a
// point in time. Snapshots are never mutated in place; accessors return
// copies so holders cannot reach the original maps.
type Snapshot struct {
	EntityID    string            `json:"entity_id"`
	Fields      map[string]any    `json:"fields"`
	Collections map[string][]Item `json:"collections"`
	TakenAt     time.Time         `json:"taken_at"`
}

// NewSnapshot deep-copies the provided state into an immutable snapshot.
func NewSnapshot(entityID string, fields map[string]any, collections map[string][]Item, takenAt time.Time) Snapshot {
	return Snapshot{
		EntityID:    entityID,
		Fields:      copyMap(fields),
		Collections: copyCollections(collections),
		TakenAt:     takenAt.UTC(),
	}
}

// Clone returns an independent deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		EntityID:    s.EntityID,
		Fields:      copyMap(s.Fields),
		Collections: copyCollections(s.Collections),
		TakenAt:     s.TakenAt,
	}
}

// Field resolves a dot-separated path against the snapshot's field tree.
// The returned value is a copy; mutating it does not affect the snapshot.
func (s Snapshot) Field(path string) (any, bool) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	current := any(s.Fields)
	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return copyValue(current), true
}

// Collection returns a copy of the named embedded collection.
func (s Snapshot) Collection(name string) []Item {
	items, ok := s.Collections[name]
	if !ok {
		return nil
	}
	copied := make([]Item, len(items))
	for i, item := range items {
		copied[i] = copyMap(item)
	}
	return copied
}

// CollectionItem returns a copy of the item with the given id, if present.
func (s Snapshot) CollectionItem(name, id string) (Item, bool) {
	for _, item := range s.Collections[name] {
		if ItemID(item) == id {
			return copyMap(item), true
		}
	}
	return nil, false
}

func copyCollections(collections map[string][]Item) map[string][]Item {
	if collections == nil {
		return map[string][]Item{}
	}
	out := make(map[string][]Item, len(collections))
	for name, items := range collections {
		copied := make([]Item, len(items))
		for i, item := range items {
			copied[i] = copyMap(item)
		}
		out[name] = copied
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for key, value := range m {
		out[key] = copyValue(value)
	}
	return out
}

func copyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return copyMap(v)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = copyValue(elem)
		}
		return out
	case []Item:
		out := make([]Item, len(v))
		for i, item := range v {
			out[i] = copyMap(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}
