package delta

import "fmt"

// Invert builds the delta that undoes d when applied to the state d produced,
// using the pre-mutation snapshot for exact prior values. Set paths are
// restored to their pre-mutation values, adds become deletes by id, and
// deletes become adds re-inserting the snapshot's copies.
func Invert(d Delta, before Snapshot) (Delta, error) {
	out := Delta{}

	if len(d.Set) > 0 {
		out.Set = make(map[string]any, len(d.Set))
		for path := range d.Set {
			if _, err := splitPath(path); err != nil {
				return Delta{}, err
			}
			prior, ok := before.Field(path)
			if !ok {
				// The path did not exist before the mutation; restore it to nil
				// rather than leaving the mutated value in place.
				prior = nil
			}
			out.Set[path] = prior
		}
	}

	for name, items := range d.Add {
		for _, item := range items {
			id := ItemID(item)
			if id == "" {
				return Delta{}, fmt.Errorf("invert add to %q: %w", name, ErrMissingItemID)
			}
			if _, existed := before.CollectionItem(name, id); existed {
				// The add replaced an existing item; restore the prior copy.
				prior, _ := before.CollectionItem(name, id)
				if out.Add == nil {
					out.Add = map[string][]Item{}
				}
				out.Add[name] = append(out.Add[name], prior)
				continue
			}
			if out.Delete == nil {
				out.Delete = map[string][]string{}
			}
			out.Delete[name] = append(out.Delete[name], id)
		}
	}

	for name, ids := range d.Delete {
		for _, id := range ids {
			item, ok := before.CollectionItem(name, id)
			if !ok {
				// Deleting an absent id was a no-op; so is its inverse.
				continue
			}
			if out.Add == nil {
				out.Add = map[string][]Item{}
			}
			out.Add[name] = append(out.Add[name], item)
		}
	}

	return Normalize(out), nil
}
