package delta

import "reflect"

// Diff computes the delta that transforms before into after. It is a
// convenience for callers that already hold both states; the kernel itself
// only ever applies compiler-produced deltas. Field diffs are emitted at the
// deepest changed path; collection diffs are emitted as whole-item add and
// delete entries. The result is normalized for stable comparison.
func Diff(before, after Snapshot) Delta {
	out := Delta{}

	diffFields("", before.Fields, after.Fields, &out)

	names := map[string]struct{}{}
	for name := range before.Collections {
		names[name] = struct{}{}
	}
	for name := range after.Collections {
		names[name] = struct{}{}
	}
	for name := range names {
		diffCollection(name, before.Collections[name], after.Collections[name], &out)
	}

	return Normalize(out)
}

func diffFields(prefix string, before, after map[string]any, out *Delta) {
	for key, afterValue := range after {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		beforeValue, existed := before[key]
		if !existed {
			setDiff(out, path, afterValue)
			continue
		}
		beforeMap, beforeIsMap := beforeValue.(map[string]any)
		afterMap, afterIsMap := afterValue.(map[string]any)
		if beforeIsMap && afterIsMap {
			diffFields(path, beforeMap, afterMap, out)
			continue
		}
		if !reflect.DeepEqual(beforeValue, afterValue) {
			setDiff(out, path, afterValue)
		}
	}
	for key := range before {
		if _, kept := after[key]; kept {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		setDiff(out, path, nil)
	}
}

func diffCollection(name string, before, after []Item, out *Delta) {
	beforeByID := make(map[string]Item, len(before))
	for _, item := range before {
		beforeByID[ItemID(item)] = item
	}
	seen := make(map[string]struct{}, len(after))
	for _, item := range after {
		id := ItemID(item)
		seen[id] = struct{}{}
		prior, existed := beforeByID[id]
		if existed && reflect.DeepEqual(prior, item) {
			continue
		}
		if out.Add == nil {
			out.Add = map[string][]Item{}
		}
		out.Add[name] = append(out.Add[name], copyMap(item))
	}
	for _, item := range before {
		id := ItemID(item)
		if _, kept := seen[id]; kept {
			continue
		}
		if out.Delete == nil {
			out.Delete = map[string][]string{}
		}
		out.Delete[name] = append(out.Delete[name], id)
	}
}

func setDiff(out *Delta, path string, value any) {
	if out.Set == nil {
		out.Set = map[string]any{}
	}
	out.Set[path] = copyValue(value)
}
