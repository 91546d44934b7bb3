package delta

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedPath indicates a set path is empty or has empty segments.
	ErrMalformedPath = errors.New("malformed field path")
	// ErrPathConflict indicates a set path traverses a non-object value.
	ErrPathConflict = errors.New("field path traverses non-object value")
	// ErrMissingItemID indicates an added item has no usable id.
	ErrMissingItemID = errors.New("collection item id is required")
)

// ApplyInMemory applies a delta to a snapshot and returns the resulting
// snapshot, without touching the host. It is pure: the input snapshot is
// never modified. Malformed deltas fail closed with no partial application.
func ApplyInMemory(s Snapshot, d Delta) (Snapshot, error) {
	// Validate everything up front so failures leave no partial state.
	for path := range d.Set {
		if _, err := splitPath(path); err != nil {
			return Snapshot{}, err
		}
	}
	for name, items := range d.Add {
		for _, item := range items {
			if ItemID(item) == "" {
				return Snapshot{}, fmt.Errorf("add to %q: %w", name, ErrMissingItemID)
			}
		}
	}

	out := s.Clone()

	for path, value := range d.Set {
		if err := setPath(out.Fields, path, copyValue(value)); err != nil {
			return Snapshot{}, err
		}
	}

	for name, items := range d.Add {
		existing := out.Collections[name]
		for _, item := range items {
			id := ItemID(item)
			replaced := false
			for i, current := range existing {
				if ItemID(current) == id {
					existing[i] = copyMap(item)
					replaced = true
					break
				}
			}
			if !replaced {
				existing = append(existing, copyMap(item))
			}
		}
		out.Collections[name] = existing
	}

	for name, ids := range d.Delete {
		existing := out.Collections[name]
		if len(existing) == 0 {
			continue
		}
		remove := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			remove[id] = struct{}{}
		}
		kept := existing[:0]
		for _, item := range existing {
			if _, gone := remove[ItemID(item)]; !gone {
				kept = append(kept, item)
			}
		}
		out.Collections[name] = kept
	}

	return out, nil
}

// setPath writes value at a dot-separated path, creating intermediate
// objects as needed. Traversing through an existing non-object fails.
func setPath(fields map[string]any, path string, value any) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	current := fields
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment]
		if !ok {
			child := map[string]any{}
			current[segment] = child
			current = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("path %q at %q: %w", path, segment, ErrPathConflict)
		}
		current = child
	}
	current[segments[len(segments)-1]] = value
	return nil
}

func splitPath(path string) ([]string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("empty path: %w", ErrMalformedPath)
	}
	segments := strings.Split(trimmed, ".")
	for _, segment := range segments {
		if segment == "" {
			return nil, fmt.Errorf("path %q: %w", path, ErrMalformedPath)
		}
	}
	return segments, nil
}
