package intent

import "github.com/docflowGM/holocron/internal/governance/delta"

// Selections carries a step's user-chosen inputs as a structural map. The
// getters accept both native Go values and the looser shapes produced by
// JSON decoding ([]any, float64).
type Selections map[string]any

// Strings returns the string list under key.
func (s Selections) Strings(key string) ([]string, bool) {
	switch v := s[key].(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		out := make([]string, len(v))
		for i, elem := range v {
			str, ok := elem.(string)
			if !ok {
				return nil, false
			}
			out[i] = str
		}
		return out, true
	default:
		return nil, false
	}
}

// Items returns the item list under key.
func (s Selections) Items(key string) ([]delta.Item, bool) {
	switch v := s[key].(type) {
	case []delta.Item:
		return append([]delta.Item(nil), v...), true
	case []any:
		out := make([]delta.Item, len(v))
		for i, elem := range v {
			item, ok := elem.(map[string]any)
			if !ok {
				return nil, false
			}
			out[i] = item
		}
		return out, true
	default:
		return nil, false
	}
}

// Item returns the single item under key.
func (s Selections) Item(key string) (delta.Item, bool) {
	item, ok := s[key].(map[string]any)
	return item, ok
}

// Number returns the numeric value under key.
func (s Selections) Number(key string) (float64, bool) {
	return asNumber(s[key])
}

// Group returns the nested object under key.
func (s Selections) Group(key string) (map[string]any, bool) {
	group, ok := s[key].(map[string]any)
	return group, ok
}
