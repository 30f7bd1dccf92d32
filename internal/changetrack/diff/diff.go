// Package diff reduces before/after state maps to what actually changed.
package diff

import (
	"reflect"
	"slices"
)

// RemoveUnchanged deletes, from both maps, every key present in both with an
// equal value. Keys present in only one map are kept even when their value is
// nil: a key appearing or disappearing is itself a change. Both maps are
// modified in place; a nil map is treated as empty.
func RemoveUnchanged[M ~map[string]V, V any](before, after M) {
	for key, oldValue := range before {
		newValue, ok := after[key]
		if !ok {
			continue
		}
		if reflect.DeepEqual(oldValue, newValue) {
			delete(before, key)
			delete(after, key)
		}
	}
}

// Changed reports whether anything is left after RemoveUnchanged.
func Changed[M ~map[string]V, V any](before, after M) bool {
	return len(before) > 0 || len(after) > 0
}

// Keys returns the sorted union of keys left in both maps, which is the set
// of paths that were added, removed or modified.
func Keys[M ~map[string]V, V any](before, after M) []string {
	seen := make(map[string]struct{}, len(before)+len(after))
	keys := make([]string, 0, len(before)+len(after))
	for _, m := range []M{before, after} {
		for key := range m {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}
