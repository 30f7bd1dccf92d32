package tree

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FlatState maps a dot-delimited path to a stringified value. A nil value
// means the property is present but null, which differs from an absent key.
type FlatState map[string]any

// Flatten walks t depth first and records every simple property under its
// dot path. Computed properties are collected during the walk and removed from
// the result at the end, so they never surface no matter which traversal
// inserted them. A nil tree yields an empty map; a nil nested child flattens
// like an empty child bound to the nested schema.
func Flatten(t *Tree) FlatState {
	out := FlatState{}
	if t == nil {
		return out
	}

	var computed []string
	flattenInto(t, "", out, &computed)
	for _, path := range computed {
		delete(out, path)
	}
	return out
}

func flattenInto(t *Tree, prefix string, out FlatState, computed *[]string) {
	if t.schema == nil {
		return
	}
	for _, prop := range t.schema.Properties {
		path := joinPath(prefix, prop.Name)
		switch prop.EffectiveKind() {
		case KindComputed:
			*computed = append(*computed, path)
		case KindNested:
			child, _ := t.values[prop.Name].(*Tree)
			if child == nil {
				// An unset block reads like an empty one: every leaf null.
				child = New(prop.Schema)
			}
			flattenInto(child, path, out, computed)
		default:
			v, ok := t.values[prop.Name]
			if !ok || v == nil {
				out[path] = nil
				continue
			}
			out[path] = Stringify(v)
		}
	}
}

// Stringify renders a leaf value the way it is compared and reported.
func Stringify(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case int64:
		return strconv.FormatInt(typed, 10)
	case uint:
		return strconv.FormatUint(uint64(typed), 10)
	case uint64:
		return strconv.FormatUint(typed, 10)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.Number:
		return typed.String()
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return typed.String()
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(encoded)
}
