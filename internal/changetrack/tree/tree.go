package tree

import "fmt"

// Tree is one level of dynamic data bound to a schema. Simple values are kept
// as given, nested values are *Tree bound to the nested property's schema and
// computed values are never stored.
type Tree struct {
	schema *Schema
	values map[string]any
}

// New returns an empty tree bound to schema.
func New(schema *Schema) *Tree {
	return &Tree{schema: schema, values: make(map[string]any)}
}

// FromMap builds a tree from a generic map, typically decoded JSON. Nested
// properties expect map[string]any (or *Tree) values; keys naming computed
// properties are ignored because computed values are derived, not stored.
func FromMap(schema *Schema, data map[string]any) (*Tree, error) {
	t := New(schema)
	for name, raw := range data {
		prop, ok := schema.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown property %q", name)
		}
		switch prop.EffectiveKind() {
		case KindComputed:
			continue
		case KindNested:
			switch v := raw.(type) {
			case nil:
				t.values[name] = nil
			case *Tree:
				if err := t.Set(name, v); err != nil {
					return nil, err
				}
			case map[string]any:
				child, err := FromMap(prop.Schema, v)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", name, err)
				}
				t.values[name] = child
			default:
				return nil, fmt.Errorf("nested property %q expects an object, got %T", name, raw)
			}
		default:
			t.values[name] = raw
		}
	}
	return t, nil
}

// Schema returns the schema the tree is bound to.
func (t *Tree) Schema() *Schema {
	return t.schema
}

// Set stores a simple value or a nested child tree.
func (t *Tree) Set(name string, value any) error {
	prop, ok := t.schema.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown property %q", name)
	}
	switch prop.EffectiveKind() {
	case KindComputed:
		return fmt.Errorf("property %q is computed and cannot be set", name)
	case KindNested:
		child, isTree := value.(*Tree)
		if value != nil && !isTree {
			return fmt.Errorf("nested property %q expects *Tree, got %T", name, value)
		}
		if child != nil && child.schema != prop.Schema {
			return fmt.Errorf("nested property %q: child tree is bound to a different schema", name)
		}
		if child == nil {
			t.values[name] = nil
			return nil
		}
		t.values[name] = child
	default:
		t.values[name] = value
	}
	return nil
}

// Unset removes a stored value so the property reads as absent-and-null.
func (t *Tree) Unset(name string) {
	delete(t.values, name)
}

// Child returns the nested tree stored under name, creating an empty one
// bound to the nested schema when none exists yet.
func (t *Tree) Child(name string) (*Tree, error) {
	prop, ok := t.schema.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown property %q", name)
	}
	if prop.EffectiveKind() != KindNested {
		return nil, fmt.Errorf("property %q is not nested", name)
	}
	if child, ok := t.values[name].(*Tree); ok && child != nil {
		return child, nil
	}
	child := New(prop.Schema)
	t.values[name] = child
	return child, nil
}

// Get reads a property. Computed properties are evaluated on every call.
func (t *Tree) Get(name string) (any, error) {
	prop, ok := t.schema.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown property %q", name)
	}
	if prop.EffectiveKind() == KindComputed {
		v, err := evaluate(prop.Expression, t.storedData())
		if err != nil {
			return nil, fmt.Errorf("evaluate %q: %w", name, err)
		}
		return v, nil
	}
	return t.values[name], nil
}

// Clone returns a deep copy of the tree structure. Leaf values are copied by
// assignment, so callers should treat them as immutable.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	out := &Tree{schema: t.schema, values: make(map[string]any, len(t.values))}
	for name, v := range t.values {
		if child, ok := v.(*Tree); ok {
			out.values[name] = child.Clone()
			continue
		}
		out.values[name] = v
	}
	return out
}

// ToMap renders the tree as a generic map including evaluated computed
// properties. Computed values that fail to evaluate render as nil.
func (t *Tree) ToMap() map[string]any {
	if t == nil {
		return nil
	}
	out := t.storedData()
	for _, prop := range t.schema.Properties {
		switch prop.EffectiveKind() {
		case KindComputed:
			v, err := evaluate(prop.Expression, out)
			if err != nil {
				v = nil
			}
			out[prop.Name] = v
		case KindNested:
			if child, ok := t.values[prop.Name].(*Tree); ok && child != nil {
				out[prop.Name] = child.ToMap()
			}
		}
	}
	return out
}

// storedData returns the authoritative values as a generic map, nested trees
// included, computed properties excluded.
func (t *Tree) storedData() map[string]any {
	out := make(map[string]any, len(t.values))
	for name, v := range t.values {
		if child, ok := v.(*Tree); ok {
			if child == nil {
				out[name] = nil
				continue
			}
			out[name] = child.storedData()
			continue
		}
		out[name] = v
	}
	return out
}
