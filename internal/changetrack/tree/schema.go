// Package tree models dynamic, schema-described property trees and flattens
// them into dot-path state maps for diffing.
//
// A Schema declares each property as simple, computed or nested. The schema a
// tree is bound to is the only source of truth for that classification, and
// every nested tree carries its own schema, so a computed property can sit at
// any depth.
package tree

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a schema property.
type Kind string

const (
	// KindSimple holds an authoritative primitive or typed value.
	KindSimple Kind = "simple"
	// KindComputed is derived at read time from an expression and never
	// participates in change history.
	KindComputed Kind = "computed"
	// KindNested holds a child tree described by its own schema.
	KindNested Kind = "nested"
)

// Property is one schema-declared entry of a tree.
type Property struct {
	Name string `yaml:"name" json:"name"`
	Kind Kind   `yaml:"kind" json:"kind"`
	// Expression is a JSON Logic rule evaluated against the sibling values.
	// Only meaningful for computed properties.
	Expression any `yaml:"expression,omitempty" json:"expression,omitempty"`
	// Schema describes the child tree. Only meaningful for nested properties.
	Schema *Schema `yaml:"schema,omitempty" json:"schema,omitempty"`
}

// EffectiveKind treats an empty kind as simple.
func (p Property) EffectiveKind() Kind {
	if p.Kind == "" {
		return KindSimple
	}
	return p.Kind
}

// Schema describes the properties of one level of a tree.
type Schema struct {
	Name       string     `yaml:"name,omitempty" json:"name,omitempty"`
	Properties []Property `yaml:"properties" json:"properties"`
}

// Lookup returns the property declared under name.
func (s *Schema) Lookup(name string) (Property, bool) {
	if s == nil {
		return Property{}, false
	}
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Validate checks the schema and all nested schemas.
func (s *Schema) Validate() error {
	return s.validate("")
}

func (s *Schema) validate(prefix string) error {
	if s == nil {
		return errors.New("schema is nil")
	}
	seen := make(map[string]struct{}, len(s.Properties))
	for _, p := range s.Properties {
		path := joinPath(prefix, p.Name)
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("property under %q has an empty name", prefix)
		}
		if strings.Contains(p.Name, ".") {
			return fmt.Errorf("property %q: name must not contain '.'", path)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("property %q declared twice", path)
		}
		seen[p.Name] = struct{}{}

		switch p.EffectiveKind() {
		case KindSimple:
		case KindComputed:
			if p.Expression == nil {
				return fmt.Errorf("computed property %q has no expression", path)
			}
		case KindNested:
			if p.Schema == nil {
				return fmt.Errorf("nested property %q has no schema", path)
			}
			if err := p.Schema.validate(path); err != nil {
				return err
			}
		default:
			return fmt.Errorf("property %q has unknown kind %q", path, p.Kind)
		}
	}
	return nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
