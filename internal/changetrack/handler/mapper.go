package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Mapper converts an ad-hoc object into the field map that gets diffed.
type Mapper[E any] interface {
	ToFieldMap(entity E) (map[string]any, error)
}

// MapperFunc adapts a function to the Mapper interface.
type MapperFunc[E any] func(entity E) (map[string]any, error)

// ToFieldMap calls f.
func (f MapperFunc[E]) ToFieldMap(entity E) (map[string]any, error) {
	return f(entity)
}

// JSONMapper maps an object through its JSON encoding, so json tags decide
// which fields are tracked and under which names. Numbers are kept as
// json.Number to avoid float rounding in comparisons.
type JSONMapper[E any] struct{}

func (JSONMapper[E]) ToFieldMap(entity E) (map[string]any, error) {
	encoded, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", entity, err)
	}
	var out map[string]any
	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("%T does not encode to a JSON object: %w", entity, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
