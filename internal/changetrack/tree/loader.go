package tree

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseSchemaYAML decodes and validates a schema document.
func ParseSchemaYAML(data []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &schema, nil
}

// LoadSchemaFile reads a YAML schema from disk.
func LoadSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return ParseSchemaYAML(data)
}
