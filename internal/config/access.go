package config

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath returns the value at a dotted path such as "state.retention", as
// it would appear in the YAML rendering. An empty path returns everything.
func (c *Config) GetPath(path string) (any, error) {
	var node yaml.Node
	if err := node.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	cur := &node
	for _, key := range strings.Split(path, ".") {
		if key == "" {
			continue
		}
		if cur.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%s: %q is not a section", path, key)
		}
		next := mappingValue(cur, key)
		if next == nil {
			return nil, fmt.Errorf("%s: key %q not found", path, key)
		}
		cur = next
	}

	var v any
	if err := cur.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return v, nil
}

// mappingValue returns the value node for key in a mapping node, or nil.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}
