// Package envfile loads environment override files: flat JSON objects of
// variable name to value.
package envfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Load reads the override file at path. An empty path or a missing file
// yields an empty map.
func Load(path string) (map[string]string, error) {
	env := make(map[string]string)
	if path == "" {
		return env, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return env, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	if len(data) == 0 {
		return env, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse env file %s: %w", path, err)
	}
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			env[k] = val
		case nil:
			env[k] = ""
		case bool, float64:
			env[k] = fmt.Sprint(val)
		default:
			return nil, fmt.Errorf("env file %s: value of %q must be a scalar", path, k)
		}
	}
	return env, nil
}
