package component

import (
	"fmt"
	"strconv"
)

// String reads an optional string config key; returns fallback when unset.
func (s Spec) String(key, fallback string) string {
	v, ok := s.Config[key]
	if !ok {
		return fallback
	}
	str, ok := v.(string)
	if !ok {
		return fallback
	}
	return str
}

// RequireString reads a mandatory string config key.
func (s Spec) RequireString(key string) (string, error) {
	v, ok := s.Config[key]
	if !ok {
		return "", fmt.Errorf("step %q: config key %q is required", s.StepID, key)
	}
	str, ok := v.(string)
	if !ok || str == "" {
		return "", fmt.Errorf("step %q: config key %q must be a non-empty string", s.StepID, key)
	}
	return str, nil
}

// Int reads an optional integer config key, accepting YAML ints and numeric
// strings produced by rendering.
func (s Spec) Int(key string, fallback int) int {
	v, ok := s.Config[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return fallback
}

// Bool reads an optional boolean config key.
func (s Spec) Bool(key string, fallback bool) bool {
	v, ok := s.Config[key]
	if !ok {
		return fallback
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return fallback
}

// StringSlice reads an optional list-of-strings config key.
func (s Spec) StringSlice(key string) []string {
	v, ok := s.Config[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// Connection returns the merged connection fields, if the step declared one.
func (s Spec) Connection() (map[string]any, bool) {
	v, ok := s.Config[ConnectionKey]
	if !ok {
		return nil, false
	}
	fields, ok := v.(map[string]any)
	return fields, ok
}

// ConnString reads a string field from the merged connection record.
func (s Spec) ConnString(key, fallback string) string {
	fields, ok := s.Connection()
	if !ok {
		return fallback
	}
	v, ok := fields[key].(string)
	if !ok {
		return fallback
	}
	return v
}
