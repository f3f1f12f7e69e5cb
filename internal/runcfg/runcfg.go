// Package runcfg resolves the workflow configuration from its layered
// sources: a config file declared by the workflow, a config file given on the
// command line, and individual command-line overrides. The result is a single
// flat mapping with defined precedence, immutable after Resolve returns.
package runcfg

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MissingKeyError reports a mandatory config lookup for an absent key.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing config key %q: set it in the config file or with --config %s=...", e.Key, e.Key)
}

// Map is the resolved configuration. It is safe for concurrent reads.
type Map struct {
	values map[string]any
}

// Resolve builds the configuration mapping. Precedence, highest first:
// overrides ("key=value" strings, last one wins for duplicates), then the
// command-line config file, then the workflow-declared config file. Passing a
// non-empty cliPath replaces declaredPath entirely rather than layering over
// it, matching the behavior the overridden file's author would expect.
func Resolve(declaredPath, cliPath string, overrides []string) (*Map, error) {
	values := make(map[string]any)

	path := declaredPath
	if cliPath != "" {
		path = cliPath
	}
	if path != "" {
		loaded, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range loaded {
			values[k] = v
		}
	}

	for _, kv := range overrides {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed --config override %q: expected key=value", kv)
		}
		values[key] = parseScalar(raw)
	}

	return &Map{values: values}, nil
}

// Empty returns a Map with no keys.
func Empty() *Map {
	return &Map{values: map[string]any{}}
}

// loadFile parses a YAML config file into a flat key to value mapping.
func loadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	loaded := make(map[string]any)
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return loaded, nil
}

// parseScalar interprets an override value with YAML scalar rules, so that
// `-config threads=4` yields an int and `-config genome=hg38` a string.
func parseScalar(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	switch v.(type) {
	case map[string]any, []any:
		// Overrides are scalars; anything structured stays a literal string.
		return raw
	}
	return v
}

// Get returns the value for key, failing with MissingKeyError when absent.
// This is the mandatory-lookup form.
func (m *Map) Get(key string) (any, error) {
	v, ok := m.values[key]
	if !ok {
		return nil, &MissingKeyError{Key: key}
	}
	return v, nil
}

// GetDefault returns the value for key, or def when the key is absent. It
// never fails.
func (m *Map) GetDefault(key string, def any) any {
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Keys returns the present keys, sorted for deterministic diagnostics.
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys.
func (m *Map) Len() int { return len(m.values) }
