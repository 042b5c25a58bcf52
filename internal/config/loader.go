package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// fileLoader resolves a config file plus its $include chain into one raw
// map. The visited set guards against include cycles across the whole
// resolution, not just direct self-inclusion.
type fileLoader struct {
	visited map[string]struct{}
}

// LoadRaw reads a configuration file into a merged raw map, resolving
// $include directives and expanding ${ENV} references.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	fl := &fileLoader{visited: map[string]struct{}{}}
	return fl.load(path)
}

func (fl *fileLoader) load(path string) (map[string]any, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, ok := fl.visited[path]; ok {
		return nil, fmt.Errorf("config include cycle detected at %s", path)
	}
	fl.visited[path] = struct{}{}
	defer delete(fl.visited, path)

	raw, err := fl.readFile(path)
	if err != nil {
		return nil, err
	}

	includes, err := popIncludes(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Includes merge in listed order, then the file's own keys win.
	result := map[string]any{}
	dir := filepath.Dir(path)
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(dir, inc)
		}
		sub, err := fl.load(inc)
		if err != nil {
			return nil, err
		}
		mergeInto(result, sub)
	}
	mergeInto(result, raw)
	return result, nil
}

func (fl *fileLoader) readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = []byte(os.ExpandEnv(string(data)))

	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		err = json5.Unmarshal(data, &raw)
	default:
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return raw, nil
}

// popIncludes removes the include directive from raw and returns the listed
// paths. Both "$include" and "include" are accepted, with a single string or
// a list of strings as the value.
func popIncludes(raw map[string]any) ([]string, error) {
	var value any
	for _, key := range []string{"$include", "include"} {
		if v, ok := raw[key]; ok {
			value = v
			delete(raw, key)
			break
		}
	}

	var paths []string
	switch v := value.(type) {
	case nil:
	case string:
		paths = append(paths, v)
	case []any:
		for _, entry := range v {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("include entries must be strings, got %T", entry)
			}
			paths = append(paths, s)
		}
	default:
		return nil, fmt.Errorf("include must be a string or list of strings, got %T", value)
	}

	kept := paths[:0]
	for _, p := range paths {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

// mergeInto overlays src onto dst in place. Nested maps merge key by key;
// any other value in src replaces what dst had.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				mergeInto(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
}
