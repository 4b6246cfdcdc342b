package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// discoverOrder lists the well-known config locations, tried in order.
var discoverOrder = []string{
	"parts.yaml",
	".parts.yaml",
	"parts.toml",
	".parts.toml",
	"pyproject.toml:tool.parts",
}

// Load reads and validates the config addressed by value ("path" or
// "path:key.key"). The format is chosen by file extension.
func Load(value string) (*File, error) {
	path, keys := SplitPathAndKeys(value)

	data, err := os.ReadFile(path) // #nosec G304 - user-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		return loadYAML(value, path, keys, data)
	case ".toml":
		return loadTOML(value, path, keys, data)
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml or .toml)", path, ext)
	}
}

// Discover tries the well-known locations relative to dir and returns the
// first config that loads. Failures along the way are logged, not fatal.
func Discover(dir string) (*File, error) {
	for _, candidate := range discoverOrder {
		path, keys := SplitPathAndKeys(candidate)
		full := filepath.Join(dir, path)
		if _, err := os.Stat(full); err != nil {
			slog.Debug("Config candidate not present", "path", full)
			continue
		}

		value := full
		if len(keys) > 0 {
			value = full + splitPath + candidate[len(path)+1:]
		}
		f, err := Load(value)
		if err != nil {
			slog.Warn("Config candidate failed to load", "path", full, "error", err)
			continue
		}
		slog.Debug("Config discovered", "source", f.Source, "parts", len(f.Parts))
		return f, nil
	}
	return nil, ErrNoConfigFound
}

func loadYAML(source, path string, keys []string, data []byte) (*File, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		// Empty document: valid, declares no parts.
		return assemble(source, path, keys, "", nil, nil)
	}

	node := doc.Content[0]
	for _, key := range keys {
		next, ok := mappingGet(node, key)
		if !ok {
			if node.Kind != yaml.MappingNode {
				return nil, &NotTableError{Path: path}
			}
			return nil, &KeyError{Path: path, Key: key}
		}
		node = next
	}
	if node.Kind != yaml.MappingNode {
		return nil, &NotTableError{Path: path}
	}

	var (
		defaultName string
		names       []string
		specs       = make(map[string]*partSpec)
	)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Value == "default" {
			if err := v.Decode(&defaultName); err != nil {
				return nil, fmt.Errorf("config %s: default: %w", path, err)
			}
			continue
		}
		spec := &partSpec{}
		if err := v.Decode(spec); err != nil {
			return nil, fmt.Errorf("config %s: part %q: %w", path, k.Value, err)
		}
		if _, dup := specs[k.Value]; dup {
			return nil, &DuplicatePartError{Name: k.Value}
		}
		names = append(names, k.Value)
		specs[k.Value] = spec
	}
	return assemble(source, path, keys, defaultName, names, specs)
}

func loadTOML(source, path string, keys []string, data []byte) (*File, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cur := any(doc)
	for _, key := range keys {
		table, ok := cur.(map[string]any)
		if !ok {
			return nil, &NotTableError{Path: path}
		}
		cur, ok = table[key]
		if !ok {
			return nil, &KeyError{Path: path, Key: key}
		}
	}
	table, ok := cur.(map[string]any)
	if !ok {
		return nil, &NotTableError{Path: path}
	}

	var (
		defaultName string
		names       []string
		specs       = make(map[string]*partSpec)
	)
	for name, value := range table {
		if name == "default" {
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("config %s: default must be a string", path)
			}
			defaultName = s
			continue
		}
		sub, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("config %s: part %q is not a table", path, name)
		}
		spec := &partSpec{}
		raw, err := toml.Marshal(sub)
		if err != nil {
			return nil, fmt.Errorf("config %s: part %q: %w", path, name, err)
		}
		if err := toml.Unmarshal(raw, spec); err != nil {
			return nil, fmt.Errorf("config %s: part %q: %w", path, name, err)
		}
		names = append(names, name)
		specs[name] = spec
	}
	// go-toml decodes into maps, losing declaration order.
	sort.Strings(names)

	return assemble(source, path, keys, defaultName, names, specs)
}

// mappingGet finds the value node for key inside a YAML mapping node.
func mappingGet(node *yaml.Node, key string) (*yaml.Node, bool) {
	if node.Kind != yaml.MappingNode {
		return nil, false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1], true
		}
	}
	return nil, false
}
