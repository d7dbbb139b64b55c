package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/millennium/themeconfig"
)

// ErrUnknownField is returned for a dotted path that names no config field.
var ErrUnknownField = errors.New("unknown config field")

// Fields flattens cfg into dotted YAML paths such as "loader.ipc_url".
// Sequences are joined with commas, the same form the env loader accepts.
func Fields(cfg *Config) (map[string]string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	out := make(map[string]string)
	flatten(&doc, "", out)
	return out, nil
}

// FieldNames returns every dotted path of the config, sorted.
func FieldNames() []string {
	fields, _ := Fields(DefaultConfig())
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func flatten(n *yaml.Node, prefix string, out map[string]string) {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			flatten(c, prefix, out)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			flatten(n.Content[i+1], key, out)
		}
	case yaml.SequenceNode:
		parts := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			parts = append(parts, c.Value)
		}
		out[prefix] = strings.Join(parts, ",")
	default:
		out[prefix] = n.Value
	}
}

// Lookup returns the value of one dotted field.
func Lookup(cfg *Config, field string) (string, error) {
	fields, err := Fields(cfg)
	if err != nil {
		return "", err
	}
	v, ok := fields[field]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return v, nil
}

// SetField writes one dotted field into the YAML file at path, creating the
// file if needed. The literal is typed with themeconfig.ParseValue, and the
// result must still decode into a Config.
func SetField(path, field, literal string) error {
	if _, err := Lookup(DefaultConfig(), field); err != nil {
		return err
	}
	value, err := themeconfig.ParseValue(literal)
	if err != nil {
		return err
	}
	var valueNode yaml.Node
	if err := valueNode.Encode(value); err != nil {
		return fmt.Errorf("encode value: %w", err)
	}

	doc, err := readDocument(path)
	if err != nil {
		return err
	}
	setPath(doc.Content[0], strings.Split(field, "."), &valueNode)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := yaml.Unmarshal(buf.Bytes(), DefaultConfig()); err != nil {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, field, literal, err)
	}
	return writeAtomic(path, buf.Bytes())
}

func readDocument(path string) (*yaml.Node, error) {
	doc := &yaml.Node{Kind: yaml.DocumentNode}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	if doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s is not a mapping", ErrInvalidConfig, path)
	}
	return doc, nil
}

// setPath replaces or inserts keys[len-1] under the mapping chain named by
// the leading keys, creating missing mappings.
func setPath(m *yaml.Node, keys []string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != keys[0] {
			continue
		}
		if len(keys) == 1 {
			m.Content[i+1] = value
			return
		}
		child := m.Content[i+1]
		if child.Kind != yaml.MappingNode {
			child = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			m.Content[i+1] = child
		}
		setPath(child, keys[1:], value)
		return
	}

	key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: keys[0]}
	if len(keys) == 1 {
		m.Content = append(m.Content, key, value)
		return
	}
	child := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, key, child)
	setPath(child, keys[1:], value)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
