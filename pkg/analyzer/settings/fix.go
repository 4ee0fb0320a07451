package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/panbanda/auger/pkg/models"
)

// ErrUnsupportedFormat is returned for settings files that cannot be read,
// or rewritten by a fix.
var ErrUnsupportedFormat = errors.New("unsupported settings format")

// Fix writes the recommended value of a settings issue back to the file.
// Only YAML files can be rewritten; comments and key order are kept.
func Fix(_ context.Context, issue *models.Issue) error {
	if issue.Location == nil || len(issue.Properties) < 3 {
		return fmt.Errorf("issue %s carries no settings value", issue.DescriptorID)
	}
	path := issue.Location.Path
	if !isYAML(path) {
		return fmt.Errorf("%w: cannot rewrite %s", ErrUnsupportedFormat, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := setValue(&doc, issue.Properties[0], issue.Properties[2]); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// setValue sets the scalar at a dotted key, creating mappings on the way.
func setValue(doc *yaml.Node, key, value string) error {
	if doc.Kind == 0 {
		doc.Kind = yaml.DocumentNode
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	node := doc.Content[0]
	parts := strings.Split(key, ".")
	for i, part := range parts {
		if node.Kind != yaml.MappingNode {
			return fmt.Errorf("settings key %q: %q is not a mapping", key, strings.Join(parts[:i], "."))
		}
		child := lookup(node, part)
		if child == nil {
			child = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			if i == len(parts)-1 {
				child = &yaml.Node{Kind: yaml.ScalarNode}
			}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}, child)
		}
		node = child
	}
	node.Kind = yaml.ScalarNode
	node.Tag = ""
	node.Style = 0
	node.Value = value
	return nil
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// keyLines maps the dotted keys of a YAML file to their line numbers.
// Other formats yield an empty map.
func keyLines(path string) map[string]int {
	lines := make(map[string]int)
	if !isYAML(path) {
		return lines
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return lines
	}
	var doc yaml.Node
	if yaml.Unmarshal(data, &doc) != nil || len(doc.Content) == 0 {
		return lines
	}
	var walk func(n *yaml.Node, prefix string)
	walk = func(n *yaml.Node, prefix string) {
		if n.Kind != yaml.MappingNode {
			return
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			name := k.Value
			if prefix != "" {
				name = prefix + "." + name
			}
			lines[name] = k.Line
			walk(n.Content[i+1], name)
		}
	}
	walk(doc.Content[0], "")
	return lines
}

func writeFile(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
