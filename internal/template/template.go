// Package template loads function-deployment templates and resolves the
// namespace/function pair an invocation targets.
package template

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Reserved template keys and resource type markers.
const (
	KeyResources  = "Resources"
	KeyType       = "Type"
	KeyProperties = "Properties"

	TypeNamespace = "TencentCloud::Serverless::Namespace"
	TypeFunction  = "TencentCloud::Serverless::Function"
)

// Document is a parsed template.
type Document struct {
	// Path is the absolute path the template was loaded from. Empty for Parse.
	Path string
	// Hash is the BLAKE3 digest of the raw template bytes.
	Hash      string
	Resources map[string]*Namespace
}

// Namespace groups functions. Its type marker is kept private.
type Namespace struct {
	typ       string
	Functions map[string]*Function
}

// Function is a single function definition. Its type marker is kept private.
type Function struct {
	typ        string
	Properties map[string]any
}

// Dir returns the directory containing the template, which is the base for
// relative code locations.
func (d *Document) Dir() string {
	if d.Path == "" {
		return "."
	}
	return filepath.Dir(d.Path)
}

// Load reads and parses a template file.
func Load(path string) (*Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template path %q: %w", path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("template file not found: %s\n"+
				"Hint: pass the template with -t/--template", absPath)
		}
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	doc.Path = absPath
	return doc, nil
}

// Parse decodes template bytes and checks every namespace and function
// carries its type marker.
func Parse(data []byte) (*Document, error) {
	var raw struct {
		Resources map[string]*Namespace `yaml:"Resources"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	doc := &Document{
		Hash:      hashBytes(data),
		Resources: raw.Resources,
	}
	if doc.Resources == nil {
		doc.Resources = make(map[string]*Namespace)
	}
	if err := validate(doc); err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	return doc, nil
}

func validate(doc *Document) error {
	for nsName, ns := range doc.Resources {
		if ns == nil {
			return fmt.Errorf("Resources.%s: namespace definition is empty", nsName)
		}
		if ns.typ != TypeNamespace {
			return fmt.Errorf("Resources.%s.%s: expected %q, got %q", nsName, KeyType, TypeNamespace, ns.typ)
		}
		for fnName, fn := range ns.Functions {
			if fn == nil {
				return fmt.Errorf("Resources.%s.%s: function definition is empty", nsName, fnName)
			}
			if fn.typ != TypeFunction {
				return fmt.Errorf("Resources.%s.%s.%s: expected %q, got %q", nsName, fnName, KeyType, TypeFunction, fn.typ)
			}
		}
	}
	return nil
}

// UnmarshalYAML splits the reserved Type key from the function entries.
func (n *Namespace) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: namespace must be a mapping", node.Line)
	}

	n.Functions = make(map[string]*Function)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Value == KeyType {
			if err := value.Decode(&n.typ); err != nil {
				return fmt.Errorf("line %d: %s: %w", value.Line, KeyType, err)
			}
			continue
		}
		var fn Function
		if err := value.Decode(&fn); err != nil {
			return fmt.Errorf("function %q: %w", key.Value, err)
		}
		n.Functions[key.Value] = &fn
	}
	return nil
}

// UnmarshalYAML decodes a function definition, keeping Type out of Properties.
func (f *Function) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Type       string         `yaml:"Type"`
		Properties map[string]any `yaml:"Properties"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	f.typ = raw.Type
	f.Properties = raw.Properties
	if f.Properties == nil {
		f.Properties = make(map[string]any)
	}
	return nil
}

func hashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
