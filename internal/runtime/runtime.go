// Package runtime describes the language runtimes a function can declare and
// resolves a function's template properties into a Descriptor.
package runtime

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Kind is a supported runtime identifier as written in templates.
type Kind string

const (
	Node610  Kind = "nodejs6.10"
	Node89   Kind = "nodejs8.9"
	Python27 Kind = "python2.7"
	Python36 Kind = "python3.6"
)

// Defaults applied when a function leaves a property out.
const (
	DefaultKind    = Python36
	DefaultHandler = "index.main_handler"
	DefaultCodeURI = "."
	DefaultMemSize = 128
	DefaultTimeout = 3

	MaxTimeout = 900
)

// Family groups runtime kinds sharing a bootstrap bridge and debugger.
type Family string

const (
	FamilyNode   Family = "node"
	FamilyPython Family = "python"
)

type kindInfo struct {
	family Family
	cmd    string
}

var catalog = map[Kind]kindInfo{
	Node610:  {family: FamilyNode, cmd: "node"},
	Node89:   {family: FamilyNode, cmd: "node"},
	Python27: {family: FamilyPython, cmd: "python2"},
	Python36: {family: FamilyPython, cmd: "python3"},
}

// Kinds returns the supported runtime kinds in sorted order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(catalog))
	for k := range catalog {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Valid reports whether k is a supported runtime.
func (k Kind) Valid() bool {
	_, ok := catalog[k]
	return ok
}

// Family returns the runtime family, or "" for unknown kinds.
func (k Kind) Family() Family {
	return catalog[k].family
}

// Command returns the interpreter executable for the runtime.
func (k Kind) Command() string {
	return catalog[k].cmd
}

// Descriptor is the resolved runtime configuration of one function.
type Descriptor struct {
	Kind    Kind
	Cmd     string
	Handler string
	// MemSize is in MB.
	MemSize int
	// Timeout is in whole seconds.
	Timeout int
	CodeURI string
	Env     map[string]string
}

// FromProperties builds a Descriptor from a function's template properties.
func FromProperties(props map[string]any) (*Descriptor, error) {
	d := &Descriptor{
		Kind:    DefaultKind,
		Handler: DefaultHandler,
		MemSize: DefaultMemSize,
		Timeout: DefaultTimeout,
		CodeURI: DefaultCodeURI,
		Env:     make(map[string]string),
	}

	if v, ok := props["Runtime"]; ok && v != nil {
		d.Kind = Kind(strings.ToLower(fmt.Sprint(v)))
	}
	if !d.Kind.Valid() {
		return nil, fmt.Errorf("unsupported runtime %q (supported: %s)", d.Kind, joinKinds(Kinds()))
	}
	d.Cmd = d.Kind.Command()

	if v, ok := props["Handler"]; ok && v != nil {
		d.Handler = fmt.Sprint(v)
	}
	if strings.TrimSpace(d.Handler) == "" {
		return nil, fmt.Errorf("handler is empty")
	}

	if v, ok := props["CodeUri"]; ok && v != nil {
		d.CodeURI = fmt.Sprint(v)
	}

	var err error
	if d.MemSize, err = intProperty(props, "MemorySize", DefaultMemSize); err != nil {
		return nil, err
	}
	if d.MemSize <= 0 {
		return nil, fmt.Errorf("MemorySize must be positive, got %d", d.MemSize)
	}
	if d.Timeout, err = intProperty(props, "Timeout", DefaultTimeout); err != nil {
		return nil, err
	}
	if d.Timeout <= 0 || d.Timeout > MaxTimeout {
		return nil, fmt.Errorf("Timeout must be between 1 and %d seconds, got %d", MaxTimeout, d.Timeout)
	}

	if d.Env, err = envProperty(props); err != nil {
		return nil, err
	}
	return d, nil
}

// EnvJSON returns the declared environment encoded as a JSON object.
func (d *Descriptor) EnvJSON() string {
	env := d.Env
	if env == nil {
		env = map[string]string{}
	}
	// map[string]string always marshals.
	data, _ := json.Marshal(env)
	return string(data)
}

func intProperty(props map[string]any, key string, def int) (int, error) {
	v, ok := props[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%s must be a whole number, got %v", key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer, got %q", key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}

// envProperty reads Environment.Variables, stringifying scalar values.
func envProperty(props map[string]any) (map[string]string, error) {
	env := make(map[string]string)
	raw, ok := props["Environment"]
	if !ok || raw == nil {
		return env, nil
	}
	envMap, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("Environment must be a mapping, got %T", raw)
	}
	vars, ok := envMap["Variables"]
	if !ok || vars == nil {
		return env, nil
	}
	varMap, ok := vars.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("Environment.Variables must be a mapping, got %T", vars)
	}
	for k, v := range varMap {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("Environment.Variables.%s must be a scalar", k)
		case nil:
			env[k] = ""
		default:
			env[k] = fmt.Sprint(v)
		}
	}
	return env, nil
}

func joinKinds(kinds []Kind) string {
	s := make([]string, len(kinds))
	for i, k := range kinds {
		s[i] = string(k)
	}
	return strings.Join(s, ", ")
}
