package runtime

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFromPropertiesDefaults(t *testing.T) {
	d, err := FromProperties(map[string]any{})
	if err != nil {
		t.Fatalf("FromProperties: %v", err)
	}

	if d.Kind != DefaultKind {
		t.Errorf("Kind = %q, want %q", d.Kind, DefaultKind)
	}
	if d.Cmd != "python3" {
		t.Errorf("Cmd = %q, want python3", d.Cmd)
	}
	if d.Handler != DefaultHandler || d.CodeURI != DefaultCodeURI {
		t.Errorf("Handler/CodeURI = %q/%q", d.Handler, d.CodeURI)
	}
	if d.MemSize != DefaultMemSize || d.Timeout != DefaultTimeout {
		t.Errorf("MemSize/Timeout = %d/%d", d.MemSize, d.Timeout)
	}
	if len(d.Env) != 0 {
		t.Errorf("Env = %v, want empty", d.Env)
	}
	if got := d.EnvJSON(); got != "{}" {
		t.Errorf("EnvJSON = %s, want {}", got)
	}
}

func TestFromPropertiesFull(t *testing.T) {
	d, err := FromProperties(map[string]any{
		"Runtime":    "Nodejs8.9",
		"Handler":    "app.handler",
		"CodeUri":    "./src",
		"MemorySize": 256,
		"Timeout":    "10",
		"Environment": map[string]any{
			"Variables": map[string]any{
				"STAGE": "dev",
				"PORT":  8080,
				"DEBUG": true,
			},
		},
	})
	if err != nil {
		t.Fatalf("FromProperties: %v", err)
	}

	if d.Kind != Node89 || d.Kind.Family() != FamilyNode {
		t.Errorf("Kind = %q (family %q)", d.Kind, d.Kind.Family())
	}
	if d.Cmd != "node" {
		t.Errorf("Cmd = %q, want node", d.Cmd)
	}
	if d.Handler != "app.handler" || d.CodeURI != "./src" {
		t.Errorf("Handler/CodeURI = %q/%q", d.Handler, d.CodeURI)
	}
	if d.MemSize != 256 || d.Timeout != 10 {
		t.Errorf("MemSize/Timeout = %d/%d, want 256/10", d.MemSize, d.Timeout)
	}
	wantEnv := map[string]string{"STAGE": "dev", "PORT": "8080", "DEBUG": "true"}
	if !reflect.DeepEqual(d.Env, wantEnv) {
		t.Errorf("Env = %v, want %v", d.Env, wantEnv)
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(d.EnvJSON()), &decoded); err != nil {
		t.Fatalf("EnvJSON is not JSON: %v", err)
	}
	if !reflect.DeepEqual(decoded, wantEnv) {
		t.Errorf("EnvJSON = %s", d.EnvJSON())
	}
}

func TestFromPropertiesErrors(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]any
	}{
		{name: "unknown runtime", props: map[string]any{"Runtime": "go1.x"}},
		{name: "empty handler", props: map[string]any{"Handler": " "}},
		{name: "zero timeout", props: map[string]any{"Timeout": 0}},
		{name: "huge timeout", props: map[string]any{"Timeout": 10000}},
		{name: "fractional timeout", props: map[string]any{"Timeout": 1.5}},
		{name: "negative memory", props: map[string]any{"MemorySize": -1}},
		{name: "non numeric memory", props: map[string]any{"MemorySize": "lots"}},
		{name: "environment not a map", props: map[string]any{"Environment": "x"}},
		{name: "nested variable", props: map[string]any{
			"Environment": map[string]any{"Variables": map[string]any{"A": map[string]any{"b": 1}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromProperties(tt.props); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestKinds(t *testing.T) {
	want := []Kind{Node610, Node89, Python27, Python36}
	if got := Kinds(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Kinds() = %v, want %v", got, want)
	}
	for _, k := range Kinds() {
		if !k.Valid() || k.Command() == "" {
			t.Errorf("kind %q: Valid=%v Command=%q", k, k.Valid(), k.Command())
		}
	}
	unknown := Kind("ruby2.5")
	if unknown.Valid() {
		t.Error("ruby2.5 reported valid")
	}
	if unknown.Family() != "" {
		t.Errorf("ruby2.5 family = %q, want empty", unknown.Family())
	}
}
