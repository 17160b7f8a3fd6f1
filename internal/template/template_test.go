package template

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const singleFunction = `
Resources:
  default:
    Type: TencentCloud::Serverless::Namespace
    hello:
      Type: TencentCloud::Serverless::Function
      Properties:
        Runtime: python3.6
        Handler: index.main_handler
        CodeUri: ./src
        Timeout: 3
        Environment:
          Variables:
            STAGE: dev
`

const twoNamespaces = `
Resources:
  default:
    Type: TencentCloud::Serverless::Namespace
    hello:
      Type: TencentCloud::Serverless::Function
      Properties:
        Runtime: nodejs8.9
  staging:
    Type: TencentCloud::Serverless::Namespace
    hello:
      Type: TencentCloud::Serverless::Function
      Properties:
        Runtime: nodejs8.9
    world:
      Type: TencentCloud::Serverless::Function
      Properties:
        Runtime: python2.7
`

func TestResolveAutoSelectsSinglePair(t *testing.T) {
	doc, err := Parse([]byte(singleFunction))
	require.NoError(t, err)

	sel := &Selector{}
	res, err := Resolve(doc, sel)
	require.NoError(t, err)

	assert.Equal(t, "default", res.Namespace)
	assert.Equal(t, "hello", res.Function)
	assert.Equal(t, Selector{Namespace: "default", Function: "hello"}, *sel)
	assert.Equal(t, "python3.6", res.Properties["Runtime"])
	assert.NotContains(t, res.Properties, KeyType)
}

func TestResolveAmbiguousNamespace(t *testing.T) {
	doc, err := Parse([]byte(twoNamespaces))
	require.NoError(t, err)

	sel := &Selector{}
	_, err = Resolve(doc, sel)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousSelection))
	assert.Empty(t, sel.Namespace, "selector must not be populated on failure")
}

func TestResolveAmbiguousFunction(t *testing.T) {
	doc, err := Parse([]byte(twoNamespaces))
	require.NoError(t, err)

	sel := &Selector{Namespace: "staging"}
	_, err = Resolve(doc, sel)
	require.ErrorIs(t, err, ErrAmbiguousSelection)
	assert.Contains(t, err.Error(), "hello, world")
}

func TestResolveExplicitSelection(t *testing.T) {
	doc, err := Parse([]byte(twoNamespaces))
	require.NoError(t, err)

	sel := &Selector{Namespace: "staging", Function: "world"}
	res, err := Resolve(doc, sel)
	require.NoError(t, err)
	assert.Equal(t, "python2.7", res.Properties["Runtime"])
}

func TestResolveInvalidSelection(t *testing.T) {
	doc, err := Parse([]byte(twoNamespaces))
	require.NoError(t, err)

	tests := []struct {
		name string
		sel  Selector
	}{
		{name: "unknown namespace", sel: Selector{Namespace: "prod"}},
		{name: "unknown function", sel: Selector{Namespace: "default", Function: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := tt.sel
			_, err := Resolve(doc, &sel)
			assert.ErrorIs(t, err, ErrInvalidSelection)
		})
	}
}

func TestResolveEmptyResources(t *testing.T) {
	doc, err := Parse([]byte("Resources: {}\n"))
	require.NoError(t, err)

	_, err = Resolve(doc, &Selector{})
	assert.ErrorIs(t, err, ErrAmbiguousSelection)
}

func TestResolveDoesNotMutateTemplate(t *testing.T) {
	doc, err := Parse([]byte(singleFunction))
	require.NoError(t, err)

	res, err := Resolve(doc, &Selector{})
	require.NoError(t, err)
	res.Properties["Runtime"] = "changed"

	again, err := Resolve(doc, &Selector{})
	require.NoError(t, err)
	assert.Equal(t, "python3.6", again.Properties["Runtime"])
}

func TestParseRejectsMissingMarkers(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "namespace without type",
			yaml: `
Resources:
  default:
    hello:
      Type: TencentCloud::Serverless::Function
`,
		},
		{
			name: "function with wrong type",
			yaml: `
Resources:
  default:
    Type: TencentCloud::Serverless::Namespace
    hello:
      Type: TencentCloud::Serverless::Api
`,
		},
		{
			name: "namespace is a scalar",
			yaml: `
Resources:
  default: nope
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "template.yaml")
	require.NoError(t, os.WriteFile(path, []byte(singleFunction), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.Path)
	assert.Equal(t, dir, doc.Dir())
	assert.Len(t, doc.Hash, 64)

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, doc.Hash, again.Hash)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template file not found")
}
