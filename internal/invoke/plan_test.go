package invoke

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/scflocal/internal/debug"
	"github.com/mattjoyce/scflocal/internal/runtime"
)

func testDescriptor() *runtime.Descriptor {
	return &runtime.Descriptor{
		Kind:    runtime.Python36,
		Cmd:     "python3",
		Handler: "app.handler",
		MemSize: 256,
		Timeout: 7,
		CodeURI: "./src",
		Env:     map[string]string{"A": "1", "ONLY_DECLARED": "yes"},
	}
}

func fixedEnviron(kv ...string) func() []string {
	return func() []string { return kv }
}

func TestHandlerLocator(t *testing.T) {
	tests := map[string]string{
		"app.handler":        "app:handler",
		"index":              "index",
		"pkg.mod.handler":    "pkg:mod.handler",
		"index.main_handler": "index:main_handler",
	}
	for in, want := range tests {
		assert.Equal(t, want, HandlerLocator(in), in)
	}
}

func TestBuildEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "env.json")
	require.NoError(t, os.WriteFile(envFile, []byte(`{"A": "4"}`), 0o600))

	p := &Planner{BootstrapDir: dir, Environ: fixedEnviron("A=2", "B=3")}
	plan, err := p.Build(PlanInput{
		Runtime:      testDescriptor(),
		Event:        `{"key":"value"}`,
		EnvFile:      envFile,
		Quiet:        true,
		TemplatePath: filepath.Join(dir, "template.yaml"),
	})
	require.NoError(t, err)

	assert.Equal(t, "4", plan.Env["A"])
	assert.Equal(t, "3", plan.Env["B"])
	assert.Equal(t, "yes", plan.Env["ONLY_DECLARED"])

	assert.Equal(t, "true", plan.Env[EnvLocal])
	assert.Equal(t, "256", plan.Env[EnvMemorySize])
	assert.Equal(t, "7", plan.Env[EnvTimeout])
	assert.Equal(t, `{"key":"value"}`, plan.Env[EnvEventBody])
	assert.JSONEq(t, `{"A":"1","ONLY_DECLARED":"yes"}`, plan.Env[EnvFunctionEnv])
	assert.Equal(t, "True", plan.Env[EnvQuiet])
}

func TestBuildProcessEnvOverridesIdentity(t *testing.T) {
	dir := t.TempDir()
	p := &Planner{BootstrapDir: dir, Environ: fixedEnviron("SCF_LOCAL=false")}
	plan, err := p.Build(PlanInput{Runtime: testDescriptor(), TemplatePath: filepath.Join(dir, "t.yaml")})
	require.NoError(t, err)

	assert.Equal(t, "false", plan.Env[EnvLocal])
	assert.Equal(t, "False", plan.Env[EnvQuiet])
}

func TestBuildMissingEnvFileContributesNothing(t *testing.T) {
	dir := t.TempDir()
	p := &Planner{BootstrapDir: dir, Environ: fixedEnviron()}
	plan, err := p.Build(PlanInput{
		Runtime:      testDescriptor(),
		EnvFile:      filepath.Join(dir, "absent.json"),
		TemplatePath: filepath.Join(dir, "t.yaml"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1", plan.Env["A"])
}

func TestBuildArgs(t *testing.T) {
	root := t.TempDir()
	templatePath := filepath.Join(root, "project", "template.yaml")
	bootstrapDir := filepath.Join(root, "install", "runtime")

	rt := testDescriptor()
	rt.CodeURI = "../code/./src"

	p := &Planner{BootstrapDir: bootstrapDir, Environ: fixedEnviron()}
	plan, err := p.Build(PlanInput{Runtime: rt, TemplatePath: templatePath})
	require.NoError(t, err)

	assert.Equal(t, "python3", plan.Cmd)
	assert.Equal(t, []string{
		filepath.Join(bootstrapDir, "python3.6", "bootstrap.py"),
		filepath.Join(root, "code", "src", "app:handler"),
	}, plan.Args)
}

func TestBuildNodeBridge(t *testing.T) {
	dir := t.TempDir()
	rt := testDescriptor()
	rt.Kind, rt.Cmd, rt.Handler = runtime.Node89, "node", "index"

	p := &Planner{BootstrapDir: dir, Environ: fixedEnviron()}
	plan, err := p.Build(PlanInput{Runtime: rt, TemplatePath: filepath.Join(dir, "t.yaml")})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "nodejs8.9", "bootstrap.js"), plan.Args[0])
	assert.Equal(t, filepath.Join(dir, "src", "index"), plan.Args[1])
}

func TestBuildWithDebugOverlay(t *testing.T) {
	dir := t.TempDir()
	dbg, err := debug.New(5678, "", runtime.Python36)
	require.NoError(t, err)
	dbg.Cmd = "/opt/python/bin/python3"

	p := &Planner{BootstrapDir: dir, Environ: fixedEnviron()}
	plan, err := p.Build(PlanInput{Runtime: testDescriptor(), Debug: dbg, TemplatePath: filepath.Join(dir, "t.yaml")})
	require.NoError(t, err)

	assert.Equal(t, "/opt/python/bin/python3", plan.Cmd)
	require.Len(t, plan.Args, len(dbg.Argv)+2)
	assert.Equal(t, dbg.Argv, plan.Args[:len(dbg.Argv)])
	assert.Equal(t, filepath.Join(dir, "python3.6", "bootstrap.py"), plan.Args[len(dbg.Argv)])
}

func TestBuildIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "env.json")
	require.NoError(t, os.WriteFile(envFile, []byte(`{"A": "4", "Z": "26"}`), 0o600))

	p := &Planner{BootstrapDir: dir, Environ: fixedEnviron("B=3", "PATH=/usr/bin")}
	in := PlanInput{
		Runtime:      testDescriptor(),
		Event:        `{"n":1}`,
		EnvFile:      envFile,
		TemplatePath: filepath.Join(dir, "template.yaml"),
	}

	first, err := p.Build(in)
	require.NoError(t, err)
	second, err := p.Build(in)
	require.NoError(t, err)

	assert.Equal(t, first.Cmd, second.Cmd)
	assert.Equal(t, first.Args, second.Args)
	assert.Equal(t, first.Env, second.Env)
	assert.Equal(t, first.Environ(), second.Environ())
	assert.Equal(t, first.Fingerprint(), second.Fingerprint())

	second.Env["EXTRA"] = "1"
	assert.NotEqual(t, first.Fingerprint(), second.Fingerprint())
}

func TestBuildErrors(t *testing.T) {
	dir := t.TempDir()
	p := &Planner{BootstrapDir: dir, Environ: fixedEnviron()}

	_, err := p.Build(PlanInput{})
	assert.Error(t, err)

	rt := testDescriptor()
	rt.Kind = runtime.Kind("ruby2.5")
	_, err = p.Build(PlanInput{Runtime: rt, TemplatePath: filepath.Join(dir, "t.yaml")})
	assert.Error(t, err)

	badEnv := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badEnv, []byte(`{`), 0o600))
	_, err = p.Build(PlanInput{Runtime: testDescriptor(), EnvFile: badEnv, TemplatePath: filepath.Join(dir, "t.yaml")})
	assert.Error(t, err)
}

func TestCodeRootAbsolute(t *testing.T) {
	root, err := CodeRoot("/ignored/template.yaml", "/srv/fn/../app")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/srv/app"), root)
}

func TestEnvironMap(t *testing.T) {
	env := EnvironMap([]string{"A=1", "B=x=y", "NOEQ", "=C:=C:\\", "A=2", "EMPTY="})
	assert.Equal(t, map[string]string{"A": "2", "B": "x=y", "EMPTY": ""}, env)
}

func TestPlanEnvironSorted(t *testing.T) {
	p := &Plan{Env: map[string]string{"B": "2", "A": "1", "C": "3"}}
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, p.Environ())
}
