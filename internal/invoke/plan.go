package invoke

import (
	"encoding/hex"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/scflocal/internal/debug"
	"github.com/mattjoyce/scflocal/internal/envfile"
	"github.com/mattjoyce/scflocal/internal/runtime"
)

// Identity variables every invocation exposes to the bootstrap bridge.
const (
	EnvLocal       = "SCF_LOCAL"
	EnvMemorySize  = "SCF_FUNCTION_MEMORY_SIZE"
	EnvTimeout     = "SCF_FUNCTION_TIMEOUT"
	EnvEventBody   = "SCF_EVENT_BODY"
	EnvFunctionEnv = "SCF_FUNCTION_ENVIRON"
	EnvQuiet       = "SCF_DISPLAY_IS_QUIET"
)

// bridgeFiles maps each runtime family to its bootstrap bridge program.
var bridgeFiles = map[runtime.Family]string{
	runtime.FamilyNode:   "bootstrap.js",
	runtime.FamilyPython: "bootstrap.py",
}

// Plan is the fully composed command line and environment of one invocation.
type Plan struct {
	Cmd  string
	Args []string
	Env  map[string]string
}

// Environ returns Env as sorted KEY=VALUE pairs.
func (p *Plan) Environ() []string {
	keys := slices.Sorted(maps.Keys(p.Env))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+p.Env[k])
	}
	return out
}

// Fingerprint is a BLAKE3 digest over command, arguments and sorted
// environment. Identical plans have identical fingerprints.
func (p *Plan) Fingerprint() string {
	h := blake3.New()
	write := func(s string) {
		_, _ = h.Write([]byte(strconv.Itoa(len(s))))
		_, _ = h.Write([]byte{':'})
		_, _ = h.Write([]byte(s))
	}
	write(p.Cmd)
	for _, a := range p.Args {
		write(a)
	}
	for _, kv := range p.Environ() {
		write(kv)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PlanInput is everything the planner composes a Plan from.
type PlanInput struct {
	Runtime *runtime.Descriptor
	// Debug may be nil when not debugging.
	Debug *debug.Context
	// Event is passed through verbatim, typically a JSON document.
	Event string
	// EnvFile is an optional JSON override file.
	EnvFile string
	Quiet   bool
	// TemplatePath anchors the runtime's relative code location.
	TemplatePath string
}

// Planner composes invocation plans.
type Planner struct {
	// BootstrapDir holds <runtime kind>/<bridge file>.
	BootstrapDir string
	// Environ returns the process environment as KEY=VALUE strings.
	// When nil, os.Environ() is used.
	Environ func() []string
}

// NewPlanner returns a planner resolving bridges under bootstrapDir.
func NewPlanner(bootstrapDir string) *Planner {
	return &Planner{BootstrapDir: bootstrapDir}
}

// DefaultBootstrapDir is the runtime/ directory next to the running executable.
func DefaultBootstrapDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), "runtime"), nil
}

// Build composes the plan. It only reads files.
func (p *Planner) Build(in PlanInput) (*Plan, error) {
	rt := in.Runtime
	if rt == nil {
		return nil, fmt.Errorf("no runtime descriptor")
	}

	cmd := rt.Cmd
	var prefix []string
	if in.Debug != nil {
		if in.Debug.Cmd != "" {
			cmd = in.Debug.Cmd
		}
		prefix = in.Debug.Argv
	}

	bridge, err := p.BridgePath(rt.Kind)
	if err != nil {
		return nil, err
	}
	codeRoot, err := CodeRoot(in.TemplatePath, rt.CodeURI)
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, len(prefix)+2)
	args = append(args, prefix...)
	args = append(args, bridge, filepath.Join(codeRoot, HandlerLocator(rt.Handler)))

	env, err := p.buildEnv(in)
	if err != nil {
		return nil, err
	}

	return &Plan{Cmd: cmd, Args: args, Env: env}, nil
}

// buildEnv layers, lowest precedence first: identity variables, declared
// function environment, process environment, override file.
func (p *Planner) buildEnv(in PlanInput) (map[string]string, error) {
	rt := in.Runtime
	env := map[string]string{
		EnvLocal:       "true",
		EnvMemorySize:  strconv.Itoa(rt.MemSize),
		EnvTimeout:     strconv.Itoa(rt.Timeout),
		EnvEventBody:   in.Event,
		EnvFunctionEnv: rt.EnvJSON(),
		EnvQuiet:       pythonBool(in.Quiet),
	}

	maps.Copy(env, rt.Env)

	environ := p.Environ
	if environ == nil {
		environ = os.Environ
	}
	maps.Copy(env, EnvironMap(environ()))

	overrides, err := envfile.Load(in.EnvFile)
	if err != nil {
		return nil, err
	}
	maps.Copy(env, overrides)
	return env, nil
}

// BridgePath returns the absolute bootstrap bridge path for a runtime kind.
func (p *Planner) BridgePath(kind runtime.Kind) (string, error) {
	file, ok := bridgeFiles[kind.Family()]
	if !ok {
		return "", fmt.Errorf("no bootstrap bridge for runtime %q", kind)
	}
	path, err := filepath.Abs(filepath.Join(p.BootstrapDir, string(kind), file))
	if err != nil {
		return "", fmt.Errorf("resolve bootstrap path: %w", err)
	}
	return path, nil
}

// CodeRoot resolves codeURI against the directory holding the template.
func CodeRoot(templatePath, codeURI string) (string, error) {
	if filepath.IsAbs(codeURI) {
		return filepath.Clean(codeURI), nil
	}
	absTemplate, err := filepath.Abs(templatePath)
	if err != nil {
		return "", fmt.Errorf("resolve template path: %w", err)
	}
	return filepath.Clean(filepath.Join(filepath.Dir(absTemplate), codeURI)), nil
}

// HandlerLocator turns "module.function" into "module:function". Handlers
// without a dot are returned unchanged.
func HandlerLocator(handler string) string {
	module, function, found := strings.Cut(handler, ".")
	if !found {
		return handler
	}
	return module + ":" + function
}

// EnvironMap parses KEY=VALUE strings; later duplicates win.
func EnvironMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

func pythonBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
