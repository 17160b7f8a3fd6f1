// Package debug decides whether an invocation runs under a debugger and which
// interpreter flags attach it.
package debug

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattjoyce/scflocal/internal/runtime"
)

// ListenHost is the interface debuggers bind to.
const ListenHost = "0.0.0.0"

// Context is the debug overlay for one invocation. The zero value means the
// invocation is not debugged.
type Context struct {
	Port int
	Kind runtime.Kind
	// Cmd overrides the runtime command when non-empty.
	Cmd string
	// Argv is prepended to the bootstrap arguments.
	Argv []string
}

// New builds the overlay for the given port, extra debugger args and runtime.
// A zero port disables debugging.
func New(port int, args string, kind runtime.Kind) (*Context, error) {
	extra := strings.Fields(args)
	if port == 0 {
		if len(extra) > 0 {
			return nil, fmt.Errorf("debug args %q given without a debug port", args)
		}
		return &Context{Kind: kind}, nil
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("debug port %d out of range 1-65535", port)
	}

	addr := ListenHost + ":" + strconv.Itoa(port)
	c := &Context{Port: port, Kind: kind, Cmd: kind.Command()}

	switch kind {
	case runtime.Node610:
		c.Argv = []string{"--inspect=" + addr, "--debug-brk", "--nolazy"}
	case runtime.Node89:
		c.Argv = []string{"--inspect-brk=" + addr, "--nolazy"}
	case runtime.Python27, runtime.Python36:
		c.Argv = []string{"-m", "ptvsd", "--host", ListenHost, "--port", strconv.Itoa(port), "--wait"}
	default:
		return nil, fmt.Errorf("debugging is not supported for runtime %q", kind)
	}
	c.Argv = append(c.Argv, extra...)
	return c, nil
}

// IsDebug reports whether a debugger is attached.
func (c *Context) IsDebug() bool {
	return c != nil && c.Port != 0
}
