package invoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/mattjoyce/scflocal/internal/log"
	"github.com/mattjoyce/scflocal/internal/runtime"
)

// outputDrainTimeout bounds how long Wait keeps copying output after the
// child exits, in case a grandchild still holds the pipes open.
const outputDrainTimeout = 2 * time.Second

// State is a position in the supervisor's lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateSpawning    State = "spawning"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateTimedOut    State = "timed_out"
	StateSpawnFailed State = "spawn_failed"
	StateCancelled   State = "cancelled"
)

// TimeoutPolicy controls whether the watchdog runs under a debugger.
type TimeoutPolicy int

const (
	// SuppressWhenDebugging disarms the watchdog for debug sessions so a
	// paused breakpoint is never killed.
	SuppressWhenDebugging TimeoutPolicy = iota
	// AlwaysEnforce arms the watchdog even when a debugger is attached.
	AlwaysEnforce
)

// ParseTimeoutPolicy accepts "suppress" (default when empty) or "enforce".
func ParseTimeoutPolicy(s string) (TimeoutPolicy, error) {
	switch s {
	case "", "suppress":
		return SuppressWhenDebugging, nil
	case "enforce":
		return AlwaysEnforce, nil
	default:
		return 0, fmt.Errorf("unknown debug timeout policy %q (want suppress or enforce)", s)
	}
}

func (p TimeoutPolicy) String() string {
	if p == AlwaysEnforce {
		return "enforce"
	}
	return "suppress"
}

// Request is one supervised run.
type Request struct {
	Plan *Plan
	// Function names the function in timeout messages.
	Function string
	// Runtime is reported when the child signals a runtime mismatch.
	Runtime runtime.Kind
	// RuntimeCmd is reported when the process cannot be spawned. Defaults to Plan.Cmd.
	RuntimeCmd string
	Timeout    time.Duration
	Debugging  bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Outcome describes how the child process ended.
type Outcome struct {
	State     State
	PID       int
	ExitCode  int
	StartedAt time.Time
	Duration  time.Duration
}

// watchdog is the part of *time.Timer the supervisor needs.
type watchdog interface {
	Stop() bool
}

// Supervisor spawns a planned process and races it against a timeout
// watchdog and caller cancellation.
type Supervisor struct {
	policy    TimeoutPolicy
	logger    *slog.Logger
	afterFunc func(d time.Duration, f func()) watchdog
}

// NewSupervisor creates a Supervisor with the given debug timeout policy.
func NewSupervisor(policy TimeoutPolicy) *Supervisor {
	return &Supervisor{
		policy: policy,
		logger: log.WithComponent("supervisor"),
		afterFunc: func(d time.Duration, f func()) watchdog {
			return time.AfterFunc(d, f)
		},
	}
}

// Policy returns the configured debug timeout policy.
func (s *Supervisor) Policy() TimeoutPolicy { return s.policy }

// Run executes req.Plan once. The child is reaped and the watchdog disarmed
// before Run returns, on every path.
func (s *Supervisor) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Plan == nil {
		return nil, fmt.Errorf("no invocation plan")
	}
	out := &Outcome{State: StateIdle}
	logger := s.logger.With("function", req.Function)

	if err := ctx.Err(); err != nil {
		out.State = StateCancelled
		return out, ErrCancelled
	}

	s.transition(logger, out, StateSpawning)
	cmd := exec.Command(req.Plan.Cmd, req.Plan.Args...)
	cmd.Env = req.Plan.Environ()
	cmd.Stdin = req.Stdin
	cmd.Stdout = writerOr(req.Stdout, os.Stdout)
	cmd.Stderr = writerOr(req.Stderr, os.Stderr)
	cmd.WaitDelay = outputDrainTimeout
	group := startOwnGroup(cmd)

	out.StartedAt = time.Now()
	if err := cmd.Start(); err != nil {
		s.transition(logger, out, StateSpawnFailed)
		runtimeCmd := req.RuntimeCmd
		if runtimeCmd == "" {
			runtimeCmd = req.Plan.Cmd
		}
		logger.Error("failed to spawn function process", "command", req.Plan.Cmd, "error", err)
		return out, &SpawnError{Command: runtimeCmd, Err: err}
	}
	out.PID = cmd.Process.Pid
	s.transition(logger, out, StateRunning)

	// fired receives the timeout error before the watchdog kills the
	// child, so a fired watchdog is always observable once Wait returns.
	fired := make(chan *TimeoutError, 1)
	var timer watchdog
	if s.armWatchdog(req) {
		timer = s.afterFunc(req.Timeout, func() {
			fired <- &TimeoutError{Function: req.Function, Timeout: req.Timeout}
			logger.Warn("function timed out, killing process", "timeout", req.Timeout, "pid", out.PID)
			if err := killTree(cmd, group); err != nil {
				logger.Warn("failed to kill function process", "pid", out.PID, "error", err)
			}
		})
	} else {
		logger.Debug("timeout watchdog disarmed", "debugging", req.Debugging, "policy", s.policy.String())
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var err error
	select {
	case err = <-waitErr:
	case <-ctx.Done():
		disarm(timer, fired)
		logger.Info("invocation interrupted, killing process", "pid", out.PID)
		if err := killTree(cmd, group); err != nil {
			logger.Warn("failed to kill function process", "pid", out.PID, "error", err)
		}
		<-waitErr
		out.Duration = time.Since(out.StartedAt)
		s.transition(logger, out, StateCancelled)
		return out, ErrCancelled
	}
	out.Duration = time.Since(out.StartedAt)

	if timeoutErr := disarm(timer, fired); timeoutErr != nil {
		out.ExitCode = exitCode(err)
		s.transition(logger, out, StateTimedOut)
		return out, timeoutErr
	}

	s.transition(logger, out, StateCompleted)
	if errors.Is(err, exec.ErrWaitDelay) {
		logger.Warn("function output not closed after exit", "pid", out.PID)
		err = nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return out, fmt.Errorf("wait for process: %w", err)
		}
		out.ExitCode = exitErr.ExitCode()
	}

	switch out.ExitCode {
	case 0:
		return out, nil
	case ExitRuntimeMismatch:
		return out, &RuntimeMismatchError{Runtime: req.Runtime}
	default:
		logger.Warn("function exited with non-zero status", "exit_code", out.ExitCode)
		return out, &ExitError{Code: out.ExitCode}
	}
}

func (s *Supervisor) armWatchdog(req Request) bool {
	if req.Timeout <= 0 {
		return false
	}
	if req.Debugging && s.policy == SuppressWhenDebugging {
		return false
	}
	return true
}

func (s *Supervisor) transition(logger *slog.Logger, out *Outcome, to State) {
	logger.Debug("state transition", "from", out.State, "to", to)
	out.State = to
}

// disarm stops the watchdog. When Stop reports the timer already fired, the
// callback has run or is running and will deliver its message, so the
// receive below cannot block indefinitely.
func disarm(timer watchdog, fired <-chan *TimeoutError) *TimeoutError {
	if timer == nil || timer.Stop() {
		return nil
	}
	return <-fired
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
