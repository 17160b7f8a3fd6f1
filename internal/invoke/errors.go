package invoke

import (
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/scflocal/internal/runtime"
)

// ExitRuntimeMismatch is the exit code bootstrap bridges use to report that
// the interpreter they run under is not the declared runtime.
const ExitRuntimeMismatch = 233

// ErrCancelled is returned when the invocation was interrupted by the caller.
// It is a clean abort, not a function failure.
var ErrCancelled = errors.New("invocation cancelled")

// SpawnError means the OS could not start the child process.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("execution failed, confirm whether the program (%s) is installed: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutError means the watchdog killed the child.
type TimeoutError struct {
	Function string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Function %q timeout after %s", e.Function, formatTimeout(e.Timeout))
}

// RuntimeMismatchError means the child exited with ExitRuntimeMismatch.
type RuntimeMismatchError struct {
	Runtime runtime.Kind
}

func (e *RuntimeMismatchError) Error() string {
	return fmt.Sprintf("execution failed, confirm whether the program (%s) is installed", e.Runtime)
}

// ExitError carries any other nonzero exit code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("function exited with code %d", e.Code)
}

// ExitStatus maps an invocation error to the status the CLI exits with.
// Failures of a child that ran mirror its exit code; everything else is 1.
func ExitStatus(err error) int {
	if err == nil || errors.Is(err, ErrCancelled) {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		return exitErr.Code
	}
	var mismatch *RuntimeMismatchError
	if errors.As(err, &mismatch) {
		return ExitRuntimeMismatch
	}
	return 1
}

func formatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
	return d.String()
}
