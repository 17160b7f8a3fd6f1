// Package invoke runs one serverless function locally, once.
//
// An invocation moves through three stages:
//   - Planning: the Planner composes the command line, bootstrap bridge path
//     and layered environment. Planning only reads files.
//   - Supervision: the Supervisor spawns the plan, races it against a
//     timeout watchdog and caller cancellation, and reaps the child on
//     every path.
//   - Recording: the Runner persists the outcome through a HistoryWriter.
//
// Environment precedence (lowest first):
//   - SCF_* identity variables
//   - the function's declared Environment.Variables
//   - the invoking process environment
//   - the JSON override file (--env-vars)
//
// Outcome mapping:
//   - Spawn failure → SpawnError, no watchdog is ever armed
//   - Watchdog fired → TimeoutError, child killed
//   - Exit 233 → RuntimeMismatchError
//   - Other nonzero exit → ExitError carrying the code
//   - Caller cancellation → ErrCancelled, child killed
//
// Under a debugger the watchdog is disarmed unless the supervisor's policy
// is AlwaysEnforce.
package invoke
