package invoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/scflocal/internal/debug"
	"github.com/mattjoyce/scflocal/internal/history"
	"github.com/mattjoyce/scflocal/internal/log"
	"github.com/mattjoyce/scflocal/internal/runtime"
	"github.com/mattjoyce/scflocal/internal/template"
)

//go:generate mockgen -destination=mocks/mock_history.go -package=mocks github.com/mattjoyce/scflocal/internal/invoke HistoryWriter

// HistoryWriter persists invocation outcomes.
type HistoryWriter interface {
	Record(ctx context.Context, rec *history.Record) error
}

// Options are the caller-supplied inputs of one invocation.
type Options struct {
	TemplatePath string
	Selector     template.Selector
	Event        string
	EnvFile      string
	DebugPort    int
	DebugArgs    string
	Quiet        bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result describes a finished invocation. Fields are filled in as far as
// the invocation got.
type Result struct {
	ID        string
	Namespace string
	Function  string
	Runtime   *runtime.Descriptor
	Debug     *debug.Context
	Plan      *Plan
	Outcome   *Outcome
}

// Runner resolves, plans and supervises invocations.
type Runner struct {
	planner    *Planner
	supervisor *Supervisor
	history    HistoryWriter
	newID      func() string
}

// NewRunner wires a runner. hist may be nil to skip recording.
func NewRunner(planner *Planner, supervisor *Supervisor, hist HistoryWriter) *Runner {
	return &Runner{
		planner:    planner,
		supervisor: supervisor,
		history:    hist,
		newID:      uuid.NewString,
	}
}

// Invoke runs one function once. Selection and planning errors are returned
// before any process is started.
func (r *Runner) Invoke(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{ID: r.newID()}

	doc, err := template.Load(opts.TemplatePath)
	if err != nil {
		return result, err
	}

	sel := opts.Selector
	res, err := template.Resolve(doc, &sel)
	if err != nil {
		return result, err
	}
	result.Namespace, result.Function = res.Namespace, res.Function
	logger := log.WithFunction(res.Namespace, res.Function).With("invocation_id", result.ID)

	rt, err := runtime.FromProperties(res.Properties)
	if err != nil {
		return result, fmt.Errorf("function %s/%s: %w", res.Namespace, res.Function, err)
	}
	result.Runtime = rt

	dbg, err := debug.New(opts.DebugPort, opts.DebugArgs, rt.Kind)
	if err != nil {
		return result, err
	}
	result.Debug = dbg

	plan, err := r.planner.Build(PlanInput{
		Runtime:      rt,
		Debug:        dbg,
		Event:        opts.Event,
		EnvFile:      opts.EnvFile,
		Quiet:        opts.Quiet,
		TemplatePath: doc.Path,
	})
	if err != nil {
		return result, fmt.Errorf("plan invocation: %w", err)
	}
	result.Plan = plan

	logger.Info("invoking function",
		"runtime", rt.Kind,
		"command", plan.Cmd,
		"timeout_s", rt.Timeout,
		"debug", dbg.IsDebug(),
		"debug_timeout", r.supervisor.Policy().String(),
	)

	outcome, runErr := r.supervisor.Run(ctx, Request{
		Plan:       plan,
		Function:   res.Function,
		Runtime:    rt.Kind,
		RuntimeCmd: rt.Cmd,
		Timeout:    time.Duration(rt.Timeout) * time.Second,
		Debugging:  dbg.IsDebug(),
		Stdin:      opts.Stdin,
		Stdout:     opts.Stdout,
		Stderr:     opts.Stderr,
	})
	result.Outcome = outcome

	if outcome != nil {
		logger.Info("invocation finished",
			"state", outcome.State,
			"exit_code", outcome.ExitCode,
			"duration_ms", outcome.Duration.Milliseconds(),
		)
		r.record(ctx, doc, result, runErr)
	}
	return result, runErr
}

func (r *Runner) record(ctx context.Context, doc *template.Document, result *Result, runErr error) {
	if r.history == nil {
		return
	}
	out := result.Outcome
	rec := &history.Record{
		ID:           result.ID,
		Namespace:    result.Namespace,
		Function:     result.Function,
		Runtime:      string(result.Runtime.Kind),
		Status:       StatusOf(runErr),
		ExitCode:     out.ExitCode,
		Debug:        result.Debug.IsDebug(),
		TemplatePath: doc.Path,
		TemplateHash: doc.Hash,
		PlanHash:     result.Plan.Fingerprint(),
		StartedAt:    out.StartedAt,
		FinishedAt:   out.StartedAt.Add(out.Duration),
	}
	if runErr != nil {
		rec.LastError = runErr.Error()
	}

	// A cancelled invocation is still worth recording.
	if err := r.history.Record(context.WithoutCancel(ctx), rec); err != nil {
		log.WithInvocation(result.ID).Error("failed to record invocation", "error", err)
	}
}

// StatusOf classifies a supervisor error into a history status.
func StatusOf(err error) history.Status {
	var (
		spawnErr    *SpawnError
		timeoutErr  *TimeoutError
		mismatchErr *RuntimeMismatchError
	)
	switch {
	case err == nil:
		return history.StatusSucceeded
	case errors.Is(err, ErrCancelled):
		return history.StatusCancelled
	case errors.As(err, &spawnErr):
		return history.StatusSpawnFailed
	case errors.As(err, &timeoutErr):
		return history.StatusTimedOut
	case errors.As(err, &mismatchErr):
		return history.StatusRuntimeMismatch
	default:
		return history.StatusFailed
	}
}
