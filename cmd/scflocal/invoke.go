package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/scflocal/internal/config"
	"github.com/mattjoyce/scflocal/internal/history"
	"github.com/mattjoyce/scflocal/internal/invoke"
	"github.com/mattjoyce/scflocal/internal/log"
	"github.com/mattjoyce/scflocal/internal/storage"
	"github.com/mattjoyce/scflocal/internal/template"
)

// errEventConflict is the usage error for --no-event combined with --event.
var errEventConflict = errors.New("event is conflict with no_event, provide only one")

type invokeFlags struct {
	templatePath string
	namespace    string
	function     string
	event        string
	noEvent      bool
	envVars      string
	debugPort    int
	debugArgs    string
	quiet        bool
	configPath   string
	historyDB    string
	noHistory    bool
	logLevel     string
}

func newInvokeFlagSet(f *invokeFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("invoke", flag.ContinueOnError)
	fs.StringVar(&f.templatePath, "template", "template.yaml", "Path to the function template")
	fs.StringVar(&f.templatePath, "t", "template.yaml", "Path to the function template (shorthand)")
	fs.StringVar(&f.namespace, "namespace", "", "Namespace of the function")
	fs.StringVar(&f.function, "name", "", "Name of the function")
	fs.StringVar(&f.function, "n", "", "Name of the function (shorthand)")
	fs.StringVar(&f.event, "event", "-", "JSON event file, '-' reads stdin")
	fs.StringVar(&f.event, "e", "-", "JSON event file (shorthand)")
	fs.BoolVar(&f.noEvent, "no-event", false, "Invoke with an empty event {}")
	fs.StringVar(&f.envVars, "env-vars", "", "JSON file of environment variable overrides")
	fs.IntVar(&f.debugPort, "debug-port", 0, "Start the runtime in debug mode on this port")
	fs.IntVar(&f.debugPort, "d", 0, "Debug port (shorthand)")
	fs.StringVar(&f.debugArgs, "debug-args", "", "Extra arguments passed to the debugger")
	fs.BoolVar(&f.quiet, "quiet", false, "Suppress runtime and tool output")
	fs.BoolVar(&f.quiet, "q", false, "Suppress output (shorthand)")
	fs.StringVar(&f.configPath, "config", "", "Path to scflocal config file")
	fs.StringVar(&f.historyDB, "history-db", "", "Override the invocation history database path")
	fs.BoolVar(&f.noHistory, "no-history", false, "Do not record this invocation")
	fs.StringVar(&f.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	return fs
}

func printInvokeHelp() {
	fmt.Print(`Usage: scflocal invoke [namespace] [function] [flags]

Invoke a function from a template once, locally. The event is read from a
file, from stdin ('-', the default) or omitted with --no-event.

Flags:
`)
	fs := newInvokeFlagSet(&invokeFlags{})
	fs.SetOutput(os.Stdout)
	fs.PrintDefaults()
}

func runInvoke(args []string) int {
	var f invokeFlags
	fs := newInvokeFlagSet(&f)
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	eventSet := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "event" || fl.Name == "e" {
			eventSet = true
		}
	})
	if f.noEvent && eventSet {
		fmt.Fprintln(os.Stderr, styleError.Render("Error: "+errEventConflict.Error()+"."))
		return 1
	}

	switch len(positional) {
	case 0:
	case 1:
		f.namespace = positional[0]
	case 2:
		f.namespace, f.function = positional[0], positional[1]
	default:
		fmt.Fprintln(os.Stderr, "Usage: scflocal invoke [namespace] [function] [flags]")
		return 1
	}

	cfg, err := config.LoadOrDefault(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.historyDB != "" {
		cfg.State.Path = f.historyDB
	}
	log.Setup(cfg.LogLevel)

	event, fromStdin, err := readEvent(f, os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render("Error: "+err.Error()))
		return 1
	}
	if fromStdin && !f.quiet {
		fmt.Fprintln(os.Stderr, styleMuted.Render("read event from stdin"))
	}

	runner, closeHistory, err := buildRunner(context.Background(), cfg, !f.noHistory)
	if err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render("Error: "+err.Error()))
		return 1
	}
	defer closeHistory()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := invoke.Options{
		TemplatePath: f.templatePath,
		Selector:     template.Selector{Namespace: f.namespace, Function: f.function},
		Event:        event,
		EnvFile:      f.envVars,
		DebugPort:    f.debugPort,
		DebugArgs:    f.debugArgs,
		Quiet:        f.quiet,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
	}
	if !fromStdin {
		opts.Stdin = os.Stdin
	}

	result, err := runner.Invoke(ctx, opts)
	reportInvocation(os.Stderr, result, err, f.quiet)

	if runner.prune != nil {
		runner.prune(cfg.State.Retention)
	}
	return invoke.ExitStatus(err)
}

// readEvent returns the event body and whether it was read from stdin.
func readEvent(f invokeFlags, stdin io.Reader) (string, bool, error) {
	if f.noEvent {
		return "{}", false, nil
	}
	if f.event == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", true, fmt.Errorf("read event from stdin: %w", err)
		}
		return string(data), true, nil
	}
	data, err := os.ReadFile(f.event)
	if err != nil {
		return "", false, fmt.Errorf("read event file: %w", err)
	}
	return string(data), false, nil
}

// cliRunner is an invoke.Runner plus the history maintenance the CLI
// performs around it.
type cliRunner struct {
	*invoke.Runner
	// store and prune are nil when history is disabled.
	store *history.Store
	prune func(retention time.Duration)
}

// buildRunner wires planner, supervisor and (optionally) history from config.
// A history database that cannot be opened is logged and skipped so the
// invocation itself still runs.
func buildRunner(ctx context.Context, cfg *config.Config, withHistory bool) (*cliRunner, func(), error) {
	policy, err := invoke.ParseTimeoutPolicy(cfg.Invoke.DebugTimeout)
	if err != nil {
		return nil, nil, err
	}

	bootstrapDir := cfg.Runtime.BootstrapDir
	if bootstrapDir == "" {
		bootstrapDir, err = invoke.DefaultBootstrapDir()
		if err != nil {
			return nil, nil, err
		}
	}

	planner := invoke.NewPlanner(bootstrapDir)
	supervisor := invoke.NewSupervisor(policy)

	if !withHistory {
		return &cliRunner{Runner: invoke.NewRunner(planner, supervisor, nil)}, func() {}, nil
	}

	store, closeDB, err := openHistory(ctx, cfg.State.Path)
	if err != nil {
		log.Warn("invocation history disabled", "path", cfg.State.Path, "error", err)
		return &cliRunner{Runner: invoke.NewRunner(planner, supervisor, nil)}, func() {}, nil
	}

	return &cliRunner{
		Runner: invoke.NewRunner(planner, supervisor, store),
		store:  store,
		prune: func(retention time.Duration) {
			if retention <= 0 {
				return
			}
			n, err := store.Prune(context.Background(), retention)
			if err != nil {
				log.Warn("failed to prune invocation history", "error", err)
				return
			}
			if n > 0 {
				log.Debug("pruned invocation history", "deleted", n)
			}
		},
	}, closeDB, nil
}

func openHistory(ctx context.Context, path string) (*history.Store, func(), error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return history.NewStore(db), func() { _ = db.Close() }, nil
}

// reportInvocation prints the user-facing outcome line of an invocation.
func reportInvocation(w io.Writer, result *invoke.Result, err error, quiet bool) {
	var (
		timeoutErr  *invoke.TimeoutError
		spawnErr    *invoke.SpawnError
		mismatchErr *invoke.RuntimeMismatchError
		exitErr     *invoke.ExitError
	)
	switch {
	case err == nil:
		if !quiet && result != nil {
			fmt.Fprintln(w, styleSuccess.Render(fmt.Sprintf("Invocation %s succeeded in %s.",
				result.ID, result.Outcome.Duration.Round(time.Millisecond))))
		}
	case errors.Is(err, invoke.ErrCancelled):
		fmt.Fprintln(w, "Recv a SIGINT, exit.")
	case errors.As(err, &timeoutErr):
		fmt.Fprintln(w, styleError.Render("Function Timeout."))
		fmt.Fprintln(w, timeoutErr.Error())
	case errors.As(err, &spawnErr), errors.As(err, &mismatchErr):
		fmt.Fprintln(w, styleError.Render("Execution Failed."))
		fmt.Fprintln(w, err.Error())
	case errors.As(err, &exitErr):
		if !quiet {
			fmt.Fprintln(w, styleError.Render(fmt.Sprintf("Function exited with code %d.", exitErr.Code)))
		}
	default:
		fmt.Fprintln(w, styleError.Render("Error: "+selectionHint(err)))
	}
}

// selectionHint adds the flags that resolve an ambiguous selection.
func selectionHint(err error) string {
	msg := err.Error()
	if errors.Is(err, template.ErrAmbiguousSelection) && !strings.Contains(msg, "--") {
		msg += " (use --namespace and --name, or pass them as arguments)"
	}
	return msg
}
