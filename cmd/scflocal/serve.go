package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattjoyce/scflocal/internal/api"
	"github.com/mattjoyce/scflocal/internal/config"
	"github.com/mattjoyce/scflocal/internal/lock"
	"github.com/mattjoyce/scflocal/internal/log"
)

type serveFlags struct {
	configPath   string
	templatePath string
	envVars      string
	listen       string
	historyDB    string
}

func newServeFlagSet(f *serveFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to scflocal config file")
	fs.StringVar(&f.templatePath, "template", "template.yaml", "Path to the function template")
	fs.StringVar(&f.templatePath, "t", "template.yaml", "Path to the function template (shorthand)")
	fs.StringVar(&f.envVars, "env-vars", "", "JSON file of environment variable overrides")
	fs.StringVar(&f.listen, "listen", "", "Listen address (default: api.listen)")
	fs.StringVar(&f.historyDB, "history-db", "", "Override the invocation history database path")
	return fs
}

func printServeHelp() {
	fmt.Print(`Usage: scflocal serve [flags]

Serve POST /invoke/{namespace}/{function} on a local address. The request
body is the event. Invocations run one at a time.

Flags:
`)
	fs := newServeFlagSet(&serveFlags{})
	fs.SetOutput(os.Stdout)
	fs.PrintDefaults()
}

func runServe(args []string) int {
	var f serveFlags
	fs := newServeFlagSet(&f)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: scflocal serve [flags]")
		return 1
	}

	cfg, err := config.LoadOrDefault(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if f.listen != "" {
		cfg.API.Listen = f.listen
	}
	if f.historyDB != "" {
		cfg.State.Path = f.historyDB
	}

	templatePath, err := filepath.Abs(f.templatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve template path: %v\n", err)
		return 1
	}
	if _, err := os.Stat(templatePath); err != nil {
		fmt.Fprintf(os.Stderr, "Template not found: %s\n", templatePath)
		return 1
	}

	log.Setup(cfg.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("scflocal serve starting", "version", version, "config", cfg.SourcePath)

	pidLock, err := lock.AcquirePIDLock(cfg.LockPath())
	if err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) {
			fmt.Fprintf(os.Stderr, "scflocal serve is already running (pid %d)\n", held.PID)
			return 1
		}
		logger.Error("failed to acquire PID lock", "path", cfg.LockPath(), "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, closeHistory, err := buildRunner(ctx, cfg, true)
	if err != nil {
		logger.Error("failed to build invoker", "error", err)
		return 1
	}
	defer closeHistory()

	// Serve has no per-invocation hook, so expired history goes at startup.
	if runner.prune != nil {
		runner.prune(cfg.State.Retention)
	}

	var reader api.HistoryReader
	if runner.store != nil {
		reader = runner.store
	}

	server := api.New(api.Config{
		Listen:       cfg.API.Listen,
		Token:        cfg.API.Token,
		TemplatePath: templatePath,
		EnvFile:      f.envVars,
	}, runner, reader, log.WithComponent("api"))

	fmt.Fprintf(os.Stderr, "Serving %s on http://%s\n", templatePath, cfg.API.Listen)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("API server failed", "error", err)
		return 1
	}
	logger.Info("scflocal serve stopped")
	return 0
}
