package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mattjoyce/scflocal/internal/config"
	"github.com/mattjoyce/scflocal/internal/history"
	"github.com/mattjoyce/scflocal/internal/log"
)

func runHistoryNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		printHistoryHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		return runHistoryList(actionArgs)
	case "show":
		return runHistoryShow(actionArgs)
	case "prune":
		return runHistoryPrune(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown history action: %s\n", action)
		printHistoryHelp()
		return 1
	}
}

func printHistoryHelp() {
	fmt.Print(`Usage: scflocal history <action> [flags]

Actions:
  list                List recent invocations, newest first
  show <id>           Show one invocation
  prune               Delete invocations older than the retention period

Common flags:
  --config PATH       Path to scflocal config file
  --history-db PATH   Override the invocation history database path
  --json              Output JSON (list, show)
`)
}

// historyFlags registers the flags shared by every history action.
func historyFlags(fs *flag.FlagSet) (configPath, historyDB *string) {
	configPath = fs.String("config", "", "Path to scflocal config file")
	historyDB = fs.String("history-db", "", "Override the invocation history database path")
	return configPath, historyDB
}

// openHistoryStore loads config and opens the history database.
func openHistoryStore(ctx context.Context, configPath, historyDB string) (*config.Config, *history.Store, func(), error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if historyDB != "" {
		cfg.State.Path = historyDB
	}
	log.Setup(cfg.LogLevel)

	store, closeDB, err := openHistory(ctx, cfg.State.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open history %s: %w", cfg.State.Path, err)
	}
	return cfg, store, closeDB, nil
}

func runHistoryList(args []string) int {
	fs := flag.NewFlagSet("history list", flag.ContinueOnError)
	configPath, historyDB := historyFlags(fs)
	function := fs.String("function", "", "Only show invocations of this function")
	limit := fs.Int("limit", history.DefaultListLimit, "Maximum number of invocations to show")
	jsonOut := fs.Bool("json", false, "Output JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be positive")
		return 1
	}

	ctx := context.Background()
	_, store, closeDB, err := openHistoryStore(ctx, *configPath, *historyDB)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closeDB()

	records, err := store.List(ctx, *function, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list invocations: %v\n", err)
		return 1
	}

	if *jsonOut {
		if records == nil {
			records = []*history.Record{}
		}
		return printJSON(records)
	}

	if len(records) == 0 {
		fmt.Println(styleMuted.Render("No invocations recorded."))
		return 0
	}
	fmt.Println(renderHistoryTable(records))
	return 0
}

// renderHistoryTable lays out records as a bordered table.
func renderHistoryTable(records []*history.Record) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ID,
			rec.Namespace + "/" + rec.Function,
			rec.Runtime,
			string(rec.Status),
			fmt.Sprintf("%d", rec.ExitCode),
			rec.Duration().Round(time.Millisecond).String(),
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleMuted).
		Headers("ID", "FUNCTION", "RUNTIME", "STATUS", "EXIT", "DURATION", "STARTED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			if col == 3 && row >= 0 && row < len(rows) {
				return statusStyle(rows[row][col]).Padding(0, 1)
			}
			return styleCell
		}).
		Render()
}

func runHistoryShow(args []string) int {
	fs := flag.NewFlagSet("history show", flag.ContinueOnError)
	configPath, historyDB := historyFlags(fs)
	jsonOut := fs.Bool("json", false, "Output JSON")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: scflocal history show <id> [--json]")
		return 1
	}

	ctx := context.Background()
	_, store, closeDB, err := openHistoryStore(ctx, *configPath, *historyDB)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closeDB()

	rec, err := store.Get(ctx, positional[0])
	if errors.Is(err, history.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Invocation %s not found\n", positional[0])
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read invocation: %v\n", err)
		return 1
	}

	if *jsonOut {
		return printJSON(rec)
	}
	writeRecord(os.Stdout, rec)
	return 0
}

func writeRecord(w io.Writer, rec *history.Record) {
	fmt.Fprintf(w, "id:        %s\n", rec.ID)
	fmt.Fprintf(w, "function:  %s/%s\n", rec.Namespace, rec.Function)
	fmt.Fprintf(w, "runtime:   %s\n", rec.Runtime)
	fmt.Fprintf(w, "status:    %s\n", statusStyle(string(rec.Status)).Render(string(rec.Status)))
	fmt.Fprintf(w, "exit_code: %d\n", rec.ExitCode)
	if rec.LastError != "" {
		fmt.Fprintf(w, "error:     %s\n", rec.LastError)
	}
	fmt.Fprintf(w, "debug:     %t\n", rec.Debug)
	fmt.Fprintf(w, "template:  %s\n", rec.TemplatePath)
	fmt.Fprintf(w, "  blake3:  %s\n", rec.TemplateHash)
	fmt.Fprintf(w, "plan:      %s\n", rec.PlanHash)
	fmt.Fprintf(w, "started:   %s\n", rec.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "duration:  %s\n", rec.Duration().Round(time.Millisecond))
}

func runHistoryPrune(args []string) int {
	fs := flag.NewFlagSet("history prune", flag.ContinueOnError)
	configPath, historyDB := historyFlags(fs)
	olderThan := fs.Duration("older-than", 0, "Delete invocations older than this (default: state.retention)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	cfg, store, closeDB, err := openHistoryStore(ctx, *configPath, *historyDB)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closeDB()

	retention := *olderThan
	if retention == 0 {
		retention = cfg.State.Retention
	}
	if retention <= 0 {
		fmt.Fprintln(os.Stderr, "Nothing to prune: retention is disabled (set state.retention or pass --older-than)")
		return 1
	}

	n, err := store.Prune(ctx, retention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to prune history: %v\n", err)
		return 1
	}
	fmt.Printf("Pruned %d invocation(s) older than %s.\n", n, retention)
	return 0
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}
