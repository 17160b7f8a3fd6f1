package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/scflocal/internal/config"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		printConfigHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "show":
		return runConfigShow(args[1:])
	case "get":
		return runConfigGet(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		printConfigHelp()
		return 1
	}
}

func printConfigHelp() {
	fmt.Print(`Usage: scflocal config <action> [flags]

Actions:
  show          Print the effective configuration as YAML
  get <path>    Print one value by dotted path (e.g. state.retention)

Flags:
  --config PATH   Path to scflocal config file
`)
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to scflocal config file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	out, err := cfg.YAML()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	if cfg.SourcePath != "" {
		fmt.Printf("# %s\n", cfg.SourcePath)
	} else {
		fmt.Println("# built-in defaults")
	}
	fmt.Print(string(out))
	return 0
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("config get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to scflocal config file")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: scflocal config get <path>")
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	value, err := cfg.GetPath(positional[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch v := value.(type) {
	case string, int, bool, float64:
		fmt.Println(v)
	default:
		out, err := yaml.Marshal(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render value: %v\n", err)
			return 1
		}
		fmt.Print(string(out))
	}
	return 0
}
