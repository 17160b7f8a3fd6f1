package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattjoyce/scflocal/internal/config"
	"github.com/mattjoyce/scflocal/internal/doctor"
	"github.com/mattjoyce/scflocal/internal/invoke"
	"github.com/mattjoyce/scflocal/internal/template"
)

func runTemplateNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		printTemplateHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "check":
		return runTemplateCheck(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown template action: %s\n", args[0])
		printTemplateHelp()
		return 1
	}
}

func printTemplateHelp() {
	fmt.Print(`Usage: scflocal template <action> [flags]

Actions:
  check    Validate the template and the local runtimes it needs

Flags (check):
  -t, --template PATH   Path to the function template (default template.yaml)
  --config PATH         Path to scflocal config file
  --format FORMAT       Output format: human or json (default human)
`)
}

func runTemplateCheck(args []string) int {
	var templatePath, configPath, format string
	fs := flag.NewFlagSet("template check", flag.ContinueOnError)
	fs.StringVar(&templatePath, "template", "template.yaml", "Path to the function template")
	fs.StringVar(&templatePath, "t", "template.yaml", "Path to the function template (shorthand)")
	fs.StringVar(&configPath, "config", "", "Path to scflocal config file")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if format != "human" && format != "json" {
		fmt.Fprintf(os.Stderr, "Unknown format %q (want human or json)\n", format)
		return 1
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	doc, err := template.Load(templatePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render("Error: "+err.Error()))
		return 1
	}

	bootstrapDir := cfg.Runtime.BootstrapDir
	if bootstrapDir == "" {
		bootstrapDir, err = invoke.DefaultBootstrapDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to locate bootstrap bridges: %v\n", err)
			return 1
		}
	}

	result := doctor.New(doc, invoke.NewPlanner(bootstrapDir)).Validate()

	if format == "json" {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}
