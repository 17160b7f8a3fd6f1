// Package doctor validates a function template and the local toolchain it
// needs before anything is invoked.
package doctor

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/mattjoyce/scflocal/internal/invoke"
	"github.com/mattjoyce/scflocal/internal/runtime"
	"github.com/mattjoyce/scflocal/internal/template"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid     bool    `json:"valid"`
	Template  string  `json:"template"`
	Functions int     `json:"functions"`
	Errors    []Issue `json:"errors,omitempty"`
	Warnings  []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// BridgeLocator resolves the bootstrap bridge of a runtime.
type BridgeLocator interface {
	BridgePath(kind runtime.Kind) (string, error)
}

// Doctor validates a template against the local environment.
type Doctor struct {
	doc      *template.Document
	bridges  BridgeLocator
	lookPath func(file string) (string, error)
}

// New creates a Doctor for a loaded template. bridges may be nil to skip the
// bootstrap check.
func New(doc *template.Document, bridges BridgeLocator) *Doctor {
	return &Doctor{doc: doc, bridges: bridges, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true, Template: d.doc.Path}

	d.validateResources(r)

	checkedCmds := make(map[string]bool)
	checkedBridges := make(map[runtime.Kind]bool)
	for _, nsName := range slices.Sorted(maps.Keys(d.doc.Resources)) {
		ns := d.doc.Resources[nsName]
		for _, fnName := range slices.Sorted(maps.Keys(ns.Functions)) {
			r.Functions++
			field := fmt.Sprintf("Resources.%s.%s", nsName, fnName)
			rt, ok := d.validateFunction(r, field, ns.Functions[fnName])
			if !ok {
				continue
			}
			if !checkedCmds[rt.Cmd] {
				checkedCmds[rt.Cmd] = true
				d.warnMissingInterpreter(r, field, rt)
			}
			if !checkedBridges[rt.Kind] {
				checkedBridges[rt.Kind] = true
				d.warnMissingBridge(r, field, rt.Kind)
			}
		}
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateResources checks the template defines something to invoke.
func (d *Doctor) validateResources(r *Result) {
	if len(d.doc.Resources) == 0 {
		d.addError(r, "resources", template.KeyResources, "template defines no namespaces")
		return
	}
	for name, ns := range d.doc.Resources {
		if len(ns.Functions) == 0 {
			d.addWarning(r, "resources", template.KeyResources+"."+name,
				fmt.Sprintf("namespace %q defines no functions", name))
		}
	}
}

// validateFunction checks one function's properties resolve to a runtime and
// its code location exists.
func (d *Doctor) validateFunction(r *Result, field string, fn *template.Function) (*runtime.Descriptor, bool) {
	rt, err := runtime.FromProperties(fn.Properties)
	if err != nil {
		d.addError(r, "runtime", field+"."+template.KeyProperties, err.Error())
		return nil, false
	}

	if !strings.Contains(rt.Handler, ".") {
		d.addWarning(r, "handler", field+".Properties.Handler",
			fmt.Sprintf("handler %q has no module.function separator", rt.Handler))
	}

	codeRoot, err := invoke.CodeRoot(d.doc.Path, rt.CodeURI)
	if err != nil {
		d.addError(r, "code", field+".Properties.CodeUri", err.Error())
		return rt, true
	}
	if info, err := os.Stat(codeRoot); err != nil {
		d.addWarning(r, "code", field+".Properties.CodeUri",
			fmt.Sprintf("code location %s not found", codeRoot))
	} else if !info.IsDir() {
		d.addWarning(r, "code", field+".Properties.CodeUri",
			fmt.Sprintf("code location %s is not a directory", codeRoot))
	}
	return rt, true
}

// warnMissingInterpreter warns when the runtime's executable is not on PATH.
func (d *Doctor) warnMissingInterpreter(r *Result, field string, rt *runtime.Descriptor) {
	if _, err := d.lookPath(rt.Cmd); err != nil {
		d.addWarning(r, "runtime", field+".Properties.Runtime",
			fmt.Sprintf("%s needs %q, which was not found on PATH", rt.Kind, rt.Cmd))
	}
}

// warnMissingBridge warns when the bootstrap bridge for a runtime is absent.
func (d *Doctor) warnMissingBridge(r *Result, field string, kind runtime.Kind) {
	if d.bridges == nil {
		return
	}
	path, err := d.bridges.BridgePath(kind)
	if err != nil {
		d.addError(r, "bootstrap", field+".Properties.Runtime", err.Error())
		return
	}
	if _, err := os.Stat(path); err != nil {
		d.addWarning(r, "bootstrap", field+".Properties.Runtime",
			fmt.Sprintf("bootstrap bridge for %s not found at %s", kind, path))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		fmt.Fprintf(&b, "Template valid (%d function(s)).\n", r.Functions)
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "Template valid (%d function(s), %d warning(s))\n", r.Functions, len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Template invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
