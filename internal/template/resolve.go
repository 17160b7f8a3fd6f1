package template

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrAmbiguousSelection means no name was given and the template does not
	// contain exactly one candidate.
	ErrAmbiguousSelection = errors.New("ambiguous selection")
	// ErrInvalidSelection means the requested name does not exist.
	ErrInvalidSelection = errors.New("invalid selection")
)

// Selector names the namespace and function to invoke. Empty fields are
// filled in by Resolve when the template leaves only one choice.
type Selector struct {
	Namespace string
	Function  string
}

// Resolution is the selected function.
type Resolution struct {
	Namespace  string
	Function   string
	Properties map[string]any
}

// Resolve picks exactly one function from doc and records the chosen names
// back into sel.
func Resolve(doc *Document, sel *Selector) (*Resolution, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: no template", ErrInvalidSelection)
	}
	if sel == nil {
		sel = &Selector{}
	}

	nsName, ns, err := pick("namespace", sel.Namespace, doc.Resources)
	if err != nil {
		return nil, err
	}
	if ns == nil {
		return nil, fmt.Errorf("%w: namespace %q has no definition", ErrInvalidSelection, nsName)
	}
	sel.Namespace = nsName

	fnName, fn, err := pick("function", sel.Function, ns.Functions)
	if err != nil {
		return nil, fmt.Errorf("namespace %q: %w", nsName, err)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: function %q has no definition", ErrInvalidSelection, fnName)
	}
	sel.Function = fnName

	return &Resolution{
		Namespace:  nsName,
		Function:   fnName,
		Properties: maps.Clone(fn.Properties),
	}, nil
}

func pick[T any](kind, hint string, entries map[string]T) (string, T, error) {
	var zero T
	if hint != "" {
		v, ok := entries[hint]
		if !ok {
			return "", zero, fmt.Errorf("%w: you must provide a valid %s, %q not found (available: %s)",
				ErrInvalidSelection, kind, hint, available(entries))
		}
		return hint, v, nil
	}

	if len(entries) != 1 {
		return "", zero, fmt.Errorf("%w: you must provide a valid %s, template declares %d (available: %s)",
			ErrAmbiguousSelection, kind, len(entries), available(entries))
	}
	for name, v := range entries {
		return name, v, nil
	}
	return "", zero, nil
}

func available[T any](entries map[string]T) string {
	if len(entries) == 0 {
		return "none"
	}
	return strings.Join(slices.Sorted(maps.Keys(entries)), ", ")
}
