package graphql

import (
	"errors"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// selection is one field of a query and the fields selected below it.
type selection struct {
	name     string
	children []*selection
}

var errUnsupported = errors.New("unsupported query")

// parseQuery reads a single anonymous or named query operation made of plain
// field selections. Arguments, aliases, directives, fragments and variables
// are rejected.
func parseQuery(q string) ([]*selection, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "request", Input: q})
	if err != nil {
		return nil, fmt.Errorf("parsing query: %w", err)
	}

	switch {
	case len(doc.Fragments) > 0:
		return nil, fmt.Errorf("%w: fragments", errUnsupported)
	case len(doc.Operations) == 0:
		return nil, errors.New("no operation in query")
	case len(doc.Operations) > 1:
		return nil, fmt.Errorf("%w: multiple operations", errUnsupported)
	}

	op := doc.Operations[0]
	switch {
	case op.Operation != ast.Query:
		return nil, fmt.Errorf("%w: only queries are supported", errUnsupported)
	case len(op.VariableDefinitions) > 0:
		return nil, fmt.Errorf("%w: variables", errUnsupported)
	case len(op.Directives) > 0:
		return nil, fmt.Errorf("%w: directives", errUnsupported)
	}
	return selections(op.SelectionSet)
}

func selections(set ast.SelectionSet) ([]*selection, error) {
	out := make([]*selection, 0, len(set))
	for _, sel := range set {
		f, ok := sel.(*ast.Field)
		if !ok {
			return nil, fmt.Errorf("%w: fragments", errUnsupported)
		}
		switch {
		case f.Alias != "" && f.Alias != f.Name:
			return nil, fmt.Errorf("%w: aliases", errUnsupported)
		case len(f.Arguments) > 0:
			return nil, fmt.Errorf("%w: arguments", errUnsupported)
		case len(f.Directives) > 0:
			return nil, fmt.Errorf("%w: directives", errUnsupported)
		}

		s := &selection{name: f.Name}
		if len(f.SelectionSet) > 0 {
			children, err := selections(f.SelectionSet)
			if err != nil {
				return nil, err
			}
			s.children = children
		}
		out = append(out, s)
	}
	return out, nil
}
