package bridge

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

// DepthCode is the extension code carried by depth-limit errors.
const DepthCode = "QUERY_TOO_DEEP"

// QueryDepth returns the deepest field nesting of any operation in query.
// Fragment spreads are followed; a fragment cycle stops at the repeat.
func QueryDepth(query string) (int, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return 0, err
	}
	deepest := 0
	for _, op := range doc.Operations {
		d := selectionDepth(doc, op.SelectionSet, map[string]bool{})
		if d > deepest {
			deepest = d
		}
	}
	return deepest, nil
}

func selectionDepth(doc *ast.QueryDocument, set ast.SelectionSet, visiting map[string]bool) int {
	deepest := 0
	for _, sel := range set {
		var d int
		switch s := sel.(type) {
		case *ast.Field:
			d = 1 + selectionDepth(doc, s.SelectionSet, visiting)
		case *ast.InlineFragment:
			d = selectionDepth(doc, s.SelectionSet, visiting)
		case *ast.FragmentSpread:
			if visiting[s.Name] {
				continue
			}
			frag := doc.Fragments.ForName(s.Name)
			if frag == nil {
				continue
			}
			visiting[s.Name] = true
			d = selectionDepth(doc, frag.SelectionSet, visiting)
			delete(visiting, s.Name)
		}
		if d > deepest {
			deepest = d
		}
	}
	return deepest
}

// CheckDepth rejects a query nested deeper than limit. A non-positive limit
// disables the check. Queries that do not parse pass through so the engine
// reports the syntax error itself.
func CheckDepth(query string, limit int) error {
	if limit <= 0 {
		return nil
	}
	depth, err := QueryDepth(query)
	if err != nil {
		return nil
	}
	if depth <= limit {
		return nil
	}
	return &gqlerror.Error{
		Message: fmt.Sprintf("query depth %d exceeds maximum of %d", depth, limit),
		Rule:    "MaxQueryDepth",
		Extensions: map[string]any{
			"code":  DepthCode,
			"depth": depth,
			"limit": limit,
		},
	}
}
