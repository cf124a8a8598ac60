package graph

import (
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// collector gathers the cells and names one formula reads
type collector struct {
	scope   Scope
	at      CellAddress
	cells   sets.Set[CellAddress]
	names   sets.Set[ScopeKey]
	visited sets.Set[ScopeKey]
}

func (c *collector) walk(e ast.Expr) {
	ast.Inspect(e, func(n ast.Expr) bool {
		switch n := n.(type) {
		case *ast.Ref:
			ranges, err := n.Ranges(c.at, c.scope)
			if err != value.NoError {
				return false
			}
			for _, r := range ranges {
				for cell := range r.Cells() {
					c.cells.Insert(cell)
				}
			}
		case *ast.StructuredRef:
			t, ok := c.scope.Table(n.Table)
			if !ok {
				return false
			}
			r, err := t.Resolve(n.Item, n.Column, c.at)
			if err != value.NoError {
				return false
			}
			if sheet, ok := c.scope.CanonicalSheet(r.Sheet()); ok {
				r.Start.Sheet, r.End.Sheet = sheet, sheet
			}
			for cell := range r.Cells() {
				c.cells.Insert(cell)
			}
		case *ast.Name:
			c.name(n)
			return false
		}
		return true
	})
}

// name records the scopes a name could be defined in and inlines the body
// of the definition that currently wins
func (c *collector) name(n *ast.Name) {
	upper := strings.ToUpper(n.Name)

	var (
		body  ast.Expr
		found bool
		key   ScopeKey
	)
	if n.Sheet != "" {
		sheet, ok := c.scope.CanonicalSheet(n.Sheet)
		if !ok {
			sheet = n.Sheet
		}
		key = ScopeKey{Sheet: sheet, Name: upper}
		c.names.Insert(key)
		body, found = c.scope.LookupSheetName(sheet, n.Name)
	} else {
		key = ScopeKey{Sheet: c.at.Sheet, Name: upper}
		c.names.Insert(key, ScopeKey{Name: upper})
		body, found = c.scope.LookupSheetName(c.at.Sheet, n.Name)
		if !found {
			key = ScopeKey{Name: upper}
			body, found = c.scope.LookupWorkbookName(n.Name)
		}
	}
	if !found || c.visited.Has(key) {
		return
	}
	c.visited.Insert(key)
	c.walk(body)
}
