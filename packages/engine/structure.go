package engine

import (
	"fmt"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/host"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

func (e *Engine) InsertRows(sheet string, at, count int) error {
	return e.shift(sheet, at, count, ast.InsertRows)
}

func (e *Engine) DeleteRows(sheet string, at, count int) error {
	return e.shift(sheet, at, count, ast.DeleteRows)
}

func (e *Engine) InsertColumns(sheet string, at, count int) error {
	return e.shift(sheet, at, count, ast.InsertColumns)
}

func (e *Engine) DeleteColumns(sheet string, at, count int) error {
	return e.shift(sheet, at, count, ast.DeleteColumns)
}

// RenameSheet renames a sheet and every reference to it.
func (e *Engine) RenameSheet(oldName, newName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	canonical, ok := e.scope.CanonicalSheet(oldName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, oldName)
	}
	return e.restructure(ast.RenameSheet(canonical, newName))
}

// RenameTable renames a table and the structured references using it.
func (e *Engine) RenameTable(oldName, newName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restructure(ast.RenameTable(oldName, newName))
}

// RenameTableColumn renames one column of a table and the structured
// references naming it.
func (e *Engine) RenameTableColumn(table, oldName, newName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restructure(ast.RenameTableColumn(table, oldName, newName))
}

func (e *Engine) shift(sheet string, at, count int, build func(string, int, int) ast.Transform) error {
	if at < 1 || count < 1 {
		return fmt.Errorf("%w: position %d, count %d", ErrInvalidEdit, at, count)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	canonical, ok := e.scope.CanonicalSheet(sheet)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}
	return e.restructure(build(canonical, at, count))
}

type formulaCell struct {
	addr value.CellAddress
	text string
	expr ast.Expr
}

// restructure applies an edit to the host and carries every formula and
// defined name through it, then links the graph again from scratch.
// spills are dropped first and come back on the next recalculation.
func (e *Engine) restructure(t ast.Transform) error {
	var cells []formulaCell
	for _, ws := range e.workbook.Worksheets() {
		for _, addr := range ws.FormulaCells() {
			expr := ws.Expression(addr.Row, addr.Column)
			text := ws.FormulaText(addr.Row, addr.Column)
			if expr == nil {
				parsed, err := e.parse(addr, text)
				if err != nil {
					continue
				}
				expr = parsed
			}
			cells = append(cells, formulaCell{addr: addr, text: text, expr: expr})
		}
	}

	e.clearSpills()
	if err := e.workbook.Apply(t); err != nil {
		return err
	}

	pending := e.pending.UnsortedList()
	e.pending.Clear()
	for _, cell := range pending {
		if moved, ok := t.MapAddress(cell); ok {
			e.pending.Insert(moved)
		}
	}

	e.graph.Clear()
	e.formulas.reset()
	e.cache.Reset()

	var linked []formulaCell
	for _, fc := range cells {
		addr, ok := t.MapAddress(fc.addr)
		if !ok {
			continue
		}
		ws, ok := e.workbook.Worksheet(addr.Sheet)
		if !ok {
			continue
		}
		addr.Sheet = ws.Name()

		expr := t.Apply(fc.expr, fc.addr.Sheet)
		text, faithful := fc.text, true
		if expr != fc.expr {
			if e.formatter != nil {
				text = e.formatter.Format(expr, ast.FormatOptions{})
			} else {
				faithful = false
			}
		}
		shared := faithful && e.settings.ShareFormulas
		if shared {
			if existing, ok := e.formulas.lookup(text); ok {
				expr = existing
			}
		}
		e.formulas.attach(addr, text, expr, shared)
		ws.SetFormulaText(addr.Row, addr.Column, text)
		ws.SetExpression(addr.Row, addr.Column, expr)
		linked = append(linked, formulaCell{addr: addr, text: text, expr: expr})
		e.pending.Insert(addr)
	}

	// names first: linking inlines their bodies
	e.rewriteNames(t)
	for _, fc := range linked {
		e.link(fc.addr, fc.expr)
	}
	e.log.V(1).Info("restructured", "formulas", len(linked), "dropped", len(cells)-len(linked))
	return nil
}

// rewriteNames carries defined names through an edit without notifying
// subscribers; the graph is rebuilt right after
func (e *Engine) rewriteNames(t ast.Transform) {
	rewrite := func(names host.NameTable, sheet string) {
		for _, name := range names.Names() {
			expr, ok := names.Lookup(name)
			if !ok {
				continue
			}
			if out := t.Apply(expr, sheet); out != expr {
				names.Rewrite(name, out)
			}
		}
	}
	rewrite(e.workbook.Names(), "")
	for _, ws := range e.workbook.Worksheets() {
		rewrite(ws.Names(), ws.Name())
	}
}
