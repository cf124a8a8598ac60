package engine

import (
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/eval"
	"github.com/vogtb/go-spreadsheet/packages/graph"
	"github.com/vogtb/go-spreadsheet/packages/host"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// scope answers sheet, cell, table and name questions from the host
// workbook. it holds no state of its own so level workers share it.
type scope struct {
	workbook host.Workbook
}

var (
	_ eval.Resolver = scope{}
	_ graph.Scope   = scope{}
)

func (s scope) CanonicalSheet(name string) (string, bool) {
	ws, ok := s.workbook.Worksheet(name)
	if !ok {
		return "", false
	}
	return ws.Name(), true
}

func (s scope) SheetsBetween(from, to string) ([]string, bool) {
	start, end := -1, -1
	sheets := s.workbook.Worksheets()
	for i, ws := range sheets {
		if strings.EqualFold(ws.Name(), from) {
			start = i
		}
		if strings.EqualFold(ws.Name(), to) {
			end = i
		}
	}
	if start < 0 || end < 0 {
		return nil, false
	}
	if start > end {
		start, end = end, start
	}
	out := make([]string, 0, end-start+1)
	for _, ws := range sheets[start : end+1] {
		out = append(out, ws.Name())
	}
	return out, true
}

func (s scope) SheetSize(sheet string) (rows, cols int) {
	if ws, ok := s.workbook.Worksheet(sheet); ok {
		return ws.Size()
	}
	return 0, 0
}

func (s scope) CellValue(addr value.CellAddress) value.Value {
	ws, ok := s.workbook.Worksheet(addr.Sheet)
	if !ok {
		return value.Error(value.ErrorRef)
	}
	return ws.Value(addr.Row, addr.Column)
}

func (s scope) Table(name string) (value.Table, bool) {
	return s.workbook.Table(name)
}

func (s scope) LookupSheetName(sheet, name string) (ast.Expr, bool) {
	ws, ok := s.workbook.Worksheet(sheet)
	if !ok {
		return nil, false
	}
	return ws.Names().Lookup(name)
}

func (s scope) LookupWorkbookName(name string) (ast.Expr, bool) {
	return s.workbook.Names().Lookup(name)
}

// lookupName resolves a name the way formulas do: an explicit sheet, else
// the formula's sheet, else the workbook
func (s scope) lookupName(n *ast.Name, at value.CellAddress) (body ast.Expr, key graph.ScopeKey, ok bool) {
	upper := strings.ToUpper(n.Name)
	if n.Sheet != "" {
		sheet, _ := s.CanonicalSheet(n.Sheet)
		body, ok = s.LookupSheetName(n.Sheet, n.Name)
		return body, graph.ScopeKey{Sheet: sheet, Name: upper}, ok
	}
	if body, ok = s.LookupSheetName(at.Sheet, n.Name); ok {
		return body, graph.ScopeKey{Sheet: at.Sheet, Name: upper}, true
	}
	body, ok = s.LookupWorkbookName(n.Name)
	return body, graph.ScopeKey{Name: upper}, ok
}

// calculationMode is the sheet override when present, else the workbook's
func (s scope) calculationMode(sheet string) host.CalculationMode {
	if ws, ok := s.workbook.Worksheet(sheet); ok {
		if o, ok := ws.(host.CalculationModeOverride); ok {
			if m, set := o.CalculationMode(); set {
				return m
			}
		}
	}
	return s.workbook.CalculationMode()
}
