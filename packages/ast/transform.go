package ast

import (
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/value"
)

// Axis selects rows or columns for structural edits.
type Axis uint8

const (
	Rows Axis = iota
	Columns
)

type transformKind uint8

const (
	shiftKind transformKind = iota
	renameSheetKind
	renameTableKind
	renameColumnKind
)

// Transform describes a structural edit and how references move through
// it. build one with InsertRows, DeleteRows, InsertColumns, DeleteColumns,
// RenameSheet, RenameTable or RenameTableColumn.
type Transform struct {
	kind  transformKind
	sheet string
	axis  Axis
	at    int
	count int // positive inserts, negative deletes

	table   string
	oldName string
	newName string
}

func InsertRows(sheet string, at, count int) Transform {
	return Transform{kind: shiftKind, sheet: sheet, axis: Rows, at: at, count: count}
}

func DeleteRows(sheet string, at, count int) Transform {
	return Transform{kind: shiftKind, sheet: sheet, axis: Rows, at: at, count: -count}
}

func InsertColumns(sheet string, at, count int) Transform {
	return Transform{kind: shiftKind, sheet: sheet, axis: Columns, at: at, count: count}
}

func DeleteColumns(sheet string, at, count int) Transform {
	return Transform{kind: shiftKind, sheet: sheet, axis: Columns, at: at, count: -count}
}

func RenameSheet(oldName, newName string) Transform {
	return Transform{kind: renameSheetKind, oldName: oldName, newName: newName}
}

func RenameTable(oldName, newName string) Transform {
	return Transform{kind: renameTableKind, oldName: oldName, newName: newName}
}

func RenameTableColumn(table, oldName, newName string) Transform {
	return Transform{kind: renameColumnKind, table: table, oldName: oldName, newName: newName}
}

// Shift returns the sheet, axis, position and signed count of a row or
// column edit. ok is false for renames.
func (t Transform) Shift() (sheet string, axis Axis, at, count int, ok bool) {
	return t.sheet, t.axis, t.at, t.count, t.kind == shiftKind
}

// SheetRename returns the names of a sheet rename.
func (t Transform) SheetRename() (oldName, newName string, ok bool) {
	return t.oldName, t.newName, t.kind == renameSheetKind
}

// TableRename returns the names of a table rename.
func (t Transform) TableRename() (oldName, newName string, ok bool) {
	return t.oldName, t.newName, t.kind == renameTableKind
}

// ColumnRename returns the table and column names of a table column rename.
func (t Transform) ColumnRename() (table, oldName, newName string, ok bool) {
	return t.table, t.oldName, t.newName, t.kind == renameColumnKind
}

// span maps the inclusive 1-based interval [s, e] through a shift. ok is
// false when the whole interval is deleted.
func (t Transform) span(s, e int) (int, int, bool) {
	if t.count > 0 {
		if s >= t.at {
			s += t.count
		}
		if e >= t.at {
			e += t.count
		}
		return s, e, true
	}
	n := -t.count
	last := t.at + n - 1
	if s >= t.at && e <= last {
		return 0, 0, false
	}
	ns, ne := s, e
	switch {
	case s > last:
		ns = s - n
	case s >= t.at:
		ns = t.at
	}
	switch {
	case e > last:
		ne = e - n
	case e >= t.at:
		ne = t.at - 1
	}
	return ns, ne, true
}

func (t Transform) onSheet(sheet string) bool {
	return strings.EqualFold(sheet, t.sheet)
}

// MapAddress moves a cell address through the edit. ok is false when the
// cell is deleted.
func (t Transform) MapAddress(addr value.CellAddress) (value.CellAddress, bool) {
	switch t.kind {
	case shiftKind:
		if !t.onSheet(addr.Sheet) {
			return addr, true
		}
		if t.axis == Rows {
			r, _, ok := t.span(addr.Row, addr.Row)
			addr.Row = r
			return addr, ok
		}
		c, _, ok := t.span(addr.Column, addr.Column)
		addr.Column = c
		return addr, ok
	case renameSheetKind:
		if strings.EqualFold(addr.Sheet, t.oldName) {
			addr.Sheet = t.newName
		}
	}
	return addr, true
}

// MapRange moves a rectangle through the edit, shrinking it when part of
// it is deleted. ok is false when all of it is deleted.
func (t Transform) MapRange(r value.RangeAddress) (value.RangeAddress, bool) {
	switch t.kind {
	case shiftKind:
		if !t.onSheet(r.Sheet()) {
			return r, true
		}
		var ok bool
		if t.axis == Rows {
			r.Start.Row, r.End.Row, ok = t.span(r.Start.Row, r.End.Row)
		} else {
			r.Start.Column, r.End.Column, ok = t.span(r.Start.Column, r.End.Column)
		}
		return r, ok
	case renameSheetKind:
		if strings.EqualFold(r.Sheet(), t.oldName) {
			r.Start.Sheet, r.End.Sheet = t.newName, t.newName
		}
	}
	return r, true
}

// Apply rewrites a formula living on formulaSheet. references that are
// wholly deleted become #REF! literals. the input tree is returned as is
// when nothing refers to the edited area.
func (t Transform) Apply(e Expr, formulaSheet string) Expr {
	return Rewrite(e, func(n Expr) Expr {
		switch n := n.(type) {
		case *Ref:
			return t.applyRef(n, formulaSheet)
		case *Name:
			if t.kind == renameSheetKind && n.Sheet != "" && strings.EqualFold(n.Sheet, t.oldName) {
				return &Name{Sheet: t.newName, Name: n.Name}
			}
		case *StructuredRef:
			return t.applyStructured(n)
		}
		return n
	})
}

func (t Transform) applyRef(r *Ref, formulaSheet string) Expr {
	switch t.kind {
	case renameSheetKind:
		sheet, end := r.Sheet, r.EndSheet
		if strings.EqualFold(sheet, t.oldName) {
			sheet = t.newName
		}
		if end != "" && strings.EqualFold(end, t.oldName) {
			end = t.newName
		}
		if sheet == r.Sheet && end == r.EndSheet {
			return r
		}
		out := *r
		out.Sheet, out.EndSheet = sheet, end
		return &out
	case shiftKind:
		// 3-D references keep their coordinates across single-sheet edits
		if r.Is3D() {
			return r
		}
		sheet := r.Sheet
		if sheet == "" {
			sheet = formulaSheet
		}
		if !t.onSheet(sheet) {
			return r
		}
		out := *r
		var ok bool
		if t.axis == Rows {
			if r.IsWholeColumn() {
				return r
			}
			out.Start.Row, out.End.Row, ok = t.span(r.Start.Row, r.End.Row)
		} else {
			if r.IsWholeRow() {
				return r
			}
			out.Start.Column, out.End.Column, ok = t.span(r.Start.Column, r.End.Column)
		}
		if !ok {
			return &Literal{Value: value.Error(value.ErrorRef)}
		}
		if out == *r {
			return r
		}
		return &out
	}
	return r
}

func (t Transform) applyStructured(s *StructuredRef) Expr {
	switch t.kind {
	case renameTableKind:
		if strings.EqualFold(s.Table, t.oldName) {
			return &StructuredRef{Table: t.newName, Item: s.Item, Column: s.Column}
		}
	case renameColumnKind:
		if strings.EqualFold(s.Table, t.table) && s.Column != "" && strings.EqualFold(s.Column, t.oldName) {
			return &StructuredRef{Table: s.Table, Item: s.Item, Column: t.newName}
		}
	}
	return s
}
