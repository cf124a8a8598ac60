// Package workbook is the in-memory host document: chunked worksheets,
// defined names and tables.
package workbook

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/host"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

const (
	DefaultRows    = 65536
	DefaultColumns = 256
)

var (
	ErrSheetNotFound  = errors.New("sheet not found")
	ErrDuplicateSheet = errors.New("sheet already exists")
	ErrInvalidName    = errors.New("invalid name")
	ErrTableNotFound  = errors.New("table not found")
	ErrDuplicateTable = errors.New("table already exists")
	ErrColumnNotFound = errors.New("table column not found")
	ErrInvalidTable   = errors.New("invalid table")
)

// Workbook owns the worksheets, workbook-scoped names and tables of one
// document. it implements host.Workbook.
type Workbook struct {
	mu      sync.RWMutex
	sheets  []*Worksheet
	tables  map[string]value.Table // upper-cased name -> table
	names   *NameTable
	strings *StringTable
	mode    host.CalculationMode
	rows    int
	cols    int
}

var _ host.Workbook = (*Workbook)(nil)

// Option configures a Workbook.
type Option func(*Workbook)

// WithSheetSize sets the row and column count of new sheets.
func WithSheetSize(rows, cols int) Option {
	return func(wb *Workbook) {
		if rows > 0 {
			wb.rows = rows
		}
		if cols > 0 {
			wb.cols = cols
		}
	}
}

// WithCalculationMode sets the initial workbook mode.
func WithCalculationMode(m host.CalculationMode) Option {
	return func(wb *Workbook) { wb.mode = m }
}

// New creates an empty workbook.
func New(opts ...Option) *Workbook {
	wb := &Workbook{
		tables:  make(map[string]value.Table),
		names:   NewNameTable(),
		strings: NewStringTable(),
		rows:    DefaultRows,
		cols:    DefaultColumns,
	}
	for _, opt := range opts {
		opt(wb)
	}
	return wb
}

func validName(name string) bool {
	return strings.TrimSpace(name) != "" && !strings.ContainsAny(name, "![]*?/\\:")
}

// AddWorksheet appends a sheet. names are unique ignoring case.
func (wb *Workbook) AddWorksheet(name string) (*Worksheet, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: sheet %q", ErrInvalidName, name)
	}
	wb.mu.Lock()
	defer wb.mu.Unlock()
	if wb.sheetIndex(name) >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateSheet, name)
	}
	ws := newWorksheet(name, wb.rows, wb.cols, wb.strings)
	wb.sheets = append(wb.sheets, ws)
	return ws, nil
}

// RemoveWorksheet drops a sheet with its cells and tables.
func (wb *Workbook) RemoveWorksheet(name string) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	i := wb.sheetIndex(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	ws := wb.sheets[i]
	ws.dispose()
	wb.sheets = slices.Delete(wb.sheets, i, i+1)
	for key, t := range wb.tables {
		if strings.EqualFold(t.Sheet, ws.Name()) {
			delete(wb.tables, key)
		}
	}
	return nil
}

func (wb *Workbook) sheetIndex(name string) int {
	return slices.IndexFunc(wb.sheets, func(ws *Worksheet) bool {
		return strings.EqualFold(ws.Name(), name)
	})
}

// Sheet returns the concrete worksheet for name, ignoring case.
func (wb *Workbook) Sheet(name string) (*Worksheet, bool) {
	wb.mu.RLock()
	defer wb.mu.RUnlock()
	if i := wb.sheetIndex(name); i >= 0 {
		return wb.sheets[i], true
	}
	return nil, false
}

func (wb *Workbook) Worksheet(name string) (host.Worksheet, bool) {
	ws, ok := wb.Sheet(name)
	if !ok {
		return nil, false
	}
	return ws, true
}

func (wb *Workbook) Worksheets() []host.Worksheet {
	wb.mu.RLock()
	defer wb.mu.RUnlock()
	out := make([]host.Worksheet, len(wb.sheets))
	for i, ws := range wb.sheets {
		out[i] = ws
	}
	return out
}

// SheetNames returns the sheet names in tab order.
func (wb *Workbook) SheetNames() []string {
	wb.mu.RLock()
	defer wb.mu.RUnlock()
	out := make([]string, len(wb.sheets))
	for i, ws := range wb.sheets {
		out[i] = ws.Name()
	}
	return out
}

func (wb *Workbook) Names() host.NameTable { return wb.names }

// DefinedNames is the workbook-scoped name table.
func (wb *Workbook) DefinedNames() *NameTable { return wb.names }

// Strings is the string table shared by every sheet.
func (wb *Workbook) Strings() *StringTable { return wb.strings }

func (wb *Workbook) CalculationMode() host.CalculationMode {
	wb.mu.RLock()
	defer wb.mu.RUnlock()
	return wb.mode
}

func (wb *Workbook) SetCalculationMode(m host.CalculationMode) {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	wb.mode = m
}

// AddTable registers a table. the sheet must exist, the name must be
// unique across the workbook and there must be one column name per column.
func (wb *Workbook) AddTable(t value.Table) error {
	if !validName(t.Name) {
		return fmt.Errorf("%w: table %q", ErrInvalidName, t.Name)
	}
	wb.mu.Lock()
	defer wb.mu.Unlock()
	i := wb.sheetIndex(t.Sheet)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, t.Sheet)
	}
	key := strings.ToUpper(t.Name)
	if _, exists := wb.tables[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTable, t.Name)
	}
	if len(t.ColumnNames) != t.Range.Columns() {
		return fmt.Errorf("%w: %q has %d column names for %d columns",
			ErrInvalidTable, t.Name, len(t.ColumnNames), t.Range.Columns())
	}
	body := t.Range.Rows()
	if t.HeaderRow {
		body--
	}
	if t.TotalsRow {
		body--
	}
	if body < 1 {
		return fmt.Errorf("%w: %q has no data rows", ErrInvalidTable, t.Name)
	}
	sheet := wb.sheets[i].Name()
	t.Sheet = sheet
	t.Range.Start.Sheet, t.Range.End.Sheet = sheet, sheet
	t.ColumnNames = slices.Clone(t.ColumnNames)
	wb.tables[key] = t
	return nil
}

// RemoveTable drops a table definition. cells are untouched.
func (wb *Workbook) RemoveTable(name string) bool {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	key := strings.ToUpper(name)
	_, ok := wb.tables[key]
	delete(wb.tables, key)
	return ok
}

func (wb *Workbook) Table(name string) (value.Table, bool) {
	wb.mu.RLock()
	defer wb.mu.RUnlock()
	t, ok := wb.tables[strings.ToUpper(name)]
	return t, ok
}

// Tables returns every table sorted by name.
func (wb *Workbook) Tables() []value.Table {
	wb.mu.RLock()
	defer wb.mu.RUnlock()
	out := make([]value.Table, 0, len(wb.tables))
	for _, t := range wb.tables {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b value.Table) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Apply moves cells and tables through a structural edit or performs a
// rename. formula text is rewritten by the engine, not here.
func (wb *Workbook) Apply(t ast.Transform) error {
	if sheet, _, _, _, ok := t.Shift(); ok {
		return wb.shift(sheet, t)
	}
	if oldName, newName, ok := t.SheetRename(); ok {
		return wb.renameSheet(oldName, newName, t)
	}
	if oldName, newName, ok := t.TableRename(); ok {
		return wb.renameTable(oldName, newName)
	}
	if table, oldName, newName, ok := t.ColumnRename(); ok {
		return wb.renameColumn(table, oldName, newName)
	}
	return nil
}

func (wb *Workbook) shift(sheet string, t ast.Transform) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	i := wb.sheetIndex(sheet)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}
	wb.sheets[i].shift(t)
	for key, table := range wb.tables {
		r, ok := t.MapRange(table.Range)
		if !ok {
			delete(wb.tables, key)
			continue
		}
		if r.Columns() != table.Range.Columns() {
			// deleted columns take their names with them
			table.ColumnNames = wb.survivingColumns(table, t)
		}
		table.Range = r
		wb.tables[key] = table
	}
	return nil
}

func (wb *Workbook) survivingColumns(table value.Table, t ast.Transform) []string {
	var names []string
	for i, name := range table.ColumnNames {
		at := table.Range.Start
		at.Column += i
		if _, ok := t.MapAddress(at); ok {
			names = append(names, name)
		}
	}
	return names
}

func (wb *Workbook) renameSheet(oldName, newName string, t ast.Transform) error {
	if !validName(newName) {
		return fmt.Errorf("%w: sheet %q", ErrInvalidName, newName)
	}
	wb.mu.Lock()
	defer wb.mu.Unlock()
	i := wb.sheetIndex(oldName)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, oldName)
	}
	if j := wb.sheetIndex(newName); j >= 0 && j != i {
		return fmt.Errorf("%w: %q", ErrDuplicateSheet, newName)
	}
	wb.sheets[i].rename(newName)
	for key, table := range wb.tables {
		if strings.EqualFold(table.Sheet, oldName) {
			table.Sheet = newName
			table.Range, _ = t.MapRange(table.Range)
			wb.tables[key] = table
		}
	}
	return nil
}

func (wb *Workbook) renameTable(oldName, newName string) error {
	if !validName(newName) {
		return fmt.Errorf("%w: table %q", ErrInvalidName, newName)
	}
	wb.mu.Lock()
	defer wb.mu.Unlock()
	oldKey, newKey := strings.ToUpper(oldName), strings.ToUpper(newName)
	table, ok := wb.tables[oldKey]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTableNotFound, oldName)
	}
	if _, taken := wb.tables[newKey]; taken && newKey != oldKey {
		return fmt.Errorf("%w: %q", ErrDuplicateTable, newName)
	}
	delete(wb.tables, oldKey)
	table.Name = newName
	wb.tables[newKey] = table
	return nil
}

func (wb *Workbook) renameColumn(tableName, oldName, newName string) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	key := strings.ToUpper(tableName)
	table, ok := wb.tables[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTableNotFound, tableName)
	}
	i := table.ColumnIndex(oldName)
	if i < 0 {
		return fmt.Errorf("%w: %q in %q", ErrColumnNotFound, oldName, tableName)
	}
	if j := table.ColumnIndex(newName); j >= 0 && j != i {
		return fmt.Errorf("%w: column %q in %q", ErrInvalidTable, newName, tableName)
	}
	table.ColumnNames = slices.Clone(table.ColumnNames)
	table.ColumnNames[i] = newName
	wb.tables[key] = table
	return nil
}
