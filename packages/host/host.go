// Package host defines the storage the calculation engine reads from and
// writes to. the engine never owns cells; it drives a Workbook.
package host

import (
	"fmt"
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// CalculationMode decides whether edits trigger recalculation.
type CalculationMode uint8

const (
	Automatic CalculationMode = iota
	Manual
)

func (m CalculationMode) String() string {
	switch m {
	case Automatic:
		return "automatic"
	case Manual:
		return "manual"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseCalculationMode reads "automatic" or "manual", ignoring case.
func ParseCalculationMode(s string) (CalculationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "automatic", "auto":
		return Automatic, nil
	case "manual":
		return Manual, nil
	}
	return Automatic, fmt.Errorf("unknown calculation mode %q", s)
}

// NameTable maps defined names to expressions within one scope. names
// compare case-insensitively.
type NameTable interface {
	Lookup(name string) (ast.Expr, bool)
	Names() []string
	// Rewrite replaces a definition without notifying subscribers.
	Rewrite(name string, expr ast.Expr)
	// Subscribe registers fn for every define or remove. the returned func
	// cancels the subscription.
	Subscribe(fn func(name string)) (cancel func())
}

// Worksheet is one sheet of cells. rows and columns are 1-based. cell
// accessors may be called from several goroutines during a parallel
// recalculation level.
type Worksheet interface {
	Name() string
	Size() (rows, cols int)

	FormulaText(row, col int) string
	SetFormulaText(row, col int, text string)
	Expression(row, col int) ast.Expr
	SetExpression(row, col int, expr ast.Expr)
	Value(row, col int) value.Value
	SetValue(row, col int, v value.Value)

	// FormulaCells lists every cell holding formula text.
	FormulaCells() []value.CellAddress
	Names() NameTable
}

// CalculationModeOverride is implemented by worksheets that calculate
// differently from their workbook.
type CalculationModeOverride interface {
	CalculationMode() (CalculationMode, bool)
}

// Workbook is the host document.
type Workbook interface {
	// Worksheet looks a sheet up ignoring case.
	Worksheet(name string) (Worksheet, bool)
	// Worksheets returns the sheets in tab order.
	Worksheets() []Worksheet
	Names() NameTable
	Table(name string) (value.Table, bool)
	CalculationMode() CalculationMode
	// Apply moves cells and tables for a row or column edit, or renames a
	// sheet, table or table column. formula text is left to the caller.
	Apply(t ast.Transform) error
}
