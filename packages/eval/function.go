// Package eval compiles formula trees into flat programs and executes them
// against a workbook. expressions that use the union or intersection
// operators are evaluated by walking the tree instead.
package eval

import (
	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// Variadic marks a Function without an upper argument bound.
const Variadic = -1

// Function describes one callable formula function. exactly one of Call
// and CallLazy is set. lazy functions receive their argument trees and
// decide what to evaluate through the Context.
type Function struct {
	Name     string
	MinArgs  int
	MaxArgs  int
	Volatile bool
	Call     func(ctx *Context, args []value.Value) value.Value
	CallLazy func(ctx *Context, args []ast.Expr) value.Value
}

// Lazy reports whether the function takes unevaluated arguments.
func (f *Function) Lazy() bool { return f.CallLazy != nil }

func (f *Function) accepts(n int) bool {
	return n >= f.MinArgs && (f.MaxArgs == Variadic || n <= f.MaxArgs)
}

// Registry resolves upper-cased function names. implementations must be
// comparable since compiled programs remember the registry they were
// built against.
type Registry interface {
	Lookup(name string) (*Function, bool)
}

// Resolver is the read side of the workbook the evaluator runs against.
type Resolver interface {
	ast.SheetResolver
	CellValue(addr value.CellAddress) value.Value
	Table(name string) (value.Table, bool)
	LookupSheetName(sheet, name string) (ast.Expr, bool)
	LookupWorkbookName(name string) (ast.Expr, bool)
}

// Env is the evaluation environment of one formula cell.
type Env struct {
	Cell         value.CellAddress
	Resolver     Resolver
	NumberFormat value.NumberFormat
}

// Context is handed to function implementations.
type Context struct {
	ev  *Evaluator
	env *Env
}

// Cell is the address of the formula being evaluated.
func (c *Context) Cell() value.CellAddress { return c.env.Cell }

func (c *Context) NumberFormat() value.NumberFormat { return c.env.NumberFormat }

// Eval evaluates an argument tree. reference arguments come back as
// anchored arrays.
func (c *Context) Eval(e ast.Expr) value.Value {
	return c.ev.Evaluate(e, c.env)
}

// Scalar reduces v to a single value by implicit intersection with the
// formula cell.
func (c *Context) Scalar(v value.Value) value.Value {
	return value.ImplicitIntersection(v, c.env.Cell)
}

// Reference resolves an argument tree to the single rectangle it names.
// plain values and multi-sheet references are ErrorValue.
func (c *Context) Reference(e ast.Expr) (value.RangeAddress, value.ErrorKind) {
	return c.ev.reference(e, c.env)
}
