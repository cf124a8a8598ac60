// Package ast defines the immutable expression tree formulas are parsed
// into. nodes are never mutated after construction; transforms build new
// trees and share untouched sub-trees, so node identity can key caches.
package ast

import (
	"fmt"

	"github.com/vogtb/go-spreadsheet/packages/value"
)

// Expr is implemented by every node type in this package.
type Expr interface {
	expr()
}

// Literal is a constant: number, text, boolean, error, or Blank for an
// omitted function argument.
type Literal struct {
	Value value.Value
}

// Name refers to a defined name. Sheet is set for sheet-qualified names
// such as Sheet1!Rate.
type Name struct {
	Sheet string
	Name  string
}

// CellRef is one corner of a reference. a zero Row marks a whole-column
// reference and a zero Column a whole-row reference.
type CellRef struct {
	Row            int
	Column         int
	RowAbsolute    bool
	ColumnAbsolute bool
}

// Ref is a cell, area, whole row/column, or 3-D reference. Sheet is empty
// for references to the formula's own sheet. EndSheet is set for 3-D
// references (Sheet1:Sheet3!A1). Area distinguishes A1:A1 from A1.
type Ref struct {
	Sheet    string
	EndSheet string
	Start    CellRef
	End      CellRef
	Area     bool
}

// StructuredRef selects part of a named table, e.g. Sales[Amount].
type StructuredRef struct {
	Table  string
	Item   value.TableItem
	Column string
}

type UnaryOp uint8

const (
	Negate UnaryOp = iota
	Plus
	Percent
)

type Unary struct {
	Op      UnaryOp
	Operand Expr
}

type BinaryOp uint8

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Pow
	Concat
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	Union
	Intersect
)

var binaryText = [...]string{
	Add:       "+",
	Sub:       "-",
	Mul:       "*",
	Div:       "/",
	Pow:       "^",
	Concat:    "&",
	Eq:        "=",
	Ne:        "<>",
	Lt:        "<",
	Le:        "<=",
	Gt:        ">",
	Ge:        ">=",
	Union:     ",",
	Intersect: " ",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryText) {
		return binaryText[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// IsComparison reports the six relational operators.
func (op BinaryOp) IsComparison() bool { return op >= Eq && op <= Ge }

// IsReference reports the reference algebra operators.
func (op BinaryOp) IsReference() bool { return op == Union || op == Intersect }

type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// Call invokes a function by upper-cased name.
type Call struct {
	Name string
	Args []Expr
}

// ArrayLit is an inline array constant such as {1,2;3,4}.
type ArrayLit struct {
	Rows [][]Expr
}

func (*Literal) expr()       {}
func (*Name) expr()          {}
func (*Ref) expr()           {}
func (*StructuredRef) expr() {}
func (*Unary) expr()         {}
func (*Binary) expr()        {}
func (*Call) expr()          {}
func (*ArrayLit) expr()      {}

// IsWholeColumn reports references like A:C.
func (r *Ref) IsWholeColumn() bool { return r.Start.Row == 0 }

// IsWholeRow reports references like 1:3.
func (r *Ref) IsWholeRow() bool { return r.Start.Column == 0 }

// Is3D reports references spanning several sheets.
func (r *Ref) Is3D() bool { return r.EndSheet != "" }

// SheetResolver answers the sheet questions needed to expand references.
type SheetResolver interface {
	CanonicalSheet(name string) (string, bool)
	SheetsBetween(from, to string) ([]string, bool)
	SheetSize(sheet string) (rows, cols int)
}

// Ranges expands the reference into one rectangle per sheet. unqualified
// references resolve against at's sheet; whole rows and columns clamp to
// the sheet size. an unknown sheet yields ErrorRef.
func (r *Ref) Ranges(at value.CellAddress, res SheetResolver) ([]value.RangeAddress, value.ErrorKind) {
	var sheets []string
	if r.Is3D() {
		between, ok := res.SheetsBetween(r.Sheet, r.EndSheet)
		if !ok {
			return nil, value.ErrorRef
		}
		sheets = between
	} else {
		name := r.Sheet
		if name == "" {
			name = at.Sheet
		}
		canonical, ok := res.CanonicalSheet(name)
		if !ok {
			return nil, value.ErrorRef
		}
		sheets = []string{canonical}
	}

	out := make([]value.RangeAddress, 0, len(sheets))
	for _, sheet := range sheets {
		rows, cols := res.SheetSize(sheet)
		sr, sc, er, ec := r.Start.Row, r.Start.Column, r.End.Row, r.End.Column
		if r.IsWholeColumn() {
			sr, er = 1, max(rows, 1)
		}
		if r.IsWholeRow() {
			sc, ec = 1, max(cols, 1)
		}
		out = append(out, value.NewRange(value.Cell(sheet, sr, sc), value.Cell(sheet, er, ec)))
	}
	return out, value.NoError
}

// Inspect walks the tree in pre-order. children are skipped when fn
// returns false.
func Inspect(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Unary:
		Inspect(n.Operand, fn)
	case *Binary:
		Inspect(n.Left, fn)
		Inspect(n.Right, fn)
	case *Call:
		for _, a := range n.Args {
			Inspect(a, fn)
		}
	case *ArrayLit:
		for _, row := range n.Rows {
			for _, el := range row {
				Inspect(el, fn)
			}
		}
	case *Literal, *Name, *Ref, *StructuredRef:
	default:
		panic(fmt.Sprintf("ast: unexpected node %T", e))
	}
}

// HasReferenceOperators reports whether the tree uses union or
// intersection, which need reference-aware evaluation.
func HasReferenceOperators(e Expr) bool {
	found := false
	Inspect(e, func(n Expr) bool {
		if b, ok := n.(*Binary); ok && b.Op.IsReference() {
			found = true
		}
		return !found
	})
	return found
}

// Rewrite rebuilds the tree bottom-up, calling fn on every node after its
// children. nodes whose children and fn result are unchanged are shared
// with the input, so an untouched tree comes back as the same pointer.
func Rewrite(e Expr, fn func(Expr) Expr) Expr {
	switch n := e.(type) {
	case *Unary:
		if operand := Rewrite(n.Operand, fn); operand != n.Operand {
			e = &Unary{Op: n.Op, Operand: operand}
		}
	case *Binary:
		left, right := Rewrite(n.Left, fn), Rewrite(n.Right, fn)
		if left != n.Left || right != n.Right {
			e = &Binary{Op: n.Op, Left: left, Right: right}
		}
	case *Call:
		if args, changed := rewriteList(n.Args, fn); changed {
			e = &Call{Name: n.Name, Args: args}
		}
	case *ArrayLit:
		rows := make([][]Expr, len(n.Rows))
		changed := false
		for i, row := range n.Rows {
			var c bool
			rows[i], c = rewriteList(row, fn)
			changed = changed || c
		}
		if changed {
			e = &ArrayLit{Rows: rows}
		}
	}
	return fn(e)
}

func rewriteList(in []Expr, fn func(Expr) Expr) ([]Expr, bool) {
	out := make([]Expr, len(in))
	changed := false
	for i, a := range in {
		out[i] = Rewrite(a, fn)
		changed = changed || out[i] != a
	}
	return out, changed
}

// ParseOptions locates the formula being parsed.
type ParseOptions struct {
	Sheet  string
	Row    int
	Column int
}

// Parser turns formula text into an expression tree.
type Parser interface {
	Parse(text string, opts ParseOptions) (Expr, error)
}

// ParseError reports malformed formula text. Position is a byte offset
// into the text.
type ParseError struct {
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Position, e.Message)
}

// FormatOptions tunes re-serialization.
type FormatOptions struct {
	OmitEquals bool
}

// Formatter turns an expression tree back into formula text.
type Formatter interface {
	Format(e Expr, opts FormatOptions) string
}
