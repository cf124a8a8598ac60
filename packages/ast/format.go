package ast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/value"
)

// DefaultFormatter writes canonical A1 formula text with the fewest
// parentheses that preserve the tree.
type DefaultFormatter struct{}

var _ Formatter = DefaultFormatter{}

func (DefaultFormatter) Format(e Expr, opts FormatOptions) string {
	var sb strings.Builder
	if !opts.OmitEquals {
		sb.WriteByte('=')
	}
	writeExpr(&sb, e)
	return sb.String()
}

// Format renders e with the default formatter, e.g. for diagnostics.
func Format(e Expr) string {
	return DefaultFormatter{}.Format(e, FormatOptions{})
}

// binding strength; higher binds tighter
const (
	precComparison = iota + 1
	precConcat
	precAdditive
	precMultiplicative
	precPower
	precPercent
	precPrefix
	precIntersect
	precAtom
)

func precedence(e Expr) int {
	switch n := e.(type) {
	case *Binary:
		switch {
		case n.Op.IsComparison():
			return precComparison
		case n.Op == Concat:
			return precConcat
		case n.Op == Add || n.Op == Sub:
			return precAdditive
		case n.Op == Mul || n.Op == Div:
			return precMultiplicative
		case n.Op == Pow:
			return precPower
		case n.Op == Intersect:
			return precIntersect
		}
		// unions are always written in parentheses
		return precAtom
	case *Unary:
		if n.Op == Percent {
			return precPercent
		}
		return precPrefix
	}
	return precAtom
}

func writeOperand(sb *strings.Builder, e Expr, parens bool) {
	if parens {
		sb.WriteByte('(')
		writeExpr(sb, e)
		sb.WriteByte(')')
		return
	}
	writeExpr(sb, e)
}

func writeExpr(sb *strings.Builder, e Expr) {
	switch n := e.(type) {
	case *Literal:
		writeLiteral(sb, n.Value)
	case *Name:
		if n.Sheet != "" {
			sb.WriteString(value.QuoteSheet(n.Sheet))
			sb.WriteByte('!')
		}
		sb.WriteString(n.Name)
	case *Ref:
		writeRef(sb, n)
	case *StructuredRef:
		writeStructuredRef(sb, n)
	case *Unary:
		switch n.Op {
		case Percent:
			writeOperand(sb, n.Operand, precedence(n.Operand) < precPercent)
			sb.WriteByte('%')
		case Negate, Plus:
			if n.Op == Negate {
				sb.WriteByte('-')
			} else {
				sb.WriteByte('+')
			}
			writeOperand(sb, n.Operand, precedence(n.Operand) < precPrefix)
		}
	case *Binary:
		if n.Op == Union {
			sb.WriteByte('(')
			writeExpr(sb, n.Left)
			sb.WriteByte(',')
			writeExpr(sb, n.Right)
			sb.WriteByte(')')
			return
		}
		p := precedence(n)
		writeOperand(sb, n.Left, precedence(n.Left) < p)
		sb.WriteString(n.Op.String())
		writeOperand(sb, n.Right, precedence(n.Right) <= p)
	case *Call:
		sb.WriteString(n.Name)
		sb.WriteByte('(')
		for i, a := range n.Args {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeExpr(sb, a)
		}
		sb.WriteByte(')')
	case *ArrayLit:
		sb.WriteByte('{')
		for i, row := range n.Rows {
			if i > 0 {
				sb.WriteByte(';')
			}
			for j, el := range row {
				if j > 0 {
					sb.WriteByte(',')
				}
				writeExpr(sb, el)
			}
		}
		sb.WriteByte('}')
	default:
		panic(fmt.Sprintf("ast: unexpected node %T", e))
	}
}

func writeLiteral(sb *strings.Builder, v value.Value) {
	switch v.Kind() {
	case value.KindText:
		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(v.Text(), `"`, `""`))
		sb.WriteByte('"')
	case value.KindBlank:
	default:
		sb.WriteString(v.String())
	}
}

func writeRef(sb *strings.Builder, r *Ref) {
	switch {
	case r.Is3D():
		a, b := value.QuoteSheet(r.Sheet), value.QuoteSheet(r.EndSheet)
		if a == r.Sheet && b == r.EndSheet {
			sb.WriteString(a + ":" + b)
		} else {
			sb.WriteString("'" + strings.ReplaceAll(r.Sheet+":"+r.EndSheet, "'", "''") + "'")
		}
		sb.WriteByte('!')
	case r.Sheet != "":
		sb.WriteString(value.QuoteSheet(r.Sheet))
		sb.WriteByte('!')
	}
	writeCorner(sb, r.Start, r)
	if r.Area {
		sb.WriteByte(':')
		writeCorner(sb, r.End, r)
	}
}

func writeCorner(sb *strings.Builder, c CellRef, r *Ref) {
	if !r.IsWholeRow() {
		if c.ColumnAbsolute {
			sb.WriteByte('$')
		}
		sb.WriteString(value.ColumnName(c.Column))
	}
	if !r.IsWholeColumn() {
		if c.RowAbsolute {
			sb.WriteByte('$')
		}
		sb.WriteString(strconv.Itoa(c.Row))
	}
}

func writeStructuredRef(sb *strings.Builder, s *StructuredRef) {
	sb.WriteString(s.Table)
	sb.WriteByte('[')
	switch {
	case s.Item == value.ItemThisRow:
		sb.WriteByte('@')
		sb.WriteString(s.Column)
	case s.Column == "":
		sb.WriteString(s.Item.String())
	case s.Item == value.ItemData:
		sb.WriteString(s.Column)
	default:
		sb.WriteString("[" + s.Item.String() + "],[" + s.Column + "]")
	}
	sb.WriteByte(']')
}
