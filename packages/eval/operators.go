package eval

import (
	"cmp"
	"math"
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// operand reduces an anchored array by implicit intersection when an
// element lines up with the formula cell. other arrays are kept for
// element-wise evaluation.
func operand(v value.Value, at value.CellAddress) value.Value {
	if !v.IsArray() {
		return v
	}
	if x, ok := value.TryImplicitIntersection(v, at); ok {
		return x
	}
	return v
}

func unary(op ast.UnaryOp, v value.Value, env *Env) value.Value {
	v = operand(v, env.Cell)
	if !v.IsArray() {
		return scalarUnary(op, v, env.NumberFormat)
	}
	a := v.Array()
	out := value.NewArray(a.Rows(), a.Columns())
	for r := range a.Rows() {
		for c := range a.Columns() {
			if a.Present(r, c) {
				out.Set(r, c, scalarUnary(op, a.At(r, c), env.NumberFormat))
			}
		}
	}
	return value.ArrayValue(out)
}

func scalarUnary(op ast.UnaryOp, v value.Value, f value.NumberFormat) value.Value {
	if v.IsError() {
		return v
	}
	if op == ast.Plus {
		return v
	}
	n, errKind := value.ToNumber(v, f)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if op == ast.Negate {
		return value.Number(-n)
	}
	return value.Number(n / 100)
}

func binary(op ast.BinaryOp, l, r value.Value, env *Env) value.Value {
	l, r = operand(l, env.Cell), operand(r, env.Cell)
	if !l.IsArray() && !r.IsArray() {
		return scalarBinary(op, l, r, env.NumberFormat)
	}
	return broadcast(op, l, r, env.NumberFormat)
}

// broadcast applies a scalar operator element-wise. a scalar or 1x1 array
// pairs with every element of the other side; two larger arrays must share
// a shape. elements absent on either side produce Blank.
func broadcast(op ast.BinaryOp, l, r value.Value, f value.NumberFormat) value.Value {
	la, ra := arrayOperand(l), arrayOperand(r)
	if la != nil && ra != nil && (la.Rows() != ra.Rows() || la.Columns() != ra.Columns()) {
		return value.Error(value.ErrorValue)
	}
	shape := la
	if shape == nil {
		shape = ra
	}
	if shape == nil {
		return scalarBinary(op, scalarOperand(l), scalarOperand(r), f)
	}

	out := value.NewArray(shape.Rows(), shape.Columns())
	for row := range shape.Rows() {
		for col := range shape.Columns() {
			lv, lok := element(l, la, row, col)
			rv, rok := element(r, ra, row, col)
			if !lok || !rok {
				continue
			}
			out.Set(row, col, scalarBinary(op, lv, rv, f))
		}
	}
	return value.ArrayValue(out)
}

// arrayOperand returns the array to broadcast over, or nil for scalars and
// 1x1 arrays.
func arrayOperand(v value.Value) *value.Array {
	if !v.IsArray() || v.Array().IsSingle() {
		return nil
	}
	return v.Array()
}

func scalarOperand(v value.Value) value.Value {
	if v.IsArray() {
		return v.Array().At(0, 0)
	}
	return v
}

func element(v value.Value, a *value.Array, row, col int) (value.Value, bool) {
	if a == nil {
		return scalarOperand(v), true
	}
	return a.At(row, col), a.Present(row, col)
}

func scalarBinary(op ast.BinaryOp, l, r value.Value, f value.NumberFormat) value.Value {
	if l.IsError() {
		return l
	}
	if r.IsError() {
		return r
	}
	switch {
	case op == ast.Concat:
		ls, _ := value.ToText(l)
		rs, _ := value.ToText(r)
		return value.Text(ls + rs)
	case op.IsComparison():
		return compare(op, l, r, f)
	}

	ln, errKind := value.ToNumber(l, f)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	rn, errKind := value.ToNumber(r, f)
	if errKind != value.NoError {
		return value.Error(errKind)
	}

	var n float64
	switch op {
	case ast.Add:
		n = ln + rn
	case ast.Sub:
		n = ln - rn
	case ast.Mul:
		n = ln * rn
	case ast.Div:
		if math.Abs(rn) <= value.Epsilon {
			return value.Error(value.ErrorDiv0)
		}
		n = ln / rn
	case ast.Pow:
		switch {
		case ln == 0 && rn == 0:
			return value.Error(value.ErrorNum)
		case ln == 0 && rn < 0:
			return value.Error(value.ErrorDiv0)
		}
		n = math.Pow(ln, rn)
	default:
		return value.Error(value.ErrorValue)
	}
	return Number(n)
}

// Number wraps a float result, turning overflow and NaN into #NUM!.
func Number(n float64) value.Value {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return value.Error(value.ErrorNum)
	}
	return value.Number(n)
}

// compare orders two scalars numerically when both coerce to numbers and
// by case-insensitive text otherwise.
func compare(op ast.BinaryOp, l, r value.Value, f value.NumberFormat) value.Value {
	var c int
	ln, lerr := value.ToNumber(l, f)
	rn, rerr := value.ToNumber(r, f)
	if lerr == value.NoError && rerr == value.NoError {
		c = cmp.Compare(ln, rn)
	} else {
		ls, _ := value.ToText(l)
		rs, _ := value.ToText(r)
		c = strings.Compare(strings.ToUpper(ls), strings.ToUpper(rs))
	}

	switch op {
	case ast.Eq:
		return value.Bool(c == 0)
	case ast.Ne:
		return value.Bool(c != 0)
	case ast.Lt:
		return value.Bool(c < 0)
	case ast.Le:
		return value.Bool(c <= 0)
	case ast.Gt:
		return value.Bool(c > 0)
	case ast.Ge:
		return value.Bool(c >= 0)
	}
	return value.Error(value.ErrorValue)
}
