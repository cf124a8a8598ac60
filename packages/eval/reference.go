package eval

import (
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// referenceOperand evaluates one side of a union or intersection into an
// anchored array. single-cell references become 1x1 arrays so they keep
// their position.
func (ev *Evaluator) referenceOperand(e ast.Expr, env *Env) value.Value {
	switch n := e.(type) {
	case *ast.Ref:
		if !n.Area && !n.Is3D() {
			ranges, errKind := n.Ranges(env.Cell, env.Resolver)
			if errKind != value.NoError {
				return value.Error(errKind)
			}
			return value.ArrayValue(readRange(ranges[0], env.Resolver))
		}
	case *ast.StructuredRef:
		r, errKind := ev.structuredRange(n, env)
		if errKind != value.NoError {
			return value.Error(errKind)
		}
		return value.ArrayValue(readRange(r, env.Resolver))
	case *ast.Name:
		body, key, ok := ev.lookupName(n, env)
		if !ok {
			return value.Error(value.ErrorName)
		}
		if ev.inlining.Has(key) {
			return value.Error(value.ErrorCirc)
		}
		ev.inlining.Insert(key)
		defer ev.inlining.Delete(key)
		return ev.referenceOperand(body, env)
	}
	return ev.walk(e, env)
}

// referenceOp evaluates union and intersection. both sides must be
// anchored arrays on one sheet; otherwise union is #VALUE! and
// intersection #NULL!.
func (ev *Evaluator) referenceOp(n *ast.Binary, env *Env) value.Value {
	l := ev.referenceOperand(n.Left, env)
	if l.IsError() {
		return l
	}
	r := ev.referenceOperand(n.Right, env)
	if r.IsError() {
		return r
	}

	mismatch := value.ErrorValue
	if n.Op == ast.Intersect {
		mismatch = value.ErrorNull
	}
	if !l.IsArray() || !r.IsArray() {
		return value.Error(mismatch)
	}
	la, ra := l.Array(), r.Array()
	lb, lok := la.Bounds()
	rb, rok := ra.Bounds()
	if !lok || !rok || !strings.EqualFold(lb.Sheet(), rb.Sheet()) {
		return value.Error(mismatch)
	}

	if n.Op == ast.Union {
		return union(la, lb, ra, rb)
	}
	return intersect(la, lb, ra, rb)
}

// union lays both operands into their bounding rectangle. cells covered by
// neither operand are absent.
func union(la *value.Array, lb value.RangeAddress, ra *value.Array, rb value.RangeAddress) value.Value {
	bound := lb.Bounding(rb)
	out := value.NewArray(bound.Rows(), bound.Columns())
	for addr := range bound.Cells() {
		if !lb.Contains(addr) && !rb.Contains(addr) {
			out.SetPresent(addr.Row-bound.Start.Row, addr.Column-bound.Start.Column, false)
		}
	}
	place := func(src *value.Array, b value.RangeAddress) {
		for addr := range b.Cells() {
			i, j := addr.Row-b.Start.Row, addr.Column-b.Start.Column
			if !src.Present(i, j) {
				continue
			}
			r, c := addr.Row-bound.Start.Row, addr.Column-bound.Start.Column
			out.SetPresent(r, c, true)
			out.Set(r, c, src.At(i, j))
		}
	}
	place(la, lb)
	place(ra, rb)
	return value.ArrayValue(out.WithAnchor(bound.Start))
}

// intersect keeps the overlap of both operands, #NULL! when it holds no
// present cell.
func intersect(la *value.Array, lb value.RangeAddress, ra *value.Array, rb value.RangeAddress) value.Value {
	overlap, ok := lb.Intersect(rb)
	if !ok {
		return value.Error(value.ErrorNull)
	}
	out := value.NewArray(overlap.Rows(), overlap.Columns())
	found := false
	for addr := range overlap.Cells() {
		r, c := addr.Row-overlap.Start.Row, addr.Column-overlap.Start.Column
		li, lj := addr.Row-lb.Start.Row, addr.Column-lb.Start.Column
		ri, rj := addr.Row-rb.Start.Row, addr.Column-rb.Start.Column
		if !la.Present(li, lj) || !ra.Present(ri, rj) {
			out.SetPresent(r, c, false)
			continue
		}
		out.Set(r, c, la.At(li, lj))
		found = true
	}
	if !found {
		return value.Error(value.ErrorNull)
	}
	return value.ArrayValue(out.WithAnchor(overlap.Start))
}
