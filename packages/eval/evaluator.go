package eval

import (
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

const minStack = 16

// Evaluator runs expressions. it keeps per-run scratch state, so each
// worker owns one; the Cache may be shared.
type Evaluator struct {
	registry Registry
	cache    *Cache

	stacks   [][]value.Value
	inlining sets.Set[string]
}

// NewEvaluator creates an evaluator. a nil cache gets a private one.
func NewEvaluator(registry Registry, cache *Cache) *Evaluator {
	if cache == nil {
		cache = NewCache(nil, nil)
	}
	return &Evaluator{
		registry: registry,
		cache:    cache,
		inlining: sets.New[string](),
	}
}

func (ev *Evaluator) Registry() Registry { return ev.registry }

// Evaluate computes expr for env.Cell. the result may be an array, which the
// caller spills or intersects.
func (ev *Evaluator) Evaluate(expr ast.Expr, env *Env) value.Value {
	p := ev.cache.Program(expr, ev.registry)
	if p.treeOnly {
		return ev.walk(expr, env)
	}
	return ev.run(p, env)
}

func (ev *Evaluator) acquire(size int) []value.Value {
	if n := len(ev.stacks); n > 0 {
		s := ev.stacks[n-1]
		ev.stacks = ev.stacks[:n-1]
		if cap(s) >= size {
			return s[:0]
		}
	}
	return make([]value.Value, 0, max(size, minStack))
}

func (ev *Evaluator) release(s []value.Value) {
	clear(s[:cap(s)])
	ev.stacks = append(ev.stacks, s[:0])
}

func (ev *Evaluator) run(p *Program, env *Env) value.Value {
	stack := ev.acquire(p.maxStack)
	defer ev.release(stack)

	for i := range p.code {
		in := &p.code[i]
		switch in.op {
		case opConst:
			stack = append(stack, in.val)
		case opRef:
			stack = append(stack, ev.resolveRef(in.node.(*ast.Ref), env))
		case opStructRef:
			stack = append(stack, ev.resolveStructured(in.node.(*ast.StructuredRef), env))
		case opName:
			stack = append(stack, ev.resolveName(in.node.(*ast.Name), env))
		case opUnary:
			top := len(stack) - 1
			stack[top] = unary(in.unary, stack[top], env)
		case opBinary:
			n := len(stack)
			l, r := stack[n-2], stack[n-1]
			stack = append(stack[:n-2], binary(in.binary, l, r, env))
		case opCall:
			n := len(stack) - in.argc
			args := make([]value.Value, in.argc)
			copy(args, stack[n:])
			stack = append(stack[:n], ev.call(in.fn, args, env))
		case opCallLazy:
			stack = append(stack, ev.callLazy(in.fn, in.node.(*ast.Call).Args, env))
		case opArray:
			n := len(stack) - in.argc*in.cols
			out := value.NewArray(in.argc, in.cols)
			for k, v := range stack[n:] {
				out.Set(k/in.cols, k%in.cols, literalElement(v, env))
			}
			stack = append(stack[:n], value.ArrayValue(out))
		}
	}
	return stack[len(stack)-1]
}

// walk evaluates the tree directly. a failing left operand short-circuits
// the right one.
func (ev *Evaluator) walk(e ast.Expr, env *Env) value.Value {
	switch n := e.(type) {
	case *ast.Literal:
		return n.Value
	case *ast.Ref:
		return ev.resolveRef(n, env)
	case *ast.StructuredRef:
		return ev.resolveStructured(n, env)
	case *ast.Name:
		return ev.resolveName(n, env)
	case *ast.Unary:
		return unary(n.Op, ev.walk(n.Operand, env), env)
	case *ast.Binary:
		if n.Op.IsReference() {
			return ev.referenceOp(n, env)
		}
		l := ev.walk(n.Left, env)
		if l.IsError() {
			return l
		}
		return binary(n.Op, l, ev.walk(n.Right, env), env)
	case *ast.Call:
		fn, ok := ev.registry.Lookup(n.Name)
		if !ok {
			return value.Error(value.ErrorName)
		}
		if fn.Lazy() {
			return ev.callLazy(fn, n.Args, env)
		}
		args := make([]value.Value, len(n.Args))
		for i, arg := range n.Args {
			args[i] = ev.walk(arg, env)
		}
		return ev.call(fn, args, env)
	case *ast.ArrayLit:
		out := value.NewArray(len(n.Rows), len(n.Rows[0]))
		for r, row := range n.Rows {
			for c, el := range row {
				out.Set(r, c, literalElement(ev.walk(el, env), env))
			}
		}
		return value.ArrayValue(out)
	}
	return value.Error(value.ErrorValue)
}

func literalElement(v value.Value, env *Env) value.Value {
	if v.IsArray() {
		return value.ImplicitIntersection(v, env.Cell)
	}
	return v
}

func (ev *Evaluator) call(fn *Function, args []value.Value, env *Env) value.Value {
	if !fn.accepts(len(args)) {
		return value.Error(value.ErrorValue)
	}
	return fn.Call(&Context{ev: ev, env: env}, args)
}

func (ev *Evaluator) callLazy(fn *Function, args []ast.Expr, env *Env) value.Value {
	if !fn.accepts(len(args)) {
		return value.Error(value.ErrorValue)
	}
	return fn.CallLazy(&Context{ev: ev, env: env}, args)
}

// resolveRef reads a reference. a single cell yields its value; anything
// larger yields an array anchored at the top-left cell. 3-D references
// stack their sheets vertically into an unanchored array.
func (ev *Evaluator) resolveRef(ref *ast.Ref, env *Env) value.Value {
	ranges, errKind := ref.Ranges(env.Cell, env.Resolver)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if len(ranges) == 1 {
		if !ref.Area {
			return env.Resolver.CellValue(ranges[0].Start)
		}
		return value.ArrayValue(readRange(ranges[0], env.Resolver))
	}

	rows := 0
	for _, r := range ranges {
		rows += r.Rows()
	}
	out := value.NewArray(rows, ranges[0].Columns())
	offset := 0
	for _, r := range ranges {
		for addr := range r.Cells() {
			out.Set(offset+addr.Row-r.Start.Row, addr.Column-r.Start.Column, env.Resolver.CellValue(addr))
		}
		offset += r.Rows()
	}
	return value.ArrayValue(out)
}

func readRange(r value.RangeAddress, res Resolver) *value.Array {
	out := value.NewArray(r.Rows(), r.Columns())
	for addr := range r.Cells() {
		out.Set(addr.Row-r.Start.Row, addr.Column-r.Start.Column, res.CellValue(addr))
	}
	return out.WithAnchor(r.Start)
}

func (ev *Evaluator) structuredRange(n *ast.StructuredRef, env *Env) (value.RangeAddress, value.ErrorKind) {
	table, ok := env.Resolver.Table(n.Table)
	if !ok {
		return value.RangeAddress{}, value.ErrorRef
	}
	return table.Resolve(n.Item, n.Column, env.Cell)
}

func (ev *Evaluator) resolveStructured(n *ast.StructuredRef, env *Env) value.Value {
	r, errKind := ev.structuredRange(n, env)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if n.Item == value.ItemThisRow && n.Column != "" {
		return env.Resolver.CellValue(r.Start)
	}
	return value.ArrayValue(readRange(r, env.Resolver))
}

// lookupName resolves a defined name: an explicit sheet scope, else the
// formula's sheet, else the workbook. key identifies the definition used.
func (ev *Evaluator) lookupName(n *ast.Name, env *Env) (body ast.Expr, key string, ok bool) {
	upper := strings.ToUpper(n.Name)
	if n.Sheet != "" {
		sheet, found := env.Resolver.CanonicalSheet(n.Sheet)
		if !found {
			return nil, "", false
		}
		body, ok = env.Resolver.LookupSheetName(sheet, n.Name)
		return body, sheet + "!" + upper, ok
	}
	if body, ok = env.Resolver.LookupSheetName(env.Cell.Sheet, n.Name); ok {
		return body, env.Cell.Sheet + "!" + upper, true
	}
	body, ok = env.Resolver.LookupWorkbookName(n.Name)
	return body, "!" + upper, ok
}

// resolveName evaluates a name's definition in place. a name reached again
// while its own definition is being evaluated is circular.
func (ev *Evaluator) resolveName(n *ast.Name, env *Env) value.Value {
	body, key, ok := ev.lookupName(n, env)
	if !ok {
		return value.Error(value.ErrorName)
	}
	if ev.inlining.Has(key) {
		return value.Error(value.ErrorCirc)
	}
	ev.inlining.Insert(key)
	defer ev.inlining.Delete(key)
	return ev.Evaluate(body, env)
}

func (ev *Evaluator) reference(e ast.Expr, env *Env) (value.RangeAddress, value.ErrorKind) {
	switch n := e.(type) {
	case *ast.Ref:
		ranges, errKind := n.Ranges(env.Cell, env.Resolver)
		if errKind != value.NoError {
			return value.RangeAddress{}, errKind
		}
		if len(ranges) != 1 {
			return value.RangeAddress{}, value.ErrorValue
		}
		return ranges[0], value.NoError
	case *ast.StructuredRef:
		return ev.structuredRange(n, env)
	case *ast.Name:
		body, key, ok := ev.lookupName(n, env)
		if !ok {
			return value.RangeAddress{}, value.ErrorName
		}
		if ev.inlining.Has(key) {
			return value.RangeAddress{}, value.ErrorCirc
		}
		ev.inlining.Insert(key)
		defer ev.inlining.Delete(key)
		return ev.reference(body, env)
	}

	v := ev.Evaluate(e, env)
	if v.IsError() {
		return value.RangeAddress{}, v.Err()
	}
	if v.IsArray() {
		if r, ok := v.Array().Bounds(); ok {
			return r, value.NoError
		}
	}
	return value.RangeAddress{}, value.ErrorValue
}
