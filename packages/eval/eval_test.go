package eval

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/observe"
	"github.com/vogtb/go-spreadsheet/packages/parser"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

type fakeWorkbook struct {
	sheets []string
	cells  map[value.CellAddress]value.Value
	names  map[string]ast.Expr // "SHEET!NAME" or "!NAME"
	tables map[string]value.Table
}

func newWorkbook() *fakeWorkbook {
	return &fakeWorkbook{
		sheets: []string{"Sheet1", "Sheet2"},
		cells:  map[value.CellAddress]value.Value{},
		names:  map[string]ast.Expr{},
		tables: map[string]value.Table{},
	}
}

func (f *fakeWorkbook) CanonicalSheet(name string) (string, bool) {
	for _, s := range f.sheets {
		if strings.EqualFold(s, name) {
			return s, true
		}
	}
	return "", false
}

func (f *fakeWorkbook) SheetsBetween(from, to string) ([]string, bool) {
	start, end := -1, -1
	for i, s := range f.sheets {
		if strings.EqualFold(s, from) {
			start = i
		}
		if strings.EqualFold(s, to) {
			end = i
		}
	}
	if start < 0 || end < 0 {
		return nil, false
	}
	return f.sheets[min(start, end) : max(start, end)+1], true
}

func (f *fakeWorkbook) SheetSize(string) (int, int) { return 20, 10 }

func (f *fakeWorkbook) CellValue(addr value.CellAddress) value.Value {
	return f.cells[addr]
}

func (f *fakeWorkbook) Table(name string) (value.Table, bool) {
	t, ok := f.tables[strings.ToUpper(name)]
	return t, ok
}

func (f *fakeWorkbook) LookupSheetName(sheet, name string) (ast.Expr, bool) {
	e, ok := f.names[sheet+"!"+strings.ToUpper(name)]
	return e, ok
}

func (f *fakeWorkbook) LookupWorkbookName(name string) (ast.Expr, bool) {
	e, ok := f.names["!"+strings.ToUpper(name)]
	return e, ok
}

func (f *fakeWorkbook) set(a1 string, v value.Value) {
	addr, err := value.ParseA1(a1)
	if err != nil {
		panic(err)
	}
	if addr.Sheet == "" {
		addr.Sheet = "Sheet1"
	}
	f.cells[addr] = v
}

type fakeRegistry struct {
	funcs map[string]*Function
}

func (r *fakeRegistry) Lookup(name string) (*Function, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

func newRegistry() *fakeRegistry {
	r := &fakeRegistry{funcs: map[string]*Function{}}
	r.funcs["SUM"] = &Function{Name: "SUM", MinArgs: 1, MaxArgs: Variadic, Call: func(ctx *Context, args []value.Value) value.Value {
		total := 0.0
		for _, arg := range args {
			if arg.IsError() {
				return arg
			}
			if arg.IsArray() {
				for v := range arg.Array().Values {
					if v.IsNumber() {
						total += v.Number()
					}
				}
				continue
			}
			n, errKind := value.ToNumber(arg, ctx.NumberFormat())
			if errKind != value.NoError {
				return value.Error(errKind)
			}
			total += n
		}
		return value.Number(total)
	}}
	r.funcs["IF"] = &Function{Name: "IF", MinArgs: 2, MaxArgs: 3, CallLazy: func(ctx *Context, args []ast.Expr) value.Value {
		cond, errKind := value.ToBoolean(ctx.Scalar(ctx.Eval(args[0])), ctx.NumberFormat())
		if errKind != value.NoError {
			return value.Error(errKind)
		}
		if cond {
			return ctx.Eval(args[1])
		}
		if len(args) == 3 {
			return ctx.Eval(args[2])
		}
		return value.Bool(false)
	}}
	r.funcs["ROWS"] = &Function{Name: "ROWS", MinArgs: 1, MaxArgs: 1, CallLazy: func(ctx *Context, args []ast.Expr) value.Value {
		ref, errKind := ctx.Reference(args[0])
		if errKind != value.NoError {
			return value.Error(errKind)
		}
		return value.Number(float64(ref.Rows()))
	}}
	r.funcs["ERR"] = &Function{Name: "ERR", MaxArgs: 0, Call: func(*Context, []value.Value) value.Value {
		return value.Error(value.ErrorNA)
	}}
	return r
}

func parse(t *testing.T, text string) ast.Expr {
	t.Helper()
	e, err := parser.New().Parse(text, ast.ParseOptions{Sheet: "Sheet1"})
	require.NoError(t, err, text)
	return e
}

func evaluate(t *testing.T, wb *fakeWorkbook, reg Registry, at string, text string) value.Value {
	t.Helper()
	addr, err := value.ParseA1(at)
	require.NoError(t, err)
	addr.Sheet = "Sheet1"
	ev := NewEvaluator(reg, nil)
	return ev.Evaluate(parse(t, text), &Env{Cell: addr, Resolver: wb, NumberFormat: value.Invariant})
}

func TestScalarOperators(t *testing.T) {
	wb := newWorkbook()
	wb.set("A1", value.Number(3))
	wb.set("A2", value.Text("4"))
	wb.set("A3", value.Text("abc"))
	reg := newRegistry()

	tests := []struct {
		formula  string
		expected value.Value
	}{
		{"=1+2*3", value.Number(7)},
		{"=(1+2)*3", value.Number(9)},
		{"=2^3", value.Number(8)},
		{"=-A1", value.Number(-3)},
		{"=50%", value.Number(0.5)},
		{"=A1+A2", value.Number(7)},
		{"=A1+A3", value.Error(value.ErrorValue)},
		{"=A1+B9", value.Number(3)},
		{"=1/0", value.Error(value.ErrorDiv0)},
		{"=0^0", value.Error(value.ErrorNum)},
		{"=\"a\"&1", value.Text("a1")},
		{"=\"abc\"=\"ABC\"", value.Bool(true)},
		{"=1<2", value.Bool(true)},
		{"=A2=4", value.Bool(true)},
		{"=\"b\">\"a\"", value.Bool(true)},
		{"=1/0+ERR()", value.Error(value.ErrorDiv0)},
		{"=ERR()+1/0", value.Error(value.ErrorNA)},
		{"=SUM(1,2,3)", value.Number(6)},
		{"=NOPE(1)", value.Error(value.ErrorName)},
		{"=SUM()", value.Error(value.ErrorValue)},
		{"=IF(TRUE,1)", value.Number(1)},
		{"=IF(FALSE,1)", value.Bool(false)},
		{"=Undefined+1", value.Error(value.ErrorName)},
		{"=Nowhere!A1", value.Error(value.ErrorRef)},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			assert.Equal(t, tt.expected, evaluate(t, wb, reg, "D1", tt.formula))
		})
	}
}

func TestLazyArgumentsAreNotEvaluated(t *testing.T) {
	wb := newWorkbook()
	reg := newRegistry()
	calls := 0
	reg.funcs["TICK"] = &Function{Name: "TICK", Call: func(*Context, []value.Value) value.Value {
		calls++
		return value.Number(1)
	}}

	assert.Equal(t, value.Number(1), evaluate(t, wb, reg, "A1", "=IF(TRUE,1,TICK())"))
	assert.Equal(t, 0, calls)
	assert.Equal(t, value.Number(1), evaluate(t, wb, reg, "A1", "=IF(FALSE,1/0,TICK())"))
	assert.Equal(t, 1, calls)
}

func TestTreeWalkShortCircuits(t *testing.T) {
	wb := newWorkbook()
	reg := newRegistry()
	calls := 0
	reg.funcs["TICK"] = &Function{Name: "TICK", Call: func(*Context, []value.Value) value.Value {
		calls++
		return value.Number(1)
	}}

	got := evaluate(t, wb, reg, "E1", "=ERR()+TICK()+SUM((A1,B1))")
	assert.Equal(t, value.Error(value.ErrorNA), got)
	assert.Equal(t, 0, calls)
}

func TestRangeValues(t *testing.T) {
	wb := newWorkbook()
	wb.set("A1", value.Number(1))
	wb.set("A2", value.Number(2))
	wb.set("A3", value.Number(3))
	reg := newRegistry()

	got := evaluate(t, wb, reg, "D1", "=A1:B2")
	require.True(t, got.IsArray())
	anchor, ok := got.Array().Anchor()
	require.True(t, ok)
	assert.Equal(t, "Sheet1!A1", anchor.String())
	assert.Equal(t, 2, got.Array().Rows())
	assert.Equal(t, 2, got.Array().Columns())

	// aligned with row 2, the operand intersects
	assert.Equal(t, value.Number(4), evaluate(t, wb, reg, "C2", "=A1:A3*2"))

	// out of line, the operation broadcasts
	got = evaluate(t, wb, reg, "C10", "=A1:A3*2")
	require.True(t, got.IsArray())
	_, anchored := got.Array().Anchor()
	assert.False(t, anchored)
	assert.Equal(t, value.ArrayOf(
		[]value.Value{value.Number(2)},
		[]value.Value{value.Number(4)},
		[]value.Value{value.Number(6)},
	), got.Array())

	assert.Equal(t, value.Number(6), evaluate(t, wb, reg, "C10", "=SUM(A1:A3)"))
	assert.Equal(t, value.Error(value.ErrorValue), evaluate(t, wb, reg, "C10", "={1,2}+{1;2}"))
	assert.Equal(t, value.Number(3), evaluate(t, wb, reg, "C10", "=ROWS(A1:A3)"))
}

func TestArrayLiteralBroadcast(t *testing.T) {
	got := evaluate(t, newWorkbook(), newRegistry(), "A1", "={1,2;3,4}*10")
	require.True(t, got.IsArray())
	assert.Equal(t, value.ArrayOf(
		[]value.Value{value.Number(10), value.Number(20)},
		[]value.Value{value.Number(30), value.Number(40)},
	), got.Array())
}

func TestThreeDimensionalReference(t *testing.T) {
	wb := newWorkbook()
	wb.cells[value.Cell("Sheet1", 1, 1)] = value.Number(1)
	wb.cells[value.Cell("Sheet2", 1, 1)] = value.Number(2)

	assert.Equal(t, value.Number(3), evaluate(t, wb, newRegistry(), "C1", "=SUM(Sheet1:Sheet2!A1)"))
}

func TestUnion(t *testing.T) {
	wb := newWorkbook()
	wb.set("A1", value.Number(1))
	wb.set("A2", value.Number(2))
	wb.set("C1", value.Number(5))

	got := evaluate(t, wb, newRegistry(), "E5", "=(A1:A2,C1)")
	require.True(t, got.IsArray())
	a := got.Array()
	bounds, ok := a.Bounds()
	require.True(t, ok)
	assert.Equal(t, "Sheet1!A1:C2", bounds.String())
	assert.True(t, a.Present(0, 0))
	assert.False(t, a.Present(0, 1))
	assert.True(t, a.Present(0, 2))
	assert.False(t, a.Present(1, 2))
	assert.Equal(t, value.Number(5), a.At(0, 2))

	assert.Equal(t, value.Number(8), evaluate(t, wb, newRegistry(), "E5", "=SUM((A1:A2,C1))"))
	assert.Equal(t, value.Error(value.ErrorValue), evaluate(t, wb, newRegistry(), "E5", "=(A1,Sheet2!A1)"))
}

func TestIntersection(t *testing.T) {
	wb := newWorkbook()
	wb.set("B2", value.Number(7))

	got := evaluate(t, wb, newRegistry(), "F9", "=A1:C3 B2:D4")
	require.True(t, got.IsArray())
	bounds, ok := got.Array().Bounds()
	require.True(t, ok)
	assert.Equal(t, "Sheet1!B2:C3", bounds.String())
	assert.Equal(t, value.Number(7), got.Array().At(0, 0))

	assert.Equal(t, value.Error(value.ErrorNull), evaluate(t, wb, newRegistry(), "F9", "=A1 C3"))
	assert.Equal(t, value.Error(value.ErrorNull), evaluate(t, wb, newRegistry(), "F9", "=A1:A2 1"))
}

func TestNames(t *testing.T) {
	wb := newWorkbook()
	wb.set("A1", value.Number(10))
	wb.names["!RATE"] = parse(t, "=0.5")
	wb.names["Sheet1!RATE"] = parse(t, "=0.25")
	wb.names["!TARGET"] = parse(t, "=Sheet1!A1")
	wb.names["!LOOP"] = parse(t, "=Loop+1")
	reg := newRegistry()

	assert.Equal(t, value.Number(0.25), evaluate(t, wb, reg, "B1", "=Rate"))
	assert.Equal(t, value.Number(20), evaluate(t, wb, reg, "B1", "=Target*2"))
	assert.Equal(t, value.Error(value.ErrorCirc), evaluate(t, wb, reg, "B1", "=Loop"))
	assert.Equal(t, value.Number(1), evaluate(t, wb, reg, "B1", "=ROWS(Target)"))
	assert.Equal(t, value.Number(10), evaluate(t, wb, reg, "B1", "=SUM((Target,A1))"))
}

func TestStructuredReferences(t *testing.T) {
	wb := newWorkbook()
	wb.tables["SALES"] = value.Table{
		Name:        "Sales",
		Sheet:       "Sheet1",
		Range:       value.NewRange(value.Cell("Sheet1", 1, 1), value.Cell("Sheet1", 4, 2)),
		HeaderRow:   true,
		ColumnNames: []string{"Item", "Amount"},
	}
	wb.set("B2", value.Number(10))
	wb.set("B3", value.Number(20))
	wb.set("B4", value.Number(30))
	reg := newRegistry()

	assert.Equal(t, value.Number(60), evaluate(t, wb, reg, "D1", "=SUM(Sales[Amount])"))
	assert.Equal(t, value.Number(20), evaluate(t, wb, reg, "C3", "=Sales[@Amount]"))
	assert.Equal(t, value.Error(value.ErrorRef), evaluate(t, wb, reg, "D1", "=SUM(Missing[Amount])"))
}

func TestCompile(t *testing.T) {
	reg := newRegistry()

	p := Compile(parse(t, "=1+A1"), reg)
	assert.Equal(t, []string{"const", "ref", "binary"}, p.Ops())
	assert.Equal(t, 2, p.MaxStack())
	assert.False(t, p.TreeOnly())

	p = Compile(parse(t, "=SUM(1,2,3)"), reg)
	assert.Equal(t, []string{"const", "const", "const", "call"}, p.Ops())
	assert.Equal(t, 3, p.MaxStack())

	p = Compile(parse(t, "=IF(A1,1/0,2)"), reg)
	assert.Equal(t, []string{"calllazy"}, p.Ops())

	p = Compile(parse(t, "=NOPE(A1)"), reg)
	assert.Equal(t, []string{"const"}, p.Ops())

	p = Compile(parse(t, "=SUM((A1,B1))"), reg)
	assert.True(t, p.TreeOnly())
	assert.Zero(t, p.Len())
}

func TestCacheKeyedByNode(t *testing.T) {
	reg := newRegistry()
	cache := NewCache(nil, nil)
	a := parse(t, "=1+2")
	b := parse(t, "=1+2")

	pa := cache.Program(a, reg)
	assert.Same(t, pa, cache.Program(a, reg))
	assert.NotSame(t, pa, cache.Program(b, reg))
	assert.Equal(t, 2, cache.Len())

	other := newRegistry()
	assert.NotSame(t, pa, cache.Program(a, other))

	cache.Forget(b)
	assert.Equal(t, 1, cache.Len())
	cache.Reset()
	assert.Zero(t, cache.Len())
}

type countingObserver struct {
	hits, misses, compiles atomic.Int32
}

func (o *countingObserver) ObserveParse(time.Duration, error) {}
func (o *countingObserver) ObserveCompile(time.Duration)      { o.compiles.Add(1) }
func (o *countingObserver) ObserveCacheLookup(hit bool) {
	if hit {
		o.hits.Add(1)
	} else {
		o.misses.Add(1)
	}
}
func (o *countingObserver) ObserveEvaluate(time.Duration, value.Value)            {}
func (o *countingObserver) ObserveRecalculate(observe.RecalcStats, time.Duration) {}

func TestCacheConcurrentCompileOnce(t *testing.T) {
	reg := newRegistry()
	obs := &countingObserver{}
	cache := NewCache(obs, nil)
	expr := parse(t, "=SUM(A1,2)*3")

	var wg sync.WaitGroup
	programs := make([]*Program, 16)
	for i := range programs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			programs[i] = cache.Program(expr, reg)
		}()
	}
	wg.Wait()

	for _, p := range programs {
		assert.Same(t, programs[0], p)
	}
	assert.Equal(t, int32(1), obs.compiles.Load())
	assert.Equal(t, int32(16), obs.hits.Load()+obs.misses.Load())
}

func TestEvaluatorReusesStacks(t *testing.T) {
	wb := newWorkbook()
	reg := newRegistry()
	ev := NewEvaluator(reg, nil)
	env := &Env{Cell: value.Cell("Sheet1", 1, 1), Resolver: wb, NumberFormat: value.Invariant}

	expr := parse(t, "=IF(TRUE,SUM(1,2),0)+SUM(3,4)")
	for range 3 {
		assert.Equal(t, value.Number(10), ev.Evaluate(expr, env))
	}
	assert.NotEmpty(t, ev.stacks)
}
