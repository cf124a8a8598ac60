package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/parser"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

type fakeScope struct {
	sheets []string
	names  map[string]ast.Expr // "SHEET!NAME" or "!NAME"
	tables map[string]value.Table
	rows   int
	cols   int
}

func newScope() *fakeScope {
	return &fakeScope{
		sheets: []string{"Sheet1", "Sheet2", "Sheet3"},
		names:  map[string]ast.Expr{},
		tables: map[string]value.Table{},
		rows:   10,
		cols:   5,
	}
}

func (f *fakeScope) CanonicalSheet(name string) (string, bool) {
	for _, s := range f.sheets {
		if strings.EqualFold(s, name) {
			return s, true
		}
	}
	return "", false
}

func (f *fakeScope) SheetsBetween(from, to string) ([]string, bool) {
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
	if start > end {
		start, end = end, start
	}
	return f.sheets[start : end+1], true
}

func (f *fakeScope) SheetSize(string) (int, int) { return f.rows, f.cols }

func (f *fakeScope) Table(name string) (value.Table, bool) {
	t, ok := f.tables[strings.ToUpper(name)]
	return t, ok
}

func (f *fakeScope) LookupSheetName(sheet, name string) (ast.Expr, bool) {
	e, ok := f.names[strings.ToUpper(sheet+"!"+name)]
	return e, ok
}

func (f *fakeScope) LookupWorkbookName(name string) (ast.Expr, bool) {
	e, ok := f.names["!"+strings.ToUpper(name)]
	return e, ok
}

func a1(t *testing.T, s string) CellAddress {
	t.Helper()
	addr, err := value.ParseA1(s)
	require.NoError(t, err)
	if addr.Sheet == "" {
		addr.Sheet = "Sheet1"
	}
	return addr
}

func mustParse(t *testing.T, text string) ast.Expr {
	t.Helper()
	e, err := parser.New().Parse(text, ast.ParseOptions{})
	require.NoError(t, err)
	return e
}

type graphCase struct {
	t     *testing.T
	dg    *DependencyGraph
	scope *fakeScope
}

func newGraphCase(t *testing.T) *graphCase {
	return &graphCase{t: t, dg: NewDependencyGraph(), scope: newScope()}
}

func (g *graphCase) set(cell, formula string) *graphCase {
	g.dg.SetFormula(a1(g.t, cell), mustParse(g.t, formula), g.scope)
	return g
}

func (g *graphCase) cells(names ...string) []CellAddress {
	out := make([]CellAddress, len(names))
	for i, n := range names {
		out[i] = a1(g.t, n)
	}
	return out
}

func TestRecalculationOrderChain(t *testing.T) {
	g := newGraphCase(t).
		set("A2", "=A1*2").
		set("A3", "=A2+A1")

	plan := g.dg.RecalculationOrder(g.cells("A1"))
	assert.False(t, plan.HasCycle())
	assert.Equal(t, g.cells("A1", "A2", "A3"), plan.Order)

	assert.Equal(t, g.cells("A1"), g.dg.GetDirectPrecedents(a1(t, "A2")))
	assert.Equal(t, g.cells("A2", "A3"), g.dg.GetDirectDependents(a1(t, "A1")))
	assert.Equal(t, g.cells("A2", "A3"), g.dg.GetAllDependents(a1(t, "A1")))
}

func TestRecalculationLevels(t *testing.T) {
	g := newGraphCase(t).
		set("B1", "=A1").
		set("C1", "=A1*2").
		set("D1", "=B1+C1").
		set("E1", "=D1+A1")

	plan := g.dg.RecalculationLevels(g.cells("A1"))
	require.False(t, plan.HasCycle())
	assert.Equal(t, [][]CellAddress{
		g.cells("A1"),
		g.cells("B1", "C1"),
		g.cells("D1"),
		g.cells("E1"),
	}, plan.Levels)

	// no cell shares a level with one of its precedents
	level := map[CellAddress]int{}
	for i, cells := range plan.Levels {
		for _, c := range cells {
			level[c] = i
		}
	}
	for c, i := range level {
		for _, p := range g.dg.GetDirectPrecedents(c) {
			if j, ok := level[p]; ok {
				assert.Less(t, j, i, "%s before %s", p, c)
			}
		}
	}
}

func TestCycleDetection(t *testing.T) {
	g := newGraphCase(t).
		set("A1", "=B1").
		set("B1", "=A1").
		set("C1", "=B1+1").
		set("D1", "=5")

	plan := g.dg.RecalculationOrder(g.cells("A1", "D1"))
	require.True(t, plan.HasCycle())
	assert.Equal(t, g.cells("A1", "B1", "C1"), plan.Cycle)
	assert.Equal(t, g.cells("D1"), plan.Order)

	levels := g.dg.RecalculationLevels(g.cells("A1"))
	assert.Equal(t, g.cells("A1", "B1", "C1"), levels.Cycle)
	assert.Empty(t, levels.Levels)

	self := newGraphCase(t).set("A1", "=A1+1")
	assert.Equal(t, self.cells("A1"), self.dg.RecalculationOrder(self.cells("A1")).Cycle)
}

func TestSetFormulaReplacesEdges(t *testing.T) {
	g := newGraphCase(t).
		set("B1", "=A1+A2").
		set("C1", "=B1")

	g.set("B1", "=A3")
	assert.Equal(t, g.cells("A3"), g.dg.GetDirectPrecedents(a1(t, "B1")))
	assert.Empty(t, g.dg.GetDirectDependents(a1(t, "A1")))
	// readers of B1 keep their edge
	assert.Equal(t, g.cells("C1"), g.dg.GetDirectDependents(a1(t, "B1")))

	g.dg.ClearFormula(a1(t, "B1"))
	assert.False(t, g.dg.HasFormula(a1(t, "B1")))
	assert.Empty(t, g.dg.GetDirectDependents(a1(t, "A3")))
	assert.Equal(t, g.cells("C1"), g.dg.GetDirectDependents(a1(t, "B1")))
	assert.Equal(t, g.cells("C1"), g.dg.FormulaCells())
}

func TestRangeExpansion(t *testing.T) {
	g := newGraphCase(t).
		set("E1", "=SUM(A1:B2)").
		set("E2", "=SUM(C:C)").
		set("E3", "=SUM(Sheet2:Sheet3!A1)").
		set("E4", "=Sheet2!B2")

	assert.Equal(t, g.cells("A1", "B1", "A2", "B2"), g.dg.GetDirectPrecedents(a1(t, "E1")))
	assert.Len(t, g.dg.GetDirectPrecedents(a1(t, "E2")), 10)
	assert.Equal(t, g.cells("Sheet2!A1", "Sheet3!A1"), g.dg.GetDirectPrecedents(a1(t, "E3")))
	assert.Equal(t, g.cells("Sheet2!B2"), g.dg.GetDirectPrecedents(a1(t, "E4")))

	// unknown sheets contribute nothing
	g.set("E5", "=Nope!A1")
	assert.Empty(t, g.dg.GetDirectPrecedents(a1(t, "E5")))
}

func TestStructuredReferences(t *testing.T) {
	g := newGraphCase(t)
	g.scope.tables["SALES"] = value.Table{
		Name:        "Sales",
		Sheet:       "Sheet1",
		Range:       value.NewRange(value.Cell("Sheet1", 1, 1), value.Cell("Sheet1", 3, 2)),
		HeaderRow:   true,
		ColumnNames: []string{"Region", "Amount"},
	}
	g.set("D1", "=SUM(Sales[Amount])")
	assert.Equal(t, g.cells("B2", "B3"), g.dg.GetDirectPrecedents(a1(t, "D1")))
}

func TestNameDependencies(t *testing.T) {
	g := newGraphCase(t)
	g.set("B1", "=Rate*2")

	assert.Empty(t, g.dg.GetDirectPrecedents(a1(t, "B1")))
	assert.Equal(t, []ScopeKey{{Name: "RATE"}, {Sheet: "Sheet1", Name: "RATE"}}, g.dg.GetNameDependencies(a1(t, "B1")))
	assert.Equal(t, g.cells("B1"), g.dg.GetNameDependents(ScopeKey{Name: "rate"}))

	// defining the name and relinking picks up the cells it points at
	g.scope.names["!RATE"] = mustParse(t, "=Sheet1!$A$1+Inner")
	g.scope.names["!INNER"] = mustParse(t, "=Sheet1!C1")
	g.set("B1", "=Rate*2")
	assert.Equal(t, g.cells("A1", "C1"), g.dg.GetDirectPrecedents(a1(t, "B1")))

	// self-referential names terminate
	g.scope.names["SHEET1!LOOP"] = mustParse(t, "=Loop+A5")
	g.set("B2", "=Loop")
	assert.Equal(t, g.cells("A5"), g.dg.GetDirectPrecedents(a1(t, "B2")))
}

func TestSpillOrdering(t *testing.T) {
	g := newGraphCase(t).
		set("B1", "=A1").
		set("C1", "=B2+1")

	g.dg.SetSpill(a1(t, "B1"), g.cells("B1", "B2", "B3"))
	plan := g.dg.RecalculationOrder(g.cells("A1"))
	assert.Equal(t, g.cells("A1", "B1", "B2", "B3", "C1"), plan.Order)

	g.dg.ClearSpill(a1(t, "B1"))
	plan = g.dg.RecalculationOrder(g.cells("A1"))
	assert.Equal(t, g.cells("A1", "B1"), plan.Order)
}

func TestVolatileTracking(t *testing.T) {
	g := newGraphCase(t).set("A1", "=NOW()")
	g.dg.MarkVolatile(a1(t, "A1"))
	assert.True(t, g.dg.IsVolatile(a1(t, "A1")))
	assert.Equal(t, g.cells("A1"), g.dg.GetVolatileCells())
	g.dg.ClearFormula(a1(t, "A1"))
	assert.Empty(t, g.dg.GetVolatileCells())
}
