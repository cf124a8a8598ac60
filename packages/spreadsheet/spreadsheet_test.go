package spreadsheet

import (
	"math"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/vogtb/go-spreadsheet/packages/engine"
	"github.com/vogtb/go-spreadsheet/packages/host"
)

type SpreadsheetTestCase struct {
	t           *testing.T
	name        string
	spreadsheet *Spreadsheet
	err         error
}

func NewSpreadsheetTestCase(t *testing.T, name string, opts ...Option) *SpreadsheetTestCase {
	t.Helper()
	s, err := NewSpreadsheet(opts...)
	require.NoError(t, err, name)
	tc := &SpreadsheetTestCase{
		t:           t,
		name:        name,
		spreadsheet: s,
	}
	return tc.AddWorksheet("Sheet1")
}

func (tc *SpreadsheetTestCase) Set(address string, value Primitive) *SpreadsheetTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.spreadsheet.Set(address, value)
	return tc
}

func (tc *SpreadsheetTestCase) Remove(address string) *SpreadsheetTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.spreadsheet.Remove(address)
	return tc
}

func (tc *SpreadsheetTestCase) AddWorksheet(name string) *SpreadsheetTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.spreadsheet.AddWorksheet(name)
	return tc
}

func (tc *SpreadsheetTestCase) RemoveWorksheet(name string) *SpreadsheetTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.spreadsheet.RemoveWorksheet(name)
	return tc
}

func (tc *SpreadsheetTestCase) RenameWorksheet(oldName, newName string) *SpreadsheetTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.spreadsheet.RenameWorksheet(oldName, newName)
	return tc
}

func (tc *SpreadsheetTestCase) DefineName(name, formula string) *SpreadsheetTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.spreadsheet.DefineName(name, formula)
	return tc
}

func (tc *SpreadsheetTestCase) Do(fn func(s *Spreadsheet) error) *SpreadsheetTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = fn(tc.spreadsheet)
	return tc
}

func (tc *SpreadsheetTestCase) Run() *SpreadsheetTestCase {
	tc.t.Helper()
	if tc.err != nil {
		tc.t.Errorf("%s: unexpected error before Calculate(): %v", tc.name, tc.err)
		tc.err = nil
		return tc
	}
	tc.err = tc.spreadsheet.Calculate()
	if tc.err != nil {
		tc.t.Errorf("%s: Calculate() failed: %v", tc.name, tc.err)
	}
	return tc
}

func (tc *SpreadsheetTestCase) AssertCellEq(address string, expected Primitive) *SpreadsheetTestCase {
	tc.t.Helper()
	actual, err := tc.spreadsheet.Get(address)
	if !assert.NoError(tc.t, err, "%s: Get(%s)", tc.name, address) {
		return tc
	}
	switch exp := expected.(type) {
	case float64:
		act, ok := actual.(float64)
		if assert.True(tc.t, ok, "%s: Cell %s = %v (%T), want %v", tc.name, address, actual, actual, expected) {
			assert.InDelta(tc.t, exp, act, 1e-10, "%s: Cell %s", tc.name, address)
		}
	case int:
		act, ok := actual.(float64)
		if assert.True(tc.t, ok, "%s: Cell %s = %v (%T), want %v", tc.name, address, actual, actual, expected) {
			assert.InDelta(tc.t, float64(exp), act, 1e-10, "%s: Cell %s", tc.name, address)
		}
	case ErrorCode:
		return tc.AssertCellErr(address, exp)
	default:
		assert.Equal(tc.t, expected, actual, "%s: Cell %s", tc.name, address)
	}
	return tc
}

func (tc *SpreadsheetTestCase) AssertCellEmpty(address string) *SpreadsheetTestCase {
	tc.t.Helper()
	actual, err := tc.spreadsheet.Get(address)
	if assert.NoError(tc.t, err, "%s: Get(%s)", tc.name, address) {
		assert.Nil(tc.t, actual, "%s: Cell %s", tc.name, address)
	}
	return tc
}

func (tc *SpreadsheetTestCase) AssertCellErr(address string, errorCode ErrorCode) *SpreadsheetTestCase {
	tc.t.Helper()
	actual, err := tc.spreadsheet.Get(address)
	if !assert.NoError(tc.t, err, "%s: Get(%s)", tc.name, address) {
		return tc
	}
	spreadsheetErr, ok := actual.(*SpreadsheetError)
	if assert.True(tc.t, ok, "%s: Cell %s = %v, want error %v", tc.name, address, actual, errorCode) {
		assert.Equal(tc.t, errorCode, spreadsheetErr.ErrorCode, "%s: Cell %s", tc.name, address)
	}
	return tc
}

func (tc *SpreadsheetTestCase) AssertFormula(address, formula string) *SpreadsheetTestCase {
	tc.t.Helper()
	cell, err := tc.spreadsheet.Cell(address)
	if assert.NoError(tc.t, err, "%s: Cell(%s)", tc.name, address) {
		assert.Equal(tc.t, formula, cell.Formula, "%s: Cell %s", tc.name, address)
	}
	return tc
}

func (tc *SpreadsheetTestCase) AssertWorksheetExists(name string, shouldExist bool) *SpreadsheetTestCase {
	tc.t.Helper()
	assert.Equal(tc.t, shouldExist, tc.spreadsheet.DoesWorksheetExist(name), "%s: Worksheet %s", tc.name, name)
	return tc
}

func (tc *SpreadsheetTestCase) ExpectAppError(expectedCode AppErrorCode) *SpreadsheetTestCase {
	tc.t.Helper()
	if assert.Error(tc.t, tc.err, "%s: expected error with code %v", tc.name, expectedCode) {
		assert.True(tc.t, IsAppError(tc.err, expectedCode), "%s: got %v, want code %v", tc.name, tc.err, expectedCode)
	}
	tc.err = nil
	return tc
}

func (tc *SpreadsheetTestCase) End() {
	tc.t.Helper()
	assert.NoError(tc.t, tc.err, tc.name)
}

func TestLexingAndParsing(t *testing.T) {
	t.Run("ValidFormulas", func(t *testing.T) {
		NewSpreadsheetTestCase(t, "Basic arithmetic").
			Set("Sheet1!A1", "=1+2").
			Run().
			AssertCellEq("Sheet1!A1", 3.0).
			End()

		NewSpreadsheetTestCase(t, "Cell reference").
			Set("Sheet1!A1", 10.0).
			Set("Sheet1!A2", "=A1").
			Run().
			AssertCellEq("Sheet1!A2", 10.0).
			End()

		NewSpreadsheetTestCase(t, "Function call").
			Set("Sheet1!A1", 5.0).
			Set("Sheet1!A2", 10.0).
			Set("Sheet1!A3", "=SUM(A1:A2)").
			Run().
			AssertCellEq("Sheet1!A3", 15.0).
			End()

		NewSpreadsheetTestCase(t, "Unqualified addresses use the first sheet").
			Set("B2", 4).
			Set("B3", "=B2^2").
			Run().
			AssertCellEq("Sheet1!B3", 16).
			End()
	})

	t.Run("InvalidFormulas", func(t *testing.T) {
		for _, formula := range []string{"=1+", "=SUM(", "=(1+2", `="open`} {
			NewSpreadsheetTestCase(t, formula).
				Set("A1", 5).
				Set("A1", formula).
				ExpectAppError(InvalidArgument).
				Run().
				AssertCellEq("A1", 5).
				AssertFormula("A1", "").
				End()
		}
	})
}

func TestBasicTypes(t *testing.T) {
	NewSpreadsheetTestCase(t, "Primitives").
		Set("A1", 42).
		Set("A2", "hello").
		Set("A3", true).
		Set("A4", NewSpreadsheetError(ErrorCodeNA, "")).
		Set("A5", nil).
		Run().
		AssertCellEq("A1", 42.0).
		AssertCellEq("A2", "hello").
		AssertCellEq("A3", true).
		AssertCellErr("A4", ErrorCodeNA).
		AssertCellEmpty("A5").
		AssertCellEmpty("Z100").
		End()

	NewSpreadsheetTestCase(t, "Unsupported").
		Set("A1", struct{}{}).
		ExpectAppError(InvalidArgument).
		End()
}

func TestFormulaErrors(t *testing.T) {
	NewSpreadsheetTestCase(t, "Errors").
		Set("A1", "=1/0").
		Set("A2", "=NOPE(1)").
		Set("A3", "=A1+1").
		Set("A4", "=IFERROR(A1,\"caught\")").
		Set("A5", "=Undefined*2").
		Run().
		AssertCellErr("A1", ErrorCodeDiv0).
		AssertCellErr("A2", ErrorCodeName).
		AssertCellErr("A3", ErrorCodeDiv0).
		AssertCellEq("A4", "caught").
		AssertCellErr("A5", ErrorCodeName).
		End()
}

func TestAddresses(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "Addresses")
	_, err := tc.spreadsheet.Get("Nope!A1")
	assert.True(t, IsAppError(err, NotFound), "%v", err)
	_, err = tc.spreadsheet.Get("1A")
	assert.True(t, IsAppError(err, InvalidArgument), "%v", err)
	_, err = tc.spreadsheet.Get("ZZZ1")
	assert.True(t, IsAppError(err, OutOfRange), "%v", err)

	empty, err := NewSpreadsheet()
	require.NoError(t, err)
	_, err = empty.Get("A1")
	assert.True(t, IsAppError(err, FailedPrecondition), "%v", err)
}

func TestEndToEnd(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "Chain").
		Set("A1", 10).
		Set("A2", "=A1*2").
		Set("A3", "=A2+A1").
		Run().
		AssertCellEq("A2", 20).
		AssertCellEq("A3", 30)

	order := tc.spreadsheet.LastResult().Order
	names := make([]string, len(order))
	for i, c := range order {
		names[i] = c.String()
	}
	a2 := slices.Index(names, "Sheet1!A2")
	a3 := slices.Index(names, "Sheet1!A3")
	require.GreaterOrEqual(t, a2, 0)
	assert.Less(t, a2, a3)

	tc.Set("A1", 1).
		Run().
		AssertCellEq("A2", 2).
		AssertCellEq("A3", 3).
		Remove("A1").
		Run().
		AssertCellEq("A3", 0).
		End()

	deps, err := tc.spreadsheet.Dependents("A1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Sheet1!A2", "Sheet1!A3"}, deps)
	precedents, err := tc.spreadsheet.Precedents("A3")
	require.NoError(t, err)
	assert.Equal(t, []string{"Sheet1!A1", "Sheet1!A2"}, precedents)
}

func TestCircularReferences(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "Two cell cycle").
		Set("A1", "=B1").
		Set("B1", "=A1").
		Set("C1", 7).
		Set("C2", "=C1+1").
		Run().
		AssertCellErr("A1", ErrorCodeCirc).
		AssertCellErr("B1", ErrorCodeCirc).
		AssertCellEq("C2", 8)

	result := tc.spreadsheet.LastResult()
	require.True(t, result.HasCycle())
	cycle := make([]string, len(result.Cycle))
	for i, c := range result.Cycle {
		cycle[i] = c.String()
	}
	assert.ElementsMatch(t, []string{"Sheet1!A1", "Sheet1!B1"}, cycle)

	tc.Set("B1", 3).
		Run().
		AssertCellEq("A1", 3).
		End()

	settings := engine.DefaultSettings()
	settings.Iterative = true
	iterative := NewSpreadsheetTestCase(t, "Iterative", WithSettings(settings)).
		Set("A1", "=B1/2+1").
		Set("B1", "=A1").
		Run()
	iterative.End()
	assert.True(t, iterative.spreadsheet.LastResult().Converged)
	v, err := iterative.spreadsheet.Get("A1")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v, 0.01, "fixed point of x = x/2 + 1")
}

func TestSpills(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "Spill").
		Set("A1", "=SEQUENCE(3)").
		Set("B3", "=A3*10").
		Run().
		AssertCellEq("A1", 1).
		AssertCellEq("A2", 2).
		AssertCellEq("A3", 3).
		AssertCellEq("B3", 30)

	cell, err := tc.spreadsheet.Cell("A2")
	require.NoError(t, err)
	assert.Equal(t, "Sheet1!A1", cell.SpilledFrom)
	assert.Empty(t, cell.Formula)

	tc.Set("A3", "x").
		Run().
		AssertCellErr("A1", ErrorCodeSpill).
		AssertCellEmpty("A2").
		AssertCellEq("A3", "x").
		AssertCellErr("B3", ErrorCodeValue).
		Remove("A3").
		Run().
		AssertCellEq("A1", 1).
		AssertCellEq("A3", 3).
		AssertCellEq("B3", 30).
		End()

	NewSpreadsheetTestCase(t, "Conflict leaves the occupied cell").
		Set("B2", 5).
		Set("B1", "=SEQUENCE(3)").
		Run().
		AssertCellErr("B1", ErrorCodeSpill).
		AssertCellEq("B2", 5).
		AssertCellEmpty("B3").
		End()

	NewSpreadsheetTestCase(t, "Oversized array is an error value").
		Set("A1", "=SEQUENCE(10000000000000)").
		Set("B1", "=1+1").
		Run().
		AssertCellErr("A1", ErrorCodeNum).
		AssertCellEmpty("A2").
		AssertCellEq("B1", 2).
		End()
}

func TestImplicitIntersection(t *testing.T) {
	settings := engine.DefaultSettings()
	settings.DynamicArrays = false
	NewSpreadsheetTestCase(t, "Single cell results", WithSettings(settings)).
		Set("C1", 1).
		Set("D1", 2).
		Set("E1", 3).
		Set("C2", "=C1:E1").
		Set("F2", "=C1:E1").
		Run().
		AssertCellEq("C2", 1).
		AssertCellErr("F2", ErrorCodeValue).
		End()
}

func TestStructuralEdits(t *testing.T) {
	NewSpreadsheetTestCase(t, "Round trip").
		Set("A1", 1).
		Set("A2", 2).
		Set("A3", 3).
		Set("B1", "=SUM(A1:A3)").
		Set("B2", "=$A$3*2").
		Run().
		AssertCellEq("B1", 6).
		Do(func(s *Spreadsheet) error { return s.InsertRows("Sheet1", 2, 2) }).
		AssertFormula("B1", "=SUM(A1:A5)").
		AssertFormula("B4", "=$A$5*2").
		AssertCellEq("A5", 3).
		Run().
		AssertCellEq("B1", 6).
		AssertCellEq("B4", 6).
		Do(func(s *Spreadsheet) error { return s.DeleteRows("Sheet1", 2, 2) }).
		AssertFormula("B1", "=SUM(A1:A3)").
		AssertFormula("B2", "=$A$3*2").
		Run().
		AssertCellEq("B2", 6).
		End()

	NewSpreadsheetTestCase(t, "Deleted reference").
		Set("A1", 5).
		Set("B1", "=A1*2").
		Do(func(s *Spreadsheet) error { return s.DeleteColumns("Sheet1", 1, 1) }).
		AssertFormula("A1", "=#REF!*2").
		Run().
		AssertCellErr("A1", ErrorCodeRef).
		End()

	NewSpreadsheetTestCase(t, "Invalid edit").
		Do(func(s *Spreadsheet) error { return s.InsertRows("Sheet1", 0, 1) }).
		ExpectAppError(InvalidArgument).
		Do(func(s *Spreadsheet) error { return s.InsertRows("Missing", 1, 1) }).
		ExpectAppError(NotFound).
		End()
}

func TestWorksheetOperations(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "Lifecycle").
		AddWorksheet("Sheet2").
		AssertWorksheetExists("sheet2", true).
		AddWorksheet("SHEET2").
		ExpectAppError(AlreadyExists).
		AddWorksheet("Bad!Name").
		ExpectAppError(InvalidArgument).
		Set("Sheet2!A1", 4).
		Set("A1", "=Sheet2!A1*2").
		Set("A2", "=Later!A1+1").
		Run().
		AssertCellEq("A1", 8).
		AssertCellErr("A2", ErrorCodeRef).
		AddWorksheet("Later").
		Set("Later!A1", 1).
		Run().
		AssertCellEq("A2", 2).
		RenameWorksheet("Sheet2", "Data").
		AssertFormula("A1", "=Data!A1*2").
		AssertWorksheetExists("Sheet2", false).
		Set("Data!A1", 5).
		Run().
		AssertCellEq("A1", 10).
		RenameWorksheet("Missing", "X").
		ExpectAppError(NotFound).
		RenameWorksheet("Data", "sheet1").
		ExpectAppError(AlreadyExists).
		RemoveWorksheet("Later").
		Run().
		AssertCellErr("A2", ErrorCodeRef).
		RemoveWorksheet("Later").
		ExpectAppError(NotFound)
	tc.End()

	assert.Equal(t, []string{"Sheet1", "Data"}, tc.spreadsheet.ListWorksheets())
}

func TestDefinedNames(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "Names").
		Set("A1", 1).
		Set("A2", 2).
		Set("A3", 3).
		Set("B1", "=SUM(Data)*2").
		Run().
		AssertCellErr("B1", ErrorCodeName).
		DefineName("Data", "=Sheet1!A1:A3").
		AssertCellEq("B1", 12).
		Set("A1", 10).
		Run().
		AssertCellEq("B1", 30)

	assert.True(t, tc.spreadsheet.DoesNameExist("data"))
	assert.Equal(t, []string{"Data"}, tc.spreadsheet.ListNames())

	tc.Do(func(s *Spreadsheet) error { return s.DefineSheetName("Sheet1", "Data", "=Sheet1!A1") }).
		AssertCellEq("B1", 20).
		Do(func(s *Spreadsheet) error { return s.RemoveName("Data") }).
		Do(func(s *Spreadsheet) error { return s.RemoveName("Data") }).
		ExpectAppError(NotFound).
		DefineName("B2", "=1").
		ExpectAppError(InvalidArgument).
		DefineName("Broken", "=1+").
		ExpectAppError(InvalidArgument).
		End()
}

func TestTables(t *testing.T) {
	NewSpreadsheetTestCase(t, "Structured references").
		Do(func(s *Spreadsheet) error { return s.AddTable("Sales", "Sheet1!A1:B3", "Region", "Amount") }).
		Set("B2", 5).
		Set("B3", 7).
		Set("D1", "=SUM(Sales[Amount])").
		Run().
		AssertCellEq("D1", 12).
		Do(func(s *Spreadsheet) error { return s.RenameTableColumn("Sales", "Amount", "Total") }).
		AssertFormula("D1", "=SUM(Sales[Total])").
		Do(func(s *Spreadsheet) error { return s.RenameTable("Sales", "Revenue") }).
		AssertFormula("D1", "=SUM(Revenue[Total])").
		Set("B3", 10).
		Run().
		AssertCellEq("D1", 15).
		Do(func(s *Spreadsheet) error { return s.AddTable("Odd", "A5:C6", "One") }).
		ExpectAppError(InvalidArgument).
		Do(func(s *Spreadsheet) error { return s.AddTable("Revenue", "F1:F3", "X") }).
		ExpectAppError(AlreadyExists).
		Do(func(s *Spreadsheet) error { return s.RemoveTable("Nope") }).
		ExpectAppError(NotFound).
		End()
}

func TestVolatileFunctions(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	NewSpreadsheetTestCase(t, "NOW follows the clock", WithClock(clk)).
		Set("A1", "=NOW()").
		Set("A2", "=A1+1").
		Run().
		AssertCellEq("A1", 45292.5).
		Do(func(*Spreadsheet) error {
			clk.Step(24 * time.Hour)
			return nil
		}).
		Run().
		AssertCellEq("A1", 45293.5).
		AssertCellEq("A2", 45294.5).
		End()
}

func TestCalculationMode(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "Manual", WithCalculationMode(host.Manual)).
		Set("A1", 2).
		Set("B1", "=A1*A1").
		DefineName("Rate", "=0.5").
		AssertCellEmpty("B1").
		Run().
		AssertCellEq("B1", 4)

	require.NoError(t, tc.spreadsheet.SetCalculationMode("Sheet1", host.Automatic))
	require.Error(t, tc.spreadsheet.SetCalculationMode("Nope", host.Automatic))
	tc.Set("C1", "=Rate*4").
		DefineName("Rate", "=1").
		AssertCellEq("C1", 4.0).
		End()
}

func TestRunnableSpreadsheet(t *testing.T) {
	var lines []string
	r := NewRunnableSpreadsheet(func(s string) { lines = append(lines, s) }).
		AddWorksheet("Sheet1").
		SetBatch(map[string]Primitive{"A1": 10, "A2": "=A1*2", "A3": "=1/0"}).
		Calculate().
		Log("A2").
		Log("A3").
		Log("B9")
	assert.Equal(t, 20.0, r.Value("A2"))
	assert.Equal(t, []Primitive{10.0, 20.0}, r.Values("A1", "A2"))
	_, batch := r.GetBatch("A1", "A2")
	assert.Equal(t, map[string]Primitive{"A1": 10.0, "A2": 20.0}, batch)
	assert.Equal(t, []string{"A2: 20", "A3: #DIV/0!", "B9: <empty>"}, lines)

	var visited []string
	r.ForEach(1, 2, 1, 2, func(address string, r *RunnableSpreadsheet) {
		visited = append(visited, address)
	})
	assert.Equal(t, []string{"A1", "B1", "A2", "B2"}, visited)

	r.AddWorksheet("Sheet1").CheckError()
	assert.True(t, IsAppError(r.Error(), AlreadyExists))
	assert.Equal(t, "ERROR: sheet already exists: \"Sheet1\"", lines[len(lines)-1])
	assert.Nil(t, r.Value("A1"), "errors stop the chain")
	_, batch = r.GetBatch("A1", "A2")
	assert.Nil(t, batch)

	r.OnError(func(error) error { return nil }).
		WithWorksheet("Sheet1").
		WithWorksheet("Other").
		If(false, func(r *RunnableSpreadsheet) *RunnableSpreadsheet { return r.Set("A1", 99) }).
		Then(func(r *RunnableSpreadsheet) *RunnableSpreadsheet { return r.Set("Other!A1", "=Sheet1!A2+1") })
	s, err := r.Run()
	require.NoError(t, err)
	v, err := s.Get("Other!A1")
	require.NoError(t, err)
	assert.Equal(t, 21.0, v)
	assert.Panics(t, func() { r.Set("A1", "=1+").Must() })
}

func TestNumericResults(t *testing.T) {
	NewSpreadsheetTestCase(t, "Numbers").
		Set("A1", "=0.1+0.2").
		Set("A2", "=2^0.5").
		Set("A3", "=-A2*A2").
		Set("A4", "=\"3\"+1").
		Run().
		AssertCellEq("A1", 0.3).
		AssertCellEq("A2", math.Sqrt2).
		AssertCellEq("A3", -2.0).
		AssertCellEq("A4", 4).
		End()
}
