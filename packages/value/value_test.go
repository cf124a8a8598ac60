package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueAccessors(t *testing.T) {
	assert.Equal(t, 3.5, Number(3.5).Number())
	assert.Equal(t, "x", Text("x").Text())
	assert.True(t, Bool(true).Bool())
	assert.Equal(t, ErrorDiv0, Error(ErrorDiv0).Err())
	assert.True(t, Blank().IsBlank())
	assert.True(t, Value{}.IsBlank())

	assert.Panics(t, func() { Text("x").Number() })
	assert.Panics(t, func() { Number(1).Array() })
}

func TestValueEqualIsExact(t *testing.T) {
	assert.True(t, Number(0.1).Equal(Number(0.1)))
	a, b := 0.1, 0.2
	assert.False(t, Number(a+b).Equal(Number(0.3)))
	assert.False(t, Number(0).Equal(Number(math.Copysign(0, -1))))
	assert.False(t, Number(1).Equal(Bool(true)))
	assert.True(t, Error(ErrorNA).Equal(Error(ErrorNA)))
}

func TestErrorKindText(t *testing.T) {
	tests := map[ErrorKind]string{
		ErrorDiv0:  "#DIV/0!",
		ErrorNA:    "#N/A",
		ErrorName:  "#NAME?",
		ErrorNull:  "#NULL!",
		ErrorNum:   "#NUM!",
		ErrorRef:   "#REF!",
		ErrorValue: "#VALUE!",
		ErrorSpill: "#SPILL!",
		ErrorCalc:  "#CALC!",
		ErrorCirc:  "#CIRC!",
	}
	for kind, text := range tests {
		t.Run(text, func(t *testing.T) {
			assert.Equal(t, text, kind.String())
			parsed, ok := ParseErrorKind(text)
			require.True(t, ok)
			assert.Equal(t, kind, parsed)
		})
	}
	_, ok := ParseErrorKind("#BOGUS!")
	assert.False(t, ok)
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want float64
		err  ErrorKind
	}{
		{"number", Number(4), 4, NoError},
		{"true", Bool(true), 1, NoError},
		{"false", Bool(false), 0, NoError},
		{"blank", Blank(), 0, NoError},
		{"numeric text", Text(" 12.5 "), 12.5, NoError},
		{"exponent text", Text("1e3"), 1000, NoError},
		{"non numeric text", Text("abc"), 0, ErrorValue},
		{"infinity text", Text("Inf"), 0, ErrorValue},
		{"nan text", Text("NaN"), 0, ErrorValue},
		{"hex text", Text("0x10"), 0, ErrorValue},
		{"percent text without stripping", Text("50%"), 0, ErrorValue},
		{"error", Error(ErrorNA), 0, ErrorNA},
		{"array", ArrayValue(NewArray(1, 2)), 0, ErrorValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ToNumber(tt.in, Invariant)
			assert.Equal(t, tt.err, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestToBoolean(t *testing.T) {
	b, err := ToBoolean(Text("true"), Invariant)
	assert.Equal(t, NoError, err)
	assert.True(t, b)

	b, err = ToBoolean(Text("FaLsE"), Invariant)
	assert.Equal(t, NoError, err)
	assert.False(t, b)

	_, err = ToBoolean(Text("1"), Invariant)
	assert.Equal(t, ErrorValue, err)

	_, err = ToBoolean(Text("yes"), Invariant)
	assert.Equal(t, ErrorValue, err)

	b, err = ToBoolean(Number(0), Invariant)
	assert.Equal(t, NoError, err)
	assert.False(t, b)

	_, err = ToBoolean(Text("yes"), Invariant)
	assert.Equal(t, ErrorValue, err)

	_, err = ToBoolean(Error(ErrorRef), Invariant)
	assert.Equal(t, ErrorRef, err)
}

func TestToText(t *testing.T) {
	tests := []struct {
		in   Value
		want string
	}{
		{Number(20), "20"},
		{Number(-1.5), "-1.5"},
		{Number(0.1), "0.1"},
		{Number(1e20), "1E+20"},
		{Bool(true), "TRUE"},
		{Blank(), ""},
		{Text("abc"), "abc"},
	}
	for _, tt := range tests {
		got, err := ToText(tt.in)
		assert.Equal(t, NoError, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := ToText(Error(ErrorDiv0))
	assert.Equal(t, ErrorDiv0, err)
}

func TestLocaleNumberFormat(t *testing.T) {
	de, err := NewNumberFormat("de-DE", true)
	require.NoError(t, err)
	assert.Equal(t, ',', de.Decimal)
	assert.Equal(t, '.', de.Group)

	n, ok := de.ParseNumber("1.234,5")
	require.True(t, ok)
	assert.Equal(t, 1234.5, n)

	n, ok = de.ParseNumber("12,5%")
	require.True(t, ok)
	assert.InDelta(t, 0.125, n, 1e-12)

	en, err := NewNumberFormat("en-US", false)
	require.NoError(t, err)
	n, ok = en.ParseNumber("1,234.5")
	require.True(t, ok)
	assert.Equal(t, 1234.5, n)

	_, ok = en.ParseNumber("5%")
	assert.False(t, ok)

	_, err = NewNumberFormat("not a locale!", false)
	assert.Error(t, err)
}

func TestImplicitIntersection(t *testing.T) {
	row := ArrayOf([]Value{Number(1), Number(2), Number(3)}).WithAnchor(Cell("Sheet1", 1, 3))

	t.Run("aligned column", func(t *testing.T) {
		got := ImplicitIntersection(ArrayValue(row), Cell("Sheet1", 5, 3))
		assert.True(t, got.Equal(Number(1)))
	})
	t.Run("offset column", func(t *testing.T) {
		got := ImplicitIntersection(ArrayValue(row), Cell("Sheet1", 5, 5))
		assert.True(t, got.Equal(Number(3)))
	})
	t.Run("outside", func(t *testing.T) {
		got := ImplicitIntersection(ArrayValue(row), Cell("Sheet1", 5, 6))
		assert.True(t, got.Equal(Error(ErrorValue)))
	})

	col := ArrayOf([]Value{Text("a")}, []Value{Text("b")}).WithAnchor(Cell("Sheet1", 4, 1))
	assert.True(t, ImplicitIntersection(ArrayValue(col), Cell("Sheet1", 5, 9)).Equal(Text("b")))
	assert.True(t, ImplicitIntersection(ArrayValue(col), Cell("Sheet1", 3, 9)).Equal(Error(ErrorValue)))

	square := NewArray(2, 2).WithAnchor(Cell("Sheet1", 1, 1))
	assert.True(t, ImplicitIntersection(ArrayValue(square), Cell("Sheet1", 1, 1)).Equal(Error(ErrorValue)))

	unanchored := ArrayOf([]Value{Number(1), Number(2)})
	_, ok := TryImplicitIntersection(ArrayValue(unanchored), Cell("Sheet1", 1, 1))
	assert.False(t, ok)

	single := ArrayOf([]Value{Number(9)})
	assert.True(t, ImplicitIntersection(ArrayValue(single), Cell("Sheet1", 40, 40)).Equal(Number(9)))
	assert.True(t, ImplicitIntersection(Number(7), Cell("Sheet1", 1, 1)).Equal(Number(7)))
}

func TestArrayMask(t *testing.T) {
	a := NewArray(2, 2)
	a.Set(0, 0, Number(1))
	assert.False(t, a.HasMask())
	a.SetPresent(1, 1, false)
	assert.True(t, a.HasMask())
	assert.False(t, a.Present(1, 1))
	assert.True(t, a.Present(0, 1))

	count := 0
	for range a.Values {
		count++
	}
	assert.Equal(t, 3, count)

	doubled := a.Map(func(v Value) Value { return Number(2) })
	assert.False(t, doubled.Present(1, 1))
	_, anchored := doubled.Anchor()
	assert.False(t, anchored)
}

func TestAddresses(t *testing.T) {
	assert.Equal(t, "A", ColumnName(1))
	assert.Equal(t, "Z", ColumnName(26))
	assert.Equal(t, "AA", ColumnName(27))
	assert.Equal(t, "XFD", ColumnName(16384))
	assert.Equal(t, 16384, ColumnIndex("xfd"))
	assert.Equal(t, 0, ColumnIndex("A1"))

	addr, err := ParseA1("'My Sheet'!$B$12")
	require.NoError(t, err)
	assert.Equal(t, Cell("My Sheet", 12, 2), addr)
	assert.Equal(t, "'My Sheet'!B12", addr.String())

	_, err = ParseA1("12B")
	assert.Error(t, err)

	assert.True(t, Cell("sheet1", 1, 1).Equal(Cell("SHEET1", 1, 1)))

	r := NewRange(Cell("S", 5, 4), Cell("S", 2, 1))
	assert.Equal(t, Cell("S", 2, 1), r.Start)
	assert.Equal(t, 4, r.Rows())
	assert.Equal(t, 4, r.Columns())
	assert.True(t, r.Contains(Cell("s", 3, 3)))
	assert.False(t, r.Contains(Cell("T", 3, 3)))

	o, ok := r.Intersect(NewRange(Cell("S", 4, 4), Cell("S", 9, 9)))
	require.True(t, ok)
	assert.Equal(t, "S!D4:D5", o.String())

	_, ok = r.Intersect(NewRange(Cell("S", 9, 9), Cell("S", 9, 9)))
	assert.False(t, ok)

	var cells []string
	for c := range NewRange(Cell("", 1, 1), Cell("", 2, 2)).Cells() {
		cells = append(cells, c.A1())
	}
	assert.Equal(t, []string{"A1", "B1", "A2", "B2"}, cells)
}

func TestTableResolve(t *testing.T) {
	tbl := Table{
		Name:        "Sales",
		Sheet:       "Sheet1",
		Range:       NewRange(Cell("Sheet1", 1, 1), Cell("Sheet1", 5, 2)),
		HeaderRow:   true,
		TotalsRow:   true,
		ColumnNames: []string{"Region", "Amount"},
	}

	r, err := tbl.Resolve(ItemData, "amount", Cell("Sheet1", 1, 1))
	require.Equal(t, NoError, err)
	assert.Equal(t, "Sheet1!B2:B4", r.String())

	r, err = tbl.Resolve(ItemAll, "", Cell("Sheet1", 1, 1))
	require.Equal(t, NoError, err)
	assert.Equal(t, "Sheet1!A1:B5", r.String())

	r, err = tbl.Resolve(ItemTotals, "Amount", Cell("Sheet1", 1, 1))
	require.Equal(t, NoError, err)
	assert.Equal(t, "Sheet1!B5", r.String())

	r, err = tbl.Resolve(ItemThisRow, "Region", Cell("Sheet1", 3, 7))
	require.Equal(t, NoError, err)
	assert.Equal(t, "Sheet1!A3", r.String())

	_, err = tbl.Resolve(ItemThisRow, "Region", Cell("Sheet1", 9, 7))
	assert.Equal(t, ErrorValue, err)

	_, err = tbl.Resolve(ItemData, "Missing", Cell("Sheet1", 1, 1))
	assert.Equal(t, ErrorRef, err)
}
