package value

import "strings"

// TableItem selects a part of a table in a structured reference.
type TableItem uint8

const (
	ItemData TableItem = iota // Table[Column] or Table[#Data]
	ItemAll                   // Table[#All]
	ItemHeaders               // Table[#Headers]
	ItemTotals                // Table[#Totals]
	ItemThisRow               // Table[@Column]
)

var itemNames = map[TableItem]string{
	ItemData:    "#Data",
	ItemAll:     "#All",
	ItemHeaders: "#Headers",
	ItemTotals:  "#Totals",
	ItemThisRow: "@",
}

func (i TableItem) String() string { return itemNames[i] }

// ParseTableItem maps "#All", "#Data", "#Headers" and "#Totals" to items.
func ParseTableItem(text string) (TableItem, bool) {
	for item, name := range itemNames {
		if item != ItemThisRow && strings.EqualFold(name, text) {
			return item, true
		}
	}
	return ItemData, false
}

// Table is the geometry of a named table. Range covers the header row, the
// data body and the totals row when present.
type Table struct {
	Name        string
	Sheet       string
	Range       RangeAddress
	HeaderRow   bool
	TotalsRow   bool
	ColumnNames []string
}

// ColumnIndex returns the 0-based index of a column name, ignoring case.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.ColumnNames {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// DataRange returns the body rows of the table.
func (t Table) DataRange() (RangeAddress, bool) {
	r := t.Range
	if t.HeaderRow {
		r.Start.Row++
	}
	if t.TotalsRow {
		r.End.Row--
	}
	return r, r.Start.Row <= r.End.Row
}

// Resolve returns the cells selected by a structured reference. column may
// be empty to select every column. ThisRow selects the cell of the column in
// the row of at, which must lie inside the data body.
func (t Table) Resolve(item TableItem, column string, at CellAddress) (RangeAddress, ErrorKind) {
	r := t.Range
	switch item {
	case ItemAll:
	case ItemData:
		data, ok := t.DataRange()
		if !ok {
			return RangeAddress{}, ErrorRef
		}
		r = data
	case ItemHeaders:
		if !t.HeaderRow {
			return RangeAddress{}, ErrorRef
		}
		r.End.Row = r.Start.Row
	case ItemTotals:
		if !t.TotalsRow {
			return RangeAddress{}, ErrorRef
		}
		r.Start.Row = r.End.Row
	case ItemThisRow:
		data, ok := t.DataRange()
		if !ok || at.Row < data.Start.Row || at.Row > data.End.Row {
			return RangeAddress{}, ErrorValue
		}
		r.Start.Row, r.End.Row = at.Row, at.Row
	}
	if column != "" {
		idx := t.ColumnIndex(column)
		if idx < 0 {
			return RangeAddress{}, ErrorRef
		}
		r.Start.Column = t.Range.Start.Column + idx
		r.End.Column = r.Start.Column
	}
	r.Start.Sheet, r.End.Sheet = t.Sheet, t.Sheet
	return r, NoError
}
