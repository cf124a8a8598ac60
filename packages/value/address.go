package value

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// CellAddress identifies a single cell. rows and columns are 1-based; an
// empty Sheet means "the sheet of the formula being evaluated".
type CellAddress struct {
	Sheet  string
	Row    int
	Column int
}

// Cell builds a CellAddress.
func Cell(sheet string, row, col int) CellAddress {
	return CellAddress{Sheet: sheet, Row: row, Column: col}
}

// Equal compares addresses, treating sheet names case-insensitively.
func (a CellAddress) Equal(o CellAddress) bool {
	return a.Row == o.Row && a.Column == o.Column && strings.EqualFold(a.Sheet, o.Sheet)
}

// Less orders addresses by sheet, then row, then column.
func (a CellAddress) Less(o CellAddress) bool {
	if a.Sheet != o.Sheet {
		return a.Sheet < o.Sheet
	}
	if a.Row != o.Row {
		return a.Row < o.Row
	}
	return a.Column < o.Column
}

// Offset returns the address moved by the given number of rows and columns.
func (a CellAddress) Offset(rows, cols int) CellAddress {
	return CellAddress{Sheet: a.Sheet, Row: a.Row + rows, Column: a.Column + cols}
}

// A1 renders the address without a sheet qualifier, e.g. "B12".
func (a CellAddress) A1() string {
	return ColumnName(a.Column) + strconv.Itoa(a.Row)
}

func (a CellAddress) String() string {
	if a.Sheet == "" {
		return a.A1()
	}
	return QuoteSheet(a.Sheet) + "!" + a.A1()
}

// ColumnName converts a 1-based column index to letters (1 -> A, 27 -> AA).
func ColumnName(col int) string {
	if col <= 0 {
		return ""
	}
	var buf [8]byte
	i := len(buf)
	for col > 0 {
		col--
		i--
		buf[i] = byte('A' + col%26)
		col /= 26
	}
	return string(buf[i:])
}

// ColumnIndex converts column letters to a 1-based index. it returns 0 for
// anything that is not a run of ASCII letters.
func ColumnIndex(letters string) int {
	if letters == "" || len(letters) > 7 {
		return 0
	}
	col := 0
	for i := 0; i < len(letters); i++ {
		c := letters[i]
		switch {
		case c >= 'A' && c <= 'Z':
			col = col*26 + int(c-'A'+1)
		case c >= 'a' && c <= 'z':
			col = col*26 + int(c-'a'+1)
		default:
			return 0
		}
	}
	return col
}

// QuoteSheet wraps a sheet name in single quotes when it contains anything
// other than letters, digits, underscores and dots.
func QuoteSheet(name string) string {
	plain := name != ""
	for i, r := range name {
		if r == '_' || r == '.' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' && i > 0 {
			continue
		}
		plain = false
		break
	}
	if plain {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// ParseA1 parses "B12", "$B$12" or "Sheet1!B12" into an address.
func ParseA1(text string) (CellAddress, error) {
	sheet := ""
	if i := strings.LastIndexByte(text, '!'); i >= 0 {
		sheet = strings.Trim(text[:i], "'")
		sheet = strings.ReplaceAll(sheet, "''", "'")
		text = text[i+1:]
	}
	text = strings.ReplaceAll(text, "$", "")
	split := 0
	for split < len(text) && (text[split] >= 'A' && text[split] <= 'Z' || text[split] >= 'a' && text[split] <= 'z') {
		split++
	}
	col := ColumnIndex(text[:split])
	row, err := strconv.Atoi(text[split:])
	if col == 0 || err != nil || row <= 0 {
		return CellAddress{}, fmt.Errorf("invalid cell address %q", text)
	}
	return CellAddress{Sheet: sheet, Row: row, Column: col}, nil
}

// RangeAddress is a rectangle of cells on one sheet. Start is always the
// top-left corner and End the bottom-right corner.
type RangeAddress struct {
	Start CellAddress
	End   CellAddress
}

// NewRange builds a normalized range from any two corners.
func NewRange(a, b CellAddress) RangeAddress {
	r := RangeAddress{Start: a, End: b}
	r.End.Sheet = a.Sheet
	if r.Start.Row > r.End.Row {
		r.Start.Row, r.End.Row = r.End.Row, r.Start.Row
	}
	if r.Start.Column > r.End.Column {
		r.Start.Column, r.End.Column = r.End.Column, r.Start.Column
	}
	return r
}

// SingleCell returns the 1x1 range covering addr.
func SingleCell(addr CellAddress) RangeAddress {
	return RangeAddress{Start: addr, End: addr}
}

func (r RangeAddress) Sheet() string { return r.Start.Sheet }
func (r RangeAddress) Rows() int { return r.End.Row - r.Start.Row + 1 }
func (r RangeAddress) Columns() int { return r.End.Column - r.Start.Column + 1 }

func (r RangeAddress) Equal(o RangeAddress) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End)
}

// Contains reports whether addr lies inside the range on the same sheet.
func (r RangeAddress) Contains(addr CellAddress) bool {
	return strings.EqualFold(r.Start.Sheet, addr.Sheet) &&
		addr.Row >= r.Start.Row && addr.Row <= r.End.Row &&
		addr.Column >= r.Start.Column && addr.Column <= r.End.Column
}

// Intersect returns the overlapping rectangle, if any.
func (r RangeAddress) Intersect(o RangeAddress) (RangeAddress, bool) {
	if !strings.EqualFold(r.Sheet(), o.Sheet()) {
		return RangeAddress{}, false
	}
	out := RangeAddress{
		Start: CellAddress{Sheet: r.Sheet(), Row: max(r.Start.Row, o.Start.Row), Column: max(r.Start.Column, o.Start.Column)},
		End:   CellAddress{Sheet: r.Sheet(), Row: min(r.End.Row, o.End.Row), Column: min(r.End.Column, o.End.Column)},
	}
	if out.Start.Row > out.End.Row || out.Start.Column > out.End.Column {
		return RangeAddress{}, false
	}
	return out, true
}

// Bounding returns the smallest rectangle covering both ranges.
func (r RangeAddress) Bounding(o RangeAddress) RangeAddress {
	return RangeAddress{
		Start: CellAddress{Sheet: r.Sheet(), Row: min(r.Start.Row, o.Start.Row), Column: min(r.Start.Column, o.Start.Column)},
		End:   CellAddress{Sheet: r.Sheet(), Row: max(r.End.Row, o.End.Row), Column: max(r.End.Column, o.End.Column)},
	}
}

// Cells iterates the range row by row.
func (r RangeAddress) Cells() iter.Seq[CellAddress] {
	return func(yield func(CellAddress) bool) {
		for row := r.Start.Row; row <= r.End.Row; row++ {
			for col := r.Start.Column; col <= r.End.Column; col++ {
				if !yield(CellAddress{Sheet: r.Start.Sheet, Row: row, Column: col}) {
					return
				}
			}
		}
	}
}

func (r RangeAddress) String() string {
	s := r.Start.A1()
	if r.Rows() > 1 || r.Columns() > 1 {
		s += ":" + r.End.A1()
	}
	if r.Start.Sheet != "" {
		s = QuoteSheet(r.Start.Sheet) + "!" + s
	}
	return s
}
