package value

// Array is a rectangular grid of values. a presence mask marks cells that
// belong to the shape but hold no value, which happens for the bounding
// rectangle of a union. an anchor records the top-left cell address when the
// array was produced from a reference; arrays computed by operators or
// functions carry no anchor.
type Array struct {
	rows, cols int
	values     []Value
	present    []bool
	anchor     *CellAddress
}

// NewArray allocates a rows x cols array of blanks, all present.
func NewArray(rows, cols int) *Array {
	if rows < 1 || cols < 1 {
		panic("value: array dimensions must be positive")
	}
	return &Array{rows: rows, cols: cols, values: make([]Value, rows*cols)}
}

// ArrayOf builds an array from row slices. all rows must share a length.
func ArrayOf(rows ...[]Value) *Array {
	a := NewArray(len(rows), len(rows[0]))
	for r, row := range rows {
		if len(row) != a.cols {
			panic("value: ragged array rows")
		}
		copy(a.values[r*a.cols:], row)
	}
	return a
}

func (a *Array) Rows() int { return a.rows }
func (a *Array) Columns() int { return a.cols }

// At returns the element at the 0-based position. absent cells read as Blank.
func (a *Array) At(row, col int) Value {
	return a.values[row*a.cols+col]
}

// Set stores an element. arrays are only mutated while being built.
func (a *Array) Set(row, col int, v Value) {
	a.values[row*a.cols+col] = v
}

// Present reports whether the element at the position belongs to the array.
func (a *Array) Present(row, col int) bool {
	if a.present == nil {
		return true
	}
	return a.present[row*a.cols+col]
}

// SetPresent marks an element present or absent, allocating the mask lazily.
func (a *Array) SetPresent(row, col int, present bool) {
	if a.present == nil {
		if present {
			return
		}
		a.present = make([]bool, len(a.values))
		for i := range a.present {
			a.present[i] = true
		}
	}
	a.present[row*a.cols+col] = present
	if !present {
		a.values[row*a.cols+col] = Blank()
	}
}

// HasMask reports whether any element may be absent.
func (a *Array) HasMask() bool { return a.present != nil }

// Anchor returns the address of the top-left element, if the array came
// from a reference.
func (a *Array) Anchor() (CellAddress, bool) {
	if a.anchor == nil {
		return CellAddress{}, false
	}
	return *a.anchor, true
}

// WithAnchor returns a shallow copy anchored at addr.
func (a *Array) WithAnchor(addr CellAddress) *Array {
	out := *a
	out.anchor = &addr
	return &out
}

// Bounds returns the rectangle covered by an anchored array.
func (a *Array) Bounds() (RangeAddress, bool) {
	anchor, ok := a.Anchor()
	if !ok {
		return RangeAddress{}, false
	}
	return RangeAddress{Start: anchor, End: anchor.Offset(a.rows-1, a.cols-1)}, true
}

// IsSingle reports a 1x1 array.
func (a *Array) IsSingle() bool { return a.rows == 1 && a.cols == 1 }

// Map returns an unanchored array of the same shape with fn applied to every
// present element. absent elements stay absent.
func (a *Array) Map(fn func(Value) Value) *Array {
	out := NewArray(a.rows, a.cols)
	for i, v := range a.values {
		if a.present != nil && !a.present[i] {
			out.SetPresent(i/a.cols, i%a.cols, false)
			continue
		}
		out.values[i] = fn(v)
	}
	return out
}

// Values iterates present elements in row-major order.
func (a *Array) Values(yield func(Value) bool) {
	for i, v := range a.values {
		if a.present != nil && !a.present[i] {
			continue
		}
		if !yield(v) {
			return
		}
	}
}

func (a *Array) Equal(o *Array) bool {
	if a.rows != o.rows || a.cols != o.cols {
		return false
	}
	for r := 0; r < a.rows; r++ {
		for c := 0; c < a.cols; c++ {
			if a.Present(r, c) != o.Present(r, c) || !a.At(r, c).Equal(o.At(r, c)) {
				return false
			}
		}
	}
	return true
}
