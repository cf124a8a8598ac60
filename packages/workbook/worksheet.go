package workbook

import (
	"slices"
	"sync"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/host"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

const (
	ChunkRows = 256                   // rows per chunk - power of 2 for efficient modulo
	ChunkCols = 256                   // columns per chunk - matches typical viewport size
	ChunkSize = ChunkRows * ChunkCols // 65536 cells per chunk
)

// chunkKey indexes chunks by their 0-based chunk row and column
type chunkKey struct {
	row, col int
}

// chunk holds a 256x256 region of cells in structure-of-arrays layout.
// only kinds and the occupied bitmap exist up front; the other arrays are
// allocated the first time a cell needs them.
type chunk struct {
	kinds    []uint8  // value.Kind of each cell's value
	occupied []uint64 // bit set when a cell holds a value or a formula
	count    int      // occupied cells

	numbers    []float64          // numbers, booleans as 0/1, error kinds (lazy)
	stringIDs  []uint32           // interned text values (lazy)
	formulaIDs []uint32           // interned formula text (lazy)
	exprs      []ast.Expr         // parsed formulas (lazy)
	others     map[int]value.Value // arrays and references (lazy)
}

func newChunk() *chunk {
	return &chunk{
		kinds:    make([]uint8, ChunkSize),
		occupied: make([]uint64, ChunkSize/64),
	}
}

// cellRecord is everything stored for one cell, used to move cells
type cellRecord struct {
	row, col  int
	kind      uint8
	number    float64
	stringID  uint32
	formulaID uint32
	expr      ast.Expr
	other     value.Value
}

// Worksheet is sparse chunked cell storage for one sheet. it is safe for
// concurrent use: parallel recalculation levels read and write cells
// through it at the same time.
//
// architecture:
// - cells are partitioned into 256x256 chunks for spatial locality
// - each chunk allocates arrays lazily based on what its cells hold
// - text values and formula text are interned in the workbook StringTable
type Worksheet struct {
	mu      sync.RWMutex
	name    string
	rows    int
	cols    int
	chunks  map[chunkKey]*chunk
	strings *StringTable
	names   *NameTable
	mode    *host.CalculationMode
}

var (
	_ host.Worksheet               = (*Worksheet)(nil)
	_ host.CalculationModeOverride = (*Worksheet)(nil)
)

func newWorksheet(name string, rows, cols int, strings *StringTable) *Worksheet {
	return &Worksheet{
		name:    name,
		rows:    rows,
		cols:    cols,
		chunks:  make(map[chunkKey]*chunk),
		strings: strings,
		names:   NewNameTable(),
	}
}

func (w *Worksheet) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

func (w *Worksheet) Size() (rows, cols int) { return w.rows, w.cols }

func (w *Worksheet) Names() host.NameTable { return w.names }

// LocalNames is the sheet-scoped name table.
func (w *Worksheet) LocalNames() *NameTable { return w.names }

// CalculationMode returns the sheet's own mode when one is set.
func (w *Worksheet) CalculationMode() (host.CalculationMode, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.mode == nil {
		return host.Automatic, false
	}
	return *w.mode, true
}

// SetCalculationMode overrides the workbook mode for this sheet.
func (w *Worksheet) SetCalculationMode(m host.CalculationMode) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mode = &m
}

// ClearCalculationMode makes the sheet follow the workbook again.
func (w *Worksheet) ClearCalculationMode() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mode = nil
}

func (w *Worksheet) inBounds(row, col int) bool {
	return row >= 1 && col >= 1 && row <= w.rows && col <= w.cols
}

// locate maps a 1-based cell to its chunk and index. column-first indexing
// inside a chunk keeps a column's cells adjacent.
func locate(row, col int) (chunkKey, int) {
	r, c := row-1, col-1
	key := chunkKey{row: r / ChunkRows, col: c / ChunkCols}
	return key, (c%ChunkCols)*ChunkRows + r%ChunkRows
}

func (k chunkKey) address(idx int) (row, col int) {
	return k.row*ChunkRows + idx%ChunkRows + 1, k.col*ChunkCols + idx/ChunkRows + 1
}

func (w *Worksheet) find(row, col int) (*chunk, int, bool) {
	if !w.inBounds(row, col) {
		return nil, 0, false
	}
	key, idx := locate(row, col)
	c, ok := w.chunks[key]
	return c, idx, ok
}

// slot returns the chunk for a cell, creating it on first write
func (w *Worksheet) slot(row, col int) (chunkKey, *chunk, int) {
	key, idx := locate(row, col)
	c, ok := w.chunks[key]
	if !ok {
		c = newChunk()
		w.chunks[key] = c
	}
	return key, c, idx
}

// settle updates the occupied bitmap for idx and drops the chunk when it
// no longer holds anything
func (w *Worksheet) settle(key chunkKey, c *chunk, idx int) {
	busy := c.kinds[idx] != uint8(value.KindBlank) || (c.formulaIDs != nil && c.formulaIDs[idx] != 0)
	bit := uint64(1) << (idx % 64)
	was := c.occupied[idx/64]&bit != 0
	switch {
	case busy && !was:
		c.occupied[idx/64] |= bit
		c.count++
	case !busy && was:
		c.occupied[idx/64] &^= bit
		c.count--
	}
	if c.count == 0 {
		delete(w.chunks, key)
	}
}

func (w *Worksheet) Value(row, col int) value.Value {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, idx, ok := w.find(row, col)
	if !ok {
		return value.Blank()
	}
	return w.read(c, idx)
}

func (w *Worksheet) read(c *chunk, idx int) value.Value {
	switch value.Kind(c.kinds[idx]) {
	case value.KindNumber:
		return value.Number(c.numbers[idx])
	case value.KindBoolean:
		return value.Bool(c.numbers[idx] != 0)
	case value.KindError:
		return value.Error(value.ErrorKind(c.numbers[idx]))
	case value.KindText:
		s, _ := w.strings.Lookup(c.stringIDs[idx])
		return value.Text(s)
	case value.KindArray, value.KindReference:
		return c.others[idx]
	}
	return value.Blank()
}

// SetValue stores a cell value. Blank clears the value but keeps a formula.
func (w *Worksheet) SetValue(row, col int, v value.Value) {
	if !w.inBounds(row, col) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if v.IsBlank() {
		key, idx := locate(row, col)
		if c, ok := w.chunks[key]; ok {
			w.clearValue(c, idx)
			w.settle(key, c, idx)
		}
		return
	}

	key, c, idx := w.slot(row, col)
	w.clearValue(c, idx)
	switch v.Kind() {
	case value.KindNumber, value.KindBoolean, value.KindError:
		if c.numbers == nil {
			c.numbers = make([]float64, ChunkSize)
		}
		switch v.Kind() {
		case value.KindNumber:
			c.numbers[idx] = v.Number()
		case value.KindBoolean:
			c.numbers[idx] = 0
			if v.Bool() {
				c.numbers[idx] = 1
			}
		default:
			c.numbers[idx] = float64(v.Err())
		}
	case value.KindText:
		if c.stringIDs == nil {
			c.stringIDs = make([]uint32, ChunkSize)
		}
		c.stringIDs[idx] = w.strings.Intern(v.Text())
	default:
		if c.others == nil {
			c.others = make(map[int]value.Value)
		}
		c.others[idx] = v
	}
	c.kinds[idx] = uint8(v.Kind())
	w.settle(key, c, idx)
}

func (w *Worksheet) clearValue(c *chunk, idx int) {
	switch value.Kind(c.kinds[idx]) {
	case value.KindText:
		w.strings.Release(c.stringIDs[idx])
		c.stringIDs[idx] = 0
	case value.KindArray, value.KindReference:
		delete(c.others, idx)
	}
	c.kinds[idx] = uint8(value.KindBlank)
}

func (w *Worksheet) FormulaText(row, col int) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, idx, ok := w.find(row, col)
	if !ok || c.formulaIDs == nil || c.formulaIDs[idx] == 0 {
		return ""
	}
	s, _ := w.strings.Lookup(c.formulaIDs[idx])
	return s
}

// SetFormulaText stores formula text. empty text removes the formula and
// its parsed expression; the value is kept.
func (w *Worksheet) SetFormulaText(row, col int, text string) {
	if !w.inBounds(row, col) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if text == "" {
		key, idx := locate(row, col)
		c, ok := w.chunks[key]
		if !ok || c.formulaIDs == nil || c.formulaIDs[idx] == 0 {
			return
		}
		w.strings.Release(c.formulaIDs[idx])
		c.formulaIDs[idx] = 0
		if c.exprs != nil {
			c.exprs[idx] = nil
		}
		w.settle(key, c, idx)
		return
	}

	key, c, idx := w.slot(row, col)
	if c.formulaIDs == nil {
		c.formulaIDs = make([]uint32, ChunkSize)
	}
	// intern before releasing so an unchanged text keeps its ID
	id := w.strings.Intern(text)
	if old := c.formulaIDs[idx]; old != 0 {
		w.strings.Release(old)
	}
	c.formulaIDs[idx] = id
	w.settle(key, c, idx)
}

func (w *Worksheet) Expression(row, col int) ast.Expr {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, idx, ok := w.find(row, col)
	if !ok || c.exprs == nil {
		return nil
	}
	return c.exprs[idx]
}

// SetExpression caches the parsed form of a cell's formula. cells without
// formula text ignore it.
func (w *Worksheet) SetExpression(row, col int, expr ast.Expr) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, idx, ok := w.find(row, col)
	if !ok || c.formulaIDs == nil || c.formulaIDs[idx] == 0 {
		return
	}
	if c.exprs == nil {
		if expr == nil {
			return
		}
		c.exprs = make([]ast.Expr, ChunkSize)
	}
	c.exprs[idx] = expr
}

// ClearCell removes the value and formula of a cell.
func (w *Worksheet) ClearCell(row, col int) {
	w.SetFormulaText(row, col, "")
	w.SetValue(row, col, value.Blank())
}

// FormulaCells lists the cells holding formula text in row-major order.
func (w *Worksheet) FormulaCells() []value.CellAddress {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []value.CellAddress
	for key, c := range w.chunks {
		if c.formulaIDs == nil {
			continue
		}
		for idx, id := range c.formulaIDs {
			if id != 0 {
				row, col := key.address(idx)
				out = append(out, value.Cell(w.name, row, col))
			}
		}
	}
	slices.SortFunc(out, compareCells)
	return out
}

// Cells iterates the occupied cells in row-major order.
func (w *Worksheet) Cells() []value.CellAddress {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []value.CellAddress
	for key, c := range w.chunks {
		for word, bits := range c.occupied {
			for bit := 0; bits != 0; bit++ {
				if bits&1 != 0 {
					row, col := key.address(word*64 + bit)
					out = append(out, value.Cell(w.name, row, col))
				}
				bits >>= 1
			}
		}
	}
	slices.SortFunc(out, compareCells)
	return out
}

// UsedRange is the smallest rectangle holding every occupied cell.
func (w *Worksheet) UsedRange() (value.RangeAddress, bool) {
	cells := w.Cells()
	if len(cells) == 0 {
		return value.RangeAddress{}, false
	}
	r := value.SingleCell(cells[0])
	for _, c := range cells[1:] {
		r = r.Bounding(value.SingleCell(c))
	}
	return r, true
}

// CellCount returns the number of occupied cells.
func (w *Worksheet) CellCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	total := 0
	for _, c := range w.chunks {
		total += c.count
	}
	return total
}

func compareCells(a, b value.CellAddress) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}

func (w *Worksheet) record(c *chunk, idx int, row, col int) cellRecord {
	rec := cellRecord{row: row, col: col, kind: c.kinds[idx]}
	switch value.Kind(rec.kind) {
	case value.KindNumber, value.KindBoolean, value.KindError:
		rec.number = c.numbers[idx]
	case value.KindText:
		rec.stringID = c.stringIDs[idx]
	case value.KindArray, value.KindReference:
		rec.other = c.others[idx]
	}
	if c.formulaIDs != nil {
		rec.formulaID = c.formulaIDs[idx]
	}
	if c.exprs != nil {
		rec.expr = c.exprs[idx]
	}
	return rec
}

// place writes a record into empty storage, taking over its string IDs
func (w *Worksheet) place(rec cellRecord) {
	key, c, idx := w.slot(rec.row, rec.col)
	c.kinds[idx] = rec.kind
	switch value.Kind(rec.kind) {
	case value.KindNumber, value.KindBoolean, value.KindError:
		if c.numbers == nil {
			c.numbers = make([]float64, ChunkSize)
		}
		c.numbers[idx] = rec.number
	case value.KindText:
		if c.stringIDs == nil {
			c.stringIDs = make([]uint32, ChunkSize)
		}
		c.stringIDs[idx] = rec.stringID
	case value.KindArray, value.KindReference:
		if c.others == nil {
			c.others = make(map[int]value.Value)
		}
		c.others[idx] = rec.other
	}
	if rec.formulaID != 0 {
		if c.formulaIDs == nil {
			c.formulaIDs = make([]uint32, ChunkSize)
		}
		c.formulaIDs[idx] = rec.formulaID
	}
	if rec.expr != nil {
		if c.exprs == nil {
			c.exprs = make([]ast.Expr, ChunkSize)
		}
		c.exprs[idx] = rec.expr
	}
	w.settle(key, c, idx)
}

func (w *Worksheet) release(rec cellRecord) {
	if value.Kind(rec.kind) == value.KindText {
		w.strings.Release(rec.stringID)
	}
	if rec.formulaID != 0 {
		w.strings.Release(rec.formulaID)
	}
}

// shift moves every cell through a row or column edit. cells in a deleted
// band or pushed off the sheet are dropped.
func (w *Worksheet) shift(t ast.Transform) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var records []cellRecord
	for key, c := range w.chunks {
		for word, bits := range c.occupied {
			for bit := 0; bits != 0; bit++ {
				if bits&1 != 0 {
					idx := word*64 + bit
					row, col := key.address(idx)
					records = append(records, w.record(c, idx, row, col))
				}
				bits >>= 1
			}
		}
	}

	w.chunks = make(map[chunkKey]*chunk)
	for _, rec := range records {
		addr, ok := t.MapAddress(value.Cell(w.name, rec.row, rec.col))
		if !ok || !w.inBounds(addr.Row, addr.Column) {
			w.release(rec)
			continue
		}
		rec.row, rec.col = addr.Row, addr.Column
		w.place(rec)
	}
}

func (w *Worksheet) rename(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.name = name
}

// dispose releases every interned string the sheet holds
func (w *Worksheet) dispose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, c := range w.chunks {
		for word, bits := range c.occupied {
			for bit := 0; bits != 0; bit++ {
				if bits&1 != 0 {
					idx := word*64 + bit
					row, col := key.address(idx)
					w.release(w.record(c, idx, row, col))
				}
				bits >>= 1
			}
		}
	}
	w.chunks = make(map[chunkKey]*chunk)
}
