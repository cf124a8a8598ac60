package engine

import (
	"sync"

	"github.com/vogtb/go-spreadsheet/packages/host"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// spillState tracks which anchor owns which spilled cells. level workers
// spill concurrently, so the maps and the graph's spill edges are only
// touched with mu held.
type spillState struct {
	mu      sync.Mutex
	ranges  map[value.CellAddress]value.RangeAddress // anchor -> spill rectangle
	owners  map[value.CellAddress]value.CellAddress  // member -> anchor
	blocked map[value.CellAddress]value.RangeAddress // anchor -> rectangle it could not take
	fresh   []value.CellAddress                      // members first written this pass
	count   int                                      // spills written this pass
}

func newSpillState() *spillState {
	s := &spillState{}
	s.reset()
	return s
}

func (s *spillState) reset() {
	s.ranges = make(map[value.CellAddress]value.RangeAddress)
	s.owners = make(map[value.CellAddress]value.CellAddress)
	s.blocked = make(map[value.CellAddress]value.RangeAddress)
	s.fresh = nil
	s.count = 0
}

// disown removes a member from its anchor's spill
func (s *spillState) disown(cell value.CellAddress) (value.CellAddress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	anchor, ok := s.owners[cell]
	if ok {
		delete(s.owners, cell)
	}
	return anchor, ok
}

func (s *spillState) unblock(anchor value.CellAddress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocked, anchor)
}

// drain returns and forgets the pass counters
func (s *spillState) drain() (fresh []value.CellAddress, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh, count = s.fresh, s.count
	s.fresh, s.count = nil, 0
	return fresh, count
}

// related returns the anchors and members a dirty cell drags into a
// recalculation: the members of an anchor, the anchor of a member and any
// anchor whose blocked rectangle holds the cell
func (s *spillState) related(cell value.CellAddress) []value.CellAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []value.CellAddress
	if r, ok := s.ranges[cell]; ok {
		for m := range r.Cells() {
			if m != cell && s.owners[m] == cell {
				out = append(out, m)
			}
		}
	}
	if anchor, ok := s.owners[cell]; ok {
		out = append(out, anchor)
	}
	for anchor, r := range s.blocked {
		if anchor != cell && r.Contains(cell) {
			out = append(out, anchor)
		}
	}
	return out
}

// SpillRange returns the rectangle an anchor's array result occupies.
func (e *Engine) SpillRange(anchor value.CellAddress) (value.RangeAddress, bool) {
	anchor, _ = e.canonical(anchor)
	e.spills.mu.Lock()
	defer e.spills.mu.Unlock()
	r, ok := e.spills.ranges[anchor]
	return r, ok
}

// SpillOwner returns the anchor whose array result fills cell.
func (e *Engine) SpillOwner(cell value.CellAddress) (value.CellAddress, bool) {
	cell, _ = e.canonical(cell)
	e.spills.mu.Lock()
	defer e.spills.mu.Unlock()
	anchor, ok := e.spills.owners[cell]
	return anchor, ok
}

// store writes an evaluation result into its cell. arrays spill when
// dynamic arrays are on and are otherwise reduced to the element in line
// with the cell. it runs on level workers; cells it blanks were planned
// after the anchor through the old spill edges.
func (e *Engine) store(ws host.Worksheet, addr value.CellAddress, result value.Value) value.Value {
	if !result.IsArray() {
		e.clearSpillLocked(ws, addr)
		ws.SetValue(addr.Row, addr.Column, result)
		return result
	}
	if !e.settings.DynamicArrays {
		e.clearSpillLocked(ws, addr)
		v := value.ImplicitIntersection(result, addr)
		ws.SetValue(addr.Row, addr.Column, v)
		return v
	}
	arr := result.Array()
	if arr.IsSingle() {
		e.clearSpillLocked(ws, addr)
		v := arr.At(0, 0)
		ws.SetValue(addr.Row, addr.Column, v)
		return v
	}
	v := e.spill(ws, addr, arr)
	ws.SetValue(addr.Row, addr.Column, v)
	return v
}

// spill claims the rectangle below and right of anchor for arr. the whole
// spill is refused with #SPILL! when it leaves the sheet or meets a
// formula, a value or another anchor's spill.
func (e *Engine) spill(ws host.Worksheet, anchor value.CellAddress, arr *value.Array) value.Value {
	s := e.spills
	s.mu.Lock()
	defer s.mu.Unlock()

	rect := value.NewRange(anchor, anchor.Offset(arr.Rows()-1, arr.Columns()-1))
	rows, cols := ws.Size()
	blocked := rect.End.Row > rows || rect.End.Column > cols
	for cell := range rect.Cells() {
		if blocked {
			break
		}
		if cell == anchor {
			continue
		}
		if owner, ok := s.owners[cell]; ok {
			blocked = owner != anchor
			continue
		}
		blocked = ws.FormulaText(cell.Row, cell.Column) != "" || !ws.Value(cell.Row, cell.Column).IsBlank()
	}

	old, hadOld := s.ranges[anchor]
	if blocked {
		e.releaseMembers(ws, anchor, old, hadOld, nil)
		s.blocked[anchor] = rect
		return value.Error(value.ErrorSpill)
	}
	delete(s.blocked, anchor)
	e.releaseMembers(ws, anchor, old, hadOld, &rect)

	members := make([]value.CellAddress, 0, rect.Rows()*rect.Columns()-1)
	for cell := range rect.Cells() {
		if cell == anchor {
			continue
		}
		if s.owners[cell] != anchor {
			s.fresh = append(s.fresh, cell)
		}
		s.owners[cell] = anchor
		members = append(members, cell)
		r, c := cell.Row-anchor.Row, cell.Column-anchor.Column
		v := value.Blank()
		if arr.Present(r, c) {
			v = arr.At(r, c)
		}
		ws.SetValue(cell.Row, cell.Column, v)
	}
	s.ranges[anchor] = rect
	e.graph.SetSpill(anchor, members)
	s.count++
	return arr.At(0, 0)
}

// releaseMembers blanks the cells of an anchor's previous spill that keep
// is not going to cover again. s.mu must be held.
func (e *Engine) releaseMembers(ws host.Worksheet, anchor value.CellAddress, old value.RangeAddress, hadOld bool, keep *value.RangeAddress) []value.CellAddress {
	s := e.spills
	if !hadOld {
		return nil
	}
	var released []value.CellAddress
	for cell := range old.Cells() {
		if cell == anchor || s.owners[cell] != anchor {
			continue
		}
		if keep != nil && keep.Contains(cell) {
			continue
		}
		delete(s.owners, cell)
		ws.SetValue(cell.Row, cell.Column, value.Blank())
		released = append(released, cell)
	}
	if keep == nil {
		delete(s.ranges, anchor)
		e.graph.ClearSpill(anchor)
	}
	return released
}

// clearSpillLocked drops an anchor's spill, returning the blanked cells
func (e *Engine) clearSpillLocked(ws host.Worksheet, anchor value.CellAddress) []value.CellAddress {
	s := e.spills
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocked, anchor)
	old, ok := s.ranges[anchor]
	return e.releaseMembers(ws, anchor, old, ok, nil)
}

// clearSpill is clearSpillLocked for callers outside a recalculation
func (e *Engine) clearSpill(anchor value.CellAddress) []value.CellAddress {
	ws, ok := e.workbook.Worksheet(anchor.Sheet)
	if !ok {
		return nil
	}
	return e.clearSpillLocked(ws, anchor)
}

// clearSpills blanks every spilled cell and forgets all ownership. the
// anchors are re-evaluated by the next recalculation.
func (e *Engine) clearSpills() {
	s := e.spills
	s.mu.Lock()
	anchors := make([]value.CellAddress, 0, len(s.ranges))
	for anchor := range s.ranges {
		anchors = append(anchors, anchor)
	}
	for anchor := range s.blocked {
		anchors = append(anchors, anchor)
	}
	for member := range s.owners {
		if ws, ok := e.workbook.Worksheet(member.Sheet); ok {
			ws.SetValue(member.Row, member.Column, value.Blank())
		}
	}
	s.reset()
	e.graph.ClearSpills()
	s.mu.Unlock()

	e.pending.Insert(anchors...)
}
