package engine

import (
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// formulaEntry is one parsed formula shared by every cell holding the same
// text. sharing the tree lets the compile cache build one program for all
// of them.
type formulaEntry struct {
	text  string
	expr  ast.Expr
	cells sets.Set[value.CellAddress]
}

// formulaTable deduplicates parsed formulas by their text and tracks which
// cells use each one.
type formulaTable struct {
	byText map[string]*formulaEntry
	byCell map[value.CellAddress]*formulaEntry
}

func newFormulaTable() *formulaTable {
	ft := &formulaTable{}
	ft.reset()
	return ft
}

func (ft *formulaTable) reset() {
	ft.byText = make(map[string]*formulaEntry)
	ft.byCell = make(map[value.CellAddress]*formulaEntry)
}

// lookup returns the tree already parsed for text
func (ft *formulaTable) lookup(text string) (ast.Expr, bool) {
	entry, ok := ft.byText[text]
	if !ok {
		return nil, false
	}
	return entry.expr, true
}

// attach records that cell holds expr. shared entries are indexed by text
// so later cells with the same text skip parsing; private ones are not,
// for trees whose text no longer describes them.
func (ft *formulaTable) attach(cell value.CellAddress, text string, expr ast.Expr, shared bool) {
	ft.release(cell)
	entry, ok := ft.byText[text]
	if !shared || !ok || entry.expr != expr {
		entry = &formulaEntry{text: text, expr: expr, cells: sets.New[value.CellAddress]()}
		if shared && !ok {
			ft.byText[text] = entry
		}
	}
	entry.cells.Insert(cell)
	ft.byCell[cell] = entry
}

// release detaches cell from its formula. dropped reports that no other
// cell uses the tree, so its compiled program can go too.
func (ft *formulaTable) release(cell value.CellAddress) (expr ast.Expr, dropped bool) {
	entry, ok := ft.byCell[cell]
	if !ok {
		return nil, false
	}
	delete(ft.byCell, cell)
	entry.cells.Delete(cell)
	if entry.cells.Len() > 0 {
		return entry.expr, false
	}
	if ft.byText[entry.text] == entry {
		delete(ft.byText, entry.text)
	}
	return entry.expr, true
}

// expression returns the tree attached to cell
func (ft *formulaTable) expression(cell value.CellAddress) (ast.Expr, bool) {
	entry, ok := ft.byCell[cell]
	if !ok {
		return nil, false
	}
	return entry.expr, true
}

// users returns how many cells share the formula text
func (ft *formulaTable) users(text string) int {
	if entry, ok := ft.byText[text]; ok {
		return entry.cells.Len()
	}
	return 0
}

// distinct returns the number of shared formula texts
func (ft *formulaTable) distinct() int { return len(ft.byText) }

func (ft *formulaTable) cells() int { return len(ft.byCell) }
