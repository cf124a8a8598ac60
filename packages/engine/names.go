package engine

import (
	"github.com/vogtb/go-spreadsheet/packages/graph"
	"github.com/vogtb/go-spreadsheet/packages/host"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// SubscribeNames relinks and recalculates the formulas using a defined
// name whenever the name is defined, changed or removed in the workbook or
// in any current sheet. the returned func ends the subscriptions.
func (e *Engine) SubscribeNames() (cancel func()) {
	cancels := []func(){
		e.workbook.Names().Subscribe(func(name string) {
			e.RelinkName("", name)
		}),
	}
	for _, ws := range e.workbook.Worksheets() {
		cancels = append(cancels, ws.Names().Subscribe(func(name string) {
			e.relinkSheetName(ws, name)
		}))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

func (e *Engine) relinkSheetName(ws host.Worksheet, name string) {
	e.RelinkName(ws.Name(), name)
}

// RelinkName refreshes the dependencies of every formula using name in
// the given scope (empty sheet for the workbook) and recalculates them
// when their sheets are in automatic mode.
func (e *Engine) RelinkName(sheet, name string) Result {
	e.mu.Lock()
	if sheet != "" {
		if canonical, ok := e.scope.CanonicalSheet(sheet); ok {
			sheet = canonical
		}
	}
	cells := e.graph.GetNameDependents(graph.ScopeKey{Sheet: sheet, Name: name})
	var dirty []value.CellAddress
	for _, cell := range cells {
		if expr, ok := e.formulas.expression(cell); ok {
			e.link(cell, expr)
		}
		// formulas on manual sheets wait for the next full Recalculate
		if e.automatic(cell) {
			dirty = append(dirty, cell)
		} else {
			e.pending.Insert(cell)
		}
	}
	e.mu.Unlock()

	e.log.V(1).Info("name changed", "sheet", sheet, "name", name, "formulas", len(cells))
	return e.RecalculateIfAutomatic(dirty)
}
