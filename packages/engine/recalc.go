package engine

import (
	"math"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/vogtb/go-spreadsheet/packages/eval"
	"github.com/vogtb/go-spreadsheet/packages/graph"
	"github.com/vogtb/go-spreadsheet/packages/host"
	"github.com/vogtb/go-spreadsheet/packages/observe"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// maxSpillPasses bounds the follow-up passes that reach readers of cells a
// spill covered for the first time
const maxSpillPasses = 16

// Result describes one recalculation.
type Result struct {
	// Order lists the evaluated cells in evaluation order; with leveled
	// planning it is the levels concatenated.
	Order  []value.CellAddress
	Levels [][]value.CellAddress
	// Cycle holds the cells that could not be ordered: cycle members and
	// the cells downstream of them.
	Cycle []value.CellAddress
	// Iterations and Converged report iterative cycle resolution.
	Iterations int
	Converged  bool
	Spills     int
	Duration   time.Duration
}

// HasCycle reports whether the recalculation met a circular reference.
func (r Result) HasCycle() bool { return len(r.Cycle) > 0 }

// Recalculate evaluates the dirty cells, every volatile cell and
// everything depending on them.
func (e *Engine) Recalculate(dirty []value.CellAddress) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recalculate(dirty, false)
}

// RecalculateIfAutomatic is Recalculate with volatile cells and queued
// formula edits limited to sheets in automatic mode. the given dirty cells
// and their dependents are always evaluated; queued edits on manual sheets
// wait for the next Recalculate.
func (e *Engine) RecalculateIfAutomatic(dirty []value.CellAddress) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recalculate(dirty, true)
}

func (e *Engine) automatic(cell value.CellAddress) bool {
	return e.scope.calculationMode(cell.Sheet) == host.Automatic
}

func (e *Engine) recalculate(dirty []value.CellAddress, onlyAutomatic bool) Result {
	start := e.clock.Now()

	// caller dirty cells always seed the pass. the mode only holds back
	// volatile cells and formula edits queued on manual sheets.
	seeds := sets.New[value.CellAddress]()
	for _, cell := range dirty {
		if cell, ok := e.canonical(cell); ok {
			seeds.Insert(cell)
			e.pending.Delete(cell)
		}
	}
	for _, cell := range e.pending.UnsortedList() {
		if onlyAutomatic && !e.automatic(cell) {
			continue
		}
		seeds.Insert(cell)
		e.pending.Delete(cell)
	}
	for _, cell := range e.graph.GetVolatileCells() {
		if !onlyAutomatic || e.automatic(cell) {
			seeds.Insert(cell)
		}
	}

	var result Result
	if seeds.Len() == 0 {
		return result
	}
	e.spills.drain()
	e.pass(e.expandSpills(seeds), &result)

	for i := 0; i < maxSpillPasses; i++ {
		fresh, count := e.spills.drain()
		result.Spills += count
		if len(fresh) == 0 {
			break
		}
		e.pass(fresh, &result)
	}

	result.Duration = e.clock.Since(start)
	levels := len(result.Levels)
	if !e.settings.Leveled && len(result.Order) > 0 {
		levels = 1
	}
	e.observer.ObserveRecalculate(observe.RecalcStats{
		Cells:      len(result.Order),
		Levels:     levels,
		CycleCells: len(result.Cycle),
		Spills:     result.Spills,
	}, result.Duration)
	e.log.V(1).Info("recalculated",
		"cells", len(result.Order),
		"levels", levels,
		"cycleCells", len(result.Cycle),
		"spills", result.Spills,
		"duration", result.Duration)
	return result
}

// expandSpills adds the cells tied to dirty cells through spills: members
// of a dirty anchor, the anchor of a dirty member and anchors blocked by a
// dirty cell
func (e *Engine) expandSpills(seeds sets.Set[value.CellAddress]) []value.CellAddress {
	out := seeds.Clone()
	for cell := range seeds {
		out.Insert(e.spills.related(cell)...)
	}
	list := out.UnsortedList()
	slices.SortFunc(list, graph.CompareAddresses)
	return list
}

// pass plans and evaluates one recalculation over dirty
func (e *Engine) pass(dirty []value.CellAddress, result *Result) {
	var plan graph.Plan
	if e.settings.Leveled {
		plan = e.graph.RecalculationLevels(dirty)
		for _, level := range plan.Levels {
			e.evaluateLevel(level)
			result.Order = append(result.Order, level...)
		}
		result.Levels = append(result.Levels, plan.Levels...)
	} else {
		plan = e.graph.RecalculationOrder(dirty)
		for _, cell := range plan.Order {
			e.evaluate(e.evaluators[0], cell)
		}
		result.Order = append(result.Order, plan.Order...)
	}

	if !plan.HasCycle() {
		return
	}
	result.Cycle = append(result.Cycle, plan.Cycle...)
	if e.settings.Iterative {
		result.Iterations, result.Converged = e.iterate(plan.Cycle)
		e.log.V(1).Info("iterated cycle", "cells", len(plan.Cycle),
			"iterations", result.Iterations, "converged", result.Converged)
		return
	}
	e.stampCircular(plan.Cycle)
}

// evaluateLevel runs the cells of one level on the worker pool. each
// worker owns an evaluator; the level is a barrier.
func (e *Engine) evaluateLevel(level []value.CellAddress) {
	workers := min(len(e.evaluators), len(level))
	if workers <= 1 {
		for _, cell := range level {
			e.evaluate(e.evaluators[0], cell)
		}
		return
	}

	var (
		g    errgroup.Group
		next atomic.Int64
	)
	for w := 0; w < workers; w++ {
		ev := e.evaluators[w]
		g.Go(func() error {
			for {
				i := int(next.Add(1)) - 1
				if i >= len(level) {
					return nil
				}
				e.evaluate(ev, level[i])
			}
		})
	}
	_ = g.Wait()
}

// evaluate computes one formula cell and stores the result. cells without
// a formula are inputs and are left alone.
func (e *Engine) evaluate(ev *eval.Evaluator, cell value.CellAddress) value.Value {
	ws, ok := e.workbook.Worksheet(cell.Sheet)
	if !ok {
		return value.Blank()
	}
	expr := ws.Expression(cell.Row, cell.Column)
	if expr == nil {
		return ws.Value(cell.Row, cell.Column)
	}
	env := &eval.Env{Cell: cell, Resolver: e.scope, NumberFormat: e.format}
	start := e.clock.Now()
	result := ev.Evaluate(expr, env)
	e.observer.ObserveEvaluate(e.clock.Since(start), result)
	return e.store(ws, cell, result)
}

// stampCircular marks every unresolved cell with #CIRC!
func (e *Engine) stampCircular(cycle []value.CellAddress) {
	for _, cell := range cycle {
		ws, ok := e.workbook.Worksheet(cell.Sheet)
		if !ok || ws.Expression(cell.Row, cell.Column) == nil {
			continue
		}
		e.clearSpillLocked(ws, cell)
		ws.SetValue(cell.Row, cell.Column, value.Error(value.ErrorCirc))
	}
	e.log.V(1).Info("circular reference", "cells", len(cycle))
}

// iterate re-evaluates the cycle in address order, each pass reading the
// values the previous cells of the same pass produced, until the largest
// change is within tolerance or the iteration budget runs out
func (e *Engine) iterate(cycle []value.CellAddress) (iterations int, converged bool) {
	ev := e.evaluators[0]
	previous := make([]value.Value, len(cycle))
	for i, cell := range cycle {
		previous[i] = e.scope.CellValue(cell)
	}
	for iterations < e.settings.MaxIterations {
		iterations++
		largest := 0.0
		for i, cell := range cycle {
			v := e.evaluate(ev, cell)
			largest = max(largest, delta(previous[i], v))
			previous[i] = v
		}
		if largest <= e.settings.Tolerance {
			return iterations, true
		}
	}
	return iterations, false
}

// delta is the change between two successive values of a cycle cell. only
// numbers converge; any other change is infinitely large.
func delta(prev, next value.Value) float64 {
	if prev.IsNumber() && next.IsNumber() {
		d := math.Abs(next.Number() - prev.Number())
		if math.IsNaN(d) {
			return math.Inf(1)
		}
		return d
	}
	if prev.Equal(next) {
		return 0
	}
	return math.Inf(1)
}
