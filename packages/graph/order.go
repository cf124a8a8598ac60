package graph

import (
	"slices"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Plan is the outcome of ordering a recalculation. Order is filled by
// RecalculationOrder and Levels by RecalculationLevels. Cycle holds every
// affected cell that could not be ordered: members of a cycle and the
// cells downstream of one.
type Plan struct {
	Order  []CellAddress
	Levels [][]CellAddress
	Cycle  []CellAddress
}

// HasCycle reports whether any affected cell is caught in a cycle
func (p Plan) HasCycle() bool { return len(p.Cycle) > 0 }

// Affected returns the dirty cells together with everything that
// transitively depends on them.
func (dg *DependencyGraph) Affected(dirty []CellAddress) sets.Set[CellAddress] {
	affected := sets.New(dirty...)
	queue := slices.Clone(dirty)
	for len(queue) > 0 {
		cell := queue[0]
		queue = queue[1:]
		for next := range dg.successors(cell) {
			if !affected.Has(next) {
				affected.Insert(next)
				queue = append(queue, next)
			}
		}
	}
	return affected
}

// indegrees counts, for every affected cell, its predecessors that are
// also affected
func (dg *DependencyGraph) indegrees(affected sets.Set[CellAddress]) map[CellAddress]int {
	in := make(map[CellAddress]int, affected.Len())
	for cell := range affected {
		n := 0
		for p := range dg.predecessors(cell) {
			if affected.Has(p) {
				n++
			}
		}
		in[cell] = n
	}
	return in
}

func zeroes(in map[CellAddress]int) []CellAddress {
	var out []CellAddress
	for cell, n := range in {
		if n == 0 {
			out = append(out, cell)
		}
	}
	slices.SortFunc(out, CompareAddresses)
	return out
}

// release decrements the successors of cell and returns those that
// became ready, sorted
func (dg *DependencyGraph) release(cell CellAddress, in map[CellAddress]int) []CellAddress {
	var ready []CellAddress
	for next := range dg.successors(cell) {
		n, ok := in[next]
		if !ok {
			continue
		}
		in[next] = n - 1
		if n-1 == 0 {
			ready = append(ready, next)
		}
	}
	slices.SortFunc(ready, CompareAddresses)
	return ready
}

func residual(in map[CellAddress]int, done sets.Set[CellAddress]) []CellAddress {
	var out []CellAddress
	for cell := range in {
		if !done.Has(cell) {
			out = append(out, cell)
		}
	}
	slices.SortFunc(out, CompareAddresses)
	return out
}

// RecalculationOrder runs Kahn's algorithm over the cells affected by the
// dirty set. every cell appears after all of its affected precedents.
func (dg *DependencyGraph) RecalculationOrder(dirty []CellAddress) Plan {
	affected := dg.Affected(dirty)
	in := dg.indegrees(affected)

	var plan Plan
	done := sets.New[CellAddress]()
	queue := zeroes(in)
	for len(queue) > 0 {
		cell := queue[0]
		queue = queue[1:]
		plan.Order = append(plan.Order, cell)
		done.Insert(cell)
		queue = append(queue, dg.release(cell, in)...)
	}
	plan.Cycle = residual(in, done)
	return plan
}

// RecalculationLevels groups the affected cells into frontiers. no cell
// depends on another cell of its own level, so a level can be evaluated
// in parallel once the previous levels are done.
func (dg *DependencyGraph) RecalculationLevels(dirty []CellAddress) Plan {
	affected := dg.Affected(dirty)
	in := dg.indegrees(affected)

	var plan Plan
	done := sets.New[CellAddress]()
	frontier := zeroes(in)
	for len(frontier) > 0 {
		plan.Levels = append(plan.Levels, frontier)
		var next []CellAddress
		for _, cell := range frontier {
			done.Insert(cell)
			next = append(next, dg.release(cell, in)...)
		}
		slices.SortFunc(next, CompareAddresses)
		frontier = next
	}
	plan.Cycle = residual(in, done)
	return plan
}
