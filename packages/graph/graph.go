// Package graph tracks which cells feed which formulas and derives the
// order formulas must be recalculated in.
package graph

import (
	"cmp"
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

type CellAddress = value.CellAddress

// ScopeKey names a defined name in one scope. an empty Sheet is the
// workbook scope. Name is upper-cased.
type ScopeKey struct {
	Sheet string
	Name  string
}

// Scope answers what references and names point at while a formula's
// dependencies are collected.
type Scope interface {
	ast.SheetResolver
	Table(name string) (value.Table, bool)
	LookupSheetName(sheet, name string) (ast.Expr, bool)
	LookupWorkbookName(name string) (ast.Expr, bool)
}

// DependencyGraph manages cell dependencies and calculation order. it is
// not safe for concurrent mutation; callers serialize writes.
type DependencyGraph struct {
	formulas         sets.Set[CellAddress]
	dependencies     map[CellAddress]sets.Set[CellAddress] // formula cell -> cells it reads
	dependents       map[CellAddress]sets.Set[CellAddress] // cell -> formula cells reading it
	nameDependencies map[CellAddress]sets.Set[ScopeKey]
	nameDependents   map[ScopeKey]sets.Set[CellAddress]

	// spill members are ordered after their anchor
	spillMembers map[CellAddress]sets.Set[CellAddress]
	spillAnchor  map[CellAddress]CellAddress

	volatileCells sets.Set[CellAddress]
}

// NewDependencyGraph creates an empty dependency graph
func NewDependencyGraph() *DependencyGraph {
	dg := &DependencyGraph{}
	dg.Clear()
	return dg
}

// Clear removes all nodes and dependencies from the graph
func (dg *DependencyGraph) Clear() {
	dg.formulas = sets.New[CellAddress]()
	dg.dependencies = make(map[CellAddress]sets.Set[CellAddress])
	dg.dependents = make(map[CellAddress]sets.Set[CellAddress])
	dg.nameDependencies = make(map[CellAddress]sets.Set[ScopeKey])
	dg.nameDependents = make(map[ScopeKey]sets.Set[CellAddress])
	dg.spillMembers = make(map[CellAddress]sets.Set[CellAddress])
	dg.spillAnchor = make(map[CellAddress]CellAddress)
	dg.volatileCells = sets.New[CellAddress]()
}

// SetFormula replaces the outgoing edges of cell with the references and
// names expr uses. cells that already depend on cell keep their edges.
func (dg *DependencyGraph) SetFormula(cell CellAddress, expr ast.Expr, scope Scope) {
	dg.clearOutgoing(cell)
	dg.formulas.Insert(cell)

	c := &collector{
		scope:   scope,
		at:      cell,
		cells:   sets.New[CellAddress](),
		names:   sets.New[ScopeKey](),
		visited: sets.New[ScopeKey](),
	}
	c.walk(expr)

	for dep := range c.cells {
		dg.addCellDependency(cell, dep)
	}
	for key := range c.names {
		dg.addNameDependency(cell, key)
	}
}

// ClearFormula removes cell as a formula: its outgoing edges and volatile
// mark go away, edges from formulas reading it stay.
func (dg *DependencyGraph) ClearFormula(cell CellAddress) {
	dg.clearOutgoing(cell)
	dg.formulas.Delete(cell)
	dg.volatileCells.Delete(cell)
}

func (dg *DependencyGraph) clearOutgoing(cell CellAddress) {
	for dep := range dg.dependencies[cell] {
		if set, ok := dg.dependents[dep]; ok {
			set.Delete(cell)
			if set.Len() == 0 {
				delete(dg.dependents, dep)
			}
		}
	}
	delete(dg.dependencies, cell)

	for key := range dg.nameDependencies[cell] {
		if set, ok := dg.nameDependents[key]; ok {
			set.Delete(cell)
			if set.Len() == 0 {
				delete(dg.nameDependents, key)
			}
		}
	}
	delete(dg.nameDependencies, cell)
}

// addCellDependency records that from reads to
func (dg *DependencyGraph) addCellDependency(from, to CellAddress) {
	if dg.dependencies[from] == nil {
		dg.dependencies[from] = sets.New[CellAddress]()
	}
	dg.dependencies[from].Insert(to)
	if dg.dependents[to] == nil {
		dg.dependents[to] = sets.New[CellAddress]()
	}
	dg.dependents[to].Insert(from)
}

func (dg *DependencyGraph) addNameDependency(from CellAddress, key ScopeKey) {
	if dg.nameDependencies[from] == nil {
		dg.nameDependencies[from] = sets.New[ScopeKey]()
	}
	dg.nameDependencies[from].Insert(key)
	if dg.nameDependents[key] == nil {
		dg.nameDependents[key] = sets.New[CellAddress]()
	}
	dg.nameDependents[key].Insert(from)
}

// HasFormula reports whether cell was registered with SetFormula
func (dg *DependencyGraph) HasFormula(cell CellAddress) bool {
	return dg.formulas.Has(cell)
}

// FormulaCells returns every formula cell in address order
func (dg *DependencyGraph) FormulaCells() []CellAddress {
	return sorted(dg.formulas)
}

// GetDirectPrecedents returns cells this cell directly depends on
func (dg *DependencyGraph) GetDirectPrecedents(cell CellAddress) []CellAddress {
	return sorted(dg.dependencies[cell])
}

// GetDirectDependents returns cells directly depending on this cell
func (dg *DependencyGraph) GetDirectDependents(cell CellAddress) []CellAddress {
	return sorted(dg.dependents[cell])
}

// GetAllDependents returns all cells affected by this cell (transitive
// closure, excluding the cell itself unless it is on a cycle)
func (dg *DependencyGraph) GetAllDependents(cell CellAddress) []CellAddress {
	seen := sets.New[CellAddress]()
	queue := []CellAddress{cell}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for dep := range dg.successors(next) {
			if !seen.Has(dep) {
				seen.Insert(dep)
				queue = append(queue, dep)
			}
		}
	}
	return sorted(seen)
}

// GetNameDependencies returns the name scopes a formula cell reads
func (dg *DependencyGraph) GetNameDependencies(cell CellAddress) []ScopeKey {
	out := dg.nameDependencies[cell].UnsortedList()
	slices.SortFunc(out, func(a, b ScopeKey) int {
		return cmp.Or(cmp.Compare(a.Sheet, b.Sheet), cmp.Compare(a.Name, b.Name))
	})
	return out
}

// GetNameDependents returns formula cells that use name in the given
// scope, including cells where the name did not resolve
func (dg *DependencyGraph) GetNameDependents(key ScopeKey) []CellAddress {
	key.Name = strings.ToUpper(key.Name)
	return sorted(dg.nameDependents[key])
}

// SetSpill records the cells an anchor's array result occupies so that
// readers of those cells are ordered after the anchor.
func (dg *DependencyGraph) SetSpill(anchor CellAddress, members []CellAddress) {
	dg.ClearSpill(anchor)
	set := sets.New[CellAddress]()
	for _, m := range members {
		if m == anchor {
			continue
		}
		set.Insert(m)
		dg.spillAnchor[m] = anchor
	}
	if set.Len() > 0 {
		dg.spillMembers[anchor] = set
	}
}

// ClearSpill drops the spill edges of an anchor
func (dg *DependencyGraph) ClearSpill(anchor CellAddress) {
	for m := range dg.spillMembers[anchor] {
		if dg.spillAnchor[m] == anchor {
			delete(dg.spillAnchor, m)
		}
	}
	delete(dg.spillMembers, anchor)
}

// ClearSpills drops every spill edge
func (dg *DependencyGraph) ClearSpills() {
	dg.spillMembers = make(map[CellAddress]sets.Set[CellAddress])
	dg.spillAnchor = make(map[CellAddress]CellAddress)
}

// MarkVolatile marks a cell as containing volatile functions
func (dg *DependencyGraph) MarkVolatile(cell CellAddress) {
	dg.volatileCells.Insert(cell)
}

// UnmarkVolatile removes volatile marking from a cell
func (dg *DependencyGraph) UnmarkVolatile(cell CellAddress) {
	dg.volatileCells.Delete(cell)
}

// IsVolatile checks if a cell contains volatile functions
func (dg *DependencyGraph) IsVolatile(cell CellAddress) bool {
	return dg.volatileCells.Has(cell)
}

// GetVolatileCells returns all cells marked as volatile
func (dg *DependencyGraph) GetVolatileCells() []CellAddress {
	return sorted(dg.volatileCells)
}

// successors are the cells that must be recalculated after cell
func (dg *DependencyGraph) successors(cell CellAddress) sets.Set[CellAddress] {
	members, ok := dg.spillMembers[cell]
	if !ok {
		return dg.dependents[cell]
	}
	return members.Union(dg.dependents[cell])
}

// predecessors are the cells that must be recalculated before cell
func (dg *DependencyGraph) predecessors(cell CellAddress) sets.Set[CellAddress] {
	anchor, ok := dg.spillAnchor[cell]
	if !ok {
		return dg.dependencies[cell]
	}
	out := sets.New(anchor)
	if deps, ok := dg.dependencies[cell]; ok {
		out = out.Union(deps)
	}
	return out
}

// CompareAddresses orders cells by sheet, row, then column
func CompareAddresses(a, b CellAddress) int {
	return cmp.Or(cmp.Compare(a.Sheet, b.Sheet), cmp.Compare(a.Row, b.Row), cmp.Compare(a.Column, b.Column))
}

func sorted(s sets.Set[CellAddress]) []CellAddress {
	out := s.UnsortedList()
	slices.SortFunc(out, CompareAddresses)
	return out
}
