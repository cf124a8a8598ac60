// Package engine drives formula calculation over a host workbook: it keeps
// the dependency graph in step with formula edits, plans and runs
// recalculation, spills array results and rewrites formulas through
// structural edits.
package engine

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/eval"
	"github.com/vogtb/go-spreadsheet/packages/graph"
	"github.com/vogtb/go-spreadsheet/packages/host"
	"github.com/vogtb/go-spreadsheet/packages/observe"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

var (
	ErrSheetNotFound = errors.New("sheet not found")
	ErrInvalidCell   = errors.New("cell outside the sheet")
	ErrInvalidEdit   = errors.New("invalid structural edit")
)

// Engine calculates the formulas of one host workbook. all exported
// methods are safe to call from several goroutines; they are serialized so
// one recalculation owns the graph and cells for its duration.
type Engine struct {
	mu sync.Mutex

	workbook  host.Workbook
	scope     scope
	parser    ast.Parser
	registry  eval.Registry
	formatter ast.Formatter
	observer  observe.Observer
	log       logr.Logger
	clock     clock.PassiveClock
	settings  Settings
	format    value.NumberFormat

	graph      *graph.DependencyGraph
	cache      *eval.Cache
	formulas   *formulaTable
	spills     *spillState
	evaluators []*eval.Evaluator

	// cells to fold into the next recalculation: edits deferred by manual
	// mode, cells whose spill was cleared and anchors that must re-spill
	pending sets.Set[value.CellAddress]
}

// Option configures an Engine.
type Option func(*Engine)

// WithFormatter re-serializes formulas rewritten by structural edits.
// without one the stored text is left as it was.
func WithFormatter(f ast.Formatter) Option {
	return func(e *Engine) { e.formatter = f }
}

func WithObserver(o observe.Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

func WithLogger(log logr.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock sets the clock used for timings.
func WithClock(c clock.PassiveClock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// New creates an engine over wb. formulas already present in wb are not
// linked until Rebuild is called.
func New(wb host.Workbook, parser ast.Parser, registry eval.Registry, opts ...Option) (*Engine, error) {
	e := &Engine{
		workbook: wb,
		scope:    scope{workbook: wb},
		parser:   parser,
		registry: registry,
		observer: observe.Nop{},
		log:      logr.Discard(),
		clock:    clock.RealClock{},
		settings: DefaultSettings(),
		graph:    graph.NewDependencyGraph(),
		formulas: newFormulaTable(),
		spills:   newSpillState(),
		pending:  sets.New[value.CellAddress](),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	format, err := e.settings.numberFormat()
	if err != nil {
		return nil, err
	}
	e.format = format
	e.cache = eval.NewCache(e.observer, e.clock)
	e.evaluators = make([]*eval.Evaluator, e.settings.workers())
	for i := range e.evaluators {
		e.evaluators[i] = eval.NewEvaluator(registry, e.cache)
	}
	return e, nil
}

func (e *Engine) Settings() Settings { return e.settings }

func (e *Engine) Workbook() host.Workbook { return e.workbook }

// locate canonicalizes a cell address against the host
func (e *Engine) locate(sheet string, row, col int) (host.Worksheet, value.CellAddress, error) {
	ws, ok := e.workbook.Worksheet(sheet)
	if !ok {
		return nil, value.CellAddress{}, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}
	rows, cols := ws.Size()
	if row < 1 || col < 1 || row > rows || col > cols {
		return nil, value.CellAddress{}, fmt.Errorf("%w: %s", ErrInvalidCell, value.Cell(ws.Name(), row, col))
	}
	return ws, value.Cell(ws.Name(), row, col), nil
}

func (e *Engine) canonical(addr value.CellAddress) (value.CellAddress, bool) {
	sheet, ok := e.scope.CanonicalSheet(addr.Sheet)
	if !ok {
		return addr, false
	}
	addr.Sheet = sheet
	return addr, true
}

// SetCellFormula stores formula text in a cell. blank text removes the
// formula. text that does not parse returns the parse error and leaves the
// cell as it was.
func (e *Engine) SetCellFormula(sheet string, row, col int, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ws, addr, err := e.locate(sheet, row, col)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		e.detach(ws, addr)
		e.disown(addr)
		ws.SetValue(row, col, value.Blank())
		return nil
	}

	expr, err := e.parse(addr, text)
	if err != nil {
		e.log.V(1).Info("formula rejected", "cell", addr.String(), "error", err.Error())
		return err
	}
	e.disown(addr)
	e.attach(ws, addr, text, expr, e.settings.ShareFormulas)
	e.pending.Insert(addr)
	return nil
}

// disown takes a spilled cell away from its anchor, which then has to be
// evaluated again to report the conflict
func (e *Engine) disown(addr value.CellAddress) {
	if anchor, ok := e.spills.disown(addr); ok {
		e.pending.Insert(anchor)
	}
}

// parse reuses the tree of an identical formula when sharing is enabled
func (e *Engine) parse(addr value.CellAddress, text string) (ast.Expr, error) {
	if e.settings.ShareFormulas {
		if expr, ok := e.formulas.lookup(text); ok {
			return expr, nil
		}
	}
	start := e.clock.Now()
	expr, err := e.parser.Parse(text, ast.ParseOptions{Sheet: addr.Sheet, Row: addr.Row, Column: addr.Column})
	e.observer.ObserveParse(e.clock.Since(start), err)
	return expr, err
}

// attach installs a parsed formula in the host and the graph
func (e *Engine) attach(ws host.Worksheet, addr value.CellAddress, text string, expr ast.Expr, shared bool) {
	if old, dropped := e.formulas.release(addr); dropped && old != expr {
		e.cache.Forget(old)
	}
	e.formulas.attach(addr, text, expr, shared)
	ws.SetFormulaText(addr.Row, addr.Column, text)
	ws.SetExpression(addr.Row, addr.Column, expr)
	e.link(addr, expr)
}

// link records the references and volatility of a formula cell
func (e *Engine) link(addr value.CellAddress, expr ast.Expr) {
	e.graph.SetFormula(addr, expr, e.scope)
	if e.volatile(expr, addr) {
		e.graph.MarkVolatile(addr)
	} else {
		e.graph.UnmarkVolatile(addr)
	}
}

// detach removes the formula of a cell and any spill it owns
func (e *Engine) detach(ws host.Worksheet, addr value.CellAddress) {
	if old, dropped := e.formulas.release(addr); dropped {
		e.cache.Forget(old)
	}
	ws.SetFormulaText(addr.Row, addr.Column, "")
	e.graph.ClearFormula(addr)
	e.pending.Insert(e.clearSpill(addr)...)
	e.spills.unblock(addr)
	e.pending.Delete(addr)
}

// volatile reports whether expr can reach a volatile function, directly or
// through defined names. a name met again while its own body is being
// walked counts as not volatile. names that do not resolve make the cell
// volatile so it picks up a later definition.
func (e *Engine) volatile(expr ast.Expr, at value.CellAddress) bool {
	return e.volatileIn(expr, at, sets.New[graph.ScopeKey]())
}

func (e *Engine) volatileIn(expr ast.Expr, at value.CellAddress, visiting sets.Set[graph.ScopeKey]) bool {
	found := false
	ast.Inspect(expr, func(n ast.Expr) bool {
		if found {
			return false
		}
		switch n := n.(type) {
		case *ast.Call:
			if fn, ok := e.registry.Lookup(strings.ToUpper(n.Name)); ok && fn.Volatile {
				found = true
			}
		case *ast.Name:
			body, key, ok := e.scope.lookupName(n, at)
			switch {
			case !ok:
				found = true
			case !visiting.Has(key):
				visiting.Insert(key)
				found = e.volatileIn(body, at, visiting)
				visiting.Delete(key)
			}
			return false
		}
		return true
	})
	return found
}

// SetCellValue stores a constant, replacing any formula. a spilled value
// it overwrites is taken away from its anchor, which reports #SPILL! on the
// next recalculation.
func (e *Engine) SetCellValue(sheet string, row, col int, v value.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ws, addr, err := e.locate(sheet, row, col)
	if err != nil {
		return err
	}
	e.detach(ws, addr)
	e.disown(addr)
	ws.SetValue(row, col, v)
	return nil
}

// ClearCell empties a cell: no formula, no value, no spill ownership.
func (e *Engine) ClearCell(sheet string, row, col int) error {
	return e.SetCellValue(sheet, row, col, value.Blank())
}

// Rebuild parses every formula stored in the host and links the whole
// graph again. cells whose text fails to parse are left unlinked and
// reported together.
func (e *Engine) Rebuild() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	e.reset()
	for _, ws := range e.workbook.Worksheets() {
		for _, addr := range ws.FormulaCells() {
			text := ws.FormulaText(addr.Row, addr.Column)
			expr, err := e.parse(addr, text)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", addr, err))
				continue
			}
			e.attach(ws, addr, text, expr, e.settings.ShareFormulas)
			e.pending.Insert(addr)
		}
	}
	return errors.Join(errs...)
}

// reset drops every derived structure: graph, shared formulas, compiled
// programs and spill state
func (e *Engine) reset() {
	e.clearSpills()
	e.graph.Clear()
	e.formulas.reset()
	e.cache.Reset()
}

// FormulaStats counts formula cells and the parsed trees indexed for reuse
// by their text. Shared stays 0 with ShareFormulas off.
type FormulaStats struct {
	Cells  int
	Shared int
}

func (e *Engine) FormulaStats() FormulaStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return FormulaStats{Cells: e.formulas.cells(), Shared: e.formulas.distinct()}
}

// FormulaUsers returns how many cells share the tree parsed for text.
func (e *Engine) FormulaUsers(text string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.formulas.users(text)
}

// Precedents returns the cells a formula cell reads directly.
func (e *Engine) Precedents(addr value.CellAddress) []value.CellAddress {
	e.mu.Lock()
	defer e.mu.Unlock()
	addr, _ = e.canonical(addr)
	return e.graph.GetDirectPrecedents(addr)
}

// Dependents returns the formula cells that read addr directly.
func (e *Engine) Dependents(addr value.CellAddress) []value.CellAddress {
	e.mu.Lock()
	defer e.mu.Unlock()
	addr, _ = e.canonical(addr)
	return e.graph.GetDirectDependents(addr)
}

// AllDependents returns every cell recalculated when addr changes.
func (e *Engine) AllDependents(addr value.CellAddress) []value.CellAddress {
	e.mu.Lock()
	defer e.mu.Unlock()
	addr, _ = e.canonical(addr)
	return e.graph.GetAllDependents(addr)
}

// VolatileCells returns the cells recalculated on every pass.
func (e *Engine) VolatileCells() []value.CellAddress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.GetVolatileCells()
}

// Graph exposes the dependency graph for inspection. callers must not
// mutate it or use it while the engine is working.
func (e *Engine) Graph() *graph.DependencyGraph { return e.graph }

// Expression returns the parsed formula of a cell.
func (e *Engine) Expression(addr value.CellAddress) (ast.Expr, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	addr, _ = e.canonical(addr)
	return e.formulas.expression(addr)
}
