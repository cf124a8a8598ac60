// Package spreadsheet is an address-string API over the workbook, the
// calculation engine, the reference parser and the stock function library.
package spreadsheet

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/builtin"
	"github.com/vogtb/go-spreadsheet/packages/engine"
	"github.com/vogtb/go-spreadsheet/packages/host"
	"github.com/vogtb/go-spreadsheet/packages/observe"
	"github.com/vogtb/go-spreadsheet/packages/parser"
	"github.com/vogtb/go-spreadsheet/packages/value"
	"github.com/vogtb/go-spreadsheet/packages/workbook"
)

// Spreadsheet is the main spreadsheet type that combines storage, parsing,
// dependency tracking, and formula evaluation into a unified API
type Spreadsheet struct {
	mu       sync.Mutex
	workbook *workbook.Workbook
	engine   *engine.Engine
	parser   *parser.Parser
	log      logr.Logger

	// constants written since the last Calculate. formula edits are tracked
	// by the engine itself.
	dirty  sets.Set[value.CellAddress]
	cancel func()
	last   engine.Result
}

type config struct {
	settings   engine.Settings
	log        logr.Logger
	observer   observe.Observer
	clock      clock.PassiveClock
	random     builtin.RandomGenerator
	rows, cols int
	mode       host.CalculationMode
}

// Option configures a Spreadsheet.
type Option func(*config)

func WithSettings(s engine.Settings) Option {
	return func(c *config) { c.settings = s }
}

func WithLogger(log logr.Logger) Option {
	return func(c *config) { c.log = log }
}

func WithObserver(o observe.Observer) Option {
	return func(c *config) { c.observer = o }
}

// WithClock sets the time source of NOW and TODAY and of engine timings.
func WithClock(clk clock.PassiveClock) Option {
	return func(c *config) { c.clock = clk }
}

// WithRandom sets the source of RAND.
func WithRandom(rng builtin.RandomGenerator) Option {
	return func(c *config) { c.random = rng }
}

// WithSheetSize sets the rows and columns of every worksheet.
func WithSheetSize(rows, cols int) Option {
	return func(c *config) { c.rows, c.cols = rows, cols }
}

func WithCalculationMode(m host.CalculationMode) Option {
	return func(c *config) { c.mode = m }
}

// NewSpreadsheet creates a spreadsheet without worksheets.
func NewSpreadsheet(opts ...Option) (*Spreadsheet, error) {
	cfg := config{
		settings: engine.DefaultSettings(),
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	wb := workbook.New(workbook.WithSheetSize(cfg.rows, cfg.cols), workbook.WithCalculationMode(cfg.mode))
	var fnOpts []builtin.Option
	if cfg.clock != nil {
		fnOpts = append(fnOpts, builtin.WithClock(cfg.clock))
	}
	if cfg.random != nil {
		fnOpts = append(fnOpts, builtin.WithRandom(cfg.random))
	}
	p := parser.New()
	eng, err := engine.New(wb, p, builtin.New(fnOpts...),
		engine.WithFormatter(ast.DefaultFormatter{}),
		engine.WithObserver(cfg.observer),
		engine.WithLogger(cfg.log),
		engine.WithClock(cfg.clock),
		engine.WithSettings(cfg.settings),
	)
	if err != nil {
		return nil, wrap(err)
	}
	s := &Spreadsheet{
		workbook: wb,
		engine:   eng,
		parser:   p,
		log:      cfg.log,
		dirty:    sets.New[value.CellAddress](),
	}
	s.cancel = eng.SubscribeNames()
	return s, nil
}

type SpreadsheetInterface interface {
	// cell methods

	Get(address string) (Primitive, error)
	Set(address string, value Primitive) error
	Remove(address string) error

	// worksheet methods

	AddWorksheet(name string) error
	RemoveWorksheet(name string) error
	RenameWorksheet(oldName string, newName string) error
	DoesWorksheetExist(name string) bool
	ListWorksheets() []string

	// defined name methods

	DefineName(name string, formula string) error
	RemoveName(name string) error
	DoesNameExist(name string) bool
	ListNames() []string

	// common methods

	Calculate() error
}

var _ SpreadsheetInterface = (*Spreadsheet)(nil)

// Close ends the defined name subscriptions.
func (s *Spreadsheet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// resolveAddress parses "Sheet1!B2" or "B2". unqualified addresses refer
// to the first worksheet.
func (s *Spreadsheet) resolveAddress(address string) (value.CellAddress, error) {
	addr, err := value.ParseA1(strings.TrimSpace(address))
	if err != nil {
		return value.CellAddress{}, NewApplicationError(InvalidArgument, fmt.Sprintf("Invalid address: %v", err))
	}
	sheet := addr.Sheet
	if sheet == "" {
		names := s.workbook.SheetNames()
		if len(names) == 0 {
			return value.CellAddress{}, NewApplicationError(FailedPrecondition, "Spreadsheet has no worksheets")
		}
		sheet = names[0]
	}
	ws, ok := s.workbook.Sheet(sheet)
	if !ok {
		return value.CellAddress{}, NewApplicationError(NotFound, fmt.Sprintf("Worksheet %q not found", sheet))
	}
	rows, cols := ws.Size()
	if addr.Row > rows || addr.Column > cols {
		return value.CellAddress{}, NewApplicationError(OutOfRange, fmt.Sprintf("Address %s is outside the worksheet", address))
	}
	return value.Cell(ws.Name(), addr.Row, addr.Column), nil
}

// resolveRange parses "Sheet1!A1:C4" or "A1:C4".
func (s *Spreadsheet) resolveRange(address string) (value.RangeAddress, error) {
	prefix, body := "", strings.TrimSpace(address)
	if i := strings.LastIndexByte(body, '!'); i >= 0 {
		prefix, body = body[:i+1], body[i+1:]
	}
	from, to, found := strings.Cut(body, ":")
	if !found {
		to = from
	}
	start, err := s.resolveAddress(prefix + from)
	if err != nil {
		return value.RangeAddress{}, err
	}
	end, err := s.resolveAddress(prefix + to)
	if err != nil {
		return value.RangeAddress{}, err
	}
	return value.NewRange(start, end), nil
}

// Get retrieves the value of a cell
func (s *Spreadsheet) Get(address string) (Primitive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, err := s.resolveAddress(address)
	if err != nil {
		return nil, err
	}
	ws, _ := s.workbook.Sheet(addr.Sheet)
	p, _ := toPrimitive(ws.Value(addr.Row, addr.Column))
	return p, nil
}

// Cell retrieves the value of a cell with its type, formula text and the
// anchor of the spill it belongs to.
func (s *Spreadsheet) Cell(address string) (CellValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, err := s.resolveAddress(address)
	if err != nil {
		return CellValue{}, err
	}
	ws, _ := s.workbook.Sheet(addr.Sheet)
	p, kind := toPrimitive(ws.Value(addr.Row, addr.Column))
	cell := CellValue{
		Type:    kind,
		Value:   p,
		Formula: ws.FormulaText(addr.Row, addr.Column),
	}
	if anchor, ok := s.engine.SpillOwner(addr); ok {
		cell.SpilledFrom = anchor.String()
	}
	return cell, nil
}

// Set sets the value of a cell. strings starting with "=" are formulas;
// a formula that does not parse is rejected and the cell keeps its content.
func (s *Spreadsheet) Set(address string, p Primitive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, err := s.resolveAddress(address)
	if err != nil {
		return err
	}

	if text, ok := p.(string); ok && strings.HasPrefix(text, "=") {
		if err := s.engine.SetCellFormula(addr.Sheet, addr.Row, addr.Column, text); err != nil {
			return wrap(err)
		}
		s.dirty.Delete(addr)
		return nil
	}

	v, err := toValue(p)
	if err != nil {
		return err
	}
	if err := s.engine.SetCellValue(addr.Sheet, addr.Row, addr.Column, v); err != nil {
		return wrap(err)
	}
	s.dirty.Insert(addr)
	return nil
}

// Remove removes a cell
func (s *Spreadsheet) Remove(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, err := s.resolveAddress(address)
	if err != nil {
		return err
	}
	if err := s.engine.ClearCell(addr.Sheet, addr.Row, addr.Column); err != nil {
		return wrap(err)
	}
	s.dirty.Insert(addr)
	return nil
}

// relink rebuilds the engine after the set of sheets or tables changed,
// since references to them resolve differently now
func (s *Spreadsheet) relink() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = s.engine.SubscribeNames()
	s.dirty.Clear()
	return s.engine.Rebuild()
}

// AddWorksheet adds a new worksheet
func (s *Spreadsheet) AddWorksheet(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.workbook.AddWorksheet(name); err != nil {
		return wrap(err)
	}
	s.log.V(1).Info("worksheet added", "name", name)
	return wrap(s.relink())
}

// RemoveWorksheet removes a worksheet with its cells and tables
func (s *Spreadsheet) RemoveWorksheet(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.workbook.RemoveWorksheet(name); err != nil {
		return wrap(err)
	}
	s.log.V(1).Info("worksheet removed", "name", name)
	return wrap(s.relink())
}

// RenameWorksheet renames a worksheet and rewrites the formulas naming it
func (s *Spreadsheet) RenameWorksheet(oldName string, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.DoesWorksheetExist(oldName) {
		return NewApplicationError(NotFound, "Worksheet not found")
	}
	if !strings.EqualFold(oldName, newName) && s.DoesWorksheetExist(newName) {
		return NewApplicationError(AlreadyExists, "Worksheet name already exists")
	}
	return s.structural(s.engine.RenameSheet(oldName, newName))
}

// DoesWorksheetExist checks if a worksheet exists
func (s *Spreadsheet) DoesWorksheetExist(name string) bool {
	_, ok := s.workbook.Sheet(name)
	return ok
}

// ListWorksheets returns the worksheet names in tab order
func (s *Spreadsheet) ListWorksheets() []string {
	return s.workbook.SheetNames()
}

// SetCalculationMode switches the workbook, or one worksheet when sheet is
// not empty, between automatic and manual calculation.
func (s *Spreadsheet) SetCalculationMode(sheet string, mode host.CalculationMode) error {
	if sheet == "" {
		s.workbook.SetCalculationMode(mode)
		return nil
	}
	ws, ok := s.workbook.Sheet(sheet)
	if !ok {
		return NewApplicationError(NotFound, "Worksheet not found")
	}
	ws.SetCalculationMode(mode)
	return nil
}

func (s *Spreadsheet) nameBody(name, formula string) (ast.Expr, error) {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " !:[]") {
		return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("Invalid name %q", name))
	}
	if _, err := value.ParseA1(name); err == nil {
		return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("Name %q looks like a cell address", name))
	}
	expr, err := s.parser.Parse(formula, ast.ParseOptions{})
	if err != nil {
		return nil, wrap(err)
	}
	return expr, nil
}

// DefineName defines or replaces a workbook-scoped name. formulas using it
// are recalculated when the workbook is in automatic mode.
func (s *Spreadsheet) DefineName(name string, formula string) error {
	expr, err := s.nameBody(name, formula)
	if err != nil {
		return err
	}
	s.workbook.DefinedNames().Define(name, expr)
	return nil
}

// DefineSheetName defines or replaces a name visible only from one sheet.
func (s *Spreadsheet) DefineSheetName(sheet, name, formula string) error {
	ws, ok := s.workbook.Sheet(sheet)
	if !ok {
		return NewApplicationError(NotFound, "Worksheet not found")
	}
	expr, err := s.nameBody(name, formula)
	if err != nil {
		return err
	}
	ws.LocalNames().Define(name, expr)
	return nil
}

// RemoveName removes a workbook-scoped name
func (s *Spreadsheet) RemoveName(name string) error {
	if !s.workbook.DefinedNames().Undefine(name) {
		return NewApplicationError(NotFound, "Name not found")
	}
	return nil
}

// DoesNameExist checks if a workbook-scoped name is defined
func (s *Spreadsheet) DoesNameExist(name string) bool {
	_, ok := s.workbook.DefinedNames().Lookup(name)
	return ok
}

// ListNames returns the workbook-scoped names in sorted order
func (s *Spreadsheet) ListNames() []string {
	return s.workbook.DefinedNames().Names()
}

// AddTable registers a table over address. the first row holds the
// headers, one per column name.
func (s *Spreadsheet) AddTable(name, address string, columns ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.resolveRange(address)
	if err != nil {
		return err
	}
	err = s.workbook.AddTable(value.Table{
		Name:        name,
		Sheet:       r.Sheet(),
		Range:       r,
		HeaderRow:   true,
		ColumnNames: columns,
	})
	if err != nil {
		return wrap(err)
	}
	return wrap(s.relink())
}

// RemoveTable drops a table definition; its cells are kept
func (s *Spreadsheet) RemoveTable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.workbook.RemoveTable(name) {
		return NewApplicationError(NotFound, "Table not found")
	}
	return wrap(s.relink())
}

func (s *Spreadsheet) RenameTable(oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.structural(s.engine.RenameTable(oldName, newName))
}

func (s *Spreadsheet) RenameTableColumn(table, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.structural(s.engine.RenameTableColumn(table, oldName, newName))
}

// structural finishes a structural edit. the engine queues every formula
// after one, so pending constants need no separate pass.
func (s *Spreadsheet) structural(err error) error {
	if err != nil {
		return wrap(err)
	}
	s.dirty.Clear()
	return nil
}

func (s *Spreadsheet) InsertRows(sheet string, at, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.structural(s.engine.InsertRows(sheet, at, count))
}

func (s *Spreadsheet) DeleteRows(sheet string, at, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.structural(s.engine.DeleteRows(sheet, at, count))
}

func (s *Spreadsheet) InsertColumns(sheet string, at, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.structural(s.engine.InsertColumns(sheet, at, count))
}

func (s *Spreadsheet) DeleteColumns(sheet string, at, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.structural(s.engine.DeleteColumns(sheet, at, count))
}

// Calculate recalculates every cell affected by edits since the last
// calculation, plus the volatile cells. circular references are reported
// in the cells, not as an error.
func (s *Spreadsheet) Calculate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = s.engine.Recalculate(s.dirty.UnsortedList())
	s.dirty.Clear()
	return nil
}

// LastResult describes the most recent Calculate.
func (s *Spreadsheet) LastResult() engine.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Dependents returns the addresses of the formulas reading a cell
// directly.
func (s *Spreadsheet) Dependents(address string) ([]string, error) {
	return s.neighbours(address, s.engine.Dependents)
}

// Precedents returns the addresses a formula cell reads directly.
func (s *Spreadsheet) Precedents(address string) ([]string, error) {
	return s.neighbours(address, s.engine.Precedents)
}

func (s *Spreadsheet) neighbours(address string, fn func(value.CellAddress) []value.CellAddress) ([]string, error) {
	s.mu.Lock()
	addr, err := s.resolveAddress(address)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	cells := fn(addr)
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.String()
	}
	return out, nil
}

// Engine returns the calculation engine for diagnostic purposes
func (s *Spreadsheet) Engine() *engine.Engine {
	return s.engine
}

// Workbook returns the underlying workbook for diagnostic purposes
func (s *Spreadsheet) Workbook() *workbook.Workbook {
	return s.workbook
}

// IsAppError reports whether err is an AppError with the given code.
func IsAppError(err error, code AppErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
