package spreadsheet

import (
	"fmt"
	"maps"
	"slices"

	"github.com/vogtb/go-spreadsheet/packages/value"
)

// RunnableSpreadsheet chains edits on a Spreadsheet. the first failing step
// is remembered and every later step becomes a no-op until Reset.
type RunnableSpreadsheet struct {
	spreadsheet *Spreadsheet
	err         error
	printLn     func(string)
}

// NewRunnableSpreadsheet builds an empty spreadsheet. Log and CheckError
// write through printLn.
func NewRunnableSpreadsheet(printLn func(string), opts ...Option) *RunnableSpreadsheet {
	s, err := NewSpreadsheet(opts...)
	return &RunnableSpreadsheet{
		spreadsheet: s,
		err:         err,
		printLn:     printLn,
	}
}

// do runs fn unless an earlier step failed
func (r *RunnableSpreadsheet) do(fn func(s *Spreadsheet) error) *RunnableSpreadsheet {
	if r.err != nil {
		return r
	}
	r.err = fn(r.spreadsheet)
	return r
}

func (r *RunnableSpreadsheet) Set(address string, value Primitive) *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error { return s.Set(address, value) })
}

// Get reads a cell; the value is nil once the chain has failed.
func (r *RunnableSpreadsheet) Get(address string) (*RunnableSpreadsheet, Primitive) {
	if r.err != nil {
		return r, nil
	}
	val, err := r.spreadsheet.Get(address)
	r.err = err
	return r, val
}

func (r *RunnableSpreadsheet) Remove(address string) *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error { return s.Remove(address) })
}

func (r *RunnableSpreadsheet) AddWorksheet(name string) *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error { return s.AddWorksheet(name) })
}

func (r *RunnableSpreadsheet) RemoveWorksheet(name string) *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error { return s.RemoveWorksheet(name) })
}

func (r *RunnableSpreadsheet) RenameWorksheet(oldName, newName string) *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error { return s.RenameWorksheet(oldName, newName) })
}

// DefineName defines or replaces a workbook name.
func (r *RunnableSpreadsheet) DefineName(name, formula string) *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error { return s.DefineName(name, formula) })
}

func (r *RunnableSpreadsheet) RemoveName(name string) *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error { return s.RemoveName(name) })
}

// AddTable registers a table whose first row holds the column names.
func (r *RunnableSpreadsheet) AddTable(name, address string, columns ...string) *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error { return s.AddTable(name, address, columns...) })
}

func (r *RunnableSpreadsheet) InsertRows(sheet string, at, count int) *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error { return s.InsertRows(sheet, at, count) })
}

func (r *RunnableSpreadsheet) DeleteRows(sheet string, at, count int) *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error { return s.DeleteRows(sheet, at, count) })
}

func (r *RunnableSpreadsheet) InsertColumns(sheet string, at, count int) *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error { return s.InsertColumns(sheet, at, count) })
}

func (r *RunnableSpreadsheet) DeleteColumns(sheet string, at, count int) *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error { return s.DeleteColumns(sheet, at, count) })
}

func (r *RunnableSpreadsheet) Calculate() *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error { return s.Calculate() })
}

// Run calculates once more and ends the chain.
func (r *RunnableSpreadsheet) Run() (*Spreadsheet, error) {
	r.Calculate()
	return r.spreadsheet, r.err
}

// RunOrPanic is Run for callers that treat a failed chain as a bug.
func (r *RunnableSpreadsheet) RunOrPanic() *Spreadsheet {
	s, err := r.Run()
	if err != nil {
		panic(err)
	}
	return s
}

// Error returns the error that stopped the chain, if any.
func (r *RunnableSpreadsheet) Error() error {
	return r.err
}

// CheckError prints the chain error, or "No errors".
func (r *RunnableSpreadsheet) CheckError() *RunnableSpreadsheet {
	if r.err != nil {
		r.printLn(fmt.Sprintf("ERROR: %v", r.err))
	} else {
		r.printLn("No errors")
	}
	return r
}

// Spreadsheet returns the wrapped spreadsheet. calls made on it directly
// are not tracked by the chain.
func (r *RunnableSpreadsheet) Spreadsheet() *Spreadsheet {
	return r.spreadsheet
}

// Reset forgets the chain error so later steps run again.
func (r *RunnableSpreadsheet) Reset() *RunnableSpreadsheet {
	r.err = nil
	return r
}

// Then runs fn while the chain is healthy.
func (r *RunnableSpreadsheet) Then(fn func(*RunnableSpreadsheet) *RunnableSpreadsheet) *RunnableSpreadsheet {
	if r.err != nil {
		return r
	}
	return fn(r)
}

// OnError lets fn replace the chain error, or clear it by returning nil.
func (r *RunnableSpreadsheet) OnError(fn func(error) error) *RunnableSpreadsheet {
	if r.err != nil {
		r.err = fn(r.err)
	}
	return r
}

// Must panics with the chain error.
func (r *RunnableSpreadsheet) Must() *RunnableSpreadsheet {
	if r.err != nil {
		panic(r.err)
	}
	return r
}

// SetBatch writes cells in sorted address order so formulas are added
// deterministically.
func (r *RunnableSpreadsheet) SetBatch(cells map[string]Primitive) *RunnableSpreadsheet {
	for _, address := range slices.Sorted(maps.Keys(cells)) {
		r.Set(address, cells[address])
	}
	return r
}

// GetBatch reads several cells keyed by the address given.
func (r *RunnableSpreadsheet) GetBatch(addresses ...string) (*RunnableSpreadsheet, map[string]Primitive) {
	if r.err != nil {
		return r, nil
	}
	values := r.Values(addresses...)
	if values == nil {
		return r, nil
	}
	results := make(map[string]Primitive, len(addresses))
	for i, address := range addresses {
		results[address] = values[i]
	}
	return r, results
}

// WithWorksheet adds the sheet unless it exists already.
func (r *RunnableSpreadsheet) WithWorksheet(name string) *RunnableSpreadsheet {
	return r.do(func(s *Spreadsheet) error {
		if s.DoesWorksheetExist(name) {
			return nil
		}
		return s.AddWorksheet(name)
	})
}

// If runs fn when condition holds and the chain is healthy.
func (r *RunnableSpreadsheet) If(condition bool, fn func(*RunnableSpreadsheet) *RunnableSpreadsheet) *RunnableSpreadsheet {
	if r.err != nil || !condition {
		return r
	}
	return fn(r)
}

// ForEach visits a rectangle row by row, handing fn each A1 address. it
// stops at the first failure.
func (r *RunnableSpreadsheet) ForEach(startRow, endRow int, startCol, endCol int, fn func(address string, r *RunnableSpreadsheet)) *RunnableSpreadsheet {
	for row := startRow; row <= endRow && r.err == nil; row++ {
		for col := startCol; col <= endCol && r.err == nil; col++ {
			fn(value.ColumnName(col)+fmt.Sprint(row), r)
		}
	}
	return r
}

// Value reads one cell without breaking the chain expression.
func (r *RunnableSpreadsheet) Value(address string) Primitive {
	_, val := r.Get(address)
	return val
}

// Values reads cells in the order given.
func (r *RunnableSpreadsheet) Values(addresses ...string) []Primitive {
	if r.err != nil {
		return nil
	}
	values := make([]Primitive, len(addresses))
	for i, address := range addresses {
		val, err := r.spreadsheet.Get(address)
		if err != nil {
			r.err = err
			return nil
		}
		values[i] = val
	}
	return values
}

// Log prints "address: value", or "<empty>" for a blank cell.
func (r *RunnableSpreadsheet) Log(address string) *RunnableSpreadsheet {
	_, val := r.Get(address)
	switch {
	case r.err != nil:
	case val == nil:
		r.printLn(address + ": <empty>")
	default:
		r.printLn(fmt.Sprintf("%s: %v", address, val))
	}
	return r
}
