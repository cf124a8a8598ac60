package workbook

import (
	"slices"
	"strings"
	"sync"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/host"
)

type definedName struct {
	name string // spelling used at definition
	expr ast.Expr
}

// NameTable holds the defined names of one scope and tells subscribers
// when a definition changes.
type NameTable struct {
	mu          sync.RWMutex
	defined     map[string]definedName // upper-cased name -> definition
	subscribers map[uint32]func(name string)
	nextID      uint32
}

var _ host.NameTable = (*NameTable)(nil)

// NewNameTable creates an empty name table
func NewNameTable() *NameTable {
	return &NameTable{
		defined:     make(map[string]definedName),
		subscribers: make(map[uint32]func(string)),
		nextID:      1,
	}
}

// Define adds or replaces a definition and notifies subscribers.
func (nt *NameTable) Define(name string, expr ast.Expr) {
	nt.mu.Lock()
	nt.defined[strings.ToUpper(name)] = definedName{name: name, expr: expr}
	subscribers := nt.snapshot()
	nt.mu.Unlock()

	for _, fn := range subscribers {
		fn(name)
	}
}

// Undefine removes a definition and notifies subscribers. it reports
// whether the name was defined.
func (nt *NameTable) Undefine(name string) bool {
	nt.mu.Lock()
	key := strings.ToUpper(name)
	if _, exists := nt.defined[key]; !exists {
		nt.mu.Unlock()
		return false
	}
	delete(nt.defined, key)
	subscribers := nt.snapshot()
	nt.mu.Unlock()

	for _, fn := range subscribers {
		fn(name)
	}
	return true
}

// snapshot copies the subscribers in registration order so callbacks run
// without the lock held. nt.mu must be held.
func (nt *NameTable) snapshot() []func(string) {
	ids := make([]uint32, 0, len(nt.subscribers))
	for id := range nt.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(string), len(ids))
	for i, id := range ids {
		out[i] = nt.subscribers[id]
	}
	return out
}

func (nt *NameTable) Lookup(name string) (ast.Expr, bool) {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	d, ok := nt.defined[strings.ToUpper(name)]
	return d.expr, ok
}

// Names lists the defined names in sorted order, in their defined spelling.
func (nt *NameTable) Names() []string {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	out := make([]string, 0, len(nt.defined))
	for _, d := range nt.defined {
		out = append(out, d.name)
	}
	slices.SortFunc(out, func(a, b string) int {
		return strings.Compare(strings.ToUpper(a), strings.ToUpper(b))
	})
	return out
}

// Rewrite replaces the expression of a defined name silently. unknown
// names are ignored.
func (nt *NameTable) Rewrite(name string, expr ast.Expr) {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	key := strings.ToUpper(name)
	if d, ok := nt.defined[key]; ok {
		d.expr = expr
		nt.defined[key] = d
	}
}

func (nt *NameTable) Subscribe(fn func(name string)) (cancel func()) {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	id := nt.nextID
	nt.nextID++
	nt.subscribers[id] = fn
	return func() {
		nt.mu.Lock()
		defer nt.mu.Unlock()
		delete(nt.subscribers, id)
	}
}

// Count returns the number of defined names
func (nt *NameTable) Count() int {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	return len(nt.defined)
}
