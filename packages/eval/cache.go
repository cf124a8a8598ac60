package eval

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/observe"
)

// Cache holds compiled programs keyed by the identity of their root node.
// trees are immutable so a node compiles the same way until the registry
// changes. concurrent misses on one node compile once.
type Cache struct {
	mu       sync.RWMutex
	programs map[ast.Expr]*Program
	group    singleflight.Group

	observer observe.Observer
	clock    clock.PassiveClock
}

// NewCache creates an empty cache. a nil observer or clock gets a default.
func NewCache(observer observe.Observer, clk clock.PassiveClock) *Cache {
	if observer == nil {
		observer = observe.Nop{}
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Cache{
		programs: make(map[ast.Expr]*Program),
		observer: observer,
		clock:    clk,
	}
}

// Program returns the compiled form of expr, compiling it on first use or
// when it was compiled against a different registry.
func (c *Cache) Program(expr ast.Expr, registry Registry) *Program {
	if p, ok := c.lookup(expr, registry); ok {
		c.observer.ObserveCacheLookup(true)
		return p
	}
	c.observer.ObserveCacheLookup(false)

	v, _, _ := c.group.Do(fmt.Sprintf("%p", expr), func() (any, error) {
		if p, ok := c.lookup(expr, registry); ok {
			return p, nil
		}
		start := c.clock.Now()
		p := Compile(expr, registry)
		c.observer.ObserveCompile(c.clock.Since(start))

		c.mu.Lock()
		c.programs[expr] = p
		c.mu.Unlock()
		return p, nil
	})
	p := v.(*Program)
	if p.registry != registry {
		// raced with a compile for another registry
		return Compile(expr, registry)
	}
	return p
}

func (c *Cache) lookup(expr ast.Expr, registry Registry) (*Program, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.programs[expr]
	if !ok || p.registry != registry {
		return nil, false
	}
	return p, true
}

// Forget drops the program compiled for expr.
func (c *Cache) Forget(expr ast.Expr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.programs, expr)
}

// Reset drops every compiled program.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs = make(map[ast.Expr]*Program)
}

// Len is the number of cached programs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}
