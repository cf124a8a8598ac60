package eval

import (
	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

type opcode uint8

const (
	opConst opcode = iota
	opRef
	opStructRef
	opName
	opUnary
	opBinary
	opCall
	opCallLazy
	opArray
)

var opcodeNames = [...]string{
	opConst:     "const",
	opRef:       "ref",
	opStructRef: "structref",
	opName:      "name",
	opUnary:     "unary",
	opBinary:    "binary",
	opCall:      "call",
	opCallLazy:  "calllazy",
	opArray:     "array",
}

func (op opcode) String() string { return opcodeNames[op] }

type instruction struct {
	op     opcode
	val    value.Value
	node   ast.Expr
	unary  ast.UnaryOp
	binary ast.BinaryOp
	fn     *Function
	argc   int // call arguments, or array rows
	cols   int
}

// Program is the flat postfix form of an expression. it is immutable once
// compiled and may be shared between evaluators.
type Program struct {
	code     []instruction
	maxStack int
	registry Registry
	treeOnly bool
}

// Len is the number of instructions.
func (p *Program) Len() int { return len(p.code) }

// MaxStack is the deepest operand stack the program needs.
func (p *Program) MaxStack() int { return p.maxStack }

// TreeOnly reports programs that must be run by walking the tree.
func (p *Program) TreeOnly() bool { return p.treeOnly }

// Ops lists the instruction names, mostly for tests and debugging.
func (p *Program) Ops() []string {
	out := make([]string, len(p.code))
	for i, in := range p.code {
		out[i] = in.op.String()
	}
	return out
}

// Compile flattens expr against registry. unknown functions compile to a
// #NAME? constant. lazy calls keep their argument trees.
func Compile(expr ast.Expr, registry Registry) *Program {
	p := &Program{registry: registry}
	if ast.HasReferenceOperators(expr) {
		p.treeOnly = true
		return p
	}
	c := compiler{prog: p}
	c.emit(expr)
	return p
}

type compiler struct {
	prog  *Program
	depth int
}

func (c *compiler) add(in instruction, pops, pushes int) {
	c.prog.code = append(c.prog.code, in)
	c.depth += pushes - pops
	if c.depth > c.prog.maxStack {
		c.prog.maxStack = c.depth
	}
}

func (c *compiler) emit(e ast.Expr) {
	switch n := e.(type) {
	case *ast.Literal:
		c.add(instruction{op: opConst, val: n.Value}, 0, 1)
	case *ast.Ref:
		c.add(instruction{op: opRef, node: n}, 0, 1)
	case *ast.StructuredRef:
		c.add(instruction{op: opStructRef, node: n}, 0, 1)
	case *ast.Name:
		c.add(instruction{op: opName, node: n}, 0, 1)
	case *ast.Unary:
		c.emit(n.Operand)
		c.add(instruction{op: opUnary, unary: n.Op}, 1, 1)
	case *ast.Binary:
		c.emit(n.Left)
		c.emit(n.Right)
		c.add(instruction{op: opBinary, binary: n.Op}, 2, 1)
	case *ast.Call:
		fn, ok := c.prog.registry.Lookup(n.Name)
		if !ok {
			c.add(instruction{op: opConst, val: value.Error(value.ErrorName)}, 0, 1)
			return
		}
		if fn.Lazy() {
			c.add(instruction{op: opCallLazy, node: n, fn: fn}, 0, 1)
			return
		}
		for _, arg := range n.Args {
			c.emit(arg)
		}
		c.add(instruction{op: opCall, fn: fn, argc: len(n.Args)}, len(n.Args), 1)
	case *ast.ArrayLit:
		cols := len(n.Rows[0])
		for _, row := range n.Rows {
			for _, el := range row {
				c.emit(el)
			}
		}
		c.add(instruction{op: opArray, argc: len(n.Rows), cols: cols}, len(n.Rows)*cols, 1)
	}
}
