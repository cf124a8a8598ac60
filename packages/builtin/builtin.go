// Package builtin is the stock formula function library.
package builtin

import (
	"maps"
	"math/rand/v2"
	"slices"
	"strings"

	"k8s.io/utils/clock"

	"github.com/vogtb/go-spreadsheet/packages/eval"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// RandomGenerator interface provides random number generation for testing
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses the standard library's rand package
type DefaultRandomGenerator struct{}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// BuiltInFunctions is a function registry. it is immutable after New, so
// evaluators may share it.
type BuiltInFunctions struct {
	clock     clock.PassiveClock
	rng       RandomGenerator
	functions map[string]*eval.Function
}

var _ eval.Registry = (*BuiltInFunctions)(nil)

type Option func(*BuiltInFunctions)

// WithClock sets the time source of NOW and TODAY.
func WithClock(clk clock.PassiveClock) Option {
	return func(bf *BuiltInFunctions) { bf.clock = clk }
}

// WithRandom sets the source of RAND.
func WithRandom(rng RandomGenerator) Option {
	return func(bf *BuiltInFunctions) { bf.rng = rng }
}

// New creates the stock registry.
func New(opts ...Option) *BuiltInFunctions {
	bf := &BuiltInFunctions{
		clock: clock.RealClock{},
		rng:   &DefaultRandomGenerator{},
	}
	for _, opt := range opts {
		opt(bf)
	}
	bf.functions = make(map[string]*eval.Function)
	for _, fn := range bf.stock() {
		bf.functions[fn.Name] = fn
	}
	return bf
}

func (bf *BuiltInFunctions) stock() []*eval.Function {
	return []*eval.Function{
		// aggregates
		{Name: "SUM", MinArgs: 1, MaxArgs: eval.Variadic, Call: bf.SUM},
		{Name: "AVERAGE", MinArgs: 1, MaxArgs: eval.Variadic, Call: bf.AVERAGE},
		{Name: "AVERAGEA", MinArgs: 1, MaxArgs: eval.Variadic, Call: bf.AVERAGEA},
		{Name: "COUNT", MinArgs: 1, MaxArgs: eval.Variadic, Call: bf.COUNT},
		{Name: "COUNTA", MinArgs: 1, MaxArgs: eval.Variadic, Call: bf.COUNTA},
		{Name: "MAX", MinArgs: 1, MaxArgs: eval.Variadic, Call: bf.MAX},
		{Name: "MIN", MinArgs: 1, MaxArgs: eval.Variadic, Call: bf.MIN},
		{Name: "PRODUCT", MinArgs: 1, MaxArgs: eval.Variadic, Call: bf.PRODUCT},
		{Name: "MEDIAN", MinArgs: 1, MaxArgs: eval.Variadic, Call: bf.MEDIAN},
		{Name: "MODE", MinArgs: 1, MaxArgs: eval.Variadic, Call: bf.MODE},

		// logic
		{Name: "IF", MinArgs: 2, MaxArgs: 3, CallLazy: bf.IF},
		{Name: "IFERROR", MinArgs: 2, MaxArgs: 2, CallLazy: bf.IFERROR},
		{Name: "AND", MinArgs: 1, MaxArgs: eval.Variadic, Call: bf.AND},
		{Name: "OR", MinArgs: 1, MaxArgs: eval.Variadic, Call: bf.OR},
		{Name: "NOT", MinArgs: 1, MaxArgs: 1, Call: bf.NOT},
		{Name: "ISERROR", MinArgs: 1, MaxArgs: 1, Call: bf.ISERROR},
		{Name: "ISBLANK", MinArgs: 1, MaxArgs: 1, Call: bf.ISBLANK},

		// text
		{Name: "CONCATENATE", MinArgs: 1, MaxArgs: eval.Variadic, Call: bf.CONCATENATE},
		{Name: "LEN", MinArgs: 1, MaxArgs: 1, Call: bf.LEN},
		{Name: "UPPER", MinArgs: 1, MaxArgs: 1, Call: bf.UPPER},
		{Name: "LOWER", MinArgs: 1, MaxArgs: 1, Call: bf.LOWER},
		{Name: "TRIM", MinArgs: 1, MaxArgs: 1, Call: bf.TRIM},

		// math
		{Name: "ABS", MinArgs: 1, MaxArgs: 1, Call: bf.ABS},
		{Name: "ROUND", MinArgs: 1, MaxArgs: 2, Call: bf.ROUND},
		{Name: "FLOOR", MinArgs: 1, MaxArgs: 2, Call: bf.FLOOR},
		{Name: "CEILING", MinArgs: 1, MaxArgs: 2, Call: bf.CEILING},
		{Name: "SQRT", MinArgs: 1, MaxArgs: 1, Call: bf.SQRT},
		{Name: "POWER", MinArgs: 2, MaxArgs: 2, Call: bf.POWER},
		{Name: "MOD", MinArgs: 2, MaxArgs: 2, Call: bf.MOD},
		{Name: "PI", Call: bf.PI},

		// volatile
		{Name: "NOW", Volatile: true, Call: bf.NOW},
		{Name: "TODAY", Volatile: true, Call: bf.TODAY},
		{Name: "RAND", Volatile: true, Call: bf.RAND},

		// arrays and references
		{Name: "SEQUENCE", MinArgs: 1, MaxArgs: 4, Call: bf.SEQUENCE},
		{Name: "TRANSPOSE", MinArgs: 1, MaxArgs: 1, Call: bf.TRANSPOSE},
		{Name: "ROW", MaxArgs: 1, CallLazy: bf.ROW},
		{Name: "COLUMN", MaxArgs: 1, CallLazy: bf.COLUMN},
	}
}

// Lookup finds a function by name, ignoring case.
func (bf *BuiltInFunctions) Lookup(name string) (*eval.Function, bool) {
	fn, ok := bf.functions[strings.ToUpper(name)]
	return fn, ok
}

// Names lists the registered functions in sorted order.
func (bf *BuiltInFunctions) Names() []string {
	return slices.Sorted(maps.Keys(bf.functions))
}

// With returns a new registry holding the stock functions plus fns, which
// replace stock functions of the same name. the receiver is unchanged.
func (bf *BuiltInFunctions) With(fns ...*eval.Function) *BuiltInFunctions {
	out := &BuiltInFunctions{
		clock:     bf.clock,
		rng:       bf.rng,
		functions: maps.Clone(bf.functions),
	}
	for _, fn := range fns {
		out.functions[strings.ToUpper(fn.Name)] = fn
	}
	return out
}

// scalarNumber reduces an argument to one number.
func scalarNumber(ctx *eval.Context, v value.Value) (float64, value.ErrorKind) {
	return value.ToNumber(ctx.Scalar(v), ctx.NumberFormat())
}

// lift applies fn to a scalar argument, or to every element of an array
// argument.
func lift(v value.Value, fn func(value.Value) value.Value) value.Value {
	if v.IsArray() {
		return value.ArrayValue(v.Array().Map(fn))
	}
	return fn(v)
}

// numeric lifts a number-to-number function with error passthrough.
func numeric(ctx *eval.Context, v value.Value, fn func(float64) value.Value) value.Value {
	return lift(v, func(x value.Value) value.Value {
		n, errKind := value.ToNumber(x, ctx.NumberFormat())
		if errKind != value.NoError {
			return value.Error(errKind)
		}
		return fn(n)
	})
}
