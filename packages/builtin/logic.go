package builtin

import (
	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/eval"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// IF evaluates only the branch it returns.
func (bf *BuiltInFunctions) IF(ctx *eval.Context, args []ast.Expr) value.Value {
	cond := ctx.Scalar(ctx.Eval(args[0]))
	if cond.IsError() {
		return cond
	}
	ok, errKind := value.ToBoolean(cond, ctx.NumberFormat())
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if ok {
		return ctx.Eval(args[1])
	}
	if len(args) == 3 {
		return ctx.Eval(args[2])
	}
	return value.Bool(false)
}

// IFERROR evaluates its fallback only when the first argument fails. error
// elements of an array result are replaced one by one.
func (bf *BuiltInFunctions) IFERROR(ctx *eval.Context, args []ast.Expr) value.Value {
	v := ctx.Eval(args[0])
	if v.IsError() {
		return ctx.Eval(args[1])
	}
	if !v.IsArray() {
		return v
	}
	var fallback *value.Value
	return value.ArrayValue(v.Array().Map(func(x value.Value) value.Value {
		if !x.IsError() {
			return x
		}
		if fallback == nil {
			f := ctx.Scalar(ctx.Eval(args[1]))
			fallback = &f
		}
		return *fallback
	}))
}

// truths collects the boolean arguments of AND and OR. text and blanks
// inside arrays are skipped; a call with nothing to test is #VALUE!.
func truths(ctx *eval.Context, args []value.Value) ([]bool, value.ErrorKind) {
	var out []bool
	for _, arg := range args {
		if arg.IsArray() {
			for v := range arg.Array().Values {
				switch {
				case v.IsError():
					return nil, v.Err()
				case v.IsNumber(), v.IsBoolean():
					b, _ := value.ToBoolean(v, ctx.NumberFormat())
					out = append(out, b)
				}
			}
			continue
		}
		if arg.IsBlank() {
			continue
		}
		b, errKind := value.ToBoolean(arg, ctx.NumberFormat())
		if errKind != value.NoError {
			return nil, errKind
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, value.ErrorValue
	}
	return out, value.NoError
}

func (bf *BuiltInFunctions) AND(ctx *eval.Context, args []value.Value) value.Value {
	bs, errKind := truths(ctx, args)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	for _, b := range bs {
		if !b {
			return value.Bool(false)
		}
	}
	return value.Bool(true)
}

func (bf *BuiltInFunctions) OR(ctx *eval.Context, args []value.Value) value.Value {
	bs, errKind := truths(ctx, args)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	for _, b := range bs {
		if b {
			return value.Bool(true)
		}
	}
	return value.Bool(false)
}

func (bf *BuiltInFunctions) NOT(ctx *eval.Context, args []value.Value) value.Value {
	return lift(args[0], func(v value.Value) value.Value {
		b, errKind := value.ToBoolean(v, ctx.NumberFormat())
		if errKind != value.NoError {
			return value.Error(errKind)
		}
		return value.Bool(!b)
	})
}

func (bf *BuiltInFunctions) ISERROR(ctx *eval.Context, args []value.Value) value.Value {
	return lift(args[0], func(v value.Value) value.Value {
		return value.Bool(v.IsError())
	})
}

func (bf *BuiltInFunctions) ISBLANK(ctx *eval.Context, args []value.Value) value.Value {
	return lift(args[0], func(v value.Value) value.Value {
		return value.Bool(v.IsBlank())
	})
}
