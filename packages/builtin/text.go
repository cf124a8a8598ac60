package builtin

import (
	"strings"
	"unicode/utf8"

	"github.com/vogtb/go-spreadsheet/packages/eval"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

func text(fn func(string) value.Value) func(value.Value) value.Value {
	return func(v value.Value) value.Value {
		s, errKind := value.ToText(v)
		if errKind != value.NoError {
			return value.Error(errKind)
		}
		return fn(s)
	}
}

func (bf *BuiltInFunctions) CONCATENATE(ctx *eval.Context, args []value.Value) value.Value {
	var result strings.Builder
	for _, arg := range args {
		s, errKind := value.ToText(ctx.Scalar(arg))
		if errKind != value.NoError {
			return value.Error(errKind)
		}
		result.WriteString(s)
	}
	return value.Text(result.String())
}

func (bf *BuiltInFunctions) LEN(ctx *eval.Context, args []value.Value) value.Value {
	return lift(args[0], text(func(s string) value.Value {
		return value.Number(float64(utf8.RuneCountInString(s)))
	}))
}

func (bf *BuiltInFunctions) UPPER(ctx *eval.Context, args []value.Value) value.Value {
	return lift(args[0], text(func(s string) value.Value {
		return value.Text(strings.ToUpper(s))
	}))
}

func (bf *BuiltInFunctions) LOWER(ctx *eval.Context, args []value.Value) value.Value {
	return lift(args[0], text(func(s string) value.Value {
		return value.Text(strings.ToLower(s))
	}))
}

// TRIM drops leading and trailing spaces and collapses inner runs to one.
func (bf *BuiltInFunctions) TRIM(ctx *eval.Context, args []value.Value) value.Value {
	return lift(args[0], text(func(s string) value.Value {
		return value.Text(strings.Join(strings.Fields(s), " "))
	}))
}
