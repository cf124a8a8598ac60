package builtin

import (
	"math"

	"github.com/vogtb/go-spreadsheet/packages/eval"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

func (bf *BuiltInFunctions) ABS(ctx *eval.Context, args []value.Value) value.Value {
	return numeric(ctx, args[0], func(n float64) value.Value {
		return value.Number(math.Abs(n))
	})
}

// ROUND rounds half away from zero. negative places round left of the
// decimal point.
func (bf *BuiltInFunctions) ROUND(ctx *eval.Context, args []value.Value) value.Value {
	places := 0.0
	if len(args) == 2 {
		p, errKind := scalarNumber(ctx, args[1])
		if errKind != value.NoError {
			return value.Error(errKind)
		}
		places = math.Trunc(p)
	}
	return numeric(ctx, args[0], func(n float64) value.Value {
		if places < 0 {
			factor := math.Pow(10, -places)
			return eval.Number(math.Round(n/factor) * factor)
		}
		multiplier := math.Pow(10, places)
		return eval.Number(math.Round(n*multiplier) / multiplier)
	})
}

func significance(ctx *eval.Context, args []value.Value) (float64, value.ErrorKind) {
	if len(args) < 2 {
		return 1, value.NoError
	}
	s, errKind := scalarNumber(ctx, args[1])
	if errKind != value.NoError {
		return 0, errKind
	}
	return math.Abs(s), value.NoError
}

func (bf *BuiltInFunctions) FLOOR(ctx *eval.Context, args []value.Value) value.Value {
	step, errKind := significance(ctx, args)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	return numeric(ctx, args[0], func(n float64) value.Value {
		if step == 0 {
			return value.Number(0)
		}
		return value.Number(math.Floor(n/step) * step)
	})
}

func (bf *BuiltInFunctions) CEILING(ctx *eval.Context, args []value.Value) value.Value {
	step, errKind := significance(ctx, args)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	return numeric(ctx, args[0], func(n float64) value.Value {
		if step == 0 {
			return value.Number(0)
		}
		return value.Number(math.Ceil(n/step) * step)
	})
}

func (bf *BuiltInFunctions) SQRT(ctx *eval.Context, args []value.Value) value.Value {
	return numeric(ctx, args[0], func(n float64) value.Value {
		if n < 0 {
			return value.Error(value.ErrorNum)
		}
		return value.Number(math.Sqrt(n))
	})
}

func (bf *BuiltInFunctions) POWER(ctx *eval.Context, args []value.Value) value.Value {
	base, errKind := scalarNumber(ctx, args[0])
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	exp, errKind := scalarNumber(ctx, args[1])
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if base == 0 && exp < 0 {
		return value.Error(value.ErrorDiv0)
	}
	return eval.Number(math.Pow(base, exp))
}

// MOD takes the sign of the divisor.
func (bf *BuiltInFunctions) MOD(ctx *eval.Context, args []value.Value) value.Value {
	dividend, errKind := scalarNumber(ctx, args[0])
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	divisor, errKind := scalarNumber(ctx, args[1])
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if divisor == 0 {
		return value.Error(value.ErrorDiv0)
	}
	return eval.Number(dividend - divisor*math.Floor(dividend/divisor))
}

func (bf *BuiltInFunctions) PI(*eval.Context, []value.Value) value.Value {
	return value.Number(math.Pi)
}
