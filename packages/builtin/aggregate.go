package builtin

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/vogtb/go-spreadsheet/packages/eval"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// numbers collects the numeric arguments of an aggregate. direct arguments
// are coerced and must convert; array elements count only when they are
// numbers. errors anywhere propagate.
func numbers(ctx *eval.Context, args []value.Value) ([]float64, value.ErrorKind) {
	var out []float64
	for _, arg := range args {
		if arg.IsError() {
			return nil, arg.Err()
		}
		if arg.IsArray() {
			for v := range arg.Array().Values {
				switch {
				case v.IsError():
					return nil, v.Err()
				case v.IsNumber():
					out = append(out, v.Number())
				}
			}
			continue
		}
		n, errKind := value.ToNumber(arg, ctx.NumberFormat())
		if errKind != value.NoError {
			return nil, errKind
		}
		out = append(out, n)
	}
	return out, value.NoError
}

func (bf *BuiltInFunctions) SUM(ctx *eval.Context, args []value.Value) value.Value {
	nums, errKind := numbers(ctx, args)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	rounded, _ := strconv.ParseFloat(fmt.Sprintf("%.15f", sum), 64)
	return eval.Number(rounded)
}

func (bf *BuiltInFunctions) AVERAGE(ctx *eval.Context, args []value.Value) value.Value {
	nums, errKind := numbers(ctx, args)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if len(nums) == 0 {
		return value.Error(value.ErrorDiv0)
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	return eval.Number(sum / float64(len(nums)))
}

// AVERAGEA counts every non-blank value. text counts as zero and booleans
// as 0 or 1.
func (bf *BuiltInFunctions) AVERAGEA(ctx *eval.Context, args []value.Value) value.Value {
	sum, count := 0.0, 0
	add := func(v value.Value) value.ErrorKind {
		switch v.Kind() {
		case value.KindBlank:
		case value.KindError:
			return v.Err()
		case value.KindNumber:
			sum += v.Number()
			count++
		case value.KindBoolean:
			if v.Bool() {
				sum++
			}
			count++
		default:
			count++
		}
		return value.NoError
	}
	for _, arg := range args {
		if arg.IsArray() {
			for v := range arg.Array().Values {
				if errKind := add(v); errKind != value.NoError {
					return value.Error(errKind)
				}
			}
			continue
		}
		if errKind := add(arg); errKind != value.NoError {
			return value.Error(errKind)
		}
	}
	if count == 0 {
		return value.Error(value.ErrorDiv0)
	}
	return eval.Number(sum / float64(count))
}

// COUNT counts numbers. errors inside arrays are skipped, direct error
// arguments propagate.
func (bf *BuiltInFunctions) COUNT(ctx *eval.Context, args []value.Value) value.Value {
	count := 0
	for _, arg := range args {
		if arg.IsError() {
			return arg
		}
		if arg.IsArray() {
			for v := range arg.Array().Values {
				if v.IsNumber() {
					count++
				}
			}
			continue
		}
		if arg.IsNumber() {
			count++
		}
	}
	return value.Number(float64(count))
}

// COUNTA counts every non-blank value, errors inside arrays included.
func (bf *BuiltInFunctions) COUNTA(ctx *eval.Context, args []value.Value) value.Value {
	count := 0
	for _, arg := range args {
		if arg.IsError() {
			return arg
		}
		if arg.IsArray() {
			for v := range arg.Array().Values {
				if !v.IsBlank() {
					count++
				}
			}
			continue
		}
		count++
	}
	return value.Number(float64(count))
}

func (bf *BuiltInFunctions) MAX(ctx *eval.Context, args []value.Value) value.Value {
	nums, errKind := numbers(ctx, args)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if len(nums) == 0 {
		return value.Number(0)
	}
	return value.Number(slices.Max(nums))
}

func (bf *BuiltInFunctions) MIN(ctx *eval.Context, args []value.Value) value.Value {
	nums, errKind := numbers(ctx, args)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if len(nums) == 0 {
		return value.Number(0)
	}
	return value.Number(slices.Min(nums))
}

func (bf *BuiltInFunctions) PRODUCT(ctx *eval.Context, args []value.Value) value.Value {
	nums, errKind := numbers(ctx, args)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if len(nums) == 0 {
		return value.Number(0)
	}
	product := 1.0
	for _, n := range nums {
		product *= n
	}
	return eval.Number(product)
}

func (bf *BuiltInFunctions) MEDIAN(ctx *eval.Context, args []value.Value) value.Value {
	nums, errKind := numbers(ctx, args)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if len(nums) == 0 {
		return value.Error(value.ErrorNum)
	}
	slices.Sort(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 0 {
		return value.Number((nums[mid-1] + nums[mid]) / 2)
	}
	return value.Number(nums[mid])
}

// MODE returns the most frequent number, the smallest on ties. a set with
// no repeated value is #N/A.
func (bf *BuiltInFunctions) MODE(ctx *eval.Context, args []value.Value) value.Value {
	nums, errKind := numbers(ctx, args)
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if len(nums) == 0 {
		return value.Error(value.ErrorNum)
	}
	freq := make(map[float64]int, len(nums))
	maxFreq := 0
	for _, n := range nums {
		freq[n]++
		maxFreq = max(maxFreq, freq[n])
	}
	if maxFreq == 1 {
		return value.Error(value.ErrorNA)
	}
	mode := math.Inf(1)
	for n, f := range freq {
		if f == maxFreq && n < mode {
			mode = n
		}
	}
	return value.Number(mode)
}
