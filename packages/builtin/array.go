package builtin

import (
	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/eval"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// largest grid an array function may build: 1048576 rows by 16384 columns
// and no more than maxArrayCells cells in total
const (
	maxArrayRows    = 1 << 20
	maxArrayColumns = 1 << 14
	maxArrayCells   = 1 << 22
)

// SEQUENCE(rows, [columns], [start], [step]) fills a rows x columns array
// row by row.
func (bf *BuiltInFunctions) SEQUENCE(ctx *eval.Context, args []value.Value) value.Value {
	params := []float64{0, 1, 1, 1}
	for i, arg := range args {
		if arg.IsBlank() {
			continue
		}
		n, errKind := scalarNumber(ctx, arg)
		if errKind != value.NoError {
			return value.Error(errKind)
		}
		params[i] = n
	}
	switch {
	case params[0] < 0 || params[1] < 0:
		return value.Error(value.ErrorValue)
	case params[0] > maxArrayRows || params[1] > maxArrayColumns:
		return value.Error(value.ErrorNum)
	}
	rows, cols := int(params[0]), int(params[1])
	switch {
	case rows == 0 || cols == 0:
		return value.Error(value.ErrorCalc)
	case rows*cols > maxArrayCells:
		return value.Error(value.ErrorNum)
	}

	out := value.NewArray(rows, cols)
	for r := range rows {
		for c := range cols {
			out.Set(r, c, value.Number(params[2]+float64(r*cols+c)*params[3]))
		}
	}
	return value.ArrayValue(out)
}

func (bf *BuiltInFunctions) TRANSPOSE(ctx *eval.Context, args []value.Value) value.Value {
	if !args[0].IsArray() {
		return args[0]
	}
	in := args[0].Array()
	out := value.NewArray(in.Columns(), in.Rows())
	for r := range in.Rows() {
		for c := range in.Columns() {
			if !in.Present(r, c) {
				out.SetPresent(c, r, false)
				continue
			}
			out.Set(c, r, in.At(r, c))
		}
	}
	return value.ArrayValue(out)
}

// ROW returns the row of its reference argument, or of the formula cell
// without one. a taller reference yields a column of row numbers.
func (bf *BuiltInFunctions) ROW(ctx *eval.Context, args []ast.Expr) value.Value {
	if len(args) == 0 {
		return value.Number(float64(ctx.Cell().Row))
	}
	ref, errKind := ctx.Reference(args[0])
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if ref.Rows() == 1 {
		return value.Number(float64(ref.Start.Row))
	}
	out := value.NewArray(ref.Rows(), 1)
	for i := range ref.Rows() {
		out.Set(i, 0, value.Number(float64(ref.Start.Row+i)))
	}
	return value.ArrayValue(out)
}

// COLUMN mirrors ROW for columns.
func (bf *BuiltInFunctions) COLUMN(ctx *eval.Context, args []ast.Expr) value.Value {
	if len(args) == 0 {
		return value.Number(float64(ctx.Cell().Column))
	}
	ref, errKind := ctx.Reference(args[0])
	if errKind != value.NoError {
		return value.Error(errKind)
	}
	if ref.Columns() == 1 {
		return value.Number(float64(ref.Start.Column))
	}
	out := value.NewArray(1, ref.Columns())
	for i := range ref.Columns() {
		out.Set(0, i, value.Number(float64(ref.Start.Column+i)))
	}
	return value.ArrayValue(out)
}
