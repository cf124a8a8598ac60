package spreadsheet

import (
	"fmt"

	"github.com/vogtb/go-spreadsheet/packages/value"
)

// Primitive represents basic spreadsheet value types.
// types:
//   - float64: numeric values (integers are converted to float64)
//   - string: text values; text starting with "=" is a formula when set
//   - bool: boolean values (TRUE/FALSE)
//   - nil: empty/null cells
//   - *SpreadsheetError: error values (#DIV/0!, #VALUE!, etc.)
type Primitive any

// ErrorCode is a formula error kind.
type ErrorCode = value.ErrorKind

const (
	ErrorCodeNull  = value.ErrorNull
	ErrorCodeDiv0  = value.ErrorDiv0
	ErrorCodeValue = value.ErrorValue
	ErrorCodeRef   = value.ErrorRef
	ErrorCodeName  = value.ErrorName
	ErrorCodeNum   = value.ErrorNum
	ErrorCodeNA    = value.ErrorNA
	ErrorCodeSpill = value.ErrorSpill
	ErrorCodeCalc  = value.ErrorCalc
	ErrorCodeCirc  = value.ErrorCirc
)

// SpreadsheetError preserves error code for display in cells
type SpreadsheetError struct {
	ErrorCode ErrorCode
	Message   string
}

func (e *SpreadsheetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.ErrorCode.String()
}

func NewSpreadsheetError(code ErrorCode, message string) *SpreadsheetError {
	if message == "" {
		message = code.String()
	}
	return &SpreadsheetError{
		ErrorCode: code,
		Message:   message,
	}
}

// CellType represents numeric constants for cell value
// types (external API)
type CellType uint8

const (
	CellValueTypeEmpty   CellType = 0
	CellValueTypeNumber  CellType = 1
	CellValueTypeString  CellType = 2
	CellValueTypeBoolean CellType = 4
	CellValueTypeError   CellType = 5
)

// CellValue represents a calculated cell value with type information.
// SpilledFrom is set for cells holding part of another cell's array.
type CellValue struct {
	Type        CellType
	Value       Primitive
	Formula     string
	SpilledFrom string
}

// toValue converts a primitive into an engine value
func toValue(p Primitive) (value.Value, error) {
	switch v := p.(type) {
	case nil:
		return value.Blank(), nil
	case value.Value:
		return v, nil
	case float64:
		return value.Number(v), nil
	case float32:
		return value.Number(float64(v)), nil
	case int:
		return value.Number(float64(v)), nil
	case int32:
		return value.Number(float64(v)), nil
	case int64:
		return value.Number(float64(v)), nil
	case uint32:
		return value.Number(float64(v)), nil
	case string:
		return value.Text(v), nil
	case bool:
		return value.Bool(v), nil
	case *SpreadsheetError:
		return value.Error(v.ErrorCode), nil
	case ErrorCode:
		return value.Error(v), nil
	}
	return value.Value{}, NewApplicationError(InvalidArgument, fmt.Sprintf("unsupported cell value %T", p))
}

// toPrimitive converts an engine value for callers
func toPrimitive(v value.Value) (Primitive, CellType) {
	switch v.Kind() {
	case value.KindNumber:
		return v.Number(), CellValueTypeNumber
	case value.KindText:
		return v.Text(), CellValueTypeString
	case value.KindBoolean:
		return v.Bool(), CellValueTypeBoolean
	case value.KindError:
		return NewSpreadsheetError(v.Err(), ""), CellValueTypeError
	}
	return nil, CellValueTypeEmpty
}
