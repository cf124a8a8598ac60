package value

import (
	"fmt"
	"math"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindBlank Kind = iota
	KindNumber
	KindText
	KindBoolean
	KindError
	KindArray
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindBlank:
		return "blank"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBoolean:
		return "boolean"
	case KindError:
		return "error"
	case KindArray:
		return "array"
	case KindReference:
		return "reference"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is the tagged union every formula evaluates to. the zero Value is
// Blank. accessing the payload of a different variant panics.
type Value struct {
	kind Kind
	num  float64
	str  string
	err  ErrorKind
	arr  *Array
	ref  RangeAddress
}

func Blank() Value { return Value{} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Text(s string) Value { return Value{kind: KindText, str: s} }
func Error(k ErrorKind) Value { return Value{kind: KindError, err: k} }
func Reference(r RangeAddress) Value { return Value{kind: KindReference, ref: r} }

func Bool(b bool) Value {
	v := Value{kind: KindBoolean}
	if b {
		v.num = 1
	}
	return v
}

// ArrayValue wraps an array. a nil array is a contract violation.
func ArrayValue(a *Array) Value {
	if a == nil {
		panic("value: nil array")
	}
	return Value{kind: KindArray, arr: a}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsBlank() bool { return v.kind == KindBlank }
func (v Value) IsError() bool { return v.kind == KindError }
func (v Value) IsArray() bool { return v.kind == KindArray }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsText() bool { return v.kind == KindText }
func (v Value) IsBoolean() bool { return v.kind == KindBoolean }

func (v Value) must(k Kind) {
	if v.kind != k {
		panic(fmt.Sprintf("value: %s accessed as %s", v.kind, k))
	}
}

func (v Value) Number() float64 {
	v.must(KindNumber)
	return v.num
}

func (v Value) Text() string {
	v.must(KindText)
	return v.str
}

func (v Value) Bool() bool {
	v.must(KindBoolean)
	return v.num != 0
}

func (v Value) Err() ErrorKind {
	v.must(KindError)
	return v.err
}

func (v Value) Array() *Array {
	v.must(KindArray)
	return v.arr
}

func (v Value) Reference() RangeAddress {
	v.must(KindReference)
	return v.ref
}

// Equal reports exact equality. numbers compare bit for bit so NaN payloads
// and signed zeros are distinguished.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBlank:
		return true
	case KindNumber, KindBoolean:
		return math.Float64bits(v.num) == math.Float64bits(o.num)
	case KindText:
		return v.str == o.str
	case KindError:
		return v.err == o.err
	case KindReference:
		return v.ref.Equal(o.ref)
	case KindArray:
		return v.arr.Equal(o.arr)
	}
	return false
}

// String renders the value for diagnostics and CLI output.
func (v Value) String() string {
	switch v.kind {
	case KindBlank:
		return ""
	case KindNumber:
		return FormatNumber(v.num)
	case KindText:
		return v.str
	case KindBoolean:
		if v.num != 0 {
			return "TRUE"
		}
		return "FALSE"
	case KindError:
		return v.err.String()
	case KindArray:
		return fmt.Sprintf("{array %dx%d}", v.arr.Rows(), v.arr.Columns())
	case KindReference:
		return v.ref.String()
	}
	return "?"
}
