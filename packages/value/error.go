package value

import "strings"

// ErrorKind represents standard spreadsheet error codes following
// Excel conventions
type ErrorKind uint8

const (
	NoError    ErrorKind = 0
	ErrorNull  ErrorKind = 1  // #NULL! - no cells in common between ranges
	ErrorDiv0  ErrorKind = 2  // #DIV/0! - division by zero
	ErrorValue ErrorKind = 3  // #VALUE! - wrong type of argument or operand
	ErrorRef   ErrorKind = 4  // #REF! - invalid cell reference
	ErrorName  ErrorKind = 5  // #NAME? - unrecognized function or name
	ErrorNum   ErrorKind = 6  // #NUM! - number too large or small to be represented
	ErrorNA    ErrorKind = 7  // #N/A - value not available
	ErrorSpill ErrorKind = 8  // #SPILL! - array result blocked by occupied cells
	ErrorCalc  ErrorKind = 9  // #CALC! - array engine could not produce a result
	ErrorCirc  ErrorKind = 10 // #CIRC! - member of an unresolved circular reference
)

var errorText = map[ErrorKind]string{
	ErrorNull:  "#NULL!",
	ErrorDiv0:  "#DIV/0!",
	ErrorValue: "#VALUE!",
	ErrorRef:   "#REF!",
	ErrorName:  "#NAME?",
	ErrorNum:   "#NUM!",
	ErrorNA:    "#N/A",
	ErrorSpill: "#SPILL!",
	ErrorCalc:  "#CALC!",
	ErrorCirc:  "#CIRC!",
}

func (k ErrorKind) String() string {
	if s, ok := errorText[k]; ok {
		return s
	}
	return "#ERROR!"
}

// ParseErrorKind maps error literal text such as "#DIV/0!" back to its kind.
// matching is case-insensitive.
func ParseErrorKind(text string) (ErrorKind, bool) {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for k, s := range errorText {
		if s == upper {
			return k, true
		}
	}
	return NoError, false
}
