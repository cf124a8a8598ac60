package value

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Epsilon is the magnitude at or below which a number counts as zero for
// division and truthiness.
const Epsilon = math.SmallestNonzeroFloat64

// NumberFormat controls how text is read as a number.
type NumberFormat struct {
	Tag          language.Tag
	Decimal      rune
	Group        rune // 0 when grouping separators are not accepted
	StripPercent bool // accept a trailing "%" and divide by 100
}

// Invariant reads numbers the way formulas are written: '.' decimal point and
// no grouping.
var Invariant = NumberFormat{Tag: language.Und, Decimal: '.'}

// NewNumberFormat derives separators for a BCP 47 locale by formatting a
// sample number with the locale's printer.
func NewNumberFormat(locale string, stripPercent bool) (NumberFormat, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return NumberFormat{}, err
	}
	p := message.NewPrinter(tag)
	sample := p.Sprintf("%v", number.Decimal(1234.5))

	var seps []rune
	for _, r := range sample {
		if !unicode.IsDigit(r) {
			seps = append(seps, r)
		}
	}
	f := NumberFormat{Tag: tag, Decimal: '.', StripPercent: stripPercent}
	switch len(seps) {
	case 0:
	case 1:
		f.Decimal = seps[0]
	default:
		f.Group = seps[0]
		f.Decimal = seps[len(seps)-1]
	}
	return f, nil
}

// ParseNumber reads text as a number. surrounding whitespace is ignored and
// infinities, NaN and hex notation are rejected.
func (f NumberFormat) ParseNumber(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	scale := 1.0
	if f.StripPercent && strings.HasSuffix(s, "%") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		scale = 0.01
	}
	if s == "" || strings.ContainsAny(s, "xX_") {
		return 0, false
	}
	if f.Group != 0 {
		s = strings.ReplaceAll(s, string(f.Group), "")
		if unicode.IsSpace(f.Group) {
			s = strings.ReplaceAll(s, " ", "")
		}
	}
	if f.Decimal != 0 && f.Decimal != '.' {
		if strings.ContainsRune(s, '.') {
			return 0, false
		}
		s = strings.ReplaceAll(s, string(f.Decimal), ".")
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n * scale, true
}

// ToNumber coerces a scalar to a number. arrays must be reduced by implicit
// intersection before coercion and yield ErrorValue here.
func ToNumber(v Value, f NumberFormat) (float64, ErrorKind) {
	switch v.kind {
	case KindNumber:
		return v.num, NoError
	case KindBoolean:
		return v.num, NoError
	case KindBlank:
		return 0, NoError
	case KindText:
		if n, ok := f.ParseNumber(v.str); ok {
			return n, NoError
		}
		return 0, ErrorValue
	case KindError:
		return 0, v.err
	}
	return 0, ErrorValue
}

// ToBoolean coerces a scalar to a boolean. text must read TRUE or FALSE.
func ToBoolean(v Value, _ NumberFormat) (bool, ErrorKind) {
	switch v.kind {
	case KindBoolean:
		return v.num != 0, NoError
	case KindNumber:
		return math.Abs(v.num) > Epsilon, NoError
	case KindBlank:
		return false, NoError
	case KindText:
		switch strings.ToUpper(strings.TrimSpace(v.str)) {
		case "TRUE":
			return true, NoError
		case "FALSE":
			return false, NoError
		}
		return false, ErrorValue
	case KindError:
		return false, v.err
	}
	return false, ErrorValue
}

// ToText coerces a scalar to text. numbers always use invariant formatting.
func ToText(v Value) (string, ErrorKind) {
	switch v.kind {
	case KindText:
		return v.str, NoError
	case KindNumber:
		return FormatNumber(v.num), NoError
	case KindBoolean:
		if v.num != 0 {
			return "TRUE", NoError
		}
		return "FALSE", NoError
	case KindBlank:
		return "", NoError
	case KindError:
		return "", v.err
	}
	return "", ErrorValue
}

// FormatNumber renders a number in invariant form: plain decimals for
// ordinary magnitudes, exponent notation otherwise.
func FormatNumber(n float64) string {
	if n == 0 {
		return "0"
	}
	abs := math.Abs(n)
	if abs >= 1e-5 && abs < 1e15 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'E', -1, 64)
}
