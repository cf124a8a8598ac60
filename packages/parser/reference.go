package parser

import (
	"strconv"
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

type cornerKind uint8

const (
	cornerCell cornerKind = iota
	cornerColumn
	cornerRow
)

// parseReference reads an operand that is not a literal: a cell or area
// reference, a structured table reference, or a defined name, each with
// an optional sheet prefix.
func parseReference(text string) (ast.Expr, bool) {
	if open := strings.IndexByte(text, '['); open > 0 && strings.HasSuffix(text, "]") {
		return parseStructured(text[:open], text[open+1:len(text)-1])
	}

	sheet, endSheet, rest := "", "", text
	if bang := strings.LastIndexByte(text, '!'); bang >= 0 {
		prefix := text[:bang]
		rest = text[bang+1:]
		if len(prefix) >= 2 && prefix[0] == '\'' && prefix[len(prefix)-1] == '\'' {
			prefix = strings.ReplaceAll(prefix[1:len(prefix)-1], "''", "'")
		}
		if prefix == "" || rest == "" {
			return nil, false
		}
		sheet = prefix
		if i := strings.IndexByte(prefix, ':'); i >= 0 {
			sheet, endSheet = prefix[:i], prefix[i+1:]
			if sheet == "" || endSheet == "" {
				return nil, false
			}
		}
	}

	if i := strings.IndexByte(rest, ':'); i >= 0 {
		start, k1, ok1 := parseCorner(rest[:i])
		end, k2, ok2 := parseCorner(rest[i+1:])
		if !ok1 || !ok2 || k1 != k2 {
			return nil, false
		}
		return &ast.Ref{Sheet: sheet, EndSheet: endSheet, Start: start, End: end, Area: true}, true
	}

	if c, kind, ok := parseCorner(rest); ok && kind == cornerCell {
		return &ast.Ref{Sheet: sheet, EndSheet: endSheet, Start: c, End: c}, true
	}
	if endSheet == "" && isName(rest) {
		if sheet == "" {
			switch strings.ToUpper(rest) {
			case "TRUE":
				return &ast.Literal{Value: value.Bool(true)}, true
			case "FALSE":
				return &ast.Literal{Value: value.Bool(false)}, true
			}
		}
		return &ast.Name{Sheet: sheet, Name: rest}, true
	}
	return nil, false
}

func parseStructured(table, inner string) (ast.Expr, bool) {
	if !isName(table) {
		return nil, false
	}
	ref := &ast.StructuredRef{Table: table}
	switch {
	case inner == "":
	case strings.HasPrefix(inner, "#"):
		item, ok := value.ParseTableItem(inner)
		if !ok {
			return nil, false
		}
		ref.Item = item
	case strings.HasPrefix(inner, "@"):
		ref.Item = value.ItemThisRow
		ref.Column = strings.TrimSuffix(strings.TrimPrefix(inner[1:], "["), "]")
	default:
		ref.Column = inner
	}
	if strings.ContainsAny(ref.Column, "[]") {
		return nil, false
	}
	return ref, true
}

// parseCorner reads "$A$1", "A", "$3" and similar reference corners
func parseCorner(s string) (ast.CellRef, cornerKind, bool) {
	var c ast.CellRef
	i := 0
	colAbs := false
	if i < len(s) && s[i] == '$' {
		colAbs = true
		i++
	}
	j := i
	for j < len(s) && isLetter(s[j]) {
		j++
	}
	letters := s[i:j]
	i = j
	rowAbs := false
	if i < len(s) && s[i] == '$' {
		rowAbs = true
		i++
	}
	k := i
	for k < len(s) && s[k] >= '0' && s[k] <= '9' {
		k++
	}
	digits := s[i:k]
	if k != len(s) {
		return c, cornerCell, false
	}

	switch {
	case letters != "" && digits != "":
		col := value.ColumnIndex(letters)
		row, err := strconv.Atoi(digits)
		if col < 1 || col > maxColumns || err != nil || row < 1 || row > maxRows {
			return c, cornerCell, false
		}
		c = ast.CellRef{Row: row, Column: col, RowAbsolute: rowAbs, ColumnAbsolute: colAbs}
		return c, cornerCell, true
	case letters != "":
		col := value.ColumnIndex(letters)
		if rowAbs || col < 1 || col > maxColumns {
			return c, cornerColumn, false
		}
		return ast.CellRef{Column: col, ColumnAbsolute: colAbs}, cornerColumn, true
	case digits != "":
		row, err := strconv.Atoi(digits)
		if err != nil || row < 1 || row > maxRows {
			return c, cornerRow, false
		}
		return ast.CellRef{Row: row, RowAbsolute: colAbs || rowAbs}, cornerRow, true
	}
	return c, cornerCell, false
}

func isLetter(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z'
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case isLetter(b), b == '_', b == '\\', b >= 0x80:
		case i > 0 && (b >= '0' && b <= '9' || b == '.'):
		default:
			return false
		}
	}
	return true
}
