// Package parser reads A1-style formula text into expression trees. it
// tokenizes with github.com/xuri/efp and parses the token stream with a
// precedence-climbing recursive descent.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/efp"

	"github.com/vogtb/go-spreadsheet/packages/ast"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

const (
	maxRows    = 1048576
	maxColumns = 16384
)

// Parser is the reference ast.Parser. it holds no state and is safe for
// concurrent use.
type Parser struct{}

var _ ast.Parser = (*Parser)(nil)

func New() *Parser {
	return &Parser{}
}

// state is the cursor over one token stream
type state struct {
	tokens    []efp.Token
	positions []int
	pos       int
	end       int
}

// Parse accepts formula text with or without the leading '='.
func (p *Parser) Parse(text string, _ ast.ParseOptions) (ast.Expr, error) {
	body := strings.TrimLeft(text, " ")
	offset := len(text) - len(body)
	if strings.HasPrefix(body, "=") {
		body = body[1:]
		offset++
	}
	if strings.TrimSpace(body) == "" {
		return nil, &ast.ParseError{Position: offset, Message: "empty formula"}
	}
	if strings.Count(body, `"`)%2 != 0 {
		return nil, &ast.ParseError{Position: offset + strings.LastIndex(body, `"`), Message: "unterminated string"}
	}

	ps := efp.ExcelParser()
	raw := ps.Parse(body)
	st := &state{end: len(text)}
	cursor := 0
	for _, tok := range raw {
		at := cursor
		if tok.TValue != "" {
			if i := strings.Index(body[cursor:], tok.TValue); i >= 0 {
				at = cursor + i
				cursor = at + len(tok.TValue)
			}
		}
		switch tok.TType {
		case efp.TokenTypeWhitespace, efp.TokenTypeNoop:
			continue
		case efp.TokenTypeUnknown:
			return nil, &ast.ParseError{Position: offset + at, Message: fmt.Sprintf("unexpected %q", tok.TValue)}
		}
		st.tokens = append(st.tokens, tok)
		st.positions = append(st.positions, offset+at)
	}
	if len(st.tokens) == 0 {
		return nil, &ast.ParseError{Position: offset, Message: "empty formula"}
	}

	node, err := st.parseComparison()
	if err != nil {
		return nil, err
	}
	if st.pos < len(st.tokens) {
		return nil, st.errorf("unexpected token after expression: %q", st.tokens[st.pos].TValue)
	}
	return node, nil
}

func (s *state) eof() bool { return s.pos >= len(s.tokens) }

func (s *state) peek() efp.Token {
	if s.eof() {
		return efp.Token{}
	}
	return s.tokens[s.pos]
}

func (s *state) errorf(format string, args ...any) *ast.ParseError {
	at := s.end
	if !s.eof() {
		at = s.positions[s.pos]
	}
	return &ast.ParseError{Position: at, Message: fmt.Sprintf(format, args...)}
}

func (s *state) isInfix(values ...string) (string, bool) {
	tok := s.peek()
	if tok.TType != efp.TokenTypeOperatorInfix {
		return "", false
	}
	for _, v := range values {
		if tok.TValue == v {
			return v, true
		}
	}
	return "", false
}

func (s *state) isStop(tt string) bool {
	tok := s.peek()
	return tok.TType == tt && tok.TSubType == efp.TokenSubTypeStop
}

var comparisonOps = map[string]ast.BinaryOp{
	"=":  ast.Eq,
	"<>": ast.Ne,
	"<":  ast.Lt,
	"<=": ast.Le,
	">":  ast.Gt,
	">=": ast.Ge,
}

func (s *state) parseComparison() (ast.Expr, error) {
	left, err := s.parseConcatenation()
	if err != nil {
		return nil, err
	}
	for {
		v, ok := s.isInfix("=", "<>", "<", "<=", ">", ">=")
		if !ok {
			return left, nil
		}
		s.pos++
		right, err := s.parseConcatenation()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: comparisonOps[v], Left: left, Right: right}
	}
}

func (s *state) parseConcatenation() (ast.Expr, error) {
	left, err := s.parseAddition()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := s.isInfix("&"); !ok {
			return left, nil
		}
		s.pos++
		right, err := s.parseAddition()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: ast.Concat, Left: left, Right: right}
	}
}

func (s *state) parseAddition() (ast.Expr, error) {
	left, err := s.parseMultiplication()
	if err != nil {
		return nil, err
	}
	for {
		v, ok := s.isInfix("+", "-")
		if !ok {
			return left, nil
		}
		s.pos++
		right, err := s.parseMultiplication()
		if err != nil {
			return nil, err
		}
		op := ast.Add
		if v == "-" {
			op = ast.Sub
		}
		left = &ast.Binary{Op: op, Left: left, Right: right}
	}
}

func (s *state) parseMultiplication() (ast.Expr, error) {
	left, err := s.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		v, ok := s.isInfix("*", "/")
		if !ok {
			return left, nil
		}
		s.pos++
		right, err := s.parsePower()
		if err != nil {
			return nil, err
		}
		op := ast.Mul
		if v == "/" {
			op = ast.Div
		}
		left = &ast.Binary{Op: op, Left: left, Right: right}
	}
}

func (s *state) parsePower() (ast.Expr, error) {
	left, err := s.parsePostfix()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := s.isInfix("^"); !ok {
			return left, nil
		}
		s.pos++
		right, err := s.parsePostfix()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: ast.Pow, Left: left, Right: right}
	}
}

func (s *state) parsePostfix() (ast.Expr, error) {
	node, err := s.parseUnary()
	if err != nil {
		return nil, err
	}
	for tok := s.peek(); tok.TType == efp.TokenTypeOperatorPostfix && tok.TValue == "%"; tok = s.peek() {
		s.pos++
		node = &ast.Unary{Op: ast.Percent, Operand: node}
	}
	return node, nil
}

func (s *state) parseUnary() (ast.Expr, error) {
	tok := s.peek()
	if tok.TType != efp.TokenTypeOperatorPrefix {
		return s.parseUnion()
	}
	s.pos++
	operand, err := s.parseUnary()
	if err != nil {
		return nil, err
	}
	if tok.TValue == "+" {
		return &ast.Unary{Op: ast.Plus, Operand: operand}, nil
	}
	return &ast.Unary{Op: ast.Negate, Operand: operand}, nil
}

func (s *state) parseUnion() (ast.Expr, error) {
	left, err := s.parseIntersection()
	if err != nil {
		return nil, err
	}
	for tok := s.peek(); tok.TType == efp.TokenTypeOperatorInfix && tok.TSubType == efp.TokenSubTypeUnion; tok = s.peek() {
		s.pos++
		right, err := s.parseIntersection()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: ast.Union, Left: left, Right: right}
	}
	return left, nil
}

func (s *state) parseIntersection() (ast.Expr, error) {
	left, err := s.parsePrimary()
	if err != nil {
		return nil, err
	}
	for tok := s.peek(); tok.TType == efp.TokenTypeOperatorInfix && tok.TSubType == efp.TokenSubTypeIntersection; tok = s.peek() {
		s.pos++
		right, err := s.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: ast.Intersect, Left: left, Right: right}
	}
	return left, nil
}

func (s *state) parsePrimary() (ast.Expr, error) {
	if s.eof() {
		return nil, s.errorf("unexpected end of formula")
	}
	tok := s.peek()
	switch tok.TType {
	case efp.TokenTypeOperand:
		node, err := s.parseOperand(tok)
		if err != nil {
			return nil, err
		}
		s.pos++
		return node, nil
	case efp.TokenTypeFunction:
		if tok.TSubType != efp.TokenSubTypeStart {
			return nil, s.errorf("unexpected closing parenthesis")
		}
		if tok.TValue == "ARRAY" {
			return s.parseArray()
		}
		return s.parseFunctionCall()
	case efp.TokenTypeSubexpression:
		if tok.TSubType != efp.TokenSubTypeStart {
			return nil, s.errorf("unexpected closing parenthesis")
		}
		s.pos++
		node, err := s.parseComparison()
		if err != nil {
			return nil, err
		}
		if !s.isStop(efp.TokenTypeSubexpression) {
			return nil, s.errorf("missing closing parenthesis")
		}
		s.pos++
		return node, nil
	}
	return nil, s.errorf("unexpected %q", tok.TValue)
}

func (s *state) parseFunctionCall() (ast.Expr, error) {
	name := strings.ToUpper(strings.TrimPrefix(s.peek().TValue, "@"))
	name = strings.TrimPrefix(name, "_XLFN.")
	s.pos++

	call := &ast.Call{Name: name}
	if s.isStop(efp.TokenTypeFunction) {
		s.pos++
		return call, nil
	}
	for {
		if s.eof() {
			return nil, s.errorf("missing closing parenthesis for %s", name)
		}
		if tok := s.peek(); tok.TType == efp.TokenTypeArgument || s.isStop(efp.TokenTypeFunction) {
			call.Args = append(call.Args, &ast.Literal{Value: value.Blank()})
		} else {
			arg, err := s.parseComparison()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}

		switch {
		case s.eof():
			return nil, s.errorf("missing closing parenthesis for %s", name)
		case s.isStop(efp.TokenTypeFunction):
			s.pos++
			return call, nil
		case s.peek().TType == efp.TokenTypeArgument:
			s.pos++
		default:
			return nil, s.errorf("expected ',' or ')' in %s", name)
		}
	}
}

// parseArray reads the ARRAY/ARRAYROW function tokens efp emits for {..}
func (s *state) parseArray() (ast.Expr, error) {
	s.pos++
	lit := &ast.ArrayLit{}
	for {
		tok := s.peek()
		if tok.TType != efp.TokenTypeFunction || tok.TSubType != efp.TokenSubTypeStart || tok.TValue != "ARRAYROW" {
			return nil, s.errorf("malformed array constant")
		}
		s.pos++
		var row []ast.Expr
		for {
			el, err := s.parseComparison()
			if err != nil {
				return nil, err
			}
			row = append(row, el)
			if s.isStop(efp.TokenTypeFunction) {
				s.pos++
				break
			}
			if s.peek().TType != efp.TokenTypeArgument {
				return nil, s.errorf("malformed array constant")
			}
			s.pos++
		}
		if len(lit.Rows) > 0 && len(row) != len(lit.Rows[0]) {
			return nil, s.errorf("array constant rows must have the same length")
		}
		lit.Rows = append(lit.Rows, row)

		switch {
		case s.isStop(efp.TokenTypeFunction):
			s.pos++
			return lit, nil
		case s.peek().TType == efp.TokenTypeArgument:
			s.pos++
		default:
			return nil, s.errorf("malformed array constant")
		}
	}
}

func (s *state) parseOperand(tok efp.Token) (ast.Expr, error) {
	switch tok.TSubType {
	case efp.TokenSubTypeNumber:
		n, err := strconv.ParseFloat(tok.TValue, 64)
		if err != nil {
			return nil, s.errorf("invalid number %q", tok.TValue)
		}
		return &ast.Literal{Value: value.Number(n)}, nil
	case efp.TokenSubTypeText:
		return &ast.Literal{Value: value.Text(tok.TValue)}, nil
	case efp.TokenSubTypeLogical:
		return &ast.Literal{Value: value.Bool(strings.EqualFold(tok.TValue, "TRUE"))}, nil
	case efp.TokenSubTypeError:
		kind, ok := value.ParseErrorKind(tok.TValue)
		if !ok {
			return nil, s.errorf("unknown error literal %q", tok.TValue)
		}
		return &ast.Literal{Value: value.Error(kind)}, nil
	}
	if kind, ok := value.ParseErrorKind(tok.TValue); ok {
		return &ast.Literal{Value: value.Error(kind)}, nil
	}
	node, ok := parseReference(tok.TValue)
	if !ok {
		return nil, s.errorf("invalid reference %q", tok.TValue)
	}
	return node, nil
}
